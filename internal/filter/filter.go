// Package filter decides whether an item is fit to publish. Stage 1 is a
// free keyword deny-list; stage 2 asks an external classifier and is only
// reached when stage 1 passes.
package filter

import (
	"context"
	"log"
	"time"

	"dealbot/internal/classify"
	"dealbot/internal/ratelimit"
)

// Policy is the filter's behavior when the external classifier fails.
type Policy int

const (
	// FailOpen admits the item with its original title and body. A broken
	// classifier must never block the whole publishing pipeline.
	FailOpen Policy = iota
	// FailClosed rejects the item instead. Not used by default; kept so
	// the failure contract is an explicit, testable property.
	FailClosed
)

// Semantic is the external classification stage.
type Semantic interface {
	Classify(ctx context.Context, title, body string) (*classify.Verdict, error)
}

type Filter struct {
	rules    Rules
	semantic Semantic // nil disables stage 2
	policy   Policy
	budget   *ratelimit.Budget
	timeout  time.Duration
}

func New(rules Rules, semantic Semantic, budget *ratelimit.Budget, timeout time.Duration) *Filter {
	return &Filter{
		rules:    rules,
		semantic: semantic,
		policy:   FailOpen,
		budget:   budget,
		timeout:  timeout,
	}
}

// Classify runs both stages. The keyword stage short-circuits so obvious
// junk never spends a classifier call.
func (f *Filter) Classify(ctx context.Context, title, body string) classify.Verdict {
	if containsAny(title+" "+body, f.rules.DenyKeywords) {
		log.Printf("Keyword stage rejected: %s", title)
		return classify.Verdict{Admissible: false}
	}

	if f.semantic == nil {
		return classify.Verdict{Admissible: true}
	}
	if f.budget != nil && !f.budget.Take() {
		// Budget exhaustion degrades exactly like a missing credential.
		return classify.Verdict{Admissible: true}
	}

	classifyCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	verdict, err := f.semantic.Classify(classifyCtx, title, body)
	if err != nil || verdict == nil {
		log.Printf("⚠️ Classifier error for %q: %v", title, err)
		if f.policy == FailClosed {
			return classify.Verdict{Admissible: false}
		}
		return classify.Verdict{Admissible: true}
	}

	return *verdict
}
