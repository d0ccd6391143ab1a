// Package ratelimit caps how many calls a paid external service gets per
// run. A zero limit means unlimited.
package ratelimit

import (
	"log"
	"sync"
)

type Budget struct {
	mu    sync.Mutex
	name  string
	used  int
	limit int
}

func NewBudget(name string, limit int) *Budget {
	return &Budget{name: name, limit: limit}
}

// Take consumes one call from the budget. Returns false once the limit is
// reached; callers degrade the same way they would on a missing credential.
func (b *Budget) Take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.limit > 0 && b.used >= b.limit {
		log.Printf("⚠️ %s request budget exhausted (%d/%d)", b.name, b.used, b.limit)
		return false
	}

	b.used++
	return true
}

func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}
