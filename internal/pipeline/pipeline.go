// Package pipeline drives one full ingest → dedupe → classify → rewrite →
// compose → deliver pass over the feed. Strictly sequential: channel order
// and cursor monotonicity depend on items never overlapping.
package pipeline

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"
	"time"

	"dealbot/internal/affiliate"
	"dealbot/internal/classify"
	"dealbot/internal/cursor"
	"dealbot/internal/feed"
	"dealbot/internal/metrics"
	"dealbot/internal/normalize"
	"dealbot/internal/retry"
	"dealbot/internal/telegram"
)

// bodyMaxRunes caps how much normalized body text goes into the caption;
// the delivery adapter enforces the hard channel limits on top.
const bodyMaxRunes = 700

type Feed interface {
	Fetch(ctx context.Context) ([]feed.Item, error)
}

type Filter interface {
	Classify(ctx context.Context, title, body string) classify.Verdict
}

type Rewriter interface {
	Rewrite(ctx context.Context, rawURL string) string
	RewriteText(ctx context.Context, text string) string
}

type Deliverer interface {
	Deliver(ctx context.Context, caption, mediaURL string) telegram.Result
}

// Report summarizes one run for the operator.
type Report struct {
	Bootstrap        bool
	ItemsFetched     int
	NewItems         int
	Delivered        int
	Rejected         int
	DeliveryFailures int
	CursorBefore     string
	CursorAfter      string
}

type Config struct {
	PacingDelay time.Duration
	MaxItemAge  time.Duration
	Retry       retry.Config
}

type Pipeline struct {
	feed      Feed
	store     cursor.Store
	filter    Filter
	rewriter  Rewriter
	deliverer Deliverer
	cfg       Config
}

func New(f Feed, store cursor.Store, flt Filter, rw Rewriter, d Deliverer, cfg Config) *Pipeline {
	return &Pipeline{
		feed:      f,
		store:     store,
		filter:    flt,
		rewriter:  rw,
		deliverer: d,
		cfg:       cfg,
	}
}

// Run executes one pipeline pass. The cursor is read once here and written
// once per processed item, so a mid-run crash loses at most the in-flight
// item. A feed fetch failure skips the run entirely; a cursor write failure
// aborts it mid-window.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	startTime := time.Now()
	defer func() {
		metrics.Global.RecordRun(time.Since(startTime))
	}()

	var report Report

	cursorID, err := p.store.Load()
	if err != nil {
		// Degrade to "no cursor known"; bootstrap below prevents flooding.
		log.Printf("⚠️ Cursor load failed, treating as absent: %v", err)
		cursorID = ""
	}
	report.CursorBefore = cursorID
	report.CursorAfter = cursorID

	var items []feed.Item
	fetchErr := retry.Do(ctx, p.cfg.Retry, func() error {
		var ferr error
		items, ferr = p.feed.Fetch(ctx)
		return ferr
	})
	if fetchErr != nil {
		metrics.Global.SetError(fetchErr.Error())
		return report, fmt.Errorf("feed fetch: %w", fetchErr)
	}

	report.ItemsFetched = len(items)
	metrics.Global.AddItemsFetched(len(items))

	if len(items) == 0 {
		log.Println("Feed returned no items, nothing to do")
		return report, nil
	}

	// First ever run: record a baseline instead of mass-publishing the
	// whole page.
	if cursorID == "" {
		newest := items[0]
		if err := p.store.Save(newest.ID, newest.Title); err != nil {
			metrics.Global.SetError(err.Error())
			return report, fmt.Errorf("bootstrap cursor write: %w", err)
		}
		report.Bootstrap = true
		report.CursorAfter = newest.ID
		log.Printf("Bootstrap: cursor set to newest item %s, nothing delivered", newest.ID)
		return report, nil
	}

	window := p.newItemWindow(items, cursorID)
	report.NewItems = len(window)
	metrics.Global.AddNewItems(len(window))

	if len(window) == 0 {
		log.Println("No new items since last run")
		return report, nil
	}

	// Oldest new item first, to preserve chronological channel order.
	for i := len(window) - 1; i >= 0; i-- {
		item := window[i]

		p.processItem(ctx, item, &report)

		// The cursor advances after every admit/reject decision, delivered
		// or not. At-most-once: a failed delivery is never replayed. A
		// failed write aborts the run instead — continuing would leave the
		// cursor behind and re-deliver the rest of the window next time.
		if err := p.store.Save(item.ID, item.Title); err != nil {
			metrics.Global.SetError(err.Error())
			return report, fmt.Errorf("cursor write after item %s: %w", item.ID, err)
		}
		report.CursorAfter = item.ID

		if i > 0 && p.cfg.PacingDelay > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(p.cfg.PacingDelay):
			}
		}
	}

	log.Printf("Run complete: %d new, %d delivered, %d rejected, %d delivery failures",
		report.NewItems, report.Delivered, report.Rejected, report.DeliveryFailures)
	return report, nil
}

// newItemWindow walks the newest-first page and collects everything ahead
// of the stored cursor. When the cursor id is not on the page (feed
// rotated faster than the run cadence), everything recent enough counts as
// new — bounded by MaxItemAge instead of re-delivering the full page.
func (p *Pipeline) newItemWindow(items []feed.Item, cursorID string) []feed.Item {
	var window []feed.Item
	for _, item := range items {
		if item.ID == cursorID {
			return window
		}
		window = append(window, item)
	}

	log.Printf("⚠️ Cursor %s not found on feed page, bounding window by age", cursorID)
	if p.cfg.MaxItemAge <= 0 {
		return window
	}

	bounded := window[:0]
	for _, item := range window {
		if item.Published.IsZero() || time.Since(item.Published) <= p.cfg.MaxItemAge {
			bounded = append(bounded, item)
		}
	}
	return bounded
}

func (p *Pipeline) processItem(ctx context.Context, item feed.Item, report *Report) {
	norm := normalize.Normalize(item)

	verdict := p.filter.Classify(ctx, item.Title, norm.BodyPlain)
	if !verdict.Admissible {
		metrics.Global.IncrementRejected()
		report.Rejected++
		log.Printf("Filtered out: %s", item.Title)
		return
	}
	metrics.Global.IncrementAdmitted()

	body := verdict.Summary
	if body == "" {
		body = norm.BodyPlain
	}
	body = p.rewriter.RewriteText(ctx, body)

	title := verdict.Title
	if title == "" {
		title = item.Title
	}

	dealURL, converted := p.resolveDealLink(ctx, item, norm.BodyPlain)
	caption := composeCaption(title, body, dealURL, converted)

	result := p.deliverer.Deliver(ctx, caption, norm.MediaURL)
	if result.Err != nil {
		// Logged and dropped: the cursor still advances, the audience
		// never sees a partial item.
		log.Printf("❌ Delivery failed for %s: %v", item.ID, result.Err)
		report.DeliveryFailures++
		return
	}
	report.Delivered++
}

// resolveDealLink picks the outbound merchant URL for the caption: first
// from the normalized body, then from submitter comments, then the item
// permalink as a last resort. The chosen URL goes through the rewriter;
// converted reports whether monetization actually happened.
func (p *Pipeline) resolveDealLink(ctx context.Context, item feed.Item, bodyPlain string) (string, bool) {
	candidates := affiliate.OutboundURLs(bodyPlain)
	if len(candidates) == 0 {
		for _, comment := range item.Comments {
			if !comment.AuthorIsSubmitter {
				continue
			}
			candidates = affiliate.OutboundURLs(comment.Body)
			if len(candidates) > 0 {
				break
			}
		}
	}

	if len(candidates) == 0 {
		return item.Permalink, false
	}

	original := candidates[0]
	rewritten := p.rewriter.Rewrite(ctx, original)
	return rewritten, rewritten != original
}

func composeCaption(title, body, dealURL string, converted bool) string {
	var b strings.Builder

	b.WriteString("<b>" + html.EscapeString(title) + "</b>\n")

	body = strings.TrimSpace(body)
	if body != "" {
		b.WriteString("\n" + html.EscapeString(normalize.Truncate(body, bodyMaxRunes)) + "\n")
	}

	b.WriteString("\n✅ <b>Link:</b> " + html.EscapeString(dealURL) + "\n")

	tag := "#Direct"
	if converted {
		tag = "#EarnKaro"
	}
	b.WriteString("\n#Deal " + tag)

	return b.String()
}
