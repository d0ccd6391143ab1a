package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"dealbot/internal/classify"
	"dealbot/internal/feed"
	"dealbot/internal/retry"
	"dealbot/internal/telegram"
)

type fakeFeed struct {
	items []feed.Item
	err   error
}

func (f *fakeFeed) Fetch(ctx context.Context) ([]feed.Item, error) {
	return f.items, f.err
}

type fakeStore struct {
	id     string
	title  string
	saves  []string
	failAt string // id whose Save fails
}

func (s *fakeStore) Load() (string, error) { return s.id, nil }

func (s *fakeStore) Save(id, title string) error {
	if id == s.failAt && s.failAt != "" {
		return errors.New("disk full")
	}
	s.id = id
	s.title = title
	s.saves = append(s.saves, id)
	return nil
}

func (s *fakeStore) Close() error { return nil }

type fakeFilter struct {
	rejectTitles map[string]bool
}

func (f *fakeFilter) Classify(ctx context.Context, title, body string) classify.Verdict {
	if f.rejectTitles[title] {
		return classify.Verdict{Admissible: false}
	}
	return classify.Verdict{Admissible: true}
}

// passthroughRewriter leaves URLs and text alone, like a converter with no
// credentials configured.
type passthroughRewriter struct{}

func (passthroughRewriter) Rewrite(ctx context.Context, rawURL string) string   { return rawURL }
func (passthroughRewriter) RewriteText(ctx context.Context, text string) string { return text }

type mappingRewriter struct{}

func (mappingRewriter) Rewrite(ctx context.Context, rawURL string) string {
	return strings.Replace(rawURL, "shop.example", "aff.example", 1)
}

func (mappingRewriter) RewriteText(ctx context.Context, text string) string {
	return strings.ReplaceAll(text, "shop.example", "aff.example")
}

type fakeDeliverer struct {
	captions   []string
	failAlways bool
}

func (d *fakeDeliverer) Deliver(ctx context.Context, caption, mediaURL string) telegram.Result {
	if d.failAlways {
		return telegram.Result{Err: errors.New("chat not found")}
	}
	d.captions = append(d.captions, caption)
	return telegram.Result{Delivered: true}
}

func testConfig() Config {
	return Config{
		PacingDelay: 0,
		MaxItemAge:  24 * time.Hour,
		Retry:       retry.Config{MaxAttempts: 1},
	}
}

func newTestPipeline(f *fakeFeed, s *fakeStore, flt Filter, rw Rewriter, d *fakeDeliverer) *Pipeline {
	if flt == nil {
		flt = &fakeFilter{}
	}
	if rw == nil {
		rw = passthroughRewriter{}
	}
	return New(f, s, flt, rw, d, testConfig())
}

func dealItem(id, title string) feed.Item {
	return feed.Item{
		ID:        id,
		Title:     title,
		Body:      "<p>Grab it at https://shop.example/" + id + "</p>",
		Permalink: "https://www.reddit.com/r/deals/comments/" + id + "/",
		Published: time.Now().Add(-time.Hour),
	}
}

func TestRun_BootstrapSetsCursorWithoutDelivering(t *testing.T) {
	store := &fakeStore{}
	deliverer := &fakeDeliverer{}
	p := newTestPipeline(&fakeFeed{items: []feed.Item{
		dealItem("t3_c", "C"), dealItem("t3_b", "B"), dealItem("t3_a", "A"),
	}}, store, nil, nil, deliverer)

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !report.Bootstrap {
		t.Error("expected bootstrap run")
	}
	if store.id != "t3_c" {
		t.Errorf("cursor = %q, want newest item", store.id)
	}
	if len(deliverer.captions) != 0 {
		t.Errorf("bootstrap delivered %d items", len(deliverer.captions))
	}
}

func TestRun_DeliversOnlyItemsAheadOfCursor(t *testing.T) {
	store := &fakeStore{id: "t3_b"}
	deliverer := &fakeDeliverer{}
	p := newTestPipeline(&fakeFeed{items: []feed.Item{
		dealItem("t3_c", "C"), dealItem("t3_b", "B"), dealItem("t3_a", "A"),
	}}, store, nil, nil, deliverer)

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.NewItems != 1 || report.Delivered != 1 {
		t.Errorf("report = %+v, want one new delivered item", report)
	}
	if store.id != "t3_c" {
		t.Errorf("cursor = %q, want t3_c", store.id)
	}
	if len(deliverer.captions) != 1 || !strings.Contains(deliverer.captions[0], "<b>C</b>") {
		t.Errorf("unexpected deliveries: %v", deliverer.captions)
	}
}

func TestRun_RerunOnSameSnapshotDeliversNothing(t *testing.T) {
	items := []feed.Item{
		dealItem("t3_c", "C"), dealItem("t3_b", "B"), dealItem("t3_a", "A"),
	}
	store := &fakeStore{id: "t3_a"}
	deliverer := &fakeDeliverer{}
	p := newTestPipeline(&fakeFeed{items: items}, store, nil, nil, deliverer)

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	firstCount := len(deliverer.captions)

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if report.NewItems != 0 || len(deliverer.captions) != firstCount {
		t.Errorf("rerun on identical snapshot delivered again: %+v", report)
	}
}

func TestRun_OldestFirstOrder(t *testing.T) {
	store := &fakeStore{id: "t3_old"}
	deliverer := &fakeDeliverer{}
	p := newTestPipeline(&fakeFeed{items: []feed.Item{
		dealItem("t3_n3", "Third"),
		dealItem("t3_n2", "Second"),
		dealItem("t3_n1", "First"),
		dealItem("t3_old", "Old"),
	}}, store, nil, nil, deliverer)

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantOrder := []string{"First", "Second", "Third"}
	if len(deliverer.captions) != 3 {
		t.Fatalf("delivered %d items, want 3", len(deliverer.captions))
	}
	for i, title := range wantOrder {
		if !strings.Contains(deliverer.captions[i], "<b>"+title+"</b>") {
			t.Errorf("position %d: want %q, got %q", i, title, deliverer.captions[i])
		}
	}
	if want := []string{"t3_n1", "t3_n2", "t3_n3"}; len(store.saves) != 3 ||
		store.saves[0] != want[0] || store.saves[2] != want[2] {
		t.Errorf("cursor writes = %v, want %v", store.saves, want)
	}
}

func TestRun_DeliveryFailureStillAdvancesCursor(t *testing.T) {
	store := &fakeStore{id: "t3_b"}
	deliverer := &fakeDeliverer{failAlways: true}
	p := newTestPipeline(&fakeFeed{items: []feed.Item{
		dealItem("t3_c", "C"), dealItem("t3_b", "B"),
	}}, store, nil, nil, deliverer)

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.DeliveryFailures != 1 || report.Delivered != 0 {
		t.Errorf("report = %+v", report)
	}
	if store.id != "t3_c" {
		t.Errorf("cursor must advance past failed delivery, got %q", store.id)
	}
}

func TestRun_RejectedItemAdvancesCursorWithoutDelivery(t *testing.T) {
	store := &fakeStore{id: "t3_b"}
	deliverer := &fakeDeliverer{}
	flt := &fakeFilter{rejectTitles: map[string]bool{"C": true}}
	p := newTestPipeline(&fakeFeed{items: []feed.Item{
		dealItem("t3_c", "C"), dealItem("t3_b", "B"),
	}}, store, flt, nil, deliverer)

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Rejected != 1 || report.Delivered != 0 {
		t.Errorf("report = %+v", report)
	}
	if len(deliverer.captions) != 0 {
		t.Errorf("rejected item was delivered: %v", deliverer.captions)
	}
	if store.id != "t3_c" {
		t.Errorf("cursor = %q, want t3_c", store.id)
	}
}

func TestRun_CursorWriteFailureAbortsRun(t *testing.T) {
	items := []feed.Item{
		dealItem("t3_n2", "Second"), dealItem("t3_n1", "First"), dealItem("t3_b", "B"),
	}
	store := &fakeStore{id: "t3_b", failAt: "t3_n1"}
	deliverer := &fakeDeliverer{}
	p := newTestPipeline(&fakeFeed{items: items}, store, nil, nil, deliverer)

	report, err := p.Run(context.Background())
	if err == nil {
		t.Fatal("expected cursor write failure to surface")
	}

	// The oldest item was already in flight when the write failed; nothing
	// after it may be processed.
	if len(deliverer.captions) != 1 || !strings.Contains(deliverer.captions[0], "<b>First</b>") {
		t.Errorf("unexpected deliveries after aborted write: %v", deliverer.captions)
	}
	if report.CursorAfter != "t3_b" {
		t.Errorf("CursorAfter = %q, want unchanged cursor", report.CursorAfter)
	}
	if len(store.saves) != 0 {
		t.Errorf("cursor writes recorded despite failure: %v", store.saves)
	}

	// A rerun on the same snapshot sees the same window again: only the
	// single in-flight item is ever at risk of duplication.
	store.failAt = ""
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(deliverer.captions) != 3 {
		t.Errorf("delivered %d items across both runs, want 3", len(deliverer.captions))
	}
	if store.id != "t3_n2" {
		t.Errorf("cursor = %q after recovery, want t3_n2", store.id)
	}
}

func TestRun_CursorOffPageBoundedByAge(t *testing.T) {
	recent := dealItem("t3_new", "Recent")
	stale := dealItem("t3_stale", "Stale")
	stale.Published = time.Now().Add(-48 * time.Hour)

	store := &fakeStore{id: "t3_gone"}
	deliverer := &fakeDeliverer{}
	p := newTestPipeline(&fakeFeed{items: []feed.Item{recent, stale}}, store, nil, nil, deliverer)

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.NewItems != 1 {
		t.Errorf("NewItems = %d, want the stale item dropped", report.NewItems)
	}
	if len(deliverer.captions) != 1 || !strings.Contains(deliverer.captions[0], "Recent") {
		t.Errorf("unexpected deliveries: %v", deliverer.captions)
	}
}

func TestRun_FetchFailureSkipsRun(t *testing.T) {
	store := &fakeStore{id: "t3_b"}
	p := newTestPipeline(&fakeFeed{err: errors.New("status 429")}, store, nil, nil, &fakeDeliverer{})

	if _, err := p.Run(context.Background()); err == nil {
		t.Fatal("expected fetch error to surface")
	}
	if len(store.saves) != 0 {
		t.Errorf("cursor written on failed fetch: %v", store.saves)
	}
}

func TestRun_EmptyFeedIsNoop(t *testing.T) {
	store := &fakeStore{}
	p := newTestPipeline(&fakeFeed{}, store, nil, nil, &fakeDeliverer{})

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Bootstrap || len(store.saves) != 0 {
		t.Errorf("empty feed mutated state: %+v, saves %v", report, store.saves)
	}
}

func TestRun_RewritesDealLink(t *testing.T) {
	store := &fakeStore{id: "t3_b"}
	deliverer := &fakeDeliverer{}
	p := newTestPipeline(&fakeFeed{items: []feed.Item{
		dealItem("t3_c", "C"), dealItem("t3_b", "B"),
	}}, store, nil, mappingRewriter{}, deliverer)

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	caption := deliverer.captions[0]
	if !strings.Contains(caption, "https://aff.example/t3_c") {
		t.Errorf("deal link not rewritten: %q", caption)
	}
	if !strings.Contains(caption, "#EarnKaro") {
		t.Errorf("converted item should carry the converter tag: %q", caption)
	}
}

func TestRun_PermalinkFallbackIsDirect(t *testing.T) {
	item := feed.Item{
		ID:        "t3_c",
		Title:     "C",
		Body:      "<p>no links in here</p>",
		Permalink: "https://www.reddit.com/r/deals/comments/t3_c/",
		Published: time.Now().Add(-time.Hour),
	}
	store := &fakeStore{id: "t3_b"}
	deliverer := &fakeDeliverer{}
	p := newTestPipeline(&fakeFeed{items: []feed.Item{item, dealItem("t3_b", "B")}},
		store, nil, mappingRewriter{}, deliverer)

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	caption := deliverer.captions[0]
	if !strings.Contains(caption, item.Permalink) {
		t.Errorf("permalink fallback missing: %q", caption)
	}
	if !strings.Contains(caption, "#Direct") {
		t.Errorf("unconverted item should carry the direct tag: %q", caption)
	}
}

func TestRun_SubmitterCommentLinkUsed(t *testing.T) {
	item := feed.Item{
		ID:        "t3_c",
		Title:     "C",
		Body:      "<p>link in comments</p>",
		Permalink: "https://www.reddit.com/r/deals/comments/t3_c/",
		Published: time.Now().Add(-time.Hour),
		Comments: []feed.Comment{
			{AuthorIsSubmitter: false, Body: "nice https://spam.example/x"},
			{AuthorIsSubmitter: true, Body: "here you go https://shop.example/real"},
		},
	}
	store := &fakeStore{id: "t3_b"}
	deliverer := &fakeDeliverer{}
	p := newTestPipeline(&fakeFeed{items: []feed.Item{item, dealItem("t3_b", "B")}},
		store, nil, mappingRewriter{}, deliverer)

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	caption := deliverer.captions[0]
	if !strings.Contains(caption, "https://aff.example/real") {
		t.Errorf("submitter comment link not used: %q", caption)
	}
	if strings.Contains(caption, "spam.example") {
		t.Errorf("non-submitter comment link leaked: %q", caption)
	}
}

func TestComposeCaption(t *testing.T) {
	caption := composeCaption("Shoes <50% off>", "Great & cheap", "https://aff.example/x?id=1&ref=2", true)

	if !strings.Contains(caption, "<b>Shoes &lt;50% off&gt;</b>") {
		t.Errorf("title not escaped: %q", caption)
	}
	if !strings.Contains(caption, "Great &amp; cheap") {
		t.Errorf("body not escaped: %q", caption)
	}
	if !strings.Contains(caption, "✅ <b>Link:</b> https://aff.example/x?id=1&amp;ref=2") {
		t.Errorf("link not escaped for HTML mode: %q", caption)
	}
	if !strings.HasSuffix(caption, "#Deal #EarnKaro") {
		t.Errorf("tag line malformed: %q", caption)
	}
}
