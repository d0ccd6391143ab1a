package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Counters
	ItemsFetched     int64
	NewItems         int64
	ItemsAdmitted    int64
	ItemsRejected    int64
	LinksRewritten   int64
	RewriteFallbacks int64
	MessagesSent     int64
	MediaFallbacks   int64
	DeliveryFailures int64

	// Timings
	LastRunDuration time.Duration

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) AddItemsFetched(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsFetched += int64(n)
}

func (m *Metrics) AddNewItems(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NewItems += int64(n)
}

func (m *Metrics) IncrementAdmitted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsAdmitted++
}

func (m *Metrics) IncrementRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ItemsRejected++
}

func (m *Metrics) IncrementLinksRewritten() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LinksRewritten++
}

func (m *Metrics) IncrementRewriteFallbacks() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RewriteFallbacks++
}

func (m *Metrics) IncrementMessagesSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesSent++
}

func (m *Metrics) IncrementMediaFallbacks() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MediaFallbacks++
}

func (m *Metrics) IncrementDeliveryFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeliveryFailures++
}

func (m *Metrics) RecordRun(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunDuration = duration
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"items_fetched":        m.ItemsFetched,
		"new_items":            m.NewItems,
		"items_admitted":       m.ItemsAdmitted,
		"items_rejected":       m.ItemsRejected,
		"links_rewritten":      m.LinksRewritten,
		"rewrite_fallbacks":    m.RewriteFallbacks,
		"messages_sent":        m.MessagesSent,
		"media_fallbacks":      m.MediaFallbacks,
		"delivery_failures":    m.DeliveryFailures,
		"last_run_duration_ms": m.LastRunDuration.Milliseconds(),
		"last_run_time":        m.LastRunTime.Format(time.RFC3339),
		"last_error_time":      m.LastErrorTime.Format(time.RFC3339),
		"last_error":           m.LastError,
		"is_healthy":           m.IsHealthy,
	}
}
