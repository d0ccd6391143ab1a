// Package affiliate rewrites merchant URLs into monetized ones through an
// EarnKaro-style converter API. Every failure path returns the original
// URL unchanged; a broken converter costs commission, not delivery.
package affiliate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"dealbot/internal/cache"
	"dealbot/internal/metrics"
	"dealbot/internal/ratelimit"
)

// Policy is the rewriter's behavior on converter failure.
type Policy int

const (
	// FailPassthrough returns the original URL on any failure: network
	// error, non-success status, or the service reporting it could not
	// process the URL.
	FailPassthrough Policy = iota
)

// skipHosts are never rewritten: links back into the feed source, preview
// and thumbnail hosts, and the converter's own domains (rewriting an
// already-converted URL is never attempted).
var skipHosts = []string{
	"reddit.com",
	"redd.it",
	"redditmedia.com",
	"redditstatic.com",
	"ekaro.in",
	"earnkaro.com",
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"')]+`)

type convertRequest struct {
	Deal          string `json:"deal"`
	ConvertOption string `json:"convert_option"`
}

type convertResponse struct {
	Success int    `json:"success"`
	Data    string `json:"data"`
}

type Rewriter struct {
	apiURL string
	token  string
	policy Policy
	client *http.Client
	cache  *cache.Cache
	budget *ratelimit.Budget
}

func NewRewriter(apiURL, token string, timeout time.Duration, budget *ratelimit.Budget) *Rewriter {
	return &Rewriter{
		apiURL: apiURL,
		token:  token,
		policy: FailPassthrough,
		client: &http.Client{Timeout: timeout},
		cache:  cache.New(),
		budget: budget,
	}
}

// Rewrite converts one URL. It never returns an error and never blocks
// pipeline progress beyond the HTTP timeout. Results are memoized for the
// run so repeated URLs cost one converter call.
func (r *Rewriter) Rewrite(ctx context.Context, rawURL string) string {
	if r.token == "" {
		return rawURL
	}

	if converted, ok := r.cache.Get(rawURL); ok {
		return converted
	}

	if r.budget != nil && !r.budget.Take() {
		return rawURL
	}

	converted, err := r.convert(ctx, rawURL)
	if err != nil {
		log.Printf("⚠️ Link conversion failed for %s, keeping original: %v", rawURL, err)
		metrics.Global.IncrementRewriteFallbacks()
		r.cache.Set(rawURL, rawURL, time.Hour)
		return rawURL
	}

	metrics.Global.IncrementLinksRewritten()
	r.cache.Set(rawURL, converted, time.Hour)
	return converted
}

func (r *Rewriter) convert(ctx context.Context, rawURL string) (string, error) {
	payload, err := json.Marshal(convertRequest{
		Deal:          rawURL,
		ConvertOption: "convert_only",
	})
	if err != nil {
		return "", fmt.Errorf("error make JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.apiURL, bytes.NewBuffer(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error HTTP request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Printf("Warning: failed to close response body: %v", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("converter API error: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response: %w", err)
	}

	var converted convertResponse
	if err := json.Unmarshal(body, &converted); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}
	if converted.Success != 1 {
		return "", fmt.Errorf("converter could not process URL (success=%d)", converted.Success)
	}

	result := strings.TrimSpace(converted.Data)
	u, err := url.Parse(result)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("converter returned invalid URL %q", result)
	}

	return result, nil
}

// RewriteText discovers URLs in free text and replaces each with its
// rewritten form in place. Surrounding text, including labels like
// "Men's: ", stays byte-identical. Discovery de-duplicates while keeping
// first-seen order so each distinct URL is converted exactly once.
func (r *Rewriter) RewriteText(ctx context.Context, text string) string {
	order := OutboundURLs(text)
	if len(order) == 0 {
		return text
	}

	replacements := make(map[string]string, len(order))
	for _, u := range order {
		replacements[u] = r.Rewrite(ctx, u)
	}

	return urlPattern.ReplaceAllStringFunc(text, func(match string) string {
		u, tail := splitTrailingPunct(match)
		if rewritten, ok := replacements[u]; ok && rewritten != "" {
			return rewritten + tail
		}
		return match
	})
}

// OutboundURLs returns the distinct rewritable URLs found in text, in
// first-seen order. Feed-source, preview and converter hosts are excluded,
// same as in RewriteText.
func OutboundURLs(text string) []string {
	seen := map[string]struct{}{}
	var urls []string

	for _, match := range urlPattern.FindAllString(text, -1) {
		u, _ := splitTrailingPunct(match)
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		if shouldSkip(u) {
			continue
		}
		urls = append(urls, u)
	}
	return urls
}

// splitTrailingPunct peels sentence punctuation off the end of a scanned
// URL token so "https://x.example/a." rewrites the URL, not the period.
func splitTrailingPunct(token string) (string, string) {
	cut := len(token)
	for cut > 0 && strings.ContainsRune(".,;:!?", rune(token[cut-1])) {
		cut--
	}
	return token[:cut], token[cut:]
}

func shouldSkip(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}

	host := strings.ToLower(u.Host)
	for _, skip := range skipHosts {
		if host == skip || strings.HasSuffix(host, "."+skip) {
			return true
		}
	}
	return false
}
