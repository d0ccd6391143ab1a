// Package feed fetches a subreddit's RSS feed and maps it to the typed
// Item the rest of the pipeline works on. Downstream code never sees raw
// gofeed payloads.
package feed

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
)

// Reddit blocks the default Go user agent, so the fetch identifies itself
// like a browser.
const browserUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/117.0"

// Comment is one comment attached to an item. Only submitter comments are
// interesting downstream (deal links posted after the fact).
type Comment struct {
	AuthorIsSubmitter bool
	Body              string
}

// Item is one unit fetched from the feed. Immutable after construction and
// discarded after one pipeline pass.
type Item struct {
	ID        string // opaque stable id, e.g. "t3_1abcd2"
	Title     string
	Body      string // raw marked-up text, may be empty
	Comments  []Comment
	MediaURL  string // structured media metadata, if the feed carried any
	Permalink string
	Published time.Time
}

type Fetcher struct {
	subreddit string
	client    *http.Client
}

func NewFetcher(subreddit string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		subreddit: subreddit,
		client:    &http.Client{Timeout: timeout},
	}
}

// Fetch downloads and parses the subreddit's /new feed. Items come back in
// the source's native newest-first order. Page size is whatever Reddit
// returns, not a full history.
func (f *Fetcher) Fetch(ctx context.Context) ([]Item, error) {
	url := fmt.Sprintf("https://www.reddit.com/r/%s/new/.rss", f.subreddit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Printf("Warning: failed to close feed response body: %v", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	parsed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := MapItems(parsed.Items)
	log.Printf("Loaded %d items from r/%s", len(items), f.subreddit)
	return items, nil
}

// MapItems converts parsed feed entries into typed Items, preserving feed
// order.
func MapItems(entries []*gofeed.Item) []Item {
	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}

		item := Item{
			ID:        entry.GUID,
			Title:     entry.Title,
			Body:      entry.Content,
			Permalink: entry.Link,
			MediaURL:  mediaURL(entry),
		}
		if item.Body == "" {
			item.Body = entry.Description
		}
		if entry.PublishedParsed != nil {
			item.Published = *entry.PublishedParsed
		} else if entry.UpdatedParsed != nil {
			item.Published = *entry.UpdatedParsed
		}

		if item.ID == "" {
			// Some feeds omit guid; the permalink is stable enough.
			item.ID = entry.Link
		}

		items = append(items, item)
	}
	return items
}

// mediaURL pulls the structured media attachment if the entry has one.
// Priority: media:content, then media:thumbnail, then enclosures.
func mediaURL(entry *gofeed.Item) string {
	if media, ok := entry.Extensions["media"]; ok {
		for _, field := range []string{"content", "thumbnail"} {
			for _, ext := range media[field] {
				if url := ext.Attrs["url"]; url != "" {
					return url
				}
			}
		}
	}

	for _, enc := range entry.Enclosures {
		if enc != nil && enc.URL != "" {
			return enc.URL
		}
	}

	if entry.Image != nil && entry.Image.URL != "" {
		return entry.Image.URL
	}

	return ""
}
