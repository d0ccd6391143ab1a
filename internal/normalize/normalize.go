// Package normalize turns a raw feed item body into channel-ready plain
// text and resolves the best illustrative image for it.
package normalize

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"dealbot/internal/feed"
)

// Result is the normalizer output for one item.
type Result struct {
	BodyPlain string
	MediaURL  string
}

var imageURLPattern = regexp.MustCompile(`(?i)^https?://\S+\.(jpg|jpeg|png|gif|webp)(\?\S*)?$`)

// Normalize strips markup from the item body, removes feed boilerplate and
// resolves the media URL by priority: structured metadata, then the first
// image embedded in the body markup, then none.
func Normalize(item feed.Item) Result {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(item.Body))

	res := Result{MediaURL: item.MediaURL}
	if res.MediaURL == "" && err == nil {
		res.MediaURL = firstBodyImage(doc)
	}

	var text string
	if err == nil {
		text = doc.Text()
	} else {
		text = stripTags(item.Body)
	}
	text = html.UnescapeString(text)

	text = stripFooter(text)
	text = stripLeadingTitle(text, item.Title)
	res.BodyPlain = collapseWhitespace(text)

	return res
}

// firstBodyImage scans the body markup for the first http(s) image tag.
func firstBodyImage(doc *goquery.Document) string {
	found := ""
	doc.Find("img").EachWithBreak(func(i int, s *goquery.Selection) bool {
		src, ok := s.Attr("src")
		if !ok {
			return true
		}
		src = strings.TrimSpace(src)
		if imageURLPattern.MatchString(src) {
			found = src
			return false
		}
		return true
	})
	return found
}

// stripTags is the fallback when the body is not parseable markup.
func stripTags(content string) string {
	inTag := false
	var result strings.Builder
	for _, char := range content {
		if char == '<' {
			inTag = true
		} else if char == '>' {
			inTag = false
		} else if !inTag {
			result.WriteRune(char)
		}
	}
	return result.String()
}

// stripFooter removes the trailing "submitted by ..." boilerplate that the
// feed source appends, and everything after it.
func stripFooter(text string) string {
	lower := strings.ToLower(text)
	if idx := strings.LastIndex(lower, "submitted by"); idx >= 0 {
		text = text[:idx]
	}
	return text
}

// stripLeadingTitle drops a leading repetition of the item title from the
// body, plus any punctuation and whitespace glued to it, so the composed
// message doesn't open with the title twice.
func stripLeadingTitle(text, title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return text
	}

	trimmed := strings.TrimLeftFunc(text, unicode.IsSpace)
	if len(trimmed) < len(title) {
		return text
	}
	if !strings.EqualFold(trimmed[:len(title)], title) {
		return text
	}

	rest := trimmed[len(title):]
	rest = strings.TrimLeftFunc(rest, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	return rest
}

func collapseWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var cleanLines []string
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			cleanLines = append(cleanLines, line)
		}
	}
	return strings.Join(cleanLines, "\n")
}

// Truncate caps text at max runes, appending an ellipsis when it had to
// cut. Channel length limits are enforced here and again at delivery.
func Truncate(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return strings.TrimSpace(string(runes[:max-1])) + "…"
}
