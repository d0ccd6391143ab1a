// Package classify decides whether a post is a publishable deal, using an
// external language model. Two providers are supported, Gemini and OpenAI,
// behind the same labeled-response contract.
package classify

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Verdict is the classifier's answer for one item. Title and Summary are
// optional rewrites, only meaningful when Admissible is true.
type Verdict struct {
	Admissible bool
	Title      string
	Summary    string
}

const promptTemplate = `You are reviewing a post from an online deals community before it is republished to a public channel.

POST:
Title: %s
Body: %s

TASK:

Decide whether this post is a concrete deal worth republishing. Skip questions, complaints, rants, help requests, referral spam and anything that is not an actual deal.

If it is worth posting, rewrite the title as a short deal headline and write a one or two sentence summary of the offer.

Answer strictly in this format:

VERDICT: POST or SKIP

TITLE: <rewritten title>

SUMMARY: <short summary>
`

// sanitizeBody collapses whitespace and bounds the prompt size. Cutting
// happens on a rune boundary, preferably at a sentence end.
func sanitizeBody(body string) string {
	body = strings.ReplaceAll(body, "\r", "")
	body = strings.Join(strings.Fields(body), " ")

	maxChars := 4000
	if utf8.RuneCountInString(body) > maxChars {
		runes := []rune(body)
		trimmed := string(runes[:maxChars])
		if idx := strings.LastIndex(trimmed, ". "); idx > 800 {
			trimmed = trimmed[:idx+1]
		}
		body = trimmed + "\n[TRUNCATED]"
	}
	return body
}

func buildPrompt(title, body string) string {
	return fmt.Sprintf(promptTemplate, title, sanitizeBody(body))
}

var labelPatterns = []struct {
	name  string
	regex *regexp.Regexp
}{
	{"verdict", regexp.MustCompile(`(?i)^VERDICT\s*: ?`)},
	{"title", regexp.MustCompile(`(?i)^TITLE\s*: ?`)},
	{"summary", regexp.MustCompile(`(?i)^SUMMARY\s*: ?`)},
}

// parseVerdict reads the labeled response. Models drift from templates, so
// labels are case-insensitive and continuation lines attach to the last
// seen section. A response without a recognizable VERDICT is an error; the
// filter treats that like any other classifier failure.
func parseVerdict(response string) (*Verdict, error) {
	var verdictRaw string
	var titleBuilder, summaryBuilder strings.Builder

	appendText := func(section, text string) {
		if text == "" {
			return
		}
		switch section {
		case "verdict":
			if verdictRaw == "" {
				verdictRaw = text
			}
		case "title":
			if titleBuilder.Len() > 0 {
				titleBuilder.WriteString(" ")
			}
			titleBuilder.WriteString(text)
		case "summary":
			if summaryBuilder.Len() > 0 {
				summaryBuilder.WriteString(" ")
			}
			summaryBuilder.WriteString(text)
		}
	}

	current := ""
	for _, raw := range strings.Split(response, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		matchedLabel := false
		for _, lp := range labelPatterns {
			if lp.regex.MatchString(line) {
				content := lp.regex.ReplaceAllString(line, "")
				current = lp.name
				appendText(current, strings.TrimSpace(content))
				matchedLabel = true
				break
			}
		}
		if matchedLabel {
			continue
		}

		if current != "" {
			appendText(current, line)
		}
	}

	verdictRaw = strings.ToUpper(strings.TrimSpace(verdictRaw))
	switch {
	case strings.HasPrefix(verdictRaw, "POST"), strings.HasPrefix(verdictRaw, "YES"):
		return &Verdict{
			Admissible: true,
			Title:      strings.TrimSpace(titleBuilder.String()),
			Summary:    strings.TrimSpace(summaryBuilder.String()),
		}, nil
	case strings.HasPrefix(verdictRaw, "SKIP"), strings.HasPrefix(verdictRaw, "NO"):
		return &Verdict{Admissible: false}, nil
	}

	return nil, fmt.Errorf("could not parse classifier response: no verdict in %q", verdictRaw)
}
