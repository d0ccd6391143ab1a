package filter

import (
	"log"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rules is the YAML rules file structure.
// deny_keywords:
//   - question
//   - referral
type Rules struct {
	DenyKeywords []string `yaml:"deny_keywords"`
}

// defaultDenyKeywords is a seed, not a fixed rule set. Operators override
// it through the rules file. Markers for complaints, help requests, broken
// coupon reports and referral spam.
var defaultDenyKeywords = []string{
	"question",
	"doubt",
	"need help",
	"help me",
	"how to",
	"rant",
	"complaint",
	"scam",
	"fraud",
	"not working",
	"doesn't work",
	"stopped working",
	"expired",
	"referral",
	"refer and earn",
	"invite code",
}

// LoadRules reads the deny-list from a YAML file. A missing or unreadable
// file falls back to the built-in seed list.
func LoadRules(path string) Rules {
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("⚠️ Can't open rules file %s, using defaults: %v", path, err)
		}
		return Rules{DenyKeywords: defaultDenyKeywords}
	}
	defer f.Close()

	var rules Rules
	if err := yaml.NewDecoder(f).Decode(&rules); err != nil {
		log.Printf("⚠️ Can't parse rules file %s, using defaults: %v", path, err)
		return Rules{DenyKeywords: defaultDenyKeywords}
	}

	if len(rules.DenyKeywords) == 0 {
		rules.DenyKeywords = defaultDenyKeywords
	}
	return rules
}

// containsAny distinguishes phrases and short words (so "ai" doesn't match
// "said"): phrases match as substrings, tokens of three or fewer letters
// match on word boundaries, longer tokens as plain substrings.
func containsAny(text string, keywords []string) bool {
	text = strings.ToLower(text)

	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}

		if strings.Contains(k, " ") {
			if strings.Contains(text, k) {
				return true
			}
			continue
		}

		if len(k) <= 3 {
			re := regexp.MustCompile(`\b` + regexp.QuoteMeta(k) + `\b`)
			if re.MatchString(text) {
				return true
			}
			continue
		}

		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
