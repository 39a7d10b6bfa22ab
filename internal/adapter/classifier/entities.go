package classifier

import (
	"regexp"
	"slices"
	"strings"
)

// Entity kinds produced by ExtractEntities.
const (
	EntityEmail = "email"
	EntityMoney = "money"
	EntityDate  = "date"
	EntityURL   = "url"
)

const maxEntitiesPerKind = 20

var entityPatterns = []struct {
	kind string
	re   *regexp.Regexp
}{
	{EntityURL, regexp.MustCompile(`https?://[^\s<>"')\]]+`)},
	{EntityEmail, regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
	{EntityMoney, regexp.MustCompile(`(?:[$€£]\s?\d[\d,]*(?:\.\d{1,2})?|\b\d[\d,]*(?:\.\d{1,2})?\s?(?:USD|EUR|GBP)\b)`)},
	{EntityDate, regexp.MustCompile(`\b(?:\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4}|(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)[a-z]*\.? \d{1,2},? \d{4})\b`)},
}

// ExtractEntities finds emails, money amounts, dates and URLs in text.
// Values are deduplicated and kept in order of first appearance; kinds with
// no matches are omitted.
func ExtractEntities(text string) map[string][]string {
	out := make(map[string][]string)
	for _, p := range entityPatterns {
		var found []string
		for _, m := range p.re.FindAllString(text, -1) {
			m = strings.TrimRight(m, ".,;:")
			if m == "" || slices.Contains(found, m) {
				continue
			}
			found = append(found, m)
			if len(found) == maxEntitiesPerKind {
				break
			}
		}
		if len(found) > 0 {
			out[p.kind] = found
		}
	}
	return out
}
