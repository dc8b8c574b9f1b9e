package scoring

import (
	"regexp"
	"strings"

	"github.com/spigell/job-radar/internal/utils"
)

// keywords matches whole words or phrases, case-insensitively.
type keywords struct {
	terms    []string
	patterns []*regexp.Regexp
}

func newKeywords(terms []string) keywords {
	terms = utils.Dedupe(terms)
	k := keywords{terms: terms, patterns: make([]*regexp.Regexp, 0, len(terms))}
	for _, term := range terms {
		parts := strings.Fields(term)
		for i, p := range parts {
			parts[i] = regexp.QuoteMeta(p)
		}
		expr := `(?i)(?:^|[^\pL\pN])` + strings.Join(parts, `[\s\-]+`) + `(?:$|[^\pL\pN])`
		k.patterns = append(k.patterns, regexp.MustCompile(expr))
	}
	return k
}

// Match returns the matched terms in configuration order.
func (k keywords) Match(text string) []string {
	var matched []string
	for i, re := range k.patterns {
		if re.MatchString(text) {
			matched = append(matched, k.terms[i])
		}
	}
	return matched
}

func (k keywords) Empty() bool { return len(k.terms) == 0 }
