package textutil

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeName folds full-width characters, lowercases and drops all whitespace, so
// "Data  Structures", "ＤａｔａStructures" and "datastructures" compare equal.
func NormalizeName(name string) string {
	name = width.Fold.String(name)
	return whitespaceRegex.ReplaceAllString(strings.ToLower(name), "")
}

// MatchName reports whether any keyword is contained in name, comparing normalized
// forms. Blank keywords never match.
func MatchName(name string, keywords []string) bool {
	name = NormalizeName(name)
	for _, k := range keywords {
		if k = NormalizeName(k); k != "" && strings.Contains(name, k) {
			return true
		}
	}
	return false
}
