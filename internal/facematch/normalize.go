package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizePersonName normalizes a name for comparison
// (lowercase, no diacritics, spaces for dashes, single spaces).
func NormalizePersonName(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}

// NameMatches reports whether every word of query appears among the words of
// the member's first and last name, ignoring case and diacritics.
func NameMatches(query, firstName, lastName string) bool {
	q := strings.Fields(NormalizePersonName(query))
	if len(q) == 0 {
		return false
	}
	words := make(map[string]struct{})
	for _, w := range strings.Fields(NormalizePersonName(firstName + " " + lastName)) {
		words[w] = struct{}{}
	}
	for _, w := range q {
		if _, ok := words[w]; !ok {
			return false
		}
	}
	return true
}
