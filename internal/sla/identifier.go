package sla

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ligoj/plugin-bt/internal/domain"
)

// stripAccents decomposes then removes combining marks, so "Créé" and "Cree"
// normalize to the same text.
var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeText returns the case- and diacritic-insensitive form of a display
// name.
func NormalizeText(s string) string {
	out, _, err := transform.String(stripAccents, s)
	if err != nil {
		out = s
	}
	return strings.ToUpper(out)
}

// AsList splits comma-separated display text into trimmed items, dropping
// blanks. Never returns nil.
func AsList(items string) []string {
	out := []string{}
	for _, p := range strings.Split(items, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Normalize maps the given display names to their normalized form and sorts
// them.
func Normalize(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, NormalizeText(v))
	}
	sort.Strings(out)
	return out
}

// ToIdentifiers resolves comma-separated display text to the identifiers
// whose mapped name matches after normalization. Input order is preserved and
// duplicates are dropped; ids matching one text are emitted in ascending
// order.
func ToIdentifiers(texts string, mapping map[int]string) []int {
	var out []int
	seen := map[int]struct{}{}
	for _, text := range AsList(texts) {
		want := NormalizeText(text)
		var matched []int
		for id, name := range mapping {
			if NormalizeText(name) == want {
				matched = append(matched, id)
			}
		}
		sort.Ints(matched)
		for _, id := range matched {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out
}

// ToIDSet resolves comma-separated display text to an identifier set.
func ToIDSet(texts string, mapping map[int]string) domain.IDSet {
	return domain.NewIDSet(ToIdentifiers(texts, mapping)...)
}
