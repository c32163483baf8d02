package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// searchNormalizer strips combining marks so accented and plain spellings
// match the same keyword index entries.
var searchNormalizer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeSearchTerm lowercases, de-accents, and collapses whitespace in a
// free-text query.
func NormalizeSearchTerm(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	if folded, _, err := transform.String(searchNormalizer, value); err == nil {
		value = folded
	}
	return strings.Join(strings.Fields(value), " ")
}

// Slugify converts a display name into a URL-safe slug.
func Slugify(value string) string {
	value = NormalizeSearchTerm(value)
	if value == "" {
		return ""
	}
	var b strings.Builder
	lastDash := true
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
