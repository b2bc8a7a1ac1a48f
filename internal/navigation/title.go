package navigation

import (
	"strings"
	"unicode"
)

// titleCase upper-cases the first cased letter after any uncased character and
// lower-cases the rest, so "http2_client" style stems become "Http2 Client".
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevCased := false
	for _, r := range s {
		switch {
		case isCased(r) && !prevCased:
			b.WriteRune(unicode.ToTitle(r))
		case isCased(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
		prevCased = isCased(r)
	}
	return b.String()
}

func isCased(r rune) bool {
	return unicode.IsUpper(r) || unicode.IsLower(r) || unicode.IsTitle(r)
}
