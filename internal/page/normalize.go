package page

import (
	"strings"
	"unicode"
)

var entityArtifacts = strings.NewReplacer(
	"&nbsp;", "",
	"&#160;", "",
	"&#xa0;", "",
	"\u00a0", "",
)

// Normalize strips the first occurrence of a label prefix such as
// "SKU:" or "Order #", drops non-breaking space artifacts, and removes
// all whitespace.
func Normalize(text, prefix string) string {
	if prefix != "" {
		text = strings.Replace(text, prefix, "", 1)
	}
	text = entityArtifacts.Replace(text)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
}
