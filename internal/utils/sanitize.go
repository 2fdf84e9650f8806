package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicy = bluemonday.StrictPolicy()
	newlines     = strings.NewReplacer("\r\n", "\n", "\r", "\n")
)

// HasMarkup reports whether s holds tags or comments the strict policy would
// remove. Text is compared unescaped, so entities and a lone "<" are plain
// text; without a ">" no tag can be complete.
func HasMarkup(s string) bool {
	if !strings.Contains(s, ">") {
		return false
	}
	text := newlines.Replace(s)
	return html.UnescapeString(strictPolicy.Sanitize(text)) != html.UnescapeString(text)
}
