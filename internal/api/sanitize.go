package api

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var textPolicy = bluemonday.StrictPolicy()

// sanitizable request bodies strip markup from their free-text fields
// before validation.
type sanitizable interface {
	Sanitize(clean func(string) string)
}

// cleanText drops every tag from user text. StrictPolicy escapes the text it
// keeps, so the result is unescaped again before it is stored.
func cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}
