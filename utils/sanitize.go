package utils

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var sanitizer = bluemonday.StrictPolicy()

// CleanText trims user supplied text and strips any markup. The result is
// plain text: entities produced by the policy are decoded again.
func CleanText(input string) string {
	return strings.TrimSpace(html.UnescapeString(sanitizer.Sanitize(strings.TrimSpace(input))))
}
