// Package textnorm cleans markup out of guide content before it is embedded
// or indexed.
package textnorm

import (
	"regexp"
	"strings"
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)

	// The named entities that actually occur in guide property content.
	entityReplacer = strings.NewReplacer(
		"&nbsp;", " ",
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
		"&quot;", `"`,
	)
)

// Clean decodes the known named entities, strips markup tags, collapses runs
// of whitespace to a single space and trims the result. Decode and strip run
// to a fixpoint: double-escaped content (`&amp;lt;b&amp;gt;`) decodes to
// markup that a later pass must still remove, and Clean(Clean(x)) must equal
// Clean(x) for any input. Empty input yields an empty string.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	for {
		cleaned := entityReplacer.Replace(text)
		cleaned = tagPattern.ReplaceAllString(cleaned, " ")
		if cleaned == text {
			break
		}
		text = cleaned
	}
	text = whitespacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
