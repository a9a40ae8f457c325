package htmlutil

import (
	"html"
	"regexp"
	"strings"
)

// scriptStylePattern matches script and style elements along with their
// contents, which carry no readable text.
var scriptStylePattern = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</(script|style)\s*>`)

// tagPattern matches HTML tags including self-closing tags.
var tagPattern = regexp.MustCompile(`<[^>]*>`)

// whitespacePattern matches runs of whitespace, including newlines.
var whitespacePattern = regexp.MustCompile(`\s+`)

// StripTags removes markup from a chapter document and returns its readable
// text with whitespace collapsed to single spaces. It is a best-effort
// tolerant path for documents that fail strict parsing, so it never errors;
// malformed markup just degrades the output.
func StripTags(markup string) string {
	if markup == "" {
		return ""
	}

	// Drop script and style contents before stripping tags, since their text
	// would otherwise leak into the output.
	result := scriptStylePattern.ReplaceAllString(markup, " ")

	// Replace tags with spaces so that adjacent text runs don't fuse into a
	// single word ("<p>one</p><p>two</p>" should not become "onetwo").
	result = tagPattern.ReplaceAllString(result, " ")

	result = html.UnescapeString(result)
	result = whitespacePattern.ReplaceAllString(result, " ")

	return strings.TrimSpace(result)
}
