package epub

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple document",
			input:    `<html><head></head><body><p>Hello world</p></body></html>`,
			expected: "Hello world",
		},
		{
			name:     "nested inline markup",
			input:    `<html><body><p>It was a <em>dark</em> and <strong>stormy</strong> night.</p></body></html>`,
			expected: "It was a dark and stormy night.",
		},
		{
			name:     "script contents skipped",
			input:    `<html><body><p>Before</p><script>var hidden = "text";</script><p>After</p></body></html>`,
			expected: "Before After",
		},
		{
			name:     "style contents skipped",
			input:    `<html><head><style>p { margin: 0 }</style></head><body><p>Visible</p></body></html>`,
			expected: "Visible",
		},
		{
			name:     "whitespace collapsed",
			input:    "<html><body><p>Spaced\n\n   out</p></body></html>",
			expected: "Spaced out",
		},
		{
			name:     "entities decoded by parser",
			input:    `<html><body><p>Tom &amp; Jerry</p></body></html>`,
			expected: "Tom & Jerry",
		},
		{
			name:     "empty body",
			input:    `<html><body></body></html>`,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			text, method := ExtractText([]byte(tt.input))
			assert.Equal(t, tt.expected, text)
			assert.Equal(t, ExtractionStrict, method)
		})
	}
}

func TestExtractTextToleratesMalformedMarkup(t *testing.T) {
	t.Parallel()

	// The HTML5 parser recovers from unclosed tags rather than erroring, so
	// sloppy chapters still extract strictly.
	text, method := ExtractText([]byte("<html><body><p>Text with <em>unclosed emphasis"))
	assert.Equal(t, "Text with unclosed emphasis", text)
	assert.Equal(t, ExtractionStrict, method)
}

func TestExtractTextLengthIsStable(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("a", 250)
	input := `<html><body><p>` + body + `</p></body></html>`

	text, _ := ExtractText([]byte(input))
	assert.Len(t, text, 250)
}
