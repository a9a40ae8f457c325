package epub

import (
	"bytes"
	"strings"

	"github.com/shelfmark/shelfmark/pkg/htmlutil"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ExtractionMethod records how a chapter's text was obtained.
type ExtractionMethod string

const (
	// ExtractionStrict means the document parsed cleanly and text was
	// collected from its text nodes.
	ExtractionStrict ExtractionMethod = "strict"
	// ExtractionFallback means the document failed strict parsing and tags
	// were stripped with a tolerant regexp pass instead.
	ExtractionFallback ExtractionMethod = "fallback"
)

// ExtractText returns the readable text of a chapter document with whitespace
// collapsed to single spaces. Parsing is attempted strictly first; documents
// that can't be parsed fall back to stripping tags, so this never fails
// outright.
func ExtractText(data []byte) (string, ExtractionMethod) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return htmlutil.StripTags(string(data)), ExtractionFallback
	}

	var sb strings.Builder
	collectText(doc, &sb)

	return strings.Join(strings.Fields(sb.String()), " "), ExtractionStrict
}

// collectText walks the parsed document appending text node contents. Script
// and style subtrees are skipped since their contents aren't readable text.
func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style:
			return
		}
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}
