package epub

import (
	"testing"

	"github.com/shelfmark/shelfmark/internal/testgen"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenResolvesSpineInOrder(t *testing.T) {
	t.Parallel()

	dir := testgen.TempDir(t, "epub-test-*")
	path := testgen.GenerateEPUB(t, dir, "book.epub", testgen.EPUBOptions{
		Title: "Test Book",
		Chapters: []testgen.Chapter{
			{Filename: "chapter1.xhtml", Body: "<p>One</p>"},
			{Filename: "chapter2.xhtml", Body: "<p>Two</p>"},
			{Filename: "text/chapter3.xhtml", Body: "<p>Three</p>"},
		},
	})

	book, err := Open(path)
	require.NoError(t, err)
	defer book.Close()

	assert.Equal(t, []string{
		"OEBPS/chapter1.xhtml",
		"OEBPS/chapter2.xhtml",
		"OEBPS/text/chapter3.xhtml",
	}, book.Spine())
}

func TestOpenDropsDanglingSpineRefs(t *testing.T) {
	t.Parallel()

	dir := testgen.TempDir(t, "epub-test-*")
	path := testgen.GenerateEPUB(t, dir, "book.epub", testgen.EPUBOptions{
		Chapters: []testgen.Chapter{
			{Filename: "chapter1.xhtml", Body: "<p>One</p>"},
		},
		DanglingIdrefs: []string{"missing-item", "another-missing"},
	})

	book, err := Open(path)
	require.NoError(t, err)
	defer book.Close()

	assert.Equal(t, []string{"OEBPS/chapter1.xhtml"}, book.Spine())
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts testgen.EPUBOptions
	}{
		{
			name: "missing container.xml",
			opts: testgen.EPUBOptions{
				OmitContainer: true,
				Chapters:      []testgen.Chapter{{Filename: "chapter1.xhtml", Body: "<p>One</p>"}},
			},
		},
		{
			name: "missing package document",
			opts: testgen.EPUBOptions{
				OmitOPF:  true,
				Chapters: []testgen.Chapter{{Filename: "chapter1.xhtml", Body: "<p>One</p>"}},
			},
		},
		{
			name: "empty spine",
			opts: testgen.EPUBOptions{
				EmptySpine: true,
				Chapters:   []testgen.Chapter{{Filename: "chapter1.xhtml", Body: "<p>One</p>"}},
			},
		},
		{
			name: "spine of only dangling refs",
			opts: testgen.EPUBOptions{
				EmptySpine:     false,
				DanglingIdrefs: []string{"missing"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := testgen.TempDir(t, "epub-test-*")
			path := testgen.GenerateEPUB(t, dir, "book.epub", tt.opts)

			_, err := Open(path)
			assert.Error(t, err)
		})
	}
}

func TestOpenUnreadableArchive(t *testing.T) {
	t.Parallel()

	dir := testgen.TempDir(t, "epub-test-*")
	path := testgen.WriteFile(t, dir, "broken.epub", []byte("not a zip archive"))

	_, err := Open(path)
	assert.Error(t, err)
}

func TestChapterTextMissingFile(t *testing.T) {
	t.Parallel()

	dir := testgen.TempDir(t, "epub-test-*")
	path := testgen.GenerateEPUB(t, dir, "book.epub", testgen.EPUBOptions{
		Chapters: []testgen.Chapter{
			{Filename: "chapter1.xhtml", Body: "<p>One</p>"},
			{Filename: "chapter2.xhtml", OmitFile: true},
		},
	})

	book, err := Open(path)
	require.NoError(t, err)
	defer book.Close()

	// The missing chapter is still in the spine; reading it fails.
	require.Len(t, book.Spine(), 2)
	_, _, err = book.ChapterText("OEBPS/chapter2.xhtml")
	assert.Error(t, err)
}

func TestParseContainerUsesFirstRootfile(t *testing.T) {
	t.Parallel()

	containerXML := `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
    <rootfile full-path="alt/other.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

	opfPath, err := parseContainer([]byte(containerXML))
	require.NoError(t, err)
	assert.Equal(t, "OEBPS/content.opf", opfPath)
}

func TestResolveHref(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		baseDir  string
		href     string
		expected string
	}{
		{"opf at root", ".", "chapter1.xhtml", "chapter1.xhtml"},
		{"opf in subdir", "OEBPS", "chapter1.xhtml", "OEBPS/chapter1.xhtml"},
		{"nested href", "OEBPS", "text/part0001.html", "OEBPS/text/part0001.html"},
		{"parent traversal", "OEBPS", "../shared/notes.xhtml", "shared/notes.xhtml"},
		{"url escaped", "OEBPS", "chapter%201.xhtml", "OEBPS/chapter 1.xhtml"},
		{"redundant dot", "OEBPS", "./chapter1.xhtml", "OEBPS/chapter1.xhtml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, resolveHref(tt.baseDir, tt.href))
		})
	}
}
