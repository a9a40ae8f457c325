// Package progress converts a device position (chapter file plus progress
// within that chapter) into a percentage of the whole book, weighted by how
// much text each spine document actually contains.
package progress

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/shelfmark/shelfmark/pkg/epub"
)

type spineEntry struct {
	path   string
	length int
}

// Calculator computes book-level progress percentages for one EPUB file. The
// text length index is built on first use and reused for every position in
// the same book, so a sync batch only pays the extraction cost once.
type Calculator struct {
	filePath string

	once    sync.Once
	entries []spineEntry
	total   int
	err     error
}

// NewCalculator returns a Calculator for the EPUB at filePath. The archive is
// not touched until the first Calculate call.
func NewCalculator(filePath string) *Calculator {
	return &Calculator{filePath: filePath}
}

// Calculate returns the percentage of the book that lies before the given
// position, or nil when it can't be determined: the archive is unresolvable,
// the chapter doesn't match any spine document, or the book has no text. The
// result is not clamped; out-of-range chapterProgress values pass through.
func (c *Calculator) Calculate(chapterFilename string, chapterProgress float64) *float64 {
	c.once.Do(c.build)
	if c.err != nil || c.total == 0 {
		return nil
	}

	idx := c.match(chapterFilename)
	if idx < 0 {
		return nil
	}

	before := 0
	for i := 0; i < idx; i++ {
		before += c.entries[i].length
	}

	pct := (float64(before) + float64(c.entries[idx].length)*chapterProgress) / float64(c.total) * 100
	return &pct
}

// Err reports the permanent build error, if any. It only returns a meaningful
// value after the first Calculate call.
func (c *Calculator) Err() error {
	return c.err
}

func (c *Calculator) build() {
	book, err := epub.Open(c.filePath)
	if err != nil {
		c.err = err
		return
	}
	defer book.Close()

	spine := book.Spine()
	c.entries = make([]spineEntry, len(spine))
	for i, path := range spine {
		length := 0
		// A single unreadable chapter shouldn't poison the whole index; it
		// just contributes no text.
		if text, _, err := book.ChapterText(path); err == nil {
			length = utf8.RuneCountInString(text)
		}
		c.entries[i] = spineEntry{path: path, length: length}
		c.total += length
	}
}

// match finds the spine entry for a chapter filename as reported by a device.
// Devices disagree on how much of the archive path they send, so matching
// runs in passes from most to least precise: exact path, then path suffix,
// then substring. Within a pass the first spine document in reading order
// wins.
func (c *Calculator) match(chapterFilename string) int {
	name := strings.ReplaceAll(chapterFilename, "\\", "/")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return -1
	}

	for i, e := range c.entries {
		if e.path == name {
			return i
		}
	}
	for i, e := range c.entries {
		if strings.HasSuffix(e.path, "/"+name) {
			return i
		}
	}
	for i, e := range c.entries {
		if strings.Contains(e.path, name) {
			return i
		}
	}
	return -1
}
