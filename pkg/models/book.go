package models

import (
	"path/filepath"
	"time"

	"github.com/uptrace/bun"
)

type Book struct {
	bun.BaseModel `bun:"table:books,alias:b"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// UUID is the stable external identifier the device uses as the
	// entitlement ID.
	UUID     string  `bun:",nullzero" json:"uuid"`
	Filepath string  `bun:",nullzero" json:"filepath"`
	Title    string  `bun:",nullzero" json:"title"`
	Files    []*File `bun:"rel:has-many,join:id=book_id" json:"files"`
}

// FileForFormat returns the first stored file of the given format kind, or
// nil if the book has none.
func (b *Book) FileForFormat(fileType string) *File {
	for _, f := range b.Files {
		if f.FileType == fileType {
			return f
		}
	}
	return nil
}

// PreferredFile returns the file device positions should be resolved
// against. KEPUB is preferred because its spine matches what the device
// paginates; plain EPUB is the fallback.
func (b *Book) PreferredFile() *File {
	if f := b.FileForFormat(FileTypeKEPUB); f != nil {
		return f
	}
	return b.FileForFormat(FileTypeEPUB)
}

// SourcePath resolves a file's on-disk location under the book's root
// directory.
func (b *Book) SourcePath(f *File) string {
	return filepath.Join(b.Filepath, f.Filename)
}
