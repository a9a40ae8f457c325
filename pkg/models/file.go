package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	FileTypeEPUB  = "epub"
	FileTypeKEPUB = "kepub"
)

type File struct {
	bun.BaseModel `bun:"table:files,alias:f"`

	ID            int       `bun:",pk,nullzero" json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	BookID        int       `bun:",nullzero" json:"book_id"`
	Book          *Book     `bun:"rel:belongs-to" json:"book,omitempty"`
	FileType      string    `bun:",nullzero" json:"file_type"`
	Filename      string    `bun:",nullzero" json:"filename"`
	FilesizeBytes int64     `bun:",nullzero" json:"filesize_bytes"`
}
