package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	AnnotationTypeHighlight = "highlight"
	AnnotationTypeNote      = "note"
)

// Annotation is one highlight or note as last synced from a device.
// (user_id, annotation_id) is unique; annotation_id is assigned by the
// device.
type Annotation struct {
	bun.BaseModel `bun:"table:annotations,alias:an"`

	ID              int       `bun:",pk,nullzero" json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	LastModified    time.Time `json:"last_modified"`
	UserID          int       `bun:",nullzero" json:"user_id"`
	BookID          int       `bun:",nullzero" json:"book_id"`
	AnnotationID    string    `bun:",nullzero" json:"annotation_id"`
	AnnotationType  string    `bun:",nullzero" json:"annotation_type"`
	HighlightedText string    `json:"highlighted_text"`
	NoteText        string    `json:"note_text"`
	HighlightColor  string    `json:"highlight_color"`
	LocationValue   string    `json:"location_value"`
	LocationType    string    `json:"location_type"`
	LocationSource  string    `json:"location_source"`
	ChapterFilename string    `json:"chapter_filename"`
	ChapterProgress float64   `json:"chapter_progress"`
	// ProgressPercent is the whole-book position computed from the book's
	// spine; nil when the book's archive couldn't be resolved.
	ProgressPercent *float64 `json:"progress_percent"`
}

// AnnotationSync records that an annotation ID has been seen for a user.
// It is bookkeeping independent of the annotation content and is what the
// reconciler consults to skip unchanged re-syncs.
type AnnotationSync struct {
	bun.BaseModel `bun:"table:annotation_syncs,alias:ans"`

	ID           int       `bun:",pk,nullzero" json:"id"`
	UserID       int       `bun:",nullzero" json:"user_id"`
	AnnotationID string    `bun:",nullzero" json:"annotation_id"`
	BookID       int       `bun:",nullzero" json:"book_id"`
	LastSynced   time.Time `json:"last_synced"`
}
