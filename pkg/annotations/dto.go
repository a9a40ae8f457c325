package annotations

// SyncRequest is the envelope a device PATCHes to the annotations endpoint.
// Deletions and updates can arrive in the same batch; deletions are applied
// first.
type SyncRequest struct {
	UpdatedAnnotations   []AnnotationPayload `json:"updatedAnnotations" validate:"dive"`
	DeletedAnnotationIDs []string            `json:"deletedAnnotationIds"`
}

// AnnotationPayload is the device wire shape of a single annotation, used in
// both directions: incoming PATCH items and outgoing GET listings.
type AnnotationPayload struct {
	ID              string   `json:"id"`
	Type            string   `json:"type"`
	HighlightedText string   `json:"highlightedText"`
	NoteText        string   `json:"noteText"`
	HighlightColor  string   `json:"highlightColor" validate:"omitempty,color"`
	Location        Location `json:"location"`
}

// Location wraps the span position of an annotation inside the book.
type Location struct {
	Span Span `json:"span"`
}

// Span is a device position: which chapter document, how far into it, and the
// device's internal path to the anchor node.
type Span struct {
	ChapterFilename string  `json:"chapterFilename"`
	ChapterProgress float64 `json:"chapterProgress"`
	StartPath       string  `json:"startPath"`
}

// ListResponse is the paginated GET response for a book's annotations.
type ListResponse struct {
	Annotations         []AnnotationPayload `json:"annotations"`
	NextPageOffsetToken *string             `json:"nextPageOffsetToken"`
}

// ListAnnotationsPayload binds the pagination query params of the GET
// endpoint.
type ListAnnotationsPayload struct {
	Limit  int `query:"limit" default:"100" validate:"min=1,max=500"`
	Offset int `query:"offset" validate:"min=0"`
}

// ContentChange is one entry of a checkforchanges request body. Entries whose
// ContentId matches a local book are answered locally; the rest are relayed
// upstream.
type ContentChange struct {
	ContentID string `json:"ContentId"`
	ETag      string `json:"etag"`
}

// Outcome classifies what the reconciler did with one batch item.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeDeleted Outcome = "deleted"
	OutcomeFailed  Outcome = "failed"
)

// SkipReason says why a batch item was skipped.
type SkipReason string

const (
	// SkipReasonNoContent marks items with neither highlighted text nor note
	// text, which carry nothing worth storing.
	SkipReasonNoContent SkipReason = "no_content"
	// SkipReasonNoID marks items without an external annotation ID, which
	// can't be reconciled.
	SkipReasonNoID SkipReason = "no_id"
	// SkipReasonUnchanged marks items whose content matches what was already
	// synced, so the re-sync writes nothing.
	SkipReasonUnchanged SkipReason = "unchanged"
)

// ItemResult is the per-item outcome of a reconcile batch.
type ItemResult struct {
	AnnotationID string
	Outcome      Outcome
	SkipReason   SkipReason
	Err          error
}

// SyncResult collects the outcomes of one reconcile batch, deletions first.
type SyncResult struct {
	Deleted []ItemResult
	Items   []ItemResult
}

// Counts returns the number of items per outcome across the whole batch.
func (r *SyncResult) Counts() map[Outcome]int {
	counts := map[Outcome]int{}
	for _, item := range r.Deleted {
		counts[item.Outcome]++
	}
	for _, item := range r.Items {
		counts[item.Outcome]++
	}
	return counts
}
