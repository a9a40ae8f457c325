package annotations

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shelfmark/shelfmark/pkg/models"
	"github.com/shelfmark/shelfmark/pkg/progress"
	"github.com/uptrace/bun"
)

const locationTypeSpan = "span"

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// ReconcileBatch applies one device sync batch for a user and book: the
// deletion pass first, then each updated annotation on its own. A failing
// item never aborts the batch; it is reported in the result and the rest
// proceed.
func (svc *Service) ReconcileBatch(ctx context.Context, user *models.User, book *models.Book, req *SyncRequest) (*SyncResult, error) {
	log := logger.FromContext(ctx)
	result := &SyncResult{}

	result.Deleted = svc.applyDeletions(ctx, user, req.DeletedAnnotationIDs)

	if len(req.UpdatedAnnotations) == 0 {
		return result, nil
	}

	existingSyncs, err := svc.preloadSyncRecords(ctx, user, req.UpdatedAnnotations)
	if err != nil {
		return nil, err
	}

	// One calculator is shared across the batch so the book's text index is
	// only built once. Positions resolve against the kepub when the book has
	// one, since that is the file the device paginated.
	var calc *progress.Calculator
	locationSource := ""
	if file := book.PreferredFile(); file != nil {
		calc = progress.NewCalculator(book.SourcePath(file))
		locationSource = file.FileType
	}

	for _, item := range req.UpdatedAnnotations {
		res := svc.reconcileItem(ctx, user, book, item, existingSyncs[item.ID], calc, locationSource)
		if res.Outcome == OutcomeFailed {
			log.Err(res.Err).Warn("annotation reconcile failed", logger.Data{
				"annotation_id": res.AnnotationID,
				"book_id":       book.ID,
			})
		}
		result.Items = append(result.Items, res)
	}

	return result, nil
}

// applyDeletions removes the annotation and its sync record for each deleted
// ID. Deletes are scoped to the user and are idempotent: deleting an ID that
// was never synced, or deleting it twice, is still reported as deleted.
func (svc *Service) applyDeletions(ctx context.Context, user *models.User, ids []string) []ItemResult {
	log := logger.FromContext(ctx)
	results := make([]ItemResult, 0, len(ids))

	for _, id := range ids {
		err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
			_, err := tx.NewDelete().
				Model((*models.Annotation)(nil)).
				Where("annotation_id = ?", id).
				Where("user_id = ?", user.ID).
				Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}

			_, err = tx.NewDelete().
				Model((*models.AnnotationSync)(nil)).
				Where("annotation_id = ?", id).
				Where("user_id = ?", user.ID).
				Exec(ctx)
			return errors.WithStack(err)
		})
		if err != nil {
			log.Err(err).Warn("annotation delete failed", logger.Data{"annotation_id": id})
			results = append(results, ItemResult{AnnotationID: id, Outcome: OutcomeFailed, Err: err})
			continue
		}
		results = append(results, ItemResult{AnnotationID: id, Outcome: OutcomeDeleted})
	}

	return results
}

// preloadSyncRecords loads the sync records for every ID in the batch with a
// single query, keyed by annotation ID.
func (svc *Service) preloadSyncRecords(ctx context.Context, user *models.User, items []AnnotationPayload) (map[string]*models.AnnotationSync, error) {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.ID != "" {
			ids = append(ids, item.ID)
		}
	}
	if len(ids) == 0 {
		return map[string]*models.AnnotationSync{}, nil
	}

	syncs := []*models.AnnotationSync{}
	err := svc.db.NewSelect().
		Model(&syncs).
		Where("ans.annotation_id IN (?)", bun.In(ids)).
		Where("ans.user_id = ?", user.ID).
		Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	byID := make(map[string]*models.AnnotationSync, len(syncs))
	for _, s := range syncs {
		byID[s.AnnotationID] = s
	}
	return byID, nil
}

func (svc *Service) reconcileItem(
	ctx context.Context,
	user *models.User,
	book *models.Book,
	item AnnotationPayload,
	syncRecord *models.AnnotationSync,
	calc *progress.Calculator,
	locationSource string,
) ItemResult {
	if item.HighlightedText == "" && item.NoteText == "" {
		return ItemResult{AnnotationID: item.ID, Outcome: OutcomeSkipped, SkipReason: SkipReasonNoContent}
	}
	if item.ID == "" {
		return ItemResult{Outcome: OutcomeSkipped, SkipReason: SkipReasonNoID}
	}

	existing := new(models.Annotation)
	err := svc.db.NewSelect().
		Model(existing).
		Where("an.annotation_id = ?", item.ID).
		Where("an.user_id = ?", user.ID).
		Scan(ctx)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return ItemResult{AnnotationID: item.ID, Outcome: OutcomeFailed, Err: errors.WithStack(err)}
		}
		existing = nil
	}

	// The unchanged check requires a sync record: an annotation row without
	// one means the previous sync didn't complete its bookkeeping, so the
	// item is written again even when the content matches.
	if existing != nil && syncRecord != nil && contentUnchanged(existing, item) {
		return ItemResult{AnnotationID: item.ID, Outcome: OutcomeSkipped, SkipReason: SkipReasonUnchanged}
	}

	var progressPercent *float64
	if calc != nil {
		progressPercent = calc.Calculate(item.Location.Span.ChapterFilename, item.Location.Span.ChapterProgress)
	}

	annotationType := item.Type
	if annotationType == "" {
		annotationType = models.AnnotationTypeHighlight
	}

	now := time.Now()
	outcome := OutcomeUpdated
	if existing == nil {
		outcome = OutcomeCreated
	}

	err = svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if existing != nil {
			existing.AnnotationType = annotationType
			existing.HighlightedText = item.HighlightedText
			existing.NoteText = item.NoteText
			existing.HighlightColor = item.HighlightColor
			existing.LocationValue = item.Location.Span.StartPath
			existing.LocationType = locationTypeSpan
			existing.LocationSource = locationSource
			existing.ChapterFilename = item.Location.Span.ChapterFilename
			existing.ChapterProgress = item.Location.Span.ChapterProgress
			existing.ProgressPercent = progressPercent
			existing.LastModified = now

			_, err := tx.NewUpdate().
				Model(existing).
				Column(
					"annotation_type", "highlighted_text", "note_text",
					"highlight_color", "location_value", "location_type",
					"location_source", "chapter_filename", "chapter_progress",
					"progress_percent", "last_modified",
				).
				WherePK().
				Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		} else {
			annotation := &models.Annotation{
				CreatedAt:       now,
				LastModified:    now,
				UserID:          user.ID,
				BookID:          book.ID,
				AnnotationID:    item.ID,
				AnnotationType:  annotationType,
				HighlightedText: item.HighlightedText,
				NoteText:        item.NoteText,
				HighlightColor:  item.HighlightColor,
				LocationValue:   item.Location.Span.StartPath,
				LocationType:    locationTypeSpan,
				LocationSource:  locationSource,
				ChapterFilename: item.Location.Span.ChapterFilename,
				ChapterProgress: item.Location.Span.ChapterProgress,
				ProgressPercent: progressPercent,
			}
			_, err := tx.NewInsert().Model(annotation).Returning("*").Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}

		if syncRecord != nil {
			syncRecord.LastSynced = now
			_, err := tx.NewUpdate().
				Model(syncRecord).
				Column("last_synced").
				WherePK().
				Exec(ctx)
			return errors.WithStack(err)
		}

		sync := &models.AnnotationSync{
			UserID:       user.ID,
			AnnotationID: item.ID,
			BookID:       book.ID,
			LastSynced:   now,
		}
		_, err := tx.NewInsert().Model(sync).Returning("*").Exec(ctx)
		return errors.WithStack(err)
	})
	if err != nil {
		return ItemResult{AnnotationID: item.ID, Outcome: OutcomeFailed, Err: err}
	}

	return ItemResult{AnnotationID: item.ID, Outcome: outcome}
}

// contentUnchanged reports whether the stored annotation already carries the
// incoming content. Only the user-visible fields participate; position drift
// alone doesn't force a rewrite.
func contentUnchanged(existing *models.Annotation, item AnnotationPayload) bool {
	return existing.HighlightedText == item.HighlightedText &&
		existing.NoteText == item.NoteText &&
		existing.HighlightColor == item.HighlightColor
}

// ListAnnotations returns a page of a user's annotations for one book, most
// recently modified first, along with the total count.
func (svc *Service) ListAnnotations(ctx context.Context, userID, bookID, limit, offset int) ([]*models.Annotation, int, error) {
	annotations := []*models.Annotation{}

	total, err := svc.db.NewSelect().
		Model(&annotations).
		Where("an.user_id = ?", userID).
		Where("an.book_id = ?", bookID).
		Order("an.last_modified DESC").
		Limit(limit).
		Offset(offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return annotations, total, nil
}
