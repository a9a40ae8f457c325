package annotations

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shelfmark/shelfmark/pkg/books"
	"github.com/shelfmark/shelfmark/pkg/errcodes"
	"github.com/shelfmark/shelfmark/pkg/models"
)

type handler struct {
	service     *Service
	bookService *books.Service
	attachments *AttachmentStore
	proxy       *Proxy
}

func newHandler(service *Service, bookService *books.Service, attachments *AttachmentStore, proxy *Proxy) *handler {
	return &handler{
		service:     service,
		bookService: bookService,
		attachments: attachments,
		proxy:       proxy,
	}
}

// retrieveBook resolves the entitlement ID in the URL to a local book. A nil
// book with a nil error means the book isn't in the library and the request
// should be relayed upstream instead.
func (h *handler) retrieveBook(c echo.Context) (*models.Book, error) {
	entitlementID := c.Param("entitlementId")
	book, err := h.bookService.RetrieveBook(c.Request().Context(), books.RetrieveBookOptions{UUID: &entitlementID})
	if err != nil {
		if errors.Is(err, errcodes.NotFound("Book")) {
			return nil, nil
		}
		return nil, err
	}
	return book, nil
}

// handleSyncAnnotations handles PATCH /api/v3/content/:entitlementId/annotations.
// It reconciles the device's batch against local state and answers 204, which
// is all the device expects.
func (h *handler) handleSyncAnnotations(c echo.Context) error {
	ctx := c.Request().Context()
	log := logger.FromContext(ctx)

	user := UserFromContext(ctx)
	if user == nil {
		return errcodes.Unauthorized("Sync token required")
	}

	book, err := h.retrieveBook(c)
	if err != nil {
		return err
	}
	if book == nil {
		return h.proxy.Relay(c)
	}

	// Device payloads carry fields beyond the ones stored locally.
	c.Set("disallow_unknown_fields", false)
	payload := &SyncRequest{}
	if err := c.Bind(payload); err != nil {
		return err
	}

	result, err := h.service.ReconcileBatch(ctx, user, book, payload)
	if err != nil {
		return err
	}

	data := logger.Data{"book_id": book.ID}
	for outcome, count := range result.Counts() {
		data[string(outcome)] = count
	}
	log.Info("annotation batch reconciled", data)

	return c.NoContent(http.StatusNoContent)
}

// handleListAnnotations handles GET /api/v3/content/:entitlementId/annotations
// with limit/offset pagination.
func (h *handler) handleListAnnotations(c echo.Context) error {
	ctx := c.Request().Context()

	user := UserFromContext(ctx)
	if user == nil {
		return errcodes.Unauthorized("Sync token required")
	}

	book, err := h.retrieveBook(c)
	if err != nil {
		return err
	}
	if book == nil {
		return h.proxy.Relay(c)
	}

	payload := &ListAnnotationsPayload{}
	if err := c.Bind(payload); err != nil {
		return err
	}

	annotations, total, err := h.service.ListAnnotations(ctx, user.ID, book.ID, payload.Limit, payload.Offset)
	if err != nil {
		return err
	}

	items := make([]AnnotationPayload, 0, len(annotations))
	for _, a := range annotations {
		items = append(items, AnnotationPayload{
			ID:              a.AnnotationID,
			Type:            a.AnnotationType,
			HighlightedText: a.HighlightedText,
			NoteText:        a.NoteText,
			HighlightColor:  a.HighlightColor,
			Location: Location{
				Span: Span{
					ChapterFilename: a.ChapterFilename,
					ChapterProgress: a.ChapterProgress,
					StartPath:       a.LocationValue,
				},
			},
		})
	}

	var nextPageOffsetToken *string
	if next := payload.Offset + payload.Limit; next < total {
		token := strconv.Itoa(next)
		nextPageOffsetToken = &token
	}

	return c.JSON(http.StatusOK, ListResponse{
		Annotations:         items,
		NextPageOffsetToken: nextPageOffsetToken,
	})
}

// handleUploadAttachment handles
// POST /api/v3/content/:entitlementId/annotations/:annotationId/attachments,
// the markup images devices upload alongside handwritten annotations.
func (h *handler) handleUploadAttachment(c echo.Context) error {
	ctx := c.Request().Context()
	log := logger.FromContext(ctx)

	user := UserFromContext(ctx)
	if user == nil {
		return errcodes.Unauthorized("Sync token required")
	}

	book, err := h.retrieveBook(c)
	if err != nil {
		return err
	}
	if book == nil {
		return h.proxy.Relay(c)
	}

	fileHeader, err := c.FormFile("attachment")
	if err != nil {
		return errcodes.ValidationError(`"attachment" is required`)
	}
	if fileHeader.Filename == "" {
		return errcodes.ValidationError(`"attachment" must have a filename`)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return errors.WithStack(err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return errors.WithStack(err)
	}

	path, err := h.attachments.Save(user.ID, book.UUID, fileHeader.Filename, data)
	if err != nil {
		return err
	}

	log.Info("annotation attachment saved", logger.Data{
		"book_id": book.ID,
		"path":    path,
	})

	location := fmt.Sprintf(
		"/api/v3/content/%s/annotations/%s/attachments/%s",
		book.UUID, c.Param("annotationId"), fileHeader.Filename,
	)
	c.Response().Header().Set("Location", location)
	return c.JSON(http.StatusCreated, fmt.Sprintf("Attachment %s created.", fileHeader.Filename))
}

// handleDownloadAttachment serves a previously uploaded attachment back to
// the device.
func (h *handler) handleDownloadAttachment(c echo.Context) error {
	ctx := c.Request().Context()

	user := UserFromContext(ctx)
	if user == nil {
		return errcodes.Unauthorized("Sync token required")
	}

	book, err := h.retrieveBook(c)
	if err != nil {
		return err
	}
	if book == nil {
		return h.proxy.Relay(c)
	}

	path, contentType, err := h.attachments.Resolve(user.ID, book.UUID, c.Param("filename"))
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WithStack(err)
	}

	return c.Blob(http.StatusOK, contentType, data)
}

// handleCheckForChanges handles POST /api/v3/content/checkforchanges. Entries
// for local books are answered here (there are never upstream changes for
// them); the rest of the list is relayed so store-bought books still sync.
func (h *handler) handleCheckForChanges(c echo.Context) error {
	ctx := c.Request().Context()

	user := UserFromContext(ctx)
	if user == nil {
		return errcodes.Unauthorized("Sync token required")
	}

	// The body is a bare JSON array, which the struct binder doesn't handle.
	changes := []ContentChange{}
	if err := json.NewDecoder(c.Request().Body).Decode(&changes); err != nil {
		return errcodes.MalformedPayload()
	}

	// One listing query answers every entry instead of a lookup per ContentId.
	localBooks, err := h.bookService.ListBooks(ctx, books.ListBooksOptions{})
	if err != nil {
		return err
	}
	local := make(map[string]struct{}, len(localBooks))
	for _, book := range localBooks {
		local[book.UUID] = struct{}{}
	}

	remaining := make([]ContentChange, 0, len(changes))
	for _, change := range changes {
		if _, ok := local[change.ContentID]; ok {
			continue
		}
		remaining = append(remaining, change)
	}

	if len(remaining) == 0 {
		return c.JSON(http.StatusOK, []ContentChange{})
	}

	body, err := json.Marshal(remaining)
	if err != nil {
		return errors.WithStack(err)
	}
	return h.proxy.RelayBody(c, body)
}

// handleRelay forwards everything not handled locally.
func (h *handler) handleRelay(c echo.Context) error {
	return h.proxy.Relay(c)
}
