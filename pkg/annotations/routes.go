package annotations

import (
	"github.com/labstack/echo/v4"
	"github.com/shelfmark/shelfmark/pkg/books"
	"github.com/shelfmark/shelfmark/pkg/config"
	"github.com/uptrace/bun"
)

// RegisterRoutes registers the reading services routes. Everything lives
// under /readingservices/:token, mirroring the URL shape devices are
// configured with; requests that can't be served locally are relayed
// upstream.
func RegisterRoutes(e *echo.Echo, db *bun.DB, cfg *config.Config) {
	bookService := books.NewService(db)
	service := NewService(db)
	attachments := NewAttachmentStore(cfg)
	proxy := NewProxy(cfg)

	mw := NewMiddleware(db, proxy)
	h := newHandler(service, bookService, attachments, proxy)

	g := e.Group("/readingservices/:token", mw.TokenAuth())

	g.GET("/api/v3/content/:entitlementId/annotations", h.handleListAnnotations)
	g.PATCH("/api/v3/content/:entitlementId/annotations", h.handleSyncAnnotations)
	g.POST("/api/v3/content/:entitlementId/annotations/:annotationId/attachments", h.handleUploadAttachment)
	g.GET("/api/v3/content/:entitlementId/annotations/:annotationId/attachments/:filename", h.handleDownloadAttachment)
	g.POST("/api/v3/content/checkforchanges", h.handleCheckForChanges)

	// Catch-alls: anything else under the reading services surface belongs to
	// the real service.
	g.Any("/api/v3/*", h.handleRelay)
	g.Any("/api/UserStorage/*", h.handleRelay)
}
