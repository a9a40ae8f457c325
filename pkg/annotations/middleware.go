package annotations

import (
	"context"
	"database/sql"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shelfmark/shelfmark/pkg/models"
	"github.com/uptrace/bun"
)

type contextKey string

const contextKeyUser contextKey = "annotations_user"

// Middleware authenticates devices by the sync token embedded in the URL.
type Middleware struct {
	db    *bun.DB
	proxy *Proxy
}

func NewMiddleware(db *bun.DB, proxy *Proxy) *Middleware {
	return &Middleware{db: db, proxy: proxy}
}

// TokenAuth resolves c.Param("token") to an active user and stores the user
// in the request context. Requests with an unknown or inactive token are
// relayed upstream untouched instead of rejected, so devices registered
// against the real service keep working through this server.
func (m *Middleware) TokenAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := c.Param("token")
			if token == "" {
				return m.proxy.Relay(c)
			}

			user := new(models.User)
			err := m.db.NewSelect().
				Model(user).
				Where("u.sync_token = ?", token).
				Where("u.is_active = ?", true).
				Scan(c.Request().Context())
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					logger.FromContext(c.Request().Context()).
						Debug("unknown sync token, relaying upstream")
					return m.proxy.Relay(c)
				}
				return errors.WithStack(err)
			}

			ctx := context.WithValue(c.Request().Context(), contextKeyUser, user)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// UserFromContext retrieves the authenticated user from context.
func UserFromContext(ctx context.Context) *models.User {
	if user, ok := ctx.Value(contextKeyUser).(*models.User); ok {
		return user
	}
	return nil
}
