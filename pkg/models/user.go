package models

import (
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID        int       `bun:",pk,nullzero" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Name      string    `bun:",nullzero" json:"name"`
	// SyncToken is the per-user token embedded in the device sync URL. It
	// stands in for real session auth, which lives outside this service.
	SyncToken string `bun:",nullzero" json:"-"`
	IsActive  bool   `bun:",notnull,default:true" json:"is_active"`
}
