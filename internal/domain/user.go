package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleClient
}

type User struct {
	bun.BaseModel `bun:"table:users"`

	ID           uuid.UUID `bun:"id,pk,type:uuid"`
	Username     string    `bun:"username,notnull"`
	PasswordHash string    `bun:"password,notnull"`
	Role         Role      `bun:"role,notnull"`
	Name         string    `bun:"name,notnull"`
	Phone        string    `bun:"phone,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}

func (u *User) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if u.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		u.ID = id
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	return nil
}

// Principal is the authenticated caller of an operation. The role comes from a
// verified session token, never from request parameters.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
