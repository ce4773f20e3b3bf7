package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"barbershop/backend/internal/domain"
	"barbershop/backend/internal/store"
)

const usernameConstraint = "users_username_key"

type UserRepo struct {
	db *bun.DB
}

func NewUserRepo(db *bun.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	m := domain.User{
		ID:           user.ID,
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		Role:         user.Role,
		Name:         user.Name,
		Phone:        user.Phone,
	}
	if _, err := r.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		if isUniqueViolation(err, usernameConstraint) {
			return domain.User{}, store.ErrDuplicate
		}
		return domain.User{}, err
	}
	return m, nil
}

func (r *UserRepo) FindByUsername(ctx context.Context, username string) (domain.User, error) {
	var u domain.User
	err := r.db.NewSelect().
		Model(&u).
		Where("username = ?", username).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, store.ErrNotFound
		}
		return domain.User{}, err
	}
	return u, nil
}

func (r *UserRepo) ListByRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	rows := make([]domain.User, 0)
	err := r.db.NewSelect().
		Model(&rows).
		Where("role = ?", role).
		OrderExpr("name ASC, username ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *UserRepo) HasRole(ctx context.Context, id uuid.UUID, role domain.Role) (bool, error) {
	return r.db.NewSelect().
		Model((*domain.User)(nil)).
		Where("id = ?", id).
		Where("role = ?", role).
		Exists(ctx)
}
