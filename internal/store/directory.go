package store

import (
	"context"

	"github.com/google/uuid"

	"barbershop/backend/internal/domain"
)

type BarberRepository interface {
	List(ctx context.Context) ([]domain.Barber, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Barber, error)
	Create(ctx context.Context, barber domain.Barber) (domain.Barber, error)
	Rename(ctx context.Context, id uuid.UUID, name string) (domain.Barber, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type UserRepository interface {
	Create(ctx context.Context, user domain.User) (domain.User, error)
	FindByUsername(ctx context.Context, username string) (domain.User, error)
	ListByRole(ctx context.Context, role domain.Role) ([]domain.User, error)
	HasRole(ctx context.Context, id uuid.UUID, role domain.Role) (bool, error)
}
