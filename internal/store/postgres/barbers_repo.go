package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"barbershop/backend/internal/domain"
	"barbershop/backend/internal/store"
)

const barberNameConstraint = "barbers_name_key"

type BarberRepo struct {
	db *bun.DB
}

func NewBarberRepo(db *bun.DB) *BarberRepo {
	return &BarberRepo{db: db}
}

func (r *BarberRepo) List(ctx context.Context) ([]domain.Barber, error) {
	rows := make([]domain.Barber, 0)
	err := r.db.NewSelect().
		Model(&rows).
		OrderExpr("name ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *BarberRepo) Get(ctx context.Context, id uuid.UUID) (domain.Barber, error) {
	var b domain.Barber
	err := r.db.NewSelect().
		Model(&b).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Barber{}, store.ErrNotFound
		}
		return domain.Barber{}, err
	}
	return b, nil
}

func (r *BarberRepo) Create(ctx context.Context, barber domain.Barber) (domain.Barber, error) {
	m := domain.Barber{
		ID:   barber.ID,
		Name: barber.Name,
	}
	if _, err := r.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		if isUniqueViolation(err, barberNameConstraint) {
			return domain.Barber{}, store.ErrDuplicate
		}
		return domain.Barber{}, err
	}
	return m, nil
}

func (r *BarberRepo) Rename(ctx context.Context, id uuid.UUID, name string) (domain.Barber, error) {
	res, err := r.db.NewUpdate().
		Model((*domain.Barber)(nil)).
		Set("name = ?", name).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		if isUniqueViolation(err, barberNameConstraint) {
			return domain.Barber{}, store.ErrDuplicate
		}
		return domain.Barber{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Barber{}, err
	}
	if affected == 0 {
		return domain.Barber{}, store.ErrNotFound
	}
	return r.Get(ctx, id)
}

// Delete removes a barber that has no appointments. The barber row is locked
// first so a booking committed between the count and the delete is still
// caught, and the foreign key backs the check up.
func (r *BarberRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var b domain.Barber
		err := tx.NewSelect().
			Model(&b).
			Where("id = ?", id).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}

		count, err := tx.NewSelect().
			Model((*domain.Appointment)(nil)).
			Where("barber_id = ?", id).
			Count(ctx)
		if err != nil {
			return err
		}
		if count > 0 {
			return store.ErrHasAppointments
		}

		_, err = tx.NewDelete().
			Model((*domain.Barber)(nil)).
			Where("id = ?", id).
			Exec(ctx)
		if isForeignKeyViolation(err) {
			return store.ErrHasAppointments
		}
		return err
	})
}

func (r *BarberRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.db.NewSelect().
		Model((*domain.Barber)(nil)).
		Where("id = ?", id).
		Exists(ctx)
}
