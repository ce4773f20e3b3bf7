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

// AppointmentRepo works on a *bun.DB or, nested through savepoints, on an
// open bun.Tx.
type AppointmentRepo struct {
	db bun.IDB
}

func NewAppointmentRepo(db bun.IDB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

type bookingTx struct {
	db bun.IDB
}

func (r *AppointmentRepo) InBookingTransaction(ctx context.Context, fn func(ctx context.Context, tx store.BookingTx) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	return r.db.RunInTx(ctx, opts, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, bookingTx{db: tx})
	})
}

func (r *AppointmentRepo) FindBySlot(ctx context.Context, slot domain.Slot) (domain.Appointment, error) {
	return bookingTx{db: r.db}.FindBySlot(ctx, slot)
}

func (r *AppointmentRepo) OccupiedAmong(ctx context.Context, barberID uuid.UUID, candidates []domain.SlotTime) ([]domain.SlotTime, error) {
	return bookingTx{db: r.db}.OccupiedAmong(ctx, barberID, candidates)
}

func (r *AppointmentRepo) Insert(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	rows, err := r.InsertBatch(ctx, []domain.Appointment{appt})
	if err != nil {
		return domain.Appointment{}, err
	}
	return rows[0], nil
}

func (r *AppointmentRepo) InsertBatch(ctx context.Context, appts []domain.Appointment) ([]domain.Appointment, error) {
	var out []domain.Appointment
	err := r.InBookingTransaction(ctx, func(ctx context.Context, tx store.BookingTx) error {
		rows, err := tx.InsertBatch(ctx, appts)
		if err != nil {
			return err
		}
		out = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *AppointmentRepo) Delete(ctx context.Context, appointmentID, ownerID uuid.UUID) (domain.Appointment, error) {
	var out domain.Appointment
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewSelect().
			Model(&out).
			Where("id = ?", appointmentID)
		if ownerID != uuid.Nil {
			q = q.Where("client_id = ?", ownerID)
		}
		if err := q.For("UPDATE").Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			return err
		}

		_, err := tx.NewDelete().
			Model((*domain.Appointment)(nil)).
			Where("id = ?", appointmentID).
			Exec(ctx)
		return err
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func (r *AppointmentRepo) List(ctx context.Context, filter store.AppointmentFilter) ([]domain.AppointmentView, error) {
	q := r.db.NewSelect().
		TableExpr("appointments AS a").
		Join("JOIN barbers AS b ON b.id = a.barber_id").
		Join("JOIN users AS u ON u.id = a.client_id").
		ColumnExpr("a.id, a.slot_date, a.slot_time, a.barber_id, a.client_id").
		ColumnExpr("b.name AS barber_name")

	if filter.Privileged {
		q = q.ColumnExpr("u.name AS client_name, u.phone AS client_phone")
	} else {
		q = q.ColumnExpr("? AS client_name, '' AS client_phone", domain.RedactedClientName)
	}

	if filter.BarberID != nil {
		q = q.Where("a.barber_id = ?", *filter.BarberID)
	}
	if filter.ClientID != nil {
		q = q.Where("a.client_id = ?", *filter.ClientID)
	}
	if filter.Date != "" {
		q = q.Where("a.slot_date = ?", filter.Date)
	}

	var rows []domain.AppointmentView
	if err := q.OrderExpr("a.slot_date ASC, a.slot_time ASC").Scan(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) OccupiedTimes(ctx context.Context, barberID uuid.UUID, date string) ([]string, error) {
	times := make([]string, 0)
	err := r.db.NewSelect().
		Model((*domain.Appointment)(nil)).
		Column("slot_time").
		Where("barber_id = ?", barberID).
		Where("slot_date = ?", date).
		OrderExpr("slot_time ASC").
		Scan(ctx, &times)
	if err != nil {
		return nil, err
	}
	return times, nil
}

func (t bookingTx) FindBySlot(ctx context.Context, slot domain.Slot) (domain.Appointment, error) {
	var a domain.Appointment
	err := t.db.NewSelect().
		Model(&a).
		Where("barber_id = ?", slot.BarberID).
		Where("slot_date = ?", slot.Date).
		Where("slot_time = ?", slot.Time).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Appointment{}, store.ErrNotFound
		}
		return domain.Appointment{}, err
	}
	return a, nil
}

func (t bookingTx) OccupiedAmong(ctx context.Context, barberID uuid.UUID, candidates []domain.SlotTime) ([]domain.SlotTime, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var rows []domain.Appointment
	err := t.db.NewSelect().
		Model(&rows).
		Column("slot_date", "slot_time").
		Where("barber_id = ?", barberID).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			for _, c := range candidates {
				q = q.WhereOr("(slot_date = ? AND slot_time = ?)", c.Date, c.Time)
			}
			return q
		}).
		OrderExpr("slot_date ASC, slot_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.SlotTime, 0, len(rows))
	for _, a := range rows {
		out = append(out, domain.SlotTime{Date: a.Date, Time: a.Time})
	}
	return out, nil
}

// InsertBatch writes all rows with one INSERT statement. A row that collides
// with an existing (barber, date, time) aborts the whole statement with
// store.ErrConflict.
func (t bookingTx) InsertBatch(ctx context.Context, appts []domain.Appointment) ([]domain.Appointment, error) {
	if len(appts) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	rows := make([]domain.Appointment, len(appts))
	for i, a := range appts {
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return nil, err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		rows[i] = a
	}

	if _, err := t.db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		return nil, mapAppointmentWriteError(err)
	}
	return rows, nil
}

func mapAppointmentWriteError(err error) error {
	switch {
	case isUniqueViolation(err, appointmentSlotConstraint):
		return store.ErrConflict
	case isForeignKeyViolation(err):
		return store.ErrNotFound
	default:
		return err
	}
}
