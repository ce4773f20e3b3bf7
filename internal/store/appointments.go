package store

import (
	"context"

	"github.com/google/uuid"

	"barbershop/backend/internal/domain"
)

type AppointmentFilter struct {
	BarberID   *uuid.UUID
	ClientID   *uuid.UUID
	Date       string
	Privileged bool
}

type AppointmentRepository interface {
	// InBookingTransaction runs fn in one storage transaction. The transaction
	// is rolled back when fn returns an error or panics.
	InBookingTransaction(ctx context.Context, fn func(ctx context.Context, tx BookingTx) error) error

	FindBySlot(ctx context.Context, slot domain.Slot) (domain.Appointment, error)
	OccupiedAmong(ctx context.Context, barberID uuid.UUID, candidates []domain.SlotTime) ([]domain.SlotTime, error)
	Insert(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	InsertBatch(ctx context.Context, appts []domain.Appointment) ([]domain.Appointment, error)
	Delete(ctx context.Context, appointmentID, ownerID uuid.UUID) (domain.Appointment, error)
	List(ctx context.Context, filter AppointmentFilter) ([]domain.AppointmentView, error)
	OccupiedTimes(ctx context.Context, barberID uuid.UUID, date string) ([]string, error)
}

// BookingTx is the slice of the repository usable inside a booking transaction.
type BookingTx interface {
	FindBySlot(ctx context.Context, slot domain.Slot) (domain.Appointment, error)
	OccupiedAmong(ctx context.Context, barberID uuid.UUID, candidates []domain.SlotTime) ([]domain.SlotTime, error)
	InsertBatch(ctx context.Context, appts []domain.Appointment) ([]domain.Appointment, error)
}
