package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"barbershop/backend/internal/domain"
	"barbershop/backend/internal/store"
)

// Directory answers existence questions about the people named in a booking.
type Directory interface {
	BarberExists(ctx context.Context, id uuid.UUID) (bool, error)
	ClientExists(ctx context.Context, id uuid.UUID) (bool, error)
}

type repoDirectory struct {
	barbers store.BarberRepository
	users   store.UserRepository
}

func NewDirectory(barbers store.BarberRepository, users store.UserRepository) Directory {
	return repoDirectory{barbers: barbers, users: users}
}

func (d repoDirectory) BarberExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return d.barbers.Exists(ctx, id)
}

func (d repoDirectory) ClientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	return d.users.HasRole(ctx, id, domain.RoleClient)
}

// Validator checks a candidate booking. Format and schedule checks run before
// any directory lookup.
type Validator struct {
	dir    Directory
	policy domain.SchedulePolicy
}

func NewValidator(dir Directory, policy domain.SchedulePolicy) *Validator {
	return &Validator{dir: dir, policy: policy}
}

// Validate checks slot and clientID. Admins may book outside business hours,
// but never off the slot grid.
func (v *Validator) Validate(ctx context.Context, p domain.Principal, slot domain.Slot, clientID uuid.UUID) error {
	if err := v.checkShape(p, slot); err != nil {
		return err
	}
	if clientID == uuid.Nil {
		return validationError(ReasonMissingField, "client_id is required")
	}

	ok, err := v.dir.BarberExists(ctx, slot.BarberID)
	if err != nil {
		return storageError(err)
	}
	if !ok {
		return validationError(ReasonUnknownBarber, "barber does not exist")
	}

	ok, err = v.dir.ClientExists(ctx, clientID)
	if err != nil {
		return storageError(err)
	}
	if !ok {
		return validationError(ReasonUnknownClient, "client does not exist")
	}
	return nil
}

func (v *Validator) checkShape(p domain.Principal, slot domain.Slot) error {
	switch {
	case slot.BarberID == uuid.Nil:
		return validationError(ReasonMissingField, "barber_id is required")
	case slot.Date == "":
		return validationError(ReasonMissingField, "date is required")
	case slot.Time == "":
		return validationError(ReasonMissingField, "time is required")
	}

	day, err := domain.ParseDate(slot.Date)
	if err != nil {
		return validationError(ReasonMalformedDate, "date must be a real calendar date in YYYY-MM-DD form")
	}
	minutes, err := domain.ParseTime(slot.Time)
	if err != nil {
		return validationError(ReasonMalformedTime, "time must be HH:MM in 24-hour form")
	}
	if err := v.policy.CheckGrid(minutes); err != nil {
		return validationError(ReasonMalformedTime, "time must start on a slot boundary")
	}
	if p.IsAdmin() {
		return nil
	}

	if err := v.policy.CheckTime(minutes); errors.Is(err, domain.ErrOutsideBusinessHours) {
		return validationError(ReasonOutsideBusinessHours, "time is outside business hours")
	}
	if v.policy.IsClosed(day) {
		return validationError(ReasonClosedDay, "the shop is closed on that day")
	}
	return nil
}

func checkDate(date string) error {
	if date == "" {
		return validationError(ReasonMissingField, "date is required")
	}
	if _, err := domain.ParseDate(date); err != nil {
		return validationError(ReasonMalformedDate, "date must be a real calendar date in YYYY-MM-DD form")
	}
	return nil
}

func checkTime(t string) error {
	if t == "" {
		return validationError(ReasonMissingField, "time is required")
	}
	if _, err := domain.ParseTime(t); err != nil {
		return validationError(ReasonMalformedTime, "time must be HH:MM in 24-hour form")
	}
	return nil
}
