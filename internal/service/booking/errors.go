package booking

import (
	"errors"
	"fmt"
	"strings"

	"barbershop/backend/internal/domain"
)

type Reason string

const (
	ReasonMissingField         Reason = "missing_field"
	ReasonMalformedDate        Reason = "malformed_date"
	ReasonMalformedTime        Reason = "malformed_time"
	ReasonOutsideBusinessHours Reason = "outside_business_hours"
	ReasonClosedDay            Reason = "closed_day"
	ReasonUnknownBarber        Reason = "unknown_barber"
	ReasonUnknownClient        Reason = "unknown_client"
)

// ValidationError reports a request that can never succeed as submitted.
type ValidationError struct {
	Reason Reason
	msg    string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(reason Reason, msg string) error {
	return &ValidationError{Reason: reason, msg: msg}
}

// SlotOccupiedError means the requested slot already holds an appointment.
// Existing is nil when the rival row could not be read back.
type SlotOccupiedError struct {
	Slot     domain.Slot
	Existing *domain.Appointment
}

func (e *SlotOccupiedError) Error() string {
	return fmt.Sprintf("slot %s %s is already booked", e.Slot.Date, e.Slot.Time)
}

// BatchConflictError lists every recurring occurrence that is already taken.
type BatchConflictError struct {
	Conflicts []domain.SlotTime
}

func (e *BatchConflictError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, c.Date+" "+c.Time)
	}
	return "recurring slots already booked: " + strings.Join(parts, ", ")
}

var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrForbidden          = errors.New("forbidden")
)

func storageError(err error) error {
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}
