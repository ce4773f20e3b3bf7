package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	Date      string    `bun:"slot_date,notnull"`
	Time      string    `bun:"slot_time,notnull"`
	BarberID  uuid.UUID `bun:"barber_id,notnull,type:uuid"`
	ClientID  uuid.UUID `bun:"client_id,notnull,type:uuid"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if a.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		a.ID = id
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (a Appointment) Slot() Slot {
	return Slot{BarberID: a.BarberID, Date: a.Date, Time: a.Time}
}

// AppointmentView is an appointment joined with the barber and client names.
// For non-privileged readers ClientName holds RedactedClientName and ClientPhone
// is empty.
type AppointmentView struct {
	ID          uuid.UUID `bun:"id"`
	Date        string    `bun:"slot_date"`
	Time        string    `bun:"slot_time"`
	BarberID    uuid.UUID `bun:"barber_id"`
	BarberName  string    `bun:"barber_name"`
	ClientID    uuid.UUID `bun:"client_id"`
	ClientName  string    `bun:"client_name"`
	ClientPhone string    `bun:"client_phone"`
	Own         bool      `bun:"-"`
}

const RedactedClientName = "Client"
