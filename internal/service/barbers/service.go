package barbers

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"barbershop/backend/internal/domain"
	"barbershop/backend/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// ReferentialIntegrityError is returned when a barber still has appointments.
type ReferentialIntegrityError struct {
	BarberID uuid.UUID
}

func (e *ReferentialIntegrityError) Error() string {
	return "barber " + e.BarberID.String() + " still has appointments"
}

func (e *ReferentialIntegrityError) Unwrap() error {
	return store.ErrHasAppointments
}

type Service struct {
	repo store.BarberRepository
	log  *slog.Logger
}

func NewService(repo store.BarberRepository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log.With(slog.String("component", "barbers"))}
}

func (s *Service) List(ctx context.Context) ([]domain.Barber, error) {
	return s.repo.List(ctx)
}

func (s *Service) Create(ctx context.Context, name string) (domain.Barber, error) {
	name, err := normalizeName(name)
	if err != nil {
		return domain.Barber{}, err
	}
	b, err := s.repo.Create(ctx, domain.Barber{Name: name})
	if err != nil {
		return domain.Barber{}, err
	}
	s.log.Info("barber created", slog.String("barber_id", b.ID.String()), slog.String("name", b.Name))
	return b, nil
}

func (s *Service) Rename(ctx context.Context, id uuid.UUID, name string) (domain.Barber, error) {
	if id == uuid.Nil {
		return domain.Barber{}, validationError("barber id is required")
	}
	name, err := normalizeName(name)
	if err != nil {
		return domain.Barber{}, err
	}
	return s.repo.Rename(ctx, id, name)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return validationError("barber id is required")
	}
	err := s.repo.Delete(ctx, id)
	if errors.Is(err, store.ErrHasAppointments) {
		return &ReferentialIntegrityError{BarberID: id}
	}
	if err != nil {
		return err
	}
	s.log.Info("barber deleted", slog.String("barber_id", id.String()))
	return nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", validationError("name is required")
	}
	if len(name) > 100 {
		return "", validationError("name too long")
	}
	return name, nil
}
