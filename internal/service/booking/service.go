package booking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"barbershop/backend/internal/domain"
	"barbershop/backend/internal/store"
)

// Stage names a step of a booking attempt. It is reported in logs.
type Stage string

const (
	StageValidating          Stage = "validating"
	StageCheckingPrimarySlot Stage = "checking_primary_slot"
	StageExpandingRecurrence Stage = "expanding_recurrence"
	StageCheckingBatchSlots  Stage = "checking_batch_slots"
	StageInserting           Stage = "inserting"
	StageCommitted           Stage = "committed"
	StageRolledBack          Stage = "rolled_back"
)

const (
	OutcomeCommitted     = "committed"
	OutcomeInvalid       = "invalid"
	OutcomeForbidden     = "forbidden"
	OutcomeSlotOccupied  = "slot_occupied"
	OutcomeBatchConflict = "batch_conflict"
	OutcomeError         = "error"
)

// OccupiedCache caches the booked times of one barber on one date. Get
// reports the entry version even on a miss; Set must drop the write when the
// entry was invalidated after that version was read.
type OccupiedCache interface {
	Get(ctx context.Context, barberID uuid.UUID, date string) ([]string, int64, bool, error)
	Set(ctx context.Context, barberID uuid.UUID, date string, version int64, times []string) error
	Invalidate(ctx context.Context, barberID uuid.UUID, dates ...string) error
}

// Recorder receives booking outcomes for metrics.
type Recorder interface {
	BookingOutcome(outcome string)
	RecurringRows(n int)
}

type noopCache struct{}

func (noopCache) Get(context.Context, uuid.UUID, string) ([]string, int64, bool, error) {
	return nil, 0, false, nil
}

func (noopCache) Set(context.Context, uuid.UUID, string, int64, []string) error {
	return nil
}

func (noopCache) Invalidate(context.Context, uuid.UUID, ...string) error {
	return nil
}

type noopRecorder struct{}

func (noopRecorder) BookingOutcome(string) {}
func (noopRecorder) RecurringRows(int)     {}

// HorizonPolicy bounds weekly recurrence. Until, when set, is an absolute last
// date; otherwise the series ends Span after its start date.
type HorizonPolicy struct {
	Until string
	Span  time.Duration
}

func DefaultHorizonPolicy() HorizonPolicy {
	return HorizonPolicy{Span: 26 * 7 * 24 * time.Hour}
}

// End returns the last date a series starting on start may reach. requested
// can only move the end earlier.
func (h HorizonPolicy) End(start time.Time, requested string) (string, error) {
	end := start.Add(h.Span)
	if h.Until != "" {
		u, err := domain.ParseDate(h.Until)
		if err != nil {
			return "", domain.ErrInvalidHorizon
		}
		end = u
	}
	if requested != "" {
		r, err := domain.ParseDate(requested)
		if err != nil {
			return "", validationError(ReasonMalformedDate, "recurring_until must be a real calendar date in YYYY-MM-DD form")
		}
		if r.Before(end) {
			end = r
		}
	}
	return end.Format(domain.DateLayout), nil
}

type Option func(*Service)

func WithCache(c OccupiedCache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

func WithHorizon(h HorizonPolicy) Option {
	return func(s *Service) {
		s.horizon = h
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

type Service struct {
	repo      store.AppointmentRepository
	validator *Validator
	policy    domain.SchedulePolicy
	horizon   HorizonPolicy
	cache     OccupiedCache
	recorder  Recorder
	log       *slog.Logger
}

func NewService(repo store.AppointmentRepository, dir Directory, policy domain.SchedulePolicy, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		validator: NewValidator(dir, policy),
		policy:    policy,
		horizon:   DefaultHorizonPolicy(),
		cache:     noopCache{},
		recorder:  noopRecorder{},
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "booking"))
	return s
}

type BookInput struct {
	BarberID       uuid.UUID
	ClientID       uuid.UUID
	Date           string
	Time           string
	Recurring      bool
	RecurringUntil string
}

type BookResult struct {
	Appointment domain.Appointment
	Recurring   []domain.Appointment
}

func (r BookResult) RecurringCount() int {
	return len(r.Recurring)
}

// Book reserves the requested slot and, for recurring requests, the same slot
// on every following week up to the horizon. Either every row is written or
// none is.
func (s *Service) Book(ctx context.Context, p domain.Principal, in BookInput) (BookResult, error) {
	res, stage, err := s.book(ctx, p, in)
	outcome := bookingOutcome(err)
	s.recorder.BookingOutcome(outcome)

	log := s.log.With(
		slog.String("barber_id", in.BarberID.String()),
		slog.String("date", in.Date),
		slog.String("time", in.Time),
		slog.String("stage", string(stage)),
	)
	if err != nil && stage != StageValidating {
		log = log.With(slog.String("state", string(StageRolledBack)))
	}
	switch outcome {
	case OutcomeCommitted:
		s.recorder.RecurringRows(res.RecurringCount())
		log.Info("appointment booked",
			slog.String("appointment_id", res.Appointment.ID.String()),
			slog.Int("recurring_count", res.RecurringCount()),
		)
	case OutcomeError:
		log.Error("booking failed", slog.Any("err", err))
	default:
		log.Info("booking rejected", slog.String("outcome", outcome), slog.String("reason", err.Error()))
	}
	return res, err
}

func (s *Service) book(ctx context.Context, p domain.Principal, in BookInput) (BookResult, Stage, error) {
	stage := StageValidating

	clientID, err := bookingClient(p, in.ClientID)
	if err != nil {
		return BookResult{}, stage, err
	}
	slot := domain.Slot{BarberID: in.BarberID, Date: in.Date, Time: in.Time}
	if err := s.validator.Validate(ctx, p, slot, clientID); err != nil {
		return BookResult{}, stage, err
	}

	horizonEnd := ""
	if in.Recurring {
		start, _ := domain.ParseDate(in.Date)
		horizonEnd, err = s.horizon.End(start, in.RecurringUntil)
		if err != nil {
			return BookResult{}, stage, err
		}
	}

	var (
		res        BookResult
		candidates []domain.SlotTime
	)
	err = s.repo.InBookingTransaction(ctx, func(ctx context.Context, tx store.BookingTx) error {
		stage = StageCheckingPrimarySlot
		existing, err := tx.FindBySlot(ctx, slot)
		if err == nil {
			return &SlotOccupiedError{Slot: slot, Existing: &existing}
		}
		if !errors.Is(err, store.ErrNotFound) {
			return storageError(err)
		}

		rows := []domain.Appointment{{Date: slot.Date, Time: slot.Time, BarberID: slot.BarberID, ClientID: clientID}}
		if in.Recurring {
			stage = StageExpandingRecurrence
			dates, err := domain.ExpandWeekly(slot.Date, horizonEnd)
			if err != nil {
				return err
			}
			for _, d := range dates {
				candidates = append(candidates, domain.SlotTime{Date: d, Time: slot.Time})
				rows = append(rows, domain.Appointment{Date: d, Time: slot.Time, BarberID: slot.BarberID, ClientID: clientID})
			}
		}

		if len(candidates) > 0 {
			stage = StageCheckingBatchSlots
			taken, err := tx.OccupiedAmong(ctx, slot.BarberID, candidates)
			if err != nil {
				return storageError(err)
			}
			if len(taken) > 0 {
				return &BatchConflictError{Conflicts: taken}
			}
		}

		stage = StageInserting
		inserted, err := tx.InsertBatch(ctx, rows)
		if err != nil {
			return err
		}
		res = BookResult{Appointment: inserted[0], Recurring: inserted[1:]}
		return nil
	})
	if err != nil {
		return BookResult{}, stage, s.resolveFailure(ctx, slot, candidates, err)
	}
	stage = StageCommitted

	dates := make([]string, 0, 1+len(res.Recurring))
	dates = append(dates, res.Appointment.Date)
	for _, a := range res.Recurring {
		dates = append(dates, a.Date)
	}
	if err := s.cache.Invalidate(ctx, slot.BarberID, dates...); err != nil {
		s.log.Warn("occupied cache invalidate failed", slog.Any("err", err))
	}
	return res, stage, nil
}

// resolveFailure turns a rolled-back transaction error into a business error.
// A unique violation means a concurrent booking won the race; the winner is
// visible now that this transaction has ended.
func (s *Service) resolveFailure(ctx context.Context, slot domain.Slot, candidates []domain.SlotTime, err error) error {
	var (
		vErr *ValidationError
		sErr *SlotOccupiedError
		bErr *BatchConflictError
	)
	switch {
	case errors.As(err, &vErr), errors.As(err, &sErr), errors.As(err, &bErr), errors.Is(err, ErrStorageUnavailable):
		return err
	case errors.Is(err, store.ErrNotFound):
		return validationError(ReasonUnknownBarber, "barber or client no longer exists")
	case !errors.Is(err, store.ErrConflict):
		return storageError(err)
	}

	existing, findErr := s.repo.FindBySlot(ctx, slot)
	if findErr == nil {
		return &SlotOccupiedError{Slot: slot, Existing: &existing}
	}
	if len(candidates) > 0 {
		taken, amongErr := s.repo.OccupiedAmong(ctx, slot.BarberID, candidates)
		if amongErr == nil && len(taken) > 0 {
			return &BatchConflictError{Conflicts: taken}
		}
	}
	return &SlotOccupiedError{Slot: slot}
}

func bookingClient(p domain.Principal, requested uuid.UUID) (uuid.UUID, error) {
	if p.IsAdmin() {
		return requested, nil
	}
	if requested != uuid.Nil && requested != p.UserID {
		return uuid.Nil, ErrForbidden
	}
	return p.UserID, nil
}

func bookingOutcome(err error) string {
	var (
		vErr *ValidationError
		sErr *SlotOccupiedError
		bErr *BatchConflictError
	)
	switch {
	case err == nil:
		return OutcomeCommitted
	case errors.As(err, &vErr):
		return OutcomeInvalid
	case errors.Is(err, ErrForbidden):
		return OutcomeForbidden
	case errors.As(err, &sErr):
		return OutcomeSlotOccupied
	case errors.As(err, &bErr):
		return OutcomeBatchConflict
	default:
		return OutcomeError
	}
}

// Cancel deletes an appointment. Clients may only cancel their own; anything
// else is reported as store.ErrNotFound.
func (s *Service) Cancel(ctx context.Context, p domain.Principal, appointmentID uuid.UUID) (domain.Appointment, error) {
	if appointmentID == uuid.Nil {
		return domain.Appointment{}, validationError(ReasonMissingField, "appointment_id is required")
	}
	owner := p.UserID
	if p.IsAdmin() {
		owner = uuid.Nil
	}

	deleted, err := s.repo.Delete(ctx, appointmentID, owner)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Appointment{}, err
		}
		return domain.Appointment{}, storageError(err)
	}

	if err := s.cache.Invalidate(ctx, deleted.BarberID, deleted.Date); err != nil {
		s.log.Warn("occupied cache invalidate failed", slog.Any("err", err))
	}
	s.log.Info("appointment cancelled",
		slog.String("appointment_id", deleted.ID.String()),
		slog.String("barber_id", deleted.BarberID.String()),
		slog.String("date", deleted.Date),
		slog.String("time", deleted.Time),
	)
	return deleted, nil
}

type ListFilter struct {
	BarberID *uuid.UUID
	ClientID *uuid.UUID
	Date     string
}

// List returns appointments visible to p. Non-admins see other clients'
// bookings anonymised: placeholder name, no phone, no client id.
func (s *Service) List(ctx context.Context, p domain.Principal, filter ListFilter) ([]domain.AppointmentView, error) {
	if filter.Date != "" {
		if err := checkDate(filter.Date); err != nil {
			return nil, err
		}
	}
	if !p.IsAdmin() && filter.ClientID != nil && *filter.ClientID != p.UserID {
		return nil, ErrForbidden
	}

	rows, err := s.repo.List(ctx, store.AppointmentFilter{
		BarberID:   filter.BarberID,
		ClientID:   filter.ClientID,
		Date:       filter.Date,
		Privileged: p.IsAdmin(),
	})
	if err != nil {
		return nil, storageError(err)
	}

	for i := range rows {
		rows[i].Own = rows[i].ClientID == p.UserID
		if !p.IsAdmin() && !rows[i].Own {
			rows[i].ClientID = uuid.Nil
		}
	}
	return rows, nil
}

type SlotStatus struct {
	Booked bool
	// Appointment is set only for admins.
	Appointment *domain.Appointment
}

func (s *Service) CheckSlot(ctx context.Context, p domain.Principal, slot domain.Slot) (SlotStatus, error) {
	if err := checkSlotQuery(slot); err != nil {
		return SlotStatus{}, err
	}

	appt, err := s.repo.FindBySlot(ctx, slot)
	if errors.Is(err, store.ErrNotFound) {
		return SlotStatus{}, nil
	}
	if err != nil {
		return SlotStatus{}, storageError(err)
	}

	status := SlotStatus{Booked: true}
	if p.IsAdmin() {
		status.Appointment = &appt
	}
	return status, nil
}

func (s *Service) IsOccupied(ctx context.Context, slot domain.Slot) (bool, error) {
	if err := checkSlotQuery(slot); err != nil {
		return false, err
	}
	_, err := s.repo.FindBySlot(ctx, slot)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, storageError(err)
	}
}

// OccupiedTimes lists the booked times of a barber on date, with no
// identifying data. Results are served from the cache when possible.
func (s *Service) OccupiedTimes(ctx context.Context, barberID uuid.UUID, date string) ([]string, error) {
	if barberID == uuid.Nil {
		return nil, validationError(ReasonMissingField, "barber_id is required")
	}
	if err := checkDate(date); err != nil {
		return nil, err
	}

	times, version, ok, cacheErr := s.cache.Get(ctx, barberID, date)
	if cacheErr != nil {
		s.log.Warn("occupied cache read failed", slog.Any("err", cacheErr))
	}
	if ok {
		return times, nil
	}

	times, err := s.repo.OccupiedTimes(ctx, barberID, date)
	if err != nil {
		return nil, storageError(err)
	}
	// Without a version read the write could not be checked against a
	// concurrent invalidation.
	if cacheErr == nil {
		if err := s.cache.Set(ctx, barberID, date, version, times); err != nil {
			s.log.Warn("occupied cache write failed", slog.Any("err", err))
		}
	}
	return times, nil
}

// AvailableTimes lists the free slot starts of a barber on date. Closed days
// have none.
func (s *Service) AvailableTimes(ctx context.Context, barberID uuid.UUID, date string) ([]string, error) {
	occupied, err := s.OccupiedTimes(ctx, barberID, date)
	if err != nil {
		return nil, err
	}

	day, _ := domain.ParseDate(date)
	if s.policy.IsClosed(day) {
		return []string{}, nil
	}

	taken := make(map[string]struct{}, len(occupied))
	for _, t := range occupied {
		taken[t] = struct{}{}
	}
	free := make([]string, 0)
	for _, t := range s.policy.Slots() {
		if _, ok := taken[t]; !ok {
			free = append(free, t)
		}
	}
	return free, nil
}

func checkSlotQuery(slot domain.Slot) error {
	if slot.BarberID == uuid.Nil {
		return validationError(ReasonMissingField, "barber_id is required")
	}
	if err := checkDate(slot.Date); err != nil {
		return err
	}
	return checkTime(slot.Time)
}
