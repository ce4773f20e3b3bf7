package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"barbershop/backend/internal/domain"
	"barbershop/backend/internal/service/accounts"
	"barbershop/backend/internal/service/booking"
)

type BookingService interface {
	Book(ctx context.Context, p domain.Principal, in booking.BookInput) (booking.BookResult, error)
	Cancel(ctx context.Context, p domain.Principal, appointmentID uuid.UUID) (domain.Appointment, error)
	List(ctx context.Context, p domain.Principal, filter booking.ListFilter) ([]domain.AppointmentView, error)
	CheckSlot(ctx context.Context, p domain.Principal, slot domain.Slot) (booking.SlotStatus, error)
	OccupiedTimes(ctx context.Context, barberID uuid.UUID, date string) ([]string, error)
	AvailableTimes(ctx context.Context, barberID uuid.UUID, date string) ([]string, error)
}

type BarberService interface {
	List(ctx context.Context) ([]domain.Barber, error)
	Create(ctx context.Context, name string) (domain.Barber, error)
	Rename(ctx context.Context, id uuid.UUID, name string) (domain.Barber, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type AccountService interface {
	Register(ctx context.Context, in accounts.RegisterInput) (domain.User, error)
	Login(ctx context.Context, username, password string) (accounts.Session, error)
	ListClients(ctx context.Context) ([]domain.User, error)
}

type TokenVerifier interface {
	Verify(token string) (domain.Principal, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Instrumenter wraps handlers with request metrics and serves the scrape
// endpoint.
type Instrumenter interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
}

type Deps struct {
	Bookings       BookingService
	Barbers        BarberService
	Accounts       AccountService
	Tokens         TokenVerifier
	Health         Pinger
	Metrics        Instrumenter
	Log            *slog.Logger
	RequestTimeout time.Duration
}

type handler struct {
	bookings BookingService
	barbers  BarberService
	accounts AccountService
	tokens   TokenVerifier
	health   Pinger
	log      *slog.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	h := &handler{
		bookings: d.Bookings,
		barbers:  d.Barbers,
		accounts: d.Accounts,
		tokens:   d.Tokens,
		health:   d.Health,
		log:      log.With(slog.String("component", "http")),
	}

	r := mux.NewRouter()
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
		r.Handle("/metrics", d.Metrics.Handler()).Methods(http.MethodGet)
	}
	r.Use(accessLog(h.log), requestTimeout(d.RequestTimeout))

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/register", h.register).Methods(http.MethodPost)
	api.HandleFunc("/login", h.login).Methods(http.MethodPost)
	api.HandleFunc("/health", h.healthCheck).Methods(http.MethodGet)

	api.HandleFunc("/barbers", h.listBarbers).Methods(http.MethodGet)
	api.HandleFunc("/barbers", h.adminOnly(h.createBarber)).Methods(http.MethodPost)
	api.HandleFunc("/barbers/{id}", h.adminOnly(h.renameBarber)).Methods(http.MethodPut)
	api.HandleFunc("/barbers/{id}", h.adminOnly(h.deleteBarber)).Methods(http.MethodDelete)

	api.HandleFunc("/users", h.adminOnly(h.listClients)).Methods(http.MethodGet)

	api.HandleFunc("/appointments/simple", h.occupiedTimes).Methods(http.MethodGet)
	api.HandleFunc("/appointments/available", h.availableTimes).Methods(http.MethodGet)
	api.HandleFunc("/appointments/check", h.authenticated(h.checkSlot)).Methods(http.MethodGet)
	api.HandleFunc("/appointments", h.authenticated(h.listAppointments)).Methods(http.MethodGet)
	api.HandleFunc("/appointments", h.authenticated(h.book)).Methods(http.MethodPost)
	api.HandleFunc("/appointments/{id}", h.authenticated(h.cancel)).Methods(http.MethodDelete)

	return r
}

func (h *handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health.Ping(r.Context()); err != nil {
			h.log.Warn("health check failed", slog.Any("err", err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pathID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	return id, err == nil
}
