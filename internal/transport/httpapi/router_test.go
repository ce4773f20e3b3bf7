package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"barbershop/backend/internal/auth"
	"barbershop/backend/internal/domain"
	"barbershop/backend/internal/service/accounts"
	"barbershop/backend/internal/service/barbers"
	"barbershop/backend/internal/service/booking"
	"barbershop/backend/internal/store"
)

type fakeBookings struct {
	bookFn      func(ctx context.Context, p domain.Principal, in booking.BookInput) (booking.BookResult, error)
	cancelFn    func(ctx context.Context, p domain.Principal, id uuid.UUID) (domain.Appointment, error)
	listFn      func(ctx context.Context, p domain.Principal, f booking.ListFilter) ([]domain.AppointmentView, error)
	checkFn     func(ctx context.Context, p domain.Principal, slot domain.Slot) (booking.SlotStatus, error)
	occupiedFn  func(ctx context.Context, barberID uuid.UUID, date string) ([]string, error)
	availableFn func(ctx context.Context, barberID uuid.UUID, date string) ([]string, error)
}

func (f *fakeBookings) Book(ctx context.Context, p domain.Principal, in booking.BookInput) (booking.BookResult, error) {
	if f.bookFn == nil {
		panic("Book not configured")
	}
	return f.bookFn(ctx, p, in)
}

func (f *fakeBookings) Cancel(ctx context.Context, p domain.Principal, id uuid.UUID) (domain.Appointment, error) {
	if f.cancelFn == nil {
		panic("Cancel not configured")
	}
	return f.cancelFn(ctx, p, id)
}

func (f *fakeBookings) List(ctx context.Context, p domain.Principal, filter booking.ListFilter) ([]domain.AppointmentView, error) {
	if f.listFn == nil {
		panic("List not configured")
	}
	return f.listFn(ctx, p, filter)
}

func (f *fakeBookings) CheckSlot(ctx context.Context, p domain.Principal, slot domain.Slot) (booking.SlotStatus, error) {
	if f.checkFn == nil {
		panic("CheckSlot not configured")
	}
	return f.checkFn(ctx, p, slot)
}

func (f *fakeBookings) OccupiedTimes(ctx context.Context, barberID uuid.UUID, date string) ([]string, error) {
	if f.occupiedFn == nil {
		panic("OccupiedTimes not configured")
	}
	return f.occupiedFn(ctx, barberID, date)
}

func (f *fakeBookings) AvailableTimes(ctx context.Context, barberID uuid.UUID, date string) ([]string, error) {
	if f.availableFn == nil {
		panic("AvailableTimes not configured")
	}
	return f.availableFn(ctx, barberID, date)
}

type fakeBarbers struct {
	listFn   func(ctx context.Context) ([]domain.Barber, error)
	createFn func(ctx context.Context, name string) (domain.Barber, error)
	renameFn func(ctx context.Context, id uuid.UUID, name string) (domain.Barber, error)
	deleteFn func(ctx context.Context, id uuid.UUID) error
}

func (f *fakeBarbers) List(ctx context.Context) ([]domain.Barber, error) {
	if f.listFn == nil {
		panic("List not configured")
	}
	return f.listFn(ctx)
}

func (f *fakeBarbers) Create(ctx context.Context, name string) (domain.Barber, error) {
	if f.createFn == nil {
		panic("Create not configured")
	}
	return f.createFn(ctx, name)
}

func (f *fakeBarbers) Rename(ctx context.Context, id uuid.UUID, name string) (domain.Barber, error) {
	if f.renameFn == nil {
		panic("Rename not configured")
	}
	return f.renameFn(ctx, id, name)
}

func (f *fakeBarbers) Delete(ctx context.Context, id uuid.UUID) error {
	if f.deleteFn == nil {
		panic("Delete not configured")
	}
	return f.deleteFn(ctx, id)
}

type fakeAccounts struct {
	registerFn    func(ctx context.Context, in accounts.RegisterInput) (domain.User, error)
	loginFn       func(ctx context.Context, username, password string) (accounts.Session, error)
	listClientsFn func(ctx context.Context) ([]domain.User, error)
}

func (f *fakeAccounts) Register(ctx context.Context, in accounts.RegisterInput) (domain.User, error) {
	if f.registerFn == nil {
		panic("Register not configured")
	}
	return f.registerFn(ctx, in)
}

func (f *fakeAccounts) Login(ctx context.Context, username, password string) (accounts.Session, error) {
	if f.loginFn == nil {
		panic("Login not configured")
	}
	return f.loginFn(ctx, username, password)
}

func (f *fakeAccounts) ListClients(ctx context.Context) ([]domain.User, error) {
	if f.listClientsFn == nil {
		panic("ListClients not configured")
	}
	return f.listClientsFn(ctx)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type testServer struct {
	handler  http.Handler
	tokens   *auth.TokenManager
	bookings *fakeBookings
	barbers  *fakeBarbers
	accounts *fakeAccounts
	health   error
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{
		tokens:   auth.NewTokenManager("test-secret", time.Hour),
		bookings: &fakeBookings{},
		barbers:  &fakeBarbers{},
		accounts: &fakeAccounts{},
	}
	s.handler = NewRouter(Deps{
		Bookings: s.bookings,
		Barbers:  s.barbers,
		Accounts: s.accounts,
		Tokens:   s.tokens,
		Health:   pingFunc(func(ctx context.Context) error { return s.health }),
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return s
}

func (s *testServer) token(t *testing.T, p domain.Principal) string {
	t.Helper()
	tok, _, err := s.tokens.Issue(p)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, target, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestBook_CreatedWithRecurringCount(t *testing.T) {
	s := newTestServer(t)
	client := domain.Principal{UserID: uuid.New(), Role: domain.RoleClient}
	barber := uuid.New()
	apptID := uuid.New()

	s.bookings.bookFn = func(ctx context.Context, p domain.Principal, in booking.BookInput) (booking.BookResult, error) {
		assert.Equal(t, client, p)
		assert.Equal(t, barber, in.BarberID)
		assert.Equal(t, "2025-03-10", in.Date)
		assert.Equal(t, "09:00", in.Time)
		assert.True(t, in.Recurring)
		return booking.BookResult{
			Appointment: domain.Appointment{ID: apptID},
			Recurring:   make([]domain.Appointment, 3),
		}, nil
	}

	body := `{"date":"2025-03-10","time":"09:00","barber_id":"` + barber.String() + `","recurring":true}`
	rec, out := s.do(t, http.MethodPost, "/api/appointments", s.token(t, client), body)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, apptID.String(), out["appointment_id"])
	assert.Equal(t, 3.0, out["recurring_count"])
}

func TestBook_RequiresToken(t *testing.T) {
	s := newTestServer(t)

	rec, out := s.do(t, http.MethodPost, "/api/appointments", "", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", out["error"])

	rec, _ = s.do(t, http.MethodPost, "/api/appointments", "not-a-token", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBook_ErrorMapping(t *testing.T) {
	slot := domain.Slot{BarberID: uuid.New(), Date: "2025-03-10", Time: "09:00"}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
		wantKind   string
	}{
		{"validation", &booking.ValidationError{Reason: booking.ReasonMalformedTime}, http.StatusBadRequest, "malformed_time", ""},
		{"single conflict", &booking.SlotOccupiedError{Slot: slot}, http.StatusConflict, "slot_occupied", "single"},
		{"batch conflict", &booking.BatchConflictError{Conflicts: []domain.SlotTime{{Date: "2025-03-17", Time: "09:00"}, {Date: "2025-03-24", Time: "09:00"}}}, http.StatusConflict, "slot_occupied", "batch"},
		{"forbidden", booking.ErrForbidden, http.StatusForbidden, "forbidden", ""},
		{"storage", errors.Join(booking.ErrStorageUnavailable, errors.New("down")), http.StatusInternalServerError, "internal_error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.bookings.bookFn = func(ctx context.Context, p domain.Principal, in booking.BookInput) (booking.BookResult, error) {
				return booking.BookResult{}, tt.err
			}
			tok := s.token(t, domain.Principal{UserID: uuid.New(), Role: domain.RoleClient})

			rec, out := s.do(t, http.MethodPost, "/api/appointments", tok, `{"date":"2025-03-10","time":"09:00"}`)
			require.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, out["error"])
			if tt.wantKind != "" {
				assert.Equal(t, tt.wantKind, out["kind"])
				assert.NotEmpty(t, out["conflicts"])
			}
		})
	}
}

func TestBook_SingleConflictReferencesExistingAppointment(t *testing.T) {
	s := newTestServer(t)
	existing := domain.Appointment{
		ID:       uuid.New(),
		Date:     "2025-03-10",
		Time:     "09:00",
		BarberID: uuid.New(),
		ClientID: uuid.New(),
	}
	s.bookings.bookFn = func(ctx context.Context, p domain.Principal, in booking.BookInput) (booking.BookResult, error) {
		return booking.BookResult{}, &booking.SlotOccupiedError{Slot: existing.Slot(), Existing: &existing}
	}
	tok := s.token(t, domain.Principal{UserID: uuid.New(), Role: domain.RoleClient})

	rec, out := s.do(t, http.MethodPost, "/api/appointments", tok, `{"date":"2025-03-10","time":"09:00"}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	ref, ok := out["existing_appointment"].(map[string]any)
	require.True(t, ok, "missing existing_appointment in %v", out)
	assert.Equal(t, existing.ID.String(), ref["id"])
	assert.Equal(t, "2025-03-10", ref["date"])
	assert.Equal(t, "09:00", ref["time"])
	assert.Equal(t, existing.BarberID.String(), ref["barber_id"])
	assert.NotContains(t, ref, "client_id")
	assert.NotContains(t, rec.Body.String(), existing.ClientID.String())
}

func TestBook_BatchConflictListsEveryDate(t *testing.T) {
	s := newTestServer(t)
	s.bookings.bookFn = func(ctx context.Context, p domain.Principal, in booking.BookInput) (booking.BookResult, error) {
		return booking.BookResult{}, &booking.BatchConflictError{Conflicts: []domain.SlotTime{
			{Date: "2025-03-17", Time: "09:00"},
			{Date: "2025-03-24", Time: "09:00"},
		}}
	}
	tok := s.token(t, domain.Principal{UserID: uuid.New(), Role: domain.RoleClient})

	_, out := s.do(t, http.MethodPost, "/api/appointments", tok, `{}`)
	conflicts, ok := out["conflicts"].([]any)
	require.True(t, ok)
	require.Len(t, conflicts, 2)
	assert.Equal(t, map[string]any{"date": "2025-03-24", "time": "09:00"}, conflicts[1])
}

func TestBook_MalformedBarberID(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, domain.Principal{UserID: uuid.New(), Role: domain.RoleClient})

	rec, out := s.do(t, http.MethodPost, "/api/appointments", tok, `{"barber_id":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", out["error"])
}

func TestListAppointments_PassesFilterAndOmitsForeignClientID(t *testing.T) {
	s := newTestServer(t)
	client := domain.Principal{UserID: uuid.New(), Role: domain.RoleClient}
	barber := uuid.New()

	s.bookings.listFn = func(ctx context.Context, p domain.Principal, f booking.ListFilter) ([]domain.AppointmentView, error) {
		require.NotNil(t, f.BarberID)
		assert.Equal(t, barber, *f.BarberID)
		assert.Equal(t, "2025-03-10", f.Date)
		return []domain.AppointmentView{
			{ID: uuid.New(), Date: "2025-03-10", Time: "09:00", BarberID: barber, ClientID: client.UserID, ClientName: domain.RedactedClientName, Own: true},
			{ID: uuid.New(), Date: "2025-03-10", Time: "10:00", BarberID: barber, ClientName: domain.RedactedClientName},
		}, nil
	}

	req := httptest.NewRequest(http.MethodGet, "/api/appointments?barber_id="+barber.String()+"&date=2025-03-10", nil)
	req.Header.Set("Authorization", "Bearer "+s.token(t, client))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, client.UserID.String(), rows[0]["client_id"])
	assert.Equal(t, true, rows[0]["own"])
	_, hasClient := rows[1]["client_id"]
	assert.False(t, hasClient)
	_, hasPhone := rows[1]["client_phone"]
	assert.False(t, hasPhone)
	assert.Equal(t, domain.RedactedClientName, rows[1]["client_name"])
}

func TestCancel(t *testing.T) {
	s := newTestServer(t)
	id := uuid.New()
	s.bookings.cancelFn = func(ctx context.Context, p domain.Principal, got uuid.UUID) (domain.Appointment, error) {
		if got == id {
			return domain.Appointment{ID: id}, nil
		}
		return domain.Appointment{}, store.ErrNotFound
	}
	tok := s.token(t, domain.Principal{UserID: uuid.New(), Role: domain.RoleClient})

	rec, _ := s.do(t, http.MethodDelete, "/api/appointments/"+id.String(), tok, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, out := s.do(t, http.MethodDelete, "/api/appointments/"+uuid.NewString(), tok, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", out["error"])
}

func TestCheckSlot(t *testing.T) {
	s := newTestServer(t)
	barber := uuid.New()
	s.bookings.checkFn = func(ctx context.Context, p domain.Principal, slot domain.Slot) (booking.SlotStatus, error) {
		assert.Equal(t, domain.Slot{BarberID: barber, Date: "2025-03-10", Time: "09:00"}, slot)
		return booking.SlotStatus{Booked: true}, nil
	}
	tok := s.token(t, domain.Principal{UserID: uuid.New(), Role: domain.RoleClient})

	rec, out := s.do(t, http.MethodGet, "/api/appointments/check?barber_id="+barber.String()+"&date=2025-03-10&time=09:00", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["booked"])
	assert.NotContains(t, out, "appointment")
}

func TestOccupiedAndAvailableArePublic(t *testing.T) {
	s := newTestServer(t)
	barber := uuid.New()
	s.bookings.occupiedFn = func(ctx context.Context, id uuid.UUID, date string) ([]string, error) {
		return []string{"09:00"}, nil
	}
	s.bookings.availableFn = func(ctx context.Context, id uuid.UUID, date string) ([]string, error) {
		return []string{"08:00", "08:30"}, nil
	}

	rec, out := s.do(t, http.MethodGet, "/api/appointments/simple?barber_id="+barber.String()+"&date=2025-03-10", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"09:00"}, out["times"])

	rec, out = s.do(t, http.MethodGet, "/api/appointments/available?barber_id="+barber.String()+"&date=2025-03-10", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"08:00", "08:30"}, out["times"])
}

func TestBarberAdministration(t *testing.T) {
	s := newTestServer(t)
	admin := s.token(t, domain.Principal{UserID: uuid.New(), Role: domain.RoleAdmin})
	client := s.token(t, domain.Principal{UserID: uuid.New(), Role: domain.RoleClient})
	id := uuid.New()

	s.barbers.createFn = func(ctx context.Context, name string) (domain.Barber, error) {
		if name == "Dup" {
			return domain.Barber{}, store.ErrDuplicate
		}
		return domain.Barber{ID: id, Name: name}, nil
	}
	s.barbers.deleteFn = func(ctx context.Context, got uuid.UUID) error {
		return &barbers.ReferentialIntegrityError{BarberID: got}
	}
	s.barbers.listFn = func(ctx context.Context) ([]domain.Barber, error) {
		return []domain.Barber{{ID: id, Name: "Carlos"}}, nil
	}

	rec, _ := s.do(t, http.MethodPost, "/api/barbers", client, `{"name":"Carlos"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, out := s.do(t, http.MethodPost, "/api/barbers", admin, `{"name":"Carlos"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, id.String(), out["id"])

	rec, out = s.do(t, http.MethodPost, "/api/barbers", admin, `{"name":"Dup"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_exists", out["error"])

	rec, out = s.do(t, http.MethodDelete, "/api/barbers/"+id.String(), admin, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "barber_has_appointments", out["error"])

	rec, _ = s.do(t, http.MethodGet, "/api/barbers", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Carlos")
}

func TestLoginAndRegister(t *testing.T) {
	s := newTestServer(t)
	user := domain.User{ID: uuid.New(), Username: "ana", Role: domain.RoleClient}
	s.accounts.registerFn = func(ctx context.Context, in accounts.RegisterInput) (domain.User, error) {
		assert.Equal(t, "ana", in.Username)
		return user, nil
	}
	s.accounts.loginFn = func(ctx context.Context, username, password string) (accounts.Session, error) {
		if password != "secret1" {
			return accounts.Session{}, accounts.ErrInvalidCredentials
		}
		return accounts.Session{Token: "tok", ExpiresAt: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC), User: user}, nil
	}

	rec, out := s.do(t, http.MethodPost, "/api/register", "", `{"username":"ana","password":"secret1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "client", out["role"])
	assert.NotContains(t, out, "password")

	rec, out = s.do(t, http.MethodPost, "/api/login", "", `{"username":"ana","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok", out["token"])
	assert.Equal(t, "2025-03-10T09:00:00Z", out["expires_at"])

	rec, out = s.do(t, http.MethodPost, "/api/login", "", `{"username":"ana","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_credentials", out["error"])
}

func TestListClientsIsAdminOnly(t *testing.T) {
	s := newTestServer(t)
	s.accounts.listClientsFn = func(ctx context.Context) ([]domain.User, error) {
		return []domain.User{{ID: uuid.New(), Username: "ana", Role: domain.RoleClient}}, nil
	}

	rec, _ := s.do(t, http.MethodGet, "/api/users", s.token(t, domain.Principal{UserID: uuid.New(), Role: domain.RoleClient}), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/api/users", s.token(t, domain.Principal{UserID: uuid.New(), Role: domain.RoleAdmin}), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"ana"`)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec, out := s.do(t, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])

	s.health = errors.New("db down")
	rec, out = s.do(t, http.MethodGet, "/api/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", out["status"])
}

func TestRequestTimeoutSetsDeadline(t *testing.T) {
	var hadDeadline bool
	h := requestTimeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hadDeadline = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, hadDeadline)
}
