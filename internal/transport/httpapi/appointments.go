package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"barbershop/backend/internal/domain"
	"barbershop/backend/internal/service/booking"
)

type bookRequest struct {
	Date           string `json:"date"`
	Time           string `json:"time"`
	BarberID       string `json:"barber_id"`
	ClientID       string `json:"client_id"`
	Recurring      bool   `json:"recurring"`
	RecurringUntil string `json:"recurring_until"`
}

type bookResponse struct {
	AppointmentID  string `json:"appointment_id"`
	RecurringCount int    `json:"recurring_count"`
}

type appointmentResponse struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	BarberID    string `json:"barber_id"`
	BarberName  string `json:"barber_name,omitempty"`
	ClientID    string `json:"client_id,omitempty"`
	ClientName  string `json:"client_name,omitempty"`
	ClientPhone string `json:"client_phone,omitempty"`
	Own         bool   `json:"own"`
}

type checkResponse struct {
	Booked      bool                 `json:"booked"`
	Appointment *appointmentResponse `json:"appointment,omitempty"`
}

type timesResponse struct {
	BarberID string   `json:"barber_id"`
	Date     string   `json:"date"`
	Times    []string `json:"times"`
}

func (h *handler) book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid_request", "request body must be a JSON object")
		return
	}

	barberID, ok := optionalUUID(req.BarberID)
	if !ok {
		badRequest(w, "invalid_request", "barber_id must be a UUID")
		return
	}
	clientID, ok := optionalUUID(req.ClientID)
	if !ok {
		badRequest(w, "invalid_request", "client_id must be a UUID")
		return
	}

	res, err := h.bookings.Book(r.Context(), principal(r), booking.BookInput{
		BarberID:       barberID,
		ClientID:       clientID,
		Date:           req.Date,
		Time:           req.Time,
		Recurring:      req.Recurring,
		RecurringUntil: req.RecurringUntil,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, bookResponse{
		AppointmentID:  res.Appointment.ID.String(),
		RecurringCount: res.RecurringCount(),
	})
}

func (h *handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid_request", "appointment id must be a UUID")
		return
	}
	if _, err := h.bookings.Cancel(r.Context(), principal(r), id); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter booking.ListFilter
	if v := q.Get("barber_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			badRequest(w, "invalid_request", "barber_id must be a UUID")
			return
		}
		filter.BarberID = &id
	}
	if v := q.Get("client_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			badRequest(w, "invalid_request", "client_id must be a UUID")
			return
		}
		filter.ClientID = &id
	}
	filter.Date = q.Get("date")

	rows, err := h.bookings.List(r.Context(), principal(r), filter)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	out := make([]appointmentResponse, 0, len(rows))
	for _, v := range rows {
		out = append(out, viewResponse(v))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) checkSlot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	barberID, ok := optionalUUID(q.Get("barber_id"))
	if !ok {
		badRequest(w, "invalid_request", "barber_id must be a UUID")
		return
	}

	status, err := h.bookings.CheckSlot(r.Context(), principal(r), domain.Slot{
		BarberID: barberID,
		Date:     q.Get("date"),
		Time:     q.Get("time"),
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	resp := checkResponse{Booked: status.Booked}
	if status.Appointment != nil {
		a := status.Appointment
		resp.Appointment = &appointmentResponse{
			ID:       a.ID.String(),
			Date:     a.Date,
			Time:     a.Time,
			BarberID: a.BarberID.String(),
			ClientID: a.ClientID.String(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) occupiedTimes(w http.ResponseWriter, r *http.Request) {
	h.times(w, r, h.bookings.OccupiedTimes)
}

func (h *handler) availableTimes(w http.ResponseWriter, r *http.Request) {
	h.times(w, r, h.bookings.AvailableTimes)
}

func (h *handler) times(w http.ResponseWriter, r *http.Request, fetch func(ctx context.Context, barberID uuid.UUID, date string) ([]string, error)) {
	q := r.URL.Query()
	barberID, ok := optionalUUID(q.Get("barber_id"))
	if !ok {
		badRequest(w, "invalid_request", "barber_id must be a UUID")
		return
	}
	date := q.Get("date")

	times, err := fetch(r.Context(), barberID, date)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	h.log.Debug("times served", slog.String("barber_id", barberID.String()), slog.String("date", date), slog.Int("count", len(times)))
	writeJSON(w, http.StatusOK, timesResponse{BarberID: barberID.String(), Date: date, Times: times})
}

func viewResponse(v domain.AppointmentView) appointmentResponse {
	out := appointmentResponse{
		ID:          v.ID.String(),
		Date:        v.Date,
		Time:        v.Time,
		BarberID:    v.BarberID.String(),
		BarberName:  v.BarberName,
		ClientName:  v.ClientName,
		ClientPhone: v.ClientPhone,
		Own:         v.Own,
	}
	if v.ClientID != uuid.Nil {
		out.ClientID = v.ClientID.String()
	}
	return out
}

// optionalUUID parses s, treating the empty string as uuid.Nil so that the
// service can report the missing field itself.
func optionalUUID(s string) (uuid.UUID, bool) {
	if s == "" {
		return uuid.Nil, true
	}
	id, err := uuid.Parse(s)
	return id, err == nil
}
