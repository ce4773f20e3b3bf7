package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"barbershop/backend/internal/domain"
	"barbershop/backend/internal/service/accounts"
	"barbershop/backend/internal/service/barbers"
	"barbershop/backend/internal/service/booking"
	"barbershop/backend/internal/store"
)

type errorBody struct {
	Error     string         `json:"error"`
	Message   string         `json:"message,omitempty"`
	Kind      string         `json:"kind,omitempty"`
	Conflicts []slotResponse `json:"conflicts,omitempty"`
	// Existing is the appointment holding a single occupied slot. It never
	// carries client data.
	Existing *existingAppointment `json:"existing_appointment,omitempty"`
}

type existingAppointment struct {
	ID       string `json:"id"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	BarberID string `json:"barber_id"`
}

type slotResponse struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, code, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: code, Message: msg})
}

// writeError maps service and store errors to responses. Expected business
// outcomes are logged at info; anything unrecognised is an internal error.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	var (
		bookingVErr  *booking.ValidationError
		accountsVErr *accounts.ValidationError
		barbersVErr  *barbers.ValidationError
		occupied     *booking.SlotOccupiedError
		batch        *booking.BatchConflictError
	)

	switch {
	case errors.As(err, &bookingVErr):
		badRequest(w, string(bookingVErr.Reason), bookingVErr.Error())
	case errors.As(err, &accountsVErr):
		badRequest(w, "invalid_request", accountsVErr.Error())
	case errors.As(err, &barbersVErr):
		badRequest(w, "invalid_request", barbersVErr.Error())
	case errors.As(err, &occupied):
		log.Info("slot occupied", slog.String("date", occupied.Slot.Date), slog.String("time", occupied.Slot.Time))
		body := errorBody{
			Error:     "slot_occupied",
			Kind:      "single",
			Message:   occupied.Error(),
			Conflicts: []slotResponse{{Date: occupied.Slot.Date, Time: occupied.Slot.Time}},
		}
		if a := occupied.Existing; a != nil {
			body.Existing = &existingAppointment{
				ID:       a.ID.String(),
				Date:     a.Date,
				Time:     a.Time,
				BarberID: a.BarberID.String(),
			}
		}
		writeJSON(w, http.StatusConflict, body)
	case errors.As(err, &batch):
		log.Info("recurring slots occupied", slog.Int("conflicts", len(batch.Conflicts)))
		writeJSON(w, http.StatusConflict, errorBody{
			Error:     "slot_occupied",
			Kind:      "batch",
			Message:   batch.Error(),
			Conflicts: toSlotResponses(batch.Conflicts),
		})
	case errors.Is(err, store.ErrHasAppointments):
		log.Info("barber delete blocked", slog.Any("err", err))
		writeJSON(w, http.StatusConflict, errorBody{Error: "barber_has_appointments", Message: "barber still has appointments"})
	case errors.Is(err, store.ErrDuplicate):
		writeJSON(w, http.StatusConflict, errorBody{Error: "already_exists", Message: "resource already exists"})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not_found", Message: "resource not found"})
	case errors.Is(err, booking.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Message: "operation not allowed"})
	case errors.Is(err, accounts.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid_credentials", Message: err.Error()})
	default:
		log.Error("request failed", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal_error", Message: "internal error"})
	}
}

func toSlotResponses(in []domain.SlotTime) []slotResponse {
	out := make([]slotResponse, 0, len(in))
	for _, s := range in {
		out = append(out, slotResponse{Date: s.Date, Time: s.Time})
	}
	return out
}
