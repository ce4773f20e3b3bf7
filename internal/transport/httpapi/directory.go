package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"barbershop/backend/internal/domain"
	"barbershop/backend/internal/service/accounts"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
	User      userResponse `json:"user"`
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
}

type barberRequest struct {
	Name string `json:"name"`
}

type barberResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid_request", "request body must be a JSON object")
		return
	}
	u, err := h.accounts.Register(r.Context(), accounts.RegisterInput{
		Username: req.Username,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(u))
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid_request", "request body must be a JSON object")
		return
	}
	s, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt.UTC().Format(time.RFC3339),
		User:      toUserResponse(s.User),
	})
}

func (h *handler) listClients(w http.ResponseWriter, r *http.Request) {
	users, err := h.accounts.ListClients(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) listBarbers(w http.ResponseWriter, r *http.Request) {
	rows, err := h.barbers.List(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	out := make([]barberResponse, 0, len(rows))
	for _, b := range rows {
		out = append(out, toBarberResponse(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) createBarber(w http.ResponseWriter, r *http.Request) {
	var req barberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid_request", "request body must be a JSON object")
		return
	}
	b, err := h.barbers.Create(r.Context(), req.Name)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBarberResponse(b))
}

func (h *handler) renameBarber(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid_request", "barber id must be a UUID")
		return
	}
	var req barberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid_request", "request body must be a JSON object")
		return
	}
	b, err := h.barbers.Rename(r.Context(), id, req.Name)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toBarberResponse(b))
}

func (h *handler) deleteBarber(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		badRequest(w, "invalid_request", "barber id must be a UUID")
		return
	}
	if err := h.barbers.Delete(r.Context(), id); err != nil {
		writeError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:       u.ID.String(),
		Username: u.Username,
		Role:     string(u.Role),
		Name:     u.Name,
		Phone:    u.Phone,
	}
}

func toBarberResponse(b domain.Barber) barberResponse {
	return barberResponse{ID: b.ID.String(), Name: b.Name}
}
