package authhandler

import (
	"encoding/json"
	"errors"
	"net/http"

	"personnel/internal/domain/audit"
	"personnel/internal/domain/auth"
	"personnel/internal/platform/metrics"
	"personnel/internal/transport/http/api"
	"personnel/internal/transport/http/middleware"
	"personnel/internal/transport/http/shared"
)

type Handler struct {
	Service *auth.Service
	Audit   audit.Recorder
	Metrics *metrics.Collector
}

func NewHandler(service *auth.Service, recorder audit.Recorder, collector *metrics.Collector) *Handler {
	return &Handler{Service: service, Audit: recorder, Metrics: collector}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// HandleLogin answers unknown users and wrong passwords with the same body.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload loginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	session, err := h.Service.Login(r.Context(), payload.Username, payload.Password)
	if err != nil {
		if h.Metrics != nil && errors.Is(err, auth.ErrInvalidCredentials) {
			h.Metrics.LoginAttempt(false)
		}
		api.FailError(w, err, reqID)
		return
	}
	if h.Metrics != nil {
		h.Metrics.LoginAttempt(true)
	}

	shared.RecordAudit(r, h.Audit, audit.Entry{
		Actor:      session.User.Username,
		Action:     audit.ActionLogin,
		EntityType: audit.EntityUser,
		EntityID:   session.User.Username,
	})
	api.Success(w, session, reqID)
}

func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	id, ok := middleware.GetIdentity(r.Context())
	if !ok {
		api.FailError(w, auth.ErrMissingToken, reqID)
		return
	}

	var payload changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}
	v := shared.NewValidator()
	v.Required("currentPassword", payload.CurrentPassword, "is required")
	v.Required("newPassword", payload.NewPassword, "is required")
	if v.Reject(w, reqID) {
		return
	}

	if err := h.Service.ChangePassword(r.Context(), id.Username, payload.CurrentPassword, payload.NewPassword); err != nil {
		api.FailError(w, err, reqID)
		return
	}

	shared.RecordAudit(r, h.Audit, audit.Entry{
		Action:     audit.ActionPasswordChange,
		EntityType: audit.EntityUser,
		EntityID:   id.Username,
	})
	api.Success(w, map[string]string{"status": "password_changed"}, reqID)
}
