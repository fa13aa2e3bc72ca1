package userhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"personnel/internal/apperr"
	"personnel/internal/domain/audit"
	"personnel/internal/domain/auth"
	"personnel/internal/domain/directory"
	"personnel/internal/domain/notifications"
	"personnel/internal/domain/reports"
	"personnel/internal/platform/jobs"
	"personnel/internal/transport/http/api"
	"personnel/internal/transport/http/middleware"
	"personnel/internal/transport/http/shared"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	Directory     *directory.Service
	Auth          *auth.Service
	Audit         audit.Recorder
	Jobs          *jobs.Service
	Notifications *notifications.Service
	Idempotency   middleware.IdempotencyRepository
	now           func() time.Time
}

func NewHandler(dir *directory.Service, authService *auth.Service, recorder audit.Recorder, jobService *jobs.Service, notifier *notifications.Service, idem middleware.IdempotencyRepository) *Handler {
	return &Handler{
		Directory:     dir,
		Auth:          authService,
		Audit:         recorder,
		Jobs:          jobService,
		Notifications: notifier,
		Idempotency:   idem,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// RegisterRoutes mounts the directory under /users. Authentication is applied
// by the caller; every route except /me and /next-employee-id needs an
// admin permission.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Get("/me", h.handleMe)
		r.Get("/next-employee-id", h.handleNextEmployeeID)

		r.With(middleware.RequirePermission(auth.PermUsersRead)).Get("/", h.handleList)
		r.With(middleware.RequirePermission(auth.PermUsersExport)).Get("/export.xlsx", h.handleExport)
		r.With(middleware.RequirePermission(auth.PermUsersWrite), middleware.Idempotency(h.Idempotency)).Post("/", h.handleCreate)
		r.With(middleware.RequirePermission(auth.PermUsersWrite), middleware.Idempotency(h.Idempotency)).Post("/assign-employee-ids", h.handleAssignEmployeeIDs)

		r.With(middleware.RequirePermission(auth.PermUsersRead)).Get("/{id}", h.handleGet)
		r.With(middleware.RequirePermission(auth.PermUsersExport)).Get("/{id}/sheet.pdf", h.handleSheet)
		r.With(middleware.RequirePermission(auth.PermUsersWrite)).Put("/{id}", h.handleUpdate)
		r.With(middleware.RequirePermission(auth.PermUsersWrite)).Delete("/{id}", h.handleDelete)
		r.With(middleware.RequirePermission(auth.PermUsersPassword)).Post("/{id}/reset-password", h.handleResetPassword)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	excludeProtected, _ := strconv.ParseBool(r.URL.Query().Get("excludeProtected"))
	users, err := h.Directory.List(r.Context(), excludeProtected)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(len(users)))
	api.Success(w, directory.Profiles(users), reqID)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	id, ok := middleware.GetIdentity(r.Context())
	if !ok {
		api.FailError(w, auth.ErrMissingToken, reqID)
		return
	}
	user, err := h.Directory.FindByUsername(r.Context(), id.Username)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	api.Success(w, user.Profile(), reqID)
}

func (h *Handler) handleNextEmployeeID(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	next, err := h.Directory.NextEmployeeID(r.Context())
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	api.Success(w, map[string]string{"nextEmployeeId": next}, reqID)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, err := h.Directory.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	api.Success(w, user.Profile(), reqID)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload userPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	v := shared.NewValidator()
	in := payload.newUser(v)
	if v.Reject(w, reqID) {
		return
	}

	user, err := h.Directory.Create(r.Context(), in)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}

	shared.RecordAudit(r, h.Audit, audit.Entry{
		Action:     audit.ActionUserCreate,
		EntityType: audit.EntityUser,
		EntityID:   user.ID,
		After:      auditSnapshot(*user),
	})
	api.Created(w, user.Profile(), reqID)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")

	var payload userPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}
	v := shared.NewValidator()
	patch := payload.patch(v)
	if v.Reject(w, reqID) {
		return
	}

	before, err := h.Directory.FindByID(r.Context(), id)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	user, err := h.Directory.Update(r.Context(), id, patch)
	if err != nil {
		// A taken employee id is a client input error on this route.
		if errors.Is(err, directory.ErrEmployeeIDTaken) {
			api.FailErrorStatus(w, http.StatusBadRequest, err, reqID)
			return
		}
		api.FailError(w, err, reqID)
		return
	}

	shared.RecordAudit(r, h.Audit, audit.Entry{
		Action:     audit.ActionUserUpdate,
		EntityType: audit.EntityUser,
		EntityID:   user.ID,
		Before:     auditSnapshot(*before),
		After:      auditSnapshot(*user),
	})
	api.Success(w, user.Profile(), reqID)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, err := h.Directory.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}

	shared.RecordAudit(r, h.Audit, audit.Entry{
		Action:     audit.ActionUserDelete,
		EntityType: audit.EntityUser,
		EntityID:   user.ID,
		Before:     auditSnapshot(*user),
	})
	api.Success(w, map[string]string{"id": user.ID, "username": user.Username}, reqID)
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	_, user, err := h.Auth.ResetPassword(r.Context(), chi.URLParam(r, "id"), h.resetDelivery())
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}

	shared.RecordAudit(r, h.Audit, audit.Entry{
		Action:     audit.ActionPasswordReset,
		EntityType: audit.EntityUser,
		EntityID:   user.ID,
	})
	api.Success(w, map[string]string{"id": user.ID, "delivery": "sent"}, reqID)
}

// resetDelivery mails the new password while the request waits, recording the
// attempt as a job run. It is nil when no mail channel exists.
func (h *Handler) resetDelivery() auth.Delivery {
	if !h.Notifications.Available() {
		return nil
	}
	return func(ctx context.Context, user *directory.User, password string) error {
		recipient := notifications.Recipient{Username: user.Username, FullName: user.FullName(), Email: user.Email}
		send := func(ctx context.Context) (any, error) {
			if err := h.Notifications.SendPasswordReset(ctx, recipient, password); err != nil {
				return nil, err
			}
			return map[string]string{"username": recipient.Username}, nil
		}
		var err error
		if h.Jobs != nil {
			_, err = h.Jobs.RunNow(ctx, jobs.JobPasswordResetMail, send)
		} else {
			_, err = send(ctx)
		}
		if err != nil {
			slog.Warn("password reset delivery failed", "username", user.Username, "err", err)
		}
		return err
	}
}

func (h *Handler) handleAssignEmployeeIDs(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	assigned, err := h.Directory.AssignMissingEmployeeIDs(r.Context())
	if len(assigned) > 0 {
		shared.RecordAudit(r, h.Audit, audit.Entry{
			Action:     audit.ActionEmployeeIDsAssign,
			EntityType: audit.EntityDirectory,
			After:      assigned,
		})
	}
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}
	api.Success(w, map[string]any{"updated": len(assigned), "assignments": assigned}, reqID)
}

func (h *Handler) handleSheet(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, err := h.Directory.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}

	var buf bytes.Buffer
	if err := reports.EmployeeSheet(&buf, *user, h.now()); err != nil {
		api.FailError(w, apperr.Internal(err), reqID)
		return
	}
	name := user.EmployeeID
	if name == "" {
		name = user.Username
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=personalbogen-%s.pdf", name))
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Warn("sheet write failed", "err", err)
	}
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	users, err := h.Directory.List(r.Context(), false)
	if err != nil {
		api.FailError(w, err, reqID)
		return
	}

	var buf bytes.Buffer
	if err := reports.DirectoryWorkbook(&buf, users); err != nil {
		api.FailError(w, apperr.Internal(err), reqID)
		return
	}

	shared.RecordAudit(r, h.Audit, audit.Entry{
		Action:     audit.ActionDirectoryExport,
		EntityType: audit.EntityDirectory,
		After:      map[string]int{"users": len(users)},
	})
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", "attachment; filename=mitarbeiter.xlsx")
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Warn("export write failed", "err", err)
	}
}
