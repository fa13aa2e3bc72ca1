package systemhandler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"personnel/internal/domain/auth"
	"personnel/internal/platform/metrics"
	"personnel/internal/transport/http/api"
	"personnel/internal/transport/http/middleware"
)

// Pinger reports database reachability for /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Module struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Enabled  bool     `json:"enabled"`
	SubItems []Module `json:"subItems"`
}

// Modules is the navigation shown to every signed-in user.
var Modules = []Module{
	{ID: "dashboard", Name: "Dashboard", Enabled: true, SubItems: []Module{}},
	{ID: "unternehmen", Name: "Unternehmen", Enabled: true, SubItems: []Module{
		{ID: "mitarbeiter", Name: "Mitarbeiter", Enabled: true, SubItems: []Module{}},
	}},
}

type Handler struct {
	DB      Pinger
	Metrics *metrics.Collector
	now     func() time.Time
}

func NewHandler(db Pinger, collector *metrics.Collector) *Handler {
	return &Handler{DB: db, Metrics: collector, now: func() time.Time { return time.Now().UTC() }}
}

// RegisterProbes mounts the unauthenticated health endpoints.
func (h *Handler) RegisterProbes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", h.handleReady)
}

// RegisterRoutes mounts the authenticated endpoints under /api.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequirePermission(auth.PermModulesRead)).Get("/modules", h.handleModules)
	if h.Metrics != nil {
		r.With(middleware.RequirePermission(auth.PermSystemMetrics)).Get("/metrics", h.handleMetrics)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	api.Success(w, map[string]string{
		"status":    "healthy",
		"timestamp": h.now().Format(time.RFC3339),
	}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (h *Handler) handleModules(w http.ResponseWriter, r *http.Request) {
	api.Success(w, Modules, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	api.Success(w, h.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
}
