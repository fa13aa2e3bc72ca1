package systemhandler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"personnel/internal/domain/auth"
	"personnel/internal/domain/directory"
	"personnel/internal/platform/metrics"
	"personnel/internal/transport/http/api"
	"personnel/internal/transport/http/middleware"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

func withRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(middleware.WithIdentity(r.Context(), auth.Identity{Username: "anna", Roles: roles})))
		})
	}
}

func TestProbes(t *testing.T) {
	tests := []struct {
		name   string
		pinger Pinger
		path   string
		status int
	}{
		{name: "health", pinger: stubPinger{}, path: "/health", status: http.StatusOK},
		{name: "liveness", pinger: stubPinger{err: errors.New("down")}, path: "/healthz", status: http.StatusOK},
		{name: "ready", pinger: stubPinger{}, path: "/readyz", status: http.StatusOK},
		{name: "not ready", pinger: stubPinger{err: errors.New("down")}, path: "/readyz", status: http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHandler(tc.pinger, nil).RegisterProbes(r)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
		})
	}
}

func TestModulesForEmployees(t *testing.T) {
	r := chi.NewRouter()
	r.Use(withRoles(directory.RoleEmployee))
	NewHandler(nil, metrics.New()).RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/modules", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var modules []Module
	if err := json.Unmarshal(rec.Body.Bytes(), &api.Envelope{Data: &modules}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(modules) != 2 || modules[1].SubItems[0].ID != "mitarbeiter" {
		t.Fatalf("unexpected modules %+v", modules)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected metrics to be admin only, got %d", rec.Code)
	}
}
