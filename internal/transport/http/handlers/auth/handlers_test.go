package authhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"personnel/internal/domain/audit"
	"personnel/internal/domain/auth"
	"personnel/internal/domain/directory"
	"personnel/internal/domain/directory/directorytest"
	"personnel/internal/platform/metrics"
	"personnel/internal/transport/http/api"
	"personnel/internal/transport/http/middleware"
)

type memoryAudit struct {
	entries []audit.Entry
}

func (m *memoryAudit) Record(_ context.Context, entry audit.Entry) error {
	m.entries = append(m.entries, entry)
	return nil
}

type fixture struct {
	handler *Handler
	dir     *directory.Service
	tokens  *auth.Tokens
	audit   *memoryAudit
	metrics *metrics.Collector
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	creds := auth.NewCredentials(bcrypt.MinCost)
	dir := directory.NewService(directorytest.NewStore(), creds)
	if _, err := dir.Create(context.Background(), directory.NewUser{
		Username:  "anna",
		Password:  "Secret123",
		Email:     "anna@example.com",
		FirstName: "Anna",
		LastName:  "Schmidt",
		Roles:     []string{directory.RoleManager},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	tokens := auth.NewTokens("login-secret", time.Hour)
	recorder := &memoryAudit{}
	collector := metrics.New()
	return fixture{
		handler: NewHandler(auth.NewService(dir, creds, tokens), recorder, collector),
		dir:     dir,
		tokens:  tokens,
		audit:   recorder,
		metrics: collector,
	}
}

func login(h *Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.HandleLogin(rec, req)
	return rec
}

func TestLoginIssuesToken(t *testing.T) {
	f := newFixture(t)
	rec := login(f.handler, `{"username":"anna","password":"Secret123"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var session auth.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &api.Envelope{Data: &session}); err != nil {
		t.Fatalf("decode: %v", err)
	}
	claims, err := f.tokens.Parse(session.Token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Username != "anna" || len(claims.Roles) != 1 || claims.Roles[0] != directory.RoleManager {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if session.User.Username != "anna" {
		t.Fatalf("unexpected session user %+v", session.User)
	}
	if len(f.audit.entries) != 1 || f.audit.entries[0].Action != audit.ActionLogin || f.audit.entries[0].Actor != "anna" {
		t.Fatalf("expected login audit entry, got %+v", f.audit.entries)
	}
	if got := f.metrics.Snapshot()["loginSuccessTotal"]; got != uint64(1) {
		t.Fatalf("expected one successful login, got %v", got)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	wrongPassword := login(f.handler, `{"username":"anna","password":"nope"}`)
	unknownUser := login(f.handler, `{"username":"nobody","password":"nope"}`)

	if wrongPassword.Code != http.StatusUnauthorized || unknownUser.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", wrongPassword.Code, unknownUser.Code)
	}
	if !bytes.Equal(wrongPassword.Body.Bytes(), unknownUser.Body.Bytes()) {
		t.Fatalf("bodies differ:\n%s\n%s", wrongPassword.Body.String(), unknownUser.Body.String())
	}
	if got := f.metrics.Snapshot()["loginFailureTotal"]; got != uint64(2) {
		t.Fatalf("expected two failed logins, got %v", got)
	}
	if len(f.audit.entries) != 0 {
		t.Fatal("failed logins must not be audited as logins")
	}
}

func TestLoginBadRequests(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "malformed", body: `{"username":`, status: http.StatusBadRequest},
		{name: "missing password", body: `{"username":"anna"}`, status: http.StatusBadRequest},
		{name: "blank username", body: `{"username":"   ","password":"x"}`, status: http.StatusBadRequest},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if rec := login(f.handler, tc.body); rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
		})
	}
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/change-password", bytes.NewBufferString(body))
		req = req.WithContext(middleware.WithIdentity(req.Context(), auth.Identity{Username: "anna", Roles: []string{directory.RoleManager}}))
		rec := httptest.NewRecorder()
		f.handler.HandleChangePassword(rec, req)
		return rec
	}

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{name: "missing fields", body: `{}`, status: http.StatusBadRequest},
		{name: "wrong current", body: `{"currentPassword":"bad","newPassword":"Better123"}`, status: http.StatusBadRequest},
		{name: "weak new", body: `{"currentPassword":"Secret123","newPassword":"weak"}`, status: http.StatusBadRequest},
		{name: "ok", body: `{"currentPassword":"Secret123","newPassword":"Better123"}`, status: http.StatusOK},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if rec := send(tc.body); rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
		})
	}

	if rec := login(f.handler, `{"username":"anna","password":"Better123"}`); rec.Code != http.StatusOK {
		t.Fatalf("expected login with new password, got %d", rec.Code)
	}
}
