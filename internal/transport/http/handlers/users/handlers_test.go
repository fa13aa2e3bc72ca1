package userhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"personnel/internal/domain/audit"
	"personnel/internal/domain/auth"
	"personnel/internal/domain/directory"
	"personnel/internal/domain/directory/directorytest"
	"personnel/internal/domain/notifications"
	"personnel/internal/platform/jobs"
	"personnel/internal/transport/http/api"
	"personnel/internal/transport/http/middleware"
)

type memoryAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *memoryAudit) Record(_ context.Context, entry audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryAudit) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

type recordingMailer struct {
	mu   sync.Mutex
	to   []string
	body []string
	err  error
}

func (m *recordingMailer) Send(_ context.Context, _, to, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.to = append(m.to, to)
	m.body = append(m.body, body)
	return m.err
}

type env struct {
	router http.Handler
	dir    *directory.Service
	store  *directorytest.Store
	tokens *auth.Tokens
	audit  *memoryAudit
	mailer *recordingMailer
	admin  *directory.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	mailer := &recordingMailer{}
	return newEnvWithNotifier(t, mailer, notifications.New(mailer, "hr@example.com"))
}

func newEnvWithNotifier(t *testing.T, mailer *recordingMailer, notifier *notifications.Service) *env {
	t.Helper()
	creds := auth.NewCredentials(bcrypt.MinCost)
	store := directorytest.NewStore()
	dir := directory.NewService(store, creds)
	tokens := auth.NewTokens("handler-secret", time.Hour)
	recorder := &memoryAudit{}
	jobService := jobs.New(nil)

	h := NewHandler(dir, auth.NewService(dir, creds, tokens), recorder, jobService, notifier, nil)
	router := chi.NewRouter()
	router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Authenticate(auth.NewGate(tokens)))
		h.RegisterRoutes(r)
	})

	admin, created, err := dir.EnsureProtectedAdmin(context.Background(), directory.NewUser{
		Password:  "Admin1234",
		Email:     "admin@example.com",
		FirstName: "System",
		LastName:  "Admin",
	})
	if err != nil || !created {
		t.Fatalf("seed admin: %v %v", created, err)
	}

	return &env{router: router, dir: dir, store: store, tokens: tokens, audit: recorder, mailer: mailer, admin: admin}
}

func (e *env) token(t *testing.T, username string, roles ...string) string {
	t.Helper()
	token, _, err := e.tokens.Generate(username, roles)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return token
}

func (e *env) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data any) api.Envelope {
	t.Helper()
	env := api.Envelope{Data: data}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return env
}

const annaBody = `{"username":"anna","password":"Secret123","email":"Anna@Example.com","firstName":"Anna","lastName":"Schmidt","position":"Engineer","iban":"DE89 3704 0044 0532 0130 00","salary":4200}`

func TestCreateUserAllocatesAndStripsPassword(t *testing.T) {
	e := newEnv(t)
	adminToken := e.token(t, "admin", directory.RoleAdmin)

	rec := e.do(t, http.MethodPost, "/api/users", adminToken, annaBody)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "Secret123") || strings.Contains(strings.ToLower(rec.Body.String()), "password") {
		t.Fatalf("password leaked in response: %s", rec.Body.String())
	}

	var profile directory.Profile
	decode(t, rec, &profile)
	// The protected admin holds 00001.
	if profile.EmployeeID != "00002" {
		t.Fatalf("expected employee id 00002, got %q", profile.EmployeeID)
	}
	if profile.Email != "anna@example.com" || profile.FullName != "Anna Schmidt" {
		t.Fatalf("unexpected profile %+v", profile)
	}

	actions := e.audit.actions()
	if len(actions) != 1 || actions[0] != audit.ActionUserCreate {
		t.Fatalf("expected create audit entry, got %v", actions)
	}
	snapshot, ok := e.audit.entries[0].After.(directory.Profile)
	if !ok {
		t.Fatalf("unexpected audit snapshot type %T", e.audit.entries[0].After)
	}
	if snapshot.Salary != nil || snapshot.IBAN != "******************3000" {
		t.Fatalf("expected masked financial data, got salary=%v iban=%q", snapshot.Salary, snapshot.IBAN)
	}
}

func TestCreateUserErrors(t *testing.T) {
	e := newEnv(t)
	adminToken := e.token(t, "admin", directory.RoleAdmin)
	if rec := e.do(t, http.MethodPost, "/api/users", adminToken, annaBody); rec.Code != http.StatusCreated {
		t.Fatalf("seed anna: %d", rec.Code)
	}

	tests := []struct {
		name   string
		token  string
		body   string
		status int
		code   string
	}{
		{name: "no token", token: "", body: annaBody, status: http.StatusUnauthorized, code: "missing_token"},
		{name: "not admin", token: e.token(t, "ben", directory.RoleEmployee), body: annaBody, status: http.StatusForbidden, code: "forbidden"},
		{name: "duplicate username", token: adminToken, body: annaBody, status: http.StatusConflict, code: "username_taken"},
		{name: "duplicate email", token: adminToken, body: `{"username":"anna2","password":"Secret123","email":"anna@example.com","firstName":"A","lastName":"S"}`, status: http.StatusConflict, code: "email_taken"},
		{name: "reserved username", token: adminToken, body: `{"username":"admin","password":"Secret123","email":"x@example.com","firstName":"A","lastName":"S"}`, status: http.StatusConflict, code: "username_reserved"},
		{name: "missing fields", token: adminToken, body: `{"username":"carl"}`, status: http.StatusBadRequest, code: "missing_fields"},
		{name: "taken employee id", token: adminToken, body: `{"username":"dora","password":"Secret123","email":"dora@example.com","firstName":"D","lastName":"K","employeeId":"00002"}`, status: http.StatusConflict, code: "employee_id_taken"},
		{name: "bad date", token: adminToken, body: `{"username":"eva","password":"Secret123","email":"eva@example.com","firstName":"E","lastName":"M","birthDate":"31.12.1990"}`, status: http.StatusBadRequest, code: "validation_error"},
		{name: "malformed json", token: adminToken, body: `{`, status: http.StatusBadRequest, code: "invalid_payload"},
		{name: "unknown role", token: adminToken, body: `{"username":"fred","password":"Secret123","email":"fred@example.com","firstName":"F","lastName":"B","roles":["employee","Admin"]}`, status: http.StatusBadRequest, code: "validation_error"},
		{name: "unknown status", token: adminToken, body: `{"username":"gina","password":"Secret123","email":"gina@example.com","firstName":"G","lastName":"H","status":"retired"}`, status: http.StatusBadRequest, code: "validation_error"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/api/users", tc.token, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			env := decode(t, rec, nil)
			if env.Error == nil || env.Error.Code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, rec.Body.String())
			}
		})
	}
}

func TestEmployeeIDRecycledAfterDelete(t *testing.T) {
	e := newEnv(t)
	adminToken := e.token(t, "admin", directory.RoleAdmin)

	var anna directory.Profile
	decode(t, e.do(t, http.MethodPost, "/api/users", adminToken, annaBody), &anna)

	if rec := e.do(t, http.MethodDelete, "/api/users/"+anna.ID, adminToken, ""); rec.Code != http.StatusOK {
		t.Fatalf("delete: %d %s", rec.Code, rec.Body.String())
	}

	var ben directory.Profile
	rec := e.do(t, http.MethodPost, "/api/users", adminToken, `{"username":"ben","password":"Secret123","email":"ben@example.com","firstName":"Ben","lastName":"Meyer"}`)
	decode(t, rec, &ben)
	if ben.EmployeeID != anna.EmployeeID {
		t.Fatalf("expected recycled id %s, got %s", anna.EmployeeID, ben.EmployeeID)
	}
}

func TestUpdateUser(t *testing.T) {
	e := newEnv(t)
	adminToken := e.token(t, "admin", directory.RoleAdmin)
	var anna directory.Profile
	decode(t, e.do(t, http.MethodPost, "/api/users", adminToken, annaBody), &anna)
	before, err := e.store.FindByID(context.Background(), anna.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}

	rec := e.do(t, http.MethodPut, "/api/users/"+anna.ID, adminToken, `{"position":"Lead","password":"Hacked999","username":"mallory","address":{"city":"Berlin"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}
	var updated directory.Profile
	decode(t, rec, &updated)
	if updated.Position != "Lead" || updated.Address.City != "Berlin" {
		t.Fatalf("patch not applied: %+v", updated)
	}
	if updated.Username != "anna" || updated.EmployeeID != anna.EmployeeID || updated.FirstName != "Anna" {
		t.Fatalf("untouched fields changed: %+v", updated)
	}
	after, err := e.store.FindByID(context.Background(), anna.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if after.PasswordHash != before.PasswordHash {
		t.Fatal("password hash must not change through update")
	}

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{name: "employee id conflict is 400", path: "/api/users/" + anna.ID, body: `{"employeeId":"00001"}`, status: http.StatusBadRequest, code: "employee_id_taken"},
		{name: "bad employee id format", path: "/api/users/" + anna.ID, body: `{"employeeId":"12"}`, status: http.StatusBadRequest, code: "invalid_employee_id"},
		{name: "email conflict", path: "/api/users/" + anna.ID, body: `{"email":"admin@example.com"}`, status: http.StatusConflict, code: "email_taken"},
		{name: "unknown status", path: "/api/users/" + anna.ID, body: `{"status":"vacation"}`, status: http.StatusBadRequest, code: "validation_error"},
		{name: "unknown role", path: "/api/users/" + anna.ID, body: `{"roles":["root"]}`, status: http.StatusBadRequest, code: "validation_error"},
		{name: "unknown id", path: "/api/users/7d1f1c2e-0b5e-4d55-9a57-3c3f5e1a0b11", body: `{"position":"x"}`, status: http.StatusNotFound, code: "user_not_found"},
		{name: "garbage id", path: "/api/users/not-a-uuid", body: `{"position":"x"}`, status: http.StatusNotFound, code: "user_not_found"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPut, tc.path, adminToken, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if env := decode(t, rec, nil); env.Error == nil || env.Error.Code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, rec.Body.String())
			}
		})
	}
}

func TestDeleteProtectedAdminAlwaysFails(t *testing.T) {
	e := newEnv(t)
	// A second administrator is refused exactly like the protected one.
	for _, username := range []string{"admin", "root"} {
		rec := e.do(t, http.MethodDelete, "/api/users/"+e.admin.ID, e.token(t, username, directory.RoleAdmin), "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", username, rec.Code)
		}
		if env := decode(t, rec, nil); env.Error.Code != "protected_account" {
			t.Fatalf("unexpected error %s", rec.Body.String())
		}
	}
	if e.store.Len() != 1 {
		t.Fatal("protected account must still exist")
	}
}

func TestReadRoutesForEmployees(t *testing.T) {
	e := newEnv(t)
	adminToken := e.token(t, "admin", directory.RoleAdmin)
	decode(t, e.do(t, http.MethodPost, "/api/users", adminToken, annaBody), nil)
	annaToken := e.token(t, "anna", directory.RoleEmployee)

	var next map[string]string
	rec := e.do(t, http.MethodGet, "/api/users/next-employee-id", annaToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("next id: %d", rec.Code)
	}
	decode(t, rec, &next)
	if next["nextEmployeeId"] != "00003" {
		t.Fatalf("expected 00003, got %v", next)
	}

	var me directory.Profile
	decode(t, e.do(t, http.MethodGet, "/api/users/me", annaToken, ""), &me)
	if me.Username != "anna" {
		t.Fatalf("unexpected me %+v", me)
	}

	if rec := e.do(t, http.MethodGet, "/api/users", annaToken, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("expected list to be admin only, got %d", rec.Code)
	}
	if rec := e.do(t, http.MethodGet, "/api/users/"+me.ID, annaToken, ""); rec.Code != http.StatusForbidden {
		t.Fatalf("expected get by id to be admin only, got %d", rec.Code)
	}
}

func TestListUsers(t *testing.T) {
	e := newEnv(t)
	adminToken := e.token(t, "admin", directory.RoleAdmin)
	decode(t, e.do(t, http.MethodPost, "/api/users", adminToken, annaBody), nil)

	var all []directory.Profile
	rec := e.do(t, http.MethodGet, "/api/users", adminToken, "")
	decode(t, rec, &all)
	if len(all) != 2 || rec.Header().Get("X-Total-Count") != "2" {
		t.Fatalf("expected 2 users, got %d", len(all))
	}

	var visible []directory.Profile
	decode(t, e.do(t, http.MethodGet, "/api/users?excludeProtected=true", adminToken, ""), &visible)
	if len(visible) != 1 || visible[0].Username != "anna" {
		t.Fatalf("expected only anna, got %+v", visible)
	}
}

func TestResetPasswordMailsNewCredential(t *testing.T) {
	e := newEnv(t)
	adminToken := e.token(t, "admin", directory.RoleAdmin)
	var anna directory.Profile
	decode(t, e.do(t, http.MethodPost, "/api/users", adminToken, annaBody), &anna)

	rec := e.do(t, http.MethodPost, "/api/users/"+anna.ID+"/reset-password", adminToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reset: %d %s", rec.Code, rec.Body.String())
	}
	var result map[string]string
	decode(t, rec, &result)
	if result["delivery"] != "sent" || result["id"] != anna.ID {
		t.Fatalf("unexpected result %v", result)
	}
	if _, ok := result["password"]; ok {
		t.Fatal("plaintext must not be returned")
	}
	if len(e.mailer.to) != 1 || e.mailer.to[0] != "anna@example.com" {
		t.Fatalf("unexpected recipients %v", e.mailer.to)
	}
	if !strings.Contains(e.mailer.body[0], "Anna Schmidt") {
		t.Fatalf("expected greeting by full name, got %q", e.mailer.body[0])
	}
	if actions := e.audit.actions(); actions[len(actions)-1] != audit.ActionPasswordReset {
		t.Fatalf("expected reset audit entry, got %v", actions)
	}

	if rec := e.do(t, http.MethodPost, "/api/users/7d1f1c2e-0b5e-4d55-9a57-3c3f5e1a0b11/reset-password", adminToken, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d", rec.Code)
	}
}

func TestResetPasswordKeepsCredentialWhenUndeliverable(t *testing.T) {
	cases := []struct {
		name     string
		notifier func(*recordingMailer) *notifications.Service
		mailErr  error
		wantCode string
		wantSent int
	}{
		{
			name:     "production without email",
			notifier: func(*recordingMailer) *notifications.Service { return notifications.New(nil, "hr@example.com") },
			wantCode: "reset_delivery_unavailable",
		},
		{
			name:     "smtp failure",
			notifier: func(m *recordingMailer) *notifications.Service { return notifications.New(m, "hr@example.com") },
			mailErr:  errors.New("421 service not available"),
			wantCode: "reset_delivery_failed",
			wantSent: 1,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			mailer := &recordingMailer{err: tc.mailErr}
			e := newEnvWithNotifier(t, mailer, tc.notifier(mailer))
			adminToken := e.token(t, "admin", directory.RoleAdmin)
			var anna directory.Profile
			decode(t, e.do(t, http.MethodPost, "/api/users", adminToken, annaBody), &anna)
			before, err := e.dir.FindByID(context.Background(), anna.ID)
			if err != nil {
				t.Fatalf("find: %v", err)
			}

			rec := e.do(t, http.MethodPost, "/api/users/"+anna.ID+"/reset-password", adminToken, "")
			if env := decode(t, rec, nil); rec.Code != http.StatusServiceUnavailable || env.Error == nil || env.Error.Code != tc.wantCode {
				t.Fatalf("expected 503 %s, got %d %s", tc.wantCode, rec.Code, rec.Body.String())
			}
			after, err := e.dir.FindByID(context.Background(), anna.ID)
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			if after.PasswordHash != before.PasswordHash {
				t.Fatal("password hash must be unchanged when the new password cannot be delivered")
			}
			if len(mailer.to) != tc.wantSent {
				t.Fatalf("expected %d send attempts, got %d", tc.wantSent, len(mailer.to))
			}
			for _, action := range e.audit.actions() {
				if action == audit.ActionPasswordReset {
					t.Fatal("failed reset must not be audited")
				}
			}
		})
	}
}

func TestAssignEmployeeIDs(t *testing.T) {
	e := newEnv(t)
	adminToken := e.token(t, "admin", directory.RoleAdmin)
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	e.store.Put(directory.User{ID: "4f6a3b1e-8d1c-4d2e-9b8f-1a2b3c4d5e01", Username: "legacy1", Email: "l1@example.com", Roles: []string{"employee"}, Status: directory.StatusActive, CreatedAt: base})
	e.store.Put(directory.User{ID: "4f6a3b1e-8d1c-4d2e-9b8f-1a2b3c4d5e02", Username: "legacy2", Email: "l2@example.com", Roles: []string{"employee"}, Status: directory.StatusActive, CreatedAt: base.Add(time.Hour)})

	rec := e.do(t, http.MethodPost, "/api/users/assign-employee-ids", adminToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("assign: %d %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Updated     int                    `json:"updated"`
		Assignments []directory.Assignment `json:"assignments"`
	}
	decode(t, rec, &result)
	if result.Updated != 2 || result.Assignments[0].Username != "legacy1" || result.Assignments[0].EmployeeID != "00002" || result.Assignments[1].EmployeeID != "00003" {
		t.Fatalf("unexpected assignments %+v", result)
	}

	decode(t, e.do(t, http.MethodPost, "/api/users/assign-employee-ids", adminToken, ""), &result)
	if result.Updated != 0 {
		t.Fatalf("expected no-op second run, got %+v", result)
	}
}

func TestDocumentExports(t *testing.T) {
	e := newEnv(t)
	adminToken := e.token(t, "admin", directory.RoleAdmin)

	rec := e.do(t, http.MethodGet, "/api/users/"+e.admin.ID+"/sheet.pdf", adminToken, "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("sheet: %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatal("expected pdf body")
	}

	rec = e.do(t, http.MethodGet, "/api/users/export.xlsx", adminToken, "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != xlsxContentType {
		t.Fatalf("export: %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Fatal("expected zip container")
	}
}

func TestMaskIBAN(t *testing.T) {
	tests := map[string]string{
		"":                            "",
		"DE12":                        "****",
		"DE89 3704 0044 0532 0130 00": "******************3000",
	}
	for in, want := range tests {
		if got := maskIBAN(in); got != want {
			t.Fatalf("maskIBAN(%q) = %q, want %q", in, got, want)
		}
	}
}
