package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	sentinel := Conflict("email_taken", "email", "email already exists")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "direct", err: sentinel, want: KindConflict},
		{name: "wrapped with fmt", err: fmt.Errorf("create: %w", sentinel), want: KindConflict},
		{name: "plain error", err: errors.New("boom"), want: KindInternal},
		{name: "internal", err: Internal(errors.New("db down")), want: KindInternal},
		{name: "not found", err: NotFound("user_not_found", "user not found"), want: KindNotFound},
		{name: "unavailable wrapped", err: Wrap(Unavailable("mail_down", "mail down"), errors.New("dial tcp")), want: KindUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestWrapKeepsSentinelIdentity(t *testing.T) {
	sentinel := Conflict("employee_id_taken", "employeeId", "employee id already taken")
	cause := errors.New("duplicate key value violates unique constraint")

	wrapped := Wrap(sentinel, cause)
	if !errors.Is(wrapped, sentinel) {
		t.Fatal("expected wrapped error to match sentinel")
	}
	if !errors.Is(wrapped, cause) {
		t.Fatal("expected wrapped error to expose cause")
	}
	if errors.Is(wrapped, Conflict("email_taken", "email", "email already exists")) {
		t.Fatal("did not expect match on a different code")
	}
}

func TestInternalHidesCause(t *testing.T) {
	err := Internal(errors.New("connection refused"))
	if err.Message != "internal server error" {
		t.Fatalf("unexpected message %q", err.Message)
	}
}
