package directory

import (
	"context"
	"time"
)

// Store persists users. Implementations must enforce uniqueness of username,
// email and employee id atomically and report violations as ErrUsernameTaken,
// ErrEmailTaken or ErrEmployeeIDTaken.
type Store interface {
	Insert(ctx context.Context, user *User) error
	Update(ctx context.Context, id string, patch Patch, at time.Time) (*User, error)
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, excludeProtected bool) ([]User, error)
	EmployeeIDs(ctx context.Context) ([]string, error)
	MissingEmployeeID(ctx context.Context) ([]User, error)
	SetEmployeeID(ctx context.Context, id, employeeID string, at time.Time) (bool, error)
	SetPasswordHash(ctx context.Context, id, hash string, at time.Time) error
	RecordLogin(ctx context.Context, id string, at time.Time) error
	ProtectedExists(ctx context.Context) (bool, error)
}
