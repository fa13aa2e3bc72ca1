package directory

import (
	"context"
	"errors"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"personnel/internal/apperr"
)

// DefaultAllocationAttempts bounds how often Create and the backfill retry
// after losing an employee id to a concurrent writer.
const DefaultAllocationAttempts = 5

// Hasher turns a plaintext password into a stored digest.
type Hasher interface {
	Hash(plain string) (string, error)
}

type Service struct {
	store       Store
	hasher      Hasher
	now         func() time.Time
	maxAttempts int
}

func NewService(store Store, hasher Hasher) *Service {
	return &Service{
		store:       store,
		hasher:      hasher,
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: DefaultAllocationAttempts,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) WithMaxAttempts(n int) *Service {
	if n > 0 {
		s.maxAttempts = n
	}
	return s
}

// Create registers a new user. Without an explicit employee id the smallest
// free one is allocated; losing that id to a concurrent insert triggers a
// fresh allocation, up to maxAttempts times.
func (s *Service) Create(ctx context.Context, in NewUser) (*User, error) {
	return s.create(ctx, in, false)
}

// EnsureProtectedAdmin creates the protected administrator unless one exists.
// It reports whether a record was created.
func (s *Service) EnsureProtectedAdmin(ctx context.Context, in NewUser) (*User, bool, error) {
	exists, err := s.store.ProtectedExists(ctx)
	if err != nil {
		return nil, false, apperr.Internal(err)
	}
	if exists {
		return nil, false, nil
	}
	if in.Username == "" {
		in.Username = ProtectedUsername
	}
	in.Roles = []string{RoleAdmin}
	u, err := s.create(ctx, in, true)
	if err != nil {
		if errors.Is(err, ErrProtectedExists) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return u, true, nil
}

func (s *Service) create(ctx context.Context, in NewUser, protected bool) (*User, error) {
	in = normalizeNewUser(in)
	if err := validateNewUser(in); err != nil {
		return nil, err
	}
	if !protected && in.Username == ProtectedUsername {
		return nil, ErrReservedUsername
	}

	if _, err := s.store.FindByUsername(ctx, in.Username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, apperr.Internal(err)
	}
	if _, err := s.store.FindByEmail(ctx, in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, apperr.Internal(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	hireDate := in.HireDate
	if hireDate == nil {
		today := now.Truncate(24 * time.Hour)
		hireDate = &today
	}
	u := User{
		Username:     in.Username,
		PasswordHash: hash,
		Email:        in.Email,
		EmployeeID:   in.EmployeeID,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Roles:        in.Roles,
		Status:       in.Status,
		IsProtected:  protected,
		BirthDate:    in.BirthDate,
		Address:      in.Address,
		HireDate:     hireDate,
		ExitDate:     in.ExitDate,
		Position:     in.Position,
		Department:   in.Department,
		Salary:       in.Salary,
		IBAN:         in.IBAN,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if in.EmployeeID != "" {
		u.ID = uuid.NewString()
		if err := s.store.Insert(ctx, &u); err != nil {
			return nil, storeError(err)
		}
		return &u, nil
	}

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		existing, err := s.store.EmployeeIDs(ctx)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		next, err := NextEmployeeID(existing)
		if err != nil {
			return nil, err
		}
		u.ID = uuid.NewString()
		u.EmployeeID = next
		err = s.store.Insert(ctx, &u)
		if err == nil {
			return &u, nil
		}
		if !errors.Is(err, ErrEmployeeIDTaken) {
			return nil, storeError(err)
		}
	}
	return nil, ErrAllocationContention
}

// Update applies a partial change. Password, username and the protection flag
// are not part of Patch and so cannot change here.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (*User, error) {
	if !validID(id) {
		return nil, ErrUserNotFound
	}
	patch = normalizePatch(patch)
	if err := validatePatch(patch); err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return s.FindByID(ctx, id)
	}
	u, err := s.store.Update(ctx, id, patch, s.now())
	if err != nil {
		return nil, storeError(err)
	}
	return u, nil
}

// Delete removes a user. The protected account is refused regardless of who asks.
func (s *Service) Delete(ctx context.Context, id string) (*User, error) {
	u, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.IsProtected {
		return nil, ErrProtectedAccount
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return nil, storeError(err)
	}
	return u, nil
}

func (s *Service) FindByID(ctx context.Context, id string) (*User, error) {
	if !validID(id) {
		return nil, ErrUserNotFound
	}
	u, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	return u, nil
}

// FindByUsername matches the username byte for byte.
func (s *Service) FindByUsername(ctx context.Context, username string) (*User, error) {
	if username == "" {
		return nil, ErrUserNotFound
	}
	u, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		return nil, storeError(err)
	}
	return u, nil
}

func (s *Service) List(ctx context.Context, excludeProtected bool) ([]User, error) {
	users, err := s.store.List(ctx, excludeProtected)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return users, nil
}

// NextEmployeeID previews the id the next Create would allocate. It reserves
// nothing.
func (s *Service) NextEmployeeID(ctx context.Context) (string, error) {
	existing, err := s.store.EmployeeIDs(ctx)
	if err != nil {
		return "", apperr.Internal(err)
	}
	return NextEmployeeID(existing)
}

// AssignMissingEmployeeIDs gives every user without an employee id the next
// free one, oldest record first. Records assigned concurrently are skipped.
func (s *Service) AssignMissingEmployeeIDs(ctx context.Context) ([]Assignment, error) {
	missing, err := s.store.MissingEmployeeID(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	assigned := []Assignment{}
	if len(missing) == 0 {
		return assigned, nil
	}

	existing, err := s.store.EmployeeIDs(ctx)
	if err != nil {
		return assigned, apperr.Internal(err)
	}
	taken := takenSet(existing)

	for _, u := range missing {
		done := false
		for attempt := 0; attempt < s.maxAttempts && !done; attempt++ {
			next, err := nextFree(taken)
			if err != nil {
				return assigned, err
			}
			ok, err := s.store.SetEmployeeID(ctx, u.ID, next, s.now())
			switch {
			case err == nil:
				done = true
				if ok {
					n, _ := strconv.Atoi(next)
					taken[n] = struct{}{}
					assigned = append(assigned, Assignment{UserID: u.ID, Username: u.Username, EmployeeID: next})
				}
			case errors.Is(err, ErrEmployeeIDTaken):
				existing, err := s.store.EmployeeIDs(ctx)
				if err != nil {
					return assigned, apperr.Internal(err)
				}
				taken = takenSet(existing)
			default:
				return assigned, apperr.Internal(err)
			}
		}
		if !done {
			return assigned, ErrAllocationContention
		}
	}
	return assigned, nil
}

func (s *Service) SetPasswordHash(ctx context.Context, id, hash string) error {
	if err := s.store.SetPasswordHash(ctx, id, hash, s.now()); err != nil {
		return storeError(err)
	}
	return nil
}

func (s *Service) RecordLogin(ctx context.Context, id string, at time.Time) error {
	if err := s.store.RecordLogin(ctx, id, at); err != nil {
		return storeError(err)
	}
	return nil
}

// storeError passes directory errors through and hides everything else
// behind an internal error.
func storeError(err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Internal(err)
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func normalizeNewUser(in NewUser) NewUser {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.EmployeeID = strings.TrimSpace(in.EmployeeID)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Position = strings.TrimSpace(in.Position)
	in.Department = strings.TrimSpace(in.Department)
	in.IBAN = strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(in.IBAN)), " ", "")
	if len(in.Roles) == 0 {
		in.Roles = []string{RoleEmployee}
	}
	in.Roles = dedupe(in.Roles)
	if in.Status == "" {
		in.Status = StatusActive
	}
	if strings.TrimSpace(in.Address.Country) == "" {
		in.Address.Country = DefaultCountry
	}
	return in
}

func validateNewUser(in NewUser) error {
	if strings.TrimSpace(in.Username) == "" || in.Password == "" || in.FirstName == "" || in.LastName == "" || in.Email == "" {
		return ErrMissingFields
	}
	if !validEmail(in.Email) {
		return ErrInvalidEmail
	}
	if in.EmployeeID != "" && !ValidEmployeeID(in.EmployeeID) {
		return ErrInvalidEmployeeID
	}
	if !validRoles(in.Roles) {
		return ErrInvalidRole
	}
	if !in.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

func normalizePatch(p Patch) Patch {
	if p.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*p.Email))
		p.Email = &email
	}
	if p.EmployeeID != nil {
		id := strings.TrimSpace(*p.EmployeeID)
		p.EmployeeID = &id
	}
	if p.FirstName != nil {
		v := strings.TrimSpace(*p.FirstName)
		p.FirstName = &v
	}
	if p.LastName != nil {
		v := strings.TrimSpace(*p.LastName)
		p.LastName = &v
	}
	if p.IBAN != nil {
		v := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(*p.IBAN)), " ", "")
		p.IBAN = &v
	}
	if p.Roles != nil {
		p.Roles = dedupe(p.Roles)
	}
	return p
}

func validatePatch(p Patch) error {
	if p.Email != nil && !validEmail(*p.Email) {
		return ErrInvalidEmail
	}
	if p.EmployeeID != nil && !ValidEmployeeID(*p.EmployeeID) {
		return ErrInvalidEmployeeID
	}
	if p.FirstName != nil && *p.FirstName == "" {
		return apperr.Validation("invalid_first_name", "firstName", "first name must not be empty")
	}
	if p.LastName != nil && *p.LastName == "" {
		return apperr.Validation("invalid_last_name", "lastName", "last name must not be empty")
	}
	if p.Roles != nil && !validRoles(p.Roles) {
		return ErrInvalidRole
	}
	if p.Status != nil && !p.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func validRoles(roles []string) bool {
	if len(roles) == 0 {
		return false
	}
	for _, role := range roles {
		known := false
		for _, r := range Roles {
			if role == r {
				known = true
				break
			}
		}
		if !known {
			return false
		}
	}
	return true
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
