// Package directorytest provides an in-memory directory.Store that enforces
// the same uniqueness rules as the Postgres schema.
package directorytest

import (
	"context"
	"sort"
	"sync"
	"time"

	"personnel/internal/domain/directory"
)

type Store struct {
	mu    sync.Mutex
	users map[string]directory.User

	// BeforeInsert runs outside the lock ahead of every Insert, letting tests
	// simulate a concurrent writer.
	BeforeInsert func(ctx context.Context, u *directory.User)

	Inserts int
}

func NewStore() *Store {
	return &Store{users: map[string]directory.User{}}
}

func clone(u directory.User) directory.User {
	u.Roles = append([]string(nil), u.Roles...)
	return u
}

// Put stores u as-is, bypassing the uniqueness checks. Useful for fixtures.
func (s *Store) Put(u directory.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = clone(u)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

func (s *Store) conflict(u directory.User) error {
	for id, existing := range s.users {
		if id == u.ID {
			continue
		}
		switch {
		case existing.Username == u.Username:
			return directory.ErrUsernameTaken
		case existing.Email == u.Email:
			return directory.ErrEmailTaken
		case u.EmployeeID != "" && existing.EmployeeID == u.EmployeeID:
			return directory.ErrEmployeeIDTaken
		case u.IsProtected && existing.IsProtected:
			return directory.ErrProtectedExists
		}
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, u *directory.User) error {
	if s.BeforeInsert != nil {
		s.BeforeInsert(ctx, u)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Inserts++
	if err := s.conflict(*u); err != nil {
		return err
	}
	s.users[u.ID] = clone(*u)
	return nil
}

func (s *Store) Update(_ context.Context, id string, patch directory.Patch, at time.Time) (*directory.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[id]
	if !ok {
		return nil, directory.ErrUserNotFound
	}
	updated := clone(existing)
	patch.Apply(&updated)
	updated.UpdatedAt = at
	if err := s.conflict(updated); err != nil {
		return nil, err
	}
	s.users[id] = updated
	out := clone(updated)
	return &out, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.IsProtected {
		return directory.ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *Store) find(match func(directory.User) bool) (*directory.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			out := clone(u)
			return &out, nil
		}
	}
	return nil, directory.ErrUserNotFound
}

func (s *Store) FindByID(_ context.Context, id string) (*directory.User, error) {
	return s.find(func(u directory.User) bool { return u.ID == id })
}

func (s *Store) FindByUsername(_ context.Context, username string) (*directory.User, error) {
	return s.find(func(u directory.User) bool { return u.Username == username })
}

func (s *Store) FindByEmail(_ context.Context, email string) (*directory.User, error) {
	return s.find(func(u directory.User) bool { return u.Email == email })
}

func (s *Store) sorted(match func(directory.User) bool) []directory.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]directory.User, 0, len(s.users))
	for _, u := range s.users {
		if match(u) {
			out = append(out, clone(u))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Store) List(_ context.Context, excludeProtected bool) ([]directory.User, error) {
	return s.sorted(func(u directory.User) bool { return !excludeProtected || !u.IsProtected }), nil
}

func (s *Store) MissingEmployeeID(_ context.Context) ([]directory.User, error) {
	return s.sorted(func(u directory.User) bool { return u.EmployeeID == "" }), nil
}

func (s *Store) EmployeeIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, u := range s.users {
		if u.EmployeeID != "" {
			ids = append(ids, u.EmployeeID)
		}
	}
	return ids, nil
}

func (s *Store) SetEmployeeID(_ context.Context, id, employeeID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok || u.EmployeeID != "" {
		return false, nil
	}
	u.EmployeeID = employeeID
	if err := s.conflict(u); err != nil {
		return false, err
	}
	u.UpdatedAt = at
	s.users[id] = u
	return true, nil
}

func (s *Store) SetPasswordHash(_ context.Context, id, hash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return directory.ErrUserNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = at
	s.users[id] = u
	return nil
}

func (s *Store) RecordLogin(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return directory.ErrUserNotFound
	}
	u.LastLogin = &at
	s.users[id] = u
	return nil
}

func (s *Store) ProtectedExists(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.IsProtected {
			return true, nil
		}
	}
	return false, nil
}

// PlainHasher stores passwords with a visible prefix so tests can assert on
// what was hashed without paying for bcrypt.
type PlainHasher struct{}

func (PlainHasher) Hash(plain string) (string, error) {
	return "hashed:" + plain, nil
}
