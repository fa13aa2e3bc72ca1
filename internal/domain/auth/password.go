package auth

import (
	"errors"
	"sync"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const DefaultCost = 12

// MaxPasswordBytes is the longest input bcrypt reads. Anything past it would be
// ignored by the comparison.
const MaxPasswordBytes = 72

// Credentials hashes and verifies passwords with bcrypt. The salt is random
// per hash and embedded in the digest.
type Credentials struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

func NewCredentials(cost int) *Credentials {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Credentials{cost: cost}
}

func (c *Credentials) Hash(plain string) (string, error) {
	if len(plain) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), c.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether plain matches digest. A malformed digest never
// matches, and neither does a password longer than MaxPasswordBytes.
func (c *Credentials) Verify(plain, digest string) bool {
	if digest == "" {
		return false
	}
	if len(plain) > MaxPasswordBytes {
		c.VerifyNothing(plain)
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}

// VerifyNothing burns the time of one comparison against a throwaway digest so
// an unknown username costs as much as a wrong password.
func (c *Credentials) VerifyNothing(plain string) {
	c.dummyOnce.Do(func() {
		c.dummy, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), c.cost)
	})
	if len(plain) > MaxPasswordBytes {
		plain = plain[:MaxPasswordBytes]
	}
	_ = bcrypt.CompareHashAndPassword(c.dummy, []byte(plain))
}

// StrongEnough requires at least 8 characters with upper case, lower case and
// a digit.
func StrongEnough(password string) bool {
	if len(password) < 8 {
		return false
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}
