package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndParseToken(t *testing.T) {
	tokens := NewTokens("test-secret", time.Hour)
	token, expires, err := tokens.Generate("anna", []string{"admin"})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if time.Until(expires) <= 59*time.Minute {
		t.Fatalf("unexpected expiry %v", expires)
	}

	parsed, err := tokens.Parse(token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if parsed.Username != "anna" || len(parsed.Roles) != 1 || parsed.Roles[0] != "admin" {
		t.Fatalf("claims mismatch: %+v", parsed)
	}
}

func TestParseRejectsBadTokens(t *testing.T) {
	issuedAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tokens := NewTokens("test-secret", time.Hour).WithClock(func() time.Time { return issuedAt })
	valid, _, err := tokens.Generate("anna", []string{"employee"})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	hs512 := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		Username:         "anna",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour))},
	})
	wrongAlg, err := hs512.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	cases := []struct {
		name   string
		tokens *Tokens
		token  string
	}{
		{name: "garbage", tokens: tokens, token: "not.a.token"},
		{name: "wrong secret", tokens: NewTokens("other", time.Hour).WithClock(func() time.Time { return issuedAt }), token: valid},
		{name: "expired", tokens: NewTokens("test-secret", time.Hour).WithClock(func() time.Time { return issuedAt.Add(2 * time.Hour) }), token: valid},
		{name: "wrong algorithm", tokens: tokens, token: wrongAlg},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.tokens.Parse(tc.token); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}
