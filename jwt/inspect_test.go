package jwt

import (
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func signHS(t *testing.T, claims gjwt.Claims) string {
	t.Helper()
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("irrelevant-for-inspect"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestInspectReadsPrincipalFromKnownClaims(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		claims gjwt.MapClaims
		want   string
	}{
		{"uid", gjwt.MapClaims{"uid": "a", "sub": "b", "exp": exp.Unix()}, "a"},
		{"numeric user_id", gjwt.MapClaims{"user_id": float64(42), "exp": exp.Unix()}, "42"},
		{"subject", gjwt.MapClaims{"sub": "c", "exp": exp.Unix()}, "c"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			info, err := Inspect(signHS(t, tc.claims))
			if err != nil {
				t.Fatalf("inspect: %v", err)
			}
			if info.PrincipalID != tc.want {
				t.Fatalf("expected principal %q, got %q", tc.want, info.PrincipalID)
			}
			if !info.ExpiresAt.Equal(exp) {
				t.Fatalf("expected expiry %v, got %v", exp, info.ExpiresAt)
			}
		})
	}
}

func TestInspectOpaqueToken(t *testing.T) {
	if _, err := Inspect("opaque-bearer"); !errors.Is(err, ErrNotJWT) {
		t.Fatalf("expected ErrNotJWT, got %v", err)
	}
}

func TestInfoExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if (Info{}).Expired(now, 0) {
		t.Fatal("token without exp must not expire")
	}
	info := Info{ExpiresAt: now.Add(-time.Second)}
	if !info.Expired(now, 0) {
		t.Fatal("expected expired")
	}
	if info.Expired(now, 5*time.Second) {
		t.Fatal("leeway should keep token alive")
	}
}
