package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewMinter("test-secret")

	signed, err := m.Token("user-42")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}

	parsed, err := jwt.Parse(signed, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			t.Fatalf("unexpected signing method %v", tok.Method)
		}
		return []byte("test-secret"), nil
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		t.Fatalf("unexpected claims type %T", parsed.Claims)
	}
	if claims["id"] != "user-42" {
		t.Errorf("id claim = %v", claims["id"])
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		t.Fatalf("GetExpirationTime: %v", err)
	}
	ttl := time.Until(exp.Time)
	if ttl < 9*time.Minute || ttl > 10*time.Minute {
		t.Errorf("ttl = %v, want about ten minutes", ttl)
	}
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	m := NewMinter("right")
	signed, err := m.Token("u")
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	_, err = jwt.Parse(signed, func(*jwt.Token) (any, error) {
		return []byte("wrong"), nil
	})
	if err == nil {
		t.Fatal("token verified with the wrong secret")
	}
}
