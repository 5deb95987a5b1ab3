// Package auth mints the short-lived bearer tokens the scheduler uses to call
// the completion API on behalf of job owners.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenTTL = 10 * time.Minute

// Minter signs per-user JWTs with the shared application secret.
type Minter struct {
	secret []byte
}

func NewMinter(secret string) *Minter {
	return &Minter{secret: []byte(secret)}
}

// Token returns a signed HS256 token carrying the user ID, valid for ten
// minutes. Each run mints a fresh token so a stuck run cannot hold a
// long-lived credential.
func (m *Minter) Token(userID string) (string, error) {
	claims := jwt.MapClaims{
		"id":  userID,
		"exp": time.Now().Add(tokenTTL).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token for %s: %w", userID, err)
	}
	return signed, nil
}
