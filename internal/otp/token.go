package otp

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenMinter issues a signed auth token for a verified user.
type TokenMinter interface {
	Mint(userID string) (string, error)
}

// JWTMinter mints HMAC-signed JWTs carrying the user id as subject.
type JWTMinter struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTMinter creates a minter with the shared signing secret.
func NewJWTMinter(secret string, ttl time.Duration) *JWTMinter {
	if secret == "" {
		panic("otp: empty token secret")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTMinter{secret: []byte(secret), ttl: ttl}
}

// Mint returns a signed token for the user.
func (m *JWTMinter) Mint(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    "patient-comms",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("otp: sign token: %w", err)
	}
	return signed, nil
}
