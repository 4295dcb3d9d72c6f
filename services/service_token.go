package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const (
	ServiceSubject  = "tryon-service"
	serviceTokenTTL = 365 * 24 * time.Hour
)

var ErrMissingSecret = errors.New("jwt secret is required to reach the provider proxy")

// NewServiceToken signs the bearer token internal callers present to the provider proxy.
func NewServiceToken(secret string) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   ServiceSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(serviceTokenTTL)),
	})
	return token.SignedString([]byte(secret))
}
