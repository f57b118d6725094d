// Package auth issues and validates the bearer tokens that identify users.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"listing_enricher/internal/config"
)

var (
	// ErrInvalidToken is returned for tokens that fail signature, expiry or
	// issuer checks
	ErrInvalidToken = errors.New("invalid token")

	// ErrMissingSubject is returned when a token carries no user id
	ErrMissingSubject = errors.New("token has no subject")
)

// UserClaims are the claims of a user bearer token. Subject is the user id.
type UserClaims struct {
	jwt.RegisteredClaims
}

// GenerateUserToken signs a token for userID valid for cfg.JWT.TokenTTL
func GenerateUserToken(userID string, cfg *config.Config) (string, int64, error) {
	if userID == "" {
		return "", 0, ErrMissingSubject
	}

	now := time.Now()
	expiresAt := now.Add(cfg.JWT.TokenTTL)
	claims := UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    cfg.JWT.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedToken, err := token.SignedString(cfg.JWT.Secret)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign token: %w", err)
	}
	return signedToken, expiresAt.Unix(), nil
}

// ValidateUserToken verifies tokenString and returns its claims
func ValidateUserToken(tokenString string, cfg *config.Config) (*UserClaims, error) {
	claims := &UserClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return cfg.JWT.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if cfg.JWT.Issuer != "" && !claims.VerifyIssuer(cfg.JWT.Issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, claims.Issuer)
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	return claims, nil
}

// UserID extracts the user id from a valid token
func UserID(tokenString string, cfg *config.Config) (string, error) {
	claims, err := ValidateUserToken(tokenString, cfg)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
