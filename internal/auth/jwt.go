// Package auth issues and validates the session tokens that identify
// end users, and verifies the shared service key used by internal
// billing callers.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const sessionTokenTTL = 24 * time.Hour

var (
	// ErrInvalidToken is returned for malformed, expired or mis-signed tokens.
	ErrInvalidToken = errors.New("invalid session token")
)

// GenerateSessionToken creates a signed token carrying the user id.
// Returns the token and its expiry as a unix timestamp.
func GenerateSessionToken(userID uuid.UUID, secret []byte) (string, int64, error) {
	expiresAt := time.Now().Add(sessionTokenTTL).Unix()
	claims := jwt.MapClaims{
		"sub": userID.String(),
		"exp": expiresAt,
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(secret)
	if err != nil {
		return "", 0, fmt.Errorf("sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateSessionToken verifies the signature and expiry and returns the
// user id from the subject claim.
func ValidateSessionToken(tokenString string, secret []byte) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return uuid.Nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}
