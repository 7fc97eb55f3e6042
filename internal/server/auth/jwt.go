// Package auth issues and verifies upload session tokens. A session groups
// the uploads of one form; the signed token proves the caller owns it.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/civilforms/internal/common"
)

// Claims carries the upload session id next to the registered claims.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
}

// Session is a freshly issued upload session.
type Session struct {
	ID        string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

var now = time.Now

// NewSession creates a session id and signs a token for it.
func NewSession(secretKey []byte, validity time.Duration) (Session, error) {
	id := uuid.NewString()
	exp := now().Add(validity)
	tok, err := GenerateToken(id, secretKey, exp)
	if err != nil {
		return Session{}, err
	}
	return Session{ID: id, Token: tok, ExpiresAt: exp}, nil
}

func GenerateToken(sessionID string, secretKey []byte, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionID: sessionID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// SessionFromToken verifies tokenString and returns its session id.
func SessionFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid || claims.SessionID == "" {
		return "", common.ErrInvalidToken
	}

	return claims.SessionID, nil
}
