// Package auth verifies the bearer token carried on the client control
// channel's connection URL (spec.md §6.1, §7: authentication errors close
// the websocket with code 4001). Grounded on
// original_source/backend/app/core/security.py's HS256 JWT scheme
// (decode_token/verify_token) and app/api/deps.py's verify_token.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/voxstream/transcribe-core/apierrors"
)

// Claims is the subset of the original HS256 token payload the core reads:
// "sub" identifies the user.
type Claims struct {
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens signed with a single HS256 secret.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a Verifier for tokens signed with secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// VerifyToken parses and validates tokenString, returning the user id from
// its "sub" claim. Any parse failure, signature mismatch, or expiry
// collapses to apierrors.ErrInvalidToken — callers never see jwt's
// internal error types (spec.md §6.1: "close with code 4001").
func (v *Verifier) VerifyToken(tokenString string) (userID string, err error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", apierrors.ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", apierrors.ErrInvalidToken
	}
	return claims.Subject, nil
}
