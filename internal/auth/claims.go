package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the subset of identity provider claims the dashboard reads.
type TokenClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// DisplayName prefers the email when present; it is what the dashboard shows.
func (c TokenClaims) DisplayName() string {
	if e := strings.TrimSpace(c.Email); e != "" {
		return e
	}
	return strings.TrimSpace(c.Subject)
}

var (
	ErrMalformedToken   = errors.New("auth: malformed token")
	ErrInvalidSignature = errors.New("auth: invalid signature")
	ErrTokenExpired     = errors.New("auth: token expired")
	ErrUnknownKey       = errors.New("auth: unknown signing key")
	ErrInvalidIssuer    = errors.New("auth: invalid issuer")
	ErrInvalidAudience  = errors.New("auth: invalid audience")
)

// SignToken issues an HS256 token for local development against a Job
// Service sharing the secret.
func SignToken(secret string, claims TokenClaims) (string, error) {
	if secret == "" {
		return "", errors.New("auth: secret is required")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyToken checks the signature and expiry of an HS256 token.
func VerifyToken(secret, token string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, classify(err)
	}
	return claims, nil
}

// HMACVerifier accepts tokens signed with a shared HS256 secret.
type HMACVerifier struct {
	Secret string
}

func (v HMACVerifier) Verify(_ context.Context, token string) (*TokenClaims, error) {
	return VerifyToken(v.Secret, token)
}

// ParseClaims decodes the payload without verifying it. The Job Service is
// the verifier; the dashboard only needs the identity for display.
func ParseClaims(token string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, classify(err)
	}
	return claims, nil
}

// classify maps parser failures onto the package sentinels, keeping the cause.
func classify(err error) error {
	var sentinel error
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		sentinel = ErrMalformedToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		sentinel = ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		sentinel = ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		sentinel = ErrInvalidIssuer
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		sentinel = ErrInvalidAudience
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		sentinel = ErrUnknownKey
	default:
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}
