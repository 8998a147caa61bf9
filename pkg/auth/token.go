package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v4"

	"trusttrade/pkg/errors"
)

// TokenProvider supplies the bearer credential used on the REST path and as
// the ?token= query parameter when dialing the presence channel. Issuance and
// refresh belong to the identity provider; this package only inspects what it
// was handed.
type TokenProvider interface {
	Token() (string, error)
}

// StaticTokenProvider wraps a credential obtained out of band. When the
// credential is a JWT, Token inspects its exp claim (without verifying the
// signature, which belongs to the server) and reports AUTH_EXPIRED instead of
// letting the channel retry forever with a stale token.
type StaticTokenProvider struct {
	raw string
	now func() time.Time
}

func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{raw: token, now: time.Now}
}

func (p *StaticTokenProvider) Token() (string, error) {
	if p.raw == "" {
		return "", errors.Unauthorized("no credential configured", nil)
	}

	claims := jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(p.raw, &claims); err != nil {
		// Opaque (non-JWT) credentials pass through untouched; the server is
		// the authority on their validity.
		return p.raw, nil
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(p.now()) {
		return "", errors.AuthExpired("bearer token expired, re-authentication required", nil)
	}

	return p.raw, nil
}
