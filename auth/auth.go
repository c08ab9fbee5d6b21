// Package auth supplies bearer credentials for remote calls and detects
// expired tokens before the queue burns a retry attempt on them.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/phrazzld/uplink/job"
)

// TokenSource supplies the bearer credential attached to remote calls.
// Implementations typically wrap the host application's auth session.
type TokenSource interface {
	// Token returns the current bearer token.
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource is a TokenSource that always returns the same token.
type StaticTokenSource struct {
	token string
}

// NewStaticTokenSource creates a TokenSource around a fixed token.
func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: token}
}

// Token returns the fixed token.
func (s *StaticTokenSource) Token(_ context.Context) (string, error) {
	return s.token, nil
}

// CheckExpiry inspects a JWT's exp claim and returns job.ErrAuthExpired if
// the token expired before now. The signature is not verified; the remote
// side does that. Tokens that are not JWTs, or carry no exp claim, pass:
// their validity cannot be judged locally.
func CheckExpiry(tokenString string, now time.Time) error {
	if tokenString == "" {
		return nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		// Opaque (non-JWT) credential.
		return nil
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}

	if exp.Time.Before(now) {
		return fmt.Errorf("%w: token expired at %s", job.ErrAuthExpired, exp.Time.UTC().Format(time.RFC3339))
	}

	return nil
}

// Preflight fetches the current token and checks its expiry. An expired
// token surfaces as job.ErrAuthExpired; a source failure surfaces as a
// transient error.
func Preflight(ctx context.Context, source TokenSource) error {
	if source == nil {
		return nil
	}

	token, err := source.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain bearer token: %w", err)
	}

	return CheckExpiry(token, time.Now().UTC())
}
