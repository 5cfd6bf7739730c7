// Package oidc verifies identity tokens against the issuer's published
// signing keys before the session manager trusts them.
package oidc

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/felixgeelhaar/lostfound/internal/errors"
)

// Config holds token verification settings.
type Config struct {
	// Issuer is the expected "iss" claim.
	// Example: "https://cognito-idp.eu-central-1.amazonaws.com/eu-central-1_AbCdEf"
	Issuer string

	// ClientID is the expected audience of ID tokens.
	ClientID string

	// JWKSURL overrides where signing keys are fetched.
	// Default: Issuer + "/.well-known/jwks.json"
	JWKSURL string
}

// Verifier checks signature, issuer, audience and expiry of ID tokens.
//
// Thread-safe: Safe for concurrent use.
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

// Option configures a Verifier
type Option func(*oidc.Config)

// WithClock overrides the time used for expiry checks
func WithClock(now func() time.Time) Option {
	return func(c *oidc.Config) { c.Now = now }
}

// NewVerifier creates a verifier that fetches signing keys from the
// issuer's JWKS endpoint on first use. ctx scopes the key fetches.
func NewVerifier(ctx context.Context, cfg Config, opts ...Option) (*Verifier, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	jwksURL := cfg.JWKSURL
	if jwksURL == "" {
		jwksURL = strings.TrimRight(cfg.Issuer, "/") + "/.well-known/jwks.json"
	}
	return NewVerifierWithKeySet(cfg, oidc.NewRemoteKeySet(ctx, jwksURL), opts...)
}

// NewVerifierWithKeySet creates a verifier over an explicit key set
func NewVerifierWithKeySet(cfg Config, keys oidc.KeySet, opts ...Option) (*Verifier, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	oc := &oidc.Config{ClientID: cfg.ClientID}
	for _, opt := range opts {
		opt(oc)
	}
	return &Verifier{verifier: oidc.NewVerifier(cfg.Issuer, keys, oc)}, nil
}

// Verify returns an Unauthenticated failure when rawToken is not a valid
// ID token for the configured issuer and client
func (v *Verifier) Verify(ctx context.Context, rawToken string) error {
	if _, err := v.verifier.Verify(ctx, rawToken); err != nil {
		var expired *oidc.TokenExpiredError
		if stderrors.As(err, &expired) {
			return errors.Wrap(errors.KindUnauthenticated, errors.ErrCodeAuthTokenInvalid, "token has expired", err).
				WithSuggestion("Run 'lostfound auth login' to sign in again")
		}
		return errors.Wrap(errors.KindUnauthenticated, errors.ErrCodeAuthTokenInvalid, "token failed verification", err)
	}
	return nil
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Issuer) == "" {
		return errors.New(errors.KindValidation, errors.ErrCodeInputInvalid, "token issuer is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return errors.New(errors.KindValidation, errors.ErrCodeInputInvalid, "client id is required for token verification")
	}
	return nil
}
