package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/felixgeelhaar/lostfound/internal/errors"
	"github.com/felixgeelhaar/lostfound/internal/identity"
	"github.com/felixgeelhaar/lostfound/internal/log"
)

// mintToken signs claims with a throwaway HMAC key
func mintToken(t testing.TB, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-signing-key"))
	if err != nil {
		t.Fatalf("failed to mint token: %v", err)
	}
	return token
}

// fakeProvider is an in-memory identity provider that records every call
type fakeProvider struct {
	mu sync.Mutex

	calls map[string]int

	passwords  map[string]string
	tokens     map[string]string
	confirmed  map[string]bool
	validCode  string
	remembered *identity.Tokens

	signUpErr  error
	restoreErr error
	forgetErr  error

	// authGate, when set, blocks Authenticate until it is closed
	authGate chan struct{}
	// restoreGate, when set, blocks RestoreSession until it is closed
	restoreGate chan struct{}
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		calls:     make(map[string]int),
		passwords: make(map[string]string),
		tokens:    make(map[string]string),
		confirmed: make(map[string]bool),
		validCode: "123456",
	}
}

func (p *fakeProvider) count(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

func (p *fakeProvider) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		n += c
	}
	return n
}

func (p *fakeProvider) record(op string) {
	p.mu.Lock()
	p.calls[op]++
	p.mu.Unlock()
}

// addUser registers a confirmed account that authenticates with token
func (p *fakeProvider) addUser(email, password, token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.passwords[email] = password
	p.tokens[email] = token
	p.confirmed[email] = true
}

func (p *fakeProvider) SignUp(_ context.Context, email, password string, _ identity.Attributes) error {
	p.record("SignUp")
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.signUpErr != nil {
		return p.signUpErr
	}
	if _, exists := p.passwords[email]; exists {
		return errors.New(errors.KindValidation, errors.ErrCodeRegAccountExists, "An account with the given email already exists.")
	}
	p.passwords[email] = password
	return nil
}

func (p *fakeProvider) ConfirmSignUp(_ context.Context, email, code string) error {
	p.record("ConfirmSignUp")
	p.mu.Lock()
	defer p.mu.Unlock()
	if code != p.validCode {
		return errors.New(errors.KindValidation, errors.ErrCodeRegCodeMismatch, "Invalid verification code provided, please try again.")
	}
	p.confirmed[email] = true
	return nil
}

func (p *fakeProvider) ResendConfirmationCode(_ context.Context, _ string) error {
	p.record("ResendConfirmationCode")
	return nil
}

func (p *fakeProvider) Authenticate(ctx context.Context, email, password string) (*identity.Tokens, error) {
	p.record("Authenticate")
	if p.authGate != nil {
		select {
		case <-p.authGate:
		case <-ctx.Done():
			return nil, errors.Network("authenticate", ctx.Err())
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if pw, ok := p.passwords[email]; !ok || pw != password || !p.confirmed[email] {
		return nil, errors.New(errors.KindUnauthenticated, errors.ErrCodeAuthInvalidCredentials, "Incorrect username or password.")
	}
	return &identity.Tokens{
		Token:   oauth2.Token{AccessToken: "access", RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour)},
		IDToken: p.tokens[email],
	}, nil
}

func (p *fakeProvider) RememberSession(_ context.Context, tokens *identity.Tokens) error {
	p.record("RememberSession")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remembered = tokens
	return nil
}

// remember stores a session for email as a previous process would have
func (p *fakeProvider) remember(t testing.TB, email, password string) {
	t.Helper()
	tokens, err := p.Authenticate(context.Background(), email, password)
	if err != nil {
		t.Fatalf("failed to authenticate %s: %v", email, err)
	}
	if err := p.RememberSession(context.Background(), tokens); err != nil {
		t.Fatalf("failed to remember %s: %v", email, err)
	}
}

func (p *fakeProvider) rememberedToken() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remembered.Bearer()
}

// RestoreSession reads the remembered tokens before waiting on
// restoreGate, like a load that is still in flight.
func (p *fakeProvider) RestoreSession(ctx context.Context) (*identity.Tokens, error) {
	p.mu.Lock()
	p.calls["RestoreSession"]++
	remembered, restoreErr := p.remembered, p.restoreErr
	p.mu.Unlock()

	if p.restoreGate != nil {
		select {
		case <-p.restoreGate:
		case <-ctx.Done():
			return nil, errors.Network("restore", ctx.Err())
		}
	}
	if restoreErr != nil {
		return nil, restoreErr
	}
	return remembered, nil
}

func (p *fakeProvider) ForgetSession(context.Context) error {
	p.record("ForgetSession")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remembered = nil
	return p.forgetErr
}

func userToken(t testing.TB, sub, email string, groups ...string) string {
	claims := jwt.MapClaims{"sub": sub, "email": email, "name": "Test " + sub}
	if len(groups) > 0 {
		g := make([]any, len(groups))
		for i, s := range groups {
			g[i] = s
		}
		claims[GroupsClaim] = g
	}
	return mintToken(t, claims)
}

func newTestManager(p *fakeProvider, opts ...Option) *Manager {
	return NewManager(p, append([]Option{WithLogger(log.Discard())}, opts...)...)
}
