// Package auth owns the client's authentication session: sign-up and
// confirmation, login and logout, restoring a remembered session, and
// deriving identity and group membership from the session token.
package auth

import (
	"context"
	"net/mail"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/felixgeelhaar/lostfound/internal/errors"
	"github.com/felixgeelhaar/lostfound/internal/identity"
	"github.com/felixgeelhaar/lostfound/internal/log"
	"github.com/felixgeelhaar/lostfound/internal/metrics"
	"github.com/felixgeelhaar/lostfound/internal/security"
)

// MinPasswordLength is the local floor for new passwords. The identity
// provider may enforce stricter rules.
const MinPasswordLength = 8

// Session transitions recorded in metrics and logs.
const (
	transitionRestore    = "restore"
	transitionLogin      = "login"
	transitionLogout     = "logout"
	transitionInvalidate = "invalidate"
	transitionRegister   = "register"
	transitionConfirm    = "confirm"
)

// TokenVerifier checks a token's signature and standard claims.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) error
}

// Manager is the single owner of the Session. It is safe for concurrent use.
type Manager struct {
	provider   identity.Provider
	verifier   TokenVerifier
	pending    PendingStore
	logger     *log.Logger
	metrics    *metrics.Metrics
	adminGroup string
	clock      func() time.Time

	mu             sync.RWMutex
	session        Session
	generation     uint64
	pendingCurrent *PendingVerification

	// commitMu orders terminal transitions with the provider's remembered
	// session, so the store always matches the last committed Session.
	commitMu sync.Mutex

	initMu      sync.Mutex
	initialized bool
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithAdminGroup sets the group label that grants administrator status
func WithAdminGroup(group string) Option {
	return func(m *Manager) {
		if group = strings.TrimSpace(group); group != "" {
			m.adminGroup = group
		}
	}
}

// WithVerifier enables signature verification of tokens before they are
// committed to the Session
func WithVerifier(v TokenVerifier) Option {
	return func(m *Manager) { m.verifier = v }
}

// WithPendingStore sets where the pending registration is kept
func WithPendingStore(s PendingStore) Option {
	return func(m *Manager) {
		if s != nil {
			m.pending = s
		}
	}
}

// WithClock overrides the time source
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewManager creates a Manager with an anonymous Session
func NewManager(provider identity.Provider, opts ...Option) *Manager {
	m := &Manager{
		provider:   provider,
		pending:    security.NewMemorySlot(),
		adminGroup: DefaultAdminGroup,
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = log.OrDefault(m.logger).With("component", "session")
	return m
}

// AdminGroup returns the group label that grants administrator status
func (m *Manager) AdminGroup() string {
	return m.adminGroup
}

// Initialize restores a remembered session and pending registration. Only
// the first call does any work; concurrent callers wait for it. Failures
// are logged and leave the Session anonymous.
func (m *Manager) Initialize(ctx context.Context) {
	m.initMu.Lock()
	defer m.initMu.Unlock()

	if m.initialized {
		return
	}
	m.initialized = true

	m.restorePending()

	m.mu.RLock()
	gen := m.generation
	m.mu.RUnlock()

	tokens, err := m.provider.RestoreSession(ctx)
	if err != nil {
		m.logger.WithError(err).Warn("could not restore session, continuing anonymously")
		return
	}
	if tokens == nil {
		m.logger.Debug("no remembered session")
		return
	}

	sess, err := m.buildSession(ctx, tokens.Bearer())
	if err != nil {
		m.logger.WithError(err).Warn("remembered session is unusable, continuing anonymously")
		return
	}

	m.mu.Lock()
	// A login, logout or invalidation that finished while the restore was
	// in flight wins.
	committed := m.generation == gen
	if committed {
		m.session = sess
	}
	m.mu.Unlock()

	if committed {
		m.metrics.ObserveTransition(transitionRestore)
		m.logger.Info("session restored", "user_id", sess.UserID)
	}
}

// Initialized reports whether Initialize has run
func (m *Manager) Initialized() bool {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	return m.initialized
}

func (m *Manager) restorePending() {
	var pv PendingVerification
	found, err := m.pending.Load(&pv)
	if err != nil {
		m.logger.WithError(err).Warn("could not restore pending registration")
		return
	}
	if !found || pv.Email == "" {
		return
	}
	m.mu.Lock()
	m.pendingCurrent = &pv
	m.mu.Unlock()
}

// Register starts a sign-up. Input is validated locally first; nothing
// invalid reaches the identity provider. Any earlier pending registration
// is discarded. On success the returned PendingVerification awaits
// ConfirmRegistration; the user is not signed in.
func (m *Manager) Register(ctx context.Context, email, password, fullName string) (*PendingVerification, error) {
	email, err := validateEmail(email)
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return nil, errors.New(errors.KindValidation, errors.ErrCodeRegPasswordPolicy, "password must be at least 8 characters").
			WithSuggestion("Choose a longer password")
	}
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, errors.New(errors.KindValidation, errors.ErrCodeRegInvalidInput, "full name is required")
	}

	m.setPending(nil)

	if err := m.provider.SignUp(ctx, email, password, identity.Attributes{"name": fullName}); err != nil {
		m.logger.WithError(err).Info("registration rejected", "email", email)
		return nil, err
	}

	pv := &PendingVerification{Email: email, CreatedAt: m.clock()}
	m.setPending(pv)
	m.metrics.ObserveTransition(transitionRegister)
	m.logger.Info("registration pending confirmation", "email", email)

	cp := *pv
	return &cp, nil
}

// ConfirmRegistration completes the pending sign-up for email. It fails
// with Validation, without contacting the provider, unless a registration
// for exactly that email is pending. A wrong or expired code keeps the
// registration pending so the user can retry.
func (m *Manager) ConfirmRegistration(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	if err := m.requirePending(email); err != nil {
		return err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return errors.New(errors.KindValidation, errors.ErrCodeRegInvalidInput, "confirmation code is required")
	}

	if err := m.provider.ConfirmSignUp(ctx, email, code); err != nil {
		m.logger.WithError(err).Info("confirmation rejected", "email", email)
		return err
	}

	m.setPending(nil)
	m.metrics.ObserveTransition(transitionConfirm)
	m.logger.Info("registration confirmed", "email", email)
	return nil
}

// ResendConfirmationCode asks for a new code for the pending registration
func (m *Manager) ResendConfirmationCode(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := m.requirePending(email); err != nil {
		return err
	}
	return m.provider.ResendConfirmationCode(ctx, email)
}

func (m *Manager) requirePending(email string) error {
	if m.Pending().Matches(email) {
		return nil
	}
	return errors.New(errors.KindValidation, errors.ErrCodeRegNoPending,
		"no pending registration for "+email).
		WithSuggestion("Run 'lostfound auth register' first")
}

// Login authenticates and, on success, replaces the Session in one step.
// On any failure the previous Session is left exactly as it was.
func (m *Manager) Login(ctx context.Context, email, password string) (Identity, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Identity{}, errors.Validation("email and password are required")
	}

	tokens, err := m.provider.Authenticate(ctx, email, password)
	if err != nil {
		m.logger.WithError(err).Info("login failed", "email", email)
		return Identity{}, err
	}

	// Nothing is remembered until the token proves usable, so a failed
	// login leaves both the Session and the remembered session as they were.
	sess, err := m.buildSession(ctx, tokens.Bearer())
	if err != nil {
		m.logger.WithError(err).Warn("login returned an unusable token")
		return Identity{}, err
	}
	if sess.Email == "" {
		sess.Email = email
	}

	m.commitMu.Lock()
	if err := m.provider.RememberSession(ctx, tokens); err != nil {
		// The login itself succeeded; it just won't survive the process.
		m.logger.WithError(err).Warn("failed to remember session")
	}
	m.mu.Lock()
	m.session = sess
	m.generation++
	m.mu.Unlock()
	m.commitMu.Unlock()

	m.metrics.ObserveTransition(transitionLogin)
	m.logger.Info("logged in", "user_id", sess.UserID)

	id, _ := sess.Identity()
	return id, nil
}

// Logout clears the Session immediately and then asks the provider to
// forget the remembered session. It never fails; provider errors are logged.
func (m *Manager) Logout(ctx context.Context) {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	m.mu.Lock()
	wasAuthenticated := m.session.IsAuthenticated()
	m.session = Session{}
	m.generation++
	m.mu.Unlock()

	if wasAuthenticated {
		m.metrics.ObserveTransition(transitionLogout)
		m.logger.Info("logged out")
	}

	if err := m.provider.ForgetSession(ctx); err != nil {
		m.logger.WithError(err).Warn("failed to forget remembered session")
	}
}

// Invalidate clears the Session if, and only if, it still holds token. It
// is called when the backend rejects token, so a newer login is never
// clobbered by a stale failure. It reports whether the Session was cleared.
func (m *Manager) Invalidate(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}

	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	m.mu.Lock()
	cleared := m.session.Token == token
	if cleared {
		m.session = Session{}
		m.generation++
	}
	m.mu.Unlock()

	if !cleared {
		return false
	}

	m.metrics.ObserveTransition(transitionInvalidate)
	m.logger.Warn("session token rejected by backend, signed out")
	if err := m.provider.ForgetSession(ctx); err != nil {
		m.logger.WithError(err).Warn("failed to forget rejected session")
	}
	return true
}

// IsAuthenticated reports whether the Session has both token and user
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.IsAuthenticated()
}

// IsAdmin reports whether the Session is authenticated and in the admin
// group. Missing or malformed group data means false.
func (m *Manager) IsAdmin() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.InGroup(m.adminGroup)
}

// CurrentUser returns the signed-in identity, if any
func (m *Manager) CurrentUser() (Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.Identity()
}

// Snapshot returns a copy of the current Session
func (m *Manager) Snapshot() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.clone()
}

// Pending returns a copy of the pending registration, or nil
func (m *Manager) Pending() *PendingVerification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.pendingCurrent == nil {
		return nil
	}
	cp := *m.pendingCurrent
	return &cp
}

func (m *Manager) setPending(pv *PendingVerification) {
	m.mu.Lock()
	m.pendingCurrent = pv
	m.mu.Unlock()

	var err error
	if pv == nil {
		err = m.pending.Clear()
	} else {
		err = m.pending.Save(pv)
	}
	if err != nil {
		m.logger.WithError(err).Warn("failed to persist pending registration")
	}
}

// buildSession decodes and optionally verifies token into a full snapshot
func (m *Manager) buildSession(ctx context.Context, token string) (Session, error) {
	claims, err := DecodeClaims(token)
	if err != nil {
		return Session{}, err
	}
	if m.verifier != nil {
		if err := m.verifier.Verify(ctx, token); err != nil {
			if _, ok := errors.As(err); ok {
				return Session{}, err
			}
			return Session{}, errors.Wrap(errors.KindUnauthenticated, errors.ErrCodeAuthTokenInvalid, "token failed verification", err)
		}
	}
	return Session{
		Token:       token,
		UserID:      claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
		Groups:      claims.Groups,
		Attributes:  claims.Attributes,
	}, nil
}

func validateEmail(email string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", errors.New(errors.KindValidation, errors.ErrCodeRegInvalidInput, "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", errors.New(errors.KindValidation, errors.ErrCodeRegInvalidInput, "email address is not valid").
			WithSuggestion("Use an address like name@example.com")
	}
	return email, nil
}
