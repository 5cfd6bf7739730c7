// Package cognito talks to an Amazon Cognito user pool through its JSON
// protocol, using only the unauthenticated public-client operations.
package cognito

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/felixgeelhaar/lostfound/internal/errors"
	"github.com/felixgeelhaar/lostfound/internal/identity"
	"github.com/felixgeelhaar/lostfound/internal/log"
	"github.com/felixgeelhaar/lostfound/internal/metrics"
	"github.com/felixgeelhaar/lostfound/internal/security"
)

const (
	targetPrefix      = "AWSCognitoIdentityProviderService."
	contentType       = "application/x-amz-json-1.1"
	flowPassword      = "USER_PASSWORD_AUTH"
	flowRefresh       = "REFRESH_TOKEN_AUTH"
	defaultTimeout    = 15 * time.Second
	expiryDelta       = 30 * time.Second
	maxErrorBodyBytes = 64 << 10
)

// TokenCache remembers the tokens of the last successful authentication.
// security.Slot and security.MemorySlot satisfy it.
type TokenCache interface {
	Load(v any) (bool, error)
	Save(v any) error
	Clear() error
}

// Config identifies the user pool app client.
type Config struct {
	// Region of the user pool, e.g. "eu-central-1".
	Region string

	// ClientID of the public app client (no secret).
	ClientID string

	// Endpoint overrides the regional endpoint. Used for local testing.
	Endpoint string
}

// Client implements identity.Provider against a Cognito user pool.
type Client struct {
	endpoint   string
	clientID   string
	httpClient *http.Client
	cache      TokenCache
	logger     *log.Logger
	metrics    *metrics.Metrics
	clock      func() time.Time
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for all calls
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTokenCache sets where authenticated tokens are remembered
func WithTokenCache(cache TokenCache) Option {
	return func(c *Client) {
		if cache != nil {
			c.cache = cache
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithClock overrides the time source used for token expiry
func WithClock(clock func() time.Time) Option {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// New creates a Cognito client
func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New(errors.KindValidation, errors.ErrCodeInputInvalid, "cognito client id is required").
			WithSuggestion("Set identity.client_id or LOSTFOUND_CLIENT_ID")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		if strings.TrimSpace(cfg.Region) == "" {
			return nil, errors.New(errors.KindValidation, errors.ErrCodeInputInvalid, "cognito region or endpoint is required").
				WithSuggestion("Set identity.region or LOSTFOUND_REGION")
		}
		endpoint = "https://cognito-idp." + cfg.Region + ".amazonaws.com"
	}

	c := &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		clientID:   cfg.ClientID,
		httpClient: &http.Client{Timeout: defaultTimeout},
		cache:      security.NewMemorySlot(),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.OrDefault(c.logger).With("component", "cognito")
	return c, nil
}

var _ identity.Provider = (*Client)(nil)

type attributeType struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

// SignUp registers a new, unconfirmed user. The email doubles as username.
func (c *Client) SignUp(ctx context.Context, email, password string, attrs identity.Attributes) error {
	userAttrs := []attributeType{{Name: "email", Value: email}}
	for name, value := range attrs {
		if name == "email" {
			continue
		}
		userAttrs = append(userAttrs, attributeType{Name: name, Value: value})
	}

	return c.call(ctx, "SignUp", map[string]any{
		"ClientId":       c.clientID,
		"Username":       email,
		"Password":       password,
		"UserAttributes": userAttrs,
	}, nil)
}

// ConfirmSignUp confirms a registration with the emailed code
func (c *Client) ConfirmSignUp(ctx context.Context, email, code string) error {
	return c.call(ctx, "ConfirmSignUp", map[string]any{
		"ClientId":         c.clientID,
		"Username":         email,
		"ConfirmationCode": code,
	}, nil)
}

// ResendConfirmationCode triggers delivery of a new confirmation code
func (c *Client) ResendConfirmationCode(ctx context.Context, email string) error {
	return c.call(ctx, "ResendConfirmationCode", map[string]any{
		"ClientId": c.clientID,
		"Username": email,
	}, nil)
}

type authResult struct {
	AccessToken  string `json:"AccessToken"`
	ExpiresIn    int64  `json:"ExpiresIn"`
	IDToken      string `json:"IdToken"`
	RefreshToken string `json:"RefreshToken"`
	TokenType    string `json:"TokenType"`
}

type initiateAuthResponse struct {
	AuthenticationResult *authResult `json:"AuthenticationResult"`
	ChallengeName        string      `json:"ChallengeName"`
}

// Authenticate signs in with email and password
func (c *Client) Authenticate(ctx context.Context, email, password string) (*identity.Tokens, error) {
	tokens, err := c.initiateAuth(ctx, flowPassword, map[string]string{
		"USERNAME": email,
		"PASSWORD": password,
	})
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// RememberSession persists tokens in the token cache
func (c *Client) RememberSession(_ context.Context, tokens *identity.Tokens) error {
	if tokens == nil || tokens.IDToken == "" {
		return errors.New(errors.KindValidation, errors.ErrCodeInputInvalid, "no session to remember")
	}
	return c.cache.Save(tokens)
}

// RestoreSession loads remembered tokens, refreshing them when expired
func (c *Client) RestoreSession(ctx context.Context) (*identity.Tokens, error) {
	var tokens identity.Tokens
	found, err := c.cache.Load(&tokens)
	if err != nil {
		return nil, err
	}
	if !found || tokens.IDToken == "" {
		return nil, nil
	}

	if !c.expired(&tokens.Token) {
		return &tokens, nil
	}

	if tokens.RefreshToken == "" {
		c.logger.Debug("remembered session expired without refresh token")
		return nil, c.cache.Clear()
	}

	refreshed, err := c.initiateAuth(ctx, flowRefresh, map[string]string{
		"REFRESH_TOKEN": tokens.RefreshToken,
	})
	if err != nil {
		if errors.IsKind(err, errors.KindUnauthenticated) {
			if clearErr := c.cache.Clear(); clearErr != nil {
				c.logger.WithError(clearErr).Warn("failed to drop rejected session")
			}
		}
		return nil, err
	}

	// Refresh responses omit the refresh token.
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = tokens.RefreshToken
	}
	if err := c.cache.Save(refreshed); err != nil {
		c.logger.WithError(err).Warn("failed to remember refreshed session")
	}
	return refreshed, nil
}

// ForgetSession drops remembered tokens and revokes the refresh token
func (c *Client) ForgetSession(ctx context.Context) error {
	var tokens identity.Tokens
	found, loadErr := c.cache.Load(&tokens)

	if err := c.cache.Clear(); err != nil {
		return err
	}

	if loadErr == nil && found && tokens.RefreshToken != "" {
		err := c.call(ctx, "RevokeToken", map[string]any{
			"ClientId": c.clientID,
			"Token":    tokens.RefreshToken,
		}, nil)
		if err != nil {
			c.logger.WithError(err).Debug("refresh token revocation failed")
		}
	}
	return nil
}

func (c *Client) initiateAuth(ctx context.Context, flow string, params map[string]string) (*identity.Tokens, error) {
	var resp initiateAuthResponse
	err := c.call(ctx, "InitiateAuth", map[string]any{
		"AuthFlow":       flow,
		"ClientId":       c.clientID,
		"AuthParameters": params,
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.ChallengeName != "" {
		return nil, errors.New(errors.KindUnauthenticated, errors.ErrCodeIdentityRejected,
			fmt.Sprintf("sign-in requires an unsupported challenge: %s", resp.ChallengeName)).
			WithSuggestion("Complete the challenge in the web application, then sign in again")
	}
	if resp.AuthenticationResult == nil || resp.AuthenticationResult.IDToken == "" {
		return nil, errors.New(errors.KindUnknown, errors.ErrCodeIdentityRejected, "sign-in response carried no tokens")
	}

	r := resp.AuthenticationResult
	tokens := &identity.Tokens{
		Token: oauth2.Token{
			AccessToken:  r.AccessToken,
			TokenType:    r.TokenType,
			RefreshToken: r.RefreshToken,
		},
		IDToken: r.IDToken,
	}
	if r.ExpiresIn > 0 {
		tokens.Expiry = c.clock().Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return tokens, nil
}

func (c *Client) expired(t *oauth2.Token) bool {
	if t.Expiry.IsZero() {
		return false
	}
	return !c.clock().Add(expiryDelta).Before(t.Expiry)
}

// call posts one JSON protocol request and decodes the response into out
func (c *Client) call(ctx context.Context, op string, payload any, out any) (err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveIdentity(op, err, time.Since(start)) }()

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(errors.KindUnknown, errors.ErrCodeIdentityRejected, "failed to encode "+op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/", bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(errors.KindUnknown, errors.ErrCodeIdentityUnavailable, "failed to build "+op+" request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Amz-Target", targetPrefix+op)

	c.logger.Debug("identity request", "operation", op)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.KindNetwork, errors.ErrCodeIdentityUnavailable, "identity provider unreachable", err).
			WithSuggestion("Check your network connection and retry")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return mapException(resp.StatusCode, resp.Header.Get("X-Amzn-ErrorType"), data)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(errors.KindUnknown, errors.ErrCodeIdentityRejected, "undecodable "+op+" response", err).
			WithStatus(resp.StatusCode)
	}
	return nil
}
