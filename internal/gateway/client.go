// Package gateway is the single path from the CLI to the lost-and-found
// backend. Every call reads the current session once, is guarded locally
// by the access level it needs, and resolves to a value or a
// *errors.Failure.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/lostfound/internal/auth"
	"github.com/felixgeelhaar/lostfound/internal/errors"
	"github.com/felixgeelhaar/lostfound/internal/log"
	"github.com/felixgeelhaar/lostfound/internal/metrics"
	"github.com/felixgeelhaar/lostfound/internal/version"
)

const (
	// DefaultTimeout bounds every backend call.
	DefaultTimeout = 30 * time.Second

	// RequestIDHeader carries a per-call correlation id.
	RequestIDHeader = "X-Request-ID"

	maxErrorBodyBytes = 64 << 10
)

// SessionReader exposes the current session snapshot. *auth.Manager
// satisfies it.
type SessionReader interface {
	Snapshot() auth.Session
}

// UnauthenticatedHook is called when the backend rejects the token a
// request was sent with.
type UnauthenticatedHook func(ctx context.Context, token string)

// Access is the session a call requires before it may leave the process.
type Access int

const (
	AccessPublic Access = iota
	AccessAuthenticated
	AccessAdmin
)

// String returns the access level name
func (a Access) String() string {
	switch a {
	case AccessPublic:
		return "public"
	case AccessAuthenticated:
		return "authenticated"
	case AccessAdmin:
		return "admin"
	default:
		return fmt.Sprintf("access(%d)", int(a))
	}
}

// Gateway is the lost-and-found backend client
type Gateway struct {
	baseURL     *url.URL
	session     SessionReader
	httpClient  *http.Client
	logger      *log.Logger
	metrics     *metrics.Metrics
	images      ImagePolicy
	onAuthLost  UnauthenticatedHook
	clock       func() time.Time
	adminGroup  string
	requestIDFn func() string
	userAgent   string
}

// Option configures a Gateway
type Option func(*Gateway)

// WithHTTPClient sets the HTTP client. A client without a timeout gets
// DefaultTimeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *Gateway) {
		if hc != nil {
			g.httpClient = hc
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *log.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithImagePolicy sets the attachment policy
func WithImagePolicy(p ImagePolicy) Option {
	return func(g *Gateway) { g.images = p.normalize() }
}

// WithUnauthenticatedHook sets the callback for backend 401 responses
func WithUnauthenticatedHook(hook UnauthenticatedHook) Option {
	return func(g *Gateway) { g.onAuthLost = hook }
}

// WithClock overrides the time source used for date validation
func WithClock(clock func() time.Time) Option {
	return func(g *Gateway) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithAdminGroup sets the group label that grants admin access
func WithAdminGroup(group string) Option {
	return func(g *Gateway) {
		if strings.TrimSpace(group) != "" {
			g.adminGroup = group
		}
	}
}

// WithUserAgent overrides the User-Agent header
func WithUserAgent(ua string) Option {
	return func(g *Gateway) {
		if ua != "" {
			g.userAgent = ua
		}
	}
}

// New creates a Gateway for the backend at baseURL
func New(baseURL string, session SessionReader, opts ...Option) (*Gateway, error) {
	if session == nil {
		return nil, errors.New(errors.KindValidation, errors.ErrCodeInputInvalid, "gateway requires a session reader")
	}
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New(errors.KindValidation, errors.ErrCodeInputInvalid,
			fmt.Sprintf("invalid API base URL %q", baseURL)).
			WithSuggestion("Set api.base_url or LOSTFOUND_API_URL to an absolute http(s) URL")
	}

	g := &Gateway{
		baseURL:     u,
		session:     session,
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		images:      DefaultImagePolicy(),
		clock:       time.Now,
		adminGroup:  auth.DefaultAdminGroup,
		requestIDFn: uuid.NewString,
		userAgent:   version.GetInfo().UserAgent(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.httpClient.Timeout <= 0 {
		hc := *g.httpClient
		hc.Timeout = DefaultTimeout
		g.httpClient = &hc
	}
	g.logger = log.OrDefault(g.logger).With("component", "gateway")
	return g, nil
}

// ImagePolicy returns the attachment policy in effect
func (g *Gateway) ImagePolicy() ImagePolicy {
	return g.images
}

// call describes one backend request
type call struct {
	op     string
	access Access
	method string
	path   string
	query  url.Values
	body   any
	out    any
}

// ErrorResponse is the error body shape of the backend handlers
type ErrorResponse struct {
	Error        string `json:"error"`
	Message      string `json:"message"`
	ErrorMessage string `json:"errorMessage"`
}

func (r ErrorResponse) text() string {
	for _, s := range []string{r.Error, r.Message, r.ErrorMessage} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// guard rejects calls the snapshot cannot make
func (g *Gateway) guard(c call, snap auth.Session) error {
	switch c.access {
	case AccessAuthenticated:
		if !snap.IsAuthenticated() {
			return errors.AuthRequired(c.op)
		}
	case AccessAdmin:
		if !snap.IsAuthenticated() {
			return errors.AuthRequired(c.op)
		}
		if !snap.InGroup(g.adminGroup) {
			return errors.AdminRequired(c.op)
		}
	}
	return nil
}

// do performs c with the credentials of snap
func (g *Gateway) do(ctx context.Context, snap auth.Session, c call) (err error) {
	if err := g.guard(c, snap); err != nil {
		g.metrics.ObserveGuard(c.op, errors.KindOf(err))
		g.logger.DebugContext(ctx, "request blocked locally", "operation", c.op, "access", c.access.String())
		return err
	}

	start := time.Now()
	requestID := g.requestIDFn()
	logger := g.logger.With("operation", c.op, "request_id", requestID)
	defer func() {
		elapsed := time.Since(start)
		g.metrics.ObserveRequest(c.op, err, elapsed)
		if err != nil {
			logger.WithError(err).DebugContext(ctx, "request failed", "duration", elapsed)
			return
		}
		logger.DebugContext(ctx, "request completed", "duration", elapsed)
	}()

	req, err := g.newRequest(ctx, c, snap.Token, requestID)
	if err != nil {
		return err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return errors.Network(c.op, err)
	}
	defer resp.Body.Close()

	if err := g.parseResponse(resp, c); err != nil {
		if errors.IsKind(err, errors.KindUnauthenticated) && snap.Token != "" && g.onAuthLost != nil {
			g.onAuthLost(ctx, snap.Token)
		}
		return err
	}
	return nil
}

func (g *Gateway) newRequest(ctx context.Context, c call, token, requestID string) (*http.Request, error) {
	// c.path is already escaped.
	u := *g.baseURL
	unescaped, err := url.PathUnescape(c.path)
	if err != nil {
		return nil, errors.Wrap(errors.KindValidation, errors.ErrCodeInputInvalid,
			fmt.Sprintf("%s: invalid path", c.op), err)
	}
	u.Path = g.baseURL.Path + unescaped
	u.RawPath = g.baseURL.EscapedPath() + c.path
	if len(c.query) > 0 {
		u.RawQuery = c.query.Encode()
	}

	var body io.Reader
	if c.body != nil {
		payload, err := json.Marshal(c.body)
		if err != nil {
			return nil, errors.Wrap(errors.KindValidation, errors.ErrCodeInputInvalid,
				fmt.Sprintf("%s: cannot encode request", c.op), err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, u.String(), body)
	if err != nil {
		return nil, errors.Wrap(errors.KindUnknown, errors.ErrCodeAPIUnexpected,
			fmt.Sprintf("%s: cannot build request", c.op), err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set(RequestIDHeader, requestID)
	return req, nil
}

// parseResponse maps the response onto c.out or a failure
func (g *Gateway) parseResponse(resp *http.Response, c call) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

		var errResp ErrorResponse
		message := ""
		if err := json.Unmarshal(body, &errResp); err == nil {
			message = errResp.text()
		}
		if message == "" {
			message = fmt.Sprintf("%s failed with status %d", c.op, resp.StatusCode)
		}
		return errors.FromStatus(resp.StatusCode, message)
	}

	if c.out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(c.out); err != nil {
		return errors.Wrap(errors.KindUnknown, errors.ErrCodeAPIUnexpected,
			fmt.Sprintf("%s: cannot decode response", c.op), err).
			WithStatus(resp.StatusCode)
	}
	return nil
}
