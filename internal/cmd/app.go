// Package cmd implements the lostfound command line: configuration and
// session wiring, and one cobra command per backend operation.
package cmd

import (
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/lostfound/internal/auth"
	"github.com/felixgeelhaar/lostfound/internal/auth/oidc"
	"github.com/felixgeelhaar/lostfound/internal/config"
	"github.com/felixgeelhaar/lostfound/internal/errors"
	"github.com/felixgeelhaar/lostfound/internal/gateway"
	"github.com/felixgeelhaar/lostfound/internal/identity/cognito"
	"github.com/felixgeelhaar/lostfound/internal/log"
	"github.com/felixgeelhaar/lostfound/internal/metrics"
	"github.com/felixgeelhaar/lostfound/internal/security"
	"github.com/felixgeelhaar/lostfound/internal/ux"
)

// Credential store slots.
const (
	sessionSlot = "session"
	pendingSlot = "pending"
)

// annotationNoSession marks commands that run without configuration of
// the backend or the user pool.
const annotationNoSession = "lostfound/no-session"

// App holds everything a command needs. It is built once per invocation
// in the root command's PersistentPreRunE.
type App struct {
	flags globalFlags

	stdout    io.Writer
	stderr    io.Writer
	lookupEnv func(string) (string, bool)
	prompter  ux.Prompter
	http      *http.Client
	hermetic  bool

	cfg           *config.Config
	logger        *log.Logger
	registry      *prometheus.Registry
	metrics       *metrics.Metrics
	metricsServer *metrics.Server
	styles        ux.Styles
	out           ux.Formatter
	store         *security.CredentialStore
	session       *auth.Manager
	gateway       *gateway.Gateway
	audit         *security.AuditLogger
}

// globalFlags are the persistent flags of the root command
type globalFlags struct {
	configPath  string
	output      string
	noColor     bool
	verbose     bool
	metricsAddr string
}

// Option configures an App
type Option func(*App)

// WithOutput redirects command output and diagnostics
func WithOutput(stdout, stderr io.Writer) Option {
	return func(a *App) {
		if stdout != nil {
			a.stdout = stdout
		}
		if stderr != nil {
			a.stderr = stderr
		}
	}
}

// WithEnvironment replaces the process environment. Config discovery and
// .env files are skipped so the result depends on lookup alone.
func WithEnvironment(lookup func(string) (string, bool)) Option {
	return func(a *App) {
		if lookup != nil {
			a.lookupEnv = lookup
			a.hermetic = true
		}
	}
}

// WithPrompter sets how missing values are asked for
func WithPrompter(p ux.Prompter) Option {
	return func(a *App) {
		if p != nil {
			a.prompter = p
		}
	}
}

// WithHTTPClient sets the HTTP client used for the backend and the user pool
func WithHTTPClient(hc *http.Client) Option {
	return func(a *App) { a.http = hc }
}

func newApp(opts ...Option) *App {
	a := &App{
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		lookupEnv: os.LookupEnv,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.prompter == nil {
		a.prompter = ux.DefaultPrompter()
	}
	a.styles = ux.PlainStyles()
	a.logger = log.Discard()
	return a
}

// setup loads configuration and builds the session and gateway for cmd
func (a *App) setup(cmd *cobra.Command) error {
	ctx := cmd.Context()

	noSession := cmd.Annotations[annotationNoSession] != ""

	cfg, err := a.loadConfig()
	if err != nil {
		if !noSession {
			return err
		}
		cfg = config.Default()
	}
	if a.flags.metricsAddr != "" {
		cfg.Metrics.Addr = a.flags.metricsAddr
	}
	a.cfg = cfg

	logCfg, err := cfg.LogConfig()
	if err != nil {
		return err
	}
	if a.flags.verbose {
		logCfg.Level = log.LevelDebug
	}
	logCfg.Output = a.stderr
	a.logger = log.New(logCfg)
	log.SetDefaultLogger(a.logger)

	a.styles = ux.NewStyles(a.flags.noColor)
	out, err := ux.NewFormatter(a.flags.output, &ux.FormatterOptions{
		Writer: a.stdout,
		Styles: &a.styles,
	})
	if err != nil {
		return errors.New(errors.KindValidation, errors.ErrCodeInputInvalid, err.Error()).
			WithSuggestion("Use --output text, json or yaml")
	}
	a.out = out

	a.registry, a.metrics = metrics.NewRegistry()
	if cfg.Metrics.Addr != "" {
		srv, err := metrics.Listen(cfg.Metrics.Addr, a.registry)
		if err != nil {
			return errors.Wrap(errors.KindValidation, errors.ErrCodeInputInvalid,
				"cannot serve metrics on "+cfg.Metrics.Addr, err)
		}
		a.metricsServer = srv
		a.logger.Info("serving metrics", "addr", srv.Addr())
	}

	if noSession {
		return nil
	}
	return a.connect(ctx)
}

func (a *App) loadConfig() (*config.Config, error) {
	opts := config.Options{
		Path:      a.flags.configPath,
		LookupEnv: a.lookupEnv,
	}
	if !a.hermetic {
		opts.DotEnvFiles = []string{".env"}
		opts.Discover = true
	}
	return config.LoadWith(opts)
}

// connect opens the credential store, restores the session and builds
// the gateway. The session is initialized before any backend call.
func (a *App) connect(ctx context.Context) error {
	cfg := a.cfg
	if err := cfg.RequireAPI(); err != nil {
		return err
	}
	if err := cfg.RequireIdentity(); err != nil {
		return err
	}

	store, err := security.NewCredentialStore(cfg.Session.CredentialsPath, cfg.Passphrase())
	if err != nil {
		return errors.Wrap(errors.KindUnknown, errors.ErrCodeFileReadFailed, "cannot open credential store", err).
			WithSuggestion("Check session.credentials_path and session.passphrase")
	}
	a.store = store

	provider, err := cognito.New(cognito.Config{
		Region:   cfg.Identity.Region,
		ClientID: cfg.Identity.ClientID,
		Endpoint: cfg.Identity.Endpoint,
	},
		cognito.WithHTTPClient(a.http),
		cognito.WithTokenCache(store.Slot(sessionSlot, 0)),
		cognito.WithLogger(a.logger),
		cognito.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}

	managerOpts := []auth.Option{
		auth.WithLogger(a.logger),
		auth.WithMetrics(a.metrics),
		auth.WithAdminGroup(cfg.Session.AdminGroup),
		auth.WithPendingStore(store.Slot(pendingSlot, cfg.Session.PendingTTL)),
	}
	if cfg.Identity.VerifyTokens {
		verifier, err := oidc.NewVerifier(ctx, oidc.Config{
			Issuer:   cfg.Identity.Issuer,
			ClientID: cfg.Identity.ClientID,
			JWKSURL:  cfg.Identity.JWKSURL,
		})
		if err != nil {
			return err
		}
		managerOpts = append(managerOpts, auth.WithVerifier(verifier))
	}
	a.session = auth.NewManager(provider, managerOpts...)

	policy, err := cfg.ImagePolicy()
	if err != nil {
		return err
	}
	hc := a.http
	if hc == nil {
		hc = &http.Client{Timeout: cfg.API.Timeout}
	}
	gw, err := gateway.New(cfg.API.BaseURL, a.session,
		gateway.WithHTTPClient(hc),
		gateway.WithLogger(a.logger),
		gateway.WithMetrics(a.metrics),
		gateway.WithImagePolicy(policy),
		gateway.WithAdminGroup(cfg.Session.AdminGroup),
		gateway.WithUnauthenticatedHook(func(ctx context.Context, token string) {
			a.session.Invalidate(ctx, token)
		}),
	)
	if err != nil {
		return err
	}
	a.gateway = gw

	a.session.Initialize(ctx)
	return nil
}

// render writes a command result in the selected format
func (a *App) render(v any) error {
	return a.out.Format(v)
}

// notice renders a one-line result
func (a *App) notice(message string, details ...string) error {
	return a.render(&ux.Notice{Message: message, Details: details})
}

// reportError prints err to stderr the way the user should see it
func (a *App) reportError(err error) {
	_, _ = io.WriteString(a.stderr, ux.FormatError(err, a.styles, a.flags.verbose)+"\n")
}

// close releases resources held for the invocation
func (a *App) close() {
	if a.audit != nil {
		_ = a.audit.Close()
	}
	if a.metricsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.metricsServer.Shutdown(ctx); err != nil {
		a.logger.WithError(err).Debug("metrics server shutdown failed")
	}
}
