// Package config loads the lostfound CLI configuration from a YAML file,
// an optional .env file and LOSTFOUND_* environment variables.
package config

import (
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/lostfound/internal/auth"
	"github.com/felixgeelhaar/lostfound/internal/errors"
	"github.com/felixgeelhaar/lostfound/internal/gateway"
	"github.com/felixgeelhaar/lostfound/internal/log"
)

// Defaults
const (
	DefaultAPITimeout = 30 * time.Second
	DefaultPendingTTL = 24 * time.Hour
	DefaultMaxImage   = "5 MiB"
	DefaultLogLevel   = "warn"
	DefaultLogFormat  = "text"
)

// Config is the complete lostfound configuration
type Config struct {
	API      APIConfig      `yaml:"api"`
	Identity IdentityConfig `yaml:"identity"`
	Session  SessionConfig  `yaml:"session"`
	Images   ImagesConfig   `yaml:"images"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Audit    AuditConfig    `yaml:"audit"`

	// Source is the file the configuration was read from, if any.
	Source string `yaml:"-"`
}

// APIConfig locates the lost-and-found backend
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// IdentityConfig locates the Cognito user pool
type IdentityConfig struct {
	Region     string `yaml:"region"`
	UserPoolID string `yaml:"user_pool_id,omitempty"`
	ClientID   string `yaml:"client_id"`

	// Endpoint overrides the regional Cognito endpoint.
	Endpoint string `yaml:"endpoint,omitempty"`

	// VerifyTokens checks ID token signatures against the pool's JWKS.
	VerifyTokens bool   `yaml:"verify_tokens,omitempty"`
	Issuer       string `yaml:"issuer,omitempty"`
	JWKSURL      string `yaml:"jwks_url,omitempty"`
}

// SessionConfig controls where credentials are kept
type SessionConfig struct {
	AdminGroup      string        `yaml:"admin_group,omitempty"`
	CredentialsPath string        `yaml:"credentials_path,omitempty"`
	Passphrase      string        `yaml:"passphrase,omitempty"`
	PendingTTL      time.Duration `yaml:"pending_ttl,omitempty"`
}

// ImagesConfig bounds item attachments
type ImagesConfig struct {
	// MaxSize is a human size such as "5 MiB" or "800KB".
	MaxSize      string   `yaml:"max_size,omitempty"`
	AllowedTypes []string `yaml:"allowed_types,omitempty"`
}

// LogConfig selects the log level and format
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// MetricsConfig enables the debug /metrics endpoint
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// AuditConfig controls the local record of moderation and deletions
type AuditConfig struct {
	Dir      string `yaml:"dir,omitempty"`
	Disabled bool   `yaml:"disabled,omitempty"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.normalize()
	return cfg
}

// Parse decodes YAML, expanding ${VAR} references with lookup
func Parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	expanded := os.Expand(string(data), func(key string) string {
		v, _ := lookup(key)
		return v
	})

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, errors.Wrap(errors.KindValidation, errors.ErrCodeInputInvalid, "invalid configuration", err)
	}
	return &cfg, nil
}

// normalize fills in defaults for unset fields
func (c *Config) normalize() {
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.Timeout <= 0 {
		c.API.Timeout = DefaultAPITimeout
	}

	c.Identity.Region = strings.TrimSpace(c.Identity.Region)
	c.Identity.ClientID = strings.TrimSpace(c.Identity.ClientID)
	if c.Identity.Region == "" && c.Identity.UserPoolID != "" {
		// Pool ids are "<region>_<suffix>".
		if region, _, ok := strings.Cut(c.Identity.UserPoolID, "_"); ok {
			c.Identity.Region = region
		}
	}
	if c.Identity.Issuer == "" && c.Identity.Region != "" && c.Identity.UserPoolID != "" {
		c.Identity.Issuer = fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.Identity.Region, c.Identity.UserPoolID)
	}

	if strings.TrimSpace(c.Session.AdminGroup) == "" {
		c.Session.AdminGroup = auth.DefaultAdminGroup
	}
	if c.Session.CredentialsPath == "" {
		c.Session.CredentialsPath = defaultCredentialsPath()
	}
	if c.Audit.Dir == "" {
		c.Audit.Dir = filepath.Join(filepath.Dir(c.Session.CredentialsPath), "audit")
	}
	if c.Session.PendingTTL <= 0 {
		c.Session.PendingTTL = DefaultPendingTTL
	}

	if strings.TrimSpace(c.Images.MaxSize) == "" {
		c.Images.MaxSize = DefaultMaxImage
	}
	if len(c.Images.AllowedTypes) == 0 {
		c.Images.AllowedTypes = append([]string(nil), gateway.DefaultImageTypes...)
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

// Validate checks the configuration is usable. Checks that only matter to
// some commands live in RequireAPI and RequireIdentity.
func (c *Config) Validate() error {
	if c.API.BaseURL != "" {
		if err := validateURL("api.base_url", c.API.BaseURL); err != nil {
			return err
		}
	}
	if c.Identity.Endpoint != "" {
		if err := validateURL("identity.endpoint", c.Identity.Endpoint); err != nil {
			return err
		}
	}
	if _, err := c.ImagePolicy(); err != nil {
		return err
	}
	if _, err := c.LogConfig(); err != nil {
		return err
	}
	if c.Identity.VerifyTokens && c.Identity.Issuer == "" {
		return configError("identity.verify_tokens needs identity.issuer or identity.user_pool_id",
			"Set identity.user_pool_id or LOSTFOUND_USER_POOL_ID")
	}
	return nil
}

// RequireAPI reports whether the backend is configured
func (c *Config) RequireAPI() error {
	if c.API.BaseURL == "" {
		return configError("api.base_url is not set", "Set api.base_url in the config file or LOSTFOUND_API_URL")
	}
	return nil
}

// RequireIdentity reports whether the user pool is configured
func (c *Config) RequireIdentity() error {
	if c.Identity.ClientID == "" {
		return configError("identity.client_id is not set", "Set identity.client_id or LOSTFOUND_CLIENT_ID")
	}
	if c.Identity.Region == "" && c.Identity.Endpoint == "" {
		return configError("identity.region is not set", "Set identity.region or LOSTFOUND_REGION")
	}
	return nil
}

// ImagePolicy returns the attachment policy
func (c *Config) ImagePolicy() (gateway.ImagePolicy, error) {
	size, err := humanize.ParseBytes(c.Images.MaxSize)
	if err != nil || size == 0 || size > math.MaxInt64 {
		return gateway.ImagePolicy{}, configError(
			fmt.Sprintf("images.max_size %q is not a size", c.Images.MaxSize),
			"Use a value such as \"5 MiB\" or \"800KB\"")
	}
	return gateway.ImagePolicy{MaxBytes: int64(size), AllowedTypes: c.Images.AllowedTypes}, nil
}

// LogConfig returns the logger configuration
func (c *Config) LogConfig() (log.Config, error) {
	cfg := log.DefaultConfig()
	level, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return cfg, configError(err.Error(), "")
	}
	format, err := log.ParseFormat(c.Log.Format)
	if err != nil {
		return cfg, configError(err.Error(), "")
	}
	cfg.Level = level
	cfg.Format = format
	return cfg, nil
}

// Passphrase returns the credential store passphrase. Without one the
// store is keyed to the local user and host, which keeps tokens out of
// plain text but is not a secret.
func (c *Config) Passphrase() string {
	if c.Session.Passphrase != "" {
		return c.Session.Passphrase
	}
	host, _ := os.Hostname()
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}
	return "lostfound:" + user + "@" + host
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return configError(fmt.Sprintf("%s %q is not an absolute http(s) URL", field, raw), "")
	}
	return nil
}

func configError(message, suggestion string) *errors.Failure {
	f := errors.New(errors.KindValidation, errors.ErrCodeInputInvalid, message)
	if suggestion != "" {
		f = f.WithSuggestion(suggestion)
	}
	return f
}

func defaultCredentialsPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "lostfound", "credentials.json")
	}
	return filepath.Join(".lostfound", "credentials.json")
}
