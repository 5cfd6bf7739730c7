package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/felixgeelhaar/lostfound/internal/errors"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "LOSTFOUND_"

// FileName is the config file looked for during discovery.
const FileName = "config.yaml"

// DirName is the per-project config directory.
const DirName = ".lostfound"

// Options control where configuration is read from
type Options struct {
	// Path is an explicit config file. It must exist.
	Path string

	// DotEnvFiles are read for variables not set in the environment.
	// Missing files are ignored.
	DotEnvFiles []string

	// LookupEnv reads the process environment. Defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)

	// Discover searches for a config file when Path is empty.
	Discover bool
}

// Load reads configuration the way the CLI does: .env in the working
// directory, then the config file at path or a discovered one, then
// environment overrides.
func Load(path string) (*Config, error) {
	return LoadWith(Options{
		Path:        path,
		DotEnvFiles: []string{".env"},
		Discover:    true,
	})
}

// LoadWith reads configuration according to opts
func LoadWith(opts Options) (*Config, error) {
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	lookup, err := withDotEnv(lookup, opts.DotEnvFiles)
	if err != nil {
		return nil, err
	}

	path := opts.Path
	if path == "" {
		if v, ok := lookup(EnvPrefix + "CONFIG"); ok && v != "" {
			path = v
		}
	}
	explicit := path != ""
	if !explicit && opts.Discover {
		path = Discover()
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			parsed, err := Parse(data, lookup)
			if err != nil {
				return nil, err
			}
			cfg = parsed
			cfg.Source = path
		case explicit || !os.IsNotExist(err):
			return nil, errors.Wrap(errors.KindValidation, errors.ErrCodeFileReadFailed,
				"cannot read config file "+path, err)
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withDotEnv layers .env values under the real environment. A .env file
// that exists but cannot be parsed is an error.
func withDotEnv(lookup func(string) (string, bool), files []string) (func(string) (string, bool), error) {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return lookup, nil
	}
	values, err := godotenv.Read(existing...)
	if err != nil {
		return nil, errors.Wrap(errors.KindValidation, errors.ErrCodeFileReadFailed,
			"cannot read "+strings.Join(existing, ", "), err).
			WithSuggestion("Fix the .env file or remove it")
	}
	return func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := values[key]
		return v, ok
	}, nil
}

// applyEnv overrides file values with LOSTFOUND_* variables
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"API_URL":           &cfg.API.BaseURL,
		"REGION":            &cfg.Identity.Region,
		"USER_POOL_ID":      &cfg.Identity.UserPoolID,
		"CLIENT_ID":         &cfg.Identity.ClientID,
		"IDENTITY_ENDPOINT": &cfg.Identity.Endpoint,
		"ISSUER":            &cfg.Identity.Issuer,
		"JWKS_URL":          &cfg.Identity.JWKSURL,
		"ADMIN_GROUP":       &cfg.Session.AdminGroup,
		"CREDENTIALS_PATH":  &cfg.Session.CredentialsPath,
		"PASSPHRASE":        &cfg.Session.Passphrase,
		"IMAGE_MAX_SIZE":    &cfg.Images.MaxSize,
		"LOG_LEVEL":         &cfg.Log.Level,
		"LOG_FORMAT":        &cfg.Log.Format,
		"METRICS_ADDR":      &cfg.Metrics.Addr,
		"AUDIT_DIR":         &cfg.Audit.Dir,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"API_TIMEOUT": &cfg.API.Timeout,
		"PENDING_TTL": &cfg.Session.PendingTTL,
	}
	for name, dst := range durations {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return configError(EnvPrefix+name+" is not a duration: "+v, "Use a value such as \"30s\" or \"24h\"")
		}
		*dst = d
	}

	bools := map[string]*bool{
		"VERIFY_TOKENS":  &cfg.Identity.VerifyTokens,
		"AUDIT_DISABLED": &cfg.Audit.Disabled,
	}
	for name, dst := range bools {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return configError(EnvPrefix+name+" is not a boolean: "+v, "")
		}
		*dst = b
	}
	if v, ok := lookup(EnvPrefix + "IMAGE_TYPES"); ok && v != "" {
		var types []string
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
		cfg.Images.AllowedTypes = types
	}
	return nil
}

// Discover finds the config file. It looks for .lostfound/config.yaml in
// the working directory and its parents up to the repository root, then
// in the user config directory. It returns "" when none exists.
func Discover() string {
	if cwd, err := os.Getwd(); err == nil {
		dir := cwd
		for {
			candidate := filepath.Join(dir, DirName, FileName)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
			// Stop at git root
			if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	if dir, err := os.UserConfigDir(); err == nil {
		candidate := filepath.Join(dir, "lostfound", FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
