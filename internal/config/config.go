// Package config reads the client settings from the environment.
package config

import (
	"github.com/joho/godotenv"
	"github.com/myrjola/talespin/internal/envstruct"
	"github.com/myrjola/talespin/internal/errors"
	"github.com/myrjola/talespin/internal/retry"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

var ErrInvalidConfig = errors.NewSentinel("invalid configuration")

// Local holds the settings that do not involve the story backend.
type Local struct {
	// Journal is the SQLite file keeping play transcripts, or ":memory:" to keep nothing.
	Journal   string `env:"TALESPIN_JOURNAL" envDefault:"./talespin.sqlite"`
	LogLevel  string `env:"TALESPIN_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"TALESPIN_LOG_FORMAT" envDefault:"text"`
	// PprofAddr enables the profiling endpoint when set, e.g. localhost:6060.
	PprofAddr string `env:"TALESPIN_PPROF_ADDR" envDefault:""`
}

type Config struct {
	Local

	// BaseURL is the root of the story backend API.
	BaseURL     string        `env:"TALESPIN_BASE_URL"`
	Token       string        `env:"TALESPIN_TOKEN" envDefault:""`
	HTTPTimeout time.Duration `env:"TALESPIN_HTTP_TIMEOUT" envDefault:"30s"`
	// RetryAttempts counts the first attempt too.
	RetryAttempts int           `env:"TALESPIN_RETRY_ATTEMPTS" envDefault:"3"`
	RetryDelay    time.Duration `env:"TALESPIN_RETRY_DELAY" envDefault:"1s"`
}

// Load populates a Config with lookupEnv, see [os.LookupEnv], and validates it.
func Load(lookupEnv func(string) (string, bool)) (*Config, error) {
	var cfg Config
	if err := errors.Join(
		envstruct.Populate(&cfg, lookupEnv),
		envstruct.Populate(&cfg.Local, lookupEnv),
	); err != nil {
		return nil, errors.Wrap(err, "populate config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadLocal populates only the settings that work without a backend.
func LoadLocal(lookupEnv func(string) (string, bool)) (*Local, error) {
	var local Local
	if err := envstruct.Populate(&local, lookupEnv); err != nil {
		return nil, errors.Wrap(err, "populate local config")
	}
	return &local, nil
}

// Validate reports every setting that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, errors.Wrap(ErrInvalidConfig, "base URL must be an absolute http(s) URL",
			slog.String("base_url", c.BaseURL)))
	}
	if c.RetryAttempts <= 0 {
		errs = append(errs, errors.Wrap(ErrInvalidConfig, "retry attempts must be positive",
			slog.Int("retry_attempts", c.RetryAttempts)))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, errors.Wrap(ErrInvalidConfig, "retry delay must not be negative",
			slog.Duration("retry_delay", c.RetryDelay)))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.Wrap(ErrInvalidConfig, "HTTP timeout must be positive",
			slog.Duration("http_timeout", c.HTTPTimeout)))
	}
	return errors.Join(errs...)
}

func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:  uint(c.RetryAttempts), //nolint:gosec // validated to be positive
		InitialDelay: c.RetryDelay,
		Notify:       nil,
	}
}

func (c *Config) HTTPClient() *http.Client {
	return &http.Client{Timeout: c.HTTPTimeout} //nolint:exhaustruct // defaults are fine
}

// WithDotEnv returns a lookup function that prefers lookupEnv and falls back to the variables defined in the dotenv
// files at paths. Earlier files win over later ones. Missing files are skipped.
func WithDotEnv(lookupEnv func(string) (string, bool), paths ...string) (func(string) (string, bool), error) {
	fileEnv := map[string]string{}
	for _, path := range paths {
		vars, err := godotenv.Read(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, errors.Wrap(err, "read dotenv file", slog.String("path", path))
		}
		for k, v := range vars {
			if _, ok := fileEnv[k]; !ok {
				fileEnv[k] = v
			}
		}
	}
	return func(key string) (string, bool) {
		if v, ok := lookupEnv(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	}, nil
}
