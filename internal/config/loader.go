package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ValidJournalNames lists the journal implementations shipped with Aether.
// Used by [Validate] to warn about unrecognised journal names.
var ValidJournalNames = []string{"file", "postgres"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies AETHER_* environment
// overrides and defaults, and validates the result. An empty document is
// allowed; the environment may supply everything.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any AETHER_* environment variables that are
// set. Unset variables leave the file values in place.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Remote
	if cfg.Remote.BaseURL == "" {
		errs = append(errs, errors.New("remote.base_url is required"))
	} else if u, err := url.Parse(cfg.Remote.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("remote.base_url: %w", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("remote.base_url scheme %q is invalid; valid values: http, https", u.Scheme))
	} else if u.Host == "" {
		errs = append(errs, errors.New("remote.base_url has no host"))
	}
	if cfg.Remote.Role != "" && !cfg.Remote.Role.IsValid() {
		errs = append(errs, fmt.Errorf("remote.role %q is invalid; valid values: host, player", cfg.Remote.Role))
	}
	if cfg.Remote.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("remote.request_timeout %v must not be negative", cfg.Remote.RequestTimeout))
	}
	if cfg.Remote.BreakerFailures < 0 {
		errs = append(errs, fmt.Errorf("remote.breaker_failures %d must not be negative", cfg.Remote.BreakerFailures))
	}
	if cfg.Remote.BreakerReset < 0 {
		errs = append(errs, fmt.Errorf("remote.breaker_reset %v must not be negative", cfg.Remote.BreakerReset))
	}
	if cfg.Remote.Token == "" {
		slog.Warn("remote.token is empty; the server will reject authenticated requests")
	}

	// Stream
	if cfg.Stream.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("stream.max_retries %d must not be negative", cfg.Stream.MaxRetries))
	}
	if cfg.Stream.InitialBackoff < 0 {
		errs = append(errs, fmt.Errorf("stream.initial_backoff %v must not be negative", cfg.Stream.InitialBackoff))
	}
	if cfg.Stream.MaxBackoff < 0 {
		errs = append(errs, fmt.Errorf("stream.max_backoff %v must not be negative", cfg.Stream.MaxBackoff))
	}
	if cfg.Stream.InitialBackoff > 0 && cfg.Stream.MaxBackoff > 0 && cfg.Stream.InitialBackoff > cfg.Stream.MaxBackoff {
		errs = append(errs, fmt.Errorf("stream.initial_backoff %v exceeds stream.max_backoff %v", cfg.Stream.InitialBackoff, cfg.Stream.MaxBackoff))
	}

	// Journal
	validateJournalName(cfg.Journal.Name)
	switch cfg.Journal.Name {
	case "file":
		if cfg.Journal.Path == "" {
			errs = append(errs, errors.New("journal.path is required when journal.name is file"))
		}
	case "postgres":
		if cfg.Journal.DSN == "" {
			errs = append(errs, errors.New("journal.dsn is required when journal.name is postgres"))
		}
	}

	// Telemetry
	if r := cfg.Telemetry.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.trace_sample_ratio %v must be within [0, 1]", r))
	}

	return errors.Join(errs...)
}

// validateJournalName logs a warning if name is non-empty and not found in
// [ValidJournalNames].
func validateJournalName(name string) {
	if name == "" || slices.Contains(ValidJournalNames, name) {
		return
	}
	slog.Warn("unknown journal name; it must be registered before startup",
		"name", name,
		"known", ValidJournalNames,
	)
}
