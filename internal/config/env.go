package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Environment variables recognised by ned.
const (
	EnvSocket           = "NIRI_SOCKET"
	EnvLogLevel         = "NED_LOG_LEVEL"
	EnvLogFormat        = "NED_LOG_FORMAT"
	EnvMaxTasks         = "NED_MAX_TASKS"
	EnvCommandTimeout   = "NED_COMMAND_TIMEOUT"
	EnvTerminationGrace = "NED_TERMINATION_GRACE"
)

// FromEnv returns Defaults overlaid with any values present in the environment.
// getenv is usually os.Getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := Defaults()

	cfg.SocketPath = strings.TrimSpace(getenv(EnvSocket))

	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(getenv(EnvLogFormat)); v != "" {
		cfg.LogFormat = v
	}

	if v := strings.TrimSpace(getenv(EnvMaxTasks)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvMaxTasks, err)
		}
		cfg.MaxConcurrentTasks = n
	}

	var err error
	if cfg.CommandTimeout, err = durationFromEnv(getenv, EnvCommandTimeout, cfg.CommandTimeout); err != nil {
		return nil, err
	}
	if cfg.TerminationGrace, err = durationFromEnv(getenv, EnvTerminationGrace, cfg.TerminationGrace); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func durationFromEnv(getenv func(string) string, key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxConcurrentTasks < 1 {
		errs = append(errs, fmt.Errorf("max concurrent tasks must be at least 1, got %d", c.MaxConcurrentTasks))
	}
	if c.CommandTimeout <= 0 {
		errs = append(errs, fmt.Errorf("command timeout must be positive, got %s", c.CommandTimeout))
	}
	if c.TerminationGrace < 0 {
		errs = append(errs, fmt.Errorf("termination grace must not be negative, got %s", c.TerminationGrace))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
