package config

import (
	"errors"
	"fmt"
	"slices"
)

// Accepted values for enumerated settings.
var (
	OverwritePolicies = []string{"unique", "replace", "fail"}
	Compressions      = []string{"brotli", "zstd", "snappy", "gzip", "none"}
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}
	if c.API.RequestsPerSecond < 0 {
		return errors.New("api.requests_per_second must be >= 0")
	}

	if c.Auth.Token == "" && !c.Auth.OAuth.Enabled() {
		return errors.New("auth.token is required (or set auth.oauth.refresh_token)")
	}

	if c.Collector.Concurrency < 1 {
		return errors.New("collector.concurrency must be >= 1")
	}
	if c.Collector.Attempts < 1 {
		return errors.New("collector.attempts must be >= 1")
	}
	if c.Collector.RetryDelay < 0 {
		return errors.New("collector.retry_delay must be >= 0")
	}
	if _, err := c.Collector.Location(); err != nil {
		return fmt.Errorf("collector.timezone: %w", err)
	}

	if c.Storage.Destination == "" {
		return errors.New("storage.destination is required")
	}
	if !slices.Contains(OverwritePolicies, c.Storage.Overwrite) {
		return fmt.Errorf("storage.overwrite must be one of %v, got %q", OverwritePolicies, c.Storage.Overwrite)
	}
	if !slices.Contains(Compressions, c.Storage.Compression) {
		return fmt.Errorf("storage.compression must be one of %v, got %q", Compressions, c.Storage.Compression)
	}

	if c.Email.Enabled {
		if err := c.Email.validate("email"); err != nil {
			return err
		}
	}

	if c.Database.Ledger.Enabled {
		if err := c.Database.Ledger.validate("database.ledger"); err != nil {
			return err
		}
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	if c.Schedule.DueHour < 0 || c.Schedule.DueHour > 23 {
		return fmt.Errorf("schedule.due_hour must be between 0 and 23, got %d", c.Schedule.DueHour)
	}

	if c.Backfill.Parallelism < 1 {
		return errors.New("backfill.parallelism must be >= 1")
	}

	return nil
}

func (e *EmailConfig) validate(prefix string) error {
	if e.User == "" {
		return fmt.Errorf("%s.user is required when email is enabled (or set EMAIL_USER)", prefix)
	}
	if e.Password == "" {
		return fmt.Errorf("%s.password is required when email is enabled (or set EMAIL_PWD)", prefix)
	}
	if e.Port < 1 || e.Port > 65535 {
		return fmt.Errorf("%s.port must be between 1 and 65535, got %d", prefix, e.Port)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
