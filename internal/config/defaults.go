package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultBaseURL           = "https://api.tradier.com"
	DefaultTokenURL          = "https://api.tradier.com/v1/oauth/refreshtoken"
	DefaultAPITimeout        = 30 * time.Second
	DefaultMaxRetries        = 3
	DefaultRetryBackoff      = 1 * time.Second
	DefaultRequestsPerSecond = 2
	DefaultBurst             = 2
	DefaultConcurrency       = 4
	DefaultAttempts          = 3
	DefaultRetryDelay        = 3 * time.Second
	DefaultRunTimeout        = 30 * time.Minute
	DefaultTimezone          = "America/New_York"
	DefaultDestination       = "data"
	DefaultOverwrite         = "unique"
	DefaultCompression       = "brotli"
	DefaultRegion            = "us-east-1"
	DefaultSMTPHost          = "smtp.gmail.com"
	DefaultSMTPPort          = 587
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 4
	DefaultMinConns          = 1
	DefaultMetricsPort       = 9090
	DefaultMetricsPath       = "/metrics"
	DefaultMetricsJob        = "options_collect"
	DefaultDueHour           = 21
	DefaultBackfillParallel  = 4
)

// presetDefaults sets the fields for which zero is a valid setting. It runs
// before the YAML is decoded so an explicit 0 in the file is kept.
func (c *Config) presetDefaults() {
	c.API.MaxRetries = DefaultMaxRetries
	c.Database.Ledger.MinConns = DefaultMinConns
	c.Schedule.DueHour = DefaultDueHour
}

func (c *Config) applyDefaults() {
	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.RetryBackoff == 0 {
		c.API.RetryBackoff = DefaultRetryBackoff
	}
	if c.API.RequestsPerSecond == 0 {
		c.API.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if c.API.Burst == 0 {
		c.API.Burst = DefaultBurst
	}
	if c.Auth.OAuth.TokenURL == "" && c.Auth.OAuth.RefreshToken != "" {
		c.Auth.OAuth.TokenURL = DefaultTokenURL
	}

	// Collector defaults
	if c.Collector.Concurrency == 0 {
		c.Collector.Concurrency = DefaultConcurrency
	}
	if c.Collector.Attempts == 0 {
		c.Collector.Attempts = DefaultAttempts
	}
	if c.Collector.RetryDelay == 0 {
		c.Collector.RetryDelay = DefaultRetryDelay
	}
	if c.Collector.RunTimeout == 0 {
		c.Collector.RunTimeout = DefaultRunTimeout
	}
	if c.Collector.Timezone == "" {
		c.Collector.Timezone = DefaultTimezone
	}

	// Storage defaults
	if c.Storage.Destination == "" {
		c.Storage.Destination = DefaultDestination
	}
	if c.Storage.Overwrite == "" {
		c.Storage.Overwrite = DefaultOverwrite
	}
	if c.Storage.Compression == "" {
		c.Storage.Compression = DefaultCompression
	}
	if c.Storage.Region == "" {
		c.Storage.Region = DefaultRegion
	}

	// Email defaults
	if c.Email.Host == "" {
		c.Email.Host = DefaultSMTPHost
	}
	if c.Email.Port == 0 {
		c.Email.Port = DefaultSMTPPort
	}
	if c.Email.From == "" {
		c.Email.From = c.Email.User
	}
	if len(c.Email.To) == 0 && c.Email.User != "" {
		c.Email.To = []string{c.Email.User}
	}

	// Database defaults
	applyDBDefaults(&c.Database.Ledger)

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = DefaultMetricsJob
	}

	// Backfill defaults
	if c.Backfill.Parallelism == 0 {
		c.Backfill.Parallelism = DefaultBackfillParallel
	}
	if c.Backfill.Destination == "" {
		c.Backfill.Destination = c.Storage.Destination
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
}
