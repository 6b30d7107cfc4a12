package config

import (
	"fmt"
	"time"
	_ "time/tzdata" // zone database for minimal images
)

// Config is the root configuration for the collector.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Auth      AuthConfig      `yaml:"auth"`
	Collector CollectorConfig `yaml:"collector"`
	Storage   StorageConfig   `yaml:"storage"`
	Email     EmailConfig     `yaml:"email"`
	Database  DatabaseConfig  `yaml:"database"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Backfill  BackfillConfig  `yaml:"backfill"`
}

// APIConfig holds brokerage API settings.
type APIConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

// AuthConfig holds broker credentials. A static token wins over OAuth.
type AuthConfig struct {
	Token string      `yaml:"token"`
	OAuth OAuthConfig `yaml:"oauth"`
}

// OAuthConfig holds refresh-token OAuth2 settings.
type OAuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TokenURL     string `yaml:"token_url"`
	RefreshToken string `yaml:"refresh_token"`
}

// Enabled reports whether enough OAuth settings are present to refresh tokens.
func (o OAuthConfig) Enabled() bool {
	return o.RefreshToken != "" && o.TokenURL != ""
}

// CollectorConfig holds fan-out and per-ticker retry settings.
type CollectorConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Attempts    int           `yaml:"attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	RunTimeout  time.Duration `yaml:"run_timeout"`
	Timezone    string        `yaml:"timezone"`
}

// Location returns the collector's time zone.
func (c CollectorConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// StorageConfig holds snapshot destination settings.
type StorageConfig struct {
	Destination  string `yaml:"destination"` // s3://bucket/prefix or a local directory
	EndpointURL  string `yaml:"endpoint_url"`
	Region       string `yaml:"region"`
	Overwrite    string `yaml:"overwrite"`   // unique, replace, fail
	Compression  string `yaml:"compression"` // brotli, zstd, snappy, gzip, none
	SkipManifest bool   `yaml:"skip_manifest"`
}

// EmailConfig holds summary email settings.
type EmailConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	User     string   `yaml:"user"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

// DatabaseConfig holds the optional run ledger connection.
type DatabaseConfig struct {
	Ledger DBConfig `yaml:"ledger"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port           int    `yaml:"port"`
	Path           string `yaml:"path"`
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

// ScheduleConfig holds daemon-mode scheduling settings.
type ScheduleConfig struct {
	DueHour int `yaml:"due_hour"`
}

// BackfillConfig holds historical import settings.
type BackfillConfig struct {
	Parallelism int    `yaml:"parallelism"`
	Destination string `yaml:"destination"`
}
