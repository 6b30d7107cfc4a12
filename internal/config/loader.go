package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted when the matching field is empty.
const (
	EnvToken             = "TRADIER_TOKEN"
	EnvOAuthClientID     = "TRADIER_CLIENT_ID"
	EnvOAuthClientSecret = "TRADIER_CLIENT_SECRET"
	EnvOAuthRefreshToken = "TRADIER_REFRESH_TOKEN"
	EnvEndpointURL       = "ENDPOINT_URL"
	EnvEmailUser         = "EMAIL_USER"
	EnvEmailPassword     = "EMAIL_PWD"
)

// LoadDotEnv seeds the environment from a .env file. A missing file is not an error
// and variables already set are left alone.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := decode(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadWithDefaults loads config and applies environment fallbacks and default values.
// An empty path yields the defaults alone.
func LoadWithDefaults(path string) (*Config, error) {
	cfg := &Config{}
	cfg.presetDefaults()
	if path != "" {
		if err := decode(path, cfg); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// decode unmarshals the file over cfg. Keys absent from the file keep their current value.
func decode(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setFromEnv(&c.Auth.Token, EnvToken)
	setFromEnv(&c.Auth.OAuth.ClientID, EnvOAuthClientID)
	setFromEnv(&c.Auth.OAuth.ClientSecret, EnvOAuthClientSecret)
	setFromEnv(&c.Auth.OAuth.RefreshToken, EnvOAuthRefreshToken)
	setFromEnv(&c.Storage.EndpointURL, EnvEndpointURL)
	setFromEnv(&c.Email.User, EnvEmailUser)
	setFromEnv(&c.Email.Password, EnvEmailPassword)
}

func setFromEnv(field *string, key string) {
	if *field == "" {
		*field = os.Getenv(key)
	}
}
