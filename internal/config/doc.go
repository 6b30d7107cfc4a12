// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// Secrets left empty in the file fall back to the conventional environment
// variables (TRADIER_TOKEN, ENDPOINT_URL, EMAIL_USER, EMAIL_PWD), which may in
// turn be seeded from a .env file.
package config
