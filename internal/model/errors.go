package model

import "fmt"

// ConfigError reports a bad or missing input detected before any network call.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error: %v", e.Err)
	}
	return fmt.Sprintf("config error: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// FetchError reports that a ticker's chain could not be fetched after all attempts.
type FetchError struct {
	Ticker   string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.Ticker, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// WriteError reports that the run's artifact could not be stored.
type WriteError struct {
	Key string
	Err error
}

func (e *WriteError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("write snapshot: %v", e.Err)
	}
	return fmt.Sprintf("write snapshot %s: %v", e.Key, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// NotifyError reports a failed notification. It never affects the run outcome.
type NotifyError struct {
	Channel string
	Err     error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify via %s: %v", e.Channel, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }
