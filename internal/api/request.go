package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// maxRetryAfter caps how long a Retry-After header can hold a request back.
const maxRetryAfter = time.Minute

// APIError represents an error from the brokerage API.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
	RetryAfter time.Duration // server-requested wait, 0 if none
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tradier api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// doRequest performs an HTTP request with the given method and path.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("get access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.StatusCode, body),
			Body:       body,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
		}
	}

	return body, nil
}

// errorMessage extracts Tradier's fault string, or a short plain-text body
// such as "Invalid Access Token", falling back to the status text.
func errorMessage(status int, body []byte) string {
	var fault struct {
		Fault struct {
			FaultString string `json:"faultstring"`
		} `json:"fault"`
	}
	if json.Unmarshal(body, &fault) == nil && fault.Fault.FaultString != "" {
		return fault.Fault.FaultString
	}

	text := bytes.TrimSpace(body)
	if len(text) > 0 && len(text) <= 200 && !bytes.ContainsAny(text[:1], "{[<") {
		return string(text)
	}
	return http.StatusText(status)
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}

	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if t, err := http.ParseTime(v); err == nil {
		d = t.Sub(now)
	}

	return min(max(d, 0), maxRetryAfter)
}

// doWithRetry performs a request with exponential backoff retry.
// A 401 invalidates the cached token and is retried once without backoff.
func (c *Client) doWithRetry(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	var lastErr error
	var retryAfter time.Duration
	backoff := c.retryBackoff
	reauthed := false
	skipBackoff := false

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 && !skipBackoff {
			// Add jitter: backoff * (0.5 to 1.5), but never less than the server asked for
			wait := backoff/2 + time.Duration(rand.Int64N(int64(backoff)+1))
			wait = max(wait, retryAfter)
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"backoff", wait,
				"path", path,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}

			backoff *= 2
		}
		skipBackoff = false

		body, err := c.doRequest(ctx, method, path, query)
		if err == nil {
			return body, nil
		}

		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return nil, err
		}

		if apiErr.StatusCode == http.StatusUnauthorized && !reauthed && c.tokens != nil {
			c.logger.Info("access token rejected, refreshing", "path", path)
			c.tokens.Invalidate()
			reauthed = true
			skipBackoff = true
			attempt--
			continue
		}

		if !apiErr.IsRetryable() {
			return nil, err
		}
		retryAfter = apiErr.RetryAfter
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// get performs a GET request with retries.
func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	body, err := c.doWithRetry(ctx, http.MethodGet, path, query)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}
