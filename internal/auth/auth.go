// Package auth provides bearer tokens for the brokerage API.
//
// Two sources are supported: a static access token (TRADIER_TOKEN) and an
// OAuth2 refresh-token flow that mints short-lived access tokens on demand.
// Both can be invalidated after the API rejects a token with 401.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// ErrNoToken is returned when a source has nothing to hand out.
var ErrNoToken = errors.New("no access token configured")

// TokenSource supplies bearer tokens for API requests.
type TokenSource interface {
	// Token returns a valid access token, refreshing it if needed.
	Token(ctx context.Context) (string, error)

	// Invalidate discards the cached token so the next Token call refreshes.
	Invalidate()
}

// Static is a TokenSource that always returns the same token.
type Static string

// Token returns the static token.
func (s Static) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// Invalidate is a no-op; a static token cannot be refreshed.
func (s Static) Invalidate() {}

// OAuthConfig holds the refresh-token grant settings.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	RefreshToken string

	// EarlyExpiry refreshes tokens this long before they expire.
	EarlyExpiry time.Duration
}

// Refreshing is a TokenSource backed by an OAuth2 refresh token.
type Refreshing struct {
	cfg   *oauth2.Config
	early time.Duration
	now   func() time.Time

	mu           sync.Mutex
	refreshToken string
	current      *oauth2.Token
	refreshes    int
}

// NewRefreshing creates a refresh-token backed source.
func NewRefreshing(cfg OAuthConfig) (*Refreshing, error) {
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("token url is required")
	}
	if cfg.RefreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}

	early := cfg.EarlyExpiry
	if early == 0 {
		early = time.Minute
	}

	return &Refreshing{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		early:        early,
		now:          time.Now,
		refreshToken: cfg.RefreshToken,
	}, nil
}

// Token returns the cached access token or exchanges the refresh token for a new one.
func (r *Refreshing) Token(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil && r.fresh(r.current) {
		return r.current.AccessToken, nil
	}

	// Expired token with only the refresh token set forces the grant.
	seed := &oauth2.Token{RefreshToken: r.refreshToken, Expiry: r.now().Add(-time.Second)}
	tok, err := r.cfg.TokenSource(ctx, seed).Token()
	if err != nil {
		return "", fmt.Errorf("refresh access token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", ErrNoToken
	}

	// Some providers rotate the refresh token on every exchange.
	if tok.RefreshToken != "" {
		r.refreshToken = tok.RefreshToken
	}
	r.current = tok
	r.refreshes++

	return tok.AccessToken, nil
}

func (r *Refreshing) fresh(tok *oauth2.Token) bool {
	if tok.Expiry.IsZero() {
		return true
	}
	return r.now().Add(r.early).Before(tok.Expiry)
}

// Invalidate discards the cached access token.
func (r *Refreshing) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = nil
}

// Refreshes returns how many times a new access token was minted.
func (r *Refreshing) Refreshes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshes
}
