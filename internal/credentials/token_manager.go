package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jnst/booking-sync/internal/clock"
)

const (
	// DefaultTokenURL is Google's OAuth2 token endpoint.
	DefaultTokenURL = "https://oauth2.googleapis.com/token"
	// DefaultScope grants read/write access to Firestore.
	DefaultScope = "https://www.googleapis.com/auth/datastore"

	jwtBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// ExpiryMargin is subtracted from the provider's token lifetime.
	ExpiryMargin = 60 * time.Second
)

// ErrTokenExchange is returned when the identity provider does not issue a token.
var ErrTokenExchange = errors.New("token exchange failed")

// CachedToken is a bearer token and the instant after which it must not be used.
type CachedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Valid reports whether the token can still be presented at now.
func (t CachedToken) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// TokenManagerConfig configures a TokenManager.
type TokenManagerConfig struct {
	TokenURL   string
	Scope      string
	HTTPClient *http.Client
	Clock      clock.Clock
	Logger     *slog.Logger
}

// TokenManager caches one access token and refreshes it ahead of expiry.
// It is safe for concurrent use.
type TokenManager struct {
	account    *ServiceAccount
	tokenURL   string
	scope      string
	httpClient *http.Client
	clock      clock.Clock
	logger     *slog.Logger

	mu     sync.Mutex
	cached CachedToken
}

// NewTokenManager creates a token manager for account.
func NewTokenManager(account *ServiceAccount, cfg TokenManagerConfig) *TokenManager {
	m := &TokenManager{
		account:    account,
		tokenURL:   cfg.TokenURL,
		scope:      cfg.Scope,
		httpClient: cfg.HTTPClient,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}

	if m.tokenURL == "" {
		m.tokenURL = DefaultTokenURL
	}

	if m.scope == "" {
		m.scope = DefaultScope
	}

	if m.httpClient == nil {
		m.httpClient = http.DefaultClient
	}

	if m.clock == nil {
		m.clock = clock.System{}
	}

	if m.logger == nil {
		m.logger = slog.Default()
	}

	return m
}

// AccessToken returns the cached token, exchanging a fresh assertion when it has expired.
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if m.cached.Valid(now) {
		return m.cached.Value, nil
	}

	m.logger.Info("requesting access token", slog.String("issuer", m.account.ClientEmail))

	token, err := m.exchange(ctx, now)
	if err != nil {
		m.logger.Error("access token exchange failed", slog.String("error", err.Error()))
		return "", err
	}

	m.cached = token

	m.logger.Info("access token acquired", slog.Time("expires_at", token.ExpiresAt))

	return token.Value, nil
}

// Cached returns the currently cached token, which may be expired or empty.
func (m *TokenManager) Cached() CachedToken {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.cached
}

func (m *TokenManager) exchange(ctx context.Context, now time.Time) (CachedToken, error) {
	assertion := NewAssertion(m.account.ClientEmail, m.scope, m.tokenURL, now)

	signed, err := assertion.Sign(m.account.SigningKey(), m.account.PrivateKeyID)
	if err != nil {
		return CachedToken{}, fmt.Errorf("%w: %w", ErrTokenExchange, err)
	}

	form := url.Values{
		"grant_type": {jwtBearerGrantType},
		"assertion":  {signed},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return CachedToken{}, fmt.Errorf("%w: %w", ErrTokenExchange, err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return CachedToken{}, fmt.Errorf("%w: %w", ErrTokenExchange, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return CachedToken{}, fmt.Errorf("%w: read response: %w", ErrTokenExchange, err)
	}

	if resp.StatusCode != http.StatusOK {
		return CachedToken{}, fmt.Errorf("%w: status %d: %s", ErrTokenExchange, resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return CachedToken{}, fmt.Errorf("%w: decode response: %w", ErrTokenExchange, err)
	}

	if tr.AccessToken == "" {
		return CachedToken{}, fmt.Errorf("%w: empty access_token", ErrTokenExchange)
	}

	lifetime := time.Duration(tr.ExpiresIn)*time.Second - ExpiryMargin

	return CachedToken{Value: tr.AccessToken, ExpiresAt: now.Add(lifetime)}, nil
}
