// Package token manages per-tenant OAuth2 access tokens and their on-disk cache.
package token

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// expiryMargin is subtracted from a token's expiry when deciding whether a
// cached token is still usable, so a token never expires mid-request.
const expiryMargin = 60 * time.Second

// Provider obtains access tokens for one tenant via the client credentials
// grant and caches them on disk between invocations.
type Provider struct {
	identityURL  string
	tenant       string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	cacheDir     string
	logger       *zap.Logger
	now          func() time.Time
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) ProviderOption {
	return func(p *Provider) { p.logger = l }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) { p.httpClient = c }
}

// WithCacheDir overrides the token cache directory (default: home directory).
func WithCacheDir(dir string) ProviderOption {
	return func(p *Provider) { p.cacheDir = dir }
}

// NewProvider creates a token provider for one tenant.
func NewProvider(identityURL, tenant, clientID, clientSecret string, opts ...ProviderOption) *Provider {
	p := &Provider{
		identityURL:  identityURL,
		tenant:       tenant,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
	}
	if home, err := os.UserHomeDir(); err == nil {
		p.cacheDir = home
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CachePath returns the token cache file for the provider's tenant.
func (p *Provider) CachePath() string {
	return filepath.Join(p.cacheDir, fmt.Sprintf(".partcli.%s.token", p.tenant))
}

// Token returns a valid access token, reusing the cached one when it has not
// expired and fetching a fresh one otherwise.
func (p *Provider) Token(ctx context.Context) (string, error) {
	if tok, ok := p.cached(); ok {
		return tok, nil
	}
	tok, err := p.fetch(ctx)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(p.CachePath(), []byte(tok), 0600); err != nil {
		if p.logger != nil {
			p.logger.Warn("failed to cache token", zap.Error(err))
		}
	}
	return tok, nil
}

// Invalidate removes the cached token for the tenant. Missing cache is not an error.
func (p *Provider) Invalidate() error {
	err := os.Remove(p.CachePath())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token cache: %w", err)
	}
	return nil
}

func (p *Provider) cached() (string, bool) {
	data, err := os.ReadFile(p.CachePath())
	if err != nil {
		return "", false
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" || !p.valid(tok) {
		return "", false
	}
	if p.logger != nil {
		p.logger.Debug("reusing cached token", zap.String("tenant", p.tenant))
	}
	return tok, true
}

// valid decodes the JWT claims segment and checks the exp claim against the
// current time plus a safety margin. Malformed tokens are treated as expired.
func (p *Provider) valid(tok string) bool {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return false
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	var claims struct {
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil || claims.Exp == 0 {
		return false
	}
	expiry := time.Unix(claims.Exp, 0)
	return p.now().Add(expiryMargin).Before(expiry)
}

func (p *Provider) fetch(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "tenantApp")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.identityURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.SetBasicAuth(p.clientID, p.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request rejected: %s", resp.Status)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("token response contained no access_token")
	}
	if p.logger != nil {
		p.logger.Debug("fetched new token",
			zap.String("tenant", p.tenant), zap.Int64("expires_in", payload.ExpiresIn))
	}
	return payload.AccessToken, nil
}
