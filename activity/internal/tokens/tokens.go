// Package tokens obtains bearer tokens for the activity events API using the
// OAuth2 client-credentials grant and caches them until shortly before expiry.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrCredential means no token can be obtained: the credential is unknown,
// incomplete, or rejected by the token endpoint.
var ErrCredential = errors.New("credential error")

// Provider returns a bearer token for a named credential. An empty name
// selects the default credential.
type Provider interface {
	Token(ctx context.Context, credential string) (string, error)
}

// Credential is a service principal.
type Credential struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

func (c Credential) complete() bool {
	return c.TenantID != "" && c.ClientID != "" && c.ClientSecret != ""
}

// refreshMargin is subtracted from token lifetimes.
const refreshMargin = time.Minute

// fallbackTTL applies when neither expires_in nor a JWT exp is available.
const fallbackTTL = 5 * time.Minute

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// ClientCredentials implements Provider against an OAuth2 token endpoint.
type ClientCredentials struct {
	// TokenURL may contain one %s which is replaced with the tenant id.
	TokenURL          string
	Scope             string
	DefaultCredential string
	Credentials       map[string]Credential

	httpClient *http.Client
	now        func() time.Time

	mu    sync.Mutex
	cache map[string]cachedToken
}

// NewClientCredentials returns a provider with its own HTTP client.
func NewClientCredentials(tokenURL, scope, defaultCredential string, creds map[string]Credential, timeout time.Duration) *ClientCredentials {
	return &ClientCredentials{
		TokenURL:          tokenURL,
		Scope:             scope,
		DefaultCredential: defaultCredential,
		Credentials:       creds,
		httpClient:        &http.Client{Timeout: timeout},
		now:               time.Now,
		cache:             make(map[string]cachedToken),
	}
}

// Token returns a cached token or requests a new one.
func (p *ClientCredentials) Token(ctx context.Context, credential string) (string, error) {
	if credential == "" {
		credential = p.DefaultCredential
	}

	cred, ok := p.Credentials[credential]
	if !ok {
		return "", fmt.Errorf("%w: credential %q is not configured", ErrCredential, credential)
	}
	if !cred.complete() {
		return "", fmt.Errorf("%w: credential %q is incomplete", ErrCredential, credential)
	}

	p.mu.Lock()
	if c, ok := p.cache[credential]; ok && p.now().Before(c.expiresAt) {
		p.mu.Unlock()
		return c.token, nil
	}
	p.mu.Unlock()

	token, expiresAt, err := p.fetch(ctx, cred)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.cache[credential] = cachedToken{token: token, expiresAt: expiresAt}
	p.mu.Unlock()

	return token, nil
}

// Invalidate drops a cached token, e.g. after the API rejected it.
func (p *ClientCredentials) Invalidate(credential string) {
	if credential == "" {
		credential = p.DefaultCredential
	}
	p.mu.Lock()
	delete(p.cache, credential)
	p.mu.Unlock()
}

func (p *ClientCredentials) endpoint(tenantID string) string {
	if strings.Contains(p.TokenURL, "%s") {
		return fmt.Sprintf(p.TokenURL, url.PathEscape(tenantID))
	}
	return p.TokenURL
}

func (p *ClientCredentials) fetch(ctx context.Context, cred Credential) (string, time.Time, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {cred.ClientID},
		"client_secret": {cred.ClientSecret},
		"scope":         {p.Scope},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(cred.TenantID), strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: token request failed: %v", ErrCredential, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", time.Time{}, fmt.Errorf("%w: token endpoint returned %d: %s", ErrCredential, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: decode token response: %v", ErrCredential, err)
	}
	if tr.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("%w: token response has no access_token", ErrCredential)
	}

	return tr.AccessToken, p.expiry(tr), nil
}

func (p *ClientCredentials) expiry(tr tokenResponse) time.Time {
	now := p.now()
	if tr.ExpiresIn > 0 {
		return now.Add(time.Duration(tr.ExpiresIn)*time.Second - refreshMargin)
	}
	if exp, ok := jwtExpiry(tr.AccessToken); ok {
		return exp.Add(-refreshMargin)
	}
	return now.Add(fallbackTTL)
}

// jwtExpiry reads the exp claim without verifying the signature; the token is
// only inspected to schedule a refresh.
func jwtExpiry(raw string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Static always returns the same token. Used by tests and the seeder.
type Static string

func (s Static) Token(context.Context, string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty static token", ErrCredential)
	}
	return string(s), nil
}
