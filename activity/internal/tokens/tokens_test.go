package tokens

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenServer(t *testing.T, calls *int32, respond func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		respond(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func defaultCreds() map[string]Credential {
	return map[string]Credential{
		"default": {TenantID: "tenant-1", ClientID: "client", ClientSecret: "secret"},
	}
}

func TestToken_RequestsAndCaches(t *testing.T) {
	var calls int32
	srv := newTokenServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tenant-1/oauth2/v2.0/token", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "scope/.default", r.PostForm.Get("scope"))

		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 3600})
	})

	p := NewClientCredentials(srv.URL+"/%s/oauth2/v2.0/token", "scope/.default", "default", defaultCreds(), time.Second)

	tok, err := p.Token(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	tok, err = p.Token(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	p.Invalidate("")
	_, err = p.Token(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestToken_ExpiredCacheRefreshes(t *testing.T) {
	var calls int32
	srv := newTokenServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 120})
	})

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := NewClientCredentials(srv.URL, "s", "default", defaultCreds(), time.Second)
	p.now = func() time.Time { return now }

	_, err := p.Token(context.Background(), "")
	require.NoError(t, err)

	now = now.Add(61 * time.Second)
	_, err = p.Token(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestToken_UnknownCredential(t *testing.T) {
	p := NewClientCredentials("http://unused", "s", "default", nil, time.Second)
	_, err := p.Token(context.Background(), "")
	assert.ErrorIs(t, err, ErrCredential)
}

func TestToken_IncompleteCredential(t *testing.T) {
	creds := map[string]Credential{"default": {TenantID: "t"}}
	p := NewClientCredentials("http://unused", "s", "default", creds, time.Second)
	_, err := p.Token(context.Background(), "")
	assert.ErrorIs(t, err, ErrCredential)
}

func TestToken_Rejected(t *testing.T) {
	var calls int32
	srv := newTokenServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	})

	p := NewClientCredentials(srv.URL, "s", "default", defaultCreds(), time.Second)
	_, err := p.Token(context.Background(), "")
	assert.ErrorIs(t, err, ErrCredential)
	assert.Contains(t, err.Error(), "401")
}

func TestToken_MissingAccessToken(t *testing.T) {
	var calls int32
	srv := newTokenServer(t, &calls, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token_type":"Bearer"}`))
	})

	p := NewClientCredentials(srv.URL, "s", "default", defaultCreds(), time.Second)
	_, err := p.Token(context.Background(), "")
	assert.ErrorIs(t, err, ErrCredential)
}

func TestExpiry_FromJWT(t *testing.T) {
	exp := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	p := &ClientCredentials{now: time.Now}
	assert.Equal(t, exp.Add(-refreshMargin), p.expiry(tokenResponse{AccessToken: raw}))
}

func TestExpiry_Fallback(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := &ClientCredentials{now: func() time.Time { return now }}
	assert.Equal(t, now.Add(fallbackTTL), p.expiry(tokenResponse{AccessToken: "opaque"}))
}

func TestStatic(t *testing.T) {
	tok, err := Static("abc").Token(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, err = Static("").Token(context.Background(), "")
	assert.ErrorIs(t, err, ErrCredential)
}
