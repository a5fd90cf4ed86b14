/*
SPDX-FileCopyrightText: 2025 Deutsche Telekom AG

SPDX-License-Identifier: Apache-2.0
*/

package auth

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientTransportPolicy(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "https", cfg: Config{AuthorizationServerURL: "https://auth.example.com"}},
		{name: "https with path", cfg: Config{AuthorizationServerURL: "https://auth.example.com/realms/dev/"}},
		{name: "loopback with opt-in", cfg: Config{AuthorizationServerURL: "http://127.0.0.1:8080", AllowInsecureHTTP: true}},
		{name: "localhost with opt-in", cfg: Config{AuthorizationServerURL: "http://localhost:8080", AllowInsecureHTTP: true}},
		{name: "ipv6 loopback with opt-in", cfg: Config{AuthorizationServerURL: "http://[::1]:8080", AllowInsecureHTTP: true}},
		{name: "empty", cfg: Config{}, wantErr: "authorization server URL is required"},
		{name: "plain http remote", cfg: Config{AuthorizationServerURL: "http://example.com"}, wantErr: "plain http is not allowed"},
		{name: "plain http remote with opt-in", cfg: Config{AuthorizationServerURL: "http://example.com", AllowInsecureHTTP: true}, wantErr: "plain http is not allowed"},
		{name: "loopback without opt-in", cfg: Config{AuthorizationServerURL: "http://localhost:8080"}, wantErr: "requires the insecure development opt-in"},
		{name: "relative", cfg: Config{AuthorizationServerURL: "auth.example.com"}, wantErr: "must be absolute"},
		{name: "ftp", cfg: Config{AuthorizationServerURL: "ftp://auth.example.com"}, wantErr: "unsupported URL scheme"},
		{
			name: "insecure configured endpoint",
			cfg: Config{
				AuthorizationServerURL: "https://auth.example.com",
				Endpoints:              Endpoints{Token: "http://auth.example.com/token"},
			},
			wantErr: "configured token endpoint",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrConfig)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, c.Issuer())
		})
	}
}

func TestInsecureServerMakesNoRequests(t *testing.T) {
	transport := &countingTransport{}
	_, err := NewClient(Config{AuthorizationServerURL: "http://example.com"},
		WithHTTPClient(&http.Client{Transport: transport}))
	require.Error(t, err)
	assert.Equal(t, KindConfig, KindOf(err))
	assert.Zero(t, transport.calls.Load())
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient(Config{AuthorizationServerURL: "https://auth.example.com/"})
	require.NoError(t, err)
	assert.Equal(t, "https://auth.example.com", c.Issuer())
	assert.Equal(t, DefaultClientName, c.Config().ClientName)
	assert.Equal(t, DefaultHTTPTimeout, c.Config().HTTPTimeout)
	assert.True(t, c.ownsHTTP)
}

func TestNewClientOptions(t *testing.T) {
	_, err := NewClient(Config{AuthorizationServerURL: "https://auth.example.com"}, WithHTTPClient(nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = NewClient(Config{AuthorizationServerURL: "https://auth.example.com"}, WithClock(nil))
	require.Error(t, err)

	shared := &http.Client{}
	c, err := NewClient(Config{AuthorizationServerURL: "https://auth.example.com"}, WithHTTPClient(shared))
	require.NoError(t, err)
	assert.Same(t, shared, c.httpClient)
	assert.False(t, c.ownsHTTP)
}

func TestNewClientCAFile(t *testing.T) {
	missing := Config{AuthorizationServerURL: "https://auth.example.com", CAFile: filepath.Join(t.TempDir(), "missing.pem")}
	_, err := NewClient(missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read CA file")

	bad := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a certificate"), 0o600))
	_, err = NewClient(Config{AuthorizationServerURL: "https://auth.example.com", CAFile: bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse CA file")
}

func TestSendHonoursDoneContext(t *testing.T) {
	transport := &countingTransport{}
	c, err := NewClient(Config{AuthorizationServerURL: "https://auth.example.com"},
		WithHTTPClient(&http.Client{Transport: transport}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Discover(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Zero(t, transport.calls.Load())
}

func TestSendSetsHeaders(t *testing.T) {
	var userAgent, accept string
	srv := newRecordingServer(t, func(r *http.Request) {
		userAgent = r.Header.Get("User-Agent")
		accept = r.Header.Get("Accept")
	})
	c, err := NewClient(Config{AuthorizationServerURL: srv.URL, AllowInsecureHTTP: true}, WithUserAgent("devicelogin/1.2.3"))
	require.NoError(t, err)

	_, err = c.get(context.Background(), "discover", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "devicelogin/1.2.3", userAgent)
	assert.Equal(t, "application/json", accept)
}

func TestRedirectCannotDowngrade(t *testing.T) {
	srv := newRedirectServer(t, "http://example.com/token")
	c, err := NewClient(Config{AuthorizationServerURL: srv.URL, AllowInsecureHTTP: true})
	require.NoError(t, err)

	_, err = c.get(context.Background(), "discover", srv.URL+"/redirect")
	require.Error(t, err)
	assert.Equal(t, KindNetwork, KindOf(err))
	assert.Contains(t, err.Error(), "plain http is not allowed")
}
