/*
SPDX-FileCopyrightText: 2025 Deutsche Telekom AG

SPDX-License-Identifier: Apache-2.0
*/

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/telekom/devicelogin/pkg/devicelogin/authtest"
	"github.com/telekom/devicelogin/pkg/system"
)

type promptRecorder struct {
	calls         int
	authorization *DeviceAuthorization
	err           error
}

func (p *promptRecorder) prompt(_ context.Context, authorization *DeviceAuthorization) error {
	p.calls++
	p.authorization = authorization
	return p.err
}

func login(t *testing.T, c *Client, clk *testingclock.FakeClock, prompt PromptFunc) (*OAuthTokens, error) {
	t.Helper()
	return driveClock(t, clk, func() (*OAuthTokens, error) {
		return c.Login(context.Background(), prompt)
	})
}

func TestLogin(t *testing.T) {
	clk := newFakeClock()
	srv := authtest.New(t, authtest.WithClock(clk),
		authtest.WithTokenResponses(authtest.Pending(), authtest.Tokens("login-access")))
	c := newTestClient(t, srv, clk)
	rec := &promptRecorder{}

	tokens, err := login(t, c, clk, rec.prompt)
	require.NoError(t, err)
	assert.Equal(t, "login-access", tokens.AccessToken().Expose())

	require.Equal(t, 1, rec.calls)
	assert.Equal(t, authtest.DefaultUserCode, rec.authorization.UserCode)

	assert.Equal(t, 1, srv.Count(authtest.PathAuthorizationServerMetadata))
	assert.Zero(t, srv.Count(authtest.PathOpenIDConfiguration))
	assert.Equal(t, 1, srv.Count(authtest.PathRegister))
	assert.Equal(t, 1, srv.Count(authtest.PathDevice))
	assert.Equal(t, 2, srv.Count(authtest.PathToken))

	device := srv.Requests(authtest.PathDevice)[0].Form
	token := srv.Requests(authtest.PathToken)[1].Form
	assert.Equal(t, authtest.DefaultClientID, device.Get("client_id"))
	assert.Equal(t, authtest.DefaultClientID, token.Get("client_id"))
	assert.Equal(t, device.Get("code_challenge"), S256Challenge(token.Get("code_verifier")))
	assert.Equal(t, "openid profile", device.Get("scope"))
}

func TestLoginUsesFreshPKCEPerAttempt(t *testing.T) {
	clk := newFakeClock()
	srv := authtest.New(t, authtest.WithClock(clk))
	c := newTestClient(t, srv, clk)

	_, err := login(t, c, clk, nil)
	require.NoError(t, err)
	_, err = login(t, c, clk, nil)
	require.NoError(t, err)

	reqs := srv.Requests(authtest.PathDevice)
	require.Len(t, reqs, 2)
	assert.NotEqual(t, reqs[0].Form.Get("code_challenge"), reqs[1].Form.Get("code_challenge"))
}

func TestLoginClientIdentity(t *testing.T) {
	registrationFails := authtest.WithRegistrationResponse(authtest.OAuthError(http.StatusForbidden, "access_denied", "registration disabled"))
	tests := []struct {
		name          string
		opts          []authtest.Option
		clientID      string
		disable       bool
		wantClientID  string
		wantRegister  int
		wantErr       error
		wantErrSubstr string
	}{
		{
			name:         "registered identity wins over configured",
			clientID:     "configured-client",
			wantClientID: authtest.DefaultClientID,
			wantRegister: 1,
		},
		{
			name:         "registration failure falls back to configured",
			opts:         []authtest.Option{registrationFails},
			clientID:     "configured-client",
			wantClientID: "configured-client",
			wantRegister: 1,
		},
		{
			name:          "registration failure without configured id",
			opts:          []authtest.Option{registrationFails},
			wantRegister:  1,
			wantErr:       ErrConfig,
			wantErrSubstr: "registration failed and no client ID is configured",
		},
		{
			name:          "no registration endpoint and no configured id",
			opts:          []authtest.Option{authtest.WithoutRegistration()},
			wantErr:       ErrConfig,
			wantErrSubstr: "registration is unavailable",
		},
		{
			name:         "registration disabled",
			clientID:     "configured-client",
			disable:      true,
			wantClientID: "configured-client",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := newFakeClock()
			srv := authtest.New(t, append(tt.opts, authtest.WithClock(clk))...)
			c := newTestClient(t, srv, clk, func(cfg *Config) {
				cfg.ClientID = tt.clientID
				cfg.DisableRegistration = tt.disable
			})

			_, err := login(t, c, clk, nil)
			assert.Equal(t, tt.wantRegister, srv.Count(authtest.PathRegister))
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Contains(t, err.Error(), tt.wantErrSubstr)
				assert.Zero(t, srv.Count(authtest.PathDevice))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantClientID, srv.Requests(authtest.PathDevice)[0].Form.Get("client_id"))
		})
	}
}

func TestLoginMetadataFallbacks(t *testing.T) {
	t.Run("openid configuration", func(t *testing.T) {
		clk := newFakeClock()
		srv := authtest.New(t, authtest.WithClock(clk), authtest.WithoutAuthorizationServerMetadata(), authtest.WithOpenIDConfiguration())
		c := newTestClient(t, srv, clk)

		_, err := login(t, c, clk, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, srv.Count(authtest.PathOpenIDConfiguration))
		assert.Equal(t, 1, srv.Count(authtest.PathToken))
	})

	t.Run("configured endpoints", func(t *testing.T) {
		clk := newFakeClock()
		srv := authtest.New(t, authtest.WithClock(clk), authtest.WithoutAuthorizationServerMetadata())
		c := newTestClient(t, srv, clk, func(cfg *Config) {
			cfg.ClientID = "configured-client"
			cfg.Endpoints = Endpoints{
				Token:               srv.URL + authtest.PathToken,
				DeviceAuthorization: srv.URL + authtest.PathDevice,
			}
		})

		_, err := login(t, c, clk, nil)
		require.NoError(t, err)
		assert.Zero(t, srv.Count(authtest.PathRegister))
		assert.Equal(t, "configured-client", srv.Requests(authtest.PathToken)[0].Form.Get("client_id"))
	})

	t.Run("openid discovery disabled", func(t *testing.T) {
		clk := newFakeClock()
		srv := authtest.New(t, authtest.WithClock(clk), authtest.WithoutAuthorizationServerMetadata(), authtest.WithOpenIDConfiguration())
		c := newTestClient(t, srv, clk, func(cfg *Config) { cfg.DisableOpenIDDiscovery = true })

		_, err := login(t, c, clk, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrProtocol)
		assert.Contains(t, err.Error(), "metadata request returned HTTP 404")
		assert.Zero(t, srv.Count(authtest.PathOpenIDConfiguration))
	})

	t.Run("nothing available", func(t *testing.T) {
		clk := newFakeClock()
		srv := authtest.New(t, authtest.WithClock(clk), authtest.WithoutAuthorizationServerMetadata())
		c := newTestClient(t, srv, clk)

		_, err := login(t, c, clk, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrProtocol)
		assert.Contains(t, err.Error(), "discover:")
		assert.Zero(t, srv.Count(authtest.PathDevice))
	})
}

func TestLoginPromptErrorCancels(t *testing.T) {
	clk := newFakeClock()
	srv := authtest.New(t, authtest.WithClock(clk))
	c := newTestClient(t, srv, clk)
	rec := &promptRecorder{err: errors.New("terminal closed")}

	_, err := login(t, c, clk, rec.prompt)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, 1, rec.calls)
	assert.Zero(t, srv.Count(authtest.PathToken))
}

func TestLoginDeniedIsSanitized(t *testing.T) {
	clk := newFakeClock()
	srv := authtest.New(t, authtest.WithClock(clk), authtest.WithTokenResponses(
		authtest.OAuthError(http.StatusBadRequest, "access_denied",
			fmt.Sprintf("user rejected %s for device_code=%s", authtest.DefaultUserCode, authtest.DefaultDeviceCode))))
	c := newTestClient(t, srv, clk)

	_, err := login(t, c, clk, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDenied)
	assert.NotContains(t, err.Error(), authtest.DefaultDeviceCode)
	assert.NotContains(t, err.Error(), authtest.DefaultUserCode)
	assert.Equal(t, "authorization was rejected", UserMessage(err))
}

func TestLoginNeverLogsSecrets(t *testing.T) {
	clk := newFakeClock()
	srv := authtest.New(t, authtest.WithClock(clk), authtest.WithTokenResponses(
		authtest.SlowDown(),
		authtest.Response{Status: http.StatusServiceUnavailable},
		authtest.Tokens("logged-access")))
	logger, logs := system.NewObservedTestLogger(zapcore.DebugLevel)
	c, err := NewClient(Config{AuthorizationServerURL: srv.URL, AllowInsecureHTTP: true},
		WithClock(clk), WithLogger(logger))
	require.NoError(t, err)

	_, err = login(t, c, clk, nil)
	require.NoError(t, err)

	verifier := srv.Requests(authtest.PathToken)[0].Form.Get("code_verifier")
	require.NotEmpty(t, verifier)
	require.NotZero(t, logs.Len())
	for _, entry := range logs.All() {
		rendered := entry.Message + fmt.Sprint(entry.ContextMap())
		for _, secret := range []string{"logged-access", "refresh-logged-access", authtest.DefaultDeviceCode, verifier} {
			assert.NotContains(t, rendered, secret)
		}
	}
	assert.NotZero(t, logs.FilterMessage("Device login succeeded").Len())
	assert.NotZero(t, logs.FilterMessage("Authorization server asked to slow down").Len())
}
