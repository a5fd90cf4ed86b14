/*
SPDX-FileCopyrightText: 2025 Deutsche Telekom AG

SPDX-License-Identifier: Apache-2.0
*/

package auth

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/devicelogin/pkg/devicelogin/authtest"
)

var testIdentity = &ClientIdentity{ClientID: "cli-client"}

func TestStartDeviceAuthorization(t *testing.T) {
	srv := authtest.New(t)
	clk := newFakeClock()
	c := newTestClient(t, srv, clk)
	pkce := NewPKCEChallenge()

	authorization, err := c.StartDeviceAuthorization(context.Background(), discover(t, c), testIdentity, pkce, []string{"openid", " profile ", ""})
	require.NoError(t, err)

	assert.Equal(t, authtest.DefaultDeviceCode, authorization.DeviceCode.Expose())
	assert.Equal(t, authtest.DefaultUserCode, authorization.UserCode)
	assert.Equal(t, srv.URL+authtest.PathActivate, authorization.VerificationURI)
	assert.Equal(t, srv.URL+authtest.PathActivate+"?user_code="+authtest.DefaultUserCode, authorization.BrowserURL())
	assert.Equal(t, time.Duration(authtest.DefaultExpiresIn)*time.Second, authorization.ExpiresIn)
	assert.Equal(t, time.Duration(authtest.DefaultInterval)*time.Second, authorization.Interval)
	assert.Equal(t, testEpoch, authorization.IssuedAt)
	assert.Equal(t, testEpoch.Add(10*time.Minute), authorization.Deadline())

	reqs := srv.Requests(authtest.PathDevice)
	require.Len(t, reqs, 1)
	form := reqs[0].Form
	assert.Equal(t, "cli-client", form.Get("client_id"))
	assert.Equal(t, "openid profile", form.Get("scope"))
	assert.Equal(t, pkce.Challenge(), form.Get("code_challenge"))
	assert.Equal(t, "S256", form.Get("code_challenge_method"))
	assert.Empty(t, form.Get("code_verifier"), "the verifier is only sent to the token endpoint")

	assert.NotContains(t, fmt.Sprintf("%+v", authorization), authtest.DefaultDeviceCode)
}

func TestStartDeviceAuthorizationResponses(t *testing.T) {
	valid := func(edit func(m map[string]any)) authtest.Response {
		body := map[string]any{
			"device_code":      "dc",
			"user_code":        "UC",
			"verification_uri": "https://auth.example.com/activate",
			"expires_in":       900,
		}
		edit(body)
		return authtest.Response{Status: http.StatusOK, Body: body}
	}
	tests := []struct {
		name         string
		response     authtest.Response
		kind         error
		wantErr      string
		wantInterval time.Duration
		wantComplete string
	}{
		{
			name:         "interval defaults to five seconds",
			response:     valid(func(map[string]any) {}),
			wantInterval: 5 * time.Second,
		},
		{
			name:         "zero interval uses the default",
			response:     valid(func(m map[string]any) { m["interval"] = 0 }),
			wantInterval: 5 * time.Second,
		},
		{
			name:         "explicit interval",
			response:     valid(func(m map[string]any) { m["interval"] = 7; m["verification_uri_complete"] = "https://x/activate?c=UC" }),
			wantInterval: 7 * time.Second,
			wantComplete: "https://x/activate?c=UC",
		},
		{
			name:     "missing user code",
			response: valid(func(m map[string]any) { delete(m, "user_code") }),
			kind:     ErrProtocol,
			wantErr:  `missing required field "user_code"`,
		},
		{
			name:     "string expires_in",
			response: valid(func(m map[string]any) { m["expires_in"] = "900" }),
			kind:     ErrProtocol,
			wantErr:  `field "expires_in" must be a number`,
		},
		{
			name:     "fractional interval",
			response: valid(func(m map[string]any) { m["interval"] = 2.5 }),
			kind:     ErrProtocol,
			wantErr:  "whole number",
		},
		{
			name:     "non-positive expires_in",
			response: valid(func(m map[string]any) { m["expires_in"] = 0 }),
			kind:     ErrProtocol,
			wantErr:  "must be positive",
		},
		{
			name:     "invalid client",
			response: authtest.OAuthError(http.StatusUnauthorized, "invalid_client", ""),
			kind:     ErrServer,
			wantErr:  "invalid_client",
		},
		{
			name:     "malformed body",
			response: authtest.Response{Status: http.StatusOK, Body: "{"},
			kind:     ErrProtocol,
			wantErr:  "malformed JSON",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := authtest.New(t, authtest.WithDeviceResponse(tt.response))
			c := newTestClient(t, srv, newFakeClock())

			authorization, err := c.StartDeviceAuthorization(context.Background(), discover(t, c), testIdentity, NewPKCEChallenge(), nil)
			if tt.kind != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.kind)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantInterval, authorization.Interval)
			assert.Equal(t, tt.wantComplete, authorization.VerificationURIComplete)
			assert.Empty(t, srv.Requests(authtest.PathDevice)[0].Form.Get("scope"))
		})
	}
}

func TestStartDeviceAuthorizationPreconditions(t *testing.T) {
	srv := authtest.New(t, authtest.WithoutDeviceEndpoint())
	c := newTestClient(t, srv, newFakeClock())
	meta := discover(t, c)

	_, err := c.StartDeviceAuthorization(context.Background(), meta, testIdentity, NewPKCEChallenge(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocol)

	meta.DeviceAuthorizationEndpoint = srv.URL + authtest.PathDevice
	_, err = c.StartDeviceAuthorization(context.Background(), meta, &ClientIdentity{}, NewPKCEChallenge(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
	assert.Zero(t, srv.Count(authtest.PathDevice))
}
