/*
SPDX-FileCopyrightText: 2025 Deutsche Telekom AG

SPDX-License-Identifier: Apache-2.0
*/

package auth

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/telekom/devicelogin/pkg/devicelogin/authtest"
	"github.com/telekom/devicelogin/pkg/system"
)

func newTracedClient(t *testing.T, srv *authtest.Server, rec *tracetest.SpanRecorder) *Client {
	t.Helper()
	clk := newFakeClock()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	c, err := NewClient(Config{
		AuthorizationServerURL: srv.URL,
		AllowInsecureHTTP:      true,
		Scopes:                 []string{"openid"},
	}, WithClock(clk), WithLogger(system.NewTestLogger()), WithTracerProvider(tp))
	require.NoError(t, err)
	return c
}

func spansByName(spans []sdktrace.ReadOnlySpan) map[string][]sdktrace.ReadOnlySpan {
	out := map[string][]sdktrace.ReadOnlySpan{}
	for _, s := range spans {
		out[s.Name()] = append(out[s.Name()], s)
	}
	return out
}

func TestLoginRecordsSpans(t *testing.T) {
	srv := authtest.New(t, authtest.WithTokenResponses(authtest.Tokens("traced-access")))
	rec := tracetest.NewSpanRecorder()
	c := newTracedClient(t, srv, rec)

	tokens, err := c.Login(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, tokens)

	byName := spansByName(rec.Ended())
	require.Len(t, byName["devicelogin.Login"], 1)
	require.Len(t, byName["devicelogin.Poll"], 1)
	require.Len(t, byName["oauth.discover"], 1)
	require.Len(t, byName["oauth.register"], 1)
	require.Len(t, byName["oauth.device_authorization"], 1)
	require.Len(t, byName["oauth.token"], 1)

	login := byName["devicelogin.Login"][0]
	poll := byName["devicelogin.Poll"][0]
	token := byName["oauth.token"][0]
	assert.Equal(t, login.SpanContext().SpanID(), poll.Parent().SpanID())
	assert.Equal(t, poll.SpanContext().SpanID(), token.Parent().SpanID())
	assert.Equal(t, login.SpanContext().SpanID(), byName["oauth.discover"][0].Parent().SpanID())

	attrs := map[string]string{}
	for _, kv := range login.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "success", attrs["devicelogin.outcome"])
	assert.Equal(t, MetadataSourceAuthorizationServer, attrs["devicelogin.metadata_source"])
	assert.Equal(t, "true", attrs["devicelogin.client_registered"])
	assert.Equal(t, srv.URL, attrs["oauth.issuer"])

	var status string
	for _, kv := range token.Attributes() {
		if kv.Key == "http.response.status_code" {
			status = kv.Value.Emit()
		}
	}
	assert.Equal(t, "200", status)
}

func TestLoginSpansCarryNoSecrets(t *testing.T) {
	srv := authtest.New(t, authtest.WithTokenResponses(
		authtest.OAuthError(http.StatusBadRequest, "access_denied", "denied "+authtest.DefaultDeviceCode)))
	rec := tracetest.NewSpanRecorder()
	c := newTracedClient(t, srv, rec)

	_, err := c.Login(context.Background(), nil)
	require.ErrorIs(t, err, ErrDenied)

	verifier := srv.Requests(authtest.PathToken)[0].Form.Get("code_verifier")
	require.NotEmpty(t, verifier)

	var login sdktrace.ReadOnlySpan
	for _, s := range rec.Ended() {
		if s.Name() == "devicelogin.Login" {
			login = s
		}
		var dump strings.Builder
		for _, kv := range s.Attributes() {
			dump.WriteString(kv.Value.Emit())
		}
		for _, ev := range s.Events() {
			for _, kv := range ev.Attributes {
				dump.WriteString(kv.Value.Emit())
			}
		}
		dump.WriteString(s.Status().Description)
		assert.NotContains(t, dump.String(), authtest.DefaultDeviceCode, "span %s", s.Name())
		assert.NotContains(t, dump.String(), verifier, "span %s", s.Name())
	}
	require.NotNil(t, login)
	assert.Equal(t, codes.Error, login.Status().Code)
	assert.Equal(t, KindDenied.String(), login.Status().Description)
	require.NotEmpty(t, login.Events())
	assert.Equal(t, "exception", login.Events()[0].Name)
}

func TestWithTracerProviderRejectsNil(t *testing.T) {
	_, err := NewClient(Config{AuthorizationServerURL: "https://auth.example.com"}, WithTracerProvider(nil))
	require.ErrorIs(t, err, ErrConfig)
}
