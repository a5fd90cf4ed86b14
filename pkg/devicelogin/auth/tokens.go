// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap/zapcore"
	"golang.org/x/oauth2"
)

const defaultTokenType = "Bearer"

// OAuthTokens is the result of a successful device flow. Fields are fixed at
// receipt; ExpiresAt is computed once from expires_in and never recomputed.
// Default rendering (fmt, JSON, YAML, zap) redacts every credential. Methods
// use value receivers so that printing a dereferenced value is redacted too.
type OAuthTokens struct {
	accessToken  Secret
	tokenType    string
	expiresAt    time.Time
	refreshToken Secret
	idToken      Secret
	scope        string
}

func (t OAuthTokens) AccessToken() Secret {
	return t.accessToken
}

func (t OAuthTokens) TokenType() string {
	return t.tokenType
}

// ExpiresAt is the zero time when the server did not send expires_in.
func (t OAuthTokens) ExpiresAt() time.Time {
	return t.expiresAt
}

func (t OAuthTokens) RefreshToken() (Secret, bool) {
	return t.refreshToken, !t.refreshToken.IsZero()
}

func (t OAuthTokens) IDToken() (Secret, bool) {
	return t.idToken, !t.idToken.IsZero()
}

func (t OAuthTokens) Scope() string {
	return t.scope
}

// Expired reports whether the access token is past its expiry at now. Tokens
// without a known expiry never report expired.
func (t OAuthTokens) Expired(now time.Time) bool {
	return !t.expiresAt.IsZero() && !now.Before(t.expiresAt)
}

// OAuth2Token exposes the credentials as an *oauth2.Token for use with
// golang.org/x/oauth2 clients. The returned value holds plaintext secrets.
func (t OAuthTokens) OAuth2Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.accessToken.Expose(),
		TokenType:    t.tokenType,
		RefreshToken: t.refreshToken.Expose(),
		Expiry:       t.expiresAt,
	}
	extra := map[string]interface{}{}
	if t.scope != "" {
		extra["scope"] = t.scope
	}
	if !t.idToken.IsZero() {
		extra["id_token"] = t.idToken.Expose()
	}
	if len(extra) > 0 {
		tok = tok.WithExtra(extra)
	}
	return tok
}

func (t OAuthTokens) String() string {
	refresh, idToken := "<none>", "<none>"
	if !t.refreshToken.IsZero() {
		refresh = redacted
	}
	if !t.idToken.IsZero() {
		idToken = redacted
	}
	expiresAt := "unknown"
	if !t.expiresAt.IsZero() {
		expiresAt = t.expiresAt.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("OAuthTokens{AccessToken:%s TokenType:%s ExpiresAt:%s RefreshToken:%s IDToken:%s Scope:%q}",
		redacted, t.tokenType, expiresAt, refresh, idToken, t.scope)
}

func (t OAuthTokens) GoString() string {
	return t.String()
}

// Format renders the redacted form for every verb, including %#v and %d.
func (t OAuthTokens) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, t.String())
}

type redactedTokens struct {
	AccessToken  Secret    `json:"access_token" yaml:"access_token"`
	TokenType    string    `json:"token_type" yaml:"token_type"`
	ExpiresAt    time.Time `json:"expires_at,omitzero" yaml:"expires_at,omitempty"`
	RefreshToken *Secret   `json:"refresh_token,omitempty" yaml:"refresh_token,omitempty"`
	IDToken      *Secret   `json:"id_token,omitempty" yaml:"id_token,omitempty"`
	Scope        string    `json:"scope,omitempty" yaml:"scope,omitempty"`
}

func (t OAuthTokens) redactedView() redactedTokens {
	view := redactedTokens{
		AccessToken: t.accessToken,
		TokenType:   t.tokenType,
		ExpiresAt:   t.expiresAt,
		Scope:       t.scope,
	}
	if !t.refreshToken.IsZero() {
		view.RefreshToken = &t.refreshToken
	}
	if !t.idToken.IsZero() {
		view.IDToken = &t.idToken
	}
	return view
}

func (t OAuthTokens) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.redactedView())
}

func (t OAuthTokens) MarshalYAML() (interface{}, error) {
	return t.redactedView(), nil
}

func (t OAuthTokens) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("access_token", redacted)
	enc.AddString("token_type", t.tokenType)
	if !t.expiresAt.IsZero() {
		enc.AddTime("expires_at", t.expiresAt)
	}
	enc.AddBool("refresh_token", !t.refreshToken.IsZero())
	enc.AddBool("id_token", !t.idToken.IsZero())
	if t.scope != "" {
		enc.AddString("scope", t.scope)
	}
	return nil
}
