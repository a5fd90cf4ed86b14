// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"io"
	"time"

	"golang.org/x/oauth2"

	"github.com/telekom/devicelogin/pkg/devicelogin/auth"
)

// StoredToken is the persisted form of auth.OAuthTokens. Unlike the in-memory
// type it holds plaintext credentials; every fmt verb renders String, which
// keeps them out of logs.
type StoredToken struct {
	Issuer       string    `json:"issuer,omitempty"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitzero"`
	IDToken      string    `json:"id_token,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ObtainedAt   time.Time `json:"obtained_at,omitzero"`
}

// FromTokens exposes the credentials held by tokens for persistence.
func FromTokens(issuer string, tokens auth.OAuthTokens, obtainedAt time.Time) StoredToken {
	stored := StoredToken{
		Issuer:      issuer,
		AccessToken: tokens.AccessToken().Expose(),
		TokenType:   tokens.TokenType(),
		Expiry:      tokens.ExpiresAt(),
		Scope:       tokens.Scope(),
		ObtainedAt:  obtainedAt,
	}
	if refresh, ok := tokens.RefreshToken(); ok {
		stored.RefreshToken = refresh.Expose()
	}
	if idToken, ok := tokens.IDToken(); ok {
		stored.IDToken = idToken.Expose()
	}
	return stored
}

// OAuth2Token converts the stored credentials for golang.org/x/oauth2 clients.
func (t StoredToken) OAuth2Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
	}
	if t.IDToken != "" {
		tok = tok.WithExtra(map[string]interface{}{"id_token": t.IDToken})
	}
	return tok
}

// Expired reports whether the access token is past its expiry at now.
func (t StoredToken) Expired(now time.Time) bool {
	return !t.Expiry.IsZero() && !now.Before(t.Expiry)
}

func (t StoredToken) String() string {
	expiry := "unknown"
	if !t.Expiry.IsZero() {
		expiry = t.Expiry.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("StoredToken{Issuer:%s TokenType:%s Expiry:%s Refreshable:%t}",
		t.Issuer, t.TokenType, expiry, t.RefreshToken != "")
}

func (t StoredToken) GoString() string {
	return t.String()
}

func (t StoredToken) Format(f fmt.State, _ rune) {
	_, _ = io.WriteString(f, t.String())
}
