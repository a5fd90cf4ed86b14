// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/telekom/devicelogin/pkg/devicelogin/output"
	"github.com/telekom/devicelogin/pkg/devicelogin/store"
)

// subjectFromToken reads a display name from a JWT without verifying it. The
// result is only ever shown to the user, never used for decisions.
func subjectFromToken(raw string) string {
	if raw == "" {
		return ""
	}
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return ""
	}
	for _, key := range []string{"email", "preferred_username", "sub"} {
		if value, ok := claims[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

// summarize describes token without exposing any credential. The token type
// is normalized the way oauth2 clients send it. The ID token is preferred for
// the subject; opaque access tokens yield none.
func summarize(profile string, token store.StoredToken, storage string, now time.Time) output.TokenSummary {
	tok := token.OAuth2Token()
	summary := output.TokenSummary{
		Profile:     profile,
		Issuer:      token.Issuer,
		TokenType:   tok.Type(),
		Scope:       token.Scope,
		Expired:     token.Expired(now),
		Refreshable: tok.RefreshToken != "",
		Storage:     storage,
		LoggedIn:    true,
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry
		summary.ExpiresAt = &expiry
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		summary.Subject = subjectFromToken(idToken)
	}
	if summary.Subject == "" {
		summary.Subject = subjectFromToken(tok.AccessToken)
	}
	return summary
}
