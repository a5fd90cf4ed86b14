// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"errors"
	"regexp"
	"strings"
)

const redacted = "<redacted>"

// credentialParams lists parameter names whose values must never reach logs.
var credentialParams = []string{
	"access_token",
	"refresh_token",
	"id_token",
	"device_code",
	"user_code",
	"code_verifier",
	"client_secret",
}

var (
	// key=value as found in form bodies and query strings
	formParamPattern = regexp.MustCompile(`(?i)\b(` + strings.Join(credentialParams, "|") + `)=[^&\s"']+`)
	// "key":"value" as found in echoed JSON bodies
	jsonParamPattern = regexp.MustCompile(`(?i)"(` + strings.Join(credentialParams, "|") + `)"\s*:\s*"[^"]*"`)
	bearerPattern    = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9\-._~+/]+=*`)
)

// SanitizeString removes every known secret value and every credential-shaped
// parameter from s.
func SanitizeString(s string, secrets ...string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, redacted)
	}
	s = formParamPattern.ReplaceAllString(s, "${1}="+redacted)
	s = jsonParamPattern.ReplaceAllString(s, `"${1}":"`+redacted+`"`)
	s = bearerPattern.ReplaceAllString(s, "Bearer "+redacted)
	return s
}

// Sanitize returns an error of the same kind as err whose message no longer
// contains any of secrets nor any credential parameter value. The original
// cause chain is dropped; only the scrubbed text survives.
func Sanitize(err error, secrets ...string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		return errors.New(SanitizeString(err.Error(), secrets...))
	}
	out := &Error{
		Kind:        e.Kind,
		Op:          e.Op,
		Code:        SanitizeString(e.Code, secrets...),
		Description: SanitizeString(e.Description, secrets...),
	}
	if e.Err != nil {
		out.Err = errors.New(SanitizeString(e.Err.Error(), secrets...))
	}
	return out
}

func secretValues(secrets ...Secret) []string {
	values := make([]string, 0, len(secrets))
	for _, s := range secrets {
		if !s.IsZero() {
			values = append(values, s.Expose())
		}
	}
	return values
}
