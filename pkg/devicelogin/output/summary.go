// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// TokenSummary describes a stored login without any credential in it.
type TokenSummary struct {
	Profile     string     `json:"profile" yaml:"profile"`
	Issuer      string     `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	Subject     string     `json:"subject,omitempty" yaml:"subject,omitempty"`
	TokenType   string     `json:"tokenType,omitempty" yaml:"tokenType,omitempty"`
	Scope       string     `json:"scope,omitempty" yaml:"scope,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
	Expired     bool       `json:"expired" yaml:"expired"`
	Refreshable bool       `json:"refreshable" yaml:"refreshable"`
	Storage     string     `json:"storage,omitempty" yaml:"storage,omitempty"`
	LoggedIn    bool       `json:"loggedIn" yaml:"loggedIn"`
}

// WriteSummary renders s as aligned key/value lines.
func WriteSummary(w io.Writer, s TokenSummary, now time.Time) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Profile:\t%s\n", s.Profile)
	if !s.LoggedIn {
		_, _ = fmt.Fprintf(tw, "Status:\t%s\n", "not logged in")
		_ = tw.Flush()
		return
	}
	status := "valid"
	if s.Expired {
		status = "expired"
	}
	_, _ = fmt.Fprintf(tw, "Status:\t%s\n", status)
	_, _ = fmt.Fprintf(tw, "Issuer:\t%s\n", dash(s.Issuer))
	_, _ = fmt.Fprintf(tw, "Subject:\t%s\n", dash(s.Subject))
	_, _ = fmt.Fprintf(tw, "Scope:\t%s\n", dash(s.Scope))
	_, _ = fmt.Fprintf(tw, "Expires:\t%s\n", formatExpiry(s.ExpiresAt, now))
	_, _ = fmt.Fprintf(tw, "Refreshable:\t%t\n", s.Refreshable)
	_, _ = fmt.Fprintf(tw, "Storage:\t%s\n", dash(s.Storage))
	_ = tw.Flush()
}

func formatExpiry(t *time.Time, now time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	stamp := t.UTC().Format(time.RFC3339)
	if !now.Before(*t) {
		return stamp + " (expired)"
	}
	return fmt.Sprintf("%s (in %s)", stamp, t.Sub(now).Round(time.Second))
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
