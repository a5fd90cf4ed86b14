// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// DefaultPollInterval applies when the server omits interval (RFC 8628 3.2).
const DefaultPollInterval = 5 * time.Second

// DeviceAuthorization is the server's answer to the device authorization
// request. UserCode and the verification URIs are meant for display; the
// device code is a Secret and is only ever sent back to the token endpoint.
type DeviceAuthorization struct {
	DeviceCode              Secret
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	ExpiresIn               time.Duration
	Interval                time.Duration
	IssuedAt                time.Time
}

// Deadline is the instant after which the device code must not be polled.
func (d *DeviceAuthorization) Deadline() time.Time {
	return d.IssuedAt.Add(d.ExpiresIn)
}

// BrowserURL prefers the complete URI, which embeds the user code.
func (d *DeviceAuthorization) BrowserURL() string {
	if d.VerificationURIComplete != "" {
		return d.VerificationURIComplete
	}
	return d.VerificationURI
}

func (d *DeviceAuthorization) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("verification_uri", d.VerificationURI)
	enc.AddDuration("expires_in", d.ExpiresIn)
	enc.AddDuration("interval", d.Interval)
	enc.AddTime("deadline", d.Deadline())
	return nil
}

// StartDeviceAuthorization requests a device code and user code bound to the
// PKCE challenge. IssuedAt is taken before the request is sent so that the
// local deadline can only be earlier than the server's.
func (c *Client) StartDeviceAuthorization(ctx context.Context, meta *ServerMetadata, identity *ClientIdentity, pkce PKCEChallenge, scopes []string) (*DeviceAuthorization, error) {
	const op = "device_authorization"
	if meta == nil || meta.DeviceAuthorizationEndpoint == "" {
		return nil, protocolError(op, "authorization server does not advertise a device authorization endpoint")
	}
	if identity == nil || identity.ClientID == "" {
		return nil, configError(op, "no client identity")
	}
	form := url.Values{}
	form.Set("client_id", identity.ClientID)
	if scope := joinScopes(scopes); scope != "" {
		form.Set("scope", scope)
	}
	form.Set("code_challenge", pkce.Challenge())
	form.Set("code_challenge_method", pkce.Method())

	issuedAt := c.clock.Now()
	resp, err := c.postForm(ctx, op, meta.DeviceAuthorizationEndpoint, form)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, serverError(op, resp)
	}
	obj, err := decodeObject(op, resp.body)
	if err != nil {
		return nil, err
	}
	return parseDeviceAuthorization(obj, issuedAt)
}

func parseDeviceAuthorization(obj *jsonObject, issuedAt time.Time) (*DeviceAuthorization, error) {
	deviceCode, err := obj.requiredString("device_code")
	if err != nil {
		return nil, err
	}
	userCode, err := obj.requiredString("user_code")
	if err != nil {
		return nil, err
	}
	verificationURI, err := obj.requiredString("verification_uri")
	if err != nil {
		return nil, err
	}
	complete, err := obj.optionalString("verification_uri_complete")
	if err != nil {
		return nil, err
	}
	expiresIn, err := obj.requiredInt("expires_in")
	if err != nil {
		return nil, err
	}
	if expiresIn <= 0 {
		return nil, protocolError(obj.op, "field %q must be positive", "expires_in")
	}
	interval := DefaultPollInterval
	if seconds, ok, err := obj.optionalInt("interval"); err != nil {
		return nil, err
	} else if ok && seconds > 0 {
		interval = time.Duration(seconds) * time.Second
	}
	return &DeviceAuthorization{
		DeviceCode:              NewSecret(deviceCode),
		UserCode:                userCode,
		VerificationURI:         verificationURI,
		VerificationURIComplete: complete,
		ExpiresIn:               time.Duration(expiresIn) * time.Second,
		Interval:                interval,
		IssuedAt:                issuedAt,
	}, nil
}

func joinScopes(scopes []string) string {
	cleaned := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return strings.Join(cleaned, " ")
}
