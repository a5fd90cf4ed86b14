// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"errors"
	"net/url"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const (
	wellKnownAuthorizationServer = "/.well-known/oauth-authorization-server"

	MetadataSourceAuthorizationServer = "oauth-authorization-server"
	MetadataSourceOpenID              = "openid-configuration"
	MetadataSourceConfigured          = "configured"
)

// ServerMetadata is the subset of RFC 8414 metadata the device flow needs.
// It is fetched per login attempt and never cached beyond it.
type ServerMetadata struct {
	Issuer                        string
	AuthorizationEndpoint         string
	TokenEndpoint                 string
	DeviceAuthorizationEndpoint   string
	RegistrationEndpoint          string
	GrantTypesSupported           []string
	CodeChallengeMethodsSupported []string
	ScopesSupported               []string
	// Source records where the metadata came from.
	Source string
}

// Endpoint returns the endpoints in golang.org/x/oauth2 form.
func (m *ServerMetadata) Endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:       m.AuthorizationEndpoint,
		DeviceAuthURL: m.DeviceAuthorizationEndpoint,
		TokenURL:      m.TokenEndpoint,
		AuthStyle:     oauth2.AuthStyleInParams,
	}
}

// SupportsRegistration reports whether dynamic client registration is advertised.
func (m *ServerMetadata) SupportsRegistration() bool {
	return m.RegistrationEndpoint != ""
}

// Discover fetches {issuer}/.well-known/oauth-authorization-server. Failures
// are returned as-is: transport problems as network errors, everything else
// as protocol errors. Falling back to other sources is the caller's decision.
func (c *Client) Discover(ctx context.Context) (*ServerMetadata, error) {
	const op = "discover"
	endpoint := c.Issuer() + wellKnownAuthorizationServer
	resp, err := c.get(ctx, op, endpoint)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, protocolError(op, "metadata request returned HTTP %d", resp.status)
	}
	obj, err := decodeObject(op, resp.body)
	if err != nil {
		return nil, err
	}
	meta, err := c.parseMetadata(obj)
	if err != nil {
		return nil, err
	}
	meta.Source = MetadataSourceAuthorizationServer
	return meta, nil
}

func (c *Client) parseMetadata(obj *jsonObject) (*ServerMetadata, error) {
	var (
		meta ServerMetadata
		err  error
	)
	if meta.TokenEndpoint, err = obj.requiredString("token_endpoint"); err != nil {
		return nil, err
	}
	if meta.Issuer, err = obj.optionalString("issuer"); err != nil {
		return nil, err
	}
	if meta.AuthorizationEndpoint, err = obj.optionalString("authorization_endpoint"); err != nil {
		return nil, err
	}
	if meta.DeviceAuthorizationEndpoint, err = obj.optionalString("device_authorization_endpoint"); err != nil {
		return nil, err
	}
	if meta.RegistrationEndpoint, err = obj.optionalString("registration_endpoint"); err != nil {
		return nil, err
	}
	if meta.GrantTypesSupported, err = obj.optionalStrings("grant_types_supported"); err != nil {
		return nil, err
	}
	if meta.CodeChallengeMethodsSupported, err = obj.optionalStrings("code_challenge_methods_supported"); err != nil {
		return nil, err
	}
	if meta.ScopesSupported, err = obj.optionalStrings("scopes_supported"); err != nil {
		return nil, err
	}
	if err := c.checkAdvertised(obj.op, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// checkAdvertised applies the transport policy to server-provided endpoints
// so that metadata cannot downgrade the flow to plain http.
func (c *Client) checkAdvertised(op string, meta *ServerMetadata) error {
	for name, endpoint := range map[string]string{
		"token_endpoint":                meta.TokenEndpoint,
		"authorization_endpoint":        meta.AuthorizationEndpoint,
		"device_authorization_endpoint": meta.DeviceAuthorizationEndpoint,
		"registration_endpoint":         meta.RegistrationEndpoint,
	} {
		if endpoint == "" {
			continue
		}
		if _, err := checkEndpointURL(endpoint, c.cfg.AllowInsecureHTTP); err != nil {
			return protocolError(op, "advertised %s rejected: %v", name, err)
		}
	}
	return nil
}

// openIDClaims are the discovery members go-oidc does not surface directly.
type openIDClaims struct {
	DeviceAuthorizationEndpoint   string   `json:"device_authorization_endpoint"`
	RegistrationEndpoint          string   `json:"registration_endpoint"`
	GrantTypesSupported           []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported"`
	ScopesSupported               []string `json:"scopes_supported"`
}

// DiscoverOpenID reads {issuer}/.well-known/openid-configuration through
// go-oidc, which also verifies that the document's issuer matches.
func (c *Client) DiscoverOpenID(ctx context.Context) (*ServerMetadata, error) {
	const op = "discover_openid"
	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: KindCancelled, Op: op, Err: err}
	}
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, c.httpClient), c.Issuer())
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return nil, transportError(ctx, op, err)
		}
		return nil, &Error{Kind: KindProtocol, Op: op, Description: "openid discovery failed", Err: err}
	}
	var claims openIDClaims
	if err := provider.Claims(&claims); err != nil {
		return nil, &Error{Kind: KindProtocol, Op: op, Description: "malformed openid metadata", Err: err}
	}
	endpoint := provider.Endpoint()
	if endpoint.TokenURL == "" {
		return nil, protocolError(op, "missing required field %q", "token_endpoint")
	}
	meta := &ServerMetadata{
		Issuer:                        c.Issuer(),
		AuthorizationEndpoint:         endpoint.AuthURL,
		TokenEndpoint:                 endpoint.TokenURL,
		DeviceAuthorizationEndpoint:   claims.DeviceAuthorizationEndpoint,
		RegistrationEndpoint:          claims.RegistrationEndpoint,
		GrantTypesSupported:           claims.GrantTypesSupported,
		CodeChallengeMethodsSupported: claims.CodeChallengeMethodsSupported,
		ScopesSupported:               claims.ScopesSupported,
		Source:                        MetadataSourceOpenID,
	}
	if err := c.checkAdvertised(op, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// ConfiguredMetadata builds metadata from Config.Endpoints. It returns false
// when the token or device authorization endpoint is missing.
func (c *Client) ConfiguredMetadata() (*ServerMetadata, bool) {
	if !c.cfg.Endpoints.usable() {
		return nil, false
	}
	return &ServerMetadata{
		Issuer:                      c.Issuer(),
		AuthorizationEndpoint:       c.cfg.Endpoints.Authorization,
		TokenEndpoint:               c.cfg.Endpoints.Token,
		DeviceAuthorizationEndpoint: c.cfg.Endpoints.DeviceAuthorization,
		RegistrationEndpoint:        c.cfg.Endpoints.Registration,
		Source:                      MetadataSourceConfigured,
	}, true
}
