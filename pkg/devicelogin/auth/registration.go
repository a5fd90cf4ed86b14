// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
)

const (
	GrantTypeDeviceCode   = "urn:ietf:params:oauth:grant-type:device_code"
	GrantTypeRefreshToken = "refresh_token"
)

// ClientIdentity identifies this CLI to the authorization server. Device flow
// clients are public clients: there is deliberately no secret here.
type ClientIdentity struct {
	ClientID string
	// Registered is true when the identity came from dynamic registration.
	Registered bool
}

type registrationRequest struct {
	ClientName              string   `json:"client_name"`
	GrantTypes              []string `json:"grant_types"`
	RedirectURIs            []string `json:"redirect_uris"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	Scope                   string   `json:"scope,omitempty"`
}

// Register performs RFC 7591 dynamic client registration as a public device
// flow client. It is never retried; on failure the caller decides whether a
// preconfigured client ID should be used instead.
func (c *Client) Register(ctx context.Context, meta *ServerMetadata, clientName string) (*ClientIdentity, error) {
	const op = "register"
	if meta == nil || meta.RegistrationEndpoint == "" {
		return nil, configError(op, "authorization server does not advertise a registration endpoint")
	}
	if clientName == "" {
		clientName = c.cfg.ClientName
	}
	body := registrationRequest{
		ClientName:              clientName,
		GrantTypes:              []string{GrantTypeDeviceCode, GrantTypeRefreshToken},
		RedirectURIs:            []string{},
		ResponseTypes:           []string{},
		TokenEndpointAuthMethod: "none",
		Scope:                   joinScopes(c.cfg.Scopes),
	}
	resp, err := c.postJSON(ctx, op, meta.RegistrationEndpoint, body)
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
	clientID, err := obj.requiredString("client_id")
	if err != nil {
		return nil, err
	}
	if obj.has("client_secret") {
		// Never let a server-issued secret cross into ClientIdentity.
		delete(obj.members, "client_secret")
		c.logger.Debugw("Discarded client_secret from registration response; public clients do not hold secrets",
			"clientID", clientID)
	}
	return &ClientIdentity{ClientID: clientID, Registered: true}, nil
}
