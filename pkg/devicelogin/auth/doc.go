// Package auth implements the OAuth 2.1 Device Authorization Grant (RFC 8628)
// with PKCE (RFC 7636) for command-line clients that cannot listen for a
// redirect. It discovers server metadata, optionally registers a public
// client (RFC 7591), starts the device authorization, and polls the token
// endpoint until the user approves, denies, or the device code expires.
//
// The package produces tokens; storing them is the caller's business.
// Credentials are wrapped in Secret and every error leaving Login is
// sanitized.
package auth
