// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies every failure surfaced by the device login flow.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindConfig covers bad URLs, insecure schemes and missing client identity.
	KindConfig
	// KindNetwork covers transport-level failures.
	KindNetwork
	// KindProtocol covers malformed or unexpected server responses.
	KindProtocol
	// KindServer is a well-formed OAuth error returned by the server.
	KindServer
	KindDenied
	KindExpired
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindNetwork:
		return "network"
	case KindProtocol:
		return "protocol"
	case KindServer:
		return "server"
	case KindDenied:
		return "denied"
	case KindExpired:
		return "expired"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the error type returned by this package. Op names the step that
// failed (discover, register, device_authorization, token, ...). Code and
// Description carry the OAuth error fields for KindServer.
type Error struct {
	Kind        ErrorKind
	Op          string
	Code        string
	Description string
	Err         error
}

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrConfig    = &Error{Kind: KindConfig}
	ErrNetwork   = &Error{Kind: KindNetwork}
	ErrProtocol  = &Error{Kind: KindProtocol}
	ErrServer    = &Error{Kind: KindServer}
	ErrDenied    = &Error{Kind: KindDenied}
	ErrExpired   = &Error{Kind: KindExpired}
	ErrCancelled = &Error{Kind: KindCancelled}
)

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if e.Code != "" {
		b.WriteString(": ")
		b.WriteString(e.Code)
	}
	if e.Description != "" {
		b.WriteString(": ")
		b.WriteString(e.Description)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a kind sentinel (an *Error with only Kind set)
// matching e.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op != "" || t.Code != "" || t.Description != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// UserMessage renders an actionable, secret-free sentence for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return "authentication failed"
	}
	switch e.Kind {
	case KindConfig:
		if e.Description != "" {
			return "invalid configuration: " + e.Description
		}
		return "invalid configuration"
	case KindNetwork:
		return "could not reach the authorization server; check your network connection and try again"
	case KindProtocol:
		return "the authorization server returned an unexpected response"
	case KindServer:
		if e.Description != "" {
			return fmt.Sprintf("the authorization server reported an error (%s): %s", e.Code, e.Description)
		}
		return fmt.Sprintf("the authorization server reported an error (%s)", e.Code)
	case KindDenied:
		return "authorization was rejected"
	case KindExpired:
		return "the code expired before authorization completed; run login again"
	case KindCancelled:
		return "authentication was cancelled"
	default:
		return "authentication failed"
	}
}

func configError(op, description string) *Error {
	return &Error{Kind: KindConfig, Op: op, Description: description}
}

func protocolError(op, format string, args ...any) *Error {
	return &Error{Kind: KindProtocol, Op: op, Description: fmt.Sprintf(format, args...)}
}

// transportError classifies a failed round trip. A done context wins over the
// transport error so that cancellation is never reported as a network failure;
// an http.Client timeout with a live context stays a network error.
func transportError(ctx context.Context, op string, err error) *Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &Error{Kind: KindCancelled, Op: op, Err: ctxErr}
	}
	return &Error{Kind: KindNetwork, Op: op, Err: err}
}
