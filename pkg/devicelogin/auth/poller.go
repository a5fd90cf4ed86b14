// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/telekom/devicelogin/pkg/metrics"
)

// SlowDownIncrement is added to the poll interval on every slow_down (RFC 8628 3.5).
const SlowDownIncrement = 5 * time.Second

// PollState is the state of the token polling state machine.
type PollState int

const (
	PollPending PollState = iota
	PollSlowDown
	PollSuccess
	PollDenied
	PollExpired
	PollCancelled
	PollFailed
)

func (s PollState) String() string {
	switch s {
	case PollPending:
		return "pending"
	case PollSlowDown:
		return "slow_down"
	case PollSuccess:
		return "success"
	case PollDenied:
		return "denied"
	case PollExpired:
		return "expired"
	case PollCancelled:
		return "cancelled"
	case PollFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen from s.
func (s PollState) Terminal() bool {
	return s >= PollSuccess
}

// RFC 6749 section 5.2 codes: well-formed errors that end the flow as
// ServerError rather than ProtocolError.
var terminalOAuthErrors = map[string]bool{
	"invalid_request":        true,
	"invalid_client":         true,
	"invalid_grant":          true,
	"unauthorized_client":    true,
	"unsupported_grant_type": true,
	"invalid_scope":          true,
}

type pollResult int

const (
	resultPending pollResult = iota
	resultSlowDown
	resultTransient
	resultSuccess
	resultDenied
	resultExpired
	resultCancelled
	resultFailed
)

// Poller drives one device code to a terminal state. It is single-use: the
// device code it holds is polled by at most one Poll call.
type Poller struct {
	client        *Client
	logger        *zap.SugaredLogger
	tokenEndpoint string
	clientID      string
	verifier      Secret
	authorization *DeviceAuthorization

	started  atomic.Bool
	interval time.Duration
	state    PollState
	requests int
}

// NewPoller prepares polling of authorization's device code against the
// token endpoint of meta.
func (c *Client) NewPoller(meta *ServerMetadata, identity *ClientIdentity, pkce PKCEChallenge, authorization *DeviceAuthorization) (*Poller, error) {
	const op = "token"
	if meta == nil || meta.TokenEndpoint == "" {
		return nil, protocolError(op, "authorization server does not advertise a token endpoint")
	}
	if identity == nil || identity.ClientID == "" {
		return nil, configError(op, "no client identity")
	}
	if authorization == nil || authorization.DeviceCode.IsZero() {
		return nil, configError(op, "no device authorization to poll")
	}
	interval := authorization.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		client:        c,
		logger:        c.logger,
		tokenEndpoint: meta.TokenEndpoint,
		clientID:      identity.ClientID,
		verifier:      pkce.Verifier(),
		authorization: authorization,
		interval:      interval,
		state:         PollPending,
	}, nil
}

// State returns the current state. Only meaningful once Poll has returned or
// from the polling goroutine itself.
func (p *Poller) State() PollState {
	return p.state
}

// Interval returns the current poll interval, including slow_down increments.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Requests returns the number of token requests issued so far.
func (p *Poller) Requests() int {
	return p.requests
}

// Poll runs the state machine until success or a terminal failure. The device
// code deadline is checked before every request and before every wait; ctx
// cancellation is honoured before every request and during every wait.
func (p *Poller) Poll(ctx context.Context) (*OAuthTokens, error) {
	if !p.started.CompareAndSwap(false, true) {
		return nil, configError("token", "device code has already been polled")
	}
	ctx, span := p.client.tracer.Start(ctx, "devicelogin.Poll")
	defer span.End()

	tokens, err := p.poll(ctx)
	span.SetAttributes(
		attribute.String("devicelogin.poll_state", p.state.String()),
		attribute.Int("devicelogin.poll_requests", p.requests),
		attribute.Int64("devicelogin.poll_interval_seconds", int64(p.interval.Seconds())),
	)
	if err != nil {
		span.SetStatus(codes.Error, p.state.String())
	}
	return tokens, err
}

func (p *Poller) poll(ctx context.Context) (*OAuthTokens, error) {
	const op = "token"
	deadline := p.authorization.Deadline()
	for {
		if err := ctx.Err(); err != nil {
			return nil, p.finish(PollCancelled, &Error{Kind: KindCancelled, Op: op, Err: err})
		}
		if !p.client.clock.Now().Before(deadline) {
			return nil, p.finish(PollExpired, &Error{Kind: KindExpired, Op: op, Description: "device code expired"})
		}

		tokens, result, err := p.pollOnce(ctx)
		switch result {
		case resultSuccess:
			p.finish(PollSuccess, nil)
			return tokens, nil
		case resultDenied:
			return nil, p.finish(PollDenied, err)
		case resultExpired:
			return nil, p.finish(PollExpired, err)
		case resultCancelled:
			return nil, p.finish(PollCancelled, err)
		case resultFailed:
			return nil, p.finish(PollFailed, err)
		case resultSlowDown:
			p.interval += SlowDownIncrement
			p.state = PollSlowDown
			p.logger.Infow("Authorization server asked to slow down", "interval", p.interval.String())
		case resultTransient:
			p.state = PollPending
			p.logger.Warnw("Transient token endpoint failure; retrying until the device code expires",
				"error", SanitizeString(err.Error(), p.secrets()...),
				"deadline", deadline)
		default:
			p.state = PollPending
			p.logger.Debugw("Authorization pending", "requests", p.requests)
		}

		if !p.client.clock.Now().Add(p.interval).Before(deadline) {
			return nil, p.finish(PollExpired, &Error{Kind: KindExpired, Op: op, Description: "device code expires before the next poll"})
		}
		select {
		case <-ctx.Done():
			return nil, p.finish(PollCancelled, &Error{Kind: KindCancelled, Op: op, Err: ctx.Err()})
		case <-p.client.clock.After(p.interval):
		}
		if p.state == PollSlowDown {
			p.state = PollPending
		}
	}
}

func (p *Poller) finish(state PollState, err error) error {
	p.state = state
	if err != nil {
		err = Sanitize(err, p.secrets()...)
		p.logger.Infow("Token polling stopped", "state", state.String(), "requests", p.requests, "error", err.Error())
		return err
	}
	p.logger.Infow("Token polling stopped", "state", state.String(), "requests", p.requests)
	return nil
}

func (p *Poller) secrets() []string {
	values := secretValues(p.verifier, p.authorization.DeviceCode)
	if p.authorization.UserCode != "" {
		values = append(values, p.authorization.UserCode)
	}
	return values
}

// pollOnce issues a single token request and classifies the answer.
func (p *Poller) pollOnce(ctx context.Context) (*OAuthTokens, pollResult, error) {
	const op = "token"
	form := url.Values{}
	form.Set("grant_type", GrantTypeDeviceCode)
	form.Set("device_code", p.authorization.DeviceCode.Expose())
	form.Set("client_id", p.clientID)
	form.Set("code_verifier", p.verifier.Expose())

	p.requests++
	resp, err := p.client.postForm(ctx, op, p.tokenEndpoint, form)
	if err != nil {
		if KindOf(err) == KindCancelled {
			return nil, resultCancelled, err
		}
		metrics.TokenPollRequests.WithLabelValues("transient_error").Inc()
		return nil, resultTransient, err
	}
	receivedAt := p.client.clock.Now()

	if resp.status >= http.StatusInternalServerError || resp.status == http.StatusTooManyRequests {
		// A device grant error such as slow_down still drives the state
		// machine whatever status carries it.
		if obj, err := decodeObject(op, resp.body); err == nil {
			if code, description, ok := obj.oauthError(); ok && knownTokenError(code) {
				return p.classifyError(code, description)
			}
		}
		metrics.TokenPollRequests.WithLabelValues("transient_error").Inc()
		return nil, resultTransient, protocolError(op, "token endpoint returned HTTP %d", resp.status)
	}

	obj, err := decodeObject(op, resp.body)
	if err != nil {
		metrics.TokenPollRequests.WithLabelValues("protocol_error").Inc()
		return nil, resultFailed, err
	}
	if code, description, ok := obj.oauthError(); ok {
		return p.classifyError(code, description)
	}
	if !resp.ok() {
		metrics.TokenPollRequests.WithLabelValues("protocol_error").Inc()
		return nil, resultFailed, protocolError(op, "token endpoint returned HTTP %d without an OAuth error", resp.status)
	}
	tokens, err := parseTokens(obj, receivedAt)
	if err != nil {
		metrics.TokenPollRequests.WithLabelValues("protocol_error").Inc()
		return nil, resultFailed, err
	}
	metrics.TokenPollRequests.WithLabelValues("success").Inc()
	return tokens, resultSuccess, nil
}

func knownTokenError(code string) bool {
	switch code {
	case "authorization_pending", "slow_down", "access_denied", "expired_token":
		return true
	}
	return terminalOAuthErrors[code]
}

func (p *Poller) classifyError(code, description string) (*OAuthTokens, pollResult, error) {
	const op = "token"
	switch code {
	case "authorization_pending":
		metrics.TokenPollRequests.WithLabelValues("pending").Inc()
		return nil, resultPending, nil
	case "slow_down":
		metrics.TokenPollRequests.WithLabelValues("slow_down").Inc()
		return nil, resultSlowDown, nil
	case "access_denied":
		metrics.TokenPollRequests.WithLabelValues("denied").Inc()
		return nil, resultDenied, &Error{Kind: KindDenied, Op: op, Code: code, Description: description}
	case "expired_token":
		metrics.TokenPollRequests.WithLabelValues("expired").Inc()
		return nil, resultExpired, &Error{Kind: KindExpired, Op: op, Code: code, Description: description}
	}
	if terminalOAuthErrors[code] {
		metrics.TokenPollRequests.WithLabelValues("server_error").Inc()
		return nil, resultFailed, &Error{Kind: KindServer, Op: op, Code: code, Description: description}
	}
	metrics.TokenPollRequests.WithLabelValues("protocol_error").Inc()
	return nil, resultFailed, protocolError(op, "unexpected error code %q from token endpoint", code)
}

// parseTokens checks every member's type; receivedAt anchors expires_in.
func parseTokens(obj *jsonObject, receivedAt time.Time) (*OAuthTokens, error) {
	accessToken, err := obj.requiredString("access_token")
	if err != nil {
		return nil, err
	}
	tokenType, err := obj.optionalString("token_type")
	if err != nil {
		return nil, err
	}
	if tokenType == "" {
		tokenType = defaultTokenType
	}
	refreshToken, err := obj.optionalString("refresh_token")
	if err != nil {
		return nil, err
	}
	idToken, err := obj.optionalString("id_token")
	if err != nil {
		return nil, err
	}
	scope, err := obj.optionalString("scope")
	if err != nil {
		return nil, err
	}
	tokens := &OAuthTokens{
		accessToken:  NewSecret(accessToken),
		tokenType:    tokenType,
		refreshToken: NewSecret(refreshToken),
		idToken:      NewSecret(idToken),
		scope:        scope,
	}
	expiresIn, ok, err := obj.optionalInt("expires_in")
	if err != nil {
		return nil, err
	}
	if ok {
		if expiresIn < 0 {
			return nil, protocolError(obj.op, "field %q must not be negative", "expires_in")
		}
		tokens.expiresAt = receivedAt.Add(time.Duration(expiresIn) * time.Second)
	}
	return tokens, nil
}
