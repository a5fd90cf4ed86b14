// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/telekom/devicelogin/pkg/metrics"
)

// PromptFunc receives the user code and verification URIs before polling
// starts. Returning an error aborts the flow as cancelled.
type PromptFunc func(ctx context.Context, authorization *DeviceAuthorization) error

type flow struct {
	client        *Client
	pkce          PKCEChallenge
	authorization *DeviceAuthorization
}

// Login runs one complete device authorization attempt: PKCE generation,
// metadata discovery, client identity resolution, device authorization,
// prompt, and polling. Every returned error is sanitized.
func (c *Client) Login(ctx context.Context, prompt PromptFunc) (*OAuthTokens, error) {
	flowID := uuid.NewString()
	scoped := *c
	scoped.logger = c.logger.With("flowID", flowID, "issuer", c.Issuer())
	f := &flow{client: &scoped, pkce: NewPKCEChallenge()}

	ctx, span := c.tracer.Start(ctx, "devicelogin.Login", trace.WithAttributes(
		attribute.String("devicelogin.flow_id", flowID),
		attribute.String("oauth.issuer", c.Issuer()),
	))
	defer span.End()

	started := scoped.clock.Now()
	tokens, err := f.run(ctx, prompt)
	metrics.DeviceFlowDuration.Observe(scoped.clock.Since(started).Seconds())
	if err != nil {
		err = Sanitize(err, f.secrets()...)
		kind := KindOf(err).String()
		metrics.DeviceFlowOutcomes.WithLabelValues(kind).Inc()
		span.SetAttributes(attribute.String("devicelogin.outcome", kind))
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		scoped.logger.Warnw("Device login failed", "kind", kind, "error", err.Error())
		return nil, err
	}
	metrics.DeviceFlowOutcomes.WithLabelValues("success").Inc()
	span.SetAttributes(attribute.String("devicelogin.outcome", "success"))
	scoped.logger.Infow("Device login succeeded", "tokens", tokens)
	return tokens, nil
}

func (f *flow) run(ctx context.Context, prompt PromptFunc) (*OAuthTokens, error) {
	c := f.client
	meta, err := f.resolveMetadata(ctx)
	if err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("devicelogin.metadata_source", meta.Source))
	if len(meta.CodeChallengeMethodsSupported) > 0 && !slices.Contains(meta.CodeChallengeMethodsSupported, CodeChallengeMethodS256) {
		c.logger.Warnw("Authorization server does not advertise S256 PKCE support; sending it anyway",
			"methods", meta.CodeChallengeMethodsSupported)
	}

	identity, err := f.resolveIdentity(ctx, meta)
	if err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("devicelogin.client_registered", identity.Registered))

	authorization, err := c.StartDeviceAuthorization(ctx, meta, identity, f.pkce, c.cfg.Scopes)
	if err != nil {
		return nil, err
	}
	f.authorization = authorization
	c.logger.Infow("Device authorization started", "authorization", authorization, "clientID", identity.ClientID)

	if prompt != nil {
		if err := prompt(ctx, authorization); err != nil {
			return nil, &Error{Kind: KindCancelled, Op: "prompt", Err: err}
		}
	}

	poller, err := c.NewPoller(meta, identity, f.pkce, authorization)
	if err != nil {
		return nil, err
	}
	return poller.Poll(ctx)
}

// resolveMetadata applies the discovery fallback policy: RFC 8414 metadata,
// then OpenID discovery, then explicitly configured endpoints. When all fail
// the RFC 8414 error is returned unchanged.
func (f *flow) resolveMetadata(ctx context.Context) (*ServerMetadata, error) {
	c := f.client
	meta, err := c.Discover(ctx)
	metrics.DiscoveryAttempts.WithLabelValues(MetadataSourceAuthorizationServer, resultLabel(err)).Inc()
	if err == nil {
		return meta, nil
	}
	if KindOf(err) == KindCancelled {
		return nil, err
	}
	c.logger.Infow("Authorization server metadata unavailable", "error", err.Error())

	if !c.cfg.DisableOpenIDDiscovery {
		oidcMeta, oidcErr := c.DiscoverOpenID(ctx)
		metrics.DiscoveryAttempts.WithLabelValues(MetadataSourceOpenID, resultLabel(oidcErr)).Inc()
		if oidcErr == nil {
			return oidcMeta, nil
		}
		if KindOf(oidcErr) == KindCancelled {
			return nil, oidcErr
		}
		c.logger.Infow("OpenID discovery unavailable", "error", oidcErr.Error())
	}

	if configured, ok := c.ConfiguredMetadata(); ok {
		metrics.DiscoveryAttempts.WithLabelValues(MetadataSourceConfigured, "success").Inc()
		c.logger.Warnw("Using configured endpoints; discovery failed", "tokenEndpoint", configured.TokenEndpoint)
		return configured, nil
	}
	return nil, err
}

// resolveIdentity prefers dynamic registration when advertised and falls back
// to the configured client ID. Without either there is no usable identity.
func (f *flow) resolveIdentity(ctx context.Context, meta *ServerMetadata) (*ClientIdentity, error) {
	const op = "client_identity"
	c := f.client
	if meta.SupportsRegistration() && !c.cfg.DisableRegistration {
		identity, err := c.Register(ctx, meta, c.cfg.ClientName)
		metrics.RegistrationAttempts.WithLabelValues(resultLabel(err)).Inc()
		if err == nil {
			c.logger.Infow("Registered public client", "clientID", identity.ClientID)
			return identity, nil
		}
		if KindOf(err) == KindCancelled {
			return nil, err
		}
		if c.cfg.ClientID == "" {
			return nil, &Error{
				Kind:        KindConfig,
				Op:          op,
				Description: "no usable client identity: registration failed and no client ID is configured",
				Err:         err,
			}
		}
		metrics.ClientIdentityFallbacks.Inc()
		c.logger.Warnw("Client registration failed; using configured client ID",
			"error", err.Error(), "clientID", c.cfg.ClientID)
	}
	if c.cfg.ClientID != "" {
		return &ClientIdentity{ClientID: c.cfg.ClientID}, nil
	}
	return nil, configError(op, "no usable client identity: registration is unavailable and no client ID is configured")
}

func (f *flow) secrets() []string {
	values := secretValues(f.pkce.Verifier())
	if f.authorization != nil {
		values = append(values, secretValues(f.authorization.DeviceCode)...)
		if f.authorization.UserCode != "" {
			values = append(values, f.authorization.UserCode)
		}
	}
	return values
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	return KindOf(err).String()
}
