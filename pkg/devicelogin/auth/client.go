// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

const (
	DefaultClientName  = "devicelogin"
	DefaultHTTPTimeout = 30 * time.Second
	defaultUserAgent   = "devicelogin"

	tracerName = "github.com/telekom/devicelogin/pkg/devicelogin/auth"
)

// Config describes one authorization server and how this CLI identifies
// itself to it. It is read once by NewClient; nothing is re-read from the
// environment afterwards.
type Config struct {
	AuthorizationServerURL string
	// ClientID is the preconfigured public client identifier used when
	// dynamic registration is unavailable or fails.
	ClientID string
	Scopes   []string
	// RedirectURI is accepted for config compatibility; the device grant has
	// no redirect.
	RedirectURI string
	ClientName  string
	// AllowInsecureHTTP permits plain http:// for loopback hosts
	// only. Intended for local development servers.
	AllowInsecureHTTP bool
	CAFile            string
	HTTPTimeout       time.Duration
	// Endpoints are used when the server publishes no usable metadata.
	Endpoints              Endpoints
	DisableRegistration    bool
	DisableOpenIDDiscovery bool
}

// Endpoints is an explicitly configured set of server endpoints.
type Endpoints struct {
	Authorization       string
	Token               string
	DeviceAuthorization string
	Registration        string
}

func (e Endpoints) usable() bool {
	return e.Token != "" && e.DeviceAuthorization != ""
}

// Client talks to a single authorization server. It is safe to share across
// flows; each Login call owns its own PKCE pair, device code and interval.
type Client struct {
	cfg        Config
	issuer     *url.URL
	httpClient *http.Client
	ownsHTTP   bool
	rest       *resty.Client
	logger     *zap.SugaredLogger
	clock      clock.Clock
	userAgent  string
	tracer     trace.Tracer
}

type Option func(*Client) error

// WithHTTPClient shares an existing *http.Client (and its connection pool).
// The client is used as-is; CAFile and HTTPTimeout are ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("http client is nil")
		}
		c.httpClient = hc
		return nil
	}
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithClock replaces the wall clock used for deadlines and poll waits.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) error {
		if clk == nil {
			return errors.New("clock is nil")
		}
		c.clock = clk
		return nil
	}
}

// WithTracerProvider records spans with tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) error {
		if tp == nil {
			return errors.New("tracer provider is nil")
		}
		c.tracer = tp.Tracer(tracerName)
		return nil
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) error {
		c.userAgent = userAgent
		return nil
	}
}

// NewClient validates cfg and prepares the transport. It performs no network
// I/O; an insecure or malformed server URL fails here with a config error.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	c := &Client{
		cfg:       cfg,
		logger:    zap.NewNop().Sugar(),
		clock:     clock.RealClock{},
		userAgent: defaultUserAgent,
		tracer:    otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, &Error{Kind: KindConfig, Op: "client", Err: err}
		}
	}
	if strings.TrimSpace(cfg.AuthorizationServerURL) == "" {
		return nil, configError("client", "authorization server URL is required")
	}
	issuer, err := checkEndpointURL(cfg.AuthorizationServerURL, cfg.AllowInsecureHTTP)
	if err != nil {
		return nil, configError("client", "authorization server URL: "+err.Error())
	}
	c.issuer = issuer
	for name, endpoint := range map[string]string{
		"authorization endpoint":        cfg.Endpoints.Authorization,
		"token endpoint":                cfg.Endpoints.Token,
		"device authorization endpoint": cfg.Endpoints.DeviceAuthorization,
		"registration endpoint":         cfg.Endpoints.Registration,
	} {
		if endpoint == "" {
			continue
		}
		if _, err := checkEndpointURL(endpoint, cfg.AllowInsecureHTTP); err != nil {
			return nil, configError("client", "configured "+name+": "+err.Error())
		}
	}
	if c.cfg.ClientName == "" {
		c.cfg.ClientName = DefaultClientName
	}
	if c.cfg.HTTPTimeout <= 0 {
		c.cfg.HTTPTimeout = DefaultHTTPTimeout
	}

	if c.httpClient == nil {
		hc, err := newHTTPClient(c.cfg.CAFile, c.cfg.HTTPTimeout)
		if err != nil {
			return nil, &Error{Kind: KindConfig, Op: "client", Err: err}
		}
		c.httpClient = hc
		c.ownsHTTP = true
	}
	c.rest = resty.NewWithClient(c.httpClient).
		SetLogger(c.logger).
		SetHeader("User-Agent", c.userAgent).
		SetHeader("Accept", "application/json")
	if c.ownsHTTP {
		// Redirects must not be able to downgrade an https endpoint.
		c.rest.SetRedirectPolicy(resty.FlexibleRedirectPolicy(5), resty.RedirectPolicyFunc(func(req *http.Request, _ []*http.Request) error {
			_, err := checkEndpointURL(req.URL.String(), c.cfg.AllowInsecureHTTP)
			return err
		}))
	}
	return c, nil
}

// Issuer is the normalized authorization server URL.
func (c *Client) Issuer() string {
	return strings.TrimRight(c.issuer.String(), "/")
}

func (c *Client) Config() Config {
	return c.cfg
}

// checkEndpointURL enforces the transport policy: https everywhere, plain
// http only for loopback hosts with the explicit development opt-in.
func checkEndpointURL(raw string, allowInsecureHTTP bool) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("URL %q must be absolute", raw)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return u, nil
	case "http":
		if !isLoopbackHost(u.Hostname()) {
			return nil, fmt.Errorf("plain http is not allowed for host %q; use https", u.Hostname())
		}
		if !allowInsecureHTTP {
			return nil, fmt.Errorf("plain http to %q requires the insecure development opt-in", u.Hostname())
		}
		return u, nil
	default:
		return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
}

func isLoopbackHost(host string) bool {
	switch strings.ToLower(host) {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

type response struct {
	status int
	body   []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

func (c *Client) get(ctx context.Context, op, endpoint string) (*response, error) {
	return c.send(ctx, op, c.rest.R(), http.MethodGet, endpoint)
}

func (c *Client) postForm(ctx context.Context, op, endpoint string, form url.Values) (*response, error) {
	return c.send(ctx, op, c.rest.R().SetFormDataFromValues(form), http.MethodPost, endpoint)
}

func (c *Client) postJSON(ctx context.Context, op, endpoint string, body any) (*response, error) {
	req := c.rest.R().
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	return c.send(ctx, op, req, http.MethodPost, endpoint)
}

// send issues exactly one request. A context that is already done short
// circuits before anything touches the network.
func (c *Client) send(ctx context.Context, op string, req *resty.Request, method, endpoint string) (*response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: KindCancelled, Op: op, Err: err}
	}
	ctx, span := c.tracer.Start(ctx, "oauth."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", endpoint),
		))
	defer span.End()

	started := c.clock.Now()
	resp, err := req.SetContext(ctx).Execute(method, endpoint)
	if err != nil {
		terr := transportError(ctx, op, err)
		span.SetStatus(codes.Error, terr.Kind.String())
		return nil, terr
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode()))
	c.logger.Debugw("Authorization server responded",
		"op", op,
		"method", method,
		"endpoint", endpoint,
		"status", resp.StatusCode(),
		"duration", c.clock.Since(started).String(),
	)
	return &response{status: resp.StatusCode(), body: resp.Body()}, nil
}

// serverError turns a non-2xx response into ServerError when the body is a
// well-formed OAuth error object, and into ProtocolError otherwise.
func serverError(op string, resp *response) *Error {
	if obj, err := decodeObject(op, resp.body); err == nil {
		if code, description, ok := obj.oauthError(); ok {
			return &Error{Kind: KindServer, Op: op, Code: code, Description: description}
		}
	}
	return protocolError(op, "unexpected HTTP status %d", resp.status)
}

func newHTTPClient(caFile string, timeout time.Duration) (*http.Client, error) {
	tlsConfig, err := loadTLSConfig(caFile)
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

func loadTLSConfig(caFile string) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if caFile == "" {
		return tlsConfig, nil
	}
	data, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if ok := pool.AppendCertsFromPEM(data); !ok {
		return nil, errors.New("failed to parse CA file")
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}
