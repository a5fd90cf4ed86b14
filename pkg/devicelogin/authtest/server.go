// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

// Package authtest provides a scriptable in-process authorization server that
// speaks RFC 8414 discovery, RFC 7591 registration and the RFC 8628 device
// grant. It is meant for tests of the device login flow.
package authtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/utils/clock"

	"github.com/telekom/devicelogin/pkg/ratelimit"
)

const (
	PathAuthorizationServerMetadata = "/.well-known/oauth-authorization-server"
	PathOpenIDConfiguration         = "/.well-known/openid-configuration"
	PathRegister                    = "/register"
	PathDevice                      = "/device"
	PathToken                       = "/token"
	PathAuthorize                   = "/authorize"
	PathActivate                    = "/activate"

	DefaultDeviceCode = "device-code-0123456789"
	DefaultUserCode   = "WDJB-MJHT"
	DefaultClientID   = "registered-client"
	DefaultExpiresIn  = 600
	DefaultInterval   = 5
)

// Response is one scripted answer. A string Body is written verbatim with a
// JSON content type; anything else is JSON encoded.
type Response struct {
	Status int
	Body   any
}

// Request is what the server recorded about one call.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Form   url.Values
	JSON   map[string]any
	At     time.Time
}

// Server is a fake authorization server backed by gin and httptest.
type Server struct {
	*httptest.Server

	clock clock.PassiveClock

	mu                    sync.Mutex
	serveASMetadata       bool
	serveOpenID           bool
	advertiseRegistration bool
	advertiseDevice       bool
	metadataOverride      func(m map[string]any)
	metadataResponse      *Response
	registration          Response
	device                *Response
	tokens                []Response
	requests              []Request
	pollInterval          time.Duration
}

type Option func(*Server)

// WithClock timestamps recorded requests with clk.
func WithClock(clk clock.PassiveClock) Option {
	return func(s *Server) { s.clock = clk }
}

// WithoutAuthorizationServerMetadata makes the RFC 8414 document 404.
func WithoutAuthorizationServerMetadata() Option {
	return func(s *Server) { s.serveASMetadata = false }
}

// WithOpenIDConfiguration also serves /.well-known/openid-configuration.
func WithOpenIDConfiguration() Option {
	return func(s *Server) { s.serveOpenID = true }
}

// WithoutRegistration omits registration_endpoint from metadata.
func WithoutRegistration() Option {
	return func(s *Server) { s.advertiseRegistration = false }
}

// WithoutDeviceEndpoint omits device_authorization_endpoint from metadata.
func WithoutDeviceEndpoint() Option {
	return func(s *Server) { s.advertiseDevice = false }
}

// WithMetadata lets a test edit the metadata document before it is served.
func WithMetadata(edit func(m map[string]any)) Option {
	return func(s *Server) { s.metadataOverride = edit }
}

// WithMetadataResponse replaces the RFC 8414 answer entirely.
func WithMetadataResponse(r Response) Option {
	return func(s *Server) { s.metadataResponse = &r }
}

func WithRegistrationResponse(r Response) Option {
	return func(s *Server) { s.registration = r }
}

func WithDeviceResponse(r Response) Option {
	return func(s *Server) { s.device = &r }
}

// WithTokenResponses scripts the token endpoint. Each poll consumes one
// response; the last one repeats once the script is exhausted.
func WithTokenResponses(responses ...Response) Option {
	return func(s *Server) { s.tokens = responses }
}

// WithPollRateLimit makes the token endpoint answer slow_down whenever one
// device code is polled more often than once per interval, measured on the
// server clock. Rejected polls do not consume a scripted response.
func WithPollRateLimit(interval time.Duration) Option {
	return func(s *Server) { s.pollInterval = interval }
}

// New starts a server and registers its shutdown with t.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := &Server{
		clock:                 clock.RealClock{},
		serveASMetadata:       true,
		advertiseRegistration: true,
		advertiseDevice:       true,
		registration:          Response{Status: http.StatusCreated, Body: map[string]any{"client_id": DefaultClientID}},
		tokens:                []Response{Tokens("access-token")},
	}
	for _, opt := range opts {
		opt(s)
	}

	engine := gin.New()
	engine.GET(PathAuthorizationServerMetadata, s.handleASMetadata)
	engine.GET(PathOpenIDConfiguration, s.handleOpenID)
	engine.POST(PathRegister, s.handleRegister)
	engine.POST(PathDevice, s.handleDevice)
	if s.pollInterval > 0 {
		limiter := ratelimit.New(ratelimit.Config{Interval: s.pollInterval}, s.clock)
		engine.POST(PathToken, limiter.Middleware(
			func(c *gin.Context) string { return c.PostForm("device_code") },
			func(c *gin.Context) {
				s.record(c)
				write(c, SlowDown())
			},
		), s.handleToken)
	} else {
		engine.POST(PathToken, s.handleToken)
	}
	s.Server = httptest.NewServer(engine)
	t.Cleanup(s.Close)
	return s
}

// Metadata returns the RFC 8414 document this server advertises.
func (s *Server) Metadata() map[string]any {
	m := map[string]any{
		"issuer":                           s.URL,
		"authorization_endpoint":           s.URL + PathAuthorize,
		"token_endpoint":                   s.URL + PathToken,
		"grant_types_supported":            []string{"urn:ietf:params:oauth:grant-type:device_code", "refresh_token"},
		"code_challenge_methods_supported": []string{"S256"},
		"scopes_supported":                 []string{"openid", "profile", "email", "offline_access"},
	}
	if s.advertiseDevice {
		m["device_authorization_endpoint"] = s.URL + PathDevice
	}
	if s.advertiseRegistration {
		m["registration_endpoint"] = s.URL + PathRegister
	}
	if s.metadataOverride != nil {
		s.metadataOverride(m)
	}
	return m
}

// Requests returns the recorded requests for path, oldest first.
func (s *Server) Requests(path string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, r := range s.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// Count is the number of requests recorded for path.
func (s *Server) Count(path string) int {
	return len(s.Requests(path))
}

// Total is the number of requests across all paths.
func (s *Server) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *Server) record(c *gin.Context) {
	req := Request{
		Method: c.Request.Method,
		Path:   c.Request.URL.Path,
		Header: c.Request.Header.Clone(),
		At:     s.clock.Now(),
	}
	switch c.ContentType() {
	case gin.MIMEPOSTForm:
		if err := c.Request.ParseForm(); err == nil {
			req.Form = c.Request.PostForm
		}
	case gin.MIMEJSON:
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err == nil {
			req.JSON = body
		}
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
}

func (s *Server) handleASMetadata(c *gin.Context) {
	s.record(c)
	if s.metadataResponse != nil {
		write(c, *s.metadataResponse)
		return
	}
	if !s.serveASMetadata {
		c.Status(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, s.Metadata())
}

func (s *Server) handleOpenID(c *gin.Context) {
	s.record(c)
	if !s.serveOpenID {
		c.Status(http.StatusNotFound)
		return
	}
	m := s.Metadata()
	m["jwks_uri"] = s.URL + "/keys"
	m["response_types_supported"] = []string{"code"}
	m["subject_types_supported"] = []string{"public"}
	m["id_token_signing_alg_values_supported"] = []string{"RS256"}
	c.JSON(http.StatusOK, m)
}

func (s *Server) handleRegister(c *gin.Context) {
	s.record(c)
	write(c, s.registration)
}

func (s *Server) handleDevice(c *gin.Context) {
	s.record(c)
	if s.device != nil {
		write(c, *s.device)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"device_code":               DefaultDeviceCode,
		"user_code":                 DefaultUserCode,
		"verification_uri":          s.URL + PathActivate,
		"verification_uri_complete": s.URL + PathActivate + "?user_code=" + DefaultUserCode,
		"expires_in":                DefaultExpiresIn,
		"interval":                  DefaultInterval,
	})
}

func (s *Server) handleToken(c *gin.Context) {
	s.record(c)
	s.mu.Lock()
	r := s.tokens[0]
	if len(s.tokens) > 1 {
		s.tokens = s.tokens[1:]
	}
	s.mu.Unlock()
	write(c, r)
}

func write(c *gin.Context, r Response) {
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	switch body := r.Body.(type) {
	case nil:
		c.Status(status)
	case string:
		c.Data(status, "application/json", []byte(body))
	default:
		content, err := json.Marshal(body)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Data(status, "application/json", content)
	}
}

// Pending answers authorization_pending.
func Pending() Response {
	return OAuthError(http.StatusBadRequest, "authorization_pending", "")
}

// SlowDown answers slow_down.
func SlowDown() Response {
	return OAuthError(http.StatusBadRequest, "slow_down", "")
}

// OAuthError builds an RFC 6749 section 5.2 error answer.
func OAuthError(status int, code, description string) Response {
	body := map[string]any{"error": code}
	if description != "" {
		body["error_description"] = description
	}
	return Response{Status: status, Body: body}
}

// Tokens answers a successful token request with a one hour access token.
func Tokens(accessToken string) Response {
	return Response{Status: http.StatusOK, Body: map[string]any{
		"access_token":  accessToken,
		"token_type":    "Bearer",
		"expires_in":    3600,
		"refresh_token": "refresh-" + accessToken,
		"scope":         "openid profile",
	}}
}
