// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every environment variable, e.g. DEVICELOGIN_SERVER.
const EnvPrefix = "DEVICELOGIN"

// Env is the environment layer. It sits between the config file and flags
// and is read once per command invocation.
type Env struct {
	Profile           string        `envconfig:"PROFILE"`
	Server            string        `envconfig:"SERVER"`
	ClientID          string        `envconfig:"CLIENT_ID"`
	Scopes            []string      `envconfig:"SCOPES"`
	CAFile            string        `envconfig:"CA_FILE"`
	AllowInsecureHTTP *bool         `envconfig:"ALLOW_INSECURE_HTTP"`
	HTTPTimeout       time.Duration `envconfig:"HTTP_TIMEOUT"`
	Output            string        `envconfig:"OUTPUT"`
	TokenStorage      string        `envconfig:"TOKEN_STORAGE"`
	NoBrowser         *bool         `envconfig:"NO_BROWSER"`
	LogLevel          string        `envconfig:"LOG_LEVEL"`
	TraceExporter     string        `envconfig:"TRACE_EXPORTER"`
	TraceEndpoint     string        `envconfig:"TRACE_ENDPOINT"`
}

func LoadEnv() (Env, error) {
	var env Env
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return Env{}, err
	}
	return env, nil
}

// ApplyProfile overlays set variables onto p.
func (e Env) ApplyProfile(p *Profile) {
	if e.Server != "" {
		p.AuthorizationServer = e.Server
	}
	if e.ClientID != "" {
		p.ClientID = e.ClientID
	}
	if len(e.Scopes) > 0 {
		p.Scopes = e.Scopes
	}
	if e.CAFile != "" {
		p.CAFile = e.CAFile
	}
	if e.AllowInsecureHTTP != nil {
		p.AllowInsecureHTTP = *e.AllowInsecureHTTP
	}
	if e.HTTPTimeout > 0 {
		p.HTTPTimeout = e.HTTPTimeout
	}
}

// ApplySettings overlays set variables onto s.
func (e Env) ApplySettings(s *Settings) {
	if e.Output != "" {
		s.OutputFormat = e.Output
	}
	if e.TokenStorage != "" {
		s.TokenStorage = e.TokenStorage
	}
	if e.NoBrowser != nil {
		s.NoBrowser = *e.NoBrowser
	}
	if e.LogLevel != "" {
		s.LogLevel = e.LogLevel
	}
	if e.TraceExporter != "" {
		s.TraceExporter = e.TraceExporter
	}
	if e.TraceEndpoint != "" {
		s.TraceEndpoint = e.TraceEndpoint
	}
}
