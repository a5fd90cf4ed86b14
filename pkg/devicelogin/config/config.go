// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/telekom/devicelogin/pkg/devicelogin/auth"
)

const (
	VersionV1 = "v1"

	DefaultProfileName = "default"
)

// Values accepted by Settings.TokenStorage; they mirror the store modes.
const (
	TokenStorageAuto     = "auto"
	TokenStorageFile     = "file"
	TokenStorageKeychain = "keychain"
)

type Config struct {
	Version        string    `yaml:"version"`
	CurrentProfile string    `yaml:"current-profile,omitempty"`
	Profiles       []Profile `yaml:"profiles,omitempty"`
	Settings       Settings  `yaml:"settings,omitempty"`
}

type Settings struct {
	OutputFormat   string `yaml:"output-format,omitempty"`
	TokenStorage   string `yaml:"token-storage,omitempty"`
	TokenCachePath string `yaml:"token-cache-path,omitempty"`
	// PromptTemplate is a text/template (with sprig functions) replacing the
	// default device code prompt.
	PromptTemplate string `yaml:"prompt-template,omitempty"`
	NoBrowser      bool   `yaml:"no-browser,omitempty"`
	LogLevel       string `yaml:"log-level,omitempty"`
	LogFormat      string `yaml:"log-format,omitempty"`
	// TraceExporter is none, stdout or otlp; TraceEndpoint is the OTLP
	// collector address.
	TraceExporter string `yaml:"trace-exporter,omitempty"`
	TraceEndpoint string `yaml:"trace-endpoint,omitempty"`
}

// Profile describes one authorization server login.
type Profile struct {
	Name                   string        `yaml:"name"`
	AuthorizationServer    string        `yaml:"authorization-server"`
	ClientID               string        `yaml:"client-id,omitempty"`
	ClientName             string        `yaml:"client-name,omitempty"`
	Scopes                 []string      `yaml:"scopes,omitempty"`
	CAFile                 string        `yaml:"ca-file,omitempty"`
	AllowInsecureHTTP      bool          `yaml:"allow-insecure-http,omitempty"`
	HTTPTimeout            time.Duration `yaml:"http-timeout,omitempty"`
	DisableRegistration    bool          `yaml:"disable-registration,omitempty"`
	DisableOpenIDDiscovery bool          `yaml:"disable-openid-discovery,omitempty"`
	Endpoints              *Endpoints    `yaml:"endpoints,omitempty"`
}

// Endpoints are used when the server publishes no discovery document.
type Endpoints struct {
	Authorization       string `yaml:"authorization,omitempty"`
	Token               string `yaml:"token,omitempty"`
	DeviceAuthorization string `yaml:"device-authorization,omitempty"`
	Registration        string `yaml:"registration,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Version: VersionV1,
		Settings: Settings{
			OutputFormat: "text",
			TokenStorage: TokenStorageAuto,
		},
	}
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	return &cfg, nil
}

// LoadOrDefault returns DefaultConfig when path does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		def := DefaultConfig()
		return &def, nil
	}
	return cfg, err
}

func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	content, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, content, 0o600)
}

func (c *Config) FindProfile(name string) (*Profile, error) {
	for i := range c.Profiles {
		if c.Profiles[i].Name == name {
			return &c.Profiles[i], nil
		}
	}
	return nil, fmt.Errorf("profile not found: %s", name)
}

// SetProfile adds p or replaces the profile with the same name.
func (c *Config) SetProfile(p Profile) {
	for i := range c.Profiles {
		if c.Profiles[i].Name == p.Name {
			c.Profiles[i] = p
			return
		}
	}
	c.Profiles = append(c.Profiles, p)
}

func (c *Config) CurrentProfileOrDefault() string {
	if c.CurrentProfile != "" {
		return c.CurrentProfile
	}
	if len(c.Profiles) > 0 {
		return c.Profiles[0].Name
	}
	return DefaultProfileName
}

func (c *Config) Validate() error {
	if c.Version == "" {
		return errors.New("config version missing")
	}
	seen := map[string]bool{}
	for _, p := range c.Profiles {
		if strings.TrimSpace(p.Name) == "" {
			return errors.New("profile name cannot be empty")
		}
		if seen[p.Name] {
			return fmt.Errorf("profile %s is defined twice", p.Name)
		}
		seen[p.Name] = true
		if strings.TrimSpace(p.AuthorizationServer) == "" {
			return fmt.Errorf("profile %s authorization-server is required", p.Name)
		}
	}
	switch c.Settings.TokenStorage {
	case "", TokenStorageAuto, TokenStorageFile, TokenStorageKeychain:
	default:
		return fmt.Errorf("token-storage must be one of %s, %s, %s", TokenStorageAuto, TokenStorageFile, TokenStorageKeychain)
	}
	return nil
}

// AuthConfig converts the profile for auth.NewClient.
func (p Profile) AuthConfig() auth.Config {
	cfg := auth.Config{
		AuthorizationServerURL: p.AuthorizationServer,
		ClientID:               p.ClientID,
		Scopes:                 p.Scopes,
		ClientName:             p.ClientName,
		AllowInsecureHTTP:      p.AllowInsecureHTTP,
		CAFile:                 p.CAFile,
		HTTPTimeout:            p.HTTPTimeout,
		DisableRegistration:    p.DisableRegistration,
		DisableOpenIDDiscovery: p.DisableOpenIDDiscovery,
	}
	if p.Endpoints != nil {
		cfg.Endpoints = auth.Endpoints{
			Authorization:       p.Endpoints.Authorization,
			Token:               p.Endpoints.Token,
			DeviceAuthorization: p.Endpoints.DeviceAuthorization,
			Registration:        p.Endpoints.Registration,
		}
	}
	return cfg
}
