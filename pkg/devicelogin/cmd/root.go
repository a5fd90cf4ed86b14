// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/telekom/devicelogin/pkg/devicelogin/auth"
	"github.com/telekom/devicelogin/pkg/devicelogin/config"
	"github.com/telekom/devicelogin/pkg/devicelogin/output"
	"github.com/telekom/devicelogin/pkg/devicelogin/store"
	"github.com/telekom/devicelogin/pkg/system"
)

// Config wires the command tree to its environment. Zero values select the
// process defaults.
type Config struct {
	ConfigPath   string
	OutputWriter io.Writer
	// PromptWriter receives the device code prompt; defaults to stderr.
	PromptWriter io.Writer
	// OpenBrowser replaces the platform browser launcher.
	OpenBrowser func(url string) error
	Clock       clock.Clock
	// Logger replaces the logger built from the log flags.
	Logger *zap.SugaredLogger
}

type runtimeState struct {
	configPath           string
	cfg                  *config.Config
	env                  config.Env
	profileOverride      string
	outputFormat         string
	serverOverride       string
	clientIDOverride     string
	scopesOverride       []string
	tokenStorageOverride string
	tokenCacheOverride   string
	allowInsecureHTTP    bool
	logLevel             string
	logFormat            string
	verbose              bool
	writer               io.Writer
	promptWriter         io.Writer
	openBrowser          func(url string) error
	clock                clock.Clock
	logger               *zap.SugaredLogger
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{
		ConfigPath:   config.DefaultConfigPath(),
		OutputWriter: os.Stdout,
		PromptWriter: os.Stderr,
	}
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{
		configPath:   cfg.ConfigPath,
		writer:       cfg.OutputWriter,
		promptWriter: cfg.PromptWriter,
		openBrowser:  cfg.OpenBrowser,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
	}

	root := &cobra.Command{
		Use:           "devicelogin",
		Short:         "Sign in to an OAuth 2.1 authorization server from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			if rt.promptWriter == nil {
				rt.promptWriter = os.Stderr
			}
			if rt.openBrowser == nil {
				rt.openBrowser = openBrowser
			}
			if rt.clock == nil {
				rt.clock = clock.RealClock{}
			}
			if rt.configPath == "" {
				rt.configPath = config.DefaultConfigPath()
			}

			// Commands that never touch a profile skip the config file.
			if cmd.Name() == "version" || cmd.Name() == "completion" {
				return nil
			}
			env, err := config.LoadEnv()
			if err != nil {
				return fmt.Errorf("invalid %s_* environment: %w", config.EnvPrefix, err)
			}
			rt.env = env
			if cmd.Name() == "init" && cmd.Parent() != nil && cmd.Parent().Name() == "config" {
				return rt.initLogger()
			}

			cfg, err := config.LoadOrDefault(rt.configPath)
			if err != nil {
				return err
			}
			rt.cfg = cfg
			return rt.initLogger()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&rt.configPath, "config", rt.configPath, "Path to config file (env "+config.ConfigPathEnv+")")
	flags.StringVarP(&rt.profileOverride, "profile", "p", "", "Profile name override")
	flags.StringVarP(&rt.outputFormat, "output", "o", "", "Output format: text, json, yaml")
	flags.StringVar(&rt.serverOverride, "server", "", "Authorization server (issuer) URL override")
	flags.StringVar(&rt.clientIDOverride, "client-id", "", "Preconfigured client ID used when registration is unavailable")
	flags.StringSliceVar(&rt.scopesOverride, "scopes", nil, "Scopes to request")
	flags.StringVar(&rt.tokenStorageOverride, "token-storage", "", "Token storage backend: auto, keychain or file")
	flags.StringVar(&rt.tokenCacheOverride, "token-cache", "", "Path of the token cache file")
	flags.BoolVar(&rt.allowInsecureHTTP, "allow-insecure-http", false, "Allow plain http to localhost for development servers")
	flags.StringVar(&rt.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&rt.logFormat, "log-format", "", "Log format: console or json")
	flags.BoolVarP(&rt.verbose, "verbose", "v", false, "Enable debug logging")

	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))

	root.AddCommand(
		NewLoginCommand(),
		NewStatusCommand(),
		NewLogoutCommand(),
		NewConfigCommand(),
		NewCompletionCommand(),
		NewVersionCommand(),
	)

	return root
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func (rt *runtimeState) initLogger() error {
	if rt.logger != nil {
		return nil
	}
	settings := rt.Settings()
	logger, err := system.NewLogger(system.LoggerOptions{
		Level:   settings.LogLevel,
		Format:  settings.LogFormat,
		Verbose: rt.verbose,
	})
	if err != nil {
		return err
	}
	rt.logger = logger
	return nil
}

func (rt *runtimeState) Logger() *zap.SugaredLogger {
	if rt.logger == nil {
		return zap.NewNop().Sugar()
	}
	return rt.logger
}

// ResolveProfileName applies flag, then environment, then the config file.
func (rt *runtimeState) ResolveProfileName() string {
	if rt.profileOverride != "" {
		return rt.profileOverride
	}
	if rt.env.Profile != "" {
		return rt.env.Profile
	}
	if rt.cfg != nil {
		return rt.cfg.CurrentProfileOrDefault()
	}
	return config.DefaultProfileName
}

// ResolveProfile layers the config file profile, the environment and the
// flags. A profile missing from the file is fine as long as the server is
// supplied some other way.
func (rt *runtimeState) ResolveProfile() (config.Profile, error) {
	name := rt.ResolveProfileName()
	profile := config.Profile{Name: name}
	if rt.cfg != nil {
		if found, err := rt.cfg.FindProfile(name); err == nil {
			profile = *found
		}
	}
	rt.env.ApplyProfile(&profile)
	if rt.serverOverride != "" {
		profile.AuthorizationServer = rt.serverOverride
	}
	if rt.clientIDOverride != "" {
		profile.ClientID = rt.clientIDOverride
	}
	if len(rt.scopesOverride) > 0 {
		profile.Scopes = rt.scopesOverride
	}
	if rt.allowInsecureHTTP {
		profile.AllowInsecureHTTP = true
	}
	if profile.AuthorizationServer == "" {
		return config.Profile{}, fmt.Errorf("no authorization server configured for profile %q; run 'devicelogin config init' or pass --server", name)
	}
	return profile, nil
}

// Settings merges the config file settings with environment and flags.
func (rt *runtimeState) Settings() config.Settings {
	settings := config.DefaultConfig().Settings
	if rt.cfg != nil {
		settings = rt.cfg.Settings
	}
	rt.env.ApplySettings(&settings)
	if rt.outputFormat != "" {
		settings.OutputFormat = rt.outputFormat
	}
	if rt.tokenStorageOverride != "" {
		settings.TokenStorage = rt.tokenStorageOverride
	}
	if rt.tokenCacheOverride != "" {
		settings.TokenCachePath = rt.tokenCacheOverride
	}
	if rt.logLevel != "" {
		settings.LogLevel = rt.logLevel
	}
	if rt.logFormat != "" {
		settings.LogFormat = rt.logFormat
	}
	return settings
}

func (rt *runtimeState) OutputFormat() (output.Format, error) {
	format := rt.Settings().OutputFormat
	if format == "" {
		return output.FormatText, nil
	}
	return output.ParseFormat(strings.ToLower(format))
}

func (rt *runtimeState) TokenManager() *store.TokenManager {
	settings := rt.Settings()
	path := settings.TokenCachePath
	if path == "" {
		path = config.DefaultTokenPath()
	}
	return &store.TokenManager{
		CachePath:   path,
		StorageMode: settings.TokenStorage,
		Logger:      rt.Logger(),
	}
}

// NewAuthClient builds a protocol client for profile.
func (rt *runtimeState) NewAuthClient(profile config.Profile, opts ...auth.Option) (*auth.Client, error) {
	logger := rt.Logger().With(system.ProfileFields(profile.Name, profile.AuthorizationServer)...)
	base := []auth.Option{
		auth.WithLogger(logger),
		auth.WithClock(rt.clock),
	}
	return auth.NewClient(profile.AuthConfig(), append(base, opts...)...)
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}

func (rt *runtimeState) PromptWriter() io.Writer {
	if rt.promptWriter != nil {
		return rt.promptWriter
	}
	return os.Stderr
}

func (rt *runtimeState) configPathValue() string {
	if rt.configPath != "" {
		return rt.configPath
	}
	return config.DefaultConfigPath()
}
