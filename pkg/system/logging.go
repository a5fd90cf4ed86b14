// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package system

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log formats accepted by NewLogger.
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// LoggerOptions configures the CLI logger. Logs always go to stderr so that
// stdout stays reserved for command output.
type LoggerOptions struct {
	Level  string
	Format string
	// Verbose forces debug level regardless of Level.
	Verbose bool
	// OutputPaths overrides the default of stderr; used by tests.
	OutputPaths []string
}

// NewLogger builds a sugared logger for the CLI.
func NewLogger(opts LoggerOptions) (*zap.SugaredLogger, error) {
	level := zapcore.WarnLevel
	if opts.Level != "" {
		parsed, err := zapcore.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = true
	cfg.Sampling = nil
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	switch strings.ToLower(opts.Format) {
	case "", LogFormatConsole:
		cfg.Encoding = LogFormatConsole
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	case LogFormatJSON:
		cfg.Encoding = LogFormatJSON
	default:
		return nil, fmt.Errorf("invalid log format %q (use %s or %s)", opts.Format, LogFormatConsole, LogFormatJSON)
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if len(opts.OutputPaths) > 0 {
		cfg.OutputPaths = opts.OutputPaths
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger.Sugar(), nil
}

// ProfileFields returns key/value pairs identifying a login profile, suitable
// for SugaredLogger.With. The issuer is omitted when empty.
func ProfileFields(profile, issuer string) []interface{} {
	if issuer == "" {
		return []interface{}{"profile", profile}
	}
	return []interface{}{"profile", profile, "issuer", issuer}
}
