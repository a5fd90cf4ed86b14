// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/telekom/devicelogin/pkg/devicelogin/auth"
	"github.com/telekom/devicelogin/pkg/devicelogin/output"
	"github.com/telekom/devicelogin/pkg/devicelogin/store"
	"github.com/telekom/devicelogin/pkg/metrics"
	"github.com/telekom/devicelogin/pkg/telemetry"
	"github.com/telekom/devicelogin/pkg/version"
)

// loginError carries the user-facing message for a failed login while
// keeping the classified error reachable through errors.Is.
type loginError struct {
	err error
}

func (e *loginError) Error() string {
	return "login failed: " + auth.UserMessage(e.err)
}

func (e *loginError) Unwrap() error {
	return e.err
}

func NewLoginCommand() *cobra.Command {
	var (
		noBrowser       bool
		metricsTextfile string
		traceExporter   string
		traceEndpoint   string
		traceInsecure   bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with the device authorization grant",
		Long: `Sign in with the OAuth 2.1 device authorization grant.

The command prints a short user code and a verification URL. Open the URL on
any device, enter the code, and approve the request; the CLI polls the
authorization server until the request is approved, denied, or expires.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			profile, err := rt.ResolveProfile()
			if err != nil {
				return err
			}
			settings := rt.Settings()
			format, err := rt.OutputFormat()
			if err != nil {
				return err
			}
			prompt, err := output.ParsePrompt(settings.PromptTemplate)
			if err != nil {
				return err
			}
			if traceExporter == "" {
				traceExporter = settings.TraceExporter
			}
			if traceEndpoint == "" {
				traceEndpoint = settings.TraceEndpoint
			}
			tp, shutdownTracing, err := telemetry.Init(cmd.Context(), telemetry.Options{
				Exporter:       traceExporter,
				Endpoint:       traceEndpoint,
				Insecure:       traceInsecure,
				ServiceVersion: version.Version,
				Writer:         rt.PromptWriter(),
				Logger:         rt.Logger(),
			})
			if err != nil {
				return err
			}
			defer func() {
				if err := shutdownTracing(context.Background()); err != nil {
					rt.Logger().Warnw("Failed to flush traces", "error", err)
				}
			}()

			client, err := rt.NewAuthClient(profile,
				auth.WithUserAgent(version.UserAgent()),
				auth.WithTracerProvider(tp))
			if err != nil {
				return &loginError{err: err}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			showPrompt := func(_ context.Context, authorization *auth.DeviceAuthorization) error {
				data := output.PromptData{
					UserCode:                authorization.UserCode,
					VerificationURI:         authorization.VerificationURI,
					VerificationURIComplete: authorization.VerificationURIComplete,
					ExpiresIn:               authorization.ExpiresIn,
					ExpiresAt:               authorization.Deadline(),
					Interval:                authorization.Interval,
					Issuer:                  client.Issuer(),
					Profile:                 profile.Name,
				}
				if err := output.WritePrompt(rt.PromptWriter(), prompt, data); err != nil {
					return err
				}
				if noBrowser || settings.NoBrowser {
					return nil
				}
				if err := rt.openBrowser(authorization.BrowserURL()); err != nil {
					rt.Logger().Debugw("Could not open a browser", "error", err)
				}
				return nil
			}

			tokens, loginErr := client.Login(ctx, showPrompt)
			if metricsTextfile != "" {
				if err := metrics.WriteTextfile(metricsTextfile); err != nil {
					rt.Logger().Warnw("Failed to write metrics textfile", "path", metricsTextfile, "error", err)
				}
			}
			if loginErr != nil {
				return &loginError{err: loginErr}
			}

			manager := rt.TokenManager()
			now := rt.clock.Now()
			stored := store.FromTokens(client.Issuer(), *tokens, now)
			if err := manager.SaveToken(profile.Name, stored); err != nil {
				return fmt.Errorf("login succeeded but the token could not be saved: %w", err)
			}
			backend, err := manager.Backend()
			if err != nil {
				return err
			}

			summary := summarize(profile.Name, stored, backend.Name(), now)
			if format == output.FormatText {
				_, _ = fmt.Fprintln(rt.Writer(), "Login successful.")
				output.WriteSummary(rt.Writer(), summary, now)
				return nil
			}
			return output.WriteObject(rt.Writer(), format, summary)
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Do not open the verification URL in a browser (env DEVICELOGIN_NO_BROWSER)")
	cmd.Flags().StringVar(&metricsTextfile, "metrics-textfile", "", "Write flow metrics in Prometheus text format to this file")
	cmd.Flags().StringVar(&traceExporter, "trace-exporter", "", "Trace exporter: none, stdout (to stderr) or otlp")
	cmd.Flags().StringVar(&traceEndpoint, "trace-endpoint", "", "OTLP gRPC collector address, e.g. localhost:4317")
	cmd.Flags().BoolVar(&traceInsecure, "trace-insecure", false, "Disable TLS for the OTLP connection")

	return cmd
}
