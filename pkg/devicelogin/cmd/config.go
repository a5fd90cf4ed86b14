// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/telekom/devicelogin/pkg/devicelogin/config"
	"github.com/telekom/devicelogin/pkg/devicelogin/output"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage devicelogin configuration",
	}

	cmd.AddCommand(
		newConfigInitCommand(),
		newConfigViewCommand(),
		newConfigUseProfileCommand(),
	)

	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var (
		profileName  string
		server       string
		clientID     string
		scopes       []string
		tokenStorage string
		insecure     bool
		force        bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a devicelogin config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			path := rt.configPathValue()
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("config already exists: %s", path)
				}
			}
			if profileName == "" {
				profileName = config.DefaultProfileName
			}
			cfg := config.DefaultConfig()
			cfg.CurrentProfile = profileName
			if tokenStorage != "" {
				cfg.Settings.TokenStorage = tokenStorage
			}
			cfg.Profiles = append(cfg.Profiles, config.Profile{
				Name:                profileName,
				AuthorizationServer: server,
				ClientID:            clientID,
				Scopes:              scopes,
				AllowInsecureHTTP:   insecure,
			})
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(path, &cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Initialized config at %s\n", path)
			return nil
		},
	}

	// Local flags shadow the persistent overrides of the same name.
	cmd.Flags().StringVar(&profileName, "profile", config.DefaultProfileName, "Profile name")
	cmd.Flags().StringVar(&server, "server", "", "Authorization server (issuer) URL")
	cmd.Flags().StringVar(&clientID, "client-id", "", "Preconfigured client ID used when registration is unavailable")
	cmd.Flags().StringSliceVar(&scopes, "scopes", []string{"openid", "profile", "offline_access"}, "Scopes to request")
	cmd.Flags().StringVar(&tokenStorage, "token-storage", "", "Token storage backend: auto, keychain or file")
	cmd.Flags().BoolVar(&insecure, "allow-insecure-http", false, "Allow plain http to localhost for development servers")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config")

	_ = cmd.MarkFlagRequired("server")
	return cmd
}

func newConfigViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Show the current configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if rt.cfg == nil {
				return errors.New("config not loaded")
			}
			format, err := rt.OutputFormat()
			if err != nil {
				return err
			}
			if format == output.FormatText {
				format = output.FormatYAML
			}
			return output.WriteObject(rt.Writer(), format, rt.cfg)
		},
	}
}

func newConfigUseProfileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "use-profile NAME",
		Short: "Set the current profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if rt.cfg == nil {
				return errors.New("config not loaded")
			}
			if _, err := rt.cfg.FindProfile(args[0]); err != nil {
				return err
			}
			rt.cfg.CurrentProfile = args[0]
			if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Switched to profile %s\n", args[0])
			return nil
		},
	}
}
