// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/telekom/devicelogin/pkg/devicelogin/output"
)

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored login for the current profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			format, err := rt.OutputFormat()
			if err != nil {
				return err
			}
			name := rt.ResolveProfileName()
			manager := rt.TokenManager()
			backend, err := manager.Backend()
			if err != nil {
				return err
			}
			token, found, err := manager.GetToken(name)
			if err != nil {
				return err
			}

			now := rt.clock.Now()
			summary := output.TokenSummary{Profile: name, Storage: backend.Name()}
			if found {
				summary = summarize(name, token, backend.Name(), now)
			}
			if format == output.FormatText {
				output.WriteSummary(rt.Writer(), summary, now)
				return nil
			}
			return output.WriteObject(rt.Writer(), format, summary)
		},
	}
}
