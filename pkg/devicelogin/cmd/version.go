// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telekom/devicelogin/pkg/devicelogin/output"
	"github.com/telekom/devicelogin/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show devicelogin version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.GetBuildInfo()

			// The runtime only supplies the writer and the -o flag here.
			rt, _ := getRuntime(cmd)
			writer := cmd.OutOrStdout()
			format := output.FormatText
			if rt != nil {
				writer = rt.Writer()
				if rt.outputFormat != "" {
					parsed, err := output.ParseFormat(rt.outputFormat)
					if err != nil {
						return err
					}
					format = parsed
				}
			}

			if format != output.FormatText {
				return output.WriteObject(writer, format, info)
			}
			_, _ = fmt.Fprintf(writer, "devicelogin %s (commit: %s, built: %s, %s)\n",
				info.Version, info.GitCommit, info.BuildDate, info.Platform)
			return nil
		},
	}
	return cmd
}
