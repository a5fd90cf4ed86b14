// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored tokens of the current profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			name := rt.ResolveProfileName()
			if err := rt.TokenManager().DeleteToken(name); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Logged out of profile %s\n", name)
			return nil
		},
	}
}
