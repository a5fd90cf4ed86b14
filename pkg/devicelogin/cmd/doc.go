// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

// Package cmd implements the cobra command tree for the devicelogin CLI:
// login, status, logout, configuration, version, and shell completion.
package cmd
