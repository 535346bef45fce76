// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"
	"github.com/stratastor/afdmon/cmd/config"
	"github.com/stratastor/afdmon/cmd/probe"
	"github.com/stratastor/afdmon/cmd/serve"
	"github.com/stratastor/afdmon/cmd/status"
	"github.com/stratastor/afdmon/cmd/version"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "afdmon",
		Short: "afdmon: AFD monitor controller",
	}

	rootCmd.AddCommand(serve.NewServeCmd())
	rootCmd.AddCommand(version.NewVersionCmd())
	rootCmd.AddCommand(status.NewStatusCmd())
	rootCmd.AddCommand(config.NewConfigCmd())
	rootCmd.AddCommand(probe.NewProbeCmd())

	return rootCmd
}
