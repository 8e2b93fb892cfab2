// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/wordapp/wordapp/internal/config"
)

// NewRootCmd creates the root command for the WordApp CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wordapp",
		Short: "WordApp - account and session server",
		Long: `WordApp serves account signup, activation, login with "remember me",
and password reset over a JSON HTTP API backed by PostgreSQL.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("config", "", "config file path (default: XDG_CONFIG_HOME/wordapp/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(newServeCmd(deps))
	cmd.AddCommand(newMigrateCmd(deps))
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(newUserCmd(deps))

	return cmd
}

// loadConfig resolves the effective configuration for cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return config.Load(config.LoadOptions{Path: path, Flags: cmd.Flags()})
}

// loadValidConfig is loadConfig followed by Validate.
func loadValidConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
