// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package main

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wordapp/wordapp/internal/config"
	"github.com/wordapp/wordapp/internal/xdg"
)

// NewConfigCmd creates the config command group.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg.Redacted())
			if err != nil {
				return oops.Code("CONFIG_RENDER_FAILED").Wrap(err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := loadValidConfig(cmd); err != nil {
				return err
			}
			cmd.Println("Configuration is valid")
			return nil
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			if path == "" {
				if path, err = xdg.ConfigFile(); err != nil {
					return err
				}
			}
			if err := writeDefaultConfig(path, force); err != nil {
				return err
			}
			cmd.Println("Wrote " + path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}

func writeDefaultConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return oops.Code("CONFIG_EXISTS").With("path", path).Errorf("config file already exists (use --force)")
		} else if !errors.Is(err, fs.ErrNotExist) {
			return oops.Code("CONFIG_WRITE_FAILED").With("path", path).Wrap(err)
		}
	}
	if err := xdg.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	out, err := yaml.Marshal(config.Default())
	if err != nil {
		return oops.Code("CONFIG_RENDER_FAILED").Wrap(err)
	}
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return oops.Code("CONFIG_WRITE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
