// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/wordapp/wordapp/internal/config"
	"github.com/wordapp/wordapp/internal/store"
)

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd() *cobra.Command {
	return newMigrateCmd(nil)
}

func newMigrateCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Apply, roll back and inspect the PostgreSQL schema migrations.`,
	}

	run := func(fn func(cmd *cobra.Command, m Migrator, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			m, err := openMigrator(cfg, deps.withDefaults())
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()
			return fn(cmd, m, args)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, m Migrator, _ []string) error {
			if err := m.Up(); err != nil {
				return err
			}
			return printVersion(cmd, m)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, m Migrator, _ []string) error {
			if err := m.Down(); err != nil {
				return err
			}
			return printVersion(cmd, m)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "steps N",
		Short: "Apply N migrations, or roll back when N is negative",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, m Migrator, args []string) error {
			n, err := parseVersionArg(args[0])
			if err != nil {
				return err
			}
			if err := m.Steps(n); err != nil {
				return err
			}
			return printVersion(cmd, m)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Set the recorded version without running migrations (clears dirty)",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, m Migrator, args []string) error {
			v, err := parseVersionArg(args[0])
			if err != nil {
				return err
			}
			if err := m.Force(v); err != nil {
				return err
			}
			return printVersion(cmd, m)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: run(func(cmd *cobra.Command, m Migrator, _ []string) error {
			if err := printVersion(cmd, m); err != nil {
				return err
			}
			applied, err := m.AppliedMigrations()
			if err != nil {
				return err
			}
			pending, err := m.PendingMigrations()
			if err != nil {
				return err
			}
			printMigrations(cmd, "Applied", applied)
			printMigrations(cmd, "Pending", pending)
			return nil
		}),
	})

	return cmd
}

func openMigrator(cfg *config.Config, deps *Deps) (Migrator, error) {
	if err := requireDatabaseURL(cfg); err != nil {
		return nil, err
	}
	return deps.NewMigrator(cfg.Database.URL)
}

// migrateUp applies pending migrations for serve --migrate.
func migrateUp(cfg *config.Config, deps *Deps) error {
	m, err := openMigrator(cfg, deps)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return m.Up()
}

func parseVersionArg(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("not an integer: %q", s)
	}
	return n, nil
}

func printVersion(cmd *cobra.Command, m Migrator) error {
	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	line := fmt.Sprintf("Schema version: %d", v)
	if dirty {
		line += " (dirty)"
	}
	cmd.Println(line)
	return nil
}

func printMigrations(cmd *cobra.Command, label string, versions []uint) {
	if len(versions) == 0 {
		cmd.Printf("%s: none\n", label)
		return
	}
	cmd.Printf("%s:\n", label)
	for _, v := range versions {
		name, err := store.MigrationName(v)
		if err != nil || name == "" {
			name = strconv.FormatUint(uint64(v), 10)
		}
		cmd.Printf("  %s\n", name)
	}
}
