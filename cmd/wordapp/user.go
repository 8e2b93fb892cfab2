// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/wordapp/wordapp/internal/logging"
)

// NewUserCmd creates the user administration command group.
func NewUserCmd() *cobra.Command {
	return newUserCmd(nil)
}

func newUserCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Administer accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "activate EMAIL",
		Short: "Activate an account without its activation link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadValidConfig(cmd)
			if err != nil {
				return err
			}
			d := deps.withDefaults()

			logger, err := logging.Setup(logging.Options{
				Service: "wordapp",
				Version: version,
				Format:  cfg.Log.Format,
				Level:   cfg.Log.Level,
				Writer:  cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}

			users, release, err := d.OpenUsers(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer release()

			mailer, err := d.NewMailer(cfg, logger)
			if err != nil {
				return err
			}
			svc, err := newAuthService(cfg, users, mailer, logger)
			if err != nil {
				return err
			}

			user, err := svc.ForceActivate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Printf("Activated %s (%s)\n", user.Email, user.ID)
			return nil
		},
	})

	return cmd
}
