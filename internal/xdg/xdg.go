// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

// Package xdg provides XDG Base Directory paths for WordApp.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "wordapp"

// ConfigDir returns the XDG config directory for wordapp.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() (string, error) {
	return dir("XDG_CONFIG_HOME", ".config")
}

// ConfigFile returns the default config file path.
func ConfigFile() (string, error) {
	base, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "config.yaml"), nil
}

func dir(env, fallback string) (string, error) {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", oops.Code("XDG_HOME_UNKNOWN").With("env", env).Wrap(err)
	}
	return filepath.Join(home, fallback, appName), nil
}

// EnsureDir creates a directory and all parent directories if they don't exist.
// Directories are created with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.With("path", path).Wrap(err)
	}
	return nil
}
