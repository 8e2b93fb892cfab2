// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 WordApp Contributors

// Package main is the entry point for the WordApp account server.
package main

import (
	"fmt"
	"os"

	"github.com/wordapp/wordapp/pkg/errutil"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := cmd.Execute(); err != nil {
		if code := errutil.Code(err); code != "" {
			fmt.Fprintln(os.Stderr, "Error code:", code)
		}
		os.Exit(1)
	}
}
