// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"github.com/spf13/cobra"
)

var (
	configPath  string
	backend     string
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:           "dirload",
	Short:         "Bulk-load and reindex tool for a dirstore backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the TOML configuration file (required)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "mdbx", "store backend: mdbx or bolt")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address")
	rootCmd.MarkPersistentFlagRequired("config")

	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(reindexCmd)
}
