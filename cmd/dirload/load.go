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
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erigontech/dirstore/internal/direntry"
	"github.com/erigontech/dirstore/internal/loadpipeline"
)

var loadCmd = &cobra.Command{
	Use:   "load <entries.jsonl>",
	Short: "Bulk-load entries from a newline-delimited JSON file",
	Args:  cobra.ExactArgs(1),
	RunE:  runLoad,
}

func runLoad(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()
	a.maybeServeMetrics()

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("dirload load: %w", err)
	}
	defer f.Close()

	pl, err := loadpipeline.Open(a.db, a.res, a.cache, a.indexer, direntry.SnappyGob{}, loadpipeline.Config{
		Quick:       a.cfg.Quick,
		LinearIndex: a.cfg.LinearIndex,
		Workers:     a.cfg.ThreadMax,
	})
	if err != nil {
		return fmt.Errorf("dirload load: open pipeline: %w", err)
	}

	var n int
	loadErr := readEntries(f, func(e *direntry.Entry) error {
		if _, err := pl.Put(e); err != nil {
			return err
		}
		n++
		if n%10000 == 0 {
			a.log.Info("load progress", zap.Int("entries", n))
		}
		return nil
	})

	closeErr := pl.Close()
	if loadErr != nil {
		return fmt.Errorf("dirload load: %w", loadErr)
	}
	if closeErr != nil {
		return fmt.Errorf("dirload load: %w", closeErr)
	}
	a.log.Info("load complete", zap.Int("entries", n))
	return nil
}
