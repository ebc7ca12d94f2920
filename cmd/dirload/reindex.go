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

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erigontech/dirstore/internal/direntry"
	"github.com/erigontech/dirstore/internal/indexpool"
	"github.com/erigontech/dirstore/internal/reindex"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild every secondary database from the primary store",
	Args:  cobra.NoArgs,
	RunE:  runReindex,
}

func runReindex(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()
	a.maybeServeMetrics()

	var pool *indexpool.Pool
	if !a.cfg.LinearIndex && len(a.indexer.Attributes()) > 0 {
		workers := a.cfg.ThreadMax
		if workers < 1 {
			workers = 1
		}
		pool = indexpool.New(workers, a.indexer)
		pool.Start()
	}

	rx, err := reindex.Open(a.db, a.cache, a.indexer, direntry.SnappyGob{}, pool, a.cfg.Quick)
	if err != nil {
		return fmt.Errorf("dirload reindex: open: %w", err)
	}

	var runErr error
	if a.cfg.LinearIndex {
		a.log.Info("starting linear reindex", zap.Int("attributes", len(a.indexer.Attributes())))
		runErr = rx.RunLinear()
	} else {
		a.log.Info("starting reindex")
		runErr = rx.Run()
	}

	closeErr := rx.Close()
	if runErr != nil {
		return fmt.Errorf("dirload reindex: %w", runErr)
	}
	if closeErr != nil {
		return fmt.Errorf("dirload reindex: %w", closeErr)
	}
	a.log.Info("reindex complete")
	return nil
}
