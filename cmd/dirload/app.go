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

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/erigontech/dirstore/internal/dirname"
	"github.com/erigontech/dirstore/internal/dsconfig"
	"github.com/erigontech/dirstore/internal/dslog"
	"github.com/erigontech/dirstore/internal/dsmetrics"
	"github.com/erigontech/dirstore/internal/idlcache"
	"github.com/erigontech/dirstore/internal/ids"
	"github.com/erigontech/dirstore/internal/kv"
	"github.com/erigontech/dirstore/internal/kv/boltkv"
	"github.com/erigontech/dirstore/internal/kv/mdbxkv"
	"github.com/erigontech/dirstore/internal/resolver"
	"github.com/erigontech/dirstore/internal/schema"
)

// app bundles the pieces every subcommand wires together, so load.go
// and reindex.go only differ in which pipeline they drive.
type app struct {
	cfg     *dsconfig.Config
	log     *zap.Logger
	db      kv.DB
	gen     *ids.Sequence
	res     *resolver.Resolver
	cache   *idlcache.Cache
	indexer schema.Indexer
	reg     *prometheus.Registry
}

func openApp() (*app, error) {
	cfg, err := dsconfig.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := dslog.New(cfg.Debug)
	if err != nil {
		return nil, err
	}

	tables := append([]string(nil), kv.ChaindataTables...)
	indexer := schema.NewExactMatch(cfg.Attributes, cfg.IndexNAttrs)
	for _, d := range indexer.Attributes() {
		tables = append(tables, d.Table)
	}

	db, err := openBackend(cfg.DataDir, tables)
	if err != nil {
		return nil, err
	}

	gen, err := ids.NewSequence(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("dirload: open id sequence: %w", err)
	}

	reg := prometheus.NewRegistry()
	dsmetrics.MustRegister(reg)

	return &app{
		cfg:     cfg,
		log:     log,
		db:      db,
		gen:     gen,
		res:     resolver.New(dirname.Name(cfg.Suffix), gen),
		cache:   idlcache.New(cfg.DBSizeThreshold, cfg.IDLCacheMaxSize),
		indexer: indexer,
		reg:     reg,
	}, nil
}

func openBackend(dataDir string, tables []string) (kv.DB, error) {
	switch backend {
	case "mdbx":
		return mdbxkv.Open(dataDir, tables)
	case "bolt":
		return boltkv.Open(dataDir, tables)
	default:
		return nil, fmt.Errorf("dirload: unknown backend %q (want mdbx or bolt)", backend)
	}
}

func (a *app) maybeServeMetrics() {
	if metricsAddr == "" {
		return
	}
	go func() {
		if err := dsmetrics.Serve(metricsAddr, a.reg); err != nil {
			a.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
}

func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn("close backend", zap.Error(err))
	}
	a.log.Sync()
}
