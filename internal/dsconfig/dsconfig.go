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

// Package dsconfig loads cmd/dirload's TOML configuration file, naming
// every option §6 "Configuration" recognizes.
package dsconfig

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/erigontech/dirstore/internal/dsmath"
)

// Config is the load/reindex run's configuration.
type Config struct {
	// Suffix is the configured root name; ancestors above it are never
	// auto-materialized (§4.C step 4).
	Suffix string `toml:"suffix"`
	// DataDir is the store's on-disk location.
	DataDir string `toml:"data_dir"`
	// Attributes lists every schema attribute eligible for indexing,
	// most-significant first.
	Attributes []string `toml:"attributes"`
	// IndexNAttrs is nattrs: how many of Attributes are actually
	// indexed (§9 supplemented feature "index_nattrs"). Zero or out of
	// range means "index them all".
	IndexNAttrs int `toml:"index_nattrs"`
	// LinearIndex is linear_index.
	LinearIndex bool `toml:"linear_index"`
	// IDLCacheMaxSize is idl_cache_max_size in blocks; 0 disables
	// caching and forces direct writes.
	IDLCacheMaxSize int `toml:"idl_cache_max_size"`
	// DBSizeThreshold is DB_SIZE_THRESHOLD: the list/range crossover
	// point for one IDL cache entry.
	DBSizeThreshold uint64 `toml:"db_size_threshold"`
	// ThreadMax is thread_max: the index worker pool's width N.
	ThreadMax int `toml:"thread_max"`
	// Quick is the quick mode flag.
	Quick bool `toml:"quick"`
	// ReadOnly is the readonly mode flag. It is decoded, but no
	// command reads it.
	ReadOnly bool `toml:"readonly"`
	// Debug enables verbose logging.
	Debug bool `toml:"debug"`
}

// Load reads and validates a Config from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dsconfig: read %s: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("dsconfig: parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("dsconfig: %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ThreadMax < 1 {
		c.ThreadMax = 4
	}
	c.ThreadMax = int(dsmath.Max(uint64(c.ThreadMax), 1))
	if c.DBSizeThreshold == 0 {
		c.DBSizeThreshold = 16
	}
	if c.IndexNAttrs <= 0 || c.IndexNAttrs > len(c.Attributes) {
		c.IndexNAttrs = len(c.Attributes)
	} else {
		c.IndexNAttrs = int(dsmath.Min(uint64(c.IndexNAttrs), uint64(len(c.Attributes))))
	}
}

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	if c.Suffix == "" {
		return fmt.Errorf("suffix is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.LinearIndex && c.IndexNAttrs == 0 {
		return fmt.Errorf("linear_index requires at least one indexed attribute")
	}
	return nil
}
