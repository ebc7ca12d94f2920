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

// Package dsmetrics holds the Prometheus collectors the load and
// reindex pipelines report through.
package dsmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EntriesLoaded counts successfully committed Put calls.
	EntriesLoaded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dirstore_entries_loaded_total",
		Help: "Entries successfully written to the primary store.",
	})

	// LoadErrors counts Put calls that returned an error, labeled by
	// whether the load was running in quick mode.
	LoadErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dirstore_load_errors_total",
		Help: "Put calls that returned an error.",
	}, []string{"quick"})

	// LoadDuration observes wall-clock time per Put call.
	LoadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dirstore_put_duration_seconds",
		Help:    "Put call latency.",
		Buckets: prometheus.DefBuckets,
	})

	// IDLCacheFlushes counts Cache.Flush calls, labeled by table.
	IDLCacheFlushes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dirstore_idlcache_flushes_total",
		Help: "IDL cache tree flushes, by secondary table.",
	}, []string{"table"})

	// IDLCacheBlocksInUse reports the IDL cache's current global block
	// count, a proxy for its memory footprint.
	IDLCacheBlocksInUse = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dirstore_idlcache_blocks_in_use",
		Help: "Id-blocks currently allocated by the IDL cache.",
	})
)

// MustRegister registers every collector with reg.
func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(EntriesLoaded, LoadErrors, LoadDuration, IDLCacheFlushes, IDLCacheBlocksInUse)
}

// Serve exposes reg's metrics on addr at /metrics until the process
// exits or the listener fails. cmd/dirload runs it in a background
// goroutine when --metrics-addr is set; a run with no listener still
// updates the collectors, it just can't be scraped.
func Serve(addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}
