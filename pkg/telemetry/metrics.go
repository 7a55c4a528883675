// Package telemetry exposes prometheus counters for the remote-call path.
// Every remote call is expensive here, so call counts and governor waits are
// the primary operational signal.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RemoteCalls counts calls through the governor by route and outcome.
	RemoteCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatdb_remote_calls_total",
		Help: "Remote platform calls by route and outcome.",
	}, []string{"route", "outcome"})

	// GovernorRetries counts transparent retries by route and reason.
	GovernorRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatdb_governor_retries_total",
		Help: "Governor-internal retries by route and reason.",
	}, []string{"route", "reason"})

	// GovernorWait accumulates time spent parked in the governor.
	GovernorWait = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatdb_governor_wait_seconds_total",
		Help: "Total seconds spent waiting on tokens and cool-downs.",
	})

	// CacheHits / CacheMisses count table cache lookups.
	CacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatdb_cache_hits_total",
		Help: "Table cache hits.",
	}, []string{"table"})
	CacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatdb_cache_misses_total",
		Help: "Table cache misses forcing a remote reload.",
	}, []string{"table"})

	// ScanPages counts history pages fetched during scans.
	ScanPages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chatdb_scan_pages_total",
		Help: "History pages fetched by the log reader.",
	})

	// RowsDecoded counts rows reconstructed from the log.
	RowsDecoded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chatdb_rows_decoded_total",
		Help: "Rows decoded during scans, per table.",
	}, []string{"table"})
)

func init() {
	prometheus.MustRegister(
		RemoteCalls,
		GovernorRetries,
		GovernorWait,
		CacheHits,
		CacheMisses,
		ScanPages,
		RowsDecoded,
	)
}
