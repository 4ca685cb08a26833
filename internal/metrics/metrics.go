// Copyright 2025 Matheus Pimenta.
// SPDX-License-Identifier: AGPL-3.0

// Package metrics exposes Prometheus instrumentation for a sync run: a
// registry plus counters/histograms for the engine's entry-level decisions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gcs_rsync"

var processStartTime = time.Now()

// NewRegistry returns a registry pre-populated with the standard process
// and Go runtime collectors.
func NewRegistry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())
	return r
}

// HandlerFor serves registry's metrics in OpenMetrics format.
func HandlerFor(registry *prometheus.Registry, l promhttp.Logger) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		ErrorLog:          l,
		EnableOpenMetrics: true,
		ProcessStartTime:  processStartTime,
	})
}

// NewRequestLatencyMillis tracks GCS JSON API request latency.
func NewRequestLatencyMillis() *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_latency_millis",
		Buckets:   prometheus.ExponentialBuckets(0.2, 5, 7),
	}, []string{"method", "status"})
}

// NewTokenRefreshesCounter counts OAuth2 token refreshes, labeled by the
// credential provider kind (authorized_user, service_account, metadata_server).
func NewTokenRefreshesCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refreshes_total",
		Help:      "Total OAuth2 token refreshes, by credential provider kind.",
	}, []string{"provider"})
}

// NewEntriesCounter counts sync decisions, labeled by status
// (created, updated, already_synced, deleted, not_deleted).
func NewEntriesCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entries_total",
		Help:      "Total entries processed by the sync engine, by resulting status.",
	}, []string{"status"})
}

// NewRetryFailuresCounter counts retryable GCS JSON API failures: every
// attempt whose error retry.Do treats as retryable, including a last
// attempt after which no retry follows.
func NewRetryFailuresCounter() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "request_retry_failures_total",
		Help:      "Total retryable GCS JSON API request failures.",
	})
}

// NewTransferredBytesCounter counts bytes copied from source to destination.
func NewTransferredBytesCounter() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transferred_bytes_total",
		Help:      "Total bytes copied from source to destination.",
	})
}
