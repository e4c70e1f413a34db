// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2025-present Datadog, Inc.

// Package metrics exposes Prometheus counters for probe sweeps
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pathprobe"

// Metrics holds every collector the prober updates
type Metrics struct {
	ProbesSent      prometheus.Counter
	ProbesMatched   *prometheus.CounterVec
	ProbesTimedOut  prometheus.Counter
	HopsSkipped     prometheus.Counter
	SendErrors      *prometheus.CounterVec
	ICMPMalformed   prometheus.Counter
	ICMPUnmatched   prometheus.Counter
	OptionDowngrade prometheus.Counter
	SweepsStarted   prometheus.Counter
	SweepsAborted   *prometheus.CounterVec
	SweepsActive    prometheus.Gauge
	MatchRTT        prometheus.Histogram
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the process-wide metrics registered on the default registerer
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetricsWithRegistry(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewMetricsWithRegistry registers a fresh set of collectors on reg
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ProbesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_sent_total",
			Help:      "Probe datagrams handed to the transport",
		}),
		ProbesMatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_matched_total",
			Help:      "Probes resolved by an ICMP error, by ICMP kind",
		}, []string{"kind"}),
		ProbesTimedOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_timed_out_total",
			Help:      "Probes reaped without a matching ICMP error",
		}),
		HopsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hops_skipped_total",
			Help:      "Hops not probed because the encoded datagram exceeds the size ceiling",
		}),
		SendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Probe sends that failed, by error code",
		}, []string{"code"}),
		ICMPMalformed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "icmp_malformed_total",
			Help:      "ICMP packets dropped because they could not be parsed",
		}),
		ICMPUnmatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "icmp_unmatched_total",
			Help:      "ICMP errors that matched no outstanding probe",
		}),
		OptionDowngrade: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "option_downgrades_total",
			Help:      "Probes sent without their per-packet socket options",
		}),
		SweepsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_started_total",
			Help:      "Connection sweeps started",
		}),
		SweepsAborted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_aborted_total",
			Help:      "Connection sweeps stopped before completion, by reason",
		}, []string{"reason"}),
		SweepsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sweeps_active",
			Help:      "Connection sweeps currently running",
		}),
		MatchRTT: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_rtt_seconds",
			Help:      "Round trip time of matched probes",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}
}
