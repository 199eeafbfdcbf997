// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	pathNative   = "native"
	pathFallback = "fallback"
)

type schedulerMetrics struct {
	proofsGenerated   *prometheus.CounterVec
	proofFailures     *prometheus.CounterVec
	retries           prometheus.Counter
	boundaryCrossings prometheus.Counter
	batchLatencyMS    prometheus.Histogram
	queueDepth        prometheus.Gauge
}

func newSchedulerMetrics(registerer prometheus.Registerer) *schedulerMetrics {
	m := schedulerMetrics{
		proofsGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confidential_proofs_generated_count",
				Help: "Number of proofs generated",
			},
			[]string{"path", "type"},
		),
		proofFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "confidential_proof_failures_count",
				Help: "Number of terminal proof failures",
			},
			[]string{"context", "kind"},
		),
		retries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "confidential_proof_retries_count",
				Help: "Number of tasks re-queued for the fallback path",
			},
		),
		boundaryCrossings: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "confidential_boundary_crossings_count",
				Help: "Number of native boundary crossings",
			},
		),
		batchLatencyMS: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "confidential_batch_latency_ms",
				Help:    "Latency of processing one batch in milliseconds",
				Buckets: prometheus.ExponentialBucketsRange(1, 60000, 12),
			},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "confidential_queue_depth",
				Help: "Number of queued proof tasks",
			},
		),
	}
	registerer.MustRegister(m.proofsGenerated)
	registerer.MustRegister(m.proofFailures)
	registerer.MustRegister(m.retries)
	registerer.MustRegister(m.boundaryCrossings)
	registerer.MustRegister(m.batchLatencyMS)
	registerer.MustRegister(m.queueDepth)

	return &m
}
