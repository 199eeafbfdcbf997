// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package scheduler

import (
	"time"
)

// BatchPerformanceMetrics describes one processed batch
type BatchPerformanceMetrics struct {
	TotalTime         time.Duration
	NativeTime        time.Duration
	FallbackTime      time.Duration
	BridgeTime        time.Duration
	BoundaryCrossings int
	Tasks             int
	NativeProofs      int
	FallbackProofs    int
	Failures          int
	Requeued          int
	Allocations       uint64
	HeapDelta         int64
	// SpeedupFactor compares the batch against proving every task on the
	// fallback path. It is 1 until a fallback baseline has been observed.
	SpeedupFactor float64
}

// history is a fixed-capacity ring of batch metrics
type history struct {
	entries []BatchPerformanceMetrics
	next    int
	full    bool
}

func newHistory(size int) *history {
	return &history{entries: make([]BatchPerformanceMetrics, max(size, 1))}
}

func (h *history) add(m BatchPerformanceMetrics) {
	h.entries[h.next] = m
	h.next = (h.next + 1) % len(h.entries)
	if h.next == 0 {
		h.full = true
	}
}

// list returns the entries oldest first
func (h *history) list() []BatchPerformanceMetrics {
	if !h.full {
		return append([]BatchPerformanceMetrics(nil), h.entries[:h.next]...)
	}
	out := make([]BatchPerformanceMetrics, 0, len(h.entries))
	out = append(out, h.entries[h.next:]...)
	return append(out, h.entries[:h.next]...)
}

// Report summarizes the retained history
type Report struct {
	Batches           int
	TotalProofs       int
	NativeProofs      int
	FallbackProofs    int
	Failures          int
	NativeShare       float64
	AvgTotalTime      time.Duration
	AvgNativeTime     time.Duration
	AvgFallbackTime   time.Duration
	AvgBridgeTime     time.Duration
	AvgCrossings      float64
	AvgSpeedupFactor  float64
	BoundaryCrossings int
}

func newReport(entries []BatchPerformanceMetrics) Report {
	var (
		r                               Report
		total, native, fallback, bridge time.Duration
		speedup                         float64
	)
	r.Batches = len(entries)
	if r.Batches == 0 {
		return r
	}
	for _, m := range entries {
		r.NativeProofs += m.NativeProofs
		r.FallbackProofs += m.FallbackProofs
		r.Failures += m.Failures
		r.BoundaryCrossings += m.BoundaryCrossings
		total += m.TotalTime
		native += m.NativeTime
		fallback += m.FallbackTime
		bridge += m.BridgeTime
		speedup += m.SpeedupFactor
	}
	n := time.Duration(r.Batches)
	r.TotalProofs = r.NativeProofs + r.FallbackProofs
	if r.TotalProofs > 0 {
		r.NativeShare = float64(r.NativeProofs) / float64(r.TotalProofs)
	}
	r.AvgTotalTime = total / n
	r.AvgNativeTime = native / n
	r.AvgFallbackTime = fallback / n
	r.AvgBridgeTime = bridge / n
	r.AvgCrossings = float64(r.BoundaryCrossings) / float64(r.Batches)
	r.AvgSpeedupFactor = speedup / float64(r.Batches)
	return r
}
