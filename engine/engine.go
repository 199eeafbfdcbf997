// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package engine executes proof tasks on one of two paths: a batched call
// into the native accelerator, or in-process generation. Tasks the native
// path fails for boundary reasons are reported as retryable on the fallback.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/luxfi/log"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/confidential/accel"
	"github.com/luxfi/confidential/cache"
	"github.com/luxfi/confidential/elgamal"
	"github.com/luxfi/confidential/rangeproof"
	"github.com/luxfi/confidential/sigma"
)

const perfKey = "native"

// Config tunes path selection
type Config struct {
	EnableNativeAcceleration    bool
	EnableFallback              bool
	MinBatchSizeForAcceleration int
	// FallbackWorkers bounds concurrent in-process proofs. One or less
	// proves sequentially.
	FallbackWorkers int
	// PerformanceInfoTTL bounds how stale availability checks may be
	PerformanceInfoTTL time.Duration
}

// ExecutionReport aggregates the cost of one Execute call
type ExecutionReport struct {
	NativeTime        time.Duration
	FallbackTime      time.Duration
	BridgeTime        time.Duration
	BoundaryCrossings int
	NativeCalls       int
	NativeProofs      int
	FallbackProofs    int
	Allocations       uint64
	HeapDelta         int64
}

// Result holds the proofs and failures of one Execute call, each in task order
type Result struct {
	Proofs   []*GeneratedProof
	Failures []*Failure
	Report   ExecutionReport
}

// Engine runs tasks on the native or fallback path
type Engine struct {
	config Config
	accel  accel.Accelerator
	log    log.Logger
	perf   *cache.TTLCache[string, accel.PerformanceInfo]
}

// New returns an Engine. The accelerator must already be initialized.
func New(config Config, a accel.Accelerator, logger log.Logger) *Engine {
	if a == nil {
		a = accel.Unavailable{}
	}
	return &Engine{
		config: config,
		accel:  a,
		log:    logger,
		perf:   cache.NewTTLCache[string, accel.PerformanceInfo](config.PerformanceInfoTTL),
	}
}

// PerformanceInfo returns the accelerator's counters, cached for the
// configured TTL
func (e *Engine) PerformanceInfo() accel.PerformanceInfo {
	info, _ := e.perf.Get(perfKey, func(string) (accel.PerformanceInfo, error) {
		info := e.accel.PerformanceInfo()
		info.Available = info.Available && e.accel.IsAvailable()
		return info, nil
	}, false)
	return info
}

// NativeAvailable reports whether tasks may be offered to the accelerator
func (e *Engine) NativeAvailable() bool {
	return e.config.EnableNativeAcceleration && e.PerformanceInfo().Available
}

// FallbackEnabled reports whether native failures may be retried in-process
func (e *Engine) FallbackEnabled() bool {
	return e.config.EnableFallback
}

type outcome struct {
	proof   *GeneratedProof
	failure *Failure
}

// Execute runs tasks, which must be in the selected state. Accelerator
// eligible tasks share one native call; every other task is proven
// in-process.
func (e *Engine) Execute(ctx context.Context, tasks []*Task) *Result {
	var before runtime.MemStats
	runtime.ReadMemStats(&before)

	native, fallback := e.partition(tasks)
	outcomes := make(map[*Task]outcome, len(tasks))
	var report ExecutionReport

	if len(native) > 0 {
		e.executeNative(ctx, native, outcomes, &report)
	}
	if len(fallback) > 0 {
		e.executeFallback(ctx, fallback, outcomes, &report)
	}

	var after runtime.MemStats
	runtime.ReadMemStats(&after)
	report.Allocations = after.Mallocs - before.Mallocs
	report.HeapDelta = int64(after.HeapAlloc) - int64(before.HeapAlloc)

	result := &Result{Report: report}
	for _, t := range tasks {
		o := outcomes[t]
		switch {
		case o.proof != nil:
			result.Proofs = append(result.Proofs, o.proof)
		case o.failure != nil:
			result.Failures = append(result.Failures, o.failure)
		}
	}
	e.log.Debug("execution complete",
		log.Int("proofs", len(result.Proofs)),
		log.Int("failures", len(result.Failures)),
		log.Int("crossings", report.BoundaryCrossings),
		log.Stringer("native", report.NativeTime),
		log.Stringer("fallback", report.FallbackTime),
	)
	return result
}

// partition splits tasks by path. Individually scheduled range tasks only
// go native when the native sub-batch reaches the configured minimum.
func (e *Engine) partition(tasks []*Task) (native, fallback []*Task) {
	if !e.NativeAvailable() {
		return nil, tasks
	}
	entries := 0
	for _, t := range tasks {
		if t.NativeEligible() {
			native = append(native, t)
			entries += t.EntryCount()
		} else {
			fallback = append(fallback, t)
		}
	}
	if entries >= e.config.MinBatchSizeForAcceleration {
		return native, fallback
	}
	kept := native[:0]
	for _, t := range native {
		if t.Type == TaskBatchRange {
			kept = append(kept, t)
		} else {
			fallback = append(fallback, t)
		}
	}
	return kept, fallback
}

// span locates a task's requests in the flattened native batch
type span struct {
	task       *Task
	start, end int
}

func (e *Engine) executeNative(ctx context.Context, tasks []*Task, outcomes map[*Task]outcome, report *ExecutionReport) {
	var (
		requests []accel.RangeRequest
		spans    []span
	)
	for _, t := range tasks {
		if err := t.Transition(StateExecutingNative); err != nil {
			outcomes[t] = outcome{failure: newFailure(t, err, ContextNative, false)}
			continue
		}
		start := len(requests)
		switch p := t.Payload.(type) {
		case RangePayload:
			requests = append(requests, toRequest(p))
		case BatchRangePayload:
			for _, entry := range p.Entries {
				requests = append(requests, toRequest(entry))
			}
		}
		spans = append(spans, span{task: t, start: start, end: len(requests)})
	}
	if len(requests) == 0 {
		return
	}

	start := time.Now()
	results, err := e.accel.BatchGenerateRangeProofs(ctx, requests)
	wall := time.Since(start)
	report.NativeCalls++
	report.BoundaryCrossings += accel.CrossingsPerCall
	report.NativeTime += wall

	if err == nil && len(results) != len(requests) {
		err = fmt.Errorf("%w: %d results for %d requests", accel.ErrCorruptOutput, len(results), len(requests))
	}
	if err != nil {
		err = boundaryError(err)
		e.log.Warn("native batch failed",
			log.Int("requests", len(requests)),
			log.Err(err),
		)
		report.BridgeTime += wall
		for _, s := range spans {
			e.finish(s.task, outcome{failure: newFailure(s.task, err, ContextBridge, e.config.EnableFallback)}, outcomes)
		}
		return
	}

	compute := e.accel.PerformanceInfo().LastComputeTime
	bridge := max(wall-compute, 0)
	report.BridgeTime += bridge
	metrics := &NativeMetrics{
		BatchSize:         len(requests),
		ComputeTime:       compute,
		BridgeTime:        bridge,
		BoundaryCrossings: accel.CrossingsPerCall,
	}

	for _, s := range spans {
		e.finish(s.task, nativeOutcome(s, results[s.start:s.end], wall, metrics, e.config.EnableFallback), outcomes)
		if outcomes[s.task].proof != nil {
			report.NativeProofs++
		}
	}
}

func nativeOutcome(s span, results []accel.RangeResult, wall time.Duration, metrics *NativeMetrics, fallbackEnabled bool) outcome {
	proofs := make([][]byte, len(results))
	for i, r := range results {
		if r.Err != nil {
			return outcome{failure: newFailure(s.task, fmt.Errorf("entry %d: %w", i, boundaryError(r.Err)), ContextNative, fallbackEnabled)}
		}
		proofs[i] = append([]byte(nil), r.Proof[:]...)
	}

	var g *GeneratedProof
	switch p := s.task.Payload.(type) {
	case RangePayload:
		g = rangeProof(s.task, p, proofs[0])
	case BatchRangePayload:
		g = batchProof(s.task, p, proofs)
	}
	g.UsedNativePath = true
	g.GenerationTime = wall
	g.NativeMetrics = metrics
	return outcome{proof: g}
}

func toRequest(p RangePayload) accel.RangeRequest {
	return accel.RangeRequest{Amount: p.Amount, Commitment: p.Commitment, Opening: p.Opening}
}

// finish records o and moves the task to its terminal state
func (e *Engine) finish(t *Task, o outcome, outcomes map[*Task]outcome) {
	next := StateCompleted
	if o.failure != nil {
		next = StateFailed
	}
	if err := t.Transition(next); err != nil {
		o = outcome{failure: newFailure(t, err, o.context(), false)}
	}
	outcomes[t] = o
}

func (o outcome) context() FailureContext {
	if o.failure != nil {
		return o.failure.Context
	}
	if o.proof != nil && o.proof.UsedNativePath {
		return ContextNative
	}
	return ContextFallback
}

func (e *Engine) executeFallback(ctx context.Context, tasks []*Task, outcomes map[*Task]outcome, report *ExecutionReport) {
	start := time.Now()
	results := make([]outcome, len(tasks))

	var eg errgroup.Group
	eg.SetLimit(max(e.config.FallbackWorkers, 1))
	for i, t := range tasks {
		if err := t.Transition(StateExecutingFallback); err != nil {
			results[i] = outcome{failure: newFailure(t, err, ContextFallback, false)}
			continue
		}
		eg.Go(func() error {
			results[i] = proveFallback(ctx, t)
			return nil
		})
	}
	_ = eg.Wait()
	report.FallbackTime += time.Since(start)

	for i, t := range tasks {
		if t.State != StateExecutingFallback {
			outcomes[t] = results[i]
			continue
		}
		e.finish(t, results[i], outcomes)
		if results[i].proof != nil {
			report.FallbackProofs++
		}
	}
}

func proveFallback(ctx context.Context, t *Task) outcome {
	if err := ctx.Err(); err != nil {
		return outcome{failure: newFailure(t, err, ContextFallback, false)}
	}
	start := time.Now()
	g, err := generate(t)
	if err != nil {
		return outcome{failure: newFailure(t, err, ContextFallback, false)}
	}
	g.GenerationTime = time.Since(start)
	return outcome{proof: g}
}

// generate proves t in-process
func generate(t *Task) (*GeneratedProof, error) {
	switch p := t.Payload.(type) {
	case RangePayload:
		proof, err := rangeproof.Generate(p.Amount, p.Commitment, p.Opening)
		if err != nil {
			return nil, err
		}
		return rangeProof(t, p, proof.Bytes()), nil
	case BatchRangePayload:
		proofs := make([][]byte, len(p.Entries))
		for i, entry := range p.Entries {
			proof, err := rangeproof.Generate(entry.Amount, entry.Commitment, entry.Opening)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			proofs[i] = proof.Bytes()
		}
		return batchProof(t, p, proofs), nil
	case ValidityPayload:
		proof, err := sigma.ProveValidity(p.Amount, p.Encryption)
		if err != nil {
			return nil, err
		}
		return &GeneratedProof{
			TaskID:      t.ID,
			Type:        t.Type,
			ProofBytes:  proof.Bytes(),
			Ciphertexts: []elgamal.Ciphertext{p.Encryption.Ciphertext},
			SizeBytes:   sigma.ValidityProofLen,
			Retries:     t.Retries,
		}, nil
	case EqualityPayload:
		proof, err := sigma.ProveEquality(p.Amount, p.Source, p.Destination)
		if err != nil {
			return nil, err
		}
		return &GeneratedProof{
			TaskID:      t.ID,
			Type:        t.Type,
			ProofBytes:  proof.Bytes(),
			Ciphertexts: []elgamal.Ciphertext{p.Source.Ciphertext, p.Destination.Ciphertext},
			SizeBytes:   sigma.EqualityProofLen,
			Retries:     t.Retries,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrMalformedPayload, t.Payload)
	}
}
