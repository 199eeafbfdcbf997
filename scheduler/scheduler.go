// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package scheduler queues proof tasks and processes them in batches that
// fit one ledger transaction, re-queueing native failures for the fallback
// path.
package scheduler

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/confidential/config"
	"github.com/luxfi/confidential/engine"
	"github.com/luxfi/confidential/instruction"
)

var (
	ErrBatchInProgress = errors.New("batch already in progress")
	ErrNoRequests      = errors.New("no range proof requests")
)

// BatchResult is the outcome of one ProcessBatch call. Instructions[i]
// carries Proofs[i].
type BatchResult struct {
	Proofs       []*engine.GeneratedProof
	Instructions []instruction.Instruction
	// Failures holds terminal failures only
	Failures []*engine.Failure
	Requeued []ids.ID
	Estimate Estimate
	Metrics  BatchPerformanceMetrics
}

// Scheduler owns a proof queue. Tasks leave the queue when selected and
// return only when re-queued for retry.
type Scheduler struct {
	config    config.Config
	engine    *engine.Engine
	programID instruction.Address
	log       log.Logger
	metrics   *schedulerMetrics
	now       func() time.Time

	running atomic.Bool

	lock       sync.Mutex
	counter    uint64
	queue      []*engine.Task
	processing set.Set[ids.ID]
	history    *history
	// fallback baseline for SpeedupFactor
	fallbackTime   time.Duration
	fallbackProofs int
}

// New returns a Scheduler executing on eng
func New(cfg config.Config, eng *engine.Engine, logger log.Logger, registerer prometheus.Registerer) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	programID, err := cfg.ProgramID()
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		config:     cfg,
		engine:     eng,
		programID:  programID,
		log:        logger,
		metrics:    newSchedulerMetrics(registerer),
		now:        time.Now,
		processing: set.NewSet[ids.ID](cfg.MaxProofsPerBatch),
		history:    newHistory(cfg.MetricsHistorySize),
	}, nil
}

// ProgramID is the verifier program instructions are addressed to
func (s *Scheduler) ProgramID() instruction.Address {
	return s.programID
}

// AddTask queues one task and returns its id
func (s *Scheduler) AddTask(taskType engine.TaskType, payload engine.Payload, priority int) (ids.ID, error) {
	native := s.engine.NativeAvailable()

	s.lock.Lock()
	defer s.lock.Unlock()

	t, err := s.newTask(taskType, payload, priority, native)
	if err != nil {
		return ids.Empty, err
	}
	s.enqueue(t)
	return t.ID, nil
}

// AddBatchRangeProofTasks queues range proofs for requests. When the
// accelerator is usable and there are enough requests they are grouped into
// batch_range tasks of at most MaxBatchEntries; otherwise each request
// becomes its own range task.
func (s *Scheduler) AddBatchRangeProofTasks(requests []engine.RangePayload, priority int) ([]ids.ID, error) {
	if len(requests) == 0 {
		return nil, ErrNoRequests
	}
	native := s.engine.NativeAvailable()

	s.lock.Lock()
	defer s.lock.Unlock()

	var tasks []*engine.Task
	if native && len(requests) >= s.config.MinBatchSizeForAcceleration {
		for chunk := range slices.Chunk(requests, instruction.MaxBatchEntries) {
			payload := engine.BatchRangePayload{Entries: slices.Clone(chunk)}
			t, err := s.newTask(engine.TaskBatchRange, payload, priority, native)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
	} else {
		for _, r := range requests {
			t, err := s.newTask(engine.TaskRange, r, priority, native)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
	}

	taskIDs := make([]ids.ID, len(tasks))
	for i, t := range tasks {
		s.enqueue(t)
		taskIDs[i] = t.ID
	}
	return taskIDs, nil
}

// newTask assigns a fresh id. Must hold s.lock.
func (s *Scheduler) newTask(taskType engine.TaskType, payload engine.Payload, priority int, native bool) (*engine.Task, error) {
	createdAt := s.now()
	s.counter++
	var buf [17]byte
	binary.LittleEndian.PutUint64(buf[:8], s.counter)
	buf[8] = byte(taskType)
	binary.LittleEndian.PutUint64(buf[9:], uint64(createdAt.UnixNano()))
	return engine.NewTask(ids.ID(sha256.Sum256(buf[:])), taskType, payload, priority, createdAt, native)
}

// enqueue inserts t keeping the queue sorted. Must hold s.lock.
func (s *Scheduler) enqueue(t *engine.Task) {
	i, _ := slices.BinarySearchFunc(s.queue, t, func(queued, t *engine.Task) int {
		// ties go after existing tasks
		if c := compareTasks(queued, t); c != 0 {
			return c
		}
		return -1
	})
	s.queue = slices.Insert(s.queue, i, t)
	s.metrics.queueDepth.Set(float64(len(s.queue)))
}

// compareTasks orders native-eligible tasks first, then by descending
// priority, then by ascending creation time
func compareTasks(a, b *engine.Task) int {
	if a.NativeEligible() != b.NativeEligible() {
		if a.NativeEligible() {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
		return c
	}
	return a.CreatedAt.Compare(b.CreatedAt)
}

// Cancel removes a queued task. Tasks already selected run to completion.
func (s *Scheduler) Cancel(id ids.ID) bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	i := slices.IndexFunc(s.queue, func(t *engine.Task) bool { return t.ID == id })
	if i < 0 {
		return false
	}
	s.queue = slices.Delete(s.queue, i, i+1)
	s.metrics.queueDepth.Set(float64(len(s.queue)))
	return true
}

// QueueLen is the number of queued tasks
func (s *Scheduler) QueueLen() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.queue)
}

// Processing reports whether id is in the batch being executed
func (s *Scheduler) Processing(id ids.ID) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.processing.Contains(id)
}

// Queued returns a snapshot of the queue in processing order
func (s *Scheduler) Queued() []engine.Task {
	s.lock.Lock()
	defer s.lock.Unlock()
	out := make([]engine.Task, len(s.queue))
	for i, t := range s.queue {
		out[i] = *t
	}
	return out
}

// History returns the retained batch metrics, oldest first
func (s *Scheduler) History() []BatchPerformanceMetrics {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.history.list()
}

// Report summarizes the retained batch metrics
func (s *Scheduler) Report() Report {
	return newReport(s.History())
}

// selectBatch takes the longest queue prefix that fits every ceiling. The
// head task is always taken. Must hold s.lock.
func (s *Scheduler) selectBatch(native bool) ([]*engine.Task, Estimate) {
	var (
		total Estimate
		n     int
	)
	for _, t := range s.queue {
		if n == s.config.MaxProofsPerBatch {
			break
		}
		next := total.add(EstimateTask(t, native))
		if n > 0 && !s.fits(next) {
			break
		}
		total = next
		n++
	}
	selected := slices.Clone(s.queue[:n])
	s.queue = slices.Delete(s.queue, 0, n)
	return selected, total
}

func (s *Scheduler) fits(e Estimate) bool {
	return e.Bytes <= s.config.MaxTransactionSize &&
		e.ComputeUnits <= s.config.MaxComputeUnits &&
		e.BoundaryCrossings <= s.config.MaxBoundaryCrossings
}

// ProcessBatch selects and executes one batch. An empty queue yields an
// empty result. Concurrent calls fail with ErrBatchInProgress.
func (s *Scheduler) ProcessBatch(ctx context.Context) (*BatchResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrBatchInProgress
	}
	defer s.running.Store(false)

	native := s.engine.NativeAvailable()

	s.lock.Lock()
	selected, estimate := s.selectBatch(native)
	for _, t := range selected {
		// queued tasks are always selectable
		_ = t.Transition(engine.StateSelected)
		s.processing.Add(t.ID)
	}
	s.metrics.queueDepth.Set(float64(len(s.queue)))
	s.lock.Unlock()

	result := &BatchResult{Estimate: estimate}
	if len(selected) == 0 {
		return result, nil
	}

	start := s.now()
	executed := s.engine.Execute(ctx, selected)
	elapsed := s.now().Sub(start)

	byID := make(map[ids.ID]*engine.Task, len(selected))
	for _, t := range selected {
		byID[t.ID] = t
	}

	for _, g := range executed.Proofs {
		ix, err := s.instructionFor(g)
		if err != nil {
			t := byID[g.TaskID]
			result.Failures = append(result.Failures, &engine.Failure{
				TaskID:  g.TaskID,
				Type:    g.Type,
				Err:     err,
				Kind:    engine.Classify(err),
				Context: failureContext(g),
				Retries: t.Retries,
			})
			continue
		}
		result.Proofs = append(result.Proofs, g)
		result.Instructions = append(result.Instructions, ix)
	}

	s.lock.Lock()
	for _, t := range selected {
		s.processing.Remove(t.ID)
	}
	for _, f := range executed.Failures {
		t := byID[f.TaskID]
		if !f.ShouldFallback {
			result.Failures = append(result.Failures, f)
			continue
		}
		if t.Retries+1 > s.config.MaxRetries {
			result.Failures = append(result.Failures, exhausted(f))
			continue
		}
		if err := t.Transition(engine.StateQueued); err != nil {
			result.Failures = append(result.Failures, exhausted(f))
			continue
		}
		t.Retries++
		t.UseNativePath = false
		s.enqueue(t)
		result.Requeued = append(result.Requeued, t.ID)
	}

	report := executed.Report
	result.Metrics = BatchPerformanceMetrics{
		TotalTime:         elapsed,
		NativeTime:        report.NativeTime,
		FallbackTime:      report.FallbackTime,
		BridgeTime:        report.BridgeTime,
		BoundaryCrossings: report.BoundaryCrossings,
		Tasks:             len(selected),
		NativeProofs:      report.NativeProofs,
		FallbackProofs:    report.FallbackProofs,
		Failures:          len(result.Failures),
		Requeued:          len(result.Requeued),
		Allocations:       report.Allocations,
		HeapDelta:         report.HeapDelta,
		SpeedupFactor:     s.speedup(report, elapsed),
	}
	s.history.add(result.Metrics)
	s.lock.Unlock()

	s.record(result)
	s.log.Debug("processed batch",
		log.Int("tasks", len(selected)),
		log.Int("proofs", len(result.Proofs)),
		log.Int("failures", len(result.Failures)),
		log.Int("requeued", len(result.Requeued)),
		log.Int("crossings", report.BoundaryCrossings),
		log.Stringer("elapsed", elapsed),
	)
	return result, nil
}

func (s *Scheduler) instructionFor(g *engine.GeneratedProof) (instruction.Instruction, error) {
	p, err := g.Payload()
	if err != nil {
		return instruction.Instruction{}, err
	}
	return instruction.NewVerifyInstruction(s.programID, p)
}

func failureContext(g *engine.GeneratedProof) engine.FailureContext {
	if g.UsedNativePath {
		return engine.ContextNative
	}
	return engine.ContextFallback
}

func exhausted(f *engine.Failure) *engine.Failure {
	return &engine.Failure{
		TaskID:  f.TaskID,
		Type:    f.Type,
		Err:     fmt.Errorf("%w after %d retries: %w", engine.ErrRetriesExhausted, f.Retries, f.Err),
		Kind:    engine.KindTerminal,
		Context: f.Context,
		Retries: f.Retries,
	}
}

// speedup estimates how much faster the batch ran than the fallback path
// alone would have. Must hold s.lock.
func (s *Scheduler) speedup(report engine.ExecutionReport, elapsed time.Duration) float64 {
	s.fallbackTime += report.FallbackTime
	s.fallbackProofs += report.FallbackProofs
	proofs := report.NativeProofs + report.FallbackProofs
	if s.fallbackProofs == 0 || proofs == 0 || elapsed <= 0 {
		return 1
	}
	perProof := float64(s.fallbackTime) / float64(s.fallbackProofs)
	return perProof * float64(proofs) / float64(elapsed)
}

func (s *Scheduler) record(result *BatchResult) {
	for _, g := range result.Proofs {
		path := pathFallback
		if g.UsedNativePath {
			path = pathNative
		}
		s.metrics.proofsGenerated.WithLabelValues(path, g.Type.String()).Inc()
	}
	for _, f := range result.Failures {
		s.metrics.proofFailures.WithLabelValues(f.Context.String(), f.Kind.String()).Inc()
	}
	s.metrics.retries.Add(float64(len(result.Requeued)))
	s.metrics.boundaryCrossings.Add(float64(result.Metrics.BoundaryCrossings))
	s.metrics.batchLatencyMS.Observe(float64(result.Metrics.TotalTime.Milliseconds()))
}

// Drain processes batches until the queue is empty or ctx is done
func (s *Scheduler) Drain(ctx context.Context) ([]*BatchResult, error) {
	var results []*BatchResult
	for s.QueueLen() > 0 {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result, err := s.ProcessBatch(ctx)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}
