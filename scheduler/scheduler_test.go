// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/confidential/accel"
	"github.com/luxfi/confidential/config"
	"github.com/luxfi/confidential/elgamal"
	"github.com/luxfi/confidential/engine"
	"github.com/luxfi/confidential/instruction"
	"github.com/luxfi/confidential/pedersen"
	"github.com/luxfi/confidential/rangeproof"
	"github.com/luxfi/confidential/sigma"
)

func rangePayload(t *testing.T, amount uint64) engine.RangePayload {
	t.Helper()
	c, o, err := pedersen.New(amount)
	require.NoError(t, err)
	return engine.RangePayload{Amount: amount, Commitment: c, Opening: o}
}

func validityPayload(t *testing.T, amount uint64) engine.ValidityPayload {
	t.Helper()
	kp, err := elgamal.GenerateKeypair()
	require.NoError(t, err)
	ct, o, err := elgamal.Encrypt(amount, kp.PublicKey)
	require.NoError(t, err)
	return engine.ValidityPayload{
		Amount:     amount,
		Encryption: sigma.Encryption{Ciphertext: ct, PublicKey: kp.PublicKey, Opening: o},
	}
}

// countingAccel proves in-process and counts calls
func countingAccel(calls *atomic.Int32) accel.Accelerator {
	return accel.Func(func(_ context.Context, requests []accel.RangeRequest) ([]accel.RangeResult, error) {
		calls.Add(1)
		results := make([]accel.RangeResult, len(requests))
		for i, r := range requests {
			results[i].Proof, results[i].Err = rangeproof.Generate(r.Amount, r.Commitment, r.Opening)
		}
		return results, nil
	})
}

var errBridgeDown = errors.New("bridge down")

func failingAccel(calls *atomic.Int32) accel.Accelerator {
	return accel.Func(func(context.Context, []accel.RangeRequest) ([]accel.RangeResult, error) {
		calls.Add(1)
		return nil, errors.Join(accel.ErrUnavailable, errBridgeDown)
	})
}

func largeCeilings(cfg config.Config) config.Config {
	cfg.MaxTransactionSize = 1 << 20
	cfg.MaxComputeUnits = 1 << 40
	return cfg
}

func newScheduler(t *testing.T, cfg config.Config, a accel.Accelerator) *Scheduler {
	t.Helper()
	logger := log.NewTestLogger(log.InfoLevel)
	eng := engine.New(cfg.Engine(), a, logger)
	s, err := New(cfg, eng, logger, prometheus.NewRegistry())
	require.NoError(t, err)

	// strictly increasing creation times
	clock := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}
	return s
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.MaxProofsPerBatch = 0
	logger := log.NewTestLogger(log.InfoLevel)
	_, err := New(cfg, engine.New(cfg.Engine(), nil, logger), logger, prometheus.NewRegistry())
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestBatchedRequestsCrossTwice(t *testing.T) {
	require := require.New(t)

	var calls atomic.Int32
	s := newScheduler(t, config.Default(), countingAccel(&calls))

	requests := make([]engine.RangePayload, 5)
	for i := range requests {
		requests[i] = rangePayload(t, uint64(i*1000))
	}
	taskIDs, err := s.AddBatchRangeProofTasks(requests, 0)
	require.NoError(err)
	require.Len(taskIDs, 1)

	result, err := s.ProcessBatch(context.Background())
	require.NoError(err)
	require.Empty(result.Failures)
	require.Len(result.Proofs, 1)
	require.Equal(2, result.Metrics.BoundaryCrossings)
	require.Equal(int32(1), calls.Load())

	g := result.Proofs[0]
	require.True(g.UsedNativePath)
	require.Len(g.EntryProofs, 5)

	p, err := instruction.Parse(result.Instructions[0].Data)
	require.NoError(err)
	batch, ok := p.(*instruction.BatchedRangeProof)
	require.True(ok)
	require.Len(batch.Entries, 5)
	for i, entry := range batch.Entries {
		proof, err := rangeproof.ParseProof(entry.Proof)
		require.NoError(err)
		require.Equal(requests[i].Commitment, entry.Commitment)
		require.True(rangeproof.Verify(entry.Commitment, &proof))
	}
}

func TestIndividualRangeTasksShareOneCall(t *testing.T) {
	require := require.New(t)

	var calls atomic.Int32
	s := newScheduler(t, largeCeilings(config.Default()), countingAccel(&calls))
	for i := 0; i < 5; i++ {
		_, err := s.AddTask(engine.TaskRange, rangePayload(t, uint64(i)), 0)
		require.NoError(err)
	}

	result, err := s.ProcessBatch(context.Background())
	require.NoError(err)
	require.Len(result.Proofs, 5)
	require.Len(result.Instructions, 5)
	require.Equal(5, result.Estimate.BoundaryCrossings)
	require.Equal(2, result.Metrics.BoundaryCrossings)
	require.Equal(int32(1), calls.Load())
	require.Zero(s.QueueLen())
}

func TestAddBatchRangeProofTasks(t *testing.T) {
	tests := []struct {
		name     string
		accel    accel.Accelerator
		requests int
		want     []engine.TaskType
	}{
		{
			name:     "native batches",
			accel:    countingAccel(new(atomic.Int32)),
			requests: 3,
			want:     []engine.TaskType{engine.TaskBatchRange},
		},
		{
			name:     "below threshold",
			accel:    countingAccel(new(atomic.Int32)),
			requests: 2,
			want:     []engine.TaskType{engine.TaskRange, engine.TaskRange},
		},
		{
			name:     "no accelerator",
			accel:    accel.Unavailable{},
			requests: 3,
			want:     []engine.TaskType{engine.TaskRange, engine.TaskRange, engine.TaskRange},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			s := newScheduler(t, config.Default(), tt.accel)
			requests := make([]engine.RangePayload, tt.requests)
			for i := range requests {
				requests[i] = rangePayload(t, uint64(i))
			}
			taskIDs, err := s.AddBatchRangeProofTasks(requests, 0)
			require.NoError(err)
			require.Len(taskIDs, len(tt.want))

			queued := s.Queued()
			types := make([]engine.TaskType, len(queued))
			for i, task := range queued {
				types[i] = task.Type
			}
			require.Equal(tt.want, types)
		})
	}
}

func TestAddBatchRangeProofTasksChunks(t *testing.T) {
	require := require.New(t)

	s := newScheduler(t, config.Default(), countingAccel(new(atomic.Int32)))
	entry := rangePayload(t, 1)
	requests := make([]engine.RangePayload, instruction.MaxBatchEntries+5)
	for i := range requests {
		requests[i] = entry
	}
	taskIDs, err := s.AddBatchRangeProofTasks(requests, 0)
	require.NoError(err)
	require.Len(taskIDs, 2)

	queued := s.Queued()
	require.Equal(instruction.MaxBatchEntries, queued[0].EntryCount())
	require.Equal(5, queued[1].EntryCount())

	_, err = s.AddBatchRangeProofTasks(nil, 0)
	require.ErrorIs(err, ErrNoRequests)
}

func TestSelectBatchCeilings(t *testing.T) {
	rangeCost := costs[engine.TaskRange]
	tests := []struct {
		name   string
		accel  accel.Accelerator
		modify func(*config.Config)
		want   int
	}{
		{
			name:   "compute units",
			accel:  accel.Unavailable{},
			modify: func(c *config.Config) { c.MaxComputeUnits = 2*rangeCost.computeUnits + 1 },
			want:   2,
		},
		{
			name:   "oversize head",
			accel:  accel.Unavailable{},
			modify: func(c *config.Config) { c.MaxComputeUnits = rangeCost.computeUnits / 2 },
			want:   1,
		},
		{
			name:   "transaction size",
			accel:  accel.Unavailable{},
			modify: func(c *config.Config) { c.MaxTransactionSize = config.DefaultMaxTransactionSize },
			want:   1,
		},
		{
			name:   "proof count",
			accel:  accel.Unavailable{},
			modify: func(c *config.Config) { c.MaxProofsPerBatch = 3 },
			want:   3,
		},
		{
			name:   "boundary crossings",
			accel:  countingAccel(new(atomic.Int32)),
			modify: func(c *config.Config) { c.MaxBoundaryCrossings = 2 },
			want:   2,
		},
		{
			name:   "everything fits",
			accel:  accel.Unavailable{},
			modify: func(*config.Config) {},
			want:   6,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			cfg := largeCeilings(config.Default())
			tt.modify(&cfg)
			s := newScheduler(t, cfg, tt.accel)
			payload := rangePayload(t, 7)
			for i := 0; i < 6; i++ {
				_, err := s.AddTask(engine.TaskRange, payload, 0)
				require.NoError(err)
			}

			s.lock.Lock()
			selected, total := s.selectBatch(s.engine.NativeAvailable())
			s.lock.Unlock()

			require.Len(selected, tt.want)
			require.Equal(6-tt.want, s.QueueLen())
			if tt.want > 1 {
				require.True(s.fits(total))
			}
			require.Equal(uint64(tt.want)*rangeCost.computeUnits, total.ComputeUnits)
		})
	}
}

func TestEstimateTask(t *testing.T) {
	require := require.New(t)

	entries := []engine.RangePayload{rangePayload(t, 1), rangePayload(t, 2)}
	task, err := engine.NewTask(ids.GenerateTestID(), engine.TaskBatchRange, engine.BatchRangePayload{Entries: entries}, 0, time.Now(), true)
	require.NoError(err)

	est := EstimateTask(task, true)
	require.Equal(1, est.BoundaryCrossings)
	require.Equal(costs[engine.TaskBatchRange].computeUnits+2*rangeEntryCost.computeUnits, est.ComputeUnits)

	// the estimate matches the encoded instruction
	p, err := instruction.NewBatchedRangeProof([]instruction.RangeEntry{
		{Commitment: entries[0].Commitment, Proof: make([]byte, rangeproof.ProofLen)},
		{Commitment: entries[1].Commitment, Proof: make([]byte, rangeproof.ProofLen)},
	})
	require.NoError(err)
	ix, err := instruction.NewVerifyInstruction(instruction.DefaultVerifierProgramID, p)
	require.NoError(err)
	require.Equal(ix.WireSize(), est.Bytes)

	require.Zero(EstimateTask(task, false).BoundaryCrossings)
}

func TestQueueOrder(t *testing.T) {
	require := require.New(t)

	s := newScheduler(t, config.Default(), countingAccel(new(atomic.Int32)))
	validity, err := s.AddTask(engine.TaskValidity, validityPayload(t, 3), 10)
	require.NoError(err)
	low, err := s.AddTask(engine.TaskRange, rangePayload(t, 1), 1)
	require.NoError(err)
	first, err := s.AddTask(engine.TaskRange, rangePayload(t, 2), 5)
	require.NoError(err)
	second, err := s.AddTask(engine.TaskRange, rangePayload(t, 3), 5)
	require.NoError(err)

	queued := s.Queued()
	got := make([]ids.ID, len(queued))
	for i, task := range queued {
		got[i] = task.ID
	}
	require.Equal([]ids.ID{first, second, low, validity}, got)
}

func TestCancel(t *testing.T) {
	require := require.New(t)

	s := newScheduler(t, config.Default(), accel.Unavailable{})
	id, err := s.AddTask(engine.TaskRange, rangePayload(t, 1), 0)
	require.NoError(err)
	require.Equal(1, s.QueueLen())

	require.True(s.Cancel(id))
	require.False(s.Cancel(id))
	require.Zero(s.QueueLen())

	result, err := s.ProcessBatch(context.Background())
	require.NoError(err)
	require.Empty(result.Proofs)
	require.Empty(s.History())
}

func TestProcessBatchInProgress(t *testing.T) {
	s := newScheduler(t, config.Default(), accel.Unavailable{})
	s.running.Store(true)
	_, err := s.ProcessBatch(context.Background())
	require.ErrorIs(t, err, ErrBatchInProgress)
}

func TestRetryThenSucceed(t *testing.T) {
	require := require.New(t)

	cfg := config.Default()
	cfg.MinBatchSizeForAcceleration = 1
	var calls atomic.Int32
	s := newScheduler(t, cfg, failingAccel(&calls))

	id, err := s.AddTask(engine.TaskRange, rangePayload(t, 99), 0)
	require.NoError(err)

	first, err := s.ProcessBatch(context.Background())
	require.NoError(err)
	require.Empty(first.Proofs)
	require.Empty(first.Failures)
	require.Equal([]ids.ID{id}, first.Requeued)
	require.False(s.Processing(id))

	queued := s.Queued()
	require.Len(queued, 1)
	require.Equal(1, queued[0].Retries)
	require.False(queued[0].UseNativePath)
	require.Equal(engine.StateQueued, queued[0].State)

	second, err := s.ProcessBatch(context.Background())
	require.NoError(err)
	require.Empty(second.Failures)
	require.Len(second.Proofs, 1)
	g := second.Proofs[0]
	require.Equal(id, g.TaskID)
	require.False(g.UsedNativePath)
	require.Equal(1, g.Retries)
	require.Equal(int32(1), calls.Load())

	report := s.Report()
	require.Equal(2, report.Batches)
	require.Equal(1, report.TotalProofs)
	require.Equal(1, report.FallbackProofs)
	require.Zero(report.NativeShare)
}

func TestForeignNativeErrorRequeued(t *testing.T) {
	errCrashed := errors.New("ffi: module crashed")

	tests := []struct {
		name  string
		accel accel.Func
	}{
		{
			name: "call error",
			accel: func(context.Context, []accel.RangeRequest) ([]accel.RangeResult, error) {
				return nil, errCrashed
			},
		},
		{
			name: "entry error",
			accel: func(_ context.Context, requests []accel.RangeRequest) ([]accel.RangeResult, error) {
				results := make([]accel.RangeResult, len(requests))
				for i := range results {
					results[i].Err = errCrashed
				}
				return results, nil
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			cfg := config.Default()
			cfg.MinBatchSizeForAcceleration = 1
			s := newScheduler(t, cfg, tt.accel)

			id, err := s.AddTask(engine.TaskRange, rangePayload(t, 7), 0)
			require.NoError(err)

			first, err := s.ProcessBatch(context.Background())
			require.NoError(err)
			require.Empty(first.Failures)
			require.Equal([]ids.ID{id}, first.Requeued)

			second, err := s.ProcessBatch(context.Background())
			require.NoError(err)
			require.Empty(second.Failures)
			require.Len(second.Proofs, 1)
			require.False(second.Proofs[0].UsedNativePath)
			require.Equal(1, second.Proofs[0].Retries)
		})
	}
}

func TestIndividualRangeTasksUnderDefaultCeilings(t *testing.T) {
	tests := []struct {
		name       string
		txSize     int
		wantProofs int
		wantNative bool
	}{
		{name: "default transaction size", txSize: config.DefaultMaxTransactionSize, wantProofs: 1, wantNative: false},
		{name: "room for three", txSize: 3 * 737, wantProofs: 3, wantNative: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			cfg := config.Default()
			cfg.MaxTransactionSize = tt.txSize
			cfg.MaxComputeUnits = 1 << 40
			var calls atomic.Int32
			s := newScheduler(t, cfg, countingAccel(&calls))
			for i := 0; i < 3; i++ {
				_, err := s.AddTask(engine.TaskRange, rangePayload(t, uint64(i)), 0)
				require.NoError(err)
			}

			result, err := s.ProcessBatch(context.Background())
			require.NoError(err)
			require.Len(result.Proofs, tt.wantProofs)
			for _, g := range result.Proofs {
				require.Equal(tt.wantNative, g.UsedNativePath)
			}
		})
	}
}

func TestRetriesExhausted(t *testing.T) {
	require := require.New(t)

	cfg := config.Default()
	cfg.MinBatchSizeForAcceleration = 1
	cfg.MaxRetries = 0
	s := newScheduler(t, cfg, failingAccel(new(atomic.Int32)))

	_, err := s.AddTask(engine.TaskRange, rangePayload(t, 5), 0)
	require.NoError(err)

	result, err := s.ProcessBatch(context.Background())
	require.NoError(err)
	require.Empty(result.Requeued)
	require.Len(result.Failures, 1)
	f := result.Failures[0]
	require.Equal(engine.KindTerminal, f.Kind)
	require.False(f.CanRetry)
	require.ErrorIs(f, engine.ErrRetriesExhausted)
	require.ErrorIs(f, errBridgeDown)
	require.Zero(s.QueueLen())
}

func TestFallbackDisabledIsTerminal(t *testing.T) {
	require := require.New(t)

	cfg := config.Default()
	cfg.MinBatchSizeForAcceleration = 1
	cfg.EnableFallback = false
	s := newScheduler(t, cfg, failingAccel(new(atomic.Int32)))

	_, err := s.AddTask(engine.TaskRange, rangePayload(t, 5), 0)
	require.NoError(err)

	result, err := s.ProcessBatch(context.Background())
	require.NoError(err)
	require.Empty(result.Requeued)
	require.Len(result.Failures, 1)
	require.Equal(engine.KindBridge, result.Failures[0].Kind)
	require.Equal(engine.ContextBridge, result.Failures[0].Context)
}

func TestDrain(t *testing.T) {
	require := require.New(t)

	cfg := config.Default()
	cfg.MaxProofsPerBatch = 2
	s := newScheduler(t, largeCeilings(cfg), accel.Unavailable{})
	for i := 0; i < 3; i++ {
		_, err := s.AddTask(engine.TaskValidity, validityPayload(t, uint64(i)), 0)
		require.NoError(err)
	}

	results, err := s.Drain(context.Background())
	require.NoError(err)
	require.Len(results, 2)
	require.Len(results[0].Proofs, 2)
	require.Len(results[1].Proofs, 1)
	require.Len(s.History(), 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.AddTask(engine.TaskValidity, validityPayload(t, 9), 0)
	require.NoError(err)
	_, err = s.Drain(ctx)
	require.ErrorIs(err, context.Canceled)
	require.Equal(1, s.QueueLen())
}

func TestHistoryBounded(t *testing.T) {
	require := require.New(t)

	h := newHistory(3)
	for i := 1; i <= 5; i++ {
		h.add(BatchPerformanceMetrics{Tasks: i})
	}
	got := h.list()
	require.Len(got, 3)
	require.Equal([]int{3, 4, 5}, []int{got[0].Tasks, got[1].Tasks, got[2].Tasks})

	r := newReport(got)
	require.Equal(3, r.Batches)
	require.Equal(Report{}, newReport(nil))
}

// A ciphertext of 42 decrypts under bound 100 and its commitment half
// carries a range proof that fails once a bit is flipped.
func TestEndToEnd(t *testing.T) {
	require := require.New(t)

	kp, err := elgamal.GenerateKeypair()
	require.NoError(err)
	ct, opening, err := elgamal.Encrypt(42, kp.PublicKey)
	require.NoError(err)

	amount, err := elgamal.Decrypt(ct, kp.SecretKey, 100)
	require.NoError(err)
	require.Equal(uint64(42), amount)

	commitment := pedersen.Commitment(ct.Commitment)
	blinding := pedersen.NewOpening(opening.Scalar())
	require.True(commitment.Verify(42, blinding))

	s := newScheduler(t, config.Default(), accel.Unavailable{})
	_, err = s.AddTask(engine.TaskRange, engine.RangePayload{Amount: 42, Commitment: commitment, Opening: blinding}, 0)
	require.NoError(err)
	result, err := s.ProcessBatch(context.Background())
	require.NoError(err)
	require.Len(result.Instructions, 1)

	ix := result.Instructions[0]
	require.Equal(instruction.DefaultVerifierProgramID, ix.ProgramID)
	require.Equal(byte(instruction.VerifyRangeProof), ix.Data[0])
	p, err := instruction.Parse(ix.Data)
	require.NoError(err)
	rp, ok := p.(*instruction.RangeProof)
	require.True(ok)
	require.Equal(commitment, rp.Commitment)

	proof, err := rangeproof.ParseProof(rp.Proof)
	require.NoError(err)
	require.True(rangeproof.Verify(commitment, &proof))

	proof[len(proof)-1] ^= 0x01
	require.False(rangeproof.Verify(commitment, &proof))
}

func TestMetricsRegistered(t *testing.T) {
	require := require.New(t)

	cfg := config.Default()
	logger := log.NewTestLogger(log.InfoLevel)
	reg := prometheus.NewRegistry()
	s, err := New(cfg, engine.New(cfg.Engine(), nil, logger), logger, reg)
	require.NoError(err)
	_, err = s.AddTask(engine.TaskValidity, validityPayload(t, 1), 0)
	require.NoError(err)
	_, err = s.ProcessBatch(context.Background())
	require.NoError(err)

	families, err := reg.Gather()
	require.NoError(err)
	names := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				names[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				names[mf.GetName()] += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				names[mf.GetName()] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	require.Equal(1.0, names["confidential_proofs_generated_count"])
	require.Equal(1.0, names["confidential_batch_latency_ms"])
	require.Zero(names["confidential_queue_depth"])
}
