// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/confidential/accel"
	"github.com/luxfi/confidential/elgamal"
	"github.com/luxfi/confidential/instruction"
	"github.com/luxfi/confidential/pedersen"
	"github.com/luxfi/confidential/rangeproof"
	"github.com/luxfi/confidential/sigma"
)

var testConfig = Config{
	EnableNativeAcceleration:    true,
	EnableFallback:              true,
	MinBatchSizeForAcceleration: 3,
	FallbackWorkers:             2,
}

func rangePayload(t *testing.T, amount uint64) RangePayload {
	t.Helper()
	c, o, err := pedersen.New(amount)
	require.NoError(t, err)
	return RangePayload{Amount: amount, Commitment: c, Opening: o}
}

func selectedTask(t *testing.T, taskType TaskType, p Payload, useNative bool) *Task {
	t.Helper()
	task, err := NewTask(ids.GenerateTestID(), taskType, p, 0, time.Now(), useNative)
	require.NoError(t, err)
	require.NoError(t, task.Transition(StateSelected))
	return task
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

func newEngine(config Config, a accel.Accelerator) *Engine {
	return New(config, a, log.NewTestLogger(log.InfoLevel))
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{from: StateQueued, to: StateSelected, ok: true},
		{from: StateQueued, to: StateExecutingNative},
		{from: StateSelected, to: StateExecutingNative, ok: true},
		{from: StateSelected, to: StateExecutingFallback, ok: true},
		{from: StateSelected, to: StateCompleted},
		{from: StateExecutingNative, to: StateFailed, ok: true},
		{from: StateExecutingFallback, to: StateCompleted, ok: true},
		{from: StateCompleted, to: StateQueued},
		{from: StateFailed, to: StateQueued, ok: true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			task := &Task{State: tt.from}
			err := task.Transition(tt.to)
			if tt.ok {
				require.NoError(t, err)
				require.Equal(t, tt.to, task.State)
				return
			}
			require.ErrorIs(t, err, ErrInvalidTransition)
			require.Equal(t, tt.from, task.State)
		})
	}
}

func TestNewTaskValidation(t *testing.T) {
	require := require.New(t)

	p := rangePayload(t, 1)
	_, err := NewTask(ids.GenerateTestID(), TaskValidity, p, 0, time.Now(), true)
	require.ErrorIs(err, ErrPayloadMismatch)

	_, err = NewTask(ids.GenerateTestID(), TaskBatchRange, BatchRangePayload{}, 0, time.Now(), true)
	require.ErrorIs(err, ErrMalformedPayload)

	kp, err := elgamal.GenerateKeypair()
	require.NoError(err)
	ct, o, err := elgamal.Encrypt(3, kp.PublicKey)
	require.NoError(err)
	task, err := NewTask(ids.GenerateTestID(), TaskValidity, ValidityPayload{
		Amount:     3,
		Encryption: sigma.Encryption{Ciphertext: ct, PublicKey: kp.PublicKey, Opening: o},
	}, 0, time.Now(), true)
	require.NoError(err)
	require.False(task.UseNativePath)
	require.Equal(StateQueued, task.State)
}

func TestParseTaskType(t *testing.T) {
	for _, tt := range []TaskType{TaskRange, TaskValidity, TaskEquality, TaskBatchRange} {
		got, err := ParseTaskType(tt.String())
		require.NoError(t, err)
		require.Equal(t, tt, got)
	}
	_, err := ParseTaskType("transfer")
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{err: rangeproof.ErrInvalidCommitment, want: KindCryptographic},
		{err: sigma.ErrInvalidWitness, want: KindCryptographic},
		{err: elgamal.ErrRandomnessUnavailable, want: KindCryptographic},
		{err: fmt.Errorf("wrapped: %w", accel.ErrMemoryLimit), want: KindResourceLimit},
		{err: accel.ErrNotInitialized, want: KindBridge},
		{err: accel.ErrCorruptOutput, want: KindBridge},
		{err: fmt.Errorf("%w: ffi: module crashed", accel.ErrBridge), want: KindBridge},
		{err: instruction.ErrMalformedProofPayload, want: KindMalformedPayload},
		{err: ErrPayloadMismatch, want: KindMalformedPayload},
		{err: context.Canceled, want: KindTerminal},
		{err: errors.New("unknown"), want: KindTerminal},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
}

func TestExecuteNativeBatchOneCall(t *testing.T) {
	require := require.New(t)

	var calls atomic.Int32
	e := newEngine(testConfig, countingAccel(&calls))

	tasks := make([]*Task, 5)
	for i := range tasks {
		tasks[i] = selectedTask(t, TaskRange, rangePayload(t, uint64(i)), true)
	}
	res := e.Execute(context.Background(), tasks)
	require.Empty(res.Failures)
	require.Len(res.Proofs, 5)
	require.Equal(int32(1), calls.Load())
	require.Equal(2, res.Report.BoundaryCrossings)
	require.Equal(5, res.Report.NativeProofs)

	for i, p := range res.Proofs {
		require.Equal(tasks[i].ID, p.TaskID)
		require.True(p.UsedNativePath)
		require.Equal(5, p.NativeMetrics.BatchSize)
		require.Equal(StateCompleted, tasks[i].State)

		proof, err := rangeproof.ParseProof(p.ProofBytes)
		require.NoError(err)
		require.True(rangeproof.Verify(p.Commitments[0], &proof))
	}
}

func TestExecuteSmallBatchFallsBack(t *testing.T) {
	require := require.New(t)

	var calls atomic.Int32
	e := newEngine(testConfig, countingAccel(&calls))

	tasks := []*Task{
		selectedTask(t, TaskRange, rangePayload(t, 1), true),
		selectedTask(t, TaskRange, rangePayload(t, 2), true),
	}
	res := e.Execute(context.Background(), tasks)
	require.Len(res.Proofs, 2)
	require.Zero(calls.Load())
	require.Zero(res.Report.BoundaryCrossings)
	for _, p := range res.Proofs {
		require.False(p.UsedNativePath)
	}
}

func TestExecuteBatchRangeAlwaysNative(t *testing.T) {
	require := require.New(t)

	var calls atomic.Int32
	e := newEngine(testConfig, countingAccel(&calls))

	batch := BatchRangePayload{Entries: []RangePayload{rangePayload(t, 8), rangePayload(t, 9)}}
	task := selectedTask(t, TaskBatchRange, batch, true)
	res := e.Execute(context.Background(), []*Task{task})
	require.Len(res.Proofs, 1)
	require.Equal(int32(1), calls.Load())

	p := res.Proofs[0]
	require.True(p.UsedNativePath)
	require.Len(p.EntryProofs, 2)
	require.Len(p.ProofBytes, 2*rangeproof.ProofLen)

	payload, err := p.Payload()
	require.NoError(err)
	require.Equal(instruction.VerifyBatchedRangeProof, payload.Discriminator())
}

func TestExecuteBridgeFailure(t *testing.T) {
	errBoom := fmt.Errorf("%w: peer hung up", accel.ErrCorruptOutput)
	failing := accel.Func(func(context.Context, []accel.RangeRequest) ([]accel.RangeResult, error) {
		return nil, errBoom
	})

	tests := []struct {
		name           string
		fallback       bool
		shouldFallback bool
	}{
		{name: "fallback enabled", fallback: true, shouldFallback: true},
		{name: "fallback disabled", fallback: false, shouldFallback: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			config := testConfig
			config.EnableFallback = tt.fallback
			e := newEngine(config, failing)

			tasks := make([]*Task, 3)
			for i := range tasks {
				tasks[i] = selectedTask(t, TaskRange, rangePayload(t, 1), true)
			}
			res := e.Execute(context.Background(), tasks)
			require.Empty(res.Proofs)
			require.Len(res.Failures, 3)
			require.Equal(2, res.Report.BoundaryCrossings)
			for _, f := range res.Failures {
				require.ErrorIs(f, accel.ErrCorruptOutput)
				require.Equal(ContextBridge, f.Context)
				require.Equal(KindBridge, f.Kind)
				require.Equal(tt.shouldFallback, f.ShouldFallback)
				require.Equal(tt.shouldFallback, f.CanRetry)
			}
			for _, task := range tasks {
				require.Equal(StateFailed, task.State)
			}
		})
	}
}

func TestExecuteForeignBoundaryErrors(t *testing.T) {
	errCrashed := errors.New("ffi: module crashed")

	tests := []struct {
		name        string
		callErr     error
		entryErr    error
		wantErr     error
		wantKind    Kind
		wantContext FailureContext
		wantRetry   bool
	}{
		{
			name:        "call error",
			callErr:     errCrashed,
			wantErr:     accel.ErrBridge,
			wantKind:    KindBridge,
			wantContext: ContextBridge,
			wantRetry:   true,
		},
		{
			name:        "call memory limit",
			callErr:     fmt.Errorf("module: %w", accel.ErrMemoryLimit),
			wantErr:     accel.ErrMemoryLimit,
			wantKind:    KindResourceLimit,
			wantContext: ContextBridge,
			wantRetry:   true,
		},
		{
			name:        "call cancelled",
			callErr:     context.Canceled,
			wantErr:     context.Canceled,
			wantKind:    KindTerminal,
			wantContext: ContextBridge,
			wantRetry:   false,
		},
		{
			name:        "entry error",
			entryErr:    errors.New("native prover panic"),
			wantErr:     accel.ErrBridge,
			wantKind:    KindBridge,
			wantContext: ContextNative,
			wantRetry:   true,
		},
		{
			name:        "entry cryptographic error",
			entryErr:    rangeproof.ErrInvalidCommitment,
			wantErr:     rangeproof.ErrInvalidCommitment,
			wantKind:    KindCryptographic,
			wantContext: ContextNative,
			wantRetry:   false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			a := accel.Func(func(_ context.Context, requests []accel.RangeRequest) ([]accel.RangeResult, error) {
				if tt.callErr != nil {
					return nil, tt.callErr
				}
				results := make([]accel.RangeResult, len(requests))
				for i := range results {
					results[i].Err = tt.entryErr
				}
				return results, nil
			})
			e := newEngine(testConfig, a)

			tasks := make([]*Task, 3)
			for i := range tasks {
				tasks[i] = selectedTask(t, TaskRange, rangePayload(t, uint64(i)), true)
			}
			res := e.Execute(context.Background(), tasks)
			require.Empty(res.Proofs)
			require.Len(res.Failures, 3)
			for _, f := range res.Failures {
				require.ErrorIs(f, tt.wantErr)
				require.Equal(tt.wantKind, f.Kind)
				require.Equal(tt.wantContext, f.Context)
				require.Equal(tt.wantRetry, f.ShouldFallback)
				require.Equal(tt.wantRetry, f.CanRetry)
			}
		})
	}
}

func TestExecuteCryptographicFailureNotRetried(t *testing.T) {
	require := require.New(t)

	var calls atomic.Int32
	e := newEngine(testConfig, countingAccel(&calls))

	bad := rangePayload(t, 10)
	bad.Amount = 11
	tasks := []*Task{
		selectedTask(t, TaskRange, rangePayload(t, 1), true),
		selectedTask(t, TaskRange, bad, true),
		selectedTask(t, TaskRange, rangePayload(t, 3), true),
	}
	res := e.Execute(context.Background(), tasks)
	require.Len(res.Proofs, 2)
	require.Len(res.Failures, 1)

	f := res.Failures[0]
	require.Equal(tasks[1].ID, f.TaskID)
	require.Equal(ContextNative, f.Context)
	require.Equal(KindCryptographic, f.Kind)
	require.False(f.ShouldFallback)
	require.ErrorIs(f, rangeproof.ErrInvalidCommitment)
}

func TestExecuteSigmaTasks(t *testing.T) {
	require := require.New(t)

	e := newEngine(testConfig, accel.Unavailable{})

	sender, err := elgamal.GenerateKeypair()
	require.NoError(err)
	receiver, err := elgamal.GenerateKeypair()
	require.NoError(err)
	src, so, err := elgamal.Encrypt(50, sender.PublicKey)
	require.NoError(err)
	dst, do, err := elgamal.Encrypt(50, receiver.PublicKey)
	require.NoError(err)
	source := sigma.Encryption{Ciphertext: src, PublicKey: sender.PublicKey, Opening: so}
	destination := sigma.Encryption{Ciphertext: dst, PublicKey: receiver.PublicKey, Opening: do}

	tasks := []*Task{
		selectedTask(t, TaskValidity, ValidityPayload{Amount: 50, Encryption: source}, false),
		selectedTask(t, TaskEquality, EqualityPayload{Amount: 50, Source: source, Destination: destination}, false),
		selectedTask(t, TaskRange, rangePayload(t, 50), true),
	}
	res := e.Execute(context.Background(), tasks)
	require.Empty(res.Failures)
	require.Len(res.Proofs, 3)
	require.Zero(res.Report.BoundaryCrossings)

	validity, err := sigma.ParseValidityProof(res.Proofs[0].ProofBytes)
	require.NoError(err)
	require.True(sigma.VerifyValidity(source, &validity))

	equality, err := sigma.ParseEqualityProof(res.Proofs[1].ProofBytes)
	require.NoError(err)
	require.True(sigma.VerifyEquality(source, destination, &equality))

	for _, p := range res.Proofs {
		payload, err := p.Payload()
		require.NoError(err)
		decoded, err := instruction.Parse(payload.Bytes())
		require.NoError(err)
		require.Equal(payload, decoded)
	}
}

func TestExecuteCancelledFallback(t *testing.T) {
	e := newEngine(testConfig, accel.Unavailable{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := e.Execute(ctx, []*Task{selectedTask(t, TaskRange, rangePayload(t, 1), false)})
	require.Len(t, res.Failures, 1)
	require.Equal(t, KindTerminal, res.Failures[0].Kind)
}

func TestExecuteRejectsUnselected(t *testing.T) {
	e := newEngine(testConfig, accel.Unavailable{})
	task, err := NewTask(ids.GenerateTestID(), TaskRange, rangePayload(t, 1), 0, time.Now(), false)
	require.NoError(t, err)

	res := e.Execute(context.Background(), []*Task{task})
	require.Len(t, res.Failures, 1)
	require.ErrorIs(t, res.Failures[0], ErrInvalidTransition)
	require.Equal(t, StateQueued, task.State)
}

func TestPerformanceInfoCached(t *testing.T) {
	require := require.New(t)

	n := accel.NewNative(accel.NativeConfig{Workers: 1}, log.NewTestLogger(log.InfoLevel))
	config := testConfig
	config.PerformanceInfoTTL = time.Hour
	e := newEngine(config, n)

	// the stale snapshot predates Initialize
	require.False(e.NativeAvailable())
	require.True(n.Initialize(context.Background()))
	require.False(e.NativeAvailable())
}
