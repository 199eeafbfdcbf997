// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package accel

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luxfi/log"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/confidential/curve"
	"github.com/luxfi/confidential/pedersen"
	"github.com/luxfi/confidential/rangeproof"
)

const (
	// requestLen is amount u64 ‖ commitment ‖ blinding
	requestLen = 8 + pedersen.CommitmentLen + curve.ScalarSize

	// resultLen is status ‖ proof
	resultLen = 1 + rangeproof.ProofLen

	// proverScratch approximates the working memory of one proof in flight
	proverScratch = 64 << 10
)

// result status codes written by the native side
const (
	statusOK byte = iota
	statusInvalidCommitment
	statusMalformedInput
	statusProverFailure
)

// NativeConfig configures a Native accelerator
type NativeConfig struct {
	// Workers bounds concurrent proofs. Zero uses GOMAXPROCS.
	Workers int

	// MemoryLimit bounds the buffers and scratch of one call, in bytes.
	// Zero disables the check.
	MemoryLimit uint64
}

// Native generates proofs on a bounded worker pool behind a flat-buffer
// boundary: requests are packed into one input buffer, proven, and written
// into one output buffer.
type Native struct {
	log     log.Logger
	workers int
	limit   uint64

	initOnce    sync.Once
	initialized atomic.Bool

	lock             sync.Mutex
	batches          uint64
	proofs           uint64
	allocations      uint64
	lastBatchSize    int
	lastComputeTime  time.Duration
	totalComputeTime time.Duration
}

var _ Accelerator = (*Native)(nil)

// NewNative returns an uninitialized Native accelerator
func NewNative(config NativeConfig, logger log.Logger) *Native {
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Native{
		log:     logger,
		workers: workers,
		limit:   config.MemoryLimit,
	}
}

// Initialize warms the generator tables
func (n *Native) Initialize(ctx context.Context) bool {
	n.initOnce.Do(func() {
		if ctx.Err() != nil {
			return
		}
		curve.VectorGenerators(rangeproof.Bits)
		n.initialized.Store(true)
		n.log.Info("native accelerator initialized",
			log.Int("workers", n.workers),
		)
	})
	return n.initialized.Load()
}

func (n *Native) IsAvailable() bool {
	return n.initialized.Load()
}

func (n *Native) PerformanceInfo() PerformanceInfo {
	n.lock.Lock()
	defer n.lock.Unlock()

	info := PerformanceInfo{
		Available:        n.initialized.Load(),
		Workers:          n.workers,
		MemoryLimit:      n.limit,
		BatchesProcessed: n.batches,
		ProofsGenerated:  n.proofs,
		Allocations:      n.allocations,
		LastBatchSize:    n.lastBatchSize,
		LastComputeTime:  n.lastComputeTime,
	}
	if n.proofs > 0 {
		info.AvgProofTime = n.totalComputeTime / time.Duration(n.proofs)
	}
	return info
}

// memoryNeeded is the peak footprint of a call proving count requests
func (n *Native) memoryNeeded(count int) uint64 {
	inFlight := min(count, n.workers)
	return uint64(count)*(requestLen+resultLen) + uint64(inFlight)*proverScratch
}

func (n *Native) BatchGenerateRangeProofs(ctx context.Context, requests []RangeRequest) ([]RangeResult, error) {
	if !n.initialized.Load() {
		return nil, ErrNotInitialized
	}
	if len(requests) == 0 {
		return nil, nil
	}
	if need := n.memoryNeeded(len(requests)); n.limit > 0 && need > n.limit {
		return nil, fmt.Errorf("%w: batch of %d needs %d bytes, limit %d", ErrMemoryLimit, len(requests), need, n.limit)
	}

	input := packRequests(requests)
	output, computeTime, err := n.prove(ctx, input, len(requests))
	if err != nil {
		return nil, err
	}
	results, err := unpackResults(output, len(requests))
	if err != nil {
		return nil, err
	}

	n.lock.Lock()
	n.batches++
	n.proofs += uint64(len(requests))
	n.allocations += 2
	n.lastBatchSize = len(requests)
	n.lastComputeTime = computeTime
	n.totalComputeTime += computeTime
	n.lock.Unlock()

	n.log.Debug("native batch complete",
		log.Int("size", len(requests)),
		log.Stringer("compute", computeTime),
	)
	return results, nil
}

func packRequests(requests []RangeRequest) []byte {
	buf := make([]byte, 0, len(requests)*requestLen)
	for _, r := range requests {
		buf = binary.LittleEndian.AppendUint64(buf, r.Amount)
		buf = append(buf, r.Commitment[:]...)
		blinding := r.Opening.Bytes()
		buf = append(buf, blinding[:]...)
	}
	return buf
}

// prove is the native side of the boundary. It reads only input and writes
// only the returned buffer.
func (n *Native) prove(ctx context.Context, input []byte, count int) ([]byte, time.Duration, error) {
	if len(input) != count*requestLen {
		return nil, 0, fmt.Errorf("%w: input of %d bytes for %d requests", ErrCorruptOutput, len(input), count)
	}
	output := make([]byte, count*resultLen)

	start := time.Now()
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(n.workers)
	for i := 0; i < count; i++ {
		in := input[i*requestLen : (i+1)*requestLen]
		out := output[i*resultLen : (i+1)*resultLen]
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			proveOne(in, out)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, 0, err
	}
	return output, time.Since(start), nil
}

func proveOne(in, out []byte) {
	amount := binary.LittleEndian.Uint64(in[:8])
	var commitment pedersen.Commitment
	copy(commitment[:], in[8:8+pedersen.CommitmentLen])
	opening, err := pedersen.ParseOpening(in[8+pedersen.CommitmentLen:])
	if err != nil {
		out[0] = statusMalformedInput
		return
	}
	proof, err := rangeproof.Generate(amount, commitment, opening)
	switch {
	case errors.Is(err, rangeproof.ErrInvalidCommitment):
		out[0] = statusInvalidCommitment
	case err != nil:
		out[0] = statusProverFailure
	default:
		out[0] = statusOK
		copy(out[1:], proof[:])
	}
}

func unpackResults(output []byte, count int) ([]RangeResult, error) {
	if len(output) != count*resultLen {
		return nil, fmt.Errorf("%w: %d bytes for %d results", ErrCorruptOutput, len(output), count)
	}
	results := make([]RangeResult, count)
	for i := range results {
		entry := output[i*resultLen : (i+1)*resultLen]
		switch entry[0] {
		case statusOK:
			copy(results[i].Proof[:], entry[1:])
		case statusInvalidCommitment:
			results[i].Err = rangeproof.ErrInvalidCommitment
		case statusMalformedInput:
			results[i].Err = fmt.Errorf("%w: request %d", curve.ErrInvalidScalar, i)
		case statusProverFailure:
			results[i].Err = curve.ErrRandomnessUnavailable
		default:
			return nil, fmt.Errorf("%w: status %d at %d", ErrCorruptOutput, entry[0], i)
		}
	}
	return results, nil
}
