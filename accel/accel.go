// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package accel defines the boundary to an accelerated range-proof module.
// Every call crosses the boundary twice: once with the packed requests and
// once with the packed results.
package accel

import (
	"context"
	"errors"
	"time"

	"github.com/luxfi/confidential/pedersen"
	"github.com/luxfi/confidential/rangeproof"
)

// CrossingsPerCall is the number of boundary crossings of one batch call
const CrossingsPerCall = 2

var (
	ErrUnavailable    = errors.New("native accelerator unavailable")
	ErrNotInitialized = errors.New("native accelerator not initialized")
	ErrMemoryLimit    = errors.New("native memory limit exceeded")
	ErrCorruptOutput  = errors.New("native accelerator returned corrupt output")
	ErrBridge         = errors.New("native boundary call failed")
)

// RangeRequest asks for a proof that Commitment opens to Amount
type RangeRequest struct {
	Amount     uint64
	Commitment pedersen.Commitment
	Opening    pedersen.Opening
}

// RangeResult is the outcome of one request. Err is set when this request
// alone failed.
type RangeResult struct {
	Proof rangeproof.Proof
	Err   error
}

// PerformanceInfo describes an accelerator and its most recent work
type PerformanceInfo struct {
	Available        bool
	Workers          int
	MemoryLimit      uint64
	BatchesProcessed uint64
	ProofsGenerated  uint64
	Allocations      uint64
	LastBatchSize    int
	// LastComputeTime is the time spent generating proofs inside the last
	// call, excluding packing and unpacking
	LastComputeTime time.Duration
	AvgProofTime    time.Duration
}

// Accelerator generates range proofs outside the caller's execution path
type Accelerator interface {
	// Initialize prepares the module and reports whether it is usable
	Initialize(ctx context.Context) bool

	// IsAvailable reports whether Initialize succeeded
	IsAvailable() bool

	// PerformanceInfo returns a snapshot of the accelerator's counters
	PerformanceInfo() PerformanceInfo

	// BatchGenerateRangeProofs proves every request in one call. A non-nil
	// error means the whole call failed at the boundary; otherwise the
	// result slice has one entry per request, in order.
	BatchGenerateRangeProofs(ctx context.Context, requests []RangeRequest) ([]RangeResult, error)
}

// Unavailable is an Accelerator for hosts without a native module
type Unavailable struct{}

var _ Accelerator = Unavailable{}

func (Unavailable) Initialize(context.Context) bool { return false }
func (Unavailable) IsAvailable() bool                { return false }
func (Unavailable) PerformanceInfo() PerformanceInfo { return PerformanceInfo{} }

func (Unavailable) BatchGenerateRangeProofs(context.Context, []RangeRequest) ([]RangeResult, error) {
	return nil, ErrUnavailable
}

// Func adapts a function into an always-available Accelerator
type Func func(ctx context.Context, requests []RangeRequest) ([]RangeResult, error)

var _ Accelerator = Func(nil)

func (Func) Initialize(context.Context) bool { return true }
func (Func) IsAvailable() bool                { return true }

func (Func) PerformanceInfo() PerformanceInfo {
	return PerformanceInfo{Available: true}
}

func (f Func) BatchGenerateRangeProofs(ctx context.Context, requests []RangeRequest) ([]RangeResult, error) {
	return f(ctx, requests)
}
