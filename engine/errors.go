// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/luxfi/ids"

	"github.com/luxfi/confidential/accel"
	"github.com/luxfi/confidential/curve"
	"github.com/luxfi/confidential/elgamal"
	"github.com/luxfi/confidential/instruction"
	"github.com/luxfi/confidential/pedersen"
	"github.com/luxfi/confidential/rangeproof"
	"github.com/luxfi/confidential/sigma"
)

var (
	ErrInvalidTransition = errors.New("invalid task state transition")
	ErrPayloadMismatch   = errors.New("payload does not match task type")
	ErrMalformedPayload  = errors.New("malformed task payload")
	ErrRetriesExhausted  = errors.New("retries exhausted")
)

// Kind groups errors by how the scheduler must react to them
type Kind uint8

const (
	// KindCryptographic covers invalid witnesses, keys and randomness failures.
	// Retrying cannot help.
	KindCryptographic Kind = iota
	// KindResourceLimit is a native-side limit such as memory
	KindResourceLimit
	// KindBridge is a failure crossing the native boundary
	KindBridge
	// KindMalformedPayload is input that cannot be proven or encoded
	KindMalformedPayload
	// KindTerminal is any failure that ends the task for good
	KindTerminal
)

var kindNames = [...]string{
	KindCryptographic:    "cryptographic",
	KindResourceLimit:    "resource_limit",
	KindBridge:           "bridge",
	KindMalformedPayload: "malformed_payload",
	KindTerminal:         "terminal",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Classify maps an error to its Kind
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrRetriesExhausted),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return KindTerminal
	case errors.Is(err, accel.ErrMemoryLimit):
		return KindResourceLimit
	case errors.Is(err, accel.ErrUnavailable),
		errors.Is(err, accel.ErrNotInitialized),
		errors.Is(err, accel.ErrCorruptOutput),
		errors.Is(err, accel.ErrBridge):
		return KindBridge
	case errors.Is(err, ErrMalformedPayload),
		errors.Is(err, ErrPayloadMismatch),
		errors.Is(err, instruction.ErrMalformedProofPayload),
		errors.Is(err, rangeproof.ErrMalformedProof),
		errors.Is(err, sigma.ErrMalformedProof):
		return KindMalformedPayload
	case errors.Is(err, rangeproof.ErrInvalidCommitment),
		errors.Is(err, pedersen.ErrInvalidCommitment),
		errors.Is(err, sigma.ErrInvalidWitness),
		errors.Is(err, elgamal.ErrInvalidKey),
		errors.Is(err, elgamal.ErrInvalidCiphertext),
		errors.Is(err, curve.ErrRandomnessUnavailable),
		errors.Is(err, curve.ErrInvalidPoint),
		errors.Is(err, curve.ErrInvalidScalar):
		return KindCryptographic
	default:
		return KindTerminal
	}
}

// boundaryError marks err as a bridge failure unless it already has a
// recoverable kind or reports cancellation. Anything the accelerator returns
// that is not a proving or payload error failed at the boundary.
func boundaryError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if Classify(err) != KindTerminal {
		return err
	}
	return fmt.Errorf("%w: %w", accel.ErrBridge, err)
}

// FailureContext is the execution path a failure happened on
type FailureContext uint8

const (
	ContextNative FailureContext = iota
	ContextFallback
	ContextBridge
)

func (c FailureContext) String() string {
	switch c {
	case ContextNative:
		return "native"
	case ContextFallback:
		return "fallback"
	case ContextBridge:
		return "bridge"
	default:
		return fmt.Sprintf("FailureContext(%d)", uint8(c))
	}
}

// Failure is the outcome of a task that produced no proof
type Failure struct {
	TaskID  ids.ID
	Type    TaskType
	Err     error
	Kind    Kind
	Context FailureContext
	// CanRetry is set when running the task again may succeed
	CanRetry bool
	// ShouldFallback is set when the retry must avoid the native path
	ShouldFallback bool
	Retries        int
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s task %s failed on %s path (%s): %v", f.Type, f.TaskID, f.Context, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// newFailure classifies err and decides whether the task may move to the
// fallback path
func newFailure(t *Task, err error, fctx FailureContext, fallbackEnabled bool) *Failure {
	kind := Classify(err)
	retryable := fctx != ContextFallback &&
		(kind == KindBridge || kind == KindResourceLimit) &&
		fallbackEnabled
	return &Failure{
		TaskID:         t.ID,
		Type:           t.Type,
		Err:            err,
		Kind:           kind,
		Context:        fctx,
		CanRetry:       retryable,
		ShouldFallback: retryable,
		Retries:        t.Retries,
	}
}
