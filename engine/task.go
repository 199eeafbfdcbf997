// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"fmt"
	"time"

	"github.com/luxfi/ids"

	"github.com/luxfi/confidential/instruction"
	"github.com/luxfi/confidential/pedersen"
	"github.com/luxfi/confidential/sigma"
)

// TaskType is the kind of proof a task produces
type TaskType uint8

const (
	TaskRange TaskType = iota
	TaskValidity
	TaskEquality
	TaskBatchRange
)

var taskTypeNames = [...]string{
	TaskRange:      "range",
	TaskValidity:   "validity",
	TaskEquality:   "equality",
	TaskBatchRange: "batch_range",
}

func (t TaskType) String() string {
	if int(t) < len(taskTypeNames) {
		return taskTypeNames[t]
	}
	return fmt.Sprintf("TaskType(%d)", uint8(t))
}

// ParseTaskType is the inverse of TaskType.String
func ParseTaskType(s string) (TaskType, error) {
	for i, name := range taskTypeNames {
		if name == s {
			return TaskType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown task type %q", ErrMalformedPayload, s)
}

// AcceleratorEligible reports whether the native module can prove this type
func (t TaskType) AcceleratorEligible() bool {
	return t == TaskRange || t == TaskBatchRange
}

// Payload is the input of one task. Implementations are closed to this package.
type Payload interface {
	Type() TaskType
	validate() error
}

// RangePayload proves Commitment opens to Amount in [0, 2^64)
type RangePayload struct {
	Amount     uint64
	Commitment pedersen.Commitment
	Opening    pedersen.Opening
}

func (RangePayload) Type() TaskType { return TaskRange }

func (p RangePayload) validate() error {
	if _, err := p.Commitment.Point(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// ValidityPayload proves Encryption is a well-formed encryption of Amount
type ValidityPayload struct {
	Amount     uint64
	Encryption sigma.Encryption
}

func (ValidityPayload) Type() TaskType { return TaskValidity }

func (p ValidityPayload) validate() error {
	return validateEncryption(p.Encryption)
}

// EqualityPayload proves Source and Destination encrypt the same Amount
type EqualityPayload struct {
	Amount      uint64
	Source      sigma.Encryption
	Destination sigma.Encryption
}

func (EqualityPayload) Type() TaskType { return TaskEquality }

func (p EqualityPayload) validate() error {
	if err := validateEncryption(p.Source); err != nil {
		return err
	}
	return validateEncryption(p.Destination)
}

// BatchRangePayload proves every entry in one accelerated call
type BatchRangePayload struct {
	Entries []RangePayload
}

func (BatchRangePayload) Type() TaskType { return TaskBatchRange }

func (p BatchRangePayload) validate() error {
	if n := len(p.Entries); n == 0 || n > instruction.MaxBatchEntries {
		return fmt.Errorf("%w: batch of %d entries, want 1..%d", ErrMalformedPayload, n, instruction.MaxBatchEntries)
	}
	for _, e := range p.Entries {
		if err := e.validate(); err != nil {
			return err
		}
	}
	return nil
}

func validateEncryption(e sigma.Encryption) error {
	if _, _, err := e.Ciphertext.Points(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if _, err := e.PublicKey.Point(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// State is a task's position in its lifecycle
type State uint8

const (
	StateQueued State = iota
	StateSelected
	StateExecutingNative
	StateExecutingFallback
	StateCompleted
	StateFailed
)

var stateNames = [...]string{
	StateQueued:            "queued",
	StateSelected:          "selected",
	StateExecutingNative:   "executing_native",
	StateExecutingFallback: "executing_fallback",
	StateCompleted:         "completed",
	StateFailed:            "failed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// transitions lists the legal next states. A failed task may be queued
// again for retry.
var transitions = map[State][]State{
	StateQueued:            {StateSelected},
	StateSelected:          {StateExecutingNative, StateExecutingFallback},
	StateExecutingNative:   {StateCompleted, StateFailed},
	StateExecutingFallback: {StateCompleted, StateFailed},
	StateFailed:            {StateQueued},
}

// Task is one unit of proof work
type Task struct {
	ID            ids.ID
	Type          TaskType
	Priority      int
	CreatedAt     time.Time
	Payload       Payload
	Retries       int
	UseNativePath bool
	State         State
}

// NewTask validates payload and returns a queued task
func NewTask(id ids.ID, taskType TaskType, payload Payload, priority int, createdAt time.Time, useNative bool) (*Task, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrMalformedPayload)
	}
	if payload.Type() != taskType {
		return nil, fmt.Errorf("%w: %s payload for %s task", ErrPayloadMismatch, payload.Type(), taskType)
	}
	if err := payload.validate(); err != nil {
		return nil, err
	}
	return &Task{
		ID:            id,
		Type:          taskType,
		Priority:      priority,
		CreatedAt:     createdAt,
		Payload:       payload,
		UseNativePath: useNative && taskType.AcceleratorEligible(),
		State:         StateQueued,
	}, nil
}

// Transition moves the task to next, rejecting moves the lifecycle forbids
func (t *Task) Transition(next State) error {
	for _, allowed := range transitions[t.State] {
		if allowed == next {
			t.State = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s for task %s", ErrInvalidTransition, t.State, next, t.ID)
}

// NativeEligible reports whether the task should be offered to the accelerator
func (t *Task) NativeEligible() bool {
	return t.UseNativePath && t.Type.AcceleratorEligible()
}

// EntryCount is the number of range proofs the task produces
func (t *Task) EntryCount() int {
	if p, ok := t.Payload.(BatchRangePayload); ok {
		return len(p.Entries)
	}
	return 1
}
