// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package confidential ties the proof pipeline together. A Session owns one
// accelerator, engine and scheduler with their configuration; nothing is
// shared between sessions.
package confidential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/confidential/accel"
	"github.com/luxfi/confidential/cache"
	"github.com/luxfi/confidential/config"
	"github.com/luxfi/confidential/elgamal"
	"github.com/luxfi/confidential/engine"
	"github.com/luxfi/confidential/instruction"
	"github.com/luxfi/confidential/pedersen"
	"github.com/luxfi/confidential/scheduler"
	"github.com/luxfi/confidential/sigma"
	"github.com/luxfi/confidential/utils"
)

const (
	// batchWaitTimeout bounds how long a Prove call waits for another
	// caller's batch to finish
	batchWaitTimeout = 10 * time.Second

	addressCacheSize = 256

	// resultCacheSize bounds uncollected outcomes. The oldest are dropped
	// first.
	resultCacheSize = 1024
)

var ErrTaskLost = errors.New("task left the queue without a result")

// Proof is a generated proof and the instruction that submits it
type Proof struct {
	*engine.GeneratedProof
	Instruction instruction.Instruction
}

type outcome struct {
	proof   *Proof
	failure *engine.Failure
}

// Option customizes a Session
type Option func(*Session)

// WithAccelerator replaces the native accelerator built from config.
// The accelerator is initialized by NewSession.
func WithAccelerator(a accel.Accelerator) Option {
	return func(s *Session) {
		s.accel = a
	}
}

// WithRegisterer registers the scheduler's metrics on r
func WithRegisterer(r prometheus.Registerer) Option {
	return func(s *Session) {
		s.registerer = r
	}
}

// Session is the explicit context of one signer's proof work
type Session struct {
	config     config.Config
	log        log.Logger
	accel      accel.Accelerator
	registerer prometheus.Registerer
	engine     *engine.Engine
	scheduler  *scheduler.Scheduler
	decryptor  *elgamal.Decryptor
	addresses  *instruction.AddressDeriver

	completed *cache.FIFOCache[ids.ID, outcome]
}

// NewSession validates cfg and initializes the accelerator. An accelerator
// that fails to initialize leaves the session on the fallback path.
func NewSession(ctx context.Context, cfg config.Config, logger log.Logger, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		config:    cfg,
		log:       logger,
		completed: cache.NewFIFOCache[ids.ID, outcome](resultCacheSize),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registerer == nil {
		s.registerer = prometheus.NewRegistry()
	}
	if s.accel == nil {
		if cfg.EnableNativeAcceleration {
			s.accel = accel.NewNative(accel.NativeConfig{
				Workers:     cfg.NativeWorkers,
				MemoryLimit: cfg.NativeMemoryLimit,
			}, logger)
		} else {
			s.accel = accel.Unavailable{}
		}
	}
	if cfg.EnableNativeAcceleration && !s.accel.Initialize(ctx) {
		logger.Warn("native accelerator unavailable, proving in-process")
	}

	addresses, err := instruction.NewAddressDeriver(addressCacheSize)
	if err != nil {
		return nil, err
	}
	s.addresses = addresses
	s.decryptor = elgamal.NewDecryptor(elgamal.DefaultTableCacheSize)
	s.engine = engine.New(cfg.Engine(), s.accel, logger)
	s.scheduler, err = scheduler.New(cfg, s.engine, logger, s.registerer)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Config returns the session configuration
func (s *Session) Config() config.Config {
	return s.config
}

// Scheduler exposes the session's queue for callers batching their own work.
// Outcomes of those tasks processed by a Prove call are held for Result until
// resultCacheSize newer outcomes displace them.
func (s *Session) Scheduler() *scheduler.Scheduler {
	return s.scheduler
}

// Engine exposes the session's execution engine
func (s *Session) Engine() *engine.Engine {
	return s.engine
}

// Decrypt recovers an amount no larger than upperBound, reusing
// baby-step tables across calls
func (s *Session) Decrypt(ct elgamal.Ciphertext, sk elgamal.SecretKey, upperBound uint64) (uint64, error) {
	return s.decryptor.Decrypt(ct, sk, upperBound)
}

// ContextAddress predicts the proof context account of authority
func (s *Session) ContextAddress(authority instruction.Address, proofType instruction.ProofType, nonce uint64) (instruction.Address, uint8, error) {
	programID := s.scheduler.ProgramID()
	return s.addresses.Derive(programID, authority, proofType, nonce)
}

// ProveRange proves commitment opens to amount in [0, 2^64)
func (s *Session) ProveRange(ctx context.Context, amount uint64, commitment pedersen.Commitment, opening pedersen.Opening) (*Proof, error) {
	payload := engine.RangePayload{Amount: amount, Commitment: commitment, Opening: opening}
	return s.prove(ctx, engine.TaskRange, payload)
}

// ProveValidity proves e is a well-formed encryption of amount
func (s *Session) ProveValidity(ctx context.Context, amount uint64, e sigma.Encryption) (*Proof, error) {
	return s.prove(ctx, engine.TaskValidity, engine.ValidityPayload{Amount: amount, Encryption: e})
}

// ProveEquality proves source and destination encrypt the same amount
func (s *Session) ProveEquality(ctx context.Context, amount uint64, source, destination sigma.Encryption) (*Proof, error) {
	payload := engine.EqualityPayload{Amount: amount, Source: source, Destination: destination}
	return s.prove(ctx, engine.TaskEquality, payload)
}

// ProveRangeBatch proves every request, batching them into as few native
// calls as the scheduler allows. Proofs are returned in task order.
func (s *Session) ProveRangeBatch(ctx context.Context, requests []engine.RangePayload) ([]*Proof, error) {
	taskIDs, err := s.scheduler.AddBatchRangeProofTasks(requests, 0)
	if err != nil {
		return nil, err
	}
	return s.await(ctx, taskIDs)
}

func (s *Session) prove(ctx context.Context, taskType engine.TaskType, payload engine.Payload) (*Proof, error) {
	id, err := s.scheduler.AddTask(taskType, payload, 0)
	if err != nil {
		return nil, err
	}
	proofs, err := s.await(ctx, []ids.ID{id})
	if err != nil {
		return nil, err
	}
	return proofs[0], nil
}

// Result returns and forgets the outcome of a task processed on behalf of
// another caller. Only the most recent outcomes are kept.
func (s *Session) Result(id ids.ID) (*Proof, bool, error) {
	o, ok := s.completed.Take(id)
	if !ok {
		return nil, false, nil
	}
	if o.failure != nil {
		return nil, true, newError(o.failure)
	}
	return o.proof, true, nil
}

// await processes batches until every task in want has an outcome. The
// first failure is returned as an *Error once all tasks are done.
func (s *Session) await(ctx context.Context, want []ids.ID) ([]*Proof, error) {
	for !s.done(want) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var result *scheduler.BatchResult
		err := utils.WithRetriesTimeout(ctx, s.log, func() error {
			r, err := s.scheduler.ProcessBatch(ctx)
			switch {
			case errors.Is(err, scheduler.ErrBatchInProgress):
				return err
			case err != nil:
				return backoff.Permanent(err)
			}
			result = r
			return nil
		}, batchWaitTimeout)
		if err != nil {
			return nil, err
		}
		if len(result.Proofs) == 0 && len(result.Failures) == 0 && len(result.Requeued) == 0 {
			// another caller drained or cancelled them
			if !s.done(want) {
				return nil, ErrTaskLost
			}
			break
		}
		s.store(result)
	}

	proofs := make([]*Proof, len(want))
	var firstErr error
	for i, id := range want {
		proof, _, err := s.Result(id)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		proofs[i] = proof
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return proofs, nil
}

func (s *Session) done(want []ids.ID) bool {
	for _, id := range want {
		if _, ok := s.completed.Peek(id); !ok {
			return false
		}
	}
	return true
}

func (s *Session) store(result *scheduler.BatchResult) {
	for i, g := range result.Proofs {
		s.completed.Put(g.TaskID, outcome{proof: &Proof{GeneratedProof: g, Instruction: result.Instructions[i]}})
	}
	for _, f := range result.Failures {
		s.completed.Put(f.TaskID, outcome{failure: f})
		s.log.Warn("proof generation failed",
			log.Stringer("taskID", f.TaskID),
			log.String("type", f.Type.String()),
			log.String("kind", f.Kind.String()),
			log.Err(f.Err),
		)
	}
}

// String summarizes the session for logs
func (s *Session) String() string {
	return fmt.Sprintf("Session(program=%s, native=%t)", s.scheduler.ProgramID(), s.engine.NativeAvailable())
}
