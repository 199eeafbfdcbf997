// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"fmt"
	"time"

	"github.com/luxfi/ids"

	"github.com/luxfi/confidential/elgamal"
	"github.com/luxfi/confidential/instruction"
	"github.com/luxfi/confidential/pedersen"
	"github.com/luxfi/confidential/sigma"
)

// NativeMetrics describes the accelerated call that produced a proof
type NativeMetrics struct {
	BatchSize         int
	ComputeTime       time.Duration
	BridgeTime        time.Duration
	BoundaryCrossings int
}

// GeneratedProof is the output of a completed task
type GeneratedProof struct {
	TaskID ids.ID
	Type   TaskType
	// ProofBytes is the proof, or every entry's proof concatenated for
	// batch_range tasks
	ProofBytes []byte
	// EntryProofs holds each entry's proof of a batch_range task
	EntryProofs    [][]byte
	Commitments    []pedersen.Commitment
	Ciphertexts    []elgamal.Ciphertext
	GenerationTime time.Duration
	SizeBytes      int
	UsedNativePath bool
	Retries        int
	NativeMetrics  *NativeMetrics
}

func rangeProof(t *Task, p RangePayload, proof []byte) *GeneratedProof {
	return &GeneratedProof{
		TaskID:      t.ID,
		Type:        t.Type,
		ProofBytes:  proof,
		Commitments: []pedersen.Commitment{p.Commitment},
		SizeBytes:   len(proof),
		Retries:     t.Retries,
	}
}

func batchProof(t *Task, p BatchRangePayload, proofs [][]byte) *GeneratedProof {
	g := &GeneratedProof{
		TaskID:      t.ID,
		Type:        t.Type,
		EntryProofs: proofs,
		Commitments: make([]pedersen.Commitment, len(p.Entries)),
		Retries:     t.Retries,
	}
	for i, e := range p.Entries {
		g.Commitments[i] = e.Commitment
		g.ProofBytes = append(g.ProofBytes, proofs[i]...)
	}
	g.SizeBytes = len(g.ProofBytes)
	return g
}

// Payload converts the proof into its verifier instruction body
func (g *GeneratedProof) Payload() (instruction.Payload, error) {
	switch g.Type {
	case TaskRange:
		if len(g.Commitments) != 1 {
			return nil, fmt.Errorf("%w: range proof with %d commitments", ErrMalformedPayload, len(g.Commitments))
		}
		p, err := instruction.NewRangeProof(g.Commitments[0], g.ProofBytes)
		if err != nil {
			return nil, err
		}
		return p, nil
	case TaskBatchRange:
		if len(g.Commitments) != len(g.EntryProofs) {
			return nil, fmt.Errorf("%w: %d commitments for %d proofs", ErrMalformedPayload, len(g.Commitments), len(g.EntryProofs))
		}
		entries := make([]instruction.RangeEntry, len(g.EntryProofs))
		for i := range entries {
			entries[i] = instruction.RangeEntry{Commitment: g.Commitments[i], Proof: g.EntryProofs[i]}
		}
		p, err := instruction.NewBatchedRangeProof(entries)
		if err != nil {
			return nil, err
		}
		return p, nil
	case TaskValidity:
		proof, err := sigma.ParseValidityProof(g.ProofBytes)
		if err != nil {
			return nil, err
		}
		if len(g.Ciphertexts) != 1 {
			return nil, fmt.Errorf("%w: validity proof with %d ciphertexts", ErrMalformedPayload, len(g.Ciphertexts))
		}
		return &instruction.ValidityProof{Ciphertext: g.Ciphertexts[0], Proof: proof}, nil
	case TaskEquality:
		proof, err := sigma.ParseEqualityProof(g.ProofBytes)
		if err != nil {
			return nil, err
		}
		if len(g.Ciphertexts) != 2 {
			return nil, fmt.Errorf("%w: equality proof with %d ciphertexts", ErrMalformedPayload, len(g.Ciphertexts))
		}
		return &instruction.EqualityProof{First: g.Ciphertexts[0], Second: g.Ciphertexts[1], Proof: proof}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrMalformedPayload, g.Type)
	}
}
