// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package scheduler

import (
	"github.com/luxfi/confidential/elgamal"
	"github.com/luxfi/confidential/engine"
	"github.com/luxfi/confidential/instruction"
	"github.com/luxfi/confidential/pedersen"
	"github.com/luxfi/confidential/rangeproof"
	"github.com/luxfi/confidential/sigma"
)

// cost is the estimated on-ledger footprint of one proof
type cost struct {
	bytes        int
	computeUnits uint64
}

// Byte costs count the program id plus the instruction data
var (
	rangeEntryCost = cost{
		bytes:        pedersen.CommitmentLen + 2 + rangeproof.ProofLen,
		computeUnits: 180_000,
	}
	costs = map[engine.TaskType]cost{
		engine.TaskRange: {
			bytes:        instruction.AddressLen + 1 + pedersen.CommitmentLen + rangeproof.ProofLen,
			computeUnits: 200_000,
		},
		engine.TaskValidity: {
			bytes:        instruction.AddressLen + 1 + elgamal.CiphertextLen + sigma.ValidityProofLen,
			computeUnits: 60_000,
		},
		engine.TaskEquality: {
			bytes:        instruction.AddressLen + 1 + 2*elgamal.CiphertextLen + sigma.EqualityProofLen,
			computeUnits: 90_000,
		},
		// plus rangeEntryCost per entry
		engine.TaskBatchRange: {
			bytes:        instruction.AddressLen + 2,
			computeUnits: 20_000,
		},
	}
)

// Estimate is the admission cost of one task
type Estimate struct {
	Bytes             int
	ComputeUnits      uint64
	BoundaryCrossings int
}

func (e Estimate) add(o Estimate) Estimate {
	return Estimate{
		Bytes:             e.Bytes + o.Bytes,
		ComputeUnits:      e.ComputeUnits + o.ComputeUnits,
		BoundaryCrossings: e.BoundaryCrossings + o.BoundaryCrossings,
	}
}

// EstimateTask returns the admission cost of t. native reports whether
// the accelerator is currently usable.
func EstimateTask(t *engine.Task, native bool) Estimate {
	c := costs[t.Type]
	est := Estimate{Bytes: c.bytes, ComputeUnits: c.computeUnits}
	if t.Type == engine.TaskBatchRange {
		n := t.EntryCount()
		est.Bytes += n * rangeEntryCost.bytes
		est.ComputeUnits += uint64(n) * rangeEntryCost.computeUnits
	}
	if native && t.NativeEligible() {
		est.BoundaryCrossings = 1
	}
	return est
}
