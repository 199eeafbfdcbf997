// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package instruction encodes proof-verification requests in the byte-exact
// format of the external proof verifier program, and builds the instructions
// that create and close proof-context accounts.
package instruction

import (
	"errors"
	"fmt"
)

// Discriminator is the leading byte of every verifier instruction
type Discriminator uint8

const (
	CloseContextState Discriminator = iota
	VerifyRangeProof
	VerifyValidityProof
	VerifyEqualityProof
	VerifyTransfer
	VerifyTransferWithFee
	VerifyBatchedRangeProof
)

var discriminatorNames = map[Discriminator]string{
	CloseContextState:       "CloseContextState",
	VerifyRangeProof:        "VerifyRangeProof",
	VerifyValidityProof:     "VerifyValidityProof",
	VerifyEqualityProof:     "VerifyEqualityProof",
	VerifyTransfer:          "VerifyTransfer",
	VerifyTransferWithFee:   "VerifyTransferWithFee",
	VerifyBatchedRangeProof: "VerifyBatchedRangeProof",
}

func (d Discriminator) String() string {
	if name, ok := discriminatorNames[d]; ok {
		return name
	}
	return fmt.Sprintf("Discriminator(%d)", uint8(d))
}

var (
	// ErrMalformedProofPayload is returned for any buffer that does not
	// decode to exactly one well-formed payload
	ErrMalformedProofPayload = errors.New("malformed proof payload")

	ErrUnknownProofType    = errors.New("unknown proof type")
	ErrNoViableBump        = errors.New("no off-curve context address for any bump")
	ErrInvalidAddress      = errors.New("invalid address")
	ErrContextNotSupported = errors.New("instruction cannot write a proof context")
)

// Payload is a decoded verifier instruction body. The set of implementations
// is closed to this package.
type Payload interface {
	// Discriminator returns the instruction's leading byte
	Discriminator() Discriminator

	// Bytes returns the full instruction data, discriminator included
	Bytes() []byte

	// Verify checks structural validity
	Verify() error

	isPayload()
}

// Parse decodes data into the payload named by its discriminator
func Parse(data []byte) (Payload, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty instruction data", ErrMalformedProofPayload)
	}
	switch d := Discriminator(data[0]); d {
	case CloseContextState:
		return asPayload(DecodeCloseContext(data))
	case VerifyRangeProof:
		return asPayload(DecodeRangeProof(data))
	case VerifyValidityProof:
		return asPayload(DecodeValidityProof(data))
	case VerifyEqualityProof:
		return asPayload(DecodeEqualityProof(data))
	case VerifyTransfer:
		return asPayload(DecodeTransfer(data))
	case VerifyTransferWithFee:
		return asPayload(DecodeTransferWithFee(data))
	case VerifyBatchedRangeProof:
		return asPayload(DecodeBatchedRangeProof(data))
	default:
		return nil, fmt.Errorf("%w: unknown discriminator %d", ErrMalformedProofPayload, uint8(d))
	}
}

// asPayload keeps a typed nil out of the interface on failure
func asPayload[T Payload](p T, err error) (Payload, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

// AccountMeta is one account reference of an instruction
type AccountMeta struct {
	Address    Address
	IsSigner   bool
	IsWritable bool
}

// Instruction is a program invocation ready for a ledger transaction
type Instruction struct {
	ProgramID Address
	Accounts  []AccountMeta
	Data      []byte
}

// NewVerifyInstruction wraps a verified payload for programID
func NewVerifyInstruction(programID Address, p Payload) (Instruction, error) {
	if err := p.Verify(); err != nil {
		return Instruction{}, err
	}
	return Instruction{
		ProgramID: programID,
		Data:      p.Bytes(),
	}, nil
}

// WithContext returns a copy of a verify instruction that also records its
// result into the context account owned by authority
func (ix Instruction) WithContext(context, authority Address) (Instruction, error) {
	if len(ix.Data) == 0 || Discriminator(ix.Data[0]) == CloseContextState {
		return Instruction{}, ErrContextNotSupported
	}
	accounts := make([]AccountMeta, len(ix.Accounts), len(ix.Accounts)+2)
	copy(accounts, ix.Accounts)
	accounts = append(accounts,
		AccountMeta{Address: context, IsWritable: true},
		AccountMeta{Address: authority},
	)
	return Instruction{
		ProgramID: ix.ProgramID,
		Accounts:  accounts,
		Data:      append([]byte(nil), ix.Data...),
	}, nil
}

// WireSize approximates the bytes the instruction adds to a transaction:
// program id, one key per account and the data
func (ix Instruction) WireSize() int {
	return AddressLen*(1+len(ix.Accounts)) + len(ix.Data)
}
