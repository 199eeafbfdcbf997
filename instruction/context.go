// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package instruction

import (
	"fmt"
)

// ProofType tags the kind of verification a proof context records. Values
// match the verify discriminators.
type ProofType uint8

const (
	ProofTypeRange           = ProofType(VerifyRangeProof)
	ProofTypeValidity        = ProofType(VerifyValidityProof)
	ProofTypeEquality        = ProofType(VerifyEqualityProof)
	ProofTypeTransfer        = ProofType(VerifyTransfer)
	ProofTypeTransferWithFee = ProofType(VerifyTransferWithFee)
	ProofTypeBatchedRange    = ProofType(VerifyBatchedRangeProof)
)

const (
	// contextHeaderLen is authority ‖ proof type
	contextHeaderLen = AddressLen + 1

	// rentBaseSpace and the lamport rate follow the ledger's rent schedule
	rentBaseSpace         = 128
	lamportsPerByteYear   = 3480
	rentExemptionYears    = 2
	createAccountIndex    = 0
	createAccountDataSize = 4 + 8 + 8 + AddressLen
)

// contextData is the verified statement each proof type leaves behind
var contextData = map[ProofType]int{
	ProofTypeRange:           commitmentLen,
	ProofTypeValidity:        elgamalPublicKeyLen + ciphertextLen,
	ProofTypeEquality:        2 * (elgamalPublicKeyLen + ciphertextLen),
	ProofTypeTransfer:        ciphertextLen + commitmentLen,
	ProofTypeTransferWithFee: 2 * (ciphertextLen + commitmentLen),
	ProofTypeBatchedRange:    1 + MaxBatchEntries*commitmentLen,
}

func (p ProofType) contextDataLen() (int, error) {
	n, ok := contextData[p]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownProofType, uint8(p))
	}
	return n, nil
}

func (p ProofType) String() string {
	return Discriminator(p).String()
}

var proofTypeNames = map[string]ProofType{
	"range":             ProofTypeRange,
	"validity":          ProofTypeValidity,
	"equality":          ProofTypeEquality,
	"transfer":          ProofTypeTransfer,
	"transfer-with-fee": ProofTypeTransferWithFee,
	"batched-range":     ProofTypeBatchedRange,
}

// ParseProofType accepts the short names used on command lines
func ParseProofType(s string) (ProofType, error) {
	p, ok := proofTypeNames[s]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownProofType, s)
	}
	return p, nil
}

// ContextStateSize returns the account space a context of proofType needs
func ContextStateSize(proofType ProofType) (uint64, error) {
	n, err := proofType.contextDataLen()
	if err != nil {
		return 0, err
	}
	return uint64(contextHeaderLen + n), nil
}

// RentExemptLamports returns the balance that keeps an account of space
// bytes exempt from rent
func RentExemptLamports(space uint64) uint64 {
	return (rentBaseSpace + space) * lamportsPerByteYear * rentExemptionYears
}

// NewCreateContextInstruction builds the system create-account instruction
// that allocates a context account owned by programID
func NewCreateContextInstruction(programID, payer, context Address, proofType ProofType, lamports uint64) (Instruction, error) {
	space, err := ContextStateSize(proofType)
	if err != nil {
		return Instruction{}, err
	}
	e := &encoder{buf: make([]byte, 0, createAccountDataSize)}
	e.putUint32(createAccountIndex)
	e.putUint64(lamports)
	e.putUint64(space)
	e.put(programID[:])
	return Instruction{
		ProgramID: SystemProgramID,
		Accounts: []AccountMeta{
			{Address: payer, IsSigner: true, IsWritable: true},
			{Address: context, IsSigner: true, IsWritable: true},
		},
		Data: e.buf,
	}, nil
}

// NewCloseContextInstruction closes context, returning its lamports to
// destination. Only the context's authority may sign it.
func NewCloseContextInstruction(programID, context, destination, authority Address) Instruction {
	return Instruction{
		ProgramID: programID,
		Accounts: []AccountMeta{
			{Address: context, IsWritable: true},
			{Address: destination, IsWritable: true},
			{Address: authority, IsSigner: true},
		},
		Data: CloseContext{}.Bytes(),
	}
}
