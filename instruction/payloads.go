// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package instruction

import (
	"fmt"
	"math"

	"github.com/luxfi/confidential/elgamal"
	"github.com/luxfi/confidential/pedersen"
	"github.com/luxfi/confidential/sigma"
)

const (
	ciphertextLen       = elgamal.CiphertextLen
	elgamalPublicKeyLen = elgamal.PublicKeyLen
	commitmentLen       = pedersen.CommitmentLen

	// MaxBatchEntries is the largest batch the one-byte count can carry
	MaxBatchEntries = math.MaxUint8

	// MaxRangeProofLen is the largest proof a batch entry length can carry
	MaxRangeProofLen = math.MaxUint16

	transferPrefixLen = ciphertextLen + commitmentLen + sigma.EqualityProofLen + sigma.ValidityProofLen
	feeSuffixLen      = ciphertextLen + commitmentLen + sigma.ValidityProofLen
)

func readCiphertext(d *decoder, field string) elgamal.Ciphertext {
	var ct elgamal.Ciphertext
	d.read(ct.Commitment[:], field)
	d.read(ct.Handle[:], field)
	return ct
}

func putCiphertext(e *encoder, ct elgamal.Ciphertext) {
	b := ct.Bytes()
	e.put(b[:])
}

func checkRangeProof(proof []byte, field string) error {
	switch {
	case len(proof) == 0:
		return fmt.Errorf("%w: empty %s", ErrMalformedProofPayload, field)
	case len(proof) > MaxRangeProofLen:
		return fmt.Errorf("%w: %s of %d bytes exceeds %d", ErrMalformedProofPayload, field, len(proof), MaxRangeProofLen)
	default:
		return nil
	}
}

// RangeProof is VerifyRangeProof: commitment ‖ proof
type RangeProof struct {
	Commitment pedersen.Commitment
	Proof      []byte
}

// NewRangeProof builds and verifies a range proof payload
func NewRangeProof(commitment pedersen.Commitment, proof []byte) (*RangeProof, error) {
	p := &RangeProof{Commitment: commitment, Proof: proof}
	if err := p.Verify(); err != nil {
		return nil, err
	}
	return p, nil
}

func (*RangeProof) Discriminator() Discriminator { return VerifyRangeProof }
func (*RangeProof) isPayload()                   {}

// Verify checks the proof is present
func (p *RangeProof) Verify() error {
	return checkRangeProof(p.Proof, "range proof")
}

// Bytes encodes the instruction data
func (p *RangeProof) Bytes() []byte {
	e := newEncoder(VerifyRangeProof, commitmentLen+len(p.Proof))
	e.put(p.Commitment[:])
	e.put(p.Proof)
	return e.buf
}

// DecodeRangeProof decodes VerifyRangeProof data
func DecodeRangeProof(data []byte) (*RangeProof, error) {
	d := newDecoder(data, VerifyRangeProof)
	p := &RangeProof{}
	d.read(p.Commitment[:], "commitment")
	p.Proof = d.bytes(d.remaining(), "range proof")
	if err := d.finish(); err != nil {
		return nil, err
	}
	if err := p.Verify(); err != nil {
		return nil, err
	}
	return p, nil
}

// ValidityProof is VerifyValidityProof: ciphertext ‖ proof. The public key
// the ciphertext is checked against is held by the proof context.
type ValidityProof struct {
	Ciphertext elgamal.Ciphertext
	Proof      sigma.ValidityProof
}

func (*ValidityProof) Discriminator() Discriminator { return VerifyValidityProof }
func (*ValidityProof) isPayload()                   {}

// Verify always succeeds; every field has a fixed size
func (*ValidityProof) Verify() error { return nil }

// Bytes encodes the instruction data
func (p *ValidityProof) Bytes() []byte {
	e := newEncoder(VerifyValidityProof, ciphertextLen+sigma.ValidityProofLen)
	putCiphertext(e, p.Ciphertext)
	e.put(p.Proof[:])
	return e.buf
}

// DecodeValidityProof decodes VerifyValidityProof data
func DecodeValidityProof(data []byte) (*ValidityProof, error) {
	d := newDecoder(data, VerifyValidityProof)
	p := &ValidityProof{Ciphertext: readCiphertext(d, "ciphertext")}
	d.read(p.Proof[:], "validity proof")
	if err := d.finish(); err != nil {
		return nil, err
	}
	return p, nil
}

// EqualityProof is VerifyEqualityProof: ciphertext1 ‖ ciphertext2 ‖ proof
type EqualityProof struct {
	First  elgamal.Ciphertext
	Second elgamal.Ciphertext
	Proof  sigma.EqualityProof
}

func (*EqualityProof) Discriminator() Discriminator { return VerifyEqualityProof }
func (*EqualityProof) isPayload()                   {}

// Verify always succeeds; every field has a fixed size
func (*EqualityProof) Verify() error { return nil }

// Bytes encodes the instruction data
func (p *EqualityProof) Bytes() []byte {
	e := newEncoder(VerifyEqualityProof, 2*ciphertextLen+sigma.EqualityProofLen)
	putCiphertext(e, p.First)
	putCiphertext(e, p.Second)
	e.put(p.Proof[:])
	return e.buf
}

// DecodeEqualityProof decodes VerifyEqualityProof data
func DecodeEqualityProof(data []byte) (*EqualityProof, error) {
	d := newDecoder(data, VerifyEqualityProof)
	p := &EqualityProof{
		First:  readCiphertext(d, "first ciphertext"),
		Second: readCiphertext(d, "second ciphertext"),
	}
	d.read(p.Proof[:], "equality proof")
	if err := d.finish(); err != nil {
		return nil, err
	}
	return p, nil
}

// Transfer is VerifyTransfer: encryptedAmount ‖ newCommitment ‖
// equalityProof ‖ validityProof ‖ rangeProof
type Transfer struct {
	EncryptedAmount elgamal.Ciphertext
	NewCommitment   pedersen.Commitment
	EqualityProof   sigma.EqualityProof
	ValidityProof   sigma.ValidityProof
	RangeProof      []byte
}

func (*Transfer) Discriminator() Discriminator { return VerifyTransfer }
func (*Transfer) isPayload()                   {}

// Verify checks the range proof is present
func (p *Transfer) Verify() error {
	return checkRangeProof(p.RangeProof, "transfer range proof")
}

func (p *Transfer) encodeBody(e *encoder) {
	putCiphertext(e, p.EncryptedAmount)
	e.put(p.NewCommitment[:])
	e.put(p.EqualityProof[:])
	e.put(p.ValidityProof[:])
	e.put(p.RangeProof)
}

// Bytes encodes the instruction data
func (p *Transfer) Bytes() []byte {
	e := newEncoder(VerifyTransfer, transferPrefixLen+len(p.RangeProof))
	p.encodeBody(e)
	return e.buf
}

// decodeTransferBody reads the transfer fields, leaving suffixLen bytes
func decodeTransferBody(d *decoder, suffixLen int) Transfer {
	var p Transfer
	p.EncryptedAmount = readCiphertext(d, "encrypted amount")
	d.read(p.NewCommitment[:], "new commitment")
	d.read(p.EqualityProof[:], "equality proof")
	d.read(p.ValidityProof[:], "validity proof")
	p.RangeProof = d.bytes(d.remaining()-suffixLen, "range proof")
	return p
}

// DecodeTransfer decodes VerifyTransfer data
func DecodeTransfer(data []byte) (*Transfer, error) {
	d := newDecoder(data, VerifyTransfer)
	p := decodeTransferBody(d, 0)
	if err := d.finish(); err != nil {
		return nil, err
	}
	if err := p.Verify(); err != nil {
		return nil, err
	}
	return &p, nil
}

// TransferWithFee is VerifyTransferWithFee: a transfer body followed by
// encryptedFee ‖ feeCommitment ‖ feeValidityProof
type TransferWithFee struct {
	Transfer
	EncryptedFee     elgamal.Ciphertext
	FeeCommitment    pedersen.Commitment
	FeeValidityProof sigma.ValidityProof
}

func (*TransferWithFee) Discriminator() Discriminator { return VerifyTransferWithFee }
func (*TransferWithFee) isPayload()                   {}

// Bytes encodes the instruction data
func (p *TransferWithFee) Bytes() []byte {
	e := newEncoder(VerifyTransferWithFee, transferPrefixLen+len(p.RangeProof)+feeSuffixLen)
	p.encodeBody(e)
	putCiphertext(e, p.EncryptedFee)
	e.put(p.FeeCommitment[:])
	e.put(p.FeeValidityProof[:])
	return e.buf
}

// DecodeTransferWithFee decodes VerifyTransferWithFee data. The range proof
// has no length prefix, so the fee fields are read from the end.
func DecodeTransferWithFee(data []byte) (*TransferWithFee, error) {
	d := newDecoder(data, VerifyTransferWithFee)
	p := &TransferWithFee{Transfer: decodeTransferBody(d, feeSuffixLen)}
	p.EncryptedFee = readCiphertext(d, "encrypted fee")
	d.read(p.FeeCommitment[:], "fee commitment")
	d.read(p.FeeValidityProof[:], "fee validity proof")
	if err := d.finish(); err != nil {
		return nil, err
	}
	if err := p.Verify(); err != nil {
		return nil, err
	}
	return p, nil
}

// RangeEntry is one proof of a batched range instruction
type RangeEntry struct {
	Commitment pedersen.Commitment
	Proof      []byte
}

// BatchedRangeProof is VerifyBatchedRangeProof:
// count ‖ (commitment ‖ proofLen u16 ‖ proof)*
type BatchedRangeProof struct {
	Entries []RangeEntry
}

// NewBatchedRangeProof builds and verifies a batched payload
func NewBatchedRangeProof(entries []RangeEntry) (*BatchedRangeProof, error) {
	p := &BatchedRangeProof{Entries: entries}
	if err := p.Verify(); err != nil {
		return nil, err
	}
	return p, nil
}

func (*BatchedRangeProof) Discriminator() Discriminator { return VerifyBatchedRangeProof }
func (*BatchedRangeProof) isPayload()                   {}

// Verify checks the entry count and every proof length
func (p *BatchedRangeProof) Verify() error {
	if n := len(p.Entries); n == 0 || n > MaxBatchEntries {
		return fmt.Errorf("%w: batch of %d entries, want 1..%d", ErrMalformedProofPayload, n, MaxBatchEntries)
	}
	for i, entry := range p.Entries {
		if err := checkRangeProof(entry.Proof, fmt.Sprintf("range proof %d", i)); err != nil {
			return err
		}
	}
	return nil
}

// Bytes encodes the instruction data
func (p *BatchedRangeProof) Bytes() []byte {
	size := 1
	for _, entry := range p.Entries {
		size += commitmentLen + 2 + len(entry.Proof)
	}
	e := newEncoder(VerifyBatchedRangeProof, size)
	e.putUint8(uint8(len(p.Entries)))
	for _, entry := range p.Entries {
		e.put(entry.Commitment[:])
		e.putUint16(uint16(len(entry.Proof)))
		e.put(entry.Proof)
	}
	return e.buf
}

// DecodeBatchedRangeProof decodes VerifyBatchedRangeProof data
func DecodeBatchedRangeProof(data []byte) (*BatchedRangeProof, error) {
	d := newDecoder(data, VerifyBatchedRangeProof)
	count := int(d.uint8("proof count"))
	if d.err == nil && count == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrMalformedProofPayload)
	}
	p := &BatchedRangeProof{Entries: make([]RangeEntry, 0, count)}
	for i := 0; i < count && d.err == nil; i++ {
		var entry RangeEntry
		d.read(entry.Commitment[:], "commitment")
		n := d.uint16("proof length")
		entry.Proof = d.bytes(int(n), "range proof")
		p.Entries = append(p.Entries, entry)
	}
	if err := d.finish(); err != nil {
		return nil, err
	}
	if err := p.Verify(); err != nil {
		return nil, err
	}
	return p, nil
}

// CloseContext is CloseContextState. It has no body; its accounts carry
// the intent.
type CloseContext struct{}

func (CloseContext) Discriminator() Discriminator { return CloseContextState }
func (CloseContext) isPayload()                   {}
func (CloseContext) Verify() error                { return nil }
func (CloseContext) Bytes() []byte                { return []byte{byte(CloseContextState)} }

// DecodeCloseContext decodes CloseContextState data
func DecodeCloseContext(data []byte) (CloseContext, error) {
	d := newDecoder(data, CloseContextState)
	return CloseContext{}, d.finish()
}
