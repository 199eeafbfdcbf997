// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package pedersen implements Pedersen commitments amount·G + blinding·H.
package pedersen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/luxfi/confidential/curve"
)

// CommitmentLen is the length of a serialized commitment
const CommitmentLen = curve.PointSize

var ErrInvalidCommitment = errors.New("invalid commitment")

// Commitment is a compressed Pedersen commitment
type Commitment curve.Point

// Opening is the blinding factor of a commitment
type Opening struct {
	blinding fr.Element
}

// NewOpening wraps a known blinding factor
func NewOpening(blinding fr.Element) Opening {
	return Opening{blinding: blinding}
}

// ParseOpening decodes a 32-byte blinding factor
func ParseOpening(b []byte) (Opening, error) {
	s, err := curve.DecodeScalar(b)
	if err != nil {
		return Opening{}, err
	}
	return Opening{blinding: s}, nil
}

// Scalar returns the blinding factor
func (o Opening) Scalar() fr.Element {
	return o.blinding
}

// Bytes serializes the blinding factor
func (o Opening) Bytes() curve.Scalar {
	return curve.EncodeScalar(&o.blinding)
}

func (Opening) String() string { return "Opening(redacted)" }

// Commit deterministically commits to amount
func Commit(amount uint64, o Opening) Commitment {
	x := curve.ScalarFromUint64(amount)
	p := curve.Commit(&x, &o.blinding)
	return Commitment(curve.EncodePoint(&p))
}

// New commits to amount under a fresh blinding factor from crypto/rand
func New(amount uint64) (Commitment, Opening, error) {
	return NewFrom(rand.Reader, amount)
}

// NewFrom is New with an injected random source
func NewFrom(r io.Reader, amount uint64) (Commitment, Opening, error) {
	b, err := curve.RandomScalar(r)
	if err != nil {
		return Commitment{}, Opening{}, err
	}
	o := Opening{blinding: b}
	return Commit(amount, o), o, nil
}

// ParseCommitment decodes and validates a commitment
func ParseCommitment(b []byte) (Commitment, error) {
	if _, err := curve.DecodePoint(b); err != nil {
		return Commitment{}, fmt.Errorf("%w: %v", ErrInvalidCommitment, err)
	}
	return Commitment(b), nil
}

// Point decodes the commitment
func (c Commitment) Point() (bn254.G1Affine, error) {
	p, err := curve.DecodePoint(c[:])
	if err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidCommitment, err)
	}
	return p, nil
}

// Verify reports whether c opens to (amount, o)
func (c Commitment) Verify(amount uint64, o Opening) bool {
	return Commit(amount, o) == c
}

// Add returns the commitment to the summed amounts
func (c Commitment) Add(other Commitment) (Commitment, error) {
	return c.combine(other, curve.Add)
}

// Sub returns the commitment to the difference of amounts
func (c Commitment) Sub(other Commitment) (Commitment, error) {
	return c.combine(other, curve.Sub)
}

func (c Commitment) combine(other Commitment, op func(a, b *bn254.G1Affine) bn254.G1Affine) (Commitment, error) {
	a, err := c.Point()
	if err != nil {
		return Commitment{}, err
	}
	b, err := other.Point()
	if err != nil {
		return Commitment{}, err
	}
	p := op(&a, &b)
	return Commitment(curve.EncodePoint(&p)), nil
}

// AddOpenings returns the blinding of Add
func AddOpenings(a, b Opening) Opening {
	var s fr.Element
	s.Add(&a.blinding, &b.blinding)
	return Opening{blinding: s}
}

// SubOpenings returns the blinding of Sub
func SubOpenings(a, b Opening) Opening {
	var s fr.Element
	s.Sub(&a.blinding, &b.blinding)
	return Opening{blinding: s}
}
