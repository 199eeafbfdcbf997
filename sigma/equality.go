// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sigma

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/luxfi/confidential/curve"
)

// EqualityProofLen is Y0..Y3 ‖ zx ‖ z1 ‖ z2
const EqualityProofLen = 4*curve.PointSize + 3*curve.ScalarSize

const equalityLabel = "confidential-equality-proof"

// EqualityProof shows two ciphertexts, possibly under different public keys,
// encrypt the same amount
type EqualityProof [EqualityProofLen]byte

// Bytes returns the proof as a slice
func (p *EqualityProof) Bytes() []byte {
	return p[:]
}

// ParseEqualityProof checks the length and copies b
func ParseEqualityProof(b []byte) (EqualityProof, error) {
	var p EqualityProof
	if len(b) != EqualityProofLen {
		return p, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedProof, EqualityProofLen, len(b))
	}
	copy(p[:], b)
	return p, nil
}

// ProveEquality proves first and second both encrypt amount
func ProveEquality(amount uint64, first, second Encryption) (EqualityProof, error) {
	return ProveEqualityFrom(rand.Reader, amount, first, second)
}

// ProveEqualityFrom is ProveEquality with an injected random source
func ProveEqualityFrom(rng io.Reader, amount uint64, first, second Encryption) (EqualityProof, error) {
	if err := checkWitness(amount, first); err != nil {
		return EqualityProof{}, fmt.Errorf("first ciphertext: %w", err)
	}
	if err := checkWitness(amount, second); err != nil {
		return EqualityProof{}, fmt.Errorf("second ciphertext: %w", err)
	}
	st1, err := decodeStatement(first.Ciphertext, first.PublicKey)
	if err != nil {
		return EqualityProof{}, err
	}
	st2, err := decodeStatement(second.Ciphertext, second.PublicKey)
	if err != nil {
		return EqualityProof{}, err
	}
	nonces, err := curve.RandomScalars(rng, 3)
	if err != nil {
		return EqualityProof{}, err
	}
	yx, y1, y2 := nonces[0], nonces[1], nonces[2]

	p0 := curve.Commit(&yx, &y1)
	p1 := curve.ScalarMul(&st1.p, &y1)
	p2 := curve.Commit(&yx, &y2)
	p3 := curve.ScalarMul(&st2.p, &y2)

	t := curve.NewTranscript(equalityLabel)
	st1.absorb(t)
	st2.absorb(t)
	t.AppendPoint("Y0", &p0)
	t.AppendPoint("Y1", &p1)
	t.AppendPoint("Y2", &p2)
	t.AppendPoint("Y3", &p3)
	c := t.Challenge("c")

	x := curve.ScalarFromUint64(amount)
	r1 := first.Opening.Scalar()
	r2 := second.Opening.Scalar()
	zx := response(&yx, &c, &x)
	z1 := response(&y1, &c, &r1)
	z2 := response(&y2, &c, &r2)

	var p EqualityProof
	w := writer{b: p[:]}
	w.point(&p0)
	w.point(&p1)
	w.point(&p2)
	w.point(&p3)
	w.scalar(&zx)
	w.scalar(&z1)
	w.scalar(&z2)
	return p, nil
}

// VerifyEquality checks proof against both ciphertexts. Openings in the
// arguments are ignored.
func VerifyEquality(first, second Encryption, proof *EqualityProof) bool {
	st1, err := decodeStatement(first.Ciphertext, first.PublicKey)
	if err != nil {
		return false
	}
	st2, err := decodeStatement(second.Ciphertext, second.PublicKey)
	if err != nil {
		return false
	}
	r := reader{b: proof[:]}
	p0, p1, p2, p3 := r.point(), r.point(), r.point(), r.point()
	zx, z1, z2 := r.scalar(), r.scalar(), r.scalar()
	if r.done() != nil {
		return false
	}

	t := curve.NewTranscript(equalityLabel)
	st1.absorb(t)
	st2.absorb(t)
	t.AppendPoint("Y0", &p0)
	t.AppendPoint("Y1", &p1)
	t.AppendPoint("Y2", &p2)
	t.AppendPoint("Y3", &p3)
	c := t.Challenge("c")

	return commitmentHolds(&zx, &z1, &c, &st1.c, &p0) &&
		handleHolds(&z1, &c, &st1.p, &st1.d, &p1) &&
		commitmentHolds(&zx, &z2, &c, &st2.c, &p2) &&
		handleHolds(&z2, &c, &st2.p, &st2.d, &p3)
}
