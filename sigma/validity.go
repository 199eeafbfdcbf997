// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sigma

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/luxfi/confidential/curve"
)

// ValidityProofLen is Y0 ‖ Y1 ‖ zx ‖ zr
const ValidityProofLen = 2*curve.PointSize + 2*curve.ScalarSize

const validityLabel = "confidential-validity-proof"

// ValidityProof shows a ciphertext is a well-formed encryption to its public
// key of an amount known to the prover
type ValidityProof [ValidityProofLen]byte

// Bytes returns the proof as a slice
func (p *ValidityProof) Bytes() []byte {
	return p[:]
}

// ParseValidityProof checks the length and copies b
func ParseValidityProof(b []byte) (ValidityProof, error) {
	var p ValidityProof
	if len(b) != ValidityProofLen {
		return p, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedProof, ValidityProofLen, len(b))
	}
	copy(p[:], b)
	return p, nil
}

// ProveValidity proves e is an encryption of amount
func ProveValidity(amount uint64, e Encryption) (ValidityProof, error) {
	return ProveValidityFrom(rand.Reader, amount, e)
}

// ProveValidityFrom is ProveValidity with an injected random source
func ProveValidityFrom(rng io.Reader, amount uint64, e Encryption) (ValidityProof, error) {
	if err := checkWitness(amount, e); err != nil {
		return ValidityProof{}, err
	}
	st, err := decodeStatement(e.Ciphertext, e.PublicKey)
	if err != nil {
		return ValidityProof{}, err
	}
	nonces, err := curve.RandomScalars(rng, 2)
	if err != nil {
		return ValidityProof{}, err
	}
	yx, yr := nonces[0], nonces[1]

	y0 := curve.Commit(&yx, &yr)
	y1 := curve.ScalarMul(&st.p, &yr)

	t := curve.NewTranscript(validityLabel)
	st.absorb(t)
	t.AppendPoint("Y0", &y0)
	t.AppendPoint("Y1", &y1)
	c := t.Challenge("c")

	x := curve.ScalarFromUint64(amount)
	r := e.Opening.Scalar()
	zx := response(&yx, &c, &x)
	zr := response(&yr, &c, &r)

	var p ValidityProof
	w := writer{b: p[:]}
	w.point(&y0)
	w.point(&y1)
	w.scalar(&zx)
	w.scalar(&zr)
	return p, nil
}

// VerifyValidity checks proof against the ciphertext and public key
func VerifyValidity(e Encryption, proof *ValidityProof) bool {
	st, err := decodeStatement(e.Ciphertext, e.PublicKey)
	if err != nil {
		return false
	}
	r := reader{b: proof[:]}
	y0, y1 := r.point(), r.point()
	zx, zr := r.scalar(), r.scalar()
	if r.done() != nil {
		return false
	}

	t := curve.NewTranscript(validityLabel)
	st.absorb(t)
	t.AppendPoint("Y0", &y0)
	t.AppendPoint("Y1", &y1)
	c := t.Challenge("c")

	return commitmentHolds(&zx, &zr, &c, &st.c, &y0) &&
		handleHolds(&zr, &c, &st.p, &st.d, &y1)
}
