// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rangeproof

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/luxfi/confidential/curve"
)

const (
	// Bits is the proven bit length
	Bits = curve.RangeBits

	// Rounds is the number of inner-product halvings
	Rounds = 6

	// ProofLen is the serialized size:
	// A, S, T1, T2 ‖ τx, μ, t̂ ‖ (L, R) × Rounds ‖ a, b
	ProofLen = (4+2*Rounds)*curve.PointSize + 5*curve.ScalarSize
)

// Proof is a serialized 64-bit range proof
type Proof [ProofLen]byte

// Bytes returns the proof as a slice
func (p *Proof) Bytes() []byte {
	return p[:]
}

// ParseProof copies b into a Proof after checking every element decodes
func ParseProof(b []byte) (Proof, error) {
	var p Proof
	if len(b) != ProofLen {
		return p, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedProof, ProofLen, len(b))
	}
	copy(p[:], b)
	if _, err := p.decode(); err != nil {
		return Proof{}, err
	}
	return p, nil
}

type decodedProof struct {
	a, s, t1, t2 bn254.G1Affine
	taux, mu, th fr.Element
	l, r         [Rounds]bn254.G1Affine
	ipaA, ipaB   fr.Element
}

func (p *Proof) decode() (*decodedProof, error) {
	var (
		d   decodedProof
		off int
		err error
	)
	point := func(dst *bn254.G1Affine) {
		if err != nil {
			return
		}
		*dst, err = curve.DecodePoint(p[off : off+curve.PointSize])
		off += curve.PointSize
	}
	scalar := func(dst *fr.Element) {
		if err != nil {
			return
		}
		*dst, err = curve.DecodeScalar(p[off : off+curve.ScalarSize])
		off += curve.ScalarSize
	}

	point(&d.a)
	point(&d.s)
	point(&d.t1)
	point(&d.t2)
	scalar(&d.taux)
	scalar(&d.mu)
	scalar(&d.th)
	for i := 0; i < Rounds; i++ {
		point(&d.l[i])
		point(&d.r[i])
	}
	scalar(&d.ipaA)
	scalar(&d.ipaB)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}
	return &d, nil
}

func (d *decodedProof) encode() Proof {
	var (
		p   Proof
		off int
	)
	point := func(src *bn254.G1Affine) {
		b := src.Bytes()
		off += copy(p[off:], b[:])
	}
	scalar := func(src *fr.Element) {
		b := src.Bytes()
		off += copy(p[off:], b[:])
	}

	point(&d.a)
	point(&d.s)
	point(&d.t1)
	point(&d.t2)
	scalar(&d.taux)
	scalar(&d.mu)
	scalar(&d.th)
	for i := 0; i < Rounds; i++ {
		point(&d.l[i])
		point(&d.r[i])
	}
	scalar(&d.ipaA)
	scalar(&d.ipaB)
	return p
}
