// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package sigma holds the Fiat-Shamir sigma protocols over twisted ElGamal
// ciphertexts: ciphertext validity and equality of two encrypted amounts.
package sigma

import (
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/luxfi/confidential/curve"
	"github.com/luxfi/confidential/elgamal"
)

var (
	// ErrInvalidWitness is returned when the amount and opening do not
	// reproduce the ciphertext being proven
	ErrInvalidWitness = errors.New("witness does not match ciphertext")

	ErrMalformedProof = errors.New("malformed sigma proof")
)

// Encryption is one ciphertext together with everything needed to prove
// statements about it
type Encryption struct {
	Ciphertext elgamal.Ciphertext
	PublicKey  elgamal.PublicKey
	Opening    elgamal.Opening
}

// statement is a ciphertext with its decoded points
type statement struct {
	c, d, p bn254.G1Affine
}

func decodeStatement(ct elgamal.Ciphertext, pk elgamal.PublicKey) (statement, error) {
	var (
		st  statement
		err error
	)
	st.c, st.d, err = ct.Points()
	if err != nil {
		return st, err
	}
	st.p, err = pk.Point()
	return st, err
}

func (st *statement) absorb(t *curve.Transcript) {
	t.AppendPoint("P", &st.p)
	t.AppendPoint("C", &st.c)
	t.AppendPoint("D", &st.d)
}

func checkWitness(amount uint64, e Encryption) error {
	ct, err := elgamal.EncryptWithOpening(amount, e.PublicKey, e.Opening)
	if err != nil {
		return err
	}
	if ct != e.Ciphertext {
		return ErrInvalidWitness
	}
	return nil
}

// commitmentHolds checks zx·G + zr·H = c·C + Y
func commitmentHolds(zx, zr, c *fr.Element, commitment, y *bn254.G1Affine) bool {
	lhs := curve.Commit(zx, zr)
	cc := curve.ScalarMul(commitment, c)
	rhs := curve.Add(&cc, y)
	return lhs.Equal(&rhs)
}

// handleHolds checks zr·P = c·D + Y
func handleHolds(zr, c *fr.Element, p, d, y *bn254.G1Affine) bool {
	lhs := curve.ScalarMul(p, zr)
	cd := curve.ScalarMul(d, c)
	rhs := curve.Add(&cd, y)
	return lhs.Equal(&rhs)
}

// response returns y + c·w
func response(y, c, w *fr.Element) fr.Element {
	var z fr.Element
	z.Mul(c, w)
	z.Add(&z, y)
	return z
}

type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) point() bn254.G1Affine {
	var p bn254.G1Affine
	if r.err != nil {
		return p
	}
	p, r.err = curve.DecodePoint(r.b[r.off : r.off+curve.PointSize])
	r.off += curve.PointSize
	return p
}

func (r *reader) scalar() fr.Element {
	var s fr.Element
	if r.err != nil {
		return s
	}
	s, r.err = curve.DecodeScalar(r.b[r.off : r.off+curve.ScalarSize])
	r.off += curve.ScalarSize
	return s
}

func (r *reader) done() error {
	if r.err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedProof, r.err)
	}
	return nil
}

type writer struct {
	b   []byte
	off int
}

func (w *writer) point(p *bn254.G1Affine) {
	b := p.Bytes()
	w.off += copy(w.b[w.off:], b[:])
}

func (w *writer) scalar(s *fr.Element) {
	b := s.Bytes()
	w.off += copy(w.b[w.off:], b[:])
}
