// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rangeproof proves that a Pedersen commitment opens to an amount in
// [0, 2^64) using a bulletproof with a logarithmic inner-product argument.
//
// Verification here is a local diagnostic. The authoritative check is done by
// the on-chain verifier program.
package rangeproof

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/luxfi/confidential/curve"
	"github.com/luxfi/confidential/pedersen"
)

const transcriptLabel = "confidential-range-proof"

var (
	ErrInvalidCommitment = errors.New("commitment does not open to amount")
	ErrMalformedProof    = errors.New("malformed range proof")
)

// Generate proves amount ∈ [0, 2^64) for commitment
func Generate(amount uint64, commitment pedersen.Commitment, opening pedersen.Opening) (Proof, error) {
	return GenerateFrom(rand.Reader, amount, commitment, opening)
}

// GenerateFrom is Generate with an injected random source
func GenerateFrom(rng io.Reader, amount uint64, commitment pedersen.Commitment, opening pedersen.Opening) (Proof, error) {
	if !commitment.Verify(amount, opening) {
		return Proof{}, ErrInvalidCommitment
	}
	v, err := commitment.Point()
	if err != nil {
		return Proof{}, fmt.Errorf("%w: %v", ErrInvalidCommitment, err)
	}

	// alpha, rho, tau1, tau2, then sL and sR
	blinds, err := curve.RandomScalars(rng, 4+2*Bits)
	if err != nil {
		return Proof{}, err
	}
	alpha, rho, tau1, tau2 := blinds[0], blinds[1], blinds[2], blinds[3]
	sL, sR := blinds[4:4+Bits], blinds[4+Bits:]

	gv, hv := curve.VectorGenerators(Bits)
	h := curve.H()

	var one fr.Element
	one.SetOne()
	aL := make([]fr.Element, Bits)
	aR := make([]fr.Element, Bits)
	for i := 0; i < Bits; i++ {
		if amount>>uint(i)&1 == 1 {
			aL[i].SetOne()
		} else {
			aR[i].Neg(&one)
		}
	}

	var d decodedProof
	d.a, err = vectorCommit(h, &alpha, gv, aL, hv, aR)
	if err != nil {
		return Proof{}, err
	}
	d.s, err = vectorCommit(h, &rho, gv, sL, hv, sR)
	if err != nil {
		return Proof{}, err
	}

	t := curve.NewTranscript(transcriptLabel)
	t.AppendUint64("n", Bits)
	t.AppendPoint("V", &v)
	t.AppendPoint("A", &d.a)
	t.AppendPoint("S", &d.s)
	y := t.Challenge("y")
	z := t.Challenge("z")

	var z2 fr.Element
	z2.Square(&z)
	yn := curve.Powers(&y, Bits)
	two := curve.ScalarFromUint64(2)
	twoN := curve.Powers(&two, Bits)

	// l(X) = l0 + l1·X, r(X) = r0 + r1·X
	l0 := make([]fr.Element, Bits)
	r0 := make([]fr.Element, Bits)
	r1 := make([]fr.Element, Bits)
	for i := 0; i < Bits; i++ {
		var tmp fr.Element
		l0[i].Sub(&aL[i], &z)

		tmp.Add(&aR[i], &z)
		r0[i].Mul(&yn[i], &tmp)
		tmp.Mul(&z2, &twoN[i])
		r0[i].Add(&r0[i], &tmp)

		r1[i].Mul(&yn[i], &sR[i])
	}
	l1 := sL

	t1a := curve.InnerProduct(l0, r1)
	t1b := curve.InnerProduct(l1, r0)
	var t1 fr.Element
	t1.Add(&t1a, &t1b)
	t2 := curve.InnerProduct(l1, r1)

	d.t1 = curve.Commit(&t1, &tau1)
	d.t2 = curve.Commit(&t2, &tau2)
	t.AppendPoint("T1", &d.t1)
	t.AppendPoint("T2", &d.t2)
	x := t.Challenge("x")

	l := make([]fr.Element, Bits)
	r := make([]fr.Element, Bits)
	for i := 0; i < Bits; i++ {
		var tmp fr.Element
		tmp.Mul(&l1[i], &x)
		l[i].Add(&l0[i], &tmp)
		tmp.Mul(&r1[i], &x)
		r[i].Add(&r0[i], &tmp)
	}
	d.th = curve.InnerProduct(l, r)

	gamma := opening.Scalar()
	var x2, tmp fr.Element
	x2.Square(&x)
	d.taux.Mul(&tau2, &x2)
	tmp.Mul(&tau1, &x)
	d.taux.Add(&d.taux, &tmp)
	tmp.Mul(&z2, &gamma)
	d.taux.Add(&d.taux, &tmp)

	tmp.Mul(&rho, &x)
	d.mu.Add(&alpha, &tmp)

	t.AppendScalar("taux", &d.taux)
	t.AppendScalar("mu", &d.mu)
	t.AppendScalar("t", &d.th)
	w := t.Challenge("w")
	q := curve.ScalarMul(curve.Q(), &w)

	hPrime := twistedH(hv, &y)
	if err := proveInnerProduct(t, &d, gv, hPrime, &q, l, r); err != nil {
		return Proof{}, err
	}
	return d.encode(), nil
}

// vectorCommit returns blind·h + <a, g> + <b, hv>
func vectorCommit(h *bn254.G1Affine, blind *fr.Element, g []bn254.G1Affine, a []fr.Element, hv []bn254.G1Affine, b []fr.Element) (bn254.G1Affine, error) {
	points := make([]bn254.G1Affine, 0, 1+len(g)+len(hv))
	points = append(points, *h)
	points = append(points, g...)
	points = append(points, hv...)
	scalars := make([]fr.Element, 0, cap(points))
	scalars = append(scalars, *blind)
	scalars = append(scalars, a...)
	scalars = append(scalars, b...)
	return curve.MultiExp(points, scalars)
}

// twistedH returns H'_i = y^-i · H_i
func twistedH(hv []bn254.G1Affine, y *fr.Element) []bn254.G1Affine {
	var yInv fr.Element
	yInv.Inverse(y)
	yInvN := curve.Powers(&yInv, len(hv))
	out := make([]bn254.G1Affine, len(hv))
	for i := range hv {
		out[i] = curve.ScalarMul(&hv[i], &yInvN[i])
	}
	return out
}

func proveInnerProduct(t *curve.Transcript, d *decodedProof, g, h []bn254.G1Affine, q *bn254.G1Affine, a, b []fr.Element) error {
	g = append([]bn254.G1Affine(nil), g...)
	h = append([]bn254.G1Affine(nil), h...)
	a = append([]fr.Element(nil), a...)
	b = append([]fr.Element(nil), b...)

	for round := 0; round < Rounds; round++ {
		n := len(a) / 2
		aLo, aHi := a[:n], a[n:]
		bLo, bHi := b[:n], b[n:]
		gLo, gHi := g[:n], g[n:]
		hLo, hHi := h[:n], h[n:]

		cL := curve.InnerProduct(aLo, bHi)
		cR := curve.InnerProduct(aHi, bLo)

		var err error
		d.l[round], err = crossTerm(gHi, aLo, hLo, bHi, q, &cL)
		if err != nil {
			return err
		}
		d.r[round], err = crossTerm(gLo, aHi, hHi, bLo, q, &cR)
		if err != nil {
			return err
		}
		t.AppendPoint("L", &d.l[round])
		t.AppendPoint("R", &d.r[round])
		u := t.Challenge("u")
		var uInv fr.Element
		uInv.Inverse(&u)

		na := make([]fr.Element, n)
		nb := make([]fr.Element, n)
		ng := make([]bn254.G1Affine, n)
		nh := make([]bn254.G1Affine, n)
		for i := 0; i < n; i++ {
			var x, y fr.Element
			x.Mul(&aLo[i], &u)
			y.Mul(&aHi[i], &uInv)
			na[i].Add(&x, &y)

			x.Mul(&bLo[i], &uInv)
			y.Mul(&bHi[i], &u)
			nb[i].Add(&x, &y)

			gl := curve.ScalarMul(&gLo[i], &uInv)
			gh := curve.ScalarMul(&gHi[i], &u)
			ng[i] = curve.Add(&gl, &gh)

			hl := curve.ScalarMul(&hLo[i], &u)
			hh := curve.ScalarMul(&hHi[i], &uInv)
			nh[i] = curve.Add(&hl, &hh)
		}
		a, b, g, h = na, nb, ng, nh
	}
	d.ipaA, d.ipaB = a[0], b[0]
	return nil
}

// crossTerm returns <a, g> + <b, h> + c·q
func crossTerm(g []bn254.G1Affine, a []fr.Element, h []bn254.G1Affine, b []fr.Element, q *bn254.G1Affine, c *fr.Element) (bn254.G1Affine, error) {
	points := make([]bn254.G1Affine, 0, len(g)+len(h)+1)
	points = append(points, g...)
	points = append(points, h...)
	points = append(points, *q)
	scalars := make([]fr.Element, 0, cap(points))
	scalars = append(scalars, a...)
	scalars = append(scalars, b...)
	scalars = append(scalars, *c)
	return curve.MultiExp(points, scalars)
}
