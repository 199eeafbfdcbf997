// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rangeproof

import (
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/luxfi/confidential/curve"
	"github.com/luxfi/confidential/pedersen"
)

// Verify reports whether proof shows that commitment opens to a 64-bit amount
func Verify(commitment pedersen.Commitment, proof *Proof) bool {
	v, err := commitment.Point()
	if err != nil {
		return false
	}
	d, err := proof.decode()
	if err != nil {
		return false
	}

	t := curve.NewTranscript(transcriptLabel)
	t.AppendUint64("n", Bits)
	t.AppendPoint("V", &v)
	t.AppendPoint("A", &d.a)
	t.AppendPoint("S", &d.s)
	y := t.Challenge("y")
	z := t.Challenge("z")
	t.AppendPoint("T1", &d.t1)
	t.AppendPoint("T2", &d.t2)
	x := t.Challenge("x")
	t.AppendScalar("taux", &d.taux)
	t.AppendScalar("mu", &d.mu)
	t.AppendScalar("t", &d.th)
	w := t.Challenge("w")

	var u, uInv [Rounds]fr.Element
	for j := 0; j < Rounds; j++ {
		t.AppendPoint("L", &d.l[j])
		t.AppendPoint("R", &d.r[j])
		u[j] = t.Challenge("u")
		uInv[j].Inverse(&u[j])
	}

	return polynomialHolds(d, &v, &x, &y, &z) && innerProductHolds(d, &x, &y, &z, &w, &u, &uInv)
}

// polynomialHolds checks t̂·G + τx·H = z²·V + δ(y,z)·G + x·T1 + x²·T2
func polynomialHolds(d *decodedProof, v *bn254.G1Affine, x, y, z *fr.Element) bool {
	var z2, z3, x2 fr.Element
	z2.Square(z)
	z3.Mul(&z2, z)
	x2.Square(x)

	yn := curve.Powers(y, Bits)
	var sumY fr.Element
	for i := range yn {
		sumY.Add(&sumY, &yn[i])
	}
	// Σ 2^i for i < 64 is 2^64 - 1
	sum2 := curve.ScalarFromUint64(^uint64(0))

	var delta, tmp fr.Element
	delta.Sub(z, &z2)
	delta.Mul(&delta, &sumY)
	tmp.Mul(&z3, &sum2)
	delta.Sub(&delta, &tmp)

	lhs := curve.Commit(&d.th, &d.taux)

	rhs, err := curve.MultiExp(
		[]bn254.G1Affine{*v, *curve.G(), d.t1, d.t2},
		[]fr.Element{z2, delta, *x, x2},
	)
	if err != nil {
		return false
	}
	return lhs.Equal(&rhs)
}

// innerProductHolds checks the folded inner-product relation in a single
// multi-exponentiation that must sum to the identity.
func innerProductHolds(d *decodedProof, x, y, z, w *fr.Element, u, uInv *[Rounds]fr.Element) bool {
	gv, hv := curve.VectorGenerators(Bits)

	// s[i] is the folding coefficient of G_i
	s := make([]fr.Element, Bits)
	for i := 0; i < Bits; i++ {
		s[i].SetOne()
		for j := 0; j < Rounds; j++ {
			if i>>(Rounds-1-j)&1 == 1 {
				s[i].Mul(&s[i], &u[j])
			} else {
				s[i].Mul(&s[i], &uInv[j])
			}
		}
	}
	sInv := fr.BatchInvert(s)

	var yInv, z2 fr.Element
	yInv.Inverse(y)
	yInvN := curve.Powers(&yInv, Bits)
	z2.Square(z)
	two := curve.ScalarFromUint64(2)
	twoN := curve.Powers(&two, Bits)

	n := 2 + 2*Bits + 2 + 2*Rounds
	points := make([]bn254.G1Affine, 0, n)
	scalars := make([]fr.Element, 0, n)
	add := func(p *bn254.G1Affine, k fr.Element) {
		points = append(points, *p)
		scalars = append(scalars, k)
	}

	var one fr.Element
	one.SetOne()
	add(&d.a, one)
	add(&d.s, *x)

	for i := 0; i < Bits; i++ {
		// -z - a·s_i
		var k fr.Element
		k.Mul(&d.ipaA, &s[i])
		k.Add(&k, z)
		k.Neg(&k)
		add(&gv[i], k)
	}
	for i := 0; i < Bits; i++ {
		// (z + z²·2^i·y^-i) - b·s_i⁻¹·y^-i
		var k, tmp fr.Element
		k.Mul(&z2, &twoN[i])
		k.Mul(&k, &yInvN[i])
		k.Add(&k, z)
		tmp.Mul(&d.ipaB, &sInv[i])
		tmp.Mul(&tmp, &yInvN[i])
		k.Sub(&k, &tmp)
		add(&hv[i], k)
	}

	var negMu fr.Element
	negMu.Neg(&d.mu)
	add(curve.H(), negMu)

	// (t̂ - a·b)·w·Q
	var kq, ab fr.Element
	ab.Mul(&d.ipaA, &d.ipaB)
	kq.Sub(&d.th, &ab)
	kq.Mul(&kq, w)
	add(curve.Q(), kq)

	for j := 0; j < Rounds; j++ {
		var u2, uInv2 fr.Element
		u2.Square(&u[j])
		uInv2.Square(&uInv[j])
		add(&d.l[j], u2)
		add(&d.r[j], uInv2)
	}

	sum, err := curve.MultiExp(points, scalars)
	if err != nil {
		return false
	}
	return sum.IsInfinity()
}

// VerifyBatch verifies commitments[i] against proofs[i]. It returns the index
// of the first failing entry, or -1 when every proof holds. Mismatched lengths
// fail at the first missing index.
func VerifyBatch(commitments []pedersen.Commitment, proofs []Proof) int {
	n := len(commitments)
	if len(proofs) < n {
		n = len(proofs)
	}
	for i := 0; i < n; i++ {
		if !Verify(commitments[i], &proofs[i]) {
			return i
		}
	}
	if len(commitments) != len(proofs) {
		return n
	}
	return -1
}
