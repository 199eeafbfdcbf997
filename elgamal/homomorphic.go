// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package elgamal

import (
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/luxfi/confidential/curve"
)

type pointOp func(a, b *bn254.G1Affine) bn254.G1Affine

func combine(a, b Ciphertext, op pointOp) (Ciphertext, error) {
	ac, ad, err := a.Points()
	if err != nil {
		return Ciphertext{}, err
	}
	bc, bd, err := b.Points()
	if err != nil {
		return Ciphertext{}, err
	}
	c := op(&ac, &bc)
	d := op(&ad, &bd)
	return Ciphertext{
		Commitment: curve.EncodePoint(&c),
		Handle:     curve.EncodePoint(&d),
	}, nil
}

// AddCiphertexts returns an encryption of the sum of both amounts.
// Both inputs must be under the same public key.
func AddCiphertexts(a, b Ciphertext) (Ciphertext, error) {
	return combine(a, b, curve.Add)
}

// SubCiphertexts returns an encryption of a's amount minus b's amount
func SubCiphertexts(a, b Ciphertext) (Ciphertext, error) {
	return combine(a, b, curve.Sub)
}

func shift(ct Ciphertext, amount uint64, op pointOp) (Ciphertext, error) {
	c, _, err := ct.Points()
	if err != nil {
		return Ciphertext{}, err
	}
	x := curve.ScalarFromUint64(amount)
	xG := curve.ScalarMul(curve.G(), &x)
	shifted := op(&c, &xG)
	return Ciphertext{
		Commitment: curve.EncodePoint(&shifted),
		Handle:     ct.Handle,
	}, nil
}

// AddAmount adds a public amount. Only the commitment changes.
func AddAmount(ct Ciphertext, amount uint64) (Ciphertext, error) {
	return shift(ct, amount, curve.Add)
}

// SubAmount subtracts a public amount
func SubAmount(ct Ciphertext, amount uint64) (Ciphertext, error) {
	return shift(ct, amount, curve.Sub)
}

// AddOpenings returns the randomness of AddCiphertexts(a, b)
func AddOpenings(a, b Opening) Opening {
	var r fr.Element
	r.Add(&a.r, &b.r)
	return Opening{r: r}
}

// SubOpenings returns the randomness of SubCiphertexts(a, b)
func SubOpenings(a, b Opening) Opening {
	var r fr.Element
	r.Sub(&a.r, &b.r)
	return Opening{r: r}
}
