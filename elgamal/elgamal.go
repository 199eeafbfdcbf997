// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package elgamal implements twisted ElGamal encryption of u64 amounts.
//
// A ciphertext is the pair (C, D) with C = x·G + r·H and D = r·P, where
// P = s⁻¹·H is the recipient's public key. C is a Pedersen commitment to x,
// so range and equality proofs can be built directly on it. Ciphertexts are
// additively homomorphic.
package elgamal

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/luxfi/confidential/curve"
)

// CiphertextLen is the length of a serialized ciphertext
const CiphertextLen = 2 * curve.PointSize

var (
	ErrInvalidKey           = errors.New("invalid elgamal key")
	ErrInvalidCiphertext    = errors.New("invalid ciphertext")
	ErrDecryptionOutOfRange = errors.New("decrypted amount outside search range")

	// ErrRandomnessUnavailable aliases the curve sentinel so callers need one import
	ErrRandomnessUnavailable = curve.ErrRandomnessUnavailable
)

// Ciphertext is an immutable twisted ElGamal ciphertext
type Ciphertext struct {
	Commitment curve.Point
	Handle     curve.Point
}

// Bytes returns commitment ‖ handle
func (ct Ciphertext) Bytes() [CiphertextLen]byte {
	var b [CiphertextLen]byte
	copy(b[:curve.PointSize], ct.Commitment[:])
	copy(b[curve.PointSize:], ct.Handle[:])
	return b
}

// Points decodes both halves of the ciphertext
func (ct Ciphertext) Points() (bn254.G1Affine, bn254.G1Affine, error) {
	c, err := ct.Commitment.Decode()
	if err != nil {
		return c, c, fmt.Errorf("%w: commitment: %v", ErrInvalidCiphertext, err)
	}
	d, err := ct.Handle.Decode()
	if err != nil {
		return c, d, fmt.Errorf("%w: handle: %v", ErrInvalidCiphertext, err)
	}
	return c, d, nil
}

// ParseCiphertext decodes a 64-byte ciphertext
func ParseCiphertext(b []byte) (Ciphertext, error) {
	if len(b) != CiphertextLen {
		return Ciphertext{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidCiphertext, CiphertextLen, len(b))
	}
	var ct Ciphertext
	copy(ct.Commitment[:], b[:curve.PointSize])
	copy(ct.Handle[:], b[curve.PointSize:])
	if _, _, err := ct.Points(); err != nil {
		return Ciphertext{}, err
	}
	return ct, nil
}

// Opening is the encryption randomness r
type Opening struct {
	r fr.Element
}

// NewOpening wraps a known randomness scalar
func NewOpening(r fr.Element) Opening {
	return Opening{r: r}
}

// RandomOpening samples fresh randomness from r, or crypto/rand when nil
func RandomOpening(r io.Reader) (Opening, error) {
	if r == nil {
		r = rand.Reader
	}
	s, err := curve.RandomScalar(r)
	if err != nil {
		return Opening{}, err
	}
	return Opening{r: s}, nil
}

// Scalar returns the randomness
func (o Opening) Scalar() fr.Element {
	return o.r
}

func (Opening) String() string { return "Opening(redacted)" }

// Encrypt encrypts amount to pk under fresh randomness
func Encrypt(amount uint64, pk PublicKey) (Ciphertext, Opening, error) {
	return EncryptFrom(rand.Reader, amount, pk)
}

// EncryptFrom is Encrypt with an injected random source
func EncryptFrom(r io.Reader, amount uint64, pk PublicKey) (Ciphertext, Opening, error) {
	o, err := RandomOpening(r)
	if err != nil {
		return Ciphertext{}, Opening{}, err
	}
	ct, err := EncryptWithOpening(amount, pk, o)
	if err != nil {
		return Ciphertext{}, Opening{}, err
	}
	return ct, o, nil
}

// EncryptWithOpening deterministically encrypts amount with the given randomness
func EncryptWithOpening(amount uint64, pk PublicKey, o Opening) (Ciphertext, error) {
	p, err := pk.Point()
	if err != nil {
		return Ciphertext{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	x := curve.ScalarFromUint64(amount)
	c := curve.Commit(&x, &o.r)
	d := curve.ScalarMul(&p, &o.r)
	return Ciphertext{
		Commitment: curve.EncodePoint(&c),
		Handle:     curve.EncodePoint(&d),
	}, nil
}
