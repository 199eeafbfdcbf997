// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package elgamal

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/luxfi/confidential/curve"
)

const (
	// PublicKeyLen is the length of a serialized public key
	PublicKeyLen = curve.PointSize

	// SecretKeyLen is the length of a serialized secret key
	SecretKeyLen = curve.ScalarSize

	redacted = "SecretKey(redacted)"
)

// PublicKey is the point P = s⁻¹·H
type PublicKey curve.Point

// Point decodes the public key
func (pk PublicKey) Point() (bn254.G1Affine, error) {
	return curve.DecodePoint(pk[:])
}

// Bytes returns the serialized key
func (pk PublicKey) Bytes() []byte {
	return pk[:]
}

// ParsePublicKey decodes and validates a public key
func ParsePublicKey(b []byte) (PublicKey, error) {
	p, err := curve.DecodePoint(b)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: public key: %v", ErrInvalidKey, err)
	}
	if p.IsInfinity() {
		return PublicKey{}, fmt.Errorf("%w: public key is the identity", ErrInvalidKey)
	}
	return PublicKey(curve.EncodePoint(&p)), nil
}

// SecretKey is the decryption scalar. It never appears in logs or formatted output.
type SecretKey struct {
	s fr.Element
}

// ParseSecretKey decodes a secret key produced by Bytes
func ParseSecretKey(b []byte) (SecretKey, error) {
	s, err := curve.DecodeScalar(b)
	if err != nil {
		return SecretKey{}, fmt.Errorf("%w: secret key: %v", ErrInvalidKey, err)
	}
	if s.IsZero() {
		return SecretKey{}, fmt.Errorf("%w: secret key is zero", ErrInvalidKey)
	}
	return SecretKey{s: s}, nil
}

// Bytes exports the secret scalar for custody
func (sk SecretKey) Bytes() []byte {
	b := sk.s.Bytes()
	return b[:]
}

// PublicKey derives the matching public key
func (sk SecretKey) PublicKey() PublicKey {
	var inv fr.Element
	inv.Inverse(&sk.s)
	p := curve.ScalarMul(curve.H(), &inv)
	return PublicKey(curve.EncodePoint(&p))
}

func (SecretKey) String() string   { return redacted }
func (SecretKey) GoString() string { return redacted }

// Keypair is a twisted ElGamal key pair
type Keypair struct {
	PublicKey PublicKey
	SecretKey SecretKey
}

// GenerateKeypair draws a key pair from crypto/rand
func GenerateKeypair() (Keypair, error) {
	return GenerateKeypairFrom(rand.Reader)
}

// GenerateKeypairFrom draws a key pair from r
func GenerateKeypairFrom(r io.Reader) (Keypair, error) {
	s, err := curve.RandomScalar(r)
	if err != nil {
		return Keypair{}, err
	}
	sk := SecretKey{s: s}
	return Keypair{PublicKey: sk.PublicKey(), SecretKey: sk}, nil
}
