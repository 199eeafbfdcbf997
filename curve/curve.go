// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package curve provides the prime-order group used by every confidential value
// primitive: BN254 G1 points in 32-byte compressed form and scalars of its
// 32-byte scalar field.
package curve

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

const (
	// PointSize is the length of a compressed G1 point
	PointSize = bn254.SizeOfG1AffineCompressed

	// ScalarSize is the length of a serialized scalar
	ScalarSize = fr.Bytes

	// wideScalarSize is the number of random bytes reduced into one scalar,
	// keeping the modular bias negligible
	wideScalarSize = 64
)

var (
	// ErrRandomnessUnavailable is returned when the secure random source fails
	ErrRandomnessUnavailable = errors.New("secure randomness unavailable")

	// ErrInvalidPoint is returned when bytes do not encode a valid group element
	ErrInvalidPoint = errors.New("invalid curve point")

	// ErrInvalidScalar is returned when bytes do not encode a canonical scalar
	ErrInvalidScalar = errors.New("invalid scalar")
)

// Point is a compressed group element
type Point [PointSize]byte

// Scalar is a canonical big-endian scalar field element
type Scalar [ScalarSize]byte

// RandomScalar samples a uniformly random nonzero scalar from r.
// A nil reader selects crypto/rand.
func RandomScalar(r io.Reader) (fr.Element, error) {
	if r == nil {
		r = rand.Reader
	}
	var (
		buf [wideScalarSize]byte
		s   fr.Element
	)
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return fr.Element{}, fmt.Errorf("%w: %v", ErrRandomnessUnavailable, err)
		}
		s.SetBytes(buf[:])
		if !s.IsZero() {
			return s, nil
		}
	}
}

// RandomScalars samples n random scalars
func RandomScalars(r io.Reader, n int) ([]fr.Element, error) {
	out := make([]fr.Element, n)
	for i := range out {
		s, err := RandomScalar(r)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

// ScalarFromUint64 lifts an amount into the scalar field
func ScalarFromUint64(v uint64) fr.Element {
	var s fr.Element
	s.SetUint64(v)
	return s
}

// EncodeScalar serializes a scalar
func EncodeScalar(s *fr.Element) Scalar {
	return Scalar(s.Bytes())
}

// DecodeScalar parses a canonical 32-byte scalar
func DecodeScalar(b []byte) (fr.Element, error) {
	var s fr.Element
	if len(b) != ScalarSize {
		return s, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidScalar, ScalarSize, len(b))
	}
	if err := s.SetBytesCanonical(b); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidScalar, err)
	}
	return s, nil
}

// EncodePoint compresses a point
func EncodePoint(p *bn254.G1Affine) Point {
	return Point(p.Bytes())
}

// DecodePoint decompresses a 32-byte point, checking curve and subgroup membership
func DecodePoint(b []byte) (bn254.G1Affine, error) {
	var p bn254.G1Affine
	if len(b) != PointSize {
		return p, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPoint, PointSize, len(b))
	}
	if _, err := p.SetBytes(b); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}
	return p, nil
}

// Decode returns the group element of a compressed point
func (p Point) Decode() (bn254.G1Affine, error) {
	return DecodePoint(p[:])
}

// Decode returns the field element of a serialized scalar
func (s Scalar) Decode() (fr.Element, error) {
	return DecodeScalar(s[:])
}

// ScalarMul returns s·p
func ScalarMul(p *bn254.G1Affine, s *fr.Element) bn254.G1Affine {
	var (
		k   big.Int
		res bn254.G1Affine
	)
	s.BigInt(&k)
	res.ScalarMultiplication(p, &k)
	return res
}

// Add returns a+b
func Add(a, b *bn254.G1Affine) bn254.G1Affine {
	var res bn254.G1Affine
	res.Add(a, b)
	return res
}

// Sub returns a-b
func Sub(a, b *bn254.G1Affine) bn254.G1Affine {
	var res bn254.G1Affine
	res.Sub(a, b)
	return res
}

// Commit returns a·G + b·H over the fixed Pedersen bases
func Commit(a, b *fr.Element) bn254.G1Affine {
	aG := ScalarMul(G(), a)
	bH := ScalarMul(H(), b)
	return Add(&aG, &bH)
}

// MultiExp returns Σ scalars[i]·points[i]
func MultiExp(points []bn254.G1Affine, scalars []fr.Element) (bn254.G1Affine, error) {
	var res bn254.G1Affine
	if len(points) != len(scalars) {
		return res, fmt.Errorf("multi-exponentiation length mismatch: %d points, %d scalars", len(points), len(scalars))
	}
	if len(points) == 0 {
		return res, nil
	}
	if _, err := res.MultiExp(points, scalars, ecc.MultiExpConfig{}); err != nil {
		return res, err
	}
	return res, nil
}

// InnerProduct returns Σ a[i]·b[i]
func InnerProduct(a, b []fr.Element) fr.Element {
	var acc, t fr.Element
	for i := range a {
		t.Mul(&a[i], &b[i])
		acc.Add(&acc, &t)
	}
	return acc
}

// Powers returns [1, x, x², …, x^(n-1)]
func Powers(x *fr.Element, n int) []fr.Element {
	out := make([]fr.Element, n)
	if n == 0 {
		return out
	}
	out[0].SetOne()
	for i := 1; i < n; i++ {
		out[i].Mul(&out[i-1], x)
	}
	return out
}
