// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package elgamal

import (
	"fmt"
	"math"

	"github.com/consensys/gnark-crypto/ecc/bn254"

	"github.com/luxfi/confidential/cache"
	"github.com/luxfi/confidential/curve"
)

const (
	// MaxBabySteps bounds the baby-step table. Larger search ranges take
	// proportionally more giant steps instead.
	MaxBabySteps = 1 << 16

	// DefaultTableCacheSize is the number of baby-step tables a Decryptor keeps
	DefaultTableCacheSize = 8
)

// babyTable maps j·G to j for j < len
type babyTable map[bn254.G1Affine]uint64

// Decryptor decrypts ciphertexts, keeping recently used baby-step tables
// between calls. It is safe for concurrent use.
type Decryptor struct {
	tables *cache.FIFOCache[uint64, babyTable]
}

// NewDecryptor returns a Decryptor caching up to tableCacheSize tables
func NewDecryptor(tableCacheSize int) *Decryptor {
	return &Decryptor{tables: cache.NewFIFOCache[uint64, babyTable](tableCacheSize)}
}

// Decrypt recovers the amount of ct, searching [0, upperBound]. Amounts
// outside the bound, and ciphertexts for a different key, fail with
// ErrDecryptionOutOfRange.
func (d *Decryptor) Decrypt(ct Ciphertext, sk SecretKey, upperBound uint64) (uint64, error) {
	xG, err := amountPoint(ct, sk)
	if err != nil {
		return 0, err
	}
	table, err := d.tables.Get(stepSize(upperBound), buildTable)
	if err != nil {
		return 0, err
	}
	return discreteLog(&xG, table, upperBound)
}

// Decrypt is Decryptor.Decrypt without table reuse
func Decrypt(ct Ciphertext, sk SecretKey, upperBound uint64) (uint64, error) {
	xG, err := amountPoint(ct, sk)
	if err != nil {
		return 0, err
	}
	table, err := buildTable(stepSize(upperBound))
	if err != nil {
		return 0, err
	}
	return discreteLog(&xG, table, upperBound)
}

// amountPoint returns C - s·D = amount·G
func amountPoint(ct Ciphertext, sk SecretKey) (bn254.G1Affine, error) {
	c, d, err := ct.Points()
	if err != nil {
		return c, err
	}
	sd := curve.ScalarMul(&d, &sk.s)
	return curve.Sub(&c, &sd), nil
}

func buildTable(m uint64) (babyTable, error) {
	jac := make([]bn254.G1Jac, m)
	var g bn254.G1Jac
	g.FromAffine(curve.G())
	// jac[0] is the identity
	for j := uint64(1); j < m; j++ {
		jac[j].Set(&jac[j-1])
		jac[j].AddAssign(&g)
	}
	affine := bn254.BatchJacobianToAffineG1(jac)
	t := make(babyTable, m)
	for j := 1; j < len(affine); j++ {
		t[affine[j]] = uint64(j)
	}
	t[bn254.G1Affine{}] = 0
	return t, nil
}

// stepSize picks m with m² > upperBound, capped at MaxBabySteps
func stepSize(upperBound uint64) uint64 {
	m := uint64(math.Sqrt(float64(upperBound)))
	if m > MaxBabySteps {
		return MaxBabySteps
	}
	for m > 1 && m*m > upperBound {
		m--
	}
	for m < MaxBabySteps && m*m <= upperBound {
		m++
	}
	if m < 1 {
		m = 1
	}
	return m
}

// discreteLog finds x ∈ [0, upperBound] with x·G = target
func discreteLog(target *bn254.G1Affine, table babyTable, upperBound uint64) (uint64, error) {
	m := uint64(len(table))

	mScalar := curve.ScalarFromUint64(m)
	mG := curve.ScalarMul(curve.G(), &mScalar)

	giants := upperBound/m + 1
	cur := *target
	for i := uint64(0); i < giants; i++ {
		if j, ok := table[cur]; ok {
			if x := i*m + j; x <= upperBound {
				return x, nil
			}
			break
		}
		cur = curve.Sub(&cur, &mG)
	}
	return 0, fmt.Errorf("%w: no amount in [0, %d]", ErrDecryptionOutOfRange, upperBound)
}
