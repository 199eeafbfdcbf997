// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package curve

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254"
)

const (
	// RangeBits is the bit length proven by range proofs
	RangeBits = 64

	generatorDST = "LUX_CONFIDENTIAL_BN254G1_XMD:SHA-256_SVDW_RO_"
)

type generatorSet struct {
	g  bn254.G1Affine
	h  bn254.G1Affine
	q  bn254.G1Affine
	gv []bn254.G1Affine
	hv []bn254.G1Affine
}

var loadGenerators = sync.OnceValue(func() *generatorSet {
	_, _, g1, _ := bn254.Generators()
	gs := &generatorSet{
		g:  g1,
		h:  mustHashToG1([]byte("pedersen-blinding-base")),
		q:  mustHashToG1([]byte("inner-product-base")),
		gv: make([]bn254.G1Affine, RangeBits),
		hv: make([]bn254.G1Affine, RangeBits),
	}
	for i := 0; i < RangeBits; i++ {
		gs.gv[i] = mustHashToG1(indexedLabel("bulletproof-g", i))
		gs.hv[i] = mustHashToG1(indexedLabel("bulletproof-h", i))
	}
	return gs
})

func indexedLabel(prefix string, i int) []byte {
	b := make([]byte, len(prefix)+4)
	copy(b, prefix)
	binary.LittleEndian.PutUint32(b[len(prefix):], uint32(i))
	return b
}

func mustHashToG1(msg []byte) bn254.G1Affine {
	p, err := bn254.HashToG1(msg, []byte(generatorDST))
	if err != nil {
		panic(fmt.Sprintf("hash to curve failed for %q: %v", msg, err))
	}
	return p
}

// G is the value base
func G() *bn254.G1Affine {
	return &loadGenerators().g
}

// H is the blinding base. Nobody knows log_G(H).
func H() *bn254.G1Affine {
	return &loadGenerators().h
}

// Q is the inner-product argument base
func Q() *bn254.G1Affine {
	return &loadGenerators().q
}

// VectorGenerators returns copies of the first n bulletproof generator pairs
func VectorGenerators(n int) ([]bn254.G1Affine, []bn254.G1Affine) {
	gs := loadGenerators()
	if n > RangeBits {
		n = RangeBits
	}
	gv := make([]bn254.G1Affine, n)
	hv := make([]bn254.G1Affine, n)
	copy(gv, gs.gv[:n])
	copy(hv, gs.hv[:n])
	return gv, hv
}
