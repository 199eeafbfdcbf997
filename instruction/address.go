// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package instruction

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"github.com/luxfi/confidential/cache"
)

// AddressLen is the length of a ledger account address
const AddressLen = 32

const (
	contextSeed  = "proof-context"
	derivedTrail = "ProgramDerivedAddress"
)

var (
	// SystemProgramID owns account creation
	SystemProgramID = Address{}

	// DefaultVerifierProgramID is the proof verifier program
	DefaultVerifierProgramID = mustParseAddress("ZkE1Gama1Proof11111111111111111111111111111")
)

// Address is a 32-byte account key, printed in base58
type Address [AddressLen]byte

// ParseAddress decodes a base58 address
func ParseAddress(s string) (Address, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(b) != AddressLen {
		return Address{}, fmt.Errorf("%w: decoded to %d bytes", ErrInvalidAddress, len(b))
	}
	return Address(b), nil
}

func mustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string {
	return base58.Encode(a[:])
}

// MarshalText encodes the address as base58
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes a base58 address
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// onCurve reports whether b is a valid ed25519 point encoding. Derived
// addresses must not be, so nobody holds a private key for them.
func onCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// DeriveContextAddress returns the proof-context address for
// (authority, proofType, nonce) under programID, and the bump that made it
// fall off the ed25519 curve. It is pure.
func DeriveContextAddress(programID, authority Address, proofType ProofType, nonce uint64) (Address, uint8, error) {
	if _, err := proofType.contextDataLen(); err != nil {
		return Address{}, 0, err
	}
	var nonceLE [8]byte
	binary.LittleEndian.PutUint64(nonceLE[:], nonce)

	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		h.Write(authority[:])
		h.Write([]byte(contextSeed))
		h.Write([]byte{byte(proofType)})
		h.Write(nonceLE[:])
		h.Write([]byte{byte(bump)})
		h.Write(programID[:])
		h.Write([]byte(derivedTrail))

		var candidate Address
		h.Sum(candidate[:0])
		if !onCurve(candidate[:]) {
			return candidate, uint8(bump), nil
		}
	}
	return Address{}, 0, ErrNoViableBump
}

type contextKey struct {
	programID Address
	authority Address
	proofType ProofType
	nonce     uint64
}

type derivedAddress struct {
	address Address
	bump    uint8
}

// AddressDeriver memoises DeriveContextAddress
type AddressDeriver struct {
	cache *cache.LRUCache[contextKey, derivedAddress]
}

// NewAddressDeriver keeps up to size derived addresses
func NewAddressDeriver(size int) (*AddressDeriver, error) {
	c, err := cache.NewLRUCache[contextKey, derivedAddress](size)
	if err != nil {
		return nil, err
	}
	return &AddressDeriver{cache: c}, nil
}

// Derive is DeriveContextAddress backed by the cache
func (a *AddressDeriver) Derive(programID, authority Address, proofType ProofType, nonce uint64) (Address, uint8, error) {
	key := contextKey{programID: programID, authority: authority, proofType: proofType, nonce: nonce}
	d, err := a.cache.Get(key, func(k contextKey) (derivedAddress, error) {
		addr, bump, err := DeriveContextAddress(k.programID, k.authority, k.proofType, k.nonce)
		return derivedAddress{address: addr, bump: bump}, err
	}, false)
	if err != nil {
		return Address{}, 0, err
	}
	return d.address, d.bump, nil
}
