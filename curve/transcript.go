// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package curve

import (
	"encoding/binary"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/gtank/merlin"
)

// Transcript is a Fiat-Shamir transcript producing scalar challenges
type Transcript struct {
	t *merlin.Transcript
}

// NewTranscript starts a transcript bound to a protocol label
func NewTranscript(label string) *Transcript {
	return &Transcript{t: merlin.NewTranscript(label)}
}

// AppendMessage absorbs raw bytes
func (t *Transcript) AppendMessage(label string, msg []byte) {
	t.t.AppendMessage([]byte(label), msg)
}

// AppendUint64 absorbs a little-endian integer
func (t *Transcript) AppendUint64(label string, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	t.AppendMessage(label, b[:])
}

// AppendPoint absorbs a compressed point
func (t *Transcript) AppendPoint(label string, p *bn254.G1Affine) {
	b := p.Bytes()
	t.AppendMessage(label, b[:])
}

// AppendScalar absorbs a scalar
func (t *Transcript) AppendScalar(label string, s *fr.Element) {
	b := s.Bytes()
	t.AppendMessage(label, b[:])
}

// Challenge squeezes a scalar. The result is never zero.
func (t *Transcript) Challenge(label string) fr.Element {
	var c fr.Element
	for c.IsZero() {
		c.SetBytes(t.t.ExtractBytes([]byte(label), wideScalarSize))
	}
	return c
}
