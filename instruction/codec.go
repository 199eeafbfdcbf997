// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package instruction

import (
	"encoding/binary"
	"fmt"
)

type encoder struct {
	buf []byte
}

func newEncoder(d Discriminator, size int) *encoder {
	buf := make([]byte, 1, 1+size)
	buf[0] = byte(d)
	return &encoder{buf: buf}
}

func (e *encoder) put(b []byte) {
	e.buf = append(e.buf, b...)
}

func (e *encoder) putUint8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *encoder) putUint16(v uint16) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}

func (e *encoder) putUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *encoder) putUint64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

// decoder walks a buffer, failing once on the first short read
type decoder struct {
	buf []byte
	off int
	err error
}

// newDecoder checks the discriminator and positions after it
func newDecoder(data []byte, want Discriminator) *decoder {
	d := &decoder{buf: data}
	if len(data) == 0 {
		d.err = fmt.Errorf("%w: empty instruction data", ErrMalformedProofPayload)
		return d
	}
	if got := Discriminator(data[0]); got != want {
		d.err = fmt.Errorf("%w: expected discriminator %s, got %s", ErrMalformedProofPayload, want, got)
		return d
	}
	d.off = 1
	return d
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.off
}

func (d *decoder) take(n int, field string) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.remaining() < n {
		d.err = fmt.Errorf("%w: truncated %s: need %d bytes, have %d", ErrMalformedProofPayload, field, n, d.remaining())
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) read(dst []byte, field string) {
	if b := d.take(len(dst), field); b != nil {
		copy(dst, b)
	}
}

func (d *decoder) uint8(field string) uint8 {
	if b := d.take(1, field); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) uint16(field string) uint16 {
	if b := d.take(2, field); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

// bytes copies n bytes into a fresh slice
func (d *decoder) bytes(n int, field string) []byte {
	if b := d.take(n, field); b != nil {
		return append([]byte(nil), b...)
	}
	return nil
}

// finish fails if any bytes are left over
func (d *decoder) finish() error {
	if d.err != nil {
		return d.err
	}
	if r := d.remaining(); r != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformedProofPayload, r)
	}
	return nil
}
