// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package ion

import (
	"encoding/binary"
	"io"
	"math"
	"math/bits"
)

// Buffer buffers encoded ion scalars.
//
// The contents of Buffer can be
// inspected directly with Buffer.Bytes()
// or written to an io.Writer with
// Buffer.WriteTo.
//
// The zero value of Buffer is ready to use.
type Buffer struct {
	buf []byte
}

// Set sets the buffer used by 'b'.
// Subsequent calls to Write* functions
// on 'b' will append to the given buffer.
func (b *Buffer) Set(p []byte) {
	b.buf = p
}

// Bytes returns the encoded bytes.
// The returned slice aliases the buffer
// and is only valid until the next call
// to Reset or a Write* method.
func (b *Buffer) Bytes() []byte { return b.buf }

// Reset resets the buffer to zero length
// while retaining its allocated capacity.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
}

// Size returns the number of bytes
// that have been written to the buffer.
func (b *Buffer) Size() int { return len(b.buf) }

// uvsize returns the encoded size
// of value as a uvarint
func uvsize(value uint) int {
	// oring in 1 does not change the result
	// except for the number 0, for which
	// bits.Len must return 1
	return (bits.Len(value|1) + 6) / 7
}

func (b *Buffer) grow(n int) []byte {
	off := len(b.buf)
	if cap(b.buf)-off >= n {
		b.buf = b.buf[:off+n]
	} else {
		nb := make([]byte, off+n, n+(2*off))
		copy(nb, b.buf)
		b.buf = nb
	}
	return b.buf[off:]
}

// write an integer as a uvarint;
// the final byte has its high bit set
func (b *Buffer) putuv(s uint) {
	dst := b.grow(uvsize(s))
	for i := len(dst) - 1; i >= 0; i-- {
		dst[i] = byte(s & 0x7f)
		s >>= 7
	}
	dst[len(dst)-1] |= 0x80
}

// beginSized writes the descriptor for
// an object of type t with a body of size bytes.
func (b *Buffer) beginSized(t Type, size int) {
	if size < 14 {
		b.buf = append(b.buf, byte(t<<4)|byte(size))
		return
	}
	b.buf = append(b.buf, byte(t<<4)|0xe)
	b.putuv(uint(size))
}

// WriteBool writes a bool into the buffer.
func (b *Buffer) WriteBool(n bool) {
	bt := byte(0x10)
	if n {
		bt++
	}
	b.buf = append(b.buf, bt)
}

// WriteInt writes a signed integer to the buffer.
// Non-negative values are written as
// unsigned integers.
func (b *Buffer) WriteInt(i int64) {
	if i >= 0 {
		b.WriteUint(uint64(i))
		return
	}
	b.writeint(uint64(-i), 0x30)
}

// WriteUint writes an unsigned integer to the buffer.
func (b *Buffer) WriteUint(u uint64) {
	b.writeint(u, 0x20)
}

func (b *Buffer) writeint(mag uint64, pre byte) {
	// size of the magnitude in bytes
	size := (bits.Len64(mag) + 7) >> 3
	b.buf = append(b.buf, pre|byte(size))
	mag = bits.ReverseBytes64(mag)
	mag >>= (8 - size) * 8
	for size != 0 {
		b.buf = append(b.buf, byte(mag))
		mag >>= 8
		size--
	}
}

// WriteFloat64 writes a float64 to the buffer.
// Positive zero is encoded as the 1-byte zero float.
func (b *Buffer) WriteFloat64(f float64) {
	if f == 0.0 && !math.Signbit(f) {
		b.buf = append(b.buf, 0x40)
		return
	}
	dst := b.grow(9)
	dst[0] = 0x48
	binary.BigEndian.PutUint64(dst[1:], math.Float64bits(f))
}

// WriteString writes a string as an ion string
// into the buffer.
func (b *Buffer) WriteString(s string) {
	b.beginSized(StringType, len(s))
	copy(b.grow(len(s)), s)
}

// WriteTo implements io.WriterTo
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	i, err := w.Write(b.buf)
	return int64(i), err
}
