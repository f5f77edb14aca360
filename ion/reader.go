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
	"errors"
	"fmt"
	"math"
)

// ErrTruncated is returned (possibly wrapped)
// from read operations when the buffer ends
// before the object that it describes.
var ErrTruncated = errors.New("ion: truncated object")

// TypeError is the type of the error
// returned from read operations that
// find an object of a different type
// than the one requested.
type TypeError struct {
	Wanted, Found Type
	Func          string
}

func (t *TypeError) Error() string {
	return fmt.Sprintf("ion.%s: found type %s, wanted type %s", t.Func, t.Found, t.Wanted)
}

func bad(got, want Type, fn string) error {
	return &TypeError{Wanted: want, Found: got, Func: fn}
}

func truncated(fn string) error {
	return fmt.Errorf("ion.%s: %w", fn, ErrTruncated)
}

// TypeOf returns the type of the
// next object in the buffer.
// An empty buffer has ReservedType.
func TypeOf(msg []byte) Type {
	if len(msg) == 0 {
		return ReservedType
	}
	return Type(msg[0] >> 4)
}

// SizeOf returns the size of the next
// ion object, including the beginning
// TLV descriptor bytes, or -1 if the
// descriptor itself is incomplete.
//
// The returned size may exceed len(msg)
// when the object is truncated.
func SizeOf(msg []byte) int {
	if len(msg) == 0 {
		return -1
	}
	if msg[0] == 0x11 {
		return 1
	}
	lo := msg[0] & 0x0f
	switch lo {
	case 0x0f:
		return 1
	case 0x0e:
		out := 0
		rest := msg[1:]
		if len(rest) > 8 {
			// guard against overflow
			rest = rest[:8]
		}
		for i := range rest {
			out <<= 7
			out += int(rest[i] & 0x7f)
			if rest[i]&0x80 != 0 {
				return out + i + 2
			}
		}
		return -1 // unterminated length
	default:
		return int(lo) + 1
	}
}

// Contents parses the TLV descriptor
// at the beginning of 'msg' and returns
// the bytes that correspond to the
// non-descriptor bytes of the object,
// plus the remaining bytes in the buffer
// as the second return value.
// The returned []byte will be nil if
// the encoded object size does not
// fit into 'msg'. (Note that a returned
// slice that is zero-length but non-nil
// means something different than a nil slice.)
func Contents(msg []byte) ([]byte, []byte) {
	if len(msg) == 0 {
		return nil, msg
	}
	if msg[0] == 0x11 {
		return msg[:0], msg[1:]
	}
	lo := msg[0] & 0x0f
	if lo == 0x0f {
		return msg[:0], msg[1:]
	}
	if lo < 0x0e {
		if len(msg) < int(lo)+1 {
			return nil, msg
		}
		return msg[1 : 1+lo], msg[1+lo:]
	}
	rest := msg[1:]
	if len(rest) > 8 {
		rest = rest[:8]
	}
	out := 0
	for i := range rest {
		out <<= 7
		out += int(rest[i] & 0x7f)
		if rest[i]&0x80 != 0 {
			body := msg[2+i:]
			if out < 0 || len(body) < out {
				return nil, msg
			}
			return body[:out], body[out:]
		}
	}
	return nil, msg
}

// ReadBool reads a bool from msg
// and returns the subsequent message bytes.
func ReadBool(msg []byte) (bool, []byte, error) {
	if len(msg) == 0 {
		return false, nil, truncated("ReadBool")
	}
	if t := TypeOf(msg); t != BoolType {
		return false, nil, bad(t, BoolType, "ReadBool")
	}
	switch msg[0] & 0x0f {
	case 0:
		return false, msg[1:], nil
	case 1:
		return true, msg[1:], nil
	default:
		return false, nil, fmt.Errorf("ion.ReadBool: invalid descriptor %#x", msg[0])
	}
}

func readmag(msg []byte) uint64 {
	u := uint64(0)
	for i := range msg {
		u <<= 8
		u |= uint64(msg[i])
	}
	return u
}

// ReadInt reads an ion integer as an int64
// and returns the subsequent message bytes.
func ReadInt(msg []byte) (int64, []byte, error) {
	if len(msg) == 0 {
		return 0, nil, truncated("ReadInt")
	}
	t := TypeOf(msg)
	if !t.Integer() {
		return 0, nil, bad(t, IntType, "ReadInt")
	}
	body, rest := Contents(msg)
	if body == nil {
		return 0, nil, truncated("ReadInt")
	}
	if len(body) > 8 {
		return 0, nil, fmt.Errorf("ion.ReadInt: integer of %d bytes out of range", len(body))
	}
	mag := readmag(body)
	max := uint64(math.MaxInt64)
	if t == IntType {
		max++
	}
	if mag > max {
		return 0, nil, fmt.Errorf("ion.ReadInt: magnitude %d out of range for int64", mag)
	}
	v := int64(mag)
	if t == IntType {
		v = -v
	}
	return v, rest, nil
}

// ReadUint reads an ion integer as a uint64
// and returns the subsequent message bytes.
func ReadUint(msg []byte) (uint64, []byte, error) {
	if len(msg) == 0 {
		return 0, nil, truncated("ReadUint")
	}
	if t := TypeOf(msg); t != UintType {
		return 0, nil, bad(t, UintType, "ReadUint")
	}
	body, rest := Contents(msg)
	if body == nil {
		return 0, nil, truncated("ReadUint")
	}
	if len(body) > 8 {
		return 0, nil, fmt.Errorf("ion.ReadUint: integer of %d bytes out of range", len(body))
	}
	return readmag(body), rest, nil
}

// ReadFloat64 reads an ion float as a float64
// and returns the value and the subsequent
// message bytes.
func ReadFloat64(msg []byte) (float64, []byte, error) {
	if len(msg) == 0 {
		return 0, nil, truncated("ReadFloat64")
	}
	switch msg[0] {
	case 0x40:
		return 0.0, msg[1:], nil
	case 0x44:
		if len(msg) < 5 {
			return 0, nil, truncated("ReadFloat64")
		}
		return float64(math.Float32frombits(binary.BigEndian.Uint32(msg[1:]))), msg[5:], nil
	case 0x48:
		if len(msg) < 9 {
			return 0, nil, truncated("ReadFloat64")
		}
		return math.Float64frombits(binary.BigEndian.Uint64(msg[1:])), msg[9:], nil
	}
	if t := TypeOf(msg); t != FloatType {
		return 0, nil, bad(t, FloatType, "ReadFloat64")
	}
	return 0, nil, fmt.Errorf("ion.ReadFloat64: cannot parse descriptor %#x", msg[0])
}

// ReadStringShared reads a string from 'msg'
// and returns the string and the subsequent
// message bytes. The returned slice containing
// the string contents aliases the input slice.
func ReadStringShared(msg []byte) ([]byte, []byte, error) {
	if len(msg) == 0 {
		return nil, nil, truncated("ReadString")
	}
	if t := TypeOf(msg); t != StringType {
		return nil, nil, bad(t, StringType, "ReadString")
	}
	body, rest := Contents(msg)
	if body == nil {
		return nil, nil, truncated("ReadString")
	}
	return body, rest, nil
}

// ReadString reads a string from 'msg'
// and returns the string and the subsequent
// message bytes.
func ReadString(msg []byte) (string, []byte, error) {
	body, rest, err := ReadStringShared(msg)
	if err != nil {
		return "", nil, err
	}
	return string(body), rest, nil
}
