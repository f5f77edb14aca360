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

package table

import (
	"fmt"

	"github.com/SnellerInc/eqjoin/ion"
)

// Encode appends the fields of r to dst
// in order. Every field is self-delimiting,
// so the encoding of a row is the plain
// concatenation of its fields.
//
// Encode does not validate r; rows are
// validated when they are constructed
// (see MakeRow, ConvertRow, and Decode).
func Encode(dst *ion.Buffer, r Row) {
	for i := range r {
		r[i].Encode(dst)
	}
}

// EncodeKey appends the fields of r at
// the given positions to dst.
func EncodeKey(dst *ion.Buffer, r Row, positions []int) {
	for _, p := range positions {
		r[p].Encode(dst)
	}
}

// Decode decodes exactly s.Len() fields of the
// types given by s from msg. The fields are stored
// into dst[:0] (growing it as necessary) and the
// resulting row is returned along with the bytes
// following the last field.
//
// Decode returns a *DecodeError if msg is truncated
// or if an encoded field does not have the column's type.
func Decode(msg []byte, s *Schema, dst Row) (Row, []byte, error) {
	dst = dst[:0]
	for i := 0; i < s.Len(); i++ {
		c := s.Column(i)
		f, rest, err := ReadField(msg, c.Type)
		if err != nil {
			return dst, nil, &DecodeError{
				What: fmt.Sprintf("%s column %q", s.Table(), c.Name),
				Err:  err,
			}
		}
		dst = append(dst, f)
		msg = rest
	}
	return dst, msg, nil
}

// DecodeExact is like Decode but additionally
// requires that msg contains nothing after
// the last field.
func DecodeExact(msg []byte, s *Schema, dst Row) (Row, error) {
	dst, rest, err := Decode(msg, s, dst)
	if err != nil {
		return dst, err
	}
	if len(rest) != 0 {
		return dst, &DecodeError{
			What: fmt.Sprintf("%s row", s.Table()),
			Err:  fmt.Errorf("%w (%d bytes)", errTrailing, len(rest)),
		}
	}
	return dst, nil
}

// EncodeFragment appends a tagged row fragment
// to dst: the side tag field followed by
// the fields of r.
func EncodeFragment(dst *ion.Buffer, side Side, r Row) {
	side.Field().Encode(dst)
	Encode(dst, r)
}

// DecodeSide reads the side tag at the
// beginning of a fragment and returns
// the side and the remaining bytes.
// Side tags are never negative.
func DecodeSide(msg []byte) (Side, []byte, error) {
	v, rest, err := ion.ReadUint(msg)
	if err != nil {
		return 0, nil, &DecodeError{What: "side tag", Err: err}
	}
	switch v {
	case uint64(Left):
		return Left, rest, nil
	case uint64(Right):
		return Right, rest, nil
	default:
		return 0, nil, &DecodeError{What: "side tag", Err: fmt.Errorf("unknown side %d", v)}
	}
}

// DecodeFragment decodes a tagged fragment.
// The side tag selects which of left and right
// governs the remaining bytes, and exactly that
// schema's fields must follow the tag.
func DecodeFragment(msg []byte, left, right *Schema, dst Row) (Side, Row, error) {
	side, rest, err := DecodeSide(msg)
	if err != nil {
		return 0, dst, err
	}
	s := left
	if side == Right {
		s = right
	}
	dst, err = DecodeExact(rest, s, dst)
	return side, dst, err
}
