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

// Package table implements the typed row model
// shared by both sides of a join: fields, schemas,
// rows, their binary encoding, and the joined-row
// builder that assembles output rows.
package table

import (
	"fmt"
	"math"
	"strconv"

	"github.com/SnellerInc/eqjoin/ion"
)

// FieldType is the declared type of a column.
type FieldType uint8

const (
	InvalidType FieldType = iota
	IntType
	FloatType
	StringType
	BoolType
)

func (t FieldType) String() string {
	switch t {
	case IntType:
		return "int"
	case FloatType:
		return "float"
	case StringType:
		return "string"
	case BoolType:
		return "bool"
	default:
		return "invalid"
	}
}

// ParseFieldType returns the FieldType
// with the given name. The second return
// value is false if the name is unknown.
func ParseFieldType(name string) (FieldType, bool) {
	switch name {
	case "int", "integer", "long":
		return IntType, true
	case "float", "double":
		return FloatType, true
	case "string", "text":
		return StringType, true
	case "bool", "boolean":
		return BoolType, true
	default:
		return InvalidType, false
	}
}

// Field is a typed scalar value.
//
// A Field should be one of
//
//	Int, Float, String, Bool
type Field interface {
	Type() FieldType
	// Equal returns whether the other field
	// has the same type and the same value.
	Equal(Field) bool
	// Encode appends the self-delimiting
	// binary form of the field to dst.
	Encode(dst *ion.Buffer)
	String() string
}

var (
	_ Field = Int(0)
	_ Field = Float(0)
	_ Field = String("")
	_ Field = Bool(false)
)

// Int is a signed 64-bit integer field.
type Int int64

func (i Int) Type() FieldType        { return IntType }
func (i Int) Encode(dst *ion.Buffer) { dst.WriteInt(int64(i)) }
func (i Int) String() string         { return strconv.FormatInt(int64(i), 10) }

func (i Int) Equal(x Field) bool {
	o, ok := x.(Int)
	return ok && o == i
}

// Float is a 64-bit floating-point field.
type Float float64

func (f Float) Type() FieldType        { return FloatType }
func (f Float) Encode(dst *ion.Buffer) { dst.WriteFloat64(float64(f)) }
func (f Float) String() string         { return strconv.FormatFloat(float64(f), 'g', -1, 64) }

// Equal compares the bit patterns of the
// two values, so NaN equals NaN and 0
// does not equal -0, matching the encoding.
func (f Float) Equal(x Field) bool {
	o, ok := x.(Float)
	return ok && math.Float64bits(float64(o)) == math.Float64bits(float64(f))
}

// String is a string field.
type String string

func (s String) Type() FieldType        { return StringType }
func (s String) Encode(dst *ion.Buffer) { dst.WriteString(string(s)) }
func (s String) String() string         { return strconv.Quote(string(s)) }

func (s String) Equal(x Field) bool {
	o, ok := x.(String)
	return ok && o == s
}

// Bool is a boolean field.
type Bool bool

func (b Bool) Type() FieldType        { return BoolType }
func (b Bool) Encode(dst *ion.Buffer) { dst.WriteBool(bool(b)) }
func (b Bool) String() string         { return strconv.FormatBool(bool(b)) }

func (b Bool) Equal(x Field) bool {
	o, ok := x.(Bool)
	return ok && o == b
}

// ReadField decodes one field of type t from msg
// and returns the field and the subsequent bytes.
func ReadField(msg []byte, t FieldType) (Field, []byte, error) {
	switch t {
	case IntType:
		i, rest, err := ion.ReadInt(msg)
		return Int(i), rest, err
	case FloatType:
		f, rest, err := ion.ReadFloat64(msg)
		return Float(f), rest, err
	case StringType:
		s, rest, err := ion.ReadString(msg)
		return String(s), rest, err
	case BoolType:
		b, rest, err := ion.ReadBool(msg)
		return Bool(b), rest, err
	default:
		return nil, nil, fmt.Errorf("cannot decode field of type %s", t)
	}
}

// Side identifies which input table
// of a join a row fragment came from.
type Side uint8

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "Side(" + strconv.Itoa(int(s)) + ")"
	}
}

// Field returns the reserved integer
// field that tags fragments from this side.
func (s Side) Field() Int { return Int(s) }
