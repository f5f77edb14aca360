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
	"errors"
	"fmt"
)

// ErrIncomplete is returned when a JoinedRow
// is serialized before its key and both
// sides have been populated.
var ErrIncomplete = errors.New("joined row is incomplete")

var errTrailing = errors.New("unexpected trailing bytes")

// SchemaError is the error type returned
// when a schema is malformed or when a
// column name cannot be resolved.
type SchemaError struct {
	Table  string
	Column string // may be empty
	Msg    string
}

func (s *SchemaError) Error() string {
	if s.Column != "" {
		return fmt.Sprintf("schema %s: column %q: %s", s.Table, s.Column, s.Msg)
	}
	return fmt.Sprintf("schema %s: %s", s.Table, s.Msg)
}

func errschema(table, column, f string, args ...interface{}) *SchemaError {
	return &SchemaError{Table: table, Column: column, Msg: fmt.Sprintf(f, args...)}
}

// DecodeError is the error type returned
// when encoded row bytes are truncated
// or otherwise malformed.
type DecodeError struct {
	// What describes the object being decoded.
	What string
	Err  error
}

func (d *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %s", d.What, d.Err)
}

func (d *DecodeError) Unwrap() error { return d.Err }

// ShapeError is the error type returned
// when a row does not conform to the
// schema it is used with.
type ShapeError struct {
	Table     string
	Want, Got int // arity

	// Column is set when the arity
	// matches but a field has the wrong type.
	Column            string
	WantType, GotType FieldType
}

func (s *ShapeError) Error() string {
	if s.Column != "" {
		return fmt.Sprintf("table %s: column %q has type %s, expected %s", s.Table, s.Column, s.GotType, s.WantType)
	}
	return fmt.Sprintf("table %s: row has %d fields, expected %d", s.Table, s.Got, s.Want)
}
