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
	"math"
	"strings"
)

// Row is an ordered list of fields.
// A Row is only meaningful together with
// the Schema it conforms to; see Check.
type Row []Field

// Check returns a *ShapeError if r does
// not conform to s.
func Check(s *Schema, r Row) error {
	if len(r) != s.Len() {
		return &ShapeError{Table: s.Table(), Want: s.Len(), Got: len(r)}
	}
	for i := range r {
		c := s.Column(i)
		var got FieldType
		if r[i] != nil {
			got = r[i].Type()
		}
		if got != c.Type {
			return &ShapeError{
				Table:    s.Table(),
				Want:     s.Len(),
				Got:      len(r),
				Column:   c.Name,
				WantType: c.Type,
				GotType:  got,
			}
		}
	}
	return nil
}

// MakeRow builds a row from fields and
// checks that it conforms to s.
func MakeRow(s *Schema, fields ...Field) (Row, error) {
	r := Row(fields)
	if err := Check(s, r); err != nil {
		return nil, err
	}
	return r, nil
}

// ConvertRow builds a row conforming to s
// from plain Go values. Integral float64 values
// (as produced by JSON and YAML decoders) are
// accepted for integer columns.
func ConvertRow(s *Schema, values ...interface{}) (Row, error) {
	if len(values) != s.Len() {
		return nil, &ShapeError{Table: s.Table(), Want: s.Len(), Got: len(values)}
	}
	r := make(Row, len(values))
	for i, v := range values {
		c := s.Column(i)
		f, ok := convert(v, c.Type)
		if !ok {
			return nil, fmt.Errorf("table %s: column %q: cannot convert %T(%v) to %s", s.Table(), c.Name, v, v, c.Type)
		}
		r[i] = f
	}
	return r, nil
}

func convert(v interface{}, t FieldType) (Field, bool) {
	if f, ok := v.(Field); ok {
		return f, f.Type() == t
	}
	switch t {
	case IntType:
		switch v := v.(type) {
		case int:
			return Int(v), true
		case int32:
			return Int(v), true
		case int64:
			return Int(v), true
		case float64:
			if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
				return nil, false
			}
			return Int(v), true
		}
	case FloatType:
		switch v := v.(type) {
		case float64:
			return Float(v), true
		case float32:
			return Float(v), true
		case int:
			return Float(v), true
		case int64:
			return Float(v), true
		}
	case StringType:
		if s, ok := v.(string); ok {
			return String(s), true
		}
	case BoolType:
		if b, ok := v.(bool); ok {
			return Bool(b), true
		}
	}
	return nil, false
}

// Equal returns whether two rows have
// the same length and pairwise-equal fields.
func (r Row) Equal(o Row) bool {
	if len(r) != len(o) {
		return false
	}
	for i := range r {
		if (r[i] == nil) != (o[i] == nil) {
			return false
		}
		if r[i] != nil && !r[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Clone returns a copy of r that
// does not alias r's backing array.
func (r Row) Clone() Row {
	return append(Row(nil), r...)
}

func (r Row) String() string {
	var dst strings.Builder
	dst.WriteByte('(')
	for i := range r {
		if i > 0 {
			dst.WriteString(", ")
		}
		if r[i] == nil {
			dst.WriteString("<unset>")
			continue
		}
		dst.WriteString(r[i].String())
	}
	dst.WriteByte(')')
	return dst.String()
}
