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

	"golang.org/x/exp/slices"
)

// Layout describes how the columns of two
// source schemas are arranged in the output
// schema of an equi-join.
//
// The join-key columns are identified by name
// in all three schemas. The remaining (value)
// positions of the output schema, in ascending
// order, are split into two destination slices:
// the first receives the value columns of the
// left schema and the second receives the value
// columns of the right schema, each in source
// column order.
//
// A Layout is computed once and is immutable;
// it may be shared by any number of JoinedRows.
type Layout struct {
	out  *Schema
	src  [2]*Schema
	keys []string // in output-schema order

	outkey    []int
	keyschema *Schema
	srckey    [2][]int
	value     [2]*Schema
	dest      [2][]int
}

// NewLayout computes the layout of an
// equi-join of left and right on the columns
// named in using, producing rows of schema out.
// It returns a *SchemaError if a column cannot
// be resolved or if the widths or types of the
// schemas are inconsistent.
func NewLayout(out, left, right *Schema, using []string) (*Layout, error) {
	if len(using) == 0 {
		return nil, errschema(out.Table(), "", "no join columns")
	}
	outkey, err := ColumnIndexes(out, using)
	if err != nil {
		return nil, err
	}
	lkey, err := ColumnIndexes(left, using)
	if err != nil {
		return nil, err
	}
	rkey, err := ColumnIndexes(right, using)
	if err != nil {
		return nil, err
	}
	// canonical key order is output-schema order
	order := make([]int, len(using))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) bool {
		return outkey[a] < outkey[b]
	})
	l := &Layout{
		out:    out,
		src:    [2]*Schema{left, right},
		keys:   make([]string, len(using)),
		outkey: make([]int, len(using)),
		srckey: [2][]int{make([]int, len(using)), make([]int, len(using))},
	}
	for i, j := range order {
		if i > 0 && outkey[j] == l.outkey[i-1] {
			return nil, errschema(out.Table(), using[j], "join column listed more than once")
		}
		l.keys[i] = using[j]
		l.outkey[i] = outkey[j]
		l.srckey[Left][i] = lkey[j]
		l.srckey[Right][i] = rkey[j]
		want := out.Column(outkey[j]).Type
		if lt := left.Column(lkey[j]).Type; lt != want {
			return nil, errschema(left.Table(), using[j], "join column has type %s but output has %s", lt, want)
		}
		if rt := right.Column(rkey[j]).Type; rt != want {
			return nil, errschema(right.Table(), using[j], "join column has type %s but output has %s", rt, want)
		}
	}
	l.keyschema, err = out.SubSchema(l.outkey)
	if err != nil {
		return nil, err
	}
	for side := Left; side <= Right; side++ {
		s := l.src[side]
		l.value[side], err = s.SubSchema(Complement(l.srckey[side], s.Len()))
		if err != nil {
			return nil, err
		}
	}
	rest := Complement(l.outkey, out.Len())
	lw, rw := l.value[Left].Len(), l.value[Right].Len()
	if len(rest) != lw+rw {
		return nil, errschema(out.Table(), "",
			"output has %d non-key columns, but %s and %s contribute %d and %d",
			len(rest), left.Table(), right.Table(), lw, rw)
	}
	l.dest[Left] = rest[:lw:lw]
	l.dest[Right] = rest[lw:]
	for side := Left; side <= Right; side++ {
		vs := l.value[side]
		for i, p := range l.dest[side] {
			src, dst := vs.Column(i), out.Column(p)
			if src.Type != dst.Type {
				return nil, errschema(out.Table(), dst.Name,
					"has type %s but receives %s column %q of type %s",
					dst.Type, side, src.Name, src.Type)
			}
		}
	}
	return l, nil
}

// Output returns the output schema.
func (l *Layout) Output() *Schema { return l.out }

// Source returns the source schema of one side.
func (l *Layout) Source(side Side) *Schema { return l.src[side] }

// KeyColumns returns the join-key column
// names in output-schema order. Encoded
// keys always list fields in this order.
func (l *Layout) KeyColumns() []string { return slices.Clone(l.keys) }

// KeySchema returns the projection of the
// output schema onto the join-key columns.
func (l *Layout) KeySchema() *Schema { return l.keyschema }

// KeyPositions returns the positions of the
// join-key columns within the source schema
// of the given side, in KeyColumns order.
func (l *Layout) KeyPositions(side Side) []int { return slices.Clone(l.srckey[side]) }

// ValueSchema returns the source schema of
// the given side without its join-key columns.
func (l *Layout) ValueSchema(side Side) *Schema { return l.value[side] }

// Destination returns the output positions that
// receive the value columns of the given side.
func (l *Layout) Destination(side Side) []int { return slices.Clone(l.dest[side]) }

const (
	haveKey = 1 << iota
	haveLeft
	haveRight

	haveAll = haveKey | haveLeft | haveRight
)

// JoinedRow is a mutable output row under
// construction. The key columns are set once
// per group with InitByEquiColumns; the value
// columns of each side are written with Push
// after selecting a side with SetCursorOnLeft
// or SetCursorOnRight.
//
// A JoinedRow must not be used concurrently.
// It may be reused across groups: every
// position is overwritten before the row can
// be serialized again.
type JoinedRow struct {
	layout *Layout
	fields Row
	key    Row
	cursor Side
	have   uint8
}

// NewJoinedRow returns an empty JoinedRow
// for the layout. No position is populated.
func (l *Layout) NewJoinedRow() *JoinedRow {
	return &JoinedRow{
		layout: l,
		fields: make(Row, l.out.Len()),
		key:    make(Row, 0, len(l.keys)),
	}
}

// NewJoinedRow is shorthand for NewLayout
// followed by Layout.NewJoinedRow.
func NewJoinedRow(out, left, right *Schema, using []string) (*JoinedRow, error) {
	l, err := NewLayout(out, left, right, using)
	if err != nil {
		return nil, err
	}
	return l.NewJoinedRow(), nil
}

// Layout returns the layout of the row.
func (j *JoinedRow) Layout() *Layout { return j.layout }

// InitByEquiColumns decodes the encoded join key
// and stores the key fields into the key positions
// of the output row. No other position is modified,
// but both sides must be pushed again before the
// row can be serialized, even if decoding fails.
func (j *JoinedRow) InitByEquiColumns(key []byte) error {
	j.have = 0
	var err error
	j.key, err = DecodeExact(key, j.layout.keyschema, j.key)
	if err != nil {
		return err
	}
	for i, p := range j.layout.outkey {
		j.fields[p] = j.key[i]
	}
	j.have = haveKey
	return nil
}

// SetCursorOnLeft directs subsequent pushes
// to the positions of the left value columns.
func (j *JoinedRow) SetCursorOnLeft() { j.cursor = Left }

// SetCursorOnRight directs subsequent pushes
// to the positions of the right value columns.
func (j *JoinedRow) SetCursorOnRight() { j.cursor = Right }

// Push copies the fields of a value row of the
// side under the cursor into the output row.
// It returns a *ShapeError if the row does not
// conform to that side's value schema.
func (j *JoinedRow) Push(r Row) error {
	if err := Check(j.layout.value[j.cursor], r); err != nil {
		return err
	}
	for i, p := range j.layout.dest[j.cursor] {
		j.fields[p] = r[i]
	}
	if j.cursor == Left {
		j.have |= haveLeft
	} else {
		j.have |= haveRight
	}
	return nil
}

// Complete returns whether the key and
// both sides have been populated.
func (j *JoinedRow) Complete() bool { return j.have == haveAll }

// WriteTo appends the encoded output row to dst.
// It returns ErrIncomplete if the key or either
// side has not been populated since the last
// call to InitByEquiColumns.
func (j *JoinedRow) WriteTo(dst *ion.Buffer) error {
	if j.have != haveAll {
		return fmt.Errorf("%w (key=%v left=%v right=%v)", ErrIncomplete,
			j.have&haveKey != 0, j.have&haveLeft != 0, j.have&haveRight != 0)
	}
	Encode(dst, j.fields)
	return nil
}

// Row returns the current contents of the
// output row. The returned row aliases the
// JoinedRow and must be treated as read-only;
// it changes on the next Push.
func (j *JoinedRow) Row() Row { return j.fields }
