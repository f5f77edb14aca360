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

// Package shuffle implements an in-process
// grouping substrate for the join stage:
// rows are mapped to (key, fragment) records,
// partitioned by key, and delivered to each
// partition's reducer as key groups in
// ascending key order.
package shuffle

import (
	"github.com/SnellerInc/eqjoin/ion"
	"github.com/SnellerInc/eqjoin/table"

	"github.com/dchest/siphash"
)

// Partition returns the partition in [0, n)
// that receives records with the given key.
// The mapping depends only on the key bytes.
func Partition(key []byte, n int) int {
	const (
		k0    = 0x5d1ec810febed702
		k1    = 0x40fd7fee17262f71
		clamp = ^uint64(0)
	)
	if n <= 1 {
		return 0
	}
	h := siphash.Hash(k0, k1, key)
	p := int(h / (clamp / uint64(n)))
	if p >= n {
		// clamp is not always a multiple of n
		p = n - 1
	}
	return p
}

// Mapper converts the rows of one input
// table into keyed, tagged fragments.
type Mapper struct {
	side   table.Side
	schema *table.Schema
	key    []int
	value  []int

	scratch table.Row
	buf     ion.Buffer
}

// NewMapper returns a Mapper for rows of schema
// that are joined on keyColumns. The columns
// must be listed in the canonical order of the
// join (see table.Layout.KeyColumns) so that
// both sides produce identical key bytes.
func NewMapper(side table.Side, schema *table.Schema, keyColumns []string) (*Mapper, error) {
	key, err := table.ColumnIndexes(schema, keyColumns)
	if err != nil {
		return nil, err
	}
	return &Mapper{
		side:   side,
		schema: schema,
		key:    key,
		value:  table.Complement(key, schema.Len()),
	}, nil
}

// ForLayout returns the Mapper for
// one side of a join layout.
func ForLayout(l *table.Layout, side table.Side) *Mapper {
	s := l.Source(side)
	key := l.KeyPositions(side)
	return &Mapper{
		side:   side,
		schema: s,
		key:    key,
		value:  table.Complement(key, s.Len()),
	}
}

// Side returns the side tag of the fragments.
func (m *Mapper) Side() table.Side { return m.side }

// Map encodes r. The returned key is the
// encoding of the join columns of r and
// the returned fragment is the side tag
// followed by the remaining columns.
//
// Both slices alias the Mapper's buffer and
// are only valid until the next call to Map.
// Map returns a *table.ShapeError if r does
// not conform to the Mapper's schema.
func (m *Mapper) Map(r table.Row) (key, frag []byte, err error) {
	if err := table.Check(m.schema, r); err != nil {
		return nil, nil, err
	}
	m.buf.Reset()
	table.EncodeKey(&m.buf, r, m.key)
	split := m.buf.Size()
	m.scratch = m.scratch[:0]
	for _, p := range m.value {
		m.scratch = append(m.scratch, r[p])
	}
	table.EncodeFragment(&m.buf, m.side, m.scratch)
	b := m.buf.Bytes()
	return b[:split:split], b[split:], nil
}
