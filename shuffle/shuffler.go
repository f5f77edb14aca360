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

package shuffle

import (
	"bytes"
	"io"

	"github.com/SnellerInc/eqjoin/heap"
	"github.com/SnellerInc/eqjoin/join"
	"github.com/SnellerInc/eqjoin/table"

	"golang.org/x/exp/slices"
)

const arenaSize = 64 * 1024

type record struct {
	key, frag []byte
}

// Shuffler accumulates the records of both
// input tables in a fixed number of partitions.
//
// Add and AddRow must not be called concurrently
// with any other method. Once every record has
// been added, Groups may be called concurrently
// for distinct partitions.
type Shuffler struct {
	parts [][2][]record
	arena []byte
}

// NewShuffler returns a Shuffler with
// n partitions. n must be positive.
func NewShuffler(n int) *Shuffler {
	if n <= 0 {
		panic("shuffle.NewShuffler: partitions must be positive")
	}
	return &Shuffler{parts: make([][2][]record, n)}
}

// Partitions returns the number of partitions.
func (s *Shuffler) Partitions() int { return len(s.parts) }

// Len returns the number of records
// held in partition p.
func (s *Shuffler) Len(p int) int {
	return len(s.parts[p][table.Left]) + len(s.parts[p][table.Right])
}

func (s *Shuffler) clone(b []byte) []byte {
	if cap(s.arena)-len(s.arena) < len(b) {
		size := arenaSize
		if len(b) > size {
			size = len(b)
		}
		s.arena = make([]byte, 0, size)
	}
	start := len(s.arena)
	s.arena = append(s.arena, b...)
	return s.arena[start:len(s.arena):len(s.arena)]
}

// Add copies a record from side into
// the partition chosen by its key.
func (s *Shuffler) Add(side table.Side, key, frag []byte) {
	p := Partition(key, len(s.parts))
	s.parts[p][side] = append(s.parts[p][side], record{
		key:  s.clone(key),
		frag: s.clone(frag),
	})
}

// AddRow maps r with m and adds the result.
func (s *Shuffler) AddRow(m *Mapper, r table.Row) error {
	key, frag, err := m.Map(r)
	if err != nil {
		return err
	}
	s.Add(m.Side(), key, frag)
	return nil
}

// Groups sorts partition p and returns its
// records as key groups in ascending key order.
// Within a group, the left records precede the
// right records, and the records of each side
// appear in the order in which they were added.
func (s *Shuffler) Groups(p int) join.GroupSource {
	runs := s.parts[p][:]
	m := &merger{}
	for i := range runs {
		run := runs[i]
		slices.SortStableFunc(run, func(a, b record) bool {
			return bytes.Compare(a.key, b.key) < 0
		})
		m.runs = append(m.runs, run)
	}
	var cursors []cursor
	for i := range m.runs {
		if len(m.runs[i]) > 0 {
			cursors = append(cursors, cursor{run: i})
		}
	}
	m.heap = heap.New(cursors, m.less)
	return m
}

type cursor struct {
	run, pos int
}

// merger merges sorted runs of records;
// it is both the join.GroupSource and the
// join.Fragments of the current group
type merger struct {
	runs [][]record
	heap *heap.Heap[cursor]
	key  []byte
	open bool
}

func (m *merger) rec(c cursor) *record { return &m.runs[c.run][c.pos] }

// ties go to the lower run, so left
// records precede right records
func (m *merger) less(a, b cursor) bool {
	if c := bytes.Compare(m.rec(a).key, m.rec(b).key); c != 0 {
		return c < 0
	}
	return a.run < b.run
}

func (m *merger) ingroup() bool {
	return m.open && m.heap.Len() > 0 && bytes.Equal(m.rec(*m.heap.Top()).key, m.key)
}

// advance consumes the least record
func (m *merger) advance() *record {
	top := m.heap.Top()
	r := m.rec(*top)
	if top.pos+1 < len(m.runs[top.run]) {
		top.pos++
		m.heap.Fix(0)
	} else {
		m.heap.Pop()
	}
	return r
}

func (m *merger) NextGroup() ([]byte, join.Fragments, error) {
	for m.ingroup() {
		m.advance()
	}
	if m.heap.Len() == 0 {
		m.open = false
		return nil, nil, io.EOF
	}
	m.key = append(m.key[:0], m.rec(*m.heap.Top()).key...)
	m.open = true
	return m.key, m, nil
}

func (m *merger) Next() ([]byte, error) {
	if !m.ingroup() {
		m.open = false
		return nil, io.EOF
	}
	return m.advance().frag, nil
}
