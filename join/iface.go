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

package join

import (
	"io"

	"golang.org/x/exp/slices"
)

// EmptyKey is the key of every emitted record.
var EmptyKey = []byte{}

// Fragments is an iterator over the tagged
// row fragments of one key group.
// Next returns io.EOF after the last fragment.
//
// The slice returned from Next is only valid
// until the following call to Next.
type Fragments interface {
	Next() ([]byte, error)
}

// GroupSource delivers key groups in ascending
// (bytewise) key order. NextGroup returns io.EOF
// when there are no more groups.
//
// The key returned from NextGroup is only valid
// until the following call to NextGroup, and
// the returned Fragments must be consumed before
// the next call to NextGroup.
type GroupSource interface {
	NextGroup() ([]byte, Fragments, error)
}

// Emitter receives output records.
//
// The key and value passed to Emit are only
// valid for the duration of the call; an Emitter
// that retains them must copy them.
type Emitter interface {
	Emit(key, value []byte) error
}

// EmitterFunc is an Emitter implemented by a function.
type EmitterFunc func(key, value []byte) error

// Emit implements Emitter.Emit
func (f EmitterFunc) Emit(key, value []byte) error { return f(key, value) }

// Record is one output record.
type Record struct {
	Key, Value []byte
}

// Collector is an Emitter that keeps
// a copy of every record in memory.
type Collector struct {
	Records []Record
}

// Emit implements Emitter.Emit
func (c *Collector) Emit(key, value []byte) error {
	c.Records = append(c.Records, Record{
		Key:   slices.Clone(key),
		Value: slices.Clone(value),
	})
	return nil
}

// Len returns the number of collected records.
func (c *Collector) Len() int { return len(c.Records) }

// Reset discards the collected records.
func (c *Collector) Reset() { c.Records = c.Records[:0] }

// Replay emits every collected record
// into dst in order.
func (c *Collector) Replay(dst Emitter) error {
	for i := range c.Records {
		if err := dst.Emit(c.Records[i].Key, c.Records[i].Value); err != nil {
			return err
		}
	}
	return nil
}

// Slice returns a Fragments that
// iterates over frags.
func Slice(frags [][]byte) Fragments {
	return &sliceFragments{frags: frags}
}

type sliceFragments struct {
	frags [][]byte
	pos   int
}

func (s *sliceFragments) Next() ([]byte, error) {
	if s.pos >= len(s.frags) {
		return nil, io.EOF
	}
	f := s.frags[s.pos]
	s.pos++
	return f, nil
}

// Group is one key group held in memory.
type Group struct {
	Key       []byte
	Fragments [][]byte
}

// Groups returns a GroupSource that
// produces the groups in lst in order.
// The groups are not sorted.
func Groups(lst []Group) GroupSource {
	return &groupList{lst: lst}
}

type groupList struct {
	lst []Group
	pos int
}

func (g *groupList) NextGroup() ([]byte, Fragments, error) {
	if g.pos >= len(g.lst) {
		return nil, nil, io.EOF
	}
	grp := &g.lst[g.pos]
	g.pos++
	return grp.Key, Slice(grp.Fragments), nil
}
