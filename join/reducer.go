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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/SnellerInc/eqjoin/ion"
	"github.com/SnellerInc/eqjoin/table"

	"golang.org/x/exp/slices"
)

var (
	// ErrClosed is returned from a Reducer
	// after Close has been called.
	ErrClosed = errors.New("join: reducer closed")
	// ErrUnordered is returned from Run when
	// a group key is not strictly greater than
	// the key of the preceding group.
	ErrUnordered = errors.New("join: group keys out of order")

	errBusy = errors.New("join: reducer already processing a group")
)

// GroupLimitError is returned when a key
// group exceeds the limits in Options.
type GroupLimitError struct {
	Key   []byte
	Rows  int
	Bytes int64

	MaxRows  int
	MaxBytes int64
}

func (g *GroupLimitError) Error() string {
	if g.MaxRows > 0 && g.Rows > g.MaxRows {
		return fmt.Sprintf("join: group %x has more than %d rows", g.Key, g.MaxRows)
	}
	return fmt.Sprintf("join: group %x has more than %d bytes of fragments", g.Key, g.MaxBytes)
}

// Options controls the behavior of a Reducer.
type Options struct {
	// MaxGroupRows, if positive, is the
	// maximum number of rows (both sides)
	// buffered for one key group.
	MaxGroupRows int
	// MaxGroupBytes, if positive, is the
	// maximum number of fragment bytes
	// buffered for one key group.
	MaxGroupBytes int64
	// Logf, if non-nil, is used to
	// log group-level events.
	Logf func(f string, args ...interface{})
}

// Stats are the counters of a Reducer.
type Stats struct {
	Groups    int64 // groups processed
	Fragments int64 // fragments decoded
	Pairs     int64 // candidate (left, right) pairs
	Rows      int64 // rows emitted
}

// Add adds the counters in o to s.
func (s *Stats) Add(o *Stats) {
	s.Groups += o.Groups
	s.Fragments += o.Fragments
	s.Pairs += o.Pairs
	s.Rows += o.Rows
}

type state uint8

const (
	stateReady state = iota
	stateProcessing
	stateClosed
)

// Reducer processes key groups for one
// worker. A Reducer is not safe for
// concurrent use; each worker should
// create its own from a shared Stage.
type Reducer struct {
	stage *Stage
	opts  Options
	state state
	stats Stats

	joined *table.JoinedRow
	out    ion.Buffer

	// pool holds decoded rows; the first
	// used entries belong to the current group
	pool        []table.Row
	used        int
	left, right []table.Row
}

// NewReducer returns a Reducer for st.
// opts may be nil.
func NewReducer(st *Stage, opts *Options) *Reducer {
	r := &Reducer{
		stage:  st,
		joined: st.layout.NewJoinedRow(),
	}
	if opts != nil {
		r.opts = *opts
	}
	return r
}

func (r *Reducer) logf(f string, args ...interface{}) {
	if r.opts.Logf != nil {
		r.opts.Logf(f, args...)
	}
}

// Stats returns the counters accumulated
// so far by the Reducer.
func (r *Reducer) Stats() Stats { return r.stats }

// Close releases the scratch buffers
// of the Reducer. Subsequent calls to
// Close, Reduce, or Run return ErrClosed.
func (r *Reducer) Close() error {
	if r.state == stateClosed {
		return ErrClosed
	}
	r.state = stateClosed
	r.pool, r.left, r.right = nil, nil, nil
	r.out.Set(nil)
	r.joined = nil
	return nil
}

func (r *Reducer) scratch() table.Row {
	if r.used == len(r.pool) {
		r.pool = append(r.pool, nil)
	}
	return r.pool[r.used][:0]
}

// load decodes every fragment of a group
// and sorts the rows into r.left and r.right,
// preserving the order of arrival on each side
func (r *Reducer) load(key []byte, frags Fragments) error {
	r.used = 0
	r.left = r.left[:0]
	r.right = r.right[:0]
	lv := r.stage.layout.ValueSchema(table.Left)
	rv := r.stage.layout.ValueSchema(table.Right)
	var size int64
	for {
		buf, err := frags.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		size += int64(len(buf))
		rows := r.used + 1
		if (r.opts.MaxGroupRows > 0 && rows > r.opts.MaxGroupRows) ||
			(r.opts.MaxGroupBytes > 0 && size > r.opts.MaxGroupBytes) {
			return &GroupLimitError{
				Key:      slices.Clone(key),
				Rows:     rows,
				Bytes:    size,
				MaxRows:  r.opts.MaxGroupRows,
				MaxBytes: r.opts.MaxGroupBytes,
			}
		}
		side, row, err := table.DecodeFragment(buf, lv, rv, r.scratch())
		if err != nil {
			return fmt.Errorf("group %x fragment %d: %w", key, r.used, err)
		}
		r.pool[r.used] = row
		r.used++
		if side == table.Left {
			r.left = append(r.left, row)
		} else {
			r.right = append(r.right, row)
		}
	}
}

// Reduce processes one key group.
//
// Every fragment is decoded before any
// row is emitted, so a malformed fragment
// aborts the group without output. Joined
// rows are emitted as (EmptyKey, row) in
// left-major order of the cross product of
// the left and right rows of the group,
// skipping rows that the stage's predicate
// rejects. A group with no rows on either
// side emits nothing, but its key must
// still decode.
func (r *Reducer) Reduce(key []byte, frags Fragments, dst Emitter) error {
	switch r.state {
	case stateClosed:
		return ErrClosed
	case stateProcessing:
		return errBusy
	}
	r.state = stateProcessing
	defer func() {
		if r.state == stateProcessing {
			r.state = stateReady
		}
	}()
	if err := r.load(key, frags); err != nil {
		return err
	}
	r.stats.Groups++
	r.stats.Fragments += int64(r.used)
	// the key is validated even when
	// one side of the group is empty
	if err := r.joined.InitByEquiColumns(key); err != nil {
		return fmt.Errorf("group %x: %w", key, err)
	}
	if len(r.left) == 0 || len(r.right) == 0 {
		return nil
	}
	filter := r.stage.filter
	for _, lrow := range r.left {
		r.joined.SetCursorOnLeft()
		if err := r.joined.Push(lrow); err != nil {
			return err
		}
		for _, rrow := range r.right {
			r.joined.SetCursorOnRight()
			if err := r.joined.Push(rrow); err != nil {
				return err
			}
			r.stats.Pairs++
			if !filter.Bind(r.joined.Row()).Evaluate() {
				continue
			}
			r.out.Reset()
			if err := r.joined.WriteTo(&r.out); err != nil {
				return err
			}
			if err := dst.Emit(EmptyKey, r.out.Bytes()); err != nil {
				return err
			}
			r.stats.Rows++
		}
	}
	return nil
}

// Run processes every group from src in order,
// emitting joined rows into dst, and returns the
// counters accumulated during the call.
//
// Run returns an error wrapping ErrUnordered if
// a group key is not strictly greater than the
// previous one. ctx is checked between groups.
func (r *Reducer) Run(ctx context.Context, src GroupSource, dst Emitter) (Stats, error) {
	if r.state == stateClosed {
		return Stats{}, ErrClosed
	}
	start := r.stats
	var last []byte
	first := true
	delta := func() Stats {
		s := r.stats
		s.Groups -= start.Groups
		s.Fragments -= start.Fragments
		s.Pairs -= start.Pairs
		s.Rows -= start.Rows
		return s
	}
	for {
		if err := ctx.Err(); err != nil {
			return delta(), err
		}
		key, frags, err := src.NextGroup()
		if err == io.EOF {
			break
		}
		if err != nil {
			return delta(), err
		}
		if !first && bytes.Compare(key, last) <= 0 {
			return delta(), fmt.Errorf("%w: %x after %x", ErrUnordered, key, last)
		}
		first = false
		last = append(last[:0], key...)
		if err := r.Reduce(key, frags, dst); err != nil {
			r.logf("join: aborting after %d groups: %s", r.stats.Groups-start.Groups, err)
			return delta(), err
		}
	}
	s := delta()
	r.logf("join: %d groups, %d fragments, %d pairs, %d rows", s.Groups, s.Fragments, s.Pairs, s.Rows)
	return s, nil
}
