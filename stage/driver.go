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

package stage

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash"
	"runtime"

	"github.com/SnellerInc/eqjoin/join"
	"github.com/SnellerInc/eqjoin/shuffle"
	"github.com/SnellerInc/eqjoin/table"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"
)

// DefaultGroupBytes returns the default
// per-group fragment byte budget: one eighth
// of total memory divided among the CPUs,
// or zero (unbounded) if the amount of memory
// is unknown.
func DefaultGroupBytes() int64 {
	mem := memTotal()
	if mem <= 0 {
		return 0
	}
	return mem / 8 / int64(runtime.NumCPU())
}

// Driver runs the join described by a Definition.
type Driver struct {
	def    *Definition
	layout *table.Layout

	// MaxGroupBytes is passed to every
	// reducer; see join.Options.
	MaxGroupBytes int64
	// Logf, if non-nil, is used for logging.
	Logf func(f string, args ...interface{})
}

// NewDriver validates def and returns
// a Driver for it. The returned Driver has
// no group byte budget, so its result does
// not depend on the host; see DefaultGroupBytes.
func NewDriver(def *Definition) (*Driver, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	// fail early on the same errors that
	// every worker would encounter
	st, err := join.Setup(def.Conf())
	if err != nil {
		return nil, err
	}
	return &Driver{
		def:    def,
		layout: st.Layout(),
	}, nil
}

func (d *Driver) logf(f string, args ...interface{}) {
	if d.Logf != nil {
		d.Logf(f, args...)
	}
}

// Definition returns the definition of the job.
func (d *Driver) Definition() *Definition { return d.def }

// Layout returns the column layout of the join.
func (d *Driver) Layout() *table.Layout { return d.layout }

// Conf returns the configuration
// published to every worker.
func (d *Driver) Conf() join.Conf { return d.def.Conf() }

// Result describes a completed run.
type Result struct {
	// ID identifies the run.
	ID uuid.UUID
	// Partitions is the number of partitions used.
	Partitions int
	// Stats are the summed reducer counters.
	Stats join.Stats
	// Digest is the BLAKE2b-256 hash of the
	// emitted records, in order.
	Digest [blake2b.Size256]byte
}

// Groups returns the number of key groups processed.
func (r *Result) Groups() int64 { return r.Stats.Groups }

// Rows returns the number of rows emitted.
func (r *Result) Rows() int64 { return r.Stats.Rows }

func (d *Driver) partitions() int {
	if d.def.Parallel <= 0 {
		return 1
	}
	return d.def.Parallel
}

// Run joins the left and right rows and emits the
// joined rows into dst. The partitions are reduced
// concurrently, but their outputs are emitted in
// partition order, so the output depends only on
// the input rows and the definition.
func (d *Driver) Run(ctx context.Context, left, right []table.Row, dst join.Emitter) (*Result, error) {
	res := &Result{
		ID:         uuid.New(),
		Partitions: d.partitions(),
	}
	d.logf("join %s: run %s with %d partitions", d.def.Name, res.ID, res.Partitions)

	shuf := shuffle.NewShuffler(res.Partitions)
	for _, in := range []struct {
		side table.Side
		rows []table.Row
	}{
		{table.Left, left},
		{table.Right, right},
	} {
		m := shuffle.ForLayout(d.layout, in.side)
		for i := range in.rows {
			if err := shuf.AddRow(m, in.rows[i]); err != nil {
				return nil, fmt.Errorf("%s row %d: %w", in.side, i, err)
			}
		}
	}

	conf := d.Conf()
	outputs := make([]join.Collector, res.Partitions)
	stats := make([]join.Stats, res.Partitions)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for p := 0; p < res.Partitions; p++ {
		p := p
		g.Go(func() error {
			// each worker performs its own setup
			// from the published configuration
			st, err := join.Setup(conf)
			if err != nil {
				return err
			}
			r := join.NewReducer(st, &join.Options{
				MaxGroupRows:  d.def.MaxGroupRows,
				MaxGroupBytes: d.MaxGroupBytes,
				Logf:          d.Logf,
			})
			defer r.Close()
			stats[p], err = r.Run(ctx, shuf.Groups(p), &outputs[p])
			if err != nil {
				return fmt.Errorf("partition %d: %w", p, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	h, _ := blake2b.New256(nil)
	out := join.EmitterFunc(func(key, value []byte) error {
		digest(h, key, value)
		return dst.Emit(key, value)
	})
	for p := range outputs {
		res.Stats.Add(&stats[p])
		if err := outputs[p].Replay(out); err != nil {
			return nil, err
		}
		outputs[p].Records = nil
	}
	h.Sum(res.Digest[:0])
	d.logf("join %s: run %s: %d groups, %d rows", d.def.Name, res.ID, res.Stats.Groups, res.Stats.Rows)
	return res, nil
}

// digest hashes length-prefixed records
// so that record boundaries are unambiguous
func digest(h hash.Hash, key, value []byte) {
	var tmp [2 * binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(key)))
	n += binary.PutUvarint(tmp[n:], uint64(len(value)))
	h.Write(tmp[:n])
	h.Write(key)
	h.Write(value)
}
