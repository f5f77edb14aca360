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

// Command eqjoin runs equi-join jobs
// and inspects their output.
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/SnellerInc/eqjoin/compr"
	"github.com/SnellerInc/eqjoin/stage"
	"github.com/SnellerInc/eqjoin/table"
)

var (
	dashv bool
	dashh bool
	dashp int
	dasho string
	dashc string
	dashs string
	dashd string
	dashm bool
)

func init() {
	flag.BoolVar(&dashv, "v", false, "verbose")
	flag.BoolVar(&dashh, "h", false, "show usage help")
	flag.IntVar(&dashp, "p", 0, "number of partitions (overrides the definition)")
	flag.StringVar(&dasho, "o", "", "output file, or - for stdout (overrides the definition)")
	flag.StringVar(&dashc, "c", "", "output compression (overrides the definition)")
	flag.StringVar(&dashs, "s", "", "result schema for dump")
	flag.StringVar(&dashd, "d", "", "definition file providing the result schema for dump")
	flag.BoolVar(&dashm, "m", false, "limit the fragment bytes of each key group based on available memory")
}

func exitf(f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, f, args...)
	os.Exit(1)
}

func logf(f string, args ...interface{}) {
	if f[len(f)-1] != '\n' {
		f += "\n"
	}
	fmt.Fprintf(os.Stderr, f, args...)
}

func loadDef(defpath string) (*stage.Definition, error) {
	f, err := os.Open(defpath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d, err := stage.DecodeDefinition(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", defpath, err)
	}
	return d, nil
}

// loadRows reads the rows of one input;
// relative paths are resolved against dir
func loadRows(dir string, def *stage.TableDef) ([]table.Row, error) {
	s, err := table.ParseSchema(def.Schema)
	if err != nil {
		return nil, err
	}
	if def.Input == "" {
		return nil, fmt.Errorf("table %s has no input", s.Table())
	}
	p := def.Input
	if !filepath.IsAbs(p) {
		p = filepath.Join(dir, p)
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := stage.ReadRows(f, s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return rows, nil
}

type options struct {
	parallel    int
	output      string
	compression string
	groupBytes  int64
	logf        func(f string, args ...interface{})
}

func runJob(ctx context.Context, defpath string, opts *options) (*stage.Result, error) {
	def, err := loadDef(defpath)
	if err != nil {
		return nil, err
	}
	if opts.parallel > 0 {
		def.Parallel = opts.parallel
	}
	if opts.output != "" {
		def.OutputPath = opts.output
	}
	if opts.compression != "" {
		def.Compression = opts.compression
	}
	if def.Compression == "" {
		def.Compression = "zstd"
	}
	dr, err := stage.NewDriver(def)
	if err != nil {
		return nil, err
	}
	dr.Logf = opts.logf
	dr.MaxGroupBytes = opts.groupBytes
	dir := filepath.Dir(defpath)
	left, err := loadRows(dir, &def.Left)
	if err != nil {
		return nil, err
	}
	right, err := loadRows(dir, &def.Right)
	if err != nil {
		return nil, err
	}

	var out io.Writer
	switch def.OutputPath {
	case "", "-":
		out = os.Stdout
	default:
		p := def.OutputPath
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		f, err := os.Create(p)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		out = f
	}
	bw := bufio.NewWriter(out)
	w, err := compr.NewWriter(bw, def.Compression, 0)
	if err != nil {
		return nil, err
	}
	res, err := dr.Run(ctx, left, right, w)
	if err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}
	if f, ok := out.(*os.File); ok && f != os.Stdout {
		if err := f.Sync(); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func resultSchema() (*table.Schema, error) {
	switch {
	case dashs != "":
		return table.ParseSchema(dashs)
	case dashd != "":
		def, err := loadDef(dashd)
		if err != nil {
			return nil, err
		}
		return table.ParseSchema(def.Output)
	default:
		return nil, fmt.Errorf("dump requires -s <schema> or -d <definition>")
	}
}

// dump prints each output row on its own line
func dump(dst io.Writer, src io.Reader, s *table.Schema) (int, error) {
	r, err := compr.NewReader(src)
	if err != nil {
		return 0, err
	}
	n := 0
	var row table.Row
	for {
		_, value, err := r.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		row, err = table.DecodeExact(value, s, row)
		if err != nil {
			return n, fmt.Errorf("record %d: %w", n, err)
		}
		if _, err := fmt.Fprintln(dst, row); err != nil {
			return n, err
		}
		n++
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "    %s [-v] [-m] [-p <n>] [-o <output>] [-c <algo>] run <definition.yaml|definition.json>\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "        run a join job\n")
	fmt.Fprintf(os.Stderr, "    %s [-s <schema> | -d <definition>] dump <output>...\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "        print the rows of join output files\n")
	fmt.Fprintf(os.Stderr, "flag usage:\n")
	flag.PrintDefaults()
	os.Exit(1)
}

func main() {
	flag.Parse()
	args := flag.Args()
	if dashh || len(args) == 0 {
		usage()
	}
	switch args[0] {
	case "run":
		if len(args) != 2 {
			exitf("usage: run <definition>\n")
		}
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()
		opts := &options{
			parallel:    dashp,
			output:      dasho,
			compression: dashc,
		}
		if dashm {
			opts.groupBytes = stage.DefaultGroupBytes()
		}
		if dashv {
			opts.logf = logf
		}
		res, err := runJob(ctx, args[1], opts)
		if err != nil {
			exitf("%s\n", err)
		}
		if dashv {
			logf("run %s: %d groups, %d rows, digest %s",
				res.ID, res.Groups(), res.Rows(), hex.EncodeToString(res.Digest[:]))
		}
	case "dump":
		if len(args) < 2 {
			exitf("usage: dump <output>...\n")
		}
		s, err := resultSchema()
		if err != nil {
			exitf("%s\n", err)
		}
		o := bufio.NewWriter(os.Stdout)
		for _, arg := range args[1:] {
			f, err := os.Open(arg)
			if err != nil {
				exitf("can't open %q: %s\n", arg, err)
			}
			n, err := dump(o, bufio.NewReader(f), s)
			f.Close()
			if err != nil {
				exitf("input %s: %s\n", arg, err)
			}
			if dashv {
				logf("%s: %d rows", arg, n)
			}
		}
		if err := o.Flush(); err != nil {
			exitf("%s\n", err)
		}
	default:
		usage()
	}
}
