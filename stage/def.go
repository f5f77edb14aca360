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

// Package stage configures and drives
// a complete equi-join: it maps both input
// tables, shuffles them into partitions,
// and runs one reducer per partition.
package stage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"

	"github.com/SnellerInc/eqjoin/compr"
	"github.com/SnellerInc/eqjoin/join"
	"github.com/SnellerInc/eqjoin/table"

	"golang.org/x/exp/slices"
	"sigs.k8s.io/yaml"
)

// TableDef describes one input table.
type TableDef struct {
	// Schema is the text form of the
	// table schema; see table.ParseSchema.
	Schema string `json:"schema"`
	// Input is the path of a file holding the
	// rows of the table as a YAML or JSON list
	// of lists.
	Input string `json:"input,omitempty"`
}

// Definition describes a join job.
type Definition struct {
	// Name is the name of the job.
	Name  string   `json:"name"`
	Left  TableDef `json:"left"`
	Right TableDef `json:"right"`
	// Output is the text form of the
	// schema of the joined rows.
	Output string `json:"output"`
	// Using lists the join columns.
	Using []string `json:"using"`
	// Where is an optional predicate
	// over the output columns.
	Where string `json:"where,omitempty"`
	// OutputPath is where the output
	// stream is written by the CLI.
	OutputPath string `json:"output_path,omitempty"`
	// Parallel is the number of partitions;
	// zero means one.
	Parallel int `json:"parallel,omitempty"`
	// Compression is the algorithm used for
	// the output stream; see compr.Compression.
	Compression string `json:"compression,omitempty"`
	// MaxGroupRows, if positive, limits the
	// number of rows buffered per key group.
	MaxGroupRows int `json:"max_group_rows,omitempty"`
}

// just pick an upper limit to prevent DoS
const maxDefSize = 1024 * 1024

// DecodeDefinition decodes a definition
// in either YAML or JSON form from src.
func DecodeDefinition(src io.Reader) (*Definition, error) {
	buf, err := io.ReadAll(io.LimitReader(src, maxDefSize+1))
	if err != nil {
		return nil, err
	}
	if len(buf) > maxDefSize {
		return nil, fmt.Errorf("definition beyond limit %d", maxDefSize)
	}
	d := new(Definition)
	if err := yaml.UnmarshalStrict(buf, d); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// OpenDefinition calls DecodeDefinition
// on the file at path in fsys.
func OpenDefinition(fsys fs.FS, path string) (*Definition, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d, err := DecodeDefinition(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Validate checks the fields of d that
// do not require parsing the schemas.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("definition has no name")
	}
	if len(d.Using) == 0 {
		return fmt.Errorf("definition %s: no join columns", d.Name)
	}
	if d.Parallel < 0 {
		return fmt.Errorf("definition %s: negative parallelism %d", d.Name, d.Parallel)
	}
	if d.MaxGroupRows < 0 {
		return fmt.Errorf("definition %s: negative max_group_rows %d", d.Name, d.MaxGroupRows)
	}
	if d.Compression != "" && compr.Compression(d.Compression) == nil {
		return fmt.Errorf("definition %s: unknown compression %q", d.Name, d.Compression)
	}
	return nil
}

// Conf returns the configuration
// published to the join workers.
func (d *Definition) Conf() join.Conf {
	c := join.Conf{
		join.KeyLeftSchema:   d.Left.Schema,
		join.KeyRightSchema:  d.Right.Schema,
		join.KeyResultSchema: d.Output,
		join.KeyUsing:        table.DumpColumns(d.Using),
	}
	if d.Where != "" {
		c[join.KeyWhere] = d.Where
	}
	return c
}

// Equal returns whether d and other are equivalent.
func (d *Definition) Equal(other *Definition) bool {
	if d == nil || other == nil {
		return d == nil && other == nil
	}
	return d.Name == other.Name &&
		d.Left == other.Left &&
		d.Right == other.Right &&
		d.Output == other.Output &&
		slices.Equal(d.Using, other.Using) &&
		d.Where == other.Where &&
		d.OutputPath == other.OutputPath &&
		d.Parallel == other.Parallel &&
		d.Compression == other.Compression &&
		d.MaxGroupRows == other.MaxGroupRows
}

// ReadRows decodes a YAML or JSON list of
// lists into rows conforming to s.
func ReadRows(src io.Reader, s *table.Schema) ([]table.Row, error) {
	buf, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	js, err := yaml.YAMLToJSON(buf)
	if err != nil {
		return nil, err
	}
	var lst [][]interface{}
	dec := json.NewDecoder(bytes.NewReader(js))
	// keep integers exact
	dec.UseNumber()
	if err := dec.Decode(&lst); err != nil {
		return nil, fmt.Errorf("reading %s rows: %w", s.Table(), err)
	}
	out := make([]table.Row, 0, len(lst))
	for i, vals := range lst {
		if len(vals) == s.Len() {
			for j := range vals {
				if n, ok := vals[j].(json.Number); ok {
					vals[j], err = number(n, s.Column(j).Type)
					if err != nil {
						return nil, fmt.Errorf("%s row %d: column %q: %w", s.Table(), i, s.Column(j).Name, err)
					}
				}
			}
		}
		r, err := table.ConvertRow(s, vals...)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func number(n json.Number, t table.FieldType) (interface{}, error) {
	if t == table.IntType {
		return n.Int64()
	}
	return n.Float64()
}
