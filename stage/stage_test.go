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
	"errors"
	"sort"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/SnellerInc/eqjoin/join"
	"github.com/SnellerInc/eqjoin/table"
)

const exampleYAML = `
name: orders-by-user
left:
  schema: "users(id:int, name:string)"
  input: users.yaml
right:
  schema: "orders(id:int, amount:int)"
  input: orders.json
output: "result(id:int, name:string, amount:int)"
using: [id]
where: amount > 15
parallel: 4
compression: zstd
`

const exampleJSON = `{
  "name": "orders-by-user",
  "left": {"schema": "users(id:int, name:string)", "input": "users.yaml"},
  "right": {"schema": "orders(id:int, amount:int)", "input": "orders.json"},
  "output": "result(id:int, name:string, amount:int)",
  "using": ["id"],
  "where": "amount > 15",
  "parallel": 4,
  "compression": "zstd"
}`

func decode(t *testing.T, text string) *Definition {
	t.Helper()
	d, err := DecodeDefinition(strings.NewReader(text))
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestDecodeDefinition(t *testing.T) {
	y := decode(t, exampleYAML)
	j := decode(t, exampleJSON)
	if !y.Equal(j) {
		t.Fatalf("YAML %+v and JSON %+v differ", y, j)
	}
	if y.Left.Input != "users.yaml" || y.Parallel != 4 || y.Where != "amount > 15" {
		t.Fatalf("unexpected definition %+v", y)
	}
	c := y.Conf()
	if c[join.KeyUsing] != "id" || c[join.KeyWhere] != "amount > 15" {
		t.Fatalf("unexpected conf %v", c)
	}
	if _, err := join.Setup(c); err != nil {
		t.Fatal(err)
	}

	fsys := fstest.MapFS{"def.yaml": &fstest.MapFile{Data: []byte(exampleYAML)}}
	d, err := OpenDefinition(fsys, "def.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if !d.Equal(y) {
		t.Fatal("OpenDefinition mismatch")
	}
}

func TestDefinitionErrors(t *testing.T) {
	testcases := []string{
		"name: x\nusing: [id]\nbogus: 1\n",
		"using: [id]\n",
		"name: x\n",
		"name: x\nusing: [id]\nparallel: -1\n",
		"name: x\nusing: [id]\nmax_group_rows: -1\n",
		"name: x\nusing: [id]\ncompression: lz4\n",
		"name: [x\n",
		strings.Repeat("#", maxDefSize+1),
	}
	for _, text := range testcases {
		if _, err := DecodeDefinition(strings.NewReader(text)); err == nil {
			t.Errorf("%.40q: expected an error", text)
		}
	}
}

func TestReadRows(t *testing.T) {
	s := table.MustSchema("t",
		table.Column{Name: "id", Type: table.IntType},
		table.Column{Name: "name", Type: table.StringType},
		table.Column{Name: "price", Type: table.FloatType},
		table.Column{Name: "ok", Type: table.BoolType},
	)
	rows, err := ReadRows(strings.NewReader("- [1, a, 2.5, true]\n- [9007199254740993, 'b', 3, false]\n"), s)
	if err != nil {
		t.Fatal(err)
	}
	want := []table.Row{
		{table.Int(1), table.String("a"), table.Float(2.5), table.Bool(true)},
		{table.Int(9007199254740993), table.String("b"), table.Float(3), table.Bool(false)},
	}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows", len(rows))
	}
	for i := range want {
		if !rows[i].Equal(want[i]) {
			t.Fatalf("row %d: got %s want %s", i, rows[i], want[i])
		}
	}
	rows, err = ReadRows(strings.NewReader(`[[2, "x", 1000.5, false]]`), s)
	if err != nil || len(rows) != 1 || !rows[0][2].Equal(table.Float(1000.5)) {
		t.Fatalf("JSON rows: %v %v", rows, err)
	}
	for _, bad := range []string{
		"- [1.5, a, 2.5, true]",
		"- [1, 2, 2.5, true]",
		"- [1, a, 2.5]",
		"- [1, a, x, true]",
		"{a: 1}",
	} {
		if _, err := ReadRows(strings.NewReader(bad), s); err == nil {
			t.Errorf("%q: expected an error", bad)
		}
	}
}

func exampleDriver(t *testing.T, parallel int) *Driver {
	t.Helper()
	d := decode(t, exampleYAML)
	d.Parallel = parallel
	d.Where = ""
	dr, err := NewDriver(d)
	if err != nil {
		t.Fatal(err)
	}
	dr.Logf = t.Logf
	return dr
}

func exampleRows(n int) (left, right []table.Row) {
	for i := 0; i < n; i++ {
		left = append(left, table.Row{table.Int(int64(i)), table.String(strings.Repeat("u", i%5+1))})
		for j := 0; j < i%4; j++ {
			right = append(right, table.Row{table.Int(int64(i)), table.Int(int64(10 * j))})
		}
	}
	return left, right
}

func run(t *testing.T, dr *Driver, left, right []table.Row) (*Result, []string) {
	t.Helper()
	var c join.Collector
	res, err := dr.Run(context.Background(), left, right, &c)
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	for i := range c.Records {
		r, err := table.DecodeExact(c.Records[i].Value, dr.Layout().Output(), nil)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, r.String())
	}
	return res, out
}

func TestDriverExample(t *testing.T) {
	dr := exampleDriver(t, 3)
	dr.def.Where = "amount > 15"
	left := []table.Row{{table.Int(7), table.String("a")}}
	right := []table.Row{{table.Int(7), table.Int(10)}, {table.Int(7), table.Int(20)}}
	res, out := run(t, dr, left, right)
	if len(out) != 1 || out[0] != `(7, "a", 20)` {
		t.Fatalf("got %v", out)
	}
	if res.Rows() != 1 || res.Groups() != 1 || res.Partitions != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestDriverDeterminism(t *testing.T) {
	left, right := exampleRows(200)
	want := 0
	for i := 0; i < 200; i++ {
		want += i % 4
	}
	var sorted []string
	for _, parallel := range []int{1, 4, 16} {
		dr := exampleDriver(t, parallel)
		r1, out1 := run(t, dr, left, right)
		r2, out2 := run(t, dr, left, right)
		if r1.Digest != r2.Digest {
			t.Fatalf("parallel=%d: digests differ", parallel)
		}
		if r1.ID == r2.ID {
			t.Fatal("runs share an ID")
		}
		if strings.Join(out1, "\n") != strings.Join(out2, "\n") {
			t.Fatalf("parallel=%d: outputs differ", parallel)
		}
		if len(out1) != want || r1.Rows() != int64(want) {
			t.Fatalf("parallel=%d: %d rows, want %d", parallel, len(out1), want)
		}
		// the set of rows does not depend
		// on the number of partitions
		sort.Strings(out1)
		if sorted == nil {
			sorted = out1
		} else if strings.Join(sorted, "\n") != strings.Join(out1, "\n") {
			t.Fatalf("parallel=%d: different rows", parallel)
		}
	}
}

func TestDriverErrors(t *testing.T) {
	left, right := exampleRows(50)
	dr := exampleDriver(t, 2)
	var c join.Collector
	_, err := dr.Run(context.Background(), left, append(right, table.Row{table.String("x"), table.Int(1)}), &c)
	var se *table.ShapeError
	if !errors.As(err, &se) {
		t.Fatalf("expected *table.ShapeError; got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := dr.Run(ctx, left, right, &c); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled; got %v", err)
	}

	dr.def.MaxGroupRows = 2
	_, err = dr.Run(context.Background(), left, right, &c)
	var ge *join.GroupLimitError
	if !errors.As(err, &ge) {
		t.Fatalf("expected *join.GroupLimitError; got %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("%d records emitted by failed runs", c.Len())
	}

	dr.def.MaxGroupRows = 0
	dr.MaxGroupBytes = 8
	_, err = dr.Run(context.Background(), left, right, &c)
	if !errors.As(err, &ge) || ge.MaxBytes != 8 {
		t.Fatalf("expected a byte limit error; got %v", err)
	}

	d := decode(t, exampleYAML)
	d.Where = "price > 1"
	if _, err := NewDriver(d); err == nil {
		t.Fatal("expected a compile error")
	}
}

func TestDriverNoGroupBudget(t *testing.T) {
	// the result of a run must not depend
	// on the memory of the host
	dr := exampleDriver(t, 1)
	if dr.MaxGroupBytes != 0 {
		t.Fatalf("MaxGroupBytes = %d, want 0", dr.MaxGroupBytes)
	}
}

func TestDefaultGroupBytes(t *testing.T) {
	n := DefaultGroupBytes()
	if n < 0 {
		t.Fatalf("DefaultGroupBytes() = %d", n)
	}
	t.Logf("default group budget: %d bytes", n)
}
