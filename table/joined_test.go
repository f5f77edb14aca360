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
	"errors"
	"reflect"
	"testing"

	"github.com/SnellerInc/eqjoin/ion"
)

var (
	users  = MustSchema("users", Column{"id", IntType}, Column{"name", StringType})
	orders = MustSchema("orders", Column{"id", IntType}, Column{"amount", IntType})
	result = MustSchema("result", Column{"id", IntType}, Column{"name", StringType}, Column{"amount", IntType})
)

func encodeRow(r Row) []byte {
	var buf ion.Buffer
	Encode(&buf, r)
	return buf.Bytes()
}

func TestJoinedRowExample(t *testing.T) {
	j, err := NewJoinedRow(result, users, orders, []string{"id"})
	if err != nil {
		t.Fatal(err)
	}
	if err := j.InitByEquiColumns(encodeRow(Row{Int(7)})); err != nil {
		t.Fatal(err)
	}
	want := []Row{
		{Int(7), String("a"), Int(10)},
		{Int(7), String("a"), Int(20)},
	}
	var buf ion.Buffer
	for i, amount := range []Int{10, 20} {
		j.SetCursorOnLeft()
		if err := j.Push(Row{String("a")}); err != nil {
			t.Fatal(err)
		}
		j.SetCursorOnRight()
		if err := j.Push(Row{amount}); err != nil {
			t.Fatal(err)
		}
		if !j.Row().Equal(want[i]) {
			t.Fatalf("row %d: got %s want %s", i, j.Row(), want[i])
		}
		buf.Reset()
		if err := j.WriteTo(&buf); err != nil {
			t.Fatal(err)
		}
		got, err := DecodeExact(buf.Bytes(), result, nil)
		if err != nil {
			t.Fatal(err)
		}
		if !got.Equal(want[i]) {
			t.Fatalf("row %d: decoded %s want %s", i, got, want[i])
		}
	}
}

func TestLayoutKeyOrder(t *testing.T) {
	// the key order is output-schema order,
	// regardless of the order of the using list
	// or of the source schemas
	left := MustSchema("l",
		Column{"b", StringType},
		Column{"x", FloatType},
		Column{"a", IntType},
	)
	right := MustSchema("r",
		Column{"y", BoolType},
		Column{"a", IntType},
		Column{"b", StringType},
	)
	out := MustSchema("o",
		Column{"a", IntType},
		Column{"x", FloatType},
		Column{"b", StringType},
		Column{"y", BoolType},
	)
	l, err := NewLayout(out, left, right, []string{"b", "a"})
	if err != nil {
		t.Fatal(err)
	}
	if got := l.KeyColumns(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("key columns %v", got)
	}
	if got := l.KeyPositions(Left); !reflect.DeepEqual(got, []int{2, 0}) {
		t.Fatalf("left key positions %v", got)
	}
	if got := l.KeyPositions(Right); !reflect.DeepEqual(got, []int{1, 2}) {
		t.Fatalf("right key positions %v", got)
	}
	if got := l.KeySchema().String(); got != "o(a:int,b:string)" {
		t.Fatalf("key schema %s", got)
	}
	if got := l.ValueSchema(Left).String(); got != "l(x:float)" {
		t.Fatalf("left values %s", got)
	}
	if got := l.ValueSchema(Right).String(); got != "r(y:bool)" {
		t.Fatalf("right values %s", got)
	}
	if got := l.Destination(Left); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("left destination %v", got)
	}
	if got := l.Destination(Right); !reflect.DeepEqual(got, []int{3}) {
		t.Fatalf("right destination %v", got)
	}

	// key reconstruction: a key encoded from a
	// left row lands at the output key positions
	lrow := Row{String("k"), Float(1.5), Int(42)}
	var key ion.Buffer
	EncodeKey(&key, lrow, l.KeyPositions(Left))
	j := l.NewJoinedRow()
	if err := j.InitByEquiColumns(key.Bytes()); err != nil {
		t.Fatal(err)
	}
	// only the key positions are written
	if r := j.Row(); r[1] != nil || r[3] != nil {
		t.Fatalf("value positions set by key: %v", []Field(r))
	}
	if r := j.Row(); !r[0].Equal(Int(42)) || !r[2].Equal(String("k")) {
		t.Fatalf("key positions %v", []Field(r))
	}
	j.SetCursorOnLeft()
	if err := j.Push(Row{Float(1.5)}); err != nil {
		t.Fatal(err)
	}
	j.SetCursorOnRight()
	if err := j.Push(Row{Bool(true)}); err != nil {
		t.Fatal(err)
	}
	want := Row{Int(42), Float(1.5), String("k"), Bool(true)}
	if !j.Row().Equal(want) {
		t.Fatalf("got %s want %s", j.Row(), want)
	}

	// a new key replaces the key positions
	// and leaves the value positions alone
	key.Reset()
	EncodeKey(&key, Row{String("z"), Float(0), Int(9)}, l.KeyPositions(Left))
	if err := j.InitByEquiColumns(key.Bytes()); err != nil {
		t.Fatal(err)
	}
	want = Row{Int(9), Float(1.5), String("z"), Bool(true)}
	if !j.Row().Equal(want) {
		t.Fatalf("got %s want %s", j.Row(), want)
	}
}

func TestLayoutErrors(t *testing.T) {
	tcs := []struct {
		name  string
		out   *Schema
		using []string
	}{
		{"no-using", result, nil},
		{"missing-output", result, []string{"name"}},
		{"duplicate-using", result, []string{"id", "id"}},
		{"width", MustSchema("o", Column{"id", IntType}, Column{"name", StringType}), []string{"id"}},
		{"type", MustSchema("o", Column{"id", IntType}, Column{"name", IntType}, Column{"amount", IntType}), []string{"id"}},
		{"key-type", MustSchema("o", Column{"id", StringType}, Column{"name", StringType}, Column{"amount", IntType}), []string{"id"}},
	}
	for i := range tcs {
		tc := &tcs[i]
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewLayout(tc.out, users, orders, tc.using)
			var se *SchemaError
			if !errors.As(err, &se) {
				t.Fatalf("expected *SchemaError; got %v", err)
			}
			t.Logf("%s", err)
		})
	}
}

func TestJoinedRowIncomplete(t *testing.T) {
	j, err := NewJoinedRow(result, users, orders, []string{"id"})
	if err != nil {
		t.Fatal(err)
	}
	var buf ion.Buffer
	if err := j.WriteTo(&buf); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete; got %v", err)
	}
	if err := j.InitByEquiColumns(encodeRow(Row{Int(1)})); err != nil {
		t.Fatal(err)
	}
	j.SetCursorOnLeft()
	if err := j.Push(Row{String("x")}); err != nil {
		t.Fatal(err)
	}
	if err := j.WriteTo(&buf); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete; got %v", err)
	}
	j.SetCursorOnRight()
	if err := j.Push(Row{Int(2)}); err != nil {
		t.Fatal(err)
	}
	if !j.Complete() {
		t.Fatal("row should be complete")
	}
	// a new key resets both sides
	if err := j.InitByEquiColumns(encodeRow(Row{Int(2)})); err != nil {
		t.Fatal(err)
	}
	if j.Complete() {
		t.Fatal("row should not be complete after a new key")
	}
	j.SetCursorOnLeft()
	if err := j.Push(Row{String("y")}); err != nil {
		t.Fatal(err)
	}
	j.SetCursorOnRight()
	if err := j.Push(Row{Int(3)}); err != nil {
		t.Fatal(err)
	}
	// a key that fails to decode leaves
	// nothing that can be serialized
	if err := j.InitByEquiColumns(encodeRow(Row{String("2")})); err == nil {
		t.Fatal("expected a decode error")
	}
	if err := j.WriteTo(&buf); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete after a bad key; got %v", err)
	}
	if buf.Size() != 0 {
		t.Fatal("failed writes should not produce output")
	}
}

func TestJoinedRowShape(t *testing.T) {
	j, err := NewJoinedRow(result, users, orders, []string{"id"})
	if err != nil {
		t.Fatal(err)
	}
	j.SetCursorOnLeft()
	for _, r := range []Row{
		{},
		{Int(1)},
		{String("a"), String("b")},
	} {
		err := j.Push(r)
		var se *ShapeError
		if !errors.As(err, &se) {
			t.Errorf("Push(%s): expected *ShapeError; got %v", r, err)
		}
	}
	for _, key := range [][]byte{
		nil,
		encodeRow(Row{String("7")}),
		encodeRow(Row{Int(7), Int(8)}),
	} {
		err := j.InitByEquiColumns(key)
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Errorf("InitByEquiColumns(% 02x): expected *DecodeError; got %v", key, err)
		}
	}
}

func BenchmarkJoinedRow(b *testing.B) {
	j, err := NewJoinedRow(result, users, orders, []string{"id"})
	if err != nil {
		b.Fatal(err)
	}
	key := encodeRow(Row{Int(7)})
	left := Row{String("name")}
	right := Row{Int(100)}
	var buf ion.Buffer
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		if err := j.InitByEquiColumns(key); err != nil {
			b.Fatal(err)
		}
		j.SetCursorOnLeft()
		j.Push(left)
		j.SetCursorOnRight()
		j.Push(right)
		if err := j.WriteTo(&buf); err != nil {
			b.Fatal(err)
		}
	}
}
