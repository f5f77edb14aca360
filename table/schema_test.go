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
)

func TestNewSchemaErrors(t *testing.T) {
	tcs := []struct {
		name string
		cols []Column
	}{
		{"duplicate", []Column{{"a", IntType}, {"a", StringType}}},
		{"unnamed", []Column{{"", IntType}}},
		{"badtype", []Column{{"a", InvalidType}}},
		{"outofrange", []Column{{"a", FieldType(99)}}},
	}
	for i := range tcs {
		tc := &tcs[i]
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSchema("t", tc.cols)
			var se *SchemaError
			if !errors.As(err, &se) {
				t.Fatalf("expected *SchemaError; got %v", err)
			}
			if se.Table != "t" {
				t.Errorf("table = %q", se.Table)
			}
		})
	}
}

func TestColumnIndexes(t *testing.T) {
	s := MustSchema("t", Column{"a", IntType}, Column{"b", StringType}, Column{"c", BoolType})
	pos, err := ColumnIndexes(s, []string{"c", "a"})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(pos, []int{2, 0}) {
		t.Fatalf("got %v", pos)
	}
	_, err = ColumnIndexes(s, []string{"a", "z"})
	var se *SchemaError
	if !errors.As(err, &se) || se.Column != "z" {
		t.Fatalf("expected error for column z; got %v", err)
	}
}

func TestSubSchema(t *testing.T) {
	s := MustSchema("t",
		Column{"a", IntType},
		Column{"b", StringType},
		Column{"c", FloatType},
		Column{"d", BoolType},
	)
	sub, err := s.SubSchema([]int{3, 1})
	if err != nil {
		t.Fatal(err)
	}
	if sub.Len() != 2 {
		t.Fatalf("len = %d", sub.Len())
	}
	want := []Column{{"d", BoolType}, {"b", StringType}}
	if got := sub.Columns(); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if i, ok := sub.Index("b"); !ok || i != 1 {
		t.Errorf("Index(b) = %d, %v", i, ok)
	}
	if _, ok := sub.Index("a"); ok {
		t.Error("projected-out column should not resolve")
	}
	// a projection of a projection selects
	// positions relative to the projection
	sub2, err := sub.SubSchema([]int{1})
	if err != nil {
		t.Fatal(err)
	}
	if c := sub2.Column(0); c.Name != "b" {
		t.Errorf("got column %v", c)
	}
	if sub2.Table() != "t" {
		t.Errorf("table = %q", sub2.Table())
	}

	for _, bad := range [][]int{{4}, {-1}, {0, 0}} {
		if _, err := s.SubSchema(bad); err == nil {
			t.Errorf("SubSchema(%v) should fail", bad)
		}
	}
}

func TestComplement(t *testing.T) {
	tcs := []struct {
		pos   []int
		width int
		want  []int
	}{
		{[]int{0}, 3, []int{1, 2}},
		{[]int{2, 0}, 4, []int{1, 3}},
		{nil, 2, []int{0, 1}},
		{[]int{0, 1}, 2, []int{}},
	}
	for _, tc := range tcs {
		got := Complement(tc.pos, tc.width)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Complement(%v, %d) = %v, want %v", tc.pos, tc.width, got, tc.want)
		}
	}
}

func TestValueSchemaProjection(t *testing.T) {
	s := MustSchema("orders",
		Column{"amount", IntType},
		Column{"id", IntType},
		Column{"note", StringType},
	)
	key, err := ColumnIndexes(s, []string{"id"})
	if err != nil {
		t.Fatal(err)
	}
	vs, err := s.SubSchema(Complement(key, s.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if got := vs.String(); got != "orders(amount:int,note:string)" {
		t.Fatalf("got %s", got)
	}
}

func TestParseSchema(t *testing.T) {
	tcs := []struct {
		in, out string
	}{
		{"t(a:int,b:string)", "t(a:int,b:string)"},
		{" users ( id : integer , name:text , ok: boolean, x:double) ", "users(id:int,name:string,ok:bool,x:float)"},
		{"empty()", "empty()"},
	}
	for _, tc := range tcs {
		s, err := ParseSchema(tc.in)
		if err != nil {
			t.Fatalf("%q: %s", tc.in, err)
		}
		if got := s.String(); got != tc.out {
			t.Errorf("%q: got %q want %q", tc.in, got, tc.out)
		}
		// text form round-trips
		s2, err := ParseSchema(s.String())
		if err != nil {
			t.Fatal(err)
		}
		if !s.Equal(s2) {
			t.Errorf("%s != %s", s, s2)
		}
	}
	for _, bad := range []string{
		"t",
		"t(a)",
		"t(a:blob)",
		"t(a:int,a:int)",
		"t(a:int",
	} {
		if _, err := ParseSchema(bad); err == nil {
			t.Errorf("ParseSchema(%q) should fail", bad)
		}
	}
}

func TestSchemaText(t *testing.T) {
	var s Schema
	if err := s.UnmarshalText([]byte("t(a:int)")); err != nil {
		t.Fatal(err)
	}
	b, err := s.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "t(a:int)" {
		t.Fatalf("got %s", b)
	}
}

func TestParseColumns(t *testing.T) {
	got := ParseColumns(" a, b ,,c")
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("got %q", got)
	}
	if s := DumpColumns(got); s != "a,b,c" {
		t.Fatalf("got %q", s)
	}
	if ParseColumns("") != nil {
		t.Fatal("expected nil")
	}
}
