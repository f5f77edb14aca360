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
	"math"
	"strings"
	"testing"

	"github.com/SnellerInc/eqjoin/ion"
)

var wide = MustSchema("wide",
	Column{"i", IntType},
	Column{"f", FloatType},
	Column{"s", StringType},
	Column{"b", BoolType},
)

func TestCodecRoundTrip(t *testing.T) {
	rows := []Row{
		{Int(0), Float(0), String(""), Bool(false)},
		{Int(-1), Float(-0.5), String("x"), Bool(true)},
		{Int(math.MaxInt64), Float(math.Inf(1)), String(strings.Repeat("abc", 100)), Bool(true)},
		{Int(math.MinInt64), Float(math.SmallestNonzeroFloat64), String("héllo"), Bool(false)},
		{Int(1), Float(math.NaN()), String("nan"), Bool(true)},
		{Int(2), Float(math.Copysign(0, -1)), String("-0"), Bool(true)},
	}
	var buf ion.Buffer
	var dst Row
	for _, r := range rows {
		if err := Check(wide, r); err != nil {
			t.Fatal(err)
		}
		buf.Reset()
		Encode(&buf, r)
		got, rest, err := Decode(buf.Bytes(), wide, dst)
		if err != nil {
			t.Fatalf("%s: %s", r, err)
		}
		if len(rest) != 0 {
			t.Fatalf("%s: %d trailing bytes", r, len(rest))
		}
		if !got.Equal(r) {
			t.Fatalf("got %s want %s", got, r)
		}
		dst = got
	}
}

func TestFloatEqual(t *testing.T) {
	nan := Float(math.NaN())
	if !nan.Equal(nan) {
		t.Error("NaN should equal itself")
	}
	if Float(0).Equal(Float(math.Copysign(0, -1))) {
		t.Error("0 should not equal -0")
	}
	if !Float(1.5).Equal(Float(1.5)) || Float(1.5).Equal(Int(1)) {
		t.Error("unexpected Equal result")
	}
}

func TestDecodeTruncated(t *testing.T) {
	var buf ion.Buffer
	Encode(&buf, Row{Int(300), Float(1.5), String("hello"), Bool(true)})
	full := buf.Bytes()
	for i := 0; i < len(full); i++ {
		_, _, err := Decode(full[:i], wide, nil)
		var de *DecodeError
		if !errors.As(err, &de) {
			t.Fatalf("prefix %d: expected *DecodeError; got %v", i, err)
		}
	}
}

func TestDecodeWrongType(t *testing.T) {
	var buf ion.Buffer
	Encode(&buf, Row{String("not an int"), Float(1), String(""), Bool(false)})
	_, _, err := Decode(buf.Bytes(), wide, nil)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DecodeError; got %v", err)
	}
	var te *ion.TypeError
	if !errors.As(err, &te) {
		t.Fatalf("expected wrapped *ion.TypeError; got %v", err)
	}
	if !strings.Contains(err.Error(), `"i"`) {
		t.Errorf("error %q should name the column", err)
	}
}

func TestDecodeExactTrailing(t *testing.T) {
	s := MustSchema("t", Column{"a", IntType})
	var buf ion.Buffer
	Encode(&buf, Row{Int(1), Int(2)})
	_, err := DecodeExact(buf.Bytes(), s, nil)
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DecodeError; got %v", err)
	}
	if !errors.Is(err, errTrailing) {
		t.Fatalf("expected trailing-bytes error; got %v", err)
	}
}

func TestEncodeKey(t *testing.T) {
	var a, b ion.Buffer
	EncodeKey(&a, Row{Int(1), String("x"), Bool(true)}, []int{2, 0})
	Encode(&b, Row{Bool(true), Int(1)})
	if string(a.Bytes()) != string(b.Bytes()) {
		t.Fatalf("got % 02x want % 02x", a.Bytes(), b.Bytes())
	}
}

func TestFragment(t *testing.T) {
	left := MustSchema("l", Column{"name", StringType})
	right := MustSchema("r", Column{"amount", IntType}, Column{"ok", BoolType})

	var buf ion.Buffer
	EncodeFragment(&buf, Left, Row{String("a")})
	side, r, err := DecodeFragment(buf.Bytes(), left, right, nil)
	if err != nil {
		t.Fatal(err)
	}
	if side != Left || !r.Equal(Row{String("a")}) {
		t.Fatalf("got %s %s", side, r)
	}

	buf.Reset()
	EncodeFragment(&buf, Right, Row{Int(10), Bool(true)})
	side, r, err = DecodeFragment(buf.Bytes(), left, right, r)
	if err != nil {
		t.Fatal(err)
	}
	if side != Right || !r.Equal(Row{Int(10), Bool(true)}) {
		t.Fatalf("got %s %s", side, r)
	}

	// a right fragment must not decode as a left row
	buf.Reset()
	EncodeFragment(&buf, Right, Row{String("a")})
	if _, _, err := DecodeFragment(buf.Bytes(), left, right, nil); err == nil {
		t.Fatal("expected error for mis-tagged fragment")
	}
}

func TestDecodeSide(t *testing.T) {
	tcs := []struct {
		name string
		enc  func(b *ion.Buffer)
		ok   bool
		side Side
	}{
		{"left", func(b *ion.Buffer) { b.WriteInt(0) }, true, Left},
		{"right", func(b *ion.Buffer) { b.WriteInt(1) }, true, Right},
		{"two", func(b *ion.Buffer) { b.WriteInt(2) }, false, 0},
		{"negative", func(b *ion.Buffer) { b.WriteInt(-1) }, false, 0},
		{"string", func(b *ion.Buffer) { b.WriteString("left") }, false, 0},
		{"empty", func(b *ion.Buffer) {}, false, 0},
	}
	for i := range tcs {
		tc := &tcs[i]
		t.Run(tc.name, func(t *testing.T) {
			var buf ion.Buffer
			tc.enc(&buf)
			side, _, err := DecodeSide(buf.Bytes())
			if !tc.ok {
				var de *DecodeError
				if !errors.As(err, &de) {
					t.Fatalf("expected *DecodeError; got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if side != tc.side {
				t.Fatalf("got %s", side)
			}
		})
	}
}

func TestConvertRow(t *testing.T) {
	r, err := ConvertRow(wide, 7, 2, "x", true)
	if err != nil {
		t.Fatal(err)
	}
	if !r.Equal(Row{Int(7), Float(2), String("x"), Bool(true)}) {
		t.Fatalf("got %s", r)
	}
	// integral floats come from YAML and JSON decoders
	r, err = ConvertRow(wide, float64(3), 1.5, "y", false)
	if err != nil {
		t.Fatal(err)
	}
	if !r.Equal(Row{Int(3), Float(1.5), String("y"), Bool(false)}) {
		t.Fatalf("got %s", r)
	}
	if _, err := ConvertRow(wide, 1.5, 1.5, "y", false); err == nil {
		t.Fatal("fractional value accepted for int column")
	}
	if _, err := ConvertRow(wide, 1); err == nil {
		t.Fatal("short row accepted")
	}
	if _, err := MakeRow(wide, Int(1), Int(2), String(""), Bool(true)); err == nil {
		t.Fatal("wrong field type accepted")
	}
}

func FuzzDecodeFragment(f *testing.F) {
	left := MustSchema("l", Column{"name", StringType}, Column{"x", FloatType})
	right := MustSchema("r", Column{"amount", IntType}, Column{"ok", BoolType})
	var buf ion.Buffer
	EncodeFragment(&buf, Left, Row{String("a"), Float(2.5)})
	f.Add(append([]byte(nil), buf.Bytes()...))
	buf.Reset()
	EncodeFragment(&buf, Right, Row{Int(-300), Bool(true)})
	f.Add(append([]byte(nil), buf.Bytes()...))
	f.Fuzz(func(t *testing.T, msg []byte) {
		side, r, err := DecodeFragment(msg, left, right, nil)
		if err != nil {
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("error %v is not a *DecodeError", err)
			}
			return
		}
		s := left
		if side == Right {
			s = right
		}
		if err := Check(s, r); err != nil {
			t.Fatal(err)
		}
		// the input need not be canonical, but
		// re-encoding a decoded fragment must be
		var out, out2 ion.Buffer
		EncodeFragment(&out, side, r)
		side2, r2, err := DecodeFragment(out.Bytes(), left, right, nil)
		if err != nil {
			t.Fatal(err)
		}
		if side2 != side {
			t.Fatalf("side %s != %s", side, side2)
		}
		EncodeFragment(&out2, side2, r2)
		if string(out.Bytes()) != string(out2.Bytes()) {
			t.Fatalf("% 02x != % 02x", out.Bytes(), out2.Bytes())
		}
	})
}
