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

package ion

import (
	"errors"
	"math"
	"testing"
)

func TestReadIntRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 127, 128, -128, 1 << 40, math.MaxInt64, math.MinInt64}
	var buf Buffer
	for _, v := range values {
		buf.Reset()
		buf.WriteInt(v)
		buf.WriteBool(true)
		got, rest, err := ReadInt(buf.Bytes())
		if err != nil {
			t.Fatalf("ReadInt(%d): %s", v, err)
		}
		if got != v {
			t.Errorf("ReadInt: got %d, want %d", got, v)
		}
		b, rest, err := ReadBool(rest)
		if err != nil || !b || len(rest) != 0 {
			t.Errorf("trailing bool not preserved after %d", v)
		}
	}
}

func TestReadUint(t *testing.T) {
	var buf Buffer
	for _, v := range []int64{0, 1, 255, 1 << 40, math.MaxInt64} {
		buf.Reset()
		buf.WriteInt(v)
		got, rest, err := ReadUint(buf.Bytes())
		if err != nil {
			t.Fatalf("ReadUint(%d): %s", v, err)
		}
		if got != uint64(v) || len(rest) != 0 {
			t.Errorf("ReadUint: got %d, want %d", got, v)
		}
	}
	buf.Reset()
	buf.WriteInt(-1)
	_, _, err := ReadUint(buf.Bytes())
	var te *TypeError
	if !errors.As(err, &te) || te.Found != IntType {
		t.Fatalf("expected *TypeError for a negative integer; got %v", err)
	}
}

func TestReadFloatRoundTrip(t *testing.T) {
	values := []float64{0, 1.5, -2.25, math.MaxFloat64, math.SmallestNonzeroFloat64, math.Inf(-1)}
	var buf Buffer
	for _, v := range values {
		buf.Reset()
		buf.WriteFloat64(v)
		got, rest, err := ReadFloat64(buf.Bytes())
		if err != nil {
			t.Fatalf("ReadFloat64(%g): %s", v, err)
		}
		if got != v || len(rest) != 0 {
			t.Errorf("ReadFloat64: got %g, want %g", got, v)
		}
	}
}

func TestReadErrors(t *testing.T) {
	testcases := []struct {
		name      string
		msg       []byte
		read      func([]byte) error
		truncated bool
	}{
		{
			name:      "empty int",
			msg:       nil,
			read:      func(b []byte) error { _, _, err := ReadInt(b); return err },
			truncated: true,
		},
		{
			name:      "short int",
			msg:       []byte{0x22, 0x01},
			read:      func(b []byte) error { _, _, err := ReadInt(b); return err },
			truncated: true,
		},
		{
			name:      "short string",
			msg:       []byte{0x85, 'a', 'b'},
			read:      func(b []byte) error { _, _, err := ReadString(b); return err },
			truncated: true,
		},
		{
			name:      "unterminated length",
			msg:       []byte{0x8e, 0x01, 0x01},
			read:      func(b []byte) error { _, _, err := ReadString(b); return err },
			truncated: true,
		},
		{
			name:      "length beyond buffer",
			msg:       []byte{0x8e, 0x90, 'a'},
			read:      func(b []byte) error { _, _, err := ReadString(b); return err },
			truncated: true,
		},
		{
			name:      "short float",
			msg:       []byte{0x48, 0x00},
			read:      func(b []byte) error { _, _, err := ReadFloat64(b); return err },
			truncated: true,
		},
		{
			name: "string as int",
			msg:  []byte{0x81, 'a'},
			read: func(b []byte) error { _, _, err := ReadInt(b); return err },
		},
		{
			name: "int as string",
			msg:  []byte{0x21, 0x01},
			read: func(b []byte) error { _, _, err := ReadString(b); return err },
		},
		{
			name: "null bool",
			msg:  []byte{0x1f},
			read: func(b []byte) error { _, _, err := ReadBool(b); return err },
		},
		{
			name: "negative uint",
			msg:  []byte{0x31, 0x01},
			read: func(b []byte) error { _, _, err := ReadUint(b); return err },
		},
	}
	for i := range testcases {
		tc := &testcases[i]
		t.Run(tc.name, func(t *testing.T) {
			err := tc.read(tc.msg)
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := errors.Is(err, ErrTruncated); got != tc.truncated {
				t.Fatalf("errors.Is(%v, ErrTruncated) = %v", err, got)
			}
		})
	}
}

func TestReadTypeError(t *testing.T) {
	_, _, err := ReadInt([]byte{0x83, 'a', 'b', 'c'})
	var te *TypeError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TypeError, got %T", err)
	}
	if te.Found != StringType || te.Wanted != IntType {
		t.Fatalf("unexpected type error %v", te)
	}
}

func TestSizeOf(t *testing.T) {
	var buf Buffer
	buf.WriteString("hello, world!!")
	if got := SizeOf(buf.Bytes()); got != 16 {
		t.Fatalf("SizeOf = %d, want 16", got)
	}
	if got := SizeOf(nil); got != -1 {
		t.Fatalf("SizeOf(nil) = %d", got)
	}
	if got := SizeOf([]byte{0x11}); got != 1 {
		t.Fatalf("SizeOf(true) = %d", got)
	}
}

func FuzzContents(f *testing.F) {
	f.Add([]byte{0x83, 'a', 'b', 'c'})
	f.Add([]byte{0x8e, 0x81, 'x'})
	f.Add([]byte{0x22, 0x01, 0x00})
	f.Fuzz(func(t *testing.T, msg []byte) {
		body, rest := Contents(msg)
		if body == nil {
			return
		}
		if len(body)+len(rest) > len(msg) {
			t.Fatalf("body %d + rest %d exceeds input %d", len(body), len(rest), len(msg))
		}
	})
}
