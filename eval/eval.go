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

package eval

import (
	"math"
	"strings"

	"github.com/SnellerInc/eqjoin/expr"
	"github.com/SnellerInc/eqjoin/table"
)

// Evaluator is a compiled predicate.
//
// An Evaluator is immutable and holds no
// reference to any row, so it may be shared
// by any number of goroutines.
//
// A nil *Evaluator accepts every row.
type Evaluator struct {
	node   expr.Node
	schema *table.Schema
	prog   prog
}

// Eval evaluates the predicate against r,
// which must conform to the schema that the
// predicate was compiled against.
// Comparisons involving MISSING values
// (e.g. the result of integer division by zero)
// are false.
func (e *Evaluator) Eval(r table.Row) bool {
	if e == nil {
		return true
	}
	return e.prog.eval(r).truth()
}

// Binding is an Evaluator bound to one row.
// It borrows the row: the row must not be
// modified while the Binding is in use.
type Binding struct {
	e   *Evaluator
	row table.Row
}

// Bind returns a Binding of e to r.
// Each call to Bind produces an independent
// Binding; no state is carried over from
// rows bound previously.
func (e *Evaluator) Bind(r table.Row) Binding {
	return Binding{e: e, row: r}
}

// Evaluate evaluates the bound predicate
// against the bound row.
func (b Binding) Evaluate() bool { return b.e.Eval(b.row) }

// Schema returns the schema that the
// predicate was compiled against.
func (e *Evaluator) Schema() *table.Schema { return e.schema }

// Node returns the expression that was compiled.
func (e *Evaluator) Node() expr.Node { return e.node }

func (e *Evaluator) String() string {
	if e == nil {
		return "TRUE"
	}
	return expr.ToString(e.node)
}

type kind uint8

const (
	kindMissing kind = iota
	kindInt
	kindFloat
	kindString
	kindBool
)

// value is the result of evaluating
// an expression; the zero value is MISSING
type value struct {
	kind kind
	i    int64 // int value, or 0/1 for bool
	f    float64
	s    string
}

func intval(i int64) value     { return value{kind: kindInt, i: i} }
func floatval(f float64) value { return value{kind: kindFloat, f: f} }

func boolval(b bool) value {
	v := value{kind: kindBool}
	if b {
		v.i = 1
	}
	return v
}

func (v value) truth() bool { return v.kind == kindBool && v.i != 0 }

func (v value) numeric() bool { return v.kind == kindInt || v.kind == kindFloat }

func (v value) float() float64 {
	if v.kind == kindInt {
		return float64(v.i)
	}
	return v.f
}

type prog interface {
	eval(r table.Row) value
}

type column struct {
	pos int
}

func (c *column) eval(r table.Row) value {
	switch f := r[c.pos].(type) {
	case table.Int:
		return intval(int64(f))
	case table.Float:
		return floatval(float64(f))
	case table.String:
		return value{kind: kindString, s: string(f)}
	case table.Bool:
		return boolval(bool(f))
	default:
		return value{}
	}
}

type constant struct {
	v value
}

func (c *constant) eval(table.Row) value { return c.v }

type not struct {
	inner prog
}

func (n *not) eval(r table.Row) value {
	return boolval(!n.inner.eval(r).truth())
}

type and struct {
	left, right prog
}

func (a *and) eval(r table.Row) value {
	return boolval(a.left.eval(r).truth() && a.right.eval(r).truth())
}

type or struct {
	left, right prog
}

func (o *or) eval(r table.Row) value {
	return boolval(o.left.eval(r).truth() || o.right.eval(r).truth())
}

type compare struct {
	op          expr.CmpOp
	left, right prog
}

func (c *compare) eval(r table.Row) value {
	l := c.left.eval(r)
	if l.kind == kindMissing {
		return boolval(false)
	}
	rv := c.right.eval(r)
	if rv.kind == kindMissing {
		return boolval(false)
	}
	switch {
	case l.kind == kindInt && rv.kind == kindInt:
		return boolval(ordered(c.op, cmpint(l.i, rv.i)))
	case l.numeric() && rv.numeric():
		return boolval(cmpfloat(c.op, l.float(), rv.float()))
	case l.kind == kindString && rv.kind == kindString:
		return boolval(ordered(c.op, strings.Compare(l.s, rv.s)))
	case l.kind == kindBool && rv.kind == kindBool:
		switch c.op {
		case expr.Equals:
			return boolval(l.i == rv.i)
		case expr.NotEquals:
			return boolval(l.i != rv.i)
		}
	}
	return boolval(false)
}

func cmpint(a, b int64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// ordered applies op to the result
// of a three-way comparison
func ordered(op expr.CmpOp, c int) bool {
	switch op {
	case expr.Equals:
		return c == 0
	case expr.NotEquals:
		return c != 0
	case expr.Less:
		return c < 0
	case expr.LessEquals:
		return c <= 0
	case expr.Greater:
		return c > 0
	case expr.GreaterEquals:
		return c >= 0
	}
	return false
}

// cmpfloat compares with IEEE semantics,
// so every comparison except <> with NaN is false
func cmpfloat(op expr.CmpOp, a, b float64) bool {
	switch op {
	case expr.Equals:
		return a == b
	case expr.NotEquals:
		return a != b
	case expr.Less:
		return a < b
	case expr.LessEquals:
		return a <= b
	case expr.Greater:
		return a > b
	case expr.GreaterEquals:
		return a >= b
	}
	return false
}

type arith struct {
	op          expr.ArithOp
	left, right prog
}

func (a *arith) eval(r table.Row) value {
	l := a.left.eval(r)
	if !l.numeric() {
		return value{}
	}
	rv := a.right.eval(r)
	if !rv.numeric() {
		return value{}
	}
	if l.kind == kindInt && rv.kind == kindInt {
		x, y := l.i, rv.i
		switch a.op {
		case expr.AddOp:
			return intval(x + y)
		case expr.SubOp:
			return intval(x - y)
		case expr.MulOp:
			return intval(x * y)
		case expr.DivOp:
			if y == 0 {
				return value{}
			}
			return intval(x / y)
		case expr.ModOp:
			if y == 0 {
				return value{}
			}
			return intval(x % y)
		}
		return value{}
	}
	x, y := l.float(), rv.float()
	switch a.op {
	case expr.AddOp:
		return floatval(x + y)
	case expr.SubOp:
		return floatval(x - y)
	case expr.MulOp:
		return floatval(x * y)
	case expr.DivOp:
		return floatval(x / y)
	case expr.ModOp:
		return floatval(math.Mod(x, y))
	}
	return value{}
}

type neg struct {
	inner prog
}

func (n *neg) eval(r table.Row) value {
	v := n.inner.eval(r)
	switch v.kind {
	case kindInt:
		return intval(-v.i)
	case kindFloat:
		return floatval(-v.f)
	default:
		return value{}
	}
}
