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

package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Visitor is an interface that must
// be satisfied by the argument to Visit.
//
// A Visitor's Visit method is invoked for each node encountered by Walk. If
// the result visitor w is not nil, Walk visits each of the children of node
// with the visitor w, followed by a call of w.Visit(nil).
//
// (see also: ast.Visitor)
type Visitor interface {
	Visit(Node) Visitor
}

// Walk traverses an AST in depth-first order: It starts by calling
// v.Visit(node); node must not be nil. If the visitor w returned by
// v.Visit(node) is not nil, Walk is invoked recursively with visitor w for
// each of the non-nil children of node, followed by a call of w.Visit(nil).
//
// (see also: ast.Walk)
func Walk(v Visitor, n Node) {
	w := v.Visit(n)
	if w != nil {
		n.walk(w)
		w.Visit(nil)
	}
}

type walkfn func(Node) bool

func (w walkfn) Visit(n Node) Visitor {
	if n == nil || !w(n) {
		return nil
	}
	return w
}

// Inspect calls fn for each node of the AST
// in depth-first order. If fn returns false,
// the children of that node are not visited.
func Inspect(n Node, fn func(Node) bool) {
	Walk(walkfn(fn), n)
}

// ToString returns the string
// representation of this AST node
// and its children. The result can
// be parsed again with Parse.
func ToString(p Printable) string {
	if p == nil {
		return "<nil>"
	}
	var dst strings.Builder
	p.text(&dst)
	return dst.String()
}

type Printable interface {
	// text should write the textual representation
	// of this node to dst
	text(dst *strings.Builder)
}

// Node is an expression AST node
type Node interface {
	Printable
	// Equals returns whether this node
	// is syntactically equivalent to another node.
	Equals(Node) bool

	walk(Visitor)
}

// Equal returns whether a and b are equivalent.
// a or b may be nil.
func Equal(a, b Node) bool {
	if a == nil {
		return b == nil
	}
	return b != nil && a.Equals(b)
}

// Constant is a Node that is
// a constant value.
type Constant interface {
	Node
	Type() TypeSet
	constant()
}

var (
	// these are all the Constant types
	_ Constant = String("")
	_ Constant = Integer(0)
	_ Constant = Float(0)
	_ Constant = Bool(true)
)

// IsConstant returns true if node is a constant value
func IsConstant(e Node) bool {
	_, ok := e.(Constant)
	return ok
}

type stronglyTyped interface {
	Type() TypeSet
}

type weaklyTyped interface {
	typeof(h Hint) TypeSet
}

// TypeOf attempts to return the set
// of types that a node could evaluate
// to at runtime.
func TypeOf(n Node, h Hint) TypeSet {
	if h == nil {
		h = HintFn(NoHint)
	}
	// identifiers can only be typed via hints by definition
	if _, ok := n.(Ident); ok {
		return h.TypeOf(n)
	}
	if st, ok := n.(stronglyTyped); ok {
		return st.Type()
	}
	if tn, ok := n.(weaklyTyped); ok {
		return tn.typeof(h)
	}
	return AnyType
}

// operator precedence, loosest first;
// used to decide where text() needs parentheses
const (
	precOr = iota + 1
	precAnd
	precNot
	precCmp
	precAdd
	precMul
	precUnary
	precAtom
)

func precedence(n Node) int {
	switch n := n.(type) {
	case *Logical:
		if n.Op == OpOr {
			return precOr
		}
		return precAnd
	case *Not:
		return precNot
	case *Comparison:
		return precCmp
	case *Arithmetic:
		if n.Op == AddOp || n.Op == SubOp {
			return precAdd
		}
		return precMul
	case *UnaryArith:
		return precUnary
	default:
		return precAtom
	}
}

// paren writes n, wrapping it in parentheses
// when it binds more loosely than min
func paren(dst *strings.Builder, n Node, min int) {
	if precedence(n) < min {
		dst.WriteByte('(')
		n.text(dst)
		dst.WriteByte(')')
		return
	}
	n.text(dst)
}

// Bool is a literal boolean AST node
type Bool bool

func (b Bool) text(dst *strings.Builder) {
	if b {
		dst.WriteString("TRUE")
	} else {
		dst.WriteString("FALSE")
	}
}

func (b Bool) Equals(e Node) bool {
	eb, ok := e.(Bool)
	return ok && eb == b
}

func (b Bool) walk(v Visitor) {}
func (b Bool) constant()      {}
func (b Bool) Type() TypeSet  { return BoolType }

// String is a literal string AST node
type String string

func (s String) text(dst *strings.Builder) {
	quote(dst, string(s))
}

func (s String) Equals(e Node) bool {
	es, ok := e.(String)
	return ok && es == s
}

func (s String) walk(v Visitor) {}
func (s String) constant()      {}
func (s String) Type() TypeSet  { return StringType }

// Float is a literal float AST node
type Float float64

func (f Float) text(dst *strings.Builder) {
	str := strconv.FormatFloat(float64(f), 'g', -1, 64)
	dst.WriteString(str)
	// make sure the text does not
	// read back as an integer
	if !strings.ContainsAny(str, ".eEIN") {
		dst.WriteString(".0")
	}
}

func (f Float) Equals(e Node) bool {
	ef, ok := e.(Float)
	return ok && ef == f
}

func (f Float) walk(v Visitor) {}
func (f Float) constant()      {}
func (f Float) Type() TypeSet  { return FloatType }

// Integer is a literal integer AST node
type Integer int64

func (i Integer) text(dst *strings.Builder) {
	dst.WriteString(strconv.FormatInt(int64(i), 10))
}

func (i Integer) Equals(e Node) bool {
	ei, ok := e.(Integer)
	return ok && ei == i
}

func (i Integer) walk(v Visitor) {}
func (i Integer) constant()      {}
func (i Integer) Type() TypeSet  { return IntegerType }

// Ident is a column reference
type Ident string

func (i Ident) text(dst *strings.Builder) {
	dst.WriteString(QuoteID(string(i)))
}

func (i Ident) walk(v Visitor) {}

func (i Ident) Equals(x Node) bool {
	xi, ok := x.(Ident)
	return ok && xi == i
}

// CmpOp is a comparison operation type
type CmpOp int

const (
	Equals CmpOp = iota
	NotEquals

	// note: keep these in order
	// so that we can determine
	// quickly if we are performing
	// an ordinal comparison:

	Less
	LessEquals
	Greater
	GreaterEquals
)

func (c CmpOp) String() string {
	switch c {
	case Equals:
		return "="
	case NotEquals:
		return "<>"
	case Less:
		return "<"
	case LessEquals:
		return "<="
	case Greater:
		return ">"
	case GreaterEquals:
		return ">="
	default:
		return "<unknown cmp op>"
	}
}

func (c CmpOp) Ordinal() bool {
	return c >= Less && c <= GreaterEquals
}

// Flip returns the operator that is equivalent to c if
// used with the operand order reversed.
func (c CmpOp) Flip() CmpOp {
	switch c {
	case Less:
		return Greater
	case LessEquals:
		return GreaterEquals
	case Greater:
		return Less
	case GreaterEquals:
		return LessEquals
	default:
		return c
	}
}

// Comparison is a Node that represents
// a binary comparison
type Comparison struct {
	Op          CmpOp
	Left, Right Node
}

// Compare generates a comparison operation
// of the given type and with the given arguments
func Compare(op CmpOp, left, right Node) *Comparison {
	return &Comparison{Op: op, Left: left, Right: right}
}

func (c *Comparison) Equals(x Node) bool {
	xc, ok := x.(*Comparison)
	return ok && c.Op == xc.Op && c.Left.Equals(xc.Left) && c.Right.Equals(xc.Right)
}

func (c *Comparison) walk(v Visitor) {
	if c.Left != nil {
		Walk(v, c.Left)
	}
	if c.Right != nil {
		Walk(v, c.Right)
	}
}

func (c *Comparison) text(dst *strings.Builder) {
	// comparisons do not associate, so
	// a comparison on either side needs parentheses
	paren(dst, c.Left, precCmp+1)
	dst.WriteString(fmt.Sprintf(" %s ", c.Op))
	paren(dst, c.Right, precCmp+1)
}

func (c *Comparison) Type() TypeSet {
	return LogicalType
}

// LogicalOp is a logical operation
type LogicalOp int

const (
	OpAnd LogicalOp = iota // A AND B
	OpOr                   // A OR B
)

func (l LogicalOp) String() string {
	switch l {
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	}
	return "<unknown logical op>"
}

// Logical is a Node that represents
// a logical expression
type Logical struct {
	Op          LogicalOp
	Left, Right Node
}

// And yields '<left> AND <right>'
func And(left, right Node) *Logical {
	return &Logical{Op: OpAnd, Left: left, Right: right}
}

// Or yields '<left> OR <right>'
func Or(left, right Node) *Logical {
	return &Logical{Op: OpOr, Left: left, Right: right}
}

func (l *Logical) Equals(x Node) bool {
	xl, ok := x.(*Logical)
	return ok && l.Op == xl.Op && l.Left.Equals(xl.Left) && l.Right.Equals(xl.Right)
}

func (l *Logical) walk(v Visitor) {
	if l.Left != nil {
		Walk(v, l.Left)
	}
	if l.Right != nil {
		Walk(v, l.Right)
	}
}

func (l *Logical) text(dst *strings.Builder) {
	p := precedence(l)
	paren(dst, l.Left, p)
	dst.WriteByte(' ')
	dst.WriteString(l.Op.String())
	dst.WriteByte(' ')
	// the operators are left-associative,
	// so an equal-precedence rhs needs parentheses
	paren(dst, l.Right, p+1)
}

func (l *Logical) Type() TypeSet {
	return LogicalType
}

// Not yields
//
//	NOT (Expr)
type Not struct {
	Expr Node
}

func (n *Not) text(dst *strings.Builder) {
	dst.WriteString("NOT ")
	paren(dst, n.Expr, precNot)
}

func (n *Not) walk(v Visitor) {
	Walk(v, n.Expr)
}

func (n *Not) Type() TypeSet {
	return LogicalType
}

func (n *Not) Equals(x Node) bool {
	xn, ok := x.(*Not)
	return ok && n.Expr.Equals(xn.Expr)
}

// ArithOp is a binary arithmetic operation
type ArithOp int

const (
	AddOp ArithOp = iota
	SubOp
	MulOp
	DivOp
	ModOp
)

func (a ArithOp) String() string {
	switch a {
	case AddOp:
		return "+"
	case SubOp:
		return "-"
	case MulOp:
		return "*"
	case DivOp:
		return "/"
	case ModOp:
		return "%"
	default:
		return fmt.Sprintf("<ArithOp=%d>", int(a))
	}
}

// Arithmetic is a binary arithmetic expression
type Arithmetic struct {
	Op          ArithOp
	Left, Right Node
}

// NewArith generates a binary arithmetic expression.
func NewArith(op ArithOp, left, right Node) *Arithmetic {
	return &Arithmetic{Op: op, Left: left, Right: right}
}

func Add(left, right Node) *Arithmetic { return NewArith(AddOp, left, right) }
func Sub(left, right Node) *Arithmetic { return NewArith(SubOp, left, right) }
func Mul(left, right Node) *Arithmetic { return NewArith(MulOp, left, right) }
func Div(left, right Node) *Arithmetic { return NewArith(DivOp, left, right) }
func Mod(left, right Node) *Arithmetic { return NewArith(ModOp, left, right) }

func (a *Arithmetic) text(dst *strings.Builder) {
	p := precedence(a)
	paren(dst, a.Left, p)
	dst.WriteString(fmt.Sprintf(" %s ", a.Op))
	paren(dst, a.Right, p+1)
}

func (a *Arithmetic) walk(v Visitor) {
	if a.Left != nil {
		Walk(v, a.Left)
	}
	if a.Right != nil {
		Walk(v, a.Right)
	}
}

func (a *Arithmetic) Equals(x Node) bool {
	xa, ok := x.(*Arithmetic)
	if !ok {
		return false
	}

	return a.Op == xa.Op && a.Left.Equals(xa.Left) && a.Right.Equals(xa.Right)
}

func (a *Arithmetic) typeof(hint Hint) TypeSet {
	// the return type is Numeric,
	// but it is also Missing if either
	// the left or right value can be
	// missing
	left := TypeOf(a.Left, hint)
	if left&NumericType == 0 {
		return MissingType
	}
	right := TypeOf(a.Right, hint)
	if right&NumericType == 0 {
		return MissingType
	}
	both := (left | right)
	if a.Op == DivOp || a.Op == ModOp || (both&^NumericType) != 0 {
		// integer division by zero yields
		// MISSING even if both inputs are
		// always numbers
		both |= MissingType
	}
	if left.Only(IntegerType|MissingType) && right.Only(IntegerType|MissingType) {
		both &^= FloatType
	}
	return both & (NumericType | MissingType)
}

// UnaryArithOp is one of the unary arithmetic ops
type UnaryArithOp int

const (
	NegOp UnaryArithOp = iota
)

// UnaryArith is a unary arithmetic expression
type UnaryArith struct {
	Op    UnaryArithOp
	Child Node
}

// Neg yields -(child)
func Neg(child Node) *UnaryArith {
	return &UnaryArith{Op: NegOp, Child: child}
}

func (u *UnaryArith) text(dst *strings.Builder) {
	dst.WriteByte('-')
	// a numeric literal directly after '-'
	// would read back as a negative literal
	if IsConstant(u.Child) {
		dst.WriteByte('(')
		u.Child.text(dst)
		dst.WriteByte(')')
		return
	}
	paren(dst, u.Child, precUnary)
}

func (u *UnaryArith) walk(v Visitor) {
	Walk(v, u.Child)
}

func (u *UnaryArith) Equals(x Node) bool {
	xu, ok := x.(*UnaryArith)
	return ok && u.Op == xu.Op && u.Child.Equals(xu.Child)
}

func (u *UnaryArith) typeof(hint Hint) TypeSet {
	ct := TypeOf(u.Child, hint)
	nt := ct & NumericType
	// The result can be MISSING if Child can be MISSING or a non-numeric type.
	nt |= (MissingType & ct)
	if ct&^(MissingType|NumericType) != 0 {
		nt |= MissingType
	}
	return nt
}
