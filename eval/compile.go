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

// Package eval compiles predicate expressions
// against a row schema and evaluates them
// against rows of that schema.
package eval

import (
	"fmt"

	"github.com/SnellerInc/eqjoin/expr"
	"github.com/SnellerInc/eqjoin/table"
)

// CompileError is the error type returned
// from Compile when an expression cannot be
// bound to a schema.
type CompileError struct {
	// Expr is the text of the expression.
	Expr string
	// Column is set when the expression
	// refers to a column that the schema
	// does not have.
	Column string
	Err    error
}

func (c *CompileError) Error() string {
	if c.Column != "" {
		return fmt.Sprintf("compiling %q: unknown column %q", c.Expr, c.Column)
	}
	return fmt.Sprintf("compiling %q: %s", c.Expr, c.Err)
}

func (c *CompileError) Unwrap() error { return c.Err }

// TypeSet returns the set of expression
// types produced by a column of type t.
func TypeSet(t table.FieldType) expr.TypeSet {
	switch t {
	case table.IntType:
		return expr.IntegerType
	case table.FloatType:
		return expr.FloatType
	case table.StringType:
		return expr.StringType
	case table.BoolType:
		return expr.BoolType
	default:
		return expr.AnyType
	}
}

type schemaHint struct {
	schema *table.Schema
}

func (h schemaHint) TypeOf(n expr.Node) expr.TypeSet {
	id, ok := n.(expr.Ident)
	if !ok {
		return expr.AnyType
	}
	i, ok := h.schema.Index(string(id))
	if !ok {
		return expr.AnyType
	}
	return TypeSet(h.schema.Column(i).Type)
}

// Compile binds the identifiers in n to the
// columns of s and type-checks the result.
// The expression must produce a boolean.
//
// The returned error is always a *CompileError;
// it wraps the *expr.TypeError produced by
// the type checker, if any.
func Compile(n expr.Node, s *table.Schema) (*Evaluator, error) {
	if n == nil {
		return nil, &CompileError{Err: fmt.Errorf("empty predicate")}
	}
	text := expr.ToString(n)
	var missing string
	expr.Inspect(n, func(n expr.Node) bool {
		if id, ok := n.(expr.Ident); ok && missing == "" {
			if _, ok := s.Index(string(id)); !ok {
				missing = string(id)
			}
		}
		return missing == ""
	})
	if missing != "" {
		return nil, &CompileError{Expr: text, Column: missing}
	}
	h := schemaHint{schema: s}
	if err := expr.CheckHint(n, h); err != nil {
		return nil, &CompileError{Expr: text, Err: err}
	}
	if t := expr.TypeOf(n, h); !t.Logical() || !t.Only(expr.LogicalType) {
		return nil, &CompileError{Expr: text, Err: fmt.Errorf("predicate has type %s, not bool", t)}
	}
	c := compiler{schema: s}
	p, err := c.compile(n)
	if err != nil {
		return nil, &CompileError{Expr: text, Err: err}
	}
	return &Evaluator{node: n, schema: s, prog: p}, nil
}

// CompileString parses text with expr.Parse
// and then compiles it with Compile.
func CompileString(text string, s *table.Schema) (*Evaluator, error) {
	n, err := expr.Parse(text)
	if err != nil {
		return nil, &CompileError{Expr: text, Err: err}
	}
	return Compile(n, s)
}

type compiler struct {
	schema *table.Schema
}

func (c *compiler) compile(n expr.Node) (prog, error) {
	switch n := n.(type) {
	case expr.Ident:
		i, _ := c.schema.Index(string(n))
		return &column{pos: i}, nil
	case expr.Integer:
		return &constant{v: intval(int64(n))}, nil
	case expr.Float:
		return &constant{v: floatval(float64(n))}, nil
	case expr.String:
		return &constant{v: value{kind: kindString, s: string(n)}}, nil
	case expr.Bool:
		return &constant{v: boolval(bool(n))}, nil
	case *expr.Not:
		inner, err := c.compile(n.Expr)
		if err != nil {
			return nil, err
		}
		return &not{inner: inner}, nil
	case *expr.Logical:
		left, right, err := c.compile2(n.Left, n.Right)
		if err != nil {
			return nil, err
		}
		if n.Op == expr.OpAnd {
			return &and{left: left, right: right}, nil
		}
		return &or{left: left, right: right}, nil
	case *expr.Comparison:
		left, right, err := c.compile2(n.Left, n.Right)
		if err != nil {
			return nil, err
		}
		return &compare{op: n.Op, left: left, right: right}, nil
	case *expr.Arithmetic:
		left, right, err := c.compile2(n.Left, n.Right)
		if err != nil {
			return nil, err
		}
		return &arith{op: n.Op, left: left, right: right}, nil
	case *expr.UnaryArith:
		inner, err := c.compile(n.Child)
		if err != nil {
			return nil, err
		}
		return &neg{inner: inner}, nil
	default:
		return nil, fmt.Errorf("cannot compile expression %s", expr.ToString(n))
	}
}

func (c *compiler) compile2(left, right expr.Node) (prog, prog, error) {
	l, err := c.compile(left)
	if err != nil {
		return nil, nil, err
	}
	r, err := c.compile(right)
	if err != nil {
		return nil, nil, err
	}
	return l, r, nil
}
