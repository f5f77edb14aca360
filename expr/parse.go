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
	"strconv"
	"strings"
)

type token int

const (
	tokEOF token = iota
	tokNumber
	tokString
	tokIdent
	tokAnd
	tokOr
	tokNot
	tokTrue
	tokFalse
	tokLParen
	tokRParen
	tokCmp   // any comparison operator; see scanner.cmp
	tokArith // any binary arithmetic operator except '-'
	tokMinus
)

func (t token) String() string {
	switch t {
	case tokEOF:
		return "end of input"
	case tokNumber:
		return "number"
	case tokString:
		return "string"
	case tokIdent:
		return "identifier"
	case tokAnd:
		return "AND"
	case tokOr:
		return "OR"
	case tokNot:
		return "NOT"
	case tokTrue:
		return "TRUE"
	case tokFalse:
		return "FALSE"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokCmp:
		return "comparison"
	case tokArith, tokMinus:
		return "arithmetic operator"
	default:
		return "token(" + strconv.Itoa(int(t)) + ")"
	}
}

type scanner struct {
	from []byte
	pos  int

	// current token
	tok   token
	start int    // offset of the current token
	text  string // number text, unescaped string, or identifier
	cmp   CmpOp
	arith ArithOp
}

func isdigit(x byte) bool {
	return x >= '0' && x <= '9'
}

func isalpha(x byte) bool {
	return (x >= 'a' && x <= 'z') || (x >= 'A' && x <= 'Z')
}

func isident(x byte) bool {
	return isalpha(x) || isdigit(x) || x == '_'
}

func isspace(x byte) bool {
	return x == ' ' || x == '\n' || x == '\t' || x == '\r' || x == '\f' || x == '\v'
}

// chomp whitespace from input
func (s *scanner) chompws() {
	for s.pos < len(s.from) && isspace(s.from[s.pos]) {
		s.pos++
	}
}

func (s *scanner) peekat(i int) byte {
	if s.pos+i < len(s.from) {
		return s.from[s.pos+i]
	}
	return 0
}

// next advances to the next token
func (s *scanner) next() error {
	s.chompws()
	s.start = s.pos
	if s.pos >= len(s.from) {
		s.tok = tokEOF
		return nil
	}
	b := s.from[s.pos]
	switch {
	case isdigit(b) || (b == '.' && isdigit(s.peekat(1))):
		return s.lexNumber()
	case isalpha(b) || b == '_':
		s.lexWord()
		return nil
	case b == '\'':
		return s.lexString()
	case b == '"':
		return s.lexQuotedIdent()
	}
	two := string(s.from[s.pos:min(s.pos+2, len(s.from))])
	switch two {
	case "<=":
		s.op2(tokCmp, LessEquals)
	case ">=":
		s.op2(tokCmp, GreaterEquals)
	case "<>", "!=":
		s.op2(tokCmp, NotEquals)
	case "==":
		s.op2(tokCmp, Equals)
	case "&&":
		s.pos += 2
		s.tok = tokAnd
	case "||":
		s.pos += 2
		s.tok = tokOr
	default:
		s.pos++
		switch b {
		case '=':
			s.tok, s.cmp = tokCmp, Equals
		case '<':
			s.tok, s.cmp = tokCmp, Less
		case '>':
			s.tok, s.cmp = tokCmp, Greater
		case '!':
			s.tok = tokNot
		case '(':
			s.tok = tokLParen
		case ')':
			s.tok = tokRParen
		case '-':
			s.tok = tokMinus
		case '+':
			s.tok, s.arith = tokArith, AddOp
		case '*':
			s.tok, s.arith = tokArith, MulOp
		case '/':
			s.tok, s.arith = tokArith, DivOp
		case '%':
			s.tok, s.arith = tokArith, ModOp
		default:
			return errsyntaxf(s.start, "unexpected character %q", b)
		}
	}
	return nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (s *scanner) op2(t token, op CmpOp) {
	s.pos += 2
	s.tok = t
	s.cmp = op
}

func (s *scanner) lexNumber() error {
	for s.pos < len(s.from) && isdigit(s.from[s.pos]) {
		s.pos++
	}
	if s.pos < len(s.from) && s.from[s.pos] == '.' {
		s.pos++
		for s.pos < len(s.from) && isdigit(s.from[s.pos]) {
			s.pos++
		}
	}
	if s.pos < len(s.from) && (s.from[s.pos] == 'e' || s.from[s.pos] == 'E') {
		s.pos++
		if s.pos < len(s.from) && (s.from[s.pos] == '+' || s.from[s.pos] == '-') {
			s.pos++
		}
		if s.pos >= len(s.from) || !isdigit(s.from[s.pos]) {
			return errsyntaxf(s.start, "malformed exponent in %q", s.from[s.start:s.pos])
		}
		for s.pos < len(s.from) && isdigit(s.from[s.pos]) {
			s.pos++
		}
	}
	if s.pos < len(s.from) && isident(s.from[s.pos]) {
		return errsyntaxf(s.start, "malformed number %q", s.from[s.start:s.pos+1])
	}
	s.tok = tokNumber
	s.text = string(s.from[s.start:s.pos])
	return nil
}

func (s *scanner) lexWord() {
	for s.pos < len(s.from) && isident(s.from[s.pos]) {
		s.pos++
	}
	word := string(s.from[s.start:s.pos])
	switch strings.ToUpper(word) {
	case "AND":
		s.tok = tokAnd
	case "OR":
		s.tok = tokOr
	case "NOT":
		s.tok = tokNot
	case "TRUE":
		s.tok = tokTrue
	case "FALSE":
		s.tok = tokFalse
	default:
		s.tok = tokIdent
		s.text = word
	}
}

func (s *scanner) lexString() error {
	s.pos++ // opening quote
	for s.pos < len(s.from) {
		switch s.from[s.pos] {
		case '\\':
			s.pos += 2
			continue
		case '\'':
			str, err := Unescape(s.from[s.start+1 : s.pos])
			if err != nil {
				return errsyntaxf(s.start, "%s", err)
			}
			s.pos++
			s.tok = tokString
			s.text = str
			return nil
		}
		s.pos++
	}
	return errsyntaxf(s.start, "unterminated string")
}

func (s *scanner) lexQuotedIdent() error {
	s.pos++
	for s.pos < len(s.from) {
		switch s.from[s.pos] {
		case '\\':
			s.pos += 2
			continue
		case '"':
			s.pos++
			id, err := strconv.Unquote(string(s.from[s.start:s.pos]))
			if err != nil {
				return errsyntaxf(s.start, "bad quoted identifier %q", s.from[s.start:s.pos])
			}
			if id == "" {
				return errsyntaxf(s.start, "empty identifier")
			}
			s.tok = tokIdent
			s.text = id
			return nil
		}
		s.pos++
	}
	return errsyntaxf(s.start, "unterminated identifier")
}

// parser is a recursive-descent parser
// for the grammar
//
//	expr    = and { OR and }
//	and     = not { AND not }
//	not     = NOT not | cmp
//	cmp     = sum [ cmpop sum ]
//	sum     = product { ("+" | "-") product }
//	product = unary { ("*" | "/" | "%") unary }
//	unary   = "-" unary | primary
//	primary = number | string | ident | TRUE | FALSE | "(" expr ")"
//
// Keywords are case-insensitive; "&&", "||", "!",
// "==", and "!=" are accepted as synonyms.
type parser struct {
	scanner
	depth int
}

// nesting limit; keeps deeply-nested
// input from exhausting the stack
const maxDepth = 1000

// Parse parses the text of a boolean predicate.
// The returned error is a *SyntaxError if the
// text is malformed. Parse does not type-check
// the result; see Check and CheckHint.
func Parse(text string) (Node, error) {
	p := &parser{scanner: scanner{from: []byte(text)}}
	if err := p.next(); err != nil {
		return nil, err
	}
	if p.tok == tokEOF {
		return nil, errsyntaxf(0, "empty expression")
	}
	n, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.tok != tokEOF {
		return nil, errsyntaxf(p.start, "unexpected %s after expression", p.tok)
	}
	return n, nil
}

func (p *parser) expr() (Node, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxDepth {
		return nil, errsyntaxf(p.start, "expression nested too deeply")
	}
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.tok == tokOr {
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		left = Or(left, right)
	}
	return left, nil
}

func (p *parser) and() (Node, error) {
	left, err := p.not()
	if err != nil {
		return nil, err
	}
	for p.tok == tokAnd {
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.not()
		if err != nil {
			return nil, err
		}
		left = And(left, right)
	}
	return left, nil
}

func (p *parser) not() (Node, error) {
	if p.tok != tokNot {
		return p.cmp()
	}
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxDepth {
		return nil, errsyntaxf(p.start, "expression nested too deeply")
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	inner, err := p.not()
	if err != nil {
		return nil, err
	}
	return &Not{Expr: inner}, nil
}

func (p *parser) cmp() (Node, error) {
	left, err := p.sum()
	if err != nil {
		return nil, err
	}
	if p.tok != tokCmp {
		return left, nil
	}
	op := p.scanner.cmp
	if err := p.next(); err != nil {
		return nil, err
	}
	right, err := p.sum()
	if err != nil {
		return nil, err
	}
	if p.tok == tokCmp {
		return nil, errsyntaxf(p.start, "comparisons cannot be chained without parentheses")
	}
	return Compare(op, left, right), nil
}

func (p *parser) sum() (Node, error) {
	left, err := p.product()
	if err != nil {
		return nil, err
	}
	for p.tok == tokMinus || (p.tok == tokArith && p.arith == AddOp) {
		op := SubOp
		if p.tok == tokArith {
			op = AddOp
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.product()
		if err != nil {
			return nil, err
		}
		left = NewArith(op, left, right)
	}
	return left, nil
}

func (p *parser) product() (Node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.tok == tokArith && p.arith != AddOp {
		op := p.arith
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = NewArith(op, left, right)
	}
	return left, nil
}

func (p *parser) unary() (Node, error) {
	if p.tok != tokMinus {
		return p.primary()
	}
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxDepth {
		return nil, errsyntaxf(p.start, "expression nested too deeply")
	}
	if err := p.next(); err != nil {
		return nil, err
	}
	// a minus sign directly before a
	// number is part of the literal
	if p.tok == tokNumber {
		return p.number("-")
	}
	inner, err := p.unary()
	if err != nil {
		return nil, err
	}
	return Neg(inner), nil
}

func (p *parser) number(sign string) (Node, error) {
	text := sign + p.text
	start := p.start
	var n Node
	if strings.ContainsAny(text, ".eE") {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, errsyntaxf(start, "bad float %q", text)
		}
		n = Float(f)
	} else {
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, errsyntaxf(start, "integer %s out of range", text)
		}
		n = Integer(i)
	}
	return n, p.next()
}

func (p *parser) primary() (Node, error) {
	var n Node
	switch p.tok {
	case tokNumber:
		return p.number("")
	case tokString:
		n = String(p.text)
	case tokIdent:
		n = Ident(p.text)
	case tokTrue:
		n = Bool(true)
	case tokFalse:
		n = Bool(false)
	case tokLParen:
		start := p.start
		if err := p.next(); err != nil {
			return nil, err
		}
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.tok != tokRParen {
			return nil, errsyntaxf(start, "unbalanced '('")
		}
		n = inner
	default:
		return nil, errsyntaxf(p.start, "unexpected %s", p.tok)
	}
	return n, p.next()
}
