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
	"strings"

	"golang.org/x/exp/slices"
)

// Column is a named, typed column of a Schema.
type Column struct {
	Name string
	Type FieldType
}

// Schema is an ordered list of uniquely-named
// columns belonging to one table.
//
// A Schema produced by SubSchema is a projection
// of its parent: it shares the parent's column
// list and only records which positions it selects.
//
// Schemas are immutable once constructed and
// may be shared between goroutines.
type Schema struct {
	table string
	root  []Column
	pos   []int // positions into root; nil for a root schema
	names map[string]int
}

// NewSchema constructs a schema for the given table.
// Column names must be non-empty and unique,
// and every column must have a valid type.
func NewSchema(table string, cols []Column) (*Schema, error) {
	s := &Schema{
		table: table,
		root:  slices.Clone(cols),
		names: make(map[string]int, len(cols)),
	}
	for i := range s.root {
		c := &s.root[i]
		if c.Name == "" {
			return nil, errschema(table, "", "column %d has no name", i)
		}
		if c.Type == InvalidType || c.Type > BoolType {
			return nil, errschema(table, c.Name, "invalid column type")
		}
		if _, ok := s.names[c.Name]; ok {
			return nil, errschema(table, c.Name, "duplicate column name")
		}
		s.names[c.Name] = i
	}
	return s, nil
}

// MustSchema is like NewSchema but panics on error.
func MustSchema(table string, cols ...Column) *Schema {
	s, err := NewSchema(table, cols)
	if err != nil {
		panic(err)
	}
	return s
}

// Table returns the name of the table
// that the schema belongs to.
func (s *Schema) Table() string { return s.table }

// Len returns the number of columns.
func (s *Schema) Len() int {
	if s.pos != nil {
		return len(s.pos)
	}
	return len(s.root)
}

func (s *Schema) rootpos(i int) int {
	if s.pos != nil {
		return s.pos[i]
	}
	return i
}

// Column returns the i-th column.
func (s *Schema) Column(i int) Column {
	return s.root[s.rootpos(i)]
}

// Columns returns a copy of the column list.
func (s *Schema) Columns() []Column {
	out := make([]Column, s.Len())
	for i := range out {
		out[i] = s.Column(i)
	}
	return out
}

// Index returns the position of the named column.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.names[name]
	return i, ok
}

// ColumnIndexes returns the positions of the named
// columns within s, in the order of names.
// It returns a *SchemaError if any name is absent.
func ColumnIndexes(s *Schema, names []string) ([]int, error) {
	out := make([]int, len(names))
	for i, name := range names {
		j, ok := s.Index(name)
		if !ok {
			return nil, errschema(s.table, name, "no such column")
		}
		out[i] = j
	}
	return out, nil
}

// SubSchema returns the projection of s
// onto the given column positions, in the
// order given. Positions are only bounds-checked;
// selecting the same position twice is an error
// because column names must remain unique.
func (s *Schema) SubSchema(positions []int) (*Schema, error) {
	sub := &Schema{
		table: s.table,
		root:  s.root,
		pos:   make([]int, len(positions)),
		names: make(map[string]int, len(positions)),
	}
	for i, p := range positions {
		if p < 0 || p >= s.Len() {
			return nil, errschema(s.table, "", "position %d out of range [0, %d)", p, s.Len())
		}
		rp := s.rootpos(p)
		name := s.root[rp].Name
		if _, ok := sub.names[name]; ok {
			return nil, errschema(s.table, name, "selected more than once")
		}
		sub.pos[i] = rp
		sub.names[name] = i
	}
	return sub, nil
}

// Complement returns, in ascending order,
// the positions in [0, width) that do not
// appear in positions.
func Complement(positions []int, width int) []int {
	used := make([]bool, width)
	for _, p := range positions {
		if p >= 0 && p < width {
			used[p] = true
		}
	}
	out := make([]int, 0, width)
	for i := range used {
		if !used[i] {
			out = append(out, i)
		}
	}
	return out
}

// Equal returns whether two schemas have
// the same table name and column list.
func (s *Schema) Equal(o *Schema) bool {
	if s == o {
		return true
	}
	if s == nil || o == nil || s.table != o.table || s.Len() != o.Len() {
		return false
	}
	for i := 0; i < s.Len(); i++ {
		if s.Column(i) != o.Column(i) {
			return false
		}
	}
	return true
}

// String returns the text form of the schema:
//
//	table(col:type,col:type,...)
//
// which can be parsed again with ParseSchema.
func (s *Schema) String() string {
	var dst strings.Builder
	dst.WriteString(s.table)
	dst.WriteByte('(')
	for i := 0; i < s.Len(); i++ {
		if i > 0 {
			dst.WriteByte(',')
		}
		c := s.Column(i)
		dst.WriteString(c.Name)
		dst.WriteByte(':')
		dst.WriteString(c.Type.String())
	}
	dst.WriteByte(')')
	return dst.String()
}

// MarshalText implements encoding.TextMarshaler
func (s *Schema) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Schema) UnmarshalText(text []byte) error {
	ns, err := ParseSchema(string(text))
	if err != nil {
		return err
	}
	*s = *ns
	return nil
}

// ParseSchema parses the text form of a schema
// produced by Schema.String. Whitespace around
// names and types is ignored.
func ParseSchema(text string) (*Schema, error) {
	open := strings.IndexByte(text, '(')
	if open < 0 || !strings.HasSuffix(strings.TrimSpace(text), ")") {
		return nil, errschema("?", "", "malformed schema text %q", text)
	}
	table := strings.TrimSpace(text[:open])
	body := strings.TrimSpace(text[open+1:])
	body = strings.TrimSpace(body[:len(body)-1])
	var cols []Column
	if body != "" {
		for _, part := range strings.Split(body, ",") {
			name, typ, ok := strings.Cut(part, ":")
			if !ok {
				return nil, errschema(table, strings.TrimSpace(part), "missing column type")
			}
			name = strings.TrimSpace(name)
			ft, ok := ParseFieldType(strings.TrimSpace(typ))
			if !ok {
				return nil, errschema(table, name, "unknown type %q", strings.TrimSpace(typ))
			}
			cols = append(cols, Column{Name: name, Type: ft})
		}
	}
	return NewSchema(table, cols)
}

// ParseColumns parses a comma-delimited
// list of column names.
func ParseColumns(text string) []string {
	var out []string
	for _, part := range strings.Split(text, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// DumpColumns is the inverse of ParseColumns.
func DumpColumns(cols []string) string {
	return strings.Join(cols, ",")
}
