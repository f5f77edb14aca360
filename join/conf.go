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

// Package join implements the reduce side
// of a two-table equi-join.
//
// Rows of both tables arrive grouped by their
// encoded join key, each row carrying a tag that
// identifies the table it came from. For every
// group, a Reducer computes the cross product of
// the left and right rows, filters it with an
// optional predicate, and emits the joined rows.
package join

import (
	"fmt"
	"sort"
	"strings"

	"github.com/SnellerInc/eqjoin/eval"
	"github.com/SnellerInc/eqjoin/table"

	"golang.org/x/exp/maps"
)

// Configuration keys.
const (
	KeyLeftSchema   = "left-schema"
	KeyRightSchema  = "right-schema"
	KeyResultSchema = "result-schema"
	KeyUsing        = "join-using-columns"
	KeyWhere        = "where-predicate"
)

// Conf is the configuration published to
// every worker of a join stage.
type Conf map[string]string

// ConfigError is returned from Setup when a
// required configuration key is absent.
type ConfigError struct {
	Key string
}

func (c *ConfigError) Error() string {
	return fmt.Sprintf("join: missing configuration key %q", c.Key)
}

func (c Conf) need(key string) (string, error) {
	v, ok := c[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", &ConfigError{Key: key}
	}
	return v, nil
}

// String returns the configuration
// as sorted key=value lines.
func (c Conf) String() string {
	keys := maps.Keys(c)
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, c[k])
	}
	return b.String()
}

// Stage is the immutable result of Setup.
// A Stage may be shared by any number of
// Reducers running concurrently.
type Stage struct {
	layout *table.Layout
	filter *eval.Evaluator // nil if no predicate
}

// Setup parses the schemas, join columns,
// and optional predicate in conf.
//
// Errors are one of *ConfigError,
// *table.SchemaError, or *eval.CompileError.
func Setup(conf Conf) (*Stage, error) {
	schemas := make([]*table.Schema, 3)
	for i, key := range []string{KeyLeftSchema, KeyRightSchema, KeyResultSchema} {
		text, err := conf.need(key)
		if err != nil {
			return nil, err
		}
		schemas[i], err = table.ParseSchema(text)
		if err != nil {
			return nil, err
		}
	}
	using, err := conf.need(KeyUsing)
	if err != nil {
		return nil, err
	}
	layout, err := table.NewLayout(schemas[2], schemas[0], schemas[1], table.ParseColumns(using))
	if err != nil {
		return nil, err
	}
	return NewStage(layout, conf[KeyWhere])
}

// NewStage builds a Stage from a precomputed
// layout and an optional predicate. An empty
// (or all-whitespace) where disables filtering.
func NewStage(layout *table.Layout, where string) (*Stage, error) {
	st := &Stage{layout: layout}
	if strings.TrimSpace(where) != "" {
		e, err := eval.CompileString(where, layout.Output())
		if err != nil {
			return nil, err
		}
		st.filter = e
	}
	return st, nil
}

// Layout returns the column layout of the join.
func (s *Stage) Layout() *table.Layout { return s.layout }

// Filter returns the compiled predicate,
// or nil if the stage has none.
func (s *Stage) Filter() *eval.Evaluator { return s.filter }

// Conf returns the configuration
// that Setup would accept to produce
// an equivalent Stage.
func (s *Stage) Conf() Conf {
	c := Conf{
		KeyLeftSchema:   s.layout.Source(table.Left).String(),
		KeyRightSchema:  s.layout.Source(table.Right).String(),
		KeyResultSchema: s.layout.Output().String(),
		KeyUsing:        table.DumpColumns(s.layout.KeyColumns()),
	}
	if s.filter != nil {
		c[KeyWhere] = s.filter.String()
	}
	return c
}
