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
	"strings"

	"github.com/SnellerInc/eqjoin/ion"
)

// TypeSet is a set of ion types;
// it is used to describe the set of
// types that an expression could
// produce at runtime.
//
// Nodes that are strongly typed
// produce their TypeSet (see TypeOf),
// and identifiers are typed via a Hint.
type TypeSet uint16

const (
	// AnyType is the TypeSet that
	// contains all types.
	AnyType     TypeSet = 0xffff
	MissingType TypeSet = (1 << 15)
	BoolType    TypeSet = (1 << ion.BoolType)
	// LogicalType is the return type
	// of logical operations
	LogicalType TypeSet = (1 << ion.BoolType) | MissingType
	// IntegerType is the type of
	// signed and unsigned integers
	IntegerType TypeSet = (1 << ion.UintType) | (1 << ion.IntType)
	FloatType   TypeSet = (1 << ion.FloatType)
	// NumericType is the return type
	// of number operations
	NumericType TypeSet = IntegerType | FloatType
	StringType  TypeSet = (1 << ion.StringType)
	NullType    TypeSet = (1 << ion.NullType)
)

// Only returns whether or not t
// contains only the types in set.
func (t TypeSet) Only(set TypeSet) bool {
	return (t &^ set) == 0
}

// AnyOf returns whether t and set intersect.
func (t TypeSet) AnyOf(set TypeSet) bool {
	return (t & set) != 0
}

func (t TypeSet) String() string {
	var str strings.Builder
	first := true
	for i := 0; i < 15; i++ {
		if t&(1<<i) != 0 {
			if !first {
				str.WriteString("|")
			}
			str.WriteString(ion.Type(i).String())
			first = false
		}
	}
	if t&MissingType != 0 {
		if !first {
			str.WriteString("|")
		}
		str.WriteString("MISSING")
	}
	return str.String()
}

// Comparable returns whether or not
// two values can be compared against
// one another. Integers and floats
// are mutually comparable.
func (t TypeSet) Comparable(other TypeSet) bool {
	if t.AnyOf(NumericType) && other.AnyOf(NumericType) {
		return true
	}
	// we don't care about possible MISSING
	// values; if there are no concrete overlaps,
	// then the result is deterministically MISSING
	return (t&other)&^MissingType != 0
}

// Contains returns whether or not a TypeSet
// contains a particular ion type
func (t TypeSet) Contains(it ion.Type) bool {
	return (t & (1 << TypeSet(it))) != 0
}

// MaybeMissing returns whether or not
// the TypeSet includes MISSING
func (t TypeSet) MaybeMissing() bool {
	return t&MissingType != 0
}

// Logical returns whether or not
// the type set includes the boolean type
func (t TypeSet) Logical() bool {
	return t&BoolType != 0
}
