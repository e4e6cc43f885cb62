// Copyright 2021 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package types

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

type T uint8

const (
	T_any T = iota

	T_bool
	T_int8
	T_int16
	T_int32
	T_int64
	T_uint8
	T_uint16
	T_uint32
	T_uint64
	T_float32
	T_float64
	T_date
	T_datetime

	// variable length
	T_varchar
	T_blob
)

type Type struct {
	Oid T
	// Size is the size of the in-vector cell: the fixed element size, or
	// VarlenaSize for variable length types.
	Size int32
}

type Date int32

type Datetime int64

// FixedSizeT is the constraint for types stored directly in vector data.
type FixedSizeT interface {
	constraints.Integer | constraints.Float | bool | Date | Datetime | Varlena
}

func New(oid T) Type {
	return Type{Oid: oid, Size: int32(oid.FixedLength())}
}

func (t T) ToType() Type {
	return New(t)
}

// FixedLength returns the byte width of the in-vector cell.
func (t T) FixedLength() int {
	switch t {
	case T_bool, T_int8, T_uint8:
		return 1
	case T_int16, T_uint16:
		return 2
	case T_int32, T_uint32, T_float32, T_date:
		return 4
	case T_int64, T_uint64, T_float64, T_datetime:
		return 8
	case T_varchar, T_blob:
		return VarlenaSize
	}
	panic(fmt.Sprintf("unknown type %d", t))
}

func (t T) IsFixedLen() bool {
	switch t {
	case T_varchar, T_blob:
		return false
	}
	return true
}

func (t Type) TypeSize() int {
	return int(t.Size)
}

func (t Type) IsVarlen() bool {
	return !t.Oid.IsFixedLen()
}

func (t T) String() string {
	switch t {
	case T_any:
		return "ANY"
	case T_bool:
		return "BOOL"
	case T_int8:
		return "TINYINT"
	case T_int16:
		return "SMALLINT"
	case T_int32:
		return "INT"
	case T_int64:
		return "BIGINT"
	case T_uint8:
		return "TINYINT UNSIGNED"
	case T_uint16:
		return "SMALLINT UNSIGNED"
	case T_uint32:
		return "INT UNSIGNED"
	case T_uint64:
		return "BIGINT UNSIGNED"
	case T_float32:
		return "FLOAT"
	case T_float64:
		return "DOUBLE"
	case T_date:
		return "DATE"
	case T_datetime:
		return "DATETIME"
	case T_varchar:
		return "VARCHAR"
	case T_blob:
		return "BLOB"
	}
	return fmt.Sprintf("unexpected type %d", t)
}
