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

package vector

import (
	"github.com/matrixorigin/blockjoin/pkg/common/moerr"
	"github.com/matrixorigin/blockjoin/pkg/common/mpool"
	"github.com/matrixorigin/blockjoin/pkg/container/nulls"
	"github.com/matrixorigin/blockjoin/pkg/container/types"
)

const (
	FLAT     = iota // flat vector represents an uncompressed column
	CONSTANT        // const vector, one cell repeated length times
)

// Vector represents a column.
type Vector struct {
	class int
	typ   types.Type
	nsp   *nulls.Nulls

	// cells of fixed width typ.Size; for varlen types the cell is a Varlena
	data []byte

	// area holds large strings referenced by Varlena cells
	area []byte

	length int
}

func NewVec(typ types.Type) *Vector {
	return &Vector{
		class: FLAT,
		typ:   typ,
		nsp:   &nulls.Nulls{},
	}
}

// NewConstFixed returns a const vector of length rows holding val.
func NewConstFixed[T types.FixedSizeT](typ types.Type, val T, length int) *Vector {
	vec := &Vector{
		class:  CONSTANT,
		typ:    typ,
		nsp:    &nulls.Nulls{},
		length: length,
	}
	vec.data = make([]byte, typ.TypeSize())
	copy(vec.data, types.EncodeValue(&val))
	return vec
}

func (v *Vector) Length() int {
	return v.length
}

func (v *Vector) SetLength(n int) {
	v.length = n
}

func (v *Vector) GetType() *types.Type {
	return &v.typ
}

func (v *Vector) GetNulls() *nulls.Nulls {
	return v.nsp
}

func (v *Vector) GetArea() []byte {
	return v.area
}

func (v *Vector) IsConst() bool {
	return v.class == CONSTANT
}

func (v *Vector) IsNull(i uint64) bool {
	return v.nsp.Contains(i)
}

// Size reports approximate memory held by the vector, for accounting only.
func (v *Vector) Size() int {
	return len(v.data) + len(v.area)
}

func (v *Vector) Free(mp *mpool.MPool) {
	if v.data != nil {
		mp.Free(v.data)
		v.data = nil
	}
	if v.area != nil {
		mp.Free(v.area)
		v.area = nil
	}
	v.nsp = &nulls.Nulls{}
	v.length = 0
}

// PreExtend reserves room for rows more cells.
func (v *Vector) PreExtend(rows int, mp *mpool.MPool) error {
	sz := v.typ.TypeSize()
	need := (v.length + rows) * sz
	if need <= cap(v.data) {
		return nil
	}
	data, err := mp.Grow(v.data, need)
	if err != nil {
		return err
	}
	v.data = data[:v.length*sz]
	return nil
}

func (v *Vector) extend(rows int, mp *mpool.MPool) error {
	if err := v.PreExtend(rows, mp); err != nil {
		return err
	}
	sz := v.typ.TypeSize()
	v.data = v.data[:(v.length+rows)*sz]
	return nil
}

func appendOneFixed[T types.FixedSizeT](vec *Vector, val T, isNull bool, mp *mpool.MPool) error {
	if err := vec.extend(1, mp); err != nil {
		return err
	}
	length := vec.length
	vec.length++
	if isNull {
		vec.nsp.Add(uint64(length))
		return nil
	}
	col := types.DecodeSlice[T](vec.data)
	col[length] = val
	return nil
}

func appendOneBytes(vec *Vector, val []byte, isNull bool, mp *mpool.MPool) error {
	var va types.Varlena
	if isNull {
		return appendOneFixed(vec, va, true, mp)
	}
	if len(val) <= types.VarlenaInlineSize {
		va.SetSmall(val)
		return appendOneFixed(vec, va, false, mp)
	}
	area, err := mp.Grow(vec.area, len(vec.area)+len(val))
	if err != nil {
		return err
	}
	offset := len(vec.area)
	copy(area[offset:], val)
	vec.area = area
	va.SetBig(uint32(offset), uint32(len(val)))
	return appendOneFixed(vec, va, false, mp)
}

func AppendFixed[T types.FixedSizeT](vec *Vector, val T, isNull bool, mp *mpool.MPool) error {
	if mp == nil {
		panic(moerr.NewInternalErrorNoCtx("vector append does not have a mpool"))
	}
	return appendOneFixed(vec, val, isNull, mp)
}

func AppendBytes(vec *Vector, val []byte, isNull bool, mp *mpool.MPool) error {
	if mp == nil {
		panic(moerr.NewInternalErrorNoCtx("vector append does not have a mpool"))
	}
	return appendOneBytes(vec, val, isNull, mp)
}

func AppendFixedList[T types.FixedSizeT](vec *Vector, ws []T, isNulls []bool, mp *mpool.MPool) error {
	if mp == nil {
		panic(moerr.NewInternalErrorNoCtx("vector append does not have a mpool"))
	}
	for i, w := range ws {
		isNull := len(isNulls) > 0 && isNulls[i]
		if err := appendOneFixed(vec, w, isNull, mp); err != nil {
			return err
		}
	}
	return nil
}

func AppendBytesList(vec *Vector, ws [][]byte, isNulls []bool, mp *mpool.MPool) error {
	if mp == nil {
		panic(moerr.NewInternalErrorNoCtx("vector append does not have a mpool"))
	}
	for i, w := range ws {
		isNull := len(isNulls) > 0 && isNulls[i]
		if err := appendOneBytes(vec, w, isNull, mp); err != nil {
			return err
		}
	}
	return nil
}

func AppendStringList(vec *Vector, ws []string, isNulls []bool, mp *mpool.MPool) error {
	for i, w := range ws {
		isNull := len(isNulls) > 0 && isNulls[i]
		if err := AppendBytes(vec, []byte(w), isNull, mp); err != nil {
			return err
		}
	}
	return nil
}

// GetFixedAt reads cell i. For const vectors any i maps to the single cell.
func GetFixedAt[T types.FixedSizeT](v *Vector, i int) T {
	if v.IsConst() {
		i = 0
	}
	return types.DecodeSlice[T](v.data)[i]
}

func (v *Vector) GetBytesAt(i int) []byte {
	if v.IsConst() {
		i = 0
	}
	va := types.DecodeSlice[types.Varlena](v.data)[i]
	return va.GetByteSlice(v.area)
}

// MustFixedCol returns the raw cell slice of a flat vector.
func MustFixedCol[T types.FixedSizeT](v *Vector) []T {
	if v.IsConst() {
		panic(moerr.NewInternalErrorNoCtx("const vector has no flat column"))
	}
	return types.DecodeSlice[T](v.data)
}

func MustBytesCol(v *Vector) [][]byte {
	vs := types.DecodeSlice[types.Varlena](v.data)
	ret := make([][]byte, v.length)
	for i := 0; i < v.length; i++ {
		ret[i] = vs[i].GetByteSlice(v.area)
	}
	return ret
}
