// Copyright 2022 Matrix Origin
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

package packed

import (
	"encoding/binary"

	"github.com/matrixorigin/blockjoin/pkg/common/moerr"
	"github.com/matrixorigin/blockjoin/pkg/common/mpool"
	"github.com/matrixorigin/blockjoin/pkg/container/types"
	"github.com/matrixorigin/blockjoin/pkg/container/vector"
)

// PackResult accumulates packed tuples. PackedTuples is NTuples contiguous
// rows of layout.TotalRowSize bytes; Overflow holds the variable length
// tails those rows reference.
type PackResult struct {
	PackedTuples []byte
	Overflow     []byte
	NTuples      int
}

func (p *PackResult) Reset() {
	p.PackedTuples = p.PackedTuples[:0]
	p.Overflow = p.Overflow[:0]
	p.NTuples = 0
}

// ResetTuples drops the rows but keeps Overflow, for the probe path where
// output tuples still borrow from it.
func (p *PackResult) ResetTuples() {
	p.PackedTuples = p.PackedTuples[:0]
	p.NTuples = 0
}

// Converter packs blocks of one fixed shape into tuple arrays and back.
type Converter struct {
	layout *TupleLayout
}

func NewConverter(typs []types.Type, keyColumns []uint32) (*Converter, error) {
	layout, err := Describe(typs, keyColumns)
	if err != nil {
		return nil, err
	}
	return &Converter{layout: layout}, nil
}

func (c *Converter) GetTupleLayout() *TupleLayout {
	return c.layout
}

// Pack appends the nRows rows of vecs to out.
func (c *Converter) Pack(vecs []*vector.Vector, nRows int, out *PackResult) error {
	if len(vecs) != len(c.layout.Columns) {
		return moerr.NewInternalErrorNoCtx("pack width mismatch: %d != %d", len(vecs), len(c.layout.Columns))
	}
	for row := 0; row < nRows; row++ {
		hash := c.layout.KeyHashAt(vecs, row)
		c.packRow(vecs, row, hash, out)
	}
	return nil
}

// BucketPack is Pack with radix routing: each row goes to the bucket picked
// by the high logBuckets bits of its key hash, so equal keys of both join
// sides always land in sibling buckets.
func (c *Converter) BucketPack(vecs []*vector.Vector, nRows int, buckets []PackResult, logBuckets uint) error {
	if len(vecs) != len(c.layout.Columns) {
		return moerr.NewInternalErrorNoCtx("pack width mismatch: %d != %d", len(vecs), len(c.layout.Columns))
	}
	if len(buckets) != 1<<logBuckets {
		return moerr.NewInternalErrorNoCtx("bucket count mismatch: %d != %d", len(buckets), 1<<logBuckets)
	}
	for row := 0; row < nRows; row++ {
		hash := c.layout.KeyHashAt(vecs, row)
		var b uint64
		if logBuckets > 0 {
			b = hash >> (64 - logBuckets)
		}
		c.packRow(vecs, row, hash, &buckets[b])
	}
	return nil
}

func (c *Converter) packRow(vecs []*vector.Vector, row int, hash uint64, out *PackResult) {
	layout := c.layout
	base := len(out.PackedTuples)
	out.PackedTuples = append(out.PackedTuples, make([]byte, layout.TotalRowSize)...)
	tuple := out.PackedTuples[base:]

	binary.LittleEndian.PutUint64(tuple, hash)
	for i := range layout.Columns {
		col := &layout.Columns[i]
		vec := vecs[col.Idx]
		if vec.IsNull(uint64(row)) {
			layout.setNull(tuple, i)
			continue
		}
		if col.SizeType == SizeVariable {
			data := vec.GetBytesAt(row)
			binary.LittleEndian.PutUint32(tuple[col.Offset:], uint32(len(out.Overflow)))
			binary.LittleEndian.PutUint32(tuple[col.Offset+4:], uint32(len(data)))
			out.Overflow = append(out.Overflow, data...)
			continue
		}
		copy(tuple[col.Offset:col.Offset+col.Size], cellBytes(vec, row, col.Size))
	}
	out.NTuples++
}

// Unpack rebuilds columnar vectors, in block column order, from a packed
// tuple array. The copy severs all references into pack's buffers.
func (c *Converter) Unpack(pack *PackResult, mp *mpool.MPool) ([]*vector.Vector, error) {
	layout := c.layout
	vecs := make([]*vector.Vector, len(layout.Columns))
	for i := range layout.Columns {
		col := &layout.Columns[i]
		vec := vector.NewVec(col.Typ)
		if err := vec.PreExtend(pack.NTuples, mp); err != nil {
			return nil, err
		}
		vecs[col.Idx] = vec
	}

	for row := 0; row < pack.NTuples; row++ {
		tuple := layout.TupleAt(pack.PackedTuples, row)
		for i := range layout.Columns {
			col := &layout.Columns[i]
			vec := vecs[col.Idx]
			isNull := layout.isNull(tuple, i)
			var err error
			if col.SizeType == SizeVariable {
				var data []byte
				if !isNull {
					data = varCell(tuple, col.Offset, pack.Overflow)
				}
				err = vector.AppendBytes(vec, data, isNull, mp)
			} else {
				err = appendFixedCell(vec, tuple[col.Offset:col.Offset+col.Size], isNull, mp)
			}
			if err != nil {
				return nil, err
			}
		}
	}
	return vecs, nil
}

func appendFixedCell(vec *vector.Vector, cell []byte, isNull bool, mp *mpool.MPool) error {
	switch vec.GetType().Oid {
	case types.T_bool, types.T_int8, types.T_uint8:
		return vector.AppendFixed(vec, cell[0], isNull, mp)
	case types.T_int16, types.T_uint16:
		return vector.AppendFixed(vec, binary.LittleEndian.Uint16(cell), isNull, mp)
	case types.T_int32, types.T_uint32, types.T_float32, types.T_date:
		return vector.AppendFixed(vec, binary.LittleEndian.Uint32(cell), isNull, mp)
	case types.T_int64, types.T_uint64, types.T_float64, types.T_datetime:
		return vector.AppendFixed(vec, binary.LittleEndian.Uint64(cell), isNull, mp)
	}
	return moerr.NewInternalErrorNoCtx("fixed cell of non fixed type")
}
