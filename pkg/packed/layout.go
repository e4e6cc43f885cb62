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

// Package packed implements the row-wise tuple representation used by the
// block join: fixed-stride packed tuples with an overflow buffer for
// variable length tails, and the converter between columnar blocks and
// packed form.
package packed

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/matrixorigin/blockjoin/pkg/common/moerr"
	"github.com/matrixorigin/blockjoin/pkg/container/types"
	"github.com/matrixorigin/blockjoin/pkg/container/vector"
)

type ColumnRole uint8

const (
	RolePayload ColumnRole = iota
	RoleKey
)

type ColumnSizeType uint8

const (
	SizeFixed ColumnSizeType = iota
	SizeVariable
)

const (
	// tuple prefix: 8 byte key hash, then the null bytes
	hashSize = 8

	// variable length cells store a (offset, length) header into overflow
	varHeaderSize = 8
)

type Column struct {
	// Idx is the position of the column in the block
	Idx      int
	Typ      types.Type
	Role     ColumnRole
	SizeType ColumnSizeType

	// Offset and Size locate the cell inside a packed tuple
	Offset int
	Size   int
}

// TupleLayout describes the packed form of one block shape. Key columns come
// first, in key order, so that key cells of build and probe tuples line up
// even when the two sides place their keys at different block positions.
type TupleLayout struct {
	Columns []Column

	TotalRowSize int
	KeySize      int
	PayloadSize  int

	NullBytes  int
	DataOffset int

	nKeys int
}

// Describe derives the layout for the given block column types. keyColumns
// lists block positions of the equi-key columns, in join key order.
func Describe(typs []types.Type, keyColumns []uint32) (*TupleLayout, error) {
	ctx := context.Background()
	if len(typs) == 0 {
		return nil, moerr.NewInvalidInput(ctx, "tuple layout needs at least one column")
	}
	isKey := make(map[int]bool, len(keyColumns))
	for _, c := range keyColumns {
		if int(c) >= len(typs) {
			return nil, moerr.NewInvalidInput(ctx, "key column %d out of range", c)
		}
		if isKey[int(c)] {
			return nil, moerr.NewInvalidInput(ctx, "duplicated key column %d", c)
		}
		isKey[int(c)] = true
	}

	layout := &TupleLayout{
		NullBytes: (len(typs) + 7) / 8,
		nKeys:     len(keyColumns),
	}
	layout.DataOffset = hashSize + layout.NullBytes

	offset := layout.DataOffset
	appendColumn := func(idx int, role ColumnRole) {
		col := Column{Idx: idx, Typ: typs[idx], Role: role, Offset: offset}
		if typs[idx].IsVarlen() {
			col.SizeType = SizeVariable
			col.Size = varHeaderSize
		} else {
			col.SizeType = SizeFixed
			col.Size = typs[idx].Oid.FixedLength()
		}
		offset += col.Size
		if role == RoleKey {
			layout.KeySize += col.Size
		} else {
			layout.PayloadSize += col.Size
		}
		layout.Columns = append(layout.Columns, col)
	}

	for _, c := range keyColumns {
		appendColumn(int(c), RoleKey)
	}
	for i := range typs {
		if !isKey[i] {
			appendColumn(i, RolePayload)
		}
	}
	layout.TotalRowSize = offset
	return layout, nil
}

func (l *TupleLayout) NumColumns() int {
	return len(l.Columns)
}

func (l *TupleLayout) NumKeys() int {
	return l.nKeys
}

// TupleAt slices tuple i out of a packed buffer.
func (l *TupleLayout) TupleAt(tuples []byte, i int) []byte {
	return tuples[i*l.TotalRowSize : (i+1)*l.TotalRowSize]
}

// HashAt reads the stored key hash of tuple i.
func (l *TupleLayout) HashAt(tuples []byte, i int) uint64 {
	return binary.LittleEndian.Uint64(tuples[i*l.TotalRowSize:])
}

// TupleHash reads the stored key hash of one tuple.
func (l *TupleLayout) TupleHash(tuple []byte) uint64 {
	return binary.LittleEndian.Uint64(tuple)
}

func (l *TupleLayout) isNull(tuple []byte, col int) bool {
	return tuple[hashSize+col/8]&(1<<(col%8)) != 0
}

func (l *TupleLayout) setNull(tuple []byte, col int) {
	tuple[hashSize+col/8] |= 1 << (col % 8)
}

// KeyHashAt computes the composite key hash of row i directly from block
// columns. Pack stores exactly this value, so sampling during bootstrap and
// radix routing in BucketPack agree with the packed form.
func (l *TupleLayout) KeyHashAt(vecs []*vector.Vector, row int) uint64 {
	var h uint64
	for k := 0; k < l.nKeys; k++ {
		col := &l.Columns[k]
		vec := vecs[col.Idx]
		if vec.IsNull(uint64(row)) {
			return 0
		}
		var ih uint64
		if col.SizeType == SizeVariable {
			ih = itemHash(vec.GetBytesAt(row))
		} else {
			ih = itemHash(cellBytes(vec, row, col.Size))
		}
		h = combineHashes(h, ih)
	}
	return h
}

// KeysEqual compares the key cells of two packed tuples, resolving variable
// length cells through their own overflow buffers. Tuples with null key
// items never reach this point; their hash is the zero sentinel.
func (l *TupleLayout) KeysEqual(a, aOverflow, b, bOverflow []byte, other *TupleLayout) bool {
	for k := 0; k < l.nKeys; k++ {
		ca := &l.Columns[k]
		cb := &other.Columns[k]
		if ca.SizeType != cb.SizeType {
			return false
		}
		if ca.SizeType == SizeFixed {
			if !bytes.Equal(a[ca.Offset:ca.Offset+ca.Size], b[cb.Offset:cb.Offset+cb.Size]) {
				return false
			}
			continue
		}
		av := varCell(a, ca.Offset, aOverflow)
		bv := varCell(b, cb.Offset, bOverflow)
		if !bytes.Equal(av, bv) {
			return false
		}
	}
	return true
}

// ExpectedOverflowSize estimates the overflow bytes nTuples will need.
// Expect no more than 10% of variable sized values longer than 64 bytes.
func (l *TupleLayout) ExpectedOverflowSize(nTuples int) int {
	var varSizedCount int
	for i := range l.Columns {
		if l.Columns[i].SizeType == SizeVariable {
			varSizedCount++
		}
	}
	if varSizedCount == 0 {
		return 0
	}
	return varSizedCount * nTuples * 64 / 10
}

func varCell(tuple []byte, offset int, overflow []byte) []byte {
	off := binary.LittleEndian.Uint32(tuple[offset:])
	length := binary.LittleEndian.Uint32(tuple[offset+4:])
	return overflow[off : off+length]
}

// cellBytes reads the raw fixed cell of a flat or const vector.
func cellBytes(vec *vector.Vector, row int, size int) []byte {
	switch vec.GetType().Oid {
	case types.T_bool, types.T_int8, types.T_uint8:
		v := vector.GetFixedAt[uint8](vec, row)
		return []byte{v}
	case types.T_int16, types.T_uint16:
		v := vector.GetFixedAt[uint16](vec, row)
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], v)
		return buf[:]
	case types.T_int32, types.T_uint32, types.T_float32, types.T_date:
		v := vector.GetFixedAt[uint32](vec, row)
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], v)
		return buf[:]
	case types.T_int64, types.T_uint64, types.T_float64, types.T_datetime:
		v := vector.GetFixedAt[uint64](vec, row)
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], v)
		return buf[:]
	}
	panic(moerr.NewInternalErrorNoCtx("fixed cell of non fixed type"))
}
