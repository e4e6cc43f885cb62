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

package gracejoin

import (
	"context"

	"github.com/matrixorigin/blockjoin/pkg/common/moerr"
	"github.com/matrixorigin/blockjoin/pkg/common/mpool"
	"github.com/matrixorigin/blockjoin/pkg/container/block"
	"github.com/matrixorigin/blockjoin/pkg/container/types"
	"github.com/matrixorigin/blockjoin/pkg/container/vector"
)

// payloadStorage keeps wide payload columns out of the packed hot path.
// Blocks are stored as appended, a row is addressed by the 64-bit
// indirection index (blockID << 32) | rowID, and the join carries only
// that index through packing and lookup.
type payloadStorage struct {
	mp   *mpool.MPool
	typs []types.Type

	blocks []*block.Block

	// the build side storage lives for the whole operator; Clear must not
	// touch it
	nonClearable bool
}

func newPayloadStorage(typs []types.Type, nonClearable bool, mp *mpool.MPool) *payloadStorage {
	return &payloadStorage{
		mp:           mp,
		typs:         typs,
		nonClearable: nonClearable,
	}
}

func (ps *payloadStorage) Size() uint32 {
	return uint32(len(ps.blocks))
}

func (ps *payloadStorage) AddBlock(blk *block.Block) {
	ps.blocks = append(ps.blocks, blk)
}

func (ps *payloadStorage) Clear() {
	if ps.nonClearable {
		return
	}
	for _, blk := range ps.blocks {
		blk.Clean(ps.mp)
	}
	ps.blocks = ps.blocks[:0]
}

// RestorePayload scatter-reads the stored rows named by indexes back into
// columnar form, one vector per payload column.
func (ps *payloadStorage) RestorePayload(indexes []uint64, length int) ([]*vector.Vector, error) {
	result := make([]*vector.Vector, len(ps.typs))
	for i, typ := range ps.typs {
		vec := vector.NewVec(typ)
		if err := vec.PreExtend(length, ps.mp); err != nil {
			return nil, err
		}
		for j := 0; j < length; j++ {
			blockIndex := uint32(indexes[j] >> 32)
			elemIndex := uint32(indexes[j] & 0xFFFFFFFF)
			if int(blockIndex) >= len(ps.blocks) {
				return nil, moerr.NewInternalErrorNoCtx("indirection index block %d out of range", blockIndex)
			}
			src := ps.blocks[blockIndex].Vecs[i]
			if err := appendValueAt(vec, src, int(elemIndex), ps.mp); err != nil {
				return nil, err
			}
		}
		result[i] = vec
	}
	return result, nil
}

func appendValueAt(dst, src *vector.Vector, row int, mp *mpool.MPool) error {
	isNull := src.IsNull(uint64(row))
	if src.GetType().IsVarlen() {
		var data []byte
		if !isNull {
			data = src.GetBytesAt(row)
		}
		return vector.AppendBytes(dst, data, isNull, mp)
	}
	switch src.GetType().Oid {
	case types.T_bool, types.T_int8, types.T_uint8:
		return vector.AppendFixed(dst, vector.GetFixedAt[uint8](src, row), isNull, mp)
	case types.T_int16, types.T_uint16:
		return vector.AppendFixed(dst, vector.GetFixedAt[uint16](src, row), isNull, mp)
	case types.T_int32, types.T_uint32, types.T_float32, types.T_date:
		return vector.AppendFixed(dst, vector.GetFixedAt[uint32](src, row), isNull, mp)
	case types.T_int64, types.T_uint64, types.T_float64, types.T_datetime:
		return vector.AppendFixed(dst, vector.GetFixedAt[uint64](src, row), isNull, mp)
	}
	return moerr.NewInternalErrorNoCtx("unsupported payload type %s", src.GetType().Oid.String())
}

// splitBlock splits blk into a key block and a payload block. The key block
// keeps the key columns in block order and appends the freshly issued
// indirection index column; the payload block keeps everything else and is
// meant to be handed to AddBlock right after.
func splitBlock(ctx context.Context, blk *block.Block, ps *payloadStorage, keySet map[uint32]bool, mp *mpool.MPool) (*block.Block, *block.Block, error) {
	keyBlock := &block.Block{RowCount: blk.RowCount}
	payloadBlock := &block.Block{RowCount: blk.RowCount}
	for i, vec := range blk.Vecs {
		if keySet[uint32(i)] {
			keyBlock.Vecs = append(keyBlock.Vecs, vec)
		} else {
			payloadBlock.Vecs = append(payloadBlock.Vecs, vec)
		}
	}

	blockIndex := uint64(ps.Size())
	indexVec := vector.NewVec(types.T_uint64.ToType())
	if err := indexVec.PreExtend(blk.RowCount, mp); err != nil {
		return nil, nil, err
	}
	for i := 0; i < blk.RowCount; i++ {
		if err := vector.AppendFixed(indexVec, blockIndex<<32|uint64(i), false, mp); err != nil {
			return nil, nil, err
		}
	}
	keyBlock.Vecs = append(keyBlock.Vecs, indexVec)

	if len(payloadBlock.Vecs) != len(ps.typs) {
		return nil, nil, moerr.NewInternalError(ctx, "payload split width mismatch: %d != %d", len(payloadBlock.Vecs), len(ps.typs))
	}
	return keyBlock, payloadBlock, nil
}
