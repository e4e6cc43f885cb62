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
	"sort"

	"github.com/matrixorigin/blockjoin/pkg/common/mpool"
	"github.com/matrixorigin/blockjoin/pkg/container/block"
	"github.com/matrixorigin/blockjoin/pkg/container/types"
	"github.com/matrixorigin/blockjoin/pkg/packed"
)

// sideInput is the packing half of one physical join side: the converter
// the side packs through and, when the policy chose indirection, the
// key/payload split machinery.
type sideInput struct {
	converter  *packed.Converter
	payload    *payloadStorage // nil when not indirected
	keyColumns []uint32
	keySet     map[uint32]bool
	itemTypes  []types.Type
}

// newSideInput builds the converter for one side. Without indirection the
// converter covers all item columns. With indirection it covers the key
// columns plus a trailing uint64 indirection index, and the payload
// columns move to a payloadStorage; the converter's key positions are
// remapped into the reduced key block.
func newSideInput(itemTypes []types.Type, keyColumns []uint32, indirected, nonClearable bool, mp *mpool.MPool) (*sideInput, error) {
	s := &sideInput{
		keyColumns: keyColumns,
		keySet:     make(map[uint32]bool, len(keyColumns)),
		itemTypes:  itemTypes,
	}
	for _, c := range keyColumns {
		s.keySet[c] = true
	}

	if !indirected {
		converter, err := packed.NewConverter(itemTypes, keyColumns)
		if err != nil {
			return nil, err
		}
		s.converter = converter
		return s, nil
	}

	keyPositions := make([]int, 0, len(keyColumns))
	payloadTypes := make([]types.Type, 0, len(itemTypes))
	for i, typ := range itemTypes {
		if s.keySet[uint32(i)] {
			keyPositions = append(keyPositions, i)
		} else {
			payloadTypes = append(payloadTypes, typ)
		}
	}
	sort.Ints(keyPositions)

	rank := make(map[int]uint32, len(keyPositions))
	keyTypes := make([]types.Type, 0, len(keyPositions)+1)
	for j, pos := range keyPositions {
		rank[pos] = uint32(j)
		keyTypes = append(keyTypes, itemTypes[pos])
	}
	// the indirection index rides along as one more payload column
	keyTypes = append(keyTypes, types.T_uint64.ToType())

	convKeyColumns := make([]uint32, len(keyColumns))
	for i, c := range keyColumns {
		convKeyColumns[i] = rank[int(c)]
	}

	converter, err := packed.NewConverter(keyTypes, convKeyColumns)
	if err != nil {
		return nil, err
	}
	s.converter = converter
	s.payload = newPayloadStorage(payloadTypes, nonClearable, mp)
	return s, nil
}

func (s *sideInput) layout() *packed.TupleLayout {
	return s.converter.GetTupleLayout()
}

// packBlock packs one block through the side, splitting payloads off first
// when the side is indirected.
func (s *sideInput) packBlock(ctx context.Context, blk *block.Block, out *packed.PackResult, mp *mpool.MPool) error {
	if s.payload == nil {
		return s.converter.Pack(blk.Vecs, blk.RowCount, out)
	}
	keyBlock, payloadBlock, err := splitBlock(ctx, blk, s.payload, s.keySet, mp)
	if err != nil {
		return err
	}
	if err := s.converter.Pack(keyBlock.Vecs, keyBlock.RowCount, out); err != nil {
		return err
	}
	s.payload.AddBlock(payloadBlock)
	return nil
}

// bucketPackBlock is packBlock with radix routing for the grace join.
func (s *sideInput) bucketPackBlock(ctx context.Context, blk *block.Block, buckets []packed.PackResult, logBuckets uint, mp *mpool.MPool) error {
	if s.payload == nil {
		return s.converter.BucketPack(blk.Vecs, blk.RowCount, buckets, logBuckets)
	}
	keyBlock, payloadBlock, err := splitBlock(ctx, blk, s.payload, s.keySet, mp)
	if err != nil {
		return err
	}
	if err := s.converter.BucketPack(keyBlock.Vecs, keyBlock.RowCount, buckets, logBuckets); err != nil {
		return err
	}
	s.payload.AddBlock(payloadBlock)
	return nil
}

// releaseRawBlock frees the columns of a packed raw block. Payload columns
// of an indirected side are owned by the payload storage from the split
// on, so only the key columns go.
func (s *sideInput) releaseRawBlock(blk *block.Block, mp *mpool.MPool) {
	if s.payload == nil {
		blk.Clean(mp)
		return
	}
	for i, vec := range blk.Vecs {
		if s.keySet[uint32(i)] && vec != nil && !vec.IsConst() {
			vec.Free(mp)
		}
	}
	blk.Vecs = nil
}

// output derives the unpack-side view of this side.
func (s *sideInput) output(ioMap []uint32) sideOutput {
	return newSideOutput(s.converter, s.payload, ioMap, s.keyColumns, len(s.itemTypes))
}
