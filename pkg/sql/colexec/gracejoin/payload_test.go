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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/blockjoin/pkg/common/mpool"
	"github.com/matrixorigin/blockjoin/pkg/container/types"
	"github.com/matrixorigin/blockjoin/pkg/container/vector"
)

func TestPayloadRoundTrip(t *testing.T) {
	mp := mpool.MustNewZero()
	blk := makeBlock(
		newInt64Vec(t, mp, []int64{10, 20, 30}, nil),
		newStrVec(t, mp, []string{"alpha", "beta", "gamma"}, []int{1}),
		newInt64Vec(t, mp, []int64{7, 8, 9}, nil),
	)

	ps := newPayloadStorage([]types.Type{types.T_varchar.ToType(), types.T_int64.ToType()}, false, mp)
	keySet := map[uint32]bool{0: true}

	keyBlock, payloadBlock, err := splitBlock(context.Background(), blk, ps, keySet, mp)
	require.NoError(t, err)
	require.Equal(t, 2, len(keyBlock.Vecs)) // key column + indirection index
	require.Equal(t, 2, len(payloadBlock.Vecs))
	ps.AddBlock(payloadBlock)

	idx := keyBlock.Vecs[1]
	indexes := vector.MustFixedCol[uint64](idx)
	require.Equal(t, []uint64{0, 1, 2}, indexes)

	restored, err := ps.RestorePayload(indexes, blk.RowCount)
	require.NoError(t, err)
	require.Equal(t, 2, len(restored))
	require.True(t, restored[0].IsNull(1))
	require.Equal(t, "alpha", string(restored[0].GetBytesAt(0)))
	require.Equal(t, "gamma", string(restored[0].GetBytesAt(2)))
	require.Equal(t, []int64{7, 8, 9}, vector.MustFixedCol[int64](restored[1]))
}

func TestPayloadIndirectionIndexLayout(t *testing.T) {
	mp := mpool.MustNewZero()
	ps := newPayloadStorage([]types.Type{types.T_int64.ToType()}, false, mp)
	keySet := map[uint32]bool{0: true}

	// the second appended block must issue indexes with blockID 1
	for blockID := 0; blockID < 2; blockID++ {
		blk := makeBlock(
			newInt64Vec(t, mp, []int64{1, 2}, nil),
			newInt64Vec(t, mp, []int64{int64(blockID * 10), int64(blockID*10 + 1)}, nil),
		)
		keyBlock, payloadBlock, err := splitBlock(context.Background(), blk, ps, keySet, mp)
		require.NoError(t, err)
		ps.AddBlock(payloadBlock)

		indexes := vector.MustFixedCol[uint64](keyBlock.Vecs[1])
		for row, ix := range indexes {
			require.Equal(t, uint64(blockID), ix>>32)
			require.Equal(t, uint64(row), ix&0xFFFFFFFF)
		}
	}

	restored, err := ps.RestorePayload([]uint64{1<<32 | 1, 0}, 2)
	require.NoError(t, err)
	require.Equal(t, []int64{11, 0}, vector.MustFixedCol[int64](restored[0]))
}

func TestPayloadClear(t *testing.T) {
	mp := mpool.MustNewZero()
	clearable := newPayloadStorage([]types.Type{types.T_int64.ToType()}, false, mp)
	stable := newPayloadStorage([]types.Type{types.T_int64.ToType()}, true, mp)

	blk := makeBlock(newInt64Vec(t, mp, []int64{1}, nil))
	clearable.AddBlock(blk)
	stable.AddBlock(makeBlock(newInt64Vec(t, mp, []int64{1}, nil)))

	clearable.Clear()
	stable.Clear()
	require.Equal(t, uint32(0), clearable.Size())
	require.Equal(t, uint32(1), stable.Size())
}
