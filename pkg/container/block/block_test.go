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

package block

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/blockjoin/pkg/common/mpool"
	"github.com/matrixorigin/blockjoin/pkg/container/types"
	"github.com/matrixorigin/blockjoin/pkg/container/vector"
)

func TestWideRoundTrip(t *testing.T) {
	ctx := context.Background()
	mp := mpool.MustNewZero()

	vec := vector.NewVec(types.T_int64.ToType())
	require.NoError(t, vector.AppendFixedList(vec, []int64{1, 2, 3}, nil, mp))
	blk := New([]*vector.Vector{vec}, 3)

	wide := make([]*vector.Vector, 2)
	require.NoError(t, blk.ToWide(ctx, wide))
	require.True(t, wide[1].IsConst())
	require.Equal(t, uint64(3), vector.GetFixedAt[uint64](wide[1], 0))

	back, err := FromWide(ctx, wide)
	require.NoError(t, err)
	require.Equal(t, 3, back.RowCount)
	require.Equal(t, 1, len(back.Vecs))
	require.Equal(t, []int64{1, 2, 3}, vector.MustFixedCol[int64](back.Vecs[0]))
}

func TestFromWideRejectsBadShape(t *testing.T) {
	ctx := context.Background()
	mp := mpool.MustNewZero()

	_, err := FromWide(ctx, nil)
	require.Error(t, err)

	// last element must be the const uint64 scalar
	vec := vector.NewVec(types.T_int64.ToType())
	require.NoError(t, vector.AppendFixed(vec, int64(1), false, mp))
	_, err = FromWide(ctx, []*vector.Vector{vec})
	require.Error(t, err)
}

func TestToWideWidthMismatch(t *testing.T) {
	ctx := context.Background()
	blk := NewWithSize(1)
	blk.Vecs[0] = vector.NewVec(types.T_int64.ToType())
	require.Error(t, blk.ToWide(ctx, make([]*vector.Vector, 5)))
}
