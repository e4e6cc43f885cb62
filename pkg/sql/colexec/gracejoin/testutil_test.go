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
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/blockjoin/pkg/common/mpool"
	"github.com/matrixorigin/blockjoin/pkg/container/block"
	"github.com/matrixorigin/blockjoin/pkg/container/types"
	"github.com/matrixorigin/blockjoin/pkg/container/vector"
)

// testStream replays prepared blocks, optionally yielding before every
// delivery to exercise the cooperative protocol.
type testStream struct {
	blocks     []*block.Block
	pos        int
	yieldEvery bool
	yielded    bool
}

func (s *testStream) WideFetch(ctx context.Context, vecs []*vector.Vector) (FetchStatus, error) {
	if s.yieldEvery && !s.yielded {
		s.yielded = true
		return FetchYield, nil
	}
	s.yielded = false
	if s.pos >= len(s.blocks) {
		return FetchFinish, nil
	}
	blk := s.blocks[s.pos]
	s.pos++
	if err := blk.ToWide(ctx, vecs); err != nil {
		return FetchFinish, err
	}
	return FetchOk, nil
}

func newInt64Vec(t *testing.T, mp *mpool.MPool, vals []int64, nullAt []int) *vector.Vector {
	t.Helper()
	isNull := make([]bool, len(vals))
	for _, i := range nullAt {
		isNull[i] = true
	}
	vec := vector.NewVec(types.T_int64.ToType())
	require.NoError(t, vector.AppendFixedList(vec, vals, isNull, mp))
	return vec
}

func newStrVec(t *testing.T, mp *mpool.MPool, vals []string, nullAt []int) *vector.Vector {
	t.Helper()
	isNull := make([]bool, len(vals))
	for _, i := range nullAt {
		isNull[i] = true
	}
	vec := vector.NewVec(types.T_varchar.ToType())
	require.NoError(t, vector.AppendStringList(vec, vals, isNull, mp))
	return vec
}

func makeBlock(vecs ...*vector.Vector) *block.Block {
	return block.New(vecs, vecs[0].Length())
}

func wideShape(itemTypes ...types.Type) []types.Type {
	return append(itemTypes, types.T_uint64.ToType())
}

func cellString(vec *vector.Vector, row int) string {
	if vec.IsNull(uint64(row)) {
		return "NULL"
	}
	switch vec.GetType().Oid {
	case types.T_int64:
		return strconv.FormatInt(vector.GetFixedAt[int64](vec, row), 10)
	case types.T_uint64:
		return strconv.FormatUint(vector.GetFixedAt[uint64](vec, row), 10)
	case types.T_varchar, types.T_blob:
		return string(vec.GetBytesAt(row))
	}
	return "?"
}

// drainJoin runs the operator to completion and returns every output row
// rendered as strings, block boundaries flattened away. The block length
// scalar of each emitted block is checked on the way.
func drainJoin(t *testing.T, op *BlockGraceJoin) [][]string {
	t.Helper()
	ctx := context.Background()
	out := make([]*vector.Vector, op.ResultWidth())

	var rows [][]string
	for {
		status, err := op.WideFetch(ctx, out)
		require.NoError(t, err)
		if status == FetchYield {
			continue
		}
		if status == FetchFinish {
			return rows
		}
		last := out[len(out)-1]
		require.True(t, last.IsConst())
		n := int(vector.GetFixedAt[uint64](last, 0))
		for _, vec := range out[:len(out)-1] {
			require.Equal(t, n, vec.Length())
		}
		for row := 0; row < n; row++ {
			record := make([]string, len(out)-1)
			for col := 0; col < len(out)-1; col++ {
				record[col] = cellString(out[col], row)
			}
			rows = append(rows, record)
		}
	}
}

func sortRows(rows [][]string) [][]string {
	sort.Slice(rows, func(i, j int) bool {
		for k := range rows[i] {
			if rows[i][k] != rows[j][k] {
				return rows[i][k] < rows[j][k]
			}
		}
		return false
	})
	return rows
}
