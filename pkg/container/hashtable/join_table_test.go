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

package hashtable

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/blockjoin/pkg/common/mpool"
	"github.com/matrixorigin/blockjoin/pkg/container/types"
	"github.com/matrixorigin/blockjoin/pkg/container/vector"
	"github.com/matrixorigin/blockjoin/pkg/packed"
)

func packInts(t *testing.T, keys []int64, nullAt []int, payload []int64) (*packed.Converter, *packed.PackResult) {
	t.Helper()
	mp := mpool.MustNewZero()
	isNull := make([]bool, len(keys))
	for _, i := range nullAt {
		isNull[i] = true
	}
	keyVec := vector.NewVec(types.T_int64.ToType())
	require.NoError(t, vector.AppendFixedList(keyVec, keys, isNull, mp))
	payVec := vector.NewVec(types.T_int64.ToType())
	require.NoError(t, vector.AppendFixedList(payVec, payload, nil, mp))

	c, err := packed.NewConverter(
		[]types.Type{types.T_int64.ToType(), types.T_int64.ToType()}, []uint32{0})
	require.NoError(t, err)

	var pack packed.PackResult
	require.NoError(t, c.Pack([]*vector.Vector{keyVec, payVec}, len(keys), &pack))
	return c, &pack
}

func matchesOf(t *testing.T, tbl *JoinTable, probeLayout *packed.TupleLayout, probe *packed.PackResult, row int) int {
	t.Helper()
	it := tbl.Find(probeLayout.TupleAt(probe.PackedTuples, row), probe.Overflow, probeLayout)
	var n int
	for found := tbl.NextMatch(&it); found != nil; found = tbl.NextMatch(&it) {
		n++
	}
	return n
}

func TestJoinTableBasic(t *testing.T) {
	buildConv, buildPack := packInts(t, []int64{1, 2, 3, 2}, nil, []int64{10, 20, 30, 40})
	probeConv, probePack := packInts(t, []int64{2, 4, 3}, nil, []int64{0, 0, 0})

	var tbl JoinTable
	tbl.SetTupleLayout(buildConv.GetTupleLayout())
	tbl.Build(buildPack)
	require.Equal(t, 4, tbl.Count())

	probeLayout := probeConv.GetTupleLayout()
	require.Equal(t, 2, matchesOf(t, &tbl, probeLayout, probePack, 0)) // key 2 twice
	require.Equal(t, 0, matchesOf(t, &tbl, probeLayout, probePack, 1)) // key 4 absent
	require.Equal(t, 1, matchesOf(t, &tbl, probeLayout, probePack, 2)) // key 3 once
}

func TestJoinTableNullKeysNeverMatch(t *testing.T) {
	buildConv, buildPack := packInts(t, []int64{1, 2}, []int{0}, []int64{0, 0})
	probeConv, probePack := packInts(t, []int64{1, 2}, []int{0}, []int64{0, 0})

	var tbl JoinTable
	tbl.SetTupleLayout(buildConv.GetTupleLayout())
	tbl.Build(buildPack)

	probeLayout := probeConv.GetTupleLayout()
	require.Equal(t, 0, matchesOf(t, &tbl, probeLayout, probePack, 0))
	require.Equal(t, 1, matchesOf(t, &tbl, probeLayout, probePack, 1))
}

func TestJoinTableEmptyBuild(t *testing.T) {
	buildConv, _ := packInts(t, nil, nil, nil)
	probeConv, probePack := packInts(t, []int64{1}, nil, []int64{0})

	var tbl JoinTable
	tbl.SetTupleLayout(buildConv.GetTupleLayout())
	tbl.Build(&packed.PackResult{})
	require.Equal(t, 0, matchesOf(t, &tbl, probeConv.GetTupleLayout(), probePack, 0))
}

func TestJoinTableRebuild(t *testing.T) {
	buildConv, firstPack := packInts(t, []int64{1}, nil, []int64{10})
	_, secondPack := packInts(t, []int64{5, 5, 5}, nil, []int64{1, 2, 3})
	probeConv, probePack := packInts(t, []int64{5, 1}, nil, []int64{0, 0})

	var tbl JoinTable
	tbl.SetTupleLayout(buildConv.GetTupleLayout())
	tbl.Build(firstPack)
	probeLayout := probeConv.GetTupleLayout()
	require.Equal(t, 1, matchesOf(t, &tbl, probeLayout, probePack, 1))

	// pointing the table at a new build drops the old index
	tbl.Build(secondPack)
	require.Equal(t, 3, matchesOf(t, &tbl, probeLayout, probePack, 0))
	require.Equal(t, 0, matchesOf(t, &tbl, probeLayout, probePack, 1))
}
