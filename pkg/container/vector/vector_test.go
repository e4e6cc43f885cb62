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
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/blockjoin/pkg/common/mpool"
	"github.com/matrixorigin/blockjoin/pkg/container/types"
)

func TestAppendFixed(t *testing.T) {
	mp := mpool.MustNewZero()
	vec := NewVec(types.T_int64.ToType())
	require.NoError(t, AppendFixed(vec, int64(42), false, mp))
	require.NoError(t, AppendFixed(vec, int64(0), true, mp))
	require.NoError(t, AppendFixed(vec, int64(-7), false, mp))

	require.Equal(t, 3, vec.Length())
	require.Equal(t, int64(42), GetFixedAt[int64](vec, 0))
	require.True(t, vec.IsNull(1))
	require.False(t, vec.IsNull(2))
	require.Equal(t, int64(-7), GetFixedAt[int64](vec, 2))
	require.Equal(t, []int64{42, 0, -7}, MustFixedCol[int64](vec))
}

func TestAppendBytesInlineAndArea(t *testing.T) {
	mp := mpool.MustNewZero()
	vec := NewVec(types.T_varchar.ToType())
	long := strings.Repeat("x", 100)
	require.NoError(t, AppendBytes(vec, []byte("tiny"), false, mp))
	require.NoError(t, AppendBytes(vec, []byte(long), false, mp))
	require.NoError(t, AppendBytes(vec, nil, true, mp))

	require.Equal(t, "tiny", string(vec.GetBytesAt(0)))
	require.Equal(t, long, string(vec.GetBytesAt(1)))
	require.True(t, vec.IsNull(2))
	require.NotEmpty(t, vec.GetArea())
}

func TestConstVector(t *testing.T) {
	vec := NewConstFixed(types.T_uint64.ToType(), uint64(123), 10)
	require.True(t, vec.IsConst())
	require.Equal(t, 10, vec.Length())
	require.Equal(t, uint64(123), GetFixedAt[uint64](vec, 0))
	require.Equal(t, uint64(123), GetFixedAt[uint64](vec, 7))
}

func TestFree(t *testing.T) {
	mp := mpool.MustNewZero()
	vec := NewVec(types.T_varchar.ToType())
	require.NoError(t, AppendBytes(vec, []byte(strings.Repeat("y", 64)), false, mp))
	require.Greater(t, mp.CurrNB(), int64(0))
	vec.Free(mp)
	require.Equal(t, 0, vec.Length())
	require.Equal(t, int64(0), mp.CurrNB())
}

func TestAppendWithoutPoolPanics(t *testing.T) {
	vec := NewVec(types.T_int64.ToType())
	require.Panics(t, func() {
		_ = AppendFixed(vec, int64(1), false, nil)
	})
}
