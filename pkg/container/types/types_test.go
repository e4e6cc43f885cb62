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

package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFixedLength(t *testing.T) {
	require.Equal(t, 1, T_int8.FixedLength())
	require.Equal(t, 8, T_int64.FixedLength())
	require.Equal(t, 8, T_datetime.FixedLength())
	require.Equal(t, VarlenaSize, T_varchar.FixedLength())

	require.True(t, T_uint32.IsFixedLen())
	require.False(t, T_blob.IsFixedLen())
	require.True(t, T_varchar.ToType().IsVarlen())
}

func TestVarlenaInline(t *testing.T) {
	var area []byte
	v, area := BuildVarlena([]byte("hello"), area)
	require.True(t, v.IsSmall())
	require.Equal(t, 5, v.Len())
	require.Equal(t, "hello", string(v.GetByteSlice(area)))
	require.Empty(t, area)
}

func TestVarlenaSpill(t *testing.T) {
	long := []byte(strings.Repeat("q", VarlenaInlineSize+1))
	var area []byte
	v, area := BuildVarlena(long, area)
	require.False(t, v.IsSmall())
	require.Equal(t, len(long), v.Len())
	require.Equal(t, string(long), string(v.GetByteSlice(area)))
	require.Equal(t, len(long), len(area))

	// a second value lands behind the first
	v2, area := BuildVarlena(long, area)
	offset, length := v2.OffsetLen()
	require.Equal(t, uint32(len(long)), offset)
	require.Equal(t, uint32(len(long)), length)
}

func TestEncodeDecodeSlice(t *testing.T) {
	vals := []int64{1, -2, 3}
	raw := EncodeSlice(vals)
	require.Equal(t, 24, len(raw))
	back := DecodeSlice[int64](raw)
	require.Equal(t, vals, back)

	require.Panics(t, func() {
		DecodeSlice[int64](raw[:7])
	})
}
