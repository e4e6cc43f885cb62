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

package mpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/blockjoin/pkg/common/moerr"
)

func TestAllocFree(t *testing.T) {
	mp, err := NewMPool("test", 0)
	require.NoError(t, err)

	buf, err := mp.Alloc(100)
	require.NoError(t, err)
	require.Equal(t, 100, len(buf))
	require.Equal(t, int64(100), mp.CurrNB())

	mp.Free(buf)
	require.Equal(t, int64(0), mp.CurrNB())
	require.Equal(t, int64(100), mp.HighWaterMark())
}

func TestCap(t *testing.T) {
	mp, err := NewMPool("capped", 64)
	require.NoError(t, err)

	_, err = mp.Alloc(65)
	require.Error(t, err)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrOOM))

	// the failed alloc must not leak accounting
	require.Equal(t, int64(0), mp.CurrNB())
	buf, err := mp.Alloc(64)
	require.NoError(t, err)
	mp.Free(buf)
}

func TestGrow(t *testing.T) {
	mp := MustNewZero()

	buf, err := mp.Alloc(8)
	require.NoError(t, err)
	copy(buf, "abcdefgh")

	buf, err = mp.Grow(buf, 100)
	require.NoError(t, err)
	require.Equal(t, 100, len(buf))
	require.Equal(t, "abcdefgh", string(buf[:8]))

	// shrink within capacity reslices in place
	buf2, err := mp.Grow(buf, 10)
	require.NoError(t, err)
	require.Equal(t, 10, len(buf2))

	mp.Free(buf2[:cap(buf2)])
	require.Equal(t, int64(0), mp.CurrNB())
}

func TestConcurrentAccounting(t *testing.T) {
	mp := MustNewZero()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				buf, err := mp.Alloc(64)
				if err != nil {
					panic(err)
				}
				mp.Free(buf)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(0), mp.CurrNB())
}
