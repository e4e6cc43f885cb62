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
	"sync"
	"testing"

	"github.com/panjf2000/ants/v2"
	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/blockjoin/pkg/common/mpool"
)

// Operators share nothing but the default policy and the process meter, so
// independent instances must be safe to run side by side.
func TestConcurrentOperators(t *testing.T) {
	const workers = 8

	pool, err := ants.NewPool(4)
	require.NoError(t, err)
	defer pool.Release()

	var wg sync.WaitGroup
	results := make([][][]string, workers)
	for w := 0; w < workers; w++ {
		w := w
		wg.Add(1)
		require.NoError(t, pool.Submit(func() {
			defer wg.Done()
			op := tinyJoin(t, mpool.MustNewZero(), w%2 == 1)
			results[w] = sortRows(drainJoin(t, op))
		}))
	}
	wg.Wait()

	want := [][]string{{"2", "b", "x"}, {"3", "c", "y"}}
	for w := 0; w < workers; w++ {
		require.Equal(t, want, results[w])
	}
}
