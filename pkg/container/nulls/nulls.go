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

// Package nulls wraps the bitmap library. A column stores all its NULL row
// positions in one Nulls value.
package nulls

import (
	"github.com/matrixorigin/blockjoin/pkg/common/bitmap"
)

type Nulls struct {
	np *bitmap.Bitmap
}

func NewWithSize(n int) *Nulls {
	return &Nulls{np: bitmap.New(n)}
}

func (nsp *Nulls) Clone() *Nulls {
	if nsp == nil {
		return nil
	}
	return &Nulls{np: nsp.np.Clone()}
}

func (nsp *Nulls) Add(rows ...uint64) {
	if nsp == nil {
		return
	}
	if nsp.np == nil {
		nsp.np = bitmap.New(0)
	}
	nsp.np.AddMany(rows)
}

func (nsp *Nulls) Contains(row uint64) bool {
	return nsp != nil && nsp.np != nil && nsp.np.Contains(row)
}

func (nsp *Nulls) Any() bool {
	return nsp != nil && nsp.np != nil && !nsp.np.IsEmpty()
}

func (nsp *Nulls) Count() int {
	if nsp == nil || nsp.np == nil {
		return 0
	}
	return nsp.np.Count()
}

func (nsp *Nulls) Reset() {
	if nsp != nil && nsp.np != nil {
		nsp.np.Clear()
	}
}

func (nsp *Nulls) ToArray() []uint64 {
	if nsp == nil || nsp.np == nil {
		return nil
	}
	return nsp.np.ToArray()
}

// Or stores the union of nsp and m into r.
func Or(nsp, m, r *Nulls) {
	r.np = bitmap.New(0)
	if nsp != nil && nsp.np != nil {
		r.np.Or(nsp.np)
	}
	if m != nil && m.np != nil {
		r.np.Or(m.np)
	}
}
