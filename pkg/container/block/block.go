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

// Package block defines the unit of streaming between block operators. The
// wide form of a block is its columns followed by a const uint64 vector
// carrying the row count; operators strip the scalar on the way in and
// append it on the way out.
package block

import (
	"context"

	"github.com/matrixorigin/blockjoin/pkg/common/moerr"
	"github.com/matrixorigin/blockjoin/pkg/common/mpool"
	"github.com/matrixorigin/blockjoin/pkg/container/types"
	"github.com/matrixorigin/blockjoin/pkg/container/vector"
)

type Block struct {
	Vecs     []*vector.Vector
	RowCount int
}

func New(vecs []*vector.Vector, rowCount int) *Block {
	return &Block{Vecs: vecs, RowCount: rowCount}
}

func NewWithSize(n int) *Block {
	return &Block{Vecs: make([]*vector.Vector, n)}
}

// FromWide strips the trailing length scalar from a wide element list.
func FromWide(ctx context.Context, wide []*vector.Vector) (*Block, error) {
	if len(wide) < 1 {
		return nil, moerr.NewInvalidInput(ctx, "wide block must carry a length scalar")
	}
	last := wide[len(wide)-1]
	if !last.IsConst() || last.GetType().Oid != types.T_uint64 {
		return nil, moerr.NewInvalidInput(ctx, "wide block length must be a const uint64 scalar")
	}
	rowCount := int(vector.GetFixedAt[uint64](last, 0))
	vecs := make([]*vector.Vector, len(wide)-1)
	copy(vecs, wide[:len(wide)-1])
	return &Block{Vecs: vecs, RowCount: rowCount}, nil
}

// ToWide fills out with the block columns plus the length scalar. The out
// slice must hold exactly len(Vecs)+1 elements.
func (b *Block) ToWide(ctx context.Context, out []*vector.Vector) error {
	if len(out) != len(b.Vecs)+1 {
		return moerr.NewInvalidInput(ctx, "wide output width mismatch: %d != %d", len(out), len(b.Vecs)+1)
	}
	copy(out, b.Vecs)
	out[len(out)-1] = vector.NewConstFixed(types.T_uint64.ToType(), uint64(b.RowCount), b.RowCount)
	return nil
}

// Size reports the approximate in-memory bytes of all columns.
func (b *Block) Size() int {
	var sz int
	for _, vec := range b.Vecs {
		sz += vec.Size()
	}
	return sz
}

func (b *Block) Clean(mp *mpool.MPool) {
	for _, vec := range b.Vecs {
		if vec != nil && !vec.IsConst() {
			vec.Free(mp)
		}
	}
	b.Vecs = nil
	b.RowCount = 0
}
