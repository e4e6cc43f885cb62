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

// Package gracejoin implements the adaptive block inner join operator: it
// probes both input streams at startup, then runs either a one-sided
// in-memory hash join or a bucketed in-memory grace join over packed
// tuples.
package gracejoin

import (
	"context"

	"github.com/matrixorigin/blockjoin/pkg/common/mpool"
	"github.com/matrixorigin/blockjoin/pkg/container/types"
	"github.com/matrixorigin/blockjoin/pkg/container/vector"
	"github.com/matrixorigin/blockjoin/pkg/packed"
)

// FetchStatus is the cooperative streaming protocol shared by the operator
// and its inputs.
type FetchStatus int

const (
	FetchOk FetchStatus = iota
	// FetchYield surrenders control; the caller resumes later
	FetchYield
	FetchFinish
)

// WideStream delivers blocks in wide form: on Ok every element of vecs is
// filled and the last one is the const uint64 block length scalar.
// Ownership of the filled vectors passes to the caller; a stream must hand
// out fresh vectors on every fetch.
type WideStream interface {
	WideFetch(ctx context.Context, vecs []*vector.Vector) (FetchStatus, error)
}

// JoinKind mirrors the engine's join kind argument. Only inner is accepted.
type JoinKind uint32

const (
	JoinKindInner JoinKind = 1
)

const (
	kb = 1024
	mb = kb * kb

	l2CacheSize = 256 * kb

	// batchSize is the lookup window: Find for 64 probe tuples, then drain
	// their match chains. The window is not interruptible, which is what
	// the output fullness watermark accounts for.
	batchSize = 64

	// sampleStep is the bootstrap sampling stride
	sampleStep = 100

	maxBlockSizeInBytes = 1 * mb
	maxBlockRows        = 65536
)

type mode int

const (
	modeStart mode = iota
	modeHashJoin
	modeInMemoryGraceJoin
	modeGraceHashJoin // reserved, fatal
)

// BlockGraceJoin is the operator. Construct with NewBlockGraceJoin, then
// drive WideFetch until FetchFinish.
type BlockGraceJoin struct {
	Left  WideStream
	Right WideStream

	// wide shapes, the last element of each is the uint64 length scalar
	LeftTypes  []types.Type
	RightTypes []types.Type

	JoinKind JoinKind

	LeftKeyColumns  []uint32
	LeftKeyDrops    []uint32
	RightKeyColumns []uint32
	RightKeyDrops   []uint32

	// reserved by the engine callable, unused
	RightAny bool

	Policy Policy

	ctr container
}

type container struct {
	mp *mpool.MPool

	mode     mode
	joinName string

	// stripped item types (no length scalar)
	leftItemTypes  []types.Type
	rightItemTypes []types.Type

	// wide result shape: kept left, kept right, length scalar
	resultTypes []types.Type

	// dense projection maps over unpacked side columns
	leftIOMap  []uint32
	rightIOMap []uint32

	temp      *tempJoinStorage
	hashJoin  *hashJoin
	graceJoin *inMemoryGraceJoin
}

// calcMaxBlockLength bounds output block rows so a block stays near
// maxBlockSizeInBytes for the widest fixed item. Variable length items are
// charged an estimated average.
func calcMaxBlockLength(typs []types.Type) int {
	maxItem := 1
	for _, t := range typs {
		sz := t.Oid.FixedLength()
		if t.IsVarlen() {
			sz = 64
		}
		if sz > maxItem {
			maxItem = sz
		}
	}
	n := maxBlockSizeInBytes / maxItem
	if n < 1 {
		n = 1
	}
	if n > maxBlockRows {
		n = maxBlockRows
	}
	return n
}

// expectedOverflowSize wraps the layout heuristic for pre-reserving
// overflow buffers.
func expectedOverflowSize(layout *packed.TupleLayout, nTuples int) int {
	return layout.ExpectedOverflowSize(nTuples)
}
