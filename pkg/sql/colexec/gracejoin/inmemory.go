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
	"math/bits"
	"time"

	"go.uber.org/zap"

	"github.com/matrixorigin/blockjoin/pkg/common/mpool"
	"github.com/matrixorigin/blockjoin/pkg/container/hashtable"
	"github.com/matrixorigin/blockjoin/pkg/container/vector"
	"github.com/matrixorigin/blockjoin/pkg/logutil"
	"github.com/matrixorigin/blockjoin/pkg/packed"
	"github.com/matrixorigin/blockjoin/pkg/perfcounter"
)

// inMemoryGraceJoin radix-partitions both fully buffered sides by key hash
// and joins the bucket pairs one by one, so each bucket's hash table plus
// its probe stream stay cache resident. Within a bucket the side with
// fewer tuples builds, so the build/probe roles can flip from bucket to
// bucket; joinState keeps the output orientation straight.
type inMemoryGraceJoin struct {
	mp       *mpool.MPool
	joinName string

	left  *sideInput
	right *sideInput

	bucketsLogNum uint
	leftBuckets   []packed.PackResult
	rightBuckets  []packed.PackResult

	st    *joinState
	table hashtable.JoinTable

	currBucket     int
	currProbeRow   int
	needNextBucket bool
}

func newInMemoryGraceJoin(ctx context.Context, op *BlockGraceJoin, temp *tempJoinStorage) (*inMemoryGraceJoin, error) {
	mp := op.ctr.mp
	leftPSz, rightPSz := temp.GetPayloadSizes()
	leftTuples, rightTuples := temp.GetFetchedTuples()
	maxFetchedTuples := leftTuples
	if rightTuples > maxFetchedTuples {
		maxFetchedTuples = rightTuples
	}
	cardinality := temp.EstimateCardinality() // bootstrap value, may be far from truth
	if cardinality == 0 {
		cardinality = 1
	}
	leftData, rightData := temp.DetachData()

	var leftRowsNum, rightRowsNum int
	for _, blk := range leftData {
		leftRowsNum += blk.RowCount
	}
	for _, blk := range rightData {
		rightRowsNum += blk.RowCount
	}

	multiplicity := maxFetchedTuples / cardinality
	if multiplicity == 0 {
		multiplicity = 1
	}
	isLeftIndirected := op.Policy.UseExternalPayload(AlgoInMemoryGraceJoin, leftPSz, multiplicity)
	isRightIndirected := op.Policy.UseExternalPayload(AlgoInMemoryGraceJoin, rightPSz, multiplicity)

	// both sides are stable across buckets, neither storage may be cleared
	left, err := newSideInput(op.ctr.leftItemTypes, op.LeftKeyColumns, isLeftIndirected, true, mp)
	if err != nil {
		return nil, err
	}
	right, err := newSideInput(op.ctr.rightItemTypes, op.RightKeyColumns, isRightIndirected, true, mp)
	if err != nil {
		return nil, err
	}

	gj := &inMemoryGraceJoin{
		mp:             mp,
		joinName:       op.ctr.joinName,
		left:           left,
		right:          right,
		needNextBucket: true,
	}

	// size sibling buckets to roughly fit a pair in 4x L2
	leftTupleSize := leftRowsNum * left.layout().TotalRowSize
	rightTupleSize := rightRowsNum * right.layout().TotalRowSize
	minTupleSize := leftTupleSize
	if rightTupleSize < minTupleSize {
		minTupleSize = rightTupleSize
	}
	const bucketDesiredSize = 4 * l2CacheSize
	if minTupleSize > 0 {
		gj.bucketsLogNum = uint(bits.Len(uint(minTupleSize-1) / bucketDesiredSize))
	}
	nBuckets := 1 << gj.bucketsLogNum
	gj.leftBuckets = make([]packed.PackResult, nBuckets)
	gj.rightBuckets = make([]packed.PackResult, nBuckets)

	leftOverflowSizeEst := expectedOverflowSize(left.layout(), leftRowsNum>>gj.bucketsLogNum)
	rightOverflowSizeEst := expectedOverflowSize(right.layout(), rightRowsNum>>gj.bucketsLogNum)
	for b := 0; b < nBuckets; b++ {
		gj.leftBuckets[b].Overflow = make([]byte, 0, leftOverflowSizeEst)
		gj.rightBuckets[b].Overflow = make([]byte, 0, rightOverflowSizeEst)
	}

	maxLength := calcMaxBlockLength(op.ctr.resultTypes)
	gj.st = newJoinState(left.output(op.ctr.leftIOMap), right.output(op.ctr.rightIOMap), false, maxLength, mp)

	for _, blk := range leftData {
		if err := left.bucketPackBlock(ctx, blk, gj.leftBuckets, gj.bucketsLogNum, mp); err != nil {
			return nil, err
		}
		left.releaseRawBlock(blk, mp)
	}
	for _, blk := range rightData {
		if err := right.bucketPackBlock(ctx, blk, gj.rightBuckets, gj.bucketsLogNum, mp); err != nil {
			return nil, err
		}
		right.releaseRawBlock(blk, mp)
	}

	gj.st.buildPackedOutput = make([]byte, 0, calcMaxBlockLength(op.ctr.leftItemTypes)*left.layout().TotalRowSize)
	gj.st.probePackedOutput = make([]byte, 0, calcMaxBlockLength(op.ctr.rightItemTypes)*right.layout().TotalRowSize)

	logutil.Debug("in-memory grace join chosen",
		zap.Uint64("leftTuples", leftTuples),
		zap.Uint64("rightTuples", rightTuples),
		zap.Uint64("cardinalityEstimate", cardinality),
		zap.Int("buckets", nBuckets),
		zap.Bool("leftIndirected", isLeftIndirected),
		zap.Bool("rightIndirected", isRightIndirected))
	return gj, nil
}

func (gj *inMemoryGraceJoin) doProbe(ctx context.Context) (FetchStatus, error) {
	begin := time.Now()
	defer func() {
		perfcounter.UpdateStageSpentTime(gj.joinName, "Probe", time.Since(begin))
	}()

	if gj.currBucket >= len(gj.leftBuckets) {
		return FetchFinish, nil
	}

	st := gj.st
	// output block from a previous doProbe call still pending
	if st.hasBlocks() {
		return FetchOk, nil
	}

	if gj.needNextBucket {
		gj.needNextBucket = false
		gj.buildIndex()
	}

	// fill the output buffers; doBatchLookup flags when the bucket is done
	gj.doBatchLookup()

	if st.outputRows == 0 {
		return gj.doProbe(ctx)
	}

	if err := st.makeBlocks(ctx); err != nil {
		return FetchFinish, err
	}
	// reset input only after a bucket pair is fully processed, otherwise
	// the probe rows still to scan would be wiped
	if gj.needNextBucket {
		st.resetInput()
	}
	st.resetOutput()
	return FetchOk, nil
}

// buildIndex points the table at the smaller half of the current bucket
// pair and indexes it.
func (gj *inMemoryGraceJoin) buildIndex() {
	begin := time.Now()
	defer func() {
		perfcounter.UpdateStageSpentTime(gj.joinName, "Build", time.Since(begin))
	}()

	st := gj.st
	leftPack := &gj.leftBuckets[gj.currBucket]
	rightPack := &gj.rightBuckets[gj.currBucket]

	if leftPack.NTuples < rightPack.NTuples {
		st.setSwapped(false)
		st.buildPackedInput = *leftPack
		st.probePackedInput = *rightPack
		gj.table.SetTupleLayout(gj.left.layout())
	} else {
		st.setSwapped(true)
		st.buildPackedInput = *rightPack
		st.probePackedInput = *leftPack
		gj.table.SetTupleLayout(gj.right.layout())
	}
	*leftPack = packed.PackResult{}
	*rightPack = packed.PackResult{}

	gj.table.Build(&st.buildPackedInput)
}

func (gj *inMemoryGraceJoin) doBatchLookup() {
	st := gj.st
	probeLayout := gj.right.layout()
	if st.getSwapped() {
		probeLayout = gj.left.layout()
	}
	in := &st.probePackedInput

	type iterPair struct {
		it    hashtable.Iterator
		tuple []byte
	}
	var iterators [batchSize]iterPair

	for ; gj.currProbeRow < in.NTuples && st.isNotFull(); gj.currProbeRow += batchSize {
		remaining := in.NTuples - gj.currProbeRow
		if remaining > batchSize {
			remaining = batchSize
		}
		for offset := 0; offset < remaining; offset++ {
			tuple := probeLayout.TupleAt(in.PackedTuples, gj.currProbeRow+offset)
			iterators[offset] = iterPair{
				it:    gj.table.Find(tuple, in.Overflow, probeLayout),
				tuple: tuple,
			}
		}
		for offset := 0; offset < remaining; offset++ {
			pair := &iterators[offset]
			for found := gj.table.NextMatch(&pair.it); found != nil; found = gj.table.NextMatch(&pair.it) {
				st.appendMatch(found, pair.tuple)
			}
		}
	}

	// >= because the last window can be short
	if gj.currProbeRow >= in.NTuples {
		gj.needNextBucket = true
		gj.currBucket++
		gj.currProbeRow = 0
	}
}

// fillOutput moves one finished block into the caller's wide slots.
func (gj *inMemoryGraceJoin) fillOutput(ctx context.Context, out []*vector.Vector) error {
	return gj.st.popBlock().ToWide(ctx, out)
}
