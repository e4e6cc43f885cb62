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
	"time"

	"go.uber.org/zap"

	"github.com/matrixorigin/blockjoin/pkg/common/mpool"
	"github.com/matrixorigin/blockjoin/pkg/container/block"
	"github.com/matrixorigin/blockjoin/pkg/container/hashtable"
	"github.com/matrixorigin/blockjoin/pkg/container/vector"
	"github.com/matrixorigin/blockjoin/pkg/logutil"
	"github.com/matrixorigin/blockjoin/pkg/perfcounter"
)

// hashJoin is the one-sided in-memory join: the finished (or smaller)
// stream is packed and indexed once, the other stream keeps being fetched
// and probed block by block.
type hashJoin struct {
	mp       *mpool.MPool
	joinName string

	build     *sideInput
	buildData []*block.Block

	probe       *sideInput
	probeStream WideStream
	probeInputs []*vector.Vector
	probeData   []*block.Block

	st    *joinState
	table hashtable.JoinTable

	isFinished bool
}

func newHashJoin(ctx context.Context, op *BlockGraceJoin, temp *tempJoinStorage) (*hashJoin, error) {
	mp := op.ctr.mp
	leftTuples, rightTuples := temp.GetFetchedTuples()
	leftPSz, rightPSz := temp.GetPayloadSizes()
	isLeftFinished, isRightFinished := temp.IsFinished()
	cardinality := temp.EstimateCardinality() // bootstrap value, may be far from truth
	if cardinality == 0 {
		cardinality = 1
	}
	leftData, rightData := temp.DetachData()

	rightStream := op.Right
	leftItemTypes, rightItemTypes := op.ctr.leftItemTypes, op.ctr.rightItemTypes
	leftKeyColumns, rightKeyColumns := op.LeftKeyColumns, op.RightKeyColumns

	// assume the finished stream is the smaller one; with both finished the
	// counts settle it
	wasSwapped := false
	if (!isLeftFinished && isRightFinished) ||
		(isLeftFinished && isRightFinished && leftTuples > rightTuples) {
		rightStream = op.Left
		leftData, rightData = rightData, leftData
		leftTuples, rightTuples = rightTuples, leftTuples
		leftItemTypes, rightItemTypes = rightItemTypes, leftItemTypes
		leftKeyColumns, rightKeyColumns = rightKeyColumns, leftKeyColumns
		leftPSz, rightPSz = rightPSz, leftPSz
		wasSwapped = true
	}

	multiplicity := rightTuples / cardinality
	if multiplicity == 0 {
		multiplicity = 1
	}
	isBuildIndirected := op.Policy.UseExternalPayload(AlgoHashJoin, leftPSz, multiplicity)
	isProbeIndirected := op.Policy.UseExternalPayload(AlgoHashJoin, rightPSz, multiplicity)

	build, err := newSideInput(leftItemTypes, leftKeyColumns, isBuildIndirected, true, mp)
	if err != nil {
		return nil, err
	}
	probe, err := newSideInput(rightItemTypes, rightKeyColumns, isProbeIndirected, false, mp)
	if err != nil {
		return nil, err
	}

	hj := &hashJoin{
		mp:          mp,
		joinName:    op.ctr.joinName,
		build:       build,
		buildData:   leftData,
		probe:       probe,
		probeStream: rightStream,
		probeInputs: make([]*vector.Vector, len(rightItemTypes)+1),
		probeData:   rightData,
	}

	buildIOMap, probeIOMap := op.ctr.leftIOMap, op.ctr.rightIOMap
	if wasSwapped {
		buildIOMap, probeIOMap = probeIOMap, buildIOMap
	}
	maxLength := calcMaxBlockLength(op.ctr.resultTypes)
	hj.st = newJoinState(build.output(buildIOMap), probe.output(probeIOMap), wasSwapped, maxLength, mp)

	// reserve the buffers the probe loop appends into, so borrowed overflow
	// pointers survive a whole batch
	var nTuplesBuild int
	for _, blk := range hj.buildData {
		nTuplesBuild += blk.RowCount
	}
	buildLayout, probeLayout := build.layout(), probe.layout()
	hj.st.buildPackedInput.Overflow = make([]byte, 0, expectedOverflowSize(buildLayout, nTuplesBuild))

	// assume an average join selectivity of 25%: around 4 probe blocks per
	// emitted output block
	probeBlockLength := calcMaxBlockLength(rightItemTypes)
	hj.st.probePackedInput.Overflow = make([]byte, 0, expectedOverflowSize(probeLayout, probeBlockLength*4))
	hj.st.probePackedInput.PackedTuples = make([]byte, 0, probeBlockLength*probeLayout.TotalRowSize)

	hj.st.buildPackedOutput = make([]byte, 0, calcMaxBlockLength(leftItemTypes)*buildLayout.TotalRowSize)
	hj.st.probePackedOutput = make([]byte, 0, probeBlockLength*probeLayout.TotalRowSize)

	logutil.Debug("hash join chosen",
		zap.Uint64("buildTuples", leftTuples),
		zap.Uint64("probeTuples", rightTuples),
		zap.Uint64("cardinalityEstimate", cardinality),
		zap.Bool("wasSwapped", wasSwapped),
		zap.Bool("buildIndirected", isBuildIndirected),
		zap.Bool("probeIndirected", isProbeIndirected))
	return hj, nil
}

// buildIndex packs all buffered build blocks and indexes them. Raw build
// blocks are dropped right after, the packed form carries everything.
func (hj *hashJoin) buildIndex(ctx context.Context) error {
	begin := time.Now()
	defer func() {
		perfcounter.UpdateStageSpentTime(hj.joinName, "Build", time.Since(begin))
	}()

	for _, blk := range hj.buildData {
		if err := hj.build.packBlock(ctx, blk, &hj.st.buildPackedInput, hj.mp); err != nil {
			return err
		}
		hj.build.releaseRawBlock(blk, hj.mp)
	}
	hj.buildData = nil // don't hold raw blocks beyond the pack

	hj.table.SetTupleLayout(hj.build.layout())
	hj.table.Build(&hj.st.buildPackedInput)
	return nil
}

// doProbe runs the probe loop until the output watermark is reached or the
// probe stream is drained, then turns the packed output into one block.
func (hj *hashJoin) doProbe(ctx context.Context) (FetchStatus, error) {
	begin := time.Now()
	defer func() {
		perfcounter.UpdateStageSpentTime(hj.joinName, "Probe", time.Since(begin))
	}()

	st := hj.st
	// output block from a previous doProbe call still pending
	if st.hasBlocks() {
		return FetchOk, nil
	}

	status := FetchFinish
	var err error
	for st.outputRows == 0 || (st.isNotFull() && st.hasEnoughMemory()) {
		if !st.isNotFull() || !st.hasEnoughMemory() {
			// watermark hit without a single match: nothing borrows from
			// the probe buffers yet, recycle them and keep draining
			st.resetInput()
		}
		if !hj.isFinished {
			status, err = hj.probeStream.WideFetch(ctx, hj.probeInputs)
			if err != nil {
				return status, err
			}
		}

		// cached probe data is handled no matter what the stream said
		if status == FetchYield && len(hj.probeData) == 0 {
			return FetchYield, nil
		}
		if status == FetchFinish {
			hj.isFinished = true
			if len(hj.probeData) == 0 {
				break
			}
		}
		if status == FetchOk {
			blk, err := block.FromWide(ctx, hj.probeInputs)
			if err != nil {
				return FetchFinish, err
			}
			hj.probeData = append(hj.probeData, blk)
		}

		if err := hj.packNextProbeBlock(ctx); err != nil {
			return FetchFinish, err
		}
		hj.doBatchLookup()

		// keep the overflow: output tuples still point into it, and the
		// probe payload storage stays for the same reason
		st.probePackedInput.ResetTuples()
	}

	if st.outputRows == 0 {
		st.resetInput()
		st.resetOutput()
		return FetchFinish, nil
	}

	if err := st.makeBlocks(ctx); err != nil {
		return FetchFinish, err
	}
	st.resetInput()
	st.resetOutput()
	return FetchOk, nil
}

func (hj *hashJoin) packNextProbeBlock(ctx context.Context) error {
	blk := hj.probeData[0]
	hj.probeData = hj.probeData[1:]
	if err := hj.probe.packBlock(ctx, blk, &hj.st.probePackedInput, hj.mp); err != nil {
		return err
	}
	hj.probe.releaseRawBlock(blk, hj.mp)
	return nil
}

// doBatchLookup probes the packed input in windows of batchSize: one pass
// starts the match scans, the second drains them. The window never stops
// halfway, which the fullness watermark accounts for.
func (hj *hashJoin) doBatchLookup() {
	st := hj.st
	probeLayout := hj.probe.layout()
	in := &st.probePackedInput

	type iterPair struct {
		it    hashtable.Iterator
		tuple []byte
	}
	var iterators [batchSize]iterPair

	for i := 0; i < in.NTuples; i += batchSize {
		remaining := in.NTuples - i
		if remaining > batchSize {
			remaining = batchSize
		}
		for offset := 0; offset < remaining; offset++ {
			tuple := probeLayout.TupleAt(in.PackedTuples, i+offset)
			iterators[offset] = iterPair{
				it:    hj.table.Find(tuple, in.Overflow, probeLayout),
				tuple: tuple,
			}
		}
		for offset := 0; offset < remaining; offset++ {
			pair := &iterators[offset]
			for found := hj.table.NextMatch(&pair.it); found != nil; found = hj.table.NextMatch(&pair.it) {
				st.appendMatch(found, pair.tuple)
			}
		}
	}
}

// fillOutput moves one finished block into the caller's wide slots.
func (hj *hashJoin) fillOutput(ctx context.Context, out []*vector.Vector) error {
	return hj.st.popBlock().ToWide(ctx, out)
}
