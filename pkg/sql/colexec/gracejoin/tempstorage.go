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

	"github.com/matrixorigin/blockjoin/pkg/common/moerr"
	"github.com/matrixorigin/blockjoin/pkg/container/block"
	"github.com/matrixorigin/blockjoin/pkg/container/types"
	"github.com/matrixorigin/blockjoin/pkg/container/vector"
	"github.com/matrixorigin/blockjoin/pkg/packed"
)

type tempStatus int

const (
	statusUnknown tempStatus = iota
	// one side ended, the other exceeded the budget
	statusOneStreamFinished
	// drain completed before either side exceeded the budget
	statusBothStreamsFinished
	// both sides exceeded the budget; grace spilling territory
	statusMemoryLimitExceeded
)

type tempSide struct {
	stream     WideStream
	inputs     []*vector.Vector
	keyColumns []uint32

	data          []*block.Block
	fetchedTuples uint64
	estimatedSize uint64
	finished      bool

	// converter here is used only for size estimation and sampling via its
	// tuple layout
	converter *packed.Converter
	samples   []uint64
}

// tempJoinStorage buffers initial data from both streams so the operator
// can decide between hash join and in-memory grace join without committing
// to either. It also collects the size and cardinality statistics the
// decision needs.
type tempJoinStorage struct {
	left   tempSide
	right  tempSide
	policy Policy

	detached bool
}

func newTempJoinStorage(
	leftStream WideStream, leftItemTypes []types.Type, leftKeyColumns []uint32,
	rightStream WideStream, rightItemTypes []types.Type, rightKeyColumns []uint32,
	policy Policy,
) (*tempJoinStorage, error) {
	leftConverter, err := packed.NewConverter(leftItemTypes, leftKeyColumns)
	if err != nil {
		return nil, err
	}
	rightConverter, err := packed.NewConverter(rightItemTypes, rightKeyColumns)
	if err != nil {
		return nil, err
	}
	return &tempJoinStorage{
		left: tempSide{
			stream:     leftStream,
			inputs:     make([]*vector.Vector, len(leftItemTypes)+1),
			keyColumns: leftKeyColumns,
			converter:  leftConverter,
		},
		right: tempSide{
			stream:     rightStream,
			inputs:     make([]*vector.Vector, len(rightItemTypes)+1),
			keyColumns: rightKeyColumns,
			converter:  rightConverter,
		},
		policy: policy,
	}, nil
}

// FetchStreams pulls at most one block per side. Finish here means "ask
// GetStatus now", not "no data".
func (ts *tempJoinStorage) FetchStreams(ctx context.Context) (FetchStatus, error) {
	if ts.detached {
		return FetchFinish, moerr.NewInternalError(ctx, "fetch on detached temp join storage")
	}
	maxFetchedSize := ts.policy.MaximumInitiallyFetchedData()

	resultLeft, err := ts.left.fetchOne(ctx, maxFetchedSize)
	if err != nil {
		return resultLeft, err
	}
	resultRight, err := ts.right.fetchOne(ctx, maxFetchedSize)
	if err != nil {
		return resultRight, err
	}

	if resultLeft == FetchYield || resultRight == FetchYield {
		return FetchYield, nil
	}
	return FetchFinish, nil
}

func (s *tempSide) fetchOne(ctx context.Context, maxFetchedSize uint64) (FetchStatus, error) {
	if s.finished || s.estimatedSize >= maxFetchedSize {
		return FetchFinish, nil
	}
	status, err := s.stream.WideFetch(ctx, s.inputs)
	if err != nil {
		return status, err
	}
	switch status {
	case FetchOk:
		blk, err := block.FromWide(ctx, s.inputs)
		if err != nil {
			return FetchFinish, err
		}
		layout := s.converter.GetTupleLayout()
		s.estimatedSize += uint64(blk.RowCount) * uint64(layout.TotalRowSize)
		s.fetchedTuples += uint64(blk.RowCount)
		s.sampleBlock(blk)
		s.data = append(s.data, blk)
	case FetchFinish:
		s.finished = true
	}
	return status, nil
}

// sampleBlock hashes every sampleStep-th key for the cardinality sketch.
func (s *tempSide) sampleBlock(blk *block.Block) {
	layout := s.converter.GetTupleLayout()
	for i := 0; i < blk.RowCount; i += sampleStep {
		s.samples = append(s.samples, layout.KeyHashAt(blk.Vecs, i))
	}
}

func (ts *tempJoinStorage) GetStatus() tempStatus {
	maxFetchedSize := ts.policy.MaximumInitiallyFetchedData()

	if ts.left.finished && ts.right.finished {
		return statusBothStreamsFinished
	}
	if (ts.left.finished && ts.right.estimatedSize >= maxFetchedSize) ||
		(ts.left.estimatedSize >= maxFetchedSize && ts.right.finished) {
		return statusOneStreamFinished
	}
	if ts.left.estimatedSize >= maxFetchedSize && ts.right.estimatedSize >= maxFetchedSize {
		return statusMemoryLimitExceeded
	}
	return statusUnknown
}

func (ts *tempJoinStorage) GetFetchedTuples() (uint64, uint64) {
	return ts.left.fetchedTuples, ts.right.fetchedTuples
}

func (ts *tempJoinStorage) GetPayloadSizes() (uint64, uint64) {
	return uint64(ts.left.converter.GetTupleLayout().PayloadSize),
		uint64(ts.right.converter.GetTupleLayout().PayloadSize)
}

func (ts *tempJoinStorage) IsFinished() (bool, bool) {
	return ts.left.finished, ts.right.finished
}

// EstimateCardinality sketches the join size from the collected samples.
// This estimation is rough and depends on selectivity, use it as a
// bootstrap value only.
func (ts *tempJoinStorage) EstimateCardinality() uint64 {
	lTuples, rTuples := ts.GetFetchedTuples()
	maxTuples := lTuples
	if rTuples > maxTuples {
		maxTuples = rTuples
	}
	// 1/20 (5%) of a bucket at stride 1/100 -> 1/2000
	buckets := maxTuples / 2000
	if buckets == 0 {
		buckets = 1
	}
	estimator := newCardinalityEstimator(buckets)
	return estimator.Estimate(lTuples, ts.left.samples, rTuples, ts.right.samples)
}

// DetachData hands the buffered blocks to the chosen algorithm. FetchStreams
// must not be called afterwards.
func (ts *tempJoinStorage) DetachData() ([]*block.Block, []*block.Block) {
	ts.detached = true
	leftData, rightData := ts.left.data, ts.right.data
	ts.left.data, ts.right.data = nil, nil
	return leftData, rightData
}
