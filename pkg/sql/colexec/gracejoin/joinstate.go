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
	"sort"

	"github.com/matrixorigin/blockjoin/pkg/common/mpool"
	"github.com/matrixorigin/blockjoin/pkg/container/block"
	"github.com/matrixorigin/blockjoin/pkg/container/vector"
	"github.com/matrixorigin/blockjoin/pkg/packed"
)

// sideOutput describes how one user-visible side of the join is turned
// back into block columns: its converter, its optional payload indirection
// and the projection map applied after unpack.
type sideOutput struct {
	converter *packed.Converter
	payload   *payloadStorage // nil when the side is not indirected
	ioMap     []uint32

	// block geometry needed to undo the key/payload split of an
	// indirected side
	nCols            int
	keyPositions     []int
	payloadPositions []int
}

func newSideOutput(converter *packed.Converter, payload *payloadStorage, ioMap []uint32, keyColumns []uint32, nCols int) sideOutput {
	s := sideOutput{
		converter: converter,
		payload:   payload,
		ioMap:     ioMap,
		nCols:     nCols,
	}
	isKey := make(map[int]bool, len(keyColumns))
	for _, c := range keyColumns {
		isKey[int(c)] = true
	}
	for i := 0; i < nCols; i++ {
		if isKey[i] {
			s.keyPositions = append(s.keyPositions, i)
		} else {
			s.payloadPositions = append(s.payloadPositions, i)
		}
	}
	sort.Ints(s.keyPositions)
	return s
}

// joinState is the output half shared by both join algorithms. It owns the
// packed input and output buffers and knows, through WasSwapped, which
// physical buffer currently holds the user-left rows.
//
// Output packed tuples keep borrowing variable length tails from the
// packed INPUT overflow, so ResetInput must not run before MakeBlocks has
// copied everything out.
type joinState struct {
	mp        *mpool.MPool
	maxLength int

	wasSwapped bool

	buildPackedInput packed.PackResult
	probePackedInput packed.PackResult

	buildPackedOutput []byte
	probePackedOutput []byte

	outputRows int

	left  sideOutput
	right sideOutput

	// buffer bindings, flipped by setSwapped
	leftPackedOutput  *[]byte
	rightPackedOutput *[]byte
	leftOverflow      *[]byte
	rightOverflow     *[]byte

	outBlocks []*block.Block
}

// newJoinState binds the build side buffers to the user-left output unless
// wasSwapped says the physical build side is really the user-right input.
func newJoinState(buildSide, probeSide sideOutput, wasSwapped bool, maxLength int, mp *mpool.MPool) *joinState {
	st := &joinState{
		mp:         mp,
		maxLength:  maxLength,
		wasSwapped: wasSwapped,
		left:       buildSide,
		right:      probeSide,
	}
	st.leftPackedOutput = &st.buildPackedOutput
	st.leftOverflow = &st.buildPackedInput.Overflow
	st.rightPackedOutput = &st.probePackedOutput
	st.rightOverflow = &st.probePackedInput.Overflow
	if wasSwapped {
		st.left, st.right = st.right, st.left
		st.leftPackedOutput, st.rightPackedOutput = st.rightPackedOutput, st.leftPackedOutput
		st.leftOverflow, st.rightOverflow = st.rightOverflow, st.leftOverflow
	}
	return st
}

func (st *joinState) getSwapped() bool {
	return st.wasSwapped
}

// setSwapped rebinds the output buffers when a grace bucket picks the
// opposite build side. Converters and payload storages stay put, they are
// per user side, not per build side.
func (st *joinState) setSwapped(wasSwapped bool) {
	if wasSwapped == st.wasSwapped {
		return
	}
	st.leftPackedOutput, st.rightPackedOutput = st.rightPackedOutput, st.leftPackedOutput
	st.leftOverflow, st.rightOverflow = st.rightOverflow, st.leftOverflow
	st.wasSwapped = wasSwapped
}

// appendMatch copies one (build, probe) tuple pair into the packed output.
func (st *joinState) appendMatch(buildTuple, probeTuple []byte) {
	st.buildPackedOutput = append(st.buildPackedOutput, buildTuple...)
	st.probePackedOutput = append(st.probePackedOutput, probeTuple...)
	st.outputRows++
}

// isNotFull keeps the output under ~80% of the block budget: the batched
// lookup window cannot stop mid-batch, so headroom has to absorb a whole
// window's worth of matches.
func (st *joinState) isNotFull() bool {
	return st.outputRows*5 < st.maxLength*4
}

// hasEnoughMemory checks the probe overflow against the same 80% watermark
// so the next batched pack cannot outgrow the reservation and move the
// buffer out from under the borrowed output tuples.
func (st *joinState) hasEnoughMemory() bool {
	ovf := st.probePackedInput.Overflow
	return cap(ovf) == 0 || len(ovf)*5 < cap(ovf)*4
}

func (st *joinState) hasBlocks() bool {
	return len(st.outBlocks) > 0
}

func (st *joinState) popBlock() *block.Block {
	blk := st.outBlocks[0]
	st.outBlocks = st.outBlocks[1:]
	return blk
}

// makeBlocks unpacks the packed output into one columnar block: left side
// columns, right side columns, projection maps applied, row count set.
func (st *joinState) makeBlocks(ctx context.Context) error {
	leftVecs, err := st.unpackSide(&st.left, *st.leftPackedOutput, *st.leftOverflow)
	if err != nil {
		return err
	}
	rightVecs, err := st.unpackSide(&st.right, *st.rightPackedOutput, *st.rightOverflow)
	if err != nil {
		return err
	}

	vecs := make([]*vector.Vector, 0, len(st.left.ioMap)+len(st.right.ioMap))
	for _, idx := range st.left.ioMap {
		vecs = append(vecs, leftVecs[idx])
		leftVecs[idx] = nil
	}
	for _, idx := range st.right.ioMap {
		vecs = append(vecs, rightVecs[idx])
		rightVecs[idx] = nil
	}
	// dropped key columns are rebuilt by unpack but never emitted
	for _, vec := range leftVecs {
		if vec != nil {
			vec.Free(st.mp)
		}
	}
	for _, vec := range rightVecs {
		if vec != nil {
			vec.Free(st.mp)
		}
	}

	st.outBlocks = append(st.outBlocks, block.New(vecs, st.outputRows))
	return nil
}

func (st *joinState) unpackSide(s *sideOutput, tuples, overflow []byte) ([]*vector.Vector, error) {
	pack := packed.PackResult{
		PackedTuples: tuples,
		Overflow:     overflow,
		NTuples:      st.outputRows,
	}
	cols, err := s.converter.Unpack(&pack, st.mp)
	if err != nil {
		return nil, err
	}
	if s.payload == nil {
		return cols, nil
	}

	// the indirected converter sees [keys..., index]; swap the index column
	// for the stored payload columns and put everything back into block
	// positions
	idxVec := cols[len(cols)-1]
	indexes := vector.MustFixedCol[uint64](idxVec)
	payloadVecs, err := s.payload.RestorePayload(indexes, st.outputRows)
	if err != nil {
		return nil, err
	}
	full := make([]*vector.Vector, s.nCols)
	for j, pos := range s.keyPositions {
		full[pos] = cols[j]
	}
	for j, pos := range s.payloadPositions {
		full[pos] = payloadVecs[j]
	}
	idxVec.Free(st.mp)
	return full, nil
}

// resetInput recycles the probe side after a block is fully consumed. The
// build input stays, it is constant for every DoProbe call.
func (st *joinState) resetInput() {
	st.probePackedInput.Reset()
	if st.left.payload != nil {
		st.left.payload.Clear()
	}
	if st.right.payload != nil {
		st.right.payload.Clear()
	}
}

func (st *joinState) resetOutput() {
	st.outputRows = 0
	st.buildPackedOutput = st.buildPackedOutput[:0]
	st.probePackedOutput = st.probePackedOutput[:0]
}
