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
	"bytes"
	"context"
	"time"

	"github.com/matrixorigin/blockjoin/pkg/common/moerr"
	"github.com/matrixorigin/blockjoin/pkg/common/mpool"
	"github.com/matrixorigin/blockjoin/pkg/container/types"
	"github.com/matrixorigin/blockjoin/pkg/container/vector"
	"github.com/matrixorigin/blockjoin/pkg/perfcounter"
)

const opName = "block_grace_join"

func (op *BlockGraceJoin) String(buf *bytes.Buffer) {
	buf.WriteString(opName)
	buf.WriteString(": inner join ")
}

// NewBlockGraceJoin validates the nine construction arguments and sets the
// operator up in the Start state. A nil policy falls back to the process
// default.
func NewBlockGraceJoin(
	ctx context.Context,
	left WideStream, leftTypes []types.Type,
	right WideStream, rightTypes []types.Type,
	joinKind JoinKind,
	leftKeyColumns, leftKeyDrops []uint32,
	rightKeyColumns, rightKeyDrops []uint32,
	rightAny bool,
	policy Policy,
	mp *mpool.MPool,
) (*BlockGraceJoin, error) {
	if left == nil || right == nil {
		return nil, moerr.NewInvalidInput(ctx, "both input streams are required")
	}
	if joinKind != JoinKindInner {
		return nil, moerr.NewInvalidInput(ctx, "only inner join is supported, got kind %d", joinKind)
	}
	if err := checkWideShape(ctx, "left", leftTypes); err != nil {
		return nil, err
	}
	if err := checkWideShape(ctx, "right", rightTypes); err != nil {
		return nil, err
	}
	if len(leftKeyColumns) != len(rightKeyColumns) {
		return nil, moerr.NewInvalidInput(ctx, "key columns mismatch: %d != %d", len(leftKeyColumns), len(rightKeyColumns))
	}
	if len(leftKeyColumns) == 0 {
		return nil, moerr.NewInvalidInput(ctx, "at least one key column is required")
	}
	if err := checkKeys(ctx, "left", leftTypes, leftKeyColumns, leftKeyDrops); err != nil {
		return nil, err
	}
	if err := checkKeys(ctx, "right", rightTypes, rightKeyColumns, rightKeyDrops); err != nil {
		return nil, err
	}
	for i := range leftKeyColumns {
		lt := leftTypes[leftKeyColumns[i]]
		rt := rightTypes[rightKeyColumns[i]]
		if lt.Oid.IsFixedLen() != rt.Oid.IsFixedLen() ||
			(lt.Oid.IsFixedLen() && lt.Oid.FixedLength() != rt.Oid.FixedLength()) {
			return nil, moerr.NewInvalidInput(ctx, "key column pair %d has incompatible types %s and %s",
				i, lt.Oid.String(), rt.Oid.String())
		}
	}
	if policy == nil {
		policy = DefaultPolicy()
	}
	if mp == nil {
		return nil, moerr.NewInvalidInput(ctx, "operator needs a memory pool")
	}

	op := &BlockGraceJoin{
		Left:            left,
		Right:           right,
		LeftTypes:       leftTypes,
		RightTypes:      rightTypes,
		JoinKind:        joinKind,
		LeftKeyColumns:  leftKeyColumns,
		LeftKeyDrops:    leftKeyDrops,
		RightKeyColumns: rightKeyColumns,
		RightKeyDrops:   rightKeyDrops,
		RightAny:        rightAny,
		Policy:          policy,
	}

	ctr := &op.ctr
	ctr.mp = mp
	ctr.mode = modeStart
	ctr.joinName = opName
	ctr.leftItemTypes = leftTypes[:len(leftTypes)-1]
	ctr.rightItemTypes = rightTypes[:len(rightTypes)-1]
	ctr.leftIOMap = buildIOMap(ctr.leftItemTypes, leftKeyDrops)
	ctr.rightIOMap = buildIOMap(ctr.rightItemTypes, rightKeyDrops)

	for _, idx := range ctr.leftIOMap {
		ctr.resultTypes = append(ctr.resultTypes, ctr.leftItemTypes[idx])
	}
	for _, idx := range ctr.rightIOMap {
		ctr.resultTypes = append(ctr.resultTypes, ctr.rightItemTypes[idx])
	}
	ctr.resultTypes = append(ctr.resultTypes, types.T_uint64.ToType())

	temp, err := newTempJoinStorage(
		left, ctr.leftItemTypes, leftKeyColumns,
		right, ctr.rightItemTypes, rightKeyColumns,
		policy)
	if err != nil {
		return nil, err
	}
	ctr.temp = temp
	return op, nil
}

func checkWideShape(ctx context.Context, side string, typs []types.Type) error {
	if len(typs) < 2 {
		return moerr.NewInvalidInput(ctx, "%s stream must carry at least one column and the length scalar", side)
	}
	if typs[len(typs)-1].Oid != types.T_uint64 {
		return moerr.NewInvalidInput(ctx, "%s stream must end with the uint64 block length", side)
	}
	return nil
}

func checkKeys(ctx context.Context, side string, typs []types.Type, keyColumns, keyDrops []uint32) error {
	nItems := len(typs) - 1
	keySet := make(map[uint32]bool, len(keyColumns))
	for _, c := range keyColumns {
		if int(c) >= nItems {
			return moerr.NewInvalidInput(ctx, "%s key column %d out of range", side, c)
		}
		if keySet[c] {
			return moerr.NewInvalidInput(ctx, "%s key column %d duplicated", side, c)
		}
		keySet[c] = true
	}
	for _, d := range keyDrops {
		if !keySet[d] {
			return moerr.NewInvalidInput(ctx, "only key columns can be dropped, %s column %d is not a key", side, d)
		}
	}
	return nil
}

// buildIOMap lists the item columns to keep, skipping the key drops.
func buildIOMap(itemTypes []types.Type, keyDrops []uint32) []uint32 {
	drops := make(map[uint32]bool, len(keyDrops))
	for _, d := range keyDrops {
		drops[d] = true
	}
	ioMap := make([]uint32, 0, len(itemTypes))
	for i := range itemTypes {
		if drops[uint32(i)] {
			continue
		}
		ioMap = append(ioMap, uint32(i))
	}
	return ioMap
}

// ResultWidth is the wide output width: kept columns plus the length scalar.
func (op *BlockGraceJoin) ResultWidth() int {
	return len(op.ctr.resultTypes)
}

func (op *BlockGraceJoin) ResultTypes() []types.Type {
	return op.ctr.resultTypes
}

// WideFetch drives the operator. In the Start state it keeps pulling both
// inputs until the bootstrap can pick an algorithm, then forwards to the
// terminal state's probe loop. Yield propagates verbatim from upstream.
func (op *BlockGraceJoin) WideFetch(ctx context.Context, out []*vector.Vector) (FetchStatus, error) {
	begin := time.Now()
	defer func() {
		perfcounter.UpdateSpentTime(op.ctr.joinName, time.Since(begin))
		perfcounter.UpdateConsumedMemory(op.ctr.joinName, op.ctr.mp.CurrNB())
	}()

	ctr := &op.ctr
	for {
		switch ctr.mode {
		case modeStart:
			status := statusUnknown
			for status == statusUnknown {
				st, err := ctr.temp.FetchStreams(ctx)
				if err != nil {
					return st, err
				}
				if st == FetchYield {
					return FetchYield, nil
				}
				status = ctr.temp.GetStatus()
			}

			switch status {
			case statusBothStreamsFinished:
				lTuples, rTuples := ctr.temp.GetFetchedTuples()
				// the choice of algorithm belongs to the policy
				if op.Policy.PickAlgorithm(lTuples, rTuples) == AlgoHashJoin {
					if err := op.makeHashJoin(ctx); err != nil {
						return FetchFinish, err
					}
				} else {
					if err := op.makeInMemoryGraceJoin(ctx); err != nil {
						return FetchFinish, err
					}
				}

			case statusOneStreamFinished:
				lTuples, rTuples := ctr.temp.GetFetchedTuples()
				isLeftFinished, _ := ctr.temp.IsFinished()
				if !isLeftFinished {
					lTuples = StreamNotFetched
				} else {
					rTuples = StreamNotFetched
				}

				if op.Policy.PickAlgorithm(lTuples, rTuples) != AlgoHashJoin {
					// grace hash join with an unfetched side needs disk
					// spilling, which does not exist yet
					panic(moerr.NewNYI(ctx, "grace hash join"))
				}
				if err := op.makeHashJoin(ctx); err != nil {
					return FetchFinish, err
				}

			case statusMemoryLimitExceeded:
				ctr.mode = modeGraceHashJoin
				panic(moerr.NewNYI(ctx, "grace hash join"))
			}

		case modeHashJoin:
			status, err := ctr.hashJoin.doProbe(ctx)
			if err != nil || status != FetchOk {
				return status, err
			}
			return status, ctr.hashJoin.fillOutput(ctx, out)

		case modeInMemoryGraceJoin:
			status, err := ctr.graceJoin.doProbe(ctx)
			if err != nil || status != FetchOk {
				return status, err
			}
			return status, ctr.graceJoin.fillOutput(ctx, out)

		case modeGraceHashJoin:
			panic(moerr.NewNYI(ctx, "grace hash join"))
		}
	}
}

func (op *BlockGraceJoin) makeHashJoin(ctx context.Context) error {
	op.ctr.joinName = opName + "::hash_join"
	hj, err := newHashJoin(ctx, op, op.ctr.temp)
	if err != nil {
		return err
	}
	if err := hj.buildIndex(ctx); err != nil {
		return err
	}
	op.ctr.hashJoin = hj
	op.ctr.temp = nil
	op.ctr.mode = modeHashJoin
	return nil
}

func (op *BlockGraceJoin) makeInMemoryGraceJoin(ctx context.Context) error {
	op.ctr.joinName = opName + "::in_memory_grace_join"
	gj, err := newInMemoryGraceJoin(ctx, op, op.ctr.temp)
	if err != nil {
		return err
	}
	op.ctr.graceJoin = gj
	op.ctr.temp = nil
	op.ctr.mode = modeInMemoryGraceJoin
	return nil
}
