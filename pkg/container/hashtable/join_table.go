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

// Package hashtable holds the build-once probe-many index over packed
// tuples used by the block join.
package hashtable

import (
	"math/bits"

	"github.com/matrixorigin/blockjoin/pkg/packed"
)

// JoinTable is a chained hash table over one PackResult. The table stores
// tuple ordinals only; tuple bytes stay in the build buffer. Tuples whose
// key hash is the zero sentinel (some key item NULL) are never inserted
// and never found.
type JoinTable struct {
	layout *packed.TupleLayout

	tuples   []byte
	overflow []byte
	nTuples  int

	mask uint64
	// dir and next hold ordinal+1; 0 terminates a chain
	dir  []uint32
	next []uint32
}

// Iterator walks the matches of one probe tuple. Obtain with Find, advance
// with NextMatch.
type Iterator struct {
	pos           uint32
	hash          uint64
	probeTuple    []byte
	probeOverflow []byte
	probeLayout   *packed.TupleLayout
}

// SetTupleLayout points the table at the layout of the next build side.
// Must be called before Build whenever the build side changes.
func (t *JoinTable) SetTupleLayout(layout *packed.TupleLayout) {
	t.layout = layout
}

// Build indexes all tuples of pack. Any previous index is discarded.
func (t *JoinTable) Build(pack *packed.PackResult) {
	t.tuples = pack.PackedTuples
	t.overflow = pack.Overflow
	t.nTuples = pack.NTuples

	nDir := 1
	if pack.NTuples > 0 {
		nDir = 1 << bits.Len(uint(pack.NTuples)*2-1)
	}
	t.mask = uint64(nDir - 1)
	t.dir = make([]uint32, nDir)
	t.next = make([]uint32, pack.NTuples)

	for i := 0; i < pack.NTuples; i++ {
		hash := t.layout.HashAt(t.tuples, i)
		if hash == 0 {
			continue
		}
		slot := hash & t.mask
		t.next[i] = t.dir[slot]
		t.dir[slot] = uint32(i) + 1
	}
}

func (t *JoinTable) Count() int {
	return t.nTuples
}

// Find starts a match scan for one probe tuple. probeOverflow resolves the
// probe tuple's variable length cells; the probe side layout is assumed to
// carry the same key item types in the same key order as the build layout.
func (t *JoinTable) Find(probeTuple, probeOverflow []byte, probeLayout *packed.TupleLayout) Iterator {
	hash := probeLayout.TupleHash(probeTuple)
	if hash == 0 {
		return Iterator{}
	}
	return Iterator{
		pos:           t.dir[hash&t.mask],
		hash:          hash,
		probeTuple:    probeTuple,
		probeOverflow: probeOverflow,
		probeLayout:   probeLayout,
	}
}

// NextMatch returns the next matching build tuple, or nil when the chain is
// exhausted.
func (t *JoinTable) NextMatch(it *Iterator) []byte {
	for it.pos != 0 {
		idx := int(it.pos) - 1
		it.pos = t.next[idx]
		if t.layout.HashAt(t.tuples, idx) != it.hash {
			continue
		}
		buildTuple := t.layout.TupleAt(t.tuples, idx)
		if t.layout.KeysEqual(buildTuple, t.overflow, it.probeTuple, it.probeOverflow, it.probeLayout) {
			return buildTuple
		}
	}
	return nil
}
