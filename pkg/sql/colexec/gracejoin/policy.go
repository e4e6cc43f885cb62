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
	"math"

	"github.com/matrixorigin/blockjoin/pkg/config"
)

type JoinAlgo int

const (
	AlgoHashJoin JoinAlgo = iota
	AlgoInMemoryGraceJoin
)

// StreamNotFetched marks a side whose tuple count is unknown because the
// stream did not finish during bootstrap.
const StreamNotFetched uint64 = math.MaxUint64

// Policy drives the bootstrap budget, the algorithm choice and the payload
// indirection decision. Implementations must be immutable once handed to
// an operator.
type Policy interface {
	// MaximumInitiallyFetchedData is the bytes budget per side during
	// bootstrap, measured in tuple layout representation.
	MaximumInitiallyFetchedData() uint64

	// PickAlgorithm chooses the join algorithm given the fetched tuple
	// counts; either may be StreamNotFetched. With one side unknown the
	// policy must return AlgoHashJoin: grace spilling is not implemented.
	PickAlgorithm(lTuples, rTuples uint64) JoinAlgo

	// UseExternalPayload reports whether payload columns of a side should
	// be carried through the indirection table instead of packed tuples.
	UseExternalPayload(algo JoinAlgo, payloadSize, multiplicity uint64) bool
}

type defaultPolicy struct {
	params config.JoinParameters
}

var globalDefaultPolicy *defaultPolicy

func init() {
	var params config.JoinParameters
	params.SetDefaultValues()
	globalDefaultPolicy = &defaultPolicy{params: params}
}

// DefaultPolicy returns the process-wide immutable default policy.
func DefaultPolicy() Policy {
	return globalDefaultPolicy
}

// NewPolicy builds a policy from loaded parameters.
func NewPolicy(params *config.JoinParameters) Policy {
	p := &defaultPolicy{params: *params}
	p.params.SetDefaultValues()
	return p
}

func (p *defaultPolicy) MaximumInitiallyFetchedData() uint64 {
	return p.params.MaxInitiallyFetchedData
}

func (p *defaultPolicy) PickAlgorithm(lTuples, rTuples uint64) JoinAlgo {
	if lTuples == StreamNotFetched || rTuples == StreamNotFetched {
		return AlgoHashJoin
	}
	smaller := lTuples
	if rTuples < smaller {
		smaller = rTuples
	}
	if smaller < p.params.GraceMinTuples {
		return AlgoHashJoin
	}
	return AlgoInMemoryGraceJoin
}

func (p *defaultPolicy) UseExternalPayload(_ JoinAlgo, payloadSize, multiplicity uint64) bool {
	return payloadSize >= p.params.PayloadIndirectionBytes &&
		multiplicity >= p.params.PayloadIndirectionMultiplicity
}
