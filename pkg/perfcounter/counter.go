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

// Package perfcounter is the process-wide resource meter. Counters are
// monotonic side-effect sinks; nothing in the join core reads them back
// for correctness.
package perfcounter

import (
	"sync"
	"sync/atomic"
	"time"
)

type StageCounter struct {
	SpentTime atomic.Int64 // microseconds
	Calls     atomic.Int64
}

type OperatorCounter struct {
	stages sync.Map // stage name -> *StageCounter

	SpentTime  atomic.Int64 // microseconds
	PeakMemory atomic.Int64 // bytes
}

var operators sync.Map // operator name -> *OperatorCounter

func Get(name string) *OperatorCounter {
	if c, ok := operators.Load(name); ok {
		return c.(*OperatorCounter)
	}
	c, _ := operators.LoadOrStore(name, new(OperatorCounter))
	return c.(*OperatorCounter)
}

func (c *OperatorCounter) Stage(stage string) *StageCounter {
	if s, ok := c.stages.Load(stage); ok {
		return s.(*StageCounter)
	}
	s, _ := c.stages.LoadOrStore(stage, new(StageCounter))
	return s.(*StageCounter)
}

// UpdateStageSpentTime accumulates the duration of one build or probe step.
func UpdateStageSpentTime(name, stage string, spent time.Duration) {
	s := Get(name).Stage(stage)
	s.SpentTime.Add(spent.Microseconds())
	s.Calls.Add(1)
}

func UpdateSpentTime(name string, spent time.Duration) {
	Get(name).SpentTime.Add(spent.Microseconds())
}

// UpdateConsumedMemory keeps the high-water mark of bytes used.
func UpdateConsumedMemory(name string, used int64) {
	c := Get(name)
	for {
		peak := c.PeakMemory.Load()
		if used <= peak || c.PeakMemory.CompareAndSwap(peak, used) {
			return
		}
	}
}
