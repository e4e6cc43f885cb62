// Copyright 2022 - 2024 Matrix Origin
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

// Package malloc provides the size-class allocator behind mpool. Small
// classes recycle garbage-collected slices; large classes sit on
// mmap-backed buffers that are advised away from physical memory while
// parked on the freelist.
package malloc

import (
	"sync"
)

const (
	KB = 1 << 10
	MB = 1 << 20

	minClassSize    = 128
	maxClassSize    = 8 * MB
	classSizeFactor = 1.8

	// classes of at least this size go to the mmap allocator
	mmapThreshold = 1 * MB
)

// Deallocator returns a buffer to the allocator it came from. The buf
// argument must be the exact slice handed out by Allocate.
type Deallocator interface {
	Deallocate(buf []byte)
}

// FixedSizeAllocator hands out buffers of one fixed size.
type FixedSizeAllocator interface {
	Allocate() ([]byte, Deallocator, error)
}

type Allocator interface {
	// Allocate returns a zeroed buffer of at least size bytes; its cap is
	// the class size.
	Allocate(size uint64) ([]byte, Deallocator, error)
}

type dumbDeallocator struct{}

func (dumbDeallocator) Deallocate([]byte) {}

// ClassAllocator routes a request to the smallest class that fits it.
// Requests beyond the largest class fall back to one-off GC slices.
type ClassAllocator struct {
	classSizes []uint64
	fixed      []FixedSizeAllocator
}

func NewClassAllocator() *ClassAllocator {
	c := new(ClassAllocator)
	for size := uint64(minClassSize); size <= maxClassSize; size = uint64(float64(size) * classSizeFactor) {
		c.classSizes = append(c.classSizes, size)
		if size >= mmapThreshold {
			c.fixed = append(c.fixed, NewFixedSizeMmapAllocator(size))
		} else {
			c.fixed = append(c.fixed, NewFixedSizeSliceAllocator(size))
		}
	}
	return c
}

func (c *ClassAllocator) requestSizeToClass(size uint64) int {
	for class, classSize := range c.classSizes {
		if classSize >= size {
			return class
		}
	}
	return -1
}

func (c *ClassAllocator) Allocate(size uint64) ([]byte, Deallocator, error) {
	if size == 0 {
		return nil, dumbDeallocator{}, nil
	}
	class := c.requestSizeToClass(size)
	if class == -1 {
		return make([]byte, size), dumbDeallocator{}, nil
	}
	return c.fixed[class].Allocate()
}

var (
	defaultAllocator     Allocator
	defaultAllocatorOnce sync.Once
)

// DefaultAllocator is the process-wide allocator shared by all pools.
func DefaultAllocator() Allocator {
	defaultAllocatorOnce.Do(func() {
		defaultAllocator = NewClassAllocator()
	})
	return defaultAllocator
}
