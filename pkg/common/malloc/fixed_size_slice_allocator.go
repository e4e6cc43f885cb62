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

package malloc

const sliceFreelistCapacity = 256

// fixedSizeSliceAllocator recycles ordinary GC slices of one class size
// through a bounded freelist. Recycled buffers are cleared before reuse so
// callers always see zeroed memory.
type fixedSizeSliceAllocator struct {
	size     uint64
	freelist chan []byte
}

func NewFixedSizeSliceAllocator(size uint64) FixedSizeAllocator {
	return &fixedSizeSliceAllocator{
		size:     size,
		freelist: make(chan []byte, sliceFreelistCapacity),
	}
}

func (f *fixedSizeSliceAllocator) Allocate() ([]byte, Deallocator, error) {
	select {
	case buf := <-f.freelist:
		clear(buf)
		return buf, f, nil
	default:
		return make([]byte, f.size), f, nil
	}
}

func (f *fixedSizeSliceAllocator) Deallocate(buf []byte) {
	select {
	case f.freelist <- buf:
	default:
		// freelist full, let the garbage collector take it
	}
}
