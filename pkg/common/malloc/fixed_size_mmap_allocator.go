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

//go:build linux || darwin

package malloc

import (
	"golang.org/x/sys/unix"
)

const mmapStandbyCapacity = 64

// fixedSizeMmapAllocator hands out anonymous private mappings of one class
// size. Freed buffers stay mapped on a standby list with their physical
// pages advised away. On reuse, reuseMem hands out zeroed memory: on linux
// re-visiting a reclaimed page yields zeroes, on darwin the buffer is
// cleared explicitly.
type fixedSizeMmapAllocator struct {
	size    uint64
	standby chan []byte
}

func NewFixedSizeMmapAllocator(size uint64) FixedSizeAllocator {
	return &fixedSizeMmapAllocator{
		size:    size,
		standby: make(chan []byte, mmapStandbyCapacity),
	}
}

func (f *fixedSizeMmapAllocator) Allocate() ([]byte, Deallocator, error) {
	select {
	case buf := <-f.standby:
		reuseMem(buf)
		return buf, f, nil
	default:
	}
	buf, err := unix.Mmap(
		-1, 0,
		int(f.size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON,
	)
	if err != nil {
		return nil, nil, err
	}
	return buf, f, nil
}

func (f *fixedSizeMmapAllocator) Deallocate(buf []byte) {
	freeMem(buf)
	select {
	case f.standby <- buf:
	default:
		_ = unix.Munmap(buf)
	}
}
