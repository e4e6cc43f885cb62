// Copyright 2021 - 2022 Matrix Origin
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

package mpool

import (
	"context"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/matrixorigin/blockjoin/pkg/common/malloc"
	"github.com/matrixorigin/blockjoin/pkg/common/moerr"
)

const (
	MB = 1 << 20
	GB = 1 << 30
	PB = 1 << 50

	// NoFixed disables any cap checking.
	NoFixed int64 = 0
)

// MPool tracks the memory charged to one operator instance. Buffers come
// from the process-wide size-class allocator (small classes recycle GC
// slices, large ones are mmap-backed); the pool does accounting, cap
// enforcement and routes frees back to the right class.
type MPool struct {
	name string
	cap  int64

	allocated atomic.Int64
	highWater atomic.Int64

	mu sync.Mutex
	// live allocations by base address: deallocator, full-class buffer
	// and the requested size that was charged
	entries map[uintptr]allocEntry
}

type allocEntry struct {
	dealloc malloc.Deallocator
	buf     []byte
	size    int64
}

var globalAllocated atomic.Int64

func NewMPool(name string, cap int64) (*MPool, error) {
	if cap < 0 {
		return nil, moerr.NewInvalidArg(context.Background(), "mpool cap", cap)
	}
	if cap == NoFixed {
		cap = PB
	}
	return &MPool{
		name:    name,
		cap:     cap,
		entries: make(map[uintptr]allocEntry),
	}, nil
}

// MustNewZero returns an uncapped pool, for tests and tools.
func MustNewZero() *MPool {
	m, err := NewMPool("zero", NoFixed)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *MPool) Name() string {
	return m.name
}

func (m *MPool) Cap() int64 {
	return m.cap
}

// CurrNB returns the number of bytes currently charged to the pool.
func (m *MPool) CurrNB() int64 {
	return m.allocated.Load()
}

func (m *MPool) HighWaterMark() int64 {
	return m.highWater.Load()
}

func (m *MPool) charge(sz int64) error {
	nb := m.allocated.Add(sz)
	if nb > m.cap {
		m.allocated.Add(-sz)
		return moerr.NewOOM(context.Background())
	}
	for {
		hw := m.highWater.Load()
		if nb <= hw || m.highWater.CompareAndSwap(hw, nb) {
			break
		}
	}
	globalAllocated.Add(sz)
	return nil
}

func (m *MPool) uncharge(sz int64) {
	m.allocated.Add(-sz)
	globalAllocated.Add(-sz)
}

func (m *MPool) Alloc(sz int) ([]byte, error) {
	if sz < 0 {
		return nil, moerr.NewInvalidArg(context.Background(), "alloc size", sz)
	}
	if sz == 0 {
		return nil, nil
	}
	if err := m.charge(int64(sz)); err != nil {
		return nil, err
	}
	buf, dealloc, err := malloc.DefaultAllocator().Allocate(uint64(sz))
	if err != nil {
		m.uncharge(int64(sz))
		return nil, err
	}

	m.mu.Lock()
	m.entries[uintptr(unsafe.Pointer(unsafe.SliceData(buf)))] = allocEntry{
		dealloc: dealloc,
		buf:     buf,
		size:    int64(sz),
	}
	m.mu.Unlock()
	return buf[:sz], nil
}

// Free returns a buffer allocated from this pool. Any reslice of the
// original allocation is accepted; the base address identifies it.
func (m *MPool) Free(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	base := uintptr(unsafe.Pointer(unsafe.SliceData(buf[:cap(buf)])))

	m.mu.Lock()
	entry, ok := m.entries[base]
	if ok {
		delete(m.entries, base)
	}
	m.mu.Unlock()

	if !ok {
		// not ours; nothing was charged for it
		return
	}
	m.uncharge(entry.size)
	entry.dealloc.Deallocate(entry.buf)
}

// Grow reallocates old to hold sz bytes, keeping content. old may be nil.
func (m *MPool) Grow(old []byte, sz int) ([]byte, error) {
	if sz <= cap(old) {
		return old[:sz], nil
	}
	newCap := cap(old) * 2
	if newCap < sz {
		newCap = sz
	}
	buf, err := m.Alloc(newCap)
	if err != nil {
		return nil, err
	}
	copy(buf, old[:len(old)])
	m.Free(old)
	return buf[:sz], nil
}

// GlobalStats reports the bytes charged across all pools in the process.
func GlobalStats() int64 {
	return globalAllocated.Load()
}
