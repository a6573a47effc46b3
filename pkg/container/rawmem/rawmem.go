// Copyright 2023 Matrix Origin
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

// Package rawmem owns blocks of not-yet-live element storage.
//
// A Memory knows how many slots it has, never which of them hold live
// values; liveness is the owning container's bookkeeping.  A block is
// never resized in place: growth always means allocating a new block
// and releasing the old one.
package rawmem

import (
	"github.com/matrixorigin/movec/pkg/common/mpool"
)

// Memory is one contiguous block able to hold Capacity() elements of
// type T.  Exactly one owner at a time; ownership moves via Transfer
// or Swap, never by assigning a Memory value around.
type Memory[T any] struct {
	mp    *mpool.MPool
	slice []T
}

// Alloc acquires a block for capacity elements from the pool.  A zero
// capacity yields a valid empty block without touching the pool.
func Alloc[T any](mp *mpool.MPool, capacity int) (Memory[T], error) {
	if capacity == 0 {
		return Memory[T]{mp: mp}, nil
	}
	s, err := mpool.AllocSlice[T](mp, capacity)
	if err != nil {
		return Memory[T]{}, err
	}
	return Memory[T]{mp: mp, slice: s}, nil
}

func (m *Memory[T]) Capacity() int {
	return len(m.slice)
}

// Allocated returns the accounted byte footprint of the block.
func (m *Memory[T]) Allocated() int {
	return mpool.SizeOfMany[T](cap(m.slice))
}

func (m *Memory[T]) Pool() *mpool.MPool {
	return m.mp
}

// Slice exposes the full capacity window.  Slots beyond the owner's
// live count hold zero values; indexing past capacity is a caller
// contract violation and panics.
func (m *Memory[T]) Slice() []T {
	return m.slice
}

// Swap exchanges the two blocks in O(1) without touching elements.
func (m *Memory[T]) Swap(o *Memory[T]) {
	m.mp, o.mp = o.mp, m.mp
	m.slice, o.slice = o.slice, m.slice
}

// Transfer moves the block out, leaving the source empty (capacity 0)
// but still attached to its pool and reusable.
func (m *Memory[T]) Transfer() Memory[T] {
	moved := Memory[T]{mp: m.mp, slice: m.slice}
	m.slice = nil
	return moved
}

// Release returns the block's bytes to the pool.  It performs no
// element destruction; the owner must have destroyed live elements
// first.  Safe to call on an empty block.
func (m *Memory[T]) Release() {
	if m.slice == nil {
		return
	}
	mpool.FreeSlice(m.mp, m.slice)
	m.slice = nil
}
