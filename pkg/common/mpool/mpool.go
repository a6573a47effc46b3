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

package mpool

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/matrixorigin/movec/pkg/common/moerr"
	"github.com/matrixorigin/movec/pkg/logutil"
	"go.uber.org/zap"
)

// Stats records the allocation activity of one pool.  All counters are
// in bytes except NumAlloc/NumFree, which count operations.
type Stats struct {
	NumAlloc      atomic.Int64
	NumFree       atomic.Int64
	CurrNB        atomic.Int64
	HighWaterMark atomic.Int64
}

func (s *Stats) RecordAlloc(sz int64) {
	s.NumAlloc.Add(1)
	curr := s.CurrNB.Add(sz)
	for {
		hwm := s.HighWaterMark.Load()
		if curr <= hwm {
			break
		}
		if s.HighWaterMark.CompareAndSwap(hwm, curr) {
			break
		}
	}
}

func (s *Stats) RecordFree(sz int64) {
	s.NumFree.Add(1)
	s.CurrNB.Add(-sz)
}

func (s *Stats) Report() string {
	return fmt.Sprintf("alloc: %d, free: %d, curr: %d[Bytes], hwm: %d[Bytes]",
		s.NumAlloc.Load(), s.NumFree.Load(), s.CurrNB.Load(), s.HighWaterMark.Load())
}

// MPool is a memory pool handing out zeroed, byte-accounted buffers.
// A pool with cap > 0 refuses allocations that would push its current
// number of bytes over the cap; the refusal is an error, never a panic.
type MPool struct {
	id    int64
	tag   string
	cap   int64
	stats Stats
}

var (
	globalStats Stats
	nextPoolID  atomic.Int64
	globalPools sync.Map
)

// NoLimit makes a pool unbounded.
const NoLimit int64 = 0

func NewMPool(tag string, cap int64) (*MPool, error) {
	if cap < 0 {
		return nil, moerr.NewInvalidArgNoCtx("mpool cap", cap)
	}
	m := &MPool{
		id:  nextPoolID.Add(1),
		tag: tag,
		cap: cap,
	}
	globalPools.Store(m.id, m)
	return m, nil
}

// MustNewZero returns an unbounded pool, panicking on failure.  Test
// helper, mirrors NewMPool("", NoLimit).
func MustNewZero() *MPool {
	m, err := NewMPool("zero-cap-pool", NoLimit)
	if err != nil {
		panic(err)
	}
	return m
}

var (
	defaultOnce sync.Once
	defaultPool *MPool
)

// Default returns the process-wide unbounded pool, for callers that do
// not carry their own.
func Default() *MPool {
	defaultOnce.Do(func() {
		m, err := NewMPool("default", NoLimit)
		if err != nil {
			panic(err)
		}
		defaultPool = m
	})
	return defaultPool
}

// DeleteMPool unregisters the pool.  Outstanding allocations are
// reported as a leak and their accounting is rolled back.
func DeleteMPool(m *MPool) {
	if m == nil {
		return
	}
	globalPools.Delete(m.id)
	if curr := m.stats.CurrNB.Load(); curr != 0 {
		logutil.Warn("mpool deleted with outstanding bytes",
			zap.String("tag", m.tag),
			zap.Int64("bytes", curr))
		globalStats.CurrNB.Add(-curr)
		m.stats.CurrNB.Store(0)
	}
}

func (m *MPool) Tag() string {
	return m.tag
}

func (m *MPool) Cap() int64 {
	return m.cap
}

// CurrNB returns the current number of accounted bytes.
func (m *MPool) CurrNB() int64 {
	return m.stats.CurrNB.Load()
}

func (m *MPool) Stats() *Stats {
	return &m.stats
}

func (m *MPool) Report() string {
	return fmt.Sprintf("mpool %s: cap: %d, %s", m.tag, m.cap, m.stats.Report())
}

// GlobalStats aggregates the accounting of every live pool.
func GlobalStats() *Stats {
	return &globalStats
}

func (m *MPool) reserve(sz int64) error {
	if m.cap > 0 && m.stats.CurrNB.Load()+sz > m.cap {
		return moerr.NewOOMNoCtx()
	}
	m.stats.RecordAlloc(sz)
	globalStats.RecordAlloc(sz)
	return nil
}

func (m *MPool) release(sz int64) {
	m.stats.RecordFree(sz)
	globalStats.RecordFree(sz)
}

// Alloc returns a zeroed buffer of sz bytes accounted against the pool.
func (m *MPool) Alloc(sz int) ([]byte, error) {
	if sz < 0 {
		return nil, moerr.NewInvalidArgNoCtx("alloc size", sz)
	}
	if sz == 0 {
		return nil, nil
	}
	if err := m.reserve(int64(sz)); err != nil {
		return nil, err
	}
	return make([]byte, sz), nil
}

// Free returns the buffer's accounting to the pool.  The buffer must
// have come from Alloc/Realloc of this pool.
func (m *MPool) Free(bs []byte) {
	if cap(bs) == 0 {
		return
	}
	m.release(int64(cap(bs)))
}

// Realloc grows a buffer to sz bytes, copying the old content and
// zero-filling the tail.  The old buffer is freed only after the new
// one is fully built, so a failed Realloc leaves old untouched.
func (m *MPool) Realloc(old []byte, sz int) ([]byte, error) {
	if sz <= cap(old) {
		return old[:sz], nil
	}
	bs, err := m.Alloc(sz)
	if err != nil {
		return nil, err
	}
	copy(bs, old)
	m.Free(old)
	return bs, nil
}

// Sizeof returns the size in bytes of one element of type T.
func Sizeof[T any]() int {
	var v T
	return int(unsafe.Sizeof(v))
}

// SizeOfMany returns the size in bytes of cnt elements of type T.
func SizeOfMany[T any](cnt int) int {
	var v T
	return int(unsafe.Sizeof(v)) * cnt
}

// AllocSlice returns a zero-valued []T of length n whose byte footprint
// is accounted against the pool.  The slice is an ordinary Go slice, so
// element types may contain pointers.
func AllocSlice[T any](m *MPool, n int) ([]T, error) {
	if n < 0 {
		return nil, moerr.NewInvalidArgNoCtx("alloc slice length", n)
	}
	if n == 0 {
		return nil, nil
	}
	if err := m.reserve(int64(SizeOfMany[T](n))); err != nil {
		return nil, err
	}
	return make([]T, n), nil
}

// FreeSlice returns the slice's accounting to the pool.
func FreeSlice[T any](m *MPool, s []T) {
	if cap(s) == 0 {
		return
	}
	m.release(int64(SizeOfMany[T](cap(s))))
}
