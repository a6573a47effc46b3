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

package vector

import (
	"errors"
	"testing"

	"github.com/matrixorigin/movec/pkg/common/moerr"
	"github.com/matrixorigin/movec/pkg/common/mpool"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T) *mpool.MPool {
	m, err := mpool.NewMPool(t.Name(), mpool.NoLimit)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.Equal(t, int64(0), m.CurrNB(), "pool leak: %s", m.Report())
		mpool.DeleteMPool(m)
	})
	return m
}

func TestAppendTrace(t *testing.T) {
	mp := newTestPool(t)
	v := New[int](mp)
	defer v.Close()

	require.Equal(t, 0, v.Length())
	require.Equal(t, 0, v.Capacity())

	wantCaps := []int{1, 2, 4}
	for i, val := range []int{1, 2, 3} {
		require.NoError(t, v.Append(val))
		require.Equal(t, i+1, v.Length())
		require.Equal(t, wantCaps[i], v.Capacity())
	}
	require.Equal(t, []int{1, 2, 3}, v.Slice())

	// room available, no reallocation
	require.NoError(t, v.Insert(1, 99))
	require.Equal(t, []int{1, 99, 2, 3}, v.Slice())
	require.Equal(t, 4, v.Capacity())

	require.NoError(t, v.Resize(5))
	require.Equal(t, []int{1, 99, 2, 3, 0}, v.Slice())
	require.Equal(t, 5, v.Length())

	require.NoError(t, v.Erase(2))
	require.Equal(t, []int{1, 99, 3, 0}, v.Slice())
	require.Equal(t, 4, v.Length())
}

func TestAppendOrder(t *testing.T) {
	mp := newTestPool(t)
	v := New[int](mp)
	defer v.Close()

	const n = 1000
	lastCap := 0
	for i := 0; i < n; i++ {
		require.NoError(t, v.Append(i))
		c := v.Capacity()
		require.GreaterOrEqual(t, c, lastCap, "capacity must not shrink")
		if c != lastCap {
			if lastCap == 0 {
				require.Equal(t, 1, c)
			} else {
				require.Equal(t, lastCap*2, c)
			}
		}
		lastCap = c
	}
	require.Equal(t, n, v.Length())
	for i := 0; i < n; i++ {
		require.Equal(t, i, v.Get(i))
	}
}

func TestInsertErase(t *testing.T) {
	mp := newTestPool(t)
	v := New[int](mp)
	defer v.Close()

	require.NoError(t, v.AppendMany(10, 20, 30, 40))

	require.NoError(t, v.Insert(0, 5))
	require.Equal(t, []int{5, 10, 20, 30, 40}, v.Slice())

	require.NoError(t, v.Insert(3, 25))
	require.Equal(t, []int{5, 10, 20, 25, 30, 40}, v.Slice())

	// pos == Length() is an append
	require.NoError(t, v.Insert(v.Length(), 50))
	require.Equal(t, []int{5, 10, 20, 25, 30, 40, 50}, v.Slice())

	require.NoError(t, v.Erase(0))
	require.Equal(t, []int{10, 20, 25, 30, 40, 50}, v.Slice())

	require.NoError(t, v.Erase(2))
	require.Equal(t, []int{10, 20, 30, 40, 50}, v.Slice())

	require.NoError(t, v.Erase(v.Length()-1))
	require.Equal(t, []int{10, 20, 30, 40}, v.Slice())
}

func TestInsertGrowth(t *testing.T) {
	mp := newTestPool(t)
	v := New[int](mp)
	defer v.Close()

	require.NoError(t, v.AppendMany(1, 2, 3, 4))
	require.Equal(t, 4, v.Capacity())

	// full vector, positional insert must reallocate
	require.NoError(t, v.Insert(2, 99))
	require.Equal(t, []int{1, 2, 99, 3, 4}, v.Slice())
	require.Equal(t, 8, v.Capacity())
}

func TestReserve(t *testing.T) {
	mp := newTestPool(t)
	v := New[int](mp)
	defer v.Close()

	require.NoError(t, v.Reserve(10))
	require.Equal(t, 10, v.Capacity())
	require.Equal(t, 0, v.Length())

	// no-op when already large enough
	require.NoError(t, v.Reserve(5))
	require.Equal(t, 10, v.Capacity())

	require.NoError(t, v.AppendMany(1, 2, 3))
	require.NoError(t, v.Reserve(20))
	require.Equal(t, 20, v.Capacity())
	require.Equal(t, []int{1, 2, 3}, v.Slice())
}

func TestResize(t *testing.T) {
	mp := newTestPool(t)
	v := New(mp, Options[int]{Ops: Ops[int]{
		Construct: func(dst *int) error {
			*dst = 7
			return nil
		},
	}})
	defer v.Close()

	require.NoError(t, v.Resize(3))
	require.Equal(t, []int{7, 7, 7}, v.Slice())

	require.NoError(t, v.Append(1))
	require.NoError(t, v.Resize(2))
	require.Equal(t, []int{7, 7}, v.Slice())
	// shrinking keeps capacity
	require.GreaterOrEqual(t, v.Capacity(), 4)

	require.NoError(t, v.Resize(0))
	require.Equal(t, 0, v.Length())

	err := v.Resize(-1)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidArg))
}

func TestNewWithSize(t *testing.T) {
	mp := newTestPool(t)
	v, err := NewWithSize[int](mp, 4)
	require.NoError(t, err)
	defer v.Close()
	require.Equal(t, 4, v.Length())
	require.Equal(t, 4, v.Capacity())
	require.Equal(t, []int{0, 0, 0, 0}, v.Slice())
}

func TestNewWithSizeCtorFailure(t *testing.T) {
	mp := newTestPool(t)
	boom := errors.New("boom")
	built := 0
	_, err := NewWithSize(mp, 4, Options[int]{Ops: Ops[int]{
		Construct: func(dst *int) error {
			if built == 2 {
				return boom
			}
			built++
			*dst = 1
			return nil
		},
	}})
	require.ErrorIs(t, err, boom)
	require.Equal(t, int64(0), mp.CurrNB())
}

func TestDup(t *testing.T) {
	mp := newTestPool(t)
	v := New[int](mp)
	defer v.Close()
	require.NoError(t, v.AppendMany(1, 2, 3))

	w, err := v.Dup(nil)
	require.NoError(t, err)
	defer w.Close()

	require.Equal(t, []int{1, 2, 3}, w.Slice())
	// capacity of a duplicate equals the source length
	require.Equal(t, 3, w.Capacity())

	// independent storage
	v.Update(0, 100)
	require.Equal(t, 1, w.Get(0))
}

func TestMove(t *testing.T) {
	mp := newTestPool(t)
	v := New[int](mp)
	require.NoError(t, v.AppendMany(1, 2, 3))

	w := v.Move()
	defer w.Close()

	require.Equal(t, []int{1, 2, 3}, w.Slice())
	require.Equal(t, 0, v.Length())
	require.Equal(t, 0, v.Capacity())

	// moved-from vector stays usable
	require.NoError(t, v.Append(9))
	require.Equal(t, []int{9}, v.Slice())
	v.Close()
}

func TestMoveFrom(t *testing.T) {
	mp := newTestPool(t)
	destroyed := 0
	opts := Options[int]{Ops: Ops[int]{
		Destroy: func(p *int) {
			if *p != 0 {
				destroyed++
			}
		},
	}}
	v := New(mp, opts)
	w := New(mp, opts)
	defer v.Close()
	defer w.Close()

	require.NoError(t, v.AppendMany(7, 8))
	require.NoError(t, w.AppendMany(1, 2, 3))

	v.MoveFrom(w)
	require.Equal(t, []int{1, 2, 3}, v.Slice())
	require.Equal(t, 0, w.Length())
	// the replaced contents were torn down
	require.Equal(t, 2, destroyed)

	// source keeps its block and stays usable
	require.NoError(t, w.Append(4))
	require.Equal(t, []int{4}, w.Slice())
}

func TestCopyFrom(t *testing.T) {
	mp := newTestPool(t)
	v := New[int](mp)
	w := New[int](mp)
	defer v.Close()
	defer w.Close()

	// source larger than capacity: rebuild and swap
	require.NoError(t, w.AppendMany(1, 2, 3, 4, 5))
	require.NoError(t, v.CopyFrom(w))
	require.Equal(t, []int{1, 2, 3, 4, 5}, v.Slice())

	// smaller source reuses storage and trims
	w2 := New[int](mp)
	defer w2.Close()
	require.NoError(t, w2.AppendMany(8, 9))
	capBefore := v.Capacity()
	require.NoError(t, v.CopyFrom(w2))
	require.Equal(t, []int{8, 9}, v.Slice())
	require.Equal(t, capBefore, v.Capacity())

	// larger source within capacity extends in place
	require.NoError(t, v.CopyFrom(w))
	require.Equal(t, []int{1, 2, 3, 4, 5}, v.Slice())
	require.Equal(t, capBefore, v.Capacity())

	// self assignment is a no-op
	require.NoError(t, v.CopyFrom(v))
	require.Equal(t, []int{1, 2, 3, 4, 5}, v.Slice())
}

func TestAllocFailureLeavesStateIntact(t *testing.T) {
	// room for the first block of 4 int64s plus nothing else
	mp, err := mpool.NewMPool("tiny", 4*8+16)
	require.NoError(t, err)
	defer mpool.DeleteMPool(mp)

	v := New[int64](mp)
	defer v.Close()
	require.NoError(t, v.Reserve(4))
	require.NoError(t, v.AppendMany(1, 2, 3, 4))

	// growth to 8 slots cannot be satisfied
	err = v.Append(5)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrOOM))
	require.Equal(t, []int64{1, 2, 3, 4}, v.Slice())
	require.Equal(t, 4, v.Capacity())

	err = v.Insert(2, 99)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrOOM))
	require.Equal(t, []int64{1, 2, 3, 4}, v.Slice())
}

// fallibleOps returns ops whose moves are declared fallible, forcing
// relocation onto the copy path, with the clone failing after okClones
// successful copies.
func fallibleOps(okClones *int, destroyed *int, boom error) Ops[int] {
	return Ops[int]{
		Clone: func(dst, src *int) error {
			if *okClones == 0 {
				return boom
			}
			*okClones--
			*dst = *src
			return nil
		},
		Move: func(dst, src *int) error {
			*dst = *src
			*src = 0
			return nil
		},
		Destroy: func(p *int) {
			if *p != 0 {
				*destroyed++
			}
		},
	}
}

func TestAppendCloneFailureDuringGrowth(t *testing.T) {
	mp := newTestPool(t)
	boom := errors.New("clone boom")
	okClones, destroyed := 1 << 20, 0
	v := New(mp, Options[int]{Ops: fallibleOps(&okClones, &destroyed, boom)})
	defer v.Close()

	require.NoError(t, v.AppendMany(1, 2, 3, 4))
	require.Equal(t, 4, v.Capacity())

	nbBefore := mp.CurrNB()
	okClones, destroyed = 2, 0
	err := v.Append(5)
	require.ErrorIs(t, err, boom)

	// previously observable content is unchanged
	require.Equal(t, []int{1, 2, 3, 4}, v.Slice())
	require.Equal(t, 4, v.Capacity())
	// the new block was fully torn down: two relocated copies plus the
	// new element itself
	require.Equal(t, 3, destroyed)
	require.Equal(t, nbBefore, mp.CurrNB())
}

func TestInsertCloneFailureDuringGrowth(t *testing.T) {
	mp := newTestPool(t)
	boom := errors.New("clone boom")
	okClones, destroyed := 1 << 20, 0
	v := New(mp, Options[int]{Ops: fallibleOps(&okClones, &destroyed, boom)})
	defer v.Close()

	require.NoError(t, v.AppendMany(1, 2, 3, 4))

	// fail while relocating the suffix: the prefix and the new element
	// are already in the new block and must all come back down
	nbBefore := mp.CurrNB()
	okClones, destroyed = 3, 0
	err := v.Insert(2, 99)
	require.ErrorIs(t, err, boom)

	require.Equal(t, []int{1, 2, 3, 4}, v.Slice())
	require.Equal(t, 4, v.Capacity())
	// prefix of two, the new element, and the one relocated suffix copy
	require.Equal(t, 4, destroyed)
	require.Equal(t, nbBefore, mp.CurrNB())
}

func TestEmplaceBackCtorFailure(t *testing.T) {
	mp := newTestPool(t)
	boom := errors.New("ctor boom")
	v := New[int](mp)
	defer v.Close()
	require.NoError(t, v.AppendMany(1, 2))

	_, err := v.EmplaceBack(func(dst *int) error { return boom })
	require.ErrorIs(t, err, boom)
	require.Equal(t, []int{1, 2}, v.Slice())

	p, err := v.EmplaceBack(func(dst *int) error {
		*dst = 3
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, *p)
	require.Equal(t, []int{1, 2, 3}, v.Slice())
}

func TestEmplace(t *testing.T) {
	mp := newTestPool(t)
	v := New[int](mp)
	defer v.Close()
	require.NoError(t, v.AppendMany(1, 3))

	require.NoError(t, v.Emplace(1, func(dst *int) error {
		*dst = 2
		return nil
	}))
	require.Equal(t, []int{1, 2, 3}, v.Slice())

	// nil ctor default-constructs
	require.NoError(t, v.Emplace(0, nil))
	require.Equal(t, []int{0, 1, 2, 3}, v.Slice())

	require.Panics(t, func() {
		_ = v.Emplace(v.Length()+1, nil)
	})
}

func TestNoCopyRelocatesByMove(t *testing.T) {
	mp := newTestPool(t)
	moves := 0
	boom := errors.New("never")
	ops := Ops[int]{
		NoCopy: true,
		Move: func(dst, src *int) error {
			moves++
			*dst = *src
			*src = 0
			return nil
		},
		Clone: func(dst, src *int) error { return boom },
	}
	v := New(mp, Options[int]{Ops: ops})
	defer v.Close()

	require.NoError(t, v.AppendMany(1, 2, 3, 4, 5))
	require.Equal(t, []int{1, 2, 3, 4, 5}, v.Slice())
	// growth 1->2->4->8 relocated 1+2+4 existing elements by move
	require.Equal(t, 7, moves)

	_, err := v.Dup(nil)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrNotSupported))

	w := New(mp, Options[int]{Ops: ops})
	defer w.Close()
	err = w.CopyFrom(v)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrNotSupported))
}

func TestPopBackAndDestroy(t *testing.T) {
	mp := newTestPool(t)
	destroyed := 0
	v := New(mp, Options[int]{Ops: Ops[int]{
		Destroy: func(p *int) {
			if *p != 0 {
				destroyed++
			}
		},
	}})
	defer v.Close()

	require.NoError(t, v.AppendMany(1, 2, 3))
	v.PopBack()
	require.Equal(t, []int{1, 2}, v.Slice())
	require.Equal(t, 1, destroyed)

	require.NoError(t, v.Erase(0))
	require.Equal(t, []int{2}, v.Slice())
	require.Equal(t, 2, destroyed)

	v.Reset()
	require.Equal(t, 0, v.Length())
	require.Equal(t, 3, destroyed)
}

func TestCloseAndReuse(t *testing.T) {
	mp := newTestPool(t)
	v := New[int](mp)
	require.NoError(t, v.AppendMany(1, 2, 3))
	require.NotZero(t, mp.CurrNB())

	v.Close()
	require.Equal(t, int64(0), mp.CurrNB())
	require.Equal(t, 0, v.Length())
	require.Equal(t, 0, v.Capacity())

	require.NoError(t, v.Append(42))
	require.Equal(t, []int{42}, v.Slice())
	v.Close()
}

func TestForeach(t *testing.T) {
	mp := newTestPool(t)
	v := New[int](mp)
	defer v.Close()
	require.NoError(t, v.AppendMany(1, 2, 3, 4))

	sum := 0
	require.NoError(t, v.Foreach(func(i int, val int) error {
		sum += val
		return nil
	}))
	require.Equal(t, 10, sum)

	stop := errors.New("stop")
	visited := 0
	err := v.Foreach(func(i int, val int) error {
		visited++
		if i == 1 {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 2, visited)
}

func TestSwapAndAccessors(t *testing.T) {
	mp := newTestPool(t)
	v := New[int](mp)
	w := New[int](mp)
	defer v.Close()
	defer w.Close()

	require.NoError(t, v.AppendMany(1, 2))
	require.NoError(t, w.AppendMany(3, 4, 5))

	v.Swap(w)
	require.Equal(t, []int{3, 4, 5}, v.Slice())
	require.Equal(t, []int{1, 2}, w.Slice())

	*v.At(0) = 30
	require.Equal(t, 30, v.Get(0))
	v.Update(1, 40)
	require.Equal(t, 40, v.Get(1))

	require.Contains(t, v.Desc(), "Len=3")
	require.Contains(t, v.String(), "30")
}

func BenchmarkAppend(b *testing.B) {
	mp := mpool.MustNewZero()
	defer mpool.DeleteMPool(mp)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v := New[int64](mp)
		for j := int64(0); j < 1024; j++ {
			if err := v.Append(j); err != nil {
				b.Fatal(err)
			}
		}
		v.Close()
	}
}
