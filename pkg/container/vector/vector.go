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

// Package vector implements a growable contiguous sequence with strong
// failure safety.  Storage comes from rawmem; the vector alone tracks
// which slots are live.  Growth never tears down the old block before
// the new one is fully built: an allocation or element failure during
// growth leaves the sequence exactly as it was.
package vector

import (
	"fmt"

	"github.com/matrixorigin/movec/pkg/common/moerr"
	"github.com/matrixorigin/movec/pkg/common/mpool"
	"github.com/matrixorigin/movec/pkg/container/rawmem"
)

// Vector is an index-addressable sequence of length live elements
// backed by one rawmem block of at least that many slots.  Not safe
// for concurrent mutation.
type Vector[T any] struct {
	data   rawmem.Memory[T]
	length int
	ops    Ops[T]
}

// New returns an empty vector on the given pool without allocating.
// A nil pool falls back to mpool.Default().
func New[T any](mp *mpool.MPool, opts ...Options[T]) *Vector[T] {
	if mp == nil {
		mp = mpool.Default()
	}
	v := &Vector[T]{}
	if len(opts) > 0 {
		v.ops = opts[0].Ops
	}
	v.data, _ = rawmem.Alloc[T](mp, 0)
	return v
}

// NewWithCapacity returns an empty vector with room for capacity
// elements already reserved.
func NewWithCapacity[T any](mp *mpool.MPool, capacity int, opts ...Options[T]) (*Vector[T], error) {
	v := New(mp, opts...)
	if err := v.Reserve(capacity); err != nil {
		return nil, err
	}
	return v, nil
}

// NewWithSize returns a vector of n default-constructed elements with
// capacity n.  A failing constructor destroys the partial prefix and
// releases the block.
func NewWithSize[T any](mp *mpool.MPool, n int, opts ...Options[T]) (*Vector[T], error) {
	v := New(mp, opts...)
	if err := v.Resize(n); err != nil {
		v.Close()
		return nil, err
	}
	return v, nil
}

func (v *Vector[T]) Length() int {
	return v.length
}

func (v *Vector[T]) Capacity() int {
	return v.data.Capacity()
}

// Allocated returns the accounted byte footprint of the backing block.
func (v *Vector[T]) Allocated() int {
	return v.data.Allocated()
}

func (v *Vector[T]) GetAllocator() *mpool.MPool {
	return v.data.Pool()
}

// Slice is the live window.  It is invalidated by any operation that
// reallocates or shifts elements.
func (v *Vector[T]) Slice() []T {
	return v.data.Slice()[:v.length]
}

func (v *Vector[T]) Get(i int) T {
	return v.Slice()[i]
}

// At returns the address of slot i.  The pointer is invalidated by any
// reallocating or shifting operation.
func (v *Vector[T]) At(i int) *T {
	return &v.Slice()[i]
}

// Update replaces the element at i, tearing the old value down first.
// The new value is owned by the vector afterwards.
func (v *Vector[T]) Update(i int, val T) {
	s := v.Slice()
	v.ops.destroy(&s[i])
	s[i] = val
}

// Foreach visits the live elements in order.  A non-nil op error stops
// the walk and is returned.
func (v *Vector[T]) Foreach(op func(i int, val T) error) error {
	s := v.Slice()
	for i := range s {
		if err := op(i, s[i]); err != nil {
			return err
		}
	}
	return nil
}

func (v *Vector[T]) Desc() string {
	return fmt.Sprintf("Vector:Len=%d[Rows];Cap=%d[Rows];Allocated:%d[Bytes]",
		v.Length(), v.Capacity(), v.Allocated())
}

func (v *Vector[T]) String() string {
	s := v.Desc()
	end := 100
	if v.Length() < end {
		end = v.Length()
	}
	if end == 0 {
		return s
	}
	data := ""
	for i := 0; i < end; i++ {
		data = fmt.Sprintf("%s %v", data, v.Get(i))
	}
	return fmt.Sprintf("%s %s", s, data)
}

func (v *Vector[T]) destroyRange(s []T) {
	for i := range s {
		v.ops.destroy(&s[i])
	}
}

func (v *Vector[T]) construct(dst *T, ctor func(*T) error) error {
	if ctor == nil {
		return v.ops.construct(dst)
	}
	if err := ctor(dst); err != nil {
		var zero T
		*dst = zero
		return err
	}
	return nil
}

// relocate builds the live elements of src into dst, moving when the
// element move cannot fail or the type cannot be copied, copying
// otherwise.  On failure it destroys whatever it already built in dst
// and returns the element's error; on the copy path src is untouched.
func (v *Vector[T]) relocate(dst, src []T) error {
	if v.ops.relocateByMove() {
		for i := range src {
			if err := v.ops.move(&dst[i], &src[i]); err != nil {
				v.destroyRange(dst[:i])
				return err
			}
		}
		return nil
	}
	for i := range src {
		if err := v.ops.clone(&dst[i], &src[i]); err != nil {
			v.destroyRange(dst[:i])
			return err
		}
	}
	return nil
}

func (v *Vector[T]) grownCapacity() int {
	if c := v.Capacity(); c > 0 {
		return c * 2
	}
	return 1
}

// Reserve makes room for at least n elements.  It allocates exactly n
// slots, relocates the live range, and only then destroys the
// originals and releases the old block.  No-op when n <= Capacity().
func (v *Vector[T]) Reserve(n int) error {
	if n <= v.Capacity() {
		return nil
	}
	newData, err := rawmem.Alloc[T](v.data.Pool(), n)
	if err != nil {
		return err
	}
	live := v.Slice()
	if err := v.relocate(newData.Slice()[:v.length], live); err != nil {
		newData.Release()
		return err
	}
	v.destroyRange(live)
	v.data.Swap(&newData)
	newData.Release()
	return nil
}

// Resize grows by default-constructing elements in [Length(), n) after
// reserving capacity, or shrinks by destroying [n, Length()).
// Shrinking never releases capacity.  A failing constructor destroys
// the freshly built prefix; length and existing values are unchanged.
func (v *Vector[T]) Resize(n int) error {
	if n < 0 {
		return moerr.NewInvalidArgNoCtx("resize length", n)
	}
	if n > v.length {
		if err := v.Reserve(n); err != nil {
			return err
		}
		s := v.data.Slice()
		for i := v.length; i < n; i++ {
			if err := v.construct(&s[i], nil); err != nil {
				v.destroyRange(s[v.length:i])
				return err
			}
		}
	} else if n < v.length {
		v.destroyRange(v.data.Slice()[n:v.length])
	}
	v.length = n
	return nil
}

// Append places val at the end; the vector owns the value afterwards.
// Amortized O(1): a full vector grows to max(1, 2*Capacity()).
func (v *Vector[T]) Append(val T) error {
	_, err := v.EmplaceBack(func(dst *T) error {
		*dst = val
		return nil
	})
	return err
}

func (v *Vector[T]) AppendMany(vals ...T) error {
	for _, val := range vals {
		if err := v.Append(val); err != nil {
			return err
		}
	}
	return nil
}

// EmplaceBack constructs a new last element in place via ctor (nil
// ctor default-constructs) and returns its address.  When growth is
// needed the element is built in the new block before any relocation,
// and a failure on either step leaves the sequence fully intact.
func (v *Vector[T]) EmplaceBack(ctor func(*T) error) (*T, error) {
	if v.length == v.Capacity() {
		newData, err := rawmem.Alloc[T](v.data.Pool(), v.grownCapacity())
		if err != nil {
			return nil, err
		}
		ns := newData.Slice()
		if err := v.construct(&ns[v.length], ctor); err != nil {
			newData.Release()
			return nil, err
		}
		live := v.Slice()
		if err := v.relocate(ns[:v.length], live); err != nil {
			v.ops.destroy(&ns[v.length])
			newData.Release()
			return nil, err
		}
		v.destroyRange(live)
		v.data.Swap(&newData)
		newData.Release()
		v.length++
		return &v.data.Slice()[v.length-1], nil
	}
	slot := &v.data.Slice()[v.length]
	if err := v.construct(slot, ctor); err != nil {
		return nil, err
	}
	v.length++
	return slot, nil
}

// Insert places val at position pos, shifting [pos, Length()) one slot
// right.  pos == Length() appends.  The vector owns val afterwards.
func (v *Vector[T]) Insert(pos int, val T) error {
	return v.Emplace(pos, func(dst *T) error {
		*dst = val
		return nil
	})
}

// Emplace constructs a new element at position pos via ctor (nil ctor
// default-constructs).  With spare capacity the insert is in place;
// otherwise a doubled block is built around the new element and
// committed only once complete, so a failure during growth leaves the
// old block untouched on the copy path.
func (v *Vector[T]) Emplace(pos int, ctor func(*T) error) error {
	if pos < 0 || pos > v.length {
		panic(moerr.NewInternalErrorNoCtx("vector emplace position out of range"))
	}
	if pos == v.length {
		_, err := v.EmplaceBack(ctor)
		return err
	}
	if v.length == v.Capacity() {
		return v.emplaceGrow(pos, ctor)
	}
	return v.emplaceShift(pos, ctor)
}

func (v *Vector[T]) emplaceGrow(pos int, ctor func(*T) error) error {
	newData, err := rawmem.Alloc[T](v.data.Pool(), v.grownCapacity())
	if err != nil {
		return err
	}
	ns := newData.Slice()
	if err := v.construct(&ns[pos], ctor); err != nil {
		newData.Release()
		return err
	}
	live := v.Slice()
	if err := v.relocate(ns[:pos], live[:pos]); err != nil {
		v.ops.destroy(&ns[pos])
		newData.Release()
		return err
	}
	if err := v.relocate(ns[pos+1:v.length+1], live[pos:]); err != nil {
		// prefix and new element were already built in the new block;
		// tear exactly those down and keep the old block
		v.destroyRange(ns[:pos+1])
		newData.Release()
		return err
	}
	v.destroyRange(live)
	v.data.Swap(&newData)
	newData.Release()
	v.length++
	return nil
}

// emplaceShift is the in-capacity insert: construct off to the side,
// open a hole by move-constructing the last element one slot right,
// shift (pos, end) rightward, move the new value in.  A failing move
// mid-shift keeps every live slot valid but, as with the original
// algorithm, leaves the element values unspecified (basic guarantee);
// the length never changes on failure.
func (v *Vector[T]) emplaceShift(pos int, ctor func(*T) error) error {
	var tmp T
	if err := v.construct(&tmp, ctor); err != nil {
		return err
	}
	s := v.data.Slice()
	if err := v.ops.move(&s[v.length], &s[v.length-1]); err != nil {
		v.ops.destroy(&tmp)
		return err
	}
	ferr := error(nil)
	for i := v.length - 1; i > pos; i-- {
		if err := v.ops.move(&s[i], &s[i-1]); err != nil {
			ferr = err
			break
		}
	}
	if ferr == nil {
		ferr = v.ops.move(&s[pos], &tmp)
	}
	if ferr != nil {
		v.ops.destroy(&s[v.length])
		v.ops.destroy(&tmp)
		return ferr
	}
	v.length++
	return nil
}

// PopBack destroys the last element.  Calling it on an empty vector is
// a caller contract violation and panics.
func (v *Vector[T]) PopBack() {
	s := v.Slice()
	v.ops.destroy(&s[v.length-1])
	v.length--
}

// Erase removes the element at pos: the value is torn down, the tail
// moves one slot left, and the vacated last slot is destroyed.  The
// element formerly after pos lives at pos afterwards.  A failing move
// mid-shift keeps all slots valid with unspecified values and an
// unchanged length.
func (v *Vector[T]) Erase(pos int) error {
	s := v.Slice()
	v.ops.destroy(&s[pos])
	for i := pos; i < v.length-1; i++ {
		if err := v.ops.move(&s[i], &s[i+1]); err != nil {
			return err
		}
	}
	v.ops.destroy(&s[v.length-1])
	v.length--
	return nil
}

// Dup copy-constructs an identical vector with capacity equal to the
// source length.  A nil pool reuses the source's pool.
func (v *Vector[T]) Dup(mp *mpool.MPool) (*Vector[T], error) {
	if v.ops.NoCopy {
		return nil, moerr.NewNotSupportedNoCtx("duplicating a non-copyable element type")
	}
	if mp == nil {
		mp = v.data.Pool()
	}
	w := New(mp, Options[T]{Ops: v.ops})
	if v.length == 0 {
		return w, nil
	}
	newData, err := rawmem.Alloc[T](mp, v.length)
	if err != nil {
		return nil, err
	}
	ns := newData.Slice()
	src := v.Slice()
	for i := range src {
		if err := v.ops.clone(&ns[i], &src[i]); err != nil {
			v.destroyRange(ns[:i])
			newData.Release()
			return nil, err
		}
	}
	w.data.Swap(&newData)
	w.length = v.length
	return w, nil
}

// Move transfers the storage and length into a freshly built vector in
// O(1).  The source is left empty (length 0, capacity 0) and reusable.
func (v *Vector[T]) Move() *Vector[T] {
	w := &Vector[T]{
		data:   v.data.Transfer(),
		length: v.length,
		ops:    v.ops,
	}
	v.length = 0
	return w
}

// MoveFrom is move assignment: storage and length swap in O(1), then
// the replaced contents, now held by rhs, are torn down, leaving rhs
// empty with its capacity kept.
func (v *Vector[T]) MoveFrom(rhs *Vector[T]) {
	if v == rhs {
		return
	}
	v.data.Swap(&rhs.data)
	v.length, rhs.length = rhs.length, v.length
	rhs.Reset()
}

// CopyFrom is copy assignment.  When the source exceeds the current
// capacity a full duplicate is built and swapped in, so a failure
// leaves the target exactly as it was.  Otherwise existing storage is
// reused: the overlapping prefix is copy-assigned element by element,
// surplus elements are destroyed, missing ones are copy-constructed.
// A failure on the in-place path keeps every live slot valid (basic
// guarantee) without changing the length.
func (v *Vector[T]) CopyFrom(rhs *Vector[T]) error {
	if v == rhs {
		return nil
	}
	if v.ops.NoCopy {
		return moerr.NewNotSupportedNoCtx("copying a non-copyable element type")
	}
	if rhs.length > v.Capacity() {
		tmp, err := rhs.Dup(v.data.Pool())
		if err != nil {
			return err
		}
		v.Swap(tmp)
		tmp.Close()
		return nil
	}
	s := v.data.Slice()
	src := rhs.Slice()
	overlap := v.length
	if rhs.length < overlap {
		overlap = rhs.length
	}
	for i := 0; i < overlap; i++ {
		if err := v.cloneAssign(&s[i], &src[i]); err != nil {
			return err
		}
	}
	if rhs.length < v.length {
		v.destroyRange(s[rhs.length:v.length])
	} else {
		for i := v.length; i < rhs.length; i++ {
			if err := v.ops.clone(&s[i], &src[i]); err != nil {
				v.destroyRange(s[v.length:i])
				return err
			}
		}
	}
	v.length = rhs.length
	return nil
}

// cloneAssign replaces a live dst with a copy of src: clone off to the
// side first so a failing clone leaves dst untouched, then tear dst
// down and adopt the clone.
func (v *Vector[T]) cloneAssign(dst, src *T) error {
	var tmp T
	if err := v.ops.clone(&tmp, src); err != nil {
		return err
	}
	v.ops.destroy(dst)
	*dst = tmp
	return nil
}

// Swap exchanges contents with other in O(1).  Both vectors must share
// the same element semantics.
func (v *Vector[T]) Swap(other *Vector[T]) {
	v.data.Swap(&other.data)
	v.length, other.length = other.length, v.length
}

// Reset destroys all live elements and keeps the capacity.
func (v *Vector[T]) Reset() {
	v.destroyRange(v.Slice())
	v.length = 0
}

// Close destroys all live elements and releases the storage.  The
// vector stays attached to its pool and is reusable.
func (v *Vector[T]) Close() {
	v.Reset()
	v.data.Release()
}
