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
	"github.com/matrixorigin/movec/pkg/common/moerr"
)

// Ops customizes element lifecycle for types whose construction, copy
// or move can fail or must release resources.  The zero value gives
// plain value semantics: zero-value construction, assignment copy,
// assignment move, no teardown.
type Ops[T any] struct {
	// Construct builds a default value in place.  nil means the zero
	// value is the default.
	Construct func(dst *T) error

	// Clone copy-constructs dst from src.  nil means assignment is a
	// correct copy.
	Clone func(dst, src *T) error

	// NoCopy marks the element type as non-copyable.  Dup and CopyFrom
	// refuse to run and relocation always moves.
	NoCopy bool

	// Move move-constructs dst from src and must leave *src valid and
	// destroyable.  nil means assignment followed by zeroing the source.
	Move func(dst, src *T) error

	// NoFailMove declares that Move never returns an error.  Together
	// with NoCopy it selects the relocation path during growth: elements
	// are moved when the move cannot fail or the type cannot be copied,
	// and copied otherwise so the old storage survives a failure intact.
	NoFailMove bool

	// Destroy tears one live value down.  It must tolerate moved-from
	// values.  nil means no teardown is needed.
	Destroy func(p *T)
}

// Options mirror the teacher containers' variadic option struct.
type Options[T any] struct {
	Ops Ops[T]
}

func (ops *Ops[T]) construct(dst *T) error {
	if ops.Construct == nil {
		var zero T
		*dst = zero
		return nil
	}
	if err := ops.Construct(dst); err != nil {
		var zero T
		*dst = zero
		return err
	}
	return nil
}

func (ops *Ops[T]) clone(dst, src *T) error {
	if ops.NoCopy {
		return moerr.NewNotSupportedNoCtx("cloning a non-copyable element type")
	}
	if ops.Clone == nil {
		*dst = *src
		return nil
	}
	if err := ops.Clone(dst, src); err != nil {
		var zero T
		*dst = zero
		return err
	}
	return nil
}

func (ops *Ops[T]) move(dst, src *T) error {
	if ops.Move == nil {
		var zero T
		*dst = *src
		*src = zero
		return nil
	}
	return ops.Move(dst, src)
}

func (ops *Ops[T]) destroy(p *T) {
	if ops.Destroy != nil {
		ops.Destroy(p)
	}
	var zero T
	*p = zero
}

func (ops *Ops[T]) moveNeverFails() bool {
	return ops.Move == nil || ops.NoFailMove
}

// relocateByMove reports whether growth moves elements into the new
// block instead of copying them.
func (ops *Ops[T]) relocateByMove() bool {
	return ops.moveNeverFails() || ops.NoCopy
}
