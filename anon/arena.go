// Copyright 2024 The Diffix Engine Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package anon

// Handle is an index into an Arena. It stays valid for the Arena's entire
// lifetime and is cheaper to copy and compare than a pointer, which matters
// when buckets are stored by the million during a single query.
type Handle int

// Arena is a bump allocator for one value type: Alloc only ever appends, so
// a whole generation of buckets can be released at once by dropping the
// Arena itself rather than walking and freeing every value individually.
// This is the Go-idiomatic stand-in for the original implementation's
// per-bucket MemoryContext, with index-based Handles in place of pointers
// so bucket cross-references survive slice growth.
type Arena[T any] struct {
	items []T
}

// NewArena returns an empty Arena with capacity pre-sized to reduce
// reallocation for the common case of one arena per query.
func NewArena[T any](capacityHint int) *Arena[T] {
	return &Arena[T]{items: make([]T, 0, capacityHint)}
}

// Alloc appends v and returns its Handle.
func (a *Arena[T]) Alloc(v T) Handle {
	a.items = append(a.items, v)
	return Handle(len(a.items) - 1)
}

// Get returns a pointer to the value at h, valid until the next Alloc that
// triggers reallocation. Callers that need a stable reference across
// further Allocs should re-resolve the Handle rather than keep the pointer.
func (a *Arena[T]) Get(h Handle) *T {
	return &a.items[h]
}

// Len returns the number of values allocated so far.
func (a *Arena[T]) Len() int {
	return len(a.items)
}

// All returns the arena's backing slice for range iteration.
func (a *Arena[T]) All() []T {
	return a.items
}

// Reset discards every allocated value while keeping the backing array, so
// the Arena can be reused for the next query without a fresh allocation.
func (a *Arena[T]) Reset() {
	a.items = a.items[:0]
}

// NewChild returns a fresh, independent Arena sized for short-lived scratch
// allocation, mirroring the original implementation's short-lived
// temp_context used by Linked Extension Detection: callers allocate into it
// during one postprocessing pass and then let it be garbage collected
// rather than explicitly tearing it down.
func NewChild[T any](capacityHint int) *Arena[T] {
	return NewArena[T](capacityHint)
}
