// Copyright 2023 Sneller, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.


// Package heap implements a generic binary min-heap.
package heap

// Heap is a min-heap of items ordered by Less.
// The zero value is not usable; Less must be set.
type Heap[T any] struct {
	Items []T
	Less  func(x, y T) bool
}

// New returns a heap ordered by less containing
// the items in x. The heap takes ownership of x.
func New[T any](x []T, less func(x, y T) bool) *Heap[T] {
	h := &Heap[T]{Items: x, Less: less}
	h.Init()
	return h
}

// Init establishes the heap invariant
// over the current contents of h.Items.
func (h *Heap[T]) Init() {
	for i := len(h.Items)/2 - 1; i >= 0; i-- {
		h.down(i)
	}
}

// Len returns the number of items in the heap.
func (h *Heap[T]) Len() int { return len(h.Items) }

// Top returns a pointer to the least item.
// The item may be modified in place as long
// as Fix(0) is called afterwards.
func (h *Heap[T]) Top() *T { return &h.Items[0] }

// Push adds an item to the heap.
func (h *Heap[T]) Push(item T) {
	h.Items = append(h.Items, item)
	h.up(len(h.Items) - 1)
}

// Pop removes and returns the least item.
func (h *Heap[T]) Pop() T {
	ret := h.Items[0]
	last := len(h.Items) - 1
	h.Items[0] = h.Items[last]
	h.Items = h.Items[:last]
	if last > 0 {
		h.down(0)
	}
	return ret
}

// Fix restores the heap invariant after
// the item at index has been changed.
func (h *Heap[T]) Fix(index int) {
	h.down(index)
	h.up(index)
}

func (h *Heap[T]) up(i int) {
	x := h.Items
	for i > 0 {
		p := (i - 1) / 2
		if !h.Less(x[i], x[p]) {
			return
		}
		x[p], x[i] = x[i], x[p]
		i = p
	}
}

func (h *Heap[T]) down(i int) {
	x := h.Items
	for {
		c := 2*i + 1
		if c >= len(x) {
			return
		}
		if r := c + 1; r < len(x) && h.Less(x[r], x[c]) {
			c = r
		}
		if !h.Less(x[c], x[i]) {
			return
		}
		x[c], x[i] = x[i], x[c]
		i = c
	}
}
