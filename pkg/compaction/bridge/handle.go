//
//  Copyright 2023 PayPal Inc.
//
//  Licensed to the Apache Software Foundation (ASF) under one or more
//  contributor license agreements.  See the NOTICE file distributed with
//  this work for additional information regarding copyright ownership.
//  The ASF licenses this file to You under the Apache License, Version 2.0
//  (the "License"); you may not use this file except in compliance with
//  the License.  You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.
//

package bridge

import (
	"math/bits"
	"sync"
)

// Handle is the opaque token the engine holds for a factory, a filter or a
// compaction context. The zero Handle refers to nothing.
type Handle uintptr

// The low half of the handle word is the slot index (biased by one so that
// slot 0 is not the zero Handle), the high half the slot generation. The top
// bit tags the table, so handles of different tables never compare equal.
const (
	handleIndexBits = bits.UintSize / 2
	handleIndexMask = 1<<handleIndexBits - 1
	handleGenMask   = 1<<(handleIndexBits-1) - 1
	handleTagBit    = Handle(1) << (bits.UintSize - 1)
)

func (h Handle) index() int {
	return int(uintptr(h)&handleIndexMask) - 1
}

func (h Handle) generation() uintptr {
	return uintptr(h) >> handleIndexBits & handleGenMask
}

func (h Handle) tag() Handle {
	return h & handleTagBit
}

func makeHandle(index int, gen uintptr) Handle {
	return Handle(gen<<handleIndexBits | uintptr(index+1))
}

type slot[T any] struct {
	gen   uintptr
	used  bool
	value T
}

// handleTable maps handles to Go values. A handle stops resolving once it is
// taken, and a reused slot gets a new generation so stale handles stay dead.
type handleTable[T any] struct {
	// tag is zero or handleTagBit
	tag   Handle
	mu    sync.RWMutex
	slots []slot[T]
	free  []int
	live  int
}

// put stores v and returns its handle, or the zero Handle when the table is
// full.
func (t *handleTable[T]) put(v T) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idx int
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		if len(t.slots) >= handleIndexMask {
			return 0
		}
		idx = len(t.slots)
		t.slots = append(t.slots, slot[T]{})
	}
	s := &t.slots[idx]
	s.gen = (s.gen + 1) & handleGenMask
	if s.gen == 0 {
		s.gen = 1
	}
	s.used = true
	s.value = v
	t.live++
	return makeHandle(idx, s.gen) | t.tag
}

func (t *handleTable[T]) lookup(h Handle) (*slot[T], int) {
	if h.tag() != t.tag {
		return nil, -1
	}
	idx := h.index()
	if idx < 0 || idx >= len(t.slots) {
		return nil, -1
	}
	s := &t.slots[idx]
	if !s.used || s.gen != h.generation() {
		return nil, -1
	}
	return s, idx
}

func (t *handleTable[T]) get(h Handle) (v T, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, _ := t.lookup(h); s != nil {
		return s.value, true
	}
	return
}

// take releases h and returns the value it referred to. Only the first take
// of a handle succeeds.
func (t *handleTable[T]) take(h Handle) (v T, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, idx := t.lookup(h)
	if s == nil {
		return
	}
	v = s.value
	var zero T
	s.value = zero
	s.used = false
	t.free = append(t.free, idx)
	t.live--
	return v, true
}

func (t *handleTable[T]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}
