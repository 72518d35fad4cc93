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

package engine

import (
	"bytes"
	"sort"

	"github.com/zhangyunhao116/skipmap"
)

type entryKind uint8

const (
	kindValue entryKind = iota
	kindDeletion
)

type entry struct {
	key   []byte
	value []byte
	kind  entryKind
}

type concurrentSet = skipmap.FuncMap[[]byte, entry]

// memtable holds the latest write of every key since the last flush.
type memtable struct {
	set *concurrentSet
}

func newMemtable() *memtable {
	return &memtable{
		set: skipmap.NewFunc[[]byte, entry](func(a, b []byte) bool {
			return bytes.Compare(a, b) < 0
		}),
	}
}

func (m *memtable) put(key, value []byte, kind entryKind) {
	m.set.Store(key, entry{key: key, value: value, kind: kind})
}

func (m *memtable) get(key []byte) (entry, bool) {
	return m.set.Load(key)
}

func (m *memtable) len() int {
	return m.set.Len()
}

// sorted returns the entries in key order.
func (m *memtable) sorted() []entry {
	entries := make([]entry, 0, m.set.Len())
	m.set.Range(func(key []byte, e entry) bool {
		entries = append(entries, e)
		return true
	})
	return entries
}

// run is an immutable sorted set of unique keys, the unit the engine
// compacts. Newer runs shadow older ones.
type run struct {
	id      uint64
	entries []entry
	size    int64
}

func newRun(id uint64, entries []entry) *run {
	r := &run{id: id, entries: entries}
	for i := range entries {
		r.size += int64(len(entries[i].key) + len(entries[i].value))
	}
	return r
}

func (r *run) get(key []byte) (entry, bool) {
	i := sort.Search(len(r.entries), func(i int) bool {
		return bytes.Compare(r.entries[i].key, key) >= 0
	})
	if i < len(r.entries) && bytes.Equal(r.entries[i].key, key) {
		return r.entries[i], true
	}
	return entry{}, false
}

// mergeRuns merges runs given oldest first into one sorted list in which
// the newest entry of every key wins.
func mergeRuns(runs []*run) []entry {
	total := 0
	for _, r := range runs {
		total += len(r.entries)
	}
	merged := make([]entry, 0, total)
	pos := make([]int, len(runs))
	for {
		best := -1
		for i := len(runs) - 1; i >= 0; i-- {
			if pos[i] >= len(runs[i].entries) {
				continue
			}
			if best < 0 || bytes.Compare(runs[i].entries[pos[i]].key, runs[best].entries[pos[best]].key) < 0 {
				best = i
			}
		}
		if best < 0 {
			return merged
		}
		key := runs[best].entries[pos[best]].key
		merged = append(merged, runs[best].entries[pos[best]])
		// drop the shadowed versions
		for i := range runs {
			if pos[i] < len(runs[i].entries) && bytes.Equal(runs[i].entries[pos[i]].key, key) {
				pos[i]++
			}
		}
	}
}
