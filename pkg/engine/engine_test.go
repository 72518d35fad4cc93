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
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfbridge/pkg/compaction"
	"cfbridge/pkg/compaction/bridge"
	"cfbridge/pkg/errors"
)

// jobRecorder is a factory whose filters remove the keys for which remove
// returns true and record what they were shown.
type jobRecorder struct {
	mu       sync.Mutex
	contexts []compaction.Context
	seen     [][]byte
	remove   func(key []byte) compaction.Decision
}

func (r *jobRecorder) Name() string {
	return "jobRecorder"
}

func (r *jobRecorder) CreateFilter(ctx compaction.Context) compaction.Filter {
	r.mu.Lock()
	r.contexts = append(r.contexts, ctx)
	r.mu.Unlock()
	return compaction.FilterFunc(func(_ int, key []byte, _ compaction.ValueType, _ []byte) compaction.Decision {
		r.mu.Lock()
		r.seen = append(r.seen, append([]byte(nil), key...))
		r.mu.Unlock()
		if r.remove != nil {
			return r.remove(key)
		}
		return compaction.Keep()
	})
}

func newTestOptions(dir string) Options {
	opts := DefaultOptions()
	opts.Dir = dir
	opts.DisableAutoCompactions = true
	opts.MemtableEntries = 0
	return opts
}

func withFactory(t *testing.T, opts Options, f compaction.FilterFactory) (Options, *bridge.Bridge) {
	b := bridge.New(ContextAccessor())
	slots := b.RegisterFactory(f)
	opts.FilterFactory = &slots
	t.Cleanup(func() {
		factories, filters := b.Outstanding()
		assert.Equal(t, 0, factories, "leaked factory registrations")
		assert.Equal(t, 0, filters, "leaked filters")
	})
	return opts, b
}

func keysOf(t *testing.T, db *DB) []string {
	var keys []string
	require.NoError(t, db.Scan(nil, nil, func(key, _ []byte) bool {
		keys = append(keys, string(key))
		return true
	}))
	return keys
}

func putAll(t *testing.T, db *DB, keys ...string) {
	for _, k := range keys {
		require.NoError(t, db.Put([]byte(k), []byte("v-"+k)))
	}
}

func TestPutGetDelete(t *testing.T) {
	db, err := Open(newTestOptions(""))
	require.NoError(t, err)
	defer db.Close()

	putAll(t, db, "c", "a", "b")
	v, err := db.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v-a"), v)

	require.NoError(t, db.Flush())
	require.NoError(t, db.Delete([]byte("b")))
	require.NoError(t, db.Put([]byte("c"), []byte("new")))

	_, err = db.Get([]byte("b"))
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
	v, err = db.Get([]byte("c"))
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), v)
	assert.Equal(t, []string{"a", "c"}, keysOf(t, db))

	var bounded []string
	require.NoError(t, db.Scan([]byte("b"), []byte("c"), func(key, _ []byte) bool {
		bounded = append(bounded, string(key))
		return true
	}))
	assert.Empty(t, bounded)

	st := db.Stats()
	assert.Equal(t, 1, st.Runs)
	assert.Equal(t, uint64(1), st.Flushes)
	assert.Equal(t, 2, st.MemtableEntries)
}

func TestClosed(t *testing.T) {
	db, err := Open(newTestOptions(""))
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	err = db.Put([]byte("a"), nil)
	assert.Equal(t, errors.KindShutdownInProgress, errors.KindOf(err))
	_, err = db.Get([]byte("a"))
	assert.Equal(t, errors.KindShutdownInProgress, errors.KindOf(err))
}

func TestOptionsValidation(t *testing.T) {
	opts := newTestOptions("")
	opts.MaxBackgroundCompactions = 0
	_, err := Open(opts)
	assert.Equal(t, errors.KindInvalidArgument, errors.KindOf(err))

	opts = newTestOptions("")
	opts.Compression = 9
	_, err = Open(opts)
	assert.Equal(t, errors.KindNotSupported, errors.KindOf(err))
}

func TestFailedOpenDestroysFactory(t *testing.T) {
	opts, b := withFactory(t, newTestOptions(""), &jobRecorder{})
	opts.MaxBackgroundCompactions = 0
	_, err := Open(opts)
	require.Error(t, err)
	assert.Equal(t, uint64(1), b.Stats().FactoriesDestroyed)
}

func TestPersistence(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	db, err := Open(newTestOptions(dir))
	require.NoError(t, err)
	putAll(t, db, "a", "b")
	require.NoError(t, db.Flush())
	putAll(t, db, "c")
	require.NoError(t, db.Delete([]byte("a")))
	require.NoError(t, db.Close())

	db, err = Open(newTestOptions(dir))
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, []string{"b", "c"}, keysOf(t, db))
	assert.Equal(t, 2, db.Stats().Runs)
}

func TestCreateIfMissingAndErrorIfExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	opts := newTestOptions(dir)
	opts.CreateIfMissing = false
	_, err := Open(opts)
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidArgument, errors.KindOf(err))
	assert.Contains(t, err.Error(), "create_if_missing is false")

	db, err := Open(newTestOptions(dir))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	opts = newTestOptions(dir)
	opts.ErrorIfExists = true
	_, err = Open(opts)
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidArgument, errors.KindOf(err))
	assert.Contains(t, err.Error(), "error_if_exists is true")
}

func TestDoubleOpen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(newTestOptions(dir))
	require.NoError(t, err)
	defer db.Close()

	_, err = Open(newTestOptions(dir))
	require.Error(t, err)
	assert.Equal(t, errors.KindIOError, errors.KindOf(err))
}

func TestCorruptRunFile(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(newTestOptions(dir))
	require.NoError(t, err)
	putAll(t, db, "a", "b", "c")
	require.NoError(t, db.Close())

	name := filepath.Join(dir, runFileName(1))
	data, err := os.ReadFile(name)
	require.NoError(t, err)
	data[3] ^= 0xFF
	require.NoError(t, os.WriteFile(name, data, 0644))

	_, err = Open(newTestOptions(dir))
	require.Error(t, err)
	assert.Equal(t, errors.KindCorruption, errors.KindOf(err))
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestRunFileRoundTrip(t *testing.T) {
	r := newRun(7, []entry{
		{key: []byte("a"), value: bytes.Repeat([]byte("x"), 100)},
		{key: []byte("b"), kind: kindDeletion},
		{key: []byte("c"), value: []byte("y")},
	})
	data, err := encodeRun(r, 2, 16)
	require.NoError(t, err)
	got, err := decodeRun("t", data)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.id)
	require.Len(t, got.entries, 3)
	assert.Equal(t, kindDeletion, got.entries[1].kind)
	assert.Equal(t, []byte("y"), got.entries[2].value)

	_, err = decodeRun("t", data[:len(data)-1])
	assert.Equal(t, errors.KindCorruption, errors.KindOf(err))
}

func TestManualCompactionRunsFilter(t *testing.T) {
	f := &jobRecorder{remove: func(key []byte) compaction.Decision {
		if bytes.HasPrefix(key, []byte("x")) {
			return compaction.Remove()
		}
		return compaction.Keep()
	}}
	opts, b := withFactory(t, newTestOptions(t.TempDir()), f)
	db, err := Open(opts)
	require.NoError(t, err)

	putAll(t, db, "a", "x1")
	require.NoError(t, db.Flush())
	putAll(t, db, "x2", "b")
	require.NoError(t, db.Delete([]byte("a")))
	require.NoError(t, db.CompactRange(nil, nil))

	assert.Equal(t, []string{"b"}, keysOf(t, db))
	require.Len(t, f.contexts, 1)
	assert.Equal(t, compaction.Context{IsFullCompaction: true, IsManualCompaction: true}, f.contexts[0])
	// the deletion of a is not shown to the filter
	assert.Len(t, f.seen, 3)

	st := db.Stats()
	assert.Equal(t, 1, st.Runs)
	assert.Equal(t, 1, st.Entries)
	assert.Equal(t, uint64(1), st.ManualCompactions)
	assert.Equal(t, uint64(2), st.KeysRemoved)
	assert.Equal(t, uint64(1), st.TombstonesDropped)

	require.NoError(t, db.Close())
	bs := b.Stats()
	assert.Equal(t, uint64(1), bs.FiltersCreated)
	assert.Equal(t, uint64(1), bs.FiltersDestroyed)
	assert.Equal(t, uint64(1), bs.FactoriesDestroyed)
}

func TestManualCompactionRange(t *testing.T) {
	f := &jobRecorder{remove: func([]byte) compaction.Decision {
		return compaction.Remove()
	}}
	opts, _ := withFactory(t, newTestOptions(""), f)
	db, err := Open(opts)
	require.NoError(t, err)
	defer db.Close()

	putAll(t, db, "a", "b", "c", "d", "e")
	require.NoError(t, db.CompactRange([]byte("b"), []byte("d")))
	assert.Equal(t, []string{"a", "d", "e"}, keysOf(t, db))
}

func TestSkipStopsAtRangeLimit(t *testing.T) {
	f := &jobRecorder{remove: func(key []byte) compaction.Decision {
		if string(key) == "b" {
			return compaction.RemoveAndSkipUntil([]byte("z"))
		}
		return compaction.Keep()
	}}
	opts, _ := withFactory(t, newTestOptions(""), f)
	db, err := Open(opts)
	require.NoError(t, err)
	defer db.Close()

	putAll(t, db, "a", "b", "c", "d", "e")
	require.NoError(t, db.CompactRange([]byte("b"), []byte("d")))
	assert.Equal(t, []string{"a", "d", "e"}, keysOf(t, db))

	var seen []string
	for _, k := range f.seen {
		seen = append(seen, string(k))
	}
	assert.Equal(t, []string{"b"}, seen)
	assert.Equal(t, uint64(1), db.Stats().KeysSkipped)
}

func TestRemoveAndSkipUntil(t *testing.T) {
	f := &jobRecorder{remove: func(key []byte) compaction.Decision {
		if string(key) == "b" {
			return compaction.RemoveAndSkipUntil([]byte("e"))
		}
		return compaction.Keep()
	}}
	opts, _ := withFactory(t, newTestOptions(""), f)
	db, err := Open(opts)
	require.NoError(t, err)
	defer db.Close()

	putAll(t, db, "a", "b", "c", "d", "e", "f")
	require.NoError(t, db.CompactRange(nil, nil))
	assert.Equal(t, []string{"a", "e", "f"}, keysOf(t, db))

	var seen []string
	for _, k := range f.seen {
		seen = append(seen, string(k))
	}
	assert.Equal(t, []string{"a", "b", "e", "f"}, seen)
	assert.Equal(t, uint64(2), db.Stats().KeysSkipped)
}

func TestChangeValue(t *testing.T) {
	f := compaction.NewFactory("upper", func(compaction.Context) compaction.Filter {
		return compaction.FilterFunc(func(_ int, _ []byte, _ compaction.ValueType, v []byte) compaction.Decision {
			return compaction.ChangeValue(bytes.ToUpper(v))
		})
	})
	opts, _ := withFactory(t, newTestOptions(""), f)
	db, err := Open(opts)
	require.NoError(t, err)
	defer db.Close()

	putAll(t, db, "a")
	require.NoError(t, db.CompactRange(nil, nil))
	v, err := db.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("V-A"), v)
	assert.Equal(t, uint64(1), db.Stats().KeysChanged)
}

func TestPartialJobKeepsTombstones(t *testing.T) {
	f := &jobRecorder{remove: func(key []byte) compaction.Decision {
		if string(key) == "k" {
			return compaction.Remove()
		}
		return compaction.Keep()
	}}
	opts, _ := withFactory(t, newTestOptions(""), f)
	db, err := Open(opts)
	require.NoError(t, err)
	defer db.Close()

	old := newRun(1, []entry{{key: []byte("k"), value: []byte("old")}})
	job := &compactionJob{
		inputs: []*runState{
			{run: newRun(2, []entry{{key: []byte("d"), kind: kindDeletion}})},
			{run: newRun(3, []entry{{key: []byte("k"), value: []byte("new")}})},
		},
	}
	res := db.runCompaction(job)
	require.Len(t, res.entries, 2)
	for _, e := range res.entries {
		assert.Equal(t, kindDeletion, e.kind, string(e.key))
	}
	assert.Equal(t, uint64(0), res.dropped)
	assert.Equal(t, []compaction.Context{{}}, f.contexts)

	// the marker left for k still shadows the older run
	merged := mergeRuns([]*run{old, newRun(4, res.entries)})
	assert.Equal(t, kindDeletion, merged[1].kind)
}

func TestAutomaticCompactions(t *testing.T) {
	f := &jobRecorder{remove: func(key []byte) compaction.Decision {
		if bytes.HasSuffix(key, []byte("7")) {
			return compaction.Remove()
		}
		return compaction.Keep()
	}}
	opts := newTestOptions(t.TempDir())
	opts.DisableAutoCompactions = false
	opts.Level0CompactionTrigger = 2
	opts.MaxBackgroundCompactions = 4
	opts.MemtableEntries = 10
	opts, b := withFactory(t, opts, f)
	db, err := Open(opts)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		require.NoError(t, db.Put([]byte(fmt.Sprintf("key%03d", i)), []byte("v")))
	}
	db.WaitForCompactions()

	st := db.Stats()
	assert.Equal(t, 1, st.Runs)
	assert.Equal(t, 180, st.Entries)
	assert.Equal(t, uint64(20), st.Flushes)
	assert.True(t, st.Compactions > 0)
	assert.Equal(t, uint64(0), st.ManualCompactions)
	assert.Equal(t, uint64(0), st.BackgroundErrors)

	f.mu.Lock()
	for _, ctx := range f.contexts {
		assert.False(t, ctx.IsManualCompaction)
	}
	f.mu.Unlock()

	require.NoError(t, db.Close())
	bs := b.Stats()
	assert.Equal(t, bs.FiltersCreated, bs.FiltersDestroyed)
	assert.Equal(t, st.Compactions, bs.FiltersCreated)

	db, err = Open(newTestOptions(opts.Dir))
	require.NoError(t, err)
	defer db.Close()
	assert.Len(t, keysOf(t, db), 180)
}
