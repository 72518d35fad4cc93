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

// Package engine is a small log-structured key-value store that runs
// compaction filters the way rocksdb does: each background or manual
// compaction job gets its own filter from the configured factory slots,
// presents every live key to it in key order and destroys it when the job
// ends.
//
// Writes go to a memtable that is flushed into immutable sorted runs. A
// compaction merges a contiguous span of runs into one. A job is full when
// its span holds every run; only full jobs drop deletion markers. Failures
// are *errors.Error values worded the way rocksdb words its statuses.
package engine

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	"cfbridge/pkg/errors"
	"cfbridge/pkg/logging"
	"cfbridge/pkg/util"
)

type runState struct {
	*run
	compacting bool
}

type DB struct {
	opts Options
	lock *fileLock

	mu        sync.Mutex
	cond      *sync.Cond
	mem       *memtable
	runs      []*runState
	nextRunId uint64
	closed    bool

	queue         []*compactionJob
	running       int
	manualPending int
	workers       sync.WaitGroup

	stats counters
}

type counters struct {
	flushes           atomic.Uint64
	compactions       atomic.Uint64
	manualCompactions atomic.Uint64
	keysFiltered      atomic.Uint64
	keysRemoved       atomic.Uint64
	keysChanged       atomic.Uint64
	keysSkipped       atomic.Uint64
	tombstonesDropped atomic.Uint64
	backgroundErrors  atomic.Uint64
}

type Stats struct {
	MemtableEntries int
	Runs            int
	Entries         int
	Bytes           int64

	Flushes           uint64
	Compactions       uint64
	ManualCompactions uint64
	KeysFiltered      uint64
	KeysRemoved       uint64
	KeysChanged       uint64
	KeysSkipped       uint64
	TombstonesDropped uint64
	BackgroundErrors  uint64
}

var errShutdown = errors.Newf(errors.KindShutdownInProgress, "")

// Open opens the store described by opts and starts its compaction
// workers.
func Open(opts Options) (db *DB, err error) {
	defer func() {
		if err != nil && opts.FilterFactory != nil && opts.FilterFactory.Valid() {
			opts.FilterFactory.Destroy(opts.FilterFactory.State)
		}
	}()
	if err = opts.validate(); err != nil {
		return nil, err
	}
	db = &DB{
		opts:      opts,
		mem:       newMemtable(),
		nextRunId: 1,
	}
	db.cond = sync.NewCond(&db.mu)

	if opts.Dir != "" {
		if err = db.load(); err != nil {
			if db.lock != nil {
				db.lock.release()
			}
			return nil, err
		}
	}

	for i := 0; i < opts.MaxBackgroundCompactions; i++ {
		db.workers.Add(1)
		go db.worker()
	}
	db.mu.Lock()
	db.maybeScheduleLocked()
	db.mu.Unlock()
	glog.Infof("engine opened: dir=%q,runs=%d", opts.Dir, len(db.runs))
	return db, nil
}

func (db *DB) load() error {
	dir := db.opts.Dir
	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			return errors.Newf(errors.KindIOError, "%s", err)
		}
		if !db.opts.CreateIfMissing {
			return errors.Newf(errors.KindInvalidArgument, "%s: does not exist (create_if_missing is false)", dir)
		}
		if err = os.MkdirAll(dir, 0755); err != nil {
			return errors.Newf(errors.KindIOError, "%s", err)
		}
	}
	var err error
	if db.lock, err = lockDir(dir); err != nil {
		return err
	}

	m, err := readManifest(dir)
	if err != nil {
		return err
	}
	if m == nil {
		if !db.opts.CreateIfMissing {
			return errors.Newf(errors.KindInvalidArgument, "%s: does not exist (create_if_missing is false)", dir)
		}
		return writeManifest(dir, &manifest{nextRunId: db.nextRunId})
	}
	if db.opts.ErrorIfExists {
		return errors.Newf(errors.KindInvalidArgument, "%s: exists (error_if_exists is true)", dir)
	}

	live := make(map[uint64]bool, len(m.runs))
	for _, id := range m.runs {
		r, err := readRunFile(dir, id)
		if err != nil {
			return err
		}
		db.runs = append(db.runs, &runState{run: r})
		live[id] = true
	}
	db.nextRunId = m.nextRunId
	removeObsoleteFiles(dir, live)
	return nil
}

func removeObsoleteFiles(dir string, live map[uint64]bool) {
	names, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		return
	}
	for _, name := range names {
		base := filepath.Base(name)
		obsolete := strings.HasSuffix(base, ".tmp")
		if id, err := strconv.ParseUint(strings.TrimSuffix(base, ".run"), 10, 64); err == nil && strings.HasSuffix(base, ".run") {
			obsolete = !live[id]
		}
		if obsolete {
			glog.Infof("removing obsolete file %s", name)
			os.Remove(name)
		}
	}
}

func (db *DB) Put(key, value []byte) error {
	return db.write(key, value, kindValue)
}

func (db *DB) Delete(key []byte) error {
	return db.write(key, nil, kindDeletion)
}

func (db *DB) write(key, value []byte, kind entryKind) error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return errShutdown
	}
	db.mem.put(util.CopyBytes(key), util.CopyBytes(value), kind)
	full := db.opts.MemtableEntries > 0 && db.mem.len() >= db.opts.MemtableEntries
	db.mu.Unlock()
	if full {
		return db.Flush()
	}
	return nil
}

// Get returns a copy of the value of key, or a NotFound error.
func (db *DB) Get(key []byte) ([]byte, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, errShutdown
	}
	e, ok := db.mem.get(key)
	for i := len(db.runs) - 1; !ok && i >= 0; i-- {
		e, ok = db.runs[i].get(key)
	}
	if !ok || e.kind == kindDeletion {
		return nil, errors.Newf(errors.KindNotFound, "")
	}
	return util.CopyBytes(e.value), nil
}

// Scan calls fn for every live key in [start, limit) in key order, until fn
// returns false. A nil bound is open.
func (db *DB) Scan(start, limit []byte, fn func(key, value []byte) bool) error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return errShutdown
	}
	runs := make([]*run, 0, len(db.runs)+1)
	for _, r := range db.runs {
		runs = append(runs, r.run)
	}
	runs = append(runs, newRun(0, db.mem.sorted()))
	db.mu.Unlock()

	for _, e := range mergeRuns(runs) {
		if limit != nil && bytes.Compare(e.key, limit) >= 0 {
			break
		}
		if e.kind == kindDeletion || (start != nil && bytes.Compare(e.key, start) < 0) {
			continue
		}
		if !fn(e.key, e.value) {
			break
		}
	}
	return nil
}

func inRange(key, start, limit []byte) bool {
	return (start == nil || bytes.Compare(key, start) >= 0) && (limit == nil || bytes.Compare(key, limit) < 0)
}

// Flush turns the memtable into a new run.
func (db *DB) Flush() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errShutdown
	}
	if err := db.flushLocked(); err != nil {
		return err
	}
	db.maybeScheduleLocked()
	return nil
}

func (db *DB) flushLocked() error {
	if db.mem.len() == 0 {
		return nil
	}
	r := newRun(db.nextRunId, db.mem.sorted())
	if db.opts.Dir != "" {
		if err := writeRunFile(db.opts.Dir, r, db.opts.Compression, db.opts.BlockSize); err != nil {
			return err
		}
	}
	db.nextRunId++
	db.runs = append(db.runs, &runState{run: r})
	if err := db.saveManifestLocked(); err != nil {
		db.runs = db.runs[:len(db.runs)-1]
		return err
	}
	db.mem = newMemtable()
	db.stats.flushes.Add(1)
	if glog.V(logging.LevelDebug) {
		glog.Infof("flushed run %d: entries=%d", r.id, len(r.entries))
	}
	return nil
}

func (db *DB) saveManifestLocked() error {
	if db.opts.Dir == "" {
		return nil
	}
	m := &manifest{nextRunId: db.nextRunId, runs: make([]uint64, 0, len(db.runs))}
	for _, r := range db.runs {
		m.runs = append(m.runs, r.id)
	}
	return writeManifest(db.opts.Dir, m)
}

// WaitForCompactions blocks until no compaction is queued or running.
func (db *DB) WaitForCompactions() {
	db.mu.Lock()
	defer db.mu.Unlock()
	for len(db.queue) > 0 || db.running > 0 {
		db.cond.Wait()
	}
}

func (db *DB) Stats() Stats {
	db.mu.Lock()
	st := Stats{
		MemtableEntries: db.mem.len(),
		Runs:            len(db.runs),
	}
	for _, r := range db.runs {
		st.Entries += len(r.entries)
		st.Bytes += r.size
	}
	db.mu.Unlock()

	st.Flushes = db.stats.flushes.Load()
	st.Compactions = db.stats.compactions.Load()
	st.ManualCompactions = db.stats.manualCompactions.Load()
	st.KeysFiltered = db.stats.keysFiltered.Load()
	st.KeysRemoved = db.stats.keysRemoved.Load()
	st.KeysChanged = db.stats.keysChanged.Load()
	st.KeysSkipped = db.stats.keysSkipped.Load()
	st.TombstonesDropped = db.stats.tombstonesDropped.Load()
	st.BackgroundErrors = db.stats.backgroundErrors.Load()
	return st
}

// Close flushes the memtable of a persistent store, waits for running
// compactions, drops queued ones and destroys the filter factory slots.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return nil
	}
	db.closed = true
	for _, job := range db.queue {
		db.abandonLocked(job, errShutdown)
	}
	db.queue = nil
	var err error
	if db.opts.Dir != "" {
		err = db.flushLocked()
	}
	db.cond.Broadcast()
	db.mu.Unlock()

	db.workers.Wait()
	if f := db.opts.FilterFactory; f != nil {
		f.Destroy(f.State)
	}
	if db.lock != nil {
		db.lock.release()
	}
	glog.Infof("engine closed: dir=%q", db.opts.Dir)
	return err
}
