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
	"os"
	"path/filepath"
	"time"

	"github.com/golang/glog"
	uuid "github.com/satori/go.uuid"

	"cfbridge/pkg/compaction"
	"cfbridge/pkg/compaction/bridge"
	"cfbridge/pkg/logging"
	"cfbridge/pkg/util"
)

type compactionJob struct {
	id     string
	inputs []*runState
	ctx    compaction.Context
	// manual jobs only present keys of [start, limit) to the filter
	start []byte
	limit []byte
	done  chan error
}

type jobResult struct {
	entries  []entry
	filtered uint64
	removed  uint64
	changed  uint64
	skipped  uint64
	dropped  uint64
}

func (db *DB) enqueueLocked(job *compactionJob) {
	for _, r := range job.inputs {
		r.compacting = true
	}
	job.id = uuid.NewV1().String()
	db.queue = append(db.queue, job)
	db.cond.Broadcast()
}

func (db *DB) abandonLocked(job *compactionJob, err error) {
	for _, r := range job.inputs {
		r.compacting = false
	}
	if job.done != nil {
		job.done <- err
	}
}

// maybeScheduleLocked queues automatic compactions of the newest runs while
// enough idle runs are adjacent.
func (db *DB) maybeScheduleLocked() {
	trigger := db.opts.Level0CompactionTrigger
	if db.closed || db.opts.DisableAutoCompactions || trigger <= 1 || db.manualPending > 0 {
		return
	}
	for {
		span := db.pickSpanLocked(trigger)
		if span == nil {
			return
		}
		full := len(span) == len(db.runs)
		db.enqueueLocked(&compactionJob{
			inputs: span,
			ctx:    compaction.Context{IsFullCompaction: full},
		})
	}
}

func (db *DB) pickSpanLocked(n int) []*runState {
	for end := len(db.runs); end >= n; end-- {
		idle := true
		for _, r := range db.runs[end-n : end] {
			if r.compacting {
				idle = false
				break
			}
		}
		if idle {
			return append([]*runState(nil), db.runs[end-n:end]...)
		}
	}
	return nil
}

func (db *DB) worker() {
	defer db.workers.Done()
	db.mu.Lock()
	defer db.mu.Unlock()
	for {
		for len(db.queue) == 0 && !db.closed {
			db.cond.Wait()
		}
		if len(db.queue) == 0 {
			return
		}
		job := db.queue[0]
		db.queue = db.queue[1:]
		db.running++
		db.mu.Unlock()

		result := db.runCompaction(job)

		db.mu.Lock()
		err := db.installLocked(job, result)
		db.running--
		if err != nil {
			db.stats.backgroundErrors.Add(1)
			glog.Errorf("compaction %s failed: %s", job.id, err)
			db.abandonLocked(job, err)
		} else if job.done != nil {
			job.done <- nil
		}
		db.maybeScheduleLocked()
		db.cond.Broadcast()
	}
}

// CompactRange runs a full manual compaction and waits for it. Only keys in
// [start, limit) are presented to the compaction filter; nil bounds are
// open.
func (db *DB) CompactRange(start, limit []byte) error {
	if err := db.Flush(); err != nil {
		return err
	}
	db.mu.Lock()
	db.manualPending++
	defer func() {
		db.mu.Lock()
		db.manualPending--
		db.maybeScheduleLocked()
		db.mu.Unlock()
	}()
	for !db.closed && db.anyCompactingLocked() {
		db.cond.Wait()
	}
	if db.closed {
		db.mu.Unlock()
		return errShutdown
	}
	if len(db.runs) == 0 {
		db.mu.Unlock()
		return nil
	}
	job := &compactionJob{
		inputs: append([]*runState(nil), db.runs...),
		ctx:    compaction.Context{IsFullCompaction: true, IsManualCompaction: true},
		start:  util.CopyBytes(start),
		limit:  util.CopyBytes(limit),
		done:   make(chan error, 1),
	}
	db.enqueueLocked(job)
	db.mu.Unlock()

	if err := <-job.done; err != nil {
		return err
	}
	db.stats.manualCompactions.Add(1)
	return nil
}

func (db *DB) anyCompactingLocked() bool {
	for _, r := range db.runs {
		if r.compacting {
			return true
		}
	}
	return false
}

func (db *DB) outputLevel(job *compactionJob) int {
	if job.ctx.IsFullCompaction {
		return 1
	}
	return 0
}

// runCompaction merges the job's runs through the job's filter. The filter
// is created and destroyed here, on the worker goroutine that runs every
// filter call of the job.
func (db *DB) runCompaction(job *compactionJob) (res jobResult) {
	started := time.Now()
	ctx := jobContexts.register(job.ctx)
	defer jobContexts.release(ctx)

	var fs bridge.FilterSlots
	if f := db.opts.FilterFactory; f != nil {
		fs = f.CreateFilter(f.State, ctx)
	}
	if fs.Valid() {
		defer fs.Destroy(fs.State)
	}

	inputs := make([]*run, len(job.inputs))
	for i, r := range job.inputs {
		inputs[i] = r.run
	}
	merged := mergeRuns(inputs)
	res.entries = make([]entry, 0, len(merged))
	level := db.outputLevel(job)

	var (
		out       bridge.FilterOutput
		skipUntil []byte
	)
	for _, e := range merged {
		if skipUntil != nil {
			if bytes.Compare(e.key, skipUntil) < 0 {
				res.skipped++
				continue
			}
			skipUntil = nil
		}
		if e.kind == kindDeletion {
			if job.ctx.IsFullCompaction {
				res.dropped++
				continue
			}
			res.entries = append(res.entries, e)
			continue
		}
		if !fs.Valid() || !inRange(e.key, job.start, job.limit) {
			res.entries = append(res.entries, e)
			continue
		}

		res.filtered++
		switch fs.Filter(fs.State, level, e.key, compaction.ValueTypeValue, e.value, &out) {
		case bridge.CodeRemove:
			res.removed++
			dropEntry(&res, job, e)
			continue
		case bridge.CodeRemoveAndSkipUntil:
			res.removed++
			skipUntil = util.CopyBytes(out.SkipUntil)
			// keys past the job's range were never shown to the filter
			if job.limit != nil && bytes.Compare(skipUntil, job.limit) > 0 {
				skipUntil = job.limit
			}
			dropEntry(&res, job, e)
			continue
		case bridge.CodeChangeValue:
			res.changed++
			e.value = util.CopyBytes(out.NewValue)
		}
		res.entries = append(res.entries, e)
	}

	if glog.V(logging.LevelDebug) || res.removed+res.changed+res.skipped > 0 {
		glog.Infof("compaction %s: %s,runs=%d", job.id, logging.NewKVBufferForLog().AddContext(job.ctx).AddKeyCount(
			res.filtered).AddRemoved(res.removed).AddChanged(res.changed).AddSkipped(res.skipped).AddElapsed(
			time.Since(started)).String(), len(job.inputs))
	}
	return
}

// dropEntry removes a filtered key. A job that is not full leaves a
// deletion marker so that older runs stay shadowed.
func dropEntry(res *jobResult, job *compactionJob, e entry) {
	if !job.ctx.IsFullCompaction {
		res.entries = append(res.entries, entry{key: e.key, kind: kindDeletion})
	}
}

func (db *DB) installLocked(job *compactionJob, res jobResult) error {
	first := -1
	for i, r := range db.runs {
		if r == job.inputs[0] {
			first = i
			break
		}
	}
	if first < 0 || first+len(job.inputs) > len(db.runs) {
		return errShutdown
	}

	var outputs []*runState
	if len(res.entries) > 0 {
		r := newRun(db.nextRunId, res.entries)
		if db.opts.Dir != "" {
			if err := writeRunFile(db.opts.Dir, r, db.opts.Compression, db.opts.BlockSize); err != nil {
				return err
			}
		}
		db.nextRunId++
		outputs = append(outputs, &runState{run: r})
	}

	old := db.runs
	runs := make([]*runState, 0, len(old)-len(job.inputs)+len(outputs))
	runs = append(runs, old[:first]...)
	runs = append(runs, outputs...)
	runs = append(runs, old[first+len(job.inputs):]...)
	db.runs = runs
	if err := db.saveManifestLocked(); err != nil {
		db.runs = old
		return err
	}
	if db.opts.Dir != "" {
		for _, r := range job.inputs {
			os.Remove(filepath.Join(db.opts.Dir, runFileName(r.id)))
		}
	}

	db.stats.compactions.Add(1)
	db.stats.keysFiltered.Add(res.filtered)
	db.stats.keysRemoved.Add(res.removed)
	db.stats.keysChanged.Add(res.changed)
	db.stats.keysSkipped.Add(res.skipped)
	db.stats.tombstonesDropped.Add(res.dropped)
	return nil
}
