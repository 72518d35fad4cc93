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

// Package stats collects per-job compaction filter statistics and renders
// them for the monitor pages.
package stats

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"cfbridge/pkg/compaction"
	"cfbridge/pkg/compaction/bridge"
)

const (
	kMaxKeysPerJob = int64(1) << 40
	kMaxJobTime    = int64(24 * time.Hour)
)

type (
	// JobStats is a bridge.Observer aggregating job summaries per factory.
	JobStats struct {
		mtx       sync.Mutex
		startTime time.Time
		all       *jobStat
		factories map[string]*jobStat
		faults    map[bridge.FaultStage]uint64
	}

	jobStat struct {
		keys      *hdrhistogram.Histogram
		elapsed   *hdrhistogram.Histogram
		active    int64
		jobs      uint64
		full      uint64
		manual    uint64
		degraded  uint64
		skips     uint64
		faults    uint64
		decisions [4]uint64
	}

	FactorySnapshot struct {
		Factory      string
		Active       int64
		Jobs         uint64
		FullJobs     uint64
		ManualJobs   uint64
		Degraded     uint64
		InvalidSkips uint64
		Faults       uint64
		Keys         uint64
		Decisions    map[compaction.DecisionKind]uint64

		KeysP50    int64
		KeysP99    int64
		KeysMax    int64
		ElapsedAvg time.Duration
		ElapsedP50 time.Duration
		ElapsedP99 time.Duration
		ElapsedMax time.Duration
	}

	Snapshot struct {
		StartTime time.Time
		All       FactorySnapshot
		Factories []FactorySnapshot
		Faults    map[bridge.FaultStage]uint64
	}
)

var _ bridge.Observer = (*JobStats)(nil)

func newJobStat() *jobStat {
	return &jobStat{
		keys:    hdrhistogram.New(1, kMaxKeysPerJob, 3),
		elapsed: hdrhistogram.New(1, kMaxJobTime, 3),
	}
}

func NewJobStats() *JobStats {
	return &JobStats{
		startTime: time.Now(),
		all:       newJobStat(),
		factories: make(map[string]*jobStat),
		faults:    make(map[bridge.FaultStage]uint64),
	}
}

func (s *JobStats) factory(name string) *jobStat {
	st, ok := s.factories[name]
	if !ok {
		st = newJobStat()
		s.factories[name] = st
	}
	return st
}

func (s *JobStats) FilterCreated(factory string, _ string, _ compaction.Context) {
	s.mtx.Lock()
	s.all.active++
	s.factory(factory).active++
	s.mtx.Unlock()
}

func (s *JobStats) FilterDestroyed(sum *bridge.JobSummary) {
	s.mtx.Lock()
	s.all.add(sum)
	s.factory(sum.Factory).add(sum)
	s.mtx.Unlock()
}

func (s *JobStats) Fault(stage bridge.FaultStage, _ string, _ interface{}) {
	s.mtx.Lock()
	s.faults[stage]++
	s.mtx.Unlock()
}

func (st *jobStat) add(sum *bridge.JobSummary) {
	st.active--
	st.jobs++
	if sum.Context.IsFullCompaction {
		st.full++
	}
	if sum.Context.IsManualCompaction {
		st.manual++
	}
	if sum.Degraded {
		st.degraded++
	}
	st.skips += sum.InvalidSkips
	st.faults += sum.Faults
	for i := range st.decisions {
		st.decisions[i] += sum.Decisions[i]
	}
	st.keys.RecordValue(int64(sum.Keys))
	elapsed := int64(sum.Elapsed)
	if elapsed < 1 {
		elapsed = 1
	}
	st.elapsed.RecordValue(elapsed)
}

func (st *jobStat) snapshot(name string) (snap FactorySnapshot) {
	snap = FactorySnapshot{
		Factory:      name,
		Active:       st.active,
		Jobs:         st.jobs,
		FullJobs:     st.full,
		ManualJobs:   st.manual,
		Degraded:     st.degraded,
		InvalidSkips: st.skips,
		Faults:       st.faults,
		Decisions:    make(map[compaction.DecisionKind]uint64, len(st.decisions)),
	}
	for i, n := range st.decisions {
		snap.Decisions[compaction.DecisionKind(i)] = n
		snap.Keys += n
	}
	if st.jobs == 0 {
		return
	}
	snap.KeysP50 = st.keys.ValueAtQuantile(50.)
	snap.KeysP99 = st.keys.ValueAtQuantile(99.)
	snap.KeysMax = st.keys.Max()
	snap.ElapsedAvg = time.Duration(st.elapsed.Mean())
	snap.ElapsedP50 = time.Duration(st.elapsed.ValueAtQuantile(50.))
	snap.ElapsedP99 = time.Duration(st.elapsed.ValueAtQuantile(99.))
	snap.ElapsedMax = time.Duration(st.elapsed.Max())
	return
}

func (s *JobStats) Snapshot() (snap Snapshot) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	snap.StartTime = s.startTime
	snap.All = s.all.snapshot("All")
	for name, st := range s.factories {
		snap.Factories = append(snap.Factories, st.snapshot(name))
	}
	sort.Slice(snap.Factories, func(i, j int) bool {
		return snap.Factories[i].Factory < snap.Factories[j].Factory
	})
	snap.Faults = make(map[bridge.FaultStage]uint64, len(s.faults))
	for stage, n := range s.faults {
		snap.Faults[stage] = n
	}
	return
}

func (s *JobStats) Reset() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.startTime = time.Now()
	s.all = newJobStat()
	s.factories = make(map[string]*jobStat)
	s.faults = make(map[bridge.FaultStage]uint64)
}

// WriteText writes the snapshot as a fixed-width table.
func (s *JobStats) WriteText(w io.Writer) {
	snap := s.Snapshot()
	round := func(d time.Duration) time.Duration {
		return d.Round(time.Microsecond)
	}

	fmt.Fprintln(w,
		`
   number   |   keys per job          |                 job time                       |   number of keys
   of jobs  |      50% |      99% |  max | average    |        50% |        99% |  max   |  removed |  changed |  skipped | factory
------------+----------+----------+------+------------+------------+------------+--------+----------+----------+----------+--------------`)
	wstatFunc := func(st *FactorySnapshot) {
		fmt.Fprintf(w, "%12d %10d %10d %6d %12s %12s %12s %8s %10d %10d %10d %s\n",
			st.Jobs, st.KeysP50, st.KeysP99, st.KeysMax,
			round(st.ElapsedAvg), round(st.ElapsedP50), round(st.ElapsedP99), round(st.ElapsedMax),
			st.Decisions[compaction.DecisionRemove], st.Decisions[compaction.DecisionChangeValue],
			st.Decisions[compaction.DecisionRemoveAndSkipUntil], st.Factory)
	}
	for i := range snap.Factories {
		wstatFunc(&snap.Factories[i])
	}
	fmt.Fprintln(w,
		"------------+----------+----------+------+------------+------------+------------+--------+----------+----------+----------+--------------")
	wstatFunc(&snap.All)

	if len(snap.Faults) != 0 {
		stages := make([]string, 0, len(snap.Faults))
		for stage := range snap.Faults {
			stages = append(stages, string(stage))
		}
		sort.Strings(stages)
		fmt.Fprint(w, "faults:")
		for _, stage := range stages {
			fmt.Fprintf(w, " %s=%d", stage, snap.Faults[bridge.FaultStage(stage)])
		}
		fmt.Fprintln(w)
	}
}
