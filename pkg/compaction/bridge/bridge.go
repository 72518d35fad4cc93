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

// Package bridge connects compaction.FilterFactory implementations to a
// storage engine that only deals in opaque handles and function slots.
//
// RegisterFactory hands the engine a FactorySlots. From then on the engine
// drives everything: it creates one filter per compaction job, calls it for
// every key, and destroys it when the job ends; it destroys the factory
// registration when it shuts down. No Go pointer ever crosses to the engine.
// Handles are indexes into tables owned by the Bridge, checked by generation
// on every use.
//
// No fault raised by application code escapes a trampoline. A factory that
// panics or returns nil gets a keep-all filter for that job; a filter that
// panics keeps the key. Outstanding reports the handles not yet destroyed.
package bridge

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang/glog"

	"cfbridge/pkg/compaction"
	"cfbridge/pkg/logging"
)

type factoryEntry struct {
	factory compaction.FilterFactory
	name    string
}

type filterEntry struct {
	filter  compaction.Filter
	started time.Time
	// the filter's calls are serialized by the engine, so the summary is
	// owned by whichever compaction thread runs the job
	summary JobSummary
}

type Option func(b *Bridge)

// WithObserver installs obs. Passing several WithObserver options fans out
// to all of them.
func WithObserver(obs Observer) Option {
	return func(b *Bridge) {
		if b.observer == nil {
			b.observer = obs
		} else {
			b.observer = Observers(b.observer, obs)
		}
	}
}

type Bridge struct {
	accessor  ContextAccessor
	observer  Observer
	factories handleTable[*factoryEntry]
	filters   handleTable[*filterEntry]

	factoriesRegistered atomic.Uint64
	factoriesDestroyed  atomic.Uint64
	filtersCreated      atomic.Uint64
	filtersDestroyed    atomic.Uint64
	filtersDegraded     atomic.Uint64
	invalidSkips        atomic.Uint64
	faults              [numStages]atomic.Uint64
	decisions           [numDecisionKinds]atomic.Uint64
}

// New returns a Bridge that reads compaction contexts through acc.
func New(acc ContextAccessor, opts ...Option) *Bridge {
	b := &Bridge{accessor: acc}
	b.filters.tag = handleTagBit
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RegisterFactory allocates a factory handle for f. The engine owns the
// returned slots and releases the registration through Destroy. The zero
// FactorySlots is returned if no handle is available.
func (b *Bridge) RegisterFactory(f compaction.FilterFactory) FactorySlots {
	entry := &factoryEntry{factory: f}
	entry.name = b.factoryNameOf(f)

	h := b.factories.put(entry)
	if h == 0 {
		b.fault(StageRegister, entry.name, "handle table full")
		return FactorySlots{}
	}
	b.factoriesRegistered.Add(1)
	if glog.V(logging.LevelDebug) {
		glog.Infof("filter factory %s registered, handle %x", entry.name, uintptr(h))
	}
	return FactorySlots{
		State:        h,
		CreateFilter: b.createFilterSlots,
		Name:         b.FactoryName,
		Destroy:      b.DestroyFactory,
	}
}

func (b *Bridge) factoryNameOf(f compaction.FilterFactory) (name string) {
	defer func() {
		if r := recover(); r != nil {
			b.fault(StageName, fmt.Sprintf("%T", f), r)
			name = fmt.Sprintf("%T", f)
		}
	}()
	return f.Name()
}

func (b *Bridge) filterSlots(h Handle) FilterSlots {
	if h == 0 {
		return FilterSlots{}
	}
	return FilterSlots{
		State:   h,
		Filter:  b.Filter,
		Name:    b.FilterName,
		Destroy: b.DestroyFilter,
	}
}

func (b *Bridge) createFilterSlots(factory Handle, ctx Handle) FilterSlots {
	return b.filterSlots(b.CreateFilter(factory, ctx))
}

// Outstanding returns the number of factory and filter handles the engine
// has not destroyed yet.
func (b *Bridge) Outstanding() (factories int, filters int) {
	return b.factories.len(), b.filters.len()
}

// Stats are cumulative. Decisions are added when a filter is destroyed.
type Stats struct {
	FactoriesRegistered uint64
	FactoriesDestroyed  uint64
	FiltersCreated      uint64
	FiltersDestroyed    uint64
	FiltersDegraded     uint64
	InvalidSkips        uint64
	Faults              map[FaultStage]uint64
	Decisions           map[compaction.DecisionKind]uint64
}

func (b *Bridge) Stats() Stats {
	st := Stats{
		FactoriesRegistered: b.factoriesRegistered.Load(),
		FactoriesDestroyed:  b.factoriesDestroyed.Load(),
		FiltersCreated:      b.filtersCreated.Load(),
		FiltersDestroyed:    b.filtersDestroyed.Load(),
		FiltersDegraded:     b.filtersDegraded.Load(),
		InvalidSkips:        b.invalidSkips.Load(),
		Faults:              make(map[FaultStage]uint64, numStages),
		Decisions:           make(map[compaction.DecisionKind]uint64, numDecisionKinds),
	}
	for i, stage := range stages {
		st.Faults[stage] = b.faults[i].Load()
	}
	for _, k := range compaction.DecisionKinds() {
		st.Decisions[k] = b.decisions[k].Load()
	}
	return st
}

var stages = [...]FaultStage{StageCreate, StageFilter, StageName, StageDestroy, StageRegister}

const numStages = len(stages)

func stageIndex(stage FaultStage) int {
	for i, s := range stages {
		if s == stage {
			return i
		}
	}
	return -1
}

func (b *Bridge) fault(stage FaultStage, name string, cause interface{}) {
	if i := stageIndex(stage); i >= 0 {
		b.faults[i].Add(1)
	}
	b.notify(func(o Observer) { o.Fault(stage, name, cause) })
}
