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
	"time"

	"github.com/golang/glog"

	"cfbridge/pkg/compaction"
)

// FaultStage names the trampoline in which a fault was contained.
type FaultStage string

const (
	StageCreate   FaultStage = "create"
	StageFilter   FaultStage = "filter"
	StageName     FaultStage = "name"
	StageDestroy  FaultStage = "destroy"
	StageRegister FaultStage = "register"
)

const numDecisionKinds = int(compaction.DecisionRemoveAndSkipUntil) + 1

// JobSummary describes a filter at the end of its compaction job.
type JobSummary struct {
	Factory string
	Filter  string
	Context compaction.Context

	Keys         uint64
	Decisions    [numDecisionKinds]uint64
	InvalidSkips uint64
	Faults       uint64
	// the filter was replaced by a keep-all filter at creation
	Degraded bool
	Elapsed  time.Duration
}

func (s *JobSummary) Count(kind compaction.DecisionKind) uint64 {
	if kind < 0 || int(kind) >= numDecisionKinds {
		return 0
	}
	return s.Decisions[kind]
}

// Observer is told about filter lifecycles and contained faults. Calls come
// from compaction threads and may be concurrent.
type Observer interface {
	FilterCreated(factory string, filter string, ctx compaction.Context)
	FilterDestroyed(summary *JobSummary)
	Fault(stage FaultStage, name string, cause interface{})
}

type multiObserver []Observer

func (m multiObserver) FilterCreated(factory string, filter string, ctx compaction.Context) {
	for _, o := range m {
		o.FilterCreated(factory, filter, ctx)
	}
}

func (m multiObserver) FilterDestroyed(summary *JobSummary) {
	for _, o := range m {
		o.FilterDestroyed(summary)
	}
}

func (m multiObserver) Fault(stage FaultStage, name string, cause interface{}) {
	for _, o := range m {
		o.Fault(stage, name, cause)
	}
}

// Observers fans calls out to every non-nil observer.
func Observers(obs ...Observer) Observer {
	m := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	if len(m) == 1 {
		return m[0]
	}
	return m
}

func (b *Bridge) notify(fn func(Observer)) {
	if b.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("compaction observer panic: %v", r)
		}
	}()
	fn(b.observer)
}
