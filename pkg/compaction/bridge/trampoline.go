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
	"bytes"
	"fmt"
	"time"

	"github.com/golang/glog"

	"cfbridge/pkg/compaction"
	"cfbridge/pkg/logging"
)

// The methods below are the trampolines an engine binding calls with the
// handles it holds. They never panic.

// CreateFilter creates the filter for one compaction job. ctx is the
// engine's context handle, read through the Bridge's ContextAccessor. A
// factory fault yields a keep-all filter. The zero Handle is returned only
// if no handle is available, in which case the job runs without a filter.
func (b *Bridge) CreateFilter(factory Handle, ctx Handle) Handle {
	cctx := TranslateContext(b.accessor, ctx)
	entry := &filterEntry{started: time.Now()}
	entry.summary.Context = cctx

	fe, ok := b.factories.get(factory)
	if !ok {
		b.fault(StageCreate, "", fmt.Sprintf("unknown factory handle %x", uintptr(factory)))
		entry.summary.Degraded = true
	} else {
		entry.summary.Factory = fe.name
		entry.filter, entry.summary.Filter = b.newFilter(fe, cctx)
		entry.summary.Degraded = entry.filter == nil
	}
	if entry.filter == nil {
		entry.filter = compaction.KeepAllFilter{}
		entry.summary.Filter = entry.filter.Name()
	}

	h := b.filters.put(entry)
	if h == 0 {
		b.fault(StageCreate, entry.summary.Factory, "handle table full")
		closeFilter(entry.filter)
		return 0
	}
	b.filtersCreated.Add(1)
	if entry.summary.Degraded {
		b.filtersDegraded.Add(1)
	}
	if glog.V(logging.LevelDebug) {
		glog.Infof("compaction filter created: %s", logging.NewKVBufferForLog().AddFactory(
			entry.summary.Factory).AddFilter(entry.summary.Filter).AddContext(cctx).String())
	}
	b.notify(func(o Observer) { o.FilterCreated(entry.summary.Factory, entry.summary.Filter, cctx) })
	return h
}

// newFilter runs the factory. It returns a nil filter on a fault.
func (b *Bridge) newFilter(fe *factoryEntry, ctx compaction.Context) (f compaction.Filter, name string) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("filter factory %s failed to create a filter (%s): %v", fe.name, ctx, r)
			b.fault(StageCreate, fe.name, r)
			if f != nil {
				closeFilter(f)
			}
			f, name = nil, ""
		}
	}()
	f = fe.factory.CreateFilter(ctx)
	if f == nil {
		glog.Warningf("filter factory %s returned no filter (%s)", fe.name, ctx)
		b.fault(StageCreate, fe.name, "nil filter")
		return nil, ""
	}
	return f, f.Name()
}

// Filter asks the job's filter about one key and reports the verdict in the
// engine's terms. out is overwritten. A skip target that does not sort
// after key, a fault or an unknown handle keeps the key.
func (b *Bridge) Filter(h Handle, level int, key []byte, valueType compaction.ValueType, existingValue []byte, out *FilterOutput) FilterCode {
	*out = FilterOutput{}
	entry, ok := b.filters.get(h)
	if !ok {
		b.fault(StageFilter, "", fmt.Sprintf("unknown filter handle %x", uintptr(h)))
		return CodeKeep
	}
	s := &entry.summary
	s.Keys++

	d, ok := b.decide(entry, level, key, valueType, existingValue)
	if !ok {
		s.Decisions[compaction.DecisionKeep]++
		return CodeKeep
	}

	switch d.Kind {
	case compaction.DecisionKeep:
	case compaction.DecisionRemove:
	case compaction.DecisionChangeValue:
		out.NewValue = d.NewValue
		if out.NewValue == nil {
			out.NewValue = []byte{}
		}
	case compaction.DecisionRemoveAndSkipUntil:
		if bytes.Compare(d.SkipUntil, key) <= 0 {
			s.InvalidSkips++
			if glog.V(logging.LevelDebug) {
				glog.Infof("%s: skip target %X does not follow key %X, key kept", s.Filter, d.SkipUntil, key)
			}
			d = compaction.Keep()
			break
		}
		out.SkipUntil = d.SkipUntil
	default:
		s.Faults++
		b.fault(StageFilter, s.Filter, fmt.Sprintf("unknown decision %s", d.Kind))
		d = compaction.Keep()
	}
	s.Decisions[d.Kind]++
	if glog.V(logging.LevelVerbose) {
		glog.Infof("filter %s", logging.NewKVBufferForLog().AddFilter(s.Filter).AddLevel(level).AddHexKey(key).AddDecision(d).String())
	}
	return FilterCode(d.Kind)
}

func (b *Bridge) decide(entry *filterEntry, level int, key []byte, valueType compaction.ValueType, existingValue []byte) (d compaction.Decision, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s := &entry.summary
			s.Faults++
			// one error line per job; the rest only when debugging
			if s.Faults == 1 {
				glog.Errorf("compaction filter %s failed on key %X, key kept: %v", s.Filter, key, r)
			} else if glog.V(logging.LevelDebug) {
				glog.Infof("compaction filter %s failed on key %X, key kept: %v", s.Filter, key, r)
			}
			b.fault(StageFilter, s.Filter, r)
			d, ok = compaction.Keep(), false
		}
	}()
	return entry.filter.Filter(level, key, valueType, existingValue), true
}

// FilterName returns the name of the job's filter, fixed at creation. It is
// empty for an unknown handle.
func (b *Bridge) FilterName(h Handle) string {
	entry, ok := b.filters.get(h)
	if !ok {
		b.fault(StageName, "", fmt.Sprintf("unknown filter handle %x", uintptr(h)))
		return ""
	}
	return entry.summary.Filter
}

// DestroyFilter ends the job of h. Only the first call for a handle has an
// effect.
func (b *Bridge) DestroyFilter(h Handle) {
	entry, ok := b.filters.take(h)
	if !ok {
		b.fault(StageDestroy, "", fmt.Sprintf("unknown filter handle %x", uintptr(h)))
		return
	}
	s := &entry.summary
	s.Elapsed = time.Since(entry.started)
	if !closeFilter(entry.filter) {
		s.Faults++
		b.fault(StageDestroy, s.Filter, "close panicked")
	}

	b.filtersDestroyed.Add(1)
	b.invalidSkips.Add(s.InvalidSkips)
	for i := range s.Decisions {
		b.decisions[i].Add(s.Decisions[i])
	}
	if glog.V(logging.LevelDebug) {
		glog.Infof("compaction filter destroyed: %s", logging.NewKVBufferForLog().AddFactory(s.Factory).AddFilter(
			s.Filter).AddContext(s.Context).AddKeyCount(s.Keys).AddRemoved(
			s.Count(compaction.DecisionRemove)).AddChanged(s.Count(compaction.DecisionChangeValue)).AddSkipped(
			s.Count(compaction.DecisionRemoveAndSkipUntil)).AddElapsed(s.Elapsed).String())
	}
	b.notify(func(o Observer) { o.FilterDestroyed(s) })
}

// FactoryName returns the name of the registered factory, or an empty
// string for an unknown handle.
func (b *Bridge) FactoryName(h Handle) string {
	fe, ok := b.factories.get(h)
	if !ok {
		b.fault(StageName, "", fmt.Sprintf("unknown factory handle %x", uintptr(h)))
		return ""
	}
	return fe.name
}

// DestroyFactory releases a registration. Filters already created from it
// stay valid until they are destroyed.
func (b *Bridge) DestroyFactory(h Handle) {
	fe, ok := b.factories.take(h)
	if !ok {
		b.fault(StageDestroy, "", fmt.Sprintf("unknown factory handle %x", uintptr(h)))
		return
	}
	b.factoriesDestroyed.Add(1)
	if glog.V(logging.LevelDebug) {
		glog.Infof("filter factory %s released", fe.name)
	}
}

// closeFilter reports false if Close panicked.
func closeFilter(f compaction.Filter) (ok bool) {
	c, isCloser := f.(compaction.FilterCloser)
	if !isCloser {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("closing compaction filter %T: %v", f, r)
			ok = false
		}
	}()
	c.Close()
	return true
}
