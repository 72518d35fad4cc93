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
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfbridge/pkg/compaction"
)

type recordingFilter struct {
	name     string
	ctx      compaction.Context
	keys     [][]byte
	inFlight int32
	overlap  bool
	closed   *atomic.Int32
	decide   func(key []byte, value []byte) compaction.Decision
}

func (f *recordingFilter) Filter(level int, key []byte, vt compaction.ValueType, value []byte) compaction.Decision {
	if !atomic.CompareAndSwapInt32(&f.inFlight, 0, 1) {
		f.overlap = true
	}
	defer atomic.StoreInt32(&f.inFlight, 0)
	f.keys = append(f.keys, append([]byte(nil), key...))
	if f.decide != nil {
		return f.decide(key, value)
	}
	return compaction.Keep()
}

func (f *recordingFilter) Name() string {
	return f.name
}

func (f *recordingFilter) Close() {
	if f.closed != nil {
		f.closed.Add(1)
	}
}

type recordingFactory struct {
	mu      sync.Mutex
	created []*recordingFilter
	closed  atomic.Int32
	decide  func(key []byte, value []byte) compaction.Decision
}

func (f *recordingFactory) CreateFilter(ctx compaction.Context) compaction.Filter {
	flt := &recordingFilter{name: "recording", ctx: ctx, closed: &f.closed, decide: f.decide}
	f.mu.Lock()
	f.created = append(f.created, flt)
	f.mu.Unlock()
	return flt
}

func (f *recordingFactory) Name() string {
	return "RecordingFactory"
}

// runJob drives one compaction job the way an engine does and returns the
// codes it received for the keys it presented. Keys covered by a skip are
// not presented and get no code.
func runJob(slots FactorySlots, ctx Handle, keys [][]byte, values [][]byte) (codes []FilterCode, outputs []FilterOutput) {
	fs := slots.CreateFilter(slots.State, ctx)
	if !fs.Valid() {
		return nil, nil
	}
	defer fs.Destroy(fs.State)

	var skipUntil []byte
	for i, key := range keys {
		if skipUntil != nil && bytes.Compare(key, skipUntil) < 0 {
			continue
		}
		skipUntil = nil
		var value []byte
		if values != nil {
			value = values[i]
		}
		var out FilterOutput
		code := fs.Filter(fs.State, 1, key, compaction.ValueTypeValue, value, &out)
		if code == CodeRemoveAndSkipUntil {
			skipUntil = out.SkipUntil
		}
		codes = append(codes, code)
		outputs = append(outputs, out)
	}
	return
}

func keysOf(n int) [][]byte {
	keys := make([][]byte, n)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("key%05d", i))
	}
	return keys
}

func TestRegisterFactory(t *testing.T) {
	b := New(newTestEngine())
	slots := b.RegisterFactory(&recordingFactory{})
	require.True(t, slots.Valid())

	assert.Equal(t, "RecordingFactory", slots.Name(slots.State))
	assert.Equal(t, "RecordingFactory", slots.Name(slots.State), "name must be stable")

	factories, filters := b.Outstanding()
	assert.Equal(t, 1, factories)
	assert.Equal(t, 0, filters)

	slots.Destroy(slots.State)
	factories, _ = b.Outstanding()
	assert.Equal(t, 0, factories)
	assert.Equal(t, "", b.FactoryName(slots.State))
}

func TestFactoryAndFilterHandlesDiffer(t *testing.T) {
	b := New(newTestEngine())
	factory := &recordingFactory{}
	slots := b.RegisterFactory(factory)
	defer slots.Destroy(slots.State)

	fs := slots.CreateFilter(slots.State, 0)
	require.True(t, fs.Valid())
	assert.NotEqual(t, slots.State, fs.State)

	// neither handle resolves in the other table
	assert.Equal(t, "", b.FilterName(slots.State))
	assert.Equal(t, "", b.FactoryName(fs.State))

	// destroying the filter leaves the factory intact
	fs.Destroy(fs.State)
	assert.Equal(t, "RecordingFactory", slots.Name(slots.State))
	factories, filters := b.Outstanding()
	assert.Equal(t, 1, factories)
	assert.Equal(t, 0, filters)
}

func TestCreateFilterReceivesContext(t *testing.T) {
	eng := newTestEngine()
	b := New(eng)
	factory := &recordingFactory{}
	slots := b.RegisterFactory(factory)
	defer slots.Destroy(slots.State)

	runJob(slots, eng.newContext(true, false), keysOf(1), nil)
	runJob(slots, eng.newContext(false, true), keysOf(1), nil)
	runJob(slots, 0, keysOf(1), nil)

	require.Len(t, factory.created, 3)
	assert.Equal(t, compaction.Context{IsFullCompaction: true}, factory.created[0].ctx)
	assert.Equal(t, compaction.Context{IsManualCompaction: true}, factory.created[1].ctx)
	assert.Equal(t, compaction.Context{}, factory.created[2].ctx)
}

func TestFilterSeesKeysInOrder(t *testing.T) {
	eng := newTestEngine()
	b := New(eng)
	factory := &recordingFactory{}
	slots := b.RegisterFactory(factory)
	defer slots.Destroy(slots.State)

	keys := keysOf(100)
	codes, _ := runJob(slots, eng.newContext(false, false), keys, nil)
	assert.Len(t, codes, 100)

	require.Len(t, factory.created, 1)
	assert.Equal(t, keys, factory.created[0].keys)
	assert.EqualValues(t, 1, factory.closed.Load())
}

func TestDecisionsReachEngine(t *testing.T) {
	eng := newTestEngine()
	b := New(eng)
	factory := &recordingFactory{
		decide: func(key []byte, value []byte) compaction.Decision {
			switch string(key) {
			case "b":
				return compaction.Remove()
			case "c":
				return compaction.ChangeValue([]byte("new"))
			case "d":
				return compaction.ChangeValue(nil)
			case "e":
				return compaction.RemoveAndSkipUntil([]byte("g"))
			case "g":
				// target equal to the key
				return compaction.RemoveAndSkipUntil([]byte("g"))
			case "h":
				// target before the key
				return compaction.RemoveAndSkipUntil([]byte("a"))
			}
			return compaction.Keep()
		},
	}
	slots := b.RegisterFactory(factory)
	defer slots.Destroy(slots.State)

	keys := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d"), []byte("e"), []byte("f"), []byte("g"), []byte("h")}
	codes, outs := runJob(slots, eng.newContext(false, false), keys, nil)

	// "f" is skipped
	assert.Equal(t, []FilterCode{CodeKeep, CodeRemove, CodeChangeValue, CodeChangeValue, CodeRemoveAndSkipUntil, CodeKeep, CodeKeep}, codes)
	assert.Equal(t, []byte("new"), outs[2].NewValue)
	assert.NotNil(t, outs[3].NewValue)
	assert.Empty(t, outs[3].NewValue)
	assert.Equal(t, []byte("g"), outs[4].SkipUntil)
	assert.Nil(t, outs[5].SkipUntil)

	st := b.Stats()
	assert.EqualValues(t, 2, st.InvalidSkips)
	assert.EqualValues(t, 3, st.Decisions[compaction.DecisionKeep])
	assert.EqualValues(t, 1, st.Decisions[compaction.DecisionRemove])
	assert.EqualValues(t, 2, st.Decisions[compaction.DecisionChangeValue])
	assert.EqualValues(t, 1, st.Decisions[compaction.DecisionRemoveAndSkipUntil])
}

func TestCreateFaultYieldsKeepAllFilter(t *testing.T) {
	eng := newTestEngine()
	b := New(eng)

	panicking := b.RegisterFactory(compaction.NewFactory("panicking", func(compaction.Context) compaction.Filter {
		panic("out of memory")
	}))
	nilFilter := b.RegisterFactory(compaction.NewFactory("nil", func(compaction.Context) compaction.Filter {
		return nil
	}))
	unknown := FactorySlots{
		State:        makeHandle(1000, 3),
		CreateFilter: panicking.CreateFilter,
		Destroy:      panicking.Destroy,
	}

	for _, slots := range []FactorySlots{panicking, nilFilter, unknown} {
		fs := slots.CreateFilter(slots.State, eng.newContext(true, true))
		require.True(t, fs.Valid())
		assert.Equal(t, "KeepAllFilter", fs.Name(fs.State))

		var out FilterOutput
		assert.Equal(t, CodeKeep, fs.Filter(fs.State, 0, []byte("k"), compaction.ValueTypeValue, []byte("v"), &out))
		fs.Destroy(fs.State)
	}
	panicking.Destroy(panicking.State)
	nilFilter.Destroy(nilFilter.State)

	st := b.Stats()
	assert.EqualValues(t, 3, st.Faults[StageCreate])
	assert.EqualValues(t, 3, st.FiltersCreated)
	assert.EqualValues(t, 3, st.FiltersDegraded)
	factories, filters := b.Outstanding()
	assert.Zero(t, factories)
	assert.Zero(t, filters)
}

type panicNameFilter struct {
	compaction.KeepAllFilter
	closed bool
}

func (f *panicNameFilter) Name() string {
	panic("no name")
}

func (f *panicNameFilter) Close() {
	f.closed = true
}

func TestCreateFaultInFilterNameClosesFilter(t *testing.T) {
	b := New(newTestEngine())
	flt := &panicNameFilter{}
	slots := b.RegisterFactory(compaction.NewFactory("f", func(compaction.Context) compaction.Filter {
		return flt
	}))
	defer slots.Destroy(slots.State)

	fs := slots.CreateFilter(slots.State, 0)
	defer fs.Destroy(fs.State)
	assert.True(t, flt.closed)
	assert.Equal(t, "KeepAllFilter", fs.Name(fs.State))
}

func TestFilterFaultKeepsKey(t *testing.T) {
	eng := newTestEngine()
	b := New(eng)
	factory := &recordingFactory{
		decide: func(key []byte, value []byte) compaction.Decision {
			if string(key) == "key00001" {
				var m map[string]int
				m["boom"]++
			}
			return compaction.Remove()
		},
	}
	slots := b.RegisterFactory(factory)
	defer slots.Destroy(slots.State)

	codes, _ := runJob(slots, eng.newContext(false, false), keysOf(3), nil)
	assert.Equal(t, []FilterCode{CodeRemove, CodeKeep, CodeRemove}, codes)
	assert.EqualValues(t, 1, b.Stats().Faults[StageFilter])
}

func TestFilterUnknownHandle(t *testing.T) {
	b := New(newTestEngine())
	out := FilterOutput{NewValue: []byte("stale")}
	assert.Equal(t, CodeKeep, b.Filter(makeHandle(3, 9), 0, []byte("k"), compaction.ValueTypeValue, nil, &out))
	assert.Nil(t, out.NewValue)
	assert.Equal(t, "", b.FilterName(makeHandle(3, 9)))
}

func TestDestroyExactlyOnce(t *testing.T) {
	eng := newTestEngine()
	b := New(eng)
	factory := &recordingFactory{}
	slots := b.RegisterFactory(factory)

	fs := slots.CreateFilter(slots.State, eng.newContext(false, false))
	_, filters := b.Outstanding()
	assert.Equal(t, 1, filters)

	fs.Destroy(fs.State)
	fs.Destroy(fs.State)
	slots.Destroy(slots.State)
	slots.Destroy(slots.State)

	assert.EqualValues(t, 1, factory.closed.Load())
	st := b.Stats()
	assert.EqualValues(t, 1, st.FiltersDestroyed)
	assert.EqualValues(t, 1, st.FactoriesDestroyed)
	assert.EqualValues(t, 2, st.Faults[StageDestroy])

	factories, filters := b.Outstanding()
	assert.Zero(t, factories)
	assert.Zero(t, filters)
}

func TestFactoryDestroyKeepsLiveFilters(t *testing.T) {
	eng := newTestEngine()
	b := New(eng)
	slots := b.RegisterFactory(&recordingFactory{
		decide: func([]byte, []byte) compaction.Decision { return compaction.Remove() },
	})

	fs := slots.CreateFilter(slots.State, eng.newContext(false, false))
	slots.Destroy(slots.State)

	var out FilterOutput
	assert.Equal(t, CodeRemove, fs.Filter(fs.State, 0, []byte("k"), compaction.ValueTypeValue, nil, &out))
	assert.Equal(t, "recording", fs.Name(fs.State))
	fs.Destroy(fs.State)

	factories, filters := b.Outstanding()
	assert.Zero(t, factories)
	assert.Zero(t, filters)
}

func TestConcurrentJobsAreIsolated(t *testing.T) {
	const (
		jobs        = 16
		keysPerJob  = 500
		removeEvery = 3
	)
	eng := newTestEngine()
	b := New(eng)
	factory := compaction.NewFactory("counting", func(ctx compaction.Context) compaction.Filter {
		seen := 0
		return compaction.FilterFunc(func(level int, key []byte, vt compaction.ValueType, value []byte) compaction.Decision {
			seen++
			if seen%removeEvery == 0 {
				return compaction.Remove()
			}
			return compaction.Keep()
		})
	})
	slots := b.RegisterFactory(factory)

	var wg sync.WaitGroup
	results := make([][]FilterCode, jobs)
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = runJob(slots, eng.newContext(i%2 == 0, false), keysOf(keysPerJob), nil)
		}(i)
	}
	wg.Wait()
	slots.Destroy(slots.State)

	for i, codes := range results {
		require.Len(t, codes, keysPerJob, "job %d", i)
		removed := 0
		for _, c := range codes {
			if c == CodeRemove {
				removed++
			}
		}
		assert.Equal(t, keysPerJob/removeEvery, removed, "job %d", i)
	}

	st := b.Stats()
	assert.EqualValues(t, jobs, st.FiltersCreated)
	assert.EqualValues(t, jobs, st.FiltersDestroyed)
	assert.EqualValues(t, jobs*(keysPerJob/removeEvery), st.Decisions[compaction.DecisionRemove])
	factories, filters := b.Outstanding()
	assert.Zero(t, factories)
	assert.Zero(t, filters)
}

func TestFilterCallsAreNotConcurrent(t *testing.T) {
	eng := newTestEngine()
	b := New(eng)
	factory := &recordingFactory{}
	slots := b.RegisterFactory(factory)
	defer slots.Destroy(slots.State)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runJob(slots, eng.newContext(false, false), keysOf(200), nil)
		}()
	}
	wg.Wait()

	require.Len(t, factory.created, 8)
	for _, f := range factory.created {
		assert.False(t, f.overlap)
		assert.Len(t, f.keys, 200)
	}
}

type recordingObserver struct {
	mu        sync.Mutex
	created   []string
	summaries []JobSummary
	faults    []FaultStage
}

func (o *recordingObserver) FilterCreated(factory string, filter string, ctx compaction.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.created = append(o.created, factory+"/"+filter)
}

func (o *recordingObserver) FilterDestroyed(s *JobSummary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.summaries = append(o.summaries, *s)
}

func (o *recordingObserver) Fault(stage FaultStage, name string, cause interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.faults = append(o.faults, stage)
}

type panickingObserver struct{}

func (panickingObserver) FilterCreated(string, string, compaction.Context) { panic("created") }
func (panickingObserver) FilterDestroyed(*JobSummary) { panic("destroyed") }
func (panickingObserver) Fault(FaultStage, string, interface{}) { panic("fault") }

func TestObserver(t *testing.T) {
	eng := newTestEngine()
	obs := &recordingObserver{}
	b := New(eng, WithObserver(obs))
	slots := b.RegisterFactory(&recordingFactory{
		decide: func(key []byte, _ []byte) compaction.Decision {
			if key[len(key)-1]%2 == 0 {
				return compaction.Remove()
			}
			return compaction.Keep()
		},
	})
	defer slots.Destroy(slots.State)

	runJob(slots, eng.newContext(true, true), keysOf(10), nil)

	require.Equal(t, []string{"RecordingFactory/recording"}, obs.created)
	require.Len(t, obs.summaries, 1)
	s := obs.summaries[0]
	assert.Equal(t, "RecordingFactory", s.Factory)
	assert.Equal(t, "recording", s.Filter)
	assert.Equal(t, compaction.Context{IsFullCompaction: true, IsManualCompaction: true}, s.Context)
	assert.EqualValues(t, 10, s.Keys)
	assert.EqualValues(t, 5, s.Count(compaction.DecisionRemove))
	assert.EqualValues(t, 5, s.Count(compaction.DecisionKeep))
	assert.False(t, s.Degraded)
	assert.Empty(t, obs.faults)
}

func TestObserverFaultsAreContained(t *testing.T) {
	eng := newTestEngine()
	obs := &recordingObserver{}
	b := New(eng, WithObserver(panickingObserver{}), WithObserver(obs))
	slots := b.RegisterFactory(compaction.NewFactory("nil", func(compaction.Context) compaction.Filter { return nil }))

	assert.NotPanics(t, func() {
		runJob(slots, eng.newContext(false, false), keysOf(3), nil)
		slots.Destroy(slots.State)
	})
	factories, filters := b.Outstanding()
	assert.Zero(t, factories)
	assert.Zero(t, filters)
}
