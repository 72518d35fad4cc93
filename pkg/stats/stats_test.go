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

package stats

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfbridge/pkg/compaction"
	"cfbridge/pkg/compaction/bridge"
	"cfbridge/pkg/engine"
)

func summary(factory string, keys uint64, removed uint64, ctx compaction.Context) *bridge.JobSummary {
	s := &bridge.JobSummary{
		Factory: factory,
		Filter:  factory + "Filter",
		Context: ctx,
		Keys:    keys,
		Elapsed: time.Millisecond,
	}
	s.Decisions[compaction.DecisionKeep] = keys - removed
	s.Decisions[compaction.DecisionRemove] = removed
	return s
}

func TestJobStatsSnapshot(t *testing.T) {
	s := NewJobStats()
	s.FilterCreated("expiry", "ExpiryFilter", compaction.Context{})
	s.FilterCreated("expiry", "ExpiryFilter", compaction.Context{IsFullCompaction: true})
	s.FilterCreated("namespace", "NamespaceFilter", compaction.Context{})

	s.FilterDestroyed(summary("expiry", 100, 10, compaction.Context{}))
	s.FilterDestroyed(summary("expiry", 300, 0, compaction.Context{IsFullCompaction: true, IsManualCompaction: true}))
	s.Fault(bridge.StageFilter, "expiry", "boom")
	s.Fault(bridge.StageFilter, "expiry", "boom")

	snap := s.Snapshot()
	require.Len(t, snap.Factories, 2)
	exp := snap.Factories[0]
	assert.Equal(t, "expiry", exp.Factory)
	assert.Equal(t, int64(0), exp.Active)
	assert.Equal(t, uint64(2), exp.Jobs)
	assert.Equal(t, uint64(1), exp.FullJobs)
	assert.Equal(t, uint64(1), exp.ManualJobs)
	assert.Equal(t, uint64(400), exp.Keys)
	assert.Equal(t, uint64(10), exp.Decisions[compaction.DecisionRemove])
	assert.InDelta(t, 300, exp.KeysMax, 1)
	assert.InDelta(t, float64(time.Millisecond), float64(exp.ElapsedP99), float64(time.Millisecond)/100)

	ns := snap.Factories[1]
	assert.Equal(t, "namespace", ns.Factory)
	assert.Equal(t, int64(1), ns.Active)
	assert.Equal(t, uint64(0), ns.Jobs)

	assert.Equal(t, uint64(2), snap.All.Jobs)
	assert.Equal(t, int64(1), snap.All.Active)
	assert.Equal(t, uint64(2), snap.Faults[bridge.StageFilter])

	s.Reset()
	snap = s.Snapshot()
	assert.Empty(t, snap.Factories)
	assert.Empty(t, snap.Faults)
}

func TestWriteTextAndHTML(t *testing.T) {
	s := NewJobStats()
	s.FilterCreated("expiry", "ExpiryFilter", compaction.Context{})
	s.FilterDestroyed(summary("expiry", 10, 4, compaction.Context{}))
	s.Fault(bridge.StageCreate, "expiry", "boom")

	var text bytes.Buffer
	s.WriteText(&text)
	lines := strings.Split(strings.TrimSpace(text.String()), "\n")
	assert.True(t, strings.HasSuffix(lines[len(lines)-2], " All"), lines[len(lines)-2])
	assert.Equal(t, "faults: create=1", lines[len(lines)-1])
	assert.Contains(t, text.String(), " expiry\n")

	var page bytes.Buffer
	require.NoError(t, s.WriteHTML(&page))
	html := page.String()
	assert.Contains(t, html, "<title>Compaction Filter Statistics</title>")
	assert.Contains(t, html, "<td>expiry</td>")
	assert.Contains(t, html, "<th>RemoveAndSkipUntil</th>")
	assert.Contains(t, html, "<td>create</td><td>1</td>")
}

func TestObservingEngine(t *testing.T) {
	s := NewJobStats()
	b := bridge.New(engine.ContextAccessor(), bridge.WithObserver(s))
	slots := b.RegisterFactory(compaction.NewFactory("odd", func(compaction.Context) compaction.Filter {
		return compaction.FilterFunc(func(_ int, key []byte, _ compaction.ValueType, _ []byte) compaction.Decision {
			if key[len(key)-1]%2 == 1 {
				return compaction.Remove()
			}
			return compaction.Keep()
		})
	}))

	opts := engine.DefaultOptions()
	opts.DisableAutoCompactions = true
	opts.FilterFactory = &slots
	db, err := engine.Open(opts)
	require.NoError(t, err)
	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, db.Put([]byte(k), nil))
	}
	require.NoError(t, db.CompactRange(nil, nil))

	info := &ServerInfo{StartTime: time.Now(), Dir: "mem", Engine: db.Stats}
	page := &HtmlStats{Title: "compactserv"}
	page.AddSection(info)
	page.AddSection(s)
	var buf bytes.Buffer
	require.NoError(t, page.Write(&buf))
	assert.Contains(t, buf.String(), "Server Info")
	require.NoError(t, db.Close())

	snap := s.Snapshot()
	require.Len(t, snap.Factories, 1)
	assert.Equal(t, "odd", snap.Factories[0].Factory)
	assert.Equal(t, uint64(1), snap.All.ManualJobs)
	assert.Equal(t, uint64(4), snap.All.Keys)
	// a and c
	assert.Equal(t, uint64(2), snap.All.Decisions[compaction.DecisionRemove])
}
