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

package sherlock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/signalfx/golib/v3/datapoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfbridge/pkg/compaction"
	"cfbridge/pkg/compaction/bridge"
	"cfbridge/pkg/engine"
	"cfbridge/pkg/stats"
)

func find(dps []*datapoint.Datapoint, metric string, dim string, value string) *datapoint.Datapoint {
	for _, dp := range dps {
		if dp.Metric == metric && dp.Dimensions[dim] == value {
			return dp
		}
	}
	return nil
}

func testStats() *stats.JobStats {
	js := stats.NewJobStats()
	js.FilterCreated("expiry", "ExpiryFilter", compaction.Context{})
	sum := &bridge.JobSummary{Factory: "expiry", Keys: 5, Elapsed: time.Millisecond}
	sum.Decisions[compaction.DecisionRemove] = 5
	js.FilterDestroyed(sum)
	js.Fault(bridge.StageCreate, "expiry", "boom")
	return js
}

func TestConfig(t *testing.T) {
	c := Config{Enabled: true}
	c.Default()
	assert.Equal(t, uint32(60), c.Resolution)
	assert.Error(t, c.Validate())
	assert.False(t, c.Enabled)

	c = Config{}
	assert.NoError(t, c.Validate())
}

func TestDatapoints(t *testing.T) {
	r, err := NewReporter(Config{Profile: "cfb"}, testStats(), func() engine.Stats {
		return engine.Stats{Runs: 3, Compactions: 7}
	})
	require.NoError(t, err)

	now := time.Now()
	dps := r.Datapoints(now)
	jobs := find(dps, "cfb.cf.filter.jobs", "factory", "expiry")
	require.NotNil(t, jobs)
	assert.Equal(t, "1", jobs.Value.String())
	assert.Equal(t, datapoint.Counter, jobs.MetricType)
	assert.Equal(t, now, jobs.Timestamp)
	assert.Equal(t, hostName, jobs.Dimensions["host"])

	removed := find(dps, "cfb.cf.filter.decisions", "decision", "Remove")
	require.NotNil(t, removed)
	assert.Equal(t, "5", removed.Value.String())

	faults := find(dps, "cfb.cf.bridge.faults", "stage", "create")
	require.NotNil(t, faults)
	assert.Equal(t, "1", faults.Value.String())

	runs := find(dps, "cfb.cf.engine.runs", "host", hostName)
	require.NotNil(t, runs)
	assert.Equal(t, datapoint.Gauge, runs.MetricType)
	assert.Equal(t, "3", runs.Value.String())
}

func TestReporterSends(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v2/datapoint" && r.Header.Get("X-Sf-Token") == "token" {
			requests.Add(1)
		}
		w.Write([]byte(`"OK"`))
	}))
	defer srv.Close()

	r, err := NewReporter(Config{
		Enabled:           true,
		Resolution:        3600,
		AuthToken:         "token",
		DatapointEndpoint: srv.URL + "/v2/datapoint",
	}, testStats(), nil)
	require.NoError(t, err)
	r.Start(context.Background())
	defer r.Stop()

	require.NoError(t, r.Flush())
	assert.Eventually(t, func() bool {
		return requests.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)
}
