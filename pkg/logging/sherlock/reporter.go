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

// Package sherlock pushes compaction filter statistics to SignalFx.
package sherlock

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/signalfx/golib/v3/datapoint"
	"github.com/signalfx/golib/v3/sfxclient"

	"cfbridge/pkg/compaction"
	"cfbridge/pkg/engine"
	"cfbridge/pkg/stats"
)

var hostName, _ = os.Hostname()

// Reporter sends a snapshot of the filter statistics, and of the engine if
// one is given, every Resolution seconds.
type Reporter struct {
	conf   Config
	stats  *stats.JobStats
	engine func() engine.Stats

	client *sfxClient
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func NewReporter(conf Config, js *stats.JobStats, eng func() engine.Stats) (*Reporter, error) {
	conf.Default()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	conf.Dump()
	return &Reporter{conf: conf, stats: js, engine: eng}, nil
}

func (r *Reporter) name(metric string) string {
	if r.conf.Profile == "" {
		return metric
	}
	return r.conf.Profile + "." + metric
}

func dims(extra ...string) map[string]string {
	d := map[string]string{"host": hostName}
	for i := 0; i+1 < len(extra); i += 2 {
		d[extra[i]] = extra[i+1]
	}
	return d
}

// Datapoints converts the current statistics.
func (r *Reporter) Datapoints(now time.Time) []*datapoint.Datapoint {
	var dps []*datapoint.Datapoint
	snap := r.stats.Snapshot()
	for _, st := range append(snap.Factories, snap.All) {
		d := dims("factory", st.Factory)
		dps = append(dps,
			sfxclient.Cumulative(r.name("cf.filter.jobs"), d, int64(st.Jobs)),
			sfxclient.Cumulative(r.name("cf.filter.degraded"), d, int64(st.Degraded)),
			sfxclient.Cumulative(r.name("cf.filter.faults"), d, int64(st.Faults)),
			sfxclient.Gauge(r.name("cf.filter.active"), d, st.Active),
			sfxclient.Gauge(r.name("cf.job.keys.p99"), d, st.KeysP99),
			sfxclient.Gauge(r.name("cf.job.time.p99"), d, st.ElapsedP99.Milliseconds()),
		)
		for _, kind := range compaction.DecisionKinds() {
			dps = append(dps, sfxclient.Cumulative(r.name("cf.filter.decisions"),
				dims("factory", st.Factory, "decision", kind.String()), int64(st.Decisions[kind])))
		}
	}
	for stage, n := range snap.Faults {
		dps = append(dps, sfxclient.Cumulative(r.name("cf.bridge.faults"), dims("stage", string(stage)), int64(n)))
	}
	if r.engine != nil {
		st := r.engine()
		d := dims()
		dps = append(dps,
			sfxclient.Gauge(r.name("cf.engine.runs"), d, int64(st.Runs)),
			sfxclient.Gauge(r.name("cf.engine.entries"), d, int64(st.Entries)),
			sfxclient.Gauge(r.name("cf.engine.bytes"), d, st.Bytes),
			sfxclient.Cumulative(r.name("cf.engine.compactions"), d, int64(st.Compactions)),
			sfxclient.Cumulative(r.name("cf.engine.keys.removed"), d, int64(st.KeysRemoved)),
			sfxclient.Cumulative(r.name("cf.engine.errors"), d, int64(st.BackgroundErrors)),
		)
	}
	for _, dp := range dps {
		dp.Timestamp = now
	}
	return dps
}

// Start reports until ctx is done or Stop is called.
func (r *Reporter) Start(ctx context.Context) {
	if !r.conf.Enabled {
		return
	}
	r.client = newSfxClient(&r.conf)
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(time.Duration(r.conf.Resolution) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if err := r.client.SendMetric(r.Datapoints(now)); err != nil {
					glog.Warningf("sherlock: %s", err)
				}
			}
		}
	}()
}

// Flush sends the current statistics right away.
func (r *Reporter) Flush() error {
	if r.client == nil {
		return nil
	}
	return r.client.SendMetric(r.Datapoints(time.Now()))
}

func (r *Reporter) Stop() {
	r.once.Do(func() {
		if r.cancel == nil {
			return
		}
		r.cancel()
		<-r.done
		r.client.Stop()
	})
}
