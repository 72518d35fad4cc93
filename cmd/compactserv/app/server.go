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

package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"

	"cfbridge/cmd/compactserv/config"
	"cfbridge/pkg/compaction/bridge"
	"cfbridge/pkg/compaction/filters"
	"cfbridge/pkg/engine"
	"cfbridge/pkg/etcd"
	"cfbridge/pkg/logging"
	"cfbridge/pkg/logging/otel"
	"cfbridge/pkg/logging/sherlock"
	"cfbridge/pkg/net/netutil"
	"cfbridge/pkg/stats"
	"cfbridge/pkg/version"
)

// Server is a store whose compactions run the record filters, together with
// its monitoring and rule distribution.
type Server struct {
	cfg       *config.Config
	startTime time.Time

	db       *engine.DB
	filters  *filters.Set
	bridge   *bridge.Bridge
	jobStats *stats.JobStats
	html     stats.HtmlStats

	reporter *sherlock.Reporter
	etcdCli  *etcd.EtcdClient
	rules    *etcd.RuleWatcher

	listener   net.Listener
	httpServer *http.Server

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewServer opens the store. The filter chain is registered with the
// bridge before the engine takes it over; closing the engine destroys the
// registration.
func NewServer(cfg *config.Config) (s *Server, err error) {
	s = &Server{
		cfg:       cfg,
		startTime: time.Now(),
		jobStats:  stats.NewJobStats(),
	}
	if s.filters, err = filters.NewSet(&cfg.Filters); err != nil {
		return nil, err
	}

	observers := []bridge.Option{bridge.WithObserver(s.jobStats)}
	if cfg.OTEL.Enabled {
		provider, e := otel.InitMetricProvider(&cfg.OTEL)
		if e != nil {
			return nil, e
		}
		obs, e := otel.NewObserver(provider)
		if e != nil {
			return nil, e
		}
		observers = append(observers, bridge.WithObserver(obs))
	}
	s.bridge = bridge.New(engine.ContextAccessor(), observers...)

	slots := s.bridge.RegisterFactory(s.filters.Factory)
	opts := cfg.EngineOptions()
	opts.FilterFactory = &slots
	if s.db, err = engine.Open(opts); err != nil {
		otel.Shutdown(context.Background())
		return nil, err
	}

	if cfg.OTEL.Enabled {
		if err = otel.RegisterEngineGauges(nil, s.engineGauges); err != nil {
			glog.Warningf("otel engine gauges: %s", err)
		}
	}
	if cfg.Sherlock.Enabled {
		if s.reporter, err = sherlock.NewReporter(cfg.Sherlock, s.jobStats, s.db.Stats); err != nil {
			s.db.Close()
			return nil, err
		}
	}

	s.html = stats.HtmlStats{
		Title:    "Compaction Server Statistics",
		Version:  version.OnelineVersionString(),
		Database: cfg.DB.Dir,
	}
	s.html.AddSection(&stats.ServerInfo{StartTime: s.startTime, Dir: cfg.DB.Dir, Engine: s.db.Stats})
	s.html.AddSection(s.jobStats)
	return s, nil
}

func (s *Server) engineGauges() otel.EngineGauges {
	st := s.db.Stats()
	return otel.EngineGauges{
		Runs:              int64(st.Runs),
		Entries:           int64(st.Entries),
		Bytes:             st.Bytes,
		Compactions:       int64(st.Compactions),
		TombstonesDropped: int64(st.TombstonesDropped),
	}
}

// Start serves the monitoring page and starts the background loops.
func (s *Server) Start(ctx context.Context) (err error) {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.cfg.EtcdEnabled {
		if s.etcdCli, err = etcd.NewEtcdClient(&s.cfg.Etcd, s.cfg.ClusterName); err != nil {
			return fmt.Errorf("etcd: %w", err)
		}
		s.rules = etcd.NewRuleWatcher(s.etcdCli, s.filters.Namespace).
			WithShard(s.filters.Shard, s.cfg.ZoneId, s.cfg.NodeId)
		if err = s.rules.Start(); err != nil {
			return fmt.Errorf("etcd rule watcher: %w", err)
		}
	}

	if len(s.cfg.HttpMonAddr) != 0 {
		if s.listener, err = netutil.Listen(s.cfg.HttpMonAddr, s.cfg.MaxMonConnections); err != nil {
			return fmt.Errorf("fail to listen on %s: %w", s.cfg.HttpMonAddr, err)
		}
		s.httpServer = &http.Server{
			Handler:           s.Handler(),
			ReadHeaderTimeout: time.Second,
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			glog.Infof("to serve HTTP on %s", s.listener.Addr())
			if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				glog.Warningf("fail to serve HTTP on %s, err: %s", s.listener.Addr(), err)
			}
		}()
	}

	if d := s.cfg.CompactionInterval.Duration; d > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.compactionLoop(ctx, d)
		}()
	}
	if d := s.cfg.StatsLogInterval.Duration; d > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.statsLogLoop(ctx, d)
		}()
	}
	if s.reporter != nil {
		s.reporter.Start(ctx)
	}
	return nil
}

// Addr is the address the monitoring page is served on, or "" if none.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// DB returns the store.
func (s *Server) DB() *engine.DB {
	return s.db
}

// compactionLoop runs a manual compaction of the whole store every d.
func (s *Server) compactionLoop(ctx context.Context, d time.Duration) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			if err := s.db.CompactRange(nil, nil); err != nil {
				glog.Errorf("periodic compaction: %s", err)
				continue
			}
			glog.Infof("periodic compaction done: %s",
				logging.NewKVBufferForLog().AddElapsed(time.Since(start)).String())
		}
	}
}

func (s *Server) statsLogLoop(ctx context.Context, d time.Duration) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.db.Stats()
			all := s.jobStats.Snapshot().All
			glog.Infof("runs=%d,entries=%d,bytes=%d,compactions=%d,jobs=%d,removed=%d,changed=%d,skipped=%d,degraded=%d",
				st.Runs, st.Entries, st.Bytes, st.Compactions, all.Jobs, st.KeysRemoved, st.KeysChanged,
				st.KeysSkipped, all.Degraded)
		}
	}
}

// Stop shuts the monitoring page and the background loops down, then closes
// the store.
func (s *Server) Stop() (err error) {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownWaitTime.Duration)
			if e := s.httpServer.Shutdown(ctx); e != nil {
				glog.Warningf("monitor shutdown: %s", e)
			}
			cancel()
		}
		if s.rules != nil {
			s.rules.Stop()
		}
		if s.etcdCli != nil {
			s.etcdCli.Close()
		}
		if s.reporter != nil {
			if e := s.reporter.Flush(); e != nil {
				glog.Warningf("sherlock: %s", e)
			}
			s.reporter.Stop()
		}
		s.wg.Wait()

		err = s.db.Close()
		if factories, filters := s.bridge.Outstanding(); factories+filters != 0 {
			glog.Errorf("outstanding handles after close: factories=%d,filters=%d", factories, filters)
		}
		if e := otel.Shutdown(context.Background()); e != nil {
			glog.Warningf("otel shutdown: %s", e)
		}
	})
	return
}
