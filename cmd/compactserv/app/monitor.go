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
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/go-chi/chi/v5"
	"github.com/golang/glog"

	"cfbridge/pkg/compaction/filters"
	"cfbridge/pkg/errors"
	"cfbridge/pkg/version"
)

const kMaxRulesSize = 1 << 20

// Handler returns the monitoring routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.handleStatsHtml)
	r.Get("/stats", s.handleStats)
	r.Get("/stats/html", s.handleStatsHtml)
	r.Get("/version", version.HttpHandler)
	r.Post("/compact", s.handleCompact)
	r.Post("/rules", s.handlePostRules)
	r.Delete("/rules", s.handleDeleteRules)
	r.Post("/shard/{num}", s.handlePostShard)
	r.Delete("/shard", s.handleDeleteShard)

	r.Get("/debug/config", s.handleDebugConfig)
	r.HandleFunc("/debug/pprof/*", pprof.Index)
	r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	r.HandleFunc("/debug/pprof/profile", pprof.Profile)
	r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	r.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return r
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	st := s.db.Stats()
	fmt.Fprintf(w, "memtable=%d runs=%d entries=%d bytes=%d\n", st.MemtableEntries, st.Runs, st.Entries, st.Bytes)
	fmt.Fprintf(w, "flushes=%d compactions=%d manual=%d errors=%d\n",
		st.Flushes, st.Compactions, st.ManualCompactions, st.BackgroundErrors)
	fmt.Fprintf(w, "filtered=%d removed=%d changed=%d skipped=%d tombstones_dropped=%d\n",
		st.KeysFiltered, st.KeysRemoved, st.KeysChanged, st.KeysSkipped, st.TombstonesDropped)
	s.jobStats.WriteText(w)
}

func (s *Server) handleStatsHtml(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page := s.html
	if v := r.URL.Query().Get("refresh"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page.Refresh = n
		}
	}
	if err := page.Write(w); err != nil {
		glog.Error(err)
	}
}

func (s *Server) handleDebugConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	encoder := toml.NewEncoder(w)
	if err := encoder.Encode(s.cfg); err != nil {
		fmt.Fprintln(w, err)
	}
}

// statusOf maps an engine error onto an HTTP status.
func statusOf(err error) int {
	switch errors.KindOf(err) {
	case errors.KindInvalidArgument, errors.KindNotSupported:
		return http.StatusBadRequest
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindBusy, errors.KindTryAgain:
		return http.StatusConflict
	case errors.KindShutdownInProgress:
		return http.StatusServiceUnavailable
	case errors.KindTimedOut:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func hexParam(r *http.Request, name string) ([]byte, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return b, nil
}

// handleCompact runs a manual compaction of [start, limit). Both bounds are
// optional hex encoded storage keys.
func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	start, err := hexParam(r, "start")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := hexParam(r, "limit")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	glog.Infof("manual compaction requested from %s", r.RemoteAddr)
	if err = s.db.CompactRange(start, limit); err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	st := s.db.Stats()
	fmt.Fprintf(w, "OK runs=%d entries=%d\n", st.Runs, st.Entries)
}

func (s *Server) handlePostRules(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, kMaxRulesSize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	event, err := filters.ParseEventConfig(string(data))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.filters.Namespace.SetRules(event)
	fmt.Fprintf(w, "OK namespaces=%d\n", len(event.Delete))
}

func (s *Server) handleDeleteRules(w http.ResponseWriter, r *http.Request) {
	s.filters.Namespace.SetRules(nil)
	fmt.Fprintln(w, "OK")
}

func (s *Server) handlePostShard(w http.ResponseWriter, r *http.Request) {
	num, err := strconv.ParseUint(chi.URLParam(r, "num"), 10, 16)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.filters.Shard.SetShardNum(int32(num))
	fmt.Fprintf(w, "OK shard=%d\n", num)
}

func (s *Server) handleDeleteShard(w http.ResponseWriter, r *http.Request) {
	s.filters.Shard.Disable()
	fmt.Fprintln(w, "OK")
}
