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

package etcd

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/golang/glog"
	clientv3 "go.etcd.io/etcd/client/v3"

	"cfbridge/pkg/compaction/filters"
)

// KV is the part of EtcdClient the rule watchers use.
type KV interface {
	GetValue(key string) (string, error)
	Watch(key string, handler IWatchHandler, opts ...clientv3.OpOption) (context.CancelFunc, error)
}

var _ KV = (*EtcdClient)(nil)

// RuleWatcher keeps the rules of a NamespaceFactory in sync with the event
// config stored at KeyCompactionRules, and optionally the target shard of a
// ShardFactory with KeyCompactionShard.
type RuleWatcher struct {
	kv        KV
	namespace *filters.NamespaceFactory
	shard     *filters.ShardFactory
	shardKey  string

	mtx     sync.Mutex
	cancels []context.CancelFunc
	applied uint64
}

func NewRuleWatcher(kv KV, ns *filters.NamespaceFactory) *RuleWatcher {
	return &RuleWatcher{kv: kv, namespace: ns}
}

// WithShard makes the watcher drive sf from the shard key of the node.
func (w *RuleWatcher) WithShard(sf *filters.ShardFactory, zone int, node int) *RuleWatcher {
	w.shard = sf
	w.shardKey = KeyCompactionShard(zone, node)
	return w
}

// Start applies the stored values, then watches for changes.
func (w *RuleWatcher) Start() error {
	if w.namespace != nil {
		if val, err := w.kv.GetValue(KeyCompactionRules()); err == nil {
			w.applyRules(val)
		} else if val != NotFound {
			return err
		}
		cancel, err := w.kv.Watch(KeyCompactionRules(), IWatchHandlerFunc(w.onRules))
		if err != nil {
			return err
		}
		w.addCancel(cancel)
	}
	if w.shard != nil {
		if val, err := w.kv.GetValue(w.shardKey); err == nil {
			w.applyShard(val)
		} else if val != NotFound {
			w.Stop()
			return err
		}
		cancel, err := w.kv.Watch(w.shardKey, IWatchHandlerFunc(w.onShard))
		if err != nil {
			w.Stop()
			return err
		}
		w.addCancel(cancel)
	}
	return nil
}

func (w *RuleWatcher) addCancel(cancel context.CancelFunc) {
	w.mtx.Lock()
	w.cancels = append(w.cancels, cancel)
	w.mtx.Unlock()
}

func (w *RuleWatcher) Stop() {
	w.mtx.Lock()
	cancels := w.cancels
	w.cancels = nil
	w.mtx.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// Applied is the number of values applied so far.
func (w *RuleWatcher) Applied() uint64 {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return w.applied
}

func (w *RuleWatcher) onRules(events ...*clientv3.Event) {
	for _, ev := range events {
		if ev.Type == clientv3.EventTypeDelete {
			glog.Infof("compaction rules deleted")
			w.namespace.SetRules(nil)
			w.count()
			continue
		}
		w.applyRules(string(ev.Kv.Value))
	}
}

func (w *RuleWatcher) applyRules(val string) {
	event, err := filters.ParseEventConfig(val)
	if err != nil {
		glog.Errorf("ignore compaction rules: %s", err)
		return
	}
	w.namespace.SetRules(event)
	glog.Infof("compaction rules applied: %d namespace(s)", len(event.Delete))
	w.count()
}

func (w *RuleWatcher) onShard(events ...*clientv3.Event) {
	for _, ev := range events {
		if ev.Type == clientv3.EventTypeDelete {
			w.applyShard("")
			continue
		}
		w.applyShard(string(ev.Kv.Value))
	}
}

func (w *RuleWatcher) applyShard(val string) {
	val = strings.TrimSpace(val)
	if val == "" {
		w.shard.Disable()
		glog.Infof("shard filter disabled")
		w.count()
		return
	}
	n, err := strconv.ParseInt(val, 10, 32)
	if err != nil || n < 0 || n > 0xFFFF {
		glog.Errorf("ignore compaction shard %q", val)
		return
	}
	w.shard.SetShardNum(int32(n))
	glog.Infof("shard filter drops shard %d", n)
	w.count()
}

func (w *RuleWatcher) count() {
	w.mtx.Lock()
	w.applied++
	w.mtx.Unlock()
}
