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

package filters

import (
	"bytes"
	"fmt"
	"sync/atomic"

	"github.com/BurntSushi/toml"
	"github.com/golang/glog"

	"cfbridge/pkg/compaction"
	"cfbridge/pkg/logging"
	"cfbridge/pkg/record"
)

const EventTypeNamespaceDelete = "namespace_delete"

// EventConfig lists the namespaces, or key prefixes within a namespace, to
// delete during compaction.
//
//	Type = "namespace_delete"
//	[[Delete]]
//	  Namespace = "ns1"
//	[[Delete]]
//	  Namespace = "ns2"
//	  Prefix = ["tmp_", "cache_"]
type EventConfig struct {
	Type   string
	Delete []NSEntry
}

type NSEntry struct {
	Namespace string
	Prefix    []string
}

type PrefixList [][]byte

func NewEventConfig(file string) (*EventConfig, error) {
	var event EventConfig
	if _, err := toml.DecodeFile(file, &event); err != nil {
		return nil, fmt.Errorf("bad format in %s: %w", file, err)
	}
	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return &event, nil
}

func ParseEventConfig(data string) (*EventConfig, error) {
	var event EventConfig
	if _, err := toml.Decode(data, &event); err != nil {
		return nil, err
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return &event, nil
}

func EncodeEventConfig(buf *bytes.Buffer, event *EventConfig) error {
	return toml.NewEncoder(buf).Encode(*event)
}

func (e *EventConfig) Validate() error {
	if e.Type != "" && e.Type != EventTypeNamespaceDelete {
		return fmt.Errorf("unsupported event type %q", e.Type)
	}
	for _, val := range e.Delete {
		if len(val.Namespace) == 0 {
			return fmt.Errorf("namespace field cannot be empty")
		}
		if len(val.Namespace) > record.MaxNamespaceLength {
			return fmt.Errorf("namespace %.16s... longer than %d bytes", val.Namespace, record.MaxNamespaceLength)
		}
	}
	return nil
}

type nsRules map[string]PrefixList

func newNsRules(event *EventConfig) nsRules {
	nsMap := make(nsRules, 10)
	if event == nil {
		return nsMap
	}

	for _, entry := range event.Delete {
		list, found := nsMap[entry.Namespace]
		if found && len(list) == 0 {
			// whole namespace already
			continue
		}
		if len(entry.Prefix) == 0 {
			nsMap[entry.Namespace] = PrefixList{}
			continue
		}
		for _, prefix := range entry.Prefix {
			list = append(list, []byte(prefix))
		}
		nsMap[entry.Namespace] = list
	}
	return nsMap
}

// NamespaceFactory deletes namespaces and key prefixes named by an
// EventConfig. Each job works on the rules current when its filter was
// created.
type NamespaceFactory struct {
	rules      atomic.Pointer[nsRules]
	matchCount atomic.Uint64
}

func NewNamespaceFactory(event *EventConfig) *NamespaceFactory {
	f := &NamespaceFactory{}
	f.SetRules(event)
	return f
}

// SetRules replaces the rules for jobs started from now on. A nil event
// clears them.
func (f *NamespaceFactory) SetRules(event *EventConfig) {
	rules := newNsRules(event)
	f.rules.Store(&rules)
	glog.Infof("namespace filter rules: %d namespace(s)", len(rules))
}

// Active reports whether any rule is set.
func (f *NamespaceFactory) Active() bool {
	return len(*f.rules.Load()) > 0
}

// MatchCount is the number of keys removed by finished jobs.
func (f *NamespaceFactory) MatchCount() uint64 {
	return f.matchCount.Load()
}

func (f *NamespaceFactory) Name() string {
	return "NamespaceFilterFactory"
}

func (f *NamespaceFactory) CreateFilter(ctx compaction.Context) compaction.Filter {
	return &namespaceFilter{
		factory: f,
		nsMap:   *f.rules.Load(),
	}
}

type namespaceFilter struct {
	factory    *NamespaceFactory
	nsMap      nsRules
	matchCount uint64
}

func (m *namespaceFilter) Name() string {
	return "NamespaceFilter"
}

func (m *namespaceFilter) Filter(level int, key []byte, valueType compaction.ValueType, value []byte) compaction.Decision {
	if len(m.nsMap) == 0 {
		return compaction.Keep()
	}
	ns, userKey, err := record.SplitRecordKey(key)
	if err != nil {
		return compaction.Keep()
	}
	prefixList, found := m.nsMap[string(ns)]
	if !found {
		return compaction.Keep()
	}

	if len(prefixList) == 0 {
		m.match()
		if end := record.NamespaceEnd(key); end != nil {
			return compaction.RemoveAndSkipUntil(end)
		}
		return compaction.Remove()
	}

	for i := range prefixList {
		if bytes.HasPrefix(userKey, prefixList[i]) {
			m.match()
			return compaction.Remove()
		}
	}
	return compaction.Keep()
}

func (m *namespaceFilter) match() {
	m.matchCount++
	if m.matchCount%100000 == 0 {
		glog.Infof("ns_keys=%d", m.matchCount)
	}
}

func (m *namespaceFilter) Close() {
	m.factory.matchCount.Add(m.matchCount)
	if m.matchCount > 0 {
		glog.Infof("namespace filter done: %s", logging.NewKVBufferForLog().AddRemoved(m.matchCount).String())
	}
}
