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

package compaction

import (
	"strings"

	"github.com/golang/glog"
)

type (
	chainFactory struct {
		name      string
		factories []FilterFactory
	}
	chainFilter struct {
		name    string
		filters []Filter
	}
)

// Chain composes several factories into one. The Filter it creates asks
// each sub-filter in turn: a removal ends the walk, and a changed value is
// what the next sub-filter sees. An empty name is replaced by the joined
// names of the factories.
func Chain(name string, factories ...FilterFactory) FilterFactory {
	if len(name) == 0 {
		names := make([]string, 0, len(factories))
		for _, f := range factories {
			names = append(names, f.Name())
		}
		name = "Chain(" + strings.Join(names, ",") + ")"
	}
	return &chainFactory{name: name, factories: factories}
}

// createSubFilter contains a panic of one sub-factory so that the rest of
// the chain still runs.
func createSubFilter(f FilterFactory, ctx Context) (filter Filter) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("chain: factory %s panicked creating a filter: %v", f.Name(), r)
			filter = nil
		}
	}()
	return f.CreateFilter(ctx)
}

func (c *chainFactory) CreateFilter(ctx Context) Filter {
	filters := make([]Filter, 0, len(c.factories))
	for _, f := range c.factories {
		filter := createSubFilter(f, ctx)
		if filter == nil {
			continue
		}
		if _, keepAll := filter.(KeepAllFilter); keepAll {
			continue
		}
		filters = append(filters, filter)
	}
	return &chainFilter{name: c.name, filters: filters}
}

func (c *chainFactory) Name() string {
	return c.name
}

func (c *chainFilter) Filter(level int, key []byte, valueType ValueType, existingValue []byte) Decision {
	value := existingValue
	changed := false
	for _, f := range c.filters {
		d := f.Filter(level, key, valueType, value)
		switch d.Kind {
		case DecisionRemove, DecisionRemoveAndSkipUntil:
			return d
		case DecisionChangeValue:
			value = d.NewValue
			changed = true
		}
	}
	if changed {
		return ChangeValue(value)
	}
	return Keep()
}

func (c *chainFilter) Name() string {
	return c.name
}

func (c *chainFilter) Close() {
	for _, f := range c.filters {
		if closer, ok := f.(FilterCloser); ok {
			closer.Close()
		}
	}
}
