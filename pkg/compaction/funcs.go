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

const keepAllFilterName = "KeepAllFilter"

// KeepAllFilter keeps every key. It stands in for a filter that could not be
// created.
type KeepAllFilter struct{}

func (KeepAllFilter) Filter(int, []byte, ValueType, []byte) Decision {
	return Keep()
}

func (KeepAllFilter) Name() string {
	return keepAllFilterName
}

// FilterFunc adapts a function to the Filter interface.
type FilterFunc func(level int, key []byte, valueType ValueType, existingValue []byte) Decision

func (f FilterFunc) Filter(level int, key []byte, valueType ValueType, existingValue []byte) Decision {
	return f(level, key, valueType, existingValue)
}

func (f FilterFunc) Name() string {
	return "FilterFunc"
}

type namedFilter struct {
	inner Filter
	name  string
}

func (f *namedFilter) Filter(level int, key []byte, valueType ValueType, existingValue []byte) Decision {
	return f.inner.Filter(level, key, valueType, existingValue)
}

func (f *namedFilter) Name() string {
	return f.name
}

func (f *namedFilter) Close() {
	if c, ok := f.inner.(FilterCloser); ok {
		c.Close()
	}
}

// NamedFilter overrides the name of a Filter.
func NamedFilter(name string, f Filter) Filter {
	return &namedFilter{inner: f, name: name}
}

type funcFactory struct {
	name   string
	create func(Context) Filter
}

// NewFactory returns a FilterFactory calling create for every job.
func NewFactory(name string, create func(ctx Context) Filter) FilterFactory {
	return &funcFactory{name: name, create: create}
}

func (f *funcFactory) CreateFilter(ctx Context) Filter {
	return f.create(ctx)
}

func (f *funcFactory) Name() string {
	return f.name
}
