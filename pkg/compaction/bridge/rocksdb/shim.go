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

//go:build rocksdb

package rocksdb

/*
#cgo LDFLAGS: -lrocksdb
#include <stdint.h>
#include <stdlib.h>
#include "rocksdb/c.h"

extern void cfbridgeFactoryDestroy(uintptr_t state);
extern uintptr_t cfbridgeFactoryCreateFilter(uintptr_t state, uintptr_t ctx);
extern char* cfbridgeFactoryName(uintptr_t state);
extern void cfbridgeFilterDestroy(uintptr_t state);
extern unsigned char cfbridgeFilterFilter(uintptr_t state, int level,
	char* key, size_t key_length, char* existing_value, size_t value_length,
	char** new_value, size_t* new_value_length, unsigned char* value_changed);
extern char* cfbridgeFilterName(uintptr_t state);

static void cfbridge_filter_destructor(void* state) {
	cfbridgeFilterDestroy((uintptr_t)state);
}

static unsigned char cfbridge_filter_filter(void* state, int level,
	const char* key, size_t key_length, const char* existing_value, size_t value_length,
	char** new_value, size_t* new_value_length, unsigned char* value_changed) {
	return cfbridgeFilterFilter((uintptr_t)state, level, (char*)key, key_length,
		(char*)existing_value, value_length, new_value, new_value_length, value_changed);
}

static const char* cfbridge_filter_name(void* state) {
	return cfbridgeFilterName((uintptr_t)state);
}

static void cfbridge_factory_destructor(void* state) {
	cfbridgeFactoryDestroy((uintptr_t)state);
}

static rocksdb_compactionfilter_t* cfbridge_factory_create_filter(void* state,
	rocksdb_compactionfiltercontext_t* context) {
	uintptr_t h = cfbridgeFactoryCreateFilter((uintptr_t)state, (uintptr_t)context);
	if (h == 0) {
		return NULL;
	}
	return rocksdb_compactionfilter_create((void*)h, cfbridge_filter_destructor,
		cfbridge_filter_filter, cfbridge_filter_name);
}

static const char* cfbridge_factory_name(void* state) {
	return cfbridgeFactoryName((uintptr_t)state);
}

static rocksdb_compactionfilterfactory_t* cfbridge_new_factory(uintptr_t h) {
	return rocksdb_compactionfilterfactory_create((void*)h, cfbridge_factory_destructor,
		cfbridge_factory_create_filter, cfbridge_factory_name);
}

static unsigned char cfbridge_is_full_compaction(uintptr_t context) {
	return rocksdb_compactionfiltercontext_is_full_compaction((rocksdb_compactionfiltercontext_t*)context);
}

static unsigned char cfbridge_is_manual_compaction(uintptr_t context) {
	return rocksdb_compactionfiltercontext_is_manual_compaction((rocksdb_compactionfiltercontext_t*)context);
}
*/
import "C"

import (
	"sync"

	"cfbridge/pkg/compaction/bridge"
)

// contextAccessor reads a rocksdb_compactionfiltercontext_t, which is only
// valid while the factory creates a filter.
type contextAccessor struct{}

func (contextAccessor) IsFullCompaction(h bridge.Handle) bool {
	return C.cfbridge_is_full_compaction(C.uintptr_t(h)) != 0
}

func (contextAccessor) IsManualCompaction(h bridge.Handle) bool {
	return C.cfbridge_is_manual_compaction(C.uintptr_t(h)) != 0
}

var (
	bridgeOnce sync.Once
	theBridge  *bridge.Bridge
)

// Setup creates the bridge every store of the process registers its
// factories with. Options are only applied by the first call.
func Setup(opts ...bridge.Option) *bridge.Bridge {
	bridgeOnce.Do(func() {
		theBridge = bridge.New(contextAccessor{}, opts...)
	})
	return theBridge
}

func newFactory(h bridge.Handle) *C.rocksdb_compactionfilterfactory_t {
	return C.cfbridge_new_factory(C.uintptr_t(h))
}
