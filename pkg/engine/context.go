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

package engine

import (
	"sync"

	"cfbridge/pkg/compaction"
	"cfbridge/pkg/compaction/bridge"
)

// jobContexts is the engine-wide table of the contexts of running
// compaction jobs. Filter factories see a job's context only through its
// handle.
var jobContexts = &contextTable{contexts: make(map[bridge.Handle]compaction.Context)}

type contextTable struct {
	mu       sync.RWMutex
	next     bridge.Handle
	contexts map[bridge.Handle]compaction.Context
}

// ContextAccessor reads the contexts of the engine's compaction jobs.
func ContextAccessor() bridge.ContextAccessor {
	return jobContexts
}

func (t *contextTable) register(ctx compaction.Context) bridge.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	if t.next == 0 {
		t.next++
	}
	t.contexts[t.next] = ctx
	return t.next
}

func (t *contextTable) release(h bridge.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.contexts, h)
}

func (t *contextTable) lookup(h bridge.Handle) compaction.Context {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.contexts[h]
}

func (t *contextTable) IsFullCompaction(h bridge.Handle) bool {
	return t.lookup(h).IsFullCompaction
}

func (t *contextTable) IsManualCompaction(h bridge.Handle) bool {
	return t.lookup(h).IsManualCompaction
}
