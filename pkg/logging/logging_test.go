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

package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"cfbridge/pkg/compaction"
)

func TestKVBufferForLog(t *testing.T) {
	b := NewKVBufferForLog()
	b.AddFactory("expiry").AddFilter("ExpiryFilter").AddContext(compaction.Context{IsFullCompaction: true})
	b.AddKeyCount(10).AddRemoved(0).AddRemoved(3)
	assert.Equal(t, "factory=expiry,filter=ExpiryFilter,full=true,manual=false,keys=10,rm=3", b.String())
}

func TestKVBuffer(t *testing.T) {
	b := NewKVBuffer()
	b.AddHexKey([]byte{0x01, 0xab}).AddNamespace([]byte("ns1")).AddShardId(7)
	assert.Equal(t, "key=01AB&ns=ns1&shid=7", b.String())
}

func TestAddDecision(t *testing.T) {
	b := NewKVBufferForLog()
	b.AddLevel(2).AddDecision(compaction.RemoveAndSkipUntil([]byte{0x0f}))
	assert.Equal(t, "lvl=2,dec=RemoveAndSkipUntil(0F)", b.String())
}
