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
	"sync/atomic"

	"github.com/golang/glog"

	"cfbridge/pkg/compaction"
	"cfbridge/pkg/record"
	"cfbridge/pkg/util"
)

// ShardFactory evicts the records of one shard, typically after the shard
// moved to another node. It only acts on manual compactions unless
// anyCompaction is set.
type ShardFactory struct {
	shardNum      atomic.Int32
	anyCompaction bool
}

func NewShardFactory(anyCompaction bool) *ShardFactory {
	f := &ShardFactory{anyCompaction: anyCompaction}
	f.Disable()
	return f
}

func (f *ShardFactory) SetShardNum(shardNum int32) {
	f.shardNum.Store(shardNum)
}

func (f *ShardFactory) Disable() {
	f.shardNum.Store(-1)
}

// ShardNum returns the shard being evicted, or -1.
func (f *ShardFactory) ShardNum() int32 {
	return f.shardNum.Load()
}

func (f *ShardFactory) Name() string {
	return "ShardFilterFactory"
}

func (f *ShardFactory) CreateFilter(ctx compaction.Context) compaction.Filter {
	expected := f.shardNum.Load()
	if expected < 0 || !(ctx.IsManualCompaction || f.anyCompaction) {
		return compaction.KeepAllFilter{}
	}
	glog.Infof("evicting shard %d (%s)", expected, ctx)
	return &shardFilter{shardNum: uint16(expected)}
}

type shardFilter struct {
	shardNum uint16
}

func (s *shardFilter) Name() string {
	return "ShardFilter"
}

func (s *shardFilter) Filter(level int, key []byte, valueType compaction.ValueType, value []byte) compaction.Decision {
	actual, ok := record.ShardIdOf(key)
	if !ok || actual != s.shardNum {
		return compaction.Keep()
	}
	if end := util.PrefixSuccessor(key[:2]); end != nil {
		return compaction.RemoveAndSkipUntil(end)
	}
	return compaction.Remove()
}
