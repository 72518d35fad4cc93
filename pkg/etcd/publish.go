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
	"bytes"
	"fmt"
	"strconv"

	"cfbridge/pkg/compaction/filters"
)

// Publisher is the write side of EtcdClient used to distribute compaction
// rules.
type Publisher interface {
	PutValue(key string, val string, params ...int) error
	DeleteKey(key string) error
}

var _ Publisher = (*EtcdClient)(nil)

// PublishRules validates event and stores it where every RuleWatcher of the
// cluster reads it.
func PublishRules(p Publisher, event *filters.EventConfig) error {
	if err := event.Validate(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := filters.EncodeEventConfig(&buf, event); err != nil {
		return err
	}
	return p.PutValue(KeyCompactionRules(), buf.String(), 3, 1)
}

func ClearRules(p Publisher) error {
	return p.DeleteKey(KeyCompactionRules())
}

// PublishShard sets the shard the node zone/node drops on its next manual
// compaction.
func PublishShard(p Publisher, zone int, node int, shard int) error {
	if shard < 0 || shard > 0xFFFF {
		return fmt.Errorf("shard %d out of range", shard)
	}
	return p.PutValue(KeyCompactionShard(zone, node), strconv.Itoa(shard), 3, 1)
}

func ClearShard(p Publisher, zone int, node int) error {
	return p.DeleteKey(KeyCompactionShard(zone, node))
}
