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
	"fmt"
)

const (
	TagCompDelimiter = "_"
	// TOML namespace-delete event applied to every node
	TagCompactionRules = "compaction.rules"
	// shard whose keys a node drops, per node
	TagCompactionShard = "compaction.shard"
)

func Key(Prefix string, list ...int) string {
	var key string = Prefix
	if len(list) == 0 {
		return key
	}

	if len(list) >= 1 {
		key = fmt.Sprintf("%s%s%02d", key, TagCompDelimiter, list[0])
	}
	if len(list) >= 2 {
		key = fmt.Sprintf("%s%s%03d", key, TagCompDelimiter, list[1])
	}
	for i := 2; i < len(list); i++ {
		key = fmt.Sprintf("%s%s%05d", key, TagCompDelimiter, list[i])
	}

	return key
}

func KeyCompactionRules() string {
	return TagCompactionRules
}

func KeyCompactionShard(zone int, node int) string {
	return Key(TagCompactionShard, zone, node)
}
