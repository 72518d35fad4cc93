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

package util

import (
	"github.com/spaolacci/murmur3"
)

// Murmur3Hash returns the 32-bit murmur3 hash of data with seed 0.
// murmur3.Sum32 walks data with uintptr arithmetic, which aborts race and
// checkptr builds, so the streaming digest is used instead.
func Murmur3Hash(data []byte) uint32 {
	h := murmur3.New32()
	h.Write(data)
	return h.Sum32()
}

// GetPartitionId maps key onto one of numShards shards.
func GetPartitionId(key []byte, numShards uint32) uint16 {
	return uint16(Murmur3Hash(key) % numShards)
}

// GetShardIds returns the shard of key and, when numMicroShards is not zero,
// its micro shard within the shard. The micro shard comes from the high half
// of the hash so that it is independent of the shard.
func GetShardIds(key []byte, numShards uint32, numMicroShards uint32) (shardId uint16, microShardId uint8) {
	h := Murmur3Hash(key)
	shardId = uint16(h % numShards)
	if numMicroShards != 0 {
		microShardId = uint8((h >> 16) % numMicroShards)
	}
	return
}
