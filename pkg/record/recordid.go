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

package record

import (
	"bytes"
	"encoding/binary"

	"github.com/golang/glog"

	"cfbridge/pkg/errors"
	"cfbridge/pkg/logging"
	"cfbridge/pkg/util"
)

const (
	MaxNamespaceLength int = 255

	kSzShardId      = 2
	kSzMicroShardId = 1
)

var enableMicroShardId bool = false // default false for backward compatibility

func SetEnableMicroShardId(flag bool) {
	enableMicroShardId = flag
}

func MicroShardIdEnabled() bool {
	return enableMicroShardId
}

func shardPrefixSize() int {
	if enableMicroShardId {
		return kSzShardId + kSzMicroShardId
	}
	return kSzShardId
}

// RecordID is a storage key.
type RecordID []byte

func NewRecordID(shardId uint16, microShardId uint8, namespace []byte, key []byte) RecordID {
	var buf bytes.Buffer
	return NewRecordIDWithBuffer(&buf, shardId, microShardId, namespace, key)
}

func NewRecordIDWithBuffer(buf *bytes.Buffer, shardId uint16, microShardId uint8,
	namespace []byte, key []byte) RecordID {
	szNamespace := len(namespace)
	szKey := len(key)
	szBuf := shardPrefixSize() + 1 + szNamespace + szKey
	buf.Reset()
	buf.Grow(szBuf)

	var b [2]byte
	binary.BigEndian.PutUint16(b[:], shardId)
	buf.Write(b[:])
	if enableMicroShardId {
		buf.WriteByte(microShardId)
	}
	buf.WriteByte(uint8(szNamespace))
	buf.Write(namespace)
	buf.Write(key)

	return RecordID(buf.Bytes())
}

func (id RecordID) GetShardID() uint16 {
	return binary.BigEndian.Uint16(id[:kSzShardId])
}

func (id RecordID) GetKeyWithoutShardID() []byte {
	return id[shardPrefixSize():]
}

func (id RecordID) Key() uint32 {
	return util.Murmur3Hash(id)
}

func (id RecordID) String() string {
	return util.ToHexString(id)
}

// ShardIdOf returns the shard id of a storage key.
func ShardIdOf(storageKey []byte) (shardId uint16, ok bool) {
	if len(storageKey) < kSzShardId {
		return 0, false
	}
	return binary.BigEndian.Uint16(storageKey), true
}

// SplitRecordKey returns the namespace and key of a storage key. Both slices
// reference storageKey.
func SplitRecordKey(storageKey []byte) (namespace []byte, key []byte, err error) {
	off := shardPrefixSize()
	if len(storageKey) < off+1 {
		err = errors.Newf(errors.KindCorruption, "storage key too short: %X", storageKey)
		return
	}
	szNamespace := int(storageKey[off])
	start := off + 1
	stop := start + szNamespace
	if len(storageKey) < stop {
		err = errors.Newf(errors.KindCorruption, "namespace length %d exceeds storage key %X", szNamespace, storageKey)
		return
	}
	namespace = storageKey[start:stop]
	key = storageKey[stop:]
	return
}

// DecodeRecordKey returns copies of the namespace and key of a storage key.
func DecodeRecordKey(storageKey []byte) ([]byte, []byte, error) {
	ns, key, err := SplitRecordKey(storageKey)
	if err != nil {
		return nil, nil, err
	}
	if glog.V(logging.LevelVerbose) {
		glog.Infof("Decoding key:%X => namespace:%X, key:%X", storageKey, ns, key)
	}
	return util.CopyBytes(ns), util.CopyBytes(key), nil
}

// NamespacePrefix is the common prefix of every storage key of namespace in
// the given shard.
func NamespacePrefix(shardId uint16, microShardId uint8, namespace []byte) []byte {
	return NewRecordID(shardId, microShardId, namespace, nil)
}

// NamespaceEnd returns the first storage key after every key of the
// namespace that storageKey belongs to, or nil if there is none.
func NamespaceEnd(storageKey []byte) []byte {
	ns, _, err := SplitRecordKey(storageKey)
	if err != nil {
		return nil
	}
	prefixLen := shardPrefixSize() + 1 + len(ns)
	return util.PrefixSuccessor(storageKey[:prefixLen])
}
