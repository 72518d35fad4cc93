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
	"github.com/golang/glog"

	"cfbridge/pkg/compaction"
	"cfbridge/pkg/logging"
	"cfbridge/pkg/record"
)

// CompressFactory rewrites record payloads with compType during full
// compactions. Payloads shorter than minSize are left alone.
type CompressFactory struct {
	compType record.CompressionType
	minSize  int
}

func NewCompressFactory(compType record.CompressionType, minSize int) *CompressFactory {
	return &CompressFactory{compType: compType, minSize: minSize}
}

func (f *CompressFactory) Name() string {
	return "CompressFilterFactory"
}

func (f *CompressFactory) CreateFilter(ctx compaction.Context) compaction.Filter {
	if !ctx.IsFullCompaction {
		return compaction.KeepAllFilter{}
	}
	return &compressFilter{compType: f.compType, minSize: f.minSize}
}

type compressFilter struct {
	compType record.CompressionType
	minSize  int

	changed  uint64
	bytesIn  uint64
	bytesOut uint64
}

func (m *compressFilter) Name() string {
	return "CompressFilter"
}

func (m *compressFilter) Filter(level int, key []byte, valueType compaction.ValueType, value []byte) compaction.Decision {
	if valueType != compaction.ValueTypeValue {
		return compaction.Keep()
	}
	ct, ok := record.CompressionTypeOf(value)
	if !ok || ct == m.compType || len(value)-record.HeaderSize < m.minSize {
		return compaction.Keep()
	}

	var rec record.Record
	if err := rec.Decode(value); err != nil {
		glog.Warningf("Key:%X: %s", key, err)
		return compaction.Keep()
	}
	if err := rec.Payload.Compress(m.compType); err != nil {
		glog.Warningf("Key:%X: %s payload to %s: %s", key, ct, m.compType, err)
		return compaction.Keep()
	}
	newValue := rec.Encode()
	m.changed++
	m.bytesIn += uint64(len(value))
	m.bytesOut += uint64(len(newValue))
	return compaction.ChangeValue(newValue)
}

func (m *compressFilter) Close() {
	if m.changed > 0 {
		glog.Infof("compress filter done: %s,in=%d,out=%d", logging.NewKVBufferForLog().AddChanged(m.changed).String(),
			m.bytesIn, m.bytesOut)
	}
}
