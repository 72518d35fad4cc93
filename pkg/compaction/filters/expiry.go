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

// Package filters provides the compaction filters of the record store:
// expiry, namespace deletion, shard eviction and payload recompression.
package filters

import (
	"time"

	"github.com/golang/glog"

	"cfbridge/pkg/compaction"
	"cfbridge/pkg/logging"
	"cfbridge/pkg/record"
)

// ExpiryFactory removes expired records. Each job compares against the clock
// read when its filter was created.
type ExpiryFactory struct {
	now func() time.Time
}

func NewExpiryFactory() *ExpiryFactory {
	return &ExpiryFactory{now: time.Now}
}

func (f *ExpiryFactory) Name() string {
	return "ExpiryFilterFactory"
}

func (f *ExpiryFactory) CreateFilter(ctx compaction.Context) compaction.Filter {
	return &expiryFilter{now: f.now().Unix()}
}

type expiryFilter struct {
	now     int64
	expired uint64
	invalid uint64
}

func (m *expiryFilter) Name() string {
	return "ExpiryFilter"
}

func (m *expiryFilter) Filter(level int, key []byte, valueType compaction.ValueType, value []byte) compaction.Decision {
	if valueType != compaction.ValueTypeValue {
		return compaction.Keep()
	}
	expirationTime, ok := record.ExpirationTimeOf(value)
	if !ok {
		m.invalid++
		glog.Warningf("invalid value length. Key:%X len=%d. return as expired.", key, len(value))
		return compaction.Remove()
	}

	if int64(expirationTime) < m.now {
		m.expired++
		if glog.V(logging.LevelVerbose) {
			glog.Infof("Key:%X is expired.", key)
		}
		return compaction.Remove()
	}
	return compaction.Keep()
}

func (m *expiryFilter) Close() {
	if glog.V(logging.LevelDebug) && m.expired+m.invalid > 0 {
		glog.Infof("expiry filter: expired=%d,invalid=%d", m.expired, m.invalid)
	}
}
