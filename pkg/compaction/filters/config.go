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
	"fmt"

	"cfbridge/pkg/compaction"
	"cfbridge/pkg/record"
)

type Config struct {
	// remove expired records
	Expiry bool
	// namespace delete event file, optional
	EventFile string
	// shard eviction also on automatic compactions
	ShardAnyCompaction bool
	// payload compression applied by full compactions; none disables it
	Compression     record.CompressionType
	CompressMinSize int
}

var DefaultConfig = Config{
	Expiry:          true,
	Compression:     record.CompressionNone,
	CompressMinSize: 64,
}

// Set is the filter chain of a store together with the factories whose
// behavior can be changed at run time.
type Set struct {
	Factory   compaction.FilterFactory
	Expiry    *ExpiryFactory
	Namespace *NamespaceFactory
	Shard     *ShardFactory
	Compress  *CompressFactory
}

// NewSet builds the chain in the order namespace, shard, expiry, compress:
// deletions run before the recompression of surviving records.
func NewSet(cfg *Config) (*Set, error) {
	s := &Set{}

	var event *EventConfig
	if cfg.EventFile != "" {
		var err error
		if event, err = NewEventConfig(cfg.EventFile); err != nil {
			return nil, err
		}
	}
	s.Namespace = NewNamespaceFactory(event)
	s.Shard = NewShardFactory(cfg.ShardAnyCompaction)
	factories := []compaction.FilterFactory{s.Namespace, s.Shard}

	if cfg.Expiry {
		s.Expiry = NewExpiryFactory()
		factories = append(factories, s.Expiry)
	}
	if cfg.Compression != record.CompressionNone {
		if cfg.Compression > record.CompressionZstd {
			return nil, fmt.Errorf("%w: %d", record.ErrUnsupportedCompressionType, cfg.Compression)
		}
		s.Compress = NewCompressFactory(cfg.Compression, cfg.CompressMinSize)
		factories = append(factories, s.Compress)
	}
	s.Factory = compaction.Chain("RecordStoreFilters", factories...)
	return s, nil
}
