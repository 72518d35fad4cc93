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
	"cfbridge/pkg/compaction/bridge"
	"cfbridge/pkg/errors"
	"cfbridge/pkg/record"
)

// Options mirror the subset of rocksdb options the engine implements.
type Options struct {
	// Directory of the run files and MANIFEST. An empty Dir keeps the store
	// in memory.
	Dir string

	// rocksdb: bool create_if_missing (Default: false)
	CreateIfMissing bool

	// rocksdb: bool error_if_exists (Default: false)
	ErrorIfExists bool

	// Number of entries the memtable holds before it is flushed into a run.
	// Zero disables automatic flushes.
	MemtableEntries int

	// rocksdb: int level0_file_num_compaction_trigger (Default: 4)
	// Number of runs that triggers an automatic compaction of the newest
	// runs. A value <= 1 disables automatic compactions.
	Level0CompactionTrigger int

	// rocksdb: int max_background_compactions (Default: 1)
	// Maximum number of concurrent compaction jobs.
	MaxBackgroundCompactions int

	// rocksdb: bool disable_auto_compactions (Default: false)
	DisableAutoCompactions bool

	// rocksdb CompressionType compression (Default: kSnappyCompression)
	// Compression of run file blocks.
	Compression record.CompressionType

	// Target uncompressed size of a run file block.
	BlockSize int

	// rocksdb: compaction_filter_factory
	// Taken over by the engine at Open; its Destroy slot is called by Close,
	// or by Open if Open fails.
	FilterFactory *bridge.FactorySlots
}

func DefaultOptions() Options {
	return Options{
		CreateIfMissing:          true,
		MemtableEntries:          64 * 1024,
		Level0CompactionTrigger:  4,
		MaxBackgroundCompactions: 1,
		Compression:              record.CompressionSnappy,
		BlockSize:                4 * 1024,
	}
}

func (o *Options) validate() error {
	if o.MemtableEntries < 0 {
		return errors.Newf(errors.KindInvalidArgument, "memtable_entries %d", o.MemtableEntries)
	}
	if o.MaxBackgroundCompactions < 1 {
		return errors.Newf(errors.KindInvalidArgument, "max_background_compactions %d", o.MaxBackgroundCompactions)
	}
	if o.Compression > record.CompressionZstd {
		return errors.Newf(errors.KindNotSupported, "compression type %d", o.Compression)
	}
	if o.BlockSize <= 0 {
		o.BlockSize = 4 * 1024
	}
	if o.FilterFactory != nil && !o.FilterFactory.Valid() {
		return errors.Newf(errors.KindInvalidArgument, "invalid compaction filter factory")
	}
	return nil
}
