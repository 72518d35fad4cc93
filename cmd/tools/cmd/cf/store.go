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

package cf

import (
	"fmt"
	"time"

	"cfbridge/pkg/cmd"
	"cfbridge/pkg/compaction/bridge"
	"cfbridge/pkg/compaction/filters"
	"cfbridge/pkg/engine"
	"cfbridge/pkg/record"
	"cfbridge/pkg/stats"
	"cfbridge/pkg/util"
)

const kDefaultNumShards = 1024

// store is an engine opened with the record store filter chain.
type store struct {
	db     *engine.DB
	set    *filters.Set
	bridge *bridge.Bridge
	stats  *stats.JobStats
}

func openStore(dir string, cfg *filters.Config, create bool) (*store, error) {
	if dir == "" {
		return nil, fmt.Errorf("db directory not specified")
	}
	set, err := filters.NewSet(cfg)
	if err != nil {
		return nil, err
	}
	s := &store{
		set:   set,
		stats: stats.NewJobStats(),
	}
	s.bridge = bridge.New(engine.ContextAccessor(), bridge.WithObserver(s.stats))
	slots := s.bridge.RegisterFactory(set.Factory)

	opts := engine.DefaultOptions()
	opts.Dir = dir
	opts.CreateIfMissing = create
	opts.FilterFactory = &slots
	if s.db, err = engine.Open(opts); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *store) close() error {
	return s.db.Close()
}

// dbCommand holds the options shared by the commands working on a store.
type dbCommand struct {
	cmd.Command
	optDir            string
	optNumShards      uint
	optNumMicroShards uint
}

func (c *dbCommand) Init(name string, desc string) {
	c.Command.Init(name, desc)
	c.StringOption(&c.optDir, "db", "", "specify the store directory")
	c.UintOption(&c.optNumShards, "num-shards", kDefaultNumShards, "specify the number of shards keys are hashed onto")
	c.UintOption(&c.optNumMicroShards, "num-micro-shards", 0, "specify the number of micro shards per shard. 0 disables micro shards")
}

func (c *dbCommand) Parse(args []string) (err error) {
	if err = c.Command.Parse(args); err != nil {
		return
	}
	if c.optDir == "" {
		err = fmt.Errorf("-db not specified")
		return
	}
	if c.optNumShards == 0 || c.optNumShards > 0xFFFF {
		err = fmt.Errorf("invalid number of shards %d", c.optNumShards)
		return
	}
	if c.optNumMicroShards > 256 {
		err = fmt.Errorf("invalid number of micro shards %d", c.optNumMicroShards)
		return
	}
	record.SetEnableMicroShardId(c.optNumMicroShards != 0)
	return
}

func (c *dbCommand) storageKey(ns string, key string) record.RecordID {
	shardId, microShardId := util.GetShardIds([]byte(key), uint32(c.optNumShards), uint32(c.optNumMicroShards))
	return record.NewRecordID(shardId, microShardId, []byte(ns), []byte(key))
}

type cmdLoadT struct {
	dbCommand
	optNamespace string
	optPrefix    string
	optCount     uint
	optTTL       time.Duration
	optValueSize uint
}

func (c *cmdLoadT) Init(name string, desc string) {
	c.dbCommand.Init(name, desc)
	c.StringOption(&c.optNamespace, "ns|namespace", "ns", "specify the namespace")
	c.StringOption(&c.optPrefix, "prefix", "key_", "specify the key prefix")
	c.UintOption(&c.optCount, "n", 1000, "specify the number of records")
	c.DurationOption(&c.optTTL, "ttl", time.Hour, "specify the time to live")
	c.UintOption(&c.optValueSize, "value-size", 100, "specify the payload size in bytes")
	c.AddExample(name+" -db ./data -ns ns1 -n 10000 -ttl 1m", "\tload 10000 records expiring in a minute")
}

func (c *cmdLoadT) Exec() error {
	if err := c.Validate(); err != nil {
		return err
	}
	s, err := openStore(c.optDir, &filters.DefaultConfig, true)
	if err != nil {
		return err
	}
	defer s.close()

	value := make([]byte, c.optValueSize)
	for i := range value {
		value[i] = byte('a' + i%26)
	}
	now := util.Now()
	for i := uint(0); i < c.optCount; i++ {
		key := fmt.Sprintf("%s%08d", c.optPrefix, i)
		rec := &record.Record{
			RecordHeader: record.RecordHeader{
				Version:        1,
				CreationTime:   now,
				ExpirationTime: util.GetExpirationTime(uint32(c.optTTL / time.Second)),
				RequestId:      record.NewRequestId(),
			},
			Payload: record.NewPayload(value),
		}
		if err = s.db.Put(c.storageKey(c.optNamespace, key), rec.Encode()); err != nil {
			return err
		}
	}
	if err = s.db.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(c.Out(), "%d records loaded into namespace %s\n", c.optCount, c.optNamespace)
	return nil
}

type cmdGetT struct {
	dbCommand
	optNamespace string
	optKey       string
	optRaw       bool
}

func (c *cmdGetT) Init(name string, desc string) {
	c.dbCommand.Init(name, desc)
	c.StringOption(&c.optNamespace, "ns|namespace", "ns", "specify the namespace")
	c.StringOption(&c.optKey, "key", "", "specify the key")
	c.BoolOption(&c.optRaw, "raw", false, "dump the stored value")
	c.AddExample(name+" -db ./data -ns ns1 -key key_00000001", "\tprint a record")
}

func (c *cmdGetT) Exec() error {
	if err := c.Validate(); err != nil {
		return err
	}
	s, err := openStore(c.optDir, &filters.DefaultConfig, false)
	if err != nil {
		return err
	}
	defer s.close()

	value, err := s.db.Get(c.storageKey(c.optNamespace, c.optKey))
	if err != nil {
		return err
	}
	w := c.Out()
	if c.optRaw {
		util.HexDump(w, value)
		return nil
	}
	var rec record.Record
	if err = rec.Decode(value); err != nil {
		return err
	}
	rec.PrettyPrint(w)
	fmt.Fprintf(w, "Time To Live          : %d\n", util.GetTimeToLiveFrom(rec.ExpirationTime, time.Now()))
	return nil
}

type cmdCompactT struct {
	dbCommand
	optEventFile   string
	optNoExpiry    bool
	optCompression string
}

func (c *cmdCompactT) Init(name string, desc string) {
	c.dbCommand.Init(name, desc)
	c.StringOption(&c.optEventFile, "event", "", "specify a namespace delete event file")
	c.BoolOption(&c.optNoExpiry, "no-expiry", false, "keep expired records")
	c.StringOption(&c.optCompression, "compression", "none", "recompress payloads with none, snappy or zstd")
	c.AddDetails(`  Runs a manual compaction of the whole store through the namespace delete,
  shard eviction, expiry and compression filters, then prints the statistics
  of the compaction jobs.
`)
	c.AddExample(name+" -db ./data -event delete.toml", "\tdelete the namespaces listed in delete.toml")
}

func (c *cmdCompactT) Exec() error {
	if err := c.Validate(); err != nil {
		return err
	}
	cfg := filters.DefaultConfig
	cfg.EventFile = c.optEventFile
	cfg.Expiry = !c.optNoExpiry
	compType, err := record.ParseCompressionType(c.optCompression)
	if err != nil {
		return err
	}
	cfg.Compression = compType

	s, err := openStore(c.optDir, &cfg, false)
	if err != nil {
		return err
	}
	defer s.close()

	if err = s.db.CompactRange(nil, nil); err != nil {
		return err
	}
	st := s.db.Stats()
	w := c.Out()
	fmt.Fprintf(w, "runs=%d entries=%d bytes=%d\n", st.Runs, st.Entries, st.Bytes)
	fmt.Fprintf(w, "filtered=%d removed=%d changed=%d skipped=%d tombstones_dropped=%d\n",
		st.KeysFiltered, st.KeysRemoved, st.KeysChanged, st.KeysSkipped, st.TombstonesDropped)
	s.stats.WriteText(w)
	return nil
}

func init() {
	var (
		load    = &cmdLoadT{}
		get     = &cmdGetT{}
		compact = &cmdCompactT{}
	)
	load.Init("load", "load records into a store")
	get.Init("get", "print a record of a store")
	compact.Init("compact", "compact a store with the record filters")
	cmd.RegisterNewGroup("store", load, get, compact)
}
