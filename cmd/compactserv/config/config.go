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

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golang/glog"

	"cfbridge/pkg/compaction/filters"
	"cfbridge/pkg/engine"
	"cfbridge/pkg/etcd"
	"cfbridge/pkg/initmgr"
	otel "cfbridge/pkg/logging/otel/config"
	"cfbridge/pkg/logging/sherlock"
	"cfbridge/pkg/record"
	"cfbridge/pkg/util"
)

var Initializer initmgr.IInitializer = initmgr.NewInitializer(initialize, finalize)

// DBConfig is the engine part of the configuration.
type DBConfig struct {
	Dir                      string
	CreateIfMissing          bool
	MemtableEntries          int
	Level0CompactionTrigger  int
	MaxBackgroundCompactions int
	DisableAutoCompactions   bool
	Compression              record.CompressionType
	BlockSize                int
}

type Config struct {
	RootDir     string
	LogLevel    string
	ClusterName string
	HttpMonAddr string
	// simultaneous monitoring connections; 0 means unlimited
	MaxMonConnections int

	ShutdownWaitTime util.Duration
	// interval of the periodic manual compactions; 0 disables them
	CompactionInterval util.Duration
	// interval of the statistics log lines; 0 disables them
	StatsLogInterval util.Duration

	// zone and node of this store, used to find its shard eviction key
	ZoneId int
	NodeId int

	EtcdEnabled bool

	DB       DBConfig
	Filters  filters.Config
	Etcd     etcd.Config
	OTEL     otel.Config
	Sherlock sherlock.Config
}

func DefaultConfig() Config {
	opts := engine.DefaultOptions()
	return Config{
		LogLevel:          "info",
		ClusterName:       "cluster",
		HttpMonAddr:       "127.0.0.1:8088",
		MaxMonConnections: 64,
		ShutdownWaitTime:  util.Duration{Duration: 5 * time.Second},
		StatsLogInterval:  util.Duration{Duration: time.Minute},

		DB: DBConfig{
			Dir:                      "db",
			CreateIfMissing:          opts.CreateIfMissing,
			MemtableEntries:          opts.MemtableEntries,
			Level0CompactionTrigger:  opts.Level0CompactionTrigger,
			MaxBackgroundCompactions: opts.MaxBackgroundCompactions,
			Compression:              opts.Compression,
			BlockSize:                opts.BlockSize,
		},
		Filters: filters.DefaultConfig,
		Etcd:    *etcd.NewConfig("127.0.0.1:2379"),
		OTEL: otel.Config{
			Poolname: "cfbridge",
		},
	}
}

var serverConfig = DefaultConfig()

// LoadConfig decodes file over the server configuration.
func LoadConfig(file string) (err error) {
	return Load(file, &serverConfig)
}

// Load decodes file over cfg and validates the result.
func Load(file string, cfg *Config) (err error) {
	if _, err = toml.DecodeFile(file, cfg); err != nil {
		return
	}
	cfg.validatePathAndFileNames()
	err = cfg.Validate()
	return
}

func ServerConfig() *Config {
	return &serverConfig
}

func (c *Config) validatePathAndFileNames() {
	if len(c.RootDir) == 0 {
		c.RootDir = filepath.Dir(os.Args[0])
	}
	c.validatePath(&c.DB.Dir)
	if c.Filters.EventFile != "" {
		c.validatePath(&c.Filters.EventFile)
	}
}

// set path to be under Config.RootDir if path is empty or not specified as absolute path
func (c *Config) validatePath(path *string) {
	if path != nil {
		if len(*path) == 0 {
			*path = filepath.Clean(c.RootDir + "/")
		} else if !filepath.IsAbs(*path) {
			*path = filepath.Clean(c.RootDir + "/" + *path)
		}
	}
}

func (c *Config) Validate() (err error) {
	if c.DB.MaxBackgroundCompactions < 1 {
		return fmt.Errorf("MaxBackgroundCompactions must be at least 1: %d", c.DB.MaxBackgroundCompactions)
	}
	if c.DB.MemtableEntries < 0 {
		return fmt.Errorf("invalid MemtableEntries: %d", c.DB.MemtableEntries)
	}
	if c.CompactionInterval.Duration < 0 {
		return fmt.Errorf("invalid CompactionInterval: %s", c.CompactionInterval)
	}
	if c.ZoneId < 0 || c.NodeId < 0 {
		return fmt.Errorf("invalid zone %d or node %d", c.ZoneId, c.NodeId)
	}
	if c.OTEL.Enabled {
		if err = c.OTEL.Validate(); err != nil {
			return
		}
	}
	if c.Sherlock.Enabled {
		c.Sherlock.Default()
		if err = c.Sherlock.Validate(); err != nil {
			return
		}
	}
	if c.EtcdEnabled {
		if err = c.Etcd.Validate(); err != nil {
			return
		}
	}
	return
}

// EngineOptions returns the engine options of the configuration, without
// the compaction filter factory.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		Dir:                      c.DB.Dir,
		CreateIfMissing:          c.DB.CreateIfMissing,
		MemtableEntries:          c.DB.MemtableEntries,
		Level0CompactionTrigger:  c.DB.Level0CompactionTrigger,
		MaxBackgroundCompactions: c.DB.MaxBackgroundCompactions,
		DisableAutoCompactions:   c.DB.DisableAutoCompactions,
		Compression:              c.DB.Compression,
		BlockSize:                c.DB.BlockSize,
	}
}

func (c *Config) Dump() {
	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	encoder.Encode(c)
	glog.Info(buf.String())
}

func initialize(args ...interface{}) (err error) {
	sz := len(args)
	if sz < 1 {
		err = fmt.Errorf("a string config file name argument expected")
		return
	}
	filename, ok := args[0].(string)

	if ok == false {
		err = fmt.Errorf("wrong argument type. a string config file name expected")
		return
	}
	err = LoadConfig(filename)
	return
}

func finalize() {
}
