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

package logging

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"

	"cfbridge/pkg/compaction"
	"cfbridge/pkg/util"
)

// glog verbosity levels used across the module.
const (
	LevelError   glog.Level = 1
	LevelWarning glog.Level = 2
	LevelInfo    glog.Level = 3
	LevelDebug   glog.Level = 4
	LevelVerbose glog.Level = 5
)

type KeyValueBuffer struct {
	bytes.Buffer
	delimiter     byte
	pairDelimiter byte
}

func NewKVBufferForLog() *KeyValueBuffer {
	b := &KeyValueBuffer{
		delimiter:     '=',
		pairDelimiter: ',',
	}
	return b
}

func NewKVBuffer() *KeyValueBuffer {
	b := &KeyValueBuffer{
		pairDelimiter: '&',
		delimiter:     '=',
	}
	return b
}

var (
	logDataKeyFactory        []byte = []byte("factory")
	logDataKeyFilter         []byte = []byte("filter")
	logDataKeyFull           []byte = []byte("full")
	logDataKeyManual         []byte = []byte("manual")
	logDataKeyKey            []byte = []byte("key")
	logDataKeyNamespace      []byte = []byte("ns")
	logDataKeyShardId        []byte = []byte("shid")
	logDataKeyLevel          []byte = []byte("lvl")
	logDataKeyDecision       []byte = []byte("dec")
	logDataKeyKeys           []byte = []byte("keys")
	logDataKeyRemoved        []byte = []byte("rm")
	logDataKeyChanged        []byte = []byte("chg")
	logDataKeySkipped        []byte = []byte("skip")
	logDataKeyStage          []byte = []byte("stage")
	logDataKeyStatus         []byte = []byte("st")
	logDataKeyElapsed        []byte = []byte("rht")
	logDataKeyCompactionTime []byte = []byte("ct")
)

func (b *KeyValueBuffer) AddBytes(key []byte, value []byte) *KeyValueBuffer {
	if b.Len() > 0 {
		b.WriteByte(b.pairDelimiter)
	}
	b.Write(key)
	b.WriteByte(b.delimiter)
	b.Write(value)
	return b
}

func (b *KeyValueBuffer) Add(key []byte, value string) *KeyValueBuffer {
	if b.Len() > 0 {
		b.WriteByte(b.pairDelimiter)
	}
	b.Write(key)
	b.WriteByte(b.delimiter)
	b.WriteString(value)
	return b
}

func (b *KeyValueBuffer) AddHexKey(key []byte) *KeyValueBuffer {
	return b.Add(logDataKeyKey, util.ToHexString(key))
}

func (b *KeyValueBuffer) AddNamespace(ns []byte) *KeyValueBuffer {
	return b.AddBytes(logDataKeyNamespace, ns)
}

func (b *KeyValueBuffer) AddInt(key []byte, value int) *KeyValueBuffer {
	return b.Add(key, strconv.Itoa(value))
}

func (b *KeyValueBuffer) AddUInt64(key []byte, value uint64) *KeyValueBuffer {
	return b.Add(key, strconv.FormatUint(value, 10))
}

func (b *KeyValueBuffer) AddBool(key []byte, value bool) *KeyValueBuffer {
	return b.Add(key, strconv.FormatBool(value))
}

func (b *KeyValueBuffer) AddFactory(name string) *KeyValueBuffer {
	return b.Add(logDataKeyFactory, name)
}

func (b *KeyValueBuffer) AddFilter(name string) *KeyValueBuffer {
	return b.Add(logDataKeyFilter, name)
}

func (b *KeyValueBuffer) AddContext(ctx compaction.Context) *KeyValueBuffer {
	return b.AddBool(logDataKeyFull, ctx.IsFullCompaction).AddBool(logDataKeyManual, ctx.IsManualCompaction)
}

func (b *KeyValueBuffer) AddShardId(shardId uint16) *KeyValueBuffer {
	return b.AddInt(logDataKeyShardId, int(shardId))
}

func (b *KeyValueBuffer) AddLevel(level int) *KeyValueBuffer {
	return b.AddInt(logDataKeyLevel, level)
}

func (b *KeyValueBuffer) AddDecision(d compaction.Decision) *KeyValueBuffer {
	return b.Add(logDataKeyDecision, d.String())
}

func (b *KeyValueBuffer) AddKeyCount(n uint64) *KeyValueBuffer {
	return b.AddUInt64(logDataKeyKeys, n)
}

func (b *KeyValueBuffer) AddRemoved(n uint64) *KeyValueBuffer {
	if n != 0 {
		b.AddUInt64(logDataKeyRemoved, n)
	}
	return b
}

func (b *KeyValueBuffer) AddChanged(n uint64) *KeyValueBuffer {
	if n != 0 {
		b.AddUInt64(logDataKeyChanged, n)
	}
	return b
}

func (b *KeyValueBuffer) AddSkipped(n uint64) *KeyValueBuffer {
	if n != 0 {
		b.AddUInt64(logDataKeySkipped, n)
	}
	return b
}

func (b *KeyValueBuffer) AddStage(stage string) *KeyValueBuffer {
	return b.Add(logDataKeyStage, stage)
}

func (b *KeyValueBuffer) AddStatus(st string) *KeyValueBuffer {
	return b.Add(logDataKeyStatus, st)
}

// AddElapsed logs d in microseconds.
func (b *KeyValueBuffer) AddElapsed(d time.Duration) *KeyValueBuffer {
	return b.AddInt(logDataKeyElapsed, int(d/time.Microsecond))
}

func (b *KeyValueBuffer) AddCompactionTime(t time.Time) *KeyValueBuffer {
	return b.AddInt(logDataKeyCompactionTime, int(t.Unix()))
}

// InitLogging sends glog output to stderr and maps a level name
// (error, warning, info, debug, verbose) onto glog verbosity.
func InitLogging(level string, appName string) {
	flag.Lookup("logtostderr").Value.Set("true")

	var glevel string

	if strings.EqualFold("error", level) {
		glevel = "1"
	} else if strings.EqualFold("warning", level) {
		glevel = "2"
	} else if strings.EqualFold("debug", level) {
		glevel = "4"
	} else if strings.EqualFold("verbose", level) {
		glevel = "5"
	} else { //default is info
		glevel = "3"
	}

	flag.Lookup("v").Value.Set(glevel)
	if appName != "" {
		glog.V(LevelInfo).Infof("%s logging at level %s", appName, level)
	}
}

func LogServerStart(name string) {
	glog.InfoDepth(1, fmt.Sprintf("%s (pid: %d) started", name, os.Getpid()))
}

func LogServerExit(name string) {
	glog.InfoDepth(1, fmt.Sprintf("%s (pid: %d) stopped", name, os.Getpid()))
}
