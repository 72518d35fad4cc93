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

// Package compaction defines the extension point through which an application
// takes part in the storage engine's background compactions.
//
// The application registers a FilterFactory. For every compaction job the
// engine asks the factory for a new Filter, calls that Filter once per key the
// job visits, and releases it when the job ends. A Filter belongs to a single
// job: its calls are never concurrent and keys arrive in the engine's merge
// order, so it may keep private state without locking. A FilterFactory is
// shared by all jobs and CreateFilter may run on several compaction threads
// at once.
package compaction

import (
	"fmt"
)

// Context describes the compaction job a Filter is created for.
type Context struct {
	// The job includes all data files.
	IsFullCompaction bool
	// The job was requested by the application rather than scheduled by the
	// engine.
	IsManualCompaction bool
}

func (c Context) String() string {
	return fmt.Sprintf("full=%t manual=%t", c.IsFullCompaction, c.IsManualCompaction)
}

// ValueType tells a Filter what the existing value is.
type ValueType int

const (
	ValueTypeValue ValueType = iota
	// existing value is a merge operand, not yet folded into a base value
	ValueTypeMergeOperand
)

func (t ValueType) String() string {
	switch t {
	case ValueTypeValue:
		return "Value"
	case ValueTypeMergeOperand:
		return "MergeOperand"
	}
	return fmt.Sprintf("ValueType(%d)", int(t))
}

type DecisionKind int

const (
	DecisionKeep DecisionKind = iota
	DecisionRemove
	DecisionChangeValue
	DecisionRemoveAndSkipUntil
)

var decisionNames = []string{
	DecisionKeep:               "Keep",
	DecisionRemove:             "Remove",
	DecisionChangeValue:        "ChangeValue",
	DecisionRemoveAndSkipUntil: "RemoveAndSkipUntil",
}

func (k DecisionKind) String() string {
	if k >= 0 && int(k) < len(decisionNames) {
		return decisionNames[k]
	}
	return fmt.Sprintf("DecisionKind(%d)", int(k))
}

// DecisionKinds lists every decision kind, in order.
func DecisionKinds() []DecisionKind {
	return []DecisionKind{DecisionKeep, DecisionRemove, DecisionChangeValue, DecisionRemoveAndSkipUntil}
}

// Decision is the verdict of a Filter for one key.
type Decision struct {
	Kind DecisionKind
	// replacement value, DecisionChangeValue only
	NewValue []byte
	// first key that is not skipped, DecisionRemoveAndSkipUntil only
	SkipUntil []byte
}

func Keep() Decision {
	return Decision{Kind: DecisionKeep}
}

func Remove() Decision {
	return Decision{Kind: DecisionRemove}
}

func ChangeValue(newValue []byte) Decision {
	return Decision{Kind: DecisionChangeValue, NewValue: newValue}
}

// RemoveAndSkipUntil removes the current key and every key before skipUntil
// without presenting them to the Filter. skipUntil must sort after the
// current key; otherwise the key is kept.
func RemoveAndSkipUntil(skipUntil []byte) Decision {
	return Decision{Kind: DecisionRemoveAndSkipUntil, SkipUntil: skipUntil}
}

func (d Decision) String() string {
	switch d.Kind {
	case DecisionChangeValue:
		return fmt.Sprintf("%s(len=%d)", d.Kind, len(d.NewValue))
	case DecisionRemoveAndSkipUntil:
		return fmt.Sprintf("%s(%X)", d.Kind, d.SkipUntil)
	}
	return d.Kind.String()
}

type (
	// Filter decides the fate of each key of one compaction job.
	Filter interface {
		// Filter is called once per key, in the engine's merge order, never
		// concurrently. It may use and update state private to the Filter.
		Filter(level int, key []byte, valueType ValueType, existingValue []byte) Decision

		// Name identifies the filter in logs.
		Name() string
	}

	// FilterFactory manufactures one Filter per compaction job.
	FilterFactory interface {
		// CreateFilter runs on a compaction thread and must not block. It
		// may be called concurrently; shared state is the factory's to
		// synchronize.
		CreateFilter(ctx Context) Filter

		// Name identifies the factory. It must not change over the
		// factory's lifetime.
		Name() string
	}

	// FilterCloser is implemented by filters that want to know their job
	// has ended. Close is called once, after the last Filter call.
	FilterCloser interface {
		Close()
	}
)
