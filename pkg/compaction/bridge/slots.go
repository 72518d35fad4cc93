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

package bridge

import (
	"fmt"

	"cfbridge/pkg/compaction"
)

// FilterCode is the verdict as the engine receives it.
type FilterCode int

const (
	CodeKeep FilterCode = iota
	CodeRemove
	CodeChangeValue
	CodeRemoveAndSkipUntil
)

func (c FilterCode) String() string {
	if c >= CodeKeep && c <= CodeRemoveAndSkipUntil {
		return compaction.DecisionKind(c).String()
	}
	return fmt.Sprintf("FilterCode(%d)", int(c))
}

// FilterOutput carries the out-parameters of a filter call. NewValue is set
// for CodeChangeValue and SkipUntil for CodeRemoveAndSkipUntil. Both belong
// to the filter and are only valid until the next call on the same handle.
type FilterOutput struct {
	NewValue  []byte
	SkipUntil []byte
}

// FilterSlots is what the engine keeps for one compaction job: the filter
// handle and the functions to call with it.
type FilterSlots struct {
	State Handle

	// out must not be nil.
	Filter  func(state Handle, level int, key []byte, valueType compaction.ValueType, existingValue []byte, out *FilterOutput) FilterCode
	Name    func(state Handle) string
	Destroy func(state Handle)
}

// Valid reports whether the slots refer to a filter. An engine must not call
// the slots of an invalid FilterSlots, and must call Destroy exactly once on
// a valid one.
func (s FilterSlots) Valid() bool {
	return s.State != 0 && s.Filter != nil && s.Destroy != nil
}

// FactorySlots is what the engine keeps for a registered factory.
type FactorySlots struct {
	State Handle

	CreateFilter func(state Handle, ctx Handle) FilterSlots
	Name         func(state Handle) string
	Destroy      func(state Handle)
}

func (s FactorySlots) Valid() bool {
	return s.State != 0 && s.CreateFilter != nil && s.Destroy != nil
}
