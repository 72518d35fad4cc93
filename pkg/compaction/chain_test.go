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

package compaction

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeCounter struct {
	KeepAllFilter
	closed int
}

func (c *closeCounter) Close() {
	c.closed++
}

func TestChainFirstRemovalWins(t *testing.T) {
	var seen [][]byte
	upper := NewFactory("upper", func(Context) Filter {
		return FilterFunc(func(_ int, _ []byte, _ ValueType, v []byte) Decision {
			return ChangeValue(bytes.ToUpper(v))
		})
	})
	dropB := NewFactory("dropB", func(Context) Filter {
		return FilterFunc(func(_ int, k []byte, _ ValueType, v []byte) Decision {
			seen = append(seen, append([]byte(nil), v...))
			if bytes.HasPrefix(k, []byte("b")) {
				return Remove()
			}
			return Keep()
		})
	})

	chain := Chain("", upper, dropB)
	assert.Equal(t, "Chain(upper,dropB)", chain.Name())

	f := chain.CreateFilter(Context{})
	require.NotNil(t, f)
	assert.Equal(t, "Chain(upper,dropB)", f.Name())

	d := f.Filter(0, []byte("a1"), ValueTypeValue, []byte("abc"))
	assert.Equal(t, DecisionChangeValue, d.Kind)
	assert.Equal(t, []byte("ABC"), d.NewValue)
	assert.Equal(t, []byte("ABC"), seen[0])

	d = f.Filter(0, []byte("b1"), ValueTypeValue, []byte("xyz"))
	assert.Equal(t, DecisionRemove, d.Kind)
}

func TestChainKeepsWhenNobodyCares(t *testing.T) {
	chain := Chain("noop", NewFactory("keep", func(Context) Filter { return KeepAllFilter{} }))
	f := chain.CreateFilter(Context{IsFullCompaction: true})
	assert.Equal(t, Keep(), f.Filter(1, []byte("k"), ValueTypeMergeOperand, []byte("v")))
}

func TestChainClosesSubFilters(t *testing.T) {
	var made []*closeCounter
	factory := NewFactory("counted", func(Context) Filter {
		c := &closeCounter{}
		made = append(made, c)
		return c
	})
	nilFactory := NewFactory("nil", func(Context) Filter { return nil })

	f := Chain("c", factory, nilFactory, factory).CreateFilter(Context{})
	f.(FilterCloser).Close()
	require.Len(t, made, 2)
	for _, c := range made {
		assert.Equal(t, 1, c.closed)
	}
}

func TestNamedFilterForwardsClose(t *testing.T) {
	inner := &closeCounter{}
	f := NamedFilter("renamed", inner)
	assert.Equal(t, "renamed", f.Name())
	f.(FilterCloser).Close()
	assert.Equal(t, 1, inner.closed)
}

func TestNamedFilterForwardsFilter(t *testing.T) {
	var got []byte
	f := NamedFilter("dropper", FilterFunc(func(_ int, k []byte, _ ValueType, _ []byte) Decision {
		got = k
		return Remove()
	}))
	assert.Equal(t, Remove(), f.Filter(0, []byte("k1"), ValueTypeValue, nil))
	assert.Equal(t, []byte("k1"), got)
	// closing a wrapped filter without Close is a no-op
	f.(FilterCloser).Close()
}

func TestChainSkipsPanickingFactory(t *testing.T) {
	broken := NewFactory("broken", func(Context) Filter { panic("boom") })
	dropA := NewFactory("dropA", func(Context) Filter {
		return FilterFunc(func(_ int, k []byte, _ ValueType, _ []byte) Decision {
			if k[0] == 'a' {
				return Remove()
			}
			return Keep()
		})
	})

	var f Filter
	require.NotPanics(t, func() { f = Chain("c", broken, dropA).CreateFilter(Context{}) })
	assert.Equal(t, DecisionRemove, f.Filter(0, []byte("a1"), ValueTypeValue, nil).Kind)
	assert.Equal(t, DecisionKeep, f.Filter(0, []byte("b1"), ValueTypeValue, nil).Kind)
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "Keep", Keep().String())
	assert.Equal(t, "Remove", Remove().String())
	assert.Equal(t, "ChangeValue(len=3)", ChangeValue([]byte("abc")).String())
	assert.Equal(t, "RemoveAndSkipUntil(0A0B)", RemoveAndSkipUntil([]byte{0x0a, 0x0b}).String())
	assert.Equal(t, "DecisionKind(9)", DecisionKind(9).String())
	assert.Equal(t, "full=true manual=false", Context{IsFullCompaction: true}.String())
	assert.Equal(t, "MergeOperand", ValueTypeMergeOperand.String())
}
