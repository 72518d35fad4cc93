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

//go:build rocksdb

package rocksdb

// #include <stdint.h>
// #include <stdlib.h>
import "C"

import (
	"sync"
	"unsafe"

	"cfbridge/pkg/compaction"
	"cfbridge/pkg/compaction/bridge"
)

// cbuffers holds the C memory handed to RocksDB for the live handles of one
// kind. Factory and filter handles each get their own set.
type cbuffers struct {
	mu     sync.Mutex
	names  map[bridge.Handle]*C.char
	values map[bridge.Handle]unsafe.Pointer
}

func newCBuffers() *cbuffers {
	return &cbuffers{
		names:  make(map[bridge.Handle]*C.char),
		values: make(map[bridge.Handle]unsafe.Pointer),
	}
}

var (
	factoryBuffers = newCBuffers()
	filterBuffers  = newCBuffers()
)

func (b *cbuffers) name(h bridge.Handle, get func(bridge.Handle) string) *C.char {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cs, found := b.names[h]; found {
		return cs
	}
	cs := C.CString(get(h))
	b.names[h] = cs
	return cs
}

func (b *cbuffers) holdValue(h bridge.Handle, value []byte) *C.char {
	p := C.CBytes(value)
	b.mu.Lock()
	b.values[h] = p
	b.mu.Unlock()
	return (*C.char)(p)
}

func (b *cbuffers) releaseValue(h bridge.Handle) {
	b.mu.Lock()
	p, found := b.values[h]
	delete(b.values, h)
	b.mu.Unlock()
	if found {
		C.free(p)
	}
}

func (b *cbuffers) release(h bridge.Handle) {
	b.releaseValue(h)
	b.mu.Lock()
	cs, found := b.names[h]
	delete(b.names, h)
	b.mu.Unlock()
	if found {
		C.free(unsafe.Pointer(cs))
	}
}

// held is the number of handles with C memory outstanding.
func (b *cbuffers) held() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.names) + len(b.values)
}

func charToByte(data *C.char, length C.size_t) []byte {
	if data == nil || length == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(data)), int(length))
}

//export cfbridgeFactoryDestroy
func cfbridgeFactoryDestroy(state C.uintptr_t) {
	h := bridge.Handle(state)
	Setup().DestroyFactory(h)
	factoryBuffers.release(h)
}

//export cfbridgeFactoryCreateFilter
func cfbridgeFactoryCreateFilter(state C.uintptr_t, ctx C.uintptr_t) C.uintptr_t {
	return C.uintptr_t(Setup().CreateFilter(bridge.Handle(state), bridge.Handle(ctx)))
}

//export cfbridgeFactoryName
func cfbridgeFactoryName(state C.uintptr_t) *C.char {
	return factoryBuffers.name(bridge.Handle(state), Setup().FactoryName)
}

//export cfbridgeFilterDestroy
func cfbridgeFilterDestroy(state C.uintptr_t) {
	h := bridge.Handle(state)
	Setup().DestroyFilter(h)
	filterBuffers.release(h)
}

//export cfbridgeFilterFilter
func cfbridgeFilterFilter(state C.uintptr_t, level C.int, cKey *C.char, cKeyLen C.size_t,
	cVal *C.char, cValLen C.size_t, cNewVal **C.char, cNewValLen *C.size_t, cValChanged *C.uchar) C.uchar {
	h := bridge.Handle(state)
	filterBuffers.releaseValue(h)

	var out bridge.FilterOutput
	code := Setup().Filter(h, int(level), charToByte(cKey, cKeyLen), compaction.ValueTypeValue,
		charToByte(cVal, cValLen), &out)
	switch code {
	case bridge.CodeRemove, bridge.CodeRemoveAndSkipUntil:
		return 1
	case bridge.CodeChangeValue:
		*cNewVal = filterBuffers.holdValue(h, out.NewValue)
		*cNewValLen = C.size_t(len(out.NewValue))
		*cValChanged = 1
	}
	return 0
}

//export cfbridgeFilterName
func cfbridgeFilterName(state C.uintptr_t) *C.char {
	return filterBuffers.name(bridge.Handle(state), Setup().FilterName)
}
