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

// #include <stdlib.h>
// #include "rocksdb/c.h"
import "C"

import (
	"unsafe"

	"github.com/golang/glog"

	"cfbridge/pkg/compaction"
	"cfbridge/pkg/errors"
)

type Options struct {
	CreateIfMissing bool
	// registered with the bridge at Open; RocksDB destroys the registration
	// when it releases the factory
	FilterFactory compaction.FilterFactory
}

type DB struct {
	c      *C.rocksdb_t
	ropts  *C.rocksdb_readoptions_t
	wopts  *C.rocksdb_writeoptions_t
	closed bool
}

// toError turns an errptr filled in by the C API into an *errors.Error and
// frees it.
func toError(cerr *C.char) error {
	if cerr == nil {
		return nil
	}
	defer C.rocksdb_free(unsafe.Pointer(cerr))
	return errors.New(C.GoString(cerr))
}

func boolToChar(b bool) C.uchar {
	if b {
		return 1
	}
	return 0
}

func byteToChar(b []byte) *C.char {
	if len(b) == 0 {
		return nil
	}
	return (*C.char)(unsafe.Pointer(&b[0]))
}

func Open(dir string, opts Options) (*DB, error) {
	cdir := C.CString(dir)
	defer C.free(unsafe.Pointer(cdir))

	copts := C.rocksdb_options_create()
	// the store keeps its own reference to the factory
	defer C.rocksdb_options_destroy(copts)
	C.rocksdb_options_set_create_if_missing(copts, boolToChar(opts.CreateIfMissing))

	if opts.FilterFactory != nil {
		slots := Setup().RegisterFactory(opts.FilterFactory)
		if !slots.Valid() {
			return nil, errors.Newf(errors.KindBusy, "no handle for compaction filter factory %s", opts.FilterFactory.Name())
		}
		C.rocksdb_options_set_compaction_filter_factory(copts, newFactory(slots.State))
	}

	var cerr *C.char
	cdb := C.rocksdb_open(copts, cdir, &cerr)
	if err := toError(cerr); err != nil {
		return nil, err
	}
	glog.Infof("rocksdb opened: dir=%q", dir)
	return &DB{
		c:     cdb,
		ropts: C.rocksdb_readoptions_create(),
		wopts: C.rocksdb_writeoptions_create(),
	}, nil
}

func (db *DB) Put(key, value []byte) error {
	var cerr *C.char
	C.rocksdb_put(db.c, db.wopts, byteToChar(key), C.size_t(len(key)), byteToChar(value), C.size_t(len(value)), &cerr)
	return toError(cerr)
}

func (db *DB) Delete(key []byte) error {
	var cerr *C.char
	C.rocksdb_delete(db.c, db.wopts, byteToChar(key), C.size_t(len(key)), &cerr)
	return toError(cerr)
}

// Get returns a NotFound error if key does not exist.
func (db *DB) Get(key []byte) ([]byte, error) {
	var cerr *C.char
	var vlen C.size_t
	cval := C.rocksdb_get(db.c, db.ropts, byteToChar(key), C.size_t(len(key)), &vlen, &cerr)
	if err := toError(cerr); err != nil {
		return nil, err
	}
	if cval == nil {
		return nil, errors.Newf(errors.KindNotFound, "")
	}
	defer C.rocksdb_free(unsafe.Pointer(cval))
	return C.GoBytes(unsafe.Pointer(cval), C.int(vlen)), nil
}

// CompactRange compacts [start, limit]. Nil bounds are open.
func (db *DB) CompactRange(start, limit []byte) error {
	C.rocksdb_compact_range(db.c, byteToChar(start), C.size_t(len(start)), byteToChar(limit), C.size_t(len(limit)))
	return nil
}

// Close closes the store, which destroys the filter factory registration.
func (db *DB) Close() {
	if db.closed {
		return
	}
	db.closed = true
	C.rocksdb_close(db.c)
	C.rocksdb_readoptions_destroy(db.ropts)
	C.rocksdb_writeoptions_destroy(db.wopts)
}
