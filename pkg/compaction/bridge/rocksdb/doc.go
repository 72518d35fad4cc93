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

// Package rocksdb binds the compaction filter bridge to RocksDB through its
// C API. It is built with the rocksdb build tag and needs librocksdb and its
// headers:
//
//	CGO_CFLAGS="-I/opt/rocksdb/include" CGO_LDFLAGS="-L/opt/rocksdb/lib" go build -tags rocksdb
//
// The bridge handles are passed to RocksDB as the state of the C factory and
// filter objects, so no Go pointer is ever stored by RocksDB. Name strings
// are C copies owned by the handle and released when RocksDB destroys it. A
// changed value is a C buffer released on the next call of the same filter,
// or when the filter is destroyed.
//
// The C API filter cannot skip keys: RemoveAndSkipUntil removes the current
// key only.
package rocksdb
