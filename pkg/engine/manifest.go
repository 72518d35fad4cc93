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
	"os"
	"path/filepath"

	"google.golang.org/protobuf/encoding/protowire"

	"cfbridge/pkg/errors"
)

const manifestFileName = "MANIFEST"

const (
	fieldManifestNextRunId protowire.Number = 1
	fieldManifestRun       protowire.Number = 2
)

// manifest records the live runs, oldest first.
type manifest struct {
	nextRunId uint64
	runs      []uint64
}

func (m *manifest) encode() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldManifestNextRunId, protowire.VarintType)
	b = protowire.AppendVarint(b, m.nextRunId)
	for _, id := range m.runs {
		b = protowire.AppendTag(b, fieldManifestRun, protowire.VarintType)
		b = protowire.AppendVarint(b, id)
	}
	return b
}

func decodeManifest(name string, data []byte) (*manifest, error) {
	m := &manifest{}
	err := fields(data, func(num protowire.Number, typ protowire.Type, _ []byte, x uint64) error {
		switch num {
		case fieldManifestNextRunId:
			m.nextRunId = x
		case fieldManifestRun:
			m.runs = append(m.runs, x)
		}
		return nil
	})
	if err != nil {
		return nil, corruption(name, "%s", err)
	}
	for _, id := range m.runs {
		if id >= m.nextRunId {
			return nil, corruption(name, "run %d not below next run id %d", id, m.nextRunId)
		}
	}
	return m, nil
}

func readManifest(dir string) (*manifest, error) {
	name := filepath.Join(dir, manifestFileName)
	data, err := os.ReadFile(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Newf(errors.KindIOError, "%s", err)
	}
	return decodeManifest(name, data)
}

func writeManifest(dir string, m *manifest) error {
	return writeFileAtomic(filepath.Join(dir, manifestFileName), m.encode())
}
