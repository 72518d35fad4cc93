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
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"google.golang.org/protobuf/encoding/protowire"

	"cfbridge/pkg/errors"
	"cfbridge/pkg/record"
)

/*
Run File Format

	-------+------------------------------------------
	 block | compression type (1 byte) | data | crc32c (4 bytes, over type and data)
	-------+------------------------------------------
	  ...  |
	-------+------------------------------------------
	footer | protowire message
	-------+------------------------------------------
	       | footer length (4 bytes, BE) | magic (8 bytes)
	-------+------------------------------------------

	block data (uncompressed): repeated field 1, an entry message each
	entry:  1: key (bytes) | 2: value (bytes) | 3: kind (varint)
	footer: 1: run id (varint) | 2: entry count (varint) | repeated 3: block handle
	block handle: 1: offset (varint) | 2: length (varint)
*/

const (
	runFileMagic   = "CFBRUN01"
	kSzFooterTrail = 4 + len(runFileMagic)
	kSzBlockTrail  = 4
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

const (
	fieldEntry protowire.Number = 1

	fieldEntryKey   protowire.Number = 1
	fieldEntryValue protowire.Number = 2
	fieldEntryKind  protowire.Number = 3

	fieldFooterRunId  protowire.Number = 1
	fieldFooterCount  protowire.Number = 2
	fieldFooterBlocks protowire.Number = 3

	fieldHandleOffset protowire.Number = 1
	fieldHandleLength protowire.Number = 2
)

type blockHandle struct {
	offset uint64
	length uint64
}

func runFileName(id uint64) string {
	return fmt.Sprintf("%06d.run", id)
}

func appendEntry(b []byte, e *entry) []byte {
	var m []byte
	m = protowire.AppendTag(m, fieldEntryKey, protowire.BytesType)
	m = protowire.AppendBytes(m, e.key)
	if len(e.value) > 0 {
		m = protowire.AppendTag(m, fieldEntryValue, protowire.BytesType)
		m = protowire.AppendBytes(m, e.value)
	}
	m = protowire.AppendTag(m, fieldEntryKind, protowire.VarintType)
	m = protowire.AppendVarint(m, uint64(e.kind))

	b = protowire.AppendTag(b, fieldEntry, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}

func appendBlock(file []byte, raw []byte, comp record.CompressionType) ([]byte, error) {
	p := record.NewPayload(raw)
	if err := p.Compress(comp); err != nil {
		return nil, err
	}
	start := len(file)
	file = append(file, byte(p.GetCompressionType()))
	file = append(file, p.GetData()...)
	var crc [kSzBlockTrail]byte
	binary.BigEndian.PutUint32(crc[:], crc32.Checksum(file[start:], crcTable))
	return append(file, crc[:]...), nil
}

func encodeRun(r *run, comp record.CompressionType, blockSize int) ([]byte, error) {
	var (
		file    []byte
		raw     []byte
		handles []blockHandle
		err     error
	)
	flush := func() error {
		if len(raw) == 0 {
			return nil
		}
		start := len(file)
		if file, err = appendBlock(file, raw, comp); err != nil {
			return err
		}
		handles = append(handles, blockHandle{offset: uint64(start), length: uint64(len(file) - start)})
		raw = raw[:0]
		return nil
	}
	for i := range r.entries {
		raw = appendEntry(raw, &r.entries[i])
		if len(raw) >= blockSize {
			if err = flush(); err != nil {
				return nil, err
			}
		}
	}
	if err = flush(); err != nil {
		return nil, err
	}

	var footer []byte
	footer = protowire.AppendTag(footer, fieldFooterRunId, protowire.VarintType)
	footer = protowire.AppendVarint(footer, r.id)
	footer = protowire.AppendTag(footer, fieldFooterCount, protowire.VarintType)
	footer = protowire.AppendVarint(footer, uint64(len(r.entries)))
	for _, h := range handles {
		var m []byte
		m = protowire.AppendTag(m, fieldHandleOffset, protowire.VarintType)
		m = protowire.AppendVarint(m, h.offset)
		m = protowire.AppendTag(m, fieldHandleLength, protowire.VarintType)
		m = protowire.AppendVarint(m, h.length)
		footer = protowire.AppendTag(footer, fieldFooterBlocks, protowire.BytesType)
		footer = protowire.AppendBytes(footer, m)
	}
	file = append(file, footer...)
	var trail [4]byte
	binary.BigEndian.PutUint32(trail[:], uint32(len(footer)))
	file = append(file, trail[:]...)
	return append(file, runFileMagic...), nil
}

func corruption(name string, format string, args ...interface{}) error {
	return errors.Newf(errors.KindCorruption, "%s: %s", name, fmt.Sprintf(format, args...))
}

// fields walks the fields of a protowire message.
func fields(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		var (
			v []byte
			x uint64
		)
		switch typ {
		case protowire.BytesType:
			v, n = protowire.ConsumeBytes(b)
		case protowire.VarintType:
			x, n = protowire.ConsumeVarint(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if err := fn(num, typ, v, x); err != nil {
			return err
		}
	}
	return nil
}

func decodeRun(name string, file []byte) (*run, error) {
	if len(file) < kSzFooterTrail || string(file[len(file)-len(runFileMagic):]) != runFileMagic {
		return nil, corruption(name, "not a run file")
	}
	szFooter := int(binary.BigEndian.Uint32(file[len(file)-kSzFooterTrail:]))
	footerStart := len(file) - kSzFooterTrail - szFooter
	if footerStart < 0 {
		return nil, corruption(name, "footer length %d", szFooter)
	}

	var (
		id      uint64
		count   uint64
		handles []blockHandle
	)
	err := fields(file[footerStart:len(file)-kSzFooterTrail], func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch num {
		case fieldFooterRunId:
			id = x
		case fieldFooterCount:
			count = x
		case fieldFooterBlocks:
			var h blockHandle
			if err := fields(v, func(num protowire.Number, _ protowire.Type, _ []byte, x uint64) error {
				switch num {
				case fieldHandleOffset:
					h.offset = x
				case fieldHandleLength:
					h.length = x
				}
				return nil
			}); err != nil {
				return err
			}
			handles = append(handles, h)
		}
		return nil
	})
	if err != nil {
		return nil, corruption(name, "footer: %s", err)
	}

	entries := make([]entry, 0, count)
	for _, h := range handles {
		if h.length <= kSzBlockTrail || h.offset+h.length > uint64(footerStart) {
			return nil, corruption(name, "block handle %d+%d", h.offset, h.length)
		}
		block := file[h.offset : h.offset+h.length]
		body := block[:len(block)-kSzBlockTrail]
		if crc32.Checksum(body, crcTable) != binary.BigEndian.Uint32(block[len(body):]) {
			return nil, corruption(name, "block checksum mismatch at %d", h.offset)
		}
		var p record.Payload
		p.SetPayload(record.CompressionType(body[0]), body[1:])
		raw, err := p.GetValue()
		if err != nil {
			return nil, corruption(name, "block at %d: %s", h.offset, err)
		}
		err = fields(raw, func(num protowire.Number, _ protowire.Type, v []byte, _ uint64) error {
			if num != fieldEntry {
				return nil
			}
			var e entry
			if err := fields(v, func(num protowire.Number, _ protowire.Type, v []byte, x uint64) error {
				switch num {
				case fieldEntryKey:
					e.key = v
				case fieldEntryValue:
					e.value = v
				case fieldEntryKind:
					e.kind = entryKind(x)
				}
				return nil
			}); err != nil {
				return err
			}
			entries = append(entries, e)
			return nil
		})
		if err != nil {
			return nil, corruption(name, "block at %d: %s", h.offset, err)
		}
	}
	if uint64(len(entries)) != count {
		return nil, corruption(name, "%d entries, footer says %d", len(entries), count)
	}
	return newRun(id, entries), nil
}

func writeRunFile(dir string, r *run, comp record.CompressionType, blockSize int) error {
	data, err := encodeRun(r, comp, blockSize)
	if err != nil {
		return errors.Newf(errors.KindIOError, "encode run %d: %s", r.id, err)
	}
	return writeFileAtomic(filepath.Join(dir, runFileName(r.id)), data)
}

func readRunFile(dir string, id uint64) (*run, error) {
	name := filepath.Join(dir, runFileName(id))
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Newf(errors.KindIOError, "%s", err)
	}
	r, err := decodeRun(name, data)
	if err != nil {
		return nil, err
	}
	if r.id != id {
		return nil, corruption(name, "run id %d", r.id)
	}
	return r, nil
}

func writeFileAtomic(name string, data []byte) error {
	tmp := name + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Newf(errors.KindIOError, "%s", err)
	}
	if _, err = f.Write(data); err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, name)
	}
	if err != nil {
		os.Remove(tmp)
		return errors.Newf(errors.KindIOError, "%s", err)
	}
	return nil
}
