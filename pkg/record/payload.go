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

package record

import (
	"fmt"
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"cfbridge/pkg/util"
)

type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
)

var (
	ErrUnsupportedCompressionType = fmt.Errorf("unsupported compression type")

	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func (t CompressionType) String() string {
	switch t {
	case CompressionNone:
		return "none"
	case CompressionSnappy:
		return "snappy"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unsupported compression type: %d", t)
	}
}

func ParseCompressionType(s string) (CompressionType, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "snappy":
		return CompressionSnappy, nil
	case "zstd":
		return CompressionZstd, nil
	}
	return CompressionNone, fmt.Errorf("%w: %q", ErrUnsupportedCompressionType, s)
}

func (t CompressionType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *CompressionType) UnmarshalText(text []byte) (err error) {
	*t, err = ParseCompressionType(string(text))
	return
}

func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		if zstdEncoder, zstdErr = zstd.NewWriter(nil); zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

// Payload is the value carried by a record. Its data is stored compressed
// with compType.
type Payload struct {
	compType CompressionType
	data     []byte
}

func NewPayload(value []byte) Payload {
	return Payload{data: value}
}

func (p *Payload) GetCompressionType() CompressionType {
	return p.compType
}

func (p *Payload) GetData() []byte {
	return p.data
}

// GetLength is the encoded size of the payload.
func (p *Payload) GetLength() uint32 {
	szPayload := len(p.data)
	if szPayload == 0 {
		return 0
	}
	return uint32(1 + szPayload)
}

func (p *Payload) SetPayload(compType CompressionType, data []byte) {
	p.compType = compType
	p.data = data
}

// GetValue returns the uncompressed value.
func (p *Payload) GetValue() (value []byte, err error) {
	if len(p.data) == 0 {
		return
	}
	switch p.compType {
	case CompressionNone:
		value = p.data
	case CompressionSnappy:
		value, err = snappy.Decode(nil, p.data)
	case CompressionZstd:
		var dec *zstd.Decoder
		if _, dec, err = zstdCodec(); err == nil {
			value, err = dec.DecodeAll(p.data, nil)
		}
	default:
		err = ErrUnsupportedCompressionType
	}
	return
}

// Compress recompresses the payload with compType.
func (p *Payload) Compress(compType CompressionType) (err error) {
	if p.compType == compType || len(p.data) == 0 {
		return nil
	}
	var value []byte
	if value, err = p.GetValue(); err != nil {
		return
	}
	switch compType {
	case CompressionNone:
		p.data = value
	case CompressionSnappy:
		p.data = snappy.Encode(nil, value)
	case CompressionZstd:
		var enc *zstd.Encoder
		if enc, _, err = zstdCodec(); err != nil {
			return
		}
		p.data = enc.EncodeAll(value, nil)
	default:
		return ErrUnsupportedCompressionType
	}
	p.compType = compType
	return nil
}

func (p *Payload) Equal(other *Payload) bool {
	if other == nil {
		return false
	}
	v1, err1 := p.GetValue()
	v2, err2 := other.GetValue()
	if err1 != nil || err2 != nil {
		return false
	}
	return string(v1) == string(v2)
}

func (p *Payload) encodeTo(buf []byte) int {
	if len(p.data) == 0 {
		return 0
	}
	buf[0] = byte(p.compType)
	return 1 + copy(buf[1:], p.data)
}

// Decode sets the payload from its encoding. data is referenced, not
// copied, unless copyData is set.
func (p *Payload) Decode(raw []byte, copyData bool) {
	szRaw := len(raw)

	if szRaw > 1 {
		p.compType = CompressionType(raw[0])
		if copyData {
			p.data = util.CopyBytes(raw[1:szRaw])
		} else {
			p.data = raw[1:]
		}
	} else {
		*p = Payload{}
	}
}

func (p *Payload) PrettyPrint(w io.Writer) {
	szValue := len(p.data)

	fmt.Fprintf(w, "Payload (%s)        : ", p.compType)
	if szValue == 0 {
		fmt.Fprint(w, "[]\n")
	} else if szValue < 24 {
		fmt.Fprintf(w, "%s\n", util.ToPrintableAndHexString(p.data))
	} else {
		fmt.Fprintf(w, "(first 24 bytes) %s\n", util.ToPrintableAndHexString(p.data[:24]))
	}
}
