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
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cfbridge/pkg/errors"
)

func newTestRecord(value []byte, exp uint32) *Record {
	rec := &Record{
		RecordHeader: RecordHeader{
			Version:              3,
			CreationTime:         1000,
			LastModificationTime: 2000,
			ExpirationTime:       exp,
			RequestId:            NewRequestId(),
			OriginatorRequestId:  NewRequestId(),
		},
		Payload: NewPayload(value),
	}
	return rec
}

func TestRecordEncodeDecode(t *testing.T) {
	rec := newTestRecord([]byte("hello"), 12345)
	rec.MarkDelete()
	data := rec.Encode()
	assert.Len(t, data, HeaderSize+1+5)

	var got Record
	require.NoError(t, got.Decode(data))
	assert.Equal(t, rec.RecordHeader, got.RecordHeader)
	assert.True(t, got.IsMarkedDelete())
	v, err := got.Payload.GetValue()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), v)

	var buf bytes.Buffer
	require.NoError(t, rec.EncodeToBuffer(&buf))
	assert.Equal(t, data, buf.Bytes())
}

func TestRecordEmptyPayload(t *testing.T) {
	rec := newTestRecord(nil, 1)
	data := rec.Encode()
	assert.Len(t, data, HeaderSize)

	var got Record
	require.NoError(t, got.Decode(data))
	v, err := got.Payload.GetValue()
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestRecordDecodeErrors(t *testing.T) {
	var rec Record
	err := rec.Decode([]byte{0x01, 0x02})
	assert.Equal(t, errors.KindCorruption, errors.KindOf(err))

	data := newTestRecord([]byte("x"), 1).Encode()
	data[0] = 0x7F
	err = rec.Decode(data)
	assert.Equal(t, errors.KindNotSupported, errors.KindOf(err))
}

func TestValueFastPaths(t *testing.T) {
	rec := newTestRecord([]byte("value"), 777)
	data := rec.Encode()

	exp, ok := ExpirationTimeOf(data)
	assert.True(t, ok)
	assert.EqualValues(t, 777, exp)
	_, ok = ExpirationTimeOf(data[:7])
	assert.False(t, ok)

	assert.False(t, IsMarkedDelete(data))
	rec.MarkDelete()
	assert.True(t, IsMarkedDelete(rec.Encode()))
	assert.False(t, IsMarkedDelete(nil))

	ct, ok := CompressionTypeOf(data)
	assert.True(t, ok)
	assert.Equal(t, CompressionNone, ct)
	_, ok = CompressionTypeOf(data[:HeaderSize])
	assert.False(t, ok)
}

func TestExpiry(t *testing.T) {
	now := time.Unix(5000, 0)
	assert.True(t, newTestRecord(nil, 4999).IsExpiredAt(now))
	assert.False(t, newTestRecord(nil, 5000).IsExpiredAt(now))
	assert.False(t, newTestRecord(nil, 5001).IsExpiredAt(now))
}

func TestPayloadCompression(t *testing.T) {
	value := []byte(strings.Repeat("compaction filter ", 64))

	for _, ct := range []CompressionType{CompressionSnappy, CompressionZstd, CompressionNone} {
		p := NewPayload(value)
		require.NoError(t, p.Compress(ct), ct.String())
		assert.Equal(t, ct, p.GetCompressionType())
		if ct != CompressionNone {
			assert.Less(t, len(p.GetData()), len(value), ct.String())
		}
		v, err := p.GetValue()
		require.NoError(t, err)
		assert.Equal(t, value, v, ct.String())

		rec := newTestRecord(nil, 1)
		rec.Payload = p
		var got Record
		require.NoError(t, got.Decode(rec.Encode()))
		assert.True(t, got.Payload.Equal(&p))
	}
}

func TestPayloadRecompress(t *testing.T) {
	value := []byte(strings.Repeat("abc", 100))
	p := NewPayload(value)
	require.NoError(t, p.Compress(CompressionSnappy))
	require.NoError(t, p.Compress(CompressionZstd))
	v, err := p.GetValue()
	require.NoError(t, err)
	assert.Equal(t, value, v)

	p.SetPayload(CompressionType(9), []byte("x"))
	_, err = p.GetValue()
	assert.ErrorIs(t, err, ErrUnsupportedCompressionType)
}

func TestParseCompressionType(t *testing.T) {
	for _, ct := range []CompressionType{CompressionNone, CompressionSnappy, CompressionZstd} {
		text, err := ct.MarshalText()
		require.NoError(t, err)
		var got CompressionType
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, ct, got)
	}
	_, err := ParseCompressionType("lz4")
	assert.ErrorIs(t, err, ErrUnsupportedCompressionType)
}

func TestRequestId(t *testing.T) {
	rid := NewRequestId()
	assert.True(t, rid.IsSet())
	assert.False(t, NilRequestId.IsSet())

	var parsed RequestId
	require.NoError(t, parsed.SetFromString(rid.String()))
	assert.Equal(t, rid, parsed)

	tm, err := rid.Time()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), tm, time.Minute)

	assert.Error(t, parsed.SetFromBytes([]byte{1, 2, 3}))
}
