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

/*
Package record implements the storage format of the key-value records the
compaction filters work on.

Record Value Format

	--------+---------------------------------+---------------
	 offset | field                           | size
	--------+---------------------------------+---------------
	      0 | encoding version                | 1 byte
	--------+---------------------------------+---------------
	      1 | flag                            | 1 byte
	--------+---------------------------------+---------------
	      2 | reserved                        | 2 bytes
	--------+---------------------------------+---------------
	      4 | expiration time                 | 4 bytes
	--------+---------------------------------+---------------
	      8 | version                         | 4 bytes
	--------+---------------------------------+---------------
	     12 | creation time                   | 4 bytes
	--------+---------------------------------+---------------
	     16 | last modification time          | 8 bytes
	--------+---------------------------------+---------------
	     24 | request Id of the last modifier | 16 bytes
	--------+---------------------------------+---------------
	     40 | request Id of the originator    | 16 bytes
	--------+---------------------------------+---------------
	     56 | payload: compression type       | 1 byte
	        |          data                   | ...

	Record Flag
	  bit |           0|           1|           2|           3|           4|           5|           6|           7
	------+------------+------------+------------+------------+------------+------------+------------+------------+
	      | MarkDelete |

Storage Key Format

	------------------+--------------------------+----------------------------+-----------+--------
	 shard id (2, BE) | [micro shard id (1 byte)] | namespace length (1 byte) | namespace | key
	------------------+--------------------------+----------------------------+-----------+--------
*/
package record

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/golang/glog"

	"cfbridge/pkg/errors"
	"cfbridge/pkg/logging"
)

const (
	kEncVersion byte = 0x01

	kSzEncVersion            = 1
	kSzFlag                  = 1
	kSzReserved              = 2
	kSzExpirationTime        = 4
	kSzVersion               = 4
	kSzCreationTime          = 4
	kSzLastModificationTime  = 8
	kSzLastModifierRequestId = 16
	kSzOriginatorRequestId   = 16
	kSzHeader                = 56

	kOffEncodingVersion       = 0
	kOffFlag                  = kOffEncodingVersion + kSzEncVersion
	kOffReserved              = kOffFlag + kSzFlag
	kOffExpirationTime        = kOffReserved + kSzReserved
	kOffVersion               = kOffExpirationTime + kSzExpirationTime
	kOffCreationTime          = kOffVersion + kSzVersion
	kOffLastModificationTime  = kOffCreationTime + kSzCreationTime
	kOffLastModifierRequestId = kOffLastModificationTime + kSzLastModificationTime
	kOffOriginatorRequestId   = kOffLastModifierRequestId + kSzLastModifierRequestId
)

// HeaderSize is the size of an encoded record without payload.
const HeaderSize = kSzHeader

type (
	recordFlagT byte

	RecordHeader struct {
		Version              uint32
		CreationTime         uint32
		LastModificationTime uint64
		ExpirationTime       uint32

		OriginatorRequestId RequestId
		RequestId           RequestId
		flag                recordFlagT
	}

	Record struct {
		RecordHeader
		Payload Payload
	}
)

func (f recordFlagT) isMarkedDelete() bool {
	return (f & 0x1) != 0
}

func (f *recordFlagT) markDelete() {
	(*f) |= 0x1
}

func (f *recordFlagT) clearMarkDelete() {
	(*f) &^= 0x1
}

func (rec *Record) String() string {
	return fmt.Sprintf("{ReqId: %s, ExpTime:%d, CreTime:%d, Ver:%d, Vlen:%d}",
		rec.RequestId, rec.ExpirationTime, rec.CreationTime, rec.Version, rec.Payload.GetLength())
}

func (rec *Record) EncodingSize() int {
	return kSzHeader + int(rec.Payload.GetLength())
}

func (rec *Record) encodeTo(buf []byte) int {
	buf[kOffEncodingVersion] = kEncVersion
	buf[kOffFlag] = byte(rec.flag)
	buf[kOffReserved] = 0
	buf[kOffReserved+1] = 0

	if rec.LastModificationTime == 0 {
		rec.LastModificationTime = uint64(time.Now().UnixNano())
	}
	binary.BigEndian.PutUint32(
		buf[kOffExpirationTime:kOffExpirationTime+kSzExpirationTime],
		rec.ExpirationTime)
	binary.BigEndian.PutUint32(
		buf[kOffVersion:kOffVersion+kSzVersion],
		rec.Version)
	binary.BigEndian.PutUint32(
		buf[kOffCreationTime:kOffCreationTime+kSzCreationTime],
		rec.CreationTime)
	binary.BigEndian.PutUint64(
		buf[kOffLastModificationTime:kOffLastModificationTime+kSzLastModificationTime],
		rec.LastModificationTime)
	copy(buf[kOffLastModifierRequestId:kOffLastModifierRequestId+kSzLastModifierRequestId],
		rec.RequestId.Bytes())
	copy(buf[kOffOriginatorRequestId:kOffOriginatorRequestId+kSzOriginatorRequestId],
		rec.OriginatorRequestId.Bytes())

	return kSzHeader + rec.Payload.encodeTo(buf[kSzHeader:])
}

func (rec *Record) Encode() []byte {
	buf := make([]byte, rec.EncodingSize())
	return buf[:rec.encodeTo(buf)]
}

func (rec *Record) EncodeToBuffer(buffer *bytes.Buffer) error {
	buffer.Write(rec.Encode())
	return nil
}

// Decode sets rec from an encoded value. The payload references data.
func (rec *Record) Decode(data []byte) error {
	szData := len(data)
	if szData < kSzHeader {
		return errors.Newf(errors.KindCorruption, "record too short (%d bytes)", szData)
	}
	encodingVersion := data[kOffEncodingVersion]
	if encodingVersion != kEncVersion {
		return errors.Newf(errors.KindNotSupported, "record encoding version %d", encodingVersion)
	}
	rec.flag = recordFlagT(data[kOffFlag])
	rec.ExpirationTime = binary.BigEndian.Uint32(
		data[kOffExpirationTime : kOffExpirationTime+kSzExpirationTime])
	rec.Version = binary.BigEndian.Uint32(
		data[kOffVersion : kOffVersion+kSzVersion])
	rec.CreationTime = binary.BigEndian.Uint32(
		data[kOffCreationTime : kOffCreationTime+kSzCreationTime])
	rec.LastModificationTime = binary.BigEndian.Uint64(
		data[kOffLastModificationTime : kOffLastModificationTime+kSzLastModificationTime])
	rec.RequestId.SetFromBytes(data[kOffLastModifierRequestId : kOffLastModifierRequestId+kSzLastModifierRequestId])
	rec.OriginatorRequestId.SetFromBytes(data[kOffOriginatorRequestId : kOffOriginatorRequestId+kSzOriginatorRequestId])
	rec.Payload.Decode(data[kSzHeader:szData], false)
	if glog.V(logging.LevelVerbose) {
		glog.Infof("Record: %s", rec)
	}
	return nil
}

func (rec *Record) IsExpiredAt(now time.Time) bool {
	return int64(rec.ExpirationTime) < now.Unix()
}

func (rec *Record) IsExpired() bool {
	return rec.IsExpiredAt(time.Now())
}

func (rec *Record) IsMarkedDelete() bool {
	return rec.flag.isMarkedDelete()
}

func (rec *Record) ClearMarkedDelete() {
	rec.flag.clearMarkDelete()
}

func (rec *Record) MarkDelete() {
	rec.flag.markDelete()
}

func (rec *Record) PrettyPrint(w io.Writer) {
	if rec.IsMarkedDelete() {
		fmt.Fprintln(w, "MarkedDelete")
	}
	fmt.Fprintf(w, "Version               : %d\n", rec.Version)
	fmt.Fprintf(w, "Creation Time         : %d\n", rec.CreationTime)
	fmt.Fprintf(w, "Last Modification Time: %d\n", rec.LastModificationTime)
	fmt.Fprintf(w, "Expiration Time       : %d\n", rec.ExpirationTime)
	fmt.Fprintf(w, "Originator Request Id : %s\n", rec.OriginatorRequestId)
	fmt.Fprintf(w, "Request Id            : %s\n", rec.RequestId)

	rec.Payload.PrettyPrint(w)
}

// ExpirationTimeOf reads the expiration time of an encoded value without
// decoding it. ok is false if the value is too short to carry one.
func ExpirationTimeOf(value []byte) (expirationTime uint32, ok bool) {
	if len(value) < kOffExpirationTime+kSzExpirationTime {
		return 0, false
	}
	return binary.BigEndian.Uint32(value[kOffExpirationTime : kOffExpirationTime+kSzExpirationTime]), true
}

func IsMarkedDelete(value []byte) bool {
	return len(value) > kOffFlag && recordFlagT(value[kOffFlag]).isMarkedDelete()
}

// CompressionTypeOf reads the payload compression of an encoded value. ok
// is false if the value has no payload.
func CompressionTypeOf(value []byte) (compType CompressionType, ok bool) {
	if len(value) <= kSzHeader+1 {
		return CompressionNone, false
	}
	return CompressionType(value[kSzHeader]), true
}
