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
	"fmt"
	"time"

	uuid "github.com/satori/go.uuid"

	"cfbridge/pkg/util"
)

// RequestId identifies the request that wrote a record. New ids are UUID
// version 1, so they carry their creation time.
type RequestId [16]byte

var NilRequestId = RequestId{}

func NewRequestId() (rid RequestId) {
	copy(rid[:], uuid.NewV1().Bytes())
	return
}

func (rid RequestId) String() string {
	var id uuid.UUID
	if err := id.UnmarshalBinary(rid[:]); err != nil {
		return "Invalid request ID"
	}
	return id.String()
}

func (rid RequestId) Bytes() []byte {
	return rid[:]
}

func (rid *RequestId) SetFromBytes(b []byte) error {
	if len(b) != 16 {
		return fmt.Errorf("not valid request id: %v", b)
	}
	copy((*rid)[:], b)
	return nil
}

func (rid *RequestId) SetFromString(str string) error {
	prid, err := uuid.FromString(str)
	if err != nil {
		return err
	}
	*rid = RequestId(prid)
	return nil
}

func (rid RequestId) IsSet() bool {
	return !bytes.Equal(rid[:], NilRequestId[:])
}

// Time returns the creation time of a version 1 id.
func (rid RequestId) Time() (time.Time, error) {
	return util.GetTimeFromUUIDv1(uuid.UUID(rid))
}
