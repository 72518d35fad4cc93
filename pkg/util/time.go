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

package util

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	uuid "github.com/satori/go.uuid"
)

// Duration is a time.Duration that reads and writes as text, "30s" or
// "1h30m", in TOML files.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) (err error) {
	d.Duration, err = time.ParseDuration(string(text))
	return
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Now is the current time in unix seconds, the unit of record
// expiration times.
func Now() uint32 {
	return uint32(time.Now().Unix())
}

// GetTimeToLiveFrom is the number of seconds left before expirationTime,
// zero once it has passed.
func GetTimeToLiveFrom(expirationTime uint32, now time.Time) uint32 {
	if left := int64(expirationTime) - now.Unix(); left > 0 {
		return uint32(left)
	}
	return 0
}

// GetExpirationTimeFrom adds ttl seconds to now, saturating at the largest
// expiration time.
func GetExpirationTimeFrom(now time.Time, ttl uint32) uint32 {
	exp := now.Unix() + int64(ttl)
	if exp > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(exp)
}

func GetExpirationTime(ttl uint32) uint32 {
	return GetExpirationTimeFrom(time.Now(), ttl)
}

// 100ns intervals between the UUID epoch (1582-10-15) and the unix epoch
const uuidEpoch = 122192928000000000

// GetTimeFromUUIDv1 returns the time stamped into a version 1 UUID.
func GetTimeFromUUIDv1(id uuid.UUID) (time.Time, error) {
	if id.Version() != uuid.V1 {
		return time.Time{}, fmt.Errorf("not v1 UUID")
	}
	// time_hi (version masked), time_mid, time_low
	var ts [8]byte
	ts[0] = id[6] & 0x0F
	ts[1] = id[7]
	copy(ts[2:4], id[4:6])
	copy(ts[4:], id[:4])

	intervals := binary.BigEndian.Uint64(ts[:]) - uuidEpoch
	return time.Unix(0, int64(intervals*100)), nil
}
