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

// Package errors turns the storage engine's diagnostic strings into
// matchable error values.
//
// The engine reports failures as plain text such as "IO error: disk full".
// An Error keeps that text verbatim; its Kind is derived from the text each
// time it is asked for. Wording the classifier does not recognize maps to
// KindUnknown.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindCorruption
	KindNotSupported
	KindInvalidArgument
	KindIOError
	KindMergeInProgress
	KindIncomplete
	KindShutdownInProgress
	KindTimedOut
	KindAborted
	KindBusy
	KindExpired
	KindTryAgain
	KindCompactionTooLarge
	KindColumnFamilyDropped

	kNumKinds
)

var (
	ErrNotFound            = &Error{message: KindNotFound.Prefix()}
	ErrCorruption          = &Error{message: KindCorruption.Prefix()}
	ErrNotSupported        = &Error{message: KindNotSupported.Prefix()}
	ErrInvalidArgument     = &Error{message: KindInvalidArgument.Prefix()}
	ErrIOError             = &Error{message: KindIOError.Prefix()}
	ErrMergeInProgress     = &Error{message: KindMergeInProgress.Prefix()}
	ErrIncomplete          = &Error{message: KindIncomplete.Prefix()}
	ErrShutdownInProgress  = &Error{message: KindShutdownInProgress.Prefix()}
	ErrTimedOut            = &Error{message: KindTimedOut.Prefix()}
	ErrAborted             = &Error{message: KindAborted.Prefix()}
	ErrBusy                = &Error{message: KindBusy.Prefix()}
	ErrExpired             = &Error{message: KindExpired.Prefix()}
	ErrTryAgain            = &Error{message: KindTryAgain.Prefix()}
	ErrCompactionTooLarge  = &Error{message: KindCompactionTooLarge.Prefix()}
	ErrColumnFamilyDropped = &Error{message: KindColumnFamilyDropped.Prefix()}
)

// kindPrefixes holds the engine's wording, as emitted by its Status::ToString.
var kindPrefixes = [kNumKinds]string{
	KindUnknown:             "",
	KindNotFound:            "NotFound",
	KindCorruption:          "Corruption",
	KindNotSupported:        "Not implemented",
	KindInvalidArgument:     "Invalid argument",
	KindIOError:             "IO error",
	KindMergeInProgress:     "Merge in progress",
	KindIncomplete:          "Result incomplete",
	KindShutdownInProgress:  "Shutdown in progress",
	KindTimedOut:            "Operation timed out",
	KindAborted:             "Operation aborted",
	KindBusy:                "Resource busy",
	KindExpired:             "Operation expired",
	KindTryAgain:            "Operation failed. Try again.",
	KindCompactionTooLarge:  "Compaction too large",
	KindColumnFamilyDropped: "Column family dropped",
}

var kindNames = [kNumKinds]string{
	KindUnknown:             "Unknown",
	KindNotFound:            "NotFound",
	KindCorruption:          "Corruption",
	KindNotSupported:        "NotSupported",
	KindInvalidArgument:     "InvalidArgument",
	KindIOError:             "IOError",
	KindMergeInProgress:     "MergeInProgress",
	KindIncomplete:          "Incomplete",
	KindShutdownInProgress:  "ShutdownInProgress",
	KindTimedOut:            "TimedOut",
	KindAborted:             "Aborted",
	KindBusy:                "Busy",
	KindExpired:             "Expired",
	KindTryAgain:            "TryAgain",
	KindCompactionTooLarge:  "CompactionTooLarge",
	KindColumnFamilyDropped: "ColumnFamilyDropped",
}

var prefixToKind map[string]Kind

func init() {
	prefixToKind = make(map[string]Kind, kNumKinds)
	for k := KindNotFound; k < kNumKinds; k++ {
		prefixToKind[kindPrefixes[k]] = k
	}
}

func (k Kind) String() string {
	if k >= 0 && k < kNumKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Prefix returns the engine wording for k, without the colon. It is empty
// for KindUnknown.
func (k Kind) Prefix() string {
	if k > KindUnknown && k < kNumKinds {
		return kindPrefixes[k]
	}
	return ""
}

// Kinds returns all the kinds, KindUnknown first.
func Kinds() []Kind {
	kinds := make([]Kind, kNumKinds)
	for i := range kinds {
		kinds[i] = Kind(i)
	}
	return kinds
}

// Classify maps an engine diagnostic message onto a Kind. Only the text
// before the first colon is looked at, and it has to match exactly.
func Classify(message string) Kind {
	prefix := message
	if i := strings.IndexByte(message, ':'); i >= 0 {
		prefix = message[:i]
	}
	if kind, found := prefixToKind[prefix]; found {
		return kind
	}
	return KindUnknown
}

// Error is a failure reported by the storage engine.
type Error struct {
	message string
}

func New(message string) *Error {
	return &Error{message: message}
}

// Newf builds a message carrying kind's wording, the way the engine does.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	if prefix := kind.Prefix(); prefix != "" {
		msg = prefix + ": " + msg
	}
	return &Error{message: msg}
}

func (e *Error) Error() string {
	return e.message
}

func (e *Error) Message() string {
	return e.message
}

func (e *Error) Kind() Kind {
	return Classify(e.message)
}

// Is reports a match when target is an *Error of the same known kind, so the
// package sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	kind := e.Kind()
	return kind != KindUnknown && kind == t.Kind()
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind()
	}
	return KindUnknown
}
