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

package bridge

import (
	"github.com/golang/glog"

	"cfbridge/pkg/compaction"
	"cfbridge/pkg/logging"
)

// ContextAccessor reads the engine's compaction context through its handle.
type ContextAccessor interface {
	IsFullCompaction(ctx Handle) bool
	IsManualCompaction(ctx Handle) bool
}

// TranslateContext copies the engine's view of a compaction job into a
// compaction.Context. A nil accessor, a zero handle or a failing accessor
// yields the zero Context.
func TranslateContext(acc ContextAccessor, h Handle) (ctx compaction.Context) {
	if acc == nil || h == 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			glog.Warningf("context translation failed: %v", r)
			ctx = compaction.Context{}
		}
	}()
	ctx.IsFullCompaction = acc.IsFullCompaction(h)
	ctx.IsManualCompaction = acc.IsManualCompaction(h)
	if glog.V(logging.LevelVerbose) {
		glog.Infof("compaction context %x: %s", uintptr(h), ctx)
	}
	return
}
