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

// Package cf implements the cfctl commands.
package cf

import (
	"fmt"

	"cfbridge/pkg/cmd"
	"cfbridge/pkg/errors"
)

type cmdClassifyT struct {
	cmd.Command
	message string
}

func (c *cmdClassifyT) Init(name string, desc string) {
	c.Command.Init(name, desc)
	c.SetSynopsis("<message>")
	c.AddDetails(`  Prints the kind of a storage engine diagnostic message. Only the text
  before the first colon is looked at.
`)
	c.AddExample(name+` "IO error: No space left on device"`, "\tclassify an engine error")
}

func (c *cmdClassifyT) Parse(args []string) (err error) {
	if err = c.Command.Parse(args); err != nil {
		return
	}
	if c.NArg() < 1 {
		err = fmt.Errorf("missing message")
		return
	}
	c.message = c.Arg(0)
	return
}

func (c *cmdClassifyT) Exec() error {
	if err := c.Validate(); err != nil {
		return err
	}
	kind := errors.Classify(c.message)
	fmt.Fprintf(c.Out(), "%s\n", kind)
	return nil
}

func init() {
	c := &cmdClassifyT{}
	c.Init("classify", "classify a storage engine error message")
	cmd.Register(c)
}
