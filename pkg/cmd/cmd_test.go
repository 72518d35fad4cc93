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

package cmd

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoCmd struct {
	Command
	word    string
	repeat  int
	timeout time.Duration
}

func (c *echoCmd) Init(name string, desc string) {
	c.Command.Init(name, desc)
	c.StringOption(&c.word, "w|word", "hi", "word to echo")
	c.IntOption(&c.repeat, "n", 1, "repeat count")
	c.DurationOption(&c.timeout, "timeout", time.Second, "unused")
	c.SetSynopsis("-w <word>")
	c.AddExample(name+" -w hello", "echo hello")
}

func (c *echoCmd) Exec() error {
	for i := 0; i < c.repeat; i++ {
		fmt.Fprintln(c.Out(), c.word)
	}
	return nil
}

func init() {
	a := &echoCmd{}
	a.Init("test-echo", "echo a word")
	b := &echoCmd{}
	b.Init("test-loose", "not in a group")
	RegisterNewGroup("test", a)
	Register(b)
}

func TestRun(t *testing.T) {
	var out bytes.Buffer
	GetCommand("test-echo").SetOutput(&out)

	found, err := Run([]string{"test-echo", "-word", "abc", "-n", "2"})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "abc\nabc\n", out.String())

	out.Reset()
	_, err = Run([]string{"test-echo", "-w", "x"})
	require.NoError(t, err)
	assert.Equal(t, "x\n", out.String())

	out.Reset()
	_, err = Run([]string{"test-echo"})
	require.NoError(t, err)
	assert.Equal(t, "hi\n", out.String())

	found, err = Run([]string{"no-such-command"})
	assert.NoError(t, err)
	assert.False(t, found)
}

func TestCommandUsage(t *testing.T) {
	var buf bytes.Buffer
	GetCommand("test-echo").(*echoCmd).Write(&buf)
	usage := buf.String()
	assert.Contains(t, usage, "test-echo - echo a word")
	assert.Contains(t, usage, "-w, -word string")
	assert.Contains(t, usage, "(default \"hi\")")
	assert.Contains(t, usage, "-timeout duration")
	assert.Contains(t, usage, "EXAMPLE")
}

func TestProgramUsage(t *testing.T) {
	var buf bytes.Buffer
	Write(&buf)
	usage := buf.String()
	assert.Contains(t, usage, "USAGE")
	assert.Contains(t, usage, "COMMAND")
	assert.Contains(t, usage, "  test\n    * test-echo\n      echo a word")
	assert.Contains(t, usage, "  others\n")
	assert.Contains(t, usage, "    * test-loose\n")
}
