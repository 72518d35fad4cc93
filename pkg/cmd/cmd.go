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
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"cfbridge/pkg/version"
)

var (
	commands           = make(map[string]ICommand)
	groups             = make(map[string]*Group)
	notGroupedCommands []ICommand
)

type (
	ICommand interface {
		GetName() string
		GetDesc() string //get short description
		GetSynopsis() string
		GetDetails() string
		GetOptionDesc() string
		GetExample() string
		AddExample(cmdExample string, desc string)
		AddDetails(txt string)
		Init(name string, desc string)
		Exec() error
		Parse(args []string) error
		PrintUsage()
		SetOutput(w io.Writer)
	}

	Command struct {
		Option
		name       string
		desc       string //short description. (one ine)
		synopsis   string
		details    string
		examples   string
		optVModule string
		out        io.Writer
	}

	Group struct {
		cmds []ICommand
		name string
	}
)

func (g *Group) Name() string { return g.name }

func (g *Group) Commands() []ICommand { return g.cmds }

func (c *Command) Init(name string, desc string) {
	c.name = name
	c.desc = desc
	c.Option.Init(name, flag.ContinueOnError)
	c.StringVar(&c.optVModule, "vmodule", "", "comma-separated list of pattern=N settings for file-filtered logging")
	c.Option.Usage = c.PrintUsage
}

func (c *Command) SetSynopsis(str string) {
	c.synopsis = str
}

func (c *Command) GetName() string {
	return c.name
}

func (c *Command) GetDesc() string {
	return c.desc
}

func (c *Command) GetSynopsis() string {
	return c.synopsis
}

func (c *Command) GetDetails() string {
	return c.details
}

func (c *Command) GetExample() string {
	return c.examples
}

func (c *Command) AddExample(cmdExample string, desc string) {
	c.examples += desc + "\n\t\t" + cmdExample + "\n\n"
}

func (c *Command) AddDetails(txt string) {
	c.details += txt
}

func (c *Command) Write(w io.Writer) {
	wo := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	err := usageTemplate.Execute(wo, c)
	if err != nil {
		fmt.Fprintln(w, err)
	}
	wo.Flush()
}

func (c *Command) PrintUsage() {
	less := exec.Command("less")
	var buf bytes.Buffer
	c.Write(&buf)
	less.Stdin = &buf
	less.Stdout = os.Stdout
	err := less.Run()
	if err != nil {
		c.Write(os.Stdout)
	}
}

func (c *Command) Validate() error {
	if !c.Parsed() {
		return fmt.Errorf("command %s: not parsed", c.name)
	}
	return nil
}

func (c *Command) Parse(arguments []string) (err error) {
	c.Option.Reset()
	if err = c.Option.Parse(arguments); err == nil {
		if c.optVModule != "" {
			if f := flag.Lookup("vmodule"); f != nil {
				err = f.Value.Set(c.optVModule)
			}
		}
	}
	return
}

// SetOutput sets where Exec writes its results. The default is os.Stdout.
func (c *Command) SetOutput(w io.Writer) {
	c.out = w
}

func (c *Command) Out() io.Writer {
	if c.out == nil {
		return os.Stdout
	}
	return c.out
}

func RegisterNewGroup(name string, cmds ...ICommand) (grp *Group) {
	if _, grpFound := groups[name]; grpFound {
		fmt.Printf("group %s has been registered.", name)
		return
	}
	grp = &Group{name: name}
	//	commonOpt := make(map[string]bool)
	for _, c := range cmds {
		if register(c) {
			grp.cmds = append(grp.cmds, c)
		}
	}
	groups[name] = grp
	return
}

func Register(c ICommand) bool {
	if register(c) {
		notGroupedCommands = append(notGroupedCommands, c)
		return true
	}
	return false
}

func register(c ICommand) bool {
	if _, found := commands[c.GetName()]; found {
		fmt.Printf("Command %s has been registered.", c.GetName())
		return false
	}
	commands[c.GetName()] = c
	return true
}

func GetCommand(name string) ICommand {
	if cmd, ok := commands[name]; ok {
		return cmd
	}
	return nil
}

func ParseCommandLine() (cmd ICommand, args []string) {
	return parseArgs(os.Args[1:])
}

func parseArgs(arguments []string) (cmd ICommand, args []string) {
	numArgs := len(arguments)

	for i := 0; i < numArgs; i++ {
		arg := arguments[i]
		if cmd == nil {
			cmd = GetCommand(arg)
			if cmd != nil {
				args = append(args, arguments[i+1:]...)
				break
			}
		}
		args = append(args, arg)
	}
	return
}

func usageOf(progName string) *programUsage {
	u := &programUsage{Program: progName, Others: notGroupedCommands}
	for _, g := range groups {
		u.Groups = append(u.Groups, g)
	}
	sort.Slice(u.Groups, func(i, j int) bool { return u.Groups[i].name < u.Groups[j].name })
	return u
}

func Write(w io.Writer) {
	if err := programTemplate.Execute(w, usageOf(filepath.Base(os.Args[0]))); err != nil {
		fmt.Fprintln(w, err)
	}
}

func WriteCommand(w io.Writer) {
	if err := commandListTemplate.Execute(w, usageOf("")); err != nil {
		fmt.Fprintln(w, err)
	}
}

func PrintUsage() {
	less := exec.Command("less")
	var buf bytes.Buffer
	Write(&buf)
	less.Stdin = &buf
	less.Stdout = os.Stdout
	err := less.Run()
	if err != nil {
		Write(os.Stdout)
	}
}

// Run looks up the command named in arguments, parses its options and
// executes it. It returns false if no command was named.
func Run(arguments []string) (found bool, err error) {
	command, args := parseArgs(arguments)
	if command == nil {
		return false, nil
	}
	if err = command.Parse(args); err != nil {
		return true, fmt.Errorf("command '%s' failed. %w", command.GetName(), err)
	}
	return true, command.Exec()
}

func PrintVersionOrUsage() {
	var option Option
	var displayVersion bool
	option.BoolOption(&displayVersion, "version", false, "display version info.")
	option.Usage = PrintUsage
	if err := option.Parse(os.Args[1:]); err == nil {
		if displayVersion {
			version.PrintVersionInfo()
		}
	}
}
