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
	"flag"
	"fmt"
	"strings"
	"time"
)

// Option is a flag set whose options may have several names, "c|config",
// and which keeps its own usage text.
type Option struct {
	flag.FlagSet
	optsDesc string
}

// define registers every name of a "|" separated list with bind and adds
// the usage of the option.
func (o *Option) define(name string, valueDesc string, defaultDesc string, usage string, bind func(n string)) {
	if name == "" {
		return
	}
	var opts []string
	for _, n := range strings.Split(name, "|") {
		if n != "" {
			bind(n)
			opts = append(opts, "-"+n)
		}
	}
	head := strings.Join(opts, ", ")
	if valueDesc != "" {
		head += " " + valueDesc
	}
	if defaultDesc != "" {
		o.optsDesc += fmt.Sprintf("  %s\n    \t(default %s)\n    \t%s\n\n", head, defaultDesc, usage)
	} else {
		o.optsDesc += fmt.Sprintf("  %s\n    \t%s\n\n", head, usage)
	}
}

func (o *Option) ValueOption(value flag.Value, name string, usage string) {
	o.define(name, "value", "", usage, func(n string) { o.Var(value, n, "") })
}

func (o *Option) StringOption(p *string, name string, value string, usage string) {
	o.define(name, "string", fmt.Sprintf("%q", value), usage, func(n string) { o.StringVar(p, n, value, "") })
}

func (o *Option) BoolOption(p *bool, name string, value bool, usage string) {
	o.define(name, "", fmt.Sprint(value), usage, func(n string) { o.BoolVar(p, n, value, "") })
}

func (o *Option) UintOption(p *uint, name string, value uint, usage string) {
	o.define(name, "uint", fmt.Sprint(value), usage, func(n string) { o.UintVar(p, n, value, "") })
}

func (o *Option) IntOption(p *int, name string, value int, usage string) {
	o.define(name, "int", fmt.Sprint(value), usage, func(n string) { o.IntVar(p, n, value, "") })
}

func (o *Option) DurationOption(p *time.Duration, name string, value time.Duration, usage string) {
	o.define(name, "duration", value.String(), usage, func(n string) { o.DurationVar(p, n, value, "") })
}

// Reset restores every option to its default so a command can be parsed again.
func (o *Option) Reset() {
	o.VisitAll(func(f *flag.Flag) {
		f.Value.Set(f.DefValue)
	})
}

func (o *Option) GetOptionDesc() string {
	return o.optsDesc
}
