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

package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/golang/glog"

	"cfbridge/cmd/compactserv/config"
	"cfbridge/pkg/cmd"
	"cfbridge/pkg/initmgr"
	"cfbridge/pkg/logging"
	"cfbridge/pkg/version"
)

const kServerName = "compactserv"

type Serve struct {
	cmd.Command
	optConfigFile  string
	optHttpMonAddr string
	optLogLevel    string
	optDbDir       string
}

func (c *Serve) Init(name string, desc string) {
	c.Command.Init(name, desc)
	c.StringOption(&c.optConfigFile, "c|config", "config.toml", "specify toml configuration file name")
	c.StringOption(&c.optHttpMonAddr, "mon-addr|monitoring-address", "", "specify the http monitoring address. \n\toverride HttpMonAddr in config file")
	c.StringOption(&c.optLogLevel, "log-level", "", "specify log level. override LogLevel in config file")
	c.StringOption(&c.optDbDir, "db", "", "specify the store directory. override DB.Dir in config file")
}

func (c *Serve) Exec() error {
	if err := c.Validate(); err != nil {
		return err
	}
	defer initmgr.Finalize()
	initmgr.Register(config.Initializer, c.optConfigFile)
	if err := initmgr.Init(); err != nil {
		return err
	}

	cfg := config.ServerConfig()
	if len(c.optHttpMonAddr) != 0 {
		cfg.HttpMonAddr = c.optHttpMonAddr
	}
	if len(c.optLogLevel) != 0 {
		cfg.LogLevel = c.optLogLevel
	}
	if len(c.optDbDir) != 0 {
		cfg.DB.Dir = c.optDbDir
	}
	logging.InitLogging(cfg.LogLevel, kServerName)
	if glog.V(logging.LevelDebug) {
		cfg.Dump()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return Run(ctx, cfg)
}

// Run serves until ctx is done.
func Run(ctx context.Context, cfg *config.Config) error {
	server, err := NewServer(cfg)
	if err != nil {
		return err
	}
	logging.LogServerStart(kServerName)
	defer logging.LogServerExit(kServerName)

	if err = server.Start(ctx); err != nil {
		server.Stop()
		return err
	}
	<-ctx.Done()
	glog.Infof("shutting down")
	return server.Stop()
}

func init() {
	var cmdServe Serve
	cmdServe.Init("serve", "start the compaction server")
	cmd.Register(&cmdServe)
}

func Main() {
	defer glog.Flush()

	var versionFlag bool
	var help bool

	flag.BoolVar(&versionFlag, "version", false, "display version information.")
	flag.BoolVar(&help, "h", false, "help")
	flag.BoolVar(&help, "help", false, "help")
	flag.Parse()

	if versionFlag {
		version.PrintVersionInfo()
		return
	}
	if help {
		printUsage()
		return
	}
	numArgs := len(os.Args)

	if numArgs < 2 {
		fmt.Println("command is required")
		printUsage()
		os.Exit(1)
	}
	indexCommand := 1

	for i := 1; i < numArgs; i++ {
		if strings.HasPrefix(os.Args[i], "-") {
			indexCommand++
		} else {
			break
		}
	}

	if indexCommand >= numArgs {
		printUsage()
		os.Exit(1)
	}
	if found, err := cmd.Run(os.Args[indexCommand:]); !found {
		fmt.Printf("command '%s' not specified\n", os.Args[indexCommand])
		os.Exit(1)
	} else if err != nil {
		fmt.Printf("* %s\n", err)
		glog.Flush()
		os.Exit(1)
	}
}

func printUsage() {
	progName := filepath.Base(os.Args[0])
	fmt.Printf(`
USAGE
  %s <command> <-c|-config>=<config file> [<options>]

`, progName)
	fmt.Printf(`OPTION
  -version
        print version info
  -h
        print usage info
`)
	cmd.WriteCommand(os.Stdout)
}
