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

package cf

import (
	"fmt"
	"strings"

	"cfbridge/pkg/cmd"
	"cfbridge/pkg/compaction/filters"
	"cfbridge/pkg/etcd"
)

type publisher interface {
	etcd.Publisher
	Close()
}

// connect is replaced in tests.
var connect = func(endpoints []string, cluster string) (publisher, error) {
	cfg := etcd.NewConfig(endpoints...)
	cfg.MaxConnectAttempts = 1
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cli, err := etcd.NewEtcdClient(cfg, cluster)
	if err != nil {
		return nil, err
	}
	return cli, nil
}

// etcdCommand holds the options shared by the commands writing to etcd.
type etcdCommand struct {
	cmd.Command
	optEndpoints string
	optCluster   string
	optClear     bool
}

func (c *etcdCommand) Init(name string, desc string) {
	c.Command.Init(name, desc)
	c.StringOption(&c.optEndpoints, "etcd", "127.0.0.1:2379", "specify the comma-separated etcd endpoints")
	c.StringOption(&c.optCluster, "cluster", "cfbridge", "specify the cluster name")
	c.BoolOption(&c.optClear, "clear", false, "delete the value instead of setting it")
}

func (c *etcdCommand) Parse(args []string) (err error) {
	if err = c.Command.Parse(args); err != nil {
		return
	}
	if c.optCluster == "" {
		err = fmt.Errorf("-cluster not specified")
	}
	return
}

func (c *etcdCommand) connect() (publisher, error) {
	return connect(strings.Split(c.optEndpoints, ","), c.optCluster)
}

type cmdRulesT struct {
	etcdCommand
	optEvent string
}

func (c *cmdRulesT) Init(name string, desc string) {
	c.etcdCommand.Init(name, desc)
	c.StringOption(&c.optEvent, "event", "", "specify the namespace delete event config file")
	c.AddExample(name+" -etcd 10.0.0.1:2379 -cluster c1 -event ./delete.toml", "\tpublish the rules of delete.toml")
	c.AddExample(name+" -cluster c1 -clear", "\tremove the published rules")
}

func (c *cmdRulesT) Parse(args []string) (err error) {
	if err = c.etcdCommand.Parse(args); err != nil {
		return
	}
	if !c.optClear && c.optEvent == "" {
		err = fmt.Errorf("-event not specified")
	}
	return
}

func (c *cmdRulesT) Exec() error {
	var event *filters.EventConfig
	if !c.optClear {
		var err error
		if event, err = filters.NewEventConfig(c.optEvent); err != nil {
			return err
		}
	}
	p, err := c.connect()
	if err != nil {
		return err
	}
	defer p.Close()

	if c.optClear {
		if err = etcd.ClearRules(p); err == nil {
			fmt.Fprintf(c.Out(), "compaction rules of %s cleared\n", c.optCluster)
		}
		return err
	}
	if err = etcd.PublishRules(p, event); err == nil {
		fmt.Fprintf(c.Out(), "%d namespace rule(s) published to %s\n", len(event.Delete), c.optCluster)
	}
	return err
}

type cmdShardT struct {
	etcdCommand
	optZone  int
	optNode  int
	optShard int
}

func (c *cmdShardT) Init(name string, desc string) {
	c.etcdCommand.Init(name, desc)
	c.IntOption(&c.optZone, "zone", 0, "specify the zone of the node")
	c.IntOption(&c.optNode, "node", 0, "specify the node id")
	c.IntOption(&c.optShard, "shard", -1, "specify the shard to drop")
	c.AddExample(name+" -cluster c1 -zone 1 -node 2 -shard 37", "\tmake node 1/2 drop shard 37 on its next manual compaction")
}

func (c *cmdShardT) Parse(args []string) (err error) {
	if err = c.etcdCommand.Parse(args); err != nil {
		return
	}
	if c.optZone < 0 || c.optNode < 0 {
		err = fmt.Errorf("invalid zone/node %d/%d", c.optZone, c.optNode)
	} else if !c.optClear && c.optShard < 0 {
		err = fmt.Errorf("-shard not specified")
	}
	return
}

func (c *cmdShardT) Exec() error {
	p, err := c.connect()
	if err != nil {
		return err
	}
	defer p.Close()

	if c.optClear {
		if err = etcd.ClearShard(p, c.optZone, c.optNode); err == nil {
			fmt.Fprintf(c.Out(), "shard target of node %d/%d cleared\n", c.optZone, c.optNode)
		}
		return err
	}
	if err = etcd.PublishShard(p, c.optZone, c.optNode, c.optShard); err == nil {
		fmt.Fprintf(c.Out(), "node %d/%d drops shard %d\n", c.optZone, c.optNode, c.optShard)
	}
	return err
}

func init() {
	var (
		rules = &cmdRulesT{}
		shard = &cmdShardT{}
	)
	rules.Init("rules", "publish the namespace delete rules of a cluster to etcd")
	shard.Init("shard", "publish the shard a node drops to etcd")
	cmd.RegisterNewGroup("etcd", rules, shard)
}
