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

package config

import (
	"fmt"

	"github.com/golang/glog"
)

type HistBuckets struct {
	// keys presented to a filter per job
	JobKeys []float64
	// job duration in milliseconds
	JobTime []float64
}

type Config struct {
	Host             string
	Port             uint32
	UrlPath          string
	Environment      string
	Poolname         string
	Enabled          bool
	Resolution       uint32
	UseTls           bool
	HistogramBuckets HistBuckets
}

func (c *Config) Validate() error {
	if len(c.Poolname) <= 0 {
		return fmt.Errorf("otel: Poolname is required")
	}
	c.setDefaultIfNotDefined()
	return nil
}

func (c *Config) setDefaultIfNotDefined() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 4318
	}
	if c.Resolution == 0 {
		c.Resolution = 60
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.UrlPath == "" {
		c.UrlPath = "/v1/metrics"
	}
	if c.HistogramBuckets.JobKeys == nil {
		c.HistogramBuckets.JobKeys = []float64{100, 1000, 10000, 100000, 1000000, 10000000, 100000000}
	}
	if c.HistogramBuckets.JobTime == nil {
		c.HistogramBuckets.JobTime = []float64{10, 50, 100, 500, 1000, 5000, 10000, 60000, 300000, 1800000}
	}
}

func (c *Config) Endpoint() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) Dump() {
	glog.Infof("Host : %s", c.Host)
	glog.Infof("Port: %d", c.Port)
	glog.Infof("Environment: %s", c.Environment)
	glog.Infof("Poolname: %s", c.Poolname)
	glog.Infof("Resolution: %d", c.Resolution)
	glog.Infof("UseTls: %t", c.UseTls)
	glog.Infof("UrlPath: %s", c.UrlPath)
	glog.Info("JobKeys Bucket: ", c.HistogramBuckets.JobKeys)
	glog.Info("JobTime Bucket: ", c.HistogramBuckets.JobTime)
}
