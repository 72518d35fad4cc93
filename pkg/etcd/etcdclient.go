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

package etcd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/namespace"

	"cfbridge/pkg/logging"
)

var (
	errNotInitialized = errors.New("etcd client not initialized")
)

const NotFound = "NotFound"

// EtcdClient wraps a clientv3.Client whose keys are all relative to
// <EtcdKeyPrefix><clusterName>_.
type EtcdClient struct {
	config    Config
	keyPrefix string
	client    *clientv3.Client
	doneCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var noProxyOnce sync.Once

// bypassProxy adds the endpoints to NO_PROXY so that an http_proxy in the
// environment is not used for etcd.
func bypassProxy(endpoints []string) {
	noProxyOnce.Do(func() {
		val := strings.Join(endpoints, ",")
		curr := os.Getenv("NO_PROXY")
		if strings.Contains(curr, val) {
			return
		}
		if curr != "" {
			val += "," + curr
		}
		os.Setenv("NO_PROXY", val)
		os.Setenv("no_proxy", val)
	})
}

// rotate starts the endpoint list at a time-dependent position so that
// nodes do not all dial the first endpoint.
func rotate(endpoints []string) []string {
	m := time.Now().Second() % len(endpoints)
	return append(append(make([]string, 0, len(endpoints)), endpoints[m:]...), endpoints[:m]...)
}

// retry calls fn up to tries times, sleeping between attempts for the
// duration returned by backoff.
func retry(op string, tries int, backoff func(attempt int) time.Duration, fn func() error) (err error) {
	if tries < 1 {
		tries = 1
	}
	for i := 0; i < tries; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == tries-1 {
			break
		}
		glog.Warningf("etcd %s: %v. Retry ...", op, err)
		time.Sleep(backoff(i))
	}
	glog.Errorf("etcd %s: %v", op, err)
	return err
}

func fixedBackoff(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// NewEtcdClient connects to the cluster, retrying with a growing backoff up
// to MaxConnectAttempts times.
func NewEtcdClient(cfg *Config, clusterName string) (*EtcdClient, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd: no endpoints")
	}
	cfg.Endpoints = rotate(cfg.Endpoints)
	bypassProxy(cfg.Endpoints)

	var client *clientv3.Client
	connectBackoff := func(attempt int) time.Duration {
		secs := (attempt + 1) * 2
		if secs > cfg.MaxConnectBackoff {
			secs = cfg.MaxConnectBackoff
		}
		return time.Duration(secs) * time.Second
	}
	err := retry("connect", cfg.MaxConnectAttempts, connectBackoff, func() (err error) {
		if client, err = clientv3.New(cfg.Config); err != nil && client != nil {
			client.Close()
		}
		return
	})
	if err != nil {
		return nil, err
	}

	cli := &EtcdClient{
		client:    client,
		config:    *cfg,
		keyPrefix: cfg.EtcdKeyPrefix + clusterName + TagCompDelimiter,
		doneCh:    make(chan struct{}),
	}
	client.KV = namespace.NewKV(client.KV, cli.keyPrefix)
	client.Watcher = namespace.NewWatcher(client.Watcher, cli.keyPrefix)
	return cli, nil
}

func (e *EtcdClient) Close() {
	e.closeOnce.Do(func() {
		close(e.doneCh)
		e.wg.Wait()
		if e.client != nil {
			e.client.Close()
		}
	})
}

func (e *EtcdClient) KeyPrefix() string {
	return e.keyPrefix
}

func (e *EtcdClient) withTimeout(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.config.RequestTimeout.Duration)
	defer cancel()
	return fn(ctx)
}

// GetValue returns the value of key. A missing key returns NotFound along
// with an error.
func (e *EtcdClient) GetValue(key string) (string, error) {
	if e.client == nil {
		return "", errNotInitialized
	}
	var resp *clientv3.GetResponse
	err := retry("get "+key, 2, fixedBackoff(time.Second), func() error {
		return e.withTimeout(func(ctx context.Context) (err error) {
			resp, err = e.client.Get(ctx, key)
			return
		})
	})
	if err != nil {
		return "", err
	}
	switch len(resp.Kvs) {
	case 0:
		return NotFound, fmt.Errorf("key '%s' not found.", key)
	case 1:
		return string(resp.Kvs[0].Value), nil
	default:
		return "", fmt.Errorf("unexpected response. %s", key)
	}
}

// PutValue stores val at key. The optional params are the number of tries
// and the backoff between them in seconds.
func (e *EtcdClient) PutValue(key string, val string, params ...int) error {
	if e.client == nil {
		return errNotInitialized
	}
	tries, backoff := 1, time.Second
	if len(params) > 0 {
		tries = params[0]
	}
	if len(params) > 1 {
		backoff = time.Duration(params[1]) * time.Second
	}

	if glog.V(logging.LevelDebug) {
		shown := val
		if len(shown) > 50 {
			shown = shown[:50] + " ..."
		}
		glog.Infof("etcd put: key=%s%s val=%s", e.keyPrefix, key, shown)
	}
	return retry("put "+key, tries, fixedBackoff(backoff), func() error {
		return e.withTimeout(func(ctx context.Context) (err error) {
			_, err = e.client.Put(ctx, key, val)
			return
		})
	})
}

func (e *EtcdClient) DeleteKey(key string) error {
	if e.client == nil {
		return errNotInitialized
	}
	glog.Infof("etcd delete: key=%s%s", e.keyPrefix, key)
	return retry("delete "+key, 1, nil, func() error {
		return e.withTimeout(func(ctx context.Context) (err error) {
			_, err = e.client.Delete(ctx, key)
			return
		})
	})
}

// Watch calls handler with the events of key until cancel is called or the
// client is closed.
func (e *EtcdClient) Watch(key string, handler IWatchHandler, opts ...clientv3.OpOption) (context.CancelFunc, error) {
	if e.client == nil {
		return nil, errNotInitialized
	}
	ctx, cancel := context.WithCancel(context.Background())
	ch := e.client.Watch(ctx, key, opts...)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		glog.Infof("etcd: watching %s%s", e.keyPrefix, key)
		for {
			select {
			case r, ok := <-ch:
				if !ok {
					return
				}
				if err := r.Err(); err != nil {
					glog.Warningf("etcd watch %s: %v", key, err)
					continue
				}
				handler.OnEvent(r.Events...)
			case <-ctx.Done():
				return
			case <-e.doneCh:
				cancel()
				return
			}
		}
	}()
	return cancel, nil
}
