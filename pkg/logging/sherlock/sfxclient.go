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

package sherlock

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/signalfx/golib/v3/datapoint"
	"github.com/signalfx/golib/v3/sfxclient"

	"cfbridge/pkg/logging"
)

type sfxClient struct {
	metrics chan []*datapoint.Datapoint
	// Failed sends go to retryMetrics so that a slow endpoint never blocks
	// the main loop.
	retryMetrics chan retrySfxMessage
	// The number of time to retry a metrics if send failed
	retryCount uint32
	finished   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	// Channel to send rmCount below, has to be length of 1
	ignoreRetryCount chan uint32
	// If send failed and the retry channel is full, how many metrics are
	// removed from the retry channel
	rmCount     uint32
	client      *sfxclient.HTTPSink
	retryClient *sfxclient.HTTPSink
	// base time to wait for each retry for back-off
	backoff    int64
	maxBackoff time.Duration
}

type retrySfxMessage struct {
	retryCount uint32
	msgs       []*datapoint.Datapoint
}

func createSfxClient(conf *Config) *sfxclient.HTTPSink {
	client := sfxclient.NewHTTPSink()
	client.DatapointEndpoint = conf.DatapointEndpoint
	if conf.EventEndpoint != "" {
		client.EventEndpoint = conf.EventEndpoint
	}
	client.AuthToken = conf.AuthToken
	client.AdditionalHeaders = map[string]string{
		"Connection": "keep-alive",
	}
	client.Client.Timeout = conf.Timeout
	return client
}

func newSfxClient(conf *Config) *sfxClient {
	c := &sfxClient{
		metrics:          make(chan []*datapoint.Datapoint, conf.MainWriteQueueSize),
		retryMetrics:     make(chan retrySfxMessage, conf.RetryWriteQueueSize),
		retryCount:       conf.RetryCount,
		finished:         make(chan struct{}),
		ignoreRetryCount: make(chan uint32, 1),
		rmCount:          conf.RmCount,
		client:           createSfxClient(conf),
		retryClient:      createSfxClient(conf),
		maxBackoff:       conf.MaxBackoff,
	}
	c.wg.Add(2)
	go c.mainLoopWrite()
	go c.retryLoopWrite()
	return c
}

func (m *sfxClient) retryLoopWrite() {
	defer m.wg.Done()
	ctx := context.Background()
	var localIgnoreCount uint32 = 0
	for {
		select {
		case <-m.finished:
			glog.Infoln("retryLoopWrite Done - exiting")
			return
		case ignoreCount := <-m.ignoreRetryCount:
			if localIgnoreCount == 0 {
				localIgnoreCount = ignoreCount
			}
		case metric := <-m.retryMetrics:
			if localIgnoreCount > 0 {
				localIgnoreCount--
				continue
			}
			select {
			case <-time.After(m.getBackoff()):
			case <-m.finished:
				return
			}
			metric.retryCount--
			if err := m.retryClient.AddDatapoints(ctx, metric.msgs); err != nil {
				m.enRetryQueue(metric, true)
			} else {
				m.resetBackoff()
			}
		}
	}
}

func (m *sfxClient) resetBackoff() {
	m.backoff = 0
}

func (m *sfxClient) getBackoff() time.Duration {
	// random part well below the exponential part
	b := time.Duration((m.backoff*100 + rand.Int63n(30))) * time.Millisecond
	if m.backoff == 0 {
		m.backoff = 1
	}
	m.backoff = m.backoff << 1

	if b > m.maxBackoff {
		b = m.maxBackoff
	}
	return b
}

func (m *sfxClient) mainLoopWrite() {
	defer m.wg.Done()
	ctx := context.Background()
	for {
		select {
		case <-m.finished:
			glog.Infoln("mainLoopWrite Done - exiting")
			return
		case msgs := <-m.metrics:
			if err := m.client.AddDatapoints(ctx, msgs); err != nil {
				glog.Errorf("could not send %d datapoints: %s", len(msgs), err)
				m.enRetryQueue(retrySfxMessage{m.retryCount, msgs}, false)
			} else if glog.V(logging.LevelDebug) {
				glog.Infof("%d datapoints sent", len(msgs))
			}
		}
	}
}

func (m *sfxClient) enRetryQueue(retry retrySfxMessage, byRetry bool) error {
	if retry.retryCount == 0 {
		return logError("msg retried reaches the retry limit")
	}
	select {
	case m.retryMetrics <- retry:
		return nil
	default:
		// A message from the main loop is newer than everything queued for
		// retry, so room is made by dropping the oldest ones. A message
		// from the retry loop is the oldest and is dropped.
		if !byRetry {
			select {
			case m.ignoreRetryCount <- m.rmCount:
			default:
				glog.Errorln("Failed to make room m.rmCount")
			}
		}
		return logError("retry msg in queue failed, channel full")
	}
}

func logError(msg string) error {
	err := errors.New(msg)
	glog.Errorln(err)
	return err
}

// SendMetric enqueues the datapoints. It never blocks; an error means they
// were dropped.
func (m *sfxClient) SendMetric(msgs []*datapoint.Datapoint) error {
	if len(msgs) == 0 {
		return nil
	}
	select {
	case m.metrics <- msgs:
		return nil
	default:
		err := errors.New("sfx msg buffer full")
		if glog.V(logging.LevelDebug) {
			glog.Infoln(err)
		}
		return err
	}
}

func (m *sfxClient) Stop() {
	m.stopOnce.Do(func() {
		close(m.finished)
	})
	m.wg.Wait()
}
