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

package otel

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	collectormetricpb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	metricpb "go.opentelemetry.io/proto/otlp/metrics/v1"
)

const DefaultMetricsPath string = "/v1/metrics"

type mockCollector struct {
	endpoint string
	server   *http.Server

	mtx     sync.Mutex
	metrics []*metricpb.Metric
}

func (c *mockCollector) Stop() error {
	return c.server.Shutdown(context.Background())
}

func (c *mockCollector) GetMetrics() []*metricpb.Metric {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	m := make([]*metricpb.Metric, 0, len(c.metrics))
	return append(m, c.metrics...)
}

// GetMetric returns the last exported metric called name, or nil.
func (c *mockCollector) GetMetric(name string) *metricpb.Metric {
	metrics := c.GetMetrics()
	for i := len(metrics) - 1; i >= 0; i-- {
		if metrics[i].GetName() == name {
			return metrics[i]
		}
	}
	return nil
}

func (c *mockCollector) serveMetrics(w http.ResponseWriter, r *http.Request) {
	rawRequest, err := readRequest(r)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	request := &collectormetricpb.ExportMetricsServiceRequest{}
	if ct := r.Header.Get("content-type"); ct != "application/x-protobuf" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err = proto.Unmarshal(rawRequest, request); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	rawResponse, err := proto.Marshal(&collectormetricpb.ExportMetricsServiceResponse{})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rawResponse)

	c.mtx.Lock()
	defer c.mtx.Unlock()
	for _, rm := range request.GetResourceMetrics() {
		for _, sm := range rm.GetScopeMetrics() {
			c.metrics = append(c.metrics, sm.GetMetrics()...)
		}
	}
}

func readRequest(r *http.Request) ([]byte, error) {
	if r.Header.Get("Content-Encoding") != "gzip" {
		return io.ReadAll(r.Body)
	}
	var raw bytes.Buffer
	gunzipper, err := gzip.NewReader(r.Body)
	if err != nil {
		return nil, err
	}
	defer gunzipper.Close()
	if _, err = io.Copy(&raw, gunzipper); err != nil {
		return nil, err
	}
	return raw.Bytes(), nil
}

func runMockCollector(t *testing.T) *mockCollector {
	ln, err := net.Listen("tcp", "localhost:0")
	require.NoError(t, err)
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	m := &mockCollector{
		endpoint: fmt.Sprintf("localhost:%s", portStr),
	}
	mux := http.NewServeMux()
	mux.Handle(DefaultMetricsPath, http.HandlerFunc(m.serveMetrics))
	m.server = &http.Server{Handler: mux}
	go func() {
		_ = m.server.Serve(ln)
	}()
	t.Cleanup(func() { m.Stop() })
	return m
}
