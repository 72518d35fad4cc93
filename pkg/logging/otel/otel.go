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

// Package otel exports compaction filter metrics over OTLP/HTTP.
package otel

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/global"
	"go.opentelemetry.io/otel/metric/instrument"
	"go.opentelemetry.io/otel/metric/instrument/asyncint64"
	"go.opentelemetry.io/otel/metric/instrument/syncint64"
	"go.opentelemetry.io/otel/metric/unit"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/aggregation"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"

	"cfbridge/pkg/compaction"
	"cfbridge/pkg/compaction/bridge"
	otelCfg "cfbridge/pkg/logging/otel/config"
)

const (
	MeterName    = "cfbridge-meter"
	MetricPrefix = "cf_"
)

// attribute keys
const (
	Factory  = "factory"
	Filter   = "filter"
	Full     = "full"
	Manual   = "manual"
	Decision = "decision"
	Stage    = "stage"
)

var (
	mtx           sync.Mutex
	meterProvider *metric.MeterProvider
)

func PopulateMetricName(name string) string {
	return MetricPrefix + name
}

// InitMetricProvider sets up the global meter provider exporting to the
// configured collector. It is a no-op if a provider is already set.
func InitMetricProvider(cfg *otelCfg.Config) (*metric.MeterProvider, error) {
	mtx.Lock()
	defer mtx.Unlock()
	if meterProvider != nil {
		return meterProvider, nil
	}
	provider, err := NewMeterProvider(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	meterProvider = provider
	global.SetMeterProvider(provider)
	glog.Infof("otel metrics exported to %s every %ds", cfg.Endpoint(), cfg.Resolution)
	return provider, nil
}

func IsEnabled() bool {
	mtx.Lock()
	defer mtx.Unlock()
	return meterProvider != nil
}

// Shutdown flushes and stops the global meter provider.
func Shutdown(ctx context.Context) error {
	mtx.Lock()
	provider := meterProvider
	meterProvider = nil
	mtx.Unlock()
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}

// Views customizes the buckets of the job histograms.
func Views(cfg *otelCfg.Config) []metric.View {
	view := func(name string, bounds []float64) metric.View {
		return metric.NewView(
			metric.Instrument{
				Name:  PopulateMetricName(name),
				Scope: instrumentation.Scope{Name: MeterName},
			},
			metric.Stream{
				Aggregation: aggregation.ExplicitBucketHistogram{Boundaries: bounds},
			})
	}
	return []metric.View{
		view("job_keys", cfg.HistogramBuckets.JobKeys),
		view("job_time", cfg.HistogramBuckets.JobTime),
	}
}

func NewMeterProvider(ctx context.Context, cfg *otelCfg.Config) (*metric.MeterProvider, error) {
	exp, err := NewHTTPExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	reader := metric.NewPeriodicReader(exp, metric.WithInterval(time.Duration(cfg.Resolution)*time.Second))
	return metric.NewMeterProvider(
		metric.WithResource(getResourceInfo(cfg)),
		metric.WithReader(reader),
		metric.WithView(Views(cfg)...),
	), nil
}

func NewHTTPExporter(ctx context.Context, cfg *otelCfg.Config) (metric.Exporter, error) {
	var deltaTemporalitySelector = func(metric.InstrumentKind) metricdata.Temporality { return metricdata.DeltaTemporality }
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(cfg.Endpoint()),
		otlpmetrichttp.WithURLPath(cfg.UrlPath),
		otlpmetrichttp.WithTimeout(7 * time.Second),
		otlpmetrichttp.WithCompression(otlpmetrichttp.NoCompression),
		otlpmetrichttp.WithTemporalitySelector(deltaTemporalitySelector),
		otlpmetrichttp.WithRetry(otlpmetrichttp.RetryConfig{
			Enabled:         true,
			InitialInterval: 1 * time.Second,
			MaxInterval:     10 * time.Second,
			MaxElapsedTime:  240 * time.Second,
		}),
	}
	if !cfg.UseTls {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	return otlpmetrichttp.New(ctx, opts...)
}

func getResourceInfo(cfg *otelCfg.Config) *resource.Resource {
	hostname, _ := os.Hostname()
	return resource.NewWithAttributes(semconv.SchemaURL,
		semconv.HostNameKey.String(hostname),
		semconv.ServiceNameKey.String(cfg.Poolname),
		attribute.String("environment", cfg.Environment),
		attribute.String("application", cfg.Poolname),
	)
}

// Observer records filter lifecycles as otel instruments.
type Observer struct {
	created   syncint64.Counter
	destroyed syncint64.Counter
	decision  syncint64.Counter
	fault     syncint64.Counter
	jobKeys   syncint64.Histogram
	jobTime   syncint64.Histogram
}

var _ bridge.Observer = (*Observer)(nil)

// NewObserver creates the instruments on a meter of provider, or of the
// global provider if provider is nil.
func NewObserver(provider otelmetric.MeterProvider) (o *Observer, err error) {
	var meter otelmetric.Meter
	if provider != nil {
		meter = provider.Meter(MeterName)
	} else {
		meter = global.Meter(MeterName)
	}
	counters := meter.SyncInt64()
	o = &Observer{}
	if o.created, err = counters.Counter(PopulateMetricName("filter_created"),
		instrument.WithDescription("Compaction filters created")); err != nil {
		return nil, err
	}
	if o.destroyed, err = counters.Counter(PopulateMetricName("filter_destroyed"),
		instrument.WithDescription("Compaction filters destroyed")); err != nil {
		return nil, err
	}
	if o.decision, err = counters.Counter(PopulateMetricName("decision"),
		instrument.WithDescription("Filter decisions by kind")); err != nil {
		return nil, err
	}
	if o.fault, err = counters.Counter(PopulateMetricName("fault"),
		instrument.WithDescription("Faults contained by the bridge")); err != nil {
		return nil, err
	}
	if o.jobKeys, err = counters.Histogram(PopulateMetricName("job_keys"),
		instrument.WithDescription("Keys presented to a filter per job"),
		instrument.WithUnit(unit.Dimensionless)); err != nil {
		return nil, err
	}
	if o.jobTime, err = counters.Histogram(PopulateMetricName("job_time"),
		instrument.WithDescription("Lifetime of a filter"),
		instrument.WithUnit(unit.Milliseconds)); err != nil {
		return nil, err
	}
	return o, nil
}

func contextAttributes(factory string, ctx compaction.Context) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(Factory, factory),
		attribute.Bool(Full, ctx.IsFullCompaction),
		attribute.Bool(Manual, ctx.IsManualCompaction),
	}
}

func (o *Observer) FilterCreated(factory string, filter string, ctx compaction.Context) {
	o.created.Add(context.Background(), 1, append(contextAttributes(factory, ctx), attribute.String(Filter, filter))...)
}

func (o *Observer) FilterDestroyed(sum *bridge.JobSummary) {
	ctx := context.Background()
	attrs := contextAttributes(sum.Factory, sum.Context)
	o.destroyed.Add(ctx, 1, append(attrs, attribute.String(Filter, sum.Filter))...)
	for _, kind := range compaction.DecisionKinds() {
		if n := sum.Count(kind); n != 0 {
			o.decision.Add(ctx, int64(n), attribute.String(Factory, sum.Factory), attribute.String(Decision, kind.String()))
		}
	}
	o.jobKeys.Record(ctx, int64(sum.Keys), attrs...)
	o.jobTime.Record(ctx, sum.Elapsed.Milliseconds(), attrs...)
}

func (o *Observer) Fault(stage bridge.FaultStage, name string, _ interface{}) {
	o.fault.Add(context.Background(), 1, attribute.String(Stage, string(stage)), attribute.String(Factory, name))
}

// EngineGauges are the engine figures observed at every collection.
type EngineGauges struct {
	Runs              int64
	Entries           int64
	Bytes             int64
	Compactions       int64
	TombstonesDropped int64
}

// RegisterEngineGauges observes the values returned by collect at every
// collection of provider.
func RegisterEngineGauges(provider otelmetric.MeterProvider, collect func() EngineGauges) error {
	var meter otelmetric.Meter
	if provider != nil {
		meter = provider.Meter(MeterName)
	} else {
		meter = global.Meter(MeterName)
	}
	gauges := meter.AsyncInt64()
	type gauge struct {
		inst  asyncint64.Gauge
		value func(*EngineGauges) int64
	}
	defs := []struct {
		name  string
		desc  string
		value func(*EngineGauges) int64
	}{
		{"engine_runs", "Sorted runs in the store", func(g *EngineGauges) int64 { return g.Runs }},
		{"engine_entries", "Entries in sorted runs", func(g *EngineGauges) int64 { return g.Entries }},
		{"engine_bytes", "Key and value bytes in sorted runs", func(g *EngineGauges) int64 { return g.Bytes }},
		{"engine_compactions", "Compaction jobs completed", func(g *EngineGauges) int64 { return g.Compactions }},
		{"engine_tombstones_dropped", "Deletion markers dropped by full compactions", func(g *EngineGauges) int64 { return g.TombstonesDropped }},
	}
	list := make([]gauge, 0, len(defs))
	insts := make([]instrument.Asynchronous, 0, len(defs))
	for _, d := range defs {
		inst, err := gauges.Gauge(PopulateMetricName(d.name), instrument.WithDescription(d.desc))
		if err != nil {
			return err
		}
		list = append(list, gauge{inst: inst, value: d.value})
		insts = append(insts, inst)
	}
	return meter.RegisterCallback(insts, func(ctx context.Context) {
		g := collect()
		for _, e := range list {
			e.inst.Observe(ctx, e.value(&g))
		}
	})
}
