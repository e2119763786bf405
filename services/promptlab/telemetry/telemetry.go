// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry instruments the PromptLab engine with Prometheus metrics
// and OpenTelemetry trace spans.
package telemetry

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrInvalidConfig is returned when the telemetry configuration is invalid.
var ErrInvalidConfig = errors.New("invalid telemetry configuration")

// Config configures the telemetry sink.
//
// Thread Safety: Immutable after creation; safe for concurrent read access.
type Config struct {
	// ServiceName is the service name for spans. Required.
	ServiceName string

	// TracerProvider is the tracer provider to use.
	// If nil, the global tracer provider is used.
	TracerProvider trace.TracerProvider

	// Registerer receives the Prometheus collectors.
	// If nil, prometheus.DefaultRegisterer is used.
	Registerer prometheus.Registerer
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{ServiceName: "promptlab"}
}

// Validate checks that required fields are set.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service name is required")
	}
	return nil
}

// Sink records engine telemetry.
//
// Thread Safety: Safe for concurrent use.
type Sink struct {
	tracer trace.Tracer

	evaluationsTotal  *prometheus.CounterVec
	evaluatorFailures *prometheus.CounterVec
	variantsSelected  *prometheus.CounterVec
	analysisDuration  prometheus.Histogram
}

// NewSink creates a telemetry sink and registers its collectors.
//
// Outputs:
//   - *Sink: The sink. Non-nil when error is nil.
//   - error: ErrInvalidConfig (wrapped) or a Prometheus registration error.
func NewSink(cfg *Config) (*Sink, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	tp := cfg.TracerProvider
	var tracer trace.Tracer
	if tp != nil {
		tracer = tp.Tracer(cfg.ServiceName)
	} else {
		tracer = otel.Tracer(cfg.ServiceName)
	}

	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	s := &Sink{
		tracer: tracer,
		evaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promptlab_evaluations_total",
			Help: "Evaluations produced, by evaluator key and verdict.",
		}, []string{"evaluator", "verdict"}),
		evaluatorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promptlab_evaluator_failures_total",
			Help: "Evaluator runs that failed and were skipped, by evaluator key.",
		}, []string{"evaluator"}),
		variantsSelected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "promptlab_variants_selected_total",
			Help: "Variant selections, by experiment and variant.",
		}, []string{"experiment", "variant"}),
		analysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "promptlab_analysis_duration_seconds",
			Help:    "Wall-clock duration of experiment analyses.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{
		s.evaluationsTotal, s.evaluatorFailures, s.variantsSelected, s.analysisDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// StartSpan starts a trace span. The caller must end the returned span.
func (s *Sink) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if s == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EvaluationCompleted records one produced evaluation.
func (s *Sink) EvaluationCompleted(evaluatorKey string, passed bool) {
	if s == nil {
		return
	}
	verdict := "failed"
	if passed {
		verdict = "passed"
	}
	s.evaluationsTotal.WithLabelValues(evaluatorKey, verdict).Inc()
}

// EvaluatorFailed records one skipped evaluator run.
func (s *Sink) EvaluatorFailed(evaluatorKey string) {
	if s == nil {
		return
	}
	s.evaluatorFailures.WithLabelValues(evaluatorKey).Inc()
}

// VariantSelected records one traffic-split draw.
func (s *Sink) VariantSelected(experimentID, variant string) {
	if s == nil {
		return
	}
	s.variantsSelected.WithLabelValues(experimentID, variant).Inc()
}

// AnalysisObserved records one analysis duration in seconds.
func (s *Sink) AnalysisObserved(seconds float64) {
	if s == nil {
		return
	}
	s.analysisDuration.Observe(seconds)
}
