// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	s, err := NewSink(&Config{
		ServiceName: "promptlab-test",
		Registerer:  prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("NewSink() error = %v", err)
	}
	return s
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config must validate, got %v", err)
	}
	if err := (&Config{}).Validate(); err == nil {
		t.Error("empty service name must not validate")
	}
}

func TestNewSink_InvalidConfig(t *testing.T) {
	_, err := NewSink(&Config{ServiceName: ""})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("NewSink() error = %v, want ErrInvalidConfig", err)
	}
}

func TestNewSink_NilConfigUsesDefaults(t *testing.T) {
	// The default registerer is global state; use a scoped registry instead
	// and only check the nil-config path validates.
	s, err := NewSink(&Config{ServiceName: "scoped", Registerer: prometheus.NewRegistry()})
	if err != nil {
		t.Fatalf("NewSink() error = %v", err)
	}
	if s == nil {
		t.Fatal("NewSink() returned nil sink")
	}
}

func TestSink_Counters(t *testing.T) {
	s := newTestSink(t)

	s.EvaluationCompleted("length", true)
	s.EvaluationCompleted("length", true)
	s.EvaluationCompleted("length", false)

	if got := testutil.ToFloat64(s.evaluationsTotal.WithLabelValues("length", "passed")); got != 2 {
		t.Errorf("passed counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(s.evaluationsTotal.WithLabelValues("length", "failed")); got != 1 {
		t.Errorf("failed counter = %v, want 1", got)
	}

	s.EvaluatorFailed("llm_judge")
	if got := testutil.ToFloat64(s.evaluatorFailures.WithLabelValues("llm_judge")); got != 1 {
		t.Errorf("failure counter = %v, want 1", got)
	}

	s.VariantSelected("exp-1", "A")
	s.VariantSelected("exp-1", "A")
	if got := testutil.ToFloat64(s.variantsSelected.WithLabelValues("exp-1", "A")); got != 2 {
		t.Errorf("variant counter = %v, want 2", got)
	}
}

func TestSink_NilReceiverIsSafe(t *testing.T) {
	var s *Sink

	ctx, span := s.StartSpan(context.Background(), "noop")
	if ctx == nil || span == nil {
		t.Fatal("nil sink StartSpan must still return a usable context and span")
	}
	span.End()

	s.EvaluationCompleted("length", true)
	s.EvaluatorFailed("length")
	s.VariantSelected("exp", "A")
	s.AnalysisObserved(0.5)
}

func TestSink_StartSpan(t *testing.T) {
	s := newTestSink(t)

	ctx, span := s.StartSpan(context.Background(), "analysis")
	if ctx == nil || span == nil {
		t.Fatal("StartSpan returned nil context or span")
	}
	span.End()
}
