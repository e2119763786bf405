// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package experiment

import (
	"errors"
	"testing"
	"time"
)

func draftTest() *AbTest {
	t := New("prompt-1", "checkout copy test", MetricResponseTime, Minimize)
	t.Variants = []Variant{
		{Name: "A", VersionID: "v1"},
		{Name: "B", VersionID: "v2"},
	}
	t.Split = TrafficSplit{
		{Name: "A", Percent: 50},
		{Name: "B", Percent: 50},
	}
	return t
}

func TestTrafficSplit_Validate(t *testing.T) {
	tests := []struct {
		name    string
		split   TrafficSplit
		wantErr bool
	}{
		{"sums to 100", TrafficSplit{{"A", 50}, {"B", 50}}, false},
		{"uneven but complete", TrafficSplit{{"A", 90}, {"B", 10}}, false},
		{"single variant", TrafficSplit{{"A", 100}}, false},
		{"under 100", TrafficSplit{{"A", 60}, {"B", 30}}, true},
		{"over 100", TrafficSplit{{"A", 60}, {"B", 50}}, true},
		{"empty", TrafficSplit{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.split.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSplit) {
				t.Errorf("Validate() error = %v, want ErrInvalidSplit", err)
			}
		})
	}
}

func TestMetric_Canonical(t *testing.T) {
	if got := Metric("evaluation_score").Canonical(); got != MetricQualityScore {
		t.Errorf("Canonical(evaluation_score) = %v, want %v", got, MetricQualityScore)
	}
	if got := MetricCost.Canonical(); got != MetricCost {
		t.Errorf("Canonical(cost) = %v, want %v", got, MetricCost)
	}
}

func TestAbTest_Lifecycle(t *testing.T) {
	now := time.Now()

	t.Run("start from draft", func(t *testing.T) {
		test := draftTest()
		if err := test.Start(now); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if test.Status != StatusRunning {
			t.Errorf("status = %v, want running", test.Status)
		}
		if test.StartedAt == nil || !test.StartedAt.Equal(now) {
			t.Errorf("StartedAt = %v, want %v", test.StartedAt, now)
		}
	})

	t.Run("start rejects invalid split", func(t *testing.T) {
		test := draftTest()
		test.Split = TrafficSplit{{"A", 60}, {"B", 30}}
		if err := test.Start(now); !errors.Is(err, ErrInvalidSplit) {
			t.Errorf("Start() error = %v, want ErrInvalidSplit", err)
		}
		if test.Status != StatusDraft {
			t.Errorf("failed start must not change status, got %v", test.Status)
		}
	})

	t.Run("start rejects undeclared split variant", func(t *testing.T) {
		test := draftTest()
		test.Split = TrafficSplit{{"A", 50}, {"C", 50}}
		if err := test.Start(now); !errors.Is(err, ErrUnknownVariant) {
			t.Errorf("Start() error = %v, want ErrUnknownVariant", err)
		}
	})

	t.Run("start twice fails", func(t *testing.T) {
		test := draftTest()
		if err := test.Start(now); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := test.Start(now); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("second Start() error = %v, want ErrInvalidTransition", err)
		}
	})

	t.Run("pause and resume", func(t *testing.T) {
		test := draftTest()
		if err := test.Start(now); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := test.Pause(); err != nil {
			t.Fatalf("Pause() error = %v", err)
		}
		if test.Status != StatusPaused {
			t.Errorf("status = %v, want paused", test.Status)
		}
		if err := test.Resume(); err != nil {
			t.Fatalf("Resume() error = %v", err)
		}
		if test.Status != StatusRunning {
			t.Errorf("status = %v, want running", test.Status)
		}
	})

	t.Run("pause from draft fails", func(t *testing.T) {
		test := draftTest()
		if err := test.Pause(); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Pause() error = %v, want ErrInvalidTransition", err)
		}
	})

	t.Run("complete requires a winner", func(t *testing.T) {
		test := draftTest()
		if err := test.Start(now); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := test.Complete("", now); !errors.Is(err, ErrNoWinner) {
			t.Errorf("Complete(\"\") error = %v, want ErrNoWinner", err)
		}
		if err := test.Complete("C", now); !errors.Is(err, ErrUnknownVariant) {
			t.Errorf("Complete(unknown) error = %v, want ErrUnknownVariant", err)
		}
		if err := test.Complete("B", now); err != nil {
			t.Fatalf("Complete(B) error = %v", err)
		}
		if test.Status != StatusCompleted || test.Winner != "B" {
			t.Errorf("status=%v winner=%q, want completed/B", test.Status, test.Winner)
		}
	})

	t.Run("complete from paused", func(t *testing.T) {
		test := draftTest()
		if err := test.Start(now); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := test.Pause(); err != nil {
			t.Fatalf("Pause() error = %v", err)
		}
		if err := test.Complete("A", now); err != nil {
			t.Errorf("Complete() from paused error = %v", err)
		}
	})

	t.Run("cancel from any non-terminal state", func(t *testing.T) {
		test := draftTest()
		if err := test.Cancel(now); err != nil {
			t.Errorf("Cancel() from draft error = %v", err)
		}
		if test.Status != StatusCancelled {
			t.Errorf("status = %v, want cancelled", test.Status)
		}
	})

	t.Run("cancel from terminal state fails", func(t *testing.T) {
		test := draftTest()
		if err := test.Start(now); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := test.Complete("A", now); err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
		if err := test.Cancel(now); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Cancel() after complete error = %v, want ErrInvalidTransition", err)
		}
	})
}

func TestAbTest_VariantVersion(t *testing.T) {
	test := draftTest()

	got, err := test.VariantVersion("B")
	if err != nil {
		t.Fatalf("VariantVersion(B) error = %v", err)
	}
	if got != "v2" {
		t.Errorf("VariantVersion(B) = %q, want %q", got, "v2")
	}

	if _, err := test.VariantVersion("Z"); !errors.Is(err, ErrUnknownVariant) {
		t.Errorf("VariantVersion(Z) error = %v, want ErrUnknownVariant", err)
	}
}

func TestStatus_Terminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusDraft:     false,
		StatusRunning:   false,
		StatusPaused:    false,
		StatusCompleted: true,
		StatusCancelled: true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestNewWithDefaults(t *testing.T) {
	t.Run("applies configured defaults", func(t *testing.T) {
		test := NewWithDefaults("prompt-1", "latency test", MetricResponseTime, Minimize,
			Defaults{ConfidenceLevel: 0.99, MinSampleSize: 250})
		if test.ConfidenceLevel != 0.99 {
			t.Errorf("ConfidenceLevel = %v, want 0.99", test.ConfidenceLevel)
		}
		if test.MinSampleSize != 250 {
			t.Errorf("MinSampleSize = %v, want 250", test.MinSampleSize)
		}
		if test.Status != StatusDraft {
			t.Errorf("Status = %v, want draft", test.Status)
		}
	})

	t.Run("ignores out-of-range defaults", func(t *testing.T) {
		test := NewWithDefaults("prompt-1", "latency test", MetricResponseTime, Minimize,
			Defaults{ConfidenceLevel: 1.5, MinSampleSize: -1})
		if test.ConfidenceLevel != 0.95 {
			t.Errorf("ConfidenceLevel = %v, want built-in 0.95", test.ConfidenceLevel)
		}
		if test.MinSampleSize != 100 {
			t.Errorf("MinSampleSize = %v, want built-in 100", test.MinSampleSize)
		}
	})

	t.Run("zero value keeps built-ins", func(t *testing.T) {
		test := NewWithDefaults("prompt-1", "latency test", MetricResponseTime, Minimize, Defaults{})
		if test.ConfidenceLevel != 0.95 || test.MinSampleSize != 100 {
			t.Errorf("defaults = (%v, %v), want (0.95, 100)",
				test.ConfidenceLevel, test.MinSampleSize)
		}
	})
}
