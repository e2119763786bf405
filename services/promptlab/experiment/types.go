// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package experiment implements PromptLab's A/B experimentation engine:
// traffic-split variant selection, experiment lifecycle, and statistical
// analysis of two-variant experiments.
package experiment

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvalidTransition is returned for a disallowed status change.
	ErrInvalidTransition = errors.New("invalid experiment status transition")

	// ErrInvalidSplit is returned for a traffic split that does not sum to 100.
	ErrInvalidSplit = errors.New("traffic split percentages must sum to 100")

	// ErrUnknownVariant is returned when a variant name is not declared.
	ErrUnknownVariant = errors.New("unknown variant")

	// ErrNoWinner is returned when completing an experiment without a winner.
	ErrNoWinner = errors.New("completed experiment requires a winner")
)

// -----------------------------------------------------------------------------
// Status Lifecycle
// -----------------------------------------------------------------------------

// Status is the lifecycle state of an AbTest.
type Status string

const (
	// StatusDraft is the initial state; the experiment routes no traffic.
	StatusDraft Status = "draft"

	// StatusRunning routes traffic across variants.
	StatusRunning Status = "running"

	// StatusPaused suspends routing without discarding collected data.
	StatusPaused Status = "paused"

	// StatusCompleted is terminal, with a declared winner.
	StatusCompleted Status = "completed"

	// StatusCancelled is terminal, with no winner.
	StatusCancelled Status = "cancelled"
)

// Terminal returns true for completed and cancelled.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// -----------------------------------------------------------------------------
// Metrics and Direction
// -----------------------------------------------------------------------------

// Metric identifies the per-response value an experiment optimizes.
type Metric string

const (
	// MetricCost optimizes the call cost in USD.
	MetricCost Metric = "cost"

	// MetricResponseTime optimizes wall-clock latency in milliseconds.
	MetricResponseTime Metric = "response_time"

	// MetricTokenCount optimizes total token usage.
	MetricTokenCount Metric = "token_count"

	// MetricSuccessRate optimizes the fraction of successful calls.
	MetricSuccessRate Metric = "success_rate"

	// MetricQualityScore optimizes the mean evaluation score per response.
	// "evaluation_score" is accepted as an alias.
	MetricQualityScore Metric = "quality_score"
)

// Canonical resolves metric aliases to their canonical form.
func (m Metric) Canonical() Metric {
	if m == "evaluation_score" {
		return MetricQualityScore
	}
	return m
}

// Direction states whether lower or higher metric values win.
type Direction string

const (
	// Minimize declares that a lower mean wins (cost, latency, tokens).
	Minimize Direction = "minimize"

	// Maximize declares that a higher mean wins (success rate, quality).
	Maximize Direction = "maximize"
)

// -----------------------------------------------------------------------------
// Variants and Traffic Split
// -----------------------------------------------------------------------------

// Variant binds a variant name to the prompt version it serves.
type Variant struct {
	// Name is the variant label (e.g. "A", "B").
	Name string `json:"name"`

	// VersionID references the prompt version this variant serves.
	VersionID string `json:"version_id"`
}

// Allocation is one variant's share of traffic.
type Allocation struct {
	// Name is the variant label.
	Name string `json:"name"`

	// Percent is the integer traffic percentage for the variant.
	Percent int `json:"percent"`
}

// TrafficSplit is an ordered percentage allocation across variants.
//
// Order is significant: the variant selector walks allocations in declared
// order, so the same split always produces the same cumulative boundaries.
type TrafficSplit []Allocation

// Total returns the sum of all allocation percentages.
func (ts TrafficSplit) Total() int {
	total := 0
	for _, a := range ts {
		total += a.Percent
	}
	return total
}

// Validate checks the split sums to exactly 100.
func (ts TrafficSplit) Validate() error {
	if total := ts.Total(); total != 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidSplit, total)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Results
// -----------------------------------------------------------------------------

// Results caches the most recent analysis outcome on the experiment.
type Results struct {
	// Winner is the provisionally winning variant name, empty if undecided.
	Winner string `json:"winner,omitempty"`

	// PValue is the two-tailed p-value of the last analysis.
	PValue float64 `json:"p_value"`

	// Confidence is 1 - PValue.
	Confidence float64 `json:"confidence"`

	// ImprovementPct is the winner's improvement over the baseline mean.
	ImprovementPct float64 `json:"improvement_pct"`

	// AnalyzedAt is when the analysis ran.
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// -----------------------------------------------------------------------------
// AbTest
// -----------------------------------------------------------------------------

// AbTest is a two-variant (or more) traffic-split experiment over a prompt.
//
// Invariant: at most one AbTest per prompt is in StatusRunning at a time.
// The store enforces this with a uniqueness constraint; the engine assumes
// it holds and does not re-check on every read.
type AbTest struct {
	// ID uniquely identifies the experiment.
	ID string `json:"id"`

	// PromptID references the prompt under experiment.
	PromptID string `json:"prompt_id"`

	// Name is a human-readable experiment name.
	Name string `json:"name"`

	// Status is the lifecycle state.
	Status Status `json:"status"`

	// Metric is the per-response value being optimized.
	Metric Metric `json:"metric"`

	// Direction states whether lower or higher metric values win.
	Direction Direction `json:"direction"`

	// Split is the ordered traffic allocation. Must sum to 100.
	Split TrafficSplit `json:"split"`

	// Variants are the declared variants in order.
	Variants []Variant `json:"variants"`

	// ConfidenceLevel is the required confidence in (0,1), e.g. 0.95.
	ConfidenceLevel float64 `json:"confidence_level"`

	// MinimumDetectableEffect is the target effect size in (0,1).
	MinimumDetectableEffect float64 `json:"minimum_detectable_effect"`

	// MinSampleSize is the pre-declared sample size gate.
	MinSampleSize int `json:"min_sample_size"`

	// Results caches the last analysis, if any.
	Results *Results `json:"results,omitempty"`

	// Winner is the declared winner once completed.
	Winner string `json:"winner,omitempty"`

	// CreatedAt, StartedAt, CompletedAt track the lifecycle timestamps.
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New creates a draft experiment.
func New(promptID, name string, metric Metric, direction Direction) *AbTest {
	return &AbTest{
		ID:              uuid.NewString(),
		PromptID:        promptID,
		Name:            name,
		Status:          StatusDraft,
		Metric:          metric.Canonical(),
		Direction:       direction,
		ConfidenceLevel: 0.95,
		MinSampleSize:   100,
		CreatedAt:       time.Now(),
	}
}

// Defaults are deployment-level experiment settings applied at creation
// when the creator does not override them.
type Defaults struct {
	// ConfidenceLevel is the required confidence in (0,1).
	ConfidenceLevel float64

	// MinSampleSize is the pre-declared sample size gate.
	MinSampleSize int
}

// NewWithDefaults creates a draft experiment with the given defaults applied.
// Out-of-range default values are ignored and the built-in defaults kept.
func NewWithDefaults(promptID, name string, metric Metric, direction Direction, d Defaults) *AbTest {
	t := New(promptID, name, metric, direction)
	if d.ConfidenceLevel > 0 && d.ConfidenceLevel < 1 {
		t.ConfidenceLevel = d.ConfidenceLevel
	}
	if d.MinSampleSize > 0 {
		t.MinSampleSize = d.MinSampleSize
	}
	return t
}

// HasVariant reports whether name is a declared variant.
func (t *AbTest) HasVariant(name string) bool {
	for _, v := range t.Variants {
		if v.Name == name {
			return true
		}
	}
	return false
}

// VariantVersion resolves a variant name to its version reference.
func (t *AbTest) VariantVersion(name string) (string, error) {
	for _, v := range t.Variants {
		if v.Name == name {
			return v.VersionID, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVariant, name)
}

// Start transitions draft -> running and records the start time.
func (t *AbTest) Start(now time.Time) error {
	if t.Status != StatusDraft {
		return fmt.Errorf("%w: %s -> running", ErrInvalidTransition, t.Status)
	}
	if err := t.Split.Validate(); err != nil {
		return err
	}
	for _, a := range t.Split {
		if !t.HasVariant(a.Name) {
			return fmt.Errorf("%w: split references %q", ErrUnknownVariant, a.Name)
		}
	}
	t.Status = StatusRunning
	t.StartedAt = &now
	return nil
}

// Pause transitions running -> paused.
func (t *AbTest) Pause() error {
	if t.Status != StatusRunning {
		return fmt.Errorf("%w: %s -> paused", ErrInvalidTransition, t.Status)
	}
	t.Status = StatusPaused
	return nil
}

// Resume transitions paused -> running.
func (t *AbTest) Resume() error {
	if t.Status != StatusPaused {
		return fmt.Errorf("%w: %s -> running", ErrInvalidTransition, t.Status)
	}
	t.Status = StatusRunning
	return nil
}

// Complete transitions running or paused -> completed with a declared winner.
func (t *AbTest) Complete(winner string, now time.Time) error {
	if t.Status != StatusRunning && t.Status != StatusPaused {
		return fmt.Errorf("%w: %s -> completed", ErrInvalidTransition, t.Status)
	}
	if winner == "" {
		return ErrNoWinner
	}
	if !t.HasVariant(winner) {
		return fmt.Errorf("%w: %q", ErrUnknownVariant, winner)
	}
	t.Status = StatusCompleted
	t.Winner = winner
	t.CompletedAt = &now
	return nil
}

// Cancel transitions any non-terminal status -> cancelled.
func (t *AbTest) Cancel(now time.Time) error {
	if t.Status.Terminal() {
		return fmt.Errorf("%w: %s -> cancelled", ErrInvalidTransition, t.Status)
	}
	t.Status = StatusCancelled
	t.CompletedAt = &now
	return nil
}
