// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package eval implements the PromptLab evaluation engine: pluggable
// evaluators, the evaluator registry, and the auto-evaluation pipeline that
// scores generated responses.
//
// The engine is deliberately failure-tolerant. A single misbehaving evaluator
// never aborts a pipeline run; it is logged and skipped so sibling evaluators
// still produce their verdicts. A fully failed run yields zero evaluations,
// which downstream consumers must treat as a valid (if uninformative) state.
package eval

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/PromptLab/services/promptlab/prompt"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrUnknownEvaluator is returned when a key is not in the registry.
	ErrUnknownEvaluator = errors.New("unknown evaluator")

	// ErrInvalidConfig is returned for a malformed evaluator configuration.
	ErrInvalidConfig = errors.New("invalid evaluator configuration")

	// ErrMissingMetadata is returned when a builtin descriptor is incomplete.
	ErrMissingMetadata = errors.New("evaluator descriptor missing required metadata")

	// ErrNilResponse is returned when building an evaluator without a response.
	ErrNilResponse = errors.New("response must not be nil")
)

// -----------------------------------------------------------------------------
// Score Scale
// -----------------------------------------------------------------------------

const (
	// ScoreMin is the lower bound of the evaluator score scale.
	ScoreMin = 0.0

	// ScoreMax is the upper bound of the evaluator score scale.
	ScoreMax = 100.0

	// DefaultThreshold is the pass threshold when none is configured.
	DefaultThreshold = 70.0
)

// -----------------------------------------------------------------------------
// Evaluation Context
// -----------------------------------------------------------------------------

// Context tags where an evaluation was triggered from.
type Context string

const (
	// ContextTrackedCall indicates auto-evaluation of a tracked production call.
	ContextTrackedCall Context = "tracked_call"

	// ContextTestRun indicates evaluation during a test-case run.
	ContextTestRun Context = "test_run"

	// ContextManual indicates an operator-triggered evaluation.
	ContextManual Context = "manual"
)

// -----------------------------------------------------------------------------
// Core Interface
// -----------------------------------------------------------------------------

// Evaluator scores one generated response against one quality criterion.
//
// Implementations are constructed per response via a Builder and must treat
// the response as read-only.
//
// Thread Safety: An Evaluator instance is used by a single goroutine; the
// Builder that creates instances must be safe for concurrent use.
type Evaluator interface {
	// Evaluate produces the verdict for the bound response.
	//
	// Outputs:
	//   - *Evaluation: The verdict. Non-nil when error is nil.
	//   - error: Non-nil on unrecoverable configuration or runtime failure.
	Evaluate(ctx context.Context) (*Evaluation, error)
}

// Builder constructs an evaluator for a response and configuration payload.
//
// Builders validate their configuration eagerly and return ErrInvalidConfig
// (wrapped with detail) for malformed payloads.
type Builder func(resp *prompt.LlmResponse, cfg map[string]any) (Evaluator, error)

// -----------------------------------------------------------------------------
// Evaluator Configuration
// -----------------------------------------------------------------------------

// OwnerKind identifies what an EvaluatorConfig is attached to.
type OwnerKind string

const (
	// OwnerVersion attaches the configuration to a prompt version.
	OwnerVersion OwnerKind = "version"

	// OwnerTestCase attaches the configuration to a single test case.
	OwnerTestCase OwnerKind = "test_case"
)

// EvaluatorConfig attaches one evaluator to a configurable owner.
//
// At most one configuration exists per (owner, evaluator key) pair; the store
// enforces uniqueness.
type EvaluatorConfig struct {
	// ID uniquely identifies the configuration.
	ID string `json:"id"`

	// OwnerID references the owning prompt version or test case.
	OwnerID string `json:"owner_id"`

	// OwnerKind is the kind of owner.
	OwnerKind OwnerKind `json:"owner_kind"`

	// EvaluatorKey is the registry key of the evaluator to run.
	EvaluatorKey string `json:"evaluator_key"`

	// Enabled gates whether the pipeline runs this configuration.
	Enabled bool `json:"enabled"`

	// Config is the free-form evaluator configuration payload.
	Config map[string]any `json:"config,omitempty"`

	// CreatedAt orders configurations for pipeline execution.
	CreatedAt time.Time `json:"created_at"`
}

// -----------------------------------------------------------------------------
// Evaluation Record
// -----------------------------------------------------------------------------

// Evaluation is the persisted verdict of running one evaluator against one
// response.
//
// Evaluations are immutable after creation except for metadata enrichment
// (see EnrichMetadata). Re-running a pipeline creates additional records
// rather than overwriting earlier ones.
type Evaluation struct {
	// ID uniquely identifies the evaluation.
	ID string `json:"id"`

	// ResponseID references the evaluated response.
	ResponseID string `json:"response_id"`

	// EvaluatorKey is the registry key of the evaluator that produced this.
	EvaluatorKey string `json:"evaluator_key"`

	// Score is the raw score on [ScoreMin, ScoreMax].
	Score float64 `json:"score"`

	// ScoreMin is the declared lower bound of the score range.
	ScoreMin float64 `json:"score_min"`

	// ScoreMax is the declared upper bound of the score range.
	ScoreMax float64 `json:"score_max"`

	// Passed is true when the score met the configured threshold.
	Passed bool `json:"passed"`

	// Feedback is a human-readable explanation of the verdict.
	Feedback string `json:"feedback,omitempty"`

	// Context tags what triggered the evaluation.
	Context Context `json:"context"`

	// Metadata carries enrichment such as the producing configuration ID.
	Metadata map[string]any `json:"metadata,omitempty"`

	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"created_at"`
}

// NewEvaluation creates an evaluation on the standard 0-100 scale.
func NewEvaluation(responseID, evaluatorKey string, score float64, passed bool, feedback string) *Evaluation {
	return &Evaluation{
		ID:           uuid.NewString(),
		ResponseID:   responseID,
		EvaluatorKey: evaluatorKey,
		Score:        score,
		ScoreMin:     ScoreMin,
		ScoreMax:     ScoreMax,
		Passed:       passed,
		Feedback:     feedback,
		CreatedAt:    time.Now(),
	}
}

// NormalizedScore maps the raw score onto the unit interval.
func (e *Evaluation) NormalizedScore() float64 {
	return Normalize(e.Score, e.ScoreMin, e.ScoreMax)
}

// EnrichMetadata merges the given keys into the evaluation's metadata.
// This is the only mutation permitted after creation.
func (e *Evaluation) EnrichMetadata(meta map[string]any) {
	if len(meta) == 0 {
		return
	}
	if e.Metadata == nil {
		e.Metadata = make(map[string]any, len(meta))
	}
	for k, v := range meta {
		e.Metadata[k] = v
	}
}
