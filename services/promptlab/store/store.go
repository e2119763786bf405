// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store defines the persistence contract for PromptLab entities.
//
// Two implementations exist: an in-memory store for tests and ephemeral use,
// and an embedded BadgerDB store (see the badger sub-package) for local
// persistence. Both enforce the same invariants:
//
//   - At most one running experiment per prompt.
//   - At most one evaluator configuration per (owner, evaluator key) pair.
//
// The interfaces here are a superset of the narrow collaborator interfaces
// declared by consumer packages (eval.ConfigSource, eval.EvaluationSink,
// experiment.ResponseSource, experiment.EvaluationSource,
// experiment.PromptSource, experiment.ExperimentSource); any Store satisfies
// all of them.
package store

import (
	"context"
	"errors"

	"github.com/AleutianAI/PromptLab/services/promptlab/eval"
	"github.com/AleutianAI/PromptLab/services/promptlab/experiment"
	"github.com/AleutianAI/PromptLab/services/promptlab/prompt"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when a uniqueness constraint is violated.
	ErrDuplicate = errors.New("entity violates a uniqueness constraint")

	// ErrRunningConflict is returned when saving a running experiment while
	// another experiment is already running for the same prompt.
	ErrRunningConflict = errors.New("another experiment is already running for this prompt")
)

// -----------------------------------------------------------------------------
// Store Interfaces
// -----------------------------------------------------------------------------

// PromptStore persists prompts and their versions.
type PromptStore interface {
	// SavePrompt inserts or updates a prompt.
	SavePrompt(ctx context.Context, p *prompt.Prompt) error

	// GetPrompt returns the prompt by ID, or ErrNotFound.
	GetPrompt(ctx context.Context, id string) (*prompt.Prompt, error)

	// ListPrompts returns all prompts sorted by name.
	ListPrompts(ctx context.Context) ([]*prompt.Prompt, error)

	// SaveVersion inserts or updates a prompt version.
	SaveVersion(ctx context.Context, v *prompt.PromptVersion) error

	// GetVersion returns the version by ID, or ErrNotFound.
	GetVersion(ctx context.Context, id string) (*prompt.PromptVersion, error)

	// ListVersions returns the prompt's versions in ascending number order.
	ListVersions(ctx context.Context, promptID string) ([]*prompt.PromptVersion, error)
}

// ResponseStore persists generated responses.
type ResponseStore interface {
	// SaveResponse inserts or updates a response.
	SaveResponse(ctx context.Context, r *prompt.LlmResponse) error

	// GetResponse returns the response by ID, or ErrNotFound.
	GetResponse(ctx context.Context, id string) (*prompt.LlmResponse, error)

	// ListByVersion returns the version's responses in ascending creation
	// order.
	ListByVersion(ctx context.Context, versionID string) ([]*prompt.LlmResponse, error)

	// ListByExperiment returns all responses tagged with the experiment in
	// ascending creation order.
	ListByExperiment(ctx context.Context, experimentID string) ([]*prompt.LlmResponse, error)
}

// ExperimentStore persists A/B tests and enforces the single-running
// invariant.
type ExperimentStore interface {
	// SaveExperiment inserts or updates an experiment. Saving one in the
	// running state returns ErrRunningConflict when a different experiment
	// is already running for the same prompt.
	SaveExperiment(ctx context.Context, t *experiment.AbTest) error

	// GetExperiment returns the experiment by ID, or ErrNotFound.
	GetExperiment(ctx context.Context, id string) (*experiment.AbTest, error)

	// ListExperiments returns the prompt's experiments in ascending
	// creation order.
	ListExperiments(ctx context.Context, promptID string) ([]*experiment.AbTest, error)

	// Running returns the running experiment for the prompt, or (nil, nil)
	// when none is running.
	Running(ctx context.Context, promptID string) (*experiment.AbTest, error)
}

// ConfigStore persists evaluator configurations and enforces per-owner key
// uniqueness.
type ConfigStore interface {
	// SaveConfig inserts or updates an evaluator configuration. Inserting a
	// second configuration with the same (owner, evaluator key) pair
	// returns ErrDuplicate.
	SaveConfig(ctx context.Context, c *eval.EvaluatorConfig) error

	// GetConfig returns the configuration by ID, or ErrNotFound.
	GetConfig(ctx context.Context, id string) (*eval.EvaluatorConfig, error)

	// ListConfigs returns every configuration for the owner in ascending
	// creation order, enabled or not.
	ListConfigs(ctx context.Context, ownerID string) ([]*eval.EvaluatorConfig, error)

	// ListEnabled returns the enabled configurations for the owner in
	// ascending creation order.
	ListEnabled(ctx context.Context, ownerID string) ([]*eval.EvaluatorConfig, error)
}

// EvaluationStore persists evaluator verdicts.
type EvaluationStore interface {
	// SaveEvaluation inserts or updates an evaluation.
	SaveEvaluation(ctx context.Context, e *eval.Evaluation) error

	// ListByResponse returns the response's evaluations in ascending
	// creation order.
	ListByResponse(ctx context.Context, responseID string) ([]*eval.Evaluation, error)
}

// Store is the full persistence surface.
type Store interface {
	PromptStore
	ResponseStore
	ExperimentStore
	ConfigStore
	EvaluationStore

	// Close releases underlying resources. The in-memory store treats this
	// as a no-op.
	Close() error
}
