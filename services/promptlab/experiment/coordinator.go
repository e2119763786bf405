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
	"context"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/PromptLab/services/promptlab/prompt"
	"github.com/AleutianAI/PromptLab/services/promptlab/telemetry"
)

// PromptSource resolves prompt records.
type PromptSource interface {
	// GetPrompt returns the prompt by ID.
	GetPrompt(ctx context.Context, id string) (*prompt.Prompt, error)
}

// ExperimentSource resolves the running experiment for a prompt.
type ExperimentSource interface {
	// Running returns the single running experiment for the prompt, or
	// (nil, nil) when none is running. The single-running-experiment
	// invariant is enforced by the store's uniqueness constraint.
	Running(ctx context.Context, promptID string) (*AbTest, error)
}

// Selection is the routing decision for one tracked call.
type Selection struct {
	// VersionID is the prompt version to use for this call.
	VersionID string

	// Experiment is the running experiment that routed the call, or nil.
	Experiment *AbTest

	// Variant is the selected variant name, empty when no experiment runs.
	Variant string
}

// Coordinator decides which prompt version each call should use.
//
// Thread Safety: Safe for concurrent use.
type Coordinator struct {
	prompts     PromptSource
	experiments ExperimentSource
	selector    *Selector
	sink        *telemetry.Sink
	log         *slog.Logger
}

// CoordinatorOption customizes coordinator construction.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorTelemetry attaches a telemetry sink.
func WithCoordinatorTelemetry(sink *telemetry.Sink) CoordinatorOption {
	return func(c *Coordinator) { c.sink = sink }
}

// NewCoordinator creates a coordinator.
//
// Inputs:
//   - prompts: Prompt source. Must not be nil.
//   - experiments: Experiment source. Must not be nil.
//   - selector: Variant selector. If nil, a default random selector is used.
//   - log: Logger. If nil, slog.Default is used.
//   - opts: Optional customizations.
func NewCoordinator(prompts PromptSource, experiments ExperimentSource, selector *Selector, log *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	if selector == nil {
		selector = NewSelector(nil)
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Coordinator{prompts: prompts, experiments: experiments, selector: selector, log: log}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SelectVersionFor resolves the version, experiment, and variant for the
// next call to the prompt.
//
// Description:
//
//	With no running experiment, the prompt's active version is returned
//	with a nil experiment. With a running experiment, the selector draws a
//	variant by traffic weight and the variant's version reference is
//	resolved. Every call draws fresh randomness; assignment is not sticky.
//
// Outputs:
//   - Selection: The routing decision.
//   - error: Non-nil on source failure or a variant without a version.
func (c *Coordinator) SelectVersionFor(ctx context.Context, promptID string) (Selection, error) {
	p, err := c.prompts.GetPrompt(ctx, promptID)
	if err != nil {
		return Selection{}, fmt.Errorf("resolving prompt %s: %w", promptID, err)
	}

	running, err := c.experiments.Running(ctx, promptID)
	if err != nil {
		return Selection{}, fmt.Errorf("resolving running experiment for prompt %s: %w", promptID, err)
	}
	if running == nil {
		return Selection{VersionID: p.ActiveVersionID}, nil
	}

	variant := c.selector.SelectVariant(running.Split)
	versionID, err := running.VariantVersion(variant)
	if err != nil {
		return Selection{}, fmt.Errorf("experiment %s: %w", running.ID, err)
	}

	c.sink.VariantSelected(running.ID, variant)
	c.log.Debug("Routed call through experiment",
		"prompt", promptID, "experiment", running.ID, "variant", variant)

	return Selection{
		VersionID:  versionID,
		Experiment: running,
		Variant:    variant,
	}, nil
}

// IsRunning reports whether the prompt has a running experiment.
func (c *Coordinator) IsRunning(ctx context.Context, promptID string) (bool, error) {
	running, err := c.experiments.Running(ctx, promptID)
	if err != nil {
		return false, err
	}
	return running != nil, nil
}

// ValidVariant reports whether name is declared on the experiment.
func (c *Coordinator) ValidVariant(t *AbTest, name string) bool {
	return t != nil && t.HasVariant(name)
}
