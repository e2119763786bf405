// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package eval

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/AleutianAI/PromptLab/services/promptlab/prompt"
	"github.com/AleutianAI/PromptLab/services/promptlab/telemetry"
)

// -----------------------------------------------------------------------------
// Collaborator Interfaces
// -----------------------------------------------------------------------------

// ConfigSource supplies the evaluator configurations attached to an owner.
type ConfigSource interface {
	// ListEnabled returns the enabled configurations for the owner in
	// ascending creation order.
	ListEnabled(ctx context.Context, ownerID string) ([]*EvaluatorConfig, error)
}

// EvaluationSink persists produced evaluations.
type EvaluationSink interface {
	// SaveEvaluation stores one evaluation.
	SaveEvaluation(ctx context.Context, evaluation *Evaluation) error
}

// -----------------------------------------------------------------------------
// Pipeline
// -----------------------------------------------------------------------------

// defaultAsyncLimit bounds concurrently running async evaluators.
const defaultAsyncLimit = 4

// Pipeline runs every enabled evaluator configuration against a response.
//
// Description:
//
//	Configurations run in ascending creation order. A failing evaluator is
//	logged and skipped; sibling evaluators still run, and the pipeline
//	never returns an error to its caller. A fully failed run produces zero
//	evaluations, which downstream consumers must treat as a valid state.
//
//	Evaluators whose keys appear in the async set (by default only
//	llm_judge) are handed to a bounded background pool, fire-and-forget:
//	Run does not wait for them and no ordering guarantee exists between
//	async completions and synchronous ones. Callers wanting up-to-date
//	evaluation status poll the store. Wait is available for tests and
//	shutdown.
//
// Thread Safety: Safe for concurrent use.
type Pipeline struct {
	registry *Registry
	configs  ConfigSource
	sink     EvaluationSink
	sink2    *telemetry.Sink
	log      *slog.Logger

	asyncKeys map[string]bool
	sem       *semaphore.Weighted
	wg        sync.WaitGroup
}

// PipelineOption customizes pipeline construction.
type PipelineOption func(*Pipeline)

// WithTelemetry attaches a telemetry sink.
func WithTelemetry(sink *telemetry.Sink) PipelineOption {
	return func(p *Pipeline) { p.sink2 = sink }
}

// WithAsyncKeys overrides which evaluator keys run asynchronously.
func WithAsyncKeys(keys ...string) PipelineOption {
	return func(p *Pipeline) {
		p.asyncKeys = make(map[string]bool, len(keys))
		for _, k := range keys {
			p.asyncKeys[CanonicalKey(k)] = true
		}
	}
}

// WithAsyncLimit bounds the number of concurrently running async evaluators.
func WithAsyncLimit(n int64) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.sem = semaphore.NewWeighted(n)
		}
	}
}

// NewPipeline creates a pipeline.
//
// Inputs:
//   - registry: Evaluator registry. Must not be nil.
//   - configs: Configuration source. Must not be nil.
//   - sink: Evaluation sink. Must not be nil.
//   - log: Logger. If nil, slog.Default is used.
//   - opts: Optional customizations.
func NewPipeline(registry *Registry, configs ConfigSource, sink EvaluationSink, log *slog.Logger, opts ...PipelineOption) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{
		registry:  registry,
		configs:   configs,
		sink:      sink,
		log:       log,
		asyncKeys: map[string]bool{KeyLlmJudge: true},
		sem:       semaphore.NewWeighted(defaultAsyncLimit),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run evaluates the response with every enabled configuration of its owning
// version.
//
// Description:
//
//	Each run is additive: re-running for the same response creates new
//	evaluation records rather than replacing earlier ones, matching real
//	re-evaluation semantics. Synchronously produced evaluations are
//	returned; async evaluations surface in the sink when they complete.
//
// Inputs:
//   - ctx: Context for the synchronous portion of the run.
//   - resp: The response to evaluate. Must not be nil.
//   - evalCtx: The evaluation context tag to stamp on results.
//
// Outputs:
//   - []*Evaluation: The synchronously produced evaluations, possibly empty.
//
// Thread Safety: Safe for concurrent use.
func (p *Pipeline) Run(ctx context.Context, resp *prompt.LlmResponse, evalCtx Context) []*Evaluation {
	if resp == nil {
		return nil
	}

	ctx, span := p.sink2.StartSpan(ctx, "promptlab.pipeline.run",
		attribute.String("response_id", resp.ID))
	defer span.End()

	configs, err := p.configs.ListEnabled(ctx, resp.VersionID)
	if err != nil {
		p.log.Error("Listing evaluator configurations failed", "version", resp.VersionID, "error", err)
		return nil
	}
	// Stable, deterministic execution order.
	sort.SliceStable(configs, func(i, j int) bool {
		return configs[i].CreatedAt.Before(configs[j].CreatedAt)
	})

	var results []*Evaluation
	for _, cfg := range configs {
		if p.asyncKeys[CanonicalKey(cfg.EvaluatorKey)] {
			p.dispatchAsync(resp, cfg, evalCtx)
			continue
		}
		if evaluation := p.runOne(ctx, resp, cfg, evalCtx); evaluation != nil {
			results = append(results, evaluation)
		}
	}
	return results
}

// Wait blocks until all in-flight async evaluators have completed.
// Intended for tests and orderly shutdown.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// dispatchAsync schedules one evaluator on the background pool.
// Scheduling is fire-and-forget; the async run uses a fresh background
// context so it is not cancelled when the originating call returns.
func (p *Pipeline) dispatchAsync(resp *prompt.LlmResponse, cfg *EvaluatorConfig, evalCtx Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx := context.Background()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			p.log.Error("Async evaluator admission failed", "evaluator", cfg.EvaluatorKey, "error", err)
			return
		}
		defer p.sem.Release(1)
		p.runOne(ctx, resp, cfg, evalCtx)
	}()
}

// runOne builds and runs a single evaluator, persists the evaluation, and
// isolates any failure.
func (p *Pipeline) runOne(ctx context.Context, resp *prompt.LlmResponse, cfg *EvaluatorConfig, evalCtx Context) *Evaluation {
	evaluator, err := p.registry.Build(cfg.EvaluatorKey, resp, cfg.Config)
	if err != nil {
		p.log.Warn("Skipping evaluator that failed to build",
			"evaluator", cfg.EvaluatorKey, "response", resp.ID, "error", err)
		p.sink2.EvaluatorFailed(cfg.EvaluatorKey)
		return nil
	}

	evaluation, err := evaluator.Evaluate(ctx)
	if err != nil {
		p.log.Warn("Skipping evaluator that failed to evaluate",
			"evaluator", cfg.EvaluatorKey, "response", resp.ID, "error", err)
		p.sink2.EvaluatorFailed(cfg.EvaluatorKey)
		return nil
	}

	evaluation.Context = evalCtx
	evaluation.EnrichMetadata(map[string]any{"config_id": cfg.ID})

	if err := p.sink.SaveEvaluation(ctx, evaluation); err != nil {
		p.log.Error("Persisting evaluation failed",
			"evaluator", cfg.EvaluatorKey, "response", resp.ID, "error", err)
		return nil
	}

	p.sink2.EvaluationCompleted(cfg.EvaluatorKey, evaluation.Passed)
	return evaluation
}
