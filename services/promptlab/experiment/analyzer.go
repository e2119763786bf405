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
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/PromptLab/services/promptlab/eval"
	"github.com/AleutianAI/PromptLab/services/promptlab/prompt"
	"github.com/AleutianAI/PromptLab/services/promptlab/telemetry"
)

// MinResponsesForAnalysis is the readiness gate: an experiment with fewer
// total responses is not ready for even a preliminary analysis.
const MinResponsesForAnalysis = 10

// -----------------------------------------------------------------------------
// Collaborator Interfaces
// -----------------------------------------------------------------------------

// ResponseSource supplies the responses recorded for an experiment.
type ResponseSource interface {
	// ListByExperiment returns all responses tagged with the experiment.
	ListByExperiment(ctx context.Context, experimentID string) ([]*prompt.LlmResponse, error)
}

// EvaluationSource supplies the evaluations recorded for a response.
type EvaluationSource interface {
	// ListByResponse returns all evaluations of the response.
	ListByResponse(ctx context.Context, responseID string) ([]*eval.Evaluation, error)
}

// -----------------------------------------------------------------------------
// Analysis Result
// -----------------------------------------------------------------------------

// VariantStats summarizes one variant's extracted metric values.
type VariantStats struct {
	// Name is the variant label.
	Name string `json:"name"`

	// Count is the number of responses with an extractable metric value.
	Count int `json:"count"`

	// Mean is the arithmetic mean of the metric values.
	Mean float64 `json:"mean"`

	// StdDev is the Bessel-corrected sample standard deviation.
	StdDev float64 `json:"std_dev"`

	// Min and Max bound the observed values.
	Min float64 `json:"min"`
	Max float64 `json:"max"`

	// Median is the middle observed value.
	Median float64 `json:"median"`
}

// Analysis is a point-in-time statistical snapshot of an experiment.
type Analysis struct {
	// Variants maps variant name to its summary statistics.
	// Variants with zero extractable values are omitted.
	Variants map[string]VariantStats `json:"variants"`

	// Winner is the provisionally winning variant, empty when undecided.
	Winner string `json:"winner,omitempty"`

	// PValue is the approximate two-tailed p-value.
	PValue float64 `json:"p_value"`

	// Confidence is 1 - PValue.
	Confidence float64 `json:"confidence"`

	// ImprovementPct is the winner's relative improvement over the loser's
	// mean, in percent.
	ImprovementPct float64 `json:"improvement_pct"`

	// Significant is true when PValue beat the experiment's confidence level.
	Significant bool `json:"significant"`

	// SampleSizeMet is true when the pre-declared minimum sample size was
	// reached. Independent of readiness: an analysis may be a preliminary
	// peek before the declared sample size.
	SampleSizeMet bool `json:"sample_size_met"`

	// AnalyzedAt is when this snapshot was taken.
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// noResult returns the explicit "no conclusion" analysis used whenever fewer
// than two variants have extractable data. Never an error: insufficient data
// is a valid state, not a failure.
func noResult(variants map[string]VariantStats, sampleSizeMet bool, now time.Time) *Analysis {
	return &Analysis{
		Variants:      variants,
		Winner:        "",
		PValue:        1.0,
		Confidence:    0.0,
		Significant:   false,
		SampleSizeMet: sampleSizeMet,
		AnalyzedAt:    now,
	}
}

// -----------------------------------------------------------------------------
// Analyzer
// -----------------------------------------------------------------------------

// Analyzer computes statistical results for experiments.
//
// Description:
//
//	The analyzer reads point-in-time snapshots from its sources; no
//	transaction spans response creation, evaluation, and analysis. A
//	response may legitimately be counted before its async evaluations have
//	completed.
//
// Thread Safety: Safe for concurrent use; the analyzer holds no mutable state.
type Analyzer struct {
	responses ResponseSource
	evals     EvaluationSource
	sink      *telemetry.Sink
	now       func() time.Time
	log       *slog.Logger
}

// AnalyzerOption customizes analyzer construction.
type AnalyzerOption func(*Analyzer)

// WithAnalyzerTelemetry attaches a telemetry sink.
func WithAnalyzerTelemetry(sink *telemetry.Sink) AnalyzerOption {
	return func(a *Analyzer) { a.sink = sink }
}

// NewAnalyzer creates an analyzer over the given sources.
//
// Inputs:
//   - responses: Response source. Must not be nil.
//   - evals: Evaluation source. Required only for the quality_score metric.
//   - now: Clock function. If nil, time.Now is used.
//   - log: Logger. If nil, slog.Default is used.
//   - opts: Optional customizations.
func NewAnalyzer(responses ResponseSource, evals EvaluationSource, now func() time.Time, log *slog.Logger, opts ...AnalyzerOption) *Analyzer {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	a := &Analyzer{responses: responses, evals: evals, now: now, log: log}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ReadyForAnalysis reports whether the experiment can be analyzed at all.
//
// Requires status running and at least MinResponsesForAnalysis total
// responses.
func (a *Analyzer) ReadyForAnalysis(ctx context.Context, t *AbTest) (bool, error) {
	if t.Status != StatusRunning {
		return false, nil
	}
	responses, err := a.responses.ListByExperiment(ctx, t.ID)
	if err != nil {
		return false, fmt.Errorf("listing responses: %w", err)
	}
	return len(responses) >= MinResponsesForAnalysis, nil
}

// SampleSizeMet reports whether the pre-declared minimum sample size was
// reached. Independent gate from ReadyForAnalysis.
func (a *Analyzer) SampleSizeMet(ctx context.Context, t *AbTest) (bool, error) {
	if t.MinSampleSize <= 0 {
		return false, nil
	}
	responses, err := a.responses.ListByExperiment(ctx, t.ID)
	if err != nil {
		return false, fmt.Errorf("listing responses: %w", err)
	}
	return len(responses) >= t.MinSampleSize, nil
}

// Analyze computes a full statistical snapshot of the experiment.
//
// Description:
//
//	Extracts the experiment's metric per variant, summarizes each variant,
//	and runs Welch's t-test over the two variants in name-sorted order.
//	With fewer than two variants holding data, an explicit no-result
//	analysis is returned; Analyze never fails on insufficient data.
//
// Outputs:
//   - *Analysis: The snapshot. Non-nil when error is nil.
//   - error: Non-nil only for source failures.
func (a *Analyzer) Analyze(ctx context.Context, t *AbTest) (*Analysis, error) {
	ctx, span := a.sink.StartSpan(ctx, "promptlab.analyzer.analyze",
		attribute.String("experiment_id", t.ID))
	defer span.End()

	start := time.Now()
	defer func() { a.sink.AnalysisObserved(time.Since(start).Seconds()) }()

	responses, err := a.responses.ListByExperiment(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("listing responses: %w", err)
	}

	values, err := a.extractByVariant(ctx, t, responses)
	if err != nil {
		return nil, err
	}

	variants := make(map[string]VariantStats, len(values))
	for name, samples := range values {
		if len(samples) == 0 {
			continue
		}
		variants[name] = summarize(name, samples)
	}

	sampleSizeMet := t.MinSampleSize > 0 && len(responses) >= t.MinSampleSize
	now := a.now()

	if len(variants) < 2 {
		a.log.Debug("Analysis has insufficient variant data", "experiment", t.ID, "variants", len(variants))
		return noResult(variants, sampleSizeMet, now), nil
	}

	// Two variants in name-sorted order.
	names := make([]string, 0, len(variants))
	for name := range variants {
		names = append(names, name)
	}
	sort.Strings(names)
	nameA, nameB := names[0], names[1]
	samplesA, samplesB := values[nameA], values[nameB]
	statsA, statsB := variants[nameA], variants[nameB]

	pValue := 1.0
	switch result, err := WelchTTest(samplesA, samplesB); {
	case err == nil:
		pValue = result.PValue
	case errors.Is(err, ErrZeroVariance) && statsA.Mean != statsB.Mean:
		// Constant samples with different means: the difference is as
		// certain as the approximation allows.
		pValue = minPValue
	default:
		a.log.Debug("t-test not computable, reporting no significance",
			"experiment", t.ID, "error", err)
	}

	winner, loser := pickWinner(statsA, statsB, t.Direction)
	improvement := 0.0
	if loser.Mean != 0 {
		improvement = eval.Round2(math.Abs(winner.Mean-loser.Mean) / math.Abs(loser.Mean) * 100)
	}

	return &Analysis{
		Variants:       variants,
		Winner:         winner.Name,
		PValue:         pValue,
		Confidence:     eval.Round4(1 - pValue),
		ImprovementPct: improvement,
		Significant:    pValue < (1 - t.ConfidenceLevel),
		SampleSizeMet:  sampleSizeMet,
		AnalyzedAt:     now,
	}, nil
}

// CurrentLeader returns the variant currently ahead by mean, with no
// significance testing. Empty when fewer than two variants have data.
func (a *Analyzer) CurrentLeader(ctx context.Context, t *AbTest) (string, error) {
	responses, err := a.responses.ListByExperiment(ctx, t.ID)
	if err != nil {
		return "", fmt.Errorf("listing responses: %w", err)
	}
	values, err := a.extractByVariant(ctx, t, responses)
	if err != nil {
		return "", err
	}

	var stats []VariantStats
	for name, samples := range values {
		if len(samples) == 0 {
			continue
		}
		stats = append(stats, summarize(name, samples))
	}
	if len(stats) < 2 {
		return "", nil
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })

	leader := stats[0]
	for _, s := range stats[1:] {
		w, _ := pickWinner(leader, s, t.Direction)
		leader = w
	}
	return leader.Name, nil
}

// -----------------------------------------------------------------------------
// Metric Extraction
// -----------------------------------------------------------------------------

// extractByVariant groups the experiment's metric values by variant name.
// Responses without an extractable value are dropped.
func (a *Analyzer) extractByVariant(ctx context.Context, t *AbTest, responses []*prompt.LlmResponse) (map[string][]float64, error) {
	values := make(map[string][]float64, len(t.Variants))
	for _, v := range t.Variants {
		values[v.Name] = nil
	}

	for _, resp := range responses {
		if _, declared := values[resp.VariantName]; !declared {
			continue
		}
		value, ok, err := a.metricValue(ctx, t.Metric, resp)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		values[resp.VariantName] = append(values[resp.VariantName], value)
	}
	return values, nil
}

// metricValue extracts one response's value for the metric. The boolean is
// false when the metric is unavailable for this response.
func (a *Analyzer) metricValue(ctx context.Context, metric Metric, resp *prompt.LlmResponse) (float64, bool, error) {
	switch metric.Canonical() {
	case MetricResponseTime:
		return resp.ResponseTimeMs, resp.ResponseTimeMs > 0, nil
	case MetricCost:
		return resp.CostUSD, resp.CostUSD > 0, nil
	case MetricTokenCount:
		return float64(resp.TokensTotal), resp.TokensTotal > 0, nil
	case MetricSuccessRate:
		if !resp.Status.Terminal() {
			return 0, false, nil
		}
		if resp.Succeeded() {
			return 1.0, true, nil
		}
		return 0.0, true, nil
	case MetricQualityScore:
		if a.evals == nil {
			return 0, false, nil
		}
		evaluations, err := a.evals.ListByResponse(ctx, resp.ID)
		if err != nil {
			return 0, false, fmt.Errorf("listing evaluations: %w", err)
		}
		if len(evaluations) == 0 {
			return 0, false, nil
		}
		var sum float64
		for _, e := range evaluations {
			sum += e.Score
		}
		return sum / float64(len(evaluations)), true, nil
	default:
		return 0, false, nil
	}
}

// summarize computes the per-variant descriptive statistics.
func summarize(name string, samples []float64) VariantStats {
	min, max := samples[0], samples[0]
	for _, s := range samples[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	return VariantStats{
		Name:   name,
		Count:  len(samples),
		Mean:   eval.Round4(Mean(samples)),
		StdDev: eval.Round4(StdDev(samples)),
		Min:    min,
		Max:    max,
		Median: Median(samples),
	}
}

// pickWinner orders two variants (winner, loser) per the optimization
// direction.
func pickWinner(a, b VariantStats, dir Direction) (VariantStats, VariantStats) {
	aWins := a.Mean < b.Mean
	if dir == Maximize {
		aWins = a.Mean > b.Mean
	}
	if aWins {
		return a, b
	}
	return b, a
}
