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
	"testing"
	"time"

	"github.com/AleutianAI/PromptLab/services/promptlab/eval"
	"github.com/AleutianAI/PromptLab/services/promptlab/prompt"
)

// fakeResponseSource serves canned responses keyed by experiment ID.
type fakeResponseSource struct {
	responses map[string][]*prompt.LlmResponse
	err       error
}

func (f *fakeResponseSource) ListByExperiment(_ context.Context, experimentID string) ([]*prompt.LlmResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.responses[experimentID], nil
}

// fakeEvaluationSource serves canned evaluations keyed by response ID.
type fakeEvaluationSource struct {
	evaluations map[string][]*eval.Evaluation
	err         error
}

func (f *fakeEvaluationSource) ListByResponse(_ context.Context, responseID string) ([]*eval.Evaluation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.evaluations[responseID], nil
}

func runningTest(t *testing.T, metric Metric, dir Direction) *AbTest {
	t.Helper()
	test := New("prompt-1", "latency experiment", metric, dir)
	test.Variants = []Variant{
		{Name: "A", VersionID: "v1"},
		{Name: "B", VersionID: "v2"},
	}
	test.Split = TrafficSplit{{Name: "A", Percent: 50}, {Name: "B", Percent: 50}}
	if err := test.Start(time.Now()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return test
}

// timedResponse builds a successful response with the given latency.
func timedResponse(id, experimentID, variant string, ms float64) *prompt.LlmResponse {
	return &prompt.LlmResponse{
		ID:             id,
		VersionID:      "v1",
		Status:         prompt.StatusSuccess,
		ResponseTimeMs: ms,
		ExperimentID:   experimentID,
		VariantName:    variant,
		CreatedAt:      time.Now(),
	}
}

func timedResponses(experimentID, variant string, ms float64, n int) []*prompt.LlmResponse {
	out := make([]*prompt.LlmResponse, n)
	for i := range out {
		out[i] = timedResponse(fmt.Sprintf("%s-%s-%d", experimentID, variant, i), experimentID, variant, ms)
	}
	return out
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestAnalyzer_ReadyForAnalysis(t *testing.T) {
	test := runningTest(t, MetricResponseTime, Minimize)

	t.Run("below threshold", func(t *testing.T) {
		src := &fakeResponseSource{responses: map[string][]*prompt.LlmResponse{
			test.ID: timedResponses(test.ID, "A", 100, MinResponsesForAnalysis-1),
		}}
		a := NewAnalyzer(src, nil, nil, nil)
		ready, err := a.ReadyForAnalysis(context.Background(), test)
		if err != nil {
			t.Fatalf("ReadyForAnalysis() error = %v", err)
		}
		if ready {
			t.Error("ReadyForAnalysis() = true with too few responses")
		}
	})

	t.Run("at threshold", func(t *testing.T) {
		src := &fakeResponseSource{responses: map[string][]*prompt.LlmResponse{
			test.ID: timedResponses(test.ID, "A", 100, MinResponsesForAnalysis),
		}}
		a := NewAnalyzer(src, nil, nil, nil)
		ready, err := a.ReadyForAnalysis(context.Background(), test)
		if err != nil {
			t.Fatalf("ReadyForAnalysis() error = %v", err)
		}
		if !ready {
			t.Error("ReadyForAnalysis() = false at the response threshold")
		}
	})

	t.Run("non-running experiment never ready", func(t *testing.T) {
		draft := New("prompt-1", "draft", MetricResponseTime, Minimize)
		src := &fakeResponseSource{responses: map[string][]*prompt.LlmResponse{
			draft.ID: timedResponses(draft.ID, "A", 100, 50),
		}}
		a := NewAnalyzer(src, nil, nil, nil)
		ready, err := a.ReadyForAnalysis(context.Background(), draft)
		if err != nil {
			t.Fatalf("ReadyForAnalysis() error = %v", err)
		}
		if ready {
			t.Error("ReadyForAnalysis() = true for a draft experiment")
		}
	})

	t.Run("source failure propagates", func(t *testing.T) {
		src := &fakeResponseSource{err: errors.New("backend down")}
		a := NewAnalyzer(src, nil, nil, nil)
		if _, err := a.ReadyForAnalysis(context.Background(), test); err == nil {
			t.Error("ReadyForAnalysis() error = nil, want source failure")
		}
	})
}

func TestAnalyzer_SampleSizeMet(t *testing.T) {
	test := runningTest(t, MetricResponseTime, Minimize)
	test.MinSampleSize = 20

	src := &fakeResponseSource{responses: map[string][]*prompt.LlmResponse{
		test.ID: timedResponses(test.ID, "A", 100, 19),
	}}
	a := NewAnalyzer(src, nil, nil, nil)

	met, err := a.SampleSizeMet(context.Background(), test)
	if err != nil {
		t.Fatalf("SampleSizeMet() error = %v", err)
	}
	if met {
		t.Error("SampleSizeMet() = true with 19 of 20 responses")
	}

	src.responses[test.ID] = timedResponses(test.ID, "A", 100, 20)
	met, err = a.SampleSizeMet(context.Background(), test)
	if err != nil {
		t.Fatalf("SampleSizeMet() error = %v", err)
	}
	if !met {
		t.Error("SampleSizeMet() = false with 20 of 20 responses")
	}
}

func TestAnalyzer_Analyze_ConstantLatency(t *testing.T) {
	test := runningTest(t, MetricResponseTime, Minimize)
	test.MinSampleSize = 20

	responses := append(
		timedResponses(test.ID, "A", 1500, 15),
		timedResponses(test.ID, "B", 1000, 15)...,
	)
	src := &fakeResponseSource{responses: map[string][]*prompt.LlmResponse{test.ID: responses}}

	analyzedAt := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	a := NewAnalyzer(src, nil, fixedClock(analyzedAt), nil)

	analysis, err := a.Analyze(context.Background(), test)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if analysis.Winner != "B" {
		t.Errorf("Winner = %q, want B (lower latency, minimize)", analysis.Winner)
	}
	if analysis.PValue != minPValue {
		t.Errorf("PValue = %v, want %v for constant samples with differing means", analysis.PValue, minPValue)
	}
	if !analysis.Significant {
		t.Error("Significant = false, want true at p=0.001 vs confidence 0.95")
	}
	if analysis.ImprovementPct != 33.33 {
		t.Errorf("ImprovementPct = %v, want 33.33", analysis.ImprovementPct)
	}
	if !analysis.SampleSizeMet {
		t.Error("SampleSizeMet = false with 30 responses against min 20")
	}
	if !analysis.AnalyzedAt.Equal(analyzedAt) {
		t.Errorf("AnalyzedAt = %v, want %v", analysis.AnalyzedAt, analyzedAt)
	}

	statsB, ok := analysis.Variants["B"]
	if !ok {
		t.Fatal("Variants missing B")
	}
	if statsB.Count != 15 || statsB.Mean != 1000 || statsB.StdDev != 0 {
		t.Errorf("B stats = %+v, want count=15 mean=1000 stddev=0", statsB)
	}
	if statsB.Min != 1000 || statsB.Max != 1000 || statsB.Median != 1000 {
		t.Errorf("B bounds = %+v, want all 1000", statsB)
	}
}

func TestAnalyzer_Analyze_MaximizeDirection(t *testing.T) {
	test := runningTest(t, MetricTokenCount, Maximize)

	var responses []*prompt.LlmResponse
	for i := 0; i < 12; i++ {
		responses = append(responses, &prompt.LlmResponse{
			ID:           fmt.Sprintf("a-%d", i),
			Status:       prompt.StatusSuccess,
			TokensTotal:  200 + i,
			ExperimentID: test.ID,
			VariantName:  "A",
		})
		responses = append(responses, &prompt.LlmResponse{
			ID:           fmt.Sprintf("b-%d", i),
			Status:       prompt.StatusSuccess,
			TokensTotal:  100 + i,
			ExperimentID: test.ID,
			VariantName:  "B",
		})
	}
	src := &fakeResponseSource{responses: map[string][]*prompt.LlmResponse{test.ID: responses}}
	a := NewAnalyzer(src, nil, nil, nil)

	analysis, err := a.Analyze(context.Background(), test)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if analysis.Winner != "A" {
		t.Errorf("Winner = %q, want A (more tokens, maximize)", analysis.Winner)
	}
}

func TestAnalyzer_Analyze_SingleVariantNoResult(t *testing.T) {
	test := runningTest(t, MetricResponseTime, Minimize)

	src := &fakeResponseSource{responses: map[string][]*prompt.LlmResponse{
		test.ID: timedResponses(test.ID, "A", 900, 20),
	}}
	a := NewAnalyzer(src, nil, nil, nil)

	analysis, err := a.Analyze(context.Background(), test)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if analysis.Winner != "" {
		t.Errorf("Winner = %q, want empty for single-variant data", analysis.Winner)
	}
	if analysis.PValue != 1.0 {
		t.Errorf("PValue = %v, want 1.0", analysis.PValue)
	}
	if analysis.Significant {
		t.Error("Significant = true for single-variant data")
	}
	if len(analysis.Variants) != 1 {
		t.Errorf("Variants = %d entries, want 1", len(analysis.Variants))
	}
}

func TestAnalyzer_Analyze_SkipsUnavailableMetrics(t *testing.T) {
	test := runningTest(t, MetricResponseTime, Minimize)

	// Zero latency means the metric was never recorded for that response.
	responses := append(
		timedResponses(test.ID, "A", 0, 10),
		timedResponses(test.ID, "B", 800, 10)...,
	)
	src := &fakeResponseSource{responses: map[string][]*prompt.LlmResponse{test.ID: responses}}
	a := NewAnalyzer(src, nil, nil, nil)

	analysis, err := a.Analyze(context.Background(), test)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if _, ok := analysis.Variants["A"]; ok {
		t.Error("variant A present despite having no extractable values")
	}
	if analysis.Winner != "" {
		t.Errorf("Winner = %q, want empty when only one variant has data", analysis.Winner)
	}
}

func TestAnalyzer_Analyze_IgnoresUndeclaredVariants(t *testing.T) {
	test := runningTest(t, MetricResponseTime, Minimize)

	responses := append(
		timedResponses(test.ID, "A", 1200, 10),
		timedResponses(test.ID, "ghost", 5, 10)...,
	)
	src := &fakeResponseSource{responses: map[string][]*prompt.LlmResponse{test.ID: responses}}
	a := NewAnalyzer(src, nil, nil, nil)

	analysis, err := a.Analyze(context.Background(), test)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if _, ok := analysis.Variants["ghost"]; ok {
		t.Error("undeclared variant leaked into the analysis")
	}
}

func TestAnalyzer_Analyze_QualityScore(t *testing.T) {
	test := runningTest(t, MetricQualityScore, Maximize)

	var responses []*prompt.LlmResponse
	evaluations := map[string][]*eval.Evaluation{}
	for i := 0; i < 10; i++ {
		idA, idB := fmt.Sprintf("qa-%d", i), fmt.Sprintf("qb-%d", i)
		responses = append(responses,
			timedResponse(idA, test.ID, "A", 100),
			timedResponse(idB, test.ID, "B", 100),
		)
		evaluations[idA] = []*eval.Evaluation{
			eval.NewEvaluation(idA, "length", 90, true, ""),
			eval.NewEvaluation(idA, "keyword", 70, true, ""),
		}
		evaluations[idB] = []*eval.Evaluation{
			eval.NewEvaluation(idB, "length", 40, false, ""),
		}
	}

	src := &fakeResponseSource{responses: map[string][]*prompt.LlmResponse{test.ID: responses}}
	evalSrc := &fakeEvaluationSource{evaluations: evaluations}
	a := NewAnalyzer(src, evalSrc, nil, nil)

	analysis, err := a.Analyze(context.Background(), test)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if analysis.Winner != "A" {
		t.Errorf("Winner = %q, want A (mean score 80 vs 40)", analysis.Winner)
	}
	if got := analysis.Variants["A"].Mean; got != 80 {
		t.Errorf("A mean score = %v, want 80", got)
	}
	if got := analysis.Variants["B"].Mean; got != 40 {
		t.Errorf("B mean score = %v, want 40", got)
	}
}

func TestAnalyzer_Analyze_QualityScoreWithoutEvaluations(t *testing.T) {
	test := runningTest(t, MetricQualityScore, Maximize)

	src := &fakeResponseSource{responses: map[string][]*prompt.LlmResponse{
		test.ID: append(
			timedResponses(test.ID, "A", 100, 6),
			timedResponses(test.ID, "B", 100, 6)...,
		),
	}}
	a := NewAnalyzer(src, &fakeEvaluationSource{}, nil, nil)

	analysis, err := a.Analyze(context.Background(), test)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(analysis.Variants) != 0 {
		t.Errorf("Variants = %d entries, want 0 when no evaluations exist", len(analysis.Variants))
	}
	if analysis.PValue != 1.0 {
		t.Errorf("PValue = %v, want 1.0", analysis.PValue)
	}
}

func TestAnalyzer_Analyze_SuccessRate(t *testing.T) {
	test := runningTest(t, MetricSuccessRate, Maximize)

	var responses []*prompt.LlmResponse
	for i := 0; i < 10; i++ {
		status := prompt.StatusSuccess
		if i >= 8 {
			status = prompt.StatusError
		}
		responses = append(responses, &prompt.LlmResponse{
			ID:           fmt.Sprintf("sa-%d", i),
			Status:       status,
			ExperimentID: test.ID,
			VariantName:  "A",
		})
	}
	for i := 0; i < 10; i++ {
		status := prompt.StatusSuccess
		if i >= 4 {
			status = prompt.StatusTimeout
		}
		responses = append(responses, &prompt.LlmResponse{
			ID:           fmt.Sprintf("sb-%d", i),
			Status:       status,
			ExperimentID: test.ID,
			VariantName:  "B",
		})
	}
	// Pending responses carry no success signal yet.
	responses = append(responses, &prompt.LlmResponse{
		ID:           "pending-1",
		Status:       prompt.StatusPending,
		ExperimentID: test.ID,
		VariantName:  "A",
	})

	src := &fakeResponseSource{responses: map[string][]*prompt.LlmResponse{test.ID: responses}}
	a := NewAnalyzer(src, nil, nil, nil)

	analysis, err := a.Analyze(context.Background(), test)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if analysis.Winner != "A" {
		t.Errorf("Winner = %q, want A (80%% vs 40%% success)", analysis.Winner)
	}
	if got := analysis.Variants["A"].Count; got != 10 {
		t.Errorf("A count = %d, want 10 (pending response excluded)", got)
	}
	if got := analysis.Variants["A"].Mean; got != 0.8 {
		t.Errorf("A success rate = %v, want 0.8", got)
	}
}

func TestAnalyzer_Analyze_SourceFailure(t *testing.T) {
	test := runningTest(t, MetricResponseTime, Minimize)
	a := NewAnalyzer(&fakeResponseSource{err: errors.New("backend down")}, nil, nil, nil)
	if _, err := a.Analyze(context.Background(), test); err == nil {
		t.Error("Analyze() error = nil, want source failure")
	}
}

func TestAnalyzer_CurrentLeader(t *testing.T) {
	test := runningTest(t, MetricResponseTime, Minimize)

	t.Run("leader by mean", func(t *testing.T) {
		src := &fakeResponseSource{responses: map[string][]*prompt.LlmResponse{
			test.ID: append(
				timedResponses(test.ID, "A", 1500, 5),
				timedResponses(test.ID, "B", 1000, 5)...,
			),
		}}
		a := NewAnalyzer(src, nil, nil, nil)
		leader, err := a.CurrentLeader(context.Background(), test)
		if err != nil {
			t.Fatalf("CurrentLeader() error = %v", err)
		}
		if leader != "B" {
			t.Errorf("CurrentLeader() = %q, want B", leader)
		}
	})

	t.Run("no leader with one variant", func(t *testing.T) {
		src := &fakeResponseSource{responses: map[string][]*prompt.LlmResponse{
			test.ID: timedResponses(test.ID, "A", 1500, 5),
		}}
		a := NewAnalyzer(src, nil, nil, nil)
		leader, err := a.CurrentLeader(context.Background(), test)
		if err != nil {
			t.Fatalf("CurrentLeader() error = %v", err)
		}
		if leader != "" {
			t.Errorf("CurrentLeader() = %q, want empty", leader)
		}
	})
}

func TestAnalyzer_Analyze_ObservesDuration(t *testing.T) {
	test := runningTest(t, MetricResponseTime, Minimize)
	src := &fakeResponseSource{responses: map[string][]*prompt.LlmResponse{
		test.ID: append(
			timedResponses(test.ID, "A", 1500, 15),
			timedResponses(test.ID, "B", 1000, 15)...),
	}}
	sink, reg := testSink(t)
	a := NewAnalyzer(src, nil, nil, nil, WithAnalyzerTelemetry(sink))

	for i := 0; i < 2; i++ {
		if _, err := a.Analyze(context.Background(), test); err != nil {
			t.Fatalf("Analyze() error = %v", err)
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	var samples uint64
	for _, mf := range families {
		if mf.GetName() != "promptlab_analysis_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			samples += m.GetHistogram().GetSampleCount()
		}
	}
	if samples != 2 {
		t.Errorf("analysis_duration sample count = %d, want 2", samples)
	}
}
