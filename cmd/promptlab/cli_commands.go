// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/PromptLab/pkg/ux"
	"github.com/AleutianAI/PromptLab/services/promptlab/eval"
	"github.com/AleutianAI/PromptLab/services/promptlab/experiment"
	"github.com/AleutianAI/PromptLab/services/promptlab/llm"
	"github.com/AleutianAI/PromptLab/services/promptlab/prompt"
	"github.com/AleutianAI/PromptLab/services/promptlab/store"
	badgerstore "github.com/AleutianAI/PromptLab/services/promptlab/store/badger"
)

// EvaluatorSpec is one entry of the --evaluators YAML file.
type EvaluatorSpec struct {
	Key    string         `yaml:"key"`
	Config map[string]any `yaml:"config"`
}

var (
	rootCmd = &cobra.Command{
		Use:   "promptlab",
		Short: "A CLI for prompt evaluation and A/B experimentation",
		Long: `PromptLab scores LLM responses with configurable evaluators and
compares prompt versions with statistically grounded A/B tests.`,
	}

	evaluatorsCmd = &cobra.Command{
		Use:   "evaluators",
		Short: "List the available evaluator types",
		Run:   runEvaluators,
	}

	evaluateText string
	evaluateFile string
	evalSpecPath string

	evaluateCmd = &cobra.Command{
		Use:   "evaluate",
		Short: "Run evaluators against a response text",
		Long: `Runs the evaluators described in the --evaluators YAML file against
the given text and prints each verdict. The file holds a list of entries:

  - key: length
    config:
      min_length: 50
  - key: keyword
    config:
      required: ["refund"]`,
		Run: runEvaluate,
	}

	analyzeExperimentID string

	analyzeCmd = &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a completed or running A/B experiment",
		Run:   runAnalyze,
	}

	createPromptID  string
	createName      string
	createMetric    string
	createDirection string
	createVariants  []string
	createSplit     []string
	createStart     bool

	createCmd = &cobra.Command{
		Use:   "create",
		Short: "Create an A/B experiment over prompt versions",
		Long: `Creates a draft experiment for a prompt. Variants bind a label to a
prompt version and the split allocates integer traffic percentages:

  promptlab create --prompt p1 --name "greeting latency" \
    --metric response_time --direction minimize \
    --variant A=v1 --variant B=v2 --split A=50 --split B=50 --start

The confidence level and sample size target come from the experiment
section of the configuration.`,
		Run: runCreate,
	}

	plainOutput bool
)

func init() {
	evaluateCmd.Flags().StringVar(&evaluateText, "text", "", "Response text to evaluate")
	evaluateCmd.Flags().StringVar(&evaluateFile, "file", "", "File containing the response text")
	evaluateCmd.Flags().StringVar(&evalSpecPath, "evaluators", "", "YAML file describing the evaluators to run")

	analyzeCmd.Flags().StringVar(&analyzeExperimentID, "experiment", "", "Experiment ID to analyze")

	createCmd.Flags().StringVar(&createPromptID, "prompt", "", "Prompt ID the experiment belongs to")
	createCmd.Flags().StringVar(&createName, "name", "", "Experiment name")
	createCmd.Flags().StringVar(&createMetric, "metric", "response_time", "Metric to optimize")
	createCmd.Flags().StringVar(&createDirection, "direction", "minimize", "Optimization direction: minimize or maximize")
	createCmd.Flags().StringArrayVar(&createVariants, "variant", nil, "Variant as name=versionID (repeatable)")
	createCmd.Flags().StringArrayVar(&createSplit, "split", nil, "Traffic share as name=percent (repeatable)")
	createCmd.Flags().BoolVar(&createStart, "start", false, "Start the experiment immediately")

	rootCmd.PersistentFlags().BoolVar(&plainOutput, "plain", false, "Disable styled output")

	rootCmd.AddCommand(evaluatorsCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(createCmd)
}

// openStore opens the configured persistence backend.
func openStore() (store.Store, error) {
	switch cfg.Store.Backend {
	case "badger":
		return badgerstore.Open(badgerstore.Config{
			Path:       cfg.Store.Path,
			SyncWrites: cfg.Store.SyncWrites,
			Logger:     appLogger.Slog(),
		})
	default:
		return store.NewMemoryStore(), nil
	}
}

// buildRegistry creates the evaluator registry with the configured judge.
// A missing API key still yields a usable registry; only llm_judge runs
// will fail.
func buildRegistry() *eval.Registry {
	judge, err := llm.FromEnv(cfg.Judge.Model)
	if err != nil {
		slog.Warn("Judge client unavailable, llm_judge evaluations will be skipped", "error", err)
	}
	return eval.NewBuiltinRegistry(appLogger.Slog(), judge)
}

func runEvaluators(_ *cobra.Command, _ []string) {
	registry := buildRegistry()
	ux.Title("Available evaluators")
	for _, key := range registry.List() {
		entry, ok := registry.Get(key)
		if !ok {
			continue
		}
		ux.Info(fmt.Sprintf("%-8s %-14s %s", entry.Icon, entry.Key, entry.Description))
	}
}

func runEvaluate(cmd *cobra.Command, _ []string) {
	text := evaluateText
	if text == "" && evaluateFile != "" {
		data, err := os.ReadFile(evaluateFile)
		if err != nil {
			slog.Error("Failed to read response file", "path", evaluateFile, "error", err)
			return
		}
		text = string(data)
	}
	if text == "" {
		ux.Error("provide a response via --text or --file")
		return
	}
	if evalSpecPath == "" {
		ux.Error("provide an evaluator spec file via --evaluators")
		return
	}

	data, err := os.ReadFile(evalSpecPath)
	if err != nil {
		slog.Error("Failed to read evaluator spec", "path", evalSpecPath, "error", err)
		return
	}
	var specs []EvaluatorSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		slog.Error("Failed to parse evaluator spec", "error", err)
		return
	}
	if len(specs) == 0 {
		slog.Error("Evaluator spec file is empty", "path", evalSpecPath)
		return
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openStore()
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		return
	}
	defer st.Close()

	// Build an ad-hoc response and configs, then run the full pipeline so
	// manual runs behave exactly like tracked ones.
	resp := prompt.NewResponse("adhoc", nil)
	resp.Text = text
	if err := resp.Finalize(prompt.StatusSuccess); err != nil {
		slog.Error("Failed to finalize response", "error", err)
		return
	}
	if err := st.SaveResponse(ctx, resp); err != nil {
		slog.Error("Failed to save response", "error", err)
		return
	}

	created := time.Now()
	for i, spec := range specs {
		c := &eval.EvaluatorConfig{
			ID:           uuid.NewString(),
			OwnerID:      resp.VersionID,
			OwnerKind:    eval.OwnerVersion,
			EvaluatorKey: spec.Key,
			Enabled:      true,
			Config:       spec.Config,
			CreatedAt:    created.Add(time.Duration(i) * time.Millisecond),
		}
		if err := st.SaveConfig(ctx, c); err != nil {
			slog.Error("Failed to save evaluator config", "evaluator", spec.Key, "error", err)
			return
		}
	}

	pipeline := eval.NewPipeline(buildRegistry(), st, st, appLogger.Slog(), eval.WithTelemetry(appSink))
	results := pipeline.Run(ctx, resp, eval.ContextManual)
	pipeline.Wait()

	// Async evaluators surface in the store after Wait.
	stored, err := st.ListByResponse(ctx, resp.ID)
	if err == nil && len(stored) > len(results) {
		results = stored
	}

	if len(results) == 0 {
		ux.Warning("no evaluations produced (see log for skipped evaluators)")
		return
	}
	for _, e := range results {
		ux.VerdictLine(e.EvaluatorKey, e.Score, e.Passed, e.Feedback)
	}
}

// parseVariants parses repeated name=versionID pairs.
func parseVariants(pairs []string) ([]experiment.Variant, error) {
	variants := make([]experiment.Variant, 0, len(pairs))
	for _, p := range pairs {
		name, versionID, ok := strings.Cut(p, "=")
		if !ok || name == "" || versionID == "" {
			return nil, fmt.Errorf("invalid variant %q, want name=versionID", p)
		}
		variants = append(variants, experiment.Variant{Name: name, VersionID: versionID})
	}
	return variants, nil
}

// parseSplit parses repeated name=percent pairs, preserving declaration order.
func parseSplit(pairs []string) (experiment.TrafficSplit, error) {
	split := make(experiment.TrafficSplit, 0, len(pairs))
	for _, p := range pairs {
		name, pctText, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid split %q, want name=percent", p)
		}
		pct, err := strconv.Atoi(pctText)
		if err != nil || pct < 0 || pct > 100 {
			return nil, fmt.Errorf("invalid split percentage %q for variant %s", pctText, name)
		}
		split = append(split, experiment.Allocation{Name: name, Percent: pct})
	}
	return split, nil
}

func runCreate(cmd *cobra.Command, _ []string) {
	if createPromptID == "" || createName == "" {
		ux.Error("provide --prompt and --name")
		return
	}
	if createDirection != string(experiment.Minimize) && createDirection != string(experiment.Maximize) {
		ux.Error("direction must be minimize or maximize")
		return
	}
	variants, err := parseVariants(createVariants)
	if err != nil {
		ux.Error(err.Error())
		return
	}
	if len(variants) < 2 {
		ux.Error("declare at least two variants via --variant")
		return
	}
	split, err := parseSplit(createSplit)
	if err != nil {
		ux.Error(err.Error())
		return
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openStore()
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		return
	}
	defer st.Close()

	test := experiment.NewWithDefaults(createPromptID, createName,
		experiment.Metric(createMetric), experiment.Direction(createDirection),
		experiment.Defaults{
			ConfidenceLevel: cfg.Experiment.ConfidenceLevel,
			MinSampleSize:   cfg.Experiment.MinSampleSize,
		})
	test.Variants = variants
	test.Split = split

	if createStart {
		if err := test.Start(time.Now()); err != nil {
			ux.Error(fmt.Sprintf("cannot start experiment: %v", err))
			return
		}
	}
	if err := st.SaveExperiment(ctx, test); err != nil {
		slog.Error("Failed to save experiment", "experiment", test.ID, "error", err)
		return
	}

	ux.Box(fmt.Sprintf("Experiment %s", test.ID), fmt.Sprintf(
		"prompt: %s\nmetric: %s (%s)\nstatus: %s\nconfidence level: %.2f\nsample size target: %d",
		test.PromptID, test.Metric, test.Direction, test.Status,
		test.ConfidenceLevel, test.MinSampleSize))
}

func runAnalyze(cmd *cobra.Command, _ []string) {
	if analyzeExperimentID == "" {
		ux.Error("provide an experiment ID via --experiment")
		return
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := openStore()
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		return
	}
	defer st.Close()

	test, err := st.GetExperiment(ctx, analyzeExperimentID)
	if err != nil {
		slog.Error("Failed to load experiment", "experiment", analyzeExperimentID, "error", err)
		return
	}

	analyzer := experiment.NewAnalyzer(st, st, nil, appLogger.Slog(),
		experiment.WithAnalyzerTelemetry(appSink))
	analysis, err := analyzer.Analyze(ctx, test)
	if err != nil {
		slog.Error("Analysis failed", "experiment", test.ID, "error", err)
		return
	}

	ux.Title(fmt.Sprintf("Experiment: %s (%s)", test.Name, test.ID))
	ux.Muted(fmt.Sprintf("metric %s, direction %s", test.Metric, test.Direction))
	for name, stats := range analysis.Variants {
		ux.VariantLine(name, stats.Count, stats.Mean, stats.StdDev, name == analysis.Winner)
	}
	ux.Verdict(analysis.Winner, analysis.PValue, analysis.ImprovementPct, analysis.Significant)
	if !analysis.SampleSizeMet {
		ux.Muted(fmt.Sprintf("sample size target of %d not reached yet", test.MinSampleSize))
	}
}
