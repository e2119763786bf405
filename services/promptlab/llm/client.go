// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the judge-model invocation collaborator for the
// llm-judge evaluator. It exposes a narrow structured-output contract so the
// evaluation engine never depends on a specific provider SDK.
package llm

import (
	"context"
	"errors"
	"os"
	"strings"
)

var (
	// ErrNoVerdict is returned when the model produced no usable verdict.
	ErrNoVerdict = errors.New("judge returned no verdict")

	// ErrMissingAPIKey is returned when no provider credentials are available.
	ErrMissingAPIKey = errors.New("judge API key not configured")
)

// MockJudgeEnv toggles the deterministic mock judge when set to a truthy
// value. The mock keeps the full pipeline testable without a live model.
const MockJudgeEnv = "PROMPTLAB_MOCK_JUDGE"

// JudgeRequest is one structured judging call.
type JudgeRequest struct {
	// Model is the provider model identifier. Empty selects the client default.
	Model string

	// Prompt is the fully assembled judging prompt.
	Prompt string
}

// JudgeVerdict is the fixed output schema every judge must return.
type JudgeVerdict struct {
	// OverallScore is the judge's score on [0, 100].
	OverallScore float64 `json:"overall_score"`

	// Feedback is the judge's free-text reasoning.
	Feedback string `json:"feedback"`

	// Synthetic marks verdicts produced by the mock judge.
	Synthetic bool `json:"-"`
}

// JudgeClient invokes a language model configured for structured output.
//
// Thread Safety: Implementations must be safe for concurrent use.
type JudgeClient interface {
	// Judge runs one structured judging call.
	Judge(ctx context.Context, req JudgeRequest) (*JudgeVerdict, error)
}

// FromEnv returns the judge client selected by the environment: the
// deterministic mock when MockJudgeEnv is truthy, the OpenAI-backed client
// otherwise. model is the configured default judge model; empty falls back
// to the provider's own default resolution.
func FromEnv(model string) (JudgeClient, error) {
	if envTrue(MockJudgeEnv) {
		return NewMockJudge(0), nil
	}
	return NewOpenAIJudge(model)
}

func envTrue(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
