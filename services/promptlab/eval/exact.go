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
	"fmt"
	"strings"

	"github.com/AleutianAI/PromptLab/services/promptlab/prompt"
)

// exactMatchEvaluator requires text equality with an expected string,
// after optional whitespace trimming and case folding.
type exactMatchEvaluator struct {
	resp       *prompt.LlmResponse
	expected   string
	trim       bool
	ignoreCase bool
}

func newExactMatchEvaluator(resp *prompt.LlmResponse, cfg map[string]any) (Evaluator, error) {
	if resp == nil {
		return nil, ErrNilResponse
	}
	expected, ok := cfg["expected"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: exact match evaluator needs an expected string", ErrInvalidConfig)
	}
	return &exactMatchEvaluator{
		resp:       resp,
		expected:   expected,
		trim:       cfgBool(cfg, "trim_whitespace", true),
		ignoreCase: cfgBool(cfg, "ignore_case", false),
	}, nil
}

func (e *exactMatchEvaluator) Evaluate(ctx context.Context) (*Evaluation, error) {
	got, want := e.resp.Text, e.expected
	if e.trim {
		got, want = strings.TrimSpace(got), strings.TrimSpace(want)
	}
	if e.ignoreCase {
		got, want = strings.ToLower(got), strings.ToLower(want)
	}

	passed := got == want
	score := 0.0
	feedback := "response does not match expected text"
	if passed {
		score = ScoreMax
		feedback = "response matches expected text"
	}

	return NewEvaluation(e.resp.ID, KeyExactMatch, score, passed, feedback), nil
}
