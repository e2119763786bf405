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

// keywordEvaluator passes when every required keyword is present and no
// forbidden keyword appears. Matching is case-insensitive unless
// case_sensitive is set. With no keywords configured the checks hold
// vacuously and the evaluation is a trivial pass, so the registered default
// configuration always builds.
type keywordEvaluator struct {
	resp          *prompt.LlmResponse
	required      []string
	forbidden     []string
	caseSensitive bool
}

func newKeywordEvaluator(resp *prompt.LlmResponse, cfg map[string]any) (Evaluator, error) {
	if resp == nil {
		return nil, ErrNilResponse
	}
	return &keywordEvaluator{
		resp:          resp,
		required:      cfgStrings(cfg, "required"),
		forbidden:     cfgStrings(cfg, "forbidden"),
		caseSensitive: cfgBool(cfg, "case_sensitive", false),
	}, nil
}

func (e *keywordEvaluator) Evaluate(ctx context.Context) (*Evaluation, error) {
	if len(e.required) == 0 && len(e.forbidden) == 0 {
		return NewEvaluation(e.resp.ID, KeyKeyword, ScoreMax, true, "no keyword checks configured"), nil
	}

	text := e.resp.Text
	if !e.caseSensitive {
		text = strings.ToLower(text)
	}

	contains := func(keyword string) bool {
		if !e.caseSensitive {
			keyword = strings.ToLower(keyword)
		}
		return strings.Contains(text, keyword)
	}

	var missing, present []string
	for _, kw := range e.required {
		if !contains(kw) {
			missing = append(missing, kw)
		}
	}
	for _, kw := range e.forbidden {
		if contains(kw) {
			present = append(present, kw)
		}
	}

	passed := len(missing) == 0 && len(present) == 0
	score := 0.0
	feedback := "all keyword checks passed"
	if passed {
		score = ScoreMax
	} else {
		var parts []string
		if len(missing) > 0 {
			parts = append(parts, fmt.Sprintf("missing required keywords: %s", strings.Join(missing, ", ")))
		}
		if len(present) > 0 {
			parts = append(parts, fmt.Sprintf("forbidden keywords present: %s", strings.Join(present, ", ")))
		}
		feedback = strings.Join(parts, "; ")
	}

	return NewEvaluation(e.resp.ID, KeyKeyword, score, passed, feedback), nil
}
