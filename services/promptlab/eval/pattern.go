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
	"regexp"
	"strings"

	"github.com/AleutianAI/PromptLab/services/promptlab/prompt"
)

// patternEvaluator requires the response to match the configured regular
// expressions. With match_all (the default) every pattern must match;
// otherwise a single match suffices. Patterns are compiled at build time so
// an invalid expression fails fast as a configuration error.
type patternEvaluator struct {
	resp     *prompt.LlmResponse
	patterns []*regexp.Regexp
	matchAll bool
}

func newPatternEvaluator(resp *prompt.LlmResponse, cfg map[string]any) (Evaluator, error) {
	if resp == nil {
		return nil, ErrNilResponse
	}
	raw := cfgStrings(cfg, "patterns")
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: pattern evaluator needs at least one pattern", ErrInvalidConfig)
	}
	patterns := make([]*regexp.Regexp, 0, len(raw))
	for _, p := range raw {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: pattern %q: %v", ErrInvalidConfig, p, err)
		}
		patterns = append(patterns, re)
	}
	return &patternEvaluator{
		resp:     resp,
		patterns: patterns,
		matchAll: cfgBool(cfg, "match_all", true),
	}, nil
}

func (e *patternEvaluator) Evaluate(ctx context.Context) (*Evaluation, error) {
	var matched, unmatched []string
	for _, re := range e.patterns {
		if re.MatchString(e.resp.Text) {
			matched = append(matched, re.String())
		} else {
			unmatched = append(unmatched, re.String())
		}
	}

	passed := len(unmatched) == 0
	if !e.matchAll {
		passed = len(matched) > 0
	}

	score := 0.0
	feedback := fmt.Sprintf("matched %d of %d patterns", len(matched), len(e.patterns))
	if passed {
		score = ScoreMax
	} else if len(unmatched) > 0 {
		feedback = fmt.Sprintf("unmatched patterns: %s", strings.Join(unmatched, ", "))
	}

	return NewEvaluation(e.resp.ID, KeyPatternMatch, score, passed, feedback), nil
}
