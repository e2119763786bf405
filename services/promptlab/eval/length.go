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

	"github.com/AleutianAI/PromptLab/services/promptlab/prompt"
)

// lengthEvaluator checks that the response text length falls inside a
// configured character range. The score is binary: 100 inside the range,
// 0 outside. An optional ideal range is surfaced in feedback only and never
// affects the score.
type lengthEvaluator struct {
	resp     *prompt.LlmResponse
	minLen   int
	maxLen   int
	idealMin int
	idealMax int
}

func newLengthEvaluator(resp *prompt.LlmResponse, cfg map[string]any) (Evaluator, error) {
	if resp == nil {
		return nil, ErrNilResponse
	}
	e := &lengthEvaluator{
		resp:     resp,
		minLen:   cfgInt(cfg, "min_length", 0),
		maxLen:   cfgInt(cfg, "max_length", 0),
		idealMin: cfgInt(cfg, "ideal_min", 0),
		idealMax: cfgInt(cfg, "ideal_max", 0),
	}
	if e.minLen < 0 || e.maxLen < 0 {
		return nil, fmt.Errorf("%w: length bounds must be non-negative", ErrInvalidConfig)
	}
	if e.maxLen > 0 && e.minLen > e.maxLen {
		return nil, fmt.Errorf("%w: min_length %d exceeds max_length %d", ErrInvalidConfig, e.minLen, e.maxLen)
	}
	return e, nil
}

func (e *lengthEvaluator) Evaluate(ctx context.Context) (*Evaluation, error) {
	length := len(e.resp.Text)

	within := length >= e.minLen && (e.maxLen == 0 || length <= e.maxLen)
	score := 0.0
	if within {
		score = ScoreMax
	}

	feedback := fmt.Sprintf("response is %d characters", length)
	switch {
	case !within && length < e.minLen:
		feedback = fmt.Sprintf("response is %d characters, below minimum %d", length, e.minLen)
	case !within:
		feedback = fmt.Sprintf("response is %d characters, above maximum %d", length, e.maxLen)
	case e.idealMax > 0 && (length < e.idealMin || length > e.idealMax):
		feedback = fmt.Sprintf("response is %d characters (ideal range %d-%d)", length, e.idealMin, e.idealMax)
	}

	return NewEvaluation(e.resp.ID, KeyLength, score, within, feedback), nil
}
