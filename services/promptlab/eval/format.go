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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AleutianAI/PromptLab/services/promptlab/prompt"
)

// formatEvaluator checks that the response conforms to a structural format.
// Supported formats: "json" (must unmarshal), "markdown" (must contain at
// least one heading or emphasis marker), "list" (every non-empty line is a
// bullet or numbered item).
type formatEvaluator struct {
	resp   *prompt.LlmResponse
	format string
}

func newFormatEvaluator(resp *prompt.LlmResponse, cfg map[string]any) (Evaluator, error) {
	if resp == nil {
		return nil, ErrNilResponse
	}
	format := strings.ToLower(cfgString(cfg, "format", ""))
	switch format {
	case "json", "markdown", "list":
	default:
		return nil, fmt.Errorf("%w: unsupported format %q (want json, markdown, or list)", ErrInvalidConfig, format)
	}
	return &formatEvaluator{resp: resp, format: format}, nil
}

func (e *formatEvaluator) Evaluate(ctx context.Context) (*Evaluation, error) {
	var passed bool
	switch e.format {
	case "json":
		var v any
		passed = json.Unmarshal([]byte(strings.TrimSpace(e.resp.Text)), &v) == nil
	case "markdown":
		passed = looksLikeMarkdown(e.resp.Text)
	case "list":
		passed = looksLikeList(e.resp.Text)
	}

	score := 0.0
	feedback := fmt.Sprintf("response is not valid %s", e.format)
	if passed {
		score = ScoreMax
		feedback = fmt.Sprintf("response is valid %s", e.format)
	}

	return NewEvaluation(e.resp.ID, KeyFormat, score, passed, feedback), nil
}

func looksLikeMarkdown(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "- ") ||
			strings.HasPrefix(trimmed, "* ") || strings.Contains(trimmed, "**") ||
			strings.Contains(trimmed, "```") {
			return true
		}
	}
	return false
}

func looksLikeList(text string) bool {
	lines := 0
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lines++
		if !strings.HasPrefix(trimmed, "-") && !strings.HasPrefix(trimmed, "*") && !startsWithNumber(trimmed) {
			return false
		}
	}
	return lines > 0
}

func startsWithNumber(line string) bool {
	if line == "" || line[0] < '0' || line[0] > '9' {
		return false
	}
	for i := 1; i < len(line); i++ {
		switch {
		case line[i] >= '0' && line[i] <= '9':
			continue
		case line[i] == '.' || line[i] == ')':
			return true
		default:
			return false
		}
	}
	return false
}
