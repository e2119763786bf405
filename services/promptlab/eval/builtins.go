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
	"log/slog"

	"github.com/AleutianAI/PromptLab/services/promptlab/llm"
)

// Built-in evaluator keys.
const (
	KeyLength       = "length"
	KeyKeyword      = "keyword"
	KeyPatternMatch = "pattern_match"
	KeyExactMatch   = "exact_match"
	KeyFormat       = "format"
	KeyLlmJudge     = "llm_judge"
)

// builtinEntries returns the descriptors for all built-in evaluators.
// The judge client is captured by the llm_judge builder; a nil client still
// registers the entry, and building it fails with a configuration error.
func builtinEntries(judge llm.JudgeClient) []Entry {
	return []Entry{
		{
			Key:         KeyLength,
			Name:        "Length",
			Description: "Checks that the response length falls within a character range.",
			Icon:        "ruler",
			DefaultConfig: map[string]any{
				"min_length": 1,
				"max_length": 0,
			},
			Build: newLengthEvaluator,
		},
		{
			Key:         KeyKeyword,
			Name:        "Keyword",
			Description: "Checks required keywords are present and forbidden keywords absent.",
			Icon:        "key",
			DefaultConfig: map[string]any{
				"required":       []string{},
				"forbidden":      []string{},
				"case_sensitive": false,
			},
			FormHint: "keyword_form",
			Build:    newKeywordEvaluator,
		},
		{
			Key:         KeyPatternMatch,
			Name:        "Pattern Match",
			Description: "Checks the response against one or more regular expressions.",
			Icon:        "regex",
			DefaultConfig: map[string]any{
				"patterns":  []string{},
				"match_all": true,
			},
			Build: newPatternEvaluator,
		},
		{
			Key:         KeyExactMatch,
			Name:        "Exact Match",
			Description: "Checks the response equals an expected text.",
			Icon:        "equals",
			DefaultConfig: map[string]any{
				"expected":        "",
				"trim_whitespace": true,
				"ignore_case":     false,
			},
			Build: newExactMatchEvaluator,
		},
		{
			Key:         KeyFormat,
			Name:        "Format",
			Description: "Checks the response conforms to a structural format (json, markdown, list).",
			Icon:        "braces",
			DefaultConfig: map[string]any{
				"format": "json",
			},
			Build: newFormatEvaluator,
		},
		{
			Key:         KeyLlmJudge,
			Name:        "LLM Judge",
			Description: "Scores the response with a language model acting as judge.",
			Icon:        "gavel",
			DefaultConfig: map[string]any{
				"instructions": defaultJudgeInstructions,
				"threshold":    DefaultThreshold,
			},
			FormHint: "judge_form",
			Build:    newJudgeEvaluator(judge),
		},
	}
}

// NewBuiltinRegistry creates a registry populated with the built-in
// evaluators.
//
// Description:
//
//	Registers every built-in descriptor. A descriptor missing required
//	metadata is skipped with a logged warning rather than aborting startup;
//	Reset restores exactly the set registered here.
//
// Inputs:
//   - log: Logger for registration warnings. If nil, slog.Default is used.
//   - judge: Judge client for the llm_judge evaluator. May be nil.
//
// Outputs:
//   - *Registry: The populated registry. Never nil.
func NewBuiltinRegistry(log *slog.Logger, judge llm.JudgeClient) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := NewRegistry()
	for _, entry := range builtinEntries(judge) {
		if err := r.Register(entry); err != nil {
			log.Warn("Skipping builtin evaluator with incomplete metadata",
				"key", entry.Key, "error", err)
			continue
		}
		r.defaults = append(r.defaults, entry)
	}
	return r
}
