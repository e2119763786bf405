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

	"github.com/AleutianAI/PromptLab/services/promptlab/llm"
	"github.com/AleutianAI/PromptLab/services/promptlab/prompt"
)

// judgePromptTemplate frames the evaluated prompt/response pair for the
// judge model. The model is constrained to the JudgeVerdict schema by the
// llm collaborator, so the template only has to establish context.
const judgePromptTemplate = `Evaluate the quality of an LLM response.

## Original Prompt
%s

## Response Under Review
%s

## Judging Instructions
%s

Score the response from 0 (unusable) to 100 (excellent) and explain your
reasoning briefly.`

const defaultJudgeInstructions = "Judge overall helpfulness, correctness, and clarity."

// judgeEvaluator delegates scoring to a language model via the llm
// collaborator. This is the one evaluator with an external dependency; it is
// typically run in async mode by the pipeline.
type judgeEvaluator struct {
	resp         *prompt.LlmResponse
	client       llm.JudgeClient
	model        string
	instructions string
	threshold    float64
}

func newJudgeEvaluator(client llm.JudgeClient) Builder {
	return func(resp *prompt.LlmResponse, cfg map[string]any) (Evaluator, error) {
		if resp == nil {
			return nil, ErrNilResponse
		}
		if client == nil {
			return nil, fmt.Errorf("%w: llm judge requires a judge client", ErrInvalidConfig)
		}
		instructions := strings.TrimSpace(cfgString(cfg, "instructions", ""))
		if instructions == "" {
			instructions = defaultJudgeInstructions
		}
		return &judgeEvaluator{
			resp:         resp,
			client:       client,
			model:        cfgString(cfg, "model", ""),
			instructions: instructions,
			threshold:    cfgThreshold(cfg),
		}, nil
	}
}

func (e *judgeEvaluator) Evaluate(ctx context.Context) (*Evaluation, error) {
	judgePrompt := fmt.Sprintf(judgePromptTemplate, e.resp.RenderedPrompt, e.resp.Text, e.instructions)

	verdict, err := e.client.Judge(ctx, llm.JudgeRequest{
		Model:  e.model,
		Prompt: judgePrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("llm judge call failed: %w", err)
	}

	passed := verdict.OverallScore >= e.threshold
	evaluation := NewEvaluation(e.resp.ID, KeyLlmJudge, verdict.OverallScore, passed, verdict.Feedback)
	if verdict.Synthetic {
		evaluation.EnrichMetadata(map[string]any{"synthetic": true})
	}
	return evaluation, nil
}
