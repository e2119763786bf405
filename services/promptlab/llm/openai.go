// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// verdictSchema is the JSON schema the judge model is constrained to.
var verdictSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"overall_score": {
			"type": "number",
			"description": "Quality score from 0 to 100"
		},
		"feedback": {
			"type": "string",
			"description": "Short explanation of the score"
		}
	},
	"required": ["overall_score", "feedback"],
	"additionalProperties": false
}`)

// OpenAIJudge invokes an OpenAI chat model with a strict JSON schema
// response format.
type OpenAIJudge struct {
	client *openai.Client
	model  string
}

// NewOpenAIJudge creates a judge client for the given default model.
//
// Credentials come from OPENAI_API_KEY, falling back to the container
// secret file. An empty model falls back to PROMPTLAB_JUDGE_MODEL, then to
// gpt-4o-mini.
func NewOpenAIJudge(model string) (*OpenAIJudge, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API Key from Podman Secrets")
		} else {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, ErrMissingAPIKey
		}
	}
	if model == "" {
		model = os.Getenv("PROMPTLAB_JUDGE_MODEL")
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("No judge model configured, defaulting to gpt-4o-mini")
	}
	slog.Info("Initializing OpenAI judge client", "model", model)
	return &OpenAIJudge{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Judge implements the JudgeClient interface.
func (o *OpenAIJudge) Judge(ctx context.Context, req JudgeRequest) (*JudgeVerdict, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}
	slog.Debug("Running judge call via OpenAI", "model", model)

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a strict evaluator of LLM responses. Always answer with the requested JSON object."},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "evaluation_verdict",
				Schema: verdictSchema,
				Strict: true,
			},
		},
	})
	if err != nil {
		slog.Error("OpenAI judge call failed", "error", err)
		return nil, fmt.Errorf("OpenAI judge call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI judge returned no choices")
		return nil, ErrNoVerdict
	}

	var verdict JudgeVerdict
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &verdict); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoVerdict, err)
	}
	if verdict.OverallScore < 0 {
		verdict.OverallScore = 0
	}
	if verdict.OverallScore > 100 {
		verdict.OverallScore = 100
	}
	return &verdict, nil
}
