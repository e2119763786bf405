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
	"os"
	"testing"
)

func TestEnvTrue(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"1", true},
		{"true", true},
		{"TRUE", true},
		{"yes", true},
		{"on", true},
		{" true ", true},
		{"", false},
		{"0", false},
		{"false", false},
		{"enabled", false},
	}

	for _, tt := range tests {
		t.Run("value "+tt.value, func(t *testing.T) {
			t.Setenv(MockJudgeEnv, tt.value)
			if got := envTrue(MockJudgeEnv); got != tt.want {
				t.Errorf("envTrue(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestFromEnv_MockSelected(t *testing.T) {
	t.Setenv(MockJudgeEnv, "1")

	client, err := FromEnv("")
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if _, ok := client.(*MockJudge); !ok {
		t.Errorf("FromEnv() = %T, want *MockJudge", client)
	}
}

func TestFromEnv_MissingAPIKey(t *testing.T) {
	if _, err := os.Stat("/run/secrets/openai_api_key"); err == nil {
		t.Skip("container secret present, cannot simulate missing credentials")
	}
	t.Setenv(MockJudgeEnv, "")
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := FromEnv(""); err == nil {
		t.Error("FromEnv() error = nil, want missing credentials failure")
	}
}

func TestNewOpenAIJudge_ModelResolution(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")

	t.Run("configured model wins", func(t *testing.T) {
		t.Setenv("PROMPTLAB_JUDGE_MODEL", "env-model")
		judge, err := NewOpenAIJudge("configured-model")
		if err != nil {
			t.Fatalf("NewOpenAIJudge() error = %v", err)
		}
		if judge.model != "configured-model" {
			t.Errorf("model = %q, want configured-model", judge.model)
		}
	})

	t.Run("env fallback", func(t *testing.T) {
		t.Setenv("PROMPTLAB_JUDGE_MODEL", "env-model")
		judge, err := NewOpenAIJudge("")
		if err != nil {
			t.Fatalf("NewOpenAIJudge() error = %v", err)
		}
		if judge.model != "env-model" {
			t.Errorf("model = %q, want env-model", judge.model)
		}
	})

	t.Run("built-in default", func(t *testing.T) {
		t.Setenv("PROMPTLAB_JUDGE_MODEL", "")
		judge, err := NewOpenAIJudge("")
		if err != nil {
			t.Fatalf("NewOpenAIJudge() error = %v", err)
		}
		if judge.model != "gpt-4o-mini" {
			t.Errorf("model = %q, want gpt-4o-mini", judge.model)
		}
	})
}

func TestMockJudge_Verdict(t *testing.T) {
	judge := NewMockJudge(0)

	verdict, err := judge.Judge(context.Background(), JudgeRequest{Prompt: "rate this"})
	if err != nil {
		t.Fatalf("Judge() error = %v", err)
	}
	if verdict.OverallScore < 0 || verdict.OverallScore > 100 {
		t.Errorf("OverallScore = %v, want in [0, 100]", verdict.OverallScore)
	}
	if !verdict.Synthetic {
		t.Error("Synthetic = false, want true for mock verdicts")
	}
	if verdict.Feedback != MockFeedback {
		t.Errorf("Feedback = %q, want %q", verdict.Feedback, MockFeedback)
	}
}

func TestMockJudge_DeterministicSequence(t *testing.T) {
	a := NewMockJudge(99)
	b := NewMockJudge(99)

	for i := 0; i < 20; i++ {
		va, err := a.Judge(context.Background(), JudgeRequest{})
		if err != nil {
			t.Fatalf("Judge() error = %v", err)
		}
		vb, err := b.Judge(context.Background(), JudgeRequest{})
		if err != nil {
			t.Fatalf("Judge() error = %v", err)
		}
		if va.OverallScore != vb.OverallScore {
			t.Fatalf("draw %d diverged: %v vs %v", i, va.OverallScore, vb.OverallScore)
		}
	}
}

func TestMockJudge_ZeroSeedIsStable(t *testing.T) {
	a := NewMockJudge(0)
	b := NewMockJudge(0)

	va, _ := a.Judge(context.Background(), JudgeRequest{})
	vb, _ := b.Judge(context.Background(), JudgeRequest{})
	if va.OverallScore != vb.OverallScore {
		t.Errorf("zero-seed judges diverged: %v vs %v", va.OverallScore, vb.OverallScore)
	}
}
