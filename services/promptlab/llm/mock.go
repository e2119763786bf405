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
	"math/rand"
	"sync"
)

// MockFeedback is the placeholder feedback every mock verdict carries.
const MockFeedback = "mock evaluation (no model call was made)"

// MockJudge produces pseudo-random verdicts without any network call.
//
// Verdicts are tagged Synthetic so stored evaluations can be told apart from
// real judge output. A fixed seed makes the sequence reproducible in tests.
//
// Thread Safety: Safe for concurrent use.
type MockJudge struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewMockJudge creates a mock judge. A zero seed selects a fixed default so
// repeated test runs see the same score sequence.
func NewMockJudge(seed int64) *MockJudge {
	if seed == 0 {
		seed = 1
	}
	return &MockJudge{rng: rand.New(rand.NewSource(seed))}
}

// Judge implements the JudgeClient interface.
func (m *MockJudge) Judge(ctx context.Context, req JudgeRequest) (*JudgeVerdict, error) {
	m.mu.Lock()
	score := float64(m.rng.Intn(101))
	m.mu.Unlock()

	return &JudgeVerdict{
		OverallScore: score,
		Feedback:     MockFeedback,
		Synthetic:    true,
	}, nil
}
