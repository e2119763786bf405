// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/AleutianAI/PromptLab/services/promptlab/eval"
	"github.com/AleutianAI/PromptLab/services/promptlab/experiment"
	"github.com/AleutianAI/PromptLab/services/promptlab/prompt"
)

// MemoryStore is an in-memory Store for tests and ephemeral runs.
//
// Description:
//
//	All entities are held in maps keyed by ID. Values are copied on write
//	and on read so callers cannot mutate stored state through retained
//	pointers. List operations materialize and sort on every call; this
//	store trades throughput for simplicity.
//
// Thread Safety: Safe for concurrent use.
type MemoryStore struct {
	mu sync.RWMutex

	prompts     map[string]*prompt.Prompt
	versions    map[string]*prompt.PromptVersion
	responses   map[string]*prompt.LlmResponse
	experiments map[string]*experiment.AbTest
	configs     map[string]*eval.EvaluatorConfig
	evaluations map[string]*eval.Evaluation
}

// compile-time interface check
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		prompts:     make(map[string]*prompt.Prompt),
		versions:    make(map[string]*prompt.PromptVersion),
		responses:   make(map[string]*prompt.LlmResponse),
		experiments: make(map[string]*experiment.AbTest),
		configs:     make(map[string]*eval.EvaluatorConfig),
		evaluations: make(map[string]*eval.Evaluation),
	}
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// -----------------------------------------------------------------------------
// Prompts and Versions
// -----------------------------------------------------------------------------

func (s *MemoryStore) SavePrompt(_ context.Context, p *prompt.Prompt) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("prompt requires an ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.prompts[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPrompt(_ context.Context, id string) (*prompt.Prompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prompts[id]
	if !ok {
		return nil, fmt.Errorf("prompt %s: %w", id, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListPrompts(_ context.Context) ([]*prompt.Prompt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*prompt.Prompt, 0, len(s.prompts))
	for _, p := range s.prompts {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) SaveVersion(_ context.Context, v *prompt.PromptVersion) error {
	if v == nil || v.ID == "" {
		return fmt.Errorf("version requires an ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.versions[v.ID] = &cp
	return nil
}

func (s *MemoryStore) GetVersion(_ context.Context, id string) (*prompt.PromptVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[id]
	if !ok {
		return nil, fmt.Errorf("version %s: %w", id, ErrNotFound)
	}
	cp := *v
	return &cp, nil
}

func (s *MemoryStore) ListVersions(_ context.Context, promptID string) ([]*prompt.PromptVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*prompt.PromptVersion
	for _, v := range s.versions {
		if v.PromptID == promptID {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// -----------------------------------------------------------------------------
// Responses
// -----------------------------------------------------------------------------

func (s *MemoryStore) SaveResponse(_ context.Context, r *prompt.LlmResponse) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("response requires an ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.responses[r.ID] = &cp
	return nil
}

func (s *MemoryStore) GetResponse(_ context.Context, id string) (*prompt.LlmResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.responses[id]
	if !ok {
		return nil, fmt.Errorf("response %s: %w", id, ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) ListByVersion(_ context.Context, versionID string) ([]*prompt.LlmResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*prompt.LlmResponse
	for _, r := range s.responses {
		if r.VersionID == versionID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sortResponses(out)
	return out, nil
}

func (s *MemoryStore) ListByExperiment(_ context.Context, experimentID string) ([]*prompt.LlmResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*prompt.LlmResponse
	for _, r := range s.responses {
		if r.ExperimentID == experimentID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sortResponses(out)
	return out, nil
}

func sortResponses(rs []*prompt.LlmResponse) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].CreatedAt.Before(rs[j].CreatedAt)
	})
}

// -----------------------------------------------------------------------------
// Experiments
// -----------------------------------------------------------------------------

func (s *MemoryStore) SaveExperiment(_ context.Context, t *experiment.AbTest) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("experiment requires an ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.Status == experiment.StatusRunning {
		for _, other := range s.experiments {
			if other.PromptID == t.PromptID && other.ID != t.ID && other.Status == experiment.StatusRunning {
				return fmt.Errorf("prompt %s: %w", t.PromptID, ErrRunningConflict)
			}
		}
	}
	cp := cloneExperiment(t)
	s.experiments[t.ID] = cp
	return nil
}

func (s *MemoryStore) GetExperiment(_ context.Context, id string) (*experiment.AbTest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.experiments[id]
	if !ok {
		return nil, fmt.Errorf("experiment %s: %w", id, ErrNotFound)
	}
	return cloneExperiment(t), nil
}

func (s *MemoryStore) ListExperiments(_ context.Context, promptID string) ([]*experiment.AbTest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*experiment.AbTest
	for _, t := range s.experiments {
		if t.PromptID == promptID {
			out = append(out, cloneExperiment(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Running(_ context.Context, promptID string) (*experiment.AbTest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.experiments {
		if t.PromptID == promptID && t.Status == experiment.StatusRunning {
			return cloneExperiment(t), nil
		}
	}
	return nil, nil
}

func cloneExperiment(t *experiment.AbTest) *experiment.AbTest {
	cp := *t
	cp.Split = append(experiment.TrafficSplit(nil), t.Split...)
	cp.Variants = append([]experiment.Variant(nil), t.Variants...)
	if t.Results != nil {
		r := *t.Results
		cp.Results = &r
	}
	if t.StartedAt != nil {
		at := *t.StartedAt
		cp.StartedAt = &at
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

// -----------------------------------------------------------------------------
// Evaluator Configurations
// -----------------------------------------------------------------------------

func (s *MemoryStore) SaveConfig(_ context.Context, c *eval.EvaluatorConfig) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("evaluator config requires an ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := eval.CanonicalKey(c.EvaluatorKey)
	for _, other := range s.configs {
		if other.ID != c.ID && other.OwnerID == c.OwnerID && eval.CanonicalKey(other.EvaluatorKey) == key {
			return fmt.Errorf("owner %s already has evaluator %s: %w", c.OwnerID, key, ErrDuplicate)
		}
	}
	s.configs[c.ID] = cloneConfig(c)
	return nil
}

func (s *MemoryStore) GetConfig(_ context.Context, id string) (*eval.EvaluatorConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.configs[id]
	if !ok {
		return nil, fmt.Errorf("evaluator config %s: %w", id, ErrNotFound)
	}
	return cloneConfig(c), nil
}

func (s *MemoryStore) ListConfigs(_ context.Context, ownerID string) ([]*eval.EvaluatorConfig, error) {
	return s.listConfigs(ownerID, false), nil
}

func (s *MemoryStore) ListEnabled(_ context.Context, ownerID string) ([]*eval.EvaluatorConfig, error) {
	return s.listConfigs(ownerID, true), nil
}

func (s *MemoryStore) listConfigs(ownerID string, enabledOnly bool) []*eval.EvaluatorConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*eval.EvaluatorConfig
	for _, c := range s.configs {
		if c.OwnerID != ownerID {
			continue
		}
		if enabledOnly && !c.Enabled {
			continue
		}
		out = append(out, cloneConfig(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func cloneConfig(c *eval.EvaluatorConfig) *eval.EvaluatorConfig {
	cp := *c
	if c.Config != nil {
		cp.Config = make(map[string]any, len(c.Config))
		for k, v := range c.Config {
			cp.Config[k] = v
		}
	}
	return &cp
}

// -----------------------------------------------------------------------------
// Evaluations
// -----------------------------------------------------------------------------

func (s *MemoryStore) SaveEvaluation(_ context.Context, e *eval.Evaluation) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("evaluation requires an ID")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evaluations[e.ID] = cloneEvaluation(e)
	return nil
}

func (s *MemoryStore) ListByResponse(_ context.Context, responseID string) ([]*eval.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*eval.Evaluation
	for _, e := range s.evaluations {
		if e.ResponseID == responseID {
			out = append(out, cloneEvaluation(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func cloneEvaluation(e *eval.Evaluation) *eval.Evaluation {
	cp := *e
	if e.Metadata != nil {
		cp.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
