// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/PromptLab/services/promptlab/eval"
	"github.com/AleutianAI/PromptLab/services/promptlab/experiment"
	"github.com/AleutianAI/PromptLab/services/promptlab/prompt"
	"github.com/AleutianAI/PromptLab/services/promptlab/store"
)

// Key layout. Entities live under an entity prefix keyed by ID; secondary
// index keys hold the entity ID as their value.
//
//	p/<id>                      prompt
//	v/<id>                      version
//	vi/<promptID>/<id>          version index
//	r/<id>                      response
//	ri/v/<versionID>/<id>       response-by-version index
//	ri/e/<experimentID>/<id>    response-by-experiment index
//	x/<id>                      experiment
//	xi/<promptID>/<id>          experiment index
//	xr/<promptID>               running-experiment marker
//	c/<id>                      evaluator config
//	ci/<ownerID>/<evaluatorKey> config index, one per (owner, key)
//	e/<id>                      evaluation
//	ei/<responseID>/<id>        evaluation index
const (
	prefixPrompt        = "p/"
	prefixVersion       = "v/"
	prefixVersionIdx    = "vi/"
	prefixResponse      = "r/"
	prefixRespByVersion = "ri/v/"
	prefixRespByExp     = "ri/e/"
	prefixExperiment    = "x/"
	prefixExperimentIdx = "xi/"
	prefixRunning       = "xr/"
	prefixConfig        = "c/"
	prefixConfigIdx     = "ci/"
	prefixEvaluation    = "e/"
	prefixEvaluationIdx = "ei/"
)

// Store is a BadgerDB-backed store.Store.
//
// Thread Safety: Safe for concurrent use. BadgerDB transactions provide
// snapshot isolation; uniqueness checks and the writes they guard share one
// read-write transaction.
type Store struct {
	db     *badger.DB
	stopGC chan struct{}
	doneGC chan struct{}
}

var _ store.Store = (*Store)(nil)

// Open opens a BadgerDB-backed store.
//
// Inputs:
//   - cfg: Database configuration. Path is required unless InMemory is true.
//
// Outputs:
//   - *Store: The opened store. Caller must call Close when done.
//   - error: Non-nil if the database cannot be opened.
func Open(cfg Config) (*Store, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.doneGC = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

// Close stops garbage collection and closes the database.
func (s *Store) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.doneGC
		s.stopGC = nil
	}
	return s.db.Close()
}

func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.doneGC)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite means no GC was needed, not an error.
			_ = s.db.RunValueLogGC(ratio)
		}
	}
}

// -----------------------------------------------------------------------------
// Encoding Helpers
// -----------------------------------------------------------------------------

func setJSON(txn *badger.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(data []byte) error {
		return json.Unmarshal(data, v)
	})
}

// collectIDs returns the values of every index key under the prefix.
func collectIDs(txn *badger.Txn, prefix string) ([]string, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Rewind(); it.Valid(); it.Next() {
		err := it.Item().Value(func(data []byte) error {
			ids = append(ids, string(data))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (s *Store) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(fn)
}

func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(fn)
}

// -----------------------------------------------------------------------------
// Prompts and Versions
// -----------------------------------------------------------------------------

func (s *Store) SavePrompt(ctx context.Context, p *prompt.Prompt) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("prompt requires an ID")
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, prefixPrompt+p.ID, p)
	})
}

func (s *Store) GetPrompt(ctx context.Context, id string) (*prompt.Prompt, error) {
	var p prompt.Prompt
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, prefixPrompt+id, &p)
	})
	if err != nil {
		return nil, fmt.Errorf("prompt %s: %w", id, err)
	}
	return &p, nil
}

func (s *Store) ListPrompts(ctx context.Context) ([]*prompt.Prompt, error) {
	var out []*prompt.Prompt
	err := s.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixPrompt)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var p prompt.Prompt
			err := it.Item().Value(func(data []byte) error {
				return json.Unmarshal(data, &p)
			})
			if err != nil {
				return err
			}
			out = append(out, &p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) SaveVersion(ctx context.Context, v *prompt.PromptVersion) error {
	if v == nil || v.ID == "" {
		return fmt.Errorf("version requires an ID")
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		if err := setJSON(txn, prefixVersion+v.ID, v); err != nil {
			return err
		}
		return txn.Set([]byte(prefixVersionIdx+v.PromptID+"/"+v.ID), []byte(v.ID))
	})
}

func (s *Store) GetVersion(ctx context.Context, id string) (*prompt.PromptVersion, error) {
	var v prompt.PromptVersion
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, prefixVersion+id, &v)
	})
	if err != nil {
		return nil, fmt.Errorf("version %s: %w", id, err)
	}
	return &v, nil
}

func (s *Store) ListVersions(ctx context.Context, promptID string) ([]*prompt.PromptVersion, error) {
	var out []*prompt.PromptVersion
	err := s.view(ctx, func(txn *badger.Txn) error {
		ids, err := collectIDs(txn, prefixVersionIdx+promptID+"/")
		if err != nil {
			return err
		}
		for _, id := range ids {
			var v prompt.PromptVersion
			if err := getJSON(txn, prefixVersion+id, &v); err != nil {
				return fmt.Errorf("version %s: %w", id, err)
			}
			out = append(out, &v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// -----------------------------------------------------------------------------
// Responses
// -----------------------------------------------------------------------------

func (s *Store) SaveResponse(ctx context.Context, r *prompt.LlmResponse) error {
	if r == nil || r.ID == "" {
		return fmt.Errorf("response requires an ID")
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		if err := setJSON(txn, prefixResponse+r.ID, r); err != nil {
			return err
		}
		if err := txn.Set([]byte(prefixRespByVersion+r.VersionID+"/"+r.ID), []byte(r.ID)); err != nil {
			return err
		}
		if r.ExperimentID != "" {
			return txn.Set([]byte(prefixRespByExp+r.ExperimentID+"/"+r.ID), []byte(r.ID))
		}
		return nil
	})
}

func (s *Store) GetResponse(ctx context.Context, id string) (*prompt.LlmResponse, error) {
	var r prompt.LlmResponse
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, prefixResponse+id, &r)
	})
	if err != nil {
		return nil, fmt.Errorf("response %s: %w", id, err)
	}
	return &r, nil
}

func (s *Store) ListByVersion(ctx context.Context, versionID string) ([]*prompt.LlmResponse, error) {
	return s.listResponses(ctx, prefixRespByVersion+versionID+"/")
}

func (s *Store) ListByExperiment(ctx context.Context, experimentID string) ([]*prompt.LlmResponse, error) {
	return s.listResponses(ctx, prefixRespByExp+experimentID+"/")
}

func (s *Store) listResponses(ctx context.Context, indexPrefix string) ([]*prompt.LlmResponse, error) {
	var out []*prompt.LlmResponse
	err := s.view(ctx, func(txn *badger.Txn) error {
		ids, err := collectIDs(txn, indexPrefix)
		if err != nil {
			return err
		}
		for _, id := range ids {
			var r prompt.LlmResponse
			if err := getJSON(txn, prefixResponse+id, &r); err != nil {
				return fmt.Errorf("response %s: %w", id, err)
			}
			out = append(out, &r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// -----------------------------------------------------------------------------
// Experiments
// -----------------------------------------------------------------------------

func (s *Store) SaveExperiment(ctx context.Context, t *experiment.AbTest) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("experiment requires an ID")
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		runningKey := []byte(prefixRunning + t.PromptID)

		// Enforce one running experiment per prompt via the marker key.
		item, err := txn.Get(runningKey)
		switch {
		case err == nil:
			var holder string
			if err := item.Value(func(data []byte) error {
				holder = string(data)
				return nil
			}); err != nil {
				return err
			}
			if t.Status == experiment.StatusRunning && holder != t.ID {
				return fmt.Errorf("prompt %s: %w", t.PromptID, store.ErrRunningConflict)
			}
			if holder == t.ID && t.Status != experiment.StatusRunning {
				if err := txn.Delete(runningKey); err != nil {
					return err
				}
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			// no running experiment for this prompt
		default:
			return err
		}

		if t.Status == experiment.StatusRunning {
			if err := txn.Set(runningKey, []byte(t.ID)); err != nil {
				return err
			}
		}
		if err := setJSON(txn, prefixExperiment+t.ID, t); err != nil {
			return err
		}
		return txn.Set([]byte(prefixExperimentIdx+t.PromptID+"/"+t.ID), []byte(t.ID))
	})
}

func (s *Store) GetExperiment(ctx context.Context, id string) (*experiment.AbTest, error) {
	var t experiment.AbTest
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, prefixExperiment+id, &t)
	})
	if err != nil {
		return nil, fmt.Errorf("experiment %s: %w", id, err)
	}
	return &t, nil
}

func (s *Store) ListExperiments(ctx context.Context, promptID string) ([]*experiment.AbTest, error) {
	var out []*experiment.AbTest
	err := s.view(ctx, func(txn *badger.Txn) error {
		ids, err := collectIDs(txn, prefixExperimentIdx+promptID+"/")
		if err != nil {
			return err
		}
		for _, id := range ids {
			var t experiment.AbTest
			if err := getJSON(txn, prefixExperiment+id, &t); err != nil {
				return fmt.Errorf("experiment %s: %w", id, err)
			}
			out = append(out, &t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Running(ctx context.Context, promptID string) (*experiment.AbTest, error) {
	var t *experiment.AbTest
	err := s.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixRunning + promptID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var id string
		if err := item.Value(func(data []byte) error {
			id = string(data)
			return nil
		}); err != nil {
			return err
		}
		var loaded experiment.AbTest
		if err := getJSON(txn, prefixExperiment+id, &loaded); err != nil {
			return fmt.Errorf("experiment %s: %w", id, err)
		}
		t = &loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// -----------------------------------------------------------------------------
// Evaluator Configurations
// -----------------------------------------------------------------------------

func (s *Store) SaveConfig(ctx context.Context, c *eval.EvaluatorConfig) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("evaluator config requires an ID")
	}
	key := eval.CanonicalKey(c.EvaluatorKey)
	return s.update(ctx, func(txn *badger.Txn) error {
		idxKey := []byte(prefixConfigIdx + c.OwnerID + "/" + key)

		item, err := txn.Get(idxKey)
		switch {
		case err == nil:
			var holder string
			if err := item.Value(func(data []byte) error {
				holder = string(data)
				return nil
			}); err != nil {
				return err
			}
			if holder != c.ID {
				return fmt.Errorf("owner %s already has evaluator %s: %w", c.OwnerID, key, store.ErrDuplicate)
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			// first configuration of this evaluator for the owner
		default:
			return err
		}

		if err := setJSON(txn, prefixConfig+c.ID, c); err != nil {
			return err
		}
		return txn.Set(idxKey, []byte(c.ID))
	})
}

func (s *Store) GetConfig(ctx context.Context, id string) (*eval.EvaluatorConfig, error) {
	var c eval.EvaluatorConfig
	err := s.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, prefixConfig+id, &c)
	})
	if err != nil {
		return nil, fmt.Errorf("evaluator config %s: %w", id, err)
	}
	return &c, nil
}

func (s *Store) ListConfigs(ctx context.Context, ownerID string) ([]*eval.EvaluatorConfig, error) {
	return s.listConfigs(ctx, ownerID, false)
}

func (s *Store) ListEnabled(ctx context.Context, ownerID string) ([]*eval.EvaluatorConfig, error) {
	return s.listConfigs(ctx, ownerID, true)
}

func (s *Store) listConfigs(ctx context.Context, ownerID string, enabledOnly bool) ([]*eval.EvaluatorConfig, error) {
	var out []*eval.EvaluatorConfig
	err := s.view(ctx, func(txn *badger.Txn) error {
		ids, err := collectIDs(txn, prefixConfigIdx+ownerID+"/")
		if err != nil {
			return err
		}
		for _, id := range ids {
			var c eval.EvaluatorConfig
			if err := getJSON(txn, prefixConfig+id, &c); err != nil {
				return fmt.Errorf("evaluator config %s: %w", id, err)
			}
			if enabledOnly && !c.Enabled {
				continue
			}
			out = append(out, &c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// -----------------------------------------------------------------------------
// Evaluations
// -----------------------------------------------------------------------------

func (s *Store) SaveEvaluation(ctx context.Context, e *eval.Evaluation) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("evaluation requires an ID")
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		if err := setJSON(txn, prefixEvaluation+e.ID, e); err != nil {
			return err
		}
		return txn.Set([]byte(prefixEvaluationIdx+e.ResponseID+"/"+e.ID), []byte(e.ID))
	})
}

func (s *Store) ListByResponse(ctx context.Context, responseID string) ([]*eval.Evaluation, error) {
	var out []*eval.Evaluation
	err := s.view(ctx, func(txn *badger.Txn) error {
		ids, err := collectIDs(txn, prefixEvaluationIdx+responseID+"/")
		if err != nil {
			return err
		}
		for _, id := range ids {
			var e eval.Evaluation
			if err := getJSON(txn, prefixEvaluation+id, &e); err != nil {
				return fmt.Errorf("evaluation %s: %w", id, err)
			}
			out = append(out, &e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// -----------------------------------------------------------------------------
// Maintenance
// -----------------------------------------------------------------------------

// Sync flushes pending writes to disk. No-op for in-memory databases.
func (s *Store) Sync() error {
	if s.db.Opts().InMemory {
		return nil
	}
	return s.db.Sync()
}

// DropAll removes every key. Intended for tests and explicit resets.
func (s *Store) DropAll() error {
	return s.db.DropAll()
}

// keyCount returns the number of keys under a prefix. Used by tests.
func (s *Store) keyCount(prefix string) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}
