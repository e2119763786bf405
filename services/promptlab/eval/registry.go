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
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/AleutianAI/PromptLab/services/promptlab/prompt"
)

// Entry describes one registered evaluator: its identity, display metadata,
// default configuration, and the builder that instantiates it.
type Entry struct {
	// Key is the canonical symbolic identifier (lowercase, underscores).
	Key string

	// Name is the human-readable evaluator name.
	Name string

	// Description explains what the evaluator checks.
	Description string

	// Icon is a short display glyph for UIs.
	Icon string

	// DefaultConfig is the configuration applied when none is supplied.
	DefaultConfig map[string]any

	// FormHint optionally names a configuration form for UIs.
	FormHint string

	// Build instantiates the evaluator for a response and configuration.
	Build Builder
}

// valid reports whether the entry carries all required metadata.
func (e Entry) valid() bool {
	return e.Key != "" && e.Name != "" && e.Description != "" && e.Icon != "" && e.Build != nil
}

// Registry is the catalog of available evaluators.
//
// Description:
//
//	The Registry maps symbolic keys to evaluator entries. It is an
//	explicitly constructed object injected into the pipeline; the
//	package-level DefaultRegistry exists for convenience and tests.
//	Reset restores exactly the entries the registry was constructed with,
//	discarding any runtime registrations.
//
// Thread Safety: Safe for concurrent use via read-write mutex.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]Entry
	defaults []Entry
}

// NewRegistry creates an empty registry with no built-ins.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// CanonicalKey normalizes a key to its canonical symbolic form.
func CanonicalKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Register inserts or overwrites an entry.
//
// Inputs:
//   - entry: The entry to register. Must carry all required metadata.
//
// Outputs:
//   - error: nil on success, ErrMissingMetadata if the entry is incomplete.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry) Register(entry Entry) error {
	entry.Key = CanonicalKey(entry.Key)
	if !entry.valid() {
		return fmt.Errorf("%w: %q", ErrMissingMetadata, entry.Key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.Key] = entry
	return nil
}

// Unregister removes an entry. Removing an absent key is a no-op.
func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, CanonicalKey(key))
}

// Get retrieves an entry by key.
//
// Outputs:
//   - Entry: The entry, zero-valued if not found.
//   - bool: true if found.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry) Get(key string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[CanonicalKey(key)]
	return entry, ok
}

// Exists reports whether a key is registered.
func (r *Registry) Exists(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Build instantiates the evaluator registered under key.
//
// Description:
//
//	Looks up the entry and calls its builder with the response and the
//	supplied configuration. A nil configuration falls back to the entry's
//	DefaultConfig.
//
// Inputs:
//   - key: The evaluator key.
//   - resp: The response to evaluate. Must not be nil.
//   - cfg: The configuration payload. May be nil.
//
// Outputs:
//   - Evaluator: The instance. Non-nil when error is nil.
//   - error: ErrUnknownEvaluator if the key is absent, or the builder's error.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry) Build(key string, resp *prompt.LlmResponse, cfg map[string]any) (Evaluator, error) {
	entry, ok := r.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvaluator, key)
	}
	if cfg == nil {
		cfg = entry.DefaultConfig
	}
	return entry.Build(resp, cfg)
}

// List returns all registered keys in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Count returns the number of registered entries.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Reset restores exactly the entries the registry was constructed with.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]Entry, len(r.defaults))
	for _, entry := range r.defaults {
		r.entries[entry.Key] = entry
	}
}
