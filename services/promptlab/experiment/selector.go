// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package experiment

import (
	"math/rand"
	"sync"
)

// IntnSource draws uniform random integers in [0, n). Swappable for
// deterministic testing.
type IntnSource interface {
	Intn(n int) int
}

// lockedRand wraps math/rand with a mutex so a shared selector is safe for
// concurrent callers.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Intn(n)
}

// NewSeededSource returns a deterministic IntnSource for tests.
func NewSeededSource(seed int64) IntnSource {
	return &lockedRand{rng: rand.New(rand.NewSource(seed))}
}

// Selector performs weighted random variant selection over a traffic split.
//
// Description:
//
//	Every call is an independent Bernoulli-weighted draw, not a sticky
//	assignment. Concurrent callers may legitimately select different
//	variants for the same experiment; that is the intended behavior of
//	percentage-based traffic splitting. Callers wanting sticky per-session
//	assignment should hash a session identifier into a bucket instead of
//	drawing fresh randomness.
//
// Thread Safety: Safe for concurrent use.
type Selector struct {
	src IntnSource
}

// NewSelector creates a selector. A nil source selects math/rand with a
// random seed.
func NewSelector(src IntnSource) *Selector {
	if src == nil {
		src = &lockedRand{rng: rand.New(rand.NewSource(rand.Int63()))}
	}
	return &Selector{src: src}
}

// SelectVariant picks a variant name by traffic weight.
//
// Description:
//
//	Draws one uniform integer in [0, 100) and walks the split in declared
//	order, accumulating a running total; the first variant whose cumulative
//	boundary exceeds the draw wins. The split is assumed to sum to 100
//	(enforced by AbTest.Start, not re-validated here). If the cumulative
//	total never reaches the draw because the stored split has drifted, the
//	first declared variant is returned rather than failing.
//
// Inputs:
//   - split: The ordered traffic split. Must not be empty.
//
// Outputs:
//   - string: The selected variant name, empty only for an empty split.
//
// Thread Safety: Safe for concurrent use.
func (s *Selector) SelectVariant(split TrafficSplit) string {
	if len(split) == 0 {
		return ""
	}

	draw := s.src.Intn(100)
	cumulative := 0
	for _, a := range split {
		cumulative += a.Percent
		if draw < cumulative {
			return a.Name
		}
	}

	// Split drifted below 100; fall back to the first declared variant.
	return split[0].Name
}
