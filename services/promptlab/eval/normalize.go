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

import "math"

// Normalize maps a raw score from [min, max] onto the unit interval.
//
// Description:
//
//	Shorthand for NormalizeTo(score, min, max, 0, 1). Scores outside
//	[min, max] are clamped to the nearest bound first.
//
// Thread Safety: Pure function; safe for concurrent use.
func Normalize(score, min, max float64) float64 {
	return NormalizeTo(score, min, max, 0, 1)
}

// NormalizeTo maps a raw score from [min, max] onto [targetMin, targetMax].
//
// Description:
//
//	Clamps score to [min, max], then linearly interpolates:
//
//	    targetMin + (score-min)/(max-min) * (targetMax-targetMin)
//
//	When max == min the range is degenerate and targetMin is returned,
//	avoiding a division by zero. The result is rounded to four decimal
//	places so identical inputs always compare equal.
//
// Inputs:
//   - score: The raw score.
//   - min, max: The declared raw score range.
//   - targetMin, targetMax: The target range.
//
// Outputs:
//   - float64: The normalized score in [targetMin, targetMax].
//
// Thread Safety: Pure function; safe for concurrent use.
func NormalizeTo(score, min, max, targetMin, targetMax float64) float64 {
	if max == min {
		return targetMin
	}
	if score < min {
		score = min
	}
	if score > max {
		score = max
	}
	normalized := targetMin + (score-min)/(max-min)*(targetMax-targetMin)
	return Round4(normalized)
}

// Round2 rounds to two decimal places. Used for aggregate statistics.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Round4 rounds to four decimal places. Used for individual scores.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
