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
	"errors"
	"math"
	"sort"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInsufficientSamples indicates not enough samples for a t-test.
	ErrInsufficientSamples = errors.New("insufficient samples for statistical analysis")

	// ErrZeroVariance indicates both sample sets have zero variance.
	ErrZeroVariance = errors.New("sample sets have zero combined variance")
)

// minPValue floors the normal-approximation p-value so an analysis never
// claims absolute certainty.
const minPValue = 0.001

// smallSamplePValue is the conservative fixed p-value reported when the
// Welch-Satterthwaite degrees of freedom are 30 or fewer. Below that regime
// the normal approximation to the t-distribution is inaccurate, so a fixed
// conservative value is reported instead of a wrong exact one.
const smallSamplePValue = 0.05

// -----------------------------------------------------------------------------
// Welch's t-test
// -----------------------------------------------------------------------------

// TTestResult holds the results of Welch's two-sample t-test.
type TTestResult struct {
	// TStatistic is the computed t-statistic.
	TStatistic float64

	// PValue is the approximate two-tailed p-value.
	PValue float64

	// DegreesOfFreedom is the Welch-Satterthwaite df.
	DegreesOfFreedom float64
}

// WelchTTest performs Welch's t-test for two sample sets.
//
// Description:
//
//	Welch's t-test does not assume equal variances between groups, making
//	it more robust than Student's t-test for A/B comparisons where the two
//	variants may behave very differently.
//
//	The p-value is approximate: above 30 degrees of freedom the
//	t-distribution is treated as standard normal (floored at 0.001);
//	at or below 30 a conservative fixed 0.05 is returned.
//
// Inputs:
//   - a: First sample set. Must have at least 2 samples.
//   - b: Second sample set. Must have at least 2 samples.
//
// Outputs:
//   - *TTestResult: t-statistic, p-value, and degrees of freedom.
//   - error: Non-nil if samples are insufficient or variance-free.
//
// Thread Safety: Stateless function; safe for concurrent use.
func WelchTTest(a, b []float64) (*TTestResult, error) {
	if len(a) < 2 || len(b) < 2 {
		return nil, ErrInsufficientSamples
	}

	meanA, meanB := Mean(a), Mean(b)
	varA, varB := Variance(a), Variance(b)
	nA, nB := float64(len(a)), float64(len(b))

	se := math.Sqrt(varA/nA + varB/nB)
	if se == 0 {
		return nil, ErrZeroVariance
	}

	tStat := (meanA - meanB) / se

	// Welch-Satterthwaite equation
	num := math.Pow(varA/nA+varB/nB, 2)
	denom := math.Pow(varA/nA, 2)/(nA-1) + math.Pow(varB/nB, 2)/(nB-1)
	if denom == 0 {
		return nil, ErrZeroVariance
	}
	df := num / denom

	return &TTestResult{
		TStatistic:       tStat,
		PValue:           approxPValue(math.Abs(tStat), df),
		DegreesOfFreedom: df,
	}, nil
}

// approxPValue approximates the two-tailed p-value for a t-statistic.
func approxPValue(t, df float64) float64 {
	if df <= 30 {
		return smallSamplePValue
	}
	p := 2 * (1 - normalCDF(t))
	if p < minPValue {
		p = minPValue
	}
	if p > 1 {
		p = 1
	}
	return p
}

// normalCDF approximates the standard normal CDF.
func normalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt(2)))
}

// -----------------------------------------------------------------------------
// Summary Statistics
// -----------------------------------------------------------------------------

// Mean calculates the arithmetic mean. Returns 0 for an empty set.
func Mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

// Variance calculates the Bessel-corrected sample variance (n-1 denominator).
// Returns 0 for fewer than two samples.
func Variance(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	mean := Mean(samples)
	var sumSq float64
	for _, s := range samples {
		diff := s - mean
		sumSq += diff * diff
	}
	return sumSq / float64(len(samples)-1)
}

// StdDev is the sample standard deviation.
func StdDev(samples []float64) float64 {
	return math.Sqrt(Variance(samples))
}

// Median returns the middle value, averaging the two middle values for an
// even count. Returns 0 for an empty set.
func Median(samples []float64) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, samples)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
