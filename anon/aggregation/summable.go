// Copyright 2024 The Diffix Engine Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package aggregation implements the anonymizing aggregate functions:
// count, count distinct, sum and count_histogram. count and sum are built
// on the shared flattening algorithm in this file; count distinct and
// count_histogram use low-count thresholds instead.
package aggregation

import (
	"math"

	"github.com/diffixlabs/diffix-engine/anon"
)

// SummableResult is one AID column's contribution to a bucket's flattened
// aggregate, grounded on pg_diffix's SummableResult
// (src/aggregation/summable.c).
type SummableResult struct {
	AidSeed            anon.Seed
	NotEnoughAidValues bool
	Flattening         float64
	FlattenedSum       float64
	NoiseSD            float64
	Noise              float64
}

// contributorsSeed XORs the AIDs of the contributors entering the
// flattening window, so the noise draw is independent of the order
// contributors were inserted in.
func contributorsSeed(contributors []anon.Contributor) anon.Seed {
	var seed anon.Seed
	for _, c := range contributors {
		seed ^= anon.Seed(c.AID)
	}
	return seed
}

// determineOutlierTopCounts compacts the outlier/top flattening intervals
// when there aren't enough distinct contributors to fill both ranges at
// their configured maximums, then draws the noisy outlier and top counts
// from the compacted ranges. Grounded line-for-line on
// determine_outlier_top_counts in src/aggregation/summable.c.
func determineOutlierTopCounts(cfg *anon.Config, distinctContributors uint64, topContributors []anon.Contributor) (noisyOutlierCount, noisyTopCount int, flatteningSeed anon.Seed) {
	totalAdjustment := cfg.OutlierCountMax + cfg.TopCountMax - int(distinctContributors)
	compactOutlierCountMax := cfg.OutlierCountMax
	compactTopCountMax := cfg.TopCountMax

	if totalAdjustment > 0 {
		outlierRange := cfg.OutlierCountMax - cfg.OutlierCountMin
		topRange := cfg.TopCountMax - cfg.TopCountMin
		outlierAdjustment := totalAdjustment / 2
		topAdjustment := totalAdjustment - outlierAdjustment

		switch {
		case outlierRange >= outlierAdjustment && topRange >= topAdjustment:
			compactOutlierCountMax -= outlierAdjustment
			compactTopCountMax -= topAdjustment
		case outlierRange < outlierAdjustment && topRange >= topAdjustment:
			compactOutlierCountMax = cfg.OutlierCountMin
			compactTopCountMax -= totalAdjustment - outlierRange
		case outlierRange >= outlierAdjustment && topRange < topAdjustment:
			compactOutlierCountMax -= totalAdjustment - topRange
			compactTopCountMax = cfg.TopCountMin
		default:
			panic("impossible interval compacting: outlier/top ranges too narrow for distinct contributor count")
		}
	}

	windowEnd := compactOutlierCountMax + compactTopCountMax
	if windowEnd > len(topContributors) {
		windowEnd = len(topContributors)
	}
	flatteningSeed = contributorsSeed(topContributors[:windowEnd])

	noisyOutlierCount = anon.Uniform(flatteningSeed, cfg.Salt, anon.StepOutlier, cfg.OutlierCountMin, compactOutlierCountMax)
	noisyTopCount = anon.Uniform(flatteningSeed, cfg.Salt, anon.StepTop, cfg.TopCountMin, compactTopCountMax)
	return noisyOutlierCount, noisyTopCount, flatteningSeed
}

// aggregateContributions computes one AID column's SummableResult from its
// ContributionTracker, draining outliers, averaging the top band and
// drawing the layered noise value. Grounded on aggregate_contributions in
// src/aggregation/summable.c.
func aggregateContributions(cfg *anon.Config, bucketSeed, aidSeed anon.Seed, ops anon.ContributionOps, tracker *anon.ContributionTracker) SummableResult {
	result := SummableResult{AidSeed: aidSeed}

	distinctContributors := uint64(tracker.DistinctAIDCount())
	if distinctContributors < uint64(cfg.OutlierCountMin+cfg.TopCountMin) {
		result.NotEnoughAidValues = true
		return result
	}

	topContributors := tracker.Top()
	noisyOutlierCount, noisyTopCount, _ := determineOutlierTopCounts(cfg, distinctContributors, topContributors)
	topEndIndex := noisyOutlierCount + noisyTopCount

	for i := 0; i < noisyOutlierCount && i < len(topContributors); i++ {
		result.Flattening += ops.ToF64(topContributors[i].Value)
	}

	var topContribution float64
	for i := noisyOutlierCount; i < topEndIndex && i < len(topContributors); i++ {
		topContribution += ops.ToF64(topContributors[i].Value)
	}
	topAverage := topContribution / float64(noisyTopCount)

	result.Flattening -= topAverage * float64(noisyOutlierCount)

	flattenedUnaccountedFor := math.Max(ops.ToF64(tracker.UnaccountedFor())-result.Flattening, 0.0)

	result.FlattenedSum = ops.ToF64(tracker.Overall()) - result.Flattening

	average := result.FlattenedSum / float64(distinctContributors)
	noiseScale := math.Max(average, 0.5*topAverage)
	result.NoiseSD = cfg.NoiseLayerSD * noiseScale
	result.Noise = anon.LayeredNormal([]anon.Seed{bucketSeed, aidSeed}, cfg.Salt, anon.StepNoise, result.NoiseSD)

	result.FlattenedSum += flattenedUnaccountedFor

	return result
}

// CalculateResult is aggregateContributions bound to one AID column's
// tracker and its AID seed.
func CalculateResult(cfg *anon.Config, bucketSeed anon.Seed, ops anon.ContributionOps, aidSeed anon.Seed, tracker *anon.ContributionTracker) SummableResult {
	return aggregateContributions(cfg, bucketSeed, aidSeed, ops, tracker)
}

// ResultAccumulator folds SummableResults from every AID column bound to an
// aggregate into a single reported value, per pg_diffix's
// SummableResultAccumulator: the AID column whose flattening removed the
// most contribution "wins" (the strictest column governs the reported
// value), ties broken by the larger flattened sum for determinism; the
// reported noise standard deviation is the largest among columns, ties
// broken by the larger absolute noise draw.
type ResultAccumulator struct {
	NotEnoughAidValues bool
	maxFlattening      float64
	sumForFlattening   float64
	maxNoiseSD         float64
	noiseWithMaxSD     float64
}

// Accumulate folds one AID column's SummableResult into the accumulator.
// Grounded on accumulate_result in src/aggregation/summable.c.
func (a *ResultAccumulator) Accumulate(result SummableResult) {
	if result.NotEnoughAidValues {
		a.NotEnoughAidValues = true
		return
	}

	if result.Flattening > a.maxFlattening {
		a.maxFlattening = result.Flattening
		a.sumForFlattening = result.FlattenedSum
	} else if result.Flattening == a.maxFlattening {
		a.sumForFlattening = math.Max(a.sumForFlattening, result.FlattenedSum)
	}

	if result.NoiseSD > a.maxNoiseSD {
		a.maxNoiseSD = result.NoiseSD
		a.noiseWithMaxSD = result.Noise
	} else if result.NoiseSD == a.maxNoiseSD && math.Abs(result.Noise) > math.Abs(a.noiseWithMaxSD) {
		a.noiseWithMaxSD = result.Noise
	}
}

// FlattenedSum returns the reported (pre-noise) flattened sum.
func (a *ResultAccumulator) FlattenedSum() float64 {
	return a.sumForFlattening
}

// FinalizeNoise returns the reported noise sample, rounded to reduce the
// side channel an attacker could otherwise read off the noise's own
// precision.
func (a *ResultAccumulator) FinalizeNoise() float64 {
	return roundReportedNoise(a.maxNoiseSD, a.noiseWithMaxSD)
}

// roundReportedNoise rounds a noise sample to the same precision as the
// standard deviation that produced it, grounded on round_reported_noise_sd
// in src/aggregation/summable.c: noise finer than its own SD carries no
// extra information and only invites reverse-engineering attempts.
func roundReportedNoise(sd, noise float64) float64 {
	if sd <= 0 {
		return 0
	}
	scale := math.Pow(10, math.Floor(math.Log10(sd)))
	if scale == 0 {
		return noise
	}
	return math.Round(noise/scale) * scale
}
