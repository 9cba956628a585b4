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

package anon

import "math"

// Seed is a 64-bit noise seed, usually an AID seed (XOR of AID hashes) or a
// bucket seed, before it has been mixed with the salt and a step name.
type Seed uint64

// Step names partition the noise space so that draws for different steps
// over the same AID seed are mutually independent.
const (
	StepOutlier        = "outlier"
	StepTop            = "top"
	StepNoise          = "noise"
	StepSuppress       = "suppress"
	StepCountHistogram = "count_histogram"
)

// prepareSeed mixes a raw seed with the configured salt and a step name,
// grounded on pg_diffix's prepare_seed in src/aggregation/noise.c.
func prepareSeed(seed Seed, salt, stepName string) Seed {
	return seed ^ Seed(hash64(salt)) ^ Seed(hash64(stepName))
}

// xorSeeds combines multiple noise layer seeds before a draw, used by
// LayeredNormal and LCFThreshold: for layered noise, the layer seeds are
// XORed together before the draw.
func xorSeeds(seeds []Seed) Seed {
	var s Seed
	for _, layer := range seeds {
		s ^= layer
	}
	return s
}

func splitHalves(seed Seed) (hi, lo uint32) {
	u := uint64(seed)
	return uint32(u >> 32), uint32(u)
}

// Uniform draws a deterministic uniform integer in the inclusive range
// [min, max] from seed, salt and stepName.
func Uniform(seed Seed, salt, stepName string, min, max int) int {
	seed = prepareSeed(seed, salt, stepName)
	hi, lo := splitHalves(seed)
	mixed := hi ^ lo
	span := uint32(max - min + 1)
	return min + int(mixed%span)
}

// nonZeroPerturbation is added to a seed whose two halves are both zero, so
// that Normal never divides by a zero uniform sample: the two halves must
// never both be 0 - if so, add a fixed non-zero perturbation and redraw.
const nonZeroPerturbation Seed = 0x9E3779B97F4A7C15

// Normal draws a deterministic zero-mean Gaussian sample with standard
// deviation sd from seed, salt and stepName, via Box-Muller over the two
// 32-bit halves of the mixed seed.
func Normal(seed Seed, salt, stepName string, sd float64) float64 {
	mixed := prepareSeed(seed, salt, stepName)
	hi, lo := splitHalves(mixed)
	if hi == 0 && lo == 0 {
		mixed = prepareSeed(seed+nonZeroPerturbation, salt, stepName)
		hi, lo = splitHalves(mixed)
		if hi == 0 && lo == 0 {
			hi = 1
		}
	}

	const maxUint32 = 4294967295.0
	u1 := float64(lo) / maxUint32
	u2 := float64(hi) / maxUint32
	if u1 == 0 {
		u1 = 1.0 / maxUint32
	}

	normal := math.Sqrt(-2.0*math.Log(u1)) * math.Sin(2.0*math.Pi*u2)
	return sd * normal
}

// LayeredNormal combines multiple noise layer seeds (e.g. a bucket seed and
// an AID seed) before drawing a Gaussian sample, so that buckets sharing an
// AID but differing in labels still get independent noise.
func LayeredNormal(seeds []Seed, salt, stepName string, sd float64) float64 {
	return Normal(xorSeeds(seeds), salt, stepName, sd)
}

// LCFThreshold draws the noisy low-count-filtering threshold for the given
// layer seeds:
//
//	max(low_count_min_threshold,
//	    round(low_count_min_threshold + low_count_mean_gap*low_count_layer_sd +
//	          normal(seed, "suppress", low_count_layer_sd)))
func LCFThreshold(cfg *Config, seeds []Seed) int {
	seed := xorSeeds(seeds)
	mean := float64(cfg.LowCountMinThreshold) + cfg.LowCountMeanGap*cfg.LowCountLayerSD
	noise := Normal(seed, cfg.Salt, StepSuppress, cfg.LowCountLayerSD)
	threshold := int(math.Round(mean + noise))
	if threshold < cfg.LowCountMinThreshold {
		return cfg.LowCountMinThreshold
	}
	return threshold
}
