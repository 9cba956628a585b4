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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalDeterministic(t *testing.T) {
	a := Normal(Seed(42), "t", StepNoise, 1.0)
	b := Normal(Seed(42), "t", StepNoise, 1.0)
	require.Equal(t, a, b)
}

func TestNormalSaltSensitive(t *testing.T) {
	a := Normal(Seed(42), "salt-one", StepNoise, 1.0)
	b := Normal(Seed(42), "salt-two", StepNoise, 1.0)
	require.NotEqual(t, a, b)
}

func TestNormalStepIndependence(t *testing.T) {
	a := Normal(Seed(7), "t", StepNoise, 1.0)
	b := Normal(Seed(7), "t", StepOutlier, 1.0)
	require.NotEqual(t, a, b, "draws for different steps over the same seed must be independent")
}

func TestUniformWithinRange(t *testing.T) {
	for s := Seed(0); s < 200; s++ {
		v := Uniform(s, "t", StepOutlier, 1, 2)
		require.GreaterOrEqual(t, v, 1)
		require.LessOrEqual(t, v, 2)
	}
}

func TestLCFThresholdNeverBelowMinimum(t *testing.T) {
	cfg := DefaultConfig("t")
	for s := Seed(0); s < 200; s++ {
		threshold := LCFThreshold(&cfg, []Seed{s})
		require.GreaterOrEqual(t, threshold, cfg.LowCountMinThreshold)
	}
}

func TestLCFThresholdDeterministic(t *testing.T) {
	cfg := DefaultConfig("t")
	a := LCFThreshold(&cfg, []Seed{1, 2})
	b := LCFThreshold(&cfg, []Seed{1, 2})
	require.Equal(t, a, b)
}

func TestXorSeedsOrderIndependent(t *testing.T) {
	require.Equal(t, xorSeeds([]Seed{1, 2, 3}), xorSeeds([]Seed{3, 1, 2}))
}
