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
	"io"

	yaml "gopkg.in/yaml.v2"
)

// Config is the validated parameter bundle that drives every noise draw,
// flattening decision and low-count threshold in the engine. A Config is
// immutable once constructed by NewConfig; there is no global instance, in
// contrast to the single `g_config` the original C implementation relied on.
type Config struct {
	// Salt is mixed into every noise seed. It is the one secret that makes
	// the perturbation unpredictable to an adversary who doesn't know it.
	Salt string `yaml:"salt"`

	NoiseLayerSD float64 `yaml:"noise_layer_sd"`

	LowCountMinThreshold int     `yaml:"low_count_min_threshold"`
	LowCountMeanGap      float64 `yaml:"low_count_mean_gap"`
	LowCountLayerSD      float64 `yaml:"low_count_layer_sd"`

	OutlierCountMin int `yaml:"outlier_count_min"`
	OutlierCountMax int `yaml:"outlier_count_max"`

	TopCountMin int `yaml:"top_count_min"`
	TopCountMax int `yaml:"top_count_max"`
}

// DefaultConfig returns a Config with every default parameter value except
// Salt, which has no default and must always be supplied.
func DefaultConfig(salt string) Config {
	return Config{
		Salt:                 salt,
		NoiseLayerSD:         1.0,
		LowCountMinThreshold: 2,
		LowCountMeanGap:      2.0,
		LowCountLayerSD:      1.0,
		OutlierCountMin:      1,
		OutlierCountMax:      2,
		TopCountMin:          4,
		TopCountMax:          6,
	}
}

// NewConfig validates cfg and returns it wrapped, or an ErrConfigInvalid
// describing the first violated constraint. Validation never panics: a
// misconfigured engine must fail loudly at construction, not at query time.
func NewConfig(cfg Config) (*Config, error) {
	switch {
	case cfg.Salt == "":
		return nil, ErrConfigInvalid.New("salt must not be empty")
	case cfg.NoiseLayerSD < 0:
		return nil, ErrConfigInvalid.New("noise_layer_sd must be >= 0")
	case cfg.LowCountMinThreshold < 2:
		return nil, ErrConfigInvalid.New("low_count_min_threshold must be >= 2")
	case cfg.LowCountMeanGap < 0:
		return nil, ErrConfigInvalid.New("low_count_mean_gap must be >= 0")
	case cfg.LowCountLayerSD < 0:
		return nil, ErrConfigInvalid.New("low_count_layer_sd must be >= 0")
	case cfg.OutlierCountMin < 0:
		return nil, ErrConfigInvalid.New("outlier_count_min must be >= 0")
	case cfg.OutlierCountMax < cfg.OutlierCountMin:
		return nil, ErrConfigInvalid.New("outlier_count_max must be >= outlier_count_min")
	case cfg.TopCountMin < 1:
		return nil, ErrConfigInvalid.New("top_count_min must be >= 1")
	case cfg.TopCountMax < cfg.TopCountMin:
		return nil, ErrConfigInvalid.New("top_count_max must be >= top_count_min")
	case (cfg.TopCountMax-cfg.TopCountMin) < (cfg.OutlierCountMax-cfg.OutlierCountMin):
		return nil, ErrConfigInvalid.New("top_count range must be at least as wide as outlier_count range")
	}

	out := cfg
	return &out, nil
}

// LoadConfig reads a YAML document (see DefaultConfig for field names) and
// validates the result. Absent fields keep Go's zero values, so callers
// typically start from DefaultConfig, marshal-merge is not attempted here:
// the caller is expected to decode into a copy of DefaultConfig(salt) if
// partial overrides are desired.
func LoadConfig(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil {
		return nil, ErrConfigInvalid.New(err.Error())
	}
	return NewConfig(cfg)
}
