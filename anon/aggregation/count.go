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

package aggregation

import (
	"fmt"

	"github.com/diffixlabs/diffix-engine/anon"
)

// countColumn pairs one AID column's distinct-contributor bookkeeping
// (AidTracker) with its contribution ranking (ContributionTracker), the two
// halves the original implementation keeps fused inside one
// ContributionTrackerState.
type countColumn struct {
	binding anon.AidColumnBinding
	aids    *anon.AidTracker
	contrib *anon.ContributionTracker
}

// countState is the AggState for count(*) and count(x). When anyValue is
// true this is count(x): a row only contributes if the value argument is
// non-NULL, but its AID is still recorded in the AID tracker and the
// contribution tracker either way, without being counted as a distinct
// contributor (count_any semantics in src/aggregation/count.c). When false,
// this is count(*): every row contributes 1 regardless of any value
// column.
type countState struct {
	cfg      *anon.Config
	args     anon.ArgsDescriptor
	anyValue bool
	columns  []*countColumn
}

// NewCount returns the AggFuncs entry for count(*).
func NewCount() anon.AggFuncs {
	return anon.AggFuncs{
		Name:      "count",
		FinalType: anon.ValueInt64,
		NewState: func(cfg *anon.Config, args anon.ArgsDescriptor) (anon.AggState, error) {
			return newCountState(cfg, args, false)
		},
	}
}

// NewCountAny returns the AggFuncs entry for count(x).
func NewCountAny() anon.AggFuncs {
	return anon.AggFuncs{
		Name:      "count_any",
		FinalType: anon.ValueInt64,
		NewState: func(cfg *anon.Config, args anon.ArgsDescriptor) (anon.AggState, error) {
			return newCountState(cfg, args, true)
		},
	}
}

func newCountState(cfg *anon.Config, args anon.ArgsDescriptor, anyValue bool) (anon.AggState, error) {
	if len(args.AidColumns) == 0 {
		return nil, anon.ErrAidMissing.New("count")
	}
	columns := make([]*countColumn, len(args.AidColumns))
	for i, binding := range args.AidColumns {
		columns[i] = &countColumn{
			binding: binding,
			aids:    anon.NewAidTracker(),
			contrib: anon.NewContributionTracker(anon.IntOps, cfg.TopCountMax),
		}
	}
	return &countState{cfg: cfg, args: args, anyValue: anyValue, columns: columns}, nil
}

func (s *countState) Update(ctx *anon.Context, row anon.Row) error {
	contributes := true
	if s.anyValue {
		contributes = !row[s.args.ValueColumn].IsNull()
	}

	for _, col := range s.columns {
		raw := row[col.binding.ColumnIndex]
		if raw.IsNull() {
			col.aids.Insert(nil)
			continue
		}
		aid, err := col.binding.Mapper(raw.AsInterface())
		if err != nil {
			return err
		}
		col.aids.Insert(&aid)
		if contributes {
			col.contrib.Insert(aid, anon.IntContribution(1))
		} else {
			col.contrib.TouchAID(aid)
		}
	}
	return nil
}

func (s *countState) Merge(ctx *anon.Context, src anon.AggState) error {
	other, ok := src.(*countState)
	if !ok {
		return anon.ErrAggregateMisuse.New("count: merge with mismatched aggregator state")
	}
	if len(other.columns) != len(s.columns) {
		return anon.ErrAggregateMisuse.New("count: merge with mismatched AID column count")
	}
	for i, col := range s.columns {
		col.aids.Merge(other.columns[i].aids)
		col.contrib.Merge(other.columns[i].contrib)
	}
	return nil
}

func (s *countState) Eval(ctx *anon.Context, bucket *anon.Bucket) (anon.Value, error) {
	bucketSeed := bucketSeedFor(bucket)
	minCount := countMinFloor(bucket, s.cfg.LowCountMinThreshold)

	var acc ResultAccumulator
	for _, col := range s.columns {
		if col.aids.AllAidsNull() {
			continue
		}
		result := CalculateResult(s.cfg, bucketSeed, anon.IntOps, col.aids.Seed(), col.contrib)
		if result.NotEnoughAidValues {
			return anon.IntValue(minCount), nil
		}
		acc.Accumulate(result)
	}

	if acc.NotEnoughAidValues {
		return anon.IntValue(minCount), nil
	}

	rounded := acc.FlattenedSum() + acc.FinalizeNoise()
	finalized := int64(rounded + 0.5)
	if finalized < 0 {
		finalized = 0
	}
	if finalized < minCount {
		finalized = minCount
	}
	return anon.IntValue(finalized), nil
}

// countMinFloor is the lower bound count.go's Eval clamps to: 0 for a
// global aggregation (a bucket with no grouping labels at all), or the
// configured low-count minimum threshold otherwise. Grounded on
// count_common.c's `min_count = is_global_aggregation(fcinfo) ? 0 :
// g_config.low_count_min_threshold` - a query with no GROUP BY can't leak
// which AIDs are present just by reporting a small true count, since there
// is only ever one bucket to compare against.
func countMinFloor(bucket *anon.Bucket, lowCountMinThreshold int) int64 {
	if bucket != nil && len(bucket.Labels) == 0 {
		return 0
	}
	return int64(lowCountMinThreshold)
}

// Explain renders one line per AID column with its distinct contributor
// count and true (unflattened) total. Top contributors, seeds and the
// flattened and noisy values are not included.
func (s *countState) Explain() string {
	out := ""
	for i, col := range s.columns {
		if i > 0 {
			out += " \n"
		}
		out += fmt.Sprintf("uniq=%d, true=%d", col.contrib.DistinctAIDCount(), col.contrib.Overall().Int)
	}
	return out
}

// bucketSeedFor derives a bucket's noise seed from its grouping labels.
// Grounded on pg_diffix's bucket seed derivation, which hashes the bucket's
// label values so that two buckets with identical labels (even across
// separate queries run with the same salt) draw identical noise.
func bucketSeedFor(bucket *anon.Bucket) anon.Seed {
	if bucket == nil {
		return 0
	}
	var seed anon.Seed
	for _, label := range bucket.Labels {
		h, _ := anon.HashValue(label)
		seed ^= anon.Seed(h)
	}
	return seed
}
