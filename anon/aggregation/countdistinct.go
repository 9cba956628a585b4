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

// lcfRange is added to the low-count minimum threshold to size the capped
// per-value AID sets kept by count(distinct x): once a value's AID set for
// every AID column reaches this size it is certain to be "high count" and
// the set stops growing. Grounded on the LCF_RANGE constant in
// src/aggregation/count_distinct.c.
const lcfRange = 2

// distinctValueEntry is one distinct value seen by count(distinct x),
// together with one capped AID set per AID column binding.
type distinctValueEntry struct {
	key     uint64
	aidSets []*anon.AidSet
}

// countDistinctState is the AggState for count(distinct x): the reported
// count only ever includes values whose AID-set membership is itself high
// count on every bound AID column, so that a single value contributed by
// too few distinct protected entities can't leak its own existence.
// Grounded on src/aggregation/count_distinct.c.
type countDistinctState struct {
	cfg     *anon.Config
	args    anon.ArgsDescriptor
	entries map[uint64]*distinctValueEntry
	maxSize int
}

// NewCountDistinct returns the AggFuncs entry for count(distinct x).
func NewCountDistinct() anon.AggFuncs {
	return anon.AggFuncs{
		Name:      "count_distinct",
		FinalType: anon.ValueInt64,
		NewState: func(cfg *anon.Config, args anon.ArgsDescriptor) (anon.AggState, error) {
			if len(args.AidColumns) == 0 {
				return nil, anon.ErrAidMissing.New("count_distinct")
			}
			return &countDistinctState{
				cfg:     cfg,
				args:    args,
				entries: make(map[uint64]*distinctValueEntry),
				maxSize: cfg.LowCountMinThreshold + lcfRange + 1,
			}, nil
		},
	}
}

func (s *countDistinctState) Update(ctx *anon.Context, row anon.Row) error {
	value := row[s.args.ValueColumn]
	if value.IsNull() {
		return nil
	}
	key, err := anon.HashValue(value.AsInterface())
	if err != nil {
		return err
	}

	entry, ok := s.entries[key]
	if !ok {
		entry = &distinctValueEntry{key: key, aidSets: make([]*anon.AidSet, len(s.args.AidColumns))}
		for i := range entry.aidSets {
			entry.aidSets[i] = anon.NewAidSet()
		}
		s.entries[key] = entry
	}

	for i, binding := range s.args.AidColumns {
		raw := row[binding.ColumnIndex]
		if raw.IsNull() {
			continue
		}
		if uint64(entry.aidSets[i].Count()) >= uint64(s.maxSize) {
			continue
		}
		aid, err := binding.Mapper(raw.AsInterface())
		if err != nil {
			return err
		}
		entry.aidSets[i].Add(aid)
	}
	return nil
}

func (s *countDistinctState) Merge(ctx *anon.Context, src anon.AggState) error {
	other, ok := src.(*countDistinctState)
	if !ok {
		return anon.ErrAggregateMisuse.New("count_distinct: merge with mismatched aggregator state")
	}
	for key, otherEntry := range other.entries {
		entry, ok := s.entries[key]
		if !ok {
			entry = &distinctValueEntry{key: key, aidSets: make([]*anon.AidSet, len(s.args.AidColumns))}
			for i := range entry.aidSets {
				entry.aidSets[i] = anon.NewAidSet()
			}
			s.entries[key] = entry
		}
		for i := range entry.aidSets {
			entry.aidSets[i].Union(otherEntry.aidSets[i])
		}
	}
	return nil
}

func (s *countDistinctState) Eval(ctx *anon.Context, bucket *anon.Bucket) (anon.Value, error) {
	count := s.countHighCountValues(bucket)
	if count == 0 {
		return anon.NullValue, nil
	}
	return anon.IntValue(count), nil
}

// countHighCountValues returns the number of distinct values whose AID-set
// membership is high count on every bound AID column. Grounded on
// count_distinct_calculate_final in src/aggregation/count_distinct.c: the
// reported count only ever sums hc_values_count, never adding extra noise
// of its own since each constituent value was already individually LCF
// tested.
func (s *countDistinctState) countHighCountValues(bucket *anon.Bucket) int64 {
	bucketSeed := bucketSeedFor(bucket)
	var hcValues int64
	for _, entry := range s.entries {
		if s.isHighCount(bucketSeed, entry) {
			hcValues++
		}
	}
	return hcValues
}

func (s *countDistinctState) isHighCount(bucketSeed anon.Seed, entry *distinctValueEntry) bool {
	for _, set := range entry.aidSets {
		if set.Count() >= uint64(s.maxSize) {
			continue
		}
		seed := anon.Seed(0)
		set.Each(func(aid anon.AID) { seed ^= anon.Seed(aid) })
		threshold := anon.LCFThreshold(s.cfg, []anon.Seed{bucketSeed, seed})
		if set.Count() < uint64(threshold) {
			return false
		}
	}
	return true
}

func (s *countDistinctState) Explain() string {
	return fmt.Sprintf("count_distinct values=%d", len(s.entries))
}
