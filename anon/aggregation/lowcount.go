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

import "github.com/diffixlabs/diffix-engine/anon"

// lowCountState is the AggState behind the implicit low-count filter every
// anonymizing query carries: one AidTracker per AID column, each compared
// against its own noisy threshold, ORed together. A bucket is low-count if
// any single AID column says so. Grounded on LowCountState in
// src/aggregation/low_count.c.
type lowCountState struct {
	cfg      *anon.Config
	bindings []anon.AidColumnBinding
	trackers []*anon.AidTracker
}

// NewLowCount returns the AggFuncs entry for the internal low-count filter
// aggregate, bound to one tracker per AID column.
func NewLowCount() anon.AggFuncs {
	return anon.AggFuncs{
		Name:      "lcf",
		FinalType: anon.ValueBool,
		NewState: func(cfg *anon.Config, args anon.ArgsDescriptor) (anon.AggState, error) {
			if len(args.AidColumns) == 0 {
				return nil, anon.ErrAidMissing.New("lcf")
			}
			trackers := make([]*anon.AidTracker, len(args.AidColumns))
			for i := range args.AidColumns {
				trackers[i] = anon.NewAidTracker()
			}
			return &lowCountState{cfg: cfg, bindings: args.AidColumns, trackers: trackers}, nil
		},
	}
}

// Update registers every bound AID column's value for this row, a NULL raw
// value tracked as an unknown (non-distinct) contributor rather than
// mapped. Grounded on agg_transition in src/aggregation/low_count.c.
func (s *lowCountState) Update(ctx *anon.Context, row anon.Row) error {
	for i, binding := range s.bindings {
		raw := row[binding.ColumnIndex]
		if raw.IsNull() {
			s.trackers[i].Insert(nil)
			continue
		}
		aid, err := binding.Mapper(raw.AsInterface())
		if err != nil {
			return err
		}
		s.trackers[i].Insert(&aid)
	}
	return nil
}

// UpdateAID feeds one AID column's already mapped AID directly (nil for a
// NULL AID), an alternate entry
// point for a caller that already mapped the AID for another aggregate on
// the same bucket and wants to avoid mapping it twice.
func (s *lowCountState) UpdateAID(i int, aid *anon.AID) {
	s.trackers[i].Insert(aid)
}

func (s *lowCountState) Merge(ctx *anon.Context, src anon.AggState) error {
	other, ok := src.(*lowCountState)
	if !ok {
		return anon.ErrAggregateMisuse.New("lcf: merge with mismatched aggregator state")
	}
	for i := range s.trackers {
		s.trackers[i].Merge(other.trackers[i])
	}
	return nil
}

func (s *lowCountState) Eval(ctx *anon.Context, bucket *anon.Bucket) (anon.Value, error) {
	return anon.BoolValue(s.IsLowCount(bucket)), nil
}

// IsLowCount reports whether this bucket must be suppressed: true if any
// one AID column's distinct-contributor count falls below its own noisy
// threshold. Grounded on calculate_aid_result/agg_finalize in
// src/aggregation/low_count.c.
func (s *lowCountState) IsLowCount(bucket *anon.Bucket) bool {
	bucketSeed := bucketSeedFor(bucket)
	for _, tracker := range s.trackers {
		threshold := anon.LCFThreshold(s.cfg, []anon.Seed{bucketSeed, tracker.Seed()})
		if tracker.DistinctCount() < uint64(threshold) {
			return true
		}
	}
	return false
}

func (s *lowCountState) Explain() string {
	return "lcf"
}
