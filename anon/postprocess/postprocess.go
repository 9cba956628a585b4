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

// Package postprocess runs the cross-bucket merging passes that happen
// after every bucket's per-row aggregation has finished and before any
// bucket is projected to the caller: Linked Extension Detection and
// star-bucket merging. Both passes only ever combine whole buckets - they
// never re-read raw rows - which is why bucket_scan.c requires the full
// bucket set to be materialized before either one runs.
package postprocess

import (
	"github.com/diffixlabs/diffix-engine/anon"
	"github.com/diffixlabs/diffix-engine/audit"
)

// Set runs Linked Extension Detection and star-bucket merging over one
// query's bucket list. lcfSlot is the index into every Bucket's Aggregates
// slice holding the implicit low-count filter aggregate (anon/aggregation's
// NewLowCount), shared by every bucket in the set.
type Set struct {
	cfg      *anon.Config
	slots    []anon.AggregateSlot
	arena    *anon.Arena[anon.AggState]
	lcfSlot  int
	recorder audit.Recorder
}

// NewSet returns a Set bound to arena, which must be the same arena the
// buckets passed to Run were built against. recorder may be nil, in which
// case Run's suppression and merge decisions are not audited.
func NewSet(cfg *anon.Config, slots []anon.AggregateSlot, arena *anon.Arena[anon.AggState], lcfSlot int, recorder audit.Recorder) *Set {
	return &Set{cfg: cfg, slots: slots, arena: arena, lcfSlot: lcfSlot, recorder: recorder}
}

// Run executes Linked Extension Detection followed by star-bucket merging,
// then drops every bucket left low-count or merged away, returning the
// buckets safe to project. Order matches led_hook running before
// star_bucket_hook in the original implementation: star-bucket merging
// skips any bucket LED already folded away, via Bucket.Merged.
func (s *Set) Run(ctx *anon.Context, buckets []*anon.Bucket, numLabels int) ([]*anon.Bucket, error) {
	span, spanCtx := ctx.Span("diffixengine.postprocess")
	defer span.Finish()
	ctx.Context = spanCtx

	if _, err := s.MergeLinkedExtensions(ctx, buckets, numLabels); err != nil {
		return nil, err
	}
	star, err := s.MergeStarBucket(ctx, buckets, numLabels)
	if err != nil {
		return nil, err
	}

	result := make([]*anon.Bucket, 0, len(buckets)+1)
	for _, bucket := range buckets {
		if bucket.Merged {
			continue
		}
		lowCount, err := s.isLowCount(ctx, bucket)
		if err != nil {
			return nil, err
		}
		if lowCount {
			if s.recorder != nil {
				s.recorder.Suppressed(ctx.QueryID, bucket.Labels, bucket.RowCount)
			}
			continue
		}
		result = append(result, bucket)
	}
	if star != nil {
		result = append(result, star)
	}
	return result, nil
}

// newEmptyAggregates allocates one fresh, zero-valued AggState per slot
// into the arena, used to build the synthetic star bucket.
func (s *Set) newEmptyAggregates() ([]anon.Handle, error) {
	handles := make([]anon.Handle, len(s.slots))
	for i, slot := range s.slots {
		state, err := slot.Funcs.NewState(s.cfg, slot.Args)
		if err != nil {
			return nil, err
		}
		handles[i] = s.arena.Alloc(state)
	}
	return handles, nil
}

// mergeInto folds src's aggregate states and row count into dst, leaving
// src's own state untouched (callers mark src.Merged separately).
func (s *Set) mergeInto(ctx *anon.Context, dst, src *anon.Bucket) error {
	for i := range s.slots {
		dstState := s.arena.Get(dst.Aggregates[i])
		srcState := s.arena.Get(src.Aggregates[i])
		if err := (*dstState).Merge(ctx, *srcState); err != nil {
			return err
		}
	}
	dst.RowCount += src.RowCount
	return nil
}

// isLowCount evaluates the bucket's shared low-count filter aggregate.
func (s *Set) isLowCount(ctx *anon.Context, bucket *anon.Bucket) (bool, error) {
	state := s.arena.Get(bucket.Aggregates[s.lcfSlot])
	v, err := (*state).Eval(ctx, bucket)
	if err != nil {
		return false, err
	}
	return v.Bool, nil
}
