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

package postprocess

import "github.com/diffixlabs/diffix-engine/anon"

// MergeStarBucket folds every still-unmerged low-count bucket into one
// synthetic "star" bucket, then re-evaluates the star bucket's own
// low-count status from the merged totals. The star bucket is only
// returned if that merge itself produced a high-count result and at least
// two buckets fed into it: folding a single low-count bucket into the star
// bucket would just rename it, not anonymize it. Grounded on
// star_bucket_hook in src/aggregation/star_bucket.c.
func (s *Set) MergeStarBucket(ctx *anon.Context, buckets []*anon.Bucket, numLabels int) (*anon.Bucket, error) {
	handles, err := s.newEmptyAggregates()
	if err != nil {
		return nil, err
	}
	star := &anon.Bucket{
		Labels:       make([]anon.Value, numLabels),
		Aggregates:   handles,
		IsStarBucket: true,
	}

	merged := 0
	for _, bucket := range buckets {
		if bucket.IsStarBucket || bucket.Merged {
			continue
		}
		lowCount, err := s.isLowCount(ctx, bucket)
		if err != nil {
			return nil, err
		}
		if !lowCount {
			continue
		}
		if err := s.mergeInto(ctx, star, bucket); err != nil {
			return nil, err
		}
		bucket.Merged = true
		merged++
	}

	if merged < 2 {
		return nil, nil
	}

	starLowCount, err := s.isLowCount(ctx, star)
	if err != nil {
		return nil, err
	}
	survived := !starLowCount
	if s.recorder != nil {
		s.recorder.StarBucketMerge(ctx.QueryID, merged, survived)
	}
	if !survived {
		return nil, nil
	}
	return star, nil
}
