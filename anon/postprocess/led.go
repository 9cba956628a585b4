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

import (
	"fmt"
	"strings"

	"github.com/diffixlabs/diffix-engine/anon"
)

// maxSiblings caps how many buckets a siblingGroup tracks; beyond that the
// exact count no longer matters because only groups of size 1 (no
// siblings, an "unknown column") or size 2 (exactly one sibling, a
// candidate "isolating column") drive any decision. Grounded on
// MAX_SIBLINGS in src/aggregation/led.c.
const maxSiblings = 3

// siblingGroup collects the (up to maxSiblings) buckets that share every
// label except one skipped column.
type siblingGroup struct {
	members []*anon.Bucket
}

func (g *siblingGroup) add(b *anon.Bucket) {
	if len(g.members) >= maxSiblings {
		return
	}
	g.members = append(g.members, b)
}

// subsetKey renders every label except the skipped column into a string
// that groups buckets by exact equality, NULL and non-NULL kept distinct.
// Grounded on subset_equals/subset_hash in src/aggregation/led.c, simplified
// from a hash-with-equality-check scheme to a single exact key since Go
// maps give us that for free.
func subsetKey(labels []anon.Value, skipped int) string {
	var b strings.Builder
	for i, v := range labels {
		if i == skipped {
			continue
		}
		if v.IsNull() {
			b.WriteString("\x00N")
			continue
		}
		fmt.Fprintf(&b, "\x00%v", v.AsInterface())
	}
	return b.String()
}

// MergeLinkedExtensions looks, for every low-count bucket, for a column
// that isolates it from exactly one other bucket's worth of rows (an
// "isolating column" with a single, high-count sibling) alongside a column
// with no siblings at all (an "unknown column" - one a victim's own
// attributes could vary along unobserved by the analyst). A bucket with
// both is folded into every one of its isolating siblings, since
// disclosing it individually combined with the sibling would let an
// attacker learn the excluded victim's value in the unknown column.
// Grounded on led_hook in src/aggregation/led.c.
func (s *Set) MergeLinkedExtensions(ctx *anon.Context, buckets []*anon.Bucket, numLabels int) (int, error) {
	// LED requires at least 2 columns - an isolating column and an unknown
	// column. With exactly 2 columns attacks are not useful because they
	// would have to isolate victims against the whole dataset.
	if numLabels <= 2 {
		return 0, nil
	}

	groupsPerColumn := make([]map[string]*siblingGroup, numLabels)
	for c := range groupsPerColumn {
		groupsPerColumn[c] = make(map[string]*siblingGroup)
	}

	siblingsOf := make(map[*anon.Bucket][]*siblingGroup, len(buckets))
	for _, bucket := range buckets {
		if bucket.IsStarBucket {
			continue
		}
		groups := make([]*siblingGroup, numLabels)
		for c := 0; c < numLabels; c++ {
			key := subsetKey(bucket.Labels, c)
			g, ok := groupsPerColumn[c][key]
			if !ok {
				g = &siblingGroup{}
				groupsPerColumn[c][key] = g
			}
			g.add(bucket)
			groups[c] = g
		}
		siblingsOf[bucket] = groups
	}

	bucketsMerged := 0
	for _, bucket := range buckets {
		if bucket.IsStarBucket || bucket.Merged {
			continue
		}
		lowCount, err := s.isLowCount(ctx, bucket)
		if err != nil {
			return 0, err
		}
		if !lowCount {
			continue
		}

		hasUnknownColumn := false
		var mergeTargets []*anon.Bucket

		for c := 0; c < numLabels; c++ {
			group := siblingsOf[bucket][c]
			switch len(group.members) {
			case 1:
				// No siblings for this column: an unknown column.
				hasUnknownColumn = true
			case 2:
				other := group.members[0]
				if other == bucket {
					other = group.members[1]
				}
				otherLowCount, err := s.isLowCount(ctx, other)
				if err != nil {
					return 0, err
				}
				if !otherLowCount {
					mergeTargets = append(mergeTargets, other)
				}
			default:
				// Multiple siblings (capped at maxSiblings): no special
				// meaning, neither isolating nor unknown.
			}
		}

		if !hasUnknownColumn || len(mergeTargets) == 0 {
			continue
		}

		for _, target := range mergeTargets {
			if err := s.mergeInto(ctx, target, bucket); err != nil {
				return 0, err
			}
			if s.recorder != nil {
				s.recorder.LinkedMerge(ctx.QueryID, target.Labels, bucket.Labels)
			}
		}
		bucket.Merged = true
		bucketsMerged++
	}

	return bucketsMerged, nil
}
