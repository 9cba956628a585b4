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

// AidTracker accumulates, for one AID column of one bucket, the XOR seed of
// every distinct AID that contributed and the set of those AIDs. XOR makes
// the seed order-independent: rows can arrive from a table scan or an index
// lookup in any order and the finalized bucket is unaffected.
//
// Grounded on pg_diffix's per-bucket AID tracker in src/aggregation/
// aid_tracker.c, which keeps the same pair of running seed and hash set.
type AidTracker struct {
	seed     Seed
	aids     *AidSet
	sawNull  bool
	rowCount uint64
}

// NewAidTracker returns an empty AidTracker.
func NewAidTracker() *AidTracker {
	return &AidTracker{aids: NewAidSet()}
}

// Insert records one row's AID value. A nil aid (the row's AID column was
// SQL NULL) is tracked separately and never contributes to the seed or the
// distinct count, matching pg_diffix's treatment of NULL AIDs as
// "unknown contributor" rather than as a distinct contributor.
func (t *AidTracker) Insert(aid *AID) {
	t.rowCount++
	if aid == nil {
		t.sawNull = true
		return
	}
	if t.aids.Add(*aid) {
		t.seed ^= Seed(*aid)
	}
}

// Merge folds other into t, used when two buckets sharing this AID column
// are combined (star bucket / LED merging, or parallel partial aggregation
// merge).
func (t *AidTracker) Merge(other *AidTracker) {
	if other == nil {
		return
	}
	other.aids.Each(func(aid AID) {
		if t.aids.Add(aid) {
			t.seed ^= Seed(aid)
		}
	})
	t.sawNull = t.sawNull || other.sawNull
	t.rowCount += other.rowCount
}

// Seed returns the XOR-accumulated noise seed for this AID column.
func (t *AidTracker) Seed() Seed {
	return t.seed
}

// DistinctCount returns the number of distinct non-NULL AIDs seen.
func (t *AidTracker) DistinctCount() uint64 {
	return t.aids.Count()
}

// AllAidsNull reports whether every row inserted had a NULL AID for this
// column and at least one row was inserted - the fast path pg_diffix's
// count.c calls all_aids_null, under which low-count filtering and
// flattening are skipped entirely because there are no real contributors
// to protect.
func (t *AidTracker) AllAidsNull() bool {
	return t.rowCount > 0 && t.aids.Count() == 0 && t.sawNull
}
