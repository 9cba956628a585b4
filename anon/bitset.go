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

import "github.com/pilosa/pilosa/roaring"

// AidSet is a compressed set of AID hashes backed by a roaring bitmap. A
// bucket's AID tracker keeps one AidSet per AID column so it can answer
// "how many distinct AIDs contributed" without ever materializing a Go map
// per bucket; every pilosa/roaring call this engine makes is contained to
// this file, so a future bump of that dependency only has one file to
// revisit.
type AidSet struct {
	bits *roaring.Bitmap
}

// NewAidSet returns an empty AidSet.
func NewAidSet() *AidSet {
	return &AidSet{bits: roaring.NewBitmap()}
}

// Add records aid in the set and reports whether it was not already
// present.
func (s *AidSet) Add(aid AID) bool {
	changed, _ := s.bits.Add(uint64(aid))
	return changed
}

// Contains reports whether aid is a member of the set.
func (s *AidSet) Contains(aid AID) bool {
	return s.bits.Contains(uint64(aid))
}

// Count returns the number of distinct AIDs in the set.
func (s *AidSet) Count() uint64 {
	return s.bits.Count()
}

// Union merges other into s in place, used when two buckets with the same
// AID column are merged (star bucket or Linked Extension Detection merging).
func (s *AidSet) Union(other *AidSet) {
	if other == nil {
		return
	}
	s.bits = s.bits.Union(other.bits)
}

// Each calls fn once per distinct AID in the set, in ascending order.
func (s *AidSet) Each(fn func(AID)) {
	itr := s.bits.Iterator()
	itr.Seek(0)
	for {
		v, eof := itr.Next()
		if eof {
			return
		}
		fn(AID(v))
	}
}
