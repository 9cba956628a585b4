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

import "github.com/mitchellh/hashstructure"

// fnvOffset64 and fnvPrime64 are the 64-bit FNV-1a constants. We hand-roll the
// hash instead of reaching for hash/maphash because maphash's seed is
// randomized per-process by design - exactly the property we can't have
// here. A fixed-seed FNV-1a gives byte-for-byte reproducible step/salt
// hashes across runs and processes, which every noise draw's determinism
// depends on.
const (
	fnvOffset64 uint64 = 14695981039346656037
	fnvPrime64  uint64 = 1099511628211
)

// hash64 is the deterministic byte hash used to mix a salt or step name
// into a noise seed: the effective seed is seed XOR hash64(salt) XOR
// hash64(step_name).
func hash64(data string) uint64 {
	h := fnvOffset64
	for i := 0; i < len(data); i++ {
		h ^= uint64(data[i])
		h *= fnvPrime64
	}
	return h
}

// HashValue derives a 64-bit hash of an arbitrary Go value for use as an AID
// hash: for string types it is a byte-hash. Equal values always hash
// equally; unequal values collide only with negligible probability.
func HashValue(v interface{}) (uint64, error) {
	return hashstructure.Hash(v, nil)
}
