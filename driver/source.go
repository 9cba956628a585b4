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

package driver

import "github.com/diffixlabs/diffix-engine/anon"

// SliceBucket is one pre-grouped bucket's worth of input, the in-memory
// shape tests and the demo command feed into SliceSource rather than
// implementing a real host row stream.
type SliceBucket struct {
	Labels []anon.Value
	Rows   []anon.Row
}

// SliceSource is a BucketSource over an in-memory slice of SliceBuckets, a
// reference BucketSource implementation used by tests and cmd/diffixdemo in
// place of a real upstream rewriter.
type SliceSource struct {
	buckets []SliceBucket
	pos     int
}

// NewSliceSource returns a SliceSource yielding buckets in the given order.
func NewSliceSource(buckets []SliceBucket) *SliceSource {
	return &SliceSource{buckets: buckets}
}

// Next implements BucketSource.
func (s *SliceSource) Next() (labels []anon.Value, rows []anon.Row, ok bool, err error) {
	if s.pos >= len(s.buckets) {
		return nil, nil, false, nil
	}
	b := s.buckets[s.pos]
	s.pos++
	return b.Labels, b.Rows, true, nil
}
