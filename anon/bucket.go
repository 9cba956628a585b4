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

// Bucket is one grouped result row in progress: its grouping labels plus
// one AggState handle per requested aggregate, resolved against the query's
// Arena[AggState]. Grounded on pg_diffix's Bucket
// (pg_diffix/aggregation/common.h): row_count and grouping_labels carry
// over directly; Aggregates replaces the flexible-array-member trick with
// an ordinary slice of arena Handles.
type Bucket struct {
	// Labels holds the bucket's GROUP BY key values, in query column order.
	Labels []Value
	// RowCount is the number of input rows merged into this bucket. When
	// postprocessing merges another bucket into this one (LED or the star
	// bucket), that bucket's RowCount is added to it.
	RowCount int64
	// Aggregates holds one Handle per requested aggregate expression, into
	// the query's AggState arena.
	Aggregates []Handle
	// IsStarBucket marks a synthetic bucket formed by merging every
	// low-count bucket of a query.
	IsStarBucket bool
	// Merged marks a bucket that has been folded into another one by
	// postprocessing (star-bucket merging or Linked Extension Detection)
	// and must be dropped from the final result set.
	Merged bool
}

// AidColumnBinding describes how one AID column argument is read from a row
// and mapped into an AID.
type AidColumnBinding struct {
	// ColumnIndex is the row position of the raw AID value.
	ColumnIndex int
	Kind        AidKind
	Mapper      AidMapper
}

// ArgsDescriptor binds an anonymizing aggregate's declared SQL arguments to
// row positions and value semantics: which columns carry AIDs, which
// carries the value to contribute (if any), and what numeric kind that
// value is. Every anonymizing aggregate function receives one of these at
// create_state time and never re-resolves it per row, mirroring
// PG_FUNCTION_ARGS inspection in the original create_state callback
// (pg_diffix/aggregation/common.h).
type ArgsDescriptor struct {
	AidColumns []AidColumnBinding
	// ValueColumn is the row position of the value argument (e.g. the x in
	// sum(x) or count(x)), or -1 for count(*).
	ValueColumn int
	ValueTag    ValueTag
}

// PrimaryAid returns the descriptor's first AID column binding. Every
// anonymizing aggregate requires at least one AID column; construction
// elsewhere should reject an ArgsDescriptor with none before it reaches
// aggregator code.
func (d ArgsDescriptor) PrimaryAid() AidColumnBinding {
	return d.AidColumns[0]
}
