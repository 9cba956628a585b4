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

import errors "gopkg.in/src-d/go-errors.v1"

// Error kinds for the anonymization core. The engine never recovers from
// these: every kind is fatal to the query that produced it, and no kind is
// ever swallowed into a silently-wrong answer.
var (
	// ErrConfigInvalid reports a parameter range violation or failed
	// cross-constraint check at configuration construction time.
	ErrConfigInvalid = errors.NewKind("invalid configuration: %s")

	// ErrArgTypeUnsupported reports an AID or summand of a type the engine
	// has no mapper or contribution ops for.
	ErrArgTypeUnsupported = errors.NewKind("unsupported argument type for %s: %s")

	// ErrAidMissing reports an anonymizing aggregator called without at
	// least one AID argument.
	ErrAidMissing = errors.NewKind("anonymizing aggregator %s requires at least one AID argument")

	// ErrIntervalCompactingImpossible reports that the outlier/top interval
	// compaction in the summable aggregator could not fit the configured
	// slack; this can only happen if top_count's range is narrower than
	// outlier_count's range, which NewConfig's cross-check should already
	// have rejected.
	ErrIntervalCompactingImpossible = errors.NewKind("internal error: impossible interval compacting for %s")

	// ErrAggregateMisuse reports a merge between incompatible aggregator
	// states, or a finalize called twice on the same state.
	ErrAggregateMisuse = errors.NewKind("aggregate misuse: %s")
)
