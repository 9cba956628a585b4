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

import "fmt"

// AggState is the per-bucket, per-aggregate running state of one
// anonymizing aggregate. It plays the role of the original
// implementation's AnonAggState together with its AnonAggFuncs vtable, but
// shaped as an update/merge/eval interface rather than a
// C struct-of-function-pointers.
type AggState interface {
	// Update folds one input row into the state.
	Update(ctx *Context, row Row) error
	// Merge folds src's accumulated state into the receiver, used when
	// combining partial aggregations (parallel scan merge, star bucket
	// merge, LED merge).
	Merge(ctx *Context, src AggState) error
	// Eval derives the finalized value from the state and its owning
	// bucket's metadata (row count, label values). Bucket may be nil when
	// Eval is called outside of bucket finalization (e.g. tests).
	Eval(ctx *Context, bucket *Bucket) (Value, error)
	// Explain renders a short human-readable summary of the state, used by
	// audit logging and EXPLAIN-style debugging. Grounded on
	// pg_diffix/aggregation/common.h's explain callback.
	Explain() string
}

// AggFuncs is one anonymizing aggregate's factory and metadata, the Go
// analogue of the original implementation's AnonAggFuncs dispatch table
// (pg_diffix/aggregation/common.h). The engine looks one up by name from a
// fixed Registry rather than through PostgreSQL's catalog.
type AggFuncs struct {
	// Name is the SQL function name this entry answers for, e.g. "count".
	Name string
	// FinalType is the ValueTag of this aggregate's finalized result.
	FinalType ValueTag
	// NewState constructs a fresh AggState bound to args.
	NewState func(cfg *Config, args ArgsDescriptor) (AggState, error)
}

// AggregateSlot names one requested aggregate in query-column order: which
// AggFuncs produces it and the ArgsDescriptor it was bound with. Both
// driver.Conn (to allocate the initial per-bucket state while scanning) and
// postprocess.Set (to allocate a matching fresh state when synthesizing the
// star bucket) need this pairing, so it lives alongside AggFuncs itself
// rather than in either downstream package.
type AggregateSlot struct {
	Funcs AggFuncs
	Args  ArgsDescriptor
}

// Registry is a fixed, immutable lookup table of known anonymizing
// aggregates, built once at engine construction time and shared read-only
// across every query: no global mutable state.
type Registry struct {
	byName map[string]AggFuncs
}

// NewRegistry builds a Registry from the given entries, rejecting duplicate
// names.
func NewRegistry(entries ...AggFuncs) (*Registry, error) {
	byName := make(map[string]AggFuncs, len(entries))
	for _, e := range entries {
		if _, exists := byName[e.Name]; exists {
			return nil, ErrConfigInvalid.New(fmt.Sprintf("duplicate aggregate registered: %s", e.Name))
		}
		byName[e.Name] = e
	}
	return &Registry{byName: byName}, nil
}

// Lookup returns the AggFuncs registered under name.
func (r *Registry) Lookup(name string) (AggFuncs, error) {
	f, ok := r.byName[name]
	if !ok {
		return AggFuncs{}, ErrAggregateMisuse.New(fmt.Sprintf("unknown anonymizing aggregate: %s", name))
	}
	return f, nil
}
