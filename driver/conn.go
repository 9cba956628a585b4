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

import (
	"context"

	"github.com/pkg/errors"

	"github.com/diffixlabs/diffix-engine/anon"
)

// BucketSource is implemented by an upstream query rewriter/executor (out
// of scope for this module) to hand the engine a ready-made
// row stream: one already-grouped bucket's labels and rows at a time. Conn
// never parses or plans SQL - it only drives the aggregation state machine
// to completion over what a BucketSource hands it, the role a real
// database/sql/driver.Conn would play against a parsed, planned query.
type BucketSource interface {
	// Next yields the next bucket's GROUP BY label values and its input
	// rows. ok is false once every bucket has been delivered.
	Next() (labels []anon.Value, rows []anon.Row, ok bool, err error)
}

// Conn drives one query's worth of aggregation against a BucketSource: for
// every bucket the source yields, it allocates fresh AggState for each
// requested aggregate, feeds every row through Update, and records the
// resulting Bucket. This Conn is not a database/sql/driver.Conn and
// implements no wire protocol.
type Conn struct {
	builder  ContextBuilder
	registry *anon.Registry
	slots    []anon.AggregateSlot
}

// NewConn returns a Conn that evaluates every slot (in order) over each
// bucket a BucketSource yields, using builder to construct the per-query
// Context. The same slots must later be passed to postprocess.NewSet so
// both scan and postprocess allocate matching AggState per Aggregates
// index.
func NewConn(builder ContextBuilder, registry *anon.Registry, slots []anon.AggregateSlot) *Conn {
	return &Conn{builder: builder, registry: registry, slots: slots}
}

// Run aggregates every bucket source yields under one shared Arena,
// checking ctx for cancellation between buckets so a caller can abort a
// long-running scan cooperatively. It returns the raw buckets (before any
// postprocessing) and the arena their Aggregates handles resolve against.
func (c *Conn) Run(ctx context.Context, queryID string, source BucketSource) ([]*anon.Bucket, *anon.Arena[anon.AggState], error) {
	aCtx := c.builder.NewContext(ctx, queryID)
	span, spanCtx := aCtx.Span("diffixengine.scan")
	defer span.Finish()
	aCtx.Context = spanCtx

	arena := anon.NewArena[anon.AggState](64)

	var buckets []*anon.Bucket
	for {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		labels, rows, ok, err := source.Next()
		if err != nil {
			return nil, nil, errors.Wrap(err, "reading next bucket")
		}
		if !ok {
			break
		}

		handles := make([]anon.Handle, len(c.slots))
		states := make([]anon.AggState, len(c.slots))
		for i, slot := range c.slots {
			state, err := slot.Funcs.NewState(aCtx.Config, slot.Args)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "allocating %s state", slot.Funcs.Name)
			}
			states[i] = state
			handles[i] = arena.Alloc(state)
		}

		for _, row := range rows {
			for _, state := range states {
				if err := state.Update(aCtx, row); err != nil {
					return nil, nil, errors.Wrap(err, "updating aggregate state")
				}
			}
		}

		buckets = append(buckets, &anon.Bucket{
			Labels:     labels,
			RowCount:   int64(len(rows)),
			Aggregates: handles,
		})
	}

	return buckets, arena, nil
}
