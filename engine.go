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

// Package diffixengine is the top-level seam an upstream query rewriter
// (out of scope for this module) integrates against: it owns a validated
// anon.Config and a fixed anon.Registry of anonymizing aggregator function
// tables, and hands out a per-query anon.Context the way a SQL engine hands
// out a per-query context from its catalog. diffixengine.Engine never
// parses or plans SQL; it receives a
// BucketDescriptor plus a stream of already-bucketed rows (via
// driver.BucketSource) and drives the aggregation state machine to
// completion, then runs cross-bucket postprocessing before returning.
package diffixengine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/diffixlabs/diffix-engine/anon"
	"github.com/diffixlabs/diffix-engine/anon/aggregation"
	"github.com/diffixlabs/diffix-engine/anon/postprocess"
	"github.com/diffixlabs/diffix-engine/audit"
	"github.com/diffixlabs/diffix-engine/driver"
)

// StandardRegistry returns the Registry of every anonymizing aggregate this
// engine knows how to evaluate. histogramAidIndex/binSize bind
// count_histogram's arguments at registry-construction time (mirroring
// create_state's one-time argument binding); a deployment needing more than
// one bin_size registers additional Registry entries under distinct names.
func StandardRegistry(histogramAidIndex int, histogramBinSize int64) (*anon.Registry, error) {
	return anon.NewRegistry(
		aggregation.NewCount(),
		aggregation.NewCountAny(),
		aggregation.NewSum(),
		aggregation.NewCountDistinct(),
		aggregation.NewCountHistogram(histogramAidIndex, histogramBinSize),
		aggregation.NewLowCount(),
	)
}

// BucketDescriptor names the aggregates one query requests (in Bucket
// column order) and which of them is the implicit low-count filter every
// anonymizing query carries.
type BucketDescriptor struct {
	// Slots is every requested aggregate, in output column order.
	Slots []anon.AggregateSlot
	// LCFSlot is the index into Slots (and so into every Bucket's
	// Aggregates) holding the low-count filter aggregate.
	LCFSlot int
	// NumLabels is the number of GROUP BY columns buckets are keyed by,
	// needed by postprocess.Set to build the synthetic star bucket's label
	// slice and to run Linked Extension Detection.
	NumLabels int
}

// ResultRow is one finalized, post-processed output row: a bucket's
// grouping labels paired with every requested aggregate's finalized Value,
// in desc.Slots order. Resolving AggState handles against their Arena here,
// rather than returning raw Buckets, keeps the Arena/Handle machinery
// internal to the engine.
type ResultRow struct {
	Labels []anon.Value
	Values []anon.Value
}

// Engine owns one validated Config and Registry and evaluates any number of
// queries against them concurrently; it carries no per-query mutable state
// of its own.
type Engine struct {
	Config   *anon.Config
	Registry *anon.Registry
	Logger   *logrus.Logger
	Audit    audit.Recorder
}

// New returns an Engine bound to cfg and registry. logger and recorder may
// be nil; a nil logger falls back to logrus's standard logger, and a nil
// recorder means suppression/merge decisions are not audited.
func New(cfg *anon.Config, registry *anon.Registry, logger *logrus.Logger, recorder audit.Recorder) *Engine {
	return &Engine{Config: cfg, Registry: registry, Logger: logger, Audit: recorder}
}

// Query drives desc's aggregates over every bucket source yields, then runs
// Linked Extension Detection and star-bucket merging, and finally resolves
// every surviving bucket's aggregates into plain ResultRows. Mirrors the
// teacher's Engine.Query, minus SQL parsing/planning: desc plays the role
// of the planned projection list.
func (e *Engine) Query(ctx context.Context, queryID string, source driver.BucketSource, desc BucketDescriptor) ([]ResultRow, error) {
	start := time.Now()

	builder := driver.DefaultContextBuilder{Config: e.Config, Logger: e.Logger}
	conn := driver.NewConn(builder, e.Registry, desc.Slots)

	buckets, arena, err := conn.Run(ctx, queryID, source)
	if err != nil {
		if e.Audit != nil {
			e.Audit.Error(queryID, err)
		}
		return nil, err
	}

	aCtx := builder.NewContext(ctx, queryID)
	merged, err := postprocess.NewSet(e.Config, desc.Slots, arena, desc.LCFSlot, e.Audit).Run(aCtx, buckets, desc.NumLabels)
	if err != nil {
		if e.Audit != nil {
			e.Audit.Error(queryID, err)
		}
		return nil, err
	}

	rows := make([]ResultRow, len(merged))
	for i, b := range merged {
		values := make([]anon.Value, len(desc.Slots))
		for j := range desc.Slots {
			state := arena.Get(b.Aggregates[j])
			v, err := (*state).Eval(aCtx, b)
			if err != nil {
				if e.Audit != nil {
					e.Audit.Error(queryID, err)
				}
				return nil, err
			}
			values[j] = v
		}
		rows[i] = ResultRow{Labels: b.Labels, Values: values}
	}

	if e.Audit != nil {
		e.Audit.Query(queryID, len(rows), time.Since(start), nil)
	}
	return rows, nil
}
