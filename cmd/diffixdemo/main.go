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

// Command diffixdemo runs anon_count_star over a small synthetic
// population and prints the anonymized, post-processed result, showing the
// engine end to end without a real upstream query rewriter: it builds its
// own driver.SliceSource by hand, a minimal caller driving the engine
// directly instead of through a rewriter integration.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	diffixengine "github.com/diffixlabs/diffix-engine"
	"github.com/diffixlabs/diffix-engine/anon"
	"github.com/diffixlabs/diffix-engine/audit"
	"github.com/diffixlabs/diffix-engine/driver"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "diffixdemo:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := anon.NewConfig(anon.DefaultConfig("diffixdemo-salt"))
	if err != nil {
		return err
	}

	registry, err := diffixengine.StandardRegistry(0, 1)
	if err != nil {
		return err
	}

	logger := logrus.New()
	engine := diffixengine.New(cfg, registry, logger, audit.NewLogRecorder(logger))

	desc, err := buildDescriptor(registry)
	if err != nil {
		return err
	}

	source := driver.NewSliceSource(demoPopulation())

	rows, err := engine.Query(context.Background(), "demo-query", source, desc)
	if err != nil {
		return err
	}

	for _, row := range rows {
		city := "*"
		if len(row.Labels) > 0 && !row.Labels[0].IsNull() {
			city = row.Labels[0].String
		}
		fmt.Printf("city=%-8s anon_count=%v\n", city, row.Values[0].AsInterface())
	}
	return nil
}

// buildDescriptor requests count(*) plus the implicit low-count filter
// over a single AID column at row position 0, the minimal shape every
// anonymizing query carries.
func buildDescriptor(registry *anon.Registry) (diffixengine.BucketDescriptor, error) {
	countFuncs, err := registry.Lookup("count")
	if err != nil {
		return diffixengine.BucketDescriptor{}, err
	}
	lcfFuncs, err := registry.Lookup("lcf")
	if err != nil {
		return diffixengine.BucketDescriptor{}, err
	}

	mapper, err := anon.NewAidMapper(anon.AidKindInt64)
	if err != nil {
		return diffixengine.BucketDescriptor{}, err
	}
	args := anon.ArgsDescriptor{
		AidColumns:  []anon.AidColumnBinding{{ColumnIndex: 0, Kind: anon.AidKindInt64, Mapper: mapper}},
		ValueColumn: -1,
	}

	return diffixengine.BucketDescriptor{
		Slots: []anon.AggregateSlot{
			{Funcs: countFuncs, Args: args},
			{Funcs: lcfFuncs, Args: args},
		},
		LCFSlot:   1,
		NumLabels: 1,
	}, nil
}

// demoPopulation returns one pre-grouped bucket per city, each with its own
// AID population; Lugano's is deliberately small enough to be suppressed by
// the low-count filter.
func demoPopulation() []driver.SliceBucket {
	city := func(name string, aidCount int) driver.SliceBucket {
		rows := make([]anon.Row, aidCount)
		for i := range rows {
			rows[i] = anon.Row{anon.IntValue(int64(i + 1))}
		}
		return driver.SliceBucket{Labels: []anon.Value{anon.StringValue(name)}, Rows: rows}
	}
	return []driver.SliceBucket{
		city("Berlin", 500),
		city("Lugano", 1),
	}
}
