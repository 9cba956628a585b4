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

package benchmark

import (
	"strconv"
	"testing"

	"github.com/diffixlabs/diffix-engine/anon"
	"github.com/diffixlabs/diffix-engine/anon/aggregation"
)

// BenchmarkCountFlat measures count(*) over a single AID column with
// uniform per-AID contribution, at several population sizes.
func BenchmarkCountFlat(b *testing.B) {
	ctx := anon.NewEmptyContext()
	args, err := singleAidArgs()
	if err != nil {
		b.Fatal(err)
	}
	funcs := aggregation.NewCount()

	for _, aidCount := range []int{100, 10_000, 1_000_000} {
		rows := toAnonRows(flatPopulation(aidCount, 1, anon.IntValue(1)))
		b.Run(benchName("aids", aidCount), func(b *testing.B) {
			b.ReportAllocs()
			for n := 0; n < b.N; n++ {
				if _, err := runAggregate(ctx, funcs, args, rows); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkCountOutlier measures count(*) over a population of single-row
// contributors plus one extreme outlier whose contribution must be
// flattened down to the top-group average before noise is added.
func BenchmarkCountOutlier(b *testing.B) {
	ctx := anon.NewEmptyContext()
	args, err := singleAidArgs()
	if err != nil {
		b.Fatal(err)
	}
	funcs := aggregation.NewCount()

	for _, outlierRows := range []int{1_000, 1_000_000} {
		rows := toAnonRows(outlierPopulation(10, outlierRows, anon.IntValue(1)))
		b.Run(benchName("outlier_rows", outlierRows), func(b *testing.B) {
			b.ReportAllocs()
			for n := 0; n < b.N; n++ {
				if _, err := runAggregate(ctx, funcs, args, rows); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkCountHistogram measures count_histogram over two groups of AIDs
// at distinct row-count levels, generalized into bins.
func BenchmarkCountHistogram(b *testing.B) {
	ctx := anon.NewEmptyContext()
	args, err := singleAidArgs()
	if err != nil {
		b.Fatal(err)
	}
	funcs := aggregation.NewCountHistogram(0, 1)

	for _, scale := range []int{1, 100, 10_000} {
		rows := toAnonRows(histogramPopulation(5*scale, 3, 10*scale, 7))
		b.Run(benchName("scale", scale), func(b *testing.B) {
			b.ReportAllocs()
			for n := 0; n < b.N; n++ {
				if _, err := runAggregate(ctx, funcs, args, rows); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func benchName(label string, n int) string {
	return label + "=" + strconv.Itoa(n)
}
