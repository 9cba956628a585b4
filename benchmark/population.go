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

// Package benchmark generates synthetic bucket/AID populations - flat,
// outlier-skewed, and row-count-histogram shaped - and measures the
// aggregation pass against them (postprocessing is not benchmarked): there is no table
// data to scan here, only AID-tagged rows to fold through the anonymizing
// aggregates.
package benchmark

import "github.com/diffixlabs/diffix-engine/anon"

// uniformRow is one synthetic input row: a single AID column and a value
// column, the shape every scenario generator below produces.
type uniformRow struct {
	aid   int64
	value anon.Value
}

// flatPopulation returns aidCount distinct AIDs, each contributing
// rowsPerAID rows of value v, the shape of S1 (anon_count_star on a single
// AID column with uniform contribution).
func flatPopulation(aidCount, rowsPerAID int, v anon.Value) []uniformRow {
	rows := make([]uniformRow, 0, aidCount*rowsPerAID)
	for aid := 1; aid <= aidCount; aid++ {
		for i := 0; i < rowsPerAID; i++ {
			rows = append(rows, uniformRow{aid: int64(aid), value: v})
		}
	}
	return rows
}

// outlierPopulation returns a flatPopulation of aidCount AIDs each
// contributing one row, plus one additional AID contributing outlierRows
// rows, the shape of S3 (one extreme outlier contributor whose
// contribution must be flattened down to the top-group average).
func outlierPopulation(aidCount, outlierRows int, v anon.Value) []uniformRow {
	rows := flatPopulation(aidCount, 1, v)
	outlierAID := int64(aidCount + 1)
	for i := 0; i < outlierRows; i++ {
		rows = append(rows, uniformRow{aid: outlierAID, value: v})
	}
	return rows
}

// histogramPopulation returns two groups of AIDs at distinct row-count
// levels, the shape of S5 (count_histogram generalizing distinct
// contributors into row-count bins): loAIDs AIDs each contributing loRows
// rows, and hiAIDs AIDs each contributing hiRows rows.
func histogramPopulation(loAIDs, loRows, hiAIDs, hiRows int) []uniformRow {
	var rows []uniformRow
	aid := int64(1)
	for i := 0; i < loAIDs; i++ {
		for j := 0; j < loRows; j++ {
			rows = append(rows, uniformRow{aid: aid, value: anon.IntValue(1)})
		}
		aid++
	}
	for i := 0; i < hiAIDs; i++ {
		for j := 0; j < hiRows; j++ {
			rows = append(rows, uniformRow{aid: aid, value: anon.IntValue(1)})
		}
		aid++
	}
	return rows
}

// toAnonRows converts uniformRows into anon.Rows laid out as [aid, value],
// the row shape every aggregation.NewState benchmark below is driven with
// via a fixed ArgsDescriptor of {AidColumns: [{ColumnIndex: 0}], ValueColumn: 1}.
func toAnonRows(rows []uniformRow) []anon.Row {
	out := make([]anon.Row, len(rows))
	for i, r := range rows {
		out[i] = anon.Row{anon.IntValue(r.aid), r.value}
	}
	return out
}
