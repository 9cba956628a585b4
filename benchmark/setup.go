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

import "github.com/diffixlabs/diffix-engine/anon"

// singleAidArgs returns the ArgsDescriptor every generator in this package
// is driven with: one AID column at row position 0, an int64 value column
// at row position 1.
func singleAidArgs() (anon.ArgsDescriptor, error) {
	mapper, err := anon.NewAidMapper(anon.AidKindInt64)
	if err != nil {
		return anon.ArgsDescriptor{}, err
	}
	return anon.ArgsDescriptor{
		AidColumns: []anon.AidColumnBinding{
			{ColumnIndex: 0, Kind: anon.AidKindInt64, Mapper: mapper},
		},
		ValueColumn: 1,
		ValueTag:    anon.ValueInt64,
	}, nil
}

// runAggregate builds a fresh AggState from funcs and args, folds every row
// through Update, and finalizes with Eval against a global-aggregation
// bucket (no grouping labels). Used by every benchmark below to measure one
// aggregate end to end without a query engine.
func runAggregate(ctx *anon.Context, funcs anon.AggFuncs, args anon.ArgsDescriptor, rows []anon.Row) (anon.Value, error) {
	state, err := funcs.NewState(ctx.Config, args)
	if err != nil {
		return anon.NullValue, err
	}
	for _, row := range rows {
		if err := state.Update(ctx, row); err != nil {
			return anon.NullValue, err
		}
	}
	return state.Eval(ctx, &anon.Bucket{RowCount: int64(len(rows))})
}
