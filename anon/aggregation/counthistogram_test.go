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

package aggregation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/diffixlabs/diffix-engine/anon"
)

func newCountHistogram(t *testing.T, cfg *anon.Config, args anon.ArgsDescriptor, binSize int64) anon.AggState {
	t.Helper()
	state, err := NewCountHistogram(0, binSize).NewState(cfg, args)
	require.NoError(t, err)
	return state
}

func appendUserRows(rows []anon.Row, aid int64, n int) []anon.Row {
	for i := 0; i < n; i++ {
		rows = append(rows, anon.Row{anon.IntValue(aid)})
	}
	return rows
}

// TestCountHistogramTwoBins covers 5 AIDs each producing 3 rows and 10 AIDs
// each producing 7 rows, bin_size=1. Expect two bins [3, 7] reporting
// roughly 5 and 10 distinct AIDs, and no suppress bin.
func TestCountHistogramTwoBins(t *testing.T) {
	ctx := anon.NewEmptyContext()
	args := singleAidArgs(t)
	state := newCountHistogram(t, ctx.Config, args, 1)

	var rows []anon.Row
	aid := int64(1)
	for i := 0; i < 5; i++ {
		rows = appendUserRows(rows, aid, 3)
		aid++
	}
	for i := 0; i < 10; i++ {
		rows = appendUserRows(rows, aid, 7)
		aid++
	}
	feedRows(t, ctx, state, rows)

	bucket := &anon.Bucket{Labels: []anon.Value{anon.StringValue("bucket")}, RowCount: int64(len(rows))}
	v, err := state.Eval(ctx, bucket)
	require.NoError(t, err)
	require.Equal(t, anon.ValueHistogramRows, v.Tag)
	require.Len(t, v.Rows, 2)

	byLabel := map[int64]int64{}
	for _, r := range v.Rows {
		require.NotNil(t, r.Label, "no suppress bin expected")
		byLabel[*r.Label] = r.DistinctAmount
	}
	require.InDelta(t, 5, byLabel[3], 3)
	require.InDelta(t, 10, byLabel[7], 3)
}

func TestCountHistogramGeneralizesByBinSize(t *testing.T) {
	ctx := anon.NewEmptyContext()
	args := singleAidArgs(t)
	state := newCountHistogram(t, ctx.Config, args, 5)

	var rows []anon.Row
	aid := int64(1)
	for i := 0; i < 10; i++ {
		rows = appendUserRows(rows, aid, 7)
		aid++
	}
	for i := 0; i < 10; i++ {
		rows = appendUserRows(rows, aid, 9)
		aid++
	}
	feedRows(t, ctx, state, rows)

	hs := state.(*countHistogramState)
	require.Equal(t, int64(5), hs.generalize(7))
	require.Equal(t, int64(5), hs.generalize(9))

	bucket := &anon.Bucket{Labels: []anon.Value{anon.StringValue("bucket")}, RowCount: int64(len(rows))}
	v, err := state.Eval(ctx, bucket)
	require.NoError(t, err)
	require.Len(t, v.Rows, 1, "both row counts generalize into the same bin")
}

func TestCountHistogramNullAidIgnored(t *testing.T) {
	ctx := anon.NewEmptyContext()
	args := singleAidArgs(t)
	state := newCountHistogram(t, ctx.Config, args, 1)
	require.NoError(t, state.Update(ctx, anon.Row{anon.NullValue}))

	hs := state.(*countHistogramState)
	require.Empty(t, hs.byCountedAid)
}
