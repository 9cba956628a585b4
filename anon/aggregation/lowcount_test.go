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

func newLowCount(t *testing.T, cfg *anon.Config, args anon.ArgsDescriptor) anon.AggState {
	t.Helper()
	state, err := NewLowCount().NewState(cfg, args)
	require.NoError(t, err)
	return state
}

// TestLowCountUpdatePopulatesTrackers guards the bug where Update was a
// no-op and every bucket registered as permanently low-count because the
// AidTracker never saw a single row. 100 distinct AIDs must be reported as
// high-count.
func TestLowCountUpdatePopulatesTrackers(t *testing.T) {
	ctx := anon.NewEmptyContext()
	args := singleAidArgs(t)
	state := newLowCount(t, ctx.Config, args)
	feedRows(t, ctx, state, countRows(100))

	bucket := &anon.Bucket{Labels: []anon.Value{anon.StringValue("bucket")}, RowCount: 100}
	v, err := state.Eval(ctx, bucket)
	require.NoError(t, err)
	require.False(t, v.Bool, "100 distinct AIDs must not be flagged low-count")
}

func TestLowCountSingleAidIsLowCount(t *testing.T) {
	ctx := anon.NewEmptyContext()
	args := singleAidArgs(t)
	state := newLowCount(t, ctx.Config, args)
	feedRows(t, ctx, state, countRows(1))

	bucket := &anon.Bucket{Labels: []anon.Value{anon.StringValue("bucket")}, RowCount: 1}
	v, err := state.Eval(ctx, bucket)
	require.NoError(t, err)
	require.True(t, v.Bool)
}

// TestLowCountMonotonicity checks that a bucket already below the
// low-count threshold stays low-count once its only contributor is removed.
func TestLowCountMonotonicity(t *testing.T) {
	ctx := anon.NewEmptyContext()
	args := singleAidArgs(t)
	state := newLowCount(t, ctx.Config, args)
	feedRows(t, ctx, state, countRows(1))
	bucket := &anon.Bucket{Labels: []anon.Value{anon.StringValue("bucket")}, RowCount: 1}
	v, err := state.Eval(ctx, bucket)
	require.NoError(t, err)
	require.True(t, v.Bool)

	emptyState := newLowCount(t, ctx.Config, args)
	emptyBucket := &anon.Bucket{Labels: []anon.Value{anon.StringValue("bucket")}, RowCount: 0}
	v2, err := emptyState.Eval(ctx, emptyBucket)
	require.NoError(t, err)
	require.True(t, v2.Bool, "removing the only contributor must remain low-count")
}

func TestLowCountNullAidTrackedSeparately(t *testing.T) {
	ctx := anon.NewEmptyContext()
	args := singleAidArgs(t)
	state := newLowCount(t, ctx.Config, args)
	require.NoError(t, state.Update(ctx, anon.Row{anon.NullValue}))

	ls := state.(*lowCountState)
	require.Equal(t, uint64(0), ls.trackers[0].DistinctCount())
	require.True(t, ls.trackers[0].AllAidsNull())
}

func TestLowCountMerge(t *testing.T) {
	ctx := anon.NewEmptyContext()
	args := singleAidArgs(t)

	left := newLowCount(t, ctx.Config, args)
	feedRows(t, ctx, left, countRows(50))
	right := newLowCount(t, ctx.Config, args)
	rightRows := make([]anon.Row, 50)
	for i := range rightRows {
		rightRows[i] = anon.Row{anon.IntValue(int64(51 + i))}
	}
	feedRows(t, ctx, right, rightRows)

	require.NoError(t, left.Merge(ctx, right))
	bucket := &anon.Bucket{Labels: []anon.Value{anon.StringValue("bucket")}, RowCount: 100}
	v, err := left.Eval(ctx, bucket)
	require.NoError(t, err)
	require.False(t, v.Bool)
}
