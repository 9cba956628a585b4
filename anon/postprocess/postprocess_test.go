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

package postprocess

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/diffixlabs/diffix-engine/anon"
	"github.com/diffixlabs/diffix-engine/anon/aggregation"
)

const (
	countSlot = 0
	lcfSlot   = 1
)

func testSlots(t *testing.T) []anon.AggregateSlot {
	t.Helper()
	mapper, err := anon.NewAidMapper(anon.AidKindInt64)
	require.NoError(t, err)
	args := anon.ArgsDescriptor{
		AidColumns:  []anon.AidColumnBinding{{ColumnIndex: 0, Kind: anon.AidKindInt64, Mapper: mapper}},
		ValueColumn: -1,
	}
	return []anon.AggregateSlot{
		{Funcs: aggregation.NewCount(), Args: args},
		{Funcs: aggregation.NewLowCount(), Args: args},
	}
}

// buildBucket allocates fresh count/lcf state into arena, feeds it aidCount
// rows (one row per distinct AID), and returns the resulting Bucket.
func buildBucket(t *testing.T, ctx *anon.Context, arena *anon.Arena[anon.AggState], slots []anon.AggregateSlot, labels []anon.Value, aidStart, aidCount int) *anon.Bucket {
	t.Helper()
	handles := make([]anon.Handle, len(slots))
	for i, slot := range slots {
		state, err := slot.Funcs.NewState(ctx.Config, slot.Args)
		require.NoError(t, err)
		for a := 0; a < aidCount; a++ {
			require.NoError(t, state.Update(ctx, anon.Row{anon.IntValue(int64(aidStart + a))}))
		}
		handles[i] = arena.Alloc(state)
	}
	return &anon.Bucket{Labels: labels, RowCount: int64(aidCount), Aggregates: handles}
}

type recordedEvent struct {
	kind string
}

type spyRecorder struct {
	events []recordedEvent
}

func (s *spyRecorder) Suppressed(queryID string, labels []anon.Value, rowCount int64) {
	s.events = append(s.events, recordedEvent{kind: "suppressed"})
}
func (s *spyRecorder) StarBucketMerge(queryID string, merged int, survived bool) {
	s.events = append(s.events, recordedEvent{kind: "star_bucket_merge"})
}
func (s *spyRecorder) LinkedMerge(queryID string, dstLabels, srcLabels []anon.Value) {
	s.events = append(s.events, recordedEvent{kind: "linked_merge"})
}
func (s *spyRecorder) Query(queryID string, bucketCount int, d time.Duration, err error) {
	s.events = append(s.events, recordedEvent{kind: "query"})
}
func (s *spyRecorder) Error(queryID string, err error) {
	s.events = append(s.events, recordedEvent{kind: "error"})
}

// TestRunMergesLowCountBucketsIntoSurvivingStarBucket exercises the star
// bucket invariant: ten single-AID buckets (each individually low-count) are
// absorbed into one synthetic bucket, which is emitted in the result because
// its combined ten-AID total is itself high-count, and a StarBucketMerge
// event is logged for it rather than ten separate Suppressed events.
func TestRunMergesLowCountBucketsIntoSurvivingStarBucket(t *testing.T) {
	ctx := anon.NewEmptyContext()
	slots := testSlots(t)
	arena := anon.NewArena[anon.AggState](8)

	high := buildBucket(t, ctx, arena, slots, []anon.Value{anon.StringValue("a")}, 1, 100)
	buckets := []*anon.Bucket{high}
	for i := 0; i < 10; i++ {
		buckets = append(buckets, buildBucket(t, ctx, arena, slots, []anon.Value{anon.StringValue("b")}, 10000+i, 1))
	}

	recorder := &spyRecorder{}
	set := NewSet(ctx.Config, slots, arena, lcfSlot, recorder)
	result, err := set.Run(ctx, buckets, 1)
	require.NoError(t, err)

	require.Len(t, result, 2, "the non-star high-count bucket plus the surviving star bucket")
	var sawStar bool
	for _, b := range result {
		if b.IsStarBucket {
			sawStar = true
		}
	}
	require.True(t, sawStar)

	var sawStarMerge bool
	for _, e := range recorder.events {
		if e.kind == "star_bucket_merge" {
			sawStarMerge = true
		}
	}
	require.True(t, sawStarMerge)
}

// TestRunDropsSingleLowCountBucketSilently covers the case the star bucket
// pass cannot anonymize: a lone low-count bucket has nothing to merge with
// (merging fewer than two buckets would just rename it), so it is dropped
// from the result without surviving as a star bucket.
func TestRunDropsSingleLowCountBucketSilently(t *testing.T) {
	ctx := anon.NewEmptyContext()
	slots := testSlots(t)
	arena := anon.NewArena[anon.AggState](8)

	high := buildBucket(t, ctx, arena, slots, []anon.Value{anon.StringValue("a")}, 1, 100)
	low := buildBucket(t, ctx, arena, slots, []anon.Value{anon.StringValue("b")}, 10000, 1)

	set := NewSet(ctx.Config, slots, arena, lcfSlot, nil)
	result, err := set.Run(ctx, []*anon.Bucket{high, low}, 1)
	require.NoError(t, err)

	require.Len(t, result, 1)
	require.Equal(t, "a", result[0].Labels[0].String)
}

func TestRunWithNilRecorderDoesNotPanic(t *testing.T) {
	ctx := anon.NewEmptyContext()
	slots := testSlots(t)
	arena := anon.NewArena[anon.AggState](8)

	low := buildBucket(t, ctx, arena, slots, []anon.Value{anon.StringValue("b")}, 1, 1)

	set := NewSet(ctx.Config, slots, arena, lcfSlot, nil)
	result, err := set.Run(ctx, []*anon.Bucket{low}, 1)
	require.NoError(t, err)
	require.Empty(t, result)
}
