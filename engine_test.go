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

package diffixengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/diffixlabs/diffix-engine/anon"
	"github.com/diffixlabs/diffix-engine/driver"
)

// countDescriptor returns a BucketDescriptor requesting count(*) plus the
// implicit low-count filter, both bound to a single int64 AID column at row
// position 0 - the shape every scenario below drives through Engine.Query.
func countDescriptor(t *testing.T, numLabels int) BucketDescriptor {
	t.Helper()
	mapper, err := anon.NewAidMapper(anon.AidKindInt64)
	require.NoError(t, err)
	args := anon.ArgsDescriptor{
		AidColumns:  []anon.AidColumnBinding{{ColumnIndex: 0, Kind: anon.AidKindInt64, Mapper: mapper}},
		ValueColumn: -1,
	}
	registry, err := StandardRegistry(0, 1)
	require.NoError(t, err)
	countFuncs, err := registry.Lookup("count")
	require.NoError(t, err)
	lcfFuncs, err := registry.Lookup("lcf")
	require.NoError(t, err)
	return BucketDescriptor{
		Slots: []anon.AggregateSlot{
			{Funcs: countFuncs, Args: args},
			{Funcs: lcfFuncs, Args: args},
		},
		LCFSlot:   1,
		NumLabels: numLabels,
	}
}

func aidRows(start, n int) []anon.Row {
	rows := make([]anon.Row, n)
	for i := 0; i < n; i++ {
		rows[i] = anon.Row{anon.IntValue(int64(start + i))}
	}
	return rows
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg, err := anon.NewConfig(anon.DefaultConfig("engine-test-salt"))
	require.NoError(t, err)
	registry, err := StandardRegistry(0, 1)
	require.NoError(t, err)
	return New(cfg, registry, nil, nil)
}

// findRow locates the single-label result row whose label matches want, or
// fails the test - every scenario below groups by one string column.
func findRow(t *testing.T, rows []ResultRow, want string) ResultRow {
	t.Helper()
	for _, r := range rows {
		if len(r.Labels) > 0 && r.Labels[0].String == want {
			return r
		}
	}
	t.Fatalf("no result row labeled %q among %d rows", want, len(rows))
	return ResultRow{}
}

// TestQueryFlatPopulationReturnsCloseToTrueCount drives 100 distinct AIDs
// through the whole Query path (scan, postprocess, finalize) and checks the
// noisy count lands near the true count rather than being floored or
// suppressed.
func TestQueryFlatPopulationReturnsCloseToTrueCount(t *testing.T) {
	engine := newTestEngine(t)
	desc := countDescriptor(t, 1)
	source := driver.NewSliceSource([]driver.SliceBucket{
		{Labels: []anon.Value{anon.StringValue("widgets")}, Rows: aidRows(1, 100)},
	})

	rows, err := engine.Query(context.Background(), "q-flat", source, desc)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.InDelta(t, 100, rows[0].Values[0].Int64, 20)
}

// TestQueryLowCountBucketIsSuppressed drives a single bucket with only one
// distinct contributing AID (well under the noisy low-count threshold)
// alongside a flat high-count bucket, and checks the low-count bucket never
// reaches the result set while the high-count one survives untouched.
func TestQueryLowCountBucketIsSuppressed(t *testing.T) {
	engine := newTestEngine(t)
	desc := countDescriptor(t, 1)
	source := driver.NewSliceSource([]driver.SliceBucket{
		{Labels: []anon.Value{anon.StringValue("rare")}, Rows: aidRows(1, 1)},
		{Labels: []anon.Value{anon.StringValue("common")}, Rows: aidRows(1000, 100)},
	})

	rows, err := engine.Query(context.Background(), "q-lcf", source, desc)
	require.NoError(t, err)

	for _, r := range rows {
		require.NotEqual(t, "rare", r.Labels[0].String, "a single-AID bucket must never survive the low-count filter")
	}
	common := findRow(t, rows, "common")
	require.InDelta(t, 100, common.Values[0].Int64, 20)
}

// TestQueryOutlierContributorIsFlattened drives one bucket where a single
// AID contributes far more rows than everyone else combined, and checks the
// finalized count tracks the rest of the population rather than the
// outlier's raw contribution.
func TestQueryOutlierContributorIsFlattened(t *testing.T) {
	engine := newTestEngine(t)
	desc := countDescriptor(t, 1)

	rows := aidRows(1, 20)
	outlier := anon.IntValue(999999)
	for i := 0; i < 50000; i++ {
		rows = append(rows, anon.Row{outlier})
	}
	source := driver.NewSliceSource([]driver.SliceBucket{
		{Labels: []anon.Value{anon.StringValue("skewed")}, Rows: rows},
	})

	result, err := engine.Query(context.Background(), "q-outlier", source, desc)
	require.NoError(t, err)
	require.Len(t, result, 1)
	require.Less(t, result[0].Values[0].Int64, int64(1000), "a single dominant contributor must be flattened away")
}

// TestQueryIsPermutationInvariant checks that the same multiset of buckets
// and rows, fed to Query in a different order (both across buckets and
// within a bucket's rows), finalizes to the identical result set.
func TestQueryIsPermutationInvariant(t *testing.T) {
	engine := newTestEngine(t)
	desc := countDescriptor(t, 1)

	forwardRows := aidRows(1, 100)
	reversedRows := make([]anon.Row, len(forwardRows))
	for i, r := range forwardRows {
		reversedRows[len(forwardRows)-1-i] = r
	}

	forwardSource := driver.NewSliceSource([]driver.SliceBucket{
		{Labels: []anon.Value{anon.StringValue("a")}, Rows: forwardRows},
		{Labels: []anon.Value{anon.StringValue("b")}, Rows: aidRows(1000, 50)},
	})
	reversedSource := driver.NewSliceSource([]driver.SliceBucket{
		{Labels: []anon.Value{anon.StringValue("b")}, Rows: aidRows(1000, 50)},
		{Labels: []anon.Value{anon.StringValue("a")}, Rows: reversedRows},
	})

	forwardResult, err := engine.Query(context.Background(), "q-perm", forwardSource, desc)
	require.NoError(t, err)
	reversedResult, err := engine.Query(context.Background(), "q-perm", reversedSource, desc)
	require.NoError(t, err)

	require.Equal(t, findRow(t, forwardResult, "a").Values[0].Int64, findRow(t, reversedResult, "a").Values[0].Int64)
	require.Equal(t, findRow(t, forwardResult, "b").Values[0].Int64, findRow(t, reversedResult, "b").Values[0].Int64)
}

// TestQuerySaltDeterminism checks that two engines built from the same
// config and salt finalize the same bucket identically across separate
// Query calls, the end-to-end analogue of aggregation's per-state salt
// determinism checks.
func TestQuerySaltDeterminism(t *testing.T) {
	cfg, err := anon.NewConfig(anon.DefaultConfig("deterministic-salt"))
	require.NoError(t, err)
	registry, err := StandardRegistry(0, 1)
	require.NoError(t, err)
	desc := countDescriptor(t, 1)

	runOnce := func() int64 {
		engine := New(cfg, registry, nil, nil)
		source := driver.NewSliceSource([]driver.SliceBucket{
			{Labels: []anon.Value{anon.StringValue("bucket")}, Rows: aidRows(1, 100)},
		})
		rows, err := engine.Query(context.Background(), "q-salt", source, desc)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		return rows[0].Values[0].Int64
	}

	require.Equal(t, runOnce(), runOnce())
}

// TestQueryMergesIsolatedLowCountBucketViaLinkedExtensionDetection builds the
// same gender/city/age=30 population as the postprocess package's LED test,
// but drives it through the full Query path (scan, LED, star-bucket merge,
// low-count filter, finalize) to check the isolated age=31 bucket is folded
// into its (f, A, 30) sibling rather than appearing - or vanishing - on its
// own in the final result.
func TestQueryMergesIsolatedLowCountBucketViaLinkedExtensionDetection(t *testing.T) {
	engine := newTestEngine(t)

	mapper, err := anon.NewAidMapper(anon.AidKindInt64)
	require.NoError(t, err)
	args := anon.ArgsDescriptor{
		AidColumns:  []anon.AidColumnBinding{{ColumnIndex: 0, Kind: anon.AidKindInt64, Mapper: mapper}},
		ValueColumn: -1,
	}
	registry, err := StandardRegistry(0, 1)
	require.NoError(t, err)
	countFuncs, err := registry.Lookup("count")
	require.NoError(t, err)
	lcfFuncs, err := registry.Lookup("lcf")
	require.NoError(t, err)
	desc := BucketDescriptor{
		Slots: []anon.AggregateSlot{
			{Funcs: countFuncs, Args: args},
			{Funcs: lcfFuncs, Args: args},
		},
		LCFSlot:   1,
		NumLabels: 3,
	}

	var buckets []driver.SliceBucket
	aidStart := 1
	for _, g := range []string{"m", "f"} {
		for _, c := range []string{"A", "B", "C"} {
			labels := []anon.Value{anon.StringValue(g), anon.StringValue(c), anon.IntValue(30)}
			buckets = append(buckets, driver.SliceBucket{Labels: labels, Rows: aidRows(aidStart, 20)})
			aidStart += 20
		}
	}
	buckets = append(buckets, driver.SliceBucket{
		Labels: []anon.Value{anon.StringValue("f"), anon.StringValue("A"), anon.IntValue(31)},
		Rows:   aidRows(100000, 1),
	})

	source := driver.NewSliceSource(buckets)
	result, err := engine.Query(context.Background(), "q-led", source, desc)
	require.NoError(t, err)

	for _, r := range result {
		isIsolatedVictim := r.Labels[0].String == "f" && r.Labels[1].String == "A" && r.Labels[2].Int64 == 31
		require.False(t, isIsolatedVictim, "the isolated single-AID bucket must not survive on its own")
	}
	require.Len(t, result, 6, "all six (gender, city, 30) combinations survive, one absorbing the victim's row")
}

// TestQueryRejectsNilSourceError checks that a BucketSource error surfaces
// through Query as an error with no result rows rather than being silently
// swallowed.
func TestQueryRejectsNilSourceError(t *testing.T) {
	engine := newTestEngine(t)
	desc := countDescriptor(t, 1)

	rows, err := engine.Query(context.Background(), "q-err", erroringSource{}, desc)
	require.Error(t, err)
	require.Nil(t, rows)
}

type erroringSource struct{}

func (erroringSource) Next() ([]anon.Value, []anon.Row, bool, error) {
	return nil, nil, false, errFakeSourceFailure
}

var errFakeSourceFailure = sourceError("simulated upstream failure")

type sourceError string

func (e sourceError) Error() string { return string(e) }

// TestQueryIsSafeForConcurrentUse runs several queries against one shared
// Engine concurrently, matching the doc comment's claim that an Engine
// carries no per-query mutable state of its own.
func TestQueryIsSafeForConcurrentUse(t *testing.T) {
	engine := newTestEngine(t)
	desc := countDescriptor(t, 1)

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			source := driver.NewSliceSource([]driver.SliceBucket{
				{Labels: []anon.Value{anon.StringValue("bucket")}, Rows: aidRows(1, 100)},
			})
			_, err := engine.Query(context.Background(), "q-concurrent", source, desc)
			errs <- err
		}(i)
	}
	deadline := time.After(5 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case err := <-errs:
			require.NoError(t, err)
		case <-deadline:
			t.Fatal("concurrent queries did not complete in time")
		}
	}
}
