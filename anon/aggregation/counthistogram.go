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
	"fmt"
	"sort"

	"github.com/diffixlabs/diffix-engine/anon"
)

// histBin holds one counted-AID's row count together with one AidTracker
// per bound AID column, both before and after binning by generalize: a
// fresh histBin per distinct counted AID during Update, then merged
// per-bin-label during Eval.
type histBin struct {
	rowCount int64
	trackers []*anon.AidTracker
}

func newHistBin(aidColumns int) *histBin {
	trackers := make([]*anon.AidTracker, aidColumns)
	for i := range trackers {
		trackers[i] = anon.NewAidTracker()
	}
	return &histBin{trackers: trackers}
}

func (b *histBin) merge(other *histBin) {
	b.rowCount += other.rowCount
	for i, t := range b.trackers {
		t.Merge(other.trackers[i])
	}
}

func (b *histBin) isLowCount(cfg *anon.Config, bucketSeed anon.Seed) bool {
	for _, t := range b.trackers {
		threshold := anon.LCFThreshold(cfg, []anon.Seed{bucketSeed, t.Seed()})
		if t.DistinctCount() < uint64(threshold) {
			return true
		}
	}
	return false
}

// noisyCount derives the reported distinct-member count for this bin from
// the AID tracker of countedAidIndex, grounded on count_tracker_finalize in
// src/aggregation/count_histogram.c.
func (b *histBin) noisyCount(cfg *anon.Config, bucketSeed anon.Seed, countedAidIndex int) int64 {
	tracker := b.trackers[countedAidIndex]
	noise := anon.LayeredNormal([]anon.Seed{bucketSeed, tracker.Seed()}, cfg.Salt, anon.StepCountHistogram, cfg.NoiseLayerSD)
	noisy := int64(float64(tracker.DistinctCount()) + noise + 0.5)
	if noisy < int64(cfg.LowCountMinThreshold) {
		return int64(cfg.LowCountMinThreshold)
	}
	return noisy
}

// countHistogramState is the AggState for count_histogram(aid_expr,
// bin_size): for each distinct value of the counted AID, tally how many
// rows it contributed, generalize that count into bins of width bin_size,
// and report the noisy number of distinct AIDs per bin - merging any
// low-count bins into a single suppress bin if doing so keeps it from
// being low-count itself. Grounded on AnonCountHistogramState in
// src/aggregation/count_histogram.c.
type countHistogramState struct {
	cfg             *anon.Config
	args            anon.ArgsDescriptor
	countedAidIndex int
	binSize         int64
	byCountedAid    map[anon.AID]*histBin
}

// NewCountHistogram returns the AggFuncs entry for count_histogram.
// countedAidIndex selects which AID column binding's distinct values are
// tallied; binSize must be >= 1.
func NewCountHistogram(countedAidIndex int, binSize int64) anon.AggFuncs {
	return anon.AggFuncs{
		Name:      "count_histogram",
		FinalType: anon.ValueHistogramRows,
		NewState: func(cfg *anon.Config, args anon.ArgsDescriptor) (anon.AggState, error) {
			if len(args.AidColumns) == 0 {
				return nil, anon.ErrAidMissing.New("count_histogram")
			}
			if countedAidIndex < 0 || countedAidIndex >= len(args.AidColumns) {
				return nil, anon.ErrArgTypeUnsupported.New("count_histogram", "counted_aid_index out of range")
			}
			if binSize < 1 {
				return nil, anon.ErrArgTypeUnsupported.New("count_histogram", "bin_size must be >= 1")
			}
			return &countHistogramState{
				cfg:             cfg,
				args:            args,
				countedAidIndex: countedAidIndex,
				binSize:         binSize,
				byCountedAid:    make(map[anon.AID]*histBin),
			}, nil
		},
	}
}

func (s *countHistogramState) Update(ctx *anon.Context, row anon.Row) error {
	countedBinding := s.args.AidColumns[s.countedAidIndex]
	raw := row[countedBinding.ColumnIndex]
	if raw.IsNull() {
		return nil
	}
	countedAid, err := countedBinding.Mapper(raw.AsInterface())
	if err != nil {
		return err
	}

	entry, ok := s.byCountedAid[countedAid]
	if !ok {
		entry = newHistBin(len(s.args.AidColumns))
		s.byCountedAid[countedAid] = entry
	}
	entry.rowCount++

	for i, binding := range s.args.AidColumns {
		raw := row[binding.ColumnIndex]
		if raw.IsNull() {
			entry.trackers[i].Insert(nil)
			continue
		}
		aid, err := binding.Mapper(raw.AsInterface())
		if err != nil {
			return err
		}
		entry.trackers[i].Insert(&aid)
	}
	return nil
}

func (s *countHistogramState) Merge(ctx *anon.Context, src anon.AggState) error {
	other, ok := src.(*countHistogramState)
	if !ok {
		return anon.ErrAggregateMisuse.New("count_histogram: merge with mismatched aggregator state")
	}
	for aid, entry := range other.byCountedAid {
		dst, ok := s.byCountedAid[aid]
		if !ok {
			dst = newHistBin(len(s.args.AidColumns))
			s.byCountedAid[aid] = dst
		}
		dst.merge(entry)
	}
	return nil
}

func (s *countHistogramState) generalize(count int64) int64 {
	return (count / s.binSize) * s.binSize
}

func (s *countHistogramState) Eval(ctx *anon.Context, bucket *anon.Bucket) (anon.Value, error) {
	bucketSeed := bucketSeedFor(bucket)

	bins := make(map[int64]*histBin)
	for _, entry := range s.byCountedAid {
		label := s.generalize(entry.rowCount)
		bin, ok := bins[label]
		if !ok {
			bin = newHistBin(len(s.args.AidColumns))
			bins[label] = bin
		}
		bin.merge(entry)
	}

	suppressBin := newHistBin(len(s.args.AidColumns))
	var included []anon.HistogramRow
	lowCountBins := 0

	labels := make([]int64, 0, len(bins))
	for label := range bins {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })

	for _, label := range labels {
		bin := bins[label]
		if bin.isLowCount(s.cfg, bucketSeed) {
			suppressBin.merge(bin)
			lowCountBins++
			continue
		}
		label := label
		included = append(included, anon.HistogramRow{
			Label:          &label,
			DistinctAmount: bin.noisyCount(s.cfg, bucketSeed, s.countedAidIndex),
		})
	}

	includeSuppressBin := lowCountBins >= 2 && !suppressBin.isLowCount(s.cfg, bucketSeed)
	rows := make([]anon.HistogramRow, 0, len(included)+1)
	if includeSuppressBin {
		rows = append(rows, anon.HistogramRow{
			Label:          nil,
			DistinctAmount: suppressBin.noisyCount(s.cfg, bucketSeed, s.countedAidIndex),
		})
	}
	rows = append(rows, included...)

	return anon.Value{Tag: anon.ValueHistogramRows, Rows: rows}, nil
}

func (s *countHistogramState) Explain() string {
	return fmt.Sprintf("count_histogram bin_size=%d values=%d", s.binSize, len(s.byCountedAid))
}
