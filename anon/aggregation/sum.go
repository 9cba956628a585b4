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

	"github.com/diffixlabs/diffix-engine/anon"
)

// sumLeg pairs one AID column's AidTracker with the ContributionTracker
// that ranks only the positive (or only the negative) contributions of
// that column.
type sumLeg struct {
	aids    *anon.AidTracker
	contrib *anon.ContributionTracker
}

// sumState is the AggState for sum(x). Positive and negative contributions
// are tracked as two entirely separate flattening legs per AID column -
// each absolute-valued - because a single outlier band can't simultaneously
// bound a value that swings from strongly positive to strongly negative
// across rows; the two legs are recombined by subtraction at Eval.
// Grounded on SumState in src/aggregation/sum.c.
type sumState struct {
	cfg      *anon.Config
	args     anon.ArgsDescriptor
	ops      anon.ContributionOps
	positive []*sumLeg
	negative []*sumLeg
}

// NewSum returns the AggFuncs entry for sum(x). Its FinalType is always
// ValueFloat64, but Eval returns an Int64 value when the value column is
// integer-typed.
func NewSum() anon.AggFuncs {
	return anon.AggFuncs{
		Name:      "sum",
		FinalType: anon.ValueFloat64,
		NewState: func(cfg *anon.Config, args anon.ArgsDescriptor) (anon.AggState, error) {
			return newSumState(cfg, args)
		},
	}
}

func newSumState(cfg *anon.Config, args anon.ArgsDescriptor) (anon.AggState, error) {
	if len(args.AidColumns) == 0 {
		return nil, anon.ErrAidMissing.New("sum")
	}
	ops := anon.FloatOps
	if args.ValueTag == anon.ValueInt64 {
		ops = anon.IntOps
	}

	positive := make([]*sumLeg, len(args.AidColumns))
	negative := make([]*sumLeg, len(args.AidColumns))
	for i := range args.AidColumns {
		positive[i] = &sumLeg{aids: anon.NewAidTracker(), contrib: anon.NewContributionTracker(ops, cfg.TopCountMax)}
		negative[i] = &sumLeg{aids: anon.NewAidTracker(), contrib: anon.NewContributionTracker(ops, cfg.TopCountMax)}
	}
	return &sumState{cfg: cfg, args: args, ops: ops, positive: positive, negative: negative}, nil
}

func (s *sumState) Update(ctx *anon.Context, row anon.Row) error {
	value := row[s.args.ValueColumn]
	if value.IsNull() {
		// Deliberately ignored, unlike count(x) where a NULL still
		// contributes 0 (sum_transition in src/aggregation/sum.c).
		return nil
	}

	contribution, isPositive, isNegative, err := s.toSignedContribution(value)
	if err != nil {
		return err
	}
	absContribution := s.ops.Abs(contribution)

	for i, binding := range s.args.AidColumns {
		raw := row[binding.ColumnIndex]
		if raw.IsNull() {
			if isPositive {
				s.positive[i].contrib.InsertUnaccounted(absContribution)
			}
			if isNegative {
				s.negative[i].contrib.InsertUnaccounted(absContribution)
			}
			continue
		}

		aid, err := binding.Mapper(raw.AsInterface())
		if err != nil {
			return err
		}
		s.positive[i].aids.Insert(&aid)
		s.negative[i].aids.Insert(&aid)
		if isPositive {
			s.positive[i].contrib.Insert(aid, absContribution)
		}
		if isNegative {
			s.negative[i].contrib.Insert(aid, absContribution)
		}
	}
	return nil
}

// toSignedContribution classifies value against the zero of its
// contribution kind. A value of exactly zero is, per the original
// implementation, counted on both legs (it is neither strictly positive
// nor negative, but `contribution_equal` to the zero element satisfies
// both legs' `gt-or-eq` test).
func (s *sumState) toSignedContribution(value anon.Value) (contribution anon.Contribution, isPositive, isNegative bool, err error) {
	switch s.ops.Tag {
	case anon.ContributionInt:
		contribution = anon.IntContribution(value.Int64)
	default:
		f, ferr := value.AsFloat64()
		if ferr != nil {
			return anon.Contribution{}, false, false, ferr
		}
		contribution = anon.FloatContribution(f)
	}
	isPositive = s.ops.Greater(contribution, s.ops.Zero) || s.ops.Equal(contribution, s.ops.Zero)
	isNegative = s.ops.Greater(s.ops.Zero, contribution) || s.ops.Equal(contribution, s.ops.Zero)
	return contribution, isPositive, isNegative, nil
}

func (s *sumState) Merge(ctx *anon.Context, src anon.AggState) error {
	other, ok := src.(*sumState)
	if !ok {
		return anon.ErrAggregateMisuse.New("sum: merge with mismatched aggregator state")
	}
	for i := range s.positive {
		s.positive[i].aids.Merge(other.positive[i].aids)
		s.positive[i].contrib.Merge(other.positive[i].contrib)
		s.negative[i].aids.Merge(other.negative[i].aids)
		s.negative[i].contrib.Merge(other.negative[i].contrib)
	}
	return nil
}

type sumLegResult struct {
	notEnoughAidValues bool
	acc                ResultAccumulator
}

func (s *sumState) calculateLegs(bucket *anon.Bucket) (positive, negative sumLegResult) {
	bucketSeed := bucketSeedFor(bucket)

	for i := range s.positive {
		if s.positive[i].aids.AllAidsNull() {
			continue
		}
		pr := CalculateResult(s.cfg, bucketSeed, s.ops, s.positive[i].aids.Seed(), s.positive[i].contrib)
		nr := CalculateResult(s.cfg, bucketSeed, s.ops, s.negative[i].aids.Seed(), s.negative[i].contrib)
		if pr.NotEnoughAidValues && nr.NotEnoughAidValues {
			return sumLegResult{notEnoughAidValues: true}, sumLegResult{notEnoughAidValues: true}
		}
		positive.acc.Accumulate(pr)
		negative.acc.Accumulate(nr)
	}
	return positive, negative
}

func (s *sumState) Eval(ctx *anon.Context, bucket *anon.Bucket) (anon.Value, error) {
	positive, negative := s.calculateLegs(bucket)
	if positive.notEnoughAidValues {
		return anon.NullValue, nil
	}

	combined := positive.acc.FlattenedSum() + positive.acc.FinalizeNoise() -
		(negative.acc.FlattenedSum() + negative.acc.FinalizeNoise())

	if s.ops.Tag == anon.ContributionInt {
		return anon.IntValue(int64(combined + signOf(combined)*0.5)), nil
	}
	return anon.FloatValue(combined), nil
}

func signOf(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// Explain renders a short label with the number of AID columns ("sum legs=N").
func (s *sumState) Explain() string {
	return fmt.Sprintf("sum legs=%d", len(s.positive))
}
