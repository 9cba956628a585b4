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

package anon

import "github.com/spf13/cast"

// ValueTag marks which field of Value is meaningful.
type ValueTag int

const (
	// ValueNull marks a SQL NULL; no other field is meaningful.
	ValueNull ValueTag = iota
	ValueInt64
	ValueFloat64
	ValueString
	ValueBool
	// ValueHistogramRows marks a count_histogram result: a row set rather
	// than a scalar, see HistogramRows.
	ValueHistogramRows
)

// Value is the engine's tagged representation of a row cell or a finalized
// aggregate result, standing in for the original implementation's
// NullableDatum. Zero value is ValueNull.
type Value struct {
	Tag     ValueTag
	Int64   int64
	Float64 float64
	String  string
	Bool    bool
	Rows    []HistogramRow
}

// NullValue is the canonical NULL.
var NullValue = Value{Tag: ValueNull}

// IntValue builds an int64-tagged Value.
func IntValue(v int64) Value { return Value{Tag: ValueInt64, Int64: v} }

// FloatValue builds a float64-tagged Value.
func FloatValue(v float64) Value { return Value{Tag: ValueFloat64, Float64: v} }

// StringValue builds a string-tagged Value.
func StringValue(v string) Value { return Value{Tag: ValueString, String: v} }

// BoolValue builds a bool-tagged Value.
func BoolValue(v bool) Value { return Value{Tag: ValueBool, Bool: v} }

// HistogramRow is one output row of a count_histogram aggregate: a bin
// label (the generalized row count, or nil for the merged suppress bin)
// paired with the noisy number of distinct AIDs falling in that bin.
type HistogramRow struct {
	Label          *int64
	DistinctAmount int64
}

// IsNull reports whether v represents SQL NULL.
func (v Value) IsNull() bool { return v.Tag == ValueNull }

// AsFloat64 coerces v to float64 via spf13/cast, used where an aggregate
// argument's declared numeric type (int, float, numeric) must be folded
// into the single float64 lane Summable computes over.
func (v Value) AsFloat64() (float64, error) {
	switch v.Tag {
	case ValueInt64:
		return float64(v.Int64), nil
	case ValueFloat64:
		return v.Float64, nil
	case ValueNull:
		return 0, ErrArgTypeUnsupported.New("numeric", "NULL")
	default:
		return cast.ToFloat64E(v.asInterface())
	}
}

// AsInterface unwraps v into a plain interface{}, used to hand a raw value
// to an AidMapper or a cast.* coercion.
func (v Value) AsInterface() interface{} {
	return v.asInterface()
}

func (v Value) asInterface() interface{} {
	switch v.Tag {
	case ValueInt64:
		return v.Int64
	case ValueFloat64:
		return v.Float64
	case ValueString:
		return v.String
	case ValueBool:
		return v.Bool
	default:
		return nil
	}
}

// Row is one input tuple, addressed positionally; column meaning is
// resolved by the ArgsDescriptor bound to the aggregate reading it.
type Row []Value
