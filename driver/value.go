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

package driver

import (
	"errors"
	"fmt"
	"time"

	"github.com/diffixlabs/diffix-engine/anon"
)

// ErrUnsupportedType is returned when a host value can't be converted into
// an anon.Value.
var ErrUnsupportedType = errors.New("unsupported type")

// ValueFromGo converts one native Go value - as a BucketSource would read
// from whatever row representation the host database uses - into the
// engine's tagged anon.Value, the driver-side half of the BucketSource seam.
// Unlike a conversion into a sql.Expression literal, there is no SQL
// expression tree here, only the tagged value the aggregator Update methods
// read.
func ValueFromGo(v interface{}) (anon.Value, error) {
	if v == nil {
		return anon.NullValue, nil
	}

	switch v := v.(type) {
	case int64:
		return anon.IntValue(v), nil
	case int:
		return anon.IntValue(int64(v)), nil
	case float64:
		return anon.FloatValue(v), nil
	case bool:
		return anon.BoolValue(v), nil
	case []byte:
		return anon.StringValue(string(v)), nil
	case string:
		return anon.StringValue(v), nil
	case time.Time:
		return anon.StringValue(v.Format(time.RFC3339Nano)), nil
	default:
		return anon.NullValue, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}

// RowFromGo converts a slice of native Go column values into an anon.Row,
// in column order.
func RowFromGo(cols []interface{}) (anon.Row, error) {
	row := make(anon.Row, len(cols))
	for i, c := range cols {
		v, err := ValueFromGo(c)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}
