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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func stubFuncs(name string) AggFuncs {
	return AggFuncs{
		Name:      name,
		FinalType: ValueInt64,
		NewState: func(cfg *Config, args ArgsDescriptor) (AggState, error) {
			return nil, nil
		},
	}
}

func TestRegistryLookup(t *testing.T) {
	reg, err := NewRegistry(stubFuncs("count"), stubFuncs("sum"))
	require.NoError(t, err)

	f, err := reg.Lookup("count")
	require.NoError(t, err)
	require.Equal(t, "count", f.Name)
}

func TestRegistryLookupUnknown(t *testing.T) {
	reg, err := NewRegistry(stubFuncs("count"))
	require.NoError(t, err)

	_, err = reg.Lookup("nope")
	require.Error(t, err)
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	_, err := NewRegistry(stubFuncs("count"), stubFuncs("count"))
	require.Error(t, err)
}

func TestArgsDescriptorPrimaryAid(t *testing.T) {
	d := ArgsDescriptor{AidColumns: []AidColumnBinding{{ColumnIndex: 2}, {ColumnIndex: 5}}}
	require.Equal(t, 2, d.PrimaryAid().ColumnIndex)
}
