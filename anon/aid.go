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
	"fmt"

	"github.com/spf13/cast"
)

// AID is an opaque 64-bit anonymization identifier hash. Equality of
// original AID values implies equality of AID hashes; the converse may
// collide, but with negligible probability. An AID of 0 is legal and
// carries no special meaning.
type AID uint64

// AidMapper converts a raw row value for an AID column into an AID. It is
// selected once per aggregate argument, at create_state time, based on the
// argument's declared type - never re-selected per row.
type AidMapper func(value interface{}) (AID, error)

// AidKind distinguishes the source column types the engine knows how to
// map into an AID. Integer AID columns map the value itself, whatever its
// width; every other supported type byte-hashes through HashValue.
type AidKind int

const (
	// AidKindInt64 treats the column's underlying integer value directly
	// as the AID: the value, converted to int64, is used as is without
	// hashing.
	AidKindInt64 AidKind = iota
	// AidKindText byte-hashes the column's string representation.
	AidKindText
)

// NewAidMapper returns the AidMapper for the given AID column kind.
func NewAidMapper(kind AidKind) (AidMapper, error) {
	switch kind {
	case AidKindInt64:
		return func(value interface{}) (AID, error) {
			i, err := cast.ToInt64E(value)
			if err != nil {
				return 0, ErrArgTypeUnsupported.New("aid", fmt.Sprintf("%T", value))
			}
			return AID(uint64(i)), nil
		}, nil
	case AidKindText:
		return func(value interface{}) (AID, error) {
			s, err := cast.ToStringE(value)
			if err != nil {
				return 0, ErrArgTypeUnsupported.New("aid", fmt.Sprintf("%T", value))
			}
			h, err := HashValue(s)
			if err != nil {
				return 0, err
			}
			return AID(h), nil
		}, nil
	default:
		return nil, ErrArgTypeUnsupported.New("aid", fmt.Sprintf("kind %d", kind))
	}
}
