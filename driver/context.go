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
	"context"

	"github.com/sirupsen/logrus"

	"github.com/diffixlabs/diffix-engine/anon"
)

// ContextBuilder constructs a per-query anon.Context from a context.Context
// and a query ID, one step in Conn.Run's setup before scanning begins.
type ContextBuilder interface {
	NewContext(ctx context.Context, queryID string) *anon.Context
}

// DefaultContextBuilder builds an anon.Context from a fixed Config and
// Logger shared across every query a Conn drives. A nil Logger falls back
// to anon.NewContext's own default.
type DefaultContextBuilder struct {
	Config *anon.Config
	Logger *logrus.Logger
}

// NewContext implements ContextBuilder.
func (b DefaultContextBuilder) NewContext(ctx context.Context, queryID string) *anon.Context {
	return anon.NewContext(ctx, b.Config, b.Logger, queryID)
}
