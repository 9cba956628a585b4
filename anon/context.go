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
	"context"

	opentracing "github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
)

// Context carries one query's immutable Config, its structured logger and
// its cancellation signal, wrapping a context.Context with query-scoped
// state. A Context is cheap to build and never shared for mutation across
// goroutines; concurrent queries each get their own.
type Context struct {
	context.Context
	Config *Config
	Logger *logrus.Entry
	QueryID string
}

// NewContext returns a Context bound to cfg and ctx, with a logger entry
// tagged with queryID so every log line from this query can be correlated.
func NewContext(ctx context.Context, cfg *Config, logger *logrus.Logger, queryID string) *Context {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Context{
		Context: ctx,
		Config:  cfg,
		Logger:  logger.WithField("query_id", queryID),
		QueryID: queryID,
	}
}

// NewEmptyContext returns a Context suitable for tests: a background
// context.Context, a default Config with a fixed test salt, and a logger
// that discards output.
func NewEmptyContext() *Context {
	cfg := DefaultConfig("test-salt")
	logger := logrus.New()
	logger.Out = discardWriter{}
	return NewContext(context.Background(), &cfg, logger, "test")
}

// Span starts an opentracing span named name as a child of whatever span is
// already active on c (if any) and returns it alongside a context.Context
// carrying it, for passing further down the call chain. Mirrors the
// teacher's sql.Context.Span, generalized from query execution spans to
// the scan/postprocess phases this engine runs instead.
func (c *Context) Span(name string, opts ...opentracing.StartSpanOption) (opentracing.Span, context.Context) {
	return opentracing.StartSpanFromContext(c.Context, name, opts...)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
