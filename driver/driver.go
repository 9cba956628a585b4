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

// Package driver is the external-rewriter seam: the small surface an
// upstream query rewriter/executor (out of scope for this module)
// integrates against to hand already-bucketed rows to the anonymization
// engine. It is not a database/sql/driver implementation - no wire
// protocol is implemented here - it only follows the same
// Provider/Driver/Connector naming and one-context-per-query idiom as a
// real database/sql driver.
package driver

import (
	"net/url"
	"sync"

	"github.com/pkg/errors"
	"github.com/satori/go.uuid"
	"github.com/sirupsen/logrus"

	"github.com/diffixlabs/diffix-engine/anon"
)

// Provider resolves an opaque name (a DSN-shaped string, interpreted
// entirely by the Provider implementation) to the Config and Registry a
// query against it should run under, the same role a database/sql driver's
// Provider plays resolving a DSN to a catalog.
type Provider interface {
	Resolve(name string) (*anon.Config, *anon.Registry, error)
}

// Driver caches one source per distinct Config the Provider resolves, so
// repeated Opens against the same configuration share one source. Query IDs
// are random v4 UUIDs and do not form a sequence.
type Driver struct {
	provider Provider

	mu      sync.Mutex
	sources map[*anon.Config]*source
}

// New returns a Driver backed by provider.
func New(provider Provider) *Driver {
	return &Driver{provider: provider}
}

// Open resolves name through the Provider and returns a Connector bound to
// the result.
func (d *Driver) Open(name string) (*Connector, error) {
	if _, err := url.Parse(name); err != nil {
		return nil, errors.Wrapf(err, "invalid source name %q", name)
	}

	cfg, registry, err := d.provider.Resolve(name)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving source %q", name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	src, ok := d.sources[cfg]
	if !ok {
		src = &source{cfg: cfg, registry: registry}
		if d.sources == nil {
			d.sources = map[*anon.Config]*source{}
		}
		d.sources[cfg] = src
	}

	return &Connector{source: src}, nil
}

// source pairs one resolved Config/Registry with the query-ID generator
// shared by every Conn a Connector produces from it - a v4 UUID per query
// rather than a monotonic counter, since queries may originate from
// multiple concurrent Connectors sharing no counter state.
type source struct {
	cfg      *anon.Config
	registry *anon.Registry
}

func (s *source) nextQueryID() string {
	return uuid.NewV4().String()
}

// Connector represents one resolved source in a fixed configuration and can
// create any number of equivalent Conns.
type Connector struct {
	source *source
}

// Connect returns a new Conn driving slots against the Connector's
// resolved Registry, logging through logger (nil for the package default).
func (c *Connector) Connect(slots []anon.AggregateSlot, logger *logrus.Logger) *Conn {
	builder := DefaultContextBuilder{Config: c.source.cfg, Logger: logger}
	return NewConn(builder, c.source.registry, slots)
}

// NextQueryID returns a fresh random v4 UUID query ID, for callers that
// build their own Conn via NewConn directly.
func (c *Connector) NextQueryID() string {
	return c.source.nextQueryID()
}
