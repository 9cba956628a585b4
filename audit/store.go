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

package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/boltdb/bolt"

	"github.com/diffixlabs/diffix-engine/anon"
)

var eventsBucket = []byte("audit_events")

// Event is one durable audit record. It is the union of every Recorder
// call's arguments; only the fields relevant to Action are populated.
type Event struct {
	Action      string        `json:"action"`
	QueryID     string        `json:"query_id"`
	Labels      []anon.Value  `json:"labels,omitempty"`
	OtherLabels []anon.Value  `json:"other_labels,omitempty"`
	RowCount    int64         `json:"row_count,omitempty"`
	Merged      int           `json:"merged,omitempty"`
	Survived    bool          `json:"survived,omitempty"`
	BucketCount int           `json:"bucket_count,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	Kind        string        `json:"kind,omitempty"`
	Err         string        `json:"err,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// Store persists audit events to a boltdb file so the trail survives
// process restarts, the durable half of the structured audit trail of
// per-bucket suppression and merge events the package keeps.
type Store struct {
	db *bolt.DB
}

// OpenStore opens (creating if necessary) a boltdb-backed Store at path.
func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(eventsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying boltdb file.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) put(e Event) error {
	e.Timestamp = time.Now()
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(eventsBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put([]byte(fmt.Sprintf("%020d", seq)), data)
	})
}

// Events returns every event recorded so far, oldest first.
func (s *Store) Events() ([]Event, error) {
	var events []Event
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(eventsBucket)
		return b.ForEach(func(_, v []byte) error {
			var e Event
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			events = append(events, e)
			return nil
		})
	})
	return events, err
}

// storeRecorder implements Recorder by writing every event to a Store and,
// if inner is set, also forwarding the call to it (typically a
// LogRecorder), so a deployment can have both a durable trail and live
// log output from a single Recorder value.
type storeRecorder struct {
	store *Store
	inner Recorder
}

// NewStoreRecorder returns a Recorder that durably persists every event to
// store and, when inner is non-nil, also forwards the call to it.
func NewStoreRecorder(store *Store, inner Recorder) Recorder {
	return &storeRecorder{store: store, inner: inner}
}

func (r *storeRecorder) Suppressed(queryID string, labels []anon.Value, rowCount int64) {
	r.store.put(Event{Action: "suppressed", QueryID: queryID, Labels: labels, RowCount: rowCount})
	if r.inner != nil {
		r.inner.Suppressed(queryID, labels, rowCount)
	}
}

func (r *storeRecorder) StarBucketMerge(queryID string, merged int, survived bool) {
	r.store.put(Event{Action: "star_bucket_merge", QueryID: queryID, Merged: merged, Survived: survived})
	if r.inner != nil {
		r.inner.StarBucketMerge(queryID, merged, survived)
	}
}

func (r *storeRecorder) LinkedMerge(queryID string, dstLabels, srcLabels []anon.Value) {
	r.store.put(Event{Action: "linked_merge", QueryID: queryID, Labels: dstLabels, OtherLabels: srcLabels})
	if r.inner != nil {
		r.inner.LinkedMerge(queryID, dstLabels, srcLabels)
	}
}

func (r *storeRecorder) Query(queryID string, bucketCount int, d time.Duration, err error) {
	e := Event{Action: "query", QueryID: queryID, BucketCount: bucketCount, Duration: d}
	if err != nil {
		e.Err = err.Error()
	}
	r.store.put(e)
	if r.inner != nil {
		r.inner.Query(queryID, bucketCount, d, err)
	}
}

func (r *storeRecorder) Error(queryID string, err error) {
	r.store.put(Event{Action: "error", QueryID: queryID, Kind: fmt.Sprintf("%T", err), Err: err.Error()})
	if r.inner != nil {
		r.inner.Error(queryID, err)
	}
}
