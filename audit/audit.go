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

// Package audit records the structured audit trail of per-bucket
// anonymization decisions: suppression, star-bucket and Linked Extension
// Detection merges, and overall query outcomes. Grounded on auth/audit.go's
// AuditMethod/AuditLog pair, generalized from authentication/authorization
// events to the decisions the anonymization engine itself makes.
package audit

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/diffixlabs/diffix-engine/anon"
)

const auditLogMessage = "anonymization audit trail"

// Recorder is called to log the audit trail of one query's anonymization
// decisions and outcome.
type Recorder interface {
	// Suppressed logs one bucket dropped by the low-count filter.
	Suppressed(queryID string, labels []anon.Value, rowCount int64)
	// StarBucketMerge logs how many buckets were folded into the synthetic
	// star bucket and whether it survived its own low-count check.
	StarBucketMerge(queryID string, merged int, survived bool)
	// LinkedMerge logs one Linked Extension Detection merge of a low-count
	// bucket into a high-count sibling.
	LinkedMerge(queryID string, dstLabels, srcLabels []anon.Value)
	// Query logs one query's overall completion.
	Query(queryID string, bucketCount int, d time.Duration, err error)
	// Error logs one anon.Error a query failed with, tagged with its kind.
	Error(queryID string, err error)
}

// LogRecorder logs audit trails to a logrus.Logger, the direct analogue of
// auth.AuditLog.
type LogRecorder struct {
	log *logrus.Entry
}

// NewLogRecorder returns a Recorder that logs every event to l under the
// "audit" system field, mirroring auth.NewAuditLog: suppressions at Debug,
// errors at Warn and every other event at Info.
func NewLogRecorder(l *logrus.Logger) *LogRecorder {
	return &LogRecorder{log: l.WithField("system", "audit")}
}

// Suppressed implements Recorder. Logged at Debug, mirroring every other
// per-bucket low-count/suppression decision.
func (r *LogRecorder) Suppressed(queryID string, labels []anon.Value, rowCount int64) {
	r.log.WithFields(logrus.Fields{
		"action":    "suppressed",
		"query_id":  queryID,
		"labels":    labels,
		"row_count": rowCount,
	}).Debug(auditLogMessage)
}

// StarBucketMerge implements Recorder.
func (r *LogRecorder) StarBucketMerge(queryID string, merged int, survived bool) {
	r.log.WithFields(logrus.Fields{
		"action":   "star_bucket_merge",
		"query_id": queryID,
		"merged":   merged,
		"survived": survived,
	}).Info(auditLogMessage)
}

// LinkedMerge implements Recorder.
func (r *LogRecorder) LinkedMerge(queryID string, dstLabels, srcLabels []anon.Value) {
	r.log.WithFields(logrus.Fields{
		"action":     "linked_merge",
		"query_id":   queryID,
		"dst_labels": dstLabels,
		"src_labels": srcLabels,
	}).Info(auditLogMessage)
}

// Query implements Recorder.
func (r *LogRecorder) Query(queryID string, bucketCount int, d time.Duration, err error) {
	fields := logrus.Fields{
		"action":       "query",
		"query_id":     queryID,
		"bucket_count": bucketCount,
		"duration":     d,
		"success":      true,
	}
	if err != nil {
		fields["success"] = false
		fields["err"] = err
	}
	r.log.WithFields(fields).Info(auditLogMessage)
}

// Error implements Recorder, logging err at Warn with its dynamic type as
// a coarse "kind" field: every anon error is a gopkg.in/src-d/go-errors.v1
// *errors.Error built from one of anon's fixed Kind values, and its
// formatted message already names the offending argument/operation.
func (r *LogRecorder) Error(queryID string, err error) {
	r.log.WithFields(logrus.Fields{
		"action":   "error",
		"query_id": queryID,
		"kind":     fmt.Sprintf("%T", err),
		"err":      err,
	}).Warn(auditLogMessage)
}
