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

import "github.com/sirupsen/logrus"

const decisionLogMessage = "anonymization decision"

// LogSuppressed records that a bucket was dropped by low-count filtering.
func LogSuppressed(ctx *Context, labels []Value, rowCount int64, threshold int) {
	ctx.Logger.WithFields(logrus.Fields{
		"action":    "suppress",
		"row_count": rowCount,
		"threshold": threshold,
	}).Debug(decisionLogMessage)
}

// LogStarBucketMerge records that n suppressed buckets were folded into the
// query's star bucket.
func LogStarBucketMerge(ctx *Context, n int) {
	ctx.Logger.WithFields(logrus.Fields{
		"action":         "star_bucket_merge",
		"buckets_merged": n,
	}).Debug(decisionLogMessage)
}

// LogLinkedMerge records that Linked Extension Detection merged a low-count
// bucket into a sibling bucket of the same query. Only the action is
// logged; the two buckets' labels are not.
func LogLinkedMerge(ctx *Context, dstLabels, srcLabels []Value) {
	ctx.Logger.WithFields(logrus.Fields{
		"action": "linked_extension_merge",
	}).Debug(decisionLogMessage)
}

// LogFlattening records that a bucket's contribution total was flattened
// down from trueValue to flattenedValue because of outlier/top contributors.
func LogFlattening(ctx *Context, trueValue, flattenedValue float64, outliers, topContributors int) {
	ctx.Logger.WithFields(logrus.Fields{
		"action":           "flatten",
		"true_value":       trueValue,
		"flattened_value":  flattenedValue,
		"outliers":         outliers,
		"top_contributors": topContributors,
	}).Debug(decisionLogMessage)
}
