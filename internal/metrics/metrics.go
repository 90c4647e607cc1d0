// Copyright 2023 The Cockroach Authors
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
//
// SPDX-License-Identifier: Apache-2.0

// Package metrics declares the pipeline's Prometheus instrumentation:
// one counter/histogram vector set per operator kind, labeled by operator
// name, following the promauto package-level var convention used
// throughout cdc-sink's staging layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LatencyBuckets are the histogram buckets shared by every duration metric
// below, in seconds.
var LatencyBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// OperatorLabels identifies which operator and which operator kind a
// metric observation belongs to.
var OperatorLabels = []string{"operator", "kind"}

var (
	// BatchesProcessed counts Batch messages handled by an operator.
	BatchesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rde_operator_batches_total",
		Help: "the number of Batch messages processed by an operator",
	}, OperatorLabels)

	// RowsProcessed counts rows handled by an operator.
	RowsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rde_operator_rows_total",
		Help: "the number of rows processed by an operator",
	}, OperatorLabels)

	// ProcessingDurations records how long each Batch took to process.
	ProcessingDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rde_operator_batch_duration_seconds",
		Help:    "the length of time it took an operator to process one Batch",
		Buckets: LatencyBuckets,
	}, OperatorLabels)

	// SchemaPublications counts schema changes published by the Schema
	// Manager.
	SchemaPublications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rde_schema_publications_total",
		Help: "the number of times the Schema Manager published a changed schema",
	}, []string{"operator"})

	// TableCommits counts table-format sink commits, labeled by outcome.
	TableCommits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rde_table_commits_total",
		Help: "the number of table-format sink commits attempted",
	}, []string{"table", "outcome"})
)
