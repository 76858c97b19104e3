// Copyright 2017 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics holds the scheduler's prometheus instrumentation. None
// of these counters influence task selection; they are pure
// observability, grounded in the same CounterVec idiom the teacher's
// balance-region scheduler uses for its own scheduling decisions.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// TaskSelected counts each non-empty selectTask result by task kind.
	TaskSelected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walmaintd",
			Name:      "task_selected_total",
			Help:      "Number of maintenance tasks selected, by kind.",
		}, []string{"kind"})

	// StepExamined counts each cascade step that ran its scoring loop,
	// whether or not it yielded a task.
	StepExamined = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "walmaintd",
			Name:      "step_examined_total",
			Help:      "Number of times a priority-cascade step ran its scoring loop.",
		}, []string{"step"})
)

func init() {
	prometheus.MustRegister(TaskSelected, StepExamined)
}
