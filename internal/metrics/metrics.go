/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics registers the Prometheus series below, named and bucketed
// the way the teacher's pkg/batcher/metrics.go registers its own — minus the
// controller-runtime registry and karpenter metrics helpers this repository
// has no use for (see DESIGN.md). The series are registered and served on
// /metrics by both commands; no package in this repository increments,
// sets or observes them, so they report their zero values.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Namespace is the fixed Prometheus namespace every metric below is
// registered under.
const Namespace = "karbos"

// Registry is the process-wide collector registry; cmd/*/main.go exposes it
// on /metrics.
var Registry = prometheus.NewRegistry()

// DurationBuckets mirrors the teacher's default histogram buckets for
// sub-minute latencies.
func DurationBuckets() []float64 {
	return []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
}

const (
	breakerSubsystem   = "circuit_breaker"
	promoterSubsystem  = "promoter"
	poolSubsystem      = "worker_pool"
	schedulerSubsystem = "scheduler"
)

var (
	// BreakerTrips counts state transitions away from Closed, labeled by the
	// state reached.
	BreakerTrips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: breakerSubsystem,
		Name:      "trips_total",
		Help:      "Circuit breaker transitions away from closed, by resulting state",
	}, []string{"state"})

	// PromotionsTotal counts delayed-lane entries moved into the immediate
	// lane.
	PromotionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: promoterSubsystem,
		Name:      "promotions_total",
		Help:      "Delayed entries promoted into the immediate lane",
	})

	// PoolActiveWorkItems is the worker pool's current active-counter.
	PoolActiveWorkItems = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: poolSubsystem,
		Name:      "active_work_items",
		Help:      "Work items currently in-flight across the pool",
	})

	// JobRuntimeSeconds observes executor.Run wall-clock duration.
	JobRuntimeSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: poolSubsystem,
		Name:      "job_runtime_seconds",
		Help:      "Container run duration per job",
		Buckets:   DurationBuckets(),
	})

	// SchedulingDecisionsTotal counts decisions by immediacy.
	SchedulingDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: schedulerSubsystem,
		Name:      "decisions_total",
		Help:      "Scheduling decisions made, by immediacy",
	}, []string{"immediate"})
)

func init() {
	Registry.MustRegister(BreakerTrips, PromotionsTotal, PoolActiveWorkItems, JobRuntimeSeconds, SchedulingDecisionsTotal)
}
