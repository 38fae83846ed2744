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

// Package karbos holds the domain types shared across every component of the
// carbon-aware batch scheduler: work items, execution records, intensity
// samples, scheduling decisions, and the small set of tagged enumerations
// that encode their lifecycles.
package karbos

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the closed set of lifecycle states a WorkItem can occupy.
type JobStatus string

const (
	StatusPending   JobStatus = "PENDING"
	StatusDelayed   JobStatus = "DELAYED"
	StatusRunning   JobStatus = "RUNNING"
	StatusCompleted JobStatus = "COMPLETED"
	StatusFailed    JobStatus = "FAILED"
)

// IsValid reports whether s is one of the five defined statuses.
func (s JobStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusDelayed, StatusRunning, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s is a terminal status (Completed or Failed).
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// transitions enumerates every permitted status change. Anything not listed
// here is rejected by JobStore.UpdateStatus.
var transitions = map[JobStatus]map[JobStatus]bool{
	StatusPending: {StatusDelayed: true, StatusRunning: true},
	StatusDelayed: {StatusRunning: true},
	StatusRunning: {StatusCompleted: true, StatusFailed: true},
}

// CanTransition reports whether moving from `from` to `to` is a legal edge in
// the WorkItem lifecycle graph.
func CanTransition(from, to JobStatus) bool {
	return transitions[from][to]
}

// DefaultEstimatedRuntime is used when a submission omits an estimate.
const DefaultEstimatedRuntime = 10 * time.Minute

// WorkItem is a single unit of containerized work the scheduler times and the
// worker pool eventually executes.
type WorkItem struct {
	ID               uuid.UUID
	SubmitterKey     string
	DockerImage      string
	Argv             []string
	SubmittedAt      time.Time
	Deadline         time.Time
	EstimatedRuntime time.Duration
	Region           string
	ScheduledStart   time.Time
	Status           JobStatus
	CreatedAt        time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
	Metadata         map[string]string
}

// ExecutionRecord is written once a worker finishes running a WorkItem's
// container to completion (or failure). It is never mutated after creation.
type ExecutionRecord struct {
	ID             uuid.UUID
	WorkItemID     uuid.UUID
	StartedAt      time.Time
	CompletedAt    *time.Time
	ExitCode       int
	CapturedOutput string
	ErrorMessage   string
	RuntimeSeconds float64
	WorkerNodeID   string
}

// IntensitySample is one (region, instant) carbon-intensity reading, either
// fetched live from a provider or synthesized as a circuit-breaker fallback.
// The `Provenance` field — never a distinct type — is what distinguishes the
// two (Design Notes, "Provenance, not union types").
type IntensitySample struct {
	Region      string
	Instant     time.Time
	Intensity   float64
	Unit        string
	Provenance  string
	FetchedAt   time.Time
	ExpiresAt   time.Time
}

// StaticFallbackProvenance tags intensity data synthesized by an open
// CircuitBreaker rather than observed from a live provider.
const StaticFallbackProvenance = "static-fallback"

// IntensityUnit is the fixed unit every IntensitySample is expressed in.
const IntensityUnit = "gCO2eq/kWh"

// SchedulingDecision is the transient output of the scheduler: when (or
// whether) to run a WorkItem, and how much carbon that choice is expected to
// save relative to running right now.
type SchedulingDecision struct {
	WorkItemID        uuid.UUID
	ScheduledTime     time.Time
	ExpectedIntensity float64
	Immediate         bool
	Savings           float64
	SavingsPercent    float64
	Alternatives      []AlternativeWindow
}

// AlternativeWindow is a near-optimal sliding window the scheduler considered
// but did not pick, kept so a caller can see what else was close.
type AlternativeWindow struct {
	Start time.Time
	Mean  float64
}

// QueueEntry is the unit the DualQueue moves between its immediate and
// delayed lanes.
type QueueEntry struct {
	WorkItemID     uuid.UUID
	DockerImage    string
	Argv           []string
	ScheduledStart time.Time
	Priority       int
}
