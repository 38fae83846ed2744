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

// Package workerpool implements C10: a fixed-size set of consumer tasks that
// drain the immediate lane, run each WorkItem's container, and record its
// outcome.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/Sambit-Mondal/Karbos/pkg/executor"
	"github.com/Sambit-Mondal/Karbos/pkg/karbos"
)

// Defaults per §4.10 and the timeout table in §5.
const (
	DefaultPoolSize      = 5
	DefaultPollInterval  = 2 * time.Second
	DefaultJobDeadline   = 10 * time.Minute
	DefaultHeartbeatPeriod = 10 * time.Second
	DefaultHeartbeatTTL  = 15 * time.Second
	DefaultDrainBudget   = 30 * time.Second
)

// Queue is the capability the pool dequeues from — satisfied by
// *queue.DualQueue.
type Queue interface {
	DequeueImmediate(ctx context.Context) (karbos.QueueEntry, bool, error)
	SetHeartbeat(ctx context.Context, workerID string, ttl time.Duration) error
}

// Store is the capability the pool persists WorkItem/ExecutionRecord state
// through — satisfied by *jobstore.Store.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (karbos.WorkItem, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, newStatus karbos.JobStatus) error
	WriteExecutionRecord(ctx context.Context, record karbos.ExecutionRecord) error
}

// Runner is the capability that actually executes a WorkItem's container —
// satisfied by *executor.Executor.
type Runner interface {
	Run(ctx context.Context, ref string, argv []string, limits executor.Limits, deadline time.Time) (executor.Result, error)
}

// Pool is C10.
type Pool struct {
	q    Queue
	s    Store
	r    Runner
	log  logr.Logger

	size           int
	pollInterval   time.Duration
	jobDeadline    time.Duration
	heartbeatPeriod time.Duration
	heartbeatTTL   time.Duration

	workerID string
	active   sync.Map // identifier (uuid.UUID) -> struct{}
	count    atomic.Int64

	draining atomic.Bool
	wg       sync.WaitGroup
}

// New constructs a Pool with the default size and timings.
func New(q Queue, s Store, r Runner, log logr.Logger) *Pool {
	return &Pool{
		q:               q,
		s:               s,
		r:               r,
		log:             log,
		size:            DefaultPoolSize,
		pollInterval:    DefaultPollInterval,
		jobDeadline:     DefaultJobDeadline,
		heartbeatPeriod: DefaultHeartbeatPeriod,
		heartbeatTTL:    DefaultHeartbeatTTL,
		workerID:        uuid.NewString(),
	}
}

// WithSize overrides DefaultPoolSize.
func (p *Pool) WithSize(n int) *Pool {
	p.size = n
	return p
}

// ActiveCount reports how many work items are currently in-flight.
func (p *Pool) ActiveCount() int64 {
	return p.count.Load()
}

// Run launches the pool's consumer loops and heartbeat, blocking until ctx is
// canceled. On cancellation the pool enters draining mode and waits for the
// active-counter to reach zero before returning.
func (p *Pool) Run(ctx context.Context) {
	heartbeatCtx, cancelHeartbeat := context.WithCancel(context.Background())
	defer cancelHeartbeat()
	go p.heartbeatLoop(heartbeatCtx)

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.consumerLoop(ctx, id)
		}(i)
	}

	<-ctx.Done()
	p.draining.Store(true)
	p.log.Info("worker pool draining", "workerID", p.workerID)
	p.wg.Wait()
	p.log.Info("worker pool drained", "workerID", p.workerID)
}

func (p *Pool) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(p.heartbeatPeriod)
	defer ticker.Stop()
	for {
		if err := p.q.SetHeartbeat(ctx, p.workerID, p.heartbeatTTL); err != nil {
			p.log.Error(err, "heartbeat failed", "workerID", p.workerID)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// consumerLoop is one of the fixed-size set of worker tasks (§4.10).
func (p *Pool) consumerLoop(ctx context.Context, id int) {
	for {
		if p.draining.Load() {
			return
		}

		entry, ok, err := p.q.DequeueImmediate(ctx)
		if err != nil {
			p.log.Error(err, "dequeueImmediate failed", "worker", id)
			p.sleepOrStop(ctx)
			continue
		}
		if !ok {
			p.sleepOrStop(ctx)
			continue
		}

		p.processEntry(ctx, entry)
	}
}

func (p *Pool) sleepOrStop(ctx context.Context) {
	t := time.NewTimer(p.pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// processEntry runs one WorkItem end-to-end (§4.10 steps 3-9).
func (p *Pool) processEntry(ctx context.Context, entry karbos.QueueEntry) {
	item, err := p.s.GetByID(ctx, entry.WorkItemID)
	if err != nil || item.Status.IsTerminal() {
		return
	}

	if err := p.s.UpdateStatus(ctx, item.ID, karbos.StatusRunning); err != nil {
		// Lost the compare-and-set race (§5: "the loser's transition is
		// rejected and it continues"); another worker already claimed it.
		p.log.Error(err, "lost the running-transition race, skipping", "workItemID", item.ID)
		return
	}

	p.active.Store(item.ID, struct{}{})
	p.count.Add(1)
	defer func() {
		p.active.Delete(item.ID)
		p.count.Add(-1)
	}()

	deadline := time.Now().Add(p.jobDeadline)
	result, runErr := p.r.Run(ctx, item.DockerImage, item.Argv, executor.DefaultLimits(), deadline)

	record := karbos.ExecutionRecord{
		WorkItemID:   item.ID,
		WorkerNodeID: p.workerID,
	}
	finalStatus := karbos.StatusCompleted
	if runErr != nil {
		finalStatus = karbos.StatusFailed
		record.ErrorMessage = runErr.Error()
		record.StartedAt = time.Now()
	} else {
		record.StartedAt = result.StartedAt
		record.ExitCode = result.ExitCode
		record.CapturedOutput = result.CapturedOutput
		record.RuntimeSeconds = result.RuntimeSeconds
		if result.ExitCode != 0 {
			finalStatus = karbos.StatusFailed
			record.ErrorMessage = fmt.Sprintf("Container exited with code %d", result.ExitCode)
		}
	}
	now := time.Now()
	record.CompletedAt = &now

	if err := p.s.WriteExecutionRecord(ctx, record); err != nil {
		p.log.Error(err, "writeExecutionRecord failed", "workItemID", item.ID)
	}
	if err := p.s.UpdateStatus(ctx, item.ID, finalStatus); err != nil {
		p.log.Error(err, "final status transition failed", "workItemID", item.ID, "status", finalStatus)
	}
}
