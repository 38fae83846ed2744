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

// Package promoter implements C8: a single cooperative loop that moves due
// delayed entries into the immediate lane.
package promoter

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/Sambit-Mondal/Karbos/pkg/karbos"
)

// DefaultTickInterval is how often the promoter checks for due entries.
const DefaultTickInterval = 10 * time.Second

// Queue is the capability the Promoter depends on — satisfied by
// *queue.DualQueue.
type Queue interface {
	ScanDue(ctx context.Context, now time.Time) ([]karbos.QueueEntry, error)
	EnqueueImmediate(ctx context.Context, entry karbos.QueueEntry) error
	RemoveFromDelayed(ctx context.Context, workItemID uuid.UUID) error
}

// Promoter is C8. It is the only writer into the immediate lane besides the
// scheduler's initial enqueue, and it never runs the container itself.
type Promoter struct {
	q            Queue
	tickInterval time.Duration
	log          logr.Logger
}

// New constructs a Promoter with the default tick interval.
func New(q Queue, log logr.Logger) *Promoter {
	return &Promoter{q: q, tickInterval: DefaultTickInterval, log: log}
}

// WithTickInterval overrides DefaultTickInterval.
func (p *Promoter) WithTickInterval(d time.Duration) *Promoter {
	p.tickInterval = d
	return p
}

// Run ticks forever until ctx is canceled. Each tick promotes every entry
// that is currently due (§4.8).
func (p *Promoter) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("promoter shutting down")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick performs one promotion pass. Order matters: the enqueue into the
// immediate lane happens before the delayed-lane removal, so a failed
// enqueue leaves the entry due again next tick (at-least-once promotion); a
// failed removal after a successful enqueue risks a duplicate dequeue, which
// downstream workers tolerate (§4.8).
func (p *Promoter) tick(ctx context.Context) {
	entries, err := p.q.ScanDue(ctx, time.Now())
	if err != nil {
		p.log.Error(err, "scanDue failed")
		return
	}
	for _, entry := range entries {
		if err := p.q.EnqueueImmediate(ctx, entry); err != nil {
			p.log.Error(err, "enqueueImmediate failed, entry remains due", "workItemID", entry.WorkItemID)
			continue
		}
		if err := p.q.RemoveFromDelayed(ctx, entry.WorkItemID); err != nil {
			p.log.Error(err, "removeFromDelayed failed after promotion, duplicate dequeue possible", "workItemID", entry.WorkItemID)
		}
	}
}
