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

package promoter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/Sambit-Mondal/Karbos/pkg/karbos"
)

// fakeQueue is a Queue double recording calls for assertion.
type fakeQueue struct {
	due          []karbos.QueueEntry
	enqueueErr   error
	removeErr    error
	enqueued     []uuid.UUID
	removed      []uuid.UUID
	scanDueCalls int
}

func (f *fakeQueue) ScanDue(ctx context.Context, now time.Time) ([]karbos.QueueEntry, error) {
	f.scanDueCalls++
	return f.due, nil
}

func (f *fakeQueue) EnqueueImmediate(ctx context.Context, entry karbos.QueueEntry) error {
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.enqueued = append(f.enqueued, entry.WorkItemID)
	return nil
}

func (f *fakeQueue) RemoveFromDelayed(ctx context.Context, workItemID uuid.UUID) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, workItemID)
	return nil
}

func TestTickPromotesDueEntries(t *testing.T) {
	id := uuid.New()
	q := &fakeQueue{due: []karbos.QueueEntry{{WorkItemID: id}}}
	p := New(q, logr.Discard())

	p.tick(context.Background())

	if len(q.enqueued) != 1 || q.enqueued[0] != id {
		t.Errorf("enqueued = %v, want [%v]", q.enqueued, id)
	}
	if len(q.removed) != 1 || q.removed[0] != id {
		t.Errorf("removed = %v, want [%v]", q.removed, id)
	}
}

func TestTickEnqueueFailureLeavesEntryDelayed(t *testing.T) {
	id := uuid.New()
	q := &fakeQueue{due: []karbos.QueueEntry{{WorkItemID: id}}, enqueueErr: errors.New("redis down")}
	p := New(q, logr.Discard())

	p.tick(context.Background())

	if len(q.enqueued) != 0 {
		t.Errorf("enqueued = %v, want none", q.enqueued)
	}
	if len(q.removed) != 0 {
		t.Error("removeFromDelayed must not be called when enqueue fails")
	}
}

func TestTickRemoveFailureStillCountsAsPromoted(t *testing.T) {
	id := uuid.New()
	q := &fakeQueue{due: []karbos.QueueEntry{{WorkItemID: id}}, removeErr: errors.New("redis down")}
	p := New(q, logr.Discard())

	p.tick(context.Background())

	if len(q.enqueued) != 1 {
		t.Errorf("enqueued = %v, want the entry to have been promoted despite the later remove failure", q.enqueued)
	}
}

func TestTickNoDueEntriesIsNoop(t *testing.T) {
	q := &fakeQueue{}
	p := New(q, logr.Discard())

	p.tick(context.Background())

	if q.scanDueCalls != 1 {
		t.Errorf("scanDueCalls = %d, want 1", q.scanDueCalls)
	}
	if len(q.enqueued) != 0 || len(q.removed) != 0 {
		t.Error("expected no promotions with no due entries")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	q := &fakeQueue{}
	p := New(q, logr.Discard()).WithTickInterval(5 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	if q.scanDueCalls == 0 {
		t.Error("expected at least one tick before cancellation")
	}
}
