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

// Package queue implements C7: the dual immediate/delayed lane broker, plus
// a worker liveness registry, all hosted in Redis via redis/go-redis/v9.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/awslabs/operatorpkg/serrors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/Sambit-Mondal/Karbos/pkg/karbos"
)

const (
	immediateKey = "karbos:queue:immediate"
	delayedKey   = "karbos:queue:delayed"
	workerKeyFmt = "worker:%s"
)

// DualQueue is C7.
type DualQueue struct {
	rdb *redis.Client
}

// New constructs a DualQueue over rdb.
func New(rdb *redis.Client) *DualQueue {
	return &DualQueue{rdb: rdb}
}

// DelayedStats is the observability summary returned by DelayedStats.
type DelayedStats struct {
	TotalDelayed int64
	DueNow       int64
	Pending      int64
}

func encode(entry karbos.QueueEntry) (string, error) {
	b, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("%w: %v", karbos.ErrBrokerUnavailable, err)
	}
	return string(b), nil
}

func decode(blob string) (karbos.QueueEntry, error) {
	var entry karbos.QueueEntry
	if err := json.Unmarshal([]byte(blob), &entry); err != nil {
		return karbos.QueueEntry{}, fmt.Errorf("%w: %v", karbos.ErrBrokerUnavailable, err)
	}
	return entry, nil
}

// EnqueueImmediate appends entry to the tail of the immediate lane. The
// RPUSH is atomic from Redis's perspective, so no partially visible entry can
// ever be dequeued (§4.7 correctness rule).
func (q *DualQueue) EnqueueImmediate(ctx context.Context, entry karbos.QueueEntry) error {
	blob, err := encode(entry)
	if err != nil {
		return err
	}
	if err := q.rdb.RPush(ctx, immediateKey, blob).Err(); err != nil {
		return serrors.Wrap(fmt.Errorf("%w: %v", karbos.ErrBrokerUnavailable, err), "work-item-id", entry.WorkItemID)
	}
	return nil
}

// DequeueImmediate removes and returns the head of the immediate lane. ok is
// false on an empty lane (the "no work" sentinel); it never blocks.
func (q *DualQueue) DequeueImmediate(ctx context.Context) (entry karbos.QueueEntry, ok bool, err error) {
	blob, err := q.rdb.LPop(ctx, immediateKey).Result()
	if err == redis.Nil {
		return karbos.QueueEntry{}, false, nil
	}
	if err != nil {
		return karbos.QueueEntry{}, false, fmt.Errorf("%w: %v", karbos.ErrBrokerUnavailable, err)
	}
	entry, err = decode(blob)
	if err != nil {
		return karbos.QueueEntry{}, false, err
	}
	return entry, true, nil
}

// EnqueueDelayed inserts entry into the delayed lane, scored by its scheduled
// start as an epoch-second value.
func (q *DualQueue) EnqueueDelayed(ctx context.Context, entry karbos.QueueEntry) error {
	blob, err := encode(entry)
	if err != nil {
		return err
	}
	z := redis.Z{Score: float64(entry.ScheduledStart.Unix()), Member: blob}
	if err := q.rdb.ZAdd(ctx, delayedKey, z).Err(); err != nil {
		return fmt.Errorf("%w: %v", karbos.ErrBrokerUnavailable, err)
	}
	return nil
}

// ScanDue returns every delayed entry whose score is <= now, ordered by score
// ascending. It MAY return the same entry across repeated calls until
// RemoveFromDelayed succeeds for it (§4.7).
func (q *DualQueue) ScanDue(ctx context.Context, now time.Time) ([]karbos.QueueEntry, error) {
	blobs, err := q.rdb.ZRangeByScore(ctx, delayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", karbos.ErrBrokerUnavailable, err)
	}
	entries := make([]karbos.QueueEntry, 0, len(blobs))
	for _, blob := range blobs {
		entry, err := decode(blob)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// RemoveFromDelayed removes the delayed-lane entry for workItemID. Entries
// are keyed by full blob, so this requires a bounded scan of the lane.
func (q *DualQueue) RemoveFromDelayed(ctx context.Context, workItemID uuid.UUID) error {
	const scanLimit = 1000
	blobs, err := q.rdb.ZRange(ctx, delayedKey, 0, scanLimit-1).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", karbos.ErrBrokerUnavailable, err)
	}
	for _, blob := range blobs {
		entry, err := decode(blob)
		if err != nil {
			continue
		}
		if entry.WorkItemID == workItemID {
			if err := q.rdb.ZRem(ctx, delayedKey, blob).Err(); err != nil {
				return fmt.Errorf("%w: %v", karbos.ErrBrokerUnavailable, err)
			}
			return nil
		}
	}
	return nil
}

// SetHeartbeat marks workerID alive for ttl.
func (q *DualQueue) SetHeartbeat(ctx context.Context, workerID string, ttl time.Duration) error {
	key := fmt.Sprintf(workerKeyFmt, workerID)
	if err := q.rdb.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", karbos.ErrBrokerUnavailable, err)
	}
	return nil
}

// ListActiveWorkers enumerates every worker key currently unexpired.
func (q *DualQueue) ListActiveWorkers(ctx context.Context) ([]string, error) {
	pattern := fmt.Sprintf(workerKeyFmt, "*")
	keys, err := q.rdb.Keys(ctx, pattern).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", karbos.ErrBrokerUnavailable, err)
	}
	prefix := fmt.Sprintf(workerKeyFmt, "")
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k[len(prefix):])
	}
	return ids, nil
}

// ImmediateDepth reports the immediate lane's current length.
func (q *DualQueue) ImmediateDepth(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, immediateKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", karbos.ErrBrokerUnavailable, err)
	}
	return n, nil
}

// DelayedDepth reports the delayed lane's current size.
func (q *DualQueue) DelayedDepth(ctx context.Context) (int64, error) {
	n, err := q.rdb.ZCard(ctx, delayedKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", karbos.ErrBrokerUnavailable, err)
	}
	return n, nil
}

// DelayedStats reports the full delayed-lane observability summary.
func (q *DualQueue) DelayedStats(ctx context.Context, now time.Time) (DelayedStats, error) {
	total, err := q.DelayedDepth(ctx)
	if err != nil {
		return DelayedStats{}, err
	}
	due, err := q.rdb.ZCount(ctx, delayedKey, "-inf", fmt.Sprintf("%d", now.Unix())).Result()
	if err != nil {
		return DelayedStats{}, fmt.Errorf("%w: %v", karbos.ErrBrokerUnavailable, err)
	}
	return DelayedStats{
		TotalDelayed: total,
		DueNow:       due,
		Pending:      total - due,
	}, nil
}
