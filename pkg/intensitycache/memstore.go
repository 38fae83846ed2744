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

package intensitycache

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory Store, for tests in this package and in packages
// that compose a Cache (pkg/carbonfetcher, pkg/scheduler) — a substitute for
// PostgresStore per the Design Notes' "Cache/Store/Broker polymorphism".
type MemStore struct {
	mu   sync.Mutex
	rows []row
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{}
}

func (m *MemStore) Upsert(ctx context.Context, r row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.rows {
		if existing.Region == r.Region && existing.Timestamp.Equal(r.Timestamp) && existing.ForecastWindow == r.ForecastWindow {
			m.rows[i] = r
			return nil
		}
	}
	m.rows = append(m.rows, r)
	return nil
}

func (m *MemStore) BulkUpsert(ctx context.Context, rs []row) error {
	for _, r := range rs {
		if err := m.Upsert(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemStore) Range(ctx context.Context, region string, start, end time.Time) ([]row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []row
	for _, r := range m.rows {
		if r.Region == region && !r.Timestamp.Before(start) && !r.Timestamp.After(end) && r.ExpiresAt.After(time.Now()) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemStore) Nearest(ctx context.Context, region string, instant time.Time, tolerance time.Duration) ([]row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []row
	for _, r := range m.rows {
		if r.Region == region && !r.Timestamp.Before(instant.Add(-tolerance)) && !r.Timestamp.After(instant.Add(tolerance)) && r.ExpiresAt.After(time.Now()) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemStore) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []row
	removed := 0
	for _, r := range m.rows {
		if r.CreatedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return removed, nil
}

// InjectRaw appends a row bypassing the natural-key overwrite Upsert does,
// useful for constructing test fixtures with two distinct rows at the same
// instant (e.g. tie-breaking tests).
func (m *MemStore) InjectRaw(region string, instant time.Time, intensity float64, source string, fetchedAt time.Time, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, row{
		Region: region, Timestamp: instant, IntensityValue: intensity,
		ForecastWindow: "point", Source: source, CreatedAt: fetchedAt, ExpiresAt: fetchedAt.Add(ttl),
	})
}
