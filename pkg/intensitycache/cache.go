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

// Package intensitycache implements C2: a persistent, TTL-bounded cache of
// IntensitySample rows keyed by (region, instant), durable in Postgres and
// read-accelerated by an in-process TTL layer (patrickmn/go-cache) so a
// burst of lookupNearest calls inside one fetch does not round-trip the
// store every time.
package intensitycache

import (
	"context"
	"fmt"
	"math"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/samber/lo"

	"github.com/Sambit-Mondal/Karbos/pkg/karbos"
)

// DefaultFreshnessBound is the window within which a cache row is considered
// fresh enough to serve without re-fetching (§4.2, lookupNearest "miss"
// threshold and §4.4 step 1's isFresh check).
const DefaultFreshnessBound = time.Hour

// DefaultNearestTolerance bounds how far from the requested instant a row's
// instant may sit and still count as the "nearest" sample.
const DefaultNearestTolerance = 15 * time.Minute

// memCleanupInterval is how often the in-process accelerator layer sweeps its
// expired entries; the durable rows in Postgres carry their own per-row
// expires_at set by Upsert.
const memCleanupInterval = time.Minute

// row is the durable shape of one cache entry, grounded on the logical
// `carbon_cache` table in the external-interfaces section: region, instant,
// intensity, forecast window, provenance, and the created-at timestamp are
// all columns named there. expires_at is an implementation addition — the
// TTL bookkeeping the component contract requires has no column in the
// logical schema, so one is added here (see DESIGN.md).
type row struct {
	Region         string    `db:"region"`
	Timestamp      time.Time `db:"timestamp"`
	IntensityValue float64   `db:"intensity_value"`
	ForecastWindow string    `db:"forecast_window"`
	Source         string    `db:"source"`
	CreatedAt      time.Time `db:"created_at"`
	ExpiresAt      time.Time `db:"expires_at"`
}

func (r row) toSample() karbos.IntensitySample {
	return karbos.IntensitySample{
		Region:     r.Region,
		Instant:    r.Timestamp,
		Intensity:  r.IntensityValue,
		Unit:       karbos.IntensityUnit,
		Provenance: r.Source,
		FetchedAt:  r.CreatedAt,
		ExpiresAt:  r.ExpiresAt,
	}
}

// Store is the persistence capability the Cache depends on — a narrow slice
// of *sqlx.DB so tests can substitute an in-memory fake instead of a real
// Postgres connection (Design Notes, "Cache/Store/Broker polymorphism").
type Store interface {
	Upsert(ctx context.Context, r row) error
	BulkUpsert(ctx context.Context, rs []row) error
	Range(ctx context.Context, region string, start, end time.Time) ([]row, error)
	Nearest(ctx context.Context, region string, instant time.Time, tolerance time.Duration) ([]row, error)
	Purge(ctx context.Context, olderThan time.Time) (int, error)
}

// Cache is C2.
type Cache struct {
	store           Store
	mem             *gocache.Cache
	freshnessBound  time.Duration
	nearestTolerance time.Duration
}

// Option configures a Cache at construction time.
type Option func(*Cache)

// WithFreshnessBound overrides DefaultFreshnessBound.
func WithFreshnessBound(d time.Duration) Option {
	return func(c *Cache) { c.freshnessBound = d }
}

// WithNearestTolerance overrides DefaultNearestTolerance.
func WithNearestTolerance(d time.Duration) Option {
	return func(c *Cache) { c.nearestTolerance = d }
}

// New constructs a Cache backed by store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:            store,
		mem:              gocache.New(DefaultFreshnessBound, memCleanupInterval),
		freshnessBound:   DefaultFreshnessBound,
		nearestTolerance: DefaultNearestTolerance,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func memKey(region string, instant time.Time) string {
	return fmt.Sprintf("%s:%d", region, instant.Unix())
}

// LookupNearest returns at most one sample within ±tolerance of instant,
// preferring the smallest absolute delta and, on ties, the most recently
// fetched row. It returns ok=false on a cache miss or on staleness.
func (c *Cache) LookupNearest(ctx context.Context, region string, instant time.Time) (karbos.IntensitySample, bool, error) {
	if cached, found := c.mem.Get(memKey(region, instant)); found {
		s := cached.(karbos.IntensitySample)
		if c.IsFresh(s, c.freshnessBound) {
			return s, true, nil
		}
	}

	rows, err := c.store.Nearest(ctx, region, instant, c.nearestTolerance)
	if err != nil {
		return karbos.IntensitySample{}, false, err
	}
	if len(rows) == 0 {
		return karbos.IntensitySample{}, false, nil
	}

	best := lo.MinBy(rows, func(a, b row) bool {
		da, db := math.Abs(a.Timestamp.Sub(instant).Seconds()), math.Abs(b.Timestamp.Sub(instant).Seconds())
		if da != db {
			return da < db
		}
		// tie: most recently fetched wins
		return a.CreatedAt.After(b.CreatedAt)
	})
	sample := best.toSample()
	if !c.IsFresh(sample, c.freshnessBound) {
		return karbos.IntensitySample{}, false, nil
	}
	c.mem.SetDefault(memKey(region, instant), sample)
	return sample, true, nil
}

// LookupNearestAny returns the nearest sample within ±tolerance of instant
// regardless of staleness — the IsFresh gate LookupNearest applies is
// skipped entirely. Used by callers that have their own stale-is-still-
// useful fallback policy (carbonfetcher's stale-on-failure override).
func (c *Cache) LookupNearestAny(ctx context.Context, region string, instant time.Time) (karbos.IntensitySample, bool, error) {
	rows, err := c.store.Nearest(ctx, region, instant, c.nearestTolerance)
	if err != nil {
		return karbos.IntensitySample{}, false, err
	}
	if len(rows) == 0 {
		return karbos.IntensitySample{}, false, nil
	}
	best := lo.MinBy(rows, func(a, b row) bool {
		da, db := math.Abs(a.Timestamp.Sub(instant).Seconds()), math.Abs(b.Timestamp.Sub(instant).Seconds())
		if da != db {
			return da < db
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return best.toSample(), true, nil
}

// LookupRange returns every sample in [start, end], ordered by instant
// ascending. Rows already purged are never returned.
func (c *Cache) LookupRange(ctx context.Context, region string, start, end time.Time) ([]karbos.IntensitySample, error) {
	rows, err := c.store.Range(ctx, region, start, end)
	if err != nil {
		return nil, err
	}
	return lo.Map(rows, func(r row, _ int) karbos.IntensitySample { return r.toSample() }), nil
}

// Upsert inserts or overwrites sample by its natural key (region, instant),
// setting ExpiresAt = now + ttl.
func (c *Cache) Upsert(ctx context.Context, sample karbos.IntensitySample, ttl time.Duration) error {
	now := sample.FetchedAt
	if now.IsZero() {
		now = time.Now()
	}
	r := row{
		Region:         sample.Region,
		Timestamp:      sample.Instant,
		IntensityValue: sample.Intensity,
		ForecastWindow: "point",
		Source:         sample.Provenance,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}
	if err := c.store.Upsert(ctx, r); err != nil {
		return err
	}
	c.mem.SetDefault(memKey(sample.Region, sample.Instant), r.toSample())
	return nil
}

// BulkUpsert persists samples transactionally: either all rows land or none
// do.
func (c *Cache) BulkUpsert(ctx context.Context, samples []karbos.IntensitySample, ttl time.Duration) error {
	if len(samples) == 0 {
		return nil
	}
	now := time.Now()
	rows := lo.Map(samples, func(s karbos.IntensitySample, _ int) row {
		fetchedAt := s.FetchedAt
		if fetchedAt.IsZero() {
			fetchedAt = now
		}
		return row{
			Region:         s.Region,
			Timestamp:      s.Instant,
			IntensityValue: s.Intensity,
			ForecastWindow: "range",
			Source:         s.Provenance,
			CreatedAt:      fetchedAt,
			ExpiresAt:      fetchedAt.Add(ttl),
		}
	})
	if err := c.store.BulkUpsert(ctx, rows); err != nil {
		return err
	}
	for _, r := range rows {
		c.mem.SetDefault(memKey(r.Region, r.Timestamp), r.toSample())
	}
	return nil
}

// Purge deletes rows older than maxAge and returns the count removed.
func (c *Cache) Purge(ctx context.Context, maxAge time.Duration) (int, error) {
	return c.store.Purge(ctx, time.Now().Add(-maxAge))
}

// IsFresh reports whether sample was fetched within maxAge of now.
func (c *Cache) IsFresh(sample karbos.IntensitySample, maxAge time.Duration) bool {
	return time.Since(sample.FetchedAt) < maxAge
}

// CoverageRatio returns the fraction of hourly slots in [start, end] that
// samples covers, used by the CarbonFetcher's "≥ 80% of requested hours"
// rule.
func CoverageRatio(samples []karbos.IntensitySample, start, end time.Time) float64 {
	wantHours := int(math.Ceil(end.Sub(start).Hours()))
	if wantHours <= 0 {
		return 1
	}
	seen := make(map[int64]bool, len(samples))
	for _, s := range samples {
		seen[s.Instant.Truncate(time.Hour).Unix()] = true
	}
	return float64(len(seen)) / float64(wantHours)
}
