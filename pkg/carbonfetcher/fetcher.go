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

// Package carbonfetcher implements C4: a cache-first composition of C2 and
// C3 with stale-on-failure fallback.
package carbonfetcher

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/Sambit-Mondal/Karbos/pkg/breaker"
	"github.com/Sambit-Mondal/Karbos/pkg/carbonprovider"
	"github.com/Sambit-Mondal/Karbos/pkg/intensitycache"
	"github.com/Sambit-Mondal/Karbos/pkg/karbos"
)

// DefaultTTL is how long a fetched sample is cached before it is considered
// stale (§4.4 step 2).
const DefaultTTL = time.Hour

// RangeCoverageThreshold is the fraction of requested hours the cache must
// cover, with every returned row fresh, before the fetcher treats the cache
// as sufficient for a range query (§4.4).
const RangeCoverageThreshold = 0.8

// Fetcher is C4.
type Fetcher struct {
	cache    *intensitycache.Cache
	breaker  *breaker.Breaker
	provider carbonprovider.Provider
	ttl      time.Duration
	log      logr.Logger
}

// New constructs a Fetcher.
func New(cache *intensitycache.Cache, cb *breaker.Breaker, provider carbonprovider.Provider, log logr.Logger) *Fetcher {
	return &Fetcher{cache: cache, breaker: cb, provider: provider, ttl: DefaultTTL, log: log}
}

// Point returns the best available intensity reading for (region, at).
func (f *Fetcher) Point(ctx context.Context, region string, at time.Time) (karbos.IntensitySample, error) {
	if cached, ok, err := f.cache.LookupNearest(ctx, region, at); err != nil {
		return karbos.IntensitySample{}, err
	} else if ok {
		return cached, nil
	}

	result := f.breaker.Point(ctx, region, at, func(ctx context.Context) (karbos.IntensitySample, error) {
		pctx, cancel := carbonprovider.WithDeadline(ctx)
		defer cancel()
		return f.provider.Point(pctx, region, at)
	})

	if result.Provenance == karbos.StaticFallbackProvenance {
		// §4.4 step 3: prefer a stale-but-present cache entry over the
		// breaker's synthetic fallback — this is the fetcher's sole override
		// of the breaker's output.
		if stale, ok, err := f.staleLookup(ctx, region, at); err == nil && ok {
			return stale, nil
		}
		return result, nil
	}

	if err := f.cache.Upsert(ctx, result, f.ttl); err != nil {
		f.log.Error(err, "failed to cache live intensity sample", "region", region)
	}
	return result, nil
}

// staleLookup bypasses freshness filtering to find any cached row at all for
// (region, at), used only by the stale-on-failure override.
func (f *Fetcher) staleLookup(ctx context.Context, region string, at time.Time) (karbos.IntensitySample, bool, error) {
	return f.cache.LookupNearestAny(ctx, region, at)
}

// Range returns a forecast sequence spanning [start, end].
func (f *Fetcher) Range(ctx context.Context, region string, start, end time.Time) ([]karbos.IntensitySample, error) {
	cached, err := f.cache.LookupRange(ctx, region, start, end)
	if err != nil {
		return nil, err
	}
	if sufficientCoverage(cached, start, end) {
		return cached, nil
	}

	result := f.breaker.Range(ctx, region, start, end, func(ctx context.Context) ([]karbos.IntensitySample, error) {
		pctx, cancel := carbonprovider.WithDeadline(ctx)
		defer cancel()
		return f.provider.Range(pctx, region, start, end)
	})

	if len(result) > 0 && result[0].Provenance != karbos.StaticFallbackProvenance {
		if err := f.cache.BulkUpsert(ctx, result, f.ttl); err != nil {
			f.log.Error(err, "failed to cache forecast range", "region", region)
		}
		return result, nil
	}

	// Provider failed (or breaker is open): prefer a partial cache subset
	// over the static fallback-forecast when one exists.
	if len(cached) > 0 {
		return cached, nil
	}
	return result, nil
}

func sufficientCoverage(samples []karbos.IntensitySample, start, end time.Time) bool {
	if intensitycache.CoverageRatio(samples, start, end) < RangeCoverageThreshold {
		return false
	}
	for _, s := range samples {
		if time.Since(s.FetchedAt) >= DefaultTTL {
			return false
		}
	}
	return true
}
