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

// Package breaker implements C3: a three-state circuit breaker in front of a
// CarbonProvider. It never surfaces the provider's error to its caller —
// in Open or on-failure paths it always returns a value, falling back to a
// static, deterministic reading.
package breaker

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/sony/gobreaker"

	"github.com/Sambit-Mondal/Karbos/pkg/karbos"
)

// State is the tagged CircuitState enumeration from the data model. It never
// leaks gobreaker's own State type to callers.
type State string

const (
	Closed   State = "CLOSED"
	Open     State = "OPEN"
	HalfOpen State = "HALF_OPEN"
)

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateClosed:
		return Closed
	case gobreaker.StateOpen:
		return Open
	case gobreaker.StateHalfOpen:
		return HalfOpen
	default:
		panic("breaker: unknown gobreaker state " + s.String())
	}
}

// Config tunes the breaker's thresholds. Zero-value fields take the defaults
// named in the specification.
type Config struct {
	MaxFailures      uint32
	Timeout          time.Duration
	PointFallback    float64
	RangeFallbackFn  func(region string, start, end time.Time) []karbos.IntensitySample
}

func (c Config) withDefaults() Config {
	if c.MaxFailures == 0 {
		c.MaxFailures = 5
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.PointFallback == 0 {
		c.PointFallback = 400
	}
	return c
}

// PointFetcher is the shape of a single-instant provider call, bound ahead of
// time to a region and instant by the caller.
type PointFetcher func(ctx context.Context) (karbos.IntensitySample, error)

// RangeFetcher is the shape of a forecast-range provider call.
type RangeFetcher func(ctx context.Context) ([]karbos.IntensitySample, error)

// Breaker guards calls to a CarbonProvider with closed/open/half-open
// semantics and a static fallback. All state is owned by the embedded
// gobreaker.CircuitBreaker, which holds a single lock across reads and
// transitions (§5: "Contention is O(1) per provider call; the lock is never
// held across the I/O itself" — gobreaker releases its lock before invoking
// the wrapped function and re-acquires it only to record the outcome).
type Breaker struct {
	cfg Config
	cb  *gobreaker.CircuitBreaker[any]
	log logr.Logger
}

// New constructs a Breaker. log receives a transition-to-closed line only
// when the failure counter was nonzero at the moment of recovery (§4.3).
func New(cfg Config, log logr.Logger) *Breaker {
	cfg = cfg.withDefaults()
	b := &Breaker{cfg: cfg, log: log}
	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "carbon-provider",
		MaxRequests: 1, // exactly one in-flight probe while half-open
		Interval:    0, // never reset Closed counts on a timer; only on success
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateClosed {
				b.log.V(1).Info("circuit breaker recovered", "name", name, "from", fromGobreaker(from))
			}
		},
	})
	return b
}

// State reports the breaker's current tagged state.
func (b *Breaker) State() State {
	return fromGobreaker(b.cb.State())
}

// Reset forces the breaker back to Closed (administrative escape hatch).
func (b *Breaker) Reset() {
	// gobreaker has no direct reset; reconstructing with fresh counts is the
	// documented way to force Closed, so we swap the inner breaker.
	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "carbon-provider",
		MaxRequests: 1,
		Timeout:     b.cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= b.cfg.MaxFailures
		},
	})
}

// Point executes fetch through the breaker. On any failure, or while Open, it
// returns the static point fallback instead of propagating the error.
func (b *Breaker) Point(ctx context.Context, region string, instant time.Time, fetch PointFetcher) karbos.IntensitySample {
	result, err := b.cb.Execute(func() (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return b.pointFallback(region, instant)
	}
	return result.(karbos.IntensitySample)
}

// Range executes fetch through the breaker. On any failure, or while Open, it
// returns hourly fallback samples spanning [start, end].
func (b *Breaker) Range(ctx context.Context, region string, start, end time.Time, fetch RangeFetcher) []karbos.IntensitySample {
	result, err := b.cb.Execute(func() (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		if b.cfg.RangeFallbackFn != nil {
			return b.cfg.RangeFallbackFn(region, start, end)
		}
		return b.rangeFallback(region, start, end)
	}
	return result.([]karbos.IntensitySample)
}

func (b *Breaker) pointFallback(region string, instant time.Time) karbos.IntensitySample {
	now := instant
	return karbos.IntensitySample{
		Region:     region,
		Instant:    now,
		Intensity:  b.cfg.PointFallback,
		Unit:       karbos.IntensityUnit,
		Provenance: karbos.StaticFallbackProvenance,
		FetchedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	}
}

func (b *Breaker) rangeFallback(region string, start, end time.Time) []karbos.IntensitySample {
	var samples []karbos.IntensitySample
	for t := start.Truncate(time.Hour); !t.After(end); t = t.Add(time.Hour) {
		samples = append(samples, b.pointFallback(region, t))
	}
	return samples
}
