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

// Package carbonprovider implements C1: the pure capability to fetch current
// and forecast grid carbon intensity for a region, deadline-bounded and
// wrapped by a circuit breaker upstream (pkg/breaker).
package carbonprovider

import (
	"context"
	"time"

	"github.com/Sambit-Mondal/Karbos/pkg/karbos"
)

// MaxCallDeadline is the hard cap on any single provider call (§4.1).
const MaxCallDeadline = 10 * time.Second

// Provider is the capability every adapter satisfies. Point returns a single
// current reading; Range returns an ordered, hourly-granular forecast
// sequence spanning [start, end].
type Provider interface {
	Point(ctx context.Context, region string, at time.Time) (karbos.IntensitySample, error)
	Range(ctx context.Context, region string, start, end time.Time) ([]karbos.IntensitySample, error)
}

// WithDeadline clamps ctx to at most MaxCallDeadline, regardless of what the
// caller already had in effect (§4.1: "all provider calls are deadline-
// bounded").
func WithDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, MaxCallDeadline)
}
