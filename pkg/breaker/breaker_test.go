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

package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/Sambit-Mondal/Karbos/pkg/karbos"
)

func TestPointSuccessPassesThrough(t *testing.T) {
	b := New(Config{}, logr.Discard())
	want := karbos.IntensitySample{Region: "US-CAL-CISO", Intensity: 250}

	got := b.Point(context.Background(), "US-CAL-CISO", time.Now(), func(ctx context.Context) (karbos.IntensitySample, error) {
		return want, nil
	})
	if got != want {
		t.Errorf("Point() = %+v, want %+v", got, want)
	}
	if b.State() != Closed {
		t.Errorf("State() = %v, want Closed", b.State())
	}
}

func TestPointFailureReturnsStaticFallback(t *testing.T) {
	b := New(Config{MaxFailures: 1}, logr.Discard())

	got := b.Point(context.Background(), "US-CAL-CISO", time.Now(), func(ctx context.Context) (karbos.IntensitySample, error) {
		return karbos.IntensitySample{}, errors.New("provider unreachable")
	})
	if got.Provenance != karbos.StaticFallbackProvenance {
		t.Errorf("Provenance = %q, want %q", got.Provenance, karbos.StaticFallbackProvenance)
	}
}

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	b := New(Config{MaxFailures: 2}, logr.Discard())
	failing := func(ctx context.Context) (karbos.IntensitySample, error) {
		return karbos.IntensitySample{}, errors.New("boom")
	}

	b.Point(context.Background(), "r", time.Now(), failing)
	b.Point(context.Background(), "r", time.Now(), failing)

	if b.State() != Open {
		t.Fatalf("State() = %v, want Open after %d consecutive failures", b.State(), 2)
	}

	// While open, the wrapped fetch must never even be invoked.
	invoked := false
	b.Point(context.Background(), "r", time.Now(), func(ctx context.Context) (karbos.IntensitySample, error) {
		invoked = true
		return karbos.IntensitySample{Intensity: 999}, nil
	})
	if invoked {
		t.Error("fetch was invoked while breaker is Open")
	}
}

func TestRangeFailureReturnsHourlyFallback(t *testing.T) {
	b := New(Config{MaxFailures: 1}, logr.Discard())
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Hour)

	got := b.Range(context.Background(), "r", start, end, func(ctx context.Context) ([]karbos.IntensitySample, error) {
		return nil, errors.New("boom")
	})

	if len(got) != 4 {
		t.Fatalf("len(got) = %d, want 4 hourly fallback samples", len(got))
	}
	for _, s := range got {
		if s.Provenance != karbos.StaticFallbackProvenance {
			t.Errorf("sample provenance = %q, want static fallback", s.Provenance)
		}
	}
}

func TestReset(t *testing.T) {
	b := New(Config{MaxFailures: 1}, logr.Discard())
	b.Point(context.Background(), "r", time.Now(), func(ctx context.Context) (karbos.IntensitySample, error) {
		return karbos.IntensitySample{}, errors.New("boom")
	})
	if b.State() != Open {
		t.Fatal("expected breaker to be Open before Reset")
	}
	b.Reset()
	if b.State() != Closed {
		t.Errorf("State() after Reset() = %v, want Closed", b.State())
	}
}
