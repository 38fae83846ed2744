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

// Package scheduler implements C5: a sliding-window minimization over a
// carbon-intensity forecast, yielding either an immediate decision or a
// future scheduled time.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/Sambit-Mondal/Karbos/pkg/karbos"
)

// DefaultWindowSize bounds how far ahead the scheduler looks when the caller
// does not specify one.
const DefaultWindowSize = 24 * time.Hour

// DefaultSlotSize is the forecast quantization granularity.
const DefaultSlotSize = time.Hour

// DefaultImmediacyThreshold is the absolute intensity below which any
// decision is immediate regardless of savings (§4.5 step 8).
const DefaultImmediacyThreshold = 400.0

// alternativeBand is the gCO2eq/kWh tolerance within which a window's mean
// qualifies as an alternative to the optimal window.
const alternativeBand = 10.0

// maxAlternatives caps the number of near-optimal windows retained.
const maxAlternatives = 3

// immediacyStartSlack is how close optimalStart must sit to now to force an
// immediate decision regardless of savings.
const immediacyStartSlack = 5 * time.Minute

// savingsPercentFloor is the minimum savings percentage below which a
// decision is forced immediate.
const savingsPercentFloor = 10.0

// Forecaster is the capability the Scheduler depends on for both range and
// point carbon-intensity reads — satisfied by *carbonfetcher.Fetcher.
type Forecaster interface {
	Point(ctx context.Context, region string, at time.Time) (karbos.IntensitySample, error)
	Range(ctx context.Context, region string, start, end time.Time) ([]karbos.IntensitySample, error)
}

// Request is the input to Schedule (§4.5).
type Request struct {
	WorkItemID       uuid.UUID
	Region           string
	EstimatedRuntime time.Duration
	Deadline         time.Time
	WindowSize       time.Duration
	EarliestStart    time.Time
	SlotSize         time.Duration
	ImmediacyThreshold float64
}

func (r Request) withDefaults(now time.Time) Request {
	if r.WindowSize <= 0 {
		r.WindowSize = DefaultWindowSize
	}
	if r.EarliestStart.IsZero() {
		r.EarliestStart = now
	}
	if r.SlotSize <= 0 {
		r.SlotSize = DefaultSlotSize
	}
	if r.ImmediacyThreshold <= 0 {
		r.ImmediacyThreshold = DefaultImmediacyThreshold
	}
	return r
}

// validate rejects malformed requests (§4.5 "Rejections").
func (r Request) validate() error {
	if r.Region == "" {
		return fmt.Errorf("%w: region is empty", karbos.ErrValidation)
	}
	if r.EstimatedRuntime <= 0 {
		return fmt.Errorf("%w: estimated runtime must be positive", karbos.ErrValidation)
	}
	if !r.Deadline.After(time.Now()) {
		return fmt.Errorf("%w: deadline is not in the future", karbos.ErrValidation)
	}
	if r.EarliestStart.Add(r.EstimatedRuntime).After(r.Deadline) {
		return fmt.Errorf("%w: earliest start plus duration exceeds deadline", karbos.ErrValidation)
	}
	return nil
}

// Scheduler is C5.
type Scheduler struct {
	forecaster Forecaster
}

// New constructs a Scheduler.
func New(forecaster Forecaster) *Scheduler {
	return &Scheduler{forecaster: forecaster}
}

// slot is one quantized forecast bucket.
type slot struct {
	start     time.Time
	intensity float64
}

// window is a candidate run of consecutive slots.
type window struct {
	startIdx int
	mean     float64
}

// Schedule runs the sliding-window minimization for req and returns a
// SchedulingDecision.
func (s *Scheduler) Schedule(ctx context.Context, req Request) (karbos.SchedulingDecision, error) {
	now := time.Now()
	req = req.withDefaults(now)
	if err := req.validate(); err != nil {
		return karbos.SchedulingDecision{}, err
	}

	endTime := req.EarliestStart.Add(req.WindowSize)
	if req.Deadline.Before(endTime) {
		endTime = req.Deadline
	}

	forecast, err := s.forecaster.Range(ctx, req.Region, req.EarliestStart, endTime)
	if err != nil {
		return karbos.SchedulingDecision{}, err
	}
	if len(forecast) == 0 {
		return s.immediateDecision(ctx, req)
	}

	slots := quantize(forecast, req.SlotSize)
	if len(slots) == 0 {
		return s.immediateDecision(ctx, req)
	}

	windowSlots := int((req.EstimatedRuntime + req.SlotSize - 1) / req.SlotSize)
	if windowSlots < 1 {
		windowSlots = 1
	}
	if windowSlots > len(slots) {
		windowSlots = len(slots)
	}

	optimal, alternatives := slideWindow(slots, windowSlots)

	optimalStart := slots[optimal.startIdx].start
	currentIntensity := slots[0].intensity

	savings := currentIntensity - optimal.mean
	savingsPercent := 0.0
	if currentIntensity != 0 {
		savingsPercent = savings / currentIntensity * 100
	}

	immediate := optimalStart.Sub(now) < immediacyStartSlack && optimalStart.Sub(now) > -immediacyStartSlack ||
		savingsPercent < savingsPercentFloor ||
		currentIntensity < req.ImmediacyThreshold

	decision := karbos.SchedulingDecision{
		WorkItemID:        req.WorkItemID,
		ExpectedIntensity: optimal.mean,
		Immediate:         immediate,
		Savings:           savings,
		SavingsPercent:    savingsPercent,
		Alternatives:      toAlternativeWindows(slots, alternatives),
	}
	if immediate {
		decision.ScheduledTime = now
	} else {
		decision.ScheduledTime = optimalStart
	}
	return decision, nil
}

// immediateDecision handles the empty-forecast path (§4.5 step 3): a
// current-point read with zero savings.
func (s *Scheduler) immediateDecision(ctx context.Context, req Request) (karbos.SchedulingDecision, error) {
	now := time.Now()
	current, err := s.forecaster.Point(ctx, req.Region, now)
	if err != nil {
		return karbos.SchedulingDecision{}, err
	}
	return karbos.SchedulingDecision{
		WorkItemID:        req.WorkItemID,
		ScheduledTime:     now,
		ExpectedIntensity: current.Intensity,
		Immediate:         true,
		Savings:           0,
		SavingsPercent:    0,
	}, nil
}

// quantize buckets samples into consecutive slots of slotSize, averaging any
// samples that land in the same bucket.
func quantize(samples []karbos.IntensitySample, slotSize time.Duration) []slot {
	if len(samples) == 0 {
		return nil
	}
	sums := make(map[int64]float64)
	counts := make(map[int64]int)
	var order []int64
	for _, s := range samples {
		bucket := s.Instant.Truncate(slotSize).Unix()
		if _, seen := sums[bucket]; !seen {
			order = append(order, bucket)
		}
		sums[bucket] += s.Intensity
		counts[bucket]++
	}
	slots := make([]slot, 0, len(order))
	for _, bucket := range order {
		slots = append(slots, slot{
			start:     time.Unix(bucket, 0).UTC(),
			intensity: sums[bucket] / float64(counts[bucket]),
		})
	}
	return slots
}

// slideWindow finds the minimum-mean run of windowSlots consecutive slots and
// the near-optimal alternatives within alternativeBand of it (§4.5 step 5).
func slideWindow(slots []slot, windowSlots int) (window, []window) {
	best := window{startIdx: 0, mean: mean(slots[0:windowSlots])}
	var alternatives []window

	for i := 1; i+windowSlots <= len(slots); i++ {
		w := window{startIdx: i, mean: mean(slots[i : i+windowSlots])}
		switch {
		case w.mean < best.mean:
			best = w
			alternatives = filterAlternatives(append(alternatives, w), best.mean, best.startIdx)
		case w.mean-best.mean <= alternativeBand:
			alternatives = append(alternatives, w)
			if len(alternatives) > maxAlternatives {
				alternatives = alternatives[:maxAlternatives]
			}
		}
	}
	return best, filterAlternatives(alternatives, best.mean, best.startIdx)
}

// filterAlternatives drops any window no longer within alternativeBand of
// currentMin, excludes the chosen window itself (bestStartIdx), and caps the
// result at maxAlternatives, earliest-first.
func filterAlternatives(candidates []window, currentMin float64, bestStartIdx int) []window {
	var kept []window
	for _, w := range candidates {
		if w.startIdx == bestStartIdx {
			continue
		}
		if w.mean-currentMin <= alternativeBand {
			kept = append(kept, w)
		}
		if len(kept) == maxAlternatives {
			break
		}
	}
	return kept
}

func mean(s []slot) float64 {
	sum := lo.SumBy(s, func(x slot) float64 { return x.intensity })
	return sum / float64(len(s))
}

func toAlternativeWindows(slots []slot, windows []window) []karbos.AlternativeWindow {
	return lo.Map(windows, func(w window, _ int) karbos.AlternativeWindow {
		return karbos.AlternativeWindow{Start: slots[w.startIdx].start, Mean: w.mean}
	})
}
