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

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Sambit-Mondal/Karbos/pkg/carbonfetcher"
	"github.com/Sambit-Mondal/Karbos/pkg/jobstore"
	"github.com/Sambit-Mondal/Karbos/pkg/karbos"
	"github.com/Sambit-Mondal/Karbos/pkg/queue"
	"github.com/Sambit-Mondal/Karbos/pkg/scheduler"
)

// DefaultRegion is used when a submission omits one.
const DefaultRegion = "US-CAL-CISO"

const (
	listByUserMax = 100
	listAllMax    = 500
	forecastHours = 24
)

// SubmitRequest is the wire shape of the submission interface (§6).
type SubmitRequest struct {
	UserID                   string   `validate:"required"`
	DockerImage              string   `validate:"required"`
	Argv                     []string
	Deadline                 string `validate:"required"` // ISO-8601
	EstimatedDurationSeconds int    `validate:"omitempty,gt=0"`
	Region                   string
	DryRun                   bool
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// SubmitResponse is the wire shape of a successful submission.
type SubmitResponse struct {
	ID                uuid.UUID
	Status            karbos.JobStatus
	CreatedAt         time.Time
	ScheduledTime     time.Time
	Immediate         bool
	ExpectedIntensity float64
	CarbonSavings     float64
	Message           string
}

// Service wires C4, C5, C6, and C7 behind the three operations named in §6.
type Service struct {
	fetcher   *carbonfetcher.Fetcher
	scheduler *scheduler.Scheduler
	store     *jobstore.Store
	queue     *queue.DualQueue
	log       logr.Logger
}

// NewService constructs a Service.
func NewService(fetcher *carbonfetcher.Fetcher, sch *scheduler.Scheduler, store *jobstore.Store, q *queue.DualQueue, log logr.Logger) *Service {
	return &Service{fetcher: fetcher, scheduler: sch, store: store, queue: q, log: log}
}

// Submit validates req, asks the scheduler for a decision, and — unless
// DryRun is set — persists the WorkItem and enqueues it into the immediate
// or delayed lane (§6).
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	if err := validate.Struct(req); err != nil {
		return SubmitResponse{}, fmt.Errorf("%w: %v", karbos.ErrValidation, err)
	}
	deadline, err := time.Parse(time.RFC3339, req.Deadline)
	if err != nil {
		return SubmitResponse{}, karbos.ErrBadDeadlineFormat
	}
	if !deadline.After(time.Now()) {
		return SubmitResponse{}, karbos.ErrDeadlineInPast
	}

	region := req.Region
	if region == "" {
		region = DefaultRegion
	}
	estimatedRuntime := karbos.DefaultEstimatedRuntime
	if req.EstimatedDurationSeconds > 0 {
		estimatedRuntime = time.Duration(req.EstimatedDurationSeconds) * time.Second
	}

	itemID := uuid.New()
	decision, err := s.scheduler.Schedule(ctx, scheduler.Request{
		WorkItemID:       itemID,
		Region:           region,
		EstimatedRuntime: estimatedRuntime,
		Deadline:         deadline,
	})
	if err != nil {
		return SubmitResponse{}, err
	}

	resp := SubmitResponse{
		ID:                itemID,
		Status:            karbos.StatusPending,
		CreatedAt:         time.Now(),
		ScheduledTime:     decision.ScheduledTime,
		Immediate:         decision.Immediate,
		ExpectedIntensity: decision.ExpectedIntensity,
		CarbonSavings:     decision.Savings,
	}
	if decision.Immediate {
		resp.Message = "scheduled for immediate execution"
	} else {
		resp.Message = fmt.Sprintf("scheduled for %s to reduce carbon intensity", decision.ScheduledTime.Format(time.RFC3339))
	}
	if req.DryRun {
		return resp, nil
	}

	item := karbos.WorkItem{
		ID:               itemID,
		SubmitterKey:     req.UserID,
		DockerImage:      req.DockerImage,
		Argv:             req.Argv,
		SubmittedAt:      resp.CreatedAt,
		Deadline:         deadline,
		EstimatedRuntime: estimatedRuntime,
		Region:           region,
		ScheduledStart:   decision.ScheduledTime,
		Status:           karbos.StatusPending,
		CreatedAt:        resp.CreatedAt,
	}
	if !decision.Immediate {
		item.Status = karbos.StatusDelayed
	}
	if _, err := s.store.Create(ctx, item); err != nil {
		return SubmitResponse{}, err
	}
	resp.Status = item.Status

	entry := karbos.QueueEntry{
		WorkItemID:     itemID,
		DockerImage:    req.DockerImage,
		Argv:           req.Argv,
		ScheduledStart: decision.ScheduledTime,
	}
	if decision.Immediate {
		err = s.queue.EnqueueImmediate(ctx, entry)
	} else {
		err = s.queue.EnqueueDelayed(ctx, entry)
	}
	if err != nil {
		return SubmitResponse{}, err
	}
	return resp, nil
}

// GetByID returns a single WorkItem.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (karbos.WorkItem, error) {
	return s.store.GetByID(ctx, id)
}

// ListByUserResponse wraps ListByUser's result per §6.
type ListByUserResponse struct {
	UserID string
	Count  int
	Items  []karbos.WorkItem
}

// ListByUser returns up to limit items submitted by userID, clamped to
// listByUserMax.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) (ListByUserResponse, error) {
	if limit <= 0 || limit > listByUserMax {
		limit = listByUserMax
	}
	items, err := s.store.ListByUser(ctx, userID, limit)
	if err != nil {
		return ListByUserResponse{}, err
	}
	return ListByUserResponse{UserID: userID, Count: len(items), Items: items}, nil
}

// ListAll returns up to limit items, clamped to listAllMax.
func (s *Service) ListAll(ctx context.Context, limit int) ([]karbos.WorkItem, error) {
	if limit <= 0 || limit > listAllMax {
		limit = listAllMax
	}
	return s.store.ListAll(ctx, limit)
}

// ForecastResponse is the wire shape of the forecast interface (§6).
type ForecastResponse struct {
	Region           string
	Samples          []karbos.IntensitySample
	CurrentIntensity *float64
	OptimalInstant   *time.Time
}

// Forecast returns up to forecastHours of intensity samples for region.
func (s *Service) Forecast(ctx context.Context, region string) (ForecastResponse, error) {
	if region == "" {
		region = DefaultRegion
	}
	now := time.Now()
	samples, err := s.fetcher.Range(ctx, region, now, now.Add(forecastHours*time.Hour))
	if err != nil {
		return ForecastResponse{}, err
	}
	resp := ForecastResponse{Region: region, Samples: samples}
	if len(samples) == 0 {
		return resp, nil
	}

	current := samples[0].Intensity
	resp.CurrentIntensity = &current

	best := samples[0]
	for _, sample := range samples {
		if sample.Intensity < best.Intensity {
			best = sample
		}
	}
	optimal := best.Instant
	resp.OptimalInstant = &optimal
	return resp, nil
}
