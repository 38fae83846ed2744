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
	"errors"
	"testing"
	"time"

	"github.com/Sambit-Mondal/Karbos/pkg/karbos"
)

// These cases are rejected before the service touches any of its wired
// dependencies (scheduler, store, queue), so a zero-value Service suffices.

func TestSubmitRejectsMissingRequiredFields(t *testing.T) {
	s := &Service{}
	_, err := s.Submit(context.Background(), SubmitRequest{})
	if !errors.Is(err, karbos.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestSubmitRejectsBadDeadlineFormat(t *testing.T) {
	s := &Service{}
	_, err := s.Submit(context.Background(), SubmitRequest{
		UserID:      "u",
		DockerImage: "img",
		Deadline:    "not-a-timestamp",
	})
	if err != karbos.ErrBadDeadlineFormat {
		t.Errorf("err = %v, want ErrBadDeadlineFormat", err)
	}
}

func TestSubmitRejectsDeadlineInPast(t *testing.T) {
	s := &Service{}
	_, err := s.Submit(context.Background(), SubmitRequest{
		UserID:      "u",
		DockerImage: "img",
		Deadline:    time.Now().Add(-time.Hour).Format(time.RFC3339),
	})
	if err != karbos.ErrDeadlineInPast {
		t.Errorf("err = %v, want ErrDeadlineInPast", err)
	}
}

func TestSubmitRejectsNonPositiveEstimatedDuration(t *testing.T) {
	s := &Service{}
	_, err := s.Submit(context.Background(), SubmitRequest{
		UserID:                   "u",
		DockerImage:              "img",
		Deadline:                 time.Now().Add(time.Hour).Format(time.RFC3339),
		EstimatedDurationSeconds: -5,
	})
	if !errors.Is(err, karbos.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation for a negative duration", err)
	}
}
