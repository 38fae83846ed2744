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

package karbos

import "testing"

func TestJobStatusIsValid(t *testing.T) {
	cases := []struct {
		status JobStatus
		want   bool
	}{
		{StatusPending, true},
		{StatusDelayed, true},
		{StatusRunning, true},
		{StatusCompleted, true},
		{StatusFailed, true},
		{JobStatus("BOGUS"), false},
		{JobStatus(""), false},
	}
	for _, c := range cases {
		if got := c.status.IsValid(); got != c.want {
			t.Errorf("JobStatus(%q).IsValid() = %v, want %v", c.status, got, c.want)
		}
	}
}

func TestJobStatusIsTerminal(t *testing.T) {
	cases := []struct {
		status JobStatus
		want   bool
	}{
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusPending, false},
		{StatusDelayed, false},
		{StatusRunning, false},
	}
	for _, c := range cases {
		if got := c.status.IsTerminal(); got != c.want {
			t.Errorf("JobStatus(%q).IsTerminal() = %v, want %v", c.status, got, c.want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to JobStatus
		want     bool
	}{
		{StatusPending, StatusDelayed, true},
		{StatusPending, StatusRunning, true},
		{StatusDelayed, StatusRunning, true},
		{StatusRunning, StatusCompleted, true},
		{StatusRunning, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusCompleted, StatusRunning, false},
		{StatusFailed, StatusPending, false},
		{StatusDelayed, StatusDelayed, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}
