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

package executor

import "testing"

func TestDefaultLimits(t *testing.T) {
	l := DefaultLimits()
	if l.MemoryBytes != DefaultMemoryLimitBytes {
		t.Errorf("MemoryBytes = %d, want %d", l.MemoryBytes, DefaultMemoryLimitBytes)
	}
	if l.CPUPeriod != DefaultCPUPeriod || l.CPUQuota != DefaultCPUQuota {
		t.Errorf("CPU period/quota = %d/%d, want %d/%d", l.CPUPeriod, l.CPUQuota, DefaultCPUPeriod, DefaultCPUQuota)
	}
}

func TestJoinStreams(t *testing.T) {
	cases := []struct {
		name           string
		stdout, stderr string
		want           string
	}{
		{"both empty", "", "", ""},
		{"stdout only", "out", "", "out"},
		{"stderr only", "", "err", "err"},
		{"both present", "out", "err", "out\n---\nerr"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := joinStreams(c.stdout, c.stderr); got != c.want {
				t.Errorf("joinStreams(%q, %q) = %q, want %q", c.stdout, c.stderr, got, c.want)
			}
		})
	}
}
