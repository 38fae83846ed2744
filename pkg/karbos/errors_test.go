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

import (
	"errors"
	"testing"
)

func TestIsTransientProviderError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"unreachable", ErrProviderUnreachable, true},
		{"auth failed", ErrProviderAuthFailed, true},
		{"rate limited", ErrProviderRateLimited, true},
		{"malformed", ErrProviderMalformed, true},
		{"wrapped", errors.Join(ErrProviderUnreachable, errors.New("dial tcp: timeout")), true},
		{"unrelated", ErrNotFound, false},
		{"nil", nil, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := IsTransientProviderError(c.err); got != c.want {
				t.Errorf("IsTransientProviderError(%v) = %v, want %v", c.err, got, c.want)
			}
		})
	}
}
