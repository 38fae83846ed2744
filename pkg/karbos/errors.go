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

import "errors"

// Sentinel errors for the taxonomy in the error-handling design. Call sites
// wrap these with serrors.Wrap to attach structured context; callers compare
// with errors.Is against the sentinel, never against the wrapped string.
var (
	// Validation
	ErrValidation       = errors.New("validation failed")
	ErrBadDeadlineFormat = errors.New("deadline is not a valid ISO-8601 instant")
	ErrDeadlineInPast   = errors.New("deadline is not in the future")

	// Provider (C1), all treated as transient by the core
	ErrProviderUnreachable = errors.New("carbon provider unreachable")
	ErrProviderAuthFailed  = errors.New("carbon provider authentication failed")
	ErrProviderRateLimited = errors.New("carbon provider rate limited")
	ErrProviderMalformed   = errors.New("carbon provider returned malformed data")

	// Store (C6)
	ErrNotFound                = errors.New("record not found")
	ErrStoreWriteFailed        = errors.New("store write failed")
	ErrStoreTransitionRejected = errors.New("status transition rejected")

	// Broker (C7)
	ErrBrokerUnavailable = errors.New("broker unavailable")

	// Executor (C9)
	ErrImageUnavailable      = errors.New("container image unavailable")
	ErrRuntimeUnreachable    = errors.New("container runtime unreachable")
	ErrContainerCreateFailed = errors.New("container create failed")
	ErrContainerStartFailed  = errors.New("container start failed")
	ErrLogStreamBroken       = errors.New("container log stream broken")
	ErrCanceled              = errors.New("operation canceled")
)

// IsTransientProviderError reports whether err is one of the four provider
// failure kinds the core always treats as transient (§7: ProviderPermanent
// is folded into ProviderTransient handling, no special-casing).
func IsTransientProviderError(err error) bool {
	return errors.Is(err, ErrProviderUnreachable) ||
		errors.Is(err, ErrProviderAuthFailed) ||
		errors.Is(err, ErrProviderRateLimited) ||
		errors.Is(err, ErrProviderMalformed)
}
