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

// Package config declares every tunable named in the timeout table (§5) and
// the executor resource defaults (§4.9), defaulted through internal/env.
// Loading from a flag parser or config file is out of scope; this package
// only defines the struct and its defaults.
package config

import (
	"time"

	"github.com/Sambit-Mondal/Karbos/internal/env"
)

// Config is the process-wide set of tunables for both the API and worker
// roles.
type Config struct {
	PostgresDSN string
	RedisAddr   string

	PoolSize          int
	PoolPollInterval  time.Duration
	PoolJobDeadline   time.Duration
	PoolDrainBudget   time.Duration
	HeartbeatPeriod   time.Duration
	HeartbeatTTL      time.Duration

	PromoterTickInterval time.Duration

	ProviderCallTimeout time.Duration
	StoreCallTimeout    time.Duration
	BrokerCallTimeout   time.Duration

	CacheTTL          time.Duration
	CircuitTimeout    time.Duration
	CircuitResetTimeout time.Duration
	CircuitMaxFailures uint32

	ExecutorCleanupTimeout time.Duration
	ExecutorMemoryBytes    int64
	ExecutorCPUPeriod      int64
	ExecutorCPUQuota       int64

	MetricsPort int
}

// Load reads Config from the process environment, falling back to the
// defaults named throughout §5 and §4.9 of the specification.
func Load() Config {
	return Config{
		PostgresDSN: env.String("POSTGRES_DSN", "postgres://localhost:5432/karbos?sslmode=disable"),
		RedisAddr:   env.String("REDIS_ADDR", "localhost:6379"),

		PoolSize:         env.Int("POOL_SIZE", 5),
		PoolPollInterval: env.Duration("POOL_POLL_INTERVAL", 2*time.Second),
		PoolJobDeadline:  env.Duration("POOL_JOB_DEADLINE", 10*time.Minute),
		PoolDrainBudget:  env.Duration("POOL_DRAIN_BUDGET", 30*time.Second),
		HeartbeatPeriod:  env.Duration("HEARTBEAT_PERIOD", 10*time.Second),
		HeartbeatTTL:     env.Duration("HEARTBEAT_TTL", 15*time.Second),

		PromoterTickInterval: env.Duration("PROMOTER_TICK_INTERVAL", 10*time.Second),

		ProviderCallTimeout: env.Duration("PROVIDER_CALL_TIMEOUT", 10*time.Second),
		StoreCallTimeout:    env.Duration("STORE_CALL_TIMEOUT", 5*time.Second),
		BrokerCallTimeout:   env.Duration("BROKER_CALL_TIMEOUT", 3*time.Second),

		CacheTTL:            env.Duration("CACHE_TTL", time.Hour),
		CircuitTimeout:      env.Duration("CIRCUIT_TIMEOUT", 30*time.Second),
		CircuitResetTimeout: env.Duration("CIRCUIT_RESET_TIMEOUT", 10*time.Second),
		CircuitMaxFailures:  uint32(env.Int("CIRCUIT_MAX_FAILURES", 5)),

		ExecutorCleanupTimeout: env.Duration("EXECUTOR_CLEANUP_TIMEOUT", 10*time.Second),
		ExecutorMemoryBytes:    int64(env.Int("EXECUTOR_MEMORY_BYTES", 512*1024*1024)),
		ExecutorCPUPeriod:      int64(env.Int("EXECUTOR_CPU_PERIOD", 100000)),
		ExecutorCPUQuota:       int64(env.Int("EXECUTOR_CPU_QUOTA", 50000)),

		MetricsPort: env.Int("METRICS_PORT", 8080),
	}
}
