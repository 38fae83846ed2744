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

// Command worker runs the worker-pool process: the consumer side of C7, C8,
// C9, and C10.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/Sambit-Mondal/Karbos/internal/config"
	"github.com/Sambit-Mondal/Karbos/internal/env"
	"github.com/Sambit-Mondal/Karbos/internal/klog"
	"github.com/Sambit-Mondal/Karbos/internal/metrics"
	"github.com/Sambit-Mondal/Karbos/pkg/executor"
	"github.com/Sambit-Mondal/Karbos/pkg/jobstore"
	"github.com/Sambit-Mondal/Karbos/pkg/promoter"
	"github.com/Sambit-Mondal/Karbos/pkg/queue"
	"github.com/Sambit-Mondal/Karbos/pkg/workerpool"
)

const component = "worker"

func main() {
	poolSize := flag.Int("pool-size", env.Int("POOL_SIZE", workerpool.DefaultPoolSize), "The number of concurrent consumer loops")
	metricsPort := flag.Int("metrics-port", env.Int("METRICS_PORT", 9091), "The port the Prometheus metrics endpoint binds to")
	flag.Parse()

	cfg := config.Load()
	log := klog.New(component)

	db, err := sqlx.Connect("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Error(err, "failed to connect to postgres")
		return
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	store := jobstore.New(db)
	q := queue.New(rdb)

	runner, err := executor.New()
	if err != nil {
		log.Error(err, "failed to connect to container runtime")
		return
	}

	pool := workerpool.New(q, store, runner, log).WithSize(*poolSize)
	prom := promoter.New(q, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: fmt.Sprintf(":%d", *metricsPort), Handler: metricsMux}

	go func() {
		log.Info("serving metrics", "port", *metricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "metrics server failed")
		}
	}()

	go prom.Run(ctx)

	log.Info("worker pool starting", "size", *poolSize)
	pool.Run(ctx)
}
