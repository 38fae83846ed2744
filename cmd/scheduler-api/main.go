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

// Command scheduler-api runs the submission/inspection/forecast surface: a
// thin net/http wiring of the scheduling core, not itself part of the
// specified components.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/Sambit-Mondal/Karbos/internal/config"
	"github.com/Sambit-Mondal/Karbos/internal/env"
	"github.com/Sambit-Mondal/Karbos/internal/klog"
	"github.com/Sambit-Mondal/Karbos/internal/metrics"
	"github.com/Sambit-Mondal/Karbos/internal/migrations"
	"github.com/Sambit-Mondal/Karbos/pkg/breaker"
	"github.com/Sambit-Mondal/Karbos/pkg/carbonfetcher"
	"github.com/Sambit-Mondal/Karbos/pkg/carbonprovider"
	"github.com/Sambit-Mondal/Karbos/pkg/intensitycache"
	"github.com/Sambit-Mondal/Karbos/pkg/jobstore"
	"github.com/Sambit-Mondal/Karbos/pkg/karbos"
	"github.com/Sambit-Mondal/Karbos/pkg/queue"
	"github.com/Sambit-Mondal/Karbos/pkg/scheduler"
)

const component = "scheduler-api"

func main() {
	httpPort := flag.Int("http-port", env.Int("HTTP_PORT", 8080), "The port the submission/inspection/forecast surface binds to")
	metricsPort := flag.Int("metrics-port", env.Int("METRICS_PORT", 9090), "The port the Prometheus metrics endpoint binds to")
	providerBaseURL := flag.String("provider-base-url", env.String("PROVIDER_BASE_URL", ""), "Base URL of the zone-keyed carbon intensity provider")
	providerAPIKey := flag.String("provider-api-key", env.String("PROVIDER_CREDENTIAL", ""), "API key for the carbon intensity provider")
	flag.Parse()

	cfg := config.Load()
	log := klog.New(component)

	db, err := sqlx.Connect("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Error(err, "failed to connect to postgres")
		return
	}
	defer db.Close()
	if err := migrations.Up(db.DB); err != nil {
		log.Error(err, "failed to apply migrations")
		return
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	cache := intensitycache.New(intensitycache.NewPostgresStore(db), intensitycache.WithFreshnessBound(cfg.CacheTTL))
	provider := carbonprovider.NewZoneProvider(*providerBaseURL, *providerAPIKey)
	cb := breaker.New(breaker.Config{
		MaxFailures: cfg.CircuitMaxFailures,
		Timeout:     cfg.CircuitTimeout,
	}, log)
	fetcher := carbonfetcher.New(cache, cb, provider, log)
	sched := scheduler.New(fetcher)
	store := jobstore.New(db)
	q := queue.New(rdb)

	svc := NewService(fetcher, sched, store, q, log)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /submit", svc.handleSubmit)
	mux.HandleFunc("GET /jobs/{id}", svc.handleGetByID)
	mux.HandleFunc("GET /jobs", svc.handleListByUser)
	mux.HandleFunc("GET /jobs/all", svc.handleListAll)
	mux.HandleFunc("GET /forecast", svc.handleForecast)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{Addr: fmt.Sprintf(":%d", *httpPort), Handler: mux}
	metricsServer := &http.Server{Addr: fmt.Sprintf(":%d", *metricsPort), Handler: metricsMux}

	go func() {
		log.Info("serving metrics", "port", *metricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "metrics server failed")
		}
	}()

	go func() {
		log.Info("serving submission/inspection/forecast surface", "port", *httpPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "api server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, karbos.ErrValidation), errors.Is(err, karbos.ErrBadDeadlineFormat), errors.Is(err, karbos.ErrDeadlineInPast):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, karbos.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, karbos.ErrBrokerUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func (s *Service) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", karbos.ErrValidation, err))
		return
	}
	resp, err := s.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Service) handleGetByID(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUID(r.PathValue("id"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", karbos.ErrValidation, err))
		return
	}
	item, err := s.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Service) handleListByUser(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	limit := queryInt(r, "limit", listByUserMax)
	resp, err := s.ListByUser(r.Context(), userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleListAll(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", listAllMax)
	items, err := s.ListAll(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Service) handleForecast(w http.ResponseWriter, r *http.Request) {
	region := r.URL.Query().Get("region")
	resp, err := s.Forecast(r.Context(), region)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
