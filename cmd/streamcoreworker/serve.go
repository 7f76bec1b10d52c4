package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nebulastream/streamcore/buffer"
	"github.com/nebulastream/streamcore/config"
	"github.com/nebulastream/streamcore/metrics"
	"github.com/nebulastream/streamcore/runtime"
	"github.com/nebulastream/streamcore/scheduler"
	"github.com/nebulastream/streamcore/tracing"
)

func serveCmd() *cobra.Command {
	var (
		httpAddr       string
		metricsNS      string
		tracingEnabled bool
		demoInterval   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the worker: scheduler, buffer pool, and HTTP query API",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := slog.New(slog.NewTextHandler(os.Stderr, nil))

			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			global, err := buffer.NewPool(cfg.BufferManager.BufferSize, cfg.BufferManager.NumBuffers)
			if err != nil {
				return fmt.Errorf("create buffer pool: %w", err)
			}
			defer func() {
				if err := global.Destroy(); err != nil {
					log.Warn("buffer pool teardown", "error", err)
				}
			}()

			sched, err := scheduler.New(
				global,
				cfg.WorkerPool.NumWorkers,
				cfg.WorkerPool.ReservedBuffersPerWorker,
				cfg.WorkerPool.DataQueueCapacity,
				cfg.WorkerPool.ReconfigQueueCapacity,
			)
			if err != nil {
				return fmt.Errorf("create scheduler: %w", err)
			}

			collector := metrics.New(metricsNS)
			sched.SetMetrics(collector)

			tracer, err := tracing.New(tracing.Config{
				Enabled:     tracingEnabled,
				ServiceName: "streamcoreworker",
				SampleRatio: 1.0,
			})
			if err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			sched.SetTracer(tracer)

			sched.Start()
			defer sched.Stop()

			mgr := runtime.NewManager(sched, global)

			demoID, err := mgr.RegisterQuery(buildDemoPlan(global, log, demoInterval))
			if err != nil {
				return fmt.Errorf("register demo query: %w", err)
			}
			if _, err := mgr.StartQuery(context.Background(), demoID); err != nil {
				return fmt.Errorf("start demo query: %w", err)
			}
			log.Info("demo query started", "query_id", demoID)

			mux := http.NewServeMux()
			registerAPI(mux, mgr, collector, log)

			srv := &http.Server{Addr: httpAddr, Handler: mux}
			go func() {
				log.Info("http api listening", "addr", httpAddr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server failed", "error", err)
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			log.Info("shutdown signal received")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("http shutdown", "error", err)
			}
			if err := tracer.Shutdown(shutdownCtx); err != nil {
				log.Warn("tracer shutdown", "error", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", ":8080", "HTTP API listen address")
	cmd.Flags().StringVar(&metricsNS, "metrics-namespace", "streamcore", "Prometheus metric namespace")
	cmd.Flags().BoolVar(&tracingEnabled, "tracing-enabled", false, "Enable OpenTelemetry span sampling")
	cmd.Flags().DurationVar(&demoInterval, "demo-interval", time.Second, "Tick interval for the built-in smoke-test pipeline")

	return cmd
}

// registerAPI mounts the POD-safe subset of the query lifecycle surface
// (spec §6) an HTTP client can drive: status/stop/destroy. registerQuery
// itself stays an in-process Go call (runtime.Manager.RegisterQuery) since
// a PlanSpec carries live Source/Sink/Stage interface values and closures
// that cannot cross a wire boundary as JSON; only an in-process caller
// that compiled the plan can supply one.
func registerAPI(mux *http.ServeMux, mgr *runtime.Manager, collector *metrics.Collector, log *slog.Logger) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.Handle("GET /metrics", collector.Handler())

	mux.HandleFunc("GET /queries/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		id := runtime.QueryID(r.PathValue("id"))
		status, err := mgr.QueryStatus(id)
		if err != nil {
			writeError(w, statusCodeFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, toQueryStatusResponse(status))
	})

	mux.HandleFunc("POST /queries/{id}/stop", func(w http.ResponseWriter, r *http.Request) {
		id := runtime.QueryID(r.PathValue("id"))
		mode := r.URL.Query().Get("mode")
		term := runtime.Graceful
		if mode == "hard" {
			term = runtime.Hard
		}
		if err := mgr.StopQuery(id, term); err != nil {
			writeError(w, statusCodeFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
	})

	mux.HandleFunc("DELETE /queries/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := runtime.QueryID(r.PathValue("id"))
		if err := mgr.DestroyQuery(id); err != nil {
			writeError(w, statusCodeFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "destroyed"})
	})
}

func statusCodeFor(err error) int {
	if errors.Is(err, runtime.ErrQueryNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}
