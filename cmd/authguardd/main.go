// Command authguardd runs the authguard scheduler as a standalone worker.
// It is intended for deployments where job dispatch should survive
// independently of the request-serving processes; the same Guard can instead
// be embedded directly in an application.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jobtrail/authguard"
	"github.com/jobtrail/authguard/instrumentation"
	"github.com/jobtrail/authguard/scheduler"
	"github.com/jobtrail/authguard/storage"
	"github.com/jobtrail/authguard/storage/memory"
	"github.com/jobtrail/authguard/storage/valkey"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName: "authguardd",
		Enabled:     os.Getenv("AUTHGUARD_OTEL_ENABLED") == "true",
	})
	if err != nil {
		logger.Error("Failed to initialize instrumentation", "error", err)
		os.Exit(1)
	}

	rateLimitStore, jobStore, cleanup, err := buildStores(logger, inst)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	guard, err := authguard.New(authguard.Config{
		RateLimitStore:  rateLimitStore,
		JobStore:        jobStore,
		Executor:        &loggingExecutor{logger: logger},
		Logger:          logger,
		Instrumentation: inst,
		Scheduler: scheduler.Config{
			TickInterval: envDuration("AUTHGUARD_TICK_INTERVAL", 0),
		},
	})
	if err != nil {
		logger.Error("Failed to initialize guard", "error", err)
		os.Exit(1)
	}

	guard.Start()
	logger.Info("authguardd started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("authguardd shutting down")
	guard.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := inst.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Instrumentation shutdown failed", "error", err)
	}
}

// buildStores selects the storage backend from AUTHGUARD_STORAGE
// ("memory" or "valkey"). The memory backend reports its size gauges
// through inst; the valkey backend's counts live server-side.
func buildStores(logger *slog.Logger, inst *instrumentation.Instrumentation) (storage.RateLimitStore, storage.JobStore, func(), error) {
	switch os.Getenv("AUTHGUARD_STORAGE") {
	case "valkey":
		store, err := valkey.New(valkey.Config{
			Address:  os.Getenv("AUTHGUARD_VALKEY_ADDR"),
			Username: os.Getenv("AUTHGUARD_VALKEY_USERNAME"),
			Password: os.Getenv("AUTHGUARD_VALKEY_PASSWORD"),
			DB:       envInt("AUTHGUARD_VALKEY_DB", 0),
			Logger:   logger,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return store, store, store.Close, nil
	default:
		store := memory.New()
		store.SetLogger(logger)
		store.SetInstrumentation(inst)
		return store, store, store.Stop, nil
	}
}

// loggingExecutor stands in for the real notification sender: it logs what
// would be sent. Deployments wire their own Executor when embedding.
type loggingExecutor struct {
	logger *slog.Logger
}

func (e *loggingExecutor) Execute(ctx context.Context, jobType string, payload map[string]string) error {
	e.logger.Info("Dispatching notification job",
		"job_type", jobType,
		"payload_keys", len(payload))
	return nil
}

func logLevel() slog.Level {
	switch os.Getenv("AUTHGUARD_LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
