package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pokebatch/pokefetch/internal/config"
	"github.com/pokebatch/pokefetch/pkg/cache"
	"github.com/pokebatch/pokefetch/pkg/fetch"
	"github.com/pokebatch/pokefetch/pkg/logging"
	"github.com/pokebatch/pokefetch/pkg/pool"
	"github.com/pokebatch/pokefetch/pkg/ratelimit"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	// .env is optional; real env vars win either way
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}

	logger, logCloser, err := logging.Setup(logging.Config{
		Level:    logging.LogLevel(cfg.Log.Level),
		Pretty:   cfg.Log.Pretty,
		FilePath: cfg.Log.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		return 1
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("env", cfg.Env).
		Str("base_url", cfg.API.BaseURL).
		Int("items", len(cfg.Fetch.Items)).
		Int("max_concurrency", cfg.Fetch.MaxConcurrency).
		Msg("Starting pokefetch")

	worker, err := buildWorker(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to build fetch worker")
		return 1
	}

	if cfg.Metrics.Addr != "" {
		startMetricsServer(cfg.Metrics.Addr, logger)
	}

	dispatcher, err := pool.NewDispatcher(worker, pool.Config{
		MaxConcurrency: cfg.Fetch.MaxConcurrency,
		OutputDir:      cfg.Output.Dir,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to build dispatcher")
		return 1
	}

	batch, err := dispatcher.Submit(ctx, cfg.Fetch.Items)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to submit batch")
		return 1
	}

	report := dispatcher.Collect(ctx, batch)
	fmt.Print(report.Summary())

	return report.ExitCode()
}

// buildWorker wires the fetch worker with the shared cooldown tracker
// and, when Redis is configured, the payload cache. A Redis that does
// not answer is logged and skipped; caching is an optimization, not a
// requirement.
func buildWorker(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*fetch.Worker, error) {
	workerCfg := fetch.DefaultConfig(cfg.API.BaseURL, cfg.Output.Dir)
	workerCfg.UserAgent = cfg.API.UserAgent
	workerCfg.RequestTimeout = cfg.API.RequestTimeout
	workerCfg.PreflightTimeout = cfg.API.PreflightTimeout
	workerCfg.Retry.MaxAttempts = cfg.Fetch.MaxAttempts
	workerCfg.Retry.BaseDelay = cfg.Fetch.RetryDelay
	workerCfg.Retry.MaxDelay = cfg.Fetch.MaxDelay

	worker, err := fetch.New(workerCfg)
	if err != nil {
		return nil, err
	}

	worker.SetLimiter(ratelimit.NewTracker(logging.NewLogger("ratelimit")))

	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).
				Msg("Redis unreachable - running without payload cache")
			redisClient.Close()
		} else {
			logger.Info().Str("addr", cfg.Redis.Addr).Msg("Payload cache enabled")
			worker.SetStore(cache.NewStore(redisClient))
		}
	}

	return worker, nil
}

// startMetricsServer exposes /metrics and /health while the run is in
// flight. It lives as long as the process does; no graceful shutdown
// needed for a batch tool.
func startMetricsServer(addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", healthHandler)

	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}
