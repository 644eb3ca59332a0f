// Package pool runs fetch workers over a batch of work items: a bounded
// worker pool drains the item queue, every item yields exactly one
// Outcome, and the collector folds the outcomes into an aggregate Report.
package pool

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/pokebatch/pokefetch/pkg/fetch"
	"github.com/pokebatch/pokefetch/pkg/logging"
)

var (
	itemsInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pokefetch_pool_items_inflight",
		Help: "Number of work items currently being fetched",
	})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pokefetch_pool_batch_duration_seconds",
		Help:    "Wall time of complete batch runs",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)

// Runner fetches a single work item. *fetch.Worker satisfies it; tests
// substitute their own.
type Runner interface {
	Run(ctx context.Context, item string, workerID int) fetch.Outcome
}

// Config holds the dispatcher configuration.
type Config struct {
	// MaxConcurrency is the number of pool workers. Values below 1 are
	// raised to 1.
	MaxConcurrency int

	// OutputDir is created before any worker starts.
	OutputDir string
}

// Dispatcher fans a batch of work items out over a bounded worker pool.
type Dispatcher struct {
	worker Runner
	config Config
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher around the given worker.
func NewDispatcher(worker Runner, cfg Config) (*Dispatcher, error) {
	if worker == nil {
		return nil, fmt.Errorf("worker is required")
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}

	return &Dispatcher{
		worker: worker,
		config: cfg,
		logger: logging.NewLogger("pool"),
	}, nil
}

// Run is an in-flight batch. Outcomes arrive on the channel as workers
// finish; Collect drains it.
type Run struct {
	items    []string
	outcomes chan fetch.Outcome
	started  time.Time
}

// Submit starts the worker pool over the ordered item list and returns
// immediately. The queue is buffered so submission never blocks on slow
// workers.
func (d *Dispatcher) Submit(ctx context.Context, items []string) (*Run, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("no work items")
	}
	if d.config.OutputDir != "" {
		if err := os.MkdirAll(d.config.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	run := &Run{
		items:    items,
		outcomes: make(chan fetch.Outcome, len(items)),
		started:  time.Now(),
	}

	queue := make(chan string, len(items))
	for _, item := range items {
		queue <- item
	}
	close(queue)

	workers := d.config.MaxConcurrency
	if workers > len(items) {
		workers = len(items)
	}

	d.logger.Info().
		Int("items", len(items)).
		Int("workers", workers).
		Msg("Starting batch")

	var wg sync.WaitGroup
	for id := 0; id < workers; id++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			d.workerLoop(ctx, workerID, queue, run.outcomes)
		}(id)
	}

	go func() {
		wg.Wait()
		close(run.outcomes)
	}()

	return run, nil
}

// workerLoop drains the queue until it is empty.
func (d *Dispatcher) workerLoop(ctx context.Context, workerID int, queue <-chan string, outcomes chan<- fetch.Outcome) {
	for item := range queue {
		itemsInflight.Inc()
		outcomes <- d.safeRun(ctx, item, workerID)
		itemsInflight.Dec()
	}
}

// safeRun keeps a worker panic from killing the pool: the panic becomes
// a terminal internal_error outcome for the item.
func (d *Dispatcher) safeRun(ctx context.Context, item string, workerID int) (outcome fetch.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Str("item", item).
				Int("worker_id", workerID).
				Interface("panic", r).
				Msg("Worker panicked")
			outcome = fetch.Outcome{
				Item:     item,
				WorkerID: workerID,
				Reason:   fetch.ReasonInternal,
				Err:      fmt.Errorf("worker panic: %v", r),
			}
		}
	}()

	return d.worker.Run(ctx, item, workerID)
}

// Collect joins the run: it drains the outcome channel until all workers
// finish, logs one line per outcome, and returns the aggregate report.
// Outcomes in the report follow the submitted item order.
func (d *Dispatcher) Collect(ctx context.Context, run *Run) *Report {
	byItem := make(map[string]fetch.Outcome, len(run.items))

	for outcome := range run.outcomes {
		if outcome.Success {
			d.logger.Info().
				Str("item", outcome.Item).
				Int("worker_id", outcome.WorkerID).
				Int("attempts", outcome.Attempts).
				Dur("elapsed", outcome.Elapsed).
				Str("path", outcome.Path).
				Msg("Item fetched")
		} else {
			d.logger.Error().
				Str("item", outcome.Item).
				Int("worker_id", outcome.WorkerID).
				Int("attempts", outcome.Attempts).
				Dur("elapsed", outcome.Elapsed).
				Str("reason", string(outcome.Reason)).
				Err(outcome.Err).
				Msg("Item failed")
		}
		byItem[outcome.Item] = outcome
	}

	report := &Report{
		Total:   len(run.items),
		Elapsed: time.Since(run.started),
	}
	for _, item := range run.items {
		outcome, ok := byItem[item]
		if !ok {
			continue
		}
		report.Outcomes = append(report.Outcomes, outcome)
		if outcome.Success {
			report.Successes++
		} else {
			report.Failures++
		}
	}

	batchDuration.Observe(report.Elapsed.Seconds())
	d.logger.Info().
		Int("total", report.Total).
		Int("successes", report.Successes).
		Int("failures", report.Failures).
		Float64("success_rate", report.SuccessRate()).
		Dur("elapsed", report.Elapsed).
		Msg("Batch complete")

	return report
}
