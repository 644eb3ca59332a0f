// Package fetch implements the per-item fetch worker: identifier
// validation, connectivity preflight, the bounded retry loop with
// classified backoff, and atomic payload persistence. Every failure is
// converted into a typed Outcome at the worker boundary.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pokebatch/pokefetch/pkg/cache"
	"github.com/pokebatch/pokefetch/pkg/logging"
	"github.com/pokebatch/pokefetch/pkg/ratelimit"
)

// Config holds the worker configuration. All fields are read-only once
// the worker is built; workers share nothing mutable.
type Config struct {
	// BaseURL is the API endpoint prefix; items are fetched from
	// BaseURL/<identifier>.
	BaseURL string

	// OutputDir is where successful payloads are written, one file per item.
	OutputDir string

	// UserAgent header sent with every request.
	UserAgent string

	// RequestTimeout bounds each GET attempt.
	RequestTimeout time.Duration

	// PreflightTimeout bounds the connectivity probe (shorter than
	// RequestTimeout so gross unavailability fails fast).
	PreflightTimeout time.Duration

	// Retry configures the bounded attempt loop.
	Retry RetryConfig

	// CacheNamespace separates this endpoint's entries in Redis.
	CacheNamespace string
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, outputDir string) Config {
	return Config{
		BaseURL:          baseURL,
		OutputDir:        outputDir,
		UserAgent:        "pokefetch/0.1.0",
		RequestTimeout:   30 * time.Second,
		PreflightTimeout: 5 * time.Second,
		Retry:            DefaultRetryConfig(),
		CacheNamespace:   "pokemon",
	}
}

// Worker fetches single work items. One Worker is shared by all pool
// goroutines; Run is safe for concurrent use.
type Worker struct {
	httpClient *http.Client
	config     Config
	host       string // host:port dialed by the preflight probe
	limiter    *ratelimit.Tracker
	store      *cache.Store
	logger     zerolog.Logger
}

// New creates a new fetch worker.
func New(cfg Config) (*Worker, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.OutputDir == "" {
		return nil, fmt.Errorf("output dir is required")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.PreflightTimeout <= 0 {
		cfg.PreflightTimeout = 5 * time.Second
	}

	host, err := preflightHost(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	return &Worker{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		config: cfg,
		host:   host,
		logger: logging.NewLogger("fetch"),
	}, nil
}

// preflightHost derives the host:port the connectivity probe dials.
func preflightHost(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid base url %q", baseURL)
	}

	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "https":
			host += ":443"
		default:
			host += ":80"
		}
	}
	return host, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (w *Worker) SetHTTPClient(client *http.Client) {
	w.httpClient = client
}

// SetLimiter attaches a shared rate limit cooldown tracker.
func (w *Worker) SetLimiter(limiter *ratelimit.Tracker) {
	w.limiter = limiter
}

// SetStore attaches an optional payload cache.
func (w *Worker) SetStore(store *cache.Store) {
	w.store = store
}

// Run fetches one work item and returns its terminal outcome. Failures
// never propagate as errors or panics past this boundary.
func (w *Worker) Run(ctx context.Context, item string, workerID int) Outcome {
	start := time.Now()
	logger := w.logger.With().Str("item", item).Int("worker_id", workerID).Logger()

	if !ValidIdentifier(item) {
		logger.Error().Msg("Identifier failed validation - skipping")
		return w.failed(item, workerID, 0, ReasonInvalidIdentifier,
			fmt.Errorf("%w: %q", ErrInvalidIdentifier, item), start)
	}

	var lastErr error
	var lastClass ErrorClass

	maxAttempts := w.config.Retry.MaxAttempts
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// Hold for any pool-wide cooldown from a prior 429
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				return w.failed(item, workerID, attempt-1, ReasonCancelled,
					fmt.Errorf("%w: %v", ErrCancelled, err), start)
			}
		}

		if err := w.preflight(ctx); err != nil {
			lastErr = fmt.Errorf("preflight: %w", err)
			lastClass = ErrorClassNetwork
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			logger.Warn().Err(err).Int("attempt", attempt).Msg("Connectivity preflight failed")

			if attempt >= maxAttempts {
				return w.failed(item, workerID, attempt, ReasonNetworkUnavailable,
					fmt.Errorf("%w: %v", ErrNetworkUnavailable, err), start)
			}
			if err := w.sleep(ctx, ErrorClassNetwork, attempt, 0, logger); err != nil {
				return w.failed(item, workerID, attempt, ReasonCancelled, err, start)
			}
			continue
		}

		class, hold, err := w.attempt(ctx, item, logger)
		if err == nil {
			if attempt > 1 {
				logger.Info().Int("attempt", attempt).Msg("Fetch succeeded after retry")
			}
			outcomesTotal.WithLabelValues("success").Inc()
			return Outcome{
				Item:     item,
				WorkerID: workerID,
				Success:  true,
				Attempts: attempt,
				Path:     w.outputPath(item),
				Elapsed:  time.Since(start),
			}
		}

		lastErr = err
		lastClass = class

		if !shouldRetry(class) {
			logger.Error().Err(err).Int("attempt", attempt).Msg("Item not found upstream")
			return w.failed(item, workerID, attempt, ReasonNotFound, err, start)
		}

		logger.Warn().
			Err(err).
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Msg("Attempt failed")

		if attempt < maxAttempts {
			retriesTotal.WithLabelValues(string(class)).Inc()
			if err := w.sleep(ctx, class, attempt, hold, logger); err != nil {
				return w.failed(item, workerID, attempt, ReasonCancelled, err, start)
			}
		}
	}

	// All attempts exhausted - make sure no stale payload survives
	w.removeOutput(item, logger)
	logger.Error().
		Err(lastErr).
		Str("error_class", string(lastClass)).
		Int("max_attempts", maxAttempts).
		Msg("Retry attempts exhausted")

	return w.failed(item, workerID, maxAttempts, ReasonRetriesExhausted,
		fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, maxAttempts, lastErr), start)
}

// failed builds a terminal failure outcome and records it.
func (w *Worker) failed(item string, workerID, attempts int, reason Reason, err error, start time.Time) Outcome {
	outcomesTotal.WithLabelValues(string(reason)).Inc()
	return Outcome{
		Item:     item,
		WorkerID: workerID,
		Reason:   reason,
		Attempts: attempts,
		Err:      err,
		Elapsed:  time.Since(start),
	}
}

// preflight dials the API host to fail fast on gross network
// unavailability before spending a full request timeout.
func (w *Worker) preflight(ctx context.Context) error {
	dialer := net.Dialer{Timeout: w.config.PreflightTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", w.host)
	if err != nil {
		return err
	}
	return conn.Close()
}

// attempt performs a single GET. On failure it returns the error class
// and, for 429 responses, the server-requested hold.
func (w *Worker) attempt(ctx context.Context, item string, logger zerolog.Logger) (ErrorClass, time.Duration, error) {
	reqCtx, cancel := context.WithTimeout(ctx, w.config.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, w.itemURL(item), nil)
	if err != nil {
		return ErrorClassNetwork, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", w.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	// Conditional request when we hold a cached payload for this item
	var cached *cache.Entry
	if w.store != nil {
		entry, err := w.store.Get(ctx, w.cacheKey(item))
		if err != nil && err != cache.ErrCacheMiss {
			logger.Warn().Err(err).Msg("Cache get error")
		}
		cached = entry
		if cache.ShouldMakeConditionalRequest(cached) {
			cache.AddConditionalHeaders(req, cached)
			cache.ConditionalRequestsSent.Inc()
			logger.Debug().Str("etag", cached.ETag).Msg("Making conditional request")
		}
	}

	reqStart := time.Now()
	resp, err := w.httpClient.Do(req)
	requestDuration.Observe(time.Since(reqStart).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues("network_error").Inc()
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return ErrorClassNetwork, 0, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	switch {
	case resp.StatusCode == http.StatusNotModified && cached != nil:
		cache.NotModifiedResponses.Inc()
		logger.Debug().Msg("304 Not Modified - using cached payload")

		if expiresStr := resp.Header.Get("Expires"); expiresStr != "" {
			if newExpires, err := http.ParseTime(expiresStr); err == nil {
				if err := w.store.UpdateTTL(ctx, w.cacheKey(item), newExpires); err != nil {
					logger.Warn().Err(err).Msg("Failed to update cache TTL")
				}
			}
		}

		if err := w.persist(item, cached.Data); err != nil {
			errorsTotal.WithLabelValues(string(ErrorClassStorage)).Inc()
			return ErrorClassStorage, 0, err
		}
		return "", 0, nil

	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return ErrorClassNetwork, 0, fmt.Errorf("read body: %w", err)
		}

		// A 200 whose body does not parse is retried like any transient
		// failure; the next attempt refetches from scratch.
		if !json.Valid(body) {
			errorsTotal.WithLabelValues(string(ErrorClassMalformed)).Inc()
			return ErrorClassMalformed, 0, &APIError{
				StatusCode: resp.StatusCode,
				Class:      ErrorClassMalformed,
				Message:    "malformed response body",
			}
		}

		if err := w.persist(item, body); err != nil {
			errorsTotal.WithLabelValues(string(ErrorClassStorage)).Inc()
			return ErrorClassStorage, 0, err
		}

		if w.store != nil {
			entry := cache.NewEntry(resp, body)
			if err := w.store.Set(ctx, w.cacheKey(item), entry); err != nil {
				logger.Warn().Err(err).Msg("Failed to cache payload")
			}
		}
		return "", 0, nil

	default:
		class := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()

		var hold time.Duration
		if class == ErrorClassRateLimit {
			hold = ratelimit.ParseRetryAfter(resp.Header)
			if w.limiter != nil {
				w.limiter.NoteRateLimited(hold)
			}
		}

		return class, hold, &APIError{
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    resp.Status,
		}
	}
}

// sleep waits out the backoff for a failed attempt, honoring a
// server-requested hold when it is longer. Returns ErrCancelled when the
// context ends first.
func (w *Worker) sleep(ctx context.Context, class ErrorClass, attempt int, hold time.Duration, logger zerolog.Logger) error {
	delay := w.config.Retry.backoffFor(class, attempt)
	if hold > delay {
		delay = hold
	}

	retryBackoffSeconds.WithLabelValues(string(class)).Observe(delay.Seconds())
	logger.Debug().
		Str("error_class", string(class)).
		Int("attempt", attempt).
		Dur("backoff", delay).
		Msg("Backing off before next attempt")

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	case <-time.After(delay):
		return nil
	}
}

// persist writes the payload atomically: temp file first, then rename
// into place. The deferred remove is the cleanup finalizer for every
// failure path; after a successful rename it is a no-op. Items are
// disjoint, so temp names never collide across workers.
func (w *Worker) persist(item string, payload []byte) error {
	path := w.outputPath(item)
	tmp := path + ".tmp"
	defer os.Remove(tmp)

	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalize payload: %w", err)
	}
	return nil
}

// removeOutput drops any payload file for the item so a terminal failure
// never leaves a stale artifact behind.
func (w *Worker) removeOutput(item string, logger zerolog.Logger) {
	if err := os.Remove(w.outputPath(item)); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Msg("Failed to remove stale payload")
	}
}

func (w *Worker) outputPath(item string) string {
	return filepath.Join(w.config.OutputDir, item+".json")
}

func (w *Worker) itemURL(item string) string {
	return strings.TrimRight(w.config.BaseURL, "/") + "/" + item
}

func (w *Worker) cacheKey(item string) cache.Key {
	return cache.Key{Identifier: item, Namespace: w.config.CacheNamespace}
}
