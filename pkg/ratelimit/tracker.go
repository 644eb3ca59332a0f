// Package ratelimit coordinates backoff across fetch workers when the
// upstream API signals rate limiting (HTTP 429). A single 429 puts the
// whole pool on a shared cooldown instead of each worker retrying on its
// own schedule against an already throttled host.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitCooldownsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pokefetch_rate_limit_cooldowns_total",
		Help: "Total number of cooldowns triggered by 429 responses",
	})

	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pokefetch_rate_limit_waits_total",
		Help: "Total number of requests held back by an active cooldown",
	})

	rateLimitCooldownSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pokefetch_rate_limit_cooldown_seconds",
		Help:    "Cooldown duration applied after 429 responses",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})
)

// DefaultCooldown is applied when a 429 carries no usable Retry-After header.
const DefaultCooldown = 2 * time.Second

// Tracker holds the shared cooldown deadline for a worker pool.
// The zero deadline means no cooldown is active.
type Tracker struct {
	mu     sync.Mutex
	until  time.Time
	logger zerolog.Logger
}

// NewTracker creates a new cooldown tracker.
func NewTracker(logger zerolog.Logger) *Tracker {
	return &Tracker{logger: logger}
}

// NoteRateLimited records a 429 response. The cooldown deadline only moves
// forward: a shorter hold never shortens one already in effect.
func (t *Tracker) NoteRateLimited(cooldown time.Duration) {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}

	deadline := time.Now().Add(cooldown)

	t.mu.Lock()
	extended := deadline.After(t.until)
	if extended {
		t.until = deadline
	}
	t.mu.Unlock()

	if !extended {
		return
	}

	rateLimitCooldownsTotal.Inc()
	rateLimitCooldownSeconds.Observe(cooldown.Seconds())

	t.logger.Warn().
		Dur("cooldown", cooldown).
		Time("until", deadline).
		Msg("Rate limited by upstream - pausing all workers")
}

// Wait blocks until any active cooldown has passed or the context is done.
// It returns immediately when no cooldown is active.
func (t *Tracker) Wait(ctx context.Context) error {
	t.mu.Lock()
	remaining := time.Until(t.until)
	t.mu.Unlock()

	if remaining <= 0 {
		return nil
	}

	rateLimitWaitsTotal.Inc()
	t.logger.Debug().
		Dur("remaining", remaining).
		Msg("Holding request for active rate limit cooldown")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(remaining):
		return nil
	}
}

// Active reports whether a cooldown is currently in effect.
func (t *Tracker) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Now().Before(t.until)
}

// ParseRetryAfter extracts the server-requested hold from a Retry-After
// header. Both the delta-seconds and HTTP-date forms are supported.
// Returns 0 when the header is absent or unusable.
func ParseRetryAfter(headers http.Header) time.Duration {
	value := headers.Get("Retry-After")
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		d := time.Until(at)
		if d < 0 {
			return 0
		}
		return d
	}

	return 0
}
