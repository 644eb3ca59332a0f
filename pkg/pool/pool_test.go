package pool

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pokebatch/pokefetch/internal/testutil"
	"github.com/pokebatch/pokefetch/pkg/fetch"
)

// stubRunner returns canned outcomes and records concurrency.
type stubRunner struct {
	mu         sync.Mutex
	seen       []string
	inflight   int32
	maxSeen    int32
	delay      time.Duration
	outcomeFor func(item string) fetch.Outcome
}

func (s *stubRunner) Run(ctx context.Context, item string, workerID int) fetch.Outcome {
	current := atomic.AddInt32(&s.inflight, 1)
	defer atomic.AddInt32(&s.inflight, -1)

	for {
		max := atomic.LoadInt32(&s.maxSeen)
		if current <= max || atomic.CompareAndSwapInt32(&s.maxSeen, max, current) {
			break
		}
	}

	s.mu.Lock()
	s.seen = append(s.seen, item)
	s.mu.Unlock()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	if s.outcomeFor != nil {
		outcome := s.outcomeFor(item)
		outcome.WorkerID = workerID
		return outcome
	}
	return fetch.Outcome{Item: item, WorkerID: workerID, Success: true, Attempts: 1}
}

func successOutcome(item string) fetch.Outcome {
	return fetch.Outcome{Item: item, Success: true, Attempts: 1}
}

func TestNewDispatcher_RequiresWorker(t *testing.T) {
	if _, err := NewDispatcher(nil, Config{MaxConcurrency: 1}); err == nil {
		t.Error("Expected error for nil worker")
	}
}

func TestDispatcher_Submit_EmptyBatch(t *testing.T) {
	dispatcher, err := NewDispatcher(&stubRunner{}, Config{MaxConcurrency: 2})
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}

	if _, err := dispatcher.Submit(context.Background(), nil); err == nil {
		t.Error("Expected error for empty batch")
	}
}

func TestDispatcher_OneOutcomePerItem(t *testing.T) {
	runner := &stubRunner{outcomeFor: successOutcome}
	dispatcher, err := NewDispatcher(runner, Config{MaxConcurrency: 3})
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}

	items := []string{"bulbasaur", "ivysaur", "venusaur", "charmander", "squirtle"}
	run, err := dispatcher.Submit(context.Background(), items)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	report := dispatcher.Collect(context.Background(), run)

	if report.Total != len(items) {
		t.Errorf("Total = %d, want %d", report.Total, len(items))
	}
	if len(report.Outcomes) != len(items) {
		t.Fatalf("Outcomes = %d, want %d", len(report.Outcomes), len(items))
	}
	if report.Successes != len(items) || report.Failures != 0 {
		t.Errorf("Successes/Failures = %d/%d, want %d/0",
			report.Successes, report.Failures, len(items))
	}

	// Outcomes follow submission order regardless of completion order
	for i, outcome := range report.Outcomes {
		if outcome.Item != items[i] {
			t.Errorf("Outcomes[%d].Item = %q, want %q", i, outcome.Item, items[i])
		}
	}
}

func TestDispatcher_BoundedConcurrency(t *testing.T) {
	runner := &stubRunner{outcomeFor: successOutcome, delay: 50 * time.Millisecond}
	dispatcher, err := NewDispatcher(runner, Config{MaxConcurrency: 2})
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}

	items := []string{"bulbasaur", "ivysaur", "venusaur", "charmander", "squirtle", "wartortle"}
	run, err := dispatcher.Submit(context.Background(), items)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	dispatcher.Collect(context.Background(), run)

	if max := atomic.LoadInt32(&runner.maxSeen); max > 2 {
		t.Errorf("Max concurrent workers = %d, want <= 2", max)
	}
}

func TestDispatcher_CreatesOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")

	dispatcher, err := NewDispatcher(&stubRunner{outcomeFor: successOutcome},
		Config{MaxConcurrency: 1, OutputDir: dir})
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}

	run, err := dispatcher.Submit(context.Background(), []string{"bulbasaur"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	dispatcher.Collect(context.Background(), run)

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("Output dir missing: %v", err)
	}
	if !info.IsDir() {
		t.Error("Output path is not a directory")
	}
}

func TestDispatcher_PanicBecomesOutcome(t *testing.T) {
	runner := &stubRunner{outcomeFor: func(item string) fetch.Outcome {
		if item == "ivysaur" {
			panic("boom")
		}
		return successOutcome(item)
	}}
	dispatcher, err := NewDispatcher(runner, Config{MaxConcurrency: 2})
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}

	run, err := dispatcher.Submit(context.Background(), []string{"bulbasaur", "ivysaur", "venusaur"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	report := dispatcher.Collect(context.Background(), run)

	if len(report.Outcomes) != 3 {
		t.Fatalf("Outcomes = %d, want 3 (panic must not lose an item)", len(report.Outcomes))
	}
	if report.Successes != 2 || report.Failures != 1 {
		t.Errorf("Successes/Failures = %d/%d, want 2/1", report.Successes, report.Failures)
	}

	failed := report.Outcomes[1]
	if failed.Item != "ivysaur" || failed.Reason != fetch.ReasonInternal {
		t.Errorf("Panicked item outcome = %+v, want ivysaur/internal_error", failed)
	}
}

// TestDispatcher_MixedBatch drives the real fetch worker end to end:
// two valid items against the mock API plus one identifier that fails
// validation.
func TestDispatcher_MixedBatch(t *testing.T) {
	mock := testutil.NewMockAPI()
	defer mock.Close()

	mock.SetResponse("/bulbasaur", testutil.NewJSONResponse(`{"name": "bulbasaur", "id": 1}`))
	mock.SetResponse("/ivysaur", testutil.NewJSONResponse(`{"name": "ivysaur", "id": 2}`))

	outputDir := t.TempDir()
	cfg := fetch.DefaultConfig(mock.URL(), outputDir)
	cfg.Retry.BaseDelay = 10 * time.Millisecond

	worker, err := fetch.New(cfg)
	if err != nil {
		t.Fatalf("fetch.New failed: %v", err)
	}

	dispatcher, err := NewDispatcher(worker, Config{MaxConcurrency: 3, OutputDir: outputDir})
	if err != nil {
		t.Fatalf("NewDispatcher failed: %v", err)
	}

	items := []string{"bulbasaur", "ivysaur", "xx"}
	run, err := dispatcher.Submit(context.Background(), items)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	report := dispatcher.Collect(context.Background(), run)

	if len(report.Outcomes) != 3 {
		t.Fatalf("Outcomes = %d, want 3", len(report.Outcomes))
	}
	if report.Successes != 2 || report.Failures != 1 {
		t.Errorf("Successes/Failures = %d/%d, want 2/1", report.Successes, report.Failures)
	}
	if report.ExitCode() != 1 {
		t.Errorf("ExitCode() = %d, want 1", report.ExitCode())
	}

	invalid := report.Outcomes[2]
	if invalid.Item != "xx" || invalid.Reason != fetch.ReasonInvalidIdentifier {
		t.Errorf("Invalid item outcome = %+v, want xx/invalid_identifier", invalid)
	}

	for _, item := range []string{"bulbasaur", "ivysaur"} {
		if _, err := os.Stat(filepath.Join(outputDir, item+".json")); err != nil {
			t.Errorf("Payload file for %s missing: %v", item, err)
		}
	}
	if _, err := os.Stat(filepath.Join(outputDir, "xx.json")); !os.IsNotExist(err) {
		t.Error("No payload file should exist for the invalid item")
	}
}
