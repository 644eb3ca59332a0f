package pool

import (
	"fmt"
	"math"
	"time"

	"github.com/pokebatch/pokefetch/pkg/fetch"
)

// Report is the aggregate result of one batch run.
type Report struct {
	// Total is the number of submitted work items.
	Total int

	// Successes and Failures partition Total.
	Successes int
	Failures  int

	// Outcomes holds the per-item outcomes in submission order.
	Outcomes []fetch.Outcome

	// Elapsed is the wall time of the whole run.
	Elapsed time.Duration
}

// SuccessRate returns successes over total as a percentage, rounded to
// one decimal place.
func (r *Report) SuccessRate() float64 {
	if r.Total == 0 {
		return 0
	}
	rate := float64(r.Successes) / float64(r.Total) * 100
	return math.Round(rate*10) / 10
}

// ExitCode returns 0 when every item succeeded, 1 otherwise.
func (r *Report) ExitCode() int {
	if r.Failures > 0 {
		return 1
	}
	return 0
}

// Summary renders the human-readable run summary printed to stdout.
func (r *Report) Summary() string {
	s := fmt.Sprintf("Fetched %d/%d items (%.1f%%) in %s\n",
		r.Successes, r.Total, r.SuccessRate(), r.Elapsed.Round(time.Millisecond))

	for _, outcome := range r.Outcomes {
		if outcome.Success {
			s += fmt.Sprintf("  ok   %-20s attempts=%d -> %s\n",
				outcome.Item, outcome.Attempts, outcome.Path)
		} else {
			s += fmt.Sprintf("  FAIL %-20s attempts=%d reason=%s\n",
				outcome.Item, outcome.Attempts, outcome.Reason)
		}
	}
	return s
}
