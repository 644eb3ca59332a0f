package pool

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pokebatch/pokefetch/pkg/fetch"
)

func TestReport_SuccessRate(t *testing.T) {
	tests := []struct {
		name      string
		successes int
		total     int
		want      float64
	}{
		{"all succeeded", 3, 3, 100.0},
		{"none succeeded", 0, 3, 0.0},
		{"two of three", 2, 3, 66.7},
		{"one of three", 1, 3, 33.3},
		{"one of seven", 1, 7, 14.3},
		{"five of six", 5, 6, 83.3},
		{"empty batch", 0, 0, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := &Report{Total: tt.total, Successes: tt.successes}
			if got := report.SuccessRate(); got != tt.want {
				t.Errorf("SuccessRate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReport_ExitCode(t *testing.T) {
	clean := &Report{Total: 2, Successes: 2}
	if code := clean.ExitCode(); code != 0 {
		t.Errorf("ExitCode() = %d, want 0 when all succeeded", code)
	}

	dirty := &Report{Total: 2, Successes: 1, Failures: 1}
	if code := dirty.ExitCode(); code != 1 {
		t.Errorf("ExitCode() = %d, want 1 when any item failed", code)
	}
}

func TestReport_Summary(t *testing.T) {
	report := &Report{
		Total:     2,
		Successes: 1,
		Failures:  1,
		Elapsed:   1500 * time.Millisecond,
		Outcomes: []fetch.Outcome{
			{Item: "bulbasaur", Success: true, Attempts: 1, Path: "/data/bulbasaur.json"},
			{Item: "xx", Reason: fetch.ReasonInvalidIdentifier, Err: errors.New("invalid")},
		},
	}

	summary := report.Summary()

	for _, want := range []string{"1/2", "50.0%", "bulbasaur", "/data/bulbasaur.json", "FAIL", "invalid_identifier"} {
		if !strings.Contains(summary, want) {
			t.Errorf("Summary() missing %q:\n%s", want, summary)
		}
	}
}
