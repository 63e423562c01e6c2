// Package reporter renders scenario results for people and for CI.
package reporter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/saaga0h/jeeves-climate/e2e/internal/scenario"
)

// TimelineEvent is one line of the run timeline
type TimelineEvent struct {
	Elapsed     float64
	Layer       string
	Description string
	Success     bool // only meaningful for checks
	IsCheck     bool
}

const rule = "════════════════════════════════════════════════════════════"

// GenerateTimeline renders the run as a readable timeline followed by the
// expectation results per layer
func GenerateTimeline(result *scenario.TestResult, events []TimelineEvent) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s\n  Scenario: %s\n  Duration: %s\n%s\n\n",
		rule, truncate(result.Name, 46), formatDuration(result.EndTime.Sub(result.StartTime)), rule)

	for _, ev := range events {
		icon := "→"
		if ev.IsCheck {
			icon = "✗"
			if ev.Success {
				icon = "✓"
			}
		}
		fmt.Fprintf(&sb, "[%7.2fs] %s %-12s: %s\n", ev.Elapsed, icon, ev.Layer, ev.Description)
	}

	sb.WriteString("\n=== Expectations ===\n")

	byLayer := make(map[string][]scenario.ExpectationResult)
	var layers []string
	for _, r := range result.Expectations {
		if _, seen := byLayer[r.Layer]; !seen {
			layers = append(layers, r.Layer)
		}
		byLayer[r.Layer] = append(byLayer[r.Layer], r)
	}
	sort.Strings(layers)

	for _, layer := range layers {
		fmt.Fprintf(&sb, "Layer: %s\n", layer)
		for _, r := range byLayer[layer] {
			if r.Passed {
				fmt.Fprintf(&sb, "  ✓ %s\n", r.Expectation.Target())
			} else {
				fmt.Fprintf(&sb, "  ✗ %s: %s\n", r.Expectation.Target(), r.Reason)
			}
		}
		sb.WriteString("\n")
	}

	status := "ALL CHECKS PASSED"
	if result.FailedCount > 0 {
		status = fmt.Sprintf("%d CHECK(S) FAILED", result.FailedCount)
	}
	fmt.Fprintf(&sb, "%s\n  Passed: %d\n  Failed: %d\n  Status: %s\n%s\n",
		rule, result.PassedCount, result.FailedCount, status, rule)

	return sb.String()
}

func formatDuration(d time.Duration) string {
	seconds := d.Seconds()
	if seconds < 60 {
		return fmt.Sprintf("%.1fs", seconds)
	}
	minutes := int(seconds / 60)
	return fmt.Sprintf("%dm %.1fs", minutes, seconds-float64(minutes*60))
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
