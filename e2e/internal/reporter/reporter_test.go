package reporter

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/saaga0h/jeeves-climate/e2e/internal/scenario"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *scenario.TestResult {
	start := time.Date(2026, 1, 15, 7, 0, 0, 0, time.UTC)
	return &scenario.TestResult{
		Name:        "cold_room_heats",
		StartTime:   start,
		EndTime:     start.Add(75 * time.Second),
		PassedCount: 1,
		FailedCount: 1,
		Expectations: []scenario.ExpectationResult{
			{Layer: "decision", Passed: true, Expectation: scenario.Expectation{Topic: "automation/context/climate/living_room"}},
			{Layer: "settings", Reason: "expected \"21\", got \"20\"", Expectation: scenario.Expectation{RedisKey: "climate:state:living_room", RedisField: "comfort_temp"}},
		},
	}
}

func TestGenerateTimeline(t *testing.T) {
	out := GenerateTimeline(sampleResult(), []TimelineEvent{
		{Elapsed: 0.01, Layer: "state", Description: "sensor.living_room_temperature = 19.0"},
		{Elapsed: 70.2, Layer: "decision", Description: "automation/context/climate/living_room", IsCheck: true, Success: true},
	})

	assert.Contains(t, out, "Scenario: cold_room_heats")
	assert.Contains(t, out, "Duration: 1m 15.0s")
	assert.Contains(t, out, "→ state")
	assert.Contains(t, out, "✓ decision")
	assert.Contains(t, out, "✗ climate:state:living_room#comfort_temp: expected \"21\", got \"20\"")
	assert.Contains(t, out, "1 CHECK(S) FAILED")
}

func TestSaveSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summaries", "cold.json")
	require.NoError(t, SaveSummary(sampleResult(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "cold_room_heats", decoded["name"])
	assert.Equal(t, float64(1), decoded["failed_count"])
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "4.5s", formatDuration(4500*time.Millisecond))
	assert.Equal(t, "2m 3.0s", formatDuration(123*time.Second))
}
