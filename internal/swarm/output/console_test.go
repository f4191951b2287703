package output

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/swarmer/internal/swarm/config"
	"github.com/wesleyorama2/swarmer/internal/swarm/engine"
	"github.com/wesleyorama2/swarmer/internal/swarm/executor"
	"github.com/wesleyorama2/swarmer/internal/swarm/metrics"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{1 * time.Second, "1.0s"},
		{1*time.Minute + 30*time.Second, "1m 30s"},
		{1*time.Hour + 2*time.Minute + 3*time.Second, "1h 02m 03s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatDuration(tt.duration))
		})
	}
}

func TestFormatDurationShort(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{0, "0ms"},
		{500 * time.Microsecond, "500µs"},
		{50 * time.Millisecond, "50ms"},
		{1500 * time.Millisecond, "1.50s"},
		{90 * time.Second, "1.5m"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatDurationShort(tt.duration))
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		number   int64
		expected string
	}{
		{0, "0"},
		{100, "100"},
		{1000, "1,000"},
		{12345, "12,345"},
		{1234567, "1,234,567"},
		{-1500, "-1,500"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatNumber(tt.number))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "/count/{n}", truncate("/count/{n}", 32))
	assert.Equal(t, "abcd..", truncate("abcdefgh", 6))
	assert.Equal(t, "ab", truncate("abcdefgh", 2))
}

type fakeSource struct {
	snapshot *metrics.Snapshot
	stats    *executor.Stats
	rows     []metrics.RequestStats
}

func (f *fakeSource) Snapshot() *metrics.Snapshot          { return f.snapshot }
func (f *fakeSource) ExecutorStats() *executor.Stats       { return f.stats }
func (f *fakeSource) RequestStats() []metrics.RequestStats { return f.rows }

func sampleSource() *fakeSource {
	latency := metrics.LatencyStats{
		Min:   2 * time.Millisecond,
		Max:   80 * time.Millisecond,
		Mean:  12 * time.Millisecond,
		P50:   10 * time.Millisecond,
		P95:   40 * time.Millisecond,
		Count: 200,
	}
	return &fakeSource{
		snapshot: &metrics.Snapshot{
			TotalRequests:  200,
			FailedRequests: 4,
			ErrorRate:      0.02,
			CurrentRPS:     99.5,
			ActiveUsers:    50,
			CurrentPhase:   metrics.PhaseRampUp,
			Latency:        latency,
			Elapsed:        2 * time.Second,
		},
		stats: &executor.Stats{ActiveUsers: 50, SpawnedUsers: 50, TargetUsers: 50},
		rows: []metrics.RequestStats{
			{Name: "/count/{n}", Requests: 200, Failures: 4, Latency: latency},
		},
	}
}

func TestConsole_PrintStats(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf})

	c.PrintStats(sampleSource())
	out := buf.String()

	assert.Contains(t, out, "# reqs")
	assert.Contains(t, out, "failures/s")
	assert.Contains(t, out, "/count/{n}")
	assert.Contains(t, out, "Aggregated")
	assert.Contains(t, out, "4(2.00%)")
	assert.Contains(t, out, "99.50")
	assert.Contains(t, out, "Users: 50 active, 50 spawned, target 50")
	assert.Contains(t, out, "phase: ramp-up")
	assert.NotContains(t, out, "\x1b[", "plain writer must not get escape codes")
}

func TestConsole_PrintStats_NoSnapshot(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf})

	c.PrintStats(&fakeSource{})
	assert.Empty(t, buf.String())
}

func TestConsole_ForceColors(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, ForceColors: true, ForceTTY: true})
	assert.True(t, c.IsTTY())

	c.PrintStats(sampleSource())
	assert.Contains(t, buf.String(), "\x1b[")
}

func TestConsole_Monitor(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, Interval: 20 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()

	require.NoError(t, c.Monitor(ctx, sampleSource()))
	assert.GreaterOrEqual(t, strings.Count(buf.String(), "Aggregated"), 2)
}

func TestConsole_Quiet(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf, Quiet: true, Interval: 10 * time.Millisecond})

	c.PrintHeader(config.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Monitor(ctx, sampleSource()))
	assert.Empty(t, buf.String())

	c.PrintSummary(&engine.TestResult{Passed: false})
	assert.Equal(t, "FAILED\n", buf.String())
}

func TestConsole_PrintHeader(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf})

	cfg := config.Default()
	cfg.RPSLimit = 500
	c.PrintHeader(cfg)

	out := buf.String()
	assert.Contains(t, out, "swarm - Running [spawn-rate]")
	assert.Contains(t, out, "http://localhost:80")
	assert.Contains(t, out, "100,000 at 1000 users/s")
	assert.Contains(t, out, "5m 00s")
	assert.Contains(t, out, "1.00s - 2.50s")
	assert.Contains(t, out, "RPS limit:   500")
}

func sampleResult() *engine.TestResult {
	src := sampleSource()
	src.snapshot.StatusCodes = map[int]int64{200: 196, 503: 4}
	src.snapshot.Errors = []metrics.ErrorCount{{Message: "HTTP 503 Service Unavailable", Count: 4}}

	return &engine.TestResult{
		RunID:    "0b7c6f9e-3f7e-4c1a-9d55-0f5f6c1e2a10",
		Name:     "smoke",
		Duration: 90 * time.Second,
		Spawned:  50,
		Metrics:  src.snapshot,
		Passed:   false,
		Thresholds: []engine.ThresholdResult{
			{Metric: "http_req_failed", Expression: "rate < 0.01", Value: "0.0200", Message: "failure rate is 0.0200, threshold: < 0.0100"},
			{Metric: "http_req_duration", Expression: "p95 < 500ms", Value: "40ms", Passed: true},
		},
	}
}

func TestConsole_PrintSummary(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf})

	c.PrintSummary(sampleResult())
	out := buf.String()

	assert.Contains(t, out, "smoke - Failed ✗")
	assert.Contains(t, out, "0b7c6f9e-3f7e-4c1a-9d55-0f5f6c1e2a10")
	assert.Contains(t, out, "1m 30s")
	assert.Contains(t, out, "Success Rate:  98.0%")
	assert.Contains(t, out, "P95:       40ms")
	assert.Contains(t, out, "Status Codes:")
	assert.Less(t, strings.Index(out, "200  196"), strings.Index(out, "503  4"))
	assert.Contains(t, out, "HTTP 503 Service Unavailable")
	assert.Contains(t, out, "✗ http_req_failed rate < 0.01 (actual: 0.0200)")
	assert.Contains(t, out, "✓ http_req_duration p95 < 500ms (actual: 40ms)")
}

func TestConsole_PrintSummary_Interrupted(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(ConsoleConfig{Writer: &buf})

	c.PrintSummary(&engine.TestResult{Name: "smoke", Passed: true, Interrupted: true, Metrics: &metrics.Snapshot{}})
	out := buf.String()

	assert.Contains(t, out, "Completed ✓ (interrupted)")
	assert.Contains(t, out, "Success Rate:  100.0%")
	assert.NotContains(t, out, "Status Codes:")
}

func TestWriteJSON_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "run.json")
	result := sampleResult()

	require.NoError(t, WriteJSON(result, path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"runId": "0b7c6f9e-3f7e-4c1a-9d55-0f5f6c1e2a10"`)
	assert.Contains(t, string(raw), `"200": 196`)

	back, err := ReadJSON(path)
	require.NoError(t, err)
	assert.Equal(t, result.RunID, back.RunID)
	assert.Equal(t, result.Metrics.TotalRequests, back.Metrics.TotalRequests)
	assert.Equal(t, result.Metrics.StatusCodes, back.Metrics.StatusCodes)
	assert.Len(t, back.Thresholds, 2)
}

func TestReadJSON_Missing(t *testing.T) {
	_, err := ReadJSON(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
