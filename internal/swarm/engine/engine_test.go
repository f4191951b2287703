package engine

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/swarmer/internal/swarm/config"
	"github.com/wesleyorama2/swarmer/internal/swarm/metrics"
	"github.com/wesleyorama2/swarmer/internal/swarm/workload"
)

// countServer answers GET /count/{n} and remembers every n it saw.
type countServer struct {
	*httptest.Server

	status int
	mu     sync.Mutex
	seen   []int
}

func newCountServer(t *testing.T, status int) *countServer {
	t.Helper()

	cs := &countServer{status: status}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/count/"))
		if err == nil {
			cs.mu.Lock()
			cs.seen = append(cs.seen, n)
			cs.mu.Unlock()
		}
		w.WriteHeader(cs.status)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *countServer) params() []int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]int(nil), cs.seen...)
}

func testConfig(host string) *config.RunConfig {
	cfg := config.Default()
	cfg.Name = "engine-test"
	cfg.Host = host
	cfg.Users = 3
	cfg.SpawnRate = 20
	cfg.Duration = config.Duration(600 * time.Millisecond)
	cfg.Wait = config.WaitConfig{
		Min: config.Duration(10 * time.Millisecond),
		Max: config.Duration(20 * time.Millisecond),
	}
	cfg.GracefulStop = config.Duration(time.Second)
	return cfg
}

func TestEngine_Run(t *testing.T) {
	server := newCountServer(t, http.StatusOK)
	cfg := testConfig(server.URL)

	eng, err := NewEngine(cfg, nil)
	require.NoError(t, err)

	start := time.Now()
	result, err := eng.Run(context.Background())
	require.NoError(t, err)
	elapsed := time.Since(start)

	assert.Less(t, elapsed, cfg.Duration.Std()+cfg.GracefulStop.Std()+time.Second)

	_, err = uuid.Parse(result.RunID)
	assert.NoError(t, err)
	assert.Equal(t, "engine-test", result.Name)
	assert.Equal(t, "spawn-rate", result.Executor)
	assert.Equal(t, 3, result.Spawned)
	assert.False(t, result.Interrupted)
	assert.True(t, result.Passed)
	assert.Empty(t, result.Thresholds)

	require.NotNil(t, result.Metrics)
	assert.Positive(t, result.Metrics.TotalRequests)
	assert.Zero(t, result.Metrics.FailedRequests)
	assert.Equal(t, result.Metrics.TotalRequests, result.Metrics.StatusCodes[http.StatusOK])
	assert.Equal(t, metrics.PhaseDone, result.Metrics.CurrentPhase)

	require.Len(t, result.RequestStats, 1)
	assert.Equal(t, workload.RequestName, result.RequestStats[0].Name)
	assert.Equal(t, result.Metrics.TotalRequests, result.RequestStats[0].Requests)

	params := server.params()
	require.NotEmpty(t, params)
	for _, n := range params {
		assert.GreaterOrEqual(t, n, workload.MinCount)
		assert.LessOrEqual(t, n, workload.MaxCount)
	}

	assert.False(t, eng.IsRunning())
	assert.Equal(t, 1.0, eng.GetProgress())
}

func TestEngine_ZeroUsers(t *testing.T) {
	server := newCountServer(t, http.StatusOK)
	cfg := testConfig(server.URL)
	cfg.Users = 0
	cfg.Duration = config.Duration(time.Minute)

	eng, err := NewEngine(cfg, nil)
	require.NoError(t, err)

	start := time.Now()
	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Zero(t, result.Metrics.TotalRequests)
	assert.Zero(t, result.Spawned)
	assert.Empty(t, server.params())
	assert.True(t, result.Passed)
}

func TestEngine_InvalidConfig(t *testing.T) {
	cfg := testConfig("http://localhost:80")
	cfg.SpawnRate = 0

	_, err := NewEngine(cfg, nil)
	require.Error(t, err)

	var verrs *config.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, []string{"spawnRate"}, verrs.Fields())
}

func TestEngine_ThresholdFailure(t *testing.T) {
	server := newCountServer(t, http.StatusInternalServerError)
	cfg := testConfig(server.URL)
	cfg.Thresholds = &config.ThresholdsConfig{
		HTTPReqFailed: []string{"rate < 0.01"},
		HTTPReqs:      []string{"count > 0"},
	}

	eng, err := NewEngine(cfg, nil)
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, result.Passed)
	require.Len(t, result.Thresholds, 2)
	assert.False(t, result.Thresholds[0].Passed)
	assert.Equal(t, "1.0000", result.Thresholds[0].Value)
	assert.True(t, result.Thresholds[1].Passed)

	assert.Equal(t, result.Metrics.TotalRequests, result.Metrics.FailedRequests)
	require.NotEmpty(t, result.Metrics.Errors)
	assert.Equal(t, "HTTP 500 Internal Server Error", result.Metrics.Errors[0].Message)
}

func TestEngine_CancelDrains(t *testing.T) {
	server := newCountServer(t, http.StatusOK)
	cfg := testConfig(server.URL)
	cfg.Duration = config.Duration(time.Minute)

	eng, err := NewEngine(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(300*time.Millisecond, cancel)

	start := time.Now()
	result, err := eng.Run(ctx)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 3*time.Second)
	assert.True(t, result.Interrupted)
	assert.Positive(t, result.Metrics.TotalRequests)
}

func TestEngine_GracefulStopExpiry(t *testing.T) {
	release := make(chan struct{})

	var started atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started.Add(1)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	cfg := testConfig(server.URL)
	cfg.Users = 2
	cfg.Duration = config.Duration(200 * time.Millisecond)
	cfg.GracefulStop = config.Duration(200 * time.Millisecond)

	eng, err := NewEngine(cfg, nil)
	require.NoError(t, err)

	start := time.Now()
	result, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Positive(t, started.Load())
	// requests cut off by the hard cancel are not counted
	assert.Zero(t, result.Metrics.TotalRequests)
}

type recordingMonitor struct {
	calls     atomic.Int64
	snapshots atomic.Int64
}

func (m *recordingMonitor) Monitor(ctx context.Context, src StatsSource) error {
	m.calls.Add(1)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if src.Snapshot() != nil && src.ExecutorStats() != nil {
				m.snapshots.Add(1)
			}
		}
	}
}

func TestEngine_Monitor(t *testing.T) {
	server := newCountServer(t, http.StatusOK)
	mon := &recordingMonitor{}

	eng, err := NewEngine(testConfig(server.URL), nil, WithMonitor(mon))
	require.NoError(t, err)

	_, err = eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), mon.calls.Load())
	assert.Positive(t, mon.snapshots.Load())
}

func TestEngine_MetricsServer(t *testing.T) {
	server := newCountServer(t, http.StatusOK)
	cfg := testConfig(server.URL)
	cfg.MetricsAddr = "127.0.0.1:0"

	eng, err := NewEngine(cfg, nil)
	require.NoError(t, err)

	result, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Positive(t, result.Metrics.TotalRequests)
}

func TestEngine_MetricsAddrInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig("http://127.0.0.1:1")
	cfg.MetricsAddr = ln.Addr().String()

	eng, err := NewEngine(cfg, nil)
	require.NoError(t, err)

	_, err = eng.Run(context.Background())
	assert.Error(t, err)
	assert.False(t, eng.IsRunning())
}

func TestEvaluateThresholds(t *testing.T) {
	snapshot := &metrics.Snapshot{
		TotalRequests:  1000,
		FailedRequests: 5,
		ErrorRate:      0.005,
		RPS:            120.5,
		Latency: metrics.LatencyStats{
			Min:  time.Millisecond,
			Max:  900 * time.Millisecond,
			Mean: 80 * time.Millisecond,
			P50:  60 * time.Millisecond,
			P90:  200 * time.Millisecond,
			P95:  300 * time.Millisecond,
			P99:  700 * time.Millisecond,
		},
	}

	tests := []struct {
		metric string
		expr   string
		passed bool
	}{
		{config.MetricHTTPReqDuration, "p95 < 500ms", true},
		{config.MetricHTTPReqDuration, "p99 < 500ms", false},
		{config.MetricHTTPReqDuration, "avg <= 80ms", true},
		{config.MetricHTTPReqDuration, "med < 50ms", false},
		{config.MetricHTTPReqDuration, "max < 1s", true},
		{config.MetricHTTPReqDuration, "p42 < 1s", false},
		{config.MetricHTTPReqFailed, "rate < 0.01", true},
		{config.MetricHTTPReqFailed, "rate < 0.001", false},
		{config.MetricHTTPReqs, "count > 999", true},
		{config.MetricHTTPReqs, "count >= 1001", false},
		{config.MetricHTTPReqs, "rate > 100", true},
		{config.MetricHTTPReqs, "nonsense", false},
	}

	for _, tt := range tests {
		t.Run(tt.metric+" "+tt.expr, func(t *testing.T) {
			th := &config.ThresholdsConfig{}
			require.NoError(t, th.Add(tt.metric, tt.expr))

			results := evaluateThresholds(th, snapshot)
			require.Len(t, results, 1)
			assert.Equal(t, tt.metric, results[0].Metric)
			assert.Equal(t, tt.passed, results[0].Passed, results[0].Message)
			if !tt.passed {
				assert.NotEmpty(t, results[0].Message)
			}
		})
	}

	assert.Nil(t, evaluateThresholds(nil, snapshot))
	assert.True(t, allPassed(nil))
}

func TestCompareValues(t *testing.T) {
	assert.True(t, compareValues(1, "<", 2))
	assert.True(t, compareValues(2, "<=", 2))
	assert.True(t, compareValues(3, ">", 2))
	assert.True(t, compareValues(2, ">=", 2))
	assert.True(t, compareValues(2, "==", 2))
	assert.True(t, compareValues(1, "!=", 2))
	assert.False(t, compareValues(1, "~", 2))
}
