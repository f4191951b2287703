// Package engine provides the orchestrator of a swarm run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/swarmer/internal/swarm"
	"github.com/wesleyorama2/swarmer/internal/swarm/config"
	"github.com/wesleyorama2/swarmer/internal/swarm/executor"
	"github.com/wesleyorama2/swarmer/internal/swarm/metrics"
	"github.com/wesleyorama2/swarmer/internal/swarm/workload"
)

const metricsShutdownTimeout = 5 * time.Second

// Engine is the main orchestrator of a swarm run.
//
// It coordinates:
//   - Configuration validation
//   - The executor ramping users up and draining them
//   - Metrics collection and the optional Prometheus endpoint
//   - Monitors such as the live stats printer
//   - Threshold evaluation
//
// Example usage:
//
//	cfg, _ := config.LoadFile("run.yaml")
//	eng, _ := engine.NewEngine(cfg, logger)
//	result, _ := eng.Run(ctx)
//	fmt.Printf("Run passed: %v\n", result.Passed)
type Engine struct {
	config   *config.RunConfig
	logger   *zap.SugaredLogger
	driver   workload.Driver
	monitors []Monitor
	client   *http.Client

	mu            sync.RWMutex
	running       bool
	metricsEngine *metrics.Engine
	exec          executor.Executor
}

// StatsSource gives read access to a run in progress.
type StatsSource interface {
	// Snapshot returns the current metrics, or nil before the run starts.
	Snapshot() *metrics.Snapshot

	// ExecutorStats returns the executor's user counts, or nil before the run starts.
	ExecutorStats() *executor.Stats

	// RequestStats returns the per-request breakdown.
	RequestStats() []metrics.RequestStats
}

// Monitor runs alongside the executor until the run ends.
type Monitor interface {
	Monitor(ctx context.Context, src StatsSource) error
}

// Option configures an Engine.
type Option func(e *Engine)

// WithMonitor adds a monitor started with every run.
func WithMonitor(m Monitor) Option {
	return func(e *Engine) {
		if m != nil {
			e.monitors = append(e.monitors, m)
		}
	}
}

// WithHTTPClient replaces the client built from the HTTP settings.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Engine) {
		e.client = client
	}
}

// TestResult contains the complete run results.
type TestResult struct {
	RunID     string        `json:"runId"`
	Name      string        `json:"name"`
	Host      string        `json:"host"`
	Executor  string        `json:"executor"`
	Users     int           `json:"users"`
	SpawnRate float64       `json:"spawnRate"`
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	// Interrupted is set when the run context was cancelled before the
	// configured duration expired.
	Interrupted bool `json:"interrupted"`

	Metrics      *metrics.Snapshot      `json:"metrics"`
	TimeSeries   []*metrics.TimeBucket  `json:"timeSeries,omitempty"`
	Phases       []metrics.PhaseChange  `json:"phases,omitempty"`
	RequestStats []metrics.RequestStats `json:"requestStats,omitempty"`
	Spawned      int                    `json:"spawned"`

	// Threshold evaluation
	Passed     bool              `json:"passed"`
	Thresholds []ThresholdResult `json:"thresholds,omitempty"`
}

// NewEngine validates cfg and prepares the workload driver.
func NewEngine(cfg *config.RunConfig, logger *zap.SugaredLogger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	driver, err := workload.NewCountDriver(cfg.Host,
		workload.WithWait(cfg.Wait.Min.Std(), cfg.Wait.Max.Std()),
		workload.WithBodyPath(cfg.BodyPath),
		workload.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create driver: %w", err)
	}

	e := &Engine{
		config: cfg,
		logger: logger,
		driver: driver,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run executes the run and returns its results.
//
// Cancelling ctx ends the run early; users are drained exactly as when the
// duration expires, and the partial results are returned without error.
func (e *Engine) Run(ctx context.Context) (*TestResult, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine is already running")
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	var collector *metrics.Collector
	var listener net.Listener
	if e.config.MetricsAddr != "" {
		ln, err := net.Listen("tcp", e.config.MetricsAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to listen on metrics address: %w", err)
		}
		listener = ln
		collector = metrics.NewCollector()
	}

	metricsEngine := metrics.NewEngineWithConfig(metrics.EngineConfig{Collector: collector})
	defer metricsEngine.Stop()

	schedulerOpts := []swarm.SchedulerOption{
		swarm.WithRateLimit(e.config.RPSLimit),
		swarm.WithLogger(e.logger),
	}
	if e.client != nil {
		schedulerOpts = append(schedulerOpts, swarm.WithHTTPClient(e.client))
	}
	scheduler := swarm.NewUserScheduler(e.driver, metricsEngine, e.config.HTTPClientConfig(), schedulerOpts...)

	execConfig := e.config.ExecutorConfig()
	execConfig.Logger = e.logger
	exec, err := executor.CreateAndInitExecutor(ctx, execConfig)
	if err != nil {
		if listener != nil {
			listener.Close()
		}
		return nil, err
	}

	e.mu.Lock()
	e.metricsEngine = metricsEngine
	e.exec = exec
	e.mu.Unlock()

	runID := uuid.NewString()
	e.logger.Infow("Starting run",
		"runId", runID,
		"host", e.config.Host,
		"users", e.config.Users,
		"spawnRate", e.config.SpawnRate,
		"duration", e.config.Duration.String(),
		"executor", exec.Type(),
	)

	startTime := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	monitorCtx, stopMonitors := context.WithCancel(gctx)
	defer stopMonitors()

	g.Go(func() error {
		defer stopMonitors()
		return exec.Run(gctx, scheduler, metricsEngine)
	})

	if listener != nil {
		e.serveMetrics(monitorCtx, g, listener, collector)
	}

	for _, m := range e.monitors {
		g.Go(func() error {
			return m.Monitor(monitorCtx, e)
		})
	}

	runErr := g.Wait()
	metricsEngine.Stop()
	endTime := time.Now()

	snapshot := metricsEngine.GetSnapshot()
	thresholds := evaluateThresholds(e.config.Thresholds, snapshot)

	result := &TestResult{
		RunID:        runID,
		Name:         e.config.Name,
		Host:         e.config.Host,
		Executor:     string(exec.Type()),
		Users:        e.config.Users,
		SpawnRate:    e.config.SpawnRate,
		StartTime:    startTime,
		EndTime:      endTime,
		Duration:     endTime.Sub(startTime),
		Interrupted:  ctx.Err() != nil,
		Metrics:      snapshot,
		TimeSeries:   metricsEngine.GetTimeSeries(),
		Phases:       metricsEngine.GetPhaseHistory(),
		RequestStats: metricsEngine.GetRequestStats(),
		Spawned:      scheduler.Spawned(),
		Passed:       allPassed(thresholds),
		Thresholds:   thresholds,
	}

	e.logger.Infow("Run finished",
		"runId", runID,
		"requests", snapshot.TotalRequests,
		"failures", snapshot.FailedRequests,
		"elapsed", result.Duration.String(),
		"interrupted", result.Interrupted,
		"passed", result.Passed,
	)

	if runErr != nil {
		return result, fmt.Errorf("run failed: %w", runErr)
	}
	return result, nil
}

// serveMetrics serves the collector on ln until ctx is done.
func (e *Engine) serveMetrics(ctx context.Context, g *errgroup.Group, ln net.Listener, collector *metrics.Collector) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	e.logger.Infow("Serving Prometheus metrics", "addr", ln.Addr().String())

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// Config returns the run configuration.
func (e *Engine) Config() *config.RunConfig {
	return e.config
}

// Snapshot returns the current metrics snapshot.
func (e *Engine) Snapshot() *metrics.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.metricsEngine == nil {
		return nil
	}
	return e.metricsEngine.GetSnapshot()
}

// ExecutorStats returns the executor statistics of the current or last run.
func (e *Engine) ExecutorStats() *executor.Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.exec == nil {
		return nil
	}
	return e.exec.GetStats()
}

// RequestStats returns per-request statistics of the current or last run.
func (e *Engine) RequestStats() []metrics.RequestStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.metricsEngine == nil {
		return nil
	}
	return e.metricsEngine.GetRequestStats()
}

// GetProgress returns the run progress (0.0 to 1.0).
func (e *Engine) GetProgress() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.exec == nil {
		return 0
	}
	return e.exec.GetProgress()
}

// IsRunning returns true if the engine is currently running.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Stop ends a running run early. Users are drained as at the end of the duration.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.RLock()
	exec := e.exec
	running := e.running
	e.mu.RUnlock()

	if !running || exec == nil {
		return nil
	}
	return exec.Stop(ctx)
}

var _ StatsSource = (*Engine)(nil)
