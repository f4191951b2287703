// Package metrics aggregates request statistics for a swarm run.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// OtherErrors collects failures once MaxErrorKinds distinct messages are tracked.
const OtherErrors = "other"

// Engine collects and aggregates request metrics using HDR histograms.
//
// Counters are atomic, histograms and maps are mutex protected, and a
// background emitter closes one TimeBucket per BucketInterval even when no
// request completes.
type Engine struct {
	// 1 microsecond to 1 hour, 3 significant figures
	latencyHist   *hdrhistogram.Histogram
	latencyHistMu sync.Mutex

	requests   map[string]*requestEntry
	requestsMu sync.RWMutex

	statusCodes map[int]int64
	errors      map[string]int64
	outcomesMu  sync.Mutex

	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64
	totalBytes      atomic.Int64

	activeUsers atomic.Int32

	bucketStore *TimeBucketStore

	currentPhase Phase
	phaseMu      sync.RWMutex
	phaseHistory []PhaseChange

	startTime time.Time

	emitterCtx    context.Context
	emitterCancel context.CancelFunc
	emitterWg     sync.WaitGroup
	stopOnce      sync.Once

	config EngineConfig
}

type requestEntry struct {
	hist     *hdrhistogram.Histogram
	failures int64
}

// EngineConfig contains configuration for the metrics engine.
type EngineConfig struct {
	// BucketInterval is the stats history sampling period (default: 1s)
	BucketInterval time.Duration

	// MaxBuckets is the maximum number of buckets to retain (default: 3600)
	MaxBuckets int

	// Histogram bounds in microseconds and precision.
	HistogramMin     int64
	HistogramMax     int64
	HistogramSigFigs int

	// MaxErrorKinds caps the number of distinct error messages kept (default: 100)
	MaxErrorKinds int

	// Collector, when set, mirrors every observation into Prometheus.
	Collector *Collector
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BucketInterval:   time.Second,
		MaxBuckets:       3600,
		HistogramMin:     1,
		HistogramMax:     3600000000,
		HistogramSigFigs: 3,
		MaxErrorKinds:    100,
	}
}

// NewEngine creates a metrics engine with default configuration.
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig())
}

// NewEngineWithConfig creates a metrics engine and starts its bucket emitter.
// Zero fields of config fall back to the defaults.
func NewEngineWithConfig(config EngineConfig) *Engine {
	def := DefaultEngineConfig()
	if config.BucketInterval <= 0 {
		config.BucketInterval = def.BucketInterval
	}
	if config.MaxBuckets <= 0 {
		config.MaxBuckets = def.MaxBuckets
	}
	if config.HistogramMin <= 0 {
		config.HistogramMin = def.HistogramMin
	}
	if config.HistogramMax <= config.HistogramMin {
		config.HistogramMax = def.HistogramMax
	}
	if config.HistogramSigFigs <= 0 {
		config.HistogramSigFigs = def.HistogramSigFigs
	}
	if config.MaxErrorKinds <= 0 {
		config.MaxErrorKinds = def.MaxErrorKinds
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		latencyHist:   config.newHistogram(),
		requests:      make(map[string]*requestEntry),
		statusCodes:   make(map[int]int64),
		errors:        make(map[string]int64),
		bucketStore:   NewTimeBucketStore(config.MaxBuckets),
		currentPhase:  PhaseInit,
		phaseHistory:  make([]PhaseChange, 0),
		startTime:     time.Now(),
		emitterCtx:    ctx,
		emitterCancel: cancel,
		config:        config,
	}

	e.emitterWg.Add(1)
	go e.runEmitter()

	return e
}

func (c EngineConfig) newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(c.HistogramMin, c.HistogramMax, c.HistogramSigFigs)
}

// IsSuccess is the statistics notion of success: the request completed
// without a transport error and with a status below 400.
func IsSuccess(status int, err error) bool {
	return err == nil && status > 0 && status < 400
}

// RecordRequest records one completed request.
//
// status is 0 when no response was received; err is the transport error, if any.
func (e *Engine) RecordRequest(name string, duration time.Duration, status int, bytes int64, err error) {
	success := IsSuccess(status, err)
	latencyMicros := e.clamp(duration.Microseconds())

	e.latencyHistMu.Lock()
	e.latencyHist.RecordValue(latencyMicros)
	e.latencyHistMu.Unlock()

	if name != "" {
		e.recordNamed(name, latencyMicros, success)
	}

	e.outcomesMu.Lock()
	if status > 0 {
		e.statusCodes[status]++
	}
	if !success {
		e.recordErrorLocked(failureMessage(status, err))
	}
	e.outcomesMu.Unlock()

	e.totalRequests.Add(1)
	e.totalBytes.Add(bytes)
	if success {
		e.successRequests.Add(1)
	} else {
		e.failedRequests.Add(1)
	}

	e.bucketStore.RecordRequest(success)

	if e.config.Collector != nil {
		e.config.Collector.ObserveRequest(name, status, duration)
	}
}

func (e *Engine) clamp(v int64) int64 {
	if v < e.config.HistogramMin {
		return e.config.HistogramMin
	}
	if v > e.config.HistogramMax {
		return e.config.HistogramMax
	}
	return v
}

// HDR histogram RecordValue is not thread safe, so the write lock is held.
func (e *Engine) recordNamed(name string, latencyMicros int64, success bool) {
	e.requestsMu.Lock()
	defer e.requestsMu.Unlock()

	entry, exists := e.requests[name]
	if !exists {
		entry = &requestEntry{hist: e.config.newHistogram()}
		e.requests[name] = entry
	}

	entry.hist.RecordValue(latencyMicros)
	if !success {
		entry.failures++
	}
}

func (e *Engine) recordErrorLocked(msg string) {
	if _, ok := e.errors[msg]; !ok && len(e.errors) >= e.config.MaxErrorKinds {
		msg = OtherErrors
	}
	e.errors[msg]++
}

func failureMessage(status int, err error) string {
	if err != nil {
		return err.Error()
	}
	if status <= 0 {
		return "no response"
	}
	return fmt.Sprintf("HTTP %d %s", status, http.StatusText(status))
}

// SetPhase updates the current run phase.
func (e *Engine) SetPhase(phase Phase) {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()

	if e.currentPhase == phase {
		return
	}

	e.currentPhase = phase
	e.phaseHistory = append(e.phaseHistory, PhaseChange{
		Phase:     phase,
		Timestamp: time.Now(),
		Requests:  e.totalRequests.Load(),
	})
}

// GetPhase returns the current run phase.
func (e *Engine) GetPhase() Phase {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()
	return e.currentPhase
}

// SetActiveUsers updates the active user count.
func (e *Engine) SetActiveUsers(count int) {
	e.activeUsers.Store(int32(count))
	if e.config.Collector != nil {
		e.config.Collector.SetActiveUsers(count)
	}
}

// GetActiveUsers returns the active user count.
func (e *Engine) GetActiveUsers() int {
	return int(e.activeUsers.Load())
}

func (e *Engine) runEmitter() {
	defer e.emitterWg.Done()

	ticker := time.NewTicker(e.config.BucketInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.emitterCtx.Done():
			return
		case <-ticker.C:
			e.emitBucket()
		}
	}
}

func (e *Engine) emitBucket() {
	e.bucketStore.CreateBucket(
		e.totalRequests.Load(),
		e.successRequests.Load(),
		e.failedRequests.Load(),
		e.totalBytes.Load(),
		e.GetLatencyPercentiles(),
		e.GetActiveUsers(),
		e.GetPhase(),
	)
}

// GetLatencyPercentiles returns the current overall latency percentiles.
func (e *Engine) GetLatencyPercentiles() LatencyPercentiles {
	e.latencyHistMu.Lock()
	defer e.latencyHistMu.Unlock()

	return LatencyPercentiles{
		Min: micros(e.latencyHist.Min()),
		Max: micros(e.latencyHist.Max()),
		P50: micros(e.latencyHist.ValueAtQuantile(50)),
		P90: micros(e.latencyHist.ValueAtQuantile(90)),
		P95: micros(e.latencyHist.ValueAtQuantile(95)),
		P99: micros(e.latencyHist.ValueAtQuantile(99)),
	}
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}

func latencyStats(h *hdrhistogram.Histogram) LatencyStats {
	return LatencyStats{
		Min:    micros(h.Min()),
		Max:    micros(h.Max()),
		Mean:   time.Duration(h.Mean() * float64(time.Microsecond)),
		StdDev: time.Duration(h.StdDev() * float64(time.Microsecond)),
		P50:    micros(h.ValueAtQuantile(50)),
		P90:    micros(h.ValueAtQuantile(90)),
		P95:    micros(h.ValueAtQuantile(95)),
		P99:    micros(h.ValueAtQuantile(99)),
		Count:  h.TotalCount(),
	}
}

// GetSnapshot returns a point-in-time snapshot of all metrics.
func (e *Engine) GetSnapshot() *Snapshot {
	e.latencyHistMu.Lock()
	latency := latencyStats(e.latencyHist)
	e.latencyHistMu.Unlock()

	elapsed := time.Since(e.startTime)
	totalReqs := e.totalRequests.Load()
	failedReqs := e.failedRequests.Load()

	overallRPS := 0.0
	if elapsed.Seconds() > 0 {
		overallRPS = float64(totalReqs) / elapsed.Seconds()
	}

	steadyRPS, steadyBuckets := e.bucketStore.CalculateSteadyStateRPS()

	rps := overallRPS
	if steadyBuckets > 0 {
		rps = steadyRPS
	}

	currentRPS := 0.0
	if b := e.bucketStore.GetLatestBucket(); b != nil {
		currentRPS = b.IntervalRPS
	}

	errorRate := 0.0
	if totalReqs > 0 {
		errorRate = float64(failedReqs) / float64(totalReqs)
	}

	return &Snapshot{
		TotalRequests:   totalReqs,
		SuccessRequests: e.successRequests.Load(),
		FailedRequests:  failedReqs,
		TotalBytes:      e.totalBytes.Load(),
		Latency:         latency,
		RPS:             rps,
		SteadyStateRPS:  steadyRPS,
		CurrentRPS:      currentRPS,
		ErrorRate:       errorRate,
		ActiveUsers:     e.GetActiveUsers(),
		CurrentPhase:    e.GetPhase(),
		StatusCodes:     e.GetStatusCodes(),
		Errors:          e.GetErrors(),
		Elapsed:         elapsed,
		StartTime:       e.startTime,
		Timestamp:       time.Now(),
	}
}

// GetStatusCodes returns a copy of the per-status response counts.
func (e *Engine) GetStatusCodes() map[int]int64 {
	e.outcomesMu.Lock()
	defer e.outcomesMu.Unlock()

	out := make(map[int]int64, len(e.statusCodes))
	for code, n := range e.statusCodes {
		out[code] = n
	}
	return out
}

// GetErrors returns the distinct failure messages, most frequent first.
func (e *Engine) GetErrors() []ErrorCount {
	e.outcomesMu.Lock()
	out := make([]ErrorCount, 0, len(e.errors))
	for msg, n := range e.errors {
		out = append(out, ErrorCount{Message: msg, Count: n})
	}
	e.outcomesMu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Message < out[j].Message
	})
	return out
}

// GetTimeSeries returns all time-series buckets.
func (e *Engine) GetTimeSeries() []*TimeBucket {
	return e.bucketStore.GetBuckets()
}

// GetPhaseHistory returns the history of phase changes.
func (e *Engine) GetPhaseHistory() []PhaseChange {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()

	result := make([]PhaseChange, len(e.phaseHistory))
	copy(result, e.phaseHistory)
	return result
}

// GetRequestStats returns per-request-name statistics sorted by name.
func (e *Engine) GetRequestStats() []RequestStats {
	e.requestsMu.RLock()
	defer e.requestsMu.RUnlock()

	result := make([]RequestStats, 0, len(e.requests))
	for name, entry := range e.requests {
		stats := latencyStats(entry.hist)
		result = append(result, RequestStats{
			Name:     name,
			Requests: stats.Count,
			Failures: entry.failures,
			Latency:  stats,
		})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// Stop stops the background emitter and emits a final bucket. It is safe
// to call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.emitterCancel()
		e.emitterWg.Wait()
		e.emitBucket()
	})
}
