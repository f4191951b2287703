package executor_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/swarmer/internal/swarm"
	"github.com/wesleyorama2/swarmer/internal/swarm/executor"
	"github.com/wesleyorama2/swarmer/internal/swarm/metrics"
	"github.com/wesleyorama2/swarmer/internal/swarm/workload"
)

type fixture struct {
	hits      *atomic.Int64
	server    *httptest.Server
	engine    *metrics.Engine
	scheduler *swarm.UserScheduler
}

func newFixture(t *testing.T, delay time.Duration, low, high time.Duration) *fixture {
	t.Helper()

	hits := &atomic.Int64{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		w.Write([]byte("ok"))
	}))
	t.Cleanup(server.Close)

	driver, err := workload.NewCountDriver(server.URL, workload.WithWait(low, high))
	require.NoError(t, err)

	engine := metrics.NewEngine()
	t.Cleanup(engine.Stop)

	return &fixture{
		hits:      hits,
		server:    server,
		engine:    engine,
		scheduler: swarm.NewUserScheduler(driver, engine, swarm.DefaultHTTPClientConfig()),
	}
}

func run(t *testing.T, f *fixture, cfg *executor.Config) (executor.Executor, time.Duration) {
	t.Helper()

	exec, err := executor.CreateAndInitExecutor(context.Background(), cfg)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, exec.Run(context.Background(), f.scheduler, f.engine))
	return exec, time.Since(start)
}

func TestSpawnRate_RampsAndStops(t *testing.T) {
	f := newFixture(t, 0, 10*time.Millisecond, 20*time.Millisecond)

	exec, elapsed := run(t, f, &executor.Config{
		Type:         executor.TypeSpawnRate,
		Users:        5,
		SpawnRate:    20,
		Duration:     500 * time.Millisecond,
		GracefulStop: time.Second,
	})

	assert.Less(t, elapsed, 1500*time.Millisecond)
	assert.GreaterOrEqual(t, elapsed, 500*time.Millisecond)

	stats := exec.GetStats()
	assert.Equal(t, 5, stats.SpawnedUsers)
	assert.Equal(t, 5, stats.TargetUsers)
	assert.Equal(t, 0, exec.GetActiveUsers())
	assert.Equal(t, 1.0, exec.GetProgress())

	snapshot := f.engine.GetSnapshot()
	assert.Greater(t, snapshot.TotalRequests, int64(5))
	assert.Equal(t, f.hits.Load(), snapshot.TotalRequests)
	assert.Equal(t, metrics.PhaseDone, snapshot.CurrentPhase)

	var phases []metrics.Phase
	for _, change := range f.engine.GetPhaseHistory() {
		phases = append(phases, change.Phase)
	}
	assert.Equal(t, []metrics.Phase{metrics.PhaseRampUp, metrics.PhaseSteady, metrics.PhaseDone}, phases)
}

func TestSpawnRate_RespectsRate(t *testing.T) {
	f := newFixture(t, 0, time.Hour, time.Hour)

	exec, _ := run(t, f, &executor.Config{
		Type:         executor.TypeSpawnRate,
		Users:        1000,
		SpawnRate:    10,
		Duration:     350 * time.Millisecond,
		GracefulStop: time.Second,
	})

	// 1 + floor(0.35*10) = 4 users at most
	spawned := exec.GetStats().SpawnedUsers
	assert.GreaterOrEqual(t, spawned, 3)
	assert.LessOrEqual(t, spawned, 4)

	// each user acts at most once: its first wait outlasts the run
	assert.LessOrEqual(t, f.hits.Load(), int64(spawned))
	assert.Greater(t, f.hits.Load(), int64(0))
}

func TestConstantUsers_StartsAllAtOnce(t *testing.T) {
	f := newFixture(t, 0, time.Hour, time.Hour)

	exec, _ := run(t, f, &executor.Config{
		Type:     executor.TypeConstantUsers,
		Users:    8,
		Duration: 200 * time.Millisecond,
	})

	assert.Equal(t, 8, exec.GetStats().SpawnedUsers)
	assert.Equal(t, int64(8), f.hits.Load())
}

func TestZeroUsersCompletesImmediately(t *testing.T) {
	for _, typ := range executor.SupportedTypes() {
		t.Run(string(typ), func(t *testing.T) {
			f := newFixture(t, 0, 0, 0)

			_, elapsed := run(t, f, &executor.Config{
				Type:      typ,
				Users:     0,
				SpawnRate: 1000,
				Duration:  time.Hour,
			})

			assert.Less(t, elapsed, time.Second)
			assert.Equal(t, int64(0), f.hits.Load())
			assert.Equal(t, int64(0), f.engine.GetSnapshot().TotalRequests)
			assert.Equal(t, metrics.PhaseDone, f.engine.GetPhase())
		})
	}
}

func TestGracefulStopLetsInFlightRequestsFinish(t *testing.T) {
	f := newFixture(t, 300*time.Millisecond, time.Hour, time.Hour)

	_, elapsed := run(t, f, &executor.Config{
		Type:         executor.TypeConstantUsers,
		Users:        3,
		Duration:     100 * time.Millisecond,
		GracefulStop: 2 * time.Second,
	})

	assert.Less(t, elapsed, 2*time.Second)

	snapshot := f.engine.GetSnapshot()
	assert.Equal(t, int64(3), snapshot.TotalRequests)
	assert.Equal(t, int64(3), snapshot.SuccessRequests)
}

func TestGracefulStopExpiryCancelsRequests(t *testing.T) {
	f := newFixture(t, 10*time.Second, time.Hour, time.Hour)

	_, elapsed := run(t, f, &executor.Config{
		Type:         executor.TypeConstantUsers,
		Users:        2,
		Duration:     100 * time.Millisecond,
		GracefulStop: 100 * time.Millisecond,
	})

	// duration + graceful stop, with slack for scheduling
	assert.Less(t, elapsed, 2*time.Second)
	assert.Equal(t, int64(0), f.engine.GetSnapshot().TotalRequests)
}

func TestStopEndsRunEarly(t *testing.T) {
	f := newFixture(t, 0, 10*time.Millisecond, 10*time.Millisecond)

	exec, err := executor.CreateAndInitExecutor(context.Background(), &executor.Config{
		Type:      executor.TypeSpawnRate,
		Users:     2,
		SpawnRate: 100,
		Duration:  time.Hour,
	})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		exec.Run(context.Background(), f.scheduler, f.engine)
		close(done)
	}()

	require.Eventually(t, func() bool { return f.hits.Load() > 0 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, exec.Stop(context.Background()))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not end after Stop")
	}
}

func TestContextCancellationDrains(t *testing.T) {
	f := newFixture(t, 0, 10*time.Millisecond, 10*time.Millisecond)

	exec, err := executor.CreateAndInitExecutor(context.Background(), &executor.Config{
		Type:     executor.TypeConstantUsers,
		Users:    2,
		Duration: time.Hour,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	require.NoError(t, exec.Run(ctx, f.scheduler, f.engine))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, metrics.PhaseDone, f.engine.GetPhase())
}

func TestDrainLeavesNoActiveUsers(t *testing.T) {
	f := newFixture(t, 0, time.Millisecond, 2*time.Millisecond)

	run(t, f, &executor.Config{
		Type:         executor.TypeConstantUsers,
		Users:        64,
		Duration:     300 * time.Millisecond,
		GracefulStop: time.Second,
	})

	assert.Zero(t, f.scheduler.ActiveCount())
	assert.Zero(t, f.engine.GetActiveUsers())
	assert.Zero(t, f.engine.GetSnapshot().ActiveUsers)
}
