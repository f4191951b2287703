package executor

import (
	"context"
	"math"
	"time"

	"github.com/wesleyorama2/swarmer/internal/swarm"
	"github.com/wesleyorama2/swarmer/internal/swarm/metrics"
)

// SpawnRate ramps from zero to Users at SpawnRate users per second, keeps
// them running until Duration has elapsed and then drains them.
//
// The first user starts immediately; after that the target at elapsed
// time t is min(Users, 1+floor(t*SpawnRate)), re-evaluated every 100ms.
type SpawnRate struct {
	userPool
}

// NewSpawnRate creates a new spawn-rate executor.
func NewSpawnRate() *SpawnRate {
	return &SpawnRate{}
}

// Type returns the executor type.
func (e *SpawnRate) Type() Type {
	return TypeSpawnRate
}

// Init initializes the executor with configuration.
func (e *SpawnRate) Init(_ context.Context, config *Config) error {
	return e.init(config, TypeSpawnRate)
}

// Run starts the executor and blocks until completion.
func (e *SpawnRate) Run(ctx context.Context, scheduler *swarm.UserScheduler, metricsEngine *metrics.Engine) error {
	if e.config.Users == 0 {
		e.finishEmpty(metricsEngine)
		return nil
	}

	runCtx, cancel := e.begin(ctx, scheduler, metricsEngine)
	defer cancel()

	e.logger.Infow("Ramping up users",
		"users", e.config.Users,
		"spawnRate", e.config.SpawnRate,
		"duration", e.config.Duration.String(),
	)
	metricsEngine.SetPhase(metrics.PhaseRampUp)

	e.controller(runCtx)

	e.drain()
	return nil
}

func (e *SpawnRate) controller(ctx context.Context) {
	e.adjust()

	ticker := time.NewTicker(controllerTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.adjust()
		}
	}
}

func (e *SpawnRate) adjust() {
	if int(e.spawned.Load()) >= e.config.Users {
		return
	}

	e.scaleTo(e.calculateTargetUsers(e.elapsed()))

	if int(e.spawned.Load()) >= e.config.Users {
		e.logger.Infow("All users spawned", "users", e.config.Users, "elapsed", e.elapsed().String())
		e.metrics.SetPhase(metrics.PhaseSteady)
	}
}

// calculateTargetUsers returns how many users should have been started
// after elapsed.
func (e *SpawnRate) calculateTargetUsers(elapsed time.Duration) int {
	if elapsed < 0 {
		elapsed = 0
	}

	target := 1 + math.Floor(elapsed.Seconds()*e.config.SpawnRate)
	if target >= float64(e.config.Users) {
		return e.config.Users
	}
	return int(target)
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *SpawnRate) GetProgress() float64 {
	return e.progress()
}

// GetActiveUsers returns current active user count.
func (e *SpawnRate) GetActiveUsers() int {
	return e.activeUsers()
}

// GetStats returns executor statistics.
func (e *SpawnRate) GetStats() *Stats {
	return e.stats()
}

// Stop ends the run early.
func (e *SpawnRate) Stop(_ context.Context) error {
	e.stop()
	return nil
}
