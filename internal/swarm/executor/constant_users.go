package executor

import (
	"context"

	"github.com/wesleyorama2/swarmer/internal/swarm"
	"github.com/wesleyorama2/swarmer/internal/swarm/metrics"
)

// ConstantUsers starts every user at once and keeps them running for Duration.
type ConstantUsers struct {
	userPool
}

// NewConstantUsers creates a new constant-users executor.
func NewConstantUsers() *ConstantUsers {
	return &ConstantUsers{}
}

// Type returns the executor type.
func (e *ConstantUsers) Type() Type {
	return TypeConstantUsers
}

// Init initializes the executor with configuration.
func (e *ConstantUsers) Init(_ context.Context, config *Config) error {
	return e.init(config, TypeConstantUsers)
}

// Run starts the executor and blocks until completion.
func (e *ConstantUsers) Run(ctx context.Context, scheduler *swarm.UserScheduler, metricsEngine *metrics.Engine) error {
	if e.config.Users == 0 {
		e.finishEmpty(metricsEngine)
		return nil
	}

	runCtx, cancel := e.begin(ctx, scheduler, metricsEngine)
	defer cancel()

	e.logger.Infow("Starting users", "users", e.config.Users, "duration", e.config.Duration.String())

	e.scaleTo(e.config.Users)
	metricsEngine.SetPhase(metrics.PhaseSteady)

	<-runCtx.Done()

	e.drain()
	return nil
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *ConstantUsers) GetProgress() float64 {
	return e.progress()
}

// GetActiveUsers returns current active user count.
func (e *ConstantUsers) GetActiveUsers() int {
	return e.activeUsers()
}

// GetStats returns executor statistics.
func (e *ConstantUsers) GetStats() *Stats {
	return e.stats()
}

// Stop ends the run early.
func (e *ConstantUsers) Stop(_ context.Context) error {
	e.stop()
	return nil
}
