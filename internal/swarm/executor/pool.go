package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/swarmer/internal/swarm"
	"github.com/wesleyorama2/swarmer/internal/swarm/metrics"
)

// userPool holds the state shared by both executors: the run clock, the
// users started so far and the two-stage stop.
//
// Users run on their own context, detached from the run context, so that
// the end of the duration only asks them to stop. The user context is
// cancelled once the graceful stop period is over.
type userPool struct {
	config    *Config
	scheduler *swarm.UserScheduler
	metrics   *metrics.Engine
	logger    *zap.SugaredLogger

	running atomic.Bool
	target  atomic.Int64
	spawned atomic.Int64

	userCtx    context.Context
	hardCancel context.CancelFunc

	// guards the fields read by GetStats while Run is starting
	mu         sync.Mutex
	startTime  time.Time
	cancelFunc context.CancelFunc
}

func (p *userPool) init(config *Config, want Type) error {
	if config.Type != want {
		return fmt.Errorf("invalid config type: expected %s, got %s", want, config.Type)
	}
	if err := config.Validate(); err != nil {
		return err
	}

	p.config = config
	p.logger = config.Logger
	if p.logger == nil {
		p.logger = zap.NewNop().Sugar()
	}
	return nil
}

// begin starts the run clock and returns the context that ends with the duration.
func (p *userPool) begin(ctx context.Context, scheduler *swarm.UserScheduler, metricsEngine *metrics.Engine) (context.Context, context.CancelFunc) {
	p.scheduler = scheduler
	p.metrics = metricsEngine
	p.userCtx, p.hardCancel = context.WithCancel(context.WithoutCancel(ctx))

	runCtx, cancel := context.WithTimeout(ctx, p.config.Duration)

	p.mu.Lock()
	p.startTime = time.Now()
	p.cancelFunc = cancel
	p.mu.Unlock()
	p.running.Store(true)

	return runCtx, cancel
}

// scaleTo starts users until n have been spawned. Users are never stopped
// before the end of the run.
func (p *userPool) scaleTo(n int) {
	p.target.Store(int64(n))

	for int(p.spawned.Load()) < n {
		u := p.scheduler.SpawnUser()
		p.spawned.Add(1)
		p.scheduler.StartUser(p.userCtx, u)
	}
}

// drain asks every user to stop, waits up to the graceful stop period for
// in-flight actions, and cancels whatever is still running after that.
func (p *userPool) drain() {
	graceful := p.config.GracefulStopOrDefault()

	p.logger.Infow("Stopping users",
		"active", p.scheduler.ActiveCount(),
		"gracefulStop", graceful.String(),
	)

	if !p.scheduler.Shutdown(graceful) {
		p.logger.Warnw("Graceful stop expired, cancelling in-flight requests",
			"active", p.scheduler.ActiveCount(),
		)
	}
	p.hardCancel()
	p.scheduler.Wait()

	// user goroutines publish the gauge in no particular order
	p.metrics.SetActiveUsers(p.scheduler.ActiveCount())

	p.metrics.SetPhase(metrics.PhaseDone)
	p.running.Store(false)
}

// finishEmpty completes a run that has no users to start.
func (p *userPool) finishEmpty(metricsEngine *metrics.Engine) {
	p.metrics = metricsEngine
	p.mu.Lock()
	p.startTime = time.Now()
	p.mu.Unlock()
	p.logger.Infow("No users configured, nothing to run")
	metricsEngine.SetPhase(metrics.PhaseDone)
}

func (p *userPool) started() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startTime
}

func (p *userPool) elapsed() time.Duration {
	return time.Since(p.started())
}

func (p *userPool) progress() float64 {
	if !p.running.Load() {
		if p.started().IsZero() {
			return 0.0
		}
		return 1.0
	}

	progress := float64(p.elapsed()) / float64(p.config.TotalDuration())
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

func (p *userPool) activeUsers() int {
	if !p.running.Load() {
		return 0
	}
	return p.scheduler.ActiveCount()
}

func (p *userPool) stats() *Stats {
	start := p.started()

	var elapsed time.Duration
	if !start.IsZero() {
		elapsed = time.Since(start)
	}

	var total time.Duration
	if p.config != nil {
		total = p.config.TotalDuration()
	}

	return &Stats{
		StartTime:     start,
		CurrentTime:   time.Now(),
		Elapsed:       elapsed,
		TotalDuration: total,
		ActiveUsers:   p.activeUsers(),
		TargetUsers:   int(p.target.Load()),
		SpawnedUsers:  int(p.spawned.Load()),
	}
}

func (p *userPool) stop() {
	p.mu.Lock()
	cancel := p.cancelFunc
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
