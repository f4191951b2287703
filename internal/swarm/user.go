// Package swarm runs virtual users against a target host.
package swarm

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/therenotomorrow/ex"

	"github.com/wesleyorama2/swarmer/internal/swarm/metrics"
	"github.com/wesleyorama2/swarmer/internal/swarm/workload"
)

const ErrUserStopped = ex.Error("user is stopping or stopped")

// UserState represents the lifecycle state of a virtual user.
type UserState int32

const (
	// UserStateIdle indicates the user is between two actions.
	UserStateIdle UserState = iota
	// UserStateRunning indicates the user is performing an action.
	UserStateRunning
	// UserStateStopping indicates the user has been asked to stop.
	UserStateStopping
	// UserStateStopped indicates the user's goroutine has exited.
	UserStateStopped
)

func (s UserState) String() string {
	switch s {
	case UserStateIdle:
		return "idle"
	case UserStateRunning:
		return "running"
	case UserStateStopping:
		return "stopping"
	case UserStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// User is one simulated user session: it performs an action, waits, and
// repeats until asked to stop.
type User struct {
	ID int

	Driver     workload.Driver
	HTTPClient *http.Client
	Metrics    *metrics.Engine

	state     atomic.Int32
	stopCh    chan struct{}
	doneCh    chan struct{}
	iteration atomic.Int64
}

// NewUser creates an idle user.
func NewUser(id int, driver workload.Driver, client *http.Client, metricsEngine *metrics.Engine) *User {
	return &User{
		ID:         id,
		Driver:     driver,
		HTTPClient: client,
		Metrics:    metricsEngine,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// GetState returns the current user state.
func (u *User) GetState() UserState {
	return UserState(u.state.Load())
}

// GetIteration returns how many actions the user has started.
func (u *User) GetIteration() int64 {
	return u.iteration.Load()
}

// RunIteration performs one action and records it.
//
// An action interrupted by cancellation of ctx is returned but not recorded.
func (u *User) RunIteration(ctx context.Context) (*workload.Outcome, error) {
	if !u.state.CompareAndSwap(int32(UserStateIdle), int32(UserStateRunning)) {
		return nil, ErrUserStopped
	}
	u.iteration.Add(1)

	out := u.Driver.Perform(ctx, u.HTTPClient)

	if ctx.Err() == nil && u.Metrics != nil {
		u.Metrics.RecordRequest(out.Name, out.Duration, out.StatusCode, out.BytesReceived, out.Error)
	}

	// a stop request during the action leaves the state at stopping
	u.state.CompareAndSwap(int32(UserStateRunning), int32(UserStateIdle))

	return out, ctx.Err()
}

// Wait pauses for a duration drawn from the driver's wait interval.
// It returns false if the user was stopped or ctx ended first.
func (u *User) Wait(ctx context.Context) bool {
	low, high := u.Driver.WaitInterval()
	d := workload.RandomWait(low, high)
	if d <= 0 {
		return !u.stopping(ctx)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-u.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func (u *User) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-u.stopCh:
		return true
	default:
		return false
	}
}

// RequestStop asks the user to stop after its current action.
func (u *User) RequestStop() {
	if u.state.CompareAndSwap(int32(UserStateRunning), int32(UserStateStopping)) ||
		u.state.CompareAndSwap(int32(UserStateIdle), int32(UserStateStopping)) {
		close(u.stopCh)
	}
}

// WaitForStop waits for the user to stop.
// Returns true if it stopped within the timeout.
func (u *User) WaitForStop(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-u.doneCh:
		return true
	case <-timer.C:
		return false
	}
}

// Done is closed once the user has stopped.
func (u *User) Done() <-chan struct{} {
	return u.doneCh
}

// MarkStopped marks the user as fully stopped. Called by the scheduler when
// the user's goroutine exits.
func (u *User) MarkStopped() {
	prev := UserState(u.state.Swap(int32(UserStateStopped)))
	if prev == UserStateStopped {
		return
	}
	if prev != UserStateStopping {
		close(u.stopCh)
	}
	close(u.doneCh)
}
