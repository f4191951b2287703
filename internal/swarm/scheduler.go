package swarm

import (
	"context"
	"crypto/tls"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/ratelimit"
	"go.uber.org/zap"

	"github.com/wesleyorama2/swarmer/internal/swarm/metrics"
	"github.com/wesleyorama2/swarmer/internal/swarm/workload"
)

// UserScheduler manages the lifecycle of virtual users.
//
// It owns the shared HTTP client, keeps track of live users and
// coordinates their shutdown. Executors decide how many users to run;
// the scheduler runs them.
type UserScheduler struct {
	driver  workload.Driver
	metrics *metrics.Engine
	logger  *zap.SugaredLogger

	httpClientConfig HTTPClientConfig
	client           *http.Client

	// nil when no global request rate cap is configured
	limiter ratelimit.Limiter

	users   map[int]*User
	usersMu sync.RWMutex
	nextID  atomic.Int64
	active  atomic.Int64

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// HTTPClientConfig contains HTTP client configuration.
type HTTPClientConfig struct {
	// Timeout for a single request; zero means no timeout.
	Timeout time.Duration

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	// MaxConnsPerHost limits the total connections per host; zero is unlimited.
	MaxConnsPerHost int
	IdleConnTimeout time.Duration

	DisableKeepAlives  bool
	DisableCompression bool
	InsecureSkipVerify bool
}

// DefaultHTTPClientConfig returns defaults suited to many concurrent users
// hitting one host.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 1000,
		IdleConnTimeout:     90 * time.Second,
	}
}

// NewHTTPClient builds a pooled client from the configuration.
func (c HTTPClientConfig) NewHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        c.MaxIdleConns,
		MaxIdleConnsPerHost: c.MaxIdleConnsPerHost,
		MaxConnsPerHost:     c.MaxConnsPerHost,
		IdleConnTimeout:     c.IdleConnTimeout,
		DisableKeepAlives:   c.DisableKeepAlives,
		DisableCompression:  c.DisableCompression,
	}
	if c.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed targets
	}

	return &http.Client{
		Transport: transport,
		Timeout:   c.Timeout,
	}
}

// SchedulerOption configures a UserScheduler.
type SchedulerOption func(s *UserScheduler)

// WithRateLimit caps the combined request rate of all users. A value of
// zero or less means unlimited.
func WithRateLimit(rps int) SchedulerOption {
	return func(s *UserScheduler) {
		if rps > 0 {
			s.limiter = ratelimit.New(rps)
		}
	}
}

// WithLogger sets the scheduler's logger.
func WithLogger(logger *zap.SugaredLogger) SchedulerOption {
	return func(s *UserScheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHTTPClient replaces the client built from HTTPClientConfig.
func WithHTTPClient(client *http.Client) SchedulerOption {
	return func(s *UserScheduler) {
		if client != nil {
			s.client = client
		}
	}
}

// NewUserScheduler creates a scheduler for users running driver.
func NewUserScheduler(driver workload.Driver, metricsEngine *metrics.Engine, httpConfig HTTPClientConfig, opts ...SchedulerOption) *UserScheduler {
	s := &UserScheduler{
		driver:           driver,
		metrics:          metricsEngine,
		logger:           zap.NewNop().Sugar(),
		httpClientConfig: httpConfig,
		users:            make(map[int]*User),
		shutdownCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = httpConfig.NewHTTPClient()
	}

	return s
}

// SpawnUser creates and registers a new user. The caller starts it with StartUser.
func (s *UserScheduler) SpawnUser() *User {
	id := int(s.nextID.Add(1))
	u := NewUser(id, s.driver, s.client, s.metrics)

	s.usersMu.Lock()
	s.users[id] = u
	s.usersMu.Unlock()

	return u
}

// Spawned returns how many users have been created so far.
func (s *UserScheduler) Spawned() int {
	return int(s.nextID.Load())
}

// GetUser returns a live user by ID, or nil.
func (s *UserScheduler) GetUser(id int) *User {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()
	return s.users[id]
}

// ActiveCount returns the number of users whose goroutine is running.
func (s *UserScheduler) ActiveCount() int {
	return int(s.active.Load())
}

// StartUser runs u in its own goroutine until it is stopped, ctx is
// cancelled or the scheduler shuts down: perform an action, then wait, then
// repeat. A user started after Shutdown stops immediately.
func (s *UserScheduler) StartUser(ctx context.Context, u *User) {
	select {
	case <-s.shutdownCh:
		s.forget(u)
		return
	default:
	}

	s.wg.Add(1)
	s.metrics.SetActiveUsers(int(s.active.Add(1)))

	go s.run(ctx, u)
}

func (s *UserScheduler) run(ctx context.Context, u *User) {
	defer s.wg.Done()

	s.logger.Debugw("User started", "user", u.ID)

	defer func() {
		s.forget(u)
		s.metrics.SetActiveUsers(int(s.active.Add(-1)))
		s.logger.Debugw("User stopped", "user", u.ID, "iterations", u.GetIteration())
	}()

	for {
		if s.done(ctx, u) {
			return
		}

		if !s.throttle(ctx, u) {
			return
		}

		if _, err := u.RunIteration(ctx); err != nil {
			return
		}

		if !u.Wait(ctx) {
			return
		}
	}
}

func (s *UserScheduler) forget(u *User) {
	u.MarkStopped()

	s.usersMu.Lock()
	delete(s.users, u.ID)
	s.usersMu.Unlock()
}

func (s *UserScheduler) done(ctx context.Context, u *User) bool {
	select {
	case <-ctx.Done():
		return true
	case <-s.shutdownCh:
		return true
	case <-u.stopCh:
		return true
	default:
		return false
	}
}

// throttle blocks until the rate limiter admits one more request.
// ratelimit.Limiter.Take cannot be interrupted, so it runs in its own
// goroutine and the user gives up waiting on stop.
func (s *UserScheduler) throttle(ctx context.Context, u *User) bool {
	if s.limiter == nil {
		return true
	}

	admitted := make(chan struct{})
	go func() {
		s.limiter.Take()
		close(admitted)
	}()

	select {
	case <-admitted:
		return true
	case <-ctx.Done():
		return false
	case <-s.shutdownCh:
		return false
	case <-u.stopCh:
		return false
	}
}

// StopUser asks one user to stop.
func (s *UserScheduler) StopUser(id int) {
	if u := s.GetUser(id); u != nil {
		u.RequestStop()
	}
}

// StopAll asks every live user to stop after its current action.
func (s *UserScheduler) StopAll() {
	s.usersMu.RLock()
	defer s.usersMu.RUnlock()

	for _, u := range s.users {
		u.RequestStop()
	}
}

// Shutdown stops all users and waits up to timeout for them to finish
// their in-flight action. It reports whether every user stopped in time.
// Users still running afterwards must be cancelled through their context.
func (s *UserScheduler) Shutdown(timeout time.Duration) bool {
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
	})
	s.StopAll()

	drained := s.waitFor(timeout)
	if drained {
		s.client.CloseIdleConnections()
	}
	return drained
}

// Wait blocks until every user goroutine has exited.
func (s *UserScheduler) Wait() {
	s.wg.Wait()
	s.client.CloseIdleConnections()
}

func (s *UserScheduler) waitFor(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
