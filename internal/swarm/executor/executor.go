// Package executor provides the strategies that decide how many virtual
// users run at each moment of a swarm run.
package executor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/swarmer/internal/swarm"
	"github.com/wesleyorama2/swarmer/internal/swarm/metrics"
)

// Type identifies the type of executor.
type Type string

const (
	// TypeSpawnRate ramps users up at a fixed number of users per second.
	TypeSpawnRate Type = "spawn-rate"

	// TypeConstantUsers starts every user at once.
	TypeConstantUsers Type = "constant-users"
)

// DefaultGracefulStop is how long in-flight actions may run after the
// duration expires before they are cancelled.
const DefaultGracefulStop = 30 * time.Second

// controllerTick is how often the spawn-rate controller adjusts the user count.
const controllerTick = 100 * time.Millisecond

// Executor is a load generation strategy.
type Executor interface {
	// Type returns the executor type.
	Type() Type

	// Init validates and stores the configuration. Called once before Run.
	Init(ctx context.Context, config *Config) error

	// Run blocks until the duration has expired or ctx is cancelled, and
	// every user has stopped.
	Run(ctx context.Context, scheduler *swarm.UserScheduler, metrics *metrics.Engine) error

	// GetProgress returns current progress (0.0 to 1.0).
	GetProgress() float64

	// GetActiveUsers returns the number of running users.
	GetActiveUsers() int

	// GetStats returns executor statistics.
	GetStats() *Stats

	// Stop ends the run early. Users are drained like at the end of the duration.
	Stop(ctx context.Context) error
}

// Config contains configuration for an executor.
type Config struct {
	Name string `json:"name" yaml:"name"`
	Type Type   `json:"type" yaml:"type"`

	// Users is the number of users to reach.
	Users int `json:"users" yaml:"users"`

	// SpawnRate is users started per second, used by spawn-rate only.
	SpawnRate float64 `json:"spawnRate,omitempty" yaml:"spawnRate,omitempty"`

	Duration time.Duration `json:"duration" yaml:"duration"`

	// GracefulStop bounds the drain after Duration; zero means DefaultGracefulStop.
	GracefulStop time.Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	Logger *zap.SugaredLogger `json:"-" yaml:"-"`
}

// Stats contains real-time executor statistics.
type Stats struct {
	StartTime     time.Time     `json:"startTime"`
	CurrentTime   time.Time     `json:"currentTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`

	ActiveUsers  int `json:"activeUsers"`
	TargetUsers  int `json:"targetUsers"`
	SpawnedUsers int `json:"spawnedUsers"`
}

// Validate validates the executor configuration.
func (c *Config) Validate() error {
	if c.Type == "" {
		return &ValidationError{Field: "type", Message: "executor type is required"}
	}
	if !IsValidType(string(c.Type)) {
		return &ValidationError{Field: "type", Message: "unknown executor type: " + string(c.Type)}
	}

	if c.Users < 0 {
		return &ValidationError{Field: "users", Message: "users must be >= 0"}
	}
	if c.Duration <= 0 {
		return &ValidationError{Field: "duration", Message: "duration must be > 0"}
	}
	if c.GracefulStop < 0 {
		return &ValidationError{Field: "gracefulStop", Message: "gracefulStop must be >= 0"}
	}

	if c.Type == TypeSpawnRate && c.SpawnRate <= 0 {
		return &ValidationError{Field: "spawnRate", Message: "spawn rate must be > 0"}
	}

	return nil
}

// TotalDuration returns how long users are kept running.
func (c *Config) TotalDuration() time.Duration {
	return c.Duration
}

// GracefulStopOrDefault returns GracefulStop, or DefaultGracefulStop when unset.
func (c *Config) GracefulStopOrDefault() time.Duration {
	if c.GracefulStop == 0 {
		return DefaultGracefulStop
	}
	return c.GracefulStop
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error on field '" + e.Field + "': " + e.Message
}
