package config

import (
	"time"

	"github.com/wesleyorama2/swarmer/internal/logging"
	"github.com/wesleyorama2/swarmer/internal/swarm"
	"github.com/wesleyorama2/swarmer/internal/swarm/executor"
	"github.com/wesleyorama2/swarmer/internal/swarm/workload"
)

const (
	DefaultHost          = "http://localhost:80"
	DefaultUsers         = 100000
	DefaultSpawnRate     = 1000
	DefaultDuration      = 300 * time.Second
	DefaultStatsInterval = 2 * time.Second
	DefaultTimeout       = 30 * time.Second
)

// Default returns the built-in run: 100000 users started at 1000 per
// second against localhost:80 for 300 seconds.
func Default() *RunConfig {
	return &RunConfig{
		Name:      "swarm",
		Host:      DefaultHost,
		Users:     DefaultUsers,
		SpawnRate: DefaultSpawnRate,
		Duration:  Duration(DefaultDuration),
		Executor:  string(executor.TypeSpawnRate),
		Wait: WaitConfig{
			Min: Duration(workload.DefaultWaitMin),
			Max: Duration(workload.DefaultWaitMax),
		},
		GracefulStop:  Duration(executor.DefaultGracefulStop),
		StatsInterval: Duration(DefaultStatsInterval),
		HTTP: HTTPSettings{
			Timeout:             Duration(DefaultTimeout),
			MaxIdleConnsPerHost: 1000,
		},
		Log: LogConfig{
			Level:  logging.DefaultLevel,
			Format: logging.DefaultFormat,
		},
	}
}

// ExecutorConfig converts the run configuration for the executor.
func (c *RunConfig) ExecutorConfig() *executor.Config {
	return &executor.Config{
		Name:         c.Name,
		Type:         executor.Type(c.Executor),
		Users:        c.Users,
		SpawnRate:    c.SpawnRate,
		Duration:     c.Duration.Std(),
		GracefulStop: c.GracefulStop.Std(),
	}
}

// HTTPClientConfig converts the HTTP settings for the user scheduler.
func (c *RunConfig) HTTPClientConfig() swarm.HTTPClientConfig {
	hc := swarm.DefaultHTTPClientConfig()
	hc.Timeout = c.HTTP.Timeout.Std()
	if c.HTTP.MaxIdleConnsPerHost > 0 {
		hc.MaxIdleConnsPerHost = c.HTTP.MaxIdleConnsPerHost
		if hc.MaxIdleConns < hc.MaxIdleConnsPerHost {
			hc.MaxIdleConns = hc.MaxIdleConnsPerHost
		}
	}
	hc.MaxConnsPerHost = c.HTTP.MaxConnsPerHost
	hc.DisableKeepAlives = c.HTTP.DisableKeepAlives
	hc.InsecureSkipVerify = c.HTTP.InsecureSkipVerify
	return hc
}

// LoggingOptions converts the log settings.
func (c *RunConfig) LoggingOptions() logging.Options {
	return logging.Options{Level: c.Log.Level, Format: c.Log.Format}
}
