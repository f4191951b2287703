// Package config holds the run configuration of a swarm: where to send
// load, how many users, how fast they start and how long they run.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// RunConfig is the complete configuration of one run. It is built once at
// start-up and not modified afterwards.
//
// Example YAML:
//
//	name: count-smoke
//	host: http://localhost:8080
//	users: 500
//	spawnRate: 50
//	duration: 2m
//	wait:
//	  min: 1s
//	  max: 2500ms
//	thresholds:
//	  http_req_duration: ["p95 < 500ms"]
type RunConfig struct {
	// Name labels the run in reports and history.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Host is the base URL every request is sent to.
	Host string `json:"host" yaml:"host"`

	// Users is the number of concurrent users to reach.
	Users int `json:"users" yaml:"users"`

	// SpawnRate is how many users are started per second.
	SpawnRate float64 `json:"spawnRate" yaml:"spawnRate"`

	// Duration is the wall-clock run time, measured from the start.
	Duration Duration `json:"duration" yaml:"duration"`

	// Executor selects the user ramping strategy ("spawn-rate" or "constant-users").
	Executor string `json:"executor,omitempty" yaml:"executor,omitempty"`

	// Wait bounds the pause of a user between two actions.
	Wait WaitConfig `json:"wait" yaml:"wait"`

	// GracefulStop is how long in-flight requests may run after Duration.
	GracefulStop Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// StatsInterval is how often the live stats table is printed.
	StatsInterval Duration `json:"statsInterval,omitempty" yaml:"statsInterval,omitempty"`

	// RPSLimit caps the combined request rate; zero is unlimited.
	RPSLimit int `json:"rpsLimit,omitempty" yaml:"rpsLimit,omitempty"`

	// BodyPath is a gjson path; when set, only that part of a JSON body is logged.
	BodyPath string `json:"bodyPath,omitempty" yaml:"bodyPath,omitempty"`

	// MetricsAddr, when set, serves Prometheus metrics on this address.
	MetricsAddr string `json:"metricsAddr,omitempty" yaml:"metricsAddr,omitempty"`

	HTTP HTTPSettings `json:"http,omitempty" yaml:"http,omitempty"`

	// Thresholds define pass/fail criteria. A run without thresholds passes.
	Thresholds *ThresholdsConfig `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	Log LogConfig `json:"log,omitempty" yaml:"log,omitempty"`
}

// WaitConfig is the closed interval a user's wait time is drawn from.
type WaitConfig struct {
	Min Duration `json:"min" yaml:"min"`
	Max Duration `json:"max" yaml:"max"`
}

// HTTPSettings tunes the shared HTTP client.
type HTTPSettings struct {
	// Timeout is the per-request timeout; zero disables it.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	MaxIdleConnsPerHost int  `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`
	MaxConnsPerHost     int  `json:"maxConnsPerHost,omitempty" yaml:"maxConnsPerHost,omitempty"`
	DisableKeepAlives   bool `json:"disableKeepAlives,omitempty" yaml:"disableKeepAlives,omitempty"`
	InsecureSkipVerify  bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`
}

// LogConfig selects the log level and encoding.
type LogConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// ThresholdsConfig defines pass/fail criteria for run metrics.
type ThresholdsConfig struct {
	// HTTPReqDuration thresholds on latency, e.g. ["p95 < 500ms", "avg < 200ms"]
	HTTPReqDuration []string `json:"http_req_duration,omitempty" yaml:"http_req_duration,omitempty"`

	// HTTPReqFailed thresholds on the failure rate, e.g. ["rate < 0.01"]
	HTTPReqFailed []string `json:"http_req_failed,omitempty" yaml:"http_req_failed,omitempty"`

	// HTTPReqs thresholds on request count or rate, e.g. ["count > 1000", "rate > 100"]
	HTTPReqs []string `json:"http_reqs,omitempty" yaml:"http_reqs,omitempty"`
}

// Metric names accepted in thresholds.
const (
	MetricHTTPReqDuration = "http_req_duration"
	MetricHTTPReqFailed   = "http_req_failed"
	MetricHTTPReqs        = "http_reqs"
)

// Add appends expr to the list for metric.
func (t *ThresholdsConfig) Add(metric, expr string) error {
	switch metric {
	case MetricHTTPReqDuration:
		t.HTTPReqDuration = append(t.HTTPReqDuration, expr)
	case MetricHTTPReqFailed:
		t.HTTPReqFailed = append(t.HTTPReqFailed, expr)
	case MetricHTTPReqs:
		t.HTTPReqs = append(t.HTTPReqs, expr)
	default:
		return fmt.Errorf("unknown threshold metric %q", metric)
	}
	return nil
}

// IsEmpty reports whether no threshold is configured.
func (t *ThresholdsConfig) IsEmpty() bool {
	return t == nil || len(t.HTTPReqDuration)+len(t.HTTPReqFailed)+len(t.HTTPReqs) == 0
}

// Duration is a time.Duration that reads and writes as a string like "30s".
type Duration time.Duration

// GetDuration returns the duration or a default if zero.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	if s == "" || s == "null" {
		*d = 0
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	if s == "" {
		*d = 0
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
