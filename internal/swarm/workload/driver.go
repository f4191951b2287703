// Package workload defines what one virtual user does on each iteration
// and how long it waits before the next one.
package workload

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/therenotomorrow/ex"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	// DefaultWaitMin and DefaultWaitMax bound the pause between two actions of a user.
	DefaultWaitMin = time.Second
	DefaultWaitMax = 2500 * time.Millisecond

	// MinCount and MaxCount bound the {n} path parameter, both inclusive.
	MinCount = 1
	MaxCount = 100

	// RequestName groups every /count/{n} request under one statistics entry.
	RequestName = "/count/{n}"
)

const (
	ErrInvalidHost = ex.Error("invalid target host")
	ErrInvalidWait = ex.Error("invalid wait interval")
)

// Driver is the per-user behaviour run by the scheduler.
type Driver interface {
	// WaitInterval returns the closed bounds the pause between two actions is drawn from.
	WaitInterval() (low, high time.Duration)

	// Perform executes one action with the given client. It never fails:
	// transport errors and error statuses are reported inside the Outcome.
	Perform(ctx context.Context, client *http.Client) *Outcome
}

// Outcome is the observed result of one action.
type Outcome struct {
	Name          string
	Path          string
	StatusCode    int
	Body          []byte
	BytesReceived int64
	StartTime     time.Time
	Duration      time.Duration
	Error         error
}

// Success reports whether the request completed with a non error status.
func (o *Outcome) Success() bool {
	return o.Error == nil && o.StatusCode > 0 && o.StatusCode < 400
}

// CountDriver issues GET {host}/count/{n} with n drawn uniformly from [MinCount, MaxCount].
type CountDriver struct {
	baseURL  *url.URL
	waitMin  time.Duration
	waitMax  time.Duration
	bodyPath string
	logger   *zap.SugaredLogger
}

// Option configures a CountDriver.
type Option func(d *CountDriver)

// WithWait overrides the default wait bounds.
func WithWait(low, high time.Duration) Option {
	return func(d *CountDriver) {
		d.waitMin = low
		d.waitMax = high
	}
}

// WithBodyPath makes the driver log only the value at the given gjson path
// when the response body is JSON.
func WithBodyPath(path string) Option {
	return func(d *CountDriver) {
		d.bodyPath = path
	}
}

// WithLogger sets the logger used for the per-request lines.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(d *CountDriver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewCountDriver validates the host and wait bounds and returns a driver.
func NewCountDriver(host string, opts ...Option) (*CountDriver, error) {
	base, err := ParseHost(host)
	if err != nil {
		return nil, err
	}

	d := &CountDriver{
		baseURL: base,
		waitMin: DefaultWaitMin,
		waitMax: DefaultWaitMax,
		logger:  zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.waitMin < 0 || d.waitMax < d.waitMin {
		return nil, fmt.Errorf("%w: [%s, %s]", ErrInvalidWait, d.waitMin, d.waitMax)
	}

	return d, nil
}

// ParseHost checks that host is an absolute http or https URL.
func ParseHost(host string) (*url.URL, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidHost, host, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w %q: scheme must be http or https", ErrInvalidHost, host)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w %q: missing host", ErrInvalidHost, host)
	}
	return u, nil
}

// Host returns the target base URL.
func (d *CountDriver) Host() string {
	return d.baseURL.String()
}

// WaitInterval returns the wait bounds.
func (d *CountDriver) WaitInterval() (low, high time.Duration) {
	return d.waitMin, d.waitMax
}

// NextWait draws one pause from the wait bounds.
func (d *CountDriver) NextWait() time.Duration {
	return RandomWait(d.waitMin, d.waitMax)
}

// PathParam draws the {n} path parameter.
func (d *CountDriver) PathParam() int {
	return MinCount + rand.IntN(MaxCount-MinCount+1)
}

// Perform issues one GET /count/{n} and logs the status code and the body.
func (d *CountDriver) Perform(ctx context.Context, client *http.Client) *Outcome {
	target := d.baseURL.JoinPath("count", strconv.Itoa(d.PathParam()))

	out := &Outcome{
		Name:      RequestName,
		Path:      target.Path,
		StartTime: time.Now(),
	}
	defer d.log(out)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		out.Duration = time.Since(out.StartTime)
		out.Error = fmt.Errorf("failed to build request: %w", err)
		return out
	}

	resp, err := client.Do(req)
	if err != nil {
		out.Duration = time.Since(out.StartTime)
		out.Error = err
		return out
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	out.Duration = time.Since(out.StartTime)
	out.StatusCode = resp.StatusCode
	out.Body = body
	out.BytesReceived = int64(len(body))
	if err != nil {
		out.Error = fmt.Errorf("failed to read response body: %w", err)
	}

	return out
}

func (d *CountDriver) log(out *Outcome) {
	fields := []interface{}{"path", out.Path}
	if out.Error != nil {
		fields = append(fields, "error", out.Error.Error())
	}

	d.logger.Infow("Response status code", append([]interface{}{"status", out.StatusCode}, fields...)...)
	d.logger.Infow("Response content", append([]interface{}{"body", d.bodyText(out.Body)}, fields...)...)
}

func (d *CountDriver) bodyText(body []byte) string {
	if d.bodyPath != "" && gjson.ValidBytes(body) {
		if r := gjson.GetBytes(body, d.bodyPath); r.Exists() {
			return r.String()
		}
	}
	return string(body)
}

// RandomWait draws a duration uniformly from the closed interval [low, high].
func RandomWait(low, high time.Duration) time.Duration {
	if high <= low {
		return low
	}
	return low + time.Duration(rand.Int64N(int64(high-low)+1))
}

var _ Driver = (*CountDriver)(nil)
