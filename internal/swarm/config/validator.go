package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/swarmer/internal/logging"
	"github.com/wesleyorama2/swarmer/internal/swarm/executor"
	"github.com/wesleyorama2/swarmer/internal/swarm/workload"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Fields returns the names of the offending fields.
func (e *ValidationErrors) Fields() []string {
	fields := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		fields = append(fields, err.Field)
	}
	return fields
}

// Validate validates the run configuration.
//
// Returns nil if valid, or a *ValidationErrors listing every problem found.
func (c *RunConfig) Validate() error {
	errs := &ValidationErrors{}

	if _, err := workload.ParseHost(c.Host); err != nil {
		errs.Add("host", err.Error())
	}

	// users == 0 is a valid, empty run
	if c.Users < 0 {
		errs.Add("users", "must be >= 0")
	}
	if c.SpawnRate <= 0 {
		errs.Add("spawnRate", "must be > 0")
	}
	if c.Duration <= 0 {
		errs.Add("duration", "must be > 0")
	}

	if c.Executor != "" && !executor.IsValidType(c.Executor) {
		errs.Add("executor", fmt.Sprintf("unknown executor type: %s (supported: %v)", c.Executor, executor.SupportedTypes()))
	}

	if c.Wait.Min < 0 {
		errs.Add("wait.min", "cannot be negative")
	}
	if c.Wait.Max < 0 {
		errs.Add("wait.max", "cannot be negative")
	}
	if c.Wait.Min > c.Wait.Max {
		errs.Add("wait", fmt.Sprintf("min (%s) must not exceed max (%s)", c.Wait.Min, c.Wait.Max))
	}

	if c.GracefulStop < 0 {
		errs.Add("gracefulStop", "cannot be negative")
	}
	if c.StatsInterval < 0 {
		errs.Add("statsInterval", "cannot be negative")
	}
	if c.RPSLimit < 0 {
		errs.Add("rpsLimit", "cannot be negative")
	}

	validateHTTP(&c.HTTP, errs)
	validateLog(&c.Log, errs)

	if c.Thresholds != nil {
		validateThresholds(c.Thresholds, errs)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateHTTP(h *HTTPSettings, errs *ValidationErrors) {
	if h.Timeout < 0 {
		errs.Add("http.timeout", "cannot be negative")
	}
	if h.MaxConnsPerHost < 0 {
		errs.Add("http.maxConnsPerHost", "cannot be negative")
	}
	if h.MaxIdleConnsPerHost < 0 {
		errs.Add("http.maxIdleConnsPerHost", "cannot be negative")
	}
}

func validateLog(l *LogConfig, errs *ValidationErrors) {
	if _, err := logging.New(logging.Options{Level: l.Level, Format: l.Format}); err != nil {
		errs.Add("log", err.Error())
	}
}

func validateThresholds(t *ThresholdsConfig, errs *ValidationErrors) {
	for i, expr := range t.HTTPReqDuration {
		if err := ValidateThresholdExpression(MetricHTTPReqDuration, expr); err != nil {
			errs.Add(fmt.Sprintf("thresholds.%s[%d]", MetricHTTPReqDuration, i), err.Error())
		}
	}
	for i, expr := range t.HTTPReqFailed {
		if err := ValidateThresholdExpression(MetricHTTPReqFailed, expr); err != nil {
			errs.Add(fmt.Sprintf("thresholds.%s[%d]", MetricHTTPReqFailed, i), err.Error())
		}
	}
	for i, expr := range t.HTTPReqs {
		if err := ValidateThresholdExpression(MetricHTTPReqs, expr); err != nil {
			errs.Add(fmt.Sprintf("thresholds.%s[%d]", MetricHTTPReqs, i), err.Error())
		}
	}
}

var thresholdPattern = regexp.MustCompile(`^(\w+)\s*(<=|>=|==|!=|<|>)\s*(.+)$`)

// ParseThresholdExpression splits "p95 < 500ms" into its statistic,
// operator and value.
func ParseThresholdExpression(expr string) (stat, op, value string, err error) {
	m := thresholdPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if m == nil {
		return "", "", "", fmt.Errorf("invalid threshold expression %q: expected <stat> <op> <value>", expr)
	}
	return m[1], m[2], strings.TrimSpace(m[3]), nil
}

// ValidateThresholdExpression checks that expr is a well-formed threshold for metric.
//
// Valid forms:
//   - http_req_duration: p50, p90, p95, p99, min, max, avg, med with a duration ("p95 < 500ms")
//   - http_req_failed: rate with a fraction ("rate < 0.01")
//   - http_reqs: count with an integer or rate with a number ("count > 1000", "rate > 100")
func ValidateThresholdExpression(metric, expr string) error {
	stat, _, value, err := ParseThresholdExpression(expr)
	if err != nil {
		return err
	}

	switch metric {
	case MetricHTTPReqDuration:
		switch stat {
		case "p50", "p90", "p95", "p99", "min", "max", "avg", "med":
		default:
			return fmt.Errorf("unsupported statistic %q for %s", stat, metric)
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}

	case MetricHTTPReqFailed:
		if stat != "rate" {
			return fmt.Errorf("unsupported statistic %q for %s", stat, metric)
		}
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("invalid number %q", value)
		}

	case MetricHTTPReqs:
		switch stat {
		case "count":
			if _, err := strconv.ParseInt(value, 10, 64); err != nil {
				return fmt.Errorf("invalid count %q", value)
			}
		case "rate":
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				return fmt.Errorf("invalid number %q", value)
			}
		default:
			return fmt.Errorf("unsupported statistic %q for %s", stat, metric)
		}

	default:
		return fmt.Errorf("unknown threshold metric %q", metric)
	}

	return nil
}

// ParseThresholdFlag parses the command line form "metric:expr", for
// example "http_req_duration:p95<500ms", and adds it to t.
func (t *ThresholdsConfig) ParseThresholdFlag(flag string) error {
	metric, expr, ok := strings.Cut(flag, ":")
	if !ok {
		return fmt.Errorf("invalid threshold %q: expected metric:expression", flag)
	}

	metric = strings.TrimSpace(metric)
	if err := ValidateThresholdExpression(metric, expr); err != nil {
		return fmt.Errorf("invalid threshold %q: %w", flag, err)
	}
	return t.Add(metric, strings.TrimSpace(expr))
}
