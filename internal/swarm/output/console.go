// Package output renders a swarm run on the console and writes reports.
package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/wesleyorama2/swarmer/internal/swarm/config"
	"github.com/wesleyorama2/swarmer/internal/swarm/engine"
	"github.com/wesleyorama2/swarmer/internal/swarm/metrics"
)

const (
	// DefaultInterval is the period of the live stats table.
	DefaultInterval = 2 * time.Second

	ruleWidth = 100
	nameWidth = 32
	heavyRule = "━"
)

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Writer   io.Writer
	Interval time.Duration
	Quiet    bool

	ForceColors bool
	ForceTTY    bool
}

// Console prints the run header, the periodic stats table and the final summary.
type Console struct {
	writer   io.Writer
	interval time.Duration
	quiet    bool
	isTTY    bool
	colors   *ColorScheme

	mu sync.Mutex
}

// NewConsole creates a console printer. Colors are used when the writer is
// a terminal that supports them, or when forced.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	isTTY := cfg.ForceTTY || IsTerminal(cfg.Writer)
	scheme := NoColorScheme()
	if cfg.ForceColors || (isTTY && supportsColors()) {
		scheme = DefaultColorScheme()
	}

	return &Console{
		writer:   cfg.Writer,
		interval: cfg.Interval,
		quiet:    cfg.Quiet,
		isTTY:    isTTY,
		colors:   scheme,
	}
}

// IsTTY returns whether the output is a terminal.
func (c *Console) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the run parameters.
func (c *Console) PrintHeader(cfg *config.RunConfig) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := strings.Repeat(heavyRule, 56)
	c.writeln(c.colors.Value.Sprint(line))
	c.writeln(c.colors.Title.Sprintf("%s - Running [%s]", cfg.Name, cfg.Executor))
	c.writeln(c.colors.Value.Sprint(line))
	c.writeln(fmt.Sprintf("Host:        %s", c.colors.Accent.Sprint(cfg.Host)))
	c.writeln(fmt.Sprintf("Users:       %s at %s users/s",
		c.colors.Value.Sprint(formatNumber(int64(cfg.Users))),
		c.colors.Value.Sprintf("%g", cfg.SpawnRate)))
	c.writeln(fmt.Sprintf("Duration:    %s (graceful stop %s)",
		c.colors.Value.Sprint(formatDuration(cfg.Duration.Std())),
		formatDuration(cfg.GracefulStop.Std())))
	c.writeln(fmt.Sprintf("Wait:        %s - %s",
		formatDurationShort(cfg.Wait.Min.Std()),
		formatDurationShort(cfg.Wait.Max.Std())))
	if cfg.RPSLimit > 0 {
		c.writeln(fmt.Sprintf("RPS limit:   %d", cfg.RPSLimit))
	}
	c.writeln("")
}

// Monitor prints the stats table every interval until ctx is done.
func (c *Console) Monitor(ctx context.Context, src engine.StatsSource) error {
	if c.quiet {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.PrintStats(src)
		}
	}
}

// PrintStats prints one stats table: a row per request name, the aggregated
// row and the user counts.
func (c *Console) PrintStats(src engine.StatsSource) {
	snapshot := src.Snapshot()
	if snapshot == nil {
		return
	}
	rows := src.RequestStats()
	execStats := src.ExecutorStats()

	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := snapshot.Elapsed.Seconds()
	perSecond := func(n int64) float64 {
		if elapsed <= 0 {
			return 0
		}
		return float64(n) / elapsed
	}

	rule := c.colors.Dim.Sprint(strings.Repeat("-", ruleWidth))

	c.writeln(c.colors.Label.Sprintf("%-8s %-*s %8s %14s | %6s %6s %6s %6s | %8s %10s",
		"Type", nameWidth, "Name", "# reqs", "# fails", "Avg", "Min", "Max", "Med", "req/s", "failures/s"))
	c.writeln(rule)

	for _, r := range rows {
		c.writeln(c.statsRow("GET", r.Name, r.Requests, r.Failures, r.Latency,
			perSecond(r.Requests), perSecond(r.Failures)))
	}
	if len(rows) > 0 {
		c.writeln(rule)
	}

	c.writeln(c.statsRow("", "Aggregated", snapshot.TotalRequests, snapshot.FailedRequests, snapshot.Latency,
		snapshot.CurrentRPS, perSecond(snapshot.FailedRequests)))

	users := fmt.Sprintf("Users: %s active", c.colors.Value.Sprint(snapshot.ActiveUsers))
	if execStats != nil {
		users += fmt.Sprintf(", %d spawned, target %d", execStats.SpawnedUsers, execStats.TargetUsers)
	}
	c.writeln(fmt.Sprintf("%s | phase: %s | elapsed: %s",
		users,
		c.colors.Accent.Sprint(snapshot.CurrentPhase),
		formatDuration(snapshot.Elapsed)))
	c.writeln("")
}

func (c *Console) statsRow(method, name string, reqs, fails int64, lat metrics.LatencyStats, rps, fps float64) string {
	failRate := 0.0
	if reqs > 0 {
		failRate = float64(fails) / float64(reqs)
	}
	failCell := fmt.Sprintf("%d(%.2f%%)", fails, failRate*100)

	return fmt.Sprintf("%-8s %-*s %s %s | %6s %6s %6s %6s | %s %10.2f",
		method,
		nameWidth, truncate(name, nameWidth),
		c.colors.Value.Sprintf("%8d", reqs),
		c.colors.rateColor(failRate).Sprintf("%14s", failCell),
		formatMillis(lat.Mean), formatMillis(lat.Min), formatMillis(lat.Max), formatMillis(lat.P50),
		c.colors.Rate.Sprintf("%8.2f", rps),
		fps)
}

// PrintSummary prints the final summary: totals, latency distribution,
// status codes, errors and thresholds. In quiet mode only the verdict is printed.
func (c *Console) PrintSummary(result *engine.TestResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.quiet {
		if result.Passed {
			c.writeln(c.colors.Good.Sprint("PASSED"))
		} else {
			c.writeln(c.colors.Bad.Sprint("FAILED"))
		}
		return
	}

	line := strings.Repeat(heavyRule, 56)
	status := c.colors.Good.Sprint("Completed ✓")
	if !result.Passed {
		status = c.colors.Bad.Sprint("Failed ✗")
	}
	if result.Interrupted {
		status += c.colors.Warn.Sprint(" (interrupted)")
	}

	c.writeln("")
	c.writeln(c.colors.Value.Sprint(line))
	c.writeln(fmt.Sprintf("%s - %s", c.colors.Title.Sprint(result.Name), status))
	c.writeln(c.colors.Value.Sprint(line))
	c.writeln("")

	c.writeln(fmt.Sprintf("Run ID:        %s", c.colors.Dim.Sprint(result.RunID)))
	c.writeln(fmt.Sprintf("Duration:      %s", c.colors.Value.Sprint(formatDuration(result.Duration))))
	c.writeln(fmt.Sprintf("Users:         %s spawned", c.colors.Value.Sprint(formatNumber(int64(result.Spawned)))))

	m := result.Metrics
	if m == nil {
		return
	}

	c.writeln(fmt.Sprintf("Total Reqs:    %s", c.colors.Value.Sprint(formatNumber(m.TotalRequests))))
	c.writeln(fmt.Sprintf("Failures:      %s", c.colors.rateColor(m.ErrorRate).Sprint(formatNumber(m.FailedRequests))))

	successRate := 1.0
	if m.TotalRequests > 0 {
		successRate = 1.0 - m.ErrorRate
	}
	c.writeln(fmt.Sprintf("Success Rate:  %s", c.colors.rateColor(1-successRate).Sprintf("%.1f%%", successRate*100)))
	c.writeln(fmt.Sprintf("RPS:           %s", c.colors.Rate.Sprintf("%.2f", m.RPS)))
	c.writeln(fmt.Sprintf("Received:      %s bytes", formatNumber(m.TotalBytes)))
	c.writeln("")

	c.writeln(c.colors.Label.Sprint("Latency Distribution:"))
	c.writeln(fmt.Sprintf("  Min:       %s", formatDurationShort(m.Latency.Min)))
	c.writeln(fmt.Sprintf("  Avg:       %s", formatDurationShort(m.Latency.Mean)))
	c.writeln(fmt.Sprintf("  P50:       %s", formatDurationShort(m.Latency.P50)))
	c.writeln(fmt.Sprintf("  P90:       %s", formatDurationShort(m.Latency.P90)))
	c.writeln(fmt.Sprintf("  P95:       %s", formatDurationShort(m.Latency.P95)))
	c.writeln(fmt.Sprintf("  P99:       %s", formatDurationShort(m.Latency.P99)))
	c.writeln(fmt.Sprintf("  Max:       %s", formatDurationShort(m.Latency.Max)))
	c.writeln("")

	if len(m.StatusCodes) > 0 {
		c.writeln(c.colors.Label.Sprint("Status Codes:"))
		codes := make([]int, 0, len(m.StatusCodes))
		for code := range m.StatusCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		for _, code := range codes {
			c.writeln(fmt.Sprintf("  %s  %s", c.statusColor(code).Sprintf("%d", code), formatNumber(m.StatusCodes[code])))
		}
		c.writeln("")
	}

	if len(m.Errors) > 0 {
		c.writeln(c.colors.Label.Sprint("Errors:"))
		for _, e := range m.Errors {
			c.writeln(fmt.Sprintf("  %s  %s", c.colors.Bad.Sprintf("%8s", formatNumber(e.Count)), e.Message))
		}
		c.writeln("")
	}

	if len(result.Thresholds) > 0 {
		c.writeln(c.colors.Label.Sprint("Thresholds:"))
		for _, t := range result.Thresholds {
			mark := c.colors.Good.Sprint("✓")
			if !t.Passed {
				mark = c.colors.Bad.Sprint("✗")
			}
			row := fmt.Sprintf("  %s %s %s (actual: %s)", mark, t.Metric, t.Expression, t.Value)
			if !t.Passed && t.Message != "" {
				row += c.colors.Dim.Sprintf(" %s", t.Message)
			}
			c.writeln(row)
		}
		c.writeln("")
	}
}

func (c *Console) statusColor(code int) *color.Color {
	switch {
	case code >= 500:
		return c.colors.Bad
	case code >= 400:
		return c.colors.Warn
	default:
		return c.colors.Good
	}
}

// writeln writes to the output with a newline.
func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

var _ engine.Monitor = (*Console)(nil)
