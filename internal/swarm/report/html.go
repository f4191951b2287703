// Package report renders a finished run as a standalone HTML page.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/wesleyorama2/swarmer/internal/swarm/engine"
	"github.com/wesleyorama2/swarmer/internal/swarm/metrics"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var page = template.Must(template.New("report").Funcs(templateFuncs()).Parse(htmlTemplate))

// ReportData is what the template renders.
type ReportData struct {
	*engine.TestResult
	TimeSeriesJSON template.JS
}

// chartPoint is one stats history sample as the page's charts read it.
// Latencies are in milliseconds.
type chartPoint struct {
	Second      int     `json:"t"`
	RPS         float64 `json:"rps"`
	P50         float64 `json:"p50"`
	P95         float64 `json:"p95"`
	P99         float64 `json:"p99"`
	ActiveUsers int     `json:"users"`
	ErrorRate   float64 `json:"errorRate"`
	Phase       string  `json:"phase"`
}

// GenerateHTML writes the report for result to outputPath, creating parent
// directories as needed.
func GenerateHTML(result *engine.TestResult, outputPath string) error {
	html, err := GenerateHTMLString(result)
	if err != nil {
		return fmt.Errorf("failed to generate HTML: %w", err)
	}

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, []byte(html), 0o644); err != nil {
		return fmt.Errorf("failed to write HTML file: %w", err)
	}
	return nil
}

// GenerateHTMLString renders the report for result.
func GenerateHTMLString(result *engine.TestResult) (string, error) {
	if result == nil {
		return "", fmt.Errorf("result cannot be nil")
	}
	if result.Metrics == nil {
		return "", fmt.Errorf("result has no metrics")
	}

	series, err := chartJSON(result.StartTime, result.TimeSeries)
	if err != nil {
		return "", fmt.Errorf("failed to convert time series: %w", err)
	}

	var buf bytes.Buffer
	data := ReportData{TestResult: result, TimeSeriesJSON: template.JS(series)}
	if err := page.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

func chartJSON(start time.Time, buckets []*metrics.TimeBucket) (string, error) {
	points := make([]chartPoint, 0, len(buckets))
	for _, b := range buckets {
		points = append(points, chartPoint{
			Second:      int(b.Timestamp.Sub(start).Round(time.Second) / time.Second),
			RPS:         b.IntervalRPS,
			P50:         millis(b.LatencyP50),
			P95:         millis(b.LatencyP95),
			P99:         millis(b.LatencyP99),
			ActiveUsers: b.ActiveUsers,
			ErrorRate:   b.IntervalErrorRate * 100,
			Phase:       string(b.Phase),
		})
	}

	data, err := json.Marshal(points)
	if err != nil {
		return "[]", err
	}
	return string(data), nil
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDuration": formatDuration,
		"formatLatency":  formatLatency,
		"formatBytes":    formatBytes,
		"percent":        func(f float64) string { return fmt.Sprintf("%.2f%%", f*100) },
		"successRate":    successRate,
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		if secs := int(d.Seconds()) % 60; secs != 0 {
			return fmt.Sprintf("%dm %ds", int(d.Minutes()), secs)
		}
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// formatLatency keeps three significant digits below ten seconds.
func formatLatency(d time.Duration) string {
	switch {
	case d == 0:
		return "0"
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		ms := millis(d)
		if ms < 10 {
			return fmt.Sprintf("%.2fms", ms)
		}
		if ms < 100 {
			return fmt.Sprintf("%.1fms", ms)
		}
		return fmt.Sprintf("%dms", int(ms))
	case d < 10*time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	default:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
}

func formatBytes(n int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)

	switch {
	case n >= gb:
		return fmt.Sprintf("%.2f GB", float64(n)/gb)
	case n >= mb:
		return fmt.Sprintf("%.2f MB", float64(n)/mb)
	case n >= kb:
		return fmt.Sprintf("%.2f KB", float64(n)/kb)
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func successRate(m *metrics.Snapshot) float64 {
	if m == nil || m.TotalRequests == 0 {
		return 0
	}
	return float64(m.SuccessRequests) / float64(m.TotalRequests)
}
