package report

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Name}} - Swarm Report</title>
    <script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
    <style>
        :root {
            --bg: #f8fafc;
            --card: #ffffff;
            --text: #1e293b;
            --muted: #64748b;
            --border: #e2e8f0;
            --good: #22c55e;
            --bad: #ef4444;
        }
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif;
            background: var(--bg);
            color: var(--text);
            line-height: 1.5;
        }
        .container { max-width: 1200px; margin: 0 auto; padding: 2rem; }
        .card {
            background: var(--card);
            border: 1px solid var(--border);
            border-radius: 10px;
            padding: 1.5rem;
            margin-bottom: 1.5rem;
        }
        .header { display: flex; justify-content: space-between; align-items: center; }
        .header .meta { color: var(--muted); font-size: 0.9rem; }
        .status { font-weight: 700; padding: 0.4rem 1rem; border-radius: 6px; color: #fff; }
        .status.pass { background: var(--good); }
        .status.fail { background: var(--bad); }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(160px, 1fr)); gap: 1rem; }
        .metric .label { color: var(--muted); font-size: 0.8rem; text-transform: uppercase; }
        .metric .value { font-size: 1.5rem; font-weight: 700; }
        h2 { font-size: 1.1rem; margin-bottom: 1rem; }
        table { width: 100%; border-collapse: collapse; font-size: 0.9rem; }
        th, td { text-align: left; padding: 0.4rem 0.6rem; border-bottom: 1px solid var(--border); }
        th { color: var(--muted); font-weight: 600; }
        td.num, th.num { text-align: right; font-variant-numeric: tabular-nums; }
        .charts { display: grid; grid-template-columns: repeat(auto-fit, minmax(480px, 1fr)); gap: 1rem; }
        .chart { height: 260px; }
        .fail-text { color: var(--bad); }
        footer { color: var(--muted); font-size: 0.8rem; text-align: center; }
    </style>
</head>
<body>
<div class="container">
    <header class="card header">
        <div>
            <h1>{{.Name}}</h1>
            <div class="meta">
                {{.Host}} &middot; {{.Executor}} &middot; {{.Users}} users at {{printf "%.1f" .SpawnRate}}/s
                &middot; {{.StartTime.Format "2006-01-02 15:04:05"}} &middot; {{formatDuration .Duration}}
                {{if .Interrupted}}&middot; interrupted{{end}}
            </div>
            <div class="meta">run {{.RunID}}</div>
        </div>
        <div class="status {{if .Passed}}pass{{else}}fail{{end}}">{{if .Passed}}PASSED{{else}}FAILED{{end}}</div>
    </header>

    <section class="card grid">
        <div class="metric"><div class="label">Total Requests</div><div class="value">{{.Metrics.TotalRequests}}</div></div>
        <div class="metric"><div class="label">Failures</div><div class="value">{{.Metrics.FailedRequests}}</div></div>
        <div class="metric"><div class="label">Throughput</div><div class="value">{{printf "%.1f" .Metrics.RPS}} req/s</div></div>
        <div class="metric"><div class="label">Success Rate</div><div class="value">{{percent (successRate .Metrics)}}</div></div>
        <div class="metric"><div class="label">P95 Latency</div><div class="value">{{formatLatency .Metrics.Latency.P95}}</div></div>
        <div class="metric"><div class="label">Data Received</div><div class="value">{{formatBytes .Metrics.TotalBytes}}</div></div>
        <div class="metric"><div class="label">Users Spawned</div><div class="value">{{.Spawned}}</div></div>
    </section>

    <section class="card">
        <h2>Latency</h2>
        <table>
            <tr><th>min</th><th>p50</th><th>p90</th><th>p95</th><th>p99</th><th>max</th><th>mean</th><th>stddev</th></tr>
            <tr>
                <td>{{formatLatency .Metrics.Latency.Min}}</td>
                <td>{{formatLatency .Metrics.Latency.P50}}</td>
                <td>{{formatLatency .Metrics.Latency.P90}}</td>
                <td>{{formatLatency .Metrics.Latency.P95}}</td>
                <td>{{formatLatency .Metrics.Latency.P99}}</td>
                <td>{{formatLatency .Metrics.Latency.Max}}</td>
                <td>{{formatLatency .Metrics.Latency.Mean}}</td>
                <td>{{formatLatency .Metrics.Latency.StdDev}}</td>
            </tr>
        </table>
    </section>

    {{if .TimeSeries}}
    <section class="card">
        <h2>Over Time</h2>
        <div class="charts">
            <div class="chart"><canvas id="rpsChart"></canvas></div>
            <div class="chart"><canvas id="latencyChart"></canvas></div>
            <div class="chart"><canvas id="usersChart"></canvas></div>
            <div class="chart"><canvas id="errorChart"></canvas></div>
        </div>
    </section>
    {{end}}

    {{if .RequestStats}}
    <section class="card">
        <h2>Requests</h2>
        <table>
            <tr>
                <th>Name</th><th class="num"># reqs</th><th class="num"># fails</th>
                <th class="num">avg</th><th class="num">min</th><th class="num">p50</th>
                <th class="num">p95</th><th class="num">max</th>
            </tr>
            {{range .RequestStats}}
            <tr>
                <td>GET {{.Name}}</td>
                <td class="num">{{.Requests}}</td>
                <td class="num">{{.Failures}}</td>
                <td class="num">{{formatLatency .Latency.Mean}}</td>
                <td class="num">{{formatLatency .Latency.Min}}</td>
                <td class="num">{{formatLatency .Latency.P50}}</td>
                <td class="num">{{formatLatency .Latency.P95}}</td>
                <td class="num">{{formatLatency .Latency.Max}}</td>
            </tr>
            {{end}}
        </table>
    </section>
    {{end}}

    {{if .Metrics.StatusCodes}}
    <section class="card">
        <h2>Status Codes</h2>
        <table>
            <tr><th>Status</th><th class="num">Count</th></tr>
            {{range $code, $count := .Metrics.StatusCodes}}
            <tr><td>{{$code}}</td><td class="num">{{$count}}</td></tr>
            {{end}}
        </table>
    </section>
    {{end}}

    {{if .Metrics.Errors}}
    <section class="card">
        <h2>Errors</h2>
        <table>
            <tr><th>Message</th><th class="num">Occurrences</th></tr>
            {{range .Metrics.Errors}}
            <tr><td class="fail-text">{{.Message}}</td><td class="num">{{.Count}}</td></tr>
            {{end}}
        </table>
    </section>
    {{end}}

    {{if .Thresholds}}
    <section class="card">
        <h2>Thresholds</h2>
        <table>
            <tr><th></th><th>Metric</th><th>Expression</th><th>Actual</th></tr>
            {{range .Thresholds}}
            <tr>
                <td>{{if .Passed}}&#10003;{{else}}<span class="fail-text">&#10007;</span>{{end}}</td>
                <td>{{.Metric}}</td>
                <td>{{.Expression}}</td>
                <td>{{.Value}}{{if .Message}} <span class="fail-text">{{.Message}}</span>{{end}}</td>
            </tr>
            {{end}}
        </table>
    </section>
    {{end}}

    <footer>Generated by swarmer &middot; {{.EndTime.Format "2006-01-02 15:04:05 MST"}}</footer>
</div>

{{if .TimeSeries}}
<script>
    const series = {{.TimeSeriesJSON}};
    const labels = series.map(p => p.t + 's');

    function line(id, datasets, unit) {
        new Chart(document.getElementById(id), {
            type: 'line',
            data: { labels: labels, datasets: datasets },
            options: {
                responsive: true,
                maintainAspectRatio: false,
                interaction: { mode: 'index', intersect: false },
                elements: { point: { radius: 0 }, line: { tension: 0.3, borderWidth: 2 } },
                scales: { y: { beginAtZero: true, title: { display: true, text: unit } } },
            },
        });
    }

    line('rpsChart', [{ label: 'req/s', data: series.map(p => p.rps), borderColor: '#3b82f6' }], 'req/s');
    line('latencyChart', [
        { label: 'p50', data: series.map(p => p.p50), borderColor: '#22c55e' },
        { label: 'p95', data: series.map(p => p.p95), borderColor: '#f59e0b' },
        { label: 'p99', data: series.map(p => p.p99), borderColor: '#ef4444' },
    ], 'ms');
    line('usersChart', [{ label: 'active users', data: series.map(p => p.users), borderColor: '#8b5cf6' }], 'users');
    line('errorChart', [{ label: 'failures', data: series.map(p => p.errorRate), borderColor: '#ef4444' }], '%');
</script>
{{end}}
</body>
</html>
`
