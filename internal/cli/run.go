package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/therenotomorrow/ex"
	"go.uber.org/zap"

	"github.com/wesleyorama2/swarmer/internal/logging"
	"github.com/wesleyorama2/swarmer/internal/storage"
	"github.com/wesleyorama2/swarmer/internal/swarm/config"
	"github.com/wesleyorama2/swarmer/internal/swarm/engine"
	"github.com/wesleyorama2/swarmer/internal/swarm/output"
	"github.com/wesleyorama2/swarmer/internal/swarm/report"
)

// ErrThresholdsFailed is returned by run when the run completed but at
// least one threshold did not hold.
const ErrThresholdsFailed = ex.Error("one or more thresholds failed")

// EnvPrefix is the prefix of environment variables overriding run settings,
// e.g. SWARMER_USERS or SWARMER_SPAWN_RATE.
const EnvPrefix = "SWARMER"

// Flag names, shared with viper keys.
const (
	flagConfig        = "config"
	flagName          = "name"
	flagHost          = "host"
	flagUsers         = "users"
	flagSpawnRate     = "spawn-rate"
	flagDuration      = "duration"
	flagWaitMin       = "wait-min"
	flagWaitMax       = "wait-max"
	flagExecutor      = "executor"
	flagGracefulStop  = "graceful-stop"
	flagStatsInterval = "stats-interval"
	flagTimeout       = "timeout"
	flagRPSLimit      = "rps-limit"
	flagBodyPath      = "body-path"
	flagMetricsAddr   = "metrics-addr"
	flagInsecure      = "insecure"
	flagLogLevel      = "log-level"
	flagLogFormat     = "log-format"
	flagThreshold     = "threshold"
	flagOutput        = "output"
	flagHTML          = "html"
	flagHistory       = "history"
	flagNoHistory     = "no-history"
	flagQuiet         = "quiet"
)

func newRunCmd() *cobra.Command {
	cmd, _ := newRunCommand()
	return cmd
}

// newRunCommand returns the run command together with the viper instance
// its flags and the SWARMER_* environment are bound to.
func newRunCommand() (*cobra.Command, *viper.Viper) {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a swarm against a host",
		Long: `Start virtual users at the spawn rate until --users are running, keep
them running until --duration has elapsed, then stop them and print a summary.

Settings are taken, lowest precedence first, from the built-in defaults, the
--config YAML file, SWARMER_* environment variables and command line flags.
Several thresholds in SWARMER_THRESHOLD are separated by ";".

Examples:
  swarmer run --host http://localhost:8080 --users 500 --spawn-rate 50 --duration 2m
  swarmer run --config swarm.yaml --threshold "http_req_duration:p95 < 500ms"
  SWARMER_USERS=10 swarmer run --host http://localhost:8080`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSwarm(cmd, v)
		},
	}

	def := config.Default()
	f := cmd.Flags()
	f.StringP(flagConfig, "c", "", "YAML run configuration file")
	f.String(flagName, def.Name, "Run name used in reports and history")
	f.String(flagHost, def.Host, "Base URL of the target")
	f.IntP(flagUsers, "u", def.Users, "Number of concurrent users")
	f.Float64P(flagSpawnRate, "r", def.SpawnRate, "Users started per second")
	f.DurationP(flagDuration, "d", def.Duration.Std(), "Run time, measured from the start")
	f.Duration(flagWaitMin, def.Wait.Min.Std(), "Shortest wait between two actions of a user")
	f.Duration(flagWaitMax, def.Wait.Max.Std(), "Longest wait between two actions of a user")
	f.String(flagExecutor, def.Executor, "User ramping strategy (spawn-rate, constant-users)")
	f.Duration(flagGracefulStop, def.GracefulStop.Std(), "Time in-flight requests may run after the duration")
	f.Duration(flagStatsInterval, def.StatsInterval.Std(), "Period of the live stats table")
	f.Duration(flagTimeout, def.HTTP.Timeout.Std(), "Per-request timeout (0 disables)")
	f.Int(flagRPSLimit, def.RPSLimit, "Cap on the combined request rate (0 is unlimited)")
	f.String(flagBodyPath, def.BodyPath, "gjson path of the part of a JSON body to log")
	f.String(flagMetricsAddr, def.MetricsAddr, "Serve Prometheus metrics on this address, e.g. :9090")
	f.Bool(flagInsecure, def.HTTP.InsecureSkipVerify, "Skip TLS certificate verification")
	f.String(flagLogLevel, def.Log.Level, "Log level (debug, info, warn, error)")
	f.String(flagLogFormat, def.Log.Format, "Log format (console, json)")
	f.StringArray(flagThreshold, nil, `Pass/fail threshold "metric:expression", repeatable`)
	f.StringP(flagOutput, "o", "", `Write a JSON report to this file ("-" for stdout)`)
	f.String(flagHTML, "", "Write an HTML report to this file")
	f.String(flagHistory, "", "History database (default ~/.swarmer/history.db)")
	f.Bool(flagNoHistory, false, "Do not record the run in the history")
	f.BoolP(flagQuiet, "q", false, "Only print the verdict")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(f); err != nil {
		panic(err)
	}

	return cmd, v
}

// resolveConfig layers the sources: defaults, then the config file, then
// whatever viper reports as set by the environment or an explicit flag.
func resolveConfig(v *viper.Viper) (*config.RunConfig, error) {
	cfg := config.Default()
	if path := v.GetString(flagConfig); path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if v.IsSet(flagName) {
		cfg.Name = v.GetString(flagName)
	}
	if v.IsSet(flagHost) {
		cfg.Host = v.GetString(flagHost)
	}
	if v.IsSet(flagUsers) {
		cfg.Users = v.GetInt(flagUsers)
	}
	if v.IsSet(flagSpawnRate) {
		cfg.SpawnRate = v.GetFloat64(flagSpawnRate)
	}
	if v.IsSet(flagDuration) {
		cfg.Duration = config.Duration(v.GetDuration(flagDuration))
	}
	if v.IsSet(flagWaitMin) {
		cfg.Wait.Min = config.Duration(v.GetDuration(flagWaitMin))
	}
	if v.IsSet(flagWaitMax) {
		cfg.Wait.Max = config.Duration(v.GetDuration(flagWaitMax))
	}
	if v.IsSet(flagExecutor) {
		cfg.Executor = v.GetString(flagExecutor)
	}
	if v.IsSet(flagGracefulStop) {
		cfg.GracefulStop = config.Duration(v.GetDuration(flagGracefulStop))
	}
	if v.IsSet(flagStatsInterval) {
		cfg.StatsInterval = config.Duration(v.GetDuration(flagStatsInterval))
	}
	if v.IsSet(flagTimeout) {
		cfg.HTTP.Timeout = config.Duration(v.GetDuration(flagTimeout))
	}
	if v.IsSet(flagRPSLimit) {
		cfg.RPSLimit = v.GetInt(flagRPSLimit)
	}
	if v.IsSet(flagBodyPath) {
		cfg.BodyPath = v.GetString(flagBodyPath)
	}
	if v.IsSet(flagMetricsAddr) {
		cfg.MetricsAddr = v.GetString(flagMetricsAddr)
	}
	if v.IsSet(flagInsecure) {
		cfg.HTTP.InsecureSkipVerify = v.GetBool(flagInsecure)
	}
	if v.IsSet(flagLogLevel) {
		cfg.Log.Level = v.GetString(flagLogLevel)
	}
	if v.IsSet(flagLogFormat) {
		cfg.Log.Format = v.GetString(flagLogFormat)
	}

	if v.IsSet(flagThreshold) {
		if cfg.Thresholds == nil {
			cfg.Thresholds = &config.ThresholdsConfig{}
		}
		for _, t := range thresholdFlags(v) {
			if err := cfg.Thresholds.ParseThresholdFlag(t); err != nil {
				return nil, err
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// thresholdFlags returns the --threshold values. A repeated flag arrives as
// a list; SWARMER_THRESHOLD is a single string whose entries are separated
// by ";".
func thresholdFlags(v *viper.Viper) []string {
	switch val := v.Get(flagThreshold).(type) {
	case []string:
		return val
	case string:
		var out []string
		for _, t := range strings.Split(val, ";") {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, t)
			}
		}
		return out
	default:
		return v.GetStringSlice(flagThreshold)
	}
}

func runSwarm(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := resolveConfig(v)
	if err != nil {
		return err
	}

	// request logs and the stats table share stdout
	stdout := cmd.OutOrStdout()
	logOpts := cfg.LoggingOptions()
	logOpts.Output = stdout
	logOpts.Color = output.IsTerminal(stdout)
	logger, err := logging.New(logOpts)
	if err != nil {
		return err
	}
	defer logger.Sync()

	console := output.NewConsole(output.ConsoleConfig{
		Writer:   cmd.OutOrStdout(),
		Interval: cfg.StatsInterval.Std(),
		Quiet:    v.GetBool(flagQuiet),
	})

	eng, err := engine.NewEngine(cfg, logger, engine.WithMonitor(console))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	console.PrintHeader(cfg)

	result, err := eng.Run(ctx)
	if err != nil {
		return err
	}

	console.PrintSummary(result)

	if path := v.GetString(flagOutput); path != "" {
		if err := output.WriteJSON(result, path); err != nil {
			return err
		}
		logger.Infow("Report written", "path", path)
	}

	if path := v.GetString(flagHTML); path != "" {
		if err := report.GenerateHTML(result, path); err != nil {
			return err
		}
		logger.Infow("HTML report written", "path", path)
	}

	if !v.GetBool(flagNoHistory) {
		recordHistory(v.GetString(flagHistory), result, logger)
	}

	if !result.Passed {
		return ErrThresholdsFailed
	}
	return nil
}

// recordHistory saves the run summary. A history failure never fails the run.
func recordHistory(path string, result *engine.TestResult, logger *zap.SugaredLogger) {
	h, err := openHistory(path)
	if err != nil {
		logger.Warnw("Run not recorded in history", "error", err)
		return
	}
	defer h.Close()

	if err := h.Save(storage.NewRunRecord(result)); err != nil {
		logger.Warnw("Run not recorded in history", "error", err)
		return
	}
	logger.Debugw("Run recorded in history", "path", h.Path(), "runId", result.RunID)
}

func openHistory(path string) (*storage.History, error) {
	if path == "" {
		p, err := storage.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return storage.Open(path)
}
