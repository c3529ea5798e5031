package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ethnograph/internal/config"
	"ethnograph/internal/logging"
	"ethnograph/internal/metrics"
	"ethnograph/internal/metrics/datadog"
	"ethnograph/internal/metrics/prompush"

	// register every storage backend; STORAGE_KIND selects one.
	_ "ethnograph/internal/storage/all"
)

// app is the state shared by all subcommands of one invocation.
type app struct {
	cfg     config.Config
	log     *zap.SugaredLogger
	metrics metrics.Backend
	stdout  io.Writer

	verbose        bool
	dataDir        string
	outDir         string
	storageKind    string
	dsn            string
	metricsBackend string
	logMode        string
	rules          string
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ethnograph",
		Short:         "Parse, match and load African ethnic-group data",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	f := cmd.PersistentFlags()
	f.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logs")
	f.StringVar(&a.dataDir, "data", "", "Input directory (overrides ETHNO_DATA_DIR)")
	f.StringVar(&a.outDir, "out", "", "Artifact directory (overrides ETHNO_OUT_DIR)")
	f.StringVar(&a.storageKind, "storage", "", "Storage backend: postgres|sqlite|mssql|memory (overrides STORAGE_KIND)")
	f.StringVar(&a.dsn, "dsn", "", "Database DSN (overrides DATABASE_URL)")
	f.StringVar(&a.metricsBackend, "metrics-backend", "", "Metrics backend: none|datadog|pushgateway (overrides METRICS_BACKEND)")
	f.StringVar(&a.logMode, "log-mode", "", "Log mode: development|production (overrides LOG_MODE)")
	f.StringVar(&a.rules, "rules", "", "Dossier heuristics YAML file (overrides DOSSIER_RULES)")

	cmd.AddCommand(newCSVCmd(a))
	cmd.AddCommand(newDossiersCmd(a))
	cmd.AddCommand(newMatchCmd(a))
	cmd.AddCommand(newLoadCmd(a))
	cmd.AddCommand(newRunCmd(a))
	cmd.AddCommand(newProbeCmd(a))
	return cmd
}

// setup resolves configuration (env files, environment, then flags) and
// builds the logger and metrics backend.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return withCode(exitUsage, err)
	}
	override := func(name string, dst *string, v string) {
		if cmd.Flags().Changed(name) {
			*dst = v
		}
	}
	override("data", &cfg.DataDir, a.dataDir)
	override("out", &cfg.OutDir, a.outDir)
	override("storage", &cfg.StorageKind, a.storageKind)
	override("dsn", &cfg.DatabaseURL, a.dsn)
	override("metrics-backend", &cfg.MetricsBackend, a.metricsBackend)
	override("log-mode", &cfg.LogMode, a.logMode)
	override("rules", &cfg.DossierRules, a.rules)
	a.cfg = cfg

	log, err := logging.New(cfg.LogMode, a.verbose)
	if err != nil {
		return withCode(exitUsage, fmt.Errorf("logger: %w", err))
	}
	a.log = log
	a.metrics = a.openMetrics(cmd.Context())
	return nil
}

// openMetrics selects the metrics backend. A backend that fails to start is
// logged and replaced by a no-op; metrics never fail a run.
func (a *app) openMetrics(ctx context.Context) metrics.Backend {
	job := a.cfg.MetricsJob
	switch name := strings.ToLower(strings.TrimSpace(a.cfg.MetricsBackend)); name {
	case "pushgateway":
		b, err := prompush.NewBackend(job, a.cfg.PushgatewayURL)
		if err != nil {
			a.log.Warnw("metrics: pushgateway init failed; using nop", "error", err)
			return metrics.Nop{}
		}
		a.log.Debugw("metrics enabled", "backend", name, "url", a.cfg.PushgatewayURL, "job", job)
		return b
	case "datadog":
		tags := datadog.ParseTagsCSV(a.cfg.MetricsTags)
		b, err := datadog.NewBackend(ctx, datadog.Options{JobName: job, Tags: tags, FlushEvery: 60 * time.Second})
		if err != nil {
			a.log.Warnw("metrics: datadog init failed; using nop", "error", err)
			return metrics.Nop{}
		}
		a.log.Debugw("metrics enabled", "backend", name, "job", job, "tags", tags)
		return b
	case "", "none":
		return metrics.Nop{}
	default:
		a.log.Warnw("metrics: unknown backend; metrics disabled", "backend", name)
		return metrics.Nop{}
	}
}

func (a *app) close() {
	if a.metrics != nil {
		if err := a.metrics.Close(); err != nil {
			a.log.Warnw("metrics: close/flush failed", "error", err)
		}
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

// run executes one invocation and returns its exit status.
func run(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout}
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(context.Background())
	a.close()
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
	}
	return exitCode(err)
}
