package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"grampscore/internal/config"
	"grampscore/internal/core"
	"grampscore/internal/metrics"
)

// session holds what every subcommand needs once the database is open.
type session struct {
	cfg     config.Config
	log     *slog.Logger
	db      *core.Database
	metrics *metrics.Metrics

	registry  *prometheus.Registry
	traceFile *os.File
}

type globalFlags struct {
	tracePath   string
	otel        bool
	metricsPath string
	readOnly    bool
}

func newRootCmd() *cobra.Command {
	var g globalFlags
	root := &cobra.Command{
		Use:          "grampscheck",
		Short:        "grampscheck - maintenance for grampscore family tree databases",
		Long:         "grampscheck opens the database configured by GRAMPSCORE_* variables and checks or repairs it.",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.tracePath, "trace", "", "Write one JSON line per database operation to this file")
	root.PersistentFlags().BoolVar(&g.otel, "otel", false, "Trace database operations with the global OpenTelemetry provider")
	root.PersistentFlags().StringVar(&g.metricsPath, "metrics-file", "", "Write Prometheus metrics in text format to this file on exit")
	root.PersistentFlags().BoolVar(&g.readOnly, "read-only", false, "Open the database read-only")
	root.MarkFlagsMutuallyExclusive("trace", "otel")

	root.AddCommand(newCheckCmd(&g))
	root.AddCommand(newRepairCmd(&g))
	root.AddCommand(newStatsCmd(&g))
	return root
}

// open resolves the configuration and opens the database with logging,
// metrics and tracing attached.
func (g *globalFlags) open(ctx context.Context, cmd *cobra.Command) (*session, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	if g.readOnly {
		cfg.ReadOnly = true
	}
	s := &session{cfg: cfg, log: cfg.Logger(cmd.ErrOrStderr()), registry: prometheus.NewRegistry()}
	s.metrics = metrics.New(s.registry)

	opts := append(cfg.Options(), core.WithLogger(s.log), core.WithMetricsRecorder(s.metrics))
	switch {
	case g.tracePath != "":
		f, err := os.Create(g.tracePath)
		if err != nil {
			return nil, fmt.Errorf("trace file: %w", err)
		}
		s.traceFile = f
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f)))
	case g.otel:
		opts = append(opts, core.WithTracer(metrics.NewTracer(nil)))
	}

	s.db, err = core.OpenStorage(ctx, cfg.Storage, opts...)
	if err != nil {
		_ = s.closeTrace()
		return nil, err
	}
	s.log.Debug("database opened", "driver", cfg.Storage.Driver, "read_only", cfg.ReadOnly)
	return s, nil
}

// close releases the database and flushes the metrics file, if requested.
func (s *session) close(g *globalFlags) error {
	err := s.db.Close()
	if g.metricsPath != "" {
		err = errors.Join(err, prometheus.WriteToTextfile(g.metricsPath, s.registry))
	}
	return errors.Join(err, s.closeTrace())
}

func (s *session) closeTrace() error {
	if s.traceFile == nil {
		return nil
	}
	return s.traceFile.Close()
}
