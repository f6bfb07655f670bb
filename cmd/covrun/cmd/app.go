package cmd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/psantana5/covrun/internal/config"
	"github.com/psantana5/covrun/internal/coverage"
	"github.com/psantana5/covrun/internal/framework"
	"github.com/psantana5/covrun/internal/history"
	"github.com/psantana5/covrun/internal/instrumenter"
	"github.com/psantana5/covrun/internal/report"
	"github.com/psantana5/covrun/internal/symbols"
	"github.com/psantana5/covrun/pkg/filesystem"
	"github.com/psantana5/covrun/pkg/logging"
)

// app holds what every command builds from the configuration.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	fs       *filesystem.FS
	registry *prometheus.Registry
	metrics  *report.Metrics
	history  history.Store
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	level := logging.ParseLevel(cfg.Logging.Level)
	jsonFormat := cfg.Logging.Format == "json"
	logger := logging.NewLogger(level, jsonFormat)
	if cfg.Logging.Dir != "" {
		if logger, err = logging.NewFileLogger(cfg.Logging.Dir, "covrun", level, jsonFormat); err != nil {
			return nil, &ExitError{Code: 2, Err: err}
		}
	}
	if cfg.File != "" {
		logger.Debug("config loaded", map[string]interface{}{"file": cfg.File})
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		fs:       filesystem.OS(),
		registry: prometheus.NewRegistry(),
	}
	if a.metrics, err = report.NewMetrics(a.registry); err != nil {
		return nil, err
	}

	if cfg.History.Driver != "" {
		a.history, err = history.NewStore(history.Config{Driver: cfg.History.Driver, DSN: cfg.History.DSN})
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
	}
	return a, nil
}

func (a *app) Close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn("failed to close history", map[string]interface{}{"error": err.Error()})
		}
	}
	a.logger.Close()
}

func (a *app) resolverOptions() []framework.Option {
	return []framework.Option{framework.WithDotnetRoot(a.cfg.DotnetRoot)}
}

func (a *app) instrumenter() (coverage.Instrumenter, error) {
	icfg, ok, err := a.cfg.ToInstrumenter()
	if err != nil {
		return nil, &ExitError{Code: 2, Err: err}
	}
	if !ok {
		a.logger.Info("no instrumenter command configured, running passthrough")
		return instrumenter.Passthrough{}, nil
	}
	return instrumenter.NewExternal(icfg)
}

// dependencies wires the orchestrator collaborators; logger may differ
// from a.logger (the API records per request).
func (a *app) dependencies() (coverage.Dependencies, error) {
	inst, err := a.instrumenter()
	if err != nil {
		return coverage.Dependencies{}, err
	}
	return coverage.Dependencies{
		FileSystem:   a.fs,
		Symbols:      symbols.NewResolver(a.fs),
		Instrumenter: inst,
		Logger:       a.logger,
		Resolvers:    coverage.FrameworkResolvers(a.resolverOptions()...),
		Metrics:      a.metrics,
	}, nil
}

func (a *app) runOptions(backup bool) ([]coverage.Option, error) {
	policy, err := a.cfg.ToPolicy()
	if err != nil {
		return nil, &ExitError{Code: 2, Err: err}
	}
	opts := []coverage.Option{coverage.WithReadPolicy(policy), coverage.WithWritePolicy(policy)}
	if backup {
		opts = append(opts, coverage.WithBackup(a.cfg.Backup.Dir))
	}
	return opts, nil
}

// record logs, stores and exports a finished run.
func (a *app) record(out *coverage.Outcome) *report.Result {
	result := report.NewResult(out)
	result.LogSummary(a.logger)

	if a.history != nil {
		if err := a.history.Record(result); err != nil {
			a.logger.Error("failed to record run", map[string]interface{}{"run_id": result.RunID, "error": err.Error()})
		}
	}
	if a.cfg.Metrics.Textfile != "" {
		if err := report.WriteTextfile(a.cfg.Metrics.Textfile, a.registry); err != nil {
			a.logger.Error("failed to write metrics", map[string]interface{}{"path": a.cfg.Metrics.Textfile, "error": err.Error()})
		}
	}
	return result
}
