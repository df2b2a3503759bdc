// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/trackchanges/pkg/logging"
	"github.com/AleutianAI/trackchanges/services/versiondiff"
	"github.com/AleutianAI/trackchanges/services/versiondiff/telemetry"
)

// app holds the state shared by one command invocation.
type app struct {
	configPath  string
	logLevel    string
	logJSON     bool
	logDir      string
	metricsAddr string
	docType     string
	encoded     bool
	storePath   string

	logger   *logging.Logger
	differ   *versiondiff.Differ
	shutdown func(context.Context) error
	metrics  *http.Server
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "versiondiff",
		Short: "Attributed diffs between versions of collaborative documents",
		Long: `versiondiff replays two versions of a collaboratively edited document,
reports which users changed what is visible between them, and emits the
artifact a renderer needs to show the changes inline.

Versions are binary state updates. Pass --encoded when files hold the
base64 text form used on the wire.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a YAML or JSON config file")
	flags.StringVar(&a.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	flags.BoolVar(&a.logJSON, "log-json", false, "log JSON to stderr instead of text")
	flags.StringVar(&a.logDir, "log-dir", "", "also write JSON logs to this directory")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	flags.StringVar(&a.docType, "doc-type", "", "document type (default from config)")
	flags.BoolVar(&a.encoded, "encoded", false, "input files hold text-encoded updates")
	flags.StringVar(&a.storePath, "store", "versiondiff-data", "version store directory")

	rootCmd.AddCommand(
		a.diffCmd(),
		a.extractCmd(),
		a.contributorsCmd(),
		a.storeCmd(),
	)
	return rootCmd
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	level, err := logging.ParseLevel(a.logLevel)
	if err != nil {
		return err
	}
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  a.logDir,
		Service: "versiondiff",
		JSON:    a.logJSON,
		Output:  cmd.ErrOrStderr(),
	})
	slog.SetDefault(a.logger.Slog())

	tcfg := telemetry.DefaultConfig()
	if a.metricsAddr == "" {
		tcfg.MetricExporter = "none"
	}
	a.shutdown, err = telemetry.Init(cmd.Context(), tcfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	if a.metricsAddr != "" {
		if err := a.serveMetrics(); err != nil {
			return err
		}
	}

	cfg, err := versiondiff.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.differ, err = versiondiff.New(cfg, versiondiff.WithLogger(a.logger.Slog()))
	if err != nil {
		return fmt.Errorf("create differ: %w", err)
	}
	return nil
}

func (a *app) serveMetrics() error {
	handler := telemetry.MetricsHandler()
	if handler == nil {
		return errors.New("metrics exporter is not prometheus; set OTEL_METRICS_EXPORTER=prometheus")
	}
	ln, err := net.Listen("tcp", a.metricsAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.metricsAddr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	a.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Slog().Warn("metrics server stopped", slog.String("error", err.Error()))
		}
	}()
	a.logger.Slog().Info("serving metrics", slog.String("addr", ln.Addr().String()))
	return nil
}

func (a *app) teardown(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 5*time.Second)
	defer cancel()

	var errs []error
	if a.metrics != nil {
		errs = append(errs, a.metrics.Shutdown(ctx))
	}
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(ctx))
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}
