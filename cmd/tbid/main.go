package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/tbi-sim/tbi-core/internal/tbid"
	"github.com/tbi-sim/tbi-core/pkg/config"
	"github.com/tbi-sim/tbi-core/pkg/logger"
)

func main() {
	var configPath string
	var httpAddr string
	var logLevel string

	pflag.StringVar(&configPath, "config", "", "path to daemon config YAML")
	pflag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address (overrides config)")
	pflag.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	pflag.Parse()

	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			logger.Error("failed to load config", "path", configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger.SetDefault(logger.NewText(cfg.LogLevel, os.Stdout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := tbid.NewJobStore()
	executor := tbid.NewJobExecutor(store, cfg.MaxParallelJobs).
		WithNotifier(tbid.NewNotifier())

	var sink *tbid.ResultSink
	if cfg.ResultsDB != nil {
		var err error
		sink, err = tbid.NewResultSink(cfg.ResultsDB.DSN, cfg.ResultsDB.Table)
		if err != nil {
			logger.Error("failed to open results database", "error", err)
			os.Exit(1)
		}
		defer sink.Close()

		schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := sink.EnsureSchema(schemaCtx); err != nil {
			cancel()
			logger.Error("failed to prepare results table", "table", cfg.ResultsDB.Table, "error", err)
			os.Exit(1)
		}
		cancel()
		executor.WithSink(sink)
		logger.Info("results database connected", "table", cfg.ResultsDB.Table)
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           tbid.NewHTTPServer(store, executor).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown requested")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
}
