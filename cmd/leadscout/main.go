// Package main runs the worker scheduling service: the cron-driven
// scheduler, the scrape job consumers and the ops HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/davidnkusi/leadscout/internal/app"
	"github.com/davidnkusi/leadscout/internal/config"
	"github.com/davidnkusi/leadscout/internal/logging"
	"github.com/davidnkusi/leadscout/internal/telemetry"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.InitTracerProvider(ctx, "leadscout")
	if err != nil {
		logger.Error("tracer init failed", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("service init failed", zap.Error(err))
		stop()
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil {
		logger.Error("service exited with error", zap.Error(err))
		os.Exit(1)
	}
}
