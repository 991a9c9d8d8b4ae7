// Package main runs the streaming ingestion and detection service:
// live feed supervision, gap backfill, price polling, event fan-out and
// the HTTP status surface.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"blinkstream/internal/config"
)

func main() {
	envFile := flag.String("env-file", ".env", "Path to .env file")
	httpAddr := flag.String("http-addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	logLevel := flag.String("log-level", "", "Log level (overrides LOG_LEVEL)")
	logJSON := flag.Bool("log-json", false, "Emit JSON logs")

	flag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if *logJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load config")
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithError(err).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.WithFields(logrus.Fields{
		"feed":           cfg.MaskedFeedURL(),
		"rpc":            cfg.MaskedRPCURL(),
		"scopedFilter":   cfg.ScopedFilter,
		"backfill":       cfg.BackfillEnabled,
		"watchList":      cfg.BackfillAddresses,
		"referenceAsset": cfg.ReferenceAsset,
		"surgeTokens":    cfg.SurgeTokens,
	}).Info("Starting blinkstream")
	if len(cfg.IgnoredAddresses) > 0 {
		logger.WithField("addresses", cfg.IgnoredAddresses).Warn("Ignored invalid or surplus backfill addresses")
	}

	ctx, cancel := context.WithCancel(context.Background())

	server, cleanup, err := NewServer(ctx, cfg, logger)
	if err != nil {
		cancel()
		logger.WithError(err).Fatal("Failed to create server")
	}

	// Channel to signal main goroutine completion
	done := make(chan error, 1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig.String()).Info("Initiating graceful shutdown")
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.WithField("signal", sig.String()).Warn("Second signal, forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Warn("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = server.Run(ctx)
	done <- err
	cancel()
	cleanup()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("Server error")
	}

	logger.Info("Shutdown complete")
}
