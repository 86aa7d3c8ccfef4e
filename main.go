package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tradersentiment/config"
	"tradersentiment/internal/dashboard"
	"tradersentiment/internal/metrics"
	"tradersentiment/logger"
	"tradersentiment/reader"
	"tradersentiment/reader/binance"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.App.Name,
		"version":     cfg.App.Version,
		"environment": config.AppEnvironment(),
	}).Info("starting trader sentiment service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.Init()

	if cfg.CloudWatch.Enabled {
		if err := logger.InitCloudWatch(ctx, cfg.CloudWatch.Region, cfg.CloudWatch.Namespace, cfg.CloudWatch.Dashboard); err != nil {
			log.WithComponent("cloudwatch").WithError(err).Warn("CloudWatch metrics disabled")
		}
	}

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, cfg.Logging.ReportInterval)
	}

	opener := reader.NewOpener(cfg.Storage.S3)

	var fetcher dashboard.LiveFetcher
	if cfg.Live.Enabled {
		fetcher = binance.NewRecentTradesReader(cfg.Live)
	}

	srv, err := dashboard.NewServer(cfg, log, opener, fetcher)
	if err != nil {
		log.WithError(err).Error("failed to create dashboard")
		os.Exit(1)
	}
	if srv == nil {
		log.WithComponent("main").Warn("dashboard disabled; nothing to serve")
		return
	}

	// A failed warm-up is not fatal; requests surface the error until the
	// sources are fixed.
	if err := srv.Warm(ctx); err != nil {
		log.WithComponent("main").WithError(err).Warn("initial panel build failed")
	}

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx, cfg.App.Name)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case err := <-done:
		if err != nil {
			log.WithError(err).Error("dashboard stopped unexpectedly")
			os.Exit(1)
		}
		return
	}

	log.Info("starting graceful shutdown")
	cancel()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("trader sentiment service stopped")
}
