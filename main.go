package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mjasion/balena-home/coned_rtu/api"
	"github.com/mjasion/balena-home/coned_rtu/config"
	"github.com/mjasion/balena-home/coned_rtu/pkg/buffer"
	"github.com/mjasion/balena-home/coned_rtu/pkg/metrics"
	"github.com/mjasion/balena-home/coned_rtu/pkg/profiling"
	"github.com/mjasion/balena-home/coned_rtu/pkg/telemetry"
	"github.com/mjasion/balena-home/coned_rtu/reading"
	"github.com/mjasion/balena-home/coned_rtu/recorder"
	"github.com/mjasion/balena-home/coned_rtu/scraper"
)

func main() {
	configPath := flag.String("c", "config.yaml", "Path to configuration file")
	once := flag.Bool("once", false, "Scrape usage once, print the readings and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		panic("Failed to create logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("Configuration loaded successfully",
		zap.String("path", *configPath),
		zap.Any("config", cfg.Redacted()))

	fetcher := newFetcher(cfg, logger)

	if *once {
		code := runOnce(cfg, fetcher, logger)
		_ = logger.Sync()
		os.Exit(code)
	}

	profiler, err := profiling.Start(&cfg.Profiling, logger)
	if err != nil {
		logger.Fatal("Failed to initialize profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			logger.Error("Error shutting down profiler", zap.Error(err))
		}
	}()

	otelProviders, err := telemetry.InitProviders(context.Background(), &cfg.OpenTelemetry, logger)
	if err != nil {
		logger.Fatal("Failed to initialize OpenTelemetry providers", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProviders.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down OpenTelemetry providers", zap.Error(err))
		}
	}()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var pending *buffer.RingBuffer[reading.Reading]
	var pusher *metrics.Pusher
	if cfg.RemoteWrite.Enabled {
		pending = buffer.New[reading.Reading](cfg.BufferSize, logger)
		pusher = metrics.New(metrics.Config{
			URL:               cfg.RemoteWrite.URL,
			Username:          cfg.RemoteWrite.Username,
			Password:          cfg.RemoteWrite.Password,
			PushIntervalSec:   cfg.RemoteWrite.PushIntervalSeconds,
			BatchSize:         cfg.RemoteWrite.BatchSize,
			TimeSeriesBuilder: metrics.NewIntervalBuilder(cfg.Opower.AccountID, cfg.Opower.Meter),
		}, pending, logger)
	}

	rec, err := recorder.New(fetcher, pending, logger)
	if err != nil {
		logger.Fatal("Failed to create recorder", zap.Error(err))
	}

	scrapeTimeout := time.Duration(cfg.Opower.TimeoutSeconds*float64(time.Second)) * 4
	scheduler, err := recorder.NewScheduler(appCtx, rec, cfg.ScrapeSchedule, scrapeTimeout, logger)
	if err != nil {
		logger.Fatal("Failed to create scheduler", zap.Error(err))
	}

	interval, err := recorder.ScheduleInterval(cfg.ScrapeSchedule, time.Now())
	if err != nil {
		logger.Fatal("Failed to resolve scrape interval", zap.Error(err))
	}

	var queue api.Queue
	if pending != nil {
		queue = pending
	}
	server := api.NewServer(rec, queue, interval, cfg.HTTPPort, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	if pusher != nil {
		go pusher.Start(appCtx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	scheduler.RunNow(appCtx)
	scheduler.Start()

	logger.Info("Service started",
		zap.String("scrapeSchedule", cfg.ScrapeSchedule),
		zap.Duration("scrapeInterval", interval),
		zap.Bool("remoteWrite", pusher != nil))

	sig := <-sigChan
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	cancel()
	scheduler.Stop()
	if err := server.Stop(); err != nil {
		logger.Error("Error stopping HTTP server", zap.Error(err))
	}

	if pusher != nil {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := pusher.Flush(flushCtx); err != nil {
			logger.Warn("Final push failed, buffered readings are lost", zap.Error(err))
		}
		flushCancel()
	}

	logger.Info("Shutdown complete")
}

// newFetcher replays the payload file when one is configured, otherwise it
// reads from the Opower API
func newFetcher(cfg *config.Config, logger *zap.Logger) scraper.Fetcher {
	if cfg.PayloadFile != "" {
		logger.Info("Replaying usage payload from file", zap.String("path", cfg.PayloadFile))
		return scraper.NewFileFetcher(cfg.PayloadFile)
	}
	return scraper.New(cfg.FetcherOptions(), logger)
}

// runOnce scrapes a single time and prints what was recorded
func runOnce(cfg *config.Config, fetcher scraper.Fetcher, logger *zap.Logger) int {
	rec, err := recorder.New(fetcher, nil, logger)
	if err != nil {
		logger.Error("Failed to create recorder", zap.Error(err))
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Opower.TimeoutSeconds*float64(time.Second))*4)
	defer cancel()

	_, scrapeErr := rec.RecordUsage(ctx)
	if err := rec.PrintReadings(os.Stdout); err != nil {
		logger.Error("Failed to print readings", zap.Error(err))
		return 1
	}
	if scrapeErr != nil {
		return 1
	}
	return 0
}
