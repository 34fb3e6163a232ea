package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pricefuse/api"
	"pricefuse/archive"
	"pricefuse/config"
	"pricefuse/engine"
	"pricefuse/internal/channel/trades"
	"pricefuse/internal/metrics"
	"pricefuse/logger"
	"pricefuse/publish"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "", "Path to configuration file (default "+config.DefaultConfigPath+")")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolveConfigPath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Pricefuse.Name,
		"version": cfg.Pricefuse.Version,
		"asset":   cfg.Engine.Asset,
	}).Info("starting pricefuse")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	if cfg.Logging.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Logging.CloudWatch.Region, cfg.Logging.CloudWatch.Namespace, cfg.Logging.DashboardName)
	}

	metrics.Configure(cfg.Metrics)
	metrics.Init(cfg.Metrics.Listen)

	channels := trades.NewChannels(
		cfg.Channels.TradeBuffer,
		cfg.Channels.EventBuffer,
	)
	defer channels.Close()

	metrics.StartChannelSizeMetrics(ctx, channels, 30*time.Second)

	eng, err := engine.New(cfg, channels)
	if err != nil {
		log.WithError(err).Error("failed to create engine")
		os.Exit(1)
	}

	apiServer, err := api.NewServer(cfg.API, eng, log)
	if err != nil {
		log.WithError(err).Error("failed to create api server")
		os.Exit(1)
	}

	publisher, err := publish.NewPublisher(cfg, eng)
	if err != nil {
		log.WithError(err).Error("failed to create kafka publisher")
		os.Exit(1)
	}

	archiver, err := archive.NewArchiver(cfg, eng)
	if err != nil {
		log.WithError(err).Error("failed to create archiver")
		os.Exit(1)
	}

	if err := eng.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start engine")
		os.Exit(1)
	}

	var wg sync.WaitGroup

	if apiServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := apiServer.Run(ctx); err != nil {
				log.WithError(err).Warn("api server failed")
			}
		}()
	}

	if publisher != nil {
		if err := publisher.Start(ctx); err != nil {
			log.WithError(err).Warn("kafka publisher failed to start")
		}
	}

	if archiver != nil {
		if err := archiver.Start(ctx); err != nil {
			log.WithError(err).Warn("archiver failed to start")
		}
	}

	time.Sleep(2 * time.Second)
	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	if publisher != nil {
		log.Info("stopping kafka publisher")
		publisher.Stop()
	}

	if archiver != nil {
		log.Info("stopping archiver")
		archiver.Stop()
	}

	log.Info("stopping engine")
	eng.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("pricefuse stopped")
}
