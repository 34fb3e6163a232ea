package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pricefuse/config"
	"pricefuse/logger"
	"pricefuse/soak"
)

func main() {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithComponent("main").WithError(err).Warn("failed to load .env file")
	}

	var (
		apiURL     = flag.String("url", "http://localhost:8090", "base URL of the running engine API")
		interval   = flag.Duration("interval", 15*time.Second, "sampling interval")
		duration   = flag.Duration("duration", 0, "run length, 0 runs until interrupted")
		output     = flag.String("output", "-", "report file path, - for stdout")
		upload     = flag.Bool("upload", false, "upload the report to S3 after the run")
		configPath = flag.String("config", "", "configuration file for -upload (default "+config.DefaultConfigPath+")")
	)
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.WithComponent("main").Info("interrupt received, finishing soak run")
		cancel()
	}()

	runner := soak.NewRunner(soak.NewClient(*apiURL), *interval, *duration, log)
	report, err := runner.Run(ctx)
	if err != nil {
		log.WithComponent("main").WithError(err).Error("soak run failed")
		os.Exit(1)
	}

	if err := report.WriteFile(*output); err != nil {
		log.WithComponent("main").WithError(err).Error("failed to write soak report")
		os.Exit(1)
	}

	if *upload {
		cfg, err := config.LoadConfig(config.ResolveConfigPath(*configPath))
		if err != nil {
			log.WithComponent("main").WithError(err).Error("failed to load configuration")
			os.Exit(1)
		}

		// The run context is already cancelled after an interrupt; the
		// upload still has to complete.
		key, err := report.Upload(context.Background(), cfg)
		if err != nil {
			log.WithComponent("main").WithError(err).Error("failed to upload soak report")
			os.Exit(1)
		}
		log.WithComponent("main").WithFields(logger.Fields{"s3_key": key}).Info("soak report uploaded")
	}
}
