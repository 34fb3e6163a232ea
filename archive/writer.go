package archive

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"pricefuse/config"
	"pricefuse/engine"
	"pricefuse/internal/metrics"
	"pricefuse/internal/storage"
	"pricefuse/logger"
	"pricefuse/models"
)

// Archiver periodically drains newly closed composite bars from the engine
// and uploads them to S3 as hive-partitioned parquet files. A failed flush
// is logged and counted; the bars stay eligible because the high-water mark
// only advances on a successful upload.
type Archiver struct {
	config   *config.Config
	engine   *engine.Engine
	s3Client *s3.Client
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	flushTicker *time.Ticker
	// archived and stats are owned by the flush worker goroutine.
	archived map[models.MarketType]time.Time
	stats    metrics.WriterStats
}

// NewArchiver constructs an archiver when bar archiving is enabled. When it
// is disabled the returned archiver is nil and Start and Stop are no-ops.
func NewArchiver(cfg *config.Config, eng *engine.Engine) (*Archiver, error) {
	if !cfg.Archive.Enabled {
		return nil, nil
	}
	if !cfg.Storage.S3.Enabled {
		return nil, fmt.Errorf("archiving requires storage.s3 to be enabled")
	}
	if eng == nil {
		return nil, fmt.Errorf("archiver requires an engine")
	}

	log := logger.GetLogger()

	s3Client, err := storage.NewClient(context.Background(), cfg.Storage.S3)
	if err != nil {
		log.WithComponent("archiver").WithError(err).Warn("failed to build S3 client")
		return nil, err
	}

	a := &Archiver{
		config:   cfg,
		engine:   eng,
		s3Client: s3Client,
		wg:       &sync.WaitGroup{},
		log:      log,
		archived: make(map[models.MarketType]time.Time),
	}

	log.WithComponent("archiver").WithFields(logger.Fields{
		"bucket":      cfg.Storage.S3.Bucket,
		"region":      cfg.Storage.S3.Region,
		"key_prefix":  cfg.Archive.KeyPrefix,
		"compression": cfg.Archive.Compression,
	}).Info("archiver initialized")

	return a, nil
}

func (a *Archiver) Start(ctx context.Context) error {
	if a == nil {
		return nil
	}

	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("archiver already running")
	}
	a.running = true
	a.ctx = ctx
	a.mu.Unlock()

	interval := a.config.Archive.FlushInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	a.flushTicker = time.NewTicker(interval)

	a.log.WithComponent("archiver").WithFields(logger.Fields{
		"operation":      "start",
		"flush_interval": interval.String(),
	}).Info("starting archiver")

	a.wg.Add(1)
	go a.flushWorker()

	return nil
}

// Stop waits for the flush worker to exit. The caller cancels the start
// context first, which triggers a final shutdown flush.
func (a *Archiver) Stop() {
	if a == nil {
		return
	}

	a.mu.Lock()
	a.running = false
	a.mu.Unlock()

	if a.flushTicker != nil {
		a.flushTicker.Stop()
	}

	a.log.WithComponent("archiver").Info("stopping archiver")
	a.wg.Wait()
	a.log.WithComponent("archiver").Info("archiver stopped")
}

func (a *Archiver) flushWorker() {
	defer a.wg.Done()

	log := a.log.WithComponent("archiver").WithFields(logger.Fields{"worker": "flush"})
	log.Info("starting flush worker")

	for {
		select {
		case <-a.ctx.Done():
			a.flush("shutdown")
			log.Info("flush worker stopped due to context cancellation")
			return
		case <-a.flushTicker.C:
			a.flush("interval")
			metrics.ReportWriter(a.log, "archiver", a.stats)
		}
	}
}

// flush uploads every bar that has settled since the previous flush. The
// most recent closed interval is held back for one extra minute because a
// venue closes its minute bar only on its first trade of the next minute,
// so late venues may still join that composite bar.
func (a *Archiver) flush(reason string) {
	settled := time.Now().Truncate(time.Minute).Add(-time.Minute)

	for _, market := range []models.MarketType{models.MarketSpot, models.MarketPerp} {
		bars := settledBars(a.engine.CompositeBars(market, 0), a.archived[market], settled)
		if len(bars) == 0 {
			continue
		}

		if err := a.upload(market, bars, reason); err != nil {
			a.stats.ErrorsCount++
			a.log.WithComponent("archiver").WithError(err).WithFields(logger.Fields{
				"market": market,
				"bars":   len(bars),
			}).Error("flush failed, bars retained for retry")
			continue
		}

		a.archived[market] = bars[len(bars)-1].StartTime
		a.stats.FlushesWritten++
	}
}

// settledBars selects the bars newer than the high-water mark that started
// before the settlement horizon, oldest first.
func settledBars(history []models.CompositeBar, archived, settled time.Time) []models.CompositeBar {
	bars := make([]models.CompositeBar, 0, len(history))
	for _, bar := range history {
		if !bar.StartTime.After(archived) {
			continue
		}
		if !bar.StartTime.Before(settled) {
			continue
		}
		bars = append(bars, bar)
	}
	return bars
}

func (a *Archiver) upload(market models.MarketType, bars []models.CompositeBar, reason string) error {
	asset := a.engine.Asset()
	batchID := uuid.New().String()

	log := a.log.WithComponent("archiver").WithFields(logger.Fields{
		"batch_id":  batchID,
		"asset":     asset,
		"market":    market,
		"bars":      len(bars),
		"reason":    reason,
		"operation": "upload",
	})

	data, err := buildParquet(asset, market, bars, a.config.Archive.Compression)
	if err != nil {
		return err
	}

	key := a.objectKey(asset, market, bars[len(bars)-1].StartTime)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":      "parquet",
			"compression":       a.config.Archive.Compression,
			"pricefuse-version": a.config.Pricefuse.Version,
			"batch-id":          batchID,
		},
	}

	// The shutdown flush must survive the cancelled run context.
	ctx := context.WithoutCancel(a.ctx)
	if _, err := a.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", a.config.Storage.S3.Bucket, err)
	}

	a.stats.FilesWritten++
	a.stats.BarsWritten += int64(len(bars))
	a.stats.BytesWritten += int64(len(data))
	logger.IncrementArchiveWrite(int64(len(data)))

	log.WithFields(logger.Fields{
		"s3_key":    key,
		"file_size": len(data),
	}).Info("bars archived")
	logger.LogDataFlowEntry(log, "bar_history", "s3_archive", len(bars), "composite_bars")

	return nil
}

func (a *Archiver) objectKey(asset string, market models.MarketType, last time.Time) string {
	ts := last.UTC()
	parts := []string{
		a.config.Archive.KeyPrefix,
		fmt.Sprintf("asset=%s", asset),
		fmt.Sprintf("market=%s", market),
		fmt.Sprintf("%04d/%02d/%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("%s_%s_bars_%s.parquet", strings.ToLower(asset), market, ts.Format("20060102150405")),
	}
	return filepath.ToSlash(filepath.Join(parts...))
}
