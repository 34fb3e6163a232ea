package archive

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/xitongsys/parquet-go/parquet"

	"pricefuse/config"
	"pricefuse/models"
)

func barAt(start time.Time, close float64) models.CompositeBar {
	return models.CompositeBar{
		StartTime:  start,
		Open:       close - 1,
		High:       close + 1,
		Low:        close - 2,
		Close:      close,
		Volume:     10,
		VenueCount: 2,
	}
}

func TestSettledBars(t *testing.T) {
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	history := []models.CompositeBar{
		barAt(base, 100),
		barAt(base.Add(time.Minute), 101),
		barAt(base.Add(2*time.Minute), 102),
		barAt(base.Add(3*time.Minute), 103),
	}

	// Everything before the horizon, nothing archived yet.
	got := settledBars(history, time.Time{}, base.Add(4*time.Minute))
	if len(got) != 4 {
		t.Fatalf("settled = %d, want 4", len(got))
	}

	// The high-water mark excludes bars already uploaded.
	got = settledBars(history, base.Add(time.Minute), base.Add(4*time.Minute))
	if len(got) != 2 {
		t.Fatalf("settled = %d, want 2 after the mark", len(got))
	}
	if !got[0].StartTime.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("first settled bar = %v, want %v", got[0].StartTime, base.Add(2*time.Minute))
	}

	// The settlement horizon holds back the most recent intervals.
	got = settledBars(history, time.Time{}, base.Add(2*time.Minute))
	if len(got) != 2 {
		t.Fatalf("settled = %d, want 2 before the horizon", len(got))
	}

	if got := settledBars(nil, time.Time{}, base); len(got) != 0 {
		t.Fatalf("settled = %d from empty history, want 0", len(got))
	}
}

func TestObjectKeyLayout(t *testing.T) {
	a := &Archiver{config: config.Default()}

	last := time.Date(2026, 8, 25, 14, 3, 0, 0, time.UTC)
	key := a.objectKey("BTC", models.MarketSpot, last)

	want := "composite/asset=BTC/market=spot/2026/08/25/btc_spot_bars_20260825140300.parquet"
	if key != want {
		t.Fatalf("objectKey = %q, want %q", key, want)
	}

	if strings.Contains(key, "\\") {
		t.Fatalf("objectKey %q contains backslashes", key)
	}
}

func TestBuildParquetProducesValidFile(t *testing.T) {
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	bars := []models.CompositeBar{barAt(base, 100), barAt(base.Add(time.Minute), 101)}

	data, err := buildParquet("BTC", models.MarketPerp, bars, "snappy")
	if err != nil {
		t.Fatalf("buildParquet: %v", err)
	}

	magic := []byte("PAR1")
	if len(data) < 8 || !bytes.HasPrefix(data, magic) || !bytes.HasSuffix(data, magic) {
		t.Fatalf("parquet output of %d bytes is missing the PAR1 framing", len(data))
	}
}

func TestCompressionCodec(t *testing.T) {
	cases := map[string]parquet.CompressionCodec{
		"snappy":  parquet.CompressionCodec_SNAPPY,
		"gzip":    parquet.CompressionCodec_GZIP,
		"lzo":     parquet.CompressionCodec_LZO,
		"":        parquet.CompressionCodec_UNCOMPRESSED,
		"zstdish": parquet.CompressionCodec_UNCOMPRESSED,
	}

	for name, want := range cases {
		if got := compressionCodec(name); got != want {
			t.Errorf("compressionCodec(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestNewArchiverDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Archive.Enabled = false

	a, err := NewArchiver(cfg, nil)
	if err != nil {
		t.Fatalf("NewArchiver: %v", err)
	}
	if a != nil {
		t.Fatal("expected a nil archiver when archiving is disabled")
	}

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("nil archiver Start: %v", err)
	}
	a.Stop()
}

func TestNewArchiverRequiresStorage(t *testing.T) {
	cfg := config.Default()
	cfg.Archive.Enabled = true
	cfg.Storage.S3.Enabled = false

	if _, err := NewArchiver(cfg, nil); err == nil {
		t.Fatal("expected an error when archiving is enabled without S3 storage")
	}
}
