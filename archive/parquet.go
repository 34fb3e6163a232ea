package archive

import (
	"bytes"
	"fmt"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"pricefuse/models"
)

// barRecord is the parquet row layout for one archived composite bar.
type barRecord struct {
	Asset      string  `parquet:"name=asset, type=BYTE_ARRAY, convertedtype=UTF8"`
	Market     string  `parquet:"name=market, type=BYTE_ARRAY, convertedtype=UTF8"`
	StartTime  int64   `parquet:"name=start_time, type=INT64"`
	Open       float64 `parquet:"name=open, type=DOUBLE"`
	High       float64 `parquet:"name=high, type=DOUBLE"`
	Low        float64 `parquet:"name=low, type=DOUBLE"`
	Close      float64 `parquet:"name=close, type=DOUBLE"`
	Volume     float64 `parquet:"name=volume, type=DOUBLE"`
	VenueCount int32   `parquet:"name=venue_count, type=INT32"`
}

// memoryFile satisfies the parquet source interface against a byte buffer so
// files are assembled fully in memory before upload.
type memoryFile struct {
	buffer *bytes.Buffer
}

func newMemoryFile() *memoryFile {
	return &memoryFile{buffer: &bytes.Buffer{}}
}

func (m *memoryFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memoryFile) Open(string) (source.ParquetFile, error)   { return m, nil }

// Seek is never exercised on the write path.
func (m *memoryFile) Seek(int64, int) (int64, error) { return int64(m.buffer.Len()), nil }

func (m *memoryFile) Read(b []byte) (int, error)  { return m.buffer.Read(b) }
func (m *memoryFile) Write(b []byte) (int, error) { return m.buffer.Write(b) }
func (m *memoryFile) Close() error                { return nil }

func (m *memoryFile) Bytes() []byte { return m.buffer.Bytes() }

// compressionCodec maps a configured compression name onto a parquet codec.
// Unknown names fall back to uncompressed.
func compressionCodec(name string) parquet.CompressionCodec {
	switch name {
	case "snappy":
		return parquet.CompressionCodec_SNAPPY
	case "gzip":
		return parquet.CompressionCodec_GZIP
	case "lzo":
		return parquet.CompressionCodec_LZO
	default:
		return parquet.CompressionCodec_UNCOMPRESSED
	}
}

// buildParquet renders the closed composite bars of one market leg into an
// in-memory parquet file.
func buildParquet(asset string, market models.MarketType, bars []models.CompositeBar, compression string) ([]byte, error) {
	fw := newMemoryFile()

	pw, err := writer.NewParquetWriter(fw, new(barRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = compressionCodec(compression)

	for _, bar := range bars {
		record := barRecord{
			Asset:      asset,
			Market:     string(market),
			StartTime:  bar.StartTime.UnixMilli(),
			Open:       bar.Open,
			High:       bar.High,
			Low:        bar.Low,
			Close:      bar.Close,
			Volume:     bar.Volume,
			VenueCount: int32(bar.VenueCount),
		}
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	return fw.Bytes(), nil
}
