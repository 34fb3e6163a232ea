package metrics

import "pricefuse/logger"

// WriterStats holds metrics for the composite bar archiver and other
// batch-output components.
type WriterStats struct {
	FlushesWritten int64
	FilesWritten   int64
	BarsWritten    int64
	BytesWritten   int64
	ErrorsCount    int64
}

// ReportWriter emits common writer metrics using the provided logger and component name.
func ReportWriter(log *logger.Log, component string, stats WriterStats) {
	l := log.WithComponent(component)

	errorRate := float64(0)
	if stats.FlushesWritten+stats.ErrorsCount > 0 {
		errorRate = float64(stats.ErrorsCount) / float64(stats.FlushesWritten+stats.ErrorsCount)
	}

	avgBytesPerFile := float64(0)
	if stats.FilesWritten > 0 {
		avgBytesPerFile = float64(stats.BytesWritten) / float64(stats.FilesWritten)
	}

	l.LogMetric(component, "flushes_written", stats.FlushesWritten, "counter", logger.Fields{})
	l.LogMetric(component, "files_written", stats.FilesWritten, "counter", logger.Fields{})
	l.LogMetric(component, "bars_written", stats.BarsWritten, "counter", logger.Fields{})
	l.LogMetric(component, "bytes_written", stats.BytesWritten, "counter", logger.Fields{})
	l.LogMetric(component, "errors_count", stats.ErrorsCount, "counter", logger.Fields{})
	l.LogMetric(component, "error_rate", errorRate, "gauge", logger.Fields{})
	l.LogMetric(component, "avg_bytes_per_file", avgBytesPerFile, "gauge", logger.Fields{})

	entry := l.WithFields(logger.Fields{
		"flushes_written":    stats.FlushesWritten,
		"files_written":      stats.FilesWritten,
		"bars_written":       stats.BarsWritten,
		"bytes_written":      stats.BytesWritten,
		"errors_count":       stats.ErrorsCount,
		"error_rate":         errorRate,
		"avg_bytes_per_file": avgBytesPerFile,
	})

	if stats.ErrorsCount > 0 {
		entry.Warn(component + " metrics")
		return
	}

	entry.Info(component + " metrics")
}
