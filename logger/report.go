package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net" //cloudwatch

	"github.com/aws/aws-sdk-go-v2/aws"                              //cloudwatch
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types" //cloudwatch
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsIngest  int64
	errorsEngine  int64
	warnsIngest   int64
	warnsEngine   int64
	tradeReads    int64
	recomputes    int64
	archiveWrites int64
	channels      sync.Map // map[string]*channelStat
)

// Venue adapter components carry a "_trades" suffix, everything downstream
// of the trade channel counts as engine side.
func recordWarn(component string) {
	if strings.Contains(component, "_trades") {
		atomic.AddInt64(&warnsIngest, 1)
	} else {
		atomic.AddInt64(&warnsEngine, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "_trades") {
		atomic.AddInt64(&errorsIngest, 1)
	} else {
		atomic.AddInt64(&errorsEngine, 1)
	}
}

func IncrementTradeRead(size int) {
	atomic.AddInt64(&tradeReads, 1)
	recordChannel("trades_ws", size)
}

func IncrementRecompute() {
	atomic.AddInt64(&recomputes, 1)
}

func IncrementArchiveWrite(size int64) {
	atomic.AddInt64(&archiveWrites, 1)
	recordChannel("s3_archive_write", int(size))
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and channel statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	fields := Fields{
		"errors_ingest":  atomic.LoadInt64(&errorsIngest),
		"errors_engine":  atomic.LoadInt64(&errorsEngine),
		"warns_ingest":   atomic.LoadInt64(&warnsIngest),
		"warns_engine":   atomic.LoadInt64(&warnsEngine),
		"trade_reads":    atomic.LoadInt64(&tradeReads),
		"recomputes":     atomic.LoadInt64(&recomputes),
		"archive_writes": atomic.LoadInt64(&archiveWrites),
		"goroutines":     runtime.NumGoroutine(),
		"cpu_percent":    cpuPct,
		"memory_mb":      int64(memStats.Used) / 1024 / 1024,
		"disk_mb":        int64(diskStats.Used) / 1024 / 1024,
		"channels":       channelData,
		"net_bytes_sent": int64(bytesSent),
		"net_bytes_recv": int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("Fuse-CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("Fuse-MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("Fuse-DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("Fuse-ErrorsIngest"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_ingest"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Fuse-ErrorsEngine"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_engine"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Fuse-WarnsIngest"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_ingest"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Fuse-WarnsEngine"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_engine"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Fuse-TradeReads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["trade_reads"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Fuse-Recomputes"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["recomputes"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Fuse-ArchiveWrites"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["archive_writes"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("Fuse-NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		cwtypes.MetricDatum{MetricName: aws.String("Fuse-NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	)

	for name, stats := range channelData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("Fuse-ChannelMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("Fuse-ChannelBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
