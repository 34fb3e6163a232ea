package metrics

import (
	"context"
	"testing"
	"time"

	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"pricefuse/logger"
)

func TestPublishMetricDatumThrottlesToInterval(t *testing.T) {
	resetMetricPublishTimes()
	t.Cleanup(resetMetricPublishTimes)

	originalInterval := cloudWatchPublishInterval
	cloudWatchPublishInterval = 50 * time.Millisecond
	t.Cleanup(func() { cloudWatchPublishInterval = originalInterval })

	baseTime := time.Now()
	timeNow = func() time.Time { return baseTime }
	t.Cleanup(func() { timeNow = time.Now })

	batches := make([][]cwtypes.MetricDatum, 0)
	publishMetricsFunc = func(ctx context.Context, data []cwtypes.MetricDatum) {
		copyData := make([]cwtypes.MetricDatum, len(data))
		copy(copyData, data)
		batches = append(batches, copyData)
	}
	t.Cleanup(func() { publishMetricsFunc = logger.PublishMetricData })

	metric := Metric{Component: "test", Name: "requests", Timestamp: baseTime, Fields: logger.Fields{"unit": "count"}}
	publishMetricDatum(metric, 1)

	timeNow = func() time.Time { return baseTime.Add(25 * time.Millisecond) }
	metric.Timestamp = baseTime.Add(25 * time.Millisecond)
	publishMetricDatum(metric, 2)

	if len(batches) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(batches))
	}

	if len(batches[0]) != 1 {
		t.Fatalf("expected single metric in publish, got %d", len(batches[0]))
	}

	datum := batches[0][0]
	if datum.MetricName == nil || *datum.MetricName != "requests" {
		t.Fatalf("unexpected metric name: %v", datum.MetricName)
	}
	if datum.Value == nil || *datum.Value != 1 {
		t.Fatalf("unexpected metric value: %v", datum.Value)
	}
}

func TestPublishMetricDatumAllowsAfterInterval(t *testing.T) {
	resetMetricPublishTimes()
	t.Cleanup(resetMetricPublishTimes)

	originalInterval := cloudWatchPublishInterval
	cloudWatchPublishInterval = 50 * time.Millisecond
	t.Cleanup(func() { cloudWatchPublishInterval = originalInterval })

	baseTime := time.Now()
	timeNow = func() time.Time { return baseTime }
	t.Cleanup(func() { timeNow = time.Now })

	batches := make([][]cwtypes.MetricDatum, 0)
	publishMetricsFunc = func(ctx context.Context, data []cwtypes.MetricDatum) {
		copyData := make([]cwtypes.MetricDatum, len(data))
		copy(copyData, data)
		batches = append(batches, copyData)
	}
	t.Cleanup(func() { publishMetricsFunc = logger.PublishMetricData })

	metric := Metric{Component: "test", Name: "requests", Timestamp: baseTime, Fields: logger.Fields{"unit": "count"}}
	publishMetricDatum(metric, 1)

	timeNow = func() time.Time { return baseTime.Add(75 * time.Millisecond) }
	metric.Timestamp = baseTime.Add(75 * time.Millisecond)
	publishMetricDatum(metric, 2)

	if len(batches) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(batches))
	}

	second := batches[1]
	if len(second) != 1 {
		t.Fatalf("expected single metric in second publish, got %d", len(second))
	}

	datum := second[0]
	if datum.MetricName == nil || *datum.MetricName != "requests" {
		t.Fatalf("unexpected metric name: %v", datum.MetricName)
	}
	if datum.Value == nil || *datum.Value != 2 {
		t.Fatalf("unexpected metric value: %v", datum.Value)
	}
}

func TestPublishMetricDatumUsesDimensionFields(t *testing.T) {
	resetMetricPublishTimes()
	t.Cleanup(resetMetricPublishTimes)

	var published []cwtypes.MetricDatum
	publishMetricsFunc = func(ctx context.Context, data []cwtypes.MetricDatum) {
		published = append(published, data...)
	}
	t.Cleanup(func() { publishMetricsFunc = logger.PublishMetricData })

	metric := Metric{
		Component: "binance_spot_trades",
		Name:      "venue_gaps",
		Timestamp: time.Now(),
		Fields:    logger.Fields{"unit": "count", "venue": "binance", "market": "spot", "value": 3},
	}
	publishMetricDatum(metric, 3)

	if len(published) != 1 {
		t.Fatalf("expected 1 datum, got %d", len(published))
	}

	names := make(map[string]string)
	for _, dim := range published[0].Dimensions {
		names[*dim.Name] = *dim.Value
	}
	if names["component"] != "binance_spot_trades" {
		t.Fatalf("missing component dimension: %v", names)
	}
	if names["venue"] != "binance" || names["market"] != "spot" {
		t.Fatalf("missing venue dimensions: %v", names)
	}
	if _, ok := names["value"]; ok {
		t.Fatalf("value should not become a dimension: %v", names)
	}
}
