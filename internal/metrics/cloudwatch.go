package metrics

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"pricefuse/logger"
)

// CloudWatch publishing is throttled per metric so high frequency emitters
// (per-trade counters, channel gauges) do not exhaust the PutMetricData
// quota. The logger package owns the client; this file only assembles and
// paces the datums.
var (
	cloudWatchPublishInterval = time.Minute

	timeNow            = time.Now
	publishMetricsFunc = logger.PublishMetricData

	metricPublishMu    sync.Mutex
	metricPublishTimes = make(map[string]time.Time)
)

func resetMetricPublishTimes() {
	metricPublishMu.Lock()
	metricPublishTimes = make(map[string]time.Time)
	metricPublishMu.Unlock()
}

// EmitMetric logs the metric locally, dispatches it to registered handlers
// and publishes it to CloudWatch when configured. Metrics gated behind a
// disabled feature are suppressed entirely.
func EmitMetric(log *logger.Log, component string, metric string, value interface{}, metricType string, fields logger.Fields) {
	if feature, gated := featureForMetric(metric); gated && !IsFeatureEnabled(feature) {
		return
	}

	metricEvent, ok := recordMetric(log, component, metric, value, metricType, fields)
	if !ok {
		return
	}

	numericValue, ok := toFloat64(metricEvent.Value)
	if !ok {
		logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{"metric": metricEvent.Name}).Debug("non-numeric metric value; skipping publish")
		return
	}

	publishMetricDatum(metricEvent, numericValue)
}

func publishMetricDatum(metric Metric, value float64) {
	key := metric.Component + "/" + metric.Name

	metricPublishMu.Lock()
	last, seen := metricPublishTimes[key]
	now := timeNow()
	if seen && now.Sub(last) < cloudWatchPublishInterval {
		metricPublishMu.Unlock()
		return
	}
	metricPublishTimes[key] = now
	metricPublishMu.Unlock()

	unit := cwtypes.StandardUnitCount
	if rawUnit, ok := metric.Fields["unit"]; ok {
		if unitStr, ok := rawUnit.(string); ok {
			if parsedUnit, found := metricUnitFromString(unitStr); found {
				unit = parsedUnit
			} else {
				logger.GetLogger().WithComponent("cloudwatch").WithFields(logger.Fields{"metric": metric.Name, "unit": unitStr}).Debug("unsupported metric unit; defaulting to Count")
			}
		}
	}

	dims := []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(metric.Component)}}
	for k, v := range metric.Fields {
		if k == "metric" || k == "metric_type" || k == "value" || k == "unit" {
			continue
		}
		if s, ok := v.(string); ok && s != "" {
			dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(s)})
		}
	}

	data := []cwtypes.MetricDatum{{
		MetricName: aws.String(metric.Name),
		Dimensions: dims,
		Unit:       unit,
		Value:      aws.Float64(value),
	}}
	publishMetricsFunc(context.Background(), data)
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func metricUnitFromString(unit string) (cwtypes.StandardUnit, bool) {
	switch strings.ToLower(unit) {
	case "count":
		return cwtypes.StandardUnitCount, true
	case "percent":
		return cwtypes.StandardUnitPercent, true
	case "bytes":
		return cwtypes.StandardUnitBytes, true
	default:
		return cwtypes.StandardUnitCount, false
	}
}
