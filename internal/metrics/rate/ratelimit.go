package rate

import (
	"fmt"
	"strings"

	"pricefuse/logger"
)

// ReportRateLimitExceeded increments the rate limit exceeded counter for the given
// venue and stream and emits the metric to CloudWatch. Additional fields such as
// venue, symbol and stream are attached to the log entry.
func ReportRateLimitExceeded(log *logger.Log, venue, symbol, stream string) {
	component := fmt.Sprintf("%s_%s", strings.ToLower(venue), strings.ToLower(stream))
	l := log.WithComponent(component)
	fields := logger.Fields{
		"venue":  strings.ToLower(venue),
		"symbol": symbol,
		"stream": strings.ToLower(stream),
	}
	l.LogMetric(component, "rate_limit_exceeded", int64(1), "counter", fields)
	l.WithFields(fields).Warn("rate limit exceeded")
}

// ReportIPBan increments the IP ban counter for the given venue and stream and emits
// the metric to CloudWatch. Additional fields such as venue, symbol and stream are
// attached to the log entry.
func ReportIPBan(log *logger.Log, venue, symbol, stream string) {
	component := fmt.Sprintf("%s_%s", strings.ToLower(venue), strings.ToLower(stream))
	l := log.WithComponent(component)
	fields := logger.Fields{
		"venue":  strings.ToLower(venue),
		"symbol": symbol,
		"stream": strings.ToLower(stream),
	}
	l.LogMetric(component, "ip_ban", int64(1), "counter", fields)
	l.WithFields(fields).Error("ip banned")
}

// detectLimit inspects the message returned from a venue and determines whether
// it signals a rate limit exceed or an IP ban. The detection logic is customised per
// venue as each one uses different wording.
func detectLimit(venue, msg string) (rateLimit bool, ipBan bool) {
	lowerMsg := strings.ToLower(msg)
	switch strings.ToLower(venue) {
	case "binance":
		rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "rate limit")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	case "okx":
		rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "frequency limit")
		ipBan = strings.Contains(lowerMsg, "ip") && (strings.Contains(lowerMsg, "blocked") || strings.Contains(lowerMsg, "ban"))
	case "kucoin":
		rateLimit = strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "rate limit")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "limit") && strings.Contains(lowerMsg, "triggered")
	case "bybit":
		ipBan = strings.Contains(lowerMsg, "ip rate limit") || (strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban"))
		rateLimit = !ipBan && (strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests") || strings.Contains(lowerMsg, "too many visits"))
	default:
		rateLimit = strings.Contains(lowerMsg, "rate limit") || strings.Contains(lowerMsg, "too many requests")
		ipBan = strings.Contains(lowerMsg, "ip") && strings.Contains(lowerMsg, "ban")
	}
	return
}

// ReportLimitFromMessage checks the provided message for rate limit or IP ban events
// based on venue-specific keywords and records the appropriate metrics. No action
// is taken if the message does not match any known patterns.
func ReportLimitFromMessage(log *logger.Log, venue, symbol, stream, msg string) {
	rateLimit, ipBan := detectLimit(venue, msg)
	if rateLimit {
		ReportRateLimitExceeded(log, venue, symbol, stream)
	}
	if ipBan {
		ReportIPBan(log, venue, symbol, stream)
	}
}
