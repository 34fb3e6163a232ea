package venue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"pricefuse/internal/channel/trades"
	"pricefuse/internal/metrics"
	"pricefuse/logger"
	"pricefuse/models"
	"pricefuse/telemetry"
)

// ReconnectDelay is the fixed pause between connection attempts for every
// venue adapter.
const ReconnectDelay = 5 * time.Second

// Adapter is one (venue, market) trade stream: connect, subscribe, normalize
// messages into canonical trades, reconnect until stopped.
type Adapter interface {
	Key() models.VenueKey
	Start(ctx context.Context) error
	Stop()
}

// ComponentName is the log/metric component for one adapter instance.
func ComponentName(key models.VenueKey) string {
	return fmt.Sprintf("%s_%s_trades", key.VenueID, key.Market)
}

// ConnGuard hands out an ownership token per connection attempt. SDK
// callbacks capture the token they were created under; events arriving with
// a superseded token are dropped instead of corrupting the current session.
type ConnGuard struct {
	mu      sync.Mutex
	current uuid.UUID
}

// Next issues the token for a fresh connection attempt, superseding any
// previous one.
func (g *ConnGuard) Next() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = uuid.New()
	return g.current
}

// Active reports whether id still owns the connection.
func (g *ConnGuard) Active(id uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current == id
}

// Invalidate revokes the current token without issuing a new one.
func (g *ConnGuard) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.current = uuid.UUID{}
}

// Reporter funnels one adapter's state transitions and normalized trades
// into the shared channels, the venue's telemetry tracker and the metric
// counters, so each venue package only deals with its own wire format.
type Reporter struct {
	ctx      context.Context
	key      models.VenueKey
	channels *trades.Channels
	tracker  *telemetry.Tracker
	log      *logger.Entry
}

func NewReporter(ctx context.Context, key models.VenueKey, ch *trades.Channels, tracker *telemetry.Tracker, log *logger.Entry) *Reporter {
	return &Reporter{
		ctx:      ctx,
		key:      key,
		channels: ch,
		tracker:  tracker,
		log:      log,
	}
}

func (r *Reporter) Connecting() {
	r.tracker.MarkConnecting()
	r.emitState(models.ConnConnecting)
}

func (r *Reporter) Connected() {
	r.tracker.MarkConnected(time.Now().UTC())
	r.emitState(models.ConnConnected)
}

// Reconnecting counts one retry cycle before the next connection attempt.
func (r *Reporter) Reconnecting() {
	metrics.IncrementReconnect(r.key.VenueID, string(r.key.Market))
}

func (r *Reporter) Disconnected() {
	r.tracker.MarkDisconnected(time.Now().UTC())
	r.emitState(models.ConnDisconnected)
}

func (r *Reporter) Errored() {
	r.tracker.MarkError(time.Now().UTC())
	r.emitState(models.ConnError)
}

func (r *Reporter) emitState(state models.ConnState) {
	event := models.VenueStateEvent{Venue: r.key, State: state, At: time.Now().UTC()}
	if !r.channels.SendEvent(r.ctx, event) && r.ctx.Err() == nil {
		metrics.EmitDropMetric(logger.GetLogger(), metrics.DropMetricEvent, r.key.VenueID, string(r.key.Market), "", "ingest")
		r.log.WithFields(logger.Fields{"state": string(state)}).Warn("event channel full, dropping state event")
	}
}

// Message records one raw venue message, whatever it contains.
func (r *Reporter) Message() {
	r.tracker.RecordMessage(time.Now().UTC())
}

// Publish forwards one normalized trade. Drops are counted, never blocked on.
func (r *Reporter) Publish(trade models.Trade, rawSize int) bool {
	r.tracker.RecordTrade()
	if r.channels.SendTrade(r.ctx, trade) {
		logger.IncrementTradeRead(rawSize)
		metrics.IncrementTradeIngested(r.key.VenueID, string(r.key.Market))
		return true
	}
	if r.ctx.Err() != nil {
		return false
	}
	r.tracker.RecordDropped()
	metrics.IncrementTradeDropped(r.key.VenueID, string(r.key.Market))
	metrics.EmitDropMetric(logger.GetLogger(), metrics.DropMetricTrade, r.key.VenueID, string(r.key.Market), trade.Asset, "ingest")
	r.log.Warn("trade channel full, dropping trade")
	return false
}
