package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"

	"pricefuse/config"
	"pricefuse/internal/channel/trades"
	"pricefuse/internal/metrics/rate"
	"pricefuse/logger"
	"pricefuse/models"
	"pricefuse/telemetry"
	"pricefuse/venue"
)

// Reader streams public trades from Bybit v5, spot or linear depending on
// the configured websocket URL. The SDK owns the socket lifecycle including
// ping/pong and reconnection; the reader marks connection state from the
// subscribe acks and relies on staleness detection upstream if the SDK's
// recovery ever wedges.
type Reader struct {
	cfg      config.VenueConfig
	asset    string
	symbol   string
	channels *trades.Channels
	tracker  *telemetry.Tracker
	guard    venue.ConnGuard
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
}

// TradeReader creates a trade reader for one Bybit market leg.
func TradeReader(cfg config.VenueConfig, asset, symbol string, ch *trades.Channels, tracker *telemetry.Tracker) *Reader {
	return &Reader{
		cfg:      cfg,
		asset:    asset,
		symbol:   symbol,
		channels: ch,
		tracker:  tracker,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

func (r *Reader) Key() models.VenueKey {
	return r.cfg.Key()
}

// Start subscribes to the publicTrade stream for the configured symbol.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("bybit reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	if r.cfg.WsURL == "" {
		return fmt.Errorf("bybit %s reader requires ws_url", r.cfg.Market)
	}

	log := r.log.WithComponent(venue.ComponentName(r.Key())).WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{"symbol": r.symbol, "ws_url": r.cfg.WsURL}).Info("starting bybit trade reader")

	r.wg.Add(1)
	go r.stream()

	log.Info("bybit trade reader started successfully")
	return nil
}

// Stop terminates the websocket subscription after the start context is
// cancelled.
func (r *Reader) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.guard.Invalidate()
	r.log.WithComponent(venue.ComponentName(r.Key())).Info("stopping bybit trade reader")
	r.wg.Wait()
	r.log.WithComponent(venue.ComponentName(r.Key())).Info("bybit trade reader stopped")
}

func (r *Reader) stream() {
	defer r.wg.Done()

	log := r.log.WithComponent(venue.ComponentName(r.Key())).WithFields(logger.Fields{
		"symbol": r.symbol,
		"worker": "trade_stream",
	})
	reporter := venue.NewReporter(r.ctx, r.Key(), r.channels, r.tracker, log)

	connID := r.guard.Next()
	topic := fmt.Sprintf("publicTrade.%s", r.symbol)

	handler := func(message string) error {
		if !r.guard.Active(connID) {
			return nil
		}

		var env envelope
		if err := json.Unmarshal([]byte(message), &env); err != nil {
			return nil
		}

		if env.Op != "" {
			r.handleOp(env, reporter, log, message)
			return nil
		}
		if !strings.HasPrefix(env.Topic, "publicTrade.") {
			return nil
		}

		reporter.Message()
		parsed, err := tradesFromData(env.Data, r.Key(), r.asset)
		if err != nil {
			log.WithError(err).Warn("malformed publicTrade payload, skipping")
			return nil
		}
		size := len(message) / max(len(parsed), 1)
		for _, trade := range parsed {
			reporter.Publish(trade, size)
		}
		return nil
	}

	reporter.Connecting()
	ws := bybit.NewBybitPublicWebSocket(r.cfg.WsURL, handler)
	ws.Connect().SendSubscription([]string{topic})
	log.WithFields(logger.Fields{"topic": topic}).Info("subscription request sent")

	<-r.ctx.Done()
	r.guard.Invalidate()
	ws.Disconnect()
	reporter.Disconnected()
}

// handleOp processes control frames: subscribe acks flip the state to
// connected, failures surface as errors and are checked for rate-limit
// wording.
func (r *Reader) handleOp(env envelope, reporter *venue.Reporter, log *logger.Entry, raw string) {
	switch env.Op {
	case "subscribe":
		if env.Success {
			reporter.Connected()
			log.Info("subscribed to publicTrade stream")
			return
		}
		reporter.Errored()
		log.WithFields(logger.Fields{"ret_msg": env.RetMsg}).Warn("subscription rejected")
		rate.ReportLimitFromMessage(r.log, "bybit", r.symbol, "trades", raw)
	case "ping", "pong":
		// keepalive handled by the SDK
	default:
	}
}

type envelope struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Op      string          `json:"op"`
	Success bool            `json:"success"`
	RetMsg  string          `json:"ret_msg"`
	Ts      int64           `json:"ts"`
	Data    json.RawMessage `json:"data"`
}

// publicTrade is one fill from the v5 publicTrade topic. S carries the
// taker side.
type publicTrade struct {
	Time    int64  `json:"T"`
	Symbol  string `json:"s"`
	Side    string `json:"S"`
	Volume  string `json:"v"`
	Price   string `json:"p"`
	TradeID string `json:"i"`
}

func tradesFromData(data json.RawMessage, key models.VenueKey, asset string) ([]models.Trade, error) {
	var fills []publicTrade
	if err := json.Unmarshal(data, &fills); err != nil {
		return nil, fmt.Errorf("decode publicTrade data: %w", err)
	}

	out := make([]models.Trade, 0, len(fills))
	for _, f := range fills {
		trade, err := tradeFromFill(f, key, asset)
		if err != nil {
			return nil, err
		}
		out = append(out, trade)
	}
	return out, nil
}

func tradeFromFill(f publicTrade, key models.VenueKey, asset string) (models.Trade, error) {
	price, err := strconv.ParseFloat(f.Price, 64)
	if err != nil {
		return models.Trade{}, fmt.Errorf("parse price %q: %w", f.Price, err)
	}
	qty, err := strconv.ParseFloat(f.Volume, 64)
	if err != nil {
		return models.Trade{}, fmt.Errorf("parse volume %q: %w", f.Volume, err)
	}

	var side models.Side
	switch f.Side {
	case "Buy":
		side = models.SideBuy
	case "Sell":
		side = models.SideSell
	default:
		return models.Trade{}, fmt.Errorf("unknown taker side %q", f.Side)
	}

	return models.Trade{
		Venue:      key,
		Asset:      asset,
		Price:      price,
		Quantity:   qty,
		Side:       side,
		Timestamp:  time.UnixMilli(f.Time).UTC(),
		ReceivedAt: time.Now().UTC(),
	}, nil
}
