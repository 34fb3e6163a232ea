package okx

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pricefuse/config"
	"pricefuse/internal/channel/trades"
	"pricefuse/internal/metrics/rate"
	"pricefuse/logger"
	"pricefuse/models"
	"pricefuse/telemetry"
	"pricefuse/venue"
)

// Reader subscribes to the OKX v5 public trades channel for one instrument
// and forwards normalized trades. It connects directly to the official OKX
// websocket without relying on third-party SDKs. If the connection drops it
// is re-established automatically until the context is cancelled.
type Reader struct {
	cfg      config.VenueConfig
	asset    string
	symbol   string
	channels *trades.Channels
	tracker  *telemetry.Tracker
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
}

// TradeReader creates a trade reader for one OKX instrument. The instrument
// id decides the market leg: BTC-USDT for spot, BTC-USDT-SWAP for perp.
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

// Start establishes the websocket connection and subscribes to the trades
// channel for the configured instrument.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("okx reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	if r.cfg.WsURL == "" {
		return fmt.Errorf("okx %s reader requires ws_url", r.cfg.Market)
	}

	log := r.log.WithComponent(venue.ComponentName(r.Key())).WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{"symbol": r.symbol, "ws_url": r.cfg.WsURL}).Info("starting okx trade reader")

	r.wg.Add(1)
	go r.stream()

	log.Info("okx trade reader started successfully")
	return nil
}

// Stop terminates the websocket subscription and waits for the stream
// goroutine to finish.
func (r *Reader) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent(venue.ComponentName(r.Key())).Info("stopping okx trade reader")
	r.wg.Wait()
	r.log.WithComponent(venue.ComponentName(r.Key())).Info("okx trade reader stopped")
}

// stream handles websocket lifecycle, reconnection and forwarding of trades.
func (r *Reader) stream() {
	defer r.wg.Done()

	log := r.log.WithComponent(venue.ComponentName(r.Key())).WithFields(logger.Fields{
		"symbol": r.symbol,
		"worker": "trade_stream",
	})
	reporter := venue.NewReporter(r.ctx, r.Key(), r.channels, r.tracker, log)

	for {
		if r.ctx.Err() != nil {
			return
		}

		reporter.Connecting()
		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		conn, _, err := dialer.Dial(r.cfg.WsURL, nil)
		if err != nil {
			reporter.Errored()
			log.WithError(err).Warn("failed to connect websocket, retrying")
			reporter.Reconnecting()
			select {
			case <-time.After(venue.ReconnectDelay):
				continue
			case <-r.ctx.Done():
				return
			}
		}

		sub := map[string]interface{}{
			"op": "subscribe",
			"args": []map[string]string{
				{"channel": "trades", "instId": r.symbol},
			},
		}
		if err := conn.WriteJSON(sub); err != nil {
			log.WithError(err).Warn("failed to subscribe")
			conn.Close()
			reporter.Errored()
			reporter.Reconnecting()
			select {
			case <-time.After(venue.ReconnectDelay):
				continue
			case <-r.ctx.Done():
				return
			}
		}

		// OKX expects the literal text "ping" and drops idle connections
		// after 30 seconds of silence.
		pingTicker := time.NewTicker(20 * time.Second)
		done := make(chan struct{})
		go func() {
			defer pingTicker.Stop()
			for {
				select {
				case <-done:
					return
				case <-r.ctx.Done():
					conn.Close()
					return
				case <-pingTicker.C:
					conn.WriteMessage(websocket.TextMessage, []byte("ping"))
				}
			}
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				close(done)
				conn.Close()
				reporter.Disconnected()
				log.WithError(err).Warn("websocket read error, reconnecting")
				goto RECONNECT
			}
			r.processMessage(msg, reporter, log)
		}

	RECONNECT:
		reporter.Reconnecting()
		select {
		case <-time.After(venue.ReconnectDelay):
		case <-r.ctx.Done():
			return
		}
	}
}

// processMessage routes one inbound frame: pong text, subscription events and
// trade data.
func (r *Reader) processMessage(msg []byte, reporter *venue.Reporter, log *logger.Entry) {
	if string(msg) == "pong" {
		return
	}

	var base struct {
		Event string `json:"event"`
		Code  string `json:"code"`
		Msg   string `json:"msg"`
		Arg   struct {
			Channel string `json:"channel"`
			InstID  string `json:"instId"`
		} `json:"arg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg, &base); err != nil {
		log.WithError(err).Debug("failed to decode message")
		return
	}

	if base.Event != "" {
		switch base.Event {
		case "subscribe":
			reporter.Connected()
			log.Info("subscribed to trades channel")
		case "error":
			log.WithFields(logger.Fields{"code": base.Code, "msg": base.Msg}).Warn("subscription error")
			rate.ReportLimitFromMessage(r.log, "okx", r.symbol, "trades", base.Msg)
		}
		return
	}

	if base.Arg.Channel != "trades" || len(base.Data) == 0 {
		return
	}

	reporter.Message()
	parsed, err := tradesFromData(base.Data, r.Key(), r.asset)
	if err != nil {
		log.WithError(err).Warn("malformed trade payload, skipping")
		return
	}
	size := len(msg) / max(len(parsed), 1)
	for _, trade := range parsed {
		reporter.Publish(trade, size)
	}
}

// wsTrade is one fill from the v5 trades channel. Numeric fields arrive as
// strings, ts in milliseconds.
type wsTrade struct {
	InstID  string `json:"instId"`
	TradeID string `json:"tradeId"`
	Price   string `json:"px"`
	Size    string `json:"sz"`
	Side    string `json:"side"`
	Ts      string `json:"ts"`
}

func tradesFromData(data json.RawMessage, key models.VenueKey, asset string) ([]models.Trade, error) {
	var fills []wsTrade
	if err := json.Unmarshal(data, &fills); err != nil {
		return nil, fmt.Errorf("decode trades data: %w", err)
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

func tradeFromFill(f wsTrade, key models.VenueKey, asset string) (models.Trade, error) {
	price, err := strconv.ParseFloat(f.Price, 64)
	if err != nil {
		return models.Trade{}, fmt.Errorf("parse px %q: %w", f.Price, err)
	}
	size, err := strconv.ParseFloat(f.Size, 64)
	if err != nil {
		return models.Trade{}, fmt.Errorf("parse sz %q: %w", f.Size, err)
	}
	ts, err := strconv.ParseInt(f.Ts, 10, 64)
	if err != nil {
		return models.Trade{}, fmt.Errorf("parse ts %q: %w", f.Ts, err)
	}

	var side models.Side
	switch f.Side {
	case "buy":
		side = models.SideBuy
	case "sell":
		side = models.SideSell
	default:
		return models.Trade{}, fmt.Errorf("unknown taker side %q", f.Side)
	}

	return models.Trade{
		Venue:      key,
		Asset:      asset,
		Price:      price,
		Quantity:   size,
		Side:       side,
		Timestamp:  time.UnixMilli(ts).UTC(),
		ReceivedAt: time.Now().UTC(),
	}, nil
}
