package kucoin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	kumex "github.com/Kucoin/kucoin-futures-go-sdk"

	"pricefuse/config"
	"pricefuse/internal/channel/trades"
	"pricefuse/internal/symbols"
	"pricefuse/logger"
	"pricefuse/models"
	"pricefuse/telemetry"
	"pricefuse/venue"
)

// Reader streams futures executions from KuCoin. Execution sizes arrive in
// contract lots; the reader fetches the contract multiplier once at startup
// and converts them to base units.
type Reader struct {
	cfg        config.VenueConfig
	asset      string
	symbol     string
	channels   *trades.Channels
	tracker    *telemetry.Tracker
	multiplier float64
	ctx        context.Context
	wg         *sync.WaitGroup
	mu         sync.RWMutex
	running    bool
	log        *logger.Log
}

// TradeReader creates an execution reader for one KuCoin futures contract.
func TradeReader(cfg config.VenueConfig, asset, symbol string, ch *trades.Channels, tracker *telemetry.Tracker) *Reader {
	return &Reader{
		cfg:        cfg,
		asset:      asset,
		symbol:     symbol,
		channels:   ch,
		tracker:    tracker,
		multiplier: 1,
		wg:         &sync.WaitGroup{},
		log:        logger.GetLogger(),
	}
}

func (r *Reader) Key() models.VenueKey {
	return r.cfg.Key()
}

// Start subscribes to the execution stream for the configured contract.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("kucoin reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent(venue.ComponentName(r.Key())).WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{"symbol": r.symbol}).Info("starting kucoin trade reader")

	r.wg.Add(1)
	go r.stream()

	log.Info("kucoin trade reader started successfully")
	return nil
}

// Stop terminates the websocket subscription.
func (r *Reader) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent(venue.ComponentName(r.Key())).Info("stopping kucoin trade reader")
	r.wg.Wait()
	r.log.WithComponent(venue.ComponentName(r.Key())).Info("kucoin trade reader stopped")
}

func (r *Reader) stream() {
	defer r.wg.Done()

	log := r.log.WithComponent(venue.ComponentName(r.Key())).WithFields(logger.Fields{
		"symbol": r.symbol,
		"worker": "trade_stream",
	})
	reporter := venue.NewReporter(r.ctx, r.Key(), r.channels, r.tracker, log)

	service := kumex.NewApiService(
		kumex.ApiBaseURIOption(r.cfg.RestURL),
	)

	if m, err := fetchMultiplier(r.ctx, r.cfg.RestURL, r.symbol); err != nil {
		log.WithError(err).Warn("failed to fetch contract multiplier, sizes stay in lots")
	} else {
		r.multiplier = m
		log.WithFields(logger.Fields{"multiplier": m}).Info("contract multiplier resolved")
	}

	topic := fmt.Sprintf("/contractMarket/execution:%s", r.symbol)

	for {
		if r.ctx.Err() != nil {
			return
		}

		reporter.Connecting()

		rsp, err := service.WebSocketPublicToken()
		if err != nil {
			reporter.Errored()
			log.WithError(err).Warn("failed to get websocket token")
			reporter.Reconnecting()
			select {
			case <-time.After(venue.ReconnectDelay):
				continue
			case <-r.ctx.Done():
				return
			}
		}

		tk := &kumex.WebSocketTokenModel{}
		if err := rsp.ReadData(tk); err != nil {
			reporter.Errored()
			log.WithError(err).Warn("failed to read websocket token")
			reporter.Reconnecting()
			select {
			case <-time.After(venue.ReconnectDelay):
				continue
			case <-r.ctx.Done():
				return
			}
		}

		c := service.NewWebSocketClient(tk)
		mc, ec, err := c.Connect()
		if err != nil {
			reporter.Errored()
			log.WithError(err).Warn("failed to connect websocket")
			reporter.Reconnecting()
			select {
			case <-time.After(venue.ReconnectDelay):
				continue
			case <-r.ctx.Done():
				return
			}
		}

		if err := c.Subscribe(kumex.NewSubscribeMessage(topic, false)); err != nil {
			log.WithFields(logger.Fields{"topic": topic}).WithError(err).Warn("failed to subscribe")
			c.Stop()
			reporter.Errored()
			reporter.Reconnecting()
			select {
			case <-time.After(venue.ReconnectDelay):
				continue
			case <-r.ctx.Done():
				return
			}
		}

		reporter.Connected()
		log.WithFields(logger.Fields{"topic": topic}).Info("subscribed to execution stream")

		for {
			select {
			case <-r.ctx.Done():
				c.Stop()
				reporter.Disconnected()
				return
			case err := <-ec:
				if err != nil {
					log.WithError(err).Warn("websocket error")
				}
				c.Stop()
				reporter.Disconnected()
				goto reconnect
			case msg, ok := <-mc:
				if !ok {
					c.Stop()
					reporter.Disconnected()
					goto reconnect
				}
				if msg == nil || !strings.HasPrefix(msg.Topic, "/contractMarket/execution") {
					continue
				}

				reporter.Message()
				var exec executionData
				if err := msg.ReadData(&exec); err != nil {
					log.WithError(err).Warn("failed to read execution data")
					continue
				}
				if exec.Symbol != "" && symbols.ToCanonical("kucoin", exec.Symbol) != symbols.ToCanonical("kucoin", r.symbol) {
					log.WithFields(logger.Fields{"symbol": exec.Symbol}).Debug("execution for another contract, skipping")
					continue
				}
				trade, err := tradeFromExecution(exec, r.Key(), r.asset, r.multiplier)
				if err != nil {
					log.WithError(err).Warn("malformed execution, skipping")
					continue
				}
				reporter.Publish(trade, len(msg.RawData))
			}
		}

	reconnect:
		if r.ctx.Err() != nil {
			return
		}
		log.Warn("kucoin websocket disconnected, reconnecting")
		reporter.Reconnecting()
		select {
		case <-time.After(venue.ReconnectDelay):
		case <-r.ctx.Done():
			return
		}
	}
}

// executionData is one match from /contractMarket/execution. Timestamps are
// nanoseconds; older payloads carry ts, newer ones time.
type executionData struct {
	Symbol    string  `json:"symbol"`
	Sequence  int64   `json:"sequence"`
	Side      string  `json:"side"`
	MatchSize float64 `json:"matchSize"`
	Size      float64 `json:"size"`
	Price     float64 `json:"price"`
	TradeID   string  `json:"tradeId"`
	Ts        int64   `json:"ts"`
	Time      int64   `json:"time"`
}

func tradeFromExecution(exec executionData, key models.VenueKey, asset string, multiplier float64) (models.Trade, error) {
	if exec.Price <= 0 {
		return models.Trade{}, fmt.Errorf("execution price %v is not positive", exec.Price)
	}

	lots := exec.MatchSize
	if lots == 0 {
		lots = exec.Size
	}
	if lots <= 0 {
		return models.Trade{}, fmt.Errorf("execution size %v is not positive", lots)
	}
	if multiplier <= 0 {
		multiplier = 1
	}

	var side models.Side
	switch exec.Side {
	case "buy":
		side = models.SideBuy
	case "sell":
		side = models.SideSell
	default:
		return models.Trade{}, fmt.Errorf("unknown taker side %q", exec.Side)
	}

	ns := exec.Ts
	if ns == 0 {
		ns = exec.Time
	}
	if ns <= 0 {
		return models.Trade{}, fmt.Errorf("execution timestamp %d is not positive", ns)
	}

	return models.Trade{
		Venue:      key,
		Asset:      asset,
		Price:      exec.Price,
		Quantity:   lots * multiplier,
		Side:       side,
		Timestamp:  time.Unix(0, ns).UTC(),
		ReceivedAt: time.Now().UTC(),
	}, nil
}

var contractHTTPClient = &http.Client{Timeout: 15 * time.Second}

// fetchMultiplier resolves the contract multiplier that converts execution
// lots into base units, e.g. 0.001 BTC per lot for XBTUSDTM.
func fetchMultiplier(ctx context.Context, restURL, symbol string) (float64, error) {
	reqURL := fmt.Sprintf("%s/api/v1/contracts/%s", restURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build contract request: %w", err)
	}

	res, err := contractHTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch contract %s: %w", symbol, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("contract request returned status %d", res.StatusCode)
	}

	var resp struct {
		Code string `json:"code"`
		Data struct {
			Symbol     string  `json:"symbol"`
			Multiplier float64 `json:"multiplier"`
		} `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return 0, fmt.Errorf("decode contract response: %w", err)
	}
	if resp.Code != "200000" {
		return 0, fmt.Errorf("contract request failed with code %s", resp.Code)
	}
	if resp.Data.Multiplier <= 0 {
		return 0, fmt.Errorf("contract %s has multiplier %v", symbol, resp.Data.Multiplier)
	}
	return resp.Data.Multiplier, nil
}
