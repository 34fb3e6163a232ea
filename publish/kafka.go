package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	kafka "github.com/segmentio/kafka-go"

	"pricefuse/config"
	"pricefuse/engine"
	"pricefuse/logger"
	"pricefuse/models"
)

// updateBuffer is the engine subscription depth. The run loop only marshals
// and hands off to the kafka writer, so a shallow buffer absorbs recompute
// bursts.
const updateBuffer = 64

// Publisher streams every composite update to a Kafka topic so downstream
// consumers follow the same feed the API serves. Messages are keyed by asset
// to keep one asset's stream ordered within a partition.
type Publisher struct {
	config      *config.Config
	engine      *engine.Engine
	writer      *kafka.Writer
	unsubscribe func()
	ctx         context.Context
	wg          *sync.WaitGroup
	mu          sync.RWMutex
	running     bool
	log         *logger.Log
}

// NewPublisher constructs a publisher when Kafka publishing is enabled. When
// it is disabled the returned publisher is nil and Start and Stop are no-ops.
func NewPublisher(cfg *config.Config, eng *engine.Engine) (*Publisher, error) {
	if !cfg.Publish.Kafka.Enabled {
		return nil, nil
	}
	if len(cfg.Publish.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if eng == nil {
		return nil, fmt.Errorf("kafka publisher requires an engine")
	}

	p := &Publisher{
		config: cfg,
		engine: eng,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Publish.Kafka.Brokers...),
			Topic:    cfg.Publish.Kafka.Topic,
			Balancer: &kafka.LeastBytes{},
		},
		wg:  &sync.WaitGroup{},
		log: logger.GetLogger(),
	}
	p.log.WithComponent("kafka_publisher").WithFields(logger.Fields{
		"brokers": cfg.Publish.Kafka.Brokers,
		"topic":   cfg.Publish.Kafka.Topic,
	}).Debug("kafka publisher initialized")
	return p, nil
}

func (p *Publisher) Start(ctx context.Context) error {
	if p == nil {
		return nil
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("kafka publisher already running")
	}
	p.running = true
	p.ctx = ctx
	updates, unsubscribe := p.engine.Subscribe(updateBuffer)
	p.unsubscribe = unsubscribe
	p.mu.Unlock()

	p.log.WithComponent("kafka_publisher").Debug("starting kafka publisher")

	p.wg.Add(1)
	go p.run(updates)

	return nil
}

func (p *Publisher) run(updates <-chan models.CompositeUpdate) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(update)
			if err != nil {
				p.log.WithComponent("kafka_publisher").WithError(err).Warn("failed to marshal update")
				continue
			}
			msg := kafka.Message{
				Key:   []byte(update.Asset),
				Value: data,
			}
			if err := p.writer.WriteMessages(p.ctx, msg); err != nil {
				p.log.WithComponent("kafka_publisher").WithError(err).Warn("failed to publish update")
			} else {
				logger.RecordChannelMessage("kafka_publish", len(data))
				p.log.WithComponent("kafka_publisher").WithFields(logger.Fields{
					"asset":   update.Asset,
					"version": update.Version,
				}).Debug("update published")
			}
		}
	}
}

// Stop unsubscribes from the engine, which closes the update channel and
// lets the run loop drain out before the writer is closed.
func (p *Publisher) Stop() {
	if p == nil {
		return
	}

	p.mu.Lock()
	p.running = false
	unsubscribe := p.unsubscribe
	p.unsubscribe = nil
	p.mu.Unlock()

	p.log.WithComponent("kafka_publisher").Debug("stopping kafka publisher")
	if unsubscribe != nil {
		unsubscribe()
	}
	p.wg.Wait()
	p.writer.Close()
	p.log.WithComponent("kafka_publisher").Debug("kafka publisher stopped")
}
