// Package kafkabridge connects the in-process bus to Kafka: selections drawn
// elsewhere are consumed into the bus, and search outcomes are forwarded out.
package kafkabridge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/map-search-pager/internal/bus"
	"github.com/mohammed-shakir/map-search-pager/internal/core/observability"
)

// Envelope is the Kafka message value for a forwarded bus event.
type Envelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
	TS      time.Time       `json:"ts"`
}

type Publisher struct {
	logger *slog.Logger
	topic  string
	events chan Envelope
	prod   sarama.AsyncProducer

	unsubs  []func()
	stopped chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewPublisher(brokers []string, topic string, queueSize int, logger *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafkabridge: create async producer: %w", err)
	}
	return newPublisher(prod, topic, queueSize, logger), nil
}

func newPublisher(prod sarama.AsyncProducer, topic string, queueSize int, logger *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		logger:  logger,
		topic:   topic,
		events:  make(chan Envelope, queueSize),
		prod:    prod,
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.logger.Error("kafkabridge: marshal envelope", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.Topic),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		for err := range p.prod.Errors() {
			if err != nil {
				p.logger.Error("kafkabridge: producer error", "err", err)
			}
		}
	}()

	return p
}

// Attach forwards the given bus topics until Close.
func (p *Publisher) Attach(b bus.Bus, topics ...string) {
	for _, t := range topics {
		p.unsubs = append(p.unsubs, b.Subscribe(t, p.forward))
	}
}

func (p *Publisher) forward(topic string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("kafkabridge: marshal payload", "topic", topic, "err", err)
		return
	}
	p.Publish(Envelope{Topic: topic, Payload: raw, TS: time.Now().UTC()})
}

// Publish never blocks; events are dropped when the queue is full.
func (p *Publisher) Publish(ev Envelope) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.events <- ev:
	default:
		observability.IncKafkaProducerDropped()
	}
}

func (p *Publisher) Close() error {
	for _, u := range p.unsubs {
		u()
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()
	<-p.stopped

	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("kafkabridge: close producer: %w", err)
	}
	return nil
}
