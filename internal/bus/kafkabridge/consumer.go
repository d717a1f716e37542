package kafkabridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/IBM/sarama"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/map-search-pager/internal/bus"
	"github.com/mohammed-shakir/map-search-pager/internal/core/model"
	obs "github.com/mohammed-shakir/map-search-pager/internal/core/observability"
	mylog "github.com/mohammed-shakir/map-search-pager/internal/logger"
)

type ConsumerConfig struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	DedupeSize          int
}

// Consumer republishes Map.area_selected events read from Kafka onto the local bus.
type Consumer struct {
	cfg    ConsumerConfig
	logger *slog.Logger
	bus    bus.Bus
	dedupe *offsetDedupe

	mu         sync.RWMutex
	partitions []int32
}

func NewConsumer(cfg ConsumerConfig, b bus.Bus, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 10 * time.Second
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 3 * time.Second
	}
	if cfg.RebalanceTimeout <= 0 {
		cfg.RebalanceTimeout = 60 * time.Second
	}
	return &Consumer{
		cfg:    cfg,
		logger: logger,
		bus:    b,
		dedupe: newOffsetDedupe(cfg.DedupeSize),
	}
}

// Start runs the consumer group loop until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	if c.bus == nil {
		return errors.New("kafkabridge: missing bus")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne, onSetup: c.setClaims, onCleanup: c.clearClaims}

	c.logger.Info("kafka selection consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("kafka selection consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				obs.IncKafkaConsumerError("consume")
				c.logger.Error("kafka consumer error", "err", err, "topic", c.cfg.Topic)
				select {
				case <-ctx.Done():
				case <-time.After(2 * time.Second):
				}
			}
		}
	}
}

// ProcessOne handles a single message. Undecodable or invalid selections are
// dropped so they cannot block the partition.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	ctx = mylog.WithTopic(mylog.WithComponent(ctx, "kafka_consumer"), msg.Topic)

	if !c.dedupe.shouldApply(fmt.Sprintf("%s/%d", msg.Topic, msg.Partition), msg.Offset+1) {
		c.logger.DebugContext(ctx, "skipping redelivered selection",
			"partition", msg.Partition, "offset", msg.Offset)
		return nil
	}

	var ev model.AreaSelected
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncKafkaConsumerError("decode")
		c.logger.WarnContext(ctx, "dropping undecodable selection",
			"partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}

	// validate here so bad messages are counted against kafka, not the pager
	if _, err := ev.Selection(); err != nil {
		kind := "invalid"
		if errors.Is(err, model.ErrUnknownShape) {
			kind = "unknown_shape"
		}
		obs.IncKafkaConsumerError(kind)
		c.logger.WarnContext(ctx, "dropping selection",
			"partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}

	c.bus.Publish(bus.TopicAreaSelected, ev)
	return nil
}

func (c *Consumer) setClaims(claims map[string][]int32) {
	var parts []int32
	for _, ps := range claims {
		parts = append(parts, ps...)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i] < parts[j] })
	c.mu.Lock()
	c.partitions = parts
	c.mu.Unlock()
}

func (c *Consumer) clearClaims() {
	c.mu.Lock()
	c.partitions = nil
	c.mu.Unlock()
}

// Readiness reports whether the group currently holds any partitions.
func (c *Consumer) Readiness() (bool, []int32) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.partitions) == 0 {
		return false, nil
	}
	return true, append([]int32(nil), c.partitions...)
}

type offsetDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, int64]
}

func newOffsetDedupe(size int) *offsetDedupe {
	if size <= 0 {
		size = 1024
	}
	c, _ := lru.New[string, int64](size)
	return &offsetDedupe{lru: c}
}

// returns true if next is greater than the last applied for key
func (d *offsetDedupe) shouldApply(key string, next int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && next <= last {
		return false
	}
	d.lru.Add(key, next)
	return true
}
