// Package bus provides the topic-based event bus shared by the map UI components.
package bus

import (
	"log/slog"
	"sync"

	"github.com/mohammed-shakir/map-search-pager/internal/core/observability"
)

const (
	// payload: model.AreaSelected or model.Selection
	TopicAreaSelected = "Map.area_selected"
	// payload: model.ResultsReceived
	TopicResultsReceived = "Map.results_received"
	// payload: model.SearchFailed
	TopicSearchFailed = "Map.search_failed"
)

type Handler func(topic string, payload any)

type Bus interface {
	Publish(topic string, payload any)
	// Subscribe registers h and returns a function removing it.
	Subscribe(topic string, h Handler) (unsubscribe func())
}

type subscription struct {
	id uint64
	h  Handler
}

// Local delivers synchronously on the publisher's goroutine, in subscription order.
type Local struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[string][]subscription
}

func NewLocal(logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{logger: logger, subs: map[string][]subscription{}}
}

func (b *Local) Subscribe(topic string, h Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, h: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

func (b *Local) remove(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[topic]
	for i, s := range subs {
		if s.id == id {
			b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[topic]) == 0 {
		delete(b.subs, topic)
	}
}

func (b *Local) Publish(topic string, payload any) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[topic]...)
	b.mu.RUnlock()

	observability.IncBusPublish(topic, len(subs))
	for _, s := range subs {
		b.deliver(topic, payload, s.h)
	}
}

func (b *Local) deliver(topic string, payload any, h Handler) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("bus handler panic recovered", "topic", topic, "err", rec)
		}
	}()
	h(topic, payload)
}

// Subscribers reports how many handlers are registered for topic.
func (b *Local) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
