package analytics

import (
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/golang/glog"
)

// Handler receives events from an EventBus subscription.
type Handler func(event *Event)

// EventBus delivers every emitted event to the configured analytics modules and to the
// in-process subscribers of its topic. Handlers run synchronously and a panicking handler
// does not stop delivery to the others. Once the bus is shut down, events only reach the
// subscribers.
type EventBus struct {
	clock   clock.Clock
	modules []Module

	shutdownOnce sync.Once
	stopped      chan struct{}

	mu          sync.RWMutex
	nextID      int
	subscribers map[Topic]map[int]Handler
	wildcard    map[int]Handler
}

// NewEventBus returns a bus forwarding to modules.
func NewEventBus(c clock.Clock, modules ...Module) *EventBus {
	if c == nil {
		c = clock.New()
	}
	return &EventBus{
		clock:       c,
		modules:     modules,
		stopped:     make(chan struct{}),
		subscribers: make(map[Topic]map[int]Handler),
		wildcard:    make(map[int]Handler),
	}
}

// Emit implements Bus.
func (b *EventBus) Emit(topic Topic, payload interface{}) {
	event := &Event{
		Topic:     topic,
		Timestamp: b.clock.Now(),
		Payload:   payload,
	}

	if !b.isShutdown() {
		for _, module := range b.modules {
			deliver(topic, module.LogEvent, event)
		}
	}
	for _, handler := range b.handlers(topic) {
		deliver(topic, handler, event)
	}
}

func (b *EventBus) isShutdown() bool {
	select {
	case <-b.stopped:
		return true
	default:
		return false
	}
}

func (b *EventBus) handlers(topic Topic) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	handlers := make([]Handler, 0, len(b.subscribers[topic])+len(b.wildcard))
	for _, h := range b.subscribers[topic] {
		handlers = append(handlers, h)
	}
	for _, h := range b.wildcard {
		handlers = append(handlers, h)
	}
	return handlers
}

func deliver(topic Topic, handler Handler, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("analytics handler for %s panicked: %v", topic, r)
		}
	}()
	handler(event)
}

// Subscribe registers a handler for one topic, or for every topic when topic is empty.
// The returned function removes the subscription.
func (b *EventBus) Subscribe(topic Topic, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	if topic == "" {
		b.wildcard[id] = handler
	} else {
		if b.subscribers[topic] == nil {
			b.subscribers[topic] = make(map[int]Handler)
		}
		b.subscribers[topic][id] = handler
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if topic == "" {
			delete(b.wildcard, id)
		} else {
			delete(b.subscribers[topic], id)
		}
	}
}

// Shutdown shuts every module down. Later calls do nothing.
func (b *EventBus) Shutdown() {
	b.shutdownOnce.Do(func() {
		close(b.stopped)
		for _, module := range b.modules {
			module.Shutdown()
		}
	})
}
