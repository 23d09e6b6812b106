package analytics

import (
	"sync"
)

// Recorder is a Bus that keeps every event in memory. It is meant for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(topic Topic, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Topic: topic, Payload: payload})
}

// Events returns the recorded events in emission order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := make([]Event, len(r.events))
	copy(events, r.events)
	return events
}

// Topics returns the recorded topics in emission order.
func (r *Recorder) Topics() []Topic {
	events := r.Events()
	topics := make([]Topic, len(events))
	for i, e := range events {
		topics[i] = e.Topic
	}
	return topics
}

// Count returns how many events were recorded on topic.
func (r *Recorder) Count(topic Topic) int {
	count := 0
	for _, e := range r.Events() {
		if e.Topic == topic {
			count++
		}
	}
	return count
}

// ByTopic returns the recorded events on topic.
func (r *Recorder) ByTopic(topic Topic) []Event {
	var events []Event
	for _, e := range r.Events() {
		if e.Topic == topic {
			events = append(events, e)
		}
	}
	return events
}
