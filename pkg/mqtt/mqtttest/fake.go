// Package mqtttest provides an in-memory mqtt.Client for tests.
package mqtttest

import (
	"context"
	"sync"

	"github.com/saaga0h/jeeves-climate/pkg/mqtt"
)

// Published is a message recorded by the fake
type Published struct {
	Topic    string
	Retained bool
	Payload  []byte
}

// Fake records publishes and lets tests deliver messages to subscribers.
// Topic filters are matched exactly, by a trailing "+" level or by a
// trailing "#".
type Fake struct {
	mu        sync.Mutex
	handlers  map[string]mqtt.MessageHandler
	published []Published
	connected bool

	// PublishErr, when set, is returned by Publish
	PublishErr error
}

// New creates a disconnected fake
func New() *Fake {
	return &Fake{handlers: make(map[string]mqtt.MessageHandler)}
}

func (f *Fake) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *Fake) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *Fake) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *Fake) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishErr != nil {
		return f.PublishErr
	}
	f.published = append(f.published, Published{Topic: topic, Retained: retained, Payload: payload})
	return nil
}

func (f *Fake) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Deliver hands a message to the subscriber whose filter matches topic.
// It reports whether any subscriber received it.
func (f *Fake) Deliver(topic string, payload []byte) bool {
	f.mu.Lock()
	var handler mqtt.MessageHandler
	for filter, h := range f.handlers {
		if matches(filter, topic) {
			handler = h
			break
		}
	}
	f.mu.Unlock()

	if handler == nil {
		return false
	}
	handler(message{topic: topic, payload: payload})
	return true
}

// Published returns a copy of every recorded publish
func (f *Fake) Published() []Published {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Published, len(f.published))
	copy(out, f.published)
	return out
}

// PublishedTo returns the recorded publishes on one topic
func (f *Fake) PublishedTo(topic string) []Published {
	var out []Published
	for _, p := range f.Published() {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func matches(filter, topic string) bool {
	if filter == topic {
		return true
	}
	n := len(filter)
	if n > 0 && filter[n-1] == '#' {
		return len(topic) >= n-1 && topic[:n-1] == filter[:n-1]
	}
	if n > 0 && filter[n-1] == '+' {
		prefix := filter[:n-1]
		if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
			return false
		}
		for _, c := range topic[len(prefix):] {
			if c == '/' {
				return false
			}
		}
		return true
	}
	return false
}

type message struct {
	topic   string
	payload []byte
}

func (m message) Topic() string   { return m.topic }
func (m message) Payload() []byte { return m.payload }
