package broker

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryBroker is a channel-backed Broker for local analysis and tests.
// Messages publish to all current subscribers of the topic; there is no
// persistence and no consumer-group semantics.
type InMemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string][]chan Message
	offset map[string]int64
	closed bool
}

// NewInMemoryBroker creates an empty in-memory broker.
func NewInMemoryBroker() *InMemoryBroker {
	return &InMemoryBroker{
		subs:   make(map[string][]chan Message),
		offset: make(map[string]int64),
	}
}

// Publish delivers the message to every subscriber of the topic. A slow
// subscriber with a full buffer drops the message rather than blocking the
// publisher.
func (b *InMemoryBroker) Publish(ctx context.Context, topic string, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("broker is closed")
	}

	msg := Message{
		Topic:  topic,
		Key:    key,
		Value:  value,
		Offset: b.offset[topic],
	}
	b.offset[topic]++

	for _, ch := range b.subs[topic] {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe registers a new consumer channel for the topic. groupID is
// ignored.
func (b *InMemoryBroker) Subscribe(ctx context.Context, topic string, groupID string) (<-chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("broker is closed")
	}

	ch := make(chan Message, 100)
	b.subs[topic] = append(b.subs[topic], ch)

	// Close the subscriber channel when the caller's context ends.
	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		b.removeLocked(topic, ch)
	}()

	return ch, nil
}

// removeLocked drops and closes one subscriber channel. Caller holds b.mu.
func (b *InMemoryBroker) removeLocked(topic string, ch chan Message) {
	subs := b.subs[topic]
	for i, sub := range subs {
		if sub == ch {
			b.subs[topic] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Close shuts down the broker and closes all subscriber channels.
func (b *InMemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for topic, subs := range b.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subs, topic)
	}
	return nil
}
