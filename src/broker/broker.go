// Package broker abstracts the event bus carrying pipeline events into the
// engine and outcome records out of it.
package broker

import "context"

// Broker publishes and consumes messages on named topics.
type Broker interface {
	// Publish sends a message to a topic. The key selects the partition on
	// Kafka-compatible backends; the in-memory broker ignores it.
	Publish(ctx context.Context, topic string, key string, value []byte) error

	// Subscribe returns a channel of messages for a topic. groupID
	// coordinates consumer groups on Kafka-compatible backends. The channel
	// closes when the context is cancelled or the broker shuts down.
	Subscribe(ctx context.Context, topic string, groupID string) (<-chan Message, error)

	// Close shuts down the broker connection.
	Close() error
}

// Message is one consumed record.
type Message struct {
	Topic     string
	Key       string
	Value     []byte
	Offset    int64
	Partition int32
	Timestamp int64
}
