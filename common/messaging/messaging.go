// Package messaging abstracts the message broker used to fan sync and
// housekeeping tasks out to workers and to announce finished runs.
package messaging

import (
	"context"
	"time"
)

// Message represents a message received from or sent to a message broker.
type Message struct {
	Subject string
	Data    []byte
	// Reply is set for request/reply exchanges.
	Reply    string
	Metadata map[string]string
	// Timestamp is when the message was received locally.
	Timestamp time.Time
}

// MessageHandler processes a received message.
type MessageHandler func(ctx context.Context, msg *Message) error

// Subscription represents an active subscription to a subject.
type Subscription interface {
	Unsubscribe() error
	Subject() string
	IsValid() bool
}

// Publisher publishes messages to subjects.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
	// PublishMsg sends a Message with headers.
	PublishMsg(ctx context.Context, msg *Message) error
	Close() error
}

// Subscriber subscribes to messages on subjects.
type Subscriber interface {
	// Subscribe fans every message out to every subscriber.
	Subscribe(subject string, handler MessageHandler) (Subscription, error)
	// QueueSubscribe delivers each message to one member of the queue group.
	QueueSubscribe(subject, queue string, handler MessageHandler) (Subscription, error)
	Close() error
}

// Client combines Publisher and Subscriber.
type Client interface {
	Publisher
	Subscriber

	// Drain lets in-flight messages finish before closing.
	Drain() error
	IsConnected() bool
}
