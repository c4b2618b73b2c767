// Package messagequeue defines the message queue port (interface).
package messagequeue

import (
	"context"
	"errors"
)

// ErrPermanent marks a handler failure that redelivery cannot fix (e.g. a
// malformed payload). Adapters terminate such messages instead of retrying.
var ErrPermanent = errors.New("permanent message failure")

// HeaderRequestID carries the producer's request ID across the queue.
const HeaderRequestID = "X-Request-ID"

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Publisher sends messages to the queue.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Subscriber is the port for consuming messages from an upstream queue.
type Subscriber interface {
	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}
