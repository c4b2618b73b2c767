// Package broadcast defines the port for fanning events out to connected subscribers.
package broadcast

import (
	"context"

	"github.com/Strob0t/spawnrelay/internal/domain/event"
)

// Broadcaster delivers events to every subscriber connected at dispatch time.
// Delivery is best-effort: per-subscriber failures are never returned.
type Broadcaster interface {
	// Broadcast queues ev and returns once every delivery attempt has settled.
	Broadcast(ctx context.Context, ev event.Event) error

	// Enqueue queues ev and returns as soon as it is accepted for dispatch.
	Enqueue(ctx context.Context, ev event.Event) error

	// ConnectionCount returns the number of open subscriber connections.
	ConnectionCount() int
}
