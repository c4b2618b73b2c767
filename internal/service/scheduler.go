package service

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/Strob0t/spawnrelay/internal/domain/event"
)

// Scheduler lets code running outside the relay's request paths (game
// server threads, queue consumers) hand events to the dispatch loop.
// Schedule never blocks: when the queue is full or the relay has stopped,
// the event is dropped and counted.
type Scheduler struct {
	relay   *Relay
	dropped atomic.Int64
}

// NewScheduler returns a Scheduler feeding r.
func NewScheduler(r *Relay) *Scheduler {
	return &Scheduler{relay: r}
}

// Schedule hands ev to the dispatch loop. Events scheduled from one
// goroutine are dispatched in call order.
func (s *Scheduler) Schedule(ev event.Event) {
	ctx := context.Background()

	c, ok, err := s.relay.prepare(ctx, ev, SourceScheduler)
	if err != nil {
		slog.Error("schedule: event not serializable", "event_type", ev.Type(), "error", err)
		s.drop(ctx, "marshal")
		return
	}
	if !ok {
		return
	}

	select {
	case <-s.relay.done:
		s.relay.forget(ctx, c.frame)
		s.drop(ctx, "closed")
		return
	default:
	}

	select {
	case s.relay.queue <- c:
		s.relay.metrics.RecordAccepted(ctx, SourceScheduler)
		s.relay.afterSend()
	default:
		slog.Warn("schedule: dispatch queue full, event dropped", "event_type", c.eventType)
		s.relay.forget(ctx, c.frame)
		s.drop(ctx, "queue_full")
	}
}

// ScheduleSpawn schedules a spawn event for mobID at (x, y) on mapID. Keys in
// extra are merged into the event.
func (s *Scheduler) ScheduleSpawn(mobID string, x, y int, mapID string, extra map[string]any) {
	s.Schedule(event.NewSpawn(mobID, x, y, mapID, extra))
	slog.Debug("scheduled spawn broadcast", "mob_id", mobID, "x", x, "y", y, "map_id", mapID)
}

// Dropped returns how many scheduled events never reached the queue.
func (s *Scheduler) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Scheduler) drop(ctx context.Context, reason string) {
	s.dropped.Add(1)
	s.relay.metrics.RecordDropped(ctx, reason)
}
