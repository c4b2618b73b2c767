package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Strob0t/spawnrelay/internal/resilience"
)

type simulator struct {
	gen     *generator
	send    sender
	breaker *resilience.Breaker

	sent, failed, skipped int
}

// loop emits one spawn per interval until ctx ends or count spawns have been
// attempted (count 0 means no limit). The first spawn waits one interval.
func (s *simulator) loop(ctx context.Context, interval time.Duration, count int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempts := 0; count == 0 || attempts < count; attempts++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.tick(ctx)
	}
}

func (s *simulator) tick(ctx context.Context) {
	ev := s.gen.next()
	mobID, _ := ev["mob_id"].(string)

	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.send.send(ctx, ev)
	})
	switch {
	case err == nil:
		s.sent++
		slog.Info("spawn sent", "mob_id", mobID, "x", ev["x"], "y", ev["y"], "map_id", ev["map_id"])
	case errors.Is(err, resilience.ErrCircuitOpen):
		s.skipped++
		slog.Debug("spawn skipped, relay circuit open", "mob_id", mobID)
	default:
		s.failed++
		slog.Warn("spawn failed", "mob_id", mobID, "error", err)
	}
}
