package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	cfotel "github.com/Strob0t/spawnrelay/internal/adapter/otel"
)

// dispatch runs on the loop goroutine. It snapshots the registry, queues the
// frame on every snapshot peer, and hands settlement to a separate goroutine
// so the loop never waits on the network.
func (r *Relay) dispatch(ctx context.Context, c command) {
	targets := r.registry.Snapshot()
	if len(targets) == 0 {
		c.finish(nil)
		return
	}

	pending := make([]*delivery, len(targets))
	for i, p := range targets {
		pending[i] = p.offer(c.frame)
	}

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		r.settle(ctx, c, targets, pending)
		c.finish(nil)
	}()
}

func (r *Relay) settle(ctx context.Context, c command, targets []*Peer, pending []*delivery) {
	start := time.Now()
	if c.span.IsValid() {
		ctx = trace.ContextWithSpanContext(ctx, c.span)
	}
	ctx, span := cfotel.StartBroadcastSpan(ctx, c.eventType, len(targets))

	outcomes := fanOut(ctx, targets, pending)

	failed := 0
	for i, err := range outcomes {
		if err == nil {
			continue
		}
		failed++
		slog.Warn("delivery failed",
			"peer", targets[i].ID(),
			"remote", targets[i].RemoteAddr(),
			"event_type", c.eventType,
			"error", err,
		)
	}
	delivered := len(targets) - failed

	cfotel.EndBroadcastSpan(span, delivered, failed)
	r.metrics.RecordBroadcast(ctx, c.eventType, delivered, failed, time.Since(start))
	slog.Debug("broadcast settled",
		"event_type", c.eventType,
		"targets", len(targets),
		"failed", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// fanOut waits for every delivery and returns each outcome at the index of
// its peer. Member goroutines never return an error, so a failure on one
// peer cannot cancel or short-circuit the others.
func fanOut(ctx context.Context, targets []*Peer, pending []*delivery) []error {
	outcomes := make([]error, len(targets))

	var g errgroup.Group
	for i := range targets {
		g.Go(func() error {
			outcomes[i] = targets[i].await(ctx, pending[i])
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}
