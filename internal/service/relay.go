// Package service implements the relay core: the dispatch loop that owns the
// subscriber registry, the fan-out engine, and the cross-goroutine scheduler.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/trace"

	cfotel "github.com/Strob0t/spawnrelay/internal/adapter/otel"
	"github.com/Strob0t/spawnrelay/internal/config"
	"github.com/Strob0t/spawnrelay/internal/domain/event"
)

var (
	// ErrRelayClosed is returned once the dispatch loop has stopped.
	ErrRelayClosed = errors.New("relay closed")
	// ErrPeerClosed reports a delivery to a peer that closed first.
	ErrPeerClosed = errors.New("peer closed")
	// ErrPeerStalled reports a delivery refused because the peer stopped
	// draining its queue and was evicted.
	ErrPeerStalled = errors.New("peer stalled")
	// ErrAlreadyRegistered reports a second registration of the same peer.
	ErrAlreadyRegistered = errors.New("peer already registered")
)

// Event sources, used as the "source" metric attribute.
const (
	SourceIngress   = "ingress"
	SourceScheduler = "scheduler"
)

type commandKind uint8

const (
	cmdRegister commandKind = iota
	cmdUnregister
	cmdBroadcast
)

// command is one unit of work for the dispatch loop. done, when set, is
// buffered and receives exactly one value.
type command struct {
	kind      commandKind
	peer      *Peer
	frame     []byte
	eventType string
	span      trace.SpanContext
	done      chan error
}

func (c command) finish(err error) {
	if c.done != nil {
		c.done <- err
	}
}

// Relay fans events out to subscriber peers. A single goroutine (Run) owns
// the registry; registrations, deregistrations and broadcasts all pass
// through one FIFO queue, so every snapshot is totally ordered with respect
// to membership changes.
type Relay struct {
	cfg     config.Relay
	metrics *cfotel.Metrics
	dedup   *Dedup

	queue    chan command
	registry *Registry
	count    atomic.Int64

	done     chan struct{}
	stopOnce sync.Once
	inflight sync.WaitGroup
}

// NewRelay creates a relay. metrics and dedup may be nil.
func NewRelay(cfg config.Relay, metrics *cfotel.Metrics, dedup *Dedup) *Relay {
	return &Relay{
		cfg:      cfg,
		metrics:  metrics,
		dedup:    dedup,
		queue:    make(chan command, cfg.QueueSize),
		registry: NewRegistry(),
		done:     make(chan struct{}),
	}
}

// NewPeer wraps conn as a CONNECTING peer. The peer closes when ctx ends.
func (r *Relay) NewPeer(ctx context.Context, conn Conn) *Peer {
	return newPeer(ctx, conn, r.cfg.OutboxSize, r.cfg.SendTimeout)
}

// Run processes the work queue until ctx is cancelled, then closes every
// peer without a close handshake and abandons pending deliveries. Run must
// be called exactly once.
func (r *Relay) Run(ctx context.Context) {
	slog.Info("relay dispatch loop started", "queue_size", cap(r.queue))
	defer r.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-r.queue:
			r.apply(ctx, c)
		}
	}
}

func (r *Relay) stop() {
	r.stopOnce.Do(func() {
		close(r.done)

		n := r.registry.Drain()
		r.count.Store(0)
		r.metrics.RecordConnection(context.Background(), -int64(n))

		r.discardQueued()

		r.inflight.Wait()
		slog.Info("relay dispatch loop stopped", "closed_peers", n)
	})
}

// discardQueued finishes every command still queued once the loop has
// stopped. A sender that wins the race against stop calls it again after its
// send, so nothing is stranded in the queue.
func (r *Relay) discardQueued() {
	for {
		select {
		case c := <-r.queue:
			r.discard(c)
		default:
			return
		}
	}
}

func (r *Relay) discard(c command) {
	switch c.kind {
	case cmdRegister, cmdUnregister:
		c.peer.close()
	case cmdBroadcast:
		ctx := context.Background()
		r.forget(ctx, c.frame)
		r.metrics.RecordDropped(ctx, "closed")
		slog.Warn("queued broadcast discarded, relay closed", "event_type", c.eventType)
	}
	c.finish(ErrRelayClosed)
}

// forget clears the dedup record of a frame that was never dispatched, so a
// retry is not suppressed.
func (r *Relay) forget(ctx context.Context, frame []byte) {
	if r.dedup != nil {
		r.dedup.Forget(context.WithoutCancel(ctx), frame)
	}
}

func (r *Relay) apply(ctx context.Context, c command) {
	switch c.kind {
	case cmdRegister:
		err := r.registry.Register(c.peer)
		switch {
		case err == nil:
			r.count.Add(1)
			r.metrics.RecordConnection(ctx, 1)
			go c.peer.writeLoop()
			slog.Info("client connected",
				"peer", c.peer.ID(), "remote", c.peer.RemoteAddr(), "total", r.registry.Len())
		case errors.Is(err, ErrAlreadyRegistered):
			slog.Error("duplicate peer registration", "peer", c.peer.ID(), "remote", c.peer.RemoteAddr())
		}
		c.finish(err)

	case cmdUnregister:
		if r.registry.Unregister(c.peer) {
			r.count.Add(-1)
			r.metrics.RecordConnection(ctx, -1)
			slog.Info("client removed",
				"peer", c.peer.ID(), "remote", c.peer.RemoteAddr(), "total", r.registry.Len())
		}
		c.peer.close()
		c.finish(nil)

	case cmdBroadcast:
		r.dispatch(ctx, c)
	}
}

// submit places c on the queue, failing fast once the loop has stopped.
func (r *Relay) submit(ctx context.Context, c command) error {
	select {
	case <-r.done:
		return ErrRelayClosed
	default:
	}
	select {
	case r.queue <- c:
		r.afterSend()
		return nil
	case <-r.done:
		return ErrRelayClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// afterSend discards the queue when a send raced with stop.
func (r *Relay) afterSend() {
	select {
	case <-r.done:
		r.discardQueued()
	default:
	}
}

func (r *Relay) await(ctx context.Context, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-r.done:
		return ErrRelayClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attach registers p. On success p is OPEN and receives every broadcast
// dispatched after this point.
func (r *Relay) Attach(ctx context.Context, p *Peer) error {
	c := command{kind: cmdRegister, peer: p, done: make(chan error, 1)}
	if err := r.submit(ctx, c); err != nil {
		return err
	}
	return r.await(ctx, c.done)
}

// Detach unregisters and closes p. It is idempotent and safe to call after
// the relay has stopped.
func (r *Relay) Detach(p *Peer) {
	c := command{kind: cmdUnregister, peer: p, done: make(chan error, 1)}
	if err := r.submit(context.Background(), c); err != nil {
		p.close()
		return
	}
	if err := r.await(context.Background(), c.done); err != nil {
		p.close()
	}
}

// Broadcast dispatches ev to every peer open at dispatch time and returns
// once each delivery has settled. Delivery failures are logged and metered,
// never returned.
func (r *Relay) Broadcast(ctx context.Context, ev event.Event) error {
	c, ok, err := r.prepare(ctx, ev, SourceIngress)
	if err != nil || !ok {
		return err
	}
	c.done = make(chan error, 1)
	if err := r.submit(ctx, c); err != nil {
		r.forget(ctx, c.frame)
		return err
	}
	r.metrics.RecordAccepted(ctx, SourceIngress)
	return r.await(ctx, c.done)
}

// Enqueue dispatches ev like Broadcast but returns once it is queued.
func (r *Relay) Enqueue(ctx context.Context, ev event.Event) error {
	c, ok, err := r.prepare(ctx, ev, SourceIngress)
	if err != nil || !ok {
		return err
	}
	if err := r.submit(ctx, c); err != nil {
		r.forget(ctx, c.frame)
		return err
	}
	r.metrics.RecordAccepted(ctx, SourceIngress)
	return nil
}

// prepare serializes ev once and applies duplicate suppression. ok is false
// when the event was suppressed. Callers that fail to queue the command must
// forget its frame.
func (r *Relay) prepare(ctx context.Context, ev event.Event, source string) (c command, ok bool, err error) {
	frame, err := ev.Marshal()
	if err != nil {
		return command{}, false, err
	}
	if r.dedup != nil && r.dedup.Seen(ctx, frame) {
		r.metrics.RecordDeduplicated(ctx, source)
		slog.Debug("duplicate event suppressed", "event_type", ev.Type(), "source", source)
		return command{}, false, nil
	}
	return command{
		kind:      cmdBroadcast,
		frame:     frame,
		eventType: ev.Type(),
		span:      trace.SpanContextFromContext(ctx),
	}, true, nil
}

// ConnectionCount returns the number of open peers.
func (r *Relay) ConnectionCount() int {
	return int(r.count.Load())
}
