package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/spawnrelay/internal/domain/subscriber"
)

// Conn is the transport side of one subscriber connection.
type Conn interface {
	// Write sends one text frame. It must honour ctx cancellation.
	Write(ctx context.Context, frame []byte) error
	// RemoteAddr identifies the peer in diagnostics.
	RemoteAddr() string
}

// delivery is one frame queued for one peer. result is buffered so the
// writer never blocks on a waiter that has gone away.
type delivery struct {
	frame  []byte
	queued time.Time
	result chan error
}

func failedDelivery(err error) *delivery {
	d := &delivery{result: make(chan error, 1)}
	d.result <- err
	return d
}

// Peer is a subscriber connection as seen by the relay. Frames are written
// by a single writer goroutine in queue order, so two broadcasts reach a
// peer in the order they were dispatched.
//
// The queue itself is unbounded. A peer is evicted only when it is stalled:
// at least highWater frames are waiting and the oldest has waited longer
// than stallAfter.
type Peer struct {
	id    string
	conn  Conn
	state atomic.Int32

	mu         sync.Mutex
	pending    []*delivery
	wake       chan struct{}
	highWater  int
	stallAfter time.Duration
	now        func() time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// newPeer creates a CONNECTING peer. stallAfter also bounds each write;
// zero disables both the bound and eviction.
func newPeer(ctx context.Context, conn Conn, highWater int, stallAfter time.Duration) *Peer {
	ctx, cancel := context.WithCancel(ctx)
	p := &Peer{
		id:         uuid.NewString(),
		conn:       conn,
		wake:       make(chan struct{}, 1),
		highWater:  highWater,
		stallAfter: stallAfter,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
	}
	p.state.Store(int32(subscriber.StateConnecting))
	return p
}

// ID returns the peer's opaque identity.
func (p *Peer) ID() string { return p.id }

// RemoteAddr returns the transport-level remote address.
func (p *Peer) RemoteAddr() string { return p.conn.RemoteAddr() }

// State returns the current lifecycle state.
func (p *Peer) State() subscriber.State { return subscriber.State(p.state.Load()) }

// Done is closed once the peer is closed or its parent context ends.
func (p *Peer) Done() <-chan struct{} { return p.ctx.Done() }

// Context is cancelled when the peer closes. Transport read loops use it so
// that relay shutdown unblocks them.
func (p *Peer) Context() context.Context { return p.ctx }

// transition moves the peer to next if the lifecycle allows it.
func (p *Peer) transition(next subscriber.State) bool {
	for {
		cur := subscriber.State(p.state.Load())
		if !cur.CanTransition(next) {
			return false
		}
		if p.state.CompareAndSwap(int32(cur), int32(next)) {
			return true
		}
	}
}

func (p *Peer) open() bool {
	return p.transition(subscriber.StateOpen)
}

// close moves the peer to CLOSED and stops its writer. Pending deliveries
// are abandoned. It reports whether this call performed the close.
func (p *Peer) close() bool {
	closed := false
	p.closeOnce.Do(func() {
		p.transition(subscriber.StateClosed)
		p.cancel()
		closed = true
	})
	return closed
}

// offer queues frame without blocking. A closed peer yields a delivery that
// has already failed. A stalled peer is closed and yields ErrPeerStalled.
func (p *Peer) offer(frame []byte) *delivery {
	if p.State() == subscriber.StateClosed {
		return failedDelivery(ErrPeerClosed)
	}

	now := p.now()
	p.mu.Lock()
	if p.stalledLocked(now) {
		waiting := len(p.pending)
		p.mu.Unlock()
		slog.Warn("evicting stalled peer", "peer", p.id, "remote", p.RemoteAddr(), "pending", waiting)
		p.close()
		return failedDelivery(ErrPeerStalled)
	}
	d := &delivery{frame: frame, queued: now, result: make(chan error, 1)}
	p.pending = append(p.pending, d)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return d
}

func (p *Peer) stalledLocked(now time.Time) bool {
	if p.stallAfter <= 0 || len(p.pending) < p.highWater || len(p.pending) == 0 {
		return false
	}
	return now.Sub(p.pending[0].queued) > p.stallAfter
}

// next pops the oldest pending delivery.
func (p *Peer) next() (*delivery, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return nil, false
	}
	d := p.pending[0]
	p.pending[0] = nil
	p.pending = p.pending[1:]
	return d, true
}

// writeLoop drains the queue until the peer closes.
func (p *Peer) writeLoop() {
	for {
		if p.ctx.Err() != nil {
			return
		}
		d, ok := p.next()
		if !ok {
			select {
			case <-p.ctx.Done():
				return
			case <-p.wake:
			}
			continue
		}
		d.result <- p.write(d.frame)
	}
}

func (p *Peer) write(frame []byte) error {
	ctx := p.ctx
	if p.stallAfter > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.stallAfter)
		defer cancel()
	}
	return p.conn.Write(ctx, frame)
}

// await blocks until d settles, the peer closes, or ctx ends.
func (p *Peer) await(ctx context.Context, d *delivery) error {
	select {
	case err := <-d.result:
		return err
	case <-p.ctx.Done():
		// The write may have completed just before the close.
		select {
		case err := <-d.result:
			return err
		default:
			return ErrPeerClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
