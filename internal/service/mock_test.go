package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/spawnrelay/internal/config"
	"github.com/Strob0t/spawnrelay/internal/domain/event"
	"github.com/Strob0t/spawnrelay/internal/port/broadcast"
	"github.com/Strob0t/spawnrelay/internal/port/cache"
)

var (
	_ broadcast.Broadcaster = (*Relay)(nil)
	_ cache.Cache           = (*mockCache)(nil)
	_ Conn                  = (*mockConn)(nil)
)

// mockConn records written frames. When block is set, Write waits until it
// is closed or ctx ends.
type mockConn struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
	block  chan struct{}
}

func (m *mockConn) Write(ctx context.Context, frame []byte) error {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	m.frames = append(m.frames, append([]byte(nil), frame...))
	m.mu.Unlock()
	return nil
}

func (m *mockConn) RemoteAddr() string { return "127.0.0.1:50000" }

func (m *mockConn) Frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.frames...)
}

// waitFrames polls until at least n frames arrived or the deadline passes.
func (m *mockConn) waitFrames(t *testing.T, n int) [][]byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := m.Frames(); len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	got := m.Frames()
	t.Fatalf("expected %d frames, got %d", n, len(got))
	return nil
}

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMockCache() *mockCache { return &mockCache{data: make(map[string][]byte)} }

func (m *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func testRelayConfig() config.Relay {
	return config.Relay{QueueSize: 64, OutboxSize: 16, SendTimeout: time.Second}
}

// startRelay runs r in the background. The returned stop cancels the loop
// and waits for it to return; it is also registered as a cleanup.
func startRelay(t *testing.T, r *Relay) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(stopped)
	}()
	var once sync.Once
	stop = func() {
		once.Do(func() {
			cancel()
			<-stopped
		})
	}
	t.Cleanup(stop)
	return stop
}

func attach(t *testing.T, r *Relay, conn Conn) *Peer {
	t.Helper()
	p := r.NewPeer(context.Background(), conn)
	if err := r.Attach(context.Background(), p); err != nil {
		t.Fatalf("attach: %v", err)
	}
	return p
}

func mustMarshal(t *testing.T, ev event.Event) []byte {
	t.Helper()
	b, err := ev.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	return b
}
