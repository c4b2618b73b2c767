package nats

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/spawnrelay/internal/config"
	"github.com/Strob0t/spawnrelay/internal/logger"
	"github.com/Strob0t/spawnrelay/internal/port/messagequeue"
)

// testConnect connects to NATS or skips the test if NATS_URL is not set.
// Each test gets its own stream so runs do not interfere.
func testConnect(t *testing.T) (*Queue, string) {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	subject := "spawnrelay.test." + name
	q, err := Connect(context.Background(), config.NATS{
		URL:     url,
		Subject: subject,
		Stream:  "SPAWNRELAY_TEST_" + strings.ToUpper(name),
		MaxAge:  time.Minute,
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q, subject
}

func TestQueue_PublishSubscribe(t *testing.T) {
	q, subject := testConnect(t)
	if !q.IsConnected() {
		t.Fatal("expected connected queue")
	}

	var (
		mu       sync.Mutex
		received []byte
		done     = make(chan struct{})
		once     sync.Once
	)

	stop, err := q.Subscribe(context.Background(), subject, func(_ context.Context, _ string, d []byte) error {
		mu.Lock()
		received = d
		mu.Unlock()
		once.Do(func() { close(done) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	want := `{"type":"spawn","mob_id":"mob_1"}`
	if err := q.Publish(context.Background(), subject, []byte(want)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()
	if string(received) != want {
		t.Errorf("got %q, want %q", received, want)
	}
}

func TestQueue_RequestIDPropagation(t *testing.T) {
	q, subject := testConnect(t)

	const wantReqID = "req-abc-123"
	var (
		mu       sync.Mutex
		gotReqID string
		done     = make(chan struct{})
		once     sync.Once
	)

	stop, err := q.Subscribe(context.Background(), subject, func(ctx context.Context, _ string, _ []byte) error {
		mu.Lock()
		gotReqID = logger.RequestID(ctx)
		mu.Unlock()
		once.Do(func() { close(done) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	ctx := logger.WithRequestID(context.Background(), wantReqID)
	if err := q.Publish(ctx, subject, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotReqID != wantReqID {
		t.Errorf("request ID = %q, want %q", gotReqID, wantReqID)
	}
}

func TestQueue_PermanentFailureNotRedelivered(t *testing.T) {
	q, subject := testConnect(t)

	var (
		mu    sync.Mutex
		calls int
	)
	stop, err := q.Subscribe(context.Background(), subject, func(_ context.Context, _ string, _ []byte) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.Join(messagequeue.ErrPermanent, errors.New("bad payload"))
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stop()

	if err := q.Publish(context.Background(), subject, []byte(`[1,2,3]`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	time.Sleep(time.Second)
	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected exactly one delivery, got %d", calls)
	}
}
