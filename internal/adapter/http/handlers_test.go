package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	cfhttp "github.com/Strob0t/spawnrelay/internal/adapter/http"
	"github.com/Strob0t/spawnrelay/internal/config"
	"github.com/Strob0t/spawnrelay/internal/domain/event"
	"github.com/Strob0t/spawnrelay/internal/middleware"
	"github.com/Strob0t/spawnrelay/internal/port/broadcast"
	"github.com/Strob0t/spawnrelay/internal/service"
)

var _ broadcast.Broadcaster = (*mockBroadcaster)(nil)

// mockBroadcaster records dispatched events and can be told to fail.
type mockBroadcaster struct {
	mu       sync.Mutex
	awaited  []event.Event
	enqueued []event.Event
	err      error
}

func (m *mockBroadcaster) Broadcast(_ context.Context, ev event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.awaited = append(m.awaited, ev)
	return nil
}

func (m *mockBroadcaster) Enqueue(_ context.Context, ev event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, ev)
	return nil
}

func (m *mockBroadcaster) ConnectionCount() int { return 3 }

// stallingBroadcaster holds every dispatch until the request context ends.
type stallingBroadcaster struct{}

func (stallingBroadcaster) Broadcast(ctx context.Context, _ event.Event) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s stallingBroadcaster) Enqueue(ctx context.Context, ev event.Event) error {
	return s.Broadcast(ctx, ev)
}

func (stallingBroadcaster) ConnectionCount() int { return 0 }

// recordingConn is a subscriber transport that keeps every frame.
type recordingConn struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *recordingConn) Write(_ context.Context, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, append([]byte(nil), frame...))
	return nil
}

func (c *recordingConn) RemoteAddr() string { return "192.0.2.1:4000" }

func (c *recordingConn) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.frames...)
}

func newRouter(h *cfhttp.Handlers) http.Handler {
	if h.BodyLimit == 0 {
		h.BodyLimit = 1 << 20
	}
	return cfhttp.NewProducerRouter(h, cfhttp.ProducerOptions{ServiceName: "spawnrelay-test", Timeout: 5 * time.Second})
}

func post(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/spawn", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleSpawnValidation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantBody string
	}{
		{"array", `[1,2,3]`, http.StatusBadRequest, "Invalid JSON: must be an object."},
		{"string", `"spawn"`, http.StatusBadRequest, "Invalid JSON: must be an object."},
		{"number", `42`, http.StatusBadRequest, "Invalid JSON: must be an object."},
		{"null", `null`, http.StatusBadRequest, "Invalid JSON: must be an object."},
		{"bool", `true`, http.StatusBadRequest, "Invalid JSON: must be an object."},
		{"quoted string", `"not json{"`, http.StatusBadRequest, "Invalid JSON: must be an object."},
		{"malformed", `not json{`, http.StatusBadRequest, "Invalid JSON format."},
		{"truncated", `{"type":`, http.StatusBadRequest, "Invalid JSON format."},
		{"empty", ``, http.StatusBadRequest, "Invalid JSON format."},
		{"trailing data", `{"a":1} {"b":2}`, http.StatusBadRequest, "Invalid JSON format."},
		{"object", `{"type":"spawn","mob_id":"mob_1"}`, http.StatusOK, "OK"},
		{"object without type", `{"mob_id":"mob_1"}`, http.StatusOK, "OK"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mb := &mockBroadcaster{}
			router := newRouter(&cfhttp.Handlers{Relay: mb, AwaitDelivery: true})

			rec := post(t, router, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d (%s)", tt.wantCode, rec.Code, rec.Body.String())
			}
			if rec.Body.String() != tt.wantBody {
				t.Fatalf("expected body %q, got %q", tt.wantBody, rec.Body.String())
			}
			wantDispatched := 0
			if tt.wantCode == http.StatusOK {
				wantDispatched = 1
			}
			if len(mb.awaited) != wantDispatched {
				t.Fatalf("expected %d dispatches, got %d", wantDispatched, len(mb.awaited))
			}
		})
	}
}

func TestHandleSpawnEnqueueMode(t *testing.T) {
	mb := &mockBroadcaster{}
	router := newRouter(&cfhttp.Handlers{Relay: mb, AwaitDelivery: false})

	rec := post(t, router, `{"type":"spawn"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(mb.enqueued) != 1 || len(mb.awaited) != 0 {
		t.Fatalf("expected one enqueue and no awaited broadcast, got %d/%d", len(mb.enqueued), len(mb.awaited))
	}
}

func TestHandleSpawnBodyTooLarge(t *testing.T) {
	mb := &mockBroadcaster{}
	router := newRouter(&cfhttp.Handlers{Relay: mb, AwaitDelivery: true, BodyLimit: 16})

	rec := post(t, router, `{"type":"spawn","padding":"xxxxxxxxxxxxxxxxxxxxxxxx"}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if len(mb.awaited) != 0 {
		t.Fatal("oversized payload must not be dispatched")
	}
}

func TestHandleSpawnDispatchFailure(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "Internal server error."},
		{"relay closed", service.ErrRelayClosed, http.StatusServiceUnavailable, "Relay shutting down."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(&cfhttp.Handlers{Relay: &mockBroadcaster{err: tt.err}, AwaitDelivery: true})
			rec := post(t, router, `{"type":"spawn"}`)
			if rec.Code != tt.wantCode || rec.Body.String() != tt.wantBody {
				t.Fatalf("expected %d %q, got %d %q", tt.wantCode, tt.wantBody, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandleSpawnRequestTimeout(t *testing.T) {
	router := cfhttp.NewProducerRouter(
		&cfhttp.Handlers{Relay: stallingBroadcaster{}, AwaitDelivery: true, BodyLimit: 1 << 10},
		cfhttp.ProducerOptions{ServiceName: "spawnrelay-test", Timeout: 20 * time.Millisecond},
	)

	rec := post(t, router, `{"type":"spawn"}`)
	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected no body after the deadline, got %q", rec.Body.String())
	}
}

func TestHandleSpawnProducerGone(t *testing.T) {
	h := &cfhttp.Handlers{Relay: stallingBroadcaster{}, AwaitDelivery: true, BodyLimit: 1 << 10}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/spawn", strings.NewReader(`{"type":"spawn"}`)).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.HandleSpawn(rec, req)

	if rec.Code == http.StatusInternalServerError || rec.Body.Len() != 0 {
		t.Fatalf("expected no response for a departed producer, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestHandleSpawnReachesSubscribers(t *testing.T) {
	relay := service.NewRelay(config.Relay{QueueSize: 16, OutboxSize: 8, SendTimeout: time.Second}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})

	a, b := &recordingConn{}, &recordingConn{}
	for _, c := range []*recordingConn{a, b} {
		if err := relay.Attach(ctx, relay.NewPeer(ctx, c)); err != nil {
			t.Fatalf("attach: %v", err)
		}
	}

	router := newRouter(&cfhttp.Handlers{Relay: relay, AwaitDelivery: true})
	body := `{"type":"spawn","mob_id":"mob_1","x":10,"y":20,"map_id":"prontera"}`
	rec := post(t, router, body)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("expected 200 OK, got %d %q", rec.Code, rec.Body.String())
	}

	var want map[string]any
	if err := json.Unmarshal([]byte(body), &want); err != nil {
		t.Fatal(err)
	}
	for name, c := range map[string]*recordingConn{"A": a, "B": b} {
		frames := c.Frames()
		if len(frames) != 1 {
			t.Fatalf("subscriber %s: expected 1 message, got %d", name, len(frames))
		}
		var got map[string]any
		if err := json.Unmarshal(frames[0], &got); err != nil {
			t.Fatalf("subscriber %s: invalid JSON %s", name, frames[0])
		}
		gotJSON, _ := json.Marshal(got)
		wantJSON, _ := json.Marshal(want)
		if !bytes.Equal(gotJSON, wantJSON) {
			t.Fatalf("subscriber %s: got %s, want %s", name, gotJSON, wantJSON)
		}
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		status func() string
		want   string
	}{
		{"nats disabled", nil, "disabled"},
		{"nats connected", func() string { return cfhttp.NATSConnected }, "connected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(&cfhttp.Handlers{Relay: &mockBroadcaster{}, NATSStatus: tt.status})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			var resp struct {
				Status      string `json:"status"`
				Connections int    `json:"connections"`
				NATS        string `json:"nats"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.Status != "ok" || resp.Connections != 3 || resp.NATS != tt.want {
				t.Fatalf("unexpected health %+v", resp)
			}
		})
	}
}

func TestRequestIDEchoed(t *testing.T) {
	router := newRouter(&cfhttp.Handlers{Relay: &mockBroadcaster{}})

	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
}

func TestSpawnRejectsGet(t *testing.T) {
	router := newRouter(&cfhttp.Handlers{Relay: &mockBroadcaster{}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/spawn", http.NoBody))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestSubscriberRouterPaths(t *testing.T) {
	hit := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) }

	tests := []struct {
		name     string
		path     string
		target   string
		wantCode int
	}{
		{"any path on root", "/", "/anything/here", http.StatusAccepted},
		{"empty path", "", "/", http.StatusAccepted},
		{"fixed path match", "/ws", "/ws", http.StatusAccepted},
		{"fixed path miss", "/ws", "/other", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := cfhttp.NewSubscriberRouter(tt.path, hit)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, http.NoBody))
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
		})
	}
}

func TestProducerRouterRateLimit(t *testing.T) {
	router := cfhttp.NewProducerRouter(
		&cfhttp.Handlers{Relay: &mockBroadcaster{}, BodyLimit: 1 << 10},
		cfhttp.ProducerOptions{ServiceName: "spawnrelay-test", Limiter: middleware.NewRateLimiter(0.001, 2)},
	)

	codes := make([]int, 3)
	for i := range codes {
		codes[i] = post(t, router, `{"type":"spawn"}`).Code
	}
	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("got codes %v, want %v", codes, want)
		}
	}
}
