// Package ws implements the WebSocket subscriber endpoint.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	cfotel "github.com/Strob0t/spawnrelay/internal/adapter/otel"
	"github.com/Strob0t/spawnrelay/internal/config"
	"github.com/Strob0t/spawnrelay/internal/service"
)

// Hub accepts subscriber connections and attaches them to the relay.
type Hub struct {
	relay     *service.Relay
	metrics   *cfotel.Metrics
	readLimit int64
	origins   []string
}

// NewHub creates a hub feeding relay. metrics may be nil.
func NewHub(relay *service.Relay, cfg config.Subscriber, metrics *cfotel.Metrics) *Hub {
	return &Hub{
		relay:     relay,
		metrics:   metrics,
		readLimit: cfg.ReadLimit,
		origins:   cfg.OriginPatterns,
	}
}

// HandleWS upgrades the request and serves the connection until it closes.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{OriginPatterns: h.origins}
	if len(h.origins) == 0 {
		opts.InsecureSkipVerify = true // game clients connect from any origin
	}
	ws, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	if h.readLimit > 0 {
		ws.SetReadLimit(h.readLimit)
	}

	h.serve(r.Context(), ws, r.RemoteAddr)
}

func (h *Hub) serve(ctx context.Context, ws *websocket.Conn, remote string) {
	peer := h.relay.NewPeer(ctx, &conn{ws: ws, remote: remote})
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("websocket handler panic", "peer", peer.ID(), "remote", remote, "panic", rec)
		}
		h.relay.Detach(peer)
		_ = ws.CloseNow()
	}()

	if err := h.relay.Attach(ctx, peer); err != nil {
		slog.Warn("websocket registration refused", "remote", remote, "error", err)
		_ = ws.Close(websocket.StatusTryAgainLater, "relay unavailable")
		return
	}

	err := h.readLoop(peer, ws)
	logClose(peer, err)
}

// readLoop consumes inbound frames until the connection ends. Inbound
// messages are diagnostic only; malformed ones never close the connection.
func (h *Hub) readLoop(peer *service.Peer, ws *websocket.Conn) error {
	ctx := peer.Context()
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			return err
		}

		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			slog.Warn("malformed inbound message",
				"peer", peer.ID(), "remote", peer.RemoteAddr(), "bytes", len(data), "error", err)
			h.metrics.RecordInbound(ctx, false)
			continue
		}
		slog.Debug("inbound message",
			"peer", peer.ID(), "message_type", typ.String(), "bytes", len(data))
		h.metrics.RecordInbound(ctx, true)
	}
}

func logClose(peer *service.Peer, err error) {
	var ce websocket.CloseError
	switch {
	case errors.As(err, &ce):
		slog.Info("client disconnected",
			"peer", peer.ID(), "remote", peer.RemoteAddr(), "code", int(ce.Code), "reason", ce.Reason)
	case errors.Is(err, context.Canceled), peer.Context().Err() != nil:
		slog.Info("client closed by relay", "peer", peer.ID(), "remote", peer.RemoteAddr())
	default:
		slog.Warn("client connection error", "peer", peer.ID(), "remote", peer.RemoteAddr(), "error", err)
	}
}

// conn adapts a websocket connection to service.Conn.
type conn struct {
	ws     *websocket.Conn
	remote string
}

func (c *conn) Write(ctx context.Context, frame []byte) error {
	return c.ws.Write(ctx, websocket.MessageText, frame)
}

func (c *conn) RemoteAddr() string { return c.remote }
