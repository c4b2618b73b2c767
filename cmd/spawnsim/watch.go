package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coder/websocket"
)

// watch subscribes to the relay at url and logs each frame until ctx ends
// or the relay closes the connection.
func watch(ctx context.Context, url string) error {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer func() { _ = c.CloseNow() }()
	slog.Info("watching relay", "url", url)

	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				_ = c.Close(websocket.StatusNormalClosure, "")
				return nil
			}
			var ce websocket.CloseError
			if errors.As(err, &ce) {
				slog.Info("relay closed the connection", "code", int(ce.Code), "reason", ce.Reason)
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		var frame map[string]any
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("non-JSON frame", "bytes", len(data))
			continue
		}
		slog.Info("frame received", "type", frame["type"], "frame", json.RawMessage(data))
	}
}
