package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/Strob0t/spawnrelay/internal/domain/event"
	"github.com/Strob0t/spawnrelay/internal/port/messagequeue"
)

type sender interface {
	send(ctx context.Context, ev event.Event) error
	String() string
}

// httpSender POSTs events to the relay's spawn endpoint.
type httpSender struct {
	client *http.Client
	url    string
}

func (s *httpSender) send(ctx context.Context, ev event.Event) error {
	body, err := ev.Marshal()
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post spawn: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post spawn: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (s *httpSender) String() string { return s.url }

// queueSender publishes events to the relay's upstream queue.
type queueSender struct {
	pub     messagequeue.Publisher
	subject string
}

func (s *queueSender) send(ctx context.Context, ev event.Event) error {
	body, err := ev.Marshal()
	if err != nil {
		return err
	}
	return s.pub.Publish(ctx, s.subject, body)
}

func (s *queueSender) String() string { return "nats:" + s.subject }
