package main

import (
	"context"
	"fmt"

	cfnats "github.com/Strob0t/spawnrelay/internal/adapter/nats"
	"github.com/Strob0t/spawnrelay/internal/adapter/natskv"
	"github.com/Strob0t/spawnrelay/internal/adapter/ristretto"
	"github.com/Strob0t/spawnrelay/internal/adapter/tiered"
	"github.com/Strob0t/spawnrelay/internal/config"
	"github.com/Strob0t/spawnrelay/internal/domain/event"
	"github.com/Strob0t/spawnrelay/internal/port/cache"
	"github.com/Strob0t/spawnrelay/internal/port/messagequeue"
	"github.com/Strob0t/spawnrelay/internal/service"
)

// ingestHandler feeds queue messages to the scheduler. Payloads that are not
// JSON objects are permanent failures and never redelivered.
func ingestHandler(s *service.Scheduler) messagequeue.Handler {
	return func(_ context.Context, subject string, data []byte) error {
		ev, err := event.DecodeBytes(data)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", messagequeue.ErrPermanent, subject, err)
		}
		s.Schedule(ev)
		return nil
	}
}

// newDedup builds duplicate suppression from cfg. It returns a nil Dedup
// when suppression is disabled. With cfg.Shared and a queue, a NATS KV
// bucket backs the local cache.
func newDedup(ctx context.Context, cfg config.Dedup, queue *cfnats.Queue) (*service.Dedup, func(), error) {
	if cfg.TTL <= 0 {
		return nil, func() {}, nil
	}

	local, err := ristretto.New(cfg.MaxCostBytes)
	if err != nil {
		return nil, nil, err
	}
	var c cache.Cache = local

	if cfg.Shared && queue != nil {
		kv, err := queue.KeyValue(ctx, cfg.Bucket, cfg.TTL)
		if err != nil {
			local.Close()
			return nil, nil, err
		}
		c = tiered.New(local, natskv.New(kv), cfg.TTL)
	}

	return service.NewDedup(c, cfg.TTL), local.Close, nil
}
