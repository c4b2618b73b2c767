package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "spawnrelay"

// Metrics holds all relay metric instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	EventsAccepted     metric.Int64Counter
	EventsDeduplicated metric.Int64Counter
	EventsDropped      metric.Int64Counter
	Deliveries         metric.Int64Counter
	BroadcastDuration  metric.Float64Histogram
	Connections        metric.Int64UpDownCounter
	InboundMessages    metric.Int64Counter
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsFrom(otel.Meter(meterName))
}

// NewMetricsFrom creates all metric instruments on the given meter.
func NewMetricsFrom(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.EventsAccepted, err = meter.Int64Counter("spawnrelay.events.accepted",
		metric.WithDescription("Events accepted for dispatch, by source"))
	if err != nil {
		return nil, err
	}

	m.EventsDeduplicated, err = meter.Int64Counter("spawnrelay.events.deduplicated",
		metric.WithDescription("Events suppressed as duplicates"))
	if err != nil {
		return nil, err
	}

	m.EventsDropped, err = meter.Int64Counter("spawnrelay.events.dropped",
		metric.WithDescription("Events dropped before dispatch, by reason"))
	if err != nil {
		return nil, err
	}

	m.Deliveries, err = meter.Int64Counter("spawnrelay.deliveries",
		metric.WithDescription("Per-subscriber delivery attempts, by outcome"))
	if err != nil {
		return nil, err
	}

	m.BroadcastDuration, err = meter.Float64Histogram("spawnrelay.broadcast.duration_seconds",
		metric.WithDescription("Time from dispatch until every delivery settled"))
	if err != nil {
		return nil, err
	}

	m.Connections, err = meter.Int64UpDownCounter("spawnrelay.connections",
		metric.WithDescription("Open subscriber connections"))
	if err != nil {
		return nil, err
	}

	m.InboundMessages, err = meter.Int64Counter("spawnrelay.inbound.messages",
		metric.WithDescription("Messages received from subscribers, by validity"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordAccepted counts one event entering the dispatch queue.
func (m *Metrics) RecordAccepted(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.EventsAccepted.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordDeduplicated counts one suppressed duplicate.
func (m *Metrics) RecordDeduplicated(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.EventsDeduplicated.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordDropped counts one event that never reached the dispatch loop.
func (m *Metrics) RecordDropped(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.EventsDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordBroadcast records the settled outcome of one fan-out.
func (m *Metrics) RecordBroadcast(ctx context.Context, eventType string, delivered, failed int, elapsed time.Duration) {
	if m == nil {
		return
	}
	typ := attribute.String("event.type", eventType)
	if delivered > 0 {
		m.Deliveries.Add(ctx, int64(delivered), metric.WithAttributes(typ, attribute.String("outcome", "ok")))
	}
	if failed > 0 {
		m.Deliveries.Add(ctx, int64(failed), metric.WithAttributes(typ, attribute.String("outcome", "failed")))
	}
	m.BroadcastDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(typ))
}

// RecordConnection adjusts the open-connection gauge by delta.
func (m *Metrics) RecordConnection(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.Connections.Add(ctx, delta)
}

// RecordInbound counts one message received from a subscriber.
func (m *Metrics) RecordInbound(ctx context.Context, valid bool) {
	if m == nil {
		return
	}
	m.InboundMessages.Add(ctx, 1, metric.WithAttributes(attribute.Bool("valid", valid)))
}
