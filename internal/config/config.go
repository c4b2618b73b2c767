// Package config provides hierarchical configuration loading for spawnrelay.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the relay and its tools.
type Config struct {
	Subscriber Subscriber `yaml:"subscriber"`
	Producer   Producer   `yaml:"producer"`
	Relay      Relay      `yaml:"relay"`
	Dedup      Dedup      `yaml:"dedup"`
	NATS       NATS       `yaml:"nats"`
	Logging    Logging    `yaml:"logging"`
	Telemetry  Telemetry  `yaml:"telemetry"`
	Simulator  Simulator  `yaml:"simulator"`
}

// Subscriber holds the websocket listener configuration.
type Subscriber struct {
	Addr           string   `yaml:"addr"`
	Path           string   `yaml:"path"`            // "" or "/" accepts upgrades on any path
	ReadLimit      int64    `yaml:"read_limit"`      // max inbound frame size in bytes
	OriginPatterns []string `yaml:"origin_patterns"` // empty disables origin checks
}

// Producer holds the HTTP ingress configuration.
type Producer struct {
	Addr           string        `yaml:"addr"`
	BodyLimit      int64         `yaml:"body_limit"`
	AwaitDelivery  bool          `yaml:"await_delivery"` // respond only after every delivery settles
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimit      float64       `yaml:"rate_limit"` // requests/s per producer host, 0 disables
	RateBurst      int           `yaml:"rate_burst"`
}

// Relay holds dispatch loop and delivery configuration.
type Relay struct {
	QueueSize   int           `yaml:"queue_size"`   // dispatch queue capacity
	OutboxSize  int           `yaml:"outbox_size"`  // pending frames before a stalled subscriber can be evicted
	SendTimeout time.Duration `yaml:"send_timeout"` // per-send bound and stall age; 0 disables both
}

// Dedup holds duplicate-event suppression configuration.
type Dedup struct {
	TTL          time.Duration `yaml:"ttl"` // 0 disables suppression
	MaxCostBytes int64         `yaml:"max_cost_bytes"`
	// Shared backs the local cache with a NATS KV bucket so that relay
	// replicas suppress each other's duplicates. Requires nats.url.
	Shared bool   `yaml:"shared"`
	Bucket string `yaml:"bucket"`
}

// NATS holds the optional upstream JetStream ingress configuration.
type NATS struct {
	URL     string        `yaml:"url"` // empty disables the NATS ingress
	Subject string        `yaml:"subject"`
	Stream  string        `yaml:"stream"`
	MaxAge  time.Duration `yaml:"max_age"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Telemetry holds OpenTelemetry exporter configuration.
type Telemetry struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"` // host:port; empty keeps telemetry in-process only
	ServiceName  string `yaml:"service_name"`
}

// Simulator holds spawnsim defaults.
type Simulator struct {
	URL         string        `yaml:"url"`
	Interval    time.Duration `yaml:"interval"`
	BaseX       int           `yaml:"base_x"`
	BaseY       int           `yaml:"base_y"`
	Radius      int           `yaml:"radius"`
	MapID       string        `yaml:"map_id"`
	MaxFailures int           `yaml:"max_failures"`
	Cooldown    time.Duration `yaml:"cooldown"`
}

// Defaults returns a Config with the relay's well-known ports and sane limits.
func Defaults() Config {
	return Config{
		Subscriber: Subscriber{
			Addr:      "0.0.0.0:8765",
			Path:      "/",
			ReadLimit: 32 << 10,
		},
		Producer: Producer{
			Addr:           "0.0.0.0:8766",
			BodyLimit:      1 << 20,
			AwaitDelivery:  true,
			RateBurst:      50,
			RequestTimeout: 30 * time.Second,
		},
		Relay: Relay{
			QueueSize:   1024,
			OutboxSize:  64,
			SendTimeout: 10 * time.Second,
		},
		Dedup: Dedup{
			TTL:          0,
			MaxCostBytes: 16 << 20,
			Bucket:       "spawnrelay_dedup",
		},
		NATS: NATS{
			Subject: "spawn.events",
			Stream:  "SPAWNRELAY",
			MaxAge:  time.Minute,
		},
		Logging: Logging{
			Level:   "info",
			Service: "spawnrelay",
		},
		Telemetry: Telemetry{
			ServiceName: "spawnrelay",
		},
		Simulator: Simulator{
			URL:         "http://127.0.0.1:8766/spawn",
			Interval:    10 * time.Second,
			BaseX:       178,
			BaseY:       115,
			Radius:      20,
			MapID:       "prontera",
			MaxFailures: 3,
			Cooldown:    30 * time.Second,
		},
	}
}
