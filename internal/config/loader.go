package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "spawnrelay.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied config path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Subscriber.Addr, "SPAWNRELAY_WS_ADDR")
	setString(&cfg.Subscriber.Path, "SPAWNRELAY_WS_PATH")
	setInt64(&cfg.Subscriber.ReadLimit, "SPAWNRELAY_WS_READ_LIMIT")
	setList(&cfg.Subscriber.OriginPatterns, "SPAWNRELAY_WS_ORIGINS")

	setString(&cfg.Producer.Addr, "SPAWNRELAY_HTTP_ADDR")
	setInt64(&cfg.Producer.BodyLimit, "SPAWNRELAY_HTTP_BODY_LIMIT")
	setBool(&cfg.Producer.AwaitDelivery, "SPAWNRELAY_AWAIT_DELIVERY")
	setDuration(&cfg.Producer.RequestTimeout, "SPAWNRELAY_HTTP_TIMEOUT")
	setFloat(&cfg.Producer.RateLimit, "SPAWNRELAY_HTTP_RATE_LIMIT")
	setInt(&cfg.Producer.RateBurst, "SPAWNRELAY_HTTP_RATE_BURST")

	setInt(&cfg.Relay.QueueSize, "SPAWNRELAY_QUEUE_SIZE")
	setInt(&cfg.Relay.OutboxSize, "SPAWNRELAY_OUTBOX_SIZE")
	setDuration(&cfg.Relay.SendTimeout, "SPAWNRELAY_SEND_TIMEOUT")

	setDuration(&cfg.Dedup.TTL, "SPAWNRELAY_DEDUP_TTL")
	setInt64(&cfg.Dedup.MaxCostBytes, "SPAWNRELAY_DEDUP_MAX_BYTES")
	setBool(&cfg.Dedup.Shared, "SPAWNRELAY_DEDUP_SHARED")
	setString(&cfg.Dedup.Bucket, "SPAWNRELAY_DEDUP_BUCKET")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.Subject, "SPAWNRELAY_NATS_SUBJECT")
	setString(&cfg.NATS.Stream, "SPAWNRELAY_NATS_STREAM")
	setDuration(&cfg.NATS.MaxAge, "SPAWNRELAY_NATS_MAX_AGE")

	setString(&cfg.Logging.Level, "SPAWNRELAY_LOG_LEVEL")
	setString(&cfg.Logging.Service, "SPAWNRELAY_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "SPAWNRELAY_LOG_ASYNC")

	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Telemetry.ServiceName, "OTEL_SERVICE_NAME")

	// Simulator
	setString(&cfg.Simulator.URL, "SPAWNSIM_URL")
	setDuration(&cfg.Simulator.Interval, "SPAWNSIM_INTERVAL")
	setString(&cfg.Simulator.MapID, "SPAWNSIM_MAP_ID")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Subscriber.Addr == "" {
		return errors.New("subscriber.addr is required")
	}
	if cfg.Producer.Addr == "" {
		return errors.New("producer.addr is required")
	}
	if cfg.Producer.BodyLimit < 1 {
		return errors.New("producer.body_limit must be >= 1")
	}
	if cfg.Producer.RateLimit < 0 || (cfg.Producer.RateLimit > 0 && cfg.Producer.RateBurst < 1) {
		return errors.New("producer.rate_limit must not be negative and needs rate_burst >= 1")
	}
	if cfg.Relay.QueueSize < 1 {
		return errors.New("relay.queue_size must be >= 1")
	}
	if cfg.Relay.OutboxSize < 1 {
		return errors.New("relay.outbox_size must be >= 1")
	}
	if cfg.Relay.SendTimeout < 0 {
		return errors.New("relay.send_timeout must not be negative")
	}
	if cfg.Dedup.TTL > 0 && cfg.Dedup.MaxCostBytes < 1 {
		return errors.New("dedup.max_cost_bytes must be >= 1 when dedup is enabled")
	}
	if cfg.Dedup.Shared && (cfg.Dedup.TTL <= 0 || cfg.NATS.URL == "" || cfg.Dedup.Bucket == "") {
		return errors.New("dedup.shared requires dedup.ttl, dedup.bucket and nats.url")
	}
	if cfg.NATS.URL != "" && (cfg.NATS.Subject == "" || cfg.NATS.Stream == "") {
		return errors.New("nats.subject and nats.stream are required when nats.url is set")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		var out []string
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		*dst = out
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
