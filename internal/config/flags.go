package config

import (
	"github.com/spf13/pflag"
)

// Flags holds command-line overrides. A nil field means the flag was not
// given and the lower layers (defaults < YAML < ENV) decide.
type Flags struct {
	ConfigPath string
	WSAddr     *string
	HTTPAddr   *string
	LogLevel   *string
	NatsURL    *string
}

// ParseFlags parses relay command-line flags. It returns pflag.ErrHelp when
// --help is given.
func ParseFlags(args []string) (*Flags, error) {
	fs := pflag.NewFlagSet("spawnrelay", pflag.ContinueOnError)

	configPath := fs.StringP("config", "c", DefaultConfigFile, "path to YAML config file")
	wsAddr := fs.String("ws-addr", "", "subscriber websocket listen address")
	httpAddr := fs.String("http-addr", "", "producer HTTP listen address")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error)")
	natsURL := fs.String("nats-url", "", "NATS server URL for the upstream event ingress")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	f := &Flags{ConfigPath: *configPath}
	if fs.Changed("ws-addr") {
		f.WSAddr = wsAddr
	}
	if fs.Changed("http-addr") {
		f.HTTPAddr = httpAddr
	}
	if fs.Changed("log-level") {
		f.LogLevel = logLevel
	}
	if fs.Changed("nats-url") {
		f.NatsURL = natsURL
	}
	return f, nil
}

// Apply overlays the flags that were set onto cfg and re-validates it.
func (f *Flags) Apply(cfg *Config) error {
	if f.WSAddr != nil {
		cfg.Subscriber.Addr = *f.WSAddr
	}
	if f.HTTPAddr != nil {
		cfg.Producer.Addr = *f.HTTPAddr
	}
	if f.LogLevel != nil {
		cfg.Logging.Level = *f.LogLevel
	}
	if f.NatsURL != nil {
		cfg.NATS.URL = *f.NatsURL
	}
	return validate(cfg)
}
