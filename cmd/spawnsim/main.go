// Command spawnsim stands in for a game server. It submits a random spawn
// event to the relay at a fixed interval, and with --watch it subscribes to
// the relay and logs every frame it receives.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	cfnats "github.com/Strob0t/spawnrelay/internal/adapter/nats"
	"github.com/Strob0t/spawnrelay/internal/config"
	"github.com/Strob0t/spawnrelay/internal/logger"
	"github.com/Strob0t/spawnrelay/internal/resilience"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()

	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	url        string
	interval   time.Duration
	count      int
	watch      string
	viaNATS    bool
	seed       uint64
}

func parseFlags(args []string) (*options, *pflag.FlagSet, error) {
	fs := pflag.NewFlagSet("spawnsim", pflag.ContinueOnError)
	o := &options{}
	fs.StringVarP(&o.configPath, "config", "c", config.DefaultConfigFile, "path to YAML config file")
	fs.StringVar(&o.url, "url", "", "relay spawn endpoint (default from config)")
	fs.DurationVar(&o.interval, "interval", 0, "time between spawns (default from config)")
	fs.IntVar(&o.count, "count", 0, "stop after this many spawns; 0 runs until interrupted")
	fs.StringVar(&o.watch, "watch", "", "websocket URL to subscribe to instead of posting spawns")
	fs.BoolVar(&o.viaNATS, "nats", false, "publish spawns to nats.subject instead of POSTing them")
	fs.Uint64Var(&o.seed, "seed", 0, "random seed; 0 picks one")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return o, fs, nil
}

func run(ctx context.Context, args []string) error {
	opts, fs, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := config.LoadFrom(opts.configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	sim := cfg.Simulator
	if fs.Changed("url") {
		sim.URL = opts.url
	}
	if fs.Changed("interval") {
		sim.Interval = opts.interval
	}
	if sim.Interval <= 0 {
		return errors.New("interval must be positive")
	}

	log, closeLog := logger.New(config.Logging{Level: cfg.Logging.Level, Service: "spawnsim"})
	defer closeLog.Close()
	slog.SetDefault(log)

	if opts.watch != "" {
		return watch(ctx, opts.watch)
	}

	var send sender
	if opts.viaNATS {
		if cfg.NATS.URL == "" {
			return errors.New("--nats requires nats.url")
		}
		q, err := cfnats.Connect(ctx, cfg.NATS)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = q.Close() }()
		send = &queueSender{pub: q, subject: cfg.NATS.Subject}
	} else {
		send = &httpSender{client: &http.Client{Timeout: 2 * time.Second}, url: sim.URL}
	}

	breaker := resilience.NewBreaker(sim.MaxFailures, sim.Cooldown)
	breaker.OnStateChange = func(from, to resilience.State) {
		slog.Warn("relay circuit changed", "from", from.String(), "to", to.String())
	}

	s := &simulator{
		gen:     newGenerator(sim, opts.seed),
		send:    send,
		breaker: breaker,
	}
	slog.Info("simulator started",
		"target", send.String(), "interval", sim.Interval,
		"base_x", sim.BaseX, "base_y", sim.BaseY, "radius", sim.Radius, "map_id", sim.MapID)
	s.loop(ctx, sim.Interval, opts.count)
	slog.Info("simulator stopped", "sent", s.sent, "failed", s.failed, "skipped", s.skipped)
	return nil
}
