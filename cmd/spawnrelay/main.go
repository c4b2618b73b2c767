package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	cfhttp "github.com/Strob0t/spawnrelay/internal/adapter/http"
	cfnats "github.com/Strob0t/spawnrelay/internal/adapter/nats"
	cfotel "github.com/Strob0t/spawnrelay/internal/adapter/otel"
	"github.com/Strob0t/spawnrelay/internal/adapter/ws"
	"github.com/Strob0t/spawnrelay/internal/config"
	"github.com/Strob0t/spawnrelay/internal/logger"
	"github.com/Strob0t/spawnrelay/internal/middleware"
	"github.com/Strob0t/spawnrelay/internal/service"
)

const shutdownTimeout = 10 * time.Second

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

// run starts both listeners and blocks until ctx is cancelled or a listener
// fails. Failing to bind either port is fatal.
func run(ctx context.Context, args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := config.LoadFrom(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := flags.Apply(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"ws_addr", cfg.Subscriber.Addr,
		"http_addr", cfg.Producer.Addr,
		"log_level", cfg.Logging.Level,
		"await_delivery", cfg.Producer.AwaitDelivery,
		"send_timeout", cfg.Relay.SendTimeout,
		"dedup_ttl", cfg.Dedup.TTL,
		"nats", cfg.NATS.URL != "",
	)

	// --- Telemetry ---

	shutdownOtel, err := cfotel.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOtel(sctx); err != nil {
			slog.Warn("otel shutdown failed", "error", err)
		}
	}()

	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	var queue *cfnats.Queue
	if cfg.NATS.URL != "" {
		queue, err = cfnats.Connect(ctx, cfg.NATS)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Close() }()
	}

	dedup, closeDedup, err := newDedup(ctx, cfg.Dedup, queue)
	if err != nil {
		return fmt.Errorf("dedup: %w", err)
	}
	defer closeDedup()

	// --- Relay ---

	relay := service.NewRelay(cfg.Relay, metrics, dedup)
	relayCtx, stopRelay := context.WithCancel(context.Background())
	relayDone := make(chan struct{})
	go func() {
		relay.Run(relayCtx)
		close(relayDone)
	}()
	defer func() {
		stopRelay()
		<-relayDone
	}()

	scheduler := service.NewScheduler(relay)
	if queue != nil {
		cancelSub, err := queue.Subscribe(ctx, cfg.NATS.Subject, ingestHandler(scheduler))
		if err != nil {
			return fmt.Errorf("nats subscribe: %w", err)
		}
		defer cancelSub()
	}

	// --- Listeners ---

	wsLn, err := net.Listen("tcp", cfg.Subscriber.Addr)
	if err != nil {
		return fmt.Errorf("subscriber listener: %w", err)
	}
	httpLn, err := net.Listen("tcp", cfg.Producer.Addr)
	if err != nil {
		_ = wsLn.Close()
		return fmt.Errorf("producer listener: %w", err)
	}

	hub := ws.NewHub(relay, cfg.Subscriber, metrics)
	wsSrv := &http.Server{
		Handler:           cfhttp.NewSubscriberRouter(cfg.Subscriber.Path, hub.HandleWS),
		ReadHeaderTimeout: 10 * time.Second,
	}

	handlers := &cfhttp.Handlers{
		Relay:         relay,
		AwaitDelivery: cfg.Producer.AwaitDelivery,
		BodyLimit:     cfg.Producer.BodyLimit,
		NATSStatus:    natsStatus(queue),
	}
	opts := cfhttp.ProducerOptions{
		ServiceName: cfg.Telemetry.ServiceName,
		Timeout:     cfg.Producer.RequestTimeout,
	}
	if cfg.Producer.RateLimit > 0 {
		opts.Limiter = middleware.NewRateLimiter(cfg.Producer.RateLimit, cfg.Producer.RateBurst)
		opts.Limiter.StartCleanup(ctx, time.Minute, 10*time.Minute)
	}
	httpSrv := &http.Server{
		Handler:           cfhttp.NewProducerRouter(handlers, opts),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 2)
	serve := func(name string, srv *http.Server, ln net.Listener) {
		slog.Info("listener started", "listener", name, "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("%s listener: %w", name, err)
		}
	}
	go serve("subscriber", wsSrv, wsLn)
	go serve("producer", httpSrv, httpLn)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errc:
	}
	slog.Info("shutting down")

	// Stopping the relay first closes every subscriber and releases
	// producers waiting on delivery.
	stopRelay()
	<-relayDone

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		slog.Warn("producer shutdown failed", "error", err)
	}
	if err := wsSrv.Shutdown(sctx); err != nil {
		slog.Warn("subscriber shutdown failed", "error", err)
	}

	slog.Info("servers stopped", "scheduler_dropped", scheduler.Dropped())
	return serveErr
}

func natsStatus(queue *cfnats.Queue) func() string {
	if queue == nil {
		return nil
	}
	return func() string {
		if queue.IsConnected() {
			return cfhttp.NATSConnected
		}
		return cfhttp.NATSDisconnected
	}
}
