package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/station-matching/internal/capacity"
	"github.com/example/station-matching/internal/config"
	"github.com/example/station-matching/internal/dedup"
	"github.com/example/station-matching/internal/dispatch"
	httpapi "github.com/example/station-matching/internal/http"
	"github.com/example/station-matching/internal/ingest"
	"github.com/example/station-matching/internal/logging"
	"github.com/example/station-matching/internal/matcher"
	"github.com/example/station-matching/internal/registrar"
	"github.com/example/station-matching/internal/waitlist"
)

const (
	retryAttempts = 3
	retryDelay    = 200 * time.Millisecond
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	if err := a.run(ctx); err != nil {
		logger.Error("consumer stopped with error", "error", err)
		os.Exit(1)
	}
}

type app struct {
	cfg       config.Config
	logger    *slog.Logger
	transport ingest.Transport
	engine    *matcher.Engine
	server    *httpapi.Server
	closers   []func() error
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	transport, err := buildTransport(cfg, logging.Component(logger, "ingest"))
	if err != nil {
		return nil, err
	}
	a.transport = transport
	a.closers = append(a.closers, transport.Close)
	checks := []httpapi.Check{{Name: "transport", Run: transport.Check}}

	reg, regCheck, regClose, err := buildRegistrar(ctx, cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	if regCheck != nil {
		checks = append(checks, httpapi.Check{Name: "registrar", Run: regCheck})
	}
	if regClose != nil {
		a.closers = append(a.closers, regClose)
	}

	guard, rc := buildGuard(cfg)
	if rc != nil {
		a.closers = append(a.closers, rc.Close)
		checks = append(checks, httpapi.Check{Name: "redis", Run: func(ctx context.Context) error { return rc.Ping(ctx).Err() }})
	}

	ws := dispatch.NewWSRegistry()
	var fallback dispatch.Notifier
	if cfg.NotifierURL != "" {
		fallback = dispatch.NewHTTPNotifier(cfg.NotifierURL, cfg.NotifierKey, cfg.NotifierTimeout)
	}
	notifier := dispatch.NewPushNotifier(ws, fallback, logging.Component(logger, "dispatch"))

	var listOpts []waitlist.Option
	if cfg.RejectDuplicateRiders {
		listOpts = append(listOpts, waitlist.RejectDuplicates())
	}
	engine, err := matcher.NewEngine(matcher.Options{
		Waitlist:         waitlist.NewStore(listOpts...),
		Capacity:         capacity.NewTracker(),
		Registrar:        reg,
		Notifier:         notifier,
		Publisher:        transport,
		Guard:            guard,
		MatchTopic:       cfg.Topics.MatchFound,
		DefaultSeats:     &cfg.DefaultSeats,
		RegistrarTimeout: cfg.RegistrarTimeout,
		PublishTimeout:   cfg.PublishTimeout,
		NotifyTimeout:    cfg.NotifierTimeout,
		Logger:           logging.Component(logger, "matcher"),
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.engine = engine

	a.server = httpapi.NewServer(logging.Component(logger, "http"), engine, ws, checks...)
	if bus, ok := transport.(*ingest.Memory); ok {
		a.server.EnableInjection(bus, cfg.Topics.RiderRequest, cfg.Topics.DriverProximity, cfg.Topics.TripUpdated)
	}
	return a, nil
}

func (a *app) streams() matcher.Streams {
	return matcher.Streams{
		RiderRequest:    a.cfg.Topics.RiderRequest,
		DriverProximity: a.cfg.Topics.DriverProximity,
		TripUpdated:     a.cfg.Topics.TripUpdated,
	}
}

// consume starts one supervised consumer per inbound stream and returns once
// all of them stopped.
func (a *app) consume(ctx context.Context) {
	backoff := ingest.Backoff{Min: a.cfg.ReconnectMinBackoff, Max: a.cfg.ReconnectMaxBackoff}
	var wg sync.WaitGroup
	for stream, h := range a.engine.Handlers(a.streams()) {
		wg.Add(1)
		go func(stream string, h ingest.Handler) {
			defer wg.Done()
			ingest.Supervise(ctx, a.transport, stream, ingest.WithRetry(h, retryAttempts, retryDelay), backoff, a.logger)
		}(stream, h)
	}
	wg.Wait()
}

func (a *app) run(ctx context.Context) error {
	defer a.close()

	srv := &http.Server{Addr: a.cfg.HTTPAddr, Handler: a.server, ReadHeaderTimeout: 5 * time.Second}
	srvErr := make(chan error, 1)
	go func() {
		a.logger.Info("ops server listening", "addr", a.cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	consumeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		a.consume(consumeCtx)
		close(done)
	}()
	a.logger.Info("matching engine started", "transport", a.cfg.Transport, "default_seats", a.cfg.DefaultSeats, "dedup", a.cfg.DedupEnabled)

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-srvErr:
		a.logger.Error("ops server failed", "error", runErr)
	}
	cancel()
	<-done

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("ops server shutdown", "error", err)
	}
	return runErr
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

func buildTransport(cfg config.Config, logger *slog.Logger) (ingest.Transport, error) {
	switch cfg.Transport {
	case config.TransportKafka:
		return ingest.NewKafka(cfg.KafkaBrokers, cfg.KafkaGroup, logger), nil
	case config.TransportAMQP:
		return ingest.NewAMQP(cfg.AMQPURL, logger), nil
	case config.TransportMemory:
		return ingest.NewMemory(logger), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// buildRegistrar prefers the trip service, then a direct Postgres table. With
// neither configured every match gets a local trip id.
func buildRegistrar(ctx context.Context, cfg config.Config, logger *slog.Logger) (matcher.Registrar, func(context.Context) error, func() error, error) {
	switch {
	case cfg.RegistrarURL != "":
		logger.Info("trip registrar: http", "url", cfg.RegistrarURL)
		return registrar.NewHTTPClient(cfg.RegistrarURL, cfg.RegistrarTimeout), nil, nil, nil
	case cfg.RegistrarDSN != "":
		pg, err := registrar.NewPostgresRegistrar(ctx, cfg.RegistrarDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, nil, err
		}
		logger.Info("trip registrar: postgres")
		return pg, pg.Ping, pg.Close, nil
	default:
		logger.Warn("no trip registrar configured, trip ids are generated locally")
		return registrar.Unavailable{}, nil, nil, nil
	}
}

func buildGuard(cfg config.Config) (dedup.Guard, *redis.Client) {
	if !cfg.DedupEnabled {
		return dedup.Nop{}, nil
	}
	if cfg.RedisAddr == "" {
		return dedup.NewMemory(cfg.DedupTTL), nil
	}
	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	return dedup.NewRedis(rc, cfg.DedupTTL), rc
}
