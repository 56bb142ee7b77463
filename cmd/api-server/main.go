package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/medtest-appointment-scheduling/internal/api"
	"github.com/hackgods/medtest-appointment-scheduling/internal/appointment"
	"github.com/hackgods/medtest-appointment-scheduling/internal/catalog"
	"github.com/hackgods/medtest-appointment-scheduling/internal/config"
	"github.com/hackgods/medtest-appointment-scheduling/internal/db"
	"github.com/hackgods/medtest-appointment-scheduling/internal/logging"
	"github.com/hackgods/medtest-appointment-scheduling/internal/metrics"
	"github.com/hackgods/medtest-appointment-scheduling/internal/notify"
	redisclient "github.com/hackgods/medtest-appointment-scheduling/internal/redis"
	"github.com/hackgods/medtest-appointment-scheduling/internal/results"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.LogLevel, cfg.Env)
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("version", version).Msg("api-server starting up")

	if cfg.JWTSecret == "" {
		logger.Fatal().Msg("JWT_SECRET is required")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.DBMaxConns)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Int32("max_conns", cfg.DBMaxConns).Msg("connected to Postgres")

	// Redis is optional: the advisory lock alone keeps bookings correct.
	var (
		rdb    redis.UniversalClient
		locker redisclient.Locker = redisclient.NopLocker{}
	)
	if cfg.RedisLock {
		client, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing redis")
			}
		}()
		rdb = client
		locker = redisclient.NewRedisLocker(client, cfg.LockTTL, cfg.LockWait)
		logger.Info().Dur("lock_ttl", cfg.LockTTL).Dur("lock_wait", cfg.LockWait).Msg("connected to Redis")
	} else {
		logger.Warn().Msg("redis hospital-day lock disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bookingMetrics := metrics.NewBookingMetrics(registry)

	emailSender, err := newEmailSender(rootCtx, cfg.Email, logging.Component(logger, "email"))
	if err != nil {
		logger.Fatal().Err(err).Msg("email sender setup error")
	}

	hub := notify.NewHub(logging.Component(logger, "ws"))
	notifications := notify.NewPgStore(pgPool)
	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		Store:   notifications,
		Email:   emailSender,
		Hub:     hub,
		Metrics: bookingMetrics,
		Logger:  logging.Component(logger, "notify"),
		Timeout: cfg.NotifyTimeout,
	})

	svc := appointment.NewService(
		appointment.NewPgRepository(pgPool),
		locker,
		cfg.Policy,
		appointment.WithNotifier(dispatcher),
		appointment.WithMetrics(bookingMetrics),
		appointment.WithLogger(logging.Component(logger, "appointment")),
		appointment.WithPhoneRegion(cfg.PhoneRegion),
	)

	resultSvc := results.NewService(
		results.NewPgRepository(pgPool),
		results.WithNotifier(dispatcher),
		results.WithMetrics(bookingMetrics),
		results.WithLogger(logging.Component(logger, "results")),
	)

	router := api.NewRouter(api.RouterConfig{
		Appointments:  svc,
		Catalog:       catalog.NewPgRepository(pgPool),
		Results:       resultSvc,
		Notifications: notifications,
		Realtime:      hub,
		Auth:          api.NewAuthenticator(cfg.JWTSecret),
		Health:        api.NewHealthHandler(pgPool, rdb, cfg.Env, version),
		Gatherer:      registry,
		Logger:        logging.Component(logger, "http"),
		PhoneRegion:   cfg.PhoneRegion,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
	hub.Close()

	done := make(chan struct{})
	go func() {
		dispatcher.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("gave up waiting for in-flight notifications")
	}
}

func newEmailSender(ctx context.Context, cfg config.EmailConfig, logger zerolog.Logger) (notify.EmailSender, error) {
	switch cfg.Provider {
	case "sendgrid":
		return notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.From,
			FromName:  cfg.FromName,
		}, logger), nil
	case "ses":
		return notify.NewSESSender(ctx, notify.SESConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.From,
			FromName:  cfg.FromName,
		}, logger)
	default:
		return notify.NewStubEmailSender(logger), nil
	}
}
