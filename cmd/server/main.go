package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"slotbook/internal/api"
	"slotbook/internal/booking"
	"slotbook/internal/cache"
	"slotbook/internal/chat"
	"slotbook/internal/config"
	"slotbook/internal/db"
	"slotbook/internal/events"
	"slotbook/internal/lock"
	"slotbook/internal/metrics"
	"slotbook/internal/schedule"
	"slotbook/internal/sweeper"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	database, err := db.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The first load runs synchronously so the catalog is in place before
	// the API starts serving.
	err = config.WatchCatalog(ctx, cfg.Catalog.Path, cfg.CatalogWatchInterval(),
		func(catalog *config.CatalogConfig) {
			if err := database.SyncCatalog(ctx, catalog); err != nil {
				logger.Error().Err(err).Msg("Catalog sync failed")
				return
			}
			logger.Info().Int("services", len(catalog.Services)).Msg("Catalog synced")
		},
		func(err error) {
			logger.Warn().Err(err).Msg("Catalog reload failed, keeping previous catalog")
		},
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("load catalog error")
	}

	var rdb *redis.Client
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
	}

	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.Lock.Backend == "redis" {
		locker = lock.NewRedisLock(rdb, lock.RedisOptions{
			TTL:         cfg.LockTTL(),
			WaitTimeout: cfg.LockWaitTimeout(),
		})
	}

	var availability cache.Availability = cache.Noop{}
	if cfg.Cache.Enabled {
		availability = cache.NewRedisAvailability(rdb, cfg.CacheTTL(), &logger)
	}

	guard := lock.NewServiceGuard()
	bus := events.NewEventBus(&logger)

	schedules := schedule.NewService(database, guard, availability, &logger)
	bookings := booking.NewService(database, guard, locker, availability, bus, booking.Config{
		Location:         cfg.Location(),
		MaxAdvance:       cfg.BookingMaxAdvance(),
		AutoConfirm:      cfg.Booking.AutoConfirm,
		MaxRetries:       cfg.MaxRetries(),
		RetryBaseDelay:   cfg.RetryBaseDelay(),
		DefaultRangeDays: cfg.DefaultRangeDays(),
		MaxRangeDays:     cfg.MaxRangeDays(),
	}, &logger)

	if cfg.Chat.Enabled {
		chatClient := chat.NewClient(cfg.Chat.BaseURL, cfg.Chat.APIKey, cfg.ChatTimeout(), 5)
		if err := chatClient.HealthCheck(ctx); err != nil {
			logger.Warn().Err(err).Msg("Chat service is not reachable yet")
		}
		bookings.ProvisionChatRooms(bus, chatClient)
	}

	sw := sweeper.New(sweeper.Config{
		Interval:  cfg.SweepInterval(),
		BatchSize: cfg.SweepBatchSize(),
	}, bookings, &logger)
	go sw.Start(ctx)
	defer sw.Stop()

	go db.NewBackupService(database, cfg.Backup, &logger).Start(ctx)

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8081
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, database, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	handler := api.NewServer(schedules, bookings, api.Options{
		Location:      cfg.Location(),
		MaxExportDays: 366,
		RateLimit:     float64(cfg.Server.RateLimitPerSec),
		RateBurst:     cfg.Server.RateLimitBurst,
	}, &logger).Routes()

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error().Err(err).Msg("API server shutdown error")
		}
	}()

	logger.Info().Str("address", cfg.Server.Address).Str("lock", cfg.Lock.Backend).Bool("cache", cfg.Cache.Enabled).Msg("slotbook started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("API server error")
	}

	bus.Wait()
	logger.Info().Msg("slotbook stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Log.Format == "json" {
		logger = zerolog.New(os.Stdout)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func startHealthServer(ctx context.Context, port int, database *db.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := database.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	serve(ctx, &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}, "health", logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serve(ctx, &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}, "metrics", logger)
}

func serve(ctx context.Context, srv *http.Server, name string, logger *zerolog.Logger) {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}
