package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/patabima/pricing-engine/internal/compare"
	"github.com/patabima/pricing-engine/internal/config"
	"github.com/patabima/pricing-engine/internal/events"
	"github.com/patabima/pricing-engine/internal/logging"
	"github.com/patabima/pricing-engine/internal/metrics"
	"github.com/patabima/pricing-engine/internal/premium"
	"github.com/patabima/pricing-engine/internal/quote"
	"github.com/patabima/pricing-engine/internal/ratefeed"
	"github.com/patabima/pricing-engine/internal/ratetable"
	"github.com/patabima/pricing-engine/internal/reload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New(os.Stderr, "json", "info")
		boot.Fatal().Err(err).Msg("configuration error")
	}
	logger := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	// --- Rate source ---
	var src ratefeed.Source
	if cfg.RatesFile != "" {
		src = ratefeed.NewFileSource(cfg.RatesFile)
		logger.Info().Str("file", cfg.RatesFile).Msg("loading rates from file")
	} else {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("database connection failed")
		}
		cleanup = append(cleanup, pool.Close)
		src = ratefeed.NewPostgresSource(pool)
		logger.Info().Msg("loading rates from PostgreSQL")
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb = redis.NewClient(opt)
		cleanup = append(cleanup, func() { _ = rdb.Close() })
		src = ratefeed.NewCachedSource(src, rdb, cfg.RatesCacheTTL, logger)
		logger.Info().Dur("ttl", cfg.RatesCacheTTL).Msg("redis feed cache enabled")
	}

	// --- Rate table ---
	table := ratetable.NewTable(nil)
	reloader := reload.New(src, table, logger)
	if _, _, err := reloader.Reload(ctx, reload.TriggerStartup); err != nil {
		logger.Fatal().Err(err).Msg("initial rate load failed")
	}

	// --- Pricing ---
	engine := premium.NewEngine()
	orch, err := compare.New(engine, table, compare.Options{
		Timeout:        cfg.UnderwriterTimeout,
		MaxParallel:    cfg.MaxParallel,
		AllowNoTimeout: cfg.IsTest(),
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid comparison options")
	}

	// --- Events ---
	var pub events.Publisher = events.Noop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaQuoteTopic, logger)
		cleanup = append(cleanup, func() { _ = kp.Close() })
		pub = kp
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaQuoteTopic).Msg("quote events enabled")
	}

	// --- WebSocket hub ---
	wsHub := quote.NewWSHub(logger, cfg.CORSAllowedOrigins)
	go wsHub.Run(ctx)
	reloader.OnSwap(wsHub.RatesReloaded)

	// --- Reload triggers ---
	if rdb != nil {
		go func() {
			if err := reloader.Watch(ctx, rdb, cfg.RatesReloadChannel); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("reload watcher stopped")
			}
		}()
	}
	if cfg.RatesReloadSchedule != "" {
		sched := reload.NewScheduler(logger)
		if err := sched.AddJob(cfg.RatesReloadSchedule, reload.ReloadJob{Reloader: reloader, Ctx: ctx}); err != nil {
			logger.Fatal().Err(err).Msg("invalid RATES_RELOAD_SCHEDULE")
		}
		sched.Start()
		cleanup = append(cleanup, sched.Stop)
	}
	go reloadOnHangup(ctx, reloader, logger)

	// --- Quote service ---
	quoteSvc := quote.NewService(engine, table, orch, pub, wsHub, logger)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger{Logger: logger}.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if table.Current() == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"starting","service":"pricing-engine"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok","service":"pricing-engine"}`))
	})
	r.Handle("/metrics", metrics.Handler())
	r.Route("/api/v1", quoteSvc.Routes)

	// --- Server ---
	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("rates_version", table.Current().Version()).Msg("pricing-engine listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logger.Info().Msg("shutting down pricing-engine")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}

// reloadOnHangup reloads rates on every SIGHUP until ctx ends.
func reloadOnHangup(ctx context.Context, reloader *reload.Reloader, logger zerolog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			snap, changed, err := reloader.Reload(ctx, reload.TriggerSignal)
			if err == nil {
				logger.Info().Str("rates_version", snap.Version()).Bool("changed", changed).Msg("SIGHUP reload done")
			}
		}
	}
}
