package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/salonbook/libs/config"
	"github.com/md-rashed-zaman/salonbook/libs/db"
	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/salonbook/libs/otel"
	"github.com/md-rashed-zaman/salonbook/libs/runtime"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/cache"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/verification"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/migrations"
)

func mustDuration(key string, fallback time.Duration) time.Duration {
	d, err := config.Duration(key, fallback)
	if err != nil {
		panic(err)
	}
	return d
}

func mustInt(key string, fallback int) int {
	n, err := config.Int(key, fallback)
	if err != nil {
		panic(err)
	}
	return n
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}
	metrics.Register()

	var (
		store       booking.Store
		events      verification.EventWriter
		readyChecks []runtime.ReadyCheck
	)
	brokers := config.String("KAFKA_BROKERS", "")
	if config.String("STORE", "postgres") == "memory" {
		logger.Warn("using in-memory store; data is lost on restart")
		mem := storage.NewMemoryStore()
		store, events = mem, mem
	} else {
		dbURL, err := config.RequiredString("DATABASE_URL")
		if err != nil {
			panic(err)
		}
		pool, err := db.Open(ctx, dbURL, db.Options{
			MaxConns:        int32(mustInt("DB_MAX_CONNS", 10)),
			MaxConnLifetime: mustDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
		})
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()
		if config.Bool("DB_AUTO_MIGRATE", true) {
			if err := migrations.Apply(ctx, pool, logger); err != nil {
				logger.Error("db migration failed", "err", err)
				panic(err)
			}
		}

		outboxRepo := outbox.NewRepository(pool)
		store, events = storage.NewBookingRepository(pool, outboxRepo), outboxRepo
		readyChecks = append(readyChecks,
			runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
			runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
		)

		outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: mustDuration("OUTBOX_POLL_EVERY", 2*time.Second),
			BatchSize: mustInt("OUTBOX_BATCH_SIZE", 50),
		})
		go outboxPublisher.Run(ctx)
	}

	engineOpts := []booking.Option{}
	var (
		verifier    handlers.Verifier
		rateLimiter httpx.Middleware
	)
	publicLimit := mustInt("PUBLIC_RATE_LIMIT", 120)
	publicWindow := mustDuration("PUBLIC_RATE_WINDOW", time.Minute)

	if redisURL := config.String("REDIS_URL", ""); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			panic(err)
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})

		engineOpts = append(engineOpts, booking.WithCache(
			cache.NewAvailability(rdb, "salonbook:avail", mustDuration("AVAILABILITY_CACHE_TTL", cache.DefaultTTL), logger),
		))

		codeLimiter := verification.NewLimiter(mustInt("VERIFICATION_MAX_REQUESTS", 3), mustDuration("VERIFICATION_WINDOW", 15*time.Minute))
		go codeLimiter.Run(ctx, time.Minute)
		verifier = verification.NewService(rdb, codeLimiter, events, logger, verification.Config{
			CodeTTL:     mustDuration("VERIFICATION_CODE_TTL", 10*time.Minute),
			MaxAttempts: mustInt("VERIFICATION_MAX_ATTEMPTS", 5),
		})

		rateLimiter = httpx.NewRedisRateLimiter(rdb, publicLimit, publicWindow, "salonbook:rl").
			Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
	} else {
		logger.Warn("REDIS_URL not set; availability cache and verification disabled")
		rateLimiter = httpx.NewRateLimiter(publicLimit, publicWindow).Middleware()
	}

	engine := booking.NewEngine(store, logger, engineOpts...)
	bookingHandler := handlers.NewBookingHandler(engine, verifier, logger, config.Bool("REQUIRE_VERIFICATION", false))
	adminHandler := handlers.NewAdminHandler(engine, logger)

	public := http.NewServeMux()
	public.HandleFunc("/api/v1/public/book", bookingHandler.Create)
	public.HandleFunc("/api/v1/public/quote", bookingHandler.Quote)
	public.HandleFunc("/api/v1/public/availability", bookingHandler.Availability)
	public.HandleFunc("/api/v1/public/slots", bookingHandler.Slots)
	public.HandleFunc("/api/v1/public/links/validate", bookingHandler.ValidateLink)
	public.HandleFunc("/api/v1/public/verification/request", bookingHandler.RequestVerification)
	public.HandleFunc("/api/v1/public/verification/confirm", bookingHandler.ConfirmVerification)

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/api/v1/public/", httpx.Chain(public, rateLimiter))
	mux.HandleFunc("/api/v1/calendar", adminHandler.Calendar)
	mux.HandleFunc("/api/v1/bookings/status", adminHandler.UpdateStatus)
	mux.HandleFunc("/api/v1/shops/schedule", adminHandler.ReplaceSchedule)
	mux.HandleFunc("/api/v1/shops/exceptions", adminHandler.Exceptions)

	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(mustDuration("HTTP_HANDLER_TIMEOUT", 15*time.Second)),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdown(srv, logger)
}

func shutdown(srv *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
