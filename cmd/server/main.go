package main

import (
	"context"
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

	"clinicbook/internal/api"
	"clinicbook/internal/availability"
	"clinicbook/internal/cache"
	"clinicbook/internal/config"
	"clinicbook/internal/database"
	"clinicbook/internal/metrics"
	"clinicbook/internal/recurrence"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("CLINICBOOK_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := database.New(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	var rdb *redis.Client
	var slotCache cache.SlotCache = cache.NewMemoryCache()
	if cfg.Redis.Address != "" && cfg.CacheTTL() > 0 {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		slotCache = cache.NewRedisCache(rdb, cfg.CacheTTL())
		logger.Info().Str("address", cfg.Redis.Address).Msg("using redis availability cache")
	}

	avail := availability.New(db, slotCache, recurrence.NewWeeklyExpander(), &logger, availability.Options{
		StepMinutes: cfg.Booking.SlotStepMinutes,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	go startLockJanitor(ctx, db, &logger)

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(cfg.Database.Path, database.BackupOptions{
			StoragePath:   cfg.Backup.StoragePath,
			Interval:      cfg.BackupInterval(),
			RetentionDays: cfg.Backup.RetentionDays,
		}, &logger)
		go backup.Start(ctx)
	}

	server := api.NewHTTPServer(avail, db, rdb, &logger, api.Options{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		APIKey:       cfg.Server.APIKey,
		RateLimit:    cfg.Server.RateLimitPerSecond,
		RateBurst:    cfg.Server.RateLimitBurst,
		MaxRangeDays: cfg.MaxRangeDays(),
		LockTTL:      cfg.LockTTL(),
	})

	logger.Info().Int("port", cfg.Server.Port).Msg("availability server started")
	if err := server.ListenAndServe(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

// startLockJanitor periodically removes expired reservation locks.
// Availability reads filter on expiry themselves; this only keeps the
// table small.
func startLockJanitor(ctx context.Context, db *database.DB, logger *zerolog.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deleted, err := db.CleanupExpiredLocks(ctx, time.Now())
			if err != nil {
				logger.Error().Err(err).Msg("lock cleanup failed")
			} else if deleted > 0 {
				logger.Info().Int64("deleted", deleted).Msg("cleaned up expired locks")
			}
		case <-ctx.Done():
			return
		}
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
