package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"rinkdesk/backend/internal/cache"
	"rinkdesk/backend/internal/calendar"
	"rinkdesk/backend/internal/config"
	"rinkdesk/backend/internal/httpapi"
	"rinkdesk/backend/internal/logger"
	"rinkdesk/backend/internal/sequence"
	"rinkdesk/backend/internal/service"
	"rinkdesk/backend/internal/store"
	"rinkdesk/backend/internal/store/memory"
	pgstore "rinkdesk/backend/internal/store/postgres"
	"rinkdesk/backend/internal/telemetry"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(log)

	if err := validateSecurityConfig(cfg); err != nil {
		fatal(log, "invalid security configuration", err)
	}

	clock, err := calendar.LoadNormalizer(cfg.VenueTimezone)
	if err != nil {
		fatal(log, "invalid VENUE_TIMEZONE", err)
	}

	shutdownTracing := telemetry.Setup(cfg.OTelServiceName, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			fatal(log, "postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			fatal(log, "postgres migration failed", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository: postgres")
	} else {
		mem, err := memory.NewSeeded(cfg.DefaultBranchID, log)
		if err != nil {
			fatal(log, "seed in-memory store", err)
		}
		repo = mem
		log.Info("repository: in-memory", "branch_id", cfg.DefaultBranchID)
	}

	reportCache := cache.ReportCache(cache.NoopReportCache{})
	var counter sequence.Counter
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn("redis unavailable, using noop report cache", "error", err)
			_ = redisCache.Close()
		} else {
			reportCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info("report cache: redis", "addr", cfg.RedisAddr)
			if cfg.SequenceBackend == config.SequenceRedis {
				counter = sequence.NewRedisCounter(redisCache.Client(), sequence.RedisKeyPrefix)
				log.Info("ticket counter: redis")
			}
		}
	} else {
		log.Info("report cache: noop")
	}
	if counter == nil && cfg.SequenceBackend == config.SequenceRedis {
		log.Warn("SEQUENCE_BACKEND=redis without a reachable redis, using repository counter")
	}

	metrics := telemetry.NewMetrics()
	svc := service.New(repo, clock, service.Options{
		DefaultBranchID: cfg.DefaultBranchID,
		Currency:        cfg.DefaultCurrency,
		QuickTicketFee:  cfg.QuickTicketFee,
		Counter:         counter,
		ReportCache:     reportCache,
		ReportTTL:       time.Duration(cfg.ReportCacheTTLSeconds) * time.Second,
		Metrics:         metrics,
		Logger:          log,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.ManagerPIN, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, log, metrics.Handler())

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           otelhttp.NewHandler(api.Handler(), "rinkdesk"),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("rink backend listening", "addr", cfg.Address(), "timezone", cfg.VenueTimezone)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(log, "server error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracer shutdown error", "error", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error("close error", "error", err)
		}
	}

	log.Info("server stopped")
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be set and at least 6 digits")
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects repeated, sequential and commonly used PINs.
func validatePINStrength(pin string) error {
	for _, ch := range pin {
		if ch < '0' || ch > '9' {
			return fmt.Errorf("PIN must be digits only")
		}
	}

	common := map[string]bool{
		"121212": true, "112233": true, "123123": true, "696969": true,
		"102030": true, "147258": true, "159753": true,
	}
	if common[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	repeated := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			repeated = false
			break
		}
	}
	if repeated {
		return fmt.Errorf("repeated-digit PIN not allowed")
	}

	up, down := true, true
	for i := 1; i < len(pin); i++ {
		step := int(pin[i]) - int(pin[i-1])
		up = up && step == 1
		down = down && step == -1
	}
	if up || down {
		return fmt.Errorf("sequential PIN not allowed")
	}
	return nil
}
