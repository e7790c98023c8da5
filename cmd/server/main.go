package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/sweemee/exam-server/internal/audit"
	"github.com/sweemee/exam-server/internal/blacklist"
	"github.com/sweemee/exam-server/internal/config"
	"github.com/sweemee/exam-server/internal/handlers"
	"github.com/sweemee/exam-server/internal/jobs"
	"github.com/sweemee/exam-server/internal/logging"
	authmw "github.com/sweemee/exam-server/internal/middleware/auth"
	"github.com/sweemee/exam-server/internal/refresh"
	"github.com/sweemee/exam-server/internal/sessioncache"
	"github.com/sweemee/exam-server/internal/tokencrypt"
	httpserver "github.com/sweemee/exam-server/internal/transport/http"
	"github.com/sweemee/exam-server/internal/users"
	"github.com/sweemee/exam-server/pkg/db"
	loggingmw "github.com/sweemee/exam-server/pkg/middleware/logging"
	"github.com/sweemee/exam-server/pkg/tokens"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := logging.New(os.Getenv("LOG_LEVEL"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatalf("migrating database: %v", err)
	}

	codec, err := tokencrypt.New(cfg.Keys()...)
	if err != nil {
		log.Fatalf("building codec: %v", err)
	}

	var sink audit.Sink = audit.SlogSink{Log: logger}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		defer kafkaSink.Close()
		sink = kafkaSink
	}
	dispatcher := audit.NewDispatcher(sink, 1024)
	defer dispatcher.Close()

	var blacklistStore blacklist.Store = &blacklist.GormStore{DB: gdb}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("pinging redis: %v", err)
		}
		blacklistStore = &blacklist.RedisStore{Client: rdb}
	}
	registry := blacklist.NewRegistry(blacklistStore, cfg.CacheMaxSize, cfg.BlacklistCacheTTL, logger)

	sessions := sessioncache.New(cfg.CacheMaxSize, cfg.UserCacheTTL)
	issuer := &tokens.Issuer{Secret: cfg.JWTSecret, TTL: cfg.AccessTokenTTL}
	refreshStore := &refresh.Store{DB: gdb, TTL: cfg.RefreshTokenTTL, Retention: cfg.RevokedRetention}
	userStore := &users.Store{DB: gdb}

	gate := &authmw.Gate{
		Codec:    codec,
		Issuer:   issuer,
		Registry: registry,
		Sessions: sessions,
		Users:    userStore,
		Rotator:  refreshStore,
		Audit:    dispatcher,
		Domain:   cfg.CookieDomain,
	}

	cleaner := &jobs.Cleaner{
		Refresh:  refreshStore,
		Registry: registry,
		Sessions: sessions,
		Interval: cfg.CleanupInterval,
		Log:      logger,
	}
	cleaner.Start(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), loggingmw.RequestLogger(logger))

	httpserver.Register(e, &httpserver.Deps{
		AuthHandler: &handlers.AuthHandler{
			Users:    userStore,
			Codec:    codec,
			Issuer:   issuer,
			Refresh:  refreshStore,
			Registry: registry,
			Sessions: sessions,
			Audit:    dispatcher,
			Domain:   cfg.CookieDomain,
		},
		Gate: gate,
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.ServerPort)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}
