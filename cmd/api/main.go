package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"support-gateway/internal/auth"
	"support-gateway/internal/calls"
	"support-gateway/internal/config"
	"support-gateway/internal/directory"
	"support-gateway/internal/gateway"
	"support-gateway/internal/messaging"
	"support-gateway/internal/notify"
	"support-gateway/internal/presence"
	"support-gateway/pkg/logger"
	"support-gateway/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Shared state and collaborators.
	dir := directory.NewPostgresDirectory(db, cfg.Media.AvatarBaseURL)
	notifier := notify.NewRedisNotifier(rdb, cfg.Push.Channel)
	registry := presence.NewRegistry(presence.NewLastSeen(rdb, 0), log)
	msgStore := messaging.NewPostgresStore(db)

	tracker := calls.NewTracker(cfg.Call.PendingTTL, log)
	go tracker.Run(rootCtx, time.Minute)

	var limiter calls.InitiationLimiter
	if cfg.Call.MaxActiveInitiations > 0 {
		limiter = calls.NewRedisLimiter(rdb, cfg.Call.MaxActiveInitiations, cfg.Call.InitiationCapTTL)
	}

	msgRouter := messaging.NewRouter(registry, messaging.NewOfflineQueue(), msgStore, dir, notifier, log)
	callRouter := calls.NewRouter(registry, tracker, calls.NewPostgresRepo(db), msgStore, dir, notifier, limiter, log)
	gw := gateway.New(authManager, registry, callRouter, msgRouter, cfg.WS, log)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, gw, db)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("gateway listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
