package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/database"
	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/config"
	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/microservices/http-api/repository"
	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/microservices/http-api/router"
	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/microservices/http-api/service"
	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/microservices/websocket"

	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "api-server:", err)
		os.Exit(1)
	}
}

func run() error {
	// 1️⃣ Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2️⃣ Connect to the database
	db, err := database.ConnectDB(cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close(db)

	// 3️⃣ Push fan-out: in-process, or through Redis when several instances run
	hub := websocket.NewHub(logger)
	var broker websocket.Broker = websocket.NewLocalBroker(hub)
	if cfg.RedisURL != "" {
		rdb, err := websocket.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		broker, err = websocket.NewRedisBroker(ctx, rdb, hub, "", logger)
		if err != nil {
			return err
		}
		logger.Info("redis_broker_enabled")
	}
	defer broker.Close()

	tokens := service.NewTokenService(cfg.JWTSecret, cfg.JWTExpiry)
	notifications := service.NewNotificationService(repository.NewNotificationRepository(db), broker, logger)

	// 4️⃣ Setup Gin
	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router.New(router.Deps{
			Config:        cfg,
			Tokens:        tokens,
			Notifications: notifications,
			Hub:           hub,
			Logger:        logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("server_listening", slog.String("addr", srv.Addr), slog.String("env", cfg.GoEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server_shutting_down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
