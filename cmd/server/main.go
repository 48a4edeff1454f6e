package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"home-services-api/internal/auth"
	"home-services-api/internal/config"
	"home-services-api/internal/database"
	"home-services-api/internal/dispatch"
	"home-services-api/internal/handlers"
	"home-services-api/internal/logging"
	"home-services-api/internal/presence"
	"home-services-api/internal/realtime"
	"home-services-api/internal/routes"
	"home-services-api/internal/transport/ws"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, errHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "home-services-api:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	opts, err := parseOptions(args, os.Stderr)
	if err != nil {
		return err
	}

	bootLogger := logging.New(config.LogConfig{Level: "info", Format: "json"}, os.Stderr)
	cfg, err := config.Load(opts.configPath, bootLogger)
	if err != nil {
		return err
	}
	if err := opts.apply(cfg); err != nil {
		return err
	}

	logger := logging.New(cfg.Log, os.Stdout)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init database
	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		return err
	}
	if cfg.Auth.AdminUsername != "" {
		created, err := database.EnsureAdmin(db, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword)
		if err != nil {
			return err
		}
		if created {
			logger.Info().Str("username", cfg.Auth.AdminUsername).Msg("Admin account created")
		}
	}

	registry := presence.NewRegistry(presence.Options{
		Shards:      cfg.Presence.Shards,
		LastSeenTTL: cfg.Presence.LastSeenTTL,
	})
	go registry.LastSeenCache().RunJanitor(ctx, cfg.Presence.JanitorInterval)

	wsServer := ws.NewServer(ws.Config{
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		PingPeriod:     cfg.WebSocket.PingPeriod,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		SendBuffer:     cfg.WebSocket.SendBuffer,
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
	}, logging.Component(logger, "WebSocket"))
	hub := realtime.NewHub(registry, wsServer, logger)
	svc := dispatch.New(registry, hub, cfg.Dispatch.Timeout, logger)
	hub.OnPresenceChange(svc.NotifyPresenceChanged)

	// Setup the routes (public and protected routes)
	router := routes.SetupRoutes(handlers.Deps{
		DB:       db,
		Tokens:   auth.NewManager(cfg.Auth),
		Registry: registry,
		Hub:      hub,
		Dispatch: svc,
		WS:       wsServer,
		Logger:   logger,
	}, routes.Options{CorsOrigins: cfg.Cors.AllowedOrigins})

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown; close them explicitly.
	closed := wsServer.CloseAll()
	logger.Info().Int("websockets", closed).Msg("Closed websocket connections")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logTotals(logger, registry)
	return nil
}

func logTotals(logger zerolog.Logger, registry *presence.Registry) {
	identities, connections := registry.Stats()
	logger.Info().Int("identities", identities).Int("connections", connections).Msg("Stopped")
}
