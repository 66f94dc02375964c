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
	"github.com/gorilla/websocket"
	"github.com/lalith-99/strangersmeet/internal/api"
	"github.com/lalith-99/strangersmeet/internal/auth"
	"github.com/lalith-99/strangersmeet/internal/config"
	"github.com/lalith-99/strangersmeet/internal/db"
	"github.com/lalith-99/strangersmeet/internal/membership"
	"github.com/lalith-99/strangersmeet/internal/observ"
	"github.com/lalith-99/strangersmeet/internal/realtime"
	"github.com/lalith-99/strangersmeet/internal/repository"
	"github.com/lalith-99/strangersmeet/internal/repository/cache"
	"github.com/lalith-99/strangersmeet/internal/repository/postgres"
	"github.com/lalith-99/strangersmeet/internal/repository/resilient"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// Cancelled on SIGINT/SIGTERM. Every live session watches it.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	pool := database.Pool()
	messages := resilient.NewMessageStore(postgres.NewMessageStore(pool), resilient.Settings{}, logger)
	userStore := postgres.NewUserStore(pool)
	users := cache.NewUserDirectory(userStore, cfg.Cache.UserSize, cfg.Cache.UserTTL)

	var channels repository.ChannelRepository = postgres.NewChannelStore(pool)
	if cfg.RedisURL != "" {
		rdb, err := db.NewRedis(ctx, cfg.RedisURL, logger)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer rdb.Close()
		channels = cache.NewChannelCache(channels, rdb, cfg.Cache.ChannelTTL, logger)
	} else {
		logger.Info("REDIS_URL not set, channel lookups go straight to postgres")
	}

	oracle := membership.NewOracle(channels, postgres.NewGroupStore(pool), postgres.NewMembershipStore(pool))
	// Token resolution reads the store directly so a deactivated account is
	// refused on its next request, not after USER_CACHE_TTL.
	resolver := auth.NewTokenResolver(cfg.JWTSecret, userStore)

	// One registry per process, shared by every session and handler.
	registry := realtime.NewRegistry()
	broadcaster := realtime.NewBroadcaster(registry, logger)
	hub := realtime.NewHub(registry, broadcaster, resolver, oracle, messages, cfg.Realtime.MaxMessageLength, logger)

	socketCfg := realtime.SocketConfig{
		SendQueueSize:  cfg.Realtime.SendQueueSize,
		MaxMessageSize: cfg.Realtime.MaxMessageSize,
		PingPeriod:     cfg.Realtime.PingPeriod,
		PongWait:       cfg.Realtime.PongWait,
		WriteWait:      cfg.Realtime.WriteWait,
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Handlers{
		Channels: api.NewChannelHandler(oracle, registry, logger),
		Messages: api.NewMessageHandler(messages, oracle, broadcaster, cfg.Realtime.MaxMessageLength, logger),
		Users:    api.NewUserHandler(users, logger),
		Realtime: api.NewRealtimeHandler(ctx, hub, socketCfg, cfg.AllowedOrigins, logger),
	}, resolver, registry, database, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting strangersmeet",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
		)
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
		return nil
	case <-ctx.Done():
	}

	channelCount, connCount := registry.Stats()
	logger.Info("shutting down",
		zap.Int("channels", channelCount),
		zap.Int("connections", connCount),
	)

	// Hijacked sockets are invisible to srv.Shutdown, so close them here.
	registry.CloseAll(websocket.CloseGoingAway, "server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
