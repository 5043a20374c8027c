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

	"github.com/gin-gonic/gin"

	"github.com/AetherKnowledge/capstone/internal/cache"
	"github.com/AetherKnowledge/capstone/internal/config"
	"github.com/AetherKnowledge/capstone/internal/domain"
	"github.com/AetherKnowledge/capstone/internal/events"
	"github.com/AetherKnowledge/capstone/internal/gatekeeper"
	"github.com/AetherKnowledge/capstone/internal/handler"
	"github.com/AetherKnowledge/capstone/internal/hub"
	"github.com/AetherKnowledge/capstone/internal/repository"
	"github.com/AetherKnowledge/capstone/internal/service"
	"github.com/AetherKnowledge/capstone/pkg/database"
	"github.com/AetherKnowledge/capstone/pkg/jwt"
	pkglog "github.com/AetherKnowledge/capstone/pkg/log"
	"github.com/AetherKnowledge/capstone/pkg/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "chat-relay",
	})
	logger := pkglog.L()

	// Identity tokens
	jwtOpts := []jwt.Option{}
	if cfg.Auth.Issuer != "" {
		jwtOpts = append(jwtOpts, jwt.WithIssuer(cfg.Auth.Issuer))
	}
	tokens, err := jwt.NewManager(cfg.Auth.JWTSecret, jwtOpts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token verifier")
	}

	// Connect to database using GORM
	db, err := database.New(&database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		FilePath:        cfg.Database.FilePath,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close(db)

	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(db, domain.Models()...); err != nil {
			logger.Fatal().Err(err).Msg("failed to auto-migrate")
		}
		logger.Info().Msg("database migration completed")
	}

	repo := repository.NewGormChatRepository(db)

	// History cache
	var historyCache cache.HistoryCache = cache.NoopCache{}
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewRedisHistoryCache(cfg.Redis, cfg.Cache.Prefix)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		historyCache = redisCache
		logger.Info().Str("address", cfg.Redis.Address).Msg("redis cache connected")
	}
	defer historyCache.Close()

	// Message events
	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.Kafka.Enabled {
		producer, err := events.NewConfluentProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Partitions)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize kafka producer")
		}
		publisher = producer
		logger.Info().Str("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("kafka producer connected")
	}
	defer publisher.Close()

	// Registry, gatekeeper, services
	wsHub := hub.NewHub(cfg.WebSocket)
	gate := gatekeeper.New(tokens, repo, wsHub, cfg.RateLimit)
	chatSvc := service.NewChatService(wsHub, gate, repo, publisher, historyCache)
	historySvc := service.NewHistoryService(gate, repo, historyCache, cfg.Cache.TTL)

	sources := middleware.TokenSources{
		QueryParam: cfg.Auth.QueryParam,
		CookieName: cfg.Auth.CookieName,
	}
	authMiddleware := middleware.NewAuthMiddleware(tokens, sources)

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	handler.NewWSHandler(gate, chatSvc, cfg.WebSocket, sources).RegisterRoutes(r)
	handler.NewHTTPHandler(historySvc, authMiddleware, wsHub, cfg.History).RegisterRoutes(r)

	server := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", server.Addr).
			Str("driver", cfg.Database.Driver).
			Int("rate_limit", cfg.RateLimit.MaxMessages).
			Dur("rate_window", cfg.RateLimit.Window).
			Msg("chat-relay starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down chat-relay")

	wsHub.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("chat-relay stopped")
}
