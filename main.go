package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"coursequiz/config"
	"coursequiz/handlers"
	"coursequiz/logger"
	"coursequiz/middleware"
	"coursequiz/models"
	"coursequiz/routes"
	"coursequiz/services"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()

	slog.SetDefault(logger.New(cfg.LogLevel))

	db, err := config.InitDB(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Quiz{},
		&models.Question{},
		&models.Option{},
		&models.Attempt{},
		&models.Answer{},
	)
	if err != nil {
		slog.Error("failed to migrate database", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	attemptStore := services.NewGormAttemptStore(db)
	if err := attemptStore.Migrate(ctx); err != nil {
		slog.Error("failed to create attempt indexes", "err", err)
		os.Exit(1)
	}

	redisClient := config.InitRedis(cfg)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, quiz cache disabled until it recovers", "err", err)
	}
	quizCache := services.NewQuizCache(redisClient, cfg.QuizCacheTTL)
	store := services.NewCachedAttemptStore(attemptStore, quizCache)

	// Services
	authService := services.NewAuthService(db, cfg.JWTSecret, cfg.SignupCode)
	quizService := services.NewQuizService(db, quizCache)
	attemptService := services.NewAttemptService(store)
	gradingService := services.NewGradingService(store)

	hub := services.NewHub()
	go hub.Run()

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	quizHandler := handlers.NewQuizHandler(quizService)
	attemptHandler := handlers.NewAttemptHandler(attemptService, gradingService, hub)

	router := gin.Default()
	router.Use(middleware.CORS(cfg.CORSOrigins))

	routes.SetupRoutes(router, authHandler, quizHandler, attemptHandler, hub, quizService, cfg.JWTSecret, cfg.CORSOrigins)

	slog.Info("server starting", "addr", cfg.Addr())
	if err := router.Run(cfg.Addr()); err != nil {
		slog.Error("failed to start server", "err", err)
		os.Exit(1)
	}
}
