// Package main runs the menu platform HTTP server with live menu updates and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/menuqr/backend/config"
	"github.com/menuqr/backend/internal/access"
	"github.com/menuqr/backend/internal/analytics"
	"github.com/menuqr/backend/internal/assets"
	"github.com/menuqr/backend/internal/auth"
	"github.com/menuqr/backend/internal/billing"
	"github.com/menuqr/backend/internal/menus"
	"github.com/menuqr/backend/internal/middleware"
	"github.com/menuqr/backend/internal/models"
	"github.com/menuqr/backend/internal/ordering"
	"github.com/menuqr/backend/internal/publicmenu"
	"github.com/menuqr/backend/internal/realtime"
	"github.com/menuqr/backend/internal/restaurants"
	"github.com/menuqr/backend/pkg/database"
	"github.com/menuqr/backend/pkg/queue"
	"github.com/menuqr/backend/pkg/redis"
	"github.com/menuqr/backend/pkg/response"
	"github.com/menuqr/backend/pkg/storage"
)

// multipart bodies above this are spooled to disk by net/http.
const maxMultipartMemory = 8 << 20

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns:        int32(cfg.Database.MaxConns),
		MinConns:        int32(cfg.Database.MinConns),
		MaxConnLifetime: time.Hour,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Images are optional: without a bucket, uploads fail with 502 and deletes are skipped.
	var objects assets.ObjectStore
	if cfg.AWS.Bucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Bucket:          cfg.AWS.Bucket,
			Endpoint:        cfg.AWS.Endpoint,
			PublicBaseURL:   cfg.AWS.PublicBaseURL,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			objects = s3Client
		}
	}
	jobQueue := queue.NewQueue(rdb.Client, logger)
	media := assets.NewManager(objects, jobQueue, logger)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	defer hub.Close()

	// Repositories
	authRepo := auth.NewRepository(pool)
	restaurantRepo := restaurants.NewRepository(pool)
	menuRepo := menus.NewRepository(pool)
	analyticsRepo := analytics.NewRepository(pool)

	// Ownership and ordering over the same hierarchy tables
	resolver := access.NewResolver(restaurantRepo, menuRepo)
	engine := ordering.NewEngine(menuRepo)

	// Public menu: cache, QR, view analytics, live notifications
	publicSvc := publicmenu.NewService(menuRepo, restaurantRepo, publicmenu.Config{
		Cache:       publicmenu.NewRedisCache(rdb.Client),
		TTL:         cfg.Cache.PublicMenuTTL,
		Events:      analyticsRepo,
		Broadcaster: hub,
		SiteURL:     cfg.Server.PublicSiteURL,
	}, logger)

	menuSvc := menus.NewService(menuRepo, resolver, engine, media, publicSvc, logger)
	restaurantSvc := restaurants.NewService(restaurantRepo, menuRepo, resolver, media, publicSvc, logger)

	authHandler := auth.NewHandler(authRepo, jwtService, logger)
	restaurantHandler := restaurants.NewHandler(restaurantSvc, logger)
	menuHandler := menus.NewHandler(menuSvc, logger)
	analyticsHandler := analytics.NewHandler(analyticsRepo, menuRepo, hub, resolver, logger)
	publicHandler := publicmenu.NewHandler(publicSvc, hub, logger)
	billingHandler := billing.NewHandler(restaurantRepo, cfg.Stripe.WebhookSecret, logger)
	var gateway billing.Gateway
	if cfg.Stripe.SecretKey != "" {
		gateway = billing.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.APIURL)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set, subscription endpoints disabled")
	}
	subscriptionHandler := billing.NewSubscriptionHandler(
		billing.NewService(gateway, restaurantRepo, resolver, authRepo, logger), logger)

	router := gin.New()
	router.MaxMultipartMemory = maxMultipartMemory
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
		authGroup.GET("/me", middleware.JWT(jwtService), authHandler.Me)
	}

	// Public menu and QR (no auth)
	publicHandler.RegisterRoutes(router.Group(""))

	// Billing webhook (signature checked in handler)
	router.POST("/webhooks/stripe", billingHandler.Stripe)
	subscriptionHandler.RegisterPublicRoutes(router.Group(""))

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	api.GET("/users", middleware.RequireRole(models.RoleAdmin), authHandler.List)
	restaurantHandler.RegisterRoutes(api)
	menuHandler.RegisterRoutes(api)
	analyticsHandler.RegisterRoutes(api)
	subscriptionHandler.RegisterRoutes(api)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
