package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"reforest-portal/portal-backend/internal/config"
	"reforest-portal/portal-backend/internal/funding"
	"reforest-portal/portal-backend/internal/middleware"
	"reforest-portal/portal-backend/internal/notifications"
	"reforest-portal/portal-backend/internal/notifications/websocket"
	"reforest-portal/portal-backend/internal/planting"
	"reforest-portal/portal-backend/internal/projects"
	"reforest-portal/portal-backend/internal/reports"
	"reforest-portal/portal-backend/internal/species"
	"reforest-portal/portal-backend/internal/tasks"
	"reforest-portal/portal-backend/pkg/awsclient"
	"reforest-portal/portal-backend/pkg/cache"
	"reforest-portal/portal-backend/pkg/database"
	"reforest-portal/portal-backend/pkg/metrics"
	"reforest-portal/portal-backend/pkg/migrate"
	"reforest-portal/portal-backend/pkg/storage"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}

	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		bootstrap, _ := zap.NewDevelopment()
		bootstrap.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx := context.Background()

	// Connect to database
	db, err := database.Connect(ctx, cfg.Database.GetDatabaseURL(), database.PoolOptions{
		MaxOpenConns: cfg.Database.MaxConnections,
		MaxIdleConns: cfg.Database.MaxIdleConns,
		MaxLifetime:  cfg.Database.MaxLifetime,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.DBName))

	if cfg.Database.AutoMigrate {
		if err := migrate.Run(ctx, db.DB, "up"); err != nil {
			logger.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	gormDB, err := database.OpenGorm(db, logger)
	if err != nil {
		logger.Fatal("Failed to open gorm session", zap.Error(err))
	}

	// Shared key/value store: redis when configured, in-process otherwise
	var store cache.LockingStore
	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer client.Close()
		store = cache.NewRedisStore(client, "reforest:")
	} else {
		memory := cache.NewMemoryStore(cfg.Funding.IdempotencyTTL)
		defer memory.Stop()
		store = memory
		logger.Warn("Redis not configured, using in-process store")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ledgerMetrics := metrics.NewLedgerMetrics(registry)
	observer := funding.NewObserver(logger, ledgerMetrics)

	var awsCfg *aws.Config
	if cfg.AWS.Bucket != "" || cfg.AWS.SESFromAddress != "" || cfg.AWS.SNSTopicARN != "" {
		loaded, err := awsclient.Load(ctx, awsclient.Options{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Endpoint:        cfg.AWS.Endpoint,
		})
		if err != nil {
			logger.Fatal("Failed to load AWS configuration", zap.Error(err))
		}
		awsCfg = &loaded
	}

	// Live feed and event fan-out
	feed := websocket.NewManager(logger)
	publishers := []funding.EventPublisher{feed}
	if awsCfg != nil && cfg.AWS.SNSTopicARN != "" {
		publishers = append(publishers, notifications.NewSNSPublisher(sns.NewFromConfig(*awsCfg), cfg.AWS.SNSTopicARN, logger))
	}

	fundingOpts := []funding.Option{
		funding.WithObserver(observer),
		funding.WithBalanceCache(store, cfg.Funding.BalanceCacheTTL),
		funding.WithEventPublisher(notifications.NewFanoutPublisher(publishers...)),
	}

	var dispatcher *funding.Dispatcher
	if cfg.Notifications.Enabled {
		dispatcher = funding.NewDispatcher(cfg.Notifications.Workers, cfg.Notifications.QueueSize,
			cfg.Notifications.Timeout, observer, logger)
		fundingOpts = append(fundingOpts, funding.WithDispatcher(dispatcher))
	}

	// Receipts read through a plain ledger over the same repository.
	fundingRepo := funding.NewRepository(db)
	reportsService := reports.NewService(funding.NewService(fundingRepo, logger), logger,
		reports.WithOrganization(cfg.Notifications.FromName))

	if awsCfg != nil && cfg.AWS.SESFromAddress != "" {
		mailer := notifications.NewEmailSender(sesv2.NewFromConfig(*awsCfg), notifications.EmailConfig{
			FromAddress: cfg.AWS.SESFromAddress,
			FromName:    cfg.Notifications.FromName,
		}, logger)
		fundingOpts = append(fundingOpts, funding.WithDonorNotifier(notifications.NewDonorService(mailer, reportsService, logger)))
	}

	fundingService := funding.NewService(fundingRepo, logger, fundingOpts...)

	// Task photos
	var objects storage.ObjectStore
	var localObjects *storage.MemoryStore
	if awsCfg != nil && cfg.AWS.Bucket != "" {
		objects = storage.NewS3Store(*awsCfg, cfg.AWS.Bucket, logger)
	} else {
		localObjects = storage.NewMemoryStore("http://" + cfg.Server.GetServerAddr() + "/uploads")
		objects = localObjects
		logger.Warn("S3 bucket not configured, task images are kept in memory")
	}
	taskService := tasks.NewService(tasks.NewRepository(db), objects, logger,
		tasks.WithImageLimit(cfg.Uploads.MaxImageBytes),
		tasks.WithURLExpiry(cfg.Uploads.URLExpiry))

	projectService := projects.NewService(projects.NewRepository(gormDB), logger)
	speciesService := species.NewService(species.NewRepository(gormDB), logger)
	plantingService := planting.NewService(planting.NewRepository(gormDB), logger)

	// Setup Router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger), middleware.CORS())

	var writes []gin.HandlerFunc
	if cfg.Security.JWTSecret != "" {
		writes = append(writes, middleware.RequireAuth(middleware.JWTConfig{
			Secret: cfg.Security.JWTSecret,
			Issuer: cfg.Security.JWTIssuer,
		}, logger))
	} else {
		logger.Warn("JWT secret not configured, write routes are unauthenticated")
	}
	writes = append(writes, middleware.Idempotency(store, cfg.Funding.IdempotencyTTL, logger))

	// Register Routes
	api := router.Group("/api")
	{
		fundingGroup := api.Group("/funding")
		fundingGroup.GET("/ws", feed.ServeWS)
		funding.NewHandler(fundingService, logger).RegisterRoutes(fundingGroup, writes...)
		reports.NewHandler(reportsService, logger).RegisterRoutes(fundingGroup)

		projects.NewHandler(projectService, logger).RegisterRoutes(api.Group("/projects"), writes...)

		taskHandler := tasks.NewHandler(taskService, logger, cfg.Uploads.MaxImageBytes)
		taskHandler.RegisterRoutes(api.Group("/tasks"), writes...)
		taskHandler.RegisterTreeRoutes(api.Group("/trees"))

		species.NewHandler(speciesService, logger).RegisterRoutes(api.Group("/tree-species"), writes...)
		planting.NewHandler(plantingService, logger).RegisterRoutes(api, writes...)
	}

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		status, code := "healthy", http.StatusOK
		if err := db.PingContext(c.Request.Context()); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now(),
		})
	})
	if localObjects != nil {
		router.GET("/uploads/*key", func(c *gin.Context) {
			obj, ok := localObjects.Get(strings.TrimPrefix(c.Param("key"), "/"))
			if !ok {
				c.Status(http.StatusNotFound)
				return
			}
			c.Data(http.StatusOK, obj.ContentType, obj.Data)
		})
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// Start Server
	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", srv.Addr))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Drain queued receipts and events before the pool closes.
	if dispatcher != nil {
		dispatcher.Close()
	}
	feed.Close()

	logger.Info("Server exiting")
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zapCfg.Build()
}
