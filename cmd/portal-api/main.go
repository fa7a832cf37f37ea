package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"civitas/citizen-portal/citizen-portal-backend/internal/config"
	"civitas/citizen-portal/citizen-portal-backend/internal/notifications"
	"civitas/citizen-portal/citizen-portal-backend/internal/profiles"
	"civitas/citizen-portal/citizen-portal-backend/internal/submissions"
	"civitas/citizen-portal/citizen-portal-backend/internal/verification"
	"civitas/citizen-portal/citizen-portal-backend/pkg/storage"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	// .env is optional; real deployments set environment variables directly
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Connect to database
	dbURL := cfg.Database.GetDatabaseURL()
	logger.Info("Connecting to database",
		zap.String("host", cfg.Database.Host),
		zap.String("db", cfg.Database.DBName))
	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	if cfg.Database.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxConnections)
	}
	if cfg.Database.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}

	// Photo archive
	var archive storage.S3Client
	if cfg.Archive.Enabled {
		archive, err = storage.NewS3Client(context.Background(), cfg.Archive.Region)
		if err != nil {
			logger.Fatal("Failed to initialize photo archive", zap.Error(err))
		}
	} else {
		logger.Warn("Photo archive disabled, verified photos will not be retained")
		archive = storage.NewNoopS3Client()
	}

	// Temp upload store + hourly sweep of anything a crashed request left behind
	tempStore, err := verification.NewTempStore(cfg.Uploads.Dir, logger)
	if err != nil {
		logger.Fatal("Failed to initialize upload store", zap.Error(err))
	}
	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@hourly", func() {
		tempStore.Sweep(cfg.Uploads.SweepTTL)
	}); err != nil {
		logger.Fatal("Failed to schedule upload sweep", zap.Error(err))
	}
	sweeper.Start()
	defer sweeper.Stop()

	// Verification module
	engineClient := verification.NewClient(cfg.Engine, logger)
	verificationHandler := verification.NewHandler(
		engineClient, tempStore, archive, cfg.Archive.Bucket,
		cfg.Uploads.MaxFileSize, cfg.Uploads.MaxFiles, logger)

	// Review module
	hub := notifications.NewHub(logger)
	submissionsRepo := submissions.NewRepository(db)
	profilesRepo := profiles.NewRepository(db)
	submissionsService := submissions.NewService(submissionsRepo, profilesRepo, hub, logger)
	submissionsHandler := submissions.NewHandler(submissionsService, logger)

	// Setup Router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// CORS Middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-User-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Register Routes
	api := router.Group("/api")
	{
		verificationHandler.RegisterRoutes(api)
		submissionsHandler.RegisterRoutes(api)
	}

	// Review decision push channel
	router.GET("/ws/notifications", func(c *gin.Context) {
		if err := hub.HandleConnection(c.Writer, c.Request); err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
		}
	})

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
	})

	// Start Server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.Int("port", cfg.Server.Port))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
