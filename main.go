package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto_backend_project/config"
	"crypto_backend_project/models"
	"crypto_backend_project/routes"
	"crypto_backend_project/scheduler"
	"crypto_backend_project/services"
	"crypto_backend_project/services/coingecko"

	"github.com/gin-gonic/gin"
)

func main() {
	log.Println("==============================================")
	log.Println("  Crypto Tracker Backend - Starting...")
	log.Println("==============================================")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: Config load issue: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database connection
	db, err := config.InitDB()
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}

	// Run database migrations
	log.Println("Running database migrations...")
	if err := models.MigrateCryptoModels(db); err != nil {
		log.Fatalf("Crypto migration failed: %v", err)
	}
	if err := models.MigrateUserModels(db); err != nil {
		log.Fatalf("User migration failed: %v", err)
	}
	if err := models.MigrateAlertModels(db); err != nil {
		log.Fatalf("Alert migration failed: %v", err)
	}
	log.Println("Database migrations completed successfully")

	// Build the collection pipeline
	quoteClient := coingecko.NewClient(cfg.CoinGeckoBaseURL, cfg.CoinGeckoAPIKey)
	collector := services.NewCollectorService(db, quoteClient, cfg.VsCurrency, cfg.TopMarketCount)
	backfill := services.NewBackfillService(db, quoteClient, cfg.BackfillDays, cfg.TopMarketCount,
		time.Duration(cfg.BackfillPaceMs)*time.Millisecond)
	mailer := services.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)
	checker := services.NewAlertCheckerService(db, mailer, cfg.FrontendURL)
	realtime := services.NewRealtimePriceService()

	jobScheduler := scheduler.NewScheduler(db, collector, backfill, checker, realtime, scheduler.Config{
		Interval:           time.Duration(cfg.CollectIntervalSeconds) * time.Second,
		VsCurrency:         cfg.VsCurrency,
		CoverageTarget:     cfg.TopMarketCount,
		BootstrapBatchSize: cfg.BootstrapBatchSize,
	})
	jobScheduler.Start()

	// Create Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	routes.SetupRoutes(router, db, backfill, realtime)

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	jobScheduler.Stop()
	realtime.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
}

// requestLogger logs each request with method, path, status and latency
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
