package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/remmie/whatsapp-booking-backend/internal/config"
	"github.com/remmie/whatsapp-booking-backend/internal/database"
	"github.com/remmie/whatsapp-booking-backend/internal/handlers"
	"github.com/remmie/whatsapp-booking-backend/internal/middleware"
	"github.com/remmie/whatsapp-booking-backend/internal/services"
	"github.com/remmie/whatsapp-booking-backend/pkg/amadeus"
	"github.com/remmie/whatsapp-booking-backend/pkg/jwt"
	"github.com/remmie/whatsapp-booking-backend/pkg/whatsapp"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting WhatsApp Flight Booking Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	// Initialize repositories
	conversationRepo := database.NewConversationRepository(db)
	bookingRepo := database.NewBookingRepository(db)
	airportRepo := database.NewAirportRepository(db)

	// Initialize gateways
	messenger := whatsapp.NewGateway(whatsapp.Config{
		APIURL:  cfg.WhatsApp.APIURL,
		PhoneID: cfg.WhatsApp.PhoneID,
		Token:   cfg.WhatsApp.Token,
	})
	flightClient := amadeus.NewClient(amadeus.Config{
		APIURL:       cfg.Amadeus.APIURL,
		ClientID:     cfg.Amadeus.ClientID,
		ClientSecret: cfg.Amadeus.ClientSecret,
		Timeout:      cfg.Amadeus.Timeout,
	})

	// Initialize services
	logger.Info("Initializing services...")
	tokenService := jwt.NewService(cfg.Booking.TokenSecret, cfg.Booking.TokenExpiry)
	resolver := services.NewLocationResolver(airportRepo)
	collector := services.NewPassengerCollector()
	finalizer := services.NewBookingFinalizer(
		bookingRepo,
		conversationRepo,
		messenger,
		tokenService,
		cfg.Booking.PaymentBaseURL,
		logger,
	)
	engine := services.NewConversationEngine(
		conversationRepo,
		airportRepo,
		resolver,
		collector,
		finalizer,
		flightClient,
		messenger,
		logger,
	)
	logger.Info("Services initialized")

	// Initialize handlers
	webhookHandler := handlers.NewWebhookHandler(engine, cfg.WhatsApp.VerifyToken, logger)
	bookingHandler := handlers.NewBookingHandler(bookingRepo, tokenService, logger)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// Webhook endpoints (Meta verification + inbound messages)
	webhook := router.Group("/webhook")
	{
		webhook.GET("/whatsapp", webhookHandler.Verify)
		webhook.POST("/whatsapp",
			middleware.WebhookSignature(cfg.WhatsApp.AppSecret, logger),
			webhookHandler.Receive,
		)
	}

	// API v1 routes (payment page integration)
	v1 := router.Group("/api/v1")
	{
		bookings := v1.Group("/bookings")
		{
			bookings.GET("/:reference", bookingHandler.GetByReference)
			bookings.GET("/phone/:phone", bookingHandler.GetByPhone)
			bookings.GET("/payment-status/:status", bookingHandler.ListByPaymentStatus)
			bookings.POST("/:reference/payment-status", bookingHandler.UpdatePaymentStatus)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"ip":         c.ClientIP(),
			"latency_ms": latency.Milliseconds(),
		}

		entry := logger.WithFields(fields)
		status := c.Writer.Status()
		switch {
		case len(c.Errors) > 0:
			entry.WithField("errors", c.Errors.String()).Error("Request failed with errors")
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
