package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// WhatsApp Cloud API configuration
	WhatsApp WhatsAppConfig

	// Amadeus flight search configuration
	Amadeus AmadeusConfig

	// Booking and payment link configuration
	Booking BookingConfig

	// CORS configuration
	CORS CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// WhatsAppConfig holds WhatsApp Cloud API configuration
type WhatsAppConfig struct {
	APIURL      string // Graph API base URL
	PhoneID     string // Business phone number ID
	Token       string // Permanent access token (SECRET - never expose to client)
	VerifyToken string // Webhook verification token
	AppSecret   string // App secret for webhook signature checks (empty disables checks)
}

// AmadeusConfig holds Amadeus API configuration
type AmadeusConfig struct {
	APIURL       string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// BookingConfig holds booking and payment-link configuration
type BookingConfig struct {
	PaymentBaseURL string // Web payment page the confirmation link points at
	TokenSecret    string // Secret for signed payment-link tokens
	TokenExpiry    time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		WhatsApp: WhatsAppConfig{
			APIURL:      getEnv("WHATSAPP_API_URL", "https://graph.facebook.com/v17.0"),
			PhoneID:     getEnv("WHATSAPP_PHONE_ID", ""),
			Token:       getEnv("WHATSAPP_TOKEN", ""),
			VerifyToken: getEnv("WHATSAPP_VERIFY_TOKEN", ""),
			AppSecret:   getEnv("WHATSAPP_APP_SECRET", ""),
		},
		Amadeus: AmadeusConfig{
			APIURL:       getEnv("AMADEUS_API_URL", "https://test.api.amadeus.com"),
			ClientID:     getEnv("AMADEUS_CLIENT_ID", ""),
			ClientSecret: getEnv("AMADEUS_CLIENT_SECRET", ""),
			Timeout:      time.Duration(getEnvAsInt("AMADEUS_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Booking: BookingConfig{
			PaymentBaseURL: getEnv("BOOKING_PAYMENT_BASE_URL", ""),
			TokenSecret:    getEnv("BOOKING_TOKEN_SECRET", ""),
			TokenExpiry:    time.Duration(getEnvAsInt("BOOKING_TOKEN_EXPIRY", 86400)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Booking.TokenSecret == "" {
		return fmt.Errorf("BOOKING_TOKEN_SECRET is required")
	}

	// External gateway credentials are only enforced in production so the
	// service can start locally against fakes
	if c.Server.Environment == "production" {
		if c.WhatsApp.PhoneID == "" {
			return fmt.Errorf("WHATSAPP_PHONE_ID is required in production")
		}

		if c.WhatsApp.Token == "" {
			return fmt.Errorf("WHATSAPP_TOKEN is required in production")
		}

		if c.WhatsApp.VerifyToken == "" {
			return fmt.Errorf("WHATSAPP_VERIFY_TOKEN is required in production")
		}

		if c.Amadeus.ClientID == "" {
			return fmt.Errorf("AMADEUS_CLIENT_ID is required in production")
		}

		if c.Amadeus.ClientSecret == "" {
			return fmt.Errorf("AMADEUS_CLIENT_SECRET is required in production")
		}

		if c.Booking.PaymentBaseURL == "" {
			return fmt.Errorf("BOOKING_PAYMENT_BASE_URL is required in production")
		}
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
