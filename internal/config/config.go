package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Auth     AuthConfig
	CORS     CORSConfig
	Email    EmailConfig
	Redis    RedisConfig
	Delivery DeliveryConfig
	Comments CommentsConfig
	Log      LogConfig
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Name    string
	Version string
	Debug   bool
	Port    string
	Host    string
	SiteURL string

	// TrustedProxies lists the CIDRs or addresses allowed to set
	// X-Forwarded-For. Empty means the direct peer is always the client.
	TrustedProxies []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// AuthConfig holds moderator authentication configuration
type AuthConfig struct {
	SecretKey          string
	TokenExpiryMinutes int
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// EmailConfig holds SMTP configuration for outgoing notifications
type EmailConfig struct {
	Enabled   bool
	SMTPHost  string
	SMTPPort  int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

// RedisConfig holds the optional cache/rate-limit backend. Empty URL means
// in-process fallbacks are used.
type RedisConfig struct {
	URL        string
	TTLSeconds int
}

// DeliveryConfig describes the inquiry notification channels and the copy
// shown to visitors.
type DeliveryConfig struct {
	FunctionURL          string
	FunctionKey          string
	RelayURL             string
	EmbeddedFormURL      string
	EmbeddedFormName     string
	EmbeddedFormEncoding string
	Priority             []string
	TimeoutSeconds       int
	ContactEmail         string
	BookingURL           string
	RateLimitPerMinute   int
}

// CommentsConfig holds moderation settings
type CommentsConfig struct {
	ModeratorEmail     string
	RateLimitPerMinute int
}

// LogConfig holds logrus settings
type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	config := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "Workplace Mapping API"),
			Version: getEnv("APP_VERSION", "1.0.0"),
			Debug:   getEnvAsBool("DEBUG", false),
			Port:    getEnv("PORT", "8000"),
			Host:    getEnv("HOST", "0.0.0.0"),
			SiteURL: strings.TrimRight(getEnv("SITE_URL", "https://workplacemapping.com"), "/"),

			TrustedProxies: getEnvAsSlice("TRUSTED_PROXIES", nil),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", "sqlite:///./workplace_mapping.db"),
		},
		Auth: AuthConfig{
			SecretKey:          getEnv("SECRET_KEY", ""),
			TokenExpiryMinutes: getEnvAsInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("ALLOWED_HOSTS", []string{"*"}),
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS", "HEAD"},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
			MaxAge:         86400,
		},
		Email: EmailConfig{
			Enabled:   getEnvAsBool("EMAIL_ENABLED", false),
			SMTPHost:  getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:  getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("EMAIL_FROM", "noreply@workplacemapping.com"),
			FromName:  getEnv("EMAIL_FROM_NAME", "Workplace Mapping"),
		},
		Redis: RedisConfig{
			URL:        getEnv("REDIS_URL", ""),
			TTLSeconds: getEnvAsInt("REDIS_TTL_SECONDS", 300),
		},
		Delivery: DeliveryConfig{
			FunctionURL:          getEnv("FUNCTION_CHANNEL_URL", ""),
			FunctionKey:          getEnv("FUNCTION_CHANNEL_KEY", ""),
			RelayURL:             getEnv("RELAY_CHANNEL_URL", ""),
			EmbeddedFormURL:      getEnv("EMBEDDED_FORM_URL", ""),
			EmbeddedFormName:     getEnv("EMBEDDED_FORM_NAME", "contact"),
			EmbeddedFormEncoding: getEnv("EMBEDDED_FORM_ENCODING", "urlencoded"),
			Priority:             getEnvAsSlice("CHANNEL_PRIORITY", []string{"function", "relay", "embedded_form"}),
			TimeoutSeconds:       getEnvAsInt("CHANNEL_TIMEOUT_SECONDS", 8),
			ContactEmail:         getEnv("CONTACT_EMAIL", "team@workplacemapping.com"),
			BookingURL:           getEnv("BOOKING_URL", "https://tidycal.com/jamesbrowntv/workplace-mapping-consultation"),
			RateLimitPerMinute:   getEnvAsInt("RATE_LIMIT_PER_MINUTE", 5),
		},
		Comments: CommentsConfig{
			ModeratorEmail:     getEnv("MODERATOR_EMAIL", "james@workplacemapping.com"),
			RateLimitPerMinute: getEnvAsInt("COMMENT_RATE_LIMIT_PER_MINUTE", 5),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.App.Port == "" {
		return fmt.Errorf("PORT must be set")
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.Auth.TokenExpiryMinutes <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES must be greater than 0")
	}
	if cfg.Delivery.TimeoutSeconds < 1 || cfg.Delivery.TimeoutSeconds > 30 {
		return fmt.Errorf("CHANNEL_TIMEOUT_SECONDS must be between 1 and 30")
	}
	if cfg.Delivery.ContactEmail == "" || cfg.Delivery.BookingURL == "" {
		return fmt.Errorf("CONTACT_EMAIL and BOOKING_URL must be set")
	}
	switch cfg.Delivery.EmbeddedFormEncoding {
	case "urlencoded", "multipart":
	default:
		return fmt.Errorf("EMBEDDED_FORM_ENCODING must be urlencoded or multipart")
	}
	if cfg.Delivery.RateLimitPerMinute < 0 || cfg.Comments.RateLimitPerMinute < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	return nil
}

// ChannelTimeout returns the per-channel deadline
func (c *DeliveryConfig) ChannelTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TTL returns the cache entry lifetime
func (c *RedisConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
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
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IsPostgres checks if the database URL is for PostgreSQL
func (c *DatabaseConfig) IsPostgres() bool {
	return strings.HasPrefix(c.URL, "postgres://") || strings.HasPrefix(c.URL, "postgresql://")
}

// GetPostgresDSN converts a postgres:// URL to key=value DSN form.
// Values already in DSN form are returned unchanged.
func (c *DatabaseConfig) GetPostgresDSN() string {
	if strings.Contains(c.URL, " ") || !c.IsPostgres() {
		return c.URL
	}

	u, err := url.Parse(c.URL)
	if err != nil {
		return c.URL
	}

	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	dbname := strings.TrimPrefix(u.Path, "/")
	if dbname == "" {
		dbname = "postgres"
	}
	sslmode := u.Query().Get("sslmode")
	if sslmode == "" {
		sslmode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s", host, port, u.User.Username(), dbname, sslmode)
	if password, ok := u.User.Password(); ok && password != "" {
		dsn += " password=" + password
	}
	return dsn
}

// GetSQLitePath extracts SQLite database path from URL
func (c *DatabaseConfig) GetSQLitePath() string {
	return strings.TrimPrefix(c.URL, "sqlite:///")
}
