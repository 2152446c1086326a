package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Auth modes for acquiring a portal session.
const (
	AuthInteractive = "interactive"
	AuthCookies     = "cookies"
	AuthCDP         = "cdp"
)

type Config struct {
	Server     ServerConfig
	Dreamstime DreamstimeConfig
	Browser    BrowserConfig
	Vision     VisionConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	APIKey          string
	RequireAPIKey   bool
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DreamstimeConfig struct {
	Username    string
	Password    string
	AuthMode    string
	CookieFile  string
	CDPEndpoint string
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	TimezoneID     string
	Locale         string
}

type VisionConfig struct {
	GeminiAPIKey string
}

// DatabaseConfig is optional; an empty host disables run history.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig is optional; an empty address disables the event stream.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "5000"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			APIKey:          getEnvOrDefault("API_KEY", ""),
			RequireAPIKey:   getBoolOrDefault("REQUIRE_API_KEY", false),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Dreamstime: DreamstimeConfig{
			Username:    getEnvOrDefault("DREAMSTIME_USERNAME", ""),
			Password:    getEnvOrDefault("DREAMSTIME_PASSWORD", ""),
			AuthMode:    getEnvOrDefault("AUTH_MODE", AuthInteractive),
			CookieFile:  getEnvOrDefault("COOKIE_FILE", "cookies.json"),
			CDPEndpoint: getEnvOrDefault("CDP_ENDPOINT", "http://localhost:9222"),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", false),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1280),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 720),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "America/New_York"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "en-US"),
		},
		Vision: VisionConfig{
			GeminiAPIKey: getEnvOrDefault("GEMINI_API_KEY", ""),
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("DB_HOST", ""),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "autouploader"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", ""),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
			Stream:   getEnvOrDefault("REDIS_STREAM", "stream:autouploader_progress"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Dreamstime.AuthMode {
	case AuthInteractive, AuthCookies, AuthCDP:
	default:
		return fmt.Errorf("AUTH_MODE must be one of %s, %s, %s", AuthInteractive, AuthCookies, AuthCDP)
	}

	if c.Dreamstime.AuthMode == AuthCDP && c.Dreamstime.CDPEndpoint == "" {
		return fmt.Errorf("CDP_ENDPOINT is required when AUTH_MODE is %s", AuthCDP)
	}

	if c.Server.RequireAPIKey && c.Server.APIKey == "" {
		return fmt.Errorf("API_KEY is required when REQUIRE_API_KEY is enabled")
	}

	return nil
}

// CredentialsConfigured reports whether an interactive login is possible.
func (c *Config) CredentialsConfigured() bool {
	return c.Dreamstime.Username != "" && c.Dreamstime.Password != ""
}

// DatabaseDSN returns the Postgres connection string, or empty when run
// history is disabled.
func (c *Config) DatabaseDSN() string {
	if c.Database.Host == "" {
		return ""
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User, c.Database.Password, c.Database.Host,
		c.Database.Port, c.Database.DBName, c.Database.SSLMode)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
