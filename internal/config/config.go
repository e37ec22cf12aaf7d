package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	App           AppConfig
	Cache         CacheConfig
	Telemetry     TelemetryConfig
	Broker        BrokerConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	Timeout  time.Duration // upper bound for every store call
}

// Redis Caching Layer configuration. An empty Host disables caching.
type CacheConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	TTL      time.Duration
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment       string
	BaseURL           string // Base URL for generating short links
	DefaultValidity   time.Duration
	ShortCodeLen      int
	ShortCodeAttempts int
	ReservedCodes     []string
}

// TelemetryConfig configures the remote log relay. An empty URL disables it.
type TelemetryConfig struct {
	URL          string
	Stack        string
	Timeout      time.Duration
	AuthURL      string
	Email        string
	Name         string
	RollNo       string
	AccessCode   string
	ClientID     string
	ClientSecret string
}

// BrokerConfig configures click-event publishing. An empty URL disables it.
type BrokerConfig struct {
	URL      string
	Exchange string
}

type ObservabilityConfig struct {
	ServiceName  string
	OTLPEndpoint string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "shortlink"),
			Password: getEnv("DB_PASSWORD", "shortlink_secret"),
			DBName:   getEnv("DB_NAME", "shortlink"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Timeout:  getEnvDuration("DB_TIMEOUT", 3*time.Second),
		},
		Cache: CacheConfig{
			Host:     getEnv("RDB_HOST", "localhost"),
			Port:     getEnv("RDB_PORT", "6379"),
			User:     getEnv("RDB_USER", ""),
			Password: getEnv("RDB_PASSWORD", ""),
			TTL:      getEnvDuration("CACHE_TTL", 10*time.Minute),
		},
		App: AppConfig{
			Environment:       getEnv("APP_ENV", "development"),
			BaseURL:           strings.TrimSuffix(getEnv("BASE_URL", "http://localhost:8080"), "/"),
			DefaultValidity:   time.Duration(getEnvInt("DEFAULT_VALIDITY_MINUTES", 30)) * time.Minute,
			ShortCodeLen:      getEnvInt("SHORT_CODE_LENGTH", 6),
			ShortCodeAttempts: getEnvInt("SHORT_CODE_MAX_ATTEMPTS", 1),
			ReservedCodes:     getEnvList("RESERVED_CODES", []string{"shorturls", "health", "metrics", "r", "stats"}),
		},
		Telemetry: TelemetryConfig{
			URL:          strings.TrimSuffix(getEnv("LOG_SERVICE_URL", ""), "/"),
			Stack:        getEnv("LOG_STACK", "backend"),
			Timeout:      getEnvDuration("LOG_TIMEOUT", 3*time.Second),
			AuthURL:      getEnv("LOG_AUTH_URL", ""),
			Email:        getEnv("LOG_EMAIL", ""),
			Name:         getEnv("LOG_NAME", ""),
			RollNo:       getEnv("LOG_ROLL_NO", ""),
			AccessCode:   getEnv("LOG_ACCESS_CODE", ""),
			ClientID:     getEnv("LOG_CLIENT_ID", ""),
			ClientSecret: getEnv("LOG_CLIENT_SECRET", ""),
		},
		Broker: BrokerConfig{
			URL:      getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "shortlink.clicks"),
		},
		Observability: ObservabilityConfig{
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "shortlink"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.App.ShortCodeLen < 1 {
		return fmt.Errorf("SHORT_CODE_LENGTH must be positive, got %d", c.App.ShortCodeLen)
	}
	if c.App.ShortCodeAttempts < 1 {
		return fmt.Errorf("SHORT_CODE_MAX_ATTEMPTS must be positive, got %d", c.App.ShortCodeAttempts)
	}
	if c.App.DefaultValidity <= 0 {
		return fmt.Errorf("DEFAULT_VALIDITY_MINUTES must be positive")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("DB_TIMEOUT must be positive")
	}
	return nil
}

// AuthEnabled reports whether telemetry calls carry a bearer token
func (t *TelemetryConfig) AuthEnabled() bool {
	return t.AuthURL != "" && t.ClientID != ""
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// Enabled reports whether a Redis host is configured
func (c *CacheConfig) Enabled() bool {
	return c.Host != ""
}

func (c *CacheConfig) ConnectionString() string {
	return fmt.Sprintf("redis://%s:%s@%s:%s/0", c.User, c.Password, c.Host, c.Port)
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList splits a comma separated variable, dropping blanks
func getEnvList(key string, defaultVal []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
