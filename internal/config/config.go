package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`

	// MongoDB connection
	MongoURI       string        `yaml:"mongo_uri"`
	MongoDBName    string        `yaml:"mongo_db_name"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	PollAttempts   int           `yaml:"poll_attempts"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`

	// Live data
	RedisURL     string        `yaml:"redis_url"`
	LiveDataTTL  time.Duration `yaml:"live_data_ttl"`
	LiveDataRate float64       `yaml:"live_data_rate"`
	WeatherURL   string        `yaml:"weather_url"`
	UserAgent    string        `yaml:"user_agent"`

	// Document processing
	OCRLanguages        []string `yaml:"ocr_languages"`
	MaxUploadBytes      int      `yaml:"max_upload_bytes"`
	EmbeddingDimensions int      `yaml:"embedding_dimensions"`
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	// MONGODB_URI is accepted for older deployments
	mongoURI := getEnv("MONGO_URI", getEnv("MONGODB_URI", "mongodb://localhost:27017/blackhole_db"))

	return &Config{
		Port:        getEnv("PORT", "8000"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", ""),

		MongoURI:       mongoURI,
		MongoDBName:    getEnv("MONGO_DB_NAME", "blackhole_db"),
		ConnectTimeout: getDurationEnv("MONGO_CONNECT_TIMEOUT", 5*time.Second),
		PollInterval:   getDurationEnv("MONGO_POLL_INTERVAL", 100*time.Millisecond),
		PollAttempts:   getIntEnv("MONGO_POLL_ATTEMPTS", 30),
		ReconnectDelay: getDurationEnv("MONGO_RECONNECT_DELAY", 5*time.Second),

		RedisURL:     getEnv("REDIS_URL", ""),
		LiveDataTTL:  getDurationEnv("LIVE_DATA_TTL", 10*time.Minute),
		LiveDataRate: getFloatEnv("LIVE_DATA_RATE", 2),
		WeatherURL:   getEnv("WEATHER_URL", "https://wttr.in/%s?format=j1"),
		UserAgent:    getEnv("USER_AGENT", "blackhole-agents/1.0"),

		OCRLanguages:        getListEnv("OCR_LANGUAGES", []string{"eng"}),
		MaxUploadBytes:      getIntEnv("MAX_UPLOAD_BYTES", 25<<20),
		EmbeddingDimensions: getIntEnv("EMBEDDING_DIMENSIONS", 256),
	}
}

// LoadFile overlays a YAML file onto base. Keys absent from the file keep
// their base values.
func LoadFile(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := *base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return &cfg, nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate rejects settings the connection manager and agents cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.MongoURI == "" {
		errs = append(errs, errors.New("mongo_uri is required"))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("connect_timeout must be positive, got %s", c.ConnectTimeout))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.PollAttempts <= 0 {
		errs = append(errs, fmt.Errorf("poll_attempts must be positive, got %d", c.PollAttempts))
	}
	if c.ReconnectDelay <= 0 {
		errs = append(errs, fmt.Errorf("reconnect_delay must be positive, got %s", c.ReconnectDelay))
	}
	if c.LiveDataTTL <= 0 {
		errs = append(errs, fmt.Errorf("live_data_ttl must be positive, got %s", c.LiveDataTTL))
	}
	if c.LiveDataRate <= 0 {
		errs = append(errs, fmt.Errorf("live_data_rate must be positive, got %g", c.LiveDataRate))
	}
	if c.EmbeddingDimensions <= 0 {
		errs = append(errs, fmt.Errorf("embedding_dimensions must be positive, got %d", c.EmbeddingDimensions))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes))
	}
	if !strings.Contains(c.WeatherURL, "%s") {
		errs = append(errs, errors.New("weather_url must contain a %s placeholder for the location"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
