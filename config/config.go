package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"adaptive-trading-bot/internal/ai/ml"
	"adaptive-trading-bot/internal/ai/sentiment"
	"adaptive-trading-bot/internal/api"
	"adaptive-trading-bot/internal/database"
	"adaptive-trading-bot/internal/engine"
	"adaptive-trading-bot/internal/position"
	"adaptive-trading-bot/internal/risk"
	"adaptive-trading-bot/internal/signal"
)

// Config is the full application configuration, loaded from config.json with
// environment variable overrides on top.
type Config struct {
	Broker    BrokerConfig         `json:"broker"`
	Engine    engine.Config        `json:"engine"`
	Fusion    signal.FusionConfig  `json:"fusion"`
	Sources   SourcesConfig        `json:"sources"`
	Sizing    risk.SizerConfig     `json:"sizing"`
	Groups    position.GroupConfig `json:"groups"`
	ML        ml.Config            `json:"ml"`
	Sentiment sentiment.Config     `json:"sentiment"`
	Database  DatabaseConfig       `json:"database"`
	Redis     RedisConfig          `json:"redis"`
	Server    api.ServerConfig     `json:"server"`
	Logging   LoggingConfig        `json:"logging"`
}

// BrokerConfig selects and credentials the venue connection.
type BrokerConfig struct {
	APIKey     string `json:"api_key"`
	SecretKey  string `json:"secret_key"`
	BaseURL    string `json:"base_url"`
	TestNet    bool   `json:"testnet"`
	MockMode   bool   `json:"mock_mode"` // Use the in-memory mock instead of a live venue
	MaxRetries int    `json:"max_retries"`
}

// SourcesConfig toggles the optional signal sources.
type SourcesConfig struct {
	ML        bool `json:"ml"`
	Patterns  bool `json:"patterns"`
	Sentiment bool `json:"sentiment"`
}

// DatabaseConfig wraps the pool settings with an enable switch.
type DatabaseConfig struct {
	Enabled bool `json:"enabled"`
	database.Config
}

// RedisConfig holds the position-state mirror connection.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// LoggingConfig controls the zerolog root logger.
type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // Console writer when false
}

// Load reads config.json if present and applies environment overrides.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg = defaults()
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Broker: BrokerConfig{
			BaseURL:    "https://api.binance.com",
			MaxRetries: 5,
		},
		Engine:    *engine.DefaultConfig(),
		Fusion:    *signal.DefaultFusionConfig(),
		Sources:   SourcesConfig{ML: true, Patterns: true, Sentiment: true},
		Sizing:    *risk.DefaultSizerConfig(),
		Groups:    *position.DefaultGroupConfig(),
		ML:        *ml.DefaultConfig(),
		Sentiment: *sentiment.DefaultConfig(),
		Database: DatabaseConfig{
			Config: database.Config{
				Host:     "localhost",
				Port:     5432,
				User:     "trading",
				Database: "trading",
				SSLMode:  "disable",
			},
		},
		Redis: RedisConfig{
			Address: "localhost:6379",
		},
		Server: api.DefaultServerConfig(),
		Logging: LoggingConfig{
			Level:      "info",
			JSONFormat: true,
		},
	}
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	cfg := defaults()
	if err := json.Unmarshal(file, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Broker.APIKey = getEnvOrDefault("BROKER_API_KEY", cfg.Broker.APIKey)
	cfg.Broker.SecretKey = getEnvOrDefault("BROKER_SECRET_KEY", cfg.Broker.SecretKey)
	cfg.Broker.BaseURL = getEnvOrDefault("BROKER_BASE_URL", cfg.Broker.BaseURL)
	cfg.Broker.TestNet = getEnvBoolOrDefault("BROKER_TESTNET", cfg.Broker.TestNet)
	cfg.Broker.MockMode = getEnvBoolOrDefault("BROKER_MOCK_MODE", cfg.Broker.MockMode)

	if v := os.Getenv("ENGINE_SYMBOLS"); v != "" {
		cfg.Engine.Symbols = splitList(v)
	}
	cfg.Engine.Timeframe = getEnvOrDefault("ENGINE_TIMEFRAME", cfg.Engine.Timeframe)
	cfg.Engine.CycleInterval = getEnvDurationOrDefault("ENGINE_CYCLE_INTERVAL", cfg.Engine.CycleInterval)
	cfg.Engine.DryRun = getEnvBoolOrDefault("ENGINE_DRY_RUN", cfg.Engine.DryRun)

	cfg.Sources.ML = getEnvBoolOrDefault("SOURCES_ML", cfg.Sources.ML)
	cfg.Sources.Patterns = getEnvBoolOrDefault("SOURCES_PATTERNS", cfg.Sources.Patterns)
	cfg.Sources.Sentiment = getEnvBoolOrDefault("SOURCES_SENTIMENT", cfg.Sources.Sentiment)
	cfg.Sentiment.NewsAPIKey = getEnvOrDefault("SENTIMENT_NEWS_API_KEY", cfg.Sentiment.NewsAPIKey)

	cfg.Database.Enabled = getEnvBoolOrDefault("DATABASE_ENABLED", cfg.Database.Enabled)
	cfg.Database.Host = getEnvOrDefault("DATABASE_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvIntOrDefault("DATABASE_PORT", cfg.Database.Port)
	cfg.Database.User = getEnvOrDefault("DATABASE_USER", cfg.Database.User)
	cfg.Database.Password = getEnvOrDefault("DATABASE_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = getEnvOrDefault("DATABASE_NAME", cfg.Database.Database)
	cfg.Database.SSLMode = getEnvOrDefault("DATABASE_SSL_MODE", cfg.Database.SSLMode)

	cfg.Redis.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.Redis.Enabled)
	cfg.Redis.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.Redis.Address)
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvIntOrDefault("REDIS_DB", cfg.Redis.DB)

	cfg.Server.Host = getEnvOrDefault("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvIntOrDefault("SERVER_PORT", cfg.Server.Port)
	if v := os.Getenv("SERVER_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	cfg.Server.ProductionMode = getEnvBoolOrDefault("SERVER_PRODUCTION", cfg.Server.ProductionMode)

	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.Logging.JSONFormat)
}

// EnabledSources names the signal sources participating in fusion, the
// required technical source first.
func (c *Config) EnabledSources() []string {
	enabled := []string{"technical"}
	if c.Sources.ML {
		enabled = append(enabled, "ml")
	}
	if c.Sources.Patterns {
		enabled = append(enabled, "pattern")
	}
	if c.Sources.Sentiment {
		enabled = append(enabled, "sentiment")
	}
	return enabled
}

// Validate cross-checks the sections that can contradict each other.
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := c.Fusion.Validate(c.EnabledSources()); err != nil {
		return err
	}
	if err := c.Groups.Validate(); err != nil {
		return fmt.Errorf("groups: %w", err)
	}
	if !c.Broker.MockMode && c.Broker.APIKey == "" {
		return fmt.Errorf("broker: live mode requires an API key")
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
