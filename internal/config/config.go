package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level orchestrator configuration loaded from
// features.yaml with environment overrides.
type Config struct {
	Service    ServiceConfig    `mapstructure:"service"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Market     MarketConfig     `mapstructure:"market"`
	Historical HistoricalConfig `mapstructure:"historical"`
	Session    SessionConfig    `mapstructure:"session"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Personas   PersonasConfig   `mapstructure:"personas"`
}

// ServiceConfig contains basic service configuration
type ServiceConfig struct {
	Port            int           `mapstructure:"port"`
	HealthPort      int           `mapstructure:"health_port"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

// EngineConfig tunes the query orchestration loop
type EngineConfig struct {
	MaxSteps            int           `mapstructure:"max_steps"`
	MaxRefinements      int           `mapstructure:"max_refinements"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	NodeTimeout         time.Duration `mapstructure:"node_timeout"`
}

// RetrievalConfig configures the vector store retriever
type RetrievalConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Collection   string        `mapstructure:"collection"`
	TopK         int           `mapstructure:"top_k"`
	ExpandedTopK int           `mapstructure:"expanded_top_k"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// LLMConfig configures the LLM service client
type LLMConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MarketConfig configures the live quote provider
type MarketConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	AppKey      string        `mapstructure:"app_key"`
	AppSecret   string        `mapstructure:"app_secret"`
	AccessToken string        `mapstructure:"access_token"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RatePerSec  float64       `mapstructure:"rate_per_sec"`
	RateBurst   int           `mapstructure:"rate_burst"`
	MaxParallel int           `mapstructure:"max_parallel"`
}

// HistoricalConfig configures the filings/macro snapshot store
type HistoricalConfig struct {
	Driver       string `mapstructure:"driver"`
	DatabaseURL  string `mapstructure:"database_url"`
	SQLitePath   string `mapstructure:"sqlite_path"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// SessionConfig configures Redis-backed conversation sessions
type SessionConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	TTL             time.Duration `mapstructure:"ttl"`
	MaxHistory      int           `mapstructure:"max_history"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// AuthConfig contains API authentication configuration
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	SkipAuth  bool   `mapstructure:"skip_auth"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// TracingConfig configures OTLP trace export
type TracingConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// LoggingConfig configures the zap logger
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PersonasConfig selects the default mentor persona
type PersonasConfig struct {
	Default string `mapstructure:"default"`
}

// Load reads features.yaml from CONFIG_PATH (default ./config/features.yaml),
// applies environment overrides, and fills unset fields with defaults.
// A missing config file is not an error; defaults and env apply.
func Load() (*Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "./config/features.yaml"
	}

	v := viper.New()
	v.SetConfigFile(cfgPath)

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(underlying(err)) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func underlying(err error) error {
	type unwrapper interface{ Unwrap() error }
	for {
		u, ok := err.(unwrapper)
		if !ok {
			return err
		}
		next := u.Unwrap()
		if next == nil {
			return err
		}
		err = next
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.port", 8080)
	v.SetDefault("service.health_port", 8081)
	v.SetDefault("service.graceful_timeout", 30*time.Second)
	v.SetDefault("service.read_timeout", 30*time.Second)
	v.SetDefault("service.write_timeout", 60*time.Second)

	v.SetDefault("engine.max_steps", 8)
	v.SetDefault("engine.max_refinements", 1)
	v.SetDefault("engine.confidence_threshold", 0.6)
	v.SetDefault("engine.node_timeout", 30*time.Second)

	v.SetDefault("retrieval.base_url", "http://localhost:6333")
	v.SetDefault("retrieval.collection", "mentor_knowledge")
	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.expanded_top_k", 10)
	v.SetDefault("retrieval.timeout", 5*time.Second)

	v.SetDefault("llm.base_url", "http://localhost:8000")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("market.base_url", "https://api.kiwoom.com")
	v.SetDefault("market.timeout", 10*time.Second)
	v.SetDefault("market.rate_per_sec", 4.0)
	v.SetDefault("market.rate_burst", 2)
	v.SetDefault("market.max_parallel", 4)

	v.SetDefault("historical.driver", "postgres")
	v.SetDefault("historical.max_open_conns", 5)

	v.SetDefault("session.redis_addr", "localhost:6379")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.max_history", 100)
	v.SetDefault("session.cleanup_interval", 5*time.Minute)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.skip_auth", true)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "heroes-orchestrator")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("personas.default", "buffett")
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("service.port", "PORT")
	_ = v.BindEnv("service.health_port", "HEALTH_PORT")
	_ = v.BindEnv("retrieval.base_url", "QDRANT_URL")
	_ = v.BindEnv("retrieval.collection", "QDRANT_COLLECTION")
	_ = v.BindEnv("llm.base_url", "LLM_SERVICE_URL")
	_ = v.BindEnv("llm.model", "LLM_MODEL")
	_ = v.BindEnv("market.base_url", "KIWOOM_BASE_URL")
	_ = v.BindEnv("market.app_key", "KIWOOM_APP_KEY")
	_ = v.BindEnv("market.app_secret", "KIWOOM_APP_SECRET")
	_ = v.BindEnv("market.access_token", "KIWOOM_ACCESS_TOKEN")
	_ = v.BindEnv("historical.driver", "HISTORICAL_DB_DRIVER")
	_ = v.BindEnv("historical.database_url", "DATABASE_URL")
	_ = v.BindEnv("historical.sqlite_path", "HISTORICAL_SQLITE_PATH")
	_ = v.BindEnv("session.redis_addr", "REDIS_ADDR")
	_ = v.BindEnv("session.redis_password", "REDIS_PASSWORD")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	_ = v.BindEnv("tracing.otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("personas.default", "DEFAULT_PERSONA")
}

// Validate checks invariants that would otherwise surface as runtime faults
func (c *Config) Validate() error {
	if c.Engine.MaxSteps < 1 {
		return fmt.Errorf("engine.max_steps must be >= 1, got %d", c.Engine.MaxSteps)
	}
	if c.Engine.MaxRefinements < 0 {
		return fmt.Errorf("engine.max_refinements must be >= 0, got %d", c.Engine.MaxRefinements)
	}
	if c.Engine.ConfidenceThreshold < 0 || c.Engine.ConfidenceThreshold > 1 {
		return fmt.Errorf("engine.confidence_threshold must be in [0,1], got %f", c.Engine.ConfidenceThreshold)
	}
	if c.Retrieval.TopK < 1 || c.Retrieval.ExpandedTopK < c.Retrieval.TopK {
		return fmt.Errorf("retrieval top_k settings invalid: top_k=%d expanded_top_k=%d",
			c.Retrieval.TopK, c.Retrieval.ExpandedTopK)
	}
	if c.Auth.Enabled && !c.Auth.SkipAuth && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret required when auth is enabled")
	}
	switch c.Historical.Driver {
	case "postgres", "sqlite3", "":
	default:
		return fmt.Errorf("historical.driver must be postgres or sqlite3, got %q", c.Historical.Driver)
	}
	return nil
}
