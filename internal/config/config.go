package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Broker         BrokerConfig
	Logging        LoggingConfig
	Caches         []CacheConfig `mapstructure:"caches"`
	Rating         RatingConfig
	Admin          AdminConfig
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig
	Redis         RedisConfig
	MongoDB       MongoDBConfig
	RunMigrations bool `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BrokerConfig struct {
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers           []string    `mapstructure:"brokers"`
	GroupID           string      `mapstructure:"group_id"`
	InputTopic        string      `mapstructure:"input_topic"`
	OutputTopic       string      `mapstructure:"output_topic"`
	ConfigUpdateTopic string      `mapstructure:"config_update_topic"`
	DLQTopic          string      `mapstructure:"dlq_topic"`
	Retry             RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CacheConfig declares one named lookup engine. Source names the data set in
// the backing store; it defaults to Name.
type CacheConfig struct {
	Name   string `mapstructure:"name"`
	Kind   string `mapstructure:"kind"` // "prefix" or "validity"
	Source string `mapstructure:"source"`
	Fields int    `mapstructure:"fields"`
}

type RatingConfig struct {
	Workers    int                   `mapstructure:"workers"`
	Timezone   string                `mapstructure:"timezone"`
	Stages     []string              `mapstructure:"stages"`
	Reload     ReloadConfig          `mapstructure:"reload"`
	Zone       ZoneStageConfig       `mapstructure:"zone"`
	PriceModel PriceModelStageConfig `mapstructure:"price_model"`
	Holiday    HolidayStageConfig    `mapstructure:"holiday"`
	Scratch    ScratchConfig         `mapstructure:"scratch"`
}

type ReloadConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
}

type ZoneStageConfig struct {
	Cache       string `mapstructure:"cache"`
	OnMiss      string `mapstructure:"on_miss"` // "ignore", "default", "error"
	DefaultZone string `mapstructure:"default_zone"`
}

type PriceModelStageConfig struct {
	Cache        string `mapstructure:"cache"`
	Mode         string `mapstructure:"mode"` // "first", "all", "from"
	OnMiss       string `mapstructure:"on_miss"`
	DefaultModel string `mapstructure:"default_model"`
}

type HolidayStageConfig struct {
	Cache           string `mapstructure:"cache"`
	Resource        string `mapstructure:"resource"`
	Policy          string `mapstructure:"policy"` // "per_packet", "shared"
	Group           string `mapstructure:"group"`
	GroupExpression string `mapstructure:"group_expression"`
}

type ScratchConfig struct {
	Backend    string `mapstructure:"backend"` // "memory", "redis"
	KeyPrefix  string `mapstructure:"key_prefix"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

type AdminConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}
