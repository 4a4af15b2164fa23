package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"ratingcore/internal/constants"
)

// envKeys may be overridden from the environment, upper-cased with dots
// replaced by underscores: rating.workers becomes RATING_WORKERS.
var envKeys = []string{
	"broker.kafka.brokers",
	"broker.kafka.group_id",
	"broker.kafka.input_topic",
	"broker.kafka.output_topic",
	"broker.kafka.config_update_topic",
	"broker.kafka.dlq_topic",

	"database.postgres.host",
	"database.postgres.port",
	"database.postgres.user",
	"database.postgres.password",
	"database.postgres.dbname",
	"database.postgres.sslmode",
	"database.redis.host",
	"database.redis.port",
	"database.redis.password",
	"database.redis.db",
	"database.mongodb.uri",
	"database.mongodb.database",

	"server.port",
	"server.read_timeout_seconds",
	"server.write_timeout_seconds",

	"logging.level",
	"logging.format",

	"tracing.enabled",
	"tracing.service_name",
	"tracing.otlp.endpoint",
	"tracing.otlp.insecure",

	"rating.workers",
	"rating.timezone",
	"rating.reload.interval_seconds",
	"rating.scratch.backend",
}

var defaults = map[string]interface{}{
	"rating.workers":                 constants.DefaultWorkers,
	"rating.timezone":                constants.DefaultTimezone,
	"rating.reload.interval_seconds": constants.DefaultReloadIntervalSeconds,
	"rating.stages":                  []string{constants.StageZone, constants.StagePriceModel, constants.StageHoliday},
	"rating.zone.on_miss":            constants.OnMissIgnore,
	"rating.price_model.mode":        constants.ModeFirst,
	"rating.price_model.on_miss":     constants.OnMissIgnore,
	"rating.holiday.resource":        constants.DefaultHolidayResource,
	"rating.holiday.policy":          constants.HolidayPolicyPerPacket,
	"rating.scratch.backend":         constants.ScratchBackendMemory,
	"rating.scratch.key_prefix":      constants.DefaultScratchPrefix,
	"rating.scratch.ttl_seconds":     constants.DefaultScratchTTL,
}

// Load reads configFile, applies environment overrides and defaults, and
// validates the result.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(configFile)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	normalize(&cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func normalize(cfg *Config) {
	// BROKER_KAFKA_BROKERS="k1:9092, k2:9092" arrives split on commas only
	brokers := cfg.Broker.Kafka.Brokers[:0]
	for _, b := range cfg.Broker.Kafka.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	cfg.Broker.Kafka.Brokers = brokers

	if cfg.Rating.Workers <= 0 {
		cfg.Rating.Workers = constants.DefaultWorkers
	}
	for i := range cfg.Caches {
		if cfg.Caches[i].Source == "" {
			cfg.Caches[i].Source = cfg.Caches[i].Name
		}
	}
}
