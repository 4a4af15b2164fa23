package config

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"ratingcore/internal/constants"
	"ratingcore/pkg/cel"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// problems collects every ValidationError found in one pass.
type problems []error

func (p *problems) add(field, format string, args ...interface{}) {
	*p = append(*p, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (p *problems) port(field string, port int) {
	if port < 1 || port > 65535 {
		p.add(field, "port must be between 1 and 65535, got %d", port)
	}
}

func (p *problems) required(field, value, what string) {
	if value == "" {
		p.add(field, "%s is required", what)
	}
}

func (p *problems) oneOf(field, value string, valid ...string) bool {
	for _, v := range valid {
		if value == v {
			return true
		}
	}
	p.add(field, "invalid value %q (valid: %s)", value, strings.Join(valid, ", "))
	return false
}

// ValidateStatic checks everything that can be checked without connecting
// to a store. Cache references of stages are resolved at pipeline start.
func ValidateStatic(cfg *Config) error {
	var p problems

	p.checkServer(cfg.Server)
	p.checkBroker(cfg.Broker)
	p.checkDatabase(cfg.Database)
	p.checkCaches(cfg.Caches)
	p.checkRating(cfg.Rating, cfg.Caches, cfg.Database)

	if len(p) > 0 {
		return stderrors.Join(p...)
	}
	return nil
}

func (p *problems) checkServer(cfg ServerConfig) {
	p.port("server.port", cfg.Port)
	if cfg.ReadTimeoutSeconds <= 0 {
		p.add("server.read_timeout_seconds", "read timeout must be positive")
	}
	if cfg.WriteTimeoutSeconds <= 0 {
		p.add("server.write_timeout_seconds", "write timeout must be positive")
	}
}

func (p *problems) checkBroker(cfg BrokerConfig) {
	if !p.oneOf("broker.type", cfg.Type, "kafka") {
		return
	}

	k := cfg.Kafka
	if len(k.Brokers) == 0 {
		p.add("broker.kafka.brokers", "at least one Kafka broker is required")
	}
	p.required("broker.kafka.group_id", k.GroupID, "consumer group ID")

	r := k.Retry
	if r.MaxAttempts < 0 {
		p.add("broker.kafka.retry.max_attempts", "must be non-negative")
	}
	if r.InitialInterval < 0 {
		p.add("broker.kafka.retry.initial_interval", "must be non-negative")
	}
	if r.MaxInterval < 0 {
		p.add("broker.kafka.retry.max_interval", "must be non-negative")
	}
	if r.MaxInterval > 0 && r.MaxInterval < r.InitialInterval {
		p.add("broker.kafka.retry.max_interval", "must not be below initial_interval")
	}
	if r.Multiplier < 0 {
		p.add("broker.kafka.retry.multiplier", "must be non-negative")
	}
}

// checkDatabase validates only the stores that are configured.
func (p *problems) checkDatabase(cfg DatabaseConfig) {
	if pg := cfg.Postgres; pg.Host != "" || pg.Port > 0 {
		p.required("database.postgres.host", pg.Host, "PostgreSQL host")
		p.port("database.postgres.port", pg.Port)
		p.required("database.postgres.user", pg.User, "PostgreSQL user")
		p.required("database.postgres.dbname", pg.DBName, "PostgreSQL database name")
		if pg.SSLMode != "" {
			p.oneOf("database.postgres.sslmode", strings.ToLower(pg.SSLMode),
				"disable", "allow", "prefer", "require", "verify-ca", "verify-full")
		}
	}

	if rd := cfg.Redis; rd.Host != "" || rd.Port > 0 {
		p.required("database.redis.host", rd.Host, "Redis host")
		p.port("database.redis.port", rd.Port)
		if rd.TTLSeconds < 0 {
			p.add("database.redis.ttl_seconds", "TTL must be non-negative")
		}
	}

	if mg := cfg.MongoDB; mg.URI != "" {
		if !strings.HasPrefix(mg.URI, "mongodb://") && !strings.HasPrefix(mg.URI, "mongodb+srv://") {
			p.add("database.mongodb.uri", "MongoDB URI must start with mongodb:// or mongodb+srv://")
		}
		p.required("database.mongodb.database", mg.Database, "MongoDB database name")
	}
}

func (p *problems) checkCaches(caches []CacheConfig) {
	seen := make(map[string]bool, len(caches))

	for i, c := range caches {
		field := fmt.Sprintf("caches[%d]", i)

		if c.Name == "" {
			p.add(field+".name", "cache name is required")
			continue
		}
		if seen[c.Name] {
			p.add(field+".name", "duplicate cache name %q", c.Name)
		}
		seen[c.Name] = true

		if p.oneOf(field+".kind", c.Kind, constants.CacheKindPrefix, constants.CacheKindValidity) &&
			c.Kind == constants.CacheKindPrefix && c.Fields < 1 {
			p.add(field+".fields", "prefix caches need at least one field")
		}
	}
}

func (p *problems) checkRating(cfg RatingConfig, caches []CacheConfig, db DatabaseConfig) {
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		p.add("rating.timezone", "%v", err)
	}
	if cfg.Reload.IntervalSeconds < 0 {
		p.add("rating.reload.interval_seconds", "interval must be non-negative")
	}

	enabled := make(map[string]bool, len(cfg.Stages))
	for i, name := range cfg.Stages {
		p.oneOf(fmt.Sprintf("rating.stages[%d]", i), name,
			constants.StageZone, constants.StagePriceModel, constants.StageHoliday)
		enabled[name] = true
	}

	if enabled[constants.StageZone] {
		p.required("rating.zone.cache", cfg.Zone.Cache, "zone cache")
		p.checkOnMiss("rating.zone.on_miss", cfg.Zone.OnMiss, cfg.Zone.DefaultZone)
	}

	if enabled[constants.StagePriceModel] {
		pm := cfg.PriceModel
		p.required("rating.price_model.cache", pm.Cache, "price model cache")
		p.oneOf("rating.price_model.mode", pm.Mode, constants.ModeFirst, constants.ModeAll, constants.ModeFrom)
		p.checkOnMiss("rating.price_model.on_miss", pm.OnMiss, pm.DefaultModel)
	}

	if enabled[constants.StageHoliday] {
		h := cfg.Holiday
		p.required("rating.holiday.cache", h.Cache, "holiday cache")
		if p.oneOf("rating.holiday.policy", h.Policy, constants.HolidayPolicyPerPacket, constants.HolidayPolicyShared) &&
			h.Policy == constants.HolidayPolicyShared {
			if h.Group == "" && h.GroupExpression == "" {
				p.add("rating.holiday.group", "shared policy needs a group or a group_expression")
			}
			if h.GroupExpression != "" {
				if err := compileGroupExpression(h.GroupExpression); err != nil {
					p.add("rating.holiday.group_expression", "%v", err)
				}
			}
		}
	}

	if p.oneOf("rating.scratch.backend", cfg.Scratch.Backend, constants.ScratchBackendMemory, constants.ScratchBackendRedis) &&
		cfg.Scratch.Backend == constants.ScratchBackendRedis && db.Redis.Host == "" {
		p.add("rating.scratch.backend", "redis backend requires database.redis")
	}

	if len(caches) == 0 && len(enabled) > 0 {
		p.add("caches", "at least one cache is required by the enabled stages")
	}
}

func (p *problems) checkOnMiss(field, onMiss, def string) {
	if p.oneOf(field, onMiss, constants.OnMissIgnore, constants.OnMissDefault, constants.OnMissError) &&
		onMiss == constants.OnMissDefault && def == "" {
		p.add(field, "default policy needs a default value")
	}
}

func compileGroupExpression(expr string) error {
	eval, err := cel.NewEvaluator()
	if err != nil {
		return err
	}
	_, err = eval.CompileStringExpression(expr)
	return err
}
