package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
)

const (
	DefaultInputTopic  = "cdr_records"
	DefaultOutputTopic = "rated_records"
)

const (
	DefaultMongoDBName = "rating"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultReloadIntervalSeconds = 300
	DefaultWorkers               = 1
	DefaultTimezone              = "UTC"
	DefaultHolidayResource       = "holiday"
)

const (
	StageZone       = "zone"
	StagePriceModel = "price_model"
	StageHoliday    = "holiday"
)

const (
	OnMissIgnore  = "ignore"
	OnMissDefault = "default"
	OnMissError   = "error"
)

const (
	ModeFirst = "first"
	ModeAll   = "all"
	ModeFrom  = "from"
)

const (
	HolidayPolicyPerPacket = "per_packet"
	HolidayPolicyShared    = "shared"
)

const (
	ScratchBackendMemory = "memory"
	ScratchBackendRedis  = "redis"
	DefaultScratchPrefix = "rating:scratch:"
	DefaultScratchTTL    = 86400
)

const (
	CacheKindPrefix   = "prefix"
	CacheKindValidity = "validity"
)

const (
	PostgresPrefixTable     = "prefix_entries"
	MongoValidityCollection = "validity_segments"
	MongoValidityHeads      = "validity_heads"
)
