package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RatingRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rating_records_total",
			Help: "Total number of records processed by the rating pipeline (count)",
		},
		[]string{"status"},
	)

	RatingProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rating_processing_duration_ms",
			Help:    "Processing duration of one record through all stages in milliseconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		},
		[]string{"status"},
	)

	StageOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rating_stage_outcomes_total",
			Help: "Lookup outcomes per rating stage: hit, miss, default, error (count)",
		},
		[]string{"stage", "outcome"},
	)

	HolidayPacketsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rating_holiday_packets_total",
			Help: "Total number of charge packets marked as holiday (count)",
		},
		[]string{"policy"},
	)

	CacheEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Number of entries in the published snapshot of a named cache (count)",
		},
		[]string{"cache", "kind"},
	)

	CacheGeneration = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_generation",
			Help: "Generation of the published snapshot of a named cache",
		},
		[]string{"cache"},
	)

	CacheReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_reloads_total",
			Help: "Total number of cache reload attempts (count)",
		},
		[]string{"cache", "status"},
	)

	CacheReloadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_reload_duration_ms",
			Help:    "Duration of loading and building a cache snapshot in milliseconds",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"cache"},
	)

	ScratchOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scratch_operations_total",
			Help: "Total number of scratch store operations (count)",
		},
		[]string{"backend", "operation", "status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	AdminLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_lookups_total",
			Help: "Total number of ad-hoc cache lookups served by the admin API (count)",
		},
		[]string{"kind", "result"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)
)

func RegisterRatingMetrics() {
	prometheus.MustRegister(RatingRecordsTotal)
	prometheus.MustRegister(RatingProcessingDuration)
	prometheus.MustRegister(StageOutcomesTotal)
	prometheus.MustRegister(HolidayPacketsTotal)
	prometheus.MustRegister(ScratchOperationsTotal)
}

func RegisterCacheMetrics() {
	prometheus.MustRegister(CacheEntries)
	prometheus.MustRegister(CacheGeneration)
	prometheus.MustRegister(CacheReloadsTotal)
	prometheus.MustRegister(CacheReloadDuration)
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaMessageSizeBytes)
	prometheus.MustRegister(KafkaWriteDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterAdminMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
	prometheus.MustRegister(AdminLookupsTotal)
}

func observeMs(h prometheus.Observer, d time.Duration) {
	h.Observe(float64(d.Microseconds()) / 1000)
}

func ObserveRatingDuration(duration time.Duration, status string) {
	observeMs(RatingProcessingDuration.WithLabelValues(status), duration)
}

func IncStageOutcome(stage, outcome string) {
	StageOutcomesTotal.WithLabelValues(stage, outcome).Inc()
}

func AddHolidayPackets(policy string, n int) {
	if n > 0 {
		HolidayPacketsTotal.WithLabelValues(policy).Add(float64(n))
	}
}

func SetCacheSnapshot(cache, kind string, generation uint64, entries int) {
	CacheEntries.WithLabelValues(cache, kind).Set(float64(entries))
	CacheGeneration.WithLabelValues(cache).Set(float64(generation))
}

func ObserveCacheReload(cache, status string, duration time.Duration) {
	CacheReloadsTotal.WithLabelValues(cache, status).Inc()
	observeMs(CacheReloadDuration.WithLabelValues(cache), duration)
}

func IncAdminLookup(kind string, found bool) {
	result := "miss"
	if found {
		result = "match"
	}
	AdminLookupsTotal.WithLabelValues(kind, result).Inc()
}

func IncScratchOperation(backend, operation, status string) {
	ScratchOperationsTotal.WithLabelValues(backend, operation, status).Inc()
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	observeMs(KafkaWriteDuration.WithLabelValues(service, topic), duration)
}

func IncDatabaseQuery(service, database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(service, database, operation string, duration time.Duration) {
	observeMs(DatabaseQueryDuration.WithLabelValues(service, database, operation), duration)
}
