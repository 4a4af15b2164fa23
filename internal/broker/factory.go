package broker

import (
	"fmt"

	"ratingcore/internal/config"
	"ratingcore/internal/logger"
)

const TypeKafka = "kafka"

func NewProducer(cfg config.BrokerConfig, serviceName string, log logger.Logger) (Producer, error) {
	if cfg.Type != TypeKafka {
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
	return NewKafkaProducer(cfg.Kafka, serviceName, log), nil
}

// NewConsumer returns a consumer bound to the configured group. Consumers
// sharing a group split the topic partitions between them.
func NewConsumer(cfg config.BrokerConfig, serviceName string, log logger.Logger) (Consumer, error) {
	if cfg.Type != TypeKafka {
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
	return NewKafkaConsumer(cfg.Kafka, serviceName, log), nil
}
