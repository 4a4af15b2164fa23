package bootstrap

import (
	"context"
	"fmt"

	"ratingcore/internal/broker"
	"ratingcore/internal/config"
	"ratingcore/internal/logger"
)

type Base struct {
	Config    *config.Config
	Logger    logger.Logger
	Producer  broker.Producer
	Consumers []broker.Consumer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// InitBroker creates the shared producer and one consumer per worker. All
// consumers join the configured group.
func (b *Base) InitBroker(serviceName string, workers int) error {
	producer, err := broker.NewProducer(b.Config.Broker, serviceName, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}
	b.Producer = producer

	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		consumer, err := b.NewConsumer(serviceName)
		if err != nil {
			b.ShutdownBroker()
			return err
		}
		b.Consumers = append(b.Consumers, consumer)
	}
	return nil
}

// NewConsumer creates an additional consumer that is closed with the rest
// on shutdown.
func (b *Base) NewConsumer(serviceName string) (broker.Consumer, error) {
	consumer, err := broker.NewConsumer(b.Config.Broker, serviceName, b.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	return consumer, nil
}

func (b *Base) ShutdownBroker() []error {
	var errs []error

	for i, consumer := range b.Consumers {
		if err := consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer %d close error: %w", i, err))
		}
	}
	b.Consumers = nil

	if b.Producer != nil {
		if err := b.Producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("producer close error: %w", err))
		}
		b.Producer = nil
	}

	return errs
}

func (b *Base) Shutdown(ctx context.Context, additionalShutdown func(ctx context.Context) []error) error {
	b.Logger.Infow("Shutting down application...")

	var errs []error

	errs = append(errs, b.ShutdownBroker()...)

	if additionalShutdown != nil {
		errs = append(errs, additionalShutdown(ctx)...)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	b.Logger.Infow("Application exited successfully")
	return nil
}
