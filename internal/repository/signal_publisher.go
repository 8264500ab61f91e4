package repository

import (
	"context"
	"fmt"

	"OilCast/internal/domain/models"
	pkgkafka "OilCast/pkg/kafka"
	applogger "OilCast/pkg/logger"
)

// KafkaSignalPublisher publishes signals keyed by model id so each model's
// signals stay ordered within a partition.
type KafkaSignalPublisher struct {
	producer *pkgkafka.Producer
	l        *applogger.Logger
}

func NewKafkaSignalPublisher(p *pkgkafka.Producer, l *applogger.Logger) *KafkaSignalPublisher {
	if l == nil {
		l = applogger.Nop()
	}
	return &KafkaSignalPublisher{producer: p, l: l}
}

func (k *KafkaSignalPublisher) Publish(ctx context.Context, s *models.Signal) error {
	if s == nil {
		return nil
	}
	if err := k.producer.Publish(ctx, []byte(s.Model), s); err != nil {
		k.l.Error("signal publish failed",
			applogger.String("model", string(s.Model)),
			applogger.String("topic", k.producer.Topic()),
			applogger.Error(err),
		)
		return fmt.Errorf("publish signal: %w", err)
	}
	k.l.Debug("signal published",
		applogger.String("model", string(s.Model)),
		applogger.String("action", s.Action),
		applogger.Date("date", s.Date),
	)
	return nil
}

func (k *KafkaSignalPublisher) Close() error {
	return k.producer.Close()
}

// NopSignalPublisher drops every signal; used when Kafka is disabled.
type NopSignalPublisher struct{}

func (NopSignalPublisher) Publish(context.Context, *models.Signal) error { return nil }
func (NopSignalPublisher) Close() error                                  { return nil }
