package repository

import (
	"context"
	"strconv"

	"Farenheit/internal/domain/models"
	domrepo "Farenheit/internal/domain/repository"
	"Farenheit/pkg/kafka"
	applogger "Farenheit/pkg/logger"
)

type publisher interface {
	PublishBatch(ctx context.Context, topic string, messages []kafka.Message) error
}

// KafkaEventPublisher emits alert events keyed by alert id, so repeats of
// one alert land on the same partition. Each message carries an event_type
// header.
type KafkaEventPublisher struct {
	p     publisher
	topic string
}

func NewKafkaEventPublisher(p publisher, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{p: p, topic: topic}
}

func (k *KafkaEventPublisher) PublishAlertTriggered(ctx context.Context, ev models.AlertTriggeredEvent) error {
	return k.p.PublishBatch(ctx, k.topic, []kafka.Message{{
		Key:     []byte(strconv.FormatInt(ev.AlertID, 10)),
		Value:   ev,
		Headers: map[string]string{"event_type": models.EventAlertTriggered},
	}})
}

// LogEventPublisher writes events to the log when Kafka is disabled.
type LogEventPublisher struct {
	l *applogger.Logger
}

func NewLogEventPublisher(l *applogger.Logger) *LogEventPublisher {
	return &LogEventPublisher{l: l}
}

func (p *LogEventPublisher) PublishAlertTriggered(ctx context.Context, ev models.AlertTriggeredEvent) error {
	if p.l != nil {
		p.l.Info("alert triggered",
			applogger.Int64("alert_id", ev.AlertID),
			applogger.String("user_id", ev.UserID),
			applogger.String("route", ev.Route),
			applogger.String("target_price", ev.TargetPrice),
			applogger.String("observed_min", ev.ObservedMin),
		)
	}
	return nil
}

var (
	_ domrepo.EventPublisher = (*KafkaEventPublisher)(nil)
	_ domrepo.EventPublisher = (*LogEventPublisher)(nil)
)
