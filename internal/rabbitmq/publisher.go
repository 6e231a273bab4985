package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/auth-service/internal/lib/sl"
	"github.com/magabrotheeeer/auth-service/internal/metrics"
	"github.com/magabrotheeeer/auth-service/internal/models"
)

// Channel часть amqp.Channel, нужная для публикации.
type Channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// PublishMessage публикует сообщение в RabbitMQ в формате JSON.
func PublishMessage(ch Channel, exchange string, routingkey string, mandatory bool, message any) error {
	const op = "rabbitmq.PublishMessage"
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = ch.Publish(
		exchange,
		routingkey,
		mandatory,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Publisher публикует доменные события и задания на уведомления.
type Publisher struct {
	ch                    Channel
	eventsExchange        string
	notificationsExchange string
	log                   *slog.Logger
	metrics               *metrics.Metrics
}

// NewPublisher создает Publisher поверх канала ch.
func NewPublisher(ch Channel, eventsExchange, notificationsExchange string, log *slog.Logger, m *metrics.Metrics) *Publisher {
	return &Publisher{
		ch:                    ch,
		eventsExchange:        eventsExchange,
		notificationsExchange: notificationsExchange,
		log:                   log,
		metrics:               m,
	}
}

// PublishEvent публикует событие с флагом mandatory. Ошибка
// логируется и возвращается, но вызывающий не обязан на неё реагировать.
func (p *Publisher) PublishEvent(ctx context.Context, event models.DomainEvent) error {
	const op = "rabbitmq.PublishEvent"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	key := event.Action.RoutingKey()
	err := PublishMessage(p.ch, p.eventsExchange, key, true, event)
	p.metrics.EventPublished(key, err)
	if err != nil {
		p.log.Warn("failed to publish domain event",
			slog.String("op", op),
			slog.String("routing_key", key),
			slog.String("event_id", event.ID.String()),
			sl.Err(err),
		)
		return fmt.Errorf("%s: %w", op, err)
	}
	p.log.Debug("domain event published",
		slog.String("routing_key", key),
		slog.String("event_id", event.ID.String()),
	)
	return nil
}

// SendRecoveryCode ставит в очередь задание на отправку кода восстановления.
func (p *Publisher) SendRecoveryCode(ctx context.Context, msg models.RecoveryCodeMessage) error {
	const op = "rabbitmq.SendRecoveryCode"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := PublishMessage(p.ch, p.notificationsExchange, RecoveryCodeRoutingKey, false, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// WatchReturns логирует события, возвращённые брокером как немаршрутизируемые.
// Читает returns до закрытия канала вместе с amqp.Channel, в том числе
// во время остановки сервиса.
func WatchReturns(returns <-chan amqp.Return, log *slog.Logger) {
	for r := range returns {
		log.Warn("domain event returned by broker",
			slog.String("exchange", r.Exchange),
			slog.String("routing_key", r.RoutingKey),
			slog.Int("reply_code", int(r.ReplyCode)),
			slog.String("reply_text", r.ReplyText),
		)
	}
}
