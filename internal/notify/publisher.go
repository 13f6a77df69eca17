// Package notify publishes answer events to the gamification service.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/abhisek/examdrill/internal/session"
)

// Defaults for the XP exchange.
const (
	DefaultExchange    = "examdrill.xp"
	RoutingKeyAnswered = "xp.answer_recorded"
)

// Config configures the publisher. An empty URL disables publishing.
type Config struct {
	URL      string `yaml:"url" env:"AMQP_URL"`
	Exchange string `yaml:"exchange" env:"AMQP_EXCHANGE" env-default:"examdrill.xp"`
}

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends XP events to a topic exchange. It implements
// session.Notifier.
type Publisher struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
	logger   *slog.Logger
}

var _ session.Notifier = (*Publisher)(nil)

// Dial connects to the broker and declares the exchange. With an empty
// URL it returns a disabled publisher that drops every event.
func Dial(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = DefaultExchange
	}
	if cfg.URL == "" {
		logger.Info("amqp url not set, xp notifications disabled")
		return &Publisher{exchange: exchange, logger: logger}, nil
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	logger.Info("xp publisher ready", "exchange", exchange)
	return &Publisher{conn: conn, ch: ch, exchange: exchange, logger: logger}, nil
}

// newPublisher wraps an open channel.
func newPublisher(ch channel, exchange string, logger *slog.Logger) *Publisher {
	return &Publisher{ch: ch, exchange: exchange, logger: logger}
}

// Enabled reports whether events are actually sent.
func (p *Publisher) Enabled() bool { return p.ch != nil }

// AnswerRecorded publishes ev with routing key xp.answer_recorded.
func (p *Publisher) AnswerRecorded(ctx context.Context, ev session.XPEvent) error {
	if p.ch == nil {
		return nil
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal xp event: %w", err)
	}
	err = p.ch.PublishWithContext(ctx,
		p.exchange,
		RoutingKeyAnswered,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    ev.At,
			Body:         body,
			Headers: amqp.Table{
				"session_id": ev.SessionID,
				"subject_id": ev.SubjectID,
				"variant":    string(ev.Variant),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("publish xp event: %w", err)
	}
	p.logger.Debug("xp event published", "session_id", ev.SessionID, "question_id", ev.QuestionID, "xp", ev.XPEarned)
	return nil
}

// Close releases the channel and the connection.
func (p *Publisher) Close() error {
	var errs []error
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}
	return errors.Join(errs...)
}
