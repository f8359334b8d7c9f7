package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/medguard/core"
	"github.com/hupe1980/medguard/logging"
	amqp "github.com/rabbitmq/amqp091-go"
)

var _ core.AuditSink = (*RabbitMQSink)(nil)

// ErrNotAcknowledged is returned when the broker nacks a published entry.
var ErrNotAcknowledged = errors.New("audit entry not acknowledged by broker")

// RabbitMQOptions configures a RabbitMQSink.
type RabbitMQOptions struct {
	Exchange   string
	Queue      string
	RoutingKey string
	Logger     logging.Logger
}

// RabbitMQSink publishes entries as persistent JSON messages to a durable
// exchange bound to a durable queue. The channel runs in confirm mode and
// Append waits for the broker's ack, so a returned nil means the entry is
// durably queued.
type RabbitMQSink struct {
	ch   *amqp.Channel
	opts RabbitMQOptions
	mu   sync.Mutex // serializes publishes so confirms map to entries
}

// NewRabbitMQSink opens a channel on conn and declares the topology. The
// caller owns conn; Close only closes the channel.
func NewRabbitMQSink(conn *amqp.Connection, optFns ...func(o *RabbitMQOptions)) (*RabbitMQSink, error) {
	if conn == nil {
		return nil, fmt.Errorf("rabbitmq connection is nil")
	}
	opts := RabbitMQOptions{
		Exchange:   "medguard.audit",
		Queue:      "medguard.audit",
		RoutingKey: "audit.entry",
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := declareTopology(ch, opts); err != nil {
		_ = ch.Close()
		return nil, err
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	opts.Logger.Info("Audit exchange declared", "exchange", opts.Exchange, "queue", opts.Queue)

	return &RabbitMQSink{ch: ch, opts: opts}, nil
}

func declareTopology(ch *amqp.Channel, opts RabbitMQOptions) error {
	err := ch.ExchangeDeclare(
		opts.Exchange, // name
		"topic",       // type
		true,          // durable
		false,         // auto-deleted
		false,         // internal
		false,         // no-wait
		nil,           // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange '%s': %w", opts.Exchange, err)
	}

	if _, err := ch.QueueDeclare(opts.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue '%s': %w", opts.Queue, err)
	}

	if err := ch.QueueBind(opts.Queue, opts.RoutingKey, opts.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue '%s': %w", opts.Queue, err)
	}

	return nil
}

// Append implements core.AuditSink.
func (s *RabbitMQSink) Append(ctx context.Context, entry core.AuditEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	s.mu.Lock()
	confirm, err := s.ch.PublishWithDeferredConfirmWithContext(ctx,
		s.opts.Exchange,   // exchange
		s.opts.RoutingKey, // routing key
		true,              // mandatory
		false,             // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    entry.ID,
			Timestamp:    entry.Timestamp,
			Type:         string(entry.Action),
			Body:         body,
		},
	)
	s.mu.Unlock()
	if err != nil {
		s.opts.Logger.Error("Failed to publish audit entry", "audit_id", entry.ID, "error", err)
		return fmt.Errorf("failed to publish audit entry: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("waiting for audit entry confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("%w: %s", ErrNotAcknowledged, entry.ID)
	}

	s.opts.Logger.Debug("Audit entry published", "audit_id", entry.ID, "action", entry.Action)
	return nil
}

// Close closes the channel.
func (s *RabbitMQSink) Close() error {
	if s.ch != nil {
		return s.ch.Close()
	}
	return nil
}
