package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/erp/catalogsync/internal/domain/notification"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DefaultExchange is the topic exchange attempts are published to
const DefaultExchange = "catalog.sync"

var (
	ErrBrokerUnavailable = errors.New("broker: connection is closed")
	ErrBrokerNack        = errors.New("broker: message not confirmed")
)

// Config holds RabbitMQ publisher settings
type Config struct {
	URL            string
	Exchange       string
	PublishTimeout time.Duration
}

// RabbitMQPublisher publishes sync attempts to a durable topic exchange with
// publisher confirms. Health is tracked through NotifyClose; a closed
// connection is not re-dialled.
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	timeout  time.Duration
	logger   *zap.Logger

	mu        sync.Mutex // one publish at a time per channel
	healthy   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewRabbitMQPublisher dials the broker, declares the exchange and enables confirms
func NewRabbitMQPublisher(cfg Config, logger *zap.Logger) (*RabbitMQPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("broker: failed to connect: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("broker: failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("broker: failed to declare exchange %s: %w", cfg.Exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("broker: failed to enable publisher confirms: %w", err)
	}

	p := &RabbitMQPublisher{
		conn:     conn,
		channel:  ch,
		exchange: cfg.Exchange,
		timeout:  cfg.PublishTimeout,
		logger:   logger.With(zap.String("exchange", cfg.Exchange)),
		done:     make(chan struct{}),
	}
	p.healthy.Store(true)
	p.watch(conn.NotifyClose(make(chan *amqp.Error, 1)), ch.NotifyClose(make(chan *amqp.Error, 1)))

	p.logger.Info("Connected to RabbitMQ")
	return p, nil
}

func (p *RabbitMQPublisher) watch(connClosed, chanClosed chan *amqp.Error) {
	go func() {
		select {
		case err := <-connClosed:
			p.healthy.Store(false)
			p.logger.Warn("RabbitMQ connection closed", zap.Any("error", err))
		case err := <-chanClosed:
			p.healthy.Store(false)
			p.logger.Warn("RabbitMQ channel closed", zap.Any("error", err))
		case <-p.done:
		}
	}()
}

// PublishAttempt publishes one attempt and waits for the broker confirm
func (p *RabbitMQPublisher) PublishAttempt(ctx context.Context, attempt *integration.SyncAttempt) error {
	body, err := json.Marshal(NewAttemptMessage(attempt))
	if err != nil {
		return fmt.Errorf("broker: failed to encode attempt: %w", err)
	}
	return p.publish(ctx, RoutingKey(attempt), amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     attempt.ID.String(),
		CorrelationId: attempt.EventID.String(),
		Timestamp:     attempt.CreatedAt,
		Body:          body,
	})
}

// Dispatch hands a notification to the mail workers consuming
// notification.<template> from the exchange
func (p *RabbitMQPublisher) Dispatch(ctx context.Context, msg notification.Message) error {
	body, err := json.Marshal(NewNotificationMessage(msg))
	if err != nil {
		return fmt.Errorf("broker: failed to encode notification: %w", err)
	}
	return p.publish(ctx, NotificationRoutingKey(msg.Key), amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.Key.Hash(),
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (p *RabbitMQPublisher) publish(ctx context.Context, key string, msg amqp.Publishing) error {
	if !p.IsHealthy() {
		return ErrBrokerUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	confirm, err := p.channel.PublishWithDeferredConfirmWithContext(ctx, p.exchange, key, false, false, msg)
	if err != nil {
		return fmt.Errorf("broker: publish %s: %w", key, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("broker: waiting for confirm of %s: %w", key, err)
	}
	if !acked {
		return fmt.Errorf("%w: %s", ErrBrokerNack, key)
	}
	return nil
}

// IsHealthy reports whether the connection and channel are open
func (p *RabbitMQPublisher) IsHealthy() bool {
	return p.healthy.Load()
}

// Close shuts the channel and connection down
func (p *RabbitMQPublisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		p.healthy.Store(false)
		if p.channel != nil {
			err = errors.Join(err, p.channel.Close())
		}
		if p.conn != nil {
			err = errors.Join(err, p.conn.Close())
		}
		p.logger.Info("RabbitMQ publisher closed")
	})
	return err
}

// NopPublisher discards attempts; used when the broker is disabled
type NopPublisher struct{}

func (NopPublisher) PublishAttempt(context.Context, *integration.SyncAttempt) error { return nil }

// LogDispatcher writes notifications to the log instead of a mail worker.
// It stands in for the broker when the broker is disabled.
type LogDispatcher struct {
	Logger *zap.Logger
}

// Dispatch logs the message
func (d LogDispatcher) Dispatch(_ context.Context, msg notification.Message) error {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("notification dispatched",
		zap.String("template", msg.Key.TemplateID),
		zap.String("recipient", msg.Key.Recipient),
		zap.String("campaign", msg.Key.CampaignID),
		zap.String("subject", msg.Subject),
	)
	return nil
}

var (
	_ integration.AttemptPublisher = (*RabbitMQPublisher)(nil)
	_ integration.AttemptPublisher = NopPublisher{}
)
