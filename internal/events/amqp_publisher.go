package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type dialFunc func(url string) (channel, func() error, error)

func dialAMQP(url string) (channel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return ch, conn.Close, nil
}

// AMQPPublisher publishes events to a durable topic exchange. The connection
// is opened lazily and reopened after a failed publish.
type AMQPPublisher struct {
	url      string
	exchange string
	logger   *slog.Logger
	dial     dialFunc

	mu        sync.Mutex
	ch        channel
	closeConn func() error
}

var _ Publisher = (*AMQPPublisher)(nil)

func NewAMQPPublisher(url, exchange string, logger *slog.Logger) *AMQPPublisher {
	return &AMQPPublisher{
		url:      url,
		exchange: exchange,
		logger:   logger,
		dial:     dialAMQP,
	}
}

func (p *AMQPPublisher) openChannel() (channel, error) {
	if p.ch != nil {
		return p.ch, nil
	}
	ch, closeConn, err := p.dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = closeConn()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	p.ch, p.closeConn = ch, closeConn
	return ch, nil
}

func (p *AMQPPublisher) PublishUserDeleted(ctx context.Context, event UserDeletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal user deleted event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.openChannel()
	if err != nil {
		p.logger.WarnContext(ctx, "Event broker unavailable", slog.Any("error", err))
		return err
	}

	err = ch.PublishWithContext(ctx, p.exchange, RoutingKeyUserDeleted, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    event.UserID.String(),
		Body:         body,
	})
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to publish user deleted event",
			slog.String("userID", event.UserID.String()), slog.Any("error", err))
		p.reset()
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

// reset drops the current connection; the next publish dials again. Caller holds mu.
func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.closeConn != nil {
		_ = p.closeConn()
	}
	p.ch, p.closeConn = nil, nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
