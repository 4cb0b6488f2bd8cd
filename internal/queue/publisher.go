package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/cinema-seat-access/internal/broadcast"
	"github.com/iliyamo/cinema-seat-access/internal/logger"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// connector opens a channel and returns the connection that owns it.
type connector func(url string) (channel, io.Closer, error)

func dialChannel(url string) (channel, io.Closer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("channel open: %w", err)
	}
	return ch, conn, nil
}

// Publisher mirrors events to a topic exchange.  Publish only enqueues;
// a background loop owns the connection and reconnects lazily on the
// next event after a failure.  Failures are logged, never returned.
type Publisher struct {
	url      string
	exchange string
	log      *logger.Logger
	connect  connector

	queue chan broadcast.Event
	done  chan struct{}

	ch   channel
	conn io.Closer
}

// NewPublisher builds a publisher with room for buffer pending events.
func NewPublisher(url, exchange string, buffer int, log *logger.Logger) *Publisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &Publisher{
		url:      url,
		exchange: exchange,
		log:      log.Component("event-publisher"),
		connect:  dialChannel,
		queue:    make(chan broadcast.Event, buffer),
		done:     make(chan struct{}),
	}
}

// Publish implements broadcast.Publisher.  Events are dropped when the
// buffer is full.
func (p *Publisher) Publish(_ context.Context, ev broadcast.Event) {
	select {
	case p.queue <- ev:
	default:
		p.log.Warn("event buffer full, dropping event", "type", ev.Type, "id", ev.ID)
	}
}

// Run drains the buffer until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	defer close(p.done)
	defer p.reset()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-p.queue:
			sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := p.send(sendCtx, ev); err != nil {
				p.log.Warn("publish failed", "type", ev.Type, "id", ev.ID, "error", err)
				p.reset()
			}
			cancel()
		}
	}
}

// Wait blocks until Run has returned.
func (p *Publisher) Wait() {
	<-p.done
}

func (p *Publisher) send(ctx context.Context, ev broadcast.Event) error {
	if p.ch == nil {
		ch, conn, err := p.connect(p.url)
		if err != nil {
			return err
		}
		// Durable so the exchange survives broker restarts.
		if err := ch.ExchangeDeclare(p.exchange, ExchangeKind, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return fmt.Errorf("exchange declare: %w", err)
		}
		p.ch, p.conn = ch, conn
	}
	body, err := encodeEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         ev.Type,
		Timestamp:    ev.Timestamp,
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, ev.Type, false, false, pub); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (p *Publisher) reset() {
	var errs []error
	if p.ch != nil {
		errs = append(errs, p.ch.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	p.ch, p.conn = nil, nil
	if err := errors.Join(errs...); err != nil {
		p.log.Debug("closing broker connection", "error", err)
	}
}

var _ broadcast.Publisher = (*Publisher)(nil)
